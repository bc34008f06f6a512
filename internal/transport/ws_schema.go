package transport

import (
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// wsSchemaRegistry compiles the inbound control-frame schemas once, lazily,
// grounded on the teacher's ws_schema.go registry (one compiled schema for
// the envelope, one per message type needing its own shape).
type wsSchemaRegistry struct {
	once     sync.Once
	initErr  error
	envelope *jsonschema.Schema
	types    map[string]*jsonschema.Schema
}

var wsSchemas wsSchemaRegistry

func initWSSchemas() error {
	wsSchemas.once.Do(func() {
		env, err := jsonschema.CompileString("ws_envelope", wsEnvelopeSchema)
		if err != nil {
			wsSchemas.initErr = err
			return
		}
		wsSchemas.envelope = env

		types := map[string]string{
			TypeSubscribe:   wsSubscribeSchema,
			TypeUnsubscribe: wsUnsubscribeSchema,
		}
		wsSchemas.types = make(map[string]*jsonschema.Schema, len(types))
		for name, raw := range types {
			compiled, err := jsonschema.CompileString("ws_"+name, raw)
			if err != nil {
				wsSchemas.initErr = err
				return
			}
			wsSchemas.types[name] = compiled
		}
	})
	return wsSchemas.initErr
}

// validateInboundFrame checks raw against the envelope schema, then against
// the type-specific schema for env.Type if one is registered. A frame whose
// type has no registered schema still passes the envelope check — dispatch
// rejects unknown types itself with CodeInvalidMessage.
func validateInboundFrame(raw []byte, env inboundEnvelope) error {
	if err := initWSSchemas(); err != nil {
		return err
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if err := wsSchemas.envelope.Validate(payload); err != nil {
		return err
	}
	if schema, ok := wsSchemas.types[env.Type]; ok {
		if err := schema.Validate(payload); err != nil {
			return err
		}
	}
	return nil
}

const wsEnvelopeSchema = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": true
}`

const wsSubscribeSchema = `{
  "type": "object",
  "required": ["type", "sessionId"],
  "properties": {
    "type": { "const": "subscribe" },
    "sessionId": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": true
}`

const wsUnsubscribeSchema = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": { "const": "unsubscribe" }
  },
  "additionalProperties": true
}`
