package transport

import "encoding/json"

// Inbound message types (client -> server).
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
)

// Outbound message types (server -> client).
const (
	TypeMessages         = "messages"
	TypeError            = "error"
	TypeSessionStarted    = "session:started"
	TypeSessionStopped    = "session:stopped"
	TypeSessionError      = "session:error"
	TypeSessionActivity   = "session:activity"
)

// Error codes carried on a TypeError frame.
const (
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeUnknownSession = "UNKNOWN_SESSION"
)

// inboundEnvelope is decoded first to discriminate on Type before the
// type-specific payload is parsed.
type inboundEnvelope struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// errorFrame is sent in place of any request that fails validation or
// resolution. The connection stays open.
type errorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newErrorFrame(code, message string) []byte {
	b, _ := json.Marshal(errorFrame{Type: TypeError, Code: code, Message: message})
	return b
}

// StopReason is carried on a session:stopped lifecycle event.
type StopReason string

const (
	StopReasonUser      StopReason = "user"
	StopReasonCompleted StopReason = "completed"
	StopReasonErrored   StopReason = "errored"
)

type sessionStartedFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	ProjectID string `json:"projectId"`
	Cwd       string `json:"cwd"`
	StartedAt string `json:"startedAt"`
}

type sessionStoppedFrame struct {
	Type      string     `json:"type"`
	SessionID string     `json:"sessionId"`
	Reason    StopReason `json:"reason"`
	StoppedAt string     `json:"stoppedAt"`
}

type sessionErrorFrame struct {
	Type       string `json:"type"`
	SessionID  string `json:"sessionId"`
	Error      string `json:"error"`
	OccurredAt string `json:"occurredAt"`
}

type sessionActivityFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	UpdatedAt string `json:"updatedAt"`
}
