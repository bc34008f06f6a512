// Package config loads the server's YAML configuration: where to find
// transcript files, how the watcher debounces, and how the observability
// stack is configured.
//
// Grounded on the teacher's struct-of-structs Config composition and
// its env-var-expansion + strict-decode loading pattern, trimmed to a
// single YAML document (no $include directives, no JSON5) since this
// domain has no multi-file config surface to justify that machinery.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root of the YAML document.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Watcher       WatcherConfig       `yaml:"watcher"`
	Logging       LoggingConfig       `yaml:"logging"`
	Tracing       TracingConfig       `yaml:"tracing"`
	SessionsRoot  string              `yaml:"sessionsRoot"`
}

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// WatcherConfig configures the file tailer's debounce timing.
type WatcherConfig struct {
	DebounceMs int `yaml:"debounceMs"`
	MaxWaitMs  int `yaml:"maxWaitMs"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig configures the OTLP exporter.
type TracingConfig struct {
	ServiceName   string            `yaml:"serviceName"`
	Endpoint      string            `yaml:"endpoint"`
	SamplingRate  float64           `yaml:"samplingRate"`
	Attributes    map[string]string `yaml:"attributes"`
	EnableInsecure bool             `yaml:"enableInsecure"`
}

// DefaultConfigPath is used when no --config flag is given.
func DefaultConfigPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.fleetsub/config.yaml"
	}
	return "fleetsub.yaml"
}

// Default returns a Config with every field set to a usable default.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8787"},
		Watcher: WatcherConfig{
			DebounceMs: 100,
			MaxWaitMs:  500,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Tracing: TracingConfig{ServiceName: "fleetsub", SamplingRate: 0},
	}
}

// Load reads and strictly decodes the YAML document at path, applying
// environment variable expansion (${VAR} / $VAR) before parsing, same
// as the teacher's loader. Unknown fields are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	expanded := os.Expand(string(raw), envLookup)

	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func envLookup(key string) string {
	return os.Getenv(key)
}
