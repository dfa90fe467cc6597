// Package config loads the YAML configuration a mesh node boots from: node
// identity, transporter choice and endpoint, queue size, and the
// handshake/liveness timers Transit exposes as tunables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document for cmd/transitd.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Transport TransportConfig `yaml:"transport"`
	Transit   TransitConfig   `yaml:"transit"`
	Log       LogConfig       `yaml:"log"`
}

// NodeConfig identifies this node within the mesh.
type NodeConfig struct {
	ID string `yaml:"id"`
}

// TransportConfig selects and configures the Transporter.
type TransportConfig struct {
	// Kind is "local" or "nats". "local" only makes sense within a single
	// process (tests, demos); use "nats" for a real multi-node mesh.
	Kind string `yaml:"kind"`
	URL  string `yaml:"url"`
	// Prefix namespaces NATS subjects so multiple meshes can share a cluster.
	Prefix string `yaml:"prefix"`
	// Serializer is "json" or "msgpack".
	Serializer string `yaml:"serializer"`
}

// TransitConfig covers Transit's own tunables: queue sizing plus the
// handshake and liveness timers a real deployment needs.
type TransitConfig struct {
	MaxQueueSize        int           `yaml:"max_queue_size"`
	ReconnectBackoff    time.Duration `yaml:"reconnect_backoff"`
	HandshakeGrace      time.Duration `yaml:"handshake_grace"`
	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval"`
	NodeLivenessTimeout time.Duration `yaml:"node_liveness_timeout"`
}

// LogConfig selects the logging level and format.
type LogConfig struct {
	Level      string `yaml:"level"`
	JSONOutput bool   `yaml:"json_output"`
}

// Load reads and parses a YAML config file, filling in defaults for anything
// left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if cfg.Node.ID == "" {
		return nil, fmt.Errorf("config: node.id is required")
	}
	if cfg.Transport.Kind != "local" && cfg.Transport.Kind != "nats" {
		return nil, fmt.Errorf("config: transport.kind must be \"local\" or \"nats\", got %q", cfg.Transport.Kind)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Transport.Kind == "" {
		cfg.Transport.Kind = "local"
	}
	if cfg.Transport.Prefix == "" {
		cfg.Transport.Prefix = "TRANSIT"
	}
	if cfg.Transport.Serializer == "" {
		cfg.Transport.Serializer = "json"
	}
	if cfg.Transit.ReconnectBackoff <= 0 {
		cfg.Transit.ReconnectBackoff = 5 * time.Second
	}
	if cfg.Transit.HandshakeGrace <= 0 {
		cfg.Transit.HandshakeGrace = 200 * time.Millisecond
	}
	if cfg.Transit.HeartbeatInterval <= 0 {
		cfg.Transit.HeartbeatInterval = 10 * time.Second
	}
	if cfg.Transit.NodeLivenessTimeout <= 0 {
		cfg.Transit.NodeLivenessTimeout = 30 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
