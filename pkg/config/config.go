// Package config loads the runtime's configuration (§6), mirroring the
// teacher's settings package shape (Load/LoadFrom over a default path,
// missing file is not an error) but backed by YAML instead of JSON.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jameskyle/pyretic/pkg/rerr"
)

// BackendConfig selects which switch I/O implementation the CLI wires up.
type BackendConfig struct {
	Kind string `yaml:"kind"` // "inmemory" or "redis"
	Addr string `yaml:"addr,omitempty"`

	// SSH tunnel settings, used only when Kind is "redis" and the Redis
	// instance is not directly reachable.
	SSHHost string `yaml:"ssh_host,omitempty"`
	SSHUser string `yaml:"ssh_user,omitempty"`
	SSHPass string `yaml:"ssh_pass,omitempty"`
	SSHPort int    `yaml:"ssh_port,omitempty"`
}

// Runtime is the recognized configuration surface from §6: mode,
// verbosity, trace/debug toggles. No environment variables; no persisted
// state beyond this file.
type Runtime struct {
	Mode           string        `yaml:"mode"`
	Verbosity      string        `yaml:"verbosity"`
	ShowTraces     bool          `yaml:"show_traces"`
	DebugPacketIn  bool          `yaml:"debug_packet_in"`
	CoalesceMillis int           `yaml:"coalesce_interval_ms"`
	Backend        BackendConfig `yaml:"backend"`
}

// DefaultRuntime returns the zero-config runtime: interpreted mode, normal
// verbosity, in-memory backend.
func DefaultRuntime() *Runtime {
	return &Runtime{
		Mode:           "interpreted",
		Verbosity:      "normal",
		CoalesceMillis: 100,
		Backend:        BackendConfig{Kind: "inmemory"},
	}
}

// DefaultConfigPath returns ~/.pyretic/runtime.yaml, falling back to a
// temp-directory path if the home directory cannot be resolved.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/pyretic_runtime.yaml"
	}
	return filepath.Join(home, ".pyretic", "runtime.yaml")
}

// Load reads the runtime configuration from DefaultConfigPath.
func Load() (*Runtime, error) {
	return LoadFrom(DefaultConfigPath())
}

// LoadFrom reads the runtime configuration from path. A missing file is
// not an error: DefaultRuntime is returned instead, the same convention
// the teacher's settings.LoadFrom uses for JSON settings.
func LoadFrom(path string) (*Runtime, error) {
	r := DefaultRuntime()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks every field against the recognized value sets in §6,
// accumulating every problem via rerr.ValidationBuilder rather than
// failing on the first.
func (r *Runtime) Validate() error {
	var v rerr.ValidationBuilder
	v.Add(r.Mode == "interpreted" || r.Mode == "reactive0" || r.Mode == "proactive0",
		fmt.Sprintf("mode: %q must be one of interpreted, reactive0, proactive0", r.Mode))
	v.Add(r.Verbosity == "normal" || r.Verbosity == "high",
		fmt.Sprintf("verbosity: %q must be one of normal, high", r.Verbosity))
	v.Add(r.Backend.Kind == "inmemory" || r.Backend.Kind == "redis",
		fmt.Sprintf("backend.kind: %q must be one of inmemory, redis", r.Backend.Kind))
	v.Add(r.Backend.Kind != "redis" || r.Backend.Addr != "",
		"backend.addr is required when backend.kind is redis")
	return v.Build()
}

// Save writes r to DefaultConfigPath.
func (r *Runtime) Save() error {
	return r.SaveTo(DefaultConfigPath())
}

// SaveTo writes r to path, creating parent directories as needed.
func (r *Runtime) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir for %s: %w", path, err)
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
