// Package config loads the supervisor settings: compiled-in defaults, an optional YAML file,
// environment overrides for the control socket, then command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath     = "peer-runner.yaml"
	DefaultControlAddress = "unix:.peer-runner.sock"

	envAddress = "PEER_RUNNER_ADDRESS"
	envTLSKey  = "PEER_RUNNER_TLS_KEY"
	envTLSCert = "PEER_RUNNER_TLS_CERT"
	envTLSCA   = "PEER_RUNNER_CA_TLS_CERT"
)

// Config is the root configuration structure.
type Config struct {
	Peers       int           `yaml:"peers"`
	Version     string        `yaml:"version"`
	Root        string        `yaml:"root"`
	Extensions  []string      `yaml:"extensions"`
	AutoRebuild bool          `yaml:"autoRebuild"`
	StopTimeout time.Duration `yaml:"stopTimeout"`

	Build    CommandConfig  `yaml:"build"`
	Relay    CommandConfig  `yaml:"relay"`
	Registry RegistryConfig `yaml:"registry"`
	Peer     PeerConfig     `yaml:"peer"`
	Output   OutputConfig   `yaml:"output"`
	Control  ControlConfig  `yaml:"control"`
}

// CommandConfig describes an external program invocation.
type CommandConfig struct {
	Command []string `yaml:"command"`
	Dir     string   `yaml:"dir"`
}

// RegistryConfig configures the long-running directory registry helper.
type RegistryConfig struct {
	CommandConfig `yaml:",inline"`
	// SettleDelay is how long to wait after starting the registry before building and launching peers.
	SettleDelay time.Duration `yaml:"settleDelay"`
}

// PeerConfig configures how peer processes are launched.
type PeerConfig struct {
	CommandConfig `yaml:",inline"`
	BasePort      int `yaml:"basePort"`
	// Host is the address non-anchor peers use to reach the anchor. Empty means auto-detect.
	Host string `yaml:"host"`
}

// OutputConfig configures the output multiplexer.
type OutputConfig struct {
	Color      string        `yaml:"color"` // auto, always or never
	StartDelay time.Duration `yaml:"startDelay"`
	FlushPause time.Duration `yaml:"flushPause"`
}

// ControlConfig configures the remote control socket.
type ControlConfig struct {
	Enabled bool       `yaml:"enabled"`
	Address string     `yaml:"address"`
	TLS     *TLSConfig `yaml:"-"`
}

// TLSConfig holds PEM material for mutual TLS on the control socket.
type TLSConfig struct {
	KeyPEM  string
	CertPEM string
	CAPEM   string
}

// Default returns the configuration matching the classic layout: sources under the working directory,
// ./compile.sh to build, peers run from src/build next to the registry.
func Default() Config {
	return Config{
		Peers:       5,
		Version:     "1.0",
		Root:        ".",
		Extensions:  []string{".java"},
		StopTimeout: 5 * time.Second,
		Build: CommandConfig{
			Command: []string{"./compile.sh"},
		},
		Relay: CommandConfig{
			Command: []string{"./interface.sh"},
		},
		Registry: RegistryConfig{
			CommandConfig: CommandConfig{Command: []string{"rmiregistry"}, Dir: "src/build"},
			SettleDelay:   time.Second,
		},
		Peer: PeerConfig{
			CommandConfig: CommandConfig{Command: []string{"java", "Main"}, Dir: "src/build"},
			BasePort:      8000,
		},
		Output: OutputConfig{
			Color:      "auto",
			StartDelay: 500 * time.Millisecond,
			FlushPause: 200 * time.Millisecond,
		},
		Control: ControlConfig{
			Enabled: true,
			Address: DefaultControlAddress,
		},
	}
}

// Load reads the YAML file at path on top of the defaults and applies environment overrides.
// A missing file is not an error unless required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if addr := strings.TrimSpace(os.Getenv(envAddress)); addr != "" {
		c.Control.Address = addr
	}

	tls, err := TLSFromEnv()
	if err != nil {
		return err
	}
	c.Control.TLS = tls
	return nil
}

// TLSFromEnv returns the control socket TLS material, or nil when none of the variables is set.
func TLSFromEnv() (*TLSConfig, error) {
	keyPEM := os.Getenv(envTLSKey)
	certPEM := os.Getenv(envTLSCert)
	caPEM := os.Getenv(envTLSCA)
	if keyPEM == "" && certPEM == "" && caPEM == "" {
		return nil, nil
	}
	if strings.TrimSpace(keyPEM) == "" || strings.TrimSpace(certPEM) == "" || strings.TrimSpace(caPEM) == "" {
		return nil, fmt.Errorf("incomplete TLS environment variables; require %s, %s, %s", envTLSKey, envTLSCert, envTLSCA)
	}
	return &TLSConfig{KeyPEM: keyPEM, CertPEM: certPEM, CAPEM: caPEM}, nil
}

// Validate reports the first setting that makes the supervisor unable to run.
func (c Config) Validate() error {
	if c.Peers < 1 {
		return fmt.Errorf("peer count must be at least 1, got %d", c.Peers)
	}
	if len(c.Peer.Command) == 0 || c.Peer.Command[0] == "" {
		return errors.New("peer command is required")
	}
	if len(c.Build.Command) == 0 || c.Build.Command[0] == "" {
		return errors.New("build command is required")
	}
	if c.Peer.BasePort < 1 || c.Peer.BasePort+c.Peers-1 > 65535 {
		return fmt.Errorf("base port %d leaves no room for %d peers", c.Peer.BasePort, c.Peers)
	}
	switch c.Output.Color {
	case "", "auto", "always", "never":
	default:
		return fmt.Errorf("unknown color mode %q", c.Output.Color)
	}
	if c.StopTimeout < 0 {
		return errors.New("stop timeout must not be negative")
	}
	return nil
}
