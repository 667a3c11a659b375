package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"healthd-ng/internal/charging"
)

const (
	DefaultSocket     = "/run/healthd-ng/health.sock"
	DefaultSocketMode = "0660"
	DefaultWebListen  = "127.0.0.1:8090"
)

type Config struct {
	Charging ChargingConfig `yaml:"charging"`
	RPC      RPCConfig      `yaml:"rpc"`
	Web      WebConfig      `yaml:"web"`
	Log      LogConfig      `yaml:"log"`
}

type ChargingConfig struct {
	// Nodes overrides the built-in candidate list when non-empty.
	Nodes []NodeConfig `yaml:"nodes"`
}

type NodeConfig struct {
	Path       string `yaml:"path"`
	TrueToken  string `yaml:"true_token"`
	FalseToken string `yaml:"false_token"`
	// Line selects a GPIO line on the chip named by Path.
	Line string `yaml:"line"`
}

type RPCConfig struct {
	Socket     string `yaml:"socket"`
	SocketMode string `yaml:"socket_mode"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	BufferLines int    `yaml:"buffer_lines"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	if err := cfg.applyDefaults(); err != nil {
		panic(err)
	}
	return cfg
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var te *yaml.TypeError
		if errors.As(err, &te) {
			return Config{}, fmt.Errorf("config contains unknown fields: %s", stripLineNumbers(te.Errors))
		}
		return Config{}, err
	}

	if err := cfg.applyDefaults(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var yamlLinePrefix = regexp.MustCompile(`^line \d+: `)

func stripLineNumbers(errs []string) string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, yamlLinePrefix.ReplaceAllString(e, ""))
	}
	return strings.Join(out, "; ")
}

func (cfg *Config) applyDefaults() error {
	for i, n := range cfg.Charging.Nodes {
		if strings.TrimSpace(n.Path) == "" {
			return fmt.Errorf("charging.nodes[%d].path is required", i)
		}
		// Most kernels speak "1"/"0".
		if n.TrueToken == "" && n.FalseToken == "" {
			cfg.Charging.Nodes[i].TrueToken = "1"
			cfg.Charging.Nodes[i].FalseToken = "0"
		}
	}
	if err := cfg.Charging.Registry().Validate(); err != nil {
		return fmt.Errorf("charging.nodes: %w", err)
	}

	if strings.TrimSpace(cfg.RPC.Socket) == "" {
		cfg.RPC.Socket = DefaultSocket
	}
	if cfg.RPC.SocketMode == "" {
		cfg.RPC.SocketMode = DefaultSocketMode
	}
	if _, err := cfg.RPC.Mode(); err != nil {
		return fmt.Errorf("rpc.socket_mode must be an octal permission like 0660")
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = DefaultWebListen
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be one of trace, debug, info, warn, error")
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("log.format must be 'text' or 'json'")
	}
	if cfg.Log.BufferLines <= 0 {
		cfg.Log.BufferLines = 2000
	}
	return nil
}

// Registry converts the configured nodes. An empty list yields the built-in
// registry.
func (c ChargingConfig) Registry() charging.Registry {
	if len(c.Nodes) == 0 {
		return charging.DefaultRegistry()
	}
	reg := make(charging.Registry, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		reg = append(reg, charging.ControlNode{
			Path:       n.Path,
			TrueToken:  n.TrueToken,
			FalseToken: n.FalseToken,
			Line:       n.Line,
		})
	}
	return reg
}

// Mode parses SocketMode as an octal file mode.
func (c RPCConfig) Mode() (os.FileMode, error) {
	v, err := strconv.ParseUint(c.SocketMode, 8, 32)
	if err != nil {
		return 0, err
	}
	if v > 0o777 {
		return 0, fmt.Errorf("mode %o out of range", v)
	}
	return os.FileMode(v), nil
}
