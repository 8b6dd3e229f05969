package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
	Node    NodeConfig    `yaml:"node"`
	UI      UIConfig      `yaml:"ui"`
	Log     LogConfig     `yaml:"log"`
}

// GatewayConfig is where the client reaches the node.
type GatewayConfig struct {
	Transport     string `yaml:"transport"`
	Address       string `yaml:"address"`
	CallTimeoutMS int    `yaml:"call_timeout_ms"`
}

// NodeConfig drives the local node, either embedded in the UI process
// or started by `cofectl node`.
type NodeConfig struct {
	Embedded  bool         `yaml:"embedded"`
	Transport string       `yaml:"transport"`
	Listen    string       `yaml:"listen"`
	DataDir   string       `yaml:"data_dir"`
	Peers     []PeerConfig `yaml:"peers"`
}

type PeerConfig struct {
	ID    string `yaml:"id"`
	Inbox string `yaml:"inbox"`
}

type UIConfig struct {
	SplashMS int    `yaml:"splash_ms"`
	Theme    string `yaml:"theme"`
	Metrics  bool   `yaml:"metrics"`
}

type LogConfig struct {
	File string `yaml:"file"`
}

func DefaultConfig() Config {
	return Config{
		Gateway: GatewayConfig{
			Transport:     "tcp",
			Address:       "127.0.0.1:7400",
			CallTimeoutMS: 15000,
		},
		Node: NodeConfig{
			Embedded:  true,
			Transport: "tcp",
			Listen:    "127.0.0.1:7400",
			DataDir:   "node",
		},
		UI: UIConfig{
			SplashMS: 1800,
			Theme:    "dark",
			Metrics:  true,
		},
		Log: LogConfig{
			File: "logs/cofe.log",
		},
	}
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadOptional(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Save(path string, cfg Config) error {
	if err := validate(cfg); err != nil {
		return err
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// overrides are read from COFE_* variables. Unset variables leave the
// file value alone.
type overrides struct {
	GatewayTransport *string `envconfig:"GATEWAY_TRANSPORT"`
	GatewayAddress   *string `envconfig:"GATEWAY_ADDRESS"`
	CallTimeoutMS    *int    `envconfig:"CALL_TIMEOUT_MS"`
	NodeEmbedded     *bool   `envconfig:"NODE_EMBEDDED"`
	NodeTransport    *string `envconfig:"NODE_TRANSPORT"`
	NodeListen       *string `envconfig:"NODE_LISTEN"`
	NodeDataDir      *string `envconfig:"NODE_DATA_DIR"`
	SplashMS         *int    `envconfig:"SPLASH_MS"`
	Theme            *string `envconfig:"THEME"`
	Metrics          *bool   `envconfig:"METRICS"`
	LogFile          *string `envconfig:"LOG_FILE"`
}

// ApplyEnv loads envFile if it exists and applies COFE_* overrides to cfg.
// Variables already set in the environment win over the file.
func ApplyEnv(envFile string, cfg Config) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	var o overrides
	if err := envconfig.Process("cofe", &o); err != nil {
		return Config{}, err
	}
	set(&cfg.Gateway.Transport, o.GatewayTransport)
	set(&cfg.Gateway.Address, o.GatewayAddress)
	set(&cfg.Gateway.CallTimeoutMS, o.CallTimeoutMS)
	set(&cfg.Node.Embedded, o.NodeEmbedded)
	set(&cfg.Node.Transport, o.NodeTransport)
	set(&cfg.Node.Listen, o.NodeListen)
	set(&cfg.Node.DataDir, o.NodeDataDir)
	set(&cfg.UI.SplashMS, o.SplashMS)
	set(&cfg.UI.Theme, o.Theme)
	set(&cfg.UI.Metrics, o.Metrics)
	set(&cfg.Log.File, o.LogFile)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func validTransport(t string) bool {
	switch t {
	case "tcp", "unix", "ws":
		return true
	}
	return false
}

func validate(cfg Config) error {
	if !validTransport(cfg.Gateway.Transport) {
		return errors.New("gateway.transport must be tcp|unix|ws")
	}
	if cfg.Gateway.Address == "" {
		return errors.New("gateway.address is required")
	}
	if cfg.Gateway.CallTimeoutMS <= 0 {
		return errors.New("gateway.call_timeout_ms must be positive")
	}
	if !validTransport(cfg.Node.Transport) {
		return errors.New("node.transport must be tcp|unix|ws")
	}
	if cfg.Node.Listen == "" {
		return errors.New("node.listen is required")
	}
	if cfg.Node.DataDir == "" {
		return errors.New("node.data_dir is required")
	}
	for i, p := range cfg.Node.Peers {
		if p.ID == "" {
			return fmt.Errorf("node.peers[%d].id is required", i)
		}
	}
	if cfg.UI.SplashMS < 0 {
		return errors.New("ui.splash_ms must not be negative")
	}
	switch cfg.UI.Theme {
	case "dark", "light":
	default:
		return errors.New("ui.theme must be dark|light")
	}
	if cfg.Log.File == "" {
		return errors.New("log.file is required")
	}
	return nil
}
