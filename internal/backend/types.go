package backend

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Command names understood by the node process.
const (
	CmdGetFirstRun       = "get_first_run"
	CmdSetupPassword     = "setup_password"
	CmdLoadConfig        = "load_config"
	CmdSaveConfig        = "save_config"
	CmdGetSelfPeerID     = "get_self_peer_id"
	CmdFindPeer          = "find_peer"
	CmdGetHistoryMessage = "get_history_message"
	CmdSendMessage       = "send_message"
)

// EventMessageReceived is pushed whenever the node stores an inbound chat message.
const EventMessageReceived = "message-received"

type IPVersion string

const (
	IPv4 IPVersion = "ipv4"
	IPv6 IPVersion = "ipv6"
)

const (
	DefaultListenIPv4 = "0.0.0.0"
	DefaultListenIPv6 = "::"
	DefaultListenPort = 8000
)

// DefaultListenIP returns the wildcard address that goes with v.
func DefaultListenIP(v IPVersion) string {
	if v == IPv6 {
		return DefaultListenIPv6
	}
	return DefaultListenIPv4
}

// NetworkConfig is the node's listen and bootstrap settings. The bootstrap
// fields are independent: any subset may be nil.
type NetworkConfig struct {
	IPVersion       IPVersion `json:"ip_version" validate:"oneof=ipv4 ipv6"`
	ListenIP        string    `json:"listen_ip" validate:"required"`
	ListenPort      int       `json:"listen_port" validate:"min=1,max=65535"`
	BootstrapIP     *string   `json:"bootstrap_ip"`
	BootstrapPort   *int      `json:"bootstrap_port" validate:"omitempty,min=1,max=65535"`
	BootstrapPeerID *string   `json:"bootstrap_peer_id" validate:"omitempty,min=1"`
}

func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		IPVersion:  IPv4,
		ListenIP:   DefaultListenIPv4,
		ListenPort: DefaultListenPort,
	}
}

// WithDefaults fills every zero-valued listen field from DefaultNetworkConfig.
// Bootstrap fields are left as they are.
func (n NetworkConfig) WithDefaults() NetworkConfig {
	def := DefaultNetworkConfig()
	if n.IPVersion == "" {
		n.IPVersion = def.IPVersion
	}
	if n.ListenIP == "" {
		n.ListenIP = DefaultListenIP(n.IPVersion)
	}
	if n.ListenPort == 0 {
		n.ListenPort = def.ListenPort
	}
	return n
}

// Normalize folds empty bootstrap values into nil so that a config
// read back from the wire compares equal to the one that was written.
func (n NetworkConfig) Normalize() NetworkConfig {
	if n.BootstrapIP != nil && *n.BootstrapIP == "" {
		n.BootstrapIP = nil
	}
	if n.BootstrapPeerID != nil && *n.BootstrapPeerID == "" {
		n.BootstrapPeerID = nil
	}
	if n.BootstrapPort != nil && *n.BootstrapPort == 0 {
		n.BootstrapPort = nil
	}
	return n
}

// Equal compares two configs after normalization.
func (n NetworkConfig) Equal(o NetworkConfig) bool {
	a, b := n.Normalize(), o.Normalize()
	return a.IPVersion == b.IPVersion &&
		a.ListenIP == b.ListenIP &&
		a.ListenPort == b.ListenPort &&
		eqPtr(a.BootstrapIP, b.BootstrapIP) &&
		eqPtr(a.BootstrapPort, b.BootstrapPort) &&
		eqPtr(a.BootstrapPeerID, b.BootstrapPeerID)
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// CheckFields reports the first field outside its allowed range. Addresses
// are free text: hostnames are as valid as ip literals. The bootstrap
// fields are not required together.
func (n NetworkConfig) CheckFields() error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate.Struct(n)
}

// Validate is CheckFields as the node reports it to callers.
func (n NetworkConfig) Validate() error {
	if err := n.CheckFields(); err != nil {
		return fmt.Errorf("%w: network config: %v", ErrValidation, err)
	}
	return nil
}

// Config is the document exchanged by load_config and save_config.
type Config struct {
	Network NetworkConfig `json:"network"`
}

// DecodeConfig decodes a load_config result on top of the built-in
// defaults, so fields the node omitted keep their default value.
func DecodeConfig(data []byte) (Config, error) {
	cfg := Config{Network: DefaultNetworkConfig()}
	if len(data) == 0 || string(data) == "null" {
		return cfg, nil
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{Network: DefaultNetworkConfig()}, err
	}
	cfg.Network = cfg.Network.WithDefaults()
	return cfg, nil
}

type ChatMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Timestamp int64  `json:"timestamp"`
	Content   string `json:"content"`
}

// Event is a push notification from the node. Payload is kept raw;
// the client treats message-received as a bare trigger.
type Event struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageReceived is the payload the node attaches to EventMessageReceived.
type MessageReceived struct {
	Peer    string      `json:"peer"`
	Message ChatMessage `json:"message"`
}
