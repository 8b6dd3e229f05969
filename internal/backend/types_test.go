package backend

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNetworkConfigJSONShape(t *testing.T) {
	data, err := json.Marshal(Config{Network: DefaultNetworkConfig()})
	require.NoError(t, err)
	require.JSONEq(t, `{"network":{
		"ip_version":"ipv4",
		"listen_ip":"0.0.0.0",
		"listen_port":8000,
		"bootstrap_ip":null,
		"bootstrap_port":null,
		"bootstrap_peer_id":null}}`, string(data))
}

func TestDecodeConfigPartialKeepsDefaults(t *testing.T) {
	cfg, err := DecodeConfig([]byte(`{"network":{"listen_port":9100,"bootstrap_ip":"10.0.0.2"}}`))
	require.NoError(t, err)
	require.Equal(t, IPv4, cfg.Network.IPVersion)
	require.Equal(t, "0.0.0.0", cfg.Network.ListenIP)
	require.Equal(t, 9100, cfg.Network.ListenPort)
	require.NotNil(t, cfg.Network.BootstrapIP)
	require.Equal(t, "10.0.0.2", *cfg.Network.BootstrapIP)
	require.Nil(t, cfg.Network.BootstrapPort)
}

func TestDecodeConfigIPv6DefaultAddress(t *testing.T) {
	cfg, err := DecodeConfig([]byte(`{"network":{"ip_version":"ipv6"}}`))
	require.NoError(t, err)
	require.Equal(t, "::", cfg.Network.ListenIP)
}

func TestDecodeConfigCorrupt(t *testing.T) {
	cfg, err := DecodeConfig([]byte(`{"network":`))
	require.Error(t, err)
	require.Equal(t, DefaultNetworkConfig(), cfg.Network)
}

func TestEqualTreatsEmptyAsAbsent(t *testing.T) {
	empty := ""
	zero := 0
	a := DefaultNetworkConfig()
	b := DefaultNetworkConfig()
	b.BootstrapIP = &empty
	b.BootstrapPort = &zero
	require.True(t, a.Equal(b))

	ip := "192.168.1.4"
	b.BootstrapIP = &ip
	require.False(t, a.Equal(b))
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultNetworkConfig().Validate())

	bad := DefaultNetworkConfig()
	bad.ListenPort = 70000
	err := bad.Validate()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrValidation))

	bad = DefaultNetworkConfig()
	bad.IPVersion = "ipx"
	require.Error(t, bad.Validate())

	partial := DefaultNetworkConfig()
	peer := "12D3KooWpeer"
	partial.BootstrapPeerID = &peer
	require.NoError(t, partial.Validate(), "bootstrap fields are independent")

	named := DefaultNetworkConfig()
	named.ListenIP = "localhost"
	host := "seed.example.net"
	named.BootstrapIP = &host
	require.NoError(t, named.Validate(), "addresses may be hostnames")

	blank := DefaultNetworkConfig()
	blank.ListenIP = ""
	require.Error(t, blank.CheckFields())
	require.ErrorIs(t, blank.Validate(), ErrValidation)
}
