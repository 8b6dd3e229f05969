package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cofe/internal/backend"
	"cofe/internal/config"
	"cofe/internal/node"
	"cofe/internal/paths"
	"cofe/internal/wire"
)

func TestRunUnknownCommand(t *testing.T) {
	t.Setenv(paths.EnvHome, t.TempDir())
	if code := Run("cofectl", []string{"dance"}); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if code := Run("cofectl", nil); code != 2 {
		t.Fatalf("expected exit 2 without command, got %d", code)
	}
	if code := Run("cofectl", []string{"doctor"}); code != 0 {
		t.Fatalf("expected exit 0 for doctor, got %d", code)
	}
	if code := Run("cofectl", []string{"version"}); code != 0 {
		t.Fatalf("expected exit 0 for version, got %d", code)
	}
}

func TestInitCreatesHome(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	t.Setenv(paths.EnvHome, home)

	if code := Run("cofectl", []string{"init"}); code != 0 {
		t.Fatalf("init failed: %d", code)
	}
	if _, err := os.Stat(paths.ConfigPath(home)); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, "node", "identity")); err != nil {
		t.Fatalf("identity not written: %v", err)
	}
	if _, err := os.Stat(paths.LogsDir(home)); err != nil {
		t.Fatalf("logs dir missing: %v", err)
	}

	if code := Run("cofectl", []string{"init"}); code != 1 {
		t.Fatalf("second init should refuse, got %d", code)
	}
	if code := Run("cofectl", []string{"init", "--force"}); code != 0 {
		t.Fatalf("init --force failed: %d", code)
	}
}

func TestAddPeerPersists(t *testing.T) {
	home := t.TempDir()
	t.Setenv(paths.EnvHome, home)

	if code := Run("cofectl", []string{"add-peer", "--inbox", "/tmp/b/inbox", "peerB"}); code != 0 {
		t.Fatalf("add-peer failed: %d", code)
	}
	if code := Run("cofectl", []string{"add-peer", "peerB"}); code != 0 {
		t.Fatalf("add-peer update failed: %d", code)
	}
	if code := Run("cofectl", []string{"add-peer"}); code != 2 {
		t.Fatalf("expected usage error, got %d", code)
	}

	cfg, err := config.Load(paths.ConfigPath(home))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Node.Peers) != 1 {
		t.Fatalf("expected one peer, got %+v", cfg.Node.Peers)
	}
	if cfg.Node.Peers[0].ID != "peerB" || cfg.Node.Peers[0].Inbox != "" {
		t.Fatalf("unexpected peer entry %+v", cfg.Node.Peers[0])
	}
}

func TestCommandsAgainstNode(t *testing.T) {
	t.Setenv(paths.EnvHome, t.TempDir())

	n, err := node.Open(context.Background(), node.Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("open node: %v", err)
	}
	defer n.Close()
	l, err := wire.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = n.Serve(ctx, l) }()

	gw := []string{"--transport", "tcp", "--gateway", l.Addr()}
	run := func(args ...string) int {
		return Run("cofectl", append(append([]string{}, gw...), args...))
	}

	if code := run("status"); code != 0 {
		t.Fatalf("status failed: %d", code)
	}
	if code := run("send", "peerB", "hello", "there"); code != 0 {
		t.Fatalf("send failed: %d", code)
	}
	if code := run("send", "peerB"); code != 2 {
		t.Fatalf("send without text should be a usage error, got %d", code)
	}
	if code := run("history", "peerB"); code != 0 {
		t.Fatalf("history failed: %d", code)
	}
	if code := run("peers", "peer"); code != 0 {
		t.Fatalf("peers failed: %d", code)
	}

	msgs, err := n.History(ctx, "peerB")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello there" || msgs[0].To != "peerB" {
		t.Fatalf("unexpected history %+v", msgs)
	}
	peers, _ := n.FindPeer(ctx, "")
	if len(peers) != 1 || peers[0] != "peerB" {
		t.Fatalf("send should teach the node about peerB, got %v", peers)
	}
}

func TestStatusWithoutGateway(t *testing.T) {
	t.Setenv(paths.EnvHome, t.TempDir())
	l, err := wire.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr()
	_ = l.Close()

	if code := Run("cofectl", []string{"--gateway", addr, "status"}); code != 1 {
		t.Fatalf("expected exit 1 with nothing listening, got %d", code)
	}
}

func TestDescribeNetwork(t *testing.T) {
	n := backend.DefaultNetworkConfig()
	if got := describeNetwork(n); got != "ipv4 0.0.0.0:8000" {
		t.Fatalf("unexpected %q", got)
	}
	port := 9000
	n.BootstrapPort = &port
	if got := describeNetwork(n); got != "ipv4 0.0.0.0:8000 bootstrap -:9000/-" {
		t.Fatalf("unexpected %q", got)
	}
}
