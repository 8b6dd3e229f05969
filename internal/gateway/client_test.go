package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cofe/internal/backend"
	"cofe/internal/wire"
)

func startServer(t *testing.T, h wire.Handler) (*wire.Server, *Client) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	l, err := wire.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &wire.Server{Handler: h}
	go func() { _ = srv.Serve(ctx, l) }()

	c, err := Dial(ctx, Options{Transport: "tcp", Address: l.Addr(), CallTimeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
		_ = srv.Close()
		cancel()
	})
	return srv, c
}

func TestClientCommands(t *testing.T) {
	var sent wire.SendArgs
	_, c := startServer(t, func(ctx context.Context, cmd string, args json.RawMessage) (any, error) {
		switch cmd {
		case backend.CmdGetFirstRun:
			return false, nil
		case backend.CmdLoadConfig:
			return json.RawMessage(`{"network":{"listen_port":9001}}`), nil
		case backend.CmdFindPeer:
			var a wire.PeerArgs
			_ = json.Unmarshal(args, &a)
			return []string{a.PeerID + "-1", a.PeerID + "-2"}, nil
		case backend.CmdGetHistoryMessage:
			return []backend.ChatMessage{{ID: "m1", Timestamp: 1}, {ID: "m2", Timestamp: 2}}, nil
		case backend.CmdSendMessage:
			return nil, json.Unmarshal(args, &sent)
		case backend.CmdSetupPassword:
			return nil, backend.ErrValidation
		}
		return nil, errors.New("unknown command")
	})
	ctx := context.Background()

	first, err := c.FirstRun(ctx)
	require.NoError(t, err)
	require.False(t, first)

	cfg, err := c.LoadConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, 9001, cfg.Network.ListenPort)
	require.Equal(t, backend.IPv4, cfg.Network.IPVersion)
	require.Equal(t, "0.0.0.0", cfg.Network.ListenIP)

	peers, err := c.FindPeer(ctx, "q")
	require.NoError(t, err)
	require.Equal(t, []string{"q-1", "q-2"}, peers)

	msgs, err := c.History(ctx, "p")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "m2", msgs[1].ID)

	msg := backend.ChatMessage{ID: "x", From: "me", To: "p", Timestamp: 42, Content: "hi"}
	require.NoError(t, c.SendMessage(ctx, "p", msg))
	require.Equal(t, "p", sent.PeerID)
	require.Equal(t, msg, sent.Message)

	err = c.SetupPassword(ctx, "")
	require.ErrorIs(t, err, backend.ErrValidation)
}

func TestClientSubscribe(t *testing.T) {
	srv, c := startServer(t, func(ctx context.Context, cmd string, args json.RawMessage) (any, error) {
		return true, nil
	})
	// make sure the server has registered the connection
	_, err := c.FirstRun(context.Background())
	require.NoError(t, err)

	got := make(chan backend.Event, 4)
	unsubscribe, err := c.Subscribe(context.Background(), backend.EventMessageReceived, func(ev backend.Event) {
		got <- ev
	})
	require.NoError(t, err)

	srv.Broadcast(backend.EventMessageReceived, backend.MessageReceived{Peer: "p1"})
	select {
	case ev := <-got:
		require.Equal(t, backend.EventMessageReceived, ev.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	unsubscribe()
	unsubscribe()
	srv.Broadcast(backend.EventMessageReceived, backend.MessageReceived{Peer: "p2"})
	// a reply after the event proves the event was processed first
	_, err = c.FirstRun(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 0)
}

func TestClientConnectivityError(t *testing.T) {
	_, err := Dial(context.Background(), Options{Transport: "tcp", Address: "127.0.0.1:1"})
	require.ErrorIs(t, err, backend.ErrConnectivity)

	srv, c := startServer(t, func(ctx context.Context, cmd string, args json.RawMessage) (any, error) {
		return true, nil
	})
	_, err = c.FirstRun(context.Background())
	require.NoError(t, err)
	require.NoError(t, srv.Close())

	require.Eventually(t, func() bool { return c.Err() != nil }, 2*time.Second, 10*time.Millisecond)
	_, err = c.FirstRun(context.Background())
	require.ErrorIs(t, err, backend.ErrConnectivity)
}
