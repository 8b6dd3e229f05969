package ui

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"cofe/internal/backend"
	"cofe/internal/bootstrap"
	"cofe/internal/config"
	"cofe/internal/session"
)

func TestParseSlash(t *testing.T) {
	cases := []struct {
		line    string
		isSlash bool
		want    slashCommand
		wantErr bool
	}{
		{line: "hello", isSlash: false},
		{line: "//not a command", isSlash: false},
		{line: "/find cofe12", isSlash: true, want: slashCommand{Kind: slashFind, Arg: "cofe12"}},
		{line: "/f", isSlash: true, want: slashCommand{Kind: slashFind}},
		{line: `/open "cofeA"`, isSlash: true, want: slashCommand{Kind: slashOpen, Arg: "cofeA"}},
		{line: "/open", isSlash: true, wantErr: true},
		{line: "/refresh", isSlash: true, want: slashCommand{Kind: slashRefresh}},
		{line: " /quit ", isSlash: true, want: slashCommand{Kind: slashQuit}},
		{line: "/dance", isSlash: true, wantErr: true},
		{line: `/open "unterminated`, isSlash: true, wantErr: true},
	}
	for _, tc := range cases {
		got, isSlash, err := parseSlash(tc.line)
		require.Equal(t, tc.isSlash, isSlash, tc.line)
		if tc.wantErr {
			require.Error(t, err, tc.line)
			continue
		}
		require.NoError(t, err, tc.line)
		require.Equal(t, tc.want, got, tc.line)
	}
	require.Equal(t, "/hi", unescapeSlash("//hi"))
	require.Equal(t, "hi", unescapeSlash("hi"))
}

func TestRenderMessages(t *testing.T) {
	p := paletteFor("dark")
	require.Contains(t, renderMessages(session.Snapshot{}, 40, p), "no messages yet")

	snap := session.Snapshot{Self: "me", Messages: []backend.ChatMessage{
		{From: "me", Content: "mine"},
		{From: "you", Content: "theirs"},
	}}
	out := strings.Split(renderMessages(snap, 40, p), "\n")
	require.Len(t, out, 2)
	// own messages are pushed to the right edge
	indent := func(s string) int { return len(s) - len(strings.TrimLeft(s, " ")) }
	require.Greater(t, indent(out[0]), indent(out[1]))
	require.Contains(t, out[0], "mine")
	require.Contains(t, out[1], "theirs")
}

type fakeGateway struct {
	passwords []string
	saved     chan backend.Config
}

func (f *fakeGateway) FirstRun(ctx context.Context) (bool, error) { return true, nil }
func (f *fakeGateway) SetupPassword(ctx context.Context, password string) error {
	f.passwords = append(f.passwords, password)
	return nil
}
func (f *fakeGateway) LoadConfig(ctx context.Context) (backend.Config, error) {
	return backend.Config{Network: backend.DefaultNetworkConfig()}, backend.ErrNotFound
}
func (f *fakeGateway) SaveConfig(ctx context.Context, cfg backend.Config) error {
	f.saved <- cfg
	return nil
}
func (f *fakeGateway) SelfPeerID(ctx context.Context) (string, error) { return "me", nil }
func (f *fakeGateway) FindPeer(ctx context.Context, peerID string) ([]string, error) {
	return []string{}, nil
}
func (f *fakeGateway) History(ctx context.Context, peerID string) ([]backend.ChatMessage, error) {
	return []backend.ChatMessage{}, nil
}
func (f *fakeGateway) SendMessage(ctx context.Context, peerID string, msg backend.ChatMessage) error {
	return nil
}
func (f *fakeGateway) Subscribe(ctx context.Context, event string, fn func(backend.Event)) (func(), error) {
	return func() {}, nil
}

func key(t tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: t}
}

func TestOnboardingFlow(t *testing.T) {
	gw := &fakeGateway{saved: make(chan backend.Config, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mock := clock.NewMock()
	logger := log.New(io.Discard, "", 0)
	boot := bootstrap.New(gw, bootstrap.Options{Clock: mock, Logger: logger})
	boot.Start(ctx)
	mock.Add(bootstrap.DefaultSplash)
	require.Eventually(t, func() bool { return boot.State() == bootstrap.PasswordSetup }, 2*time.Second, 5*time.Millisecond)

	coord := session.NewCoordinator(gw, session.Options{Logger: logger})
	m := initialModel(ctx, config.DefaultConfig(), t.TempDir(), logger, boot, coord)

	next, _ := m.Update(bootChangedMsg{State: bootstrap.PasswordSetup})
	m = next.(model)
	require.Contains(t, m.View(), "Set a password")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("abc123")})
	m = next.(model)
	next, cmd := m.Update(key(tea.KeyEnter))
	m = next.(model)
	require.Empty(t, m.password.Value())
	require.NotNil(t, cmd)
	res, ok := cmd().(passwordResultMsg)
	require.True(t, ok)
	require.NoError(t, res.Err)
	require.Equal(t, []string{"abc123"}, gw.passwords)
	require.Equal(t, bootstrap.NetworkSetup, boot.State())

	next, _ = m.Update(bootChangedMsg{State: bootstrap.NetworkSetup})
	m = next.(model)
	require.Equal(t, "0.0.0.0", m.fields[fieldListenIP].Value())
	require.Equal(t, "8000", m.fields[fieldListenPort].Value())

	next, _ = m.Update(key(tea.KeyRight))
	m = next.(model)
	require.Equal(t, backend.IPv6, boot.Form().IPVersion)
	require.Equal(t, "::", m.fields[fieldListenIP].Value())

	_, _ = m.Update(key(tea.KeyEnter))
	require.Equal(t, bootstrap.Ready, boot.State())

	select {
	case cfg := <-gw.saved:
		require.Equal(t, backend.NetworkConfig{IPVersion: backend.IPv6, ListenIP: "::", ListenPort: 8000}, cfg.Network)
	case <-time.After(2 * time.Second):
		t.Fatal("config was not saved")
	}
}
