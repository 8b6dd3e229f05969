package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"cofe/internal/bootstrap"
	"cofe/internal/config"
	"cofe/internal/session"
	"cofe/internal/system"
)

const metricsRate = 3 * time.Second

type bootChangedMsg struct {
	State bootstrap.State
}

type passwordResultMsg struct {
	Err error
}

type snapshotMsg struct {
	Snap session.Snapshot
}

type opResultMsg struct {
	Op  string
	Err error
}

type composeResultMsg struct {
	Err error
}

type configReloadMsg struct {
	Cfg config.Config
}

type metricsTickMsg time.Time

type metricsMsg struct {
	Stats system.Metrics
	Err   error
}

// waitBootCmd reports the next state after known. The change channel is
// taken before the state is checked so no transition is missed.
func waitBootCmd(b *bootstrap.Controller, known bootstrap.State) tea.Cmd {
	changed := b.Changed()
	return func() tea.Msg {
		if s := b.State(); s != known {
			return bootChangedMsg{State: s}
		}
		<-changed
		return bootChangedMsg{State: b.State()}
	}
}

func submitPasswordCmd(ctx context.Context, b *bootstrap.Controller, password string) tea.Cmd {
	return func() tea.Msg {
		return passwordResultMsg{Err: b.SubmitPassword(ctx, password)}
	}
}

func waitSnapshotCmd(c *session.Coordinator) tea.Cmd {
	return func() tea.Msg {
		select {
		case snap := <-c.Updates():
			return snapshotMsg{Snap: snap}
		case <-c.Done():
			return nil
		}
	}
}

func discoverCmd(ctx context.Context, c *session.Coordinator, query string) tea.Cmd {
	return func() tea.Msg {
		return opResultMsg{Op: "find_peer", Err: c.DiscoverPeer(ctx, query)}
	}
}

func selectCmd(ctx context.Context, c *session.Coordinator, peer string) tea.Cmd {
	return func() tea.Msg {
		return opResultMsg{Op: "open " + peer, Err: c.SelectConversation(ctx, peer)}
	}
}

func selectRowCmd(ctx context.Context, v *session.DirectoryView, rows []session.Row) tea.Cmd {
	return func() tea.Msg {
		peer, err := v.Select(ctx, rows)
		return opResultMsg{Op: "open " + peer, Err: err}
	}
}

func refreshCmd(ctx context.Context, c *session.Coordinator, peer string) tea.Cmd {
	return func() tea.Msg {
		return opResultMsg{Op: "refresh", Err: c.RefreshHistory(ctx, peer)}
	}
}

func composeCmd(ctx context.Context, m *session.Composer) tea.Cmd {
	return func() tea.Msg {
		return composeResultMsg{Err: m.Submit(ctx)}
	}
}

func waitConfigCmd(ch <-chan config.Config) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		cfg, ok := <-ch
		if !ok {
			return nil
		}
		return configReloadMsg{Cfg: cfg}
	}
}

func metricsTickCmd() tea.Cmd {
	return tea.Tick(metricsRate, func(t time.Time) tea.Msg {
		return metricsTickMsg(t)
	})
}

func metricsCmd(home string) tea.Cmd {
	return func() tea.Msg {
		stats, err := system.Snapshot(home)
		return metricsMsg{Stats: stats, Err: err}
	}
}
