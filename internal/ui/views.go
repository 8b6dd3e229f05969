package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"cofe/internal/backend"
	"cofe/internal/bootstrap"
	"cofe/internal/session"
	"cofe/internal/system"
	"cofe/internal/version"
)

const sidebarWidth = 32

const cofeBanner = `  ___  ___  ___  ___
 / __|/ _ \| __|| __|
| (__| (_) | _| | _|
 \___|\___/|_|  |___|`

type palette struct {
	Accent  lipgloss.Color
	Muted   lipgloss.Color
	Faint   lipgloss.Color
	Own     lipgloss.Color
	Peer    lipgloss.Color
	Warning lipgloss.Color
}

func paletteFor(theme string) palette {
	if theme == "light" {
		return palette{
			Accent:  lipgloss.Color("124"),
			Muted:   lipgloss.Color("240"),
			Faint:   lipgloss.Color("246"),
			Own:     lipgloss.Color("160"),
			Peer:    lipgloss.Color("235"),
			Warning: lipgloss.Color("166"),
		}
	}
	return palette{
		Accent:  lipgloss.Color("196"),
		Muted:   lipgloss.Color("245"),
		Faint:   lipgloss.Color("240"),
		Own:     lipgloss.Color("203"),
		Peer:    lipgloss.Color("252"),
		Warning: lipgloss.Color("214"),
	}
}

func (m model) View() string {
	p := paletteFor(m.cfg.UI.Theme)
	appStyle := lipgloss.NewStyle().Padding(1, 2)
	var body string
	switch m.bootState {
	case bootstrap.Initializing, bootstrap.ReturningUser:
		body = splashView(m, p)
	case bootstrap.NewUser, bootstrap.PasswordSetup:
		body = passwordView(m, p)
	case bootstrap.NetworkSetup:
		body = networkView(m, p)
	default:
		body = chatLayout(m, p)
	}
	return appStyle.Render(lipgloss.JoinVertical(lipgloss.Left, body, footerView(m, p)))
}

func headerView(p palette) string {
	title := lipgloss.NewStyle().Bold(true).Foreground(p.Accent).Render("COFE")
	subtitle := lipgloss.NewStyle().Foreground(p.Muted).Render("v" + version.Version + " - p2p chat")
	return lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", subtitle)
}

func splashView(m model, p palette) string {
	banner := lipgloss.NewStyle().Foreground(p.Accent).Bold(true).Render(cofeBanner)
	status := m.spinner.View() + " starting node..."
	return lipgloss.JoinVertical(lipgloss.Left, banner, "", status)
}

func panel(width int) lipgloss.Style {
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2).Width(width)
}

func passwordView(m model, p palette) string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Render("Set a password") + "\n\n")
	b.WriteString("Password: " + m.password.View() + "\n\n")
	button := lipgloss.NewStyle().Foreground(p.Accent).Bold(true).Render("[ Submit ]")
	if m.boot.Submitting() {
		button = lipgloss.NewStyle().Foreground(p.Faint).Render("[ ...... ]")
	}
	b.WriteString(button)
	return lipgloss.JoinVertical(lipgloss.Left, headerView(p), panel(max(44, m.width/2)).Render(b.String()))
}

func networkView(m model, p palette) string {
	form := m.boot.Form()
	labels := []string{"IP version", "Listen IP", "Listen port", "Bootstrap IP", "Bootstrap port", "Bootstrap peer"}
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Render("Network setup") + "\n\n")
	for i, label := range labels {
		cursor := " "
		style := lipgloss.NewStyle().Foreground(p.Muted)
		if i == m.field {
			cursor = ">"
			style = style.Bold(true).Foreground(p.Accent)
		}
		var value string
		if i == fieldVersion {
			value = versionToggle(form.IPVersion, p)
		} else {
			value = m.fields[i].View()
		}
		b.WriteString(fmt.Sprintf("%s %s %s\n", cursor, style.Render(fmt.Sprintf("%-15s", label)), value))
	}
	if m.formErr != "" {
		b.WriteString("\n" + lipgloss.NewStyle().Foreground(p.Warning).Render(m.formErr) + "\n")
	}
	b.WriteString("\n" + lipgloss.NewStyle().Foreground(p.Accent).Bold(true).Render("[ Save ]"))
	return lipgloss.JoinVertical(lipgloss.Left, headerView(p), panel(max(60, m.width/2)).Render(b.String()))
}

func versionToggle(v backend.IPVersion, p palette) string {
	on := lipgloss.NewStyle().Bold(true).Foreground(p.Accent)
	off := lipgloss.NewStyle().Foreground(p.Faint)
	if v == backend.IPv6 {
		return off.Render("ipv4") + " / " + on.Render("ipv6")
	}
	return on.Render("ipv4") + " / " + off.Render("ipv6")
}

func chatLayout(m model, p palette) string {
	top := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Render(
		lipgloss.JoinHorizontal(lipgloss.Center, focusMark(m.focus == focusSearch, p), " ", m.search.View()))
	main := lipgloss.JoinVertical(lipgloss.Left, top, chatView(m, p))
	return lipgloss.JoinVertical(lipgloss.Left,
		headerView(p)+"  "+lipgloss.NewStyle().Foreground(p.Faint).Render("me: "+emptyIf(m.snap.Self, "...")),
		lipgloss.JoinHorizontal(lipgloss.Top, sidebarView(m, p), main),
	)
}

func focusMark(on bool, p palette) string {
	if on {
		return lipgloss.NewStyle().Foreground(p.Accent).Render("●")
	}
	return lipgloss.NewStyle().Foreground(p.Faint).Render("○")
}

func sidebarView(m model, p palette) string {
	box := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 1).Width(sidebarWidth)
	var b strings.Builder
	b.WriteString(focusMark(m.focus == focusPeers, p) + " " + lipgloss.NewStyle().Foreground(p.Muted).Bold(true).Render("Kademlia Buckets") + "\n\n")
	rows := session.Rows(m.snap.Peers, m.snap.Active)
	if len(rows) == 0 {
		b.WriteString(lipgloss.NewStyle().Foreground(p.Faint).Render("no peers, search above"))
	}
	for _, row := range rows {
		cursor := " "
		style := lipgloss.NewStyle()
		if row.Index == m.dir.Cursor() && m.focus == focusPeers {
			cursor = ">"
			style = style.Bold(true)
		}
		if row.Active {
			style = style.Foreground(p.Accent)
		}
		b.WriteString(fmt.Sprintf("%s %s\n", cursor, style.Render(row.Label)))
	}
	return box.Render(b.String())
}

func chatView(m model, p palette) string {
	w, _ := m.chatSize()
	box := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(w + 4)
	title := lipgloss.NewStyle().Foreground(p.Muted).Render("no conversation")
	if m.snap.Active != "" {
		title = lipgloss.NewStyle().Bold(true).Render(m.snap.Active)
	}
	input := lipgloss.NewStyle().Foreground(p.Faint).Render("select a peer to start chatting")
	if m.composer.Enabled(m.snap) {
		input = focusMark(m.focus == focusComposer, p) + " " + m.compose.View()
	}
	return box.Render(lipgloss.JoinVertical(lipgloss.Left, title, "", m.chat.View(), "", input))
}

// renderMessages lays out history with own messages on the right.
func renderMessages(snap session.Snapshot, width int, p palette) string {
	if len(snap.Messages) == 0 {
		return lipgloss.NewStyle().Foreground(p.Faint).Render("no messages yet")
	}
	bubble := lipgloss.NewStyle().Padding(0, 1).MaxWidth(max(10, width*3/4))
	lines := make([]string, 0, len(snap.Messages))
	for _, msg := range snap.Messages {
		if msg.From == snap.Self && snap.Self != "" {
			text := bubble.Foreground(p.Own).Render(msg.Content)
			lines = append(lines, lipgloss.NewStyle().Width(width).Align(lipgloss.Right).Render(text))
			continue
		}
		lines = append(lines, bubble.Foreground(p.Peer).Render(msg.Content))
	}
	return strings.Join(lines, "\n")
}

func footerView(m model, p palette) string {
	var hint string
	switch m.bootState {
	case bootstrap.PasswordSetup:
		hint = "Enter: submit | Esc: quit"
	case bootstrap.NetworkSetup:
		hint = "Tab/Up/Down: field | Left/Right: ip version | Enter: save | Esc: quit"
	case bootstrap.Ready:
		hint = "Tab: focus | Enter: search/open/send | /find /open /refresh /quit | PgUp/PgDn: scroll | ctrl+c: quit"
	default:
		hint = "q: quit"
	}
	parts := []string{hint}
	if m.lastErr != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(p.Warning).Render(m.lastErr))
	}
	if m.cfg.UI.Metrics {
		if m.metricsErr != "" {
			parts = append(parts, "metrics: "+m.metricsErr)
		} else {
			parts = append(parts, system.FormatMetrics(m.metrics))
		}
	}
	return lipgloss.NewStyle().Foreground(p.Faint).Render(strings.Join(parts, "\n"))
}

func emptyIf(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
