package ui

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"cofe/internal/backend"
	"cofe/internal/bootstrap"
	"cofe/internal/config"
	"cofe/internal/paths"
	"cofe/internal/session"
	"cofe/internal/system"
)

type focus int

const (
	focusSearch focus = iota
	focusPeers
	focusComposer
)

// network form rows; the ip version row has no text input
const (
	fieldVersion = iota
	fieldListenIP
	fieldListenPort
	fieldBootstrapIP
	fieldBootstrapPort
	fieldBootstrapPeer
	fieldCount
)

type model struct {
	ctx    context.Context
	cfg    config.Config
	home   string
	logger *log.Logger

	boot      *bootstrap.Controller
	bootState bootstrap.State

	coord    *session.Coordinator
	composer *session.Composer
	dir      *session.DirectoryView
	started  bool
	snap     session.Snapshot

	spinner  spinner.Model
	password textinput.Model
	fields   []textinput.Model
	field    int
	formErr  string

	search  textinput.Model
	compose textinput.Model
	chat    viewport.Model
	focus   focus

	width  int
	height int

	metrics    system.Metrics
	metricsErr string
	lastErr    string

	configUpdates <-chan config.Config
}

func newTextInput(placeholder string, limit int) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.CharLimit = limit
	in.Prompt = ""
	return in
}

func initialModel(ctx context.Context, cfg config.Config, home string, logger *log.Logger, boot *bootstrap.Controller, coord *session.Coordinator) model {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	password := newTextInput("password", 256)
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	fields := make([]textinput.Model, fieldCount)
	fields[fieldListenIP] = newTextInput("0.0.0.0", 64)
	fields[fieldListenPort] = newTextInput("8000", 5)
	fields[fieldBootstrapIP] = newTextInput("optional", 64)
	fields[fieldBootstrapPort] = newTextInput("optional", 5)
	fields[fieldBootstrapPeer] = newTextInput("optional", 128)

	return model{
		ctx:       ctx,
		cfg:       cfg,
		home:      home,
		logger:    logger,
		boot:      boot,
		bootState: boot.State(),
		coord:     coord,
		composer:  session.NewComposer(coord),
		dir:       session.NewDirectoryView(coord),
		spinner:   sp,
		password:  password,
		fields:    fields,
		search:    newTextInput("Search peer id (Kademlia)", 128),
		compose:   newTextInput("Type a message", 4096),
		chat:      viewport.New(60, 12),
		focus:     focusSearch,
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, waitBootCmd(m.boot, m.bootState), waitConfigCmd(m.configUpdates)}
	if m.cfg.UI.Metrics {
		cmds = append(cmds, metricsCmd(m.home), metricsTickCmd())
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil
	case spinner.TickMsg:
		if m.bootState != bootstrap.Initializing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case bootChangedMsg:
		return m.onBootState(msg.State)
	case passwordResultMsg:
		if msg.Err != nil {
			// rejection only re-enables the submit control
			m.logger.Printf("password setup: %v", msg.Err)
		}
		return m, m.password.Focus()
	case snapshotMsg:
		m.snap = msg.Snap
		rows := session.Rows(m.snap.Peers, m.snap.Active)
		m.dir.Move(0, len(rows))
		m.refreshChat()
		return m, waitSnapshotCmd(m.coord)
	case opResultMsg:
		if msg.Err != nil {
			m.lastErr = msg.Op + ": " + msg.Err.Error()
			m.logger.Printf("%s: %v", msg.Op, msg.Err)
		} else {
			m.lastErr = ""
		}
		return m, nil
	case composeResultMsg:
		if msg.Err != nil && !errors.Is(msg.Err, session.ErrNoActivePeer) {
			// send failures are not shown
			m.logger.Printf("send_message: %v", msg.Err)
		}
		m.compose.SetValue(m.composer.Draft())
		return m, nil
	case configReloadMsg:
		m.cfg.UI.Theme = msg.Cfg.UI.Theme
		cmds := []tea.Cmd{waitConfigCmd(m.configUpdates)}
		if msg.Cfg.UI.Metrics && !m.cfg.UI.Metrics {
			cmds = append(cmds, metricsCmd(m.home), metricsTickCmd())
		}
		m.cfg.UI.Metrics = msg.Cfg.UI.Metrics
		m.logger.Printf("config reloaded: theme=%s metrics=%v", m.cfg.UI.Theme, m.cfg.UI.Metrics)
		return m, tea.Batch(cmds...)
	case metricsTickMsg:
		if !m.cfg.UI.Metrics {
			return m, nil
		}
		return m, tea.Batch(metricsCmd(m.home), metricsTickCmd())
	case metricsMsg:
		if msg.Err != nil {
			m.metricsErr = msg.Err.Error()
		} else {
			m.metricsErr = ""
			m.metrics = msg.Stats
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.bootState {
		case bootstrap.PasswordSetup:
			return m.updatePassword(msg)
		case bootstrap.NetworkSetup:
			return m.updateNetwork(msg)
		case bootstrap.Ready:
			return m.updateChat(msg)
		}
		if msg.String() == "q" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) onBootState(s bootstrap.State) (tea.Model, tea.Cmd) {
	m.bootState = s
	switch s {
	case bootstrap.PasswordSetup:
		return m, tea.Batch(m.password.Focus(), waitBootCmd(m.boot, s))
	case bootstrap.NetworkSetup:
		m.password.Blur()
		m.loadForm(m.boot.Form())
		m.field = fieldVersion
		return m, waitBootCmd(m.boot, s)
	case bootstrap.Ready:
		m.password.Blur()
		for i := range m.fields {
			m.fields[i].Blur()
		}
		if m.started {
			return m, nil
		}
		m.started = true
		go func() {
			if err := m.coord.Run(m.ctx); err != nil {
				m.logger.Printf("session: %v", err)
			}
		}()
		m.focus = focusSearch
		return m, tea.Batch(m.search.Focus(), waitSnapshotCmd(m.coord))
	default:
		return m, waitBootCmd(m.boot, s)
	}
}

func (m model) updatePassword(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		if m.boot.Submitting() || m.password.Value() == "" {
			return m, nil
		}
		value := m.password.Value()
		m.password.Reset()
		m.password.Blur()
		return m, submitPasswordCmd(m.ctx, m.boot, value)
	case tea.KeyEsc:
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.password, cmd = m.password.Update(msg)
	return m, cmd
}

func (m *model) loadForm(f bootstrap.Form) {
	m.fields[fieldListenIP].SetValue(f.ListenIP)
	m.fields[fieldListenPort].SetValue(f.ListenPort)
	m.fields[fieldBootstrapIP].SetValue(f.BootstrapIP)
	m.fields[fieldBootstrapPort].SetValue(f.BootstrapPort)
	m.fields[fieldBootstrapPeer].SetValue(f.BootstrapPeerID)
}

func (m model) formFromInputs() bootstrap.Form {
	return bootstrap.Form{
		IPVersion:       m.boot.Form().IPVersion,
		ListenIP:        m.fields[fieldListenIP].Value(),
		ListenPort:      m.fields[fieldListenPort].Value(),
		BootstrapIP:     m.fields[fieldBootstrapIP].Value(),
		BootstrapPort:   m.fields[fieldBootstrapPort].Value(),
		BootstrapPeerID: m.fields[fieldBootstrapPeer].Value(),
	}
}

func (m *model) focusField(i int) tea.Cmd {
	for j := range m.fields {
		if j != fieldVersion {
			m.fields[j].Blur()
		}
	}
	m.field = (i + fieldCount) % fieldCount
	if m.field == fieldVersion {
		return nil
	}
	return m.fields[m.field].Focus()
}

func (m model) updateNetwork(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab, tea.KeyDown:
		return m, m.focusField(m.field + 1)
	case tea.KeyShiftTab, tea.KeyUp:
		return m, m.focusField(m.field - 1)
	case tea.KeyLeft, tea.KeyRight, tea.KeySpace:
		if m.field == fieldVersion {
			if err := m.boot.SetForm(m.formFromInputs()); err != nil {
				m.logger.Printf("network form: %v", err)
			}
			next := backend.IPv6
			if m.boot.Form().IPVersion == backend.IPv6 {
				next = backend.IPv4
			}
			if err := m.boot.SelectIPVersion(next); err != nil {
				m.logger.Printf("ip version: %v", err)
			}
			m.loadForm(m.boot.Form())
			return m, nil
		}
	case tea.KeyEnter:
		if err := m.boot.SetForm(m.formFromInputs()); err != nil {
			m.logger.Printf("network form: %v", err)
			return m, nil
		}
		if err := m.boot.Confirm(m.ctx); err != nil {
			m.formErr = err.Error()
			return m, nil
		}
		m.formErr = ""
		return m, nil
	case tea.KeyEsc:
		return m, tea.Quit
	}
	if m.field == fieldVersion {
		return m, nil
	}
	var cmd tea.Cmd
	m.fields[m.field], cmd = m.fields[m.field].Update(msg)
	return m, cmd
}

func (m *model) setFocus(f focus) tea.Cmd {
	m.focus = f
	m.search.Blur()
	m.compose.Blur()
	switch f {
	case focusSearch:
		return m.search.Focus()
	case focusComposer:
		return m.compose.Focus()
	}
	return nil
}

func (m model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rows := session.Rows(m.snap.Peers, m.snap.Active)
	switch msg.Type {
	case tea.KeyTab:
		next := (m.focus + 1) % 3
		if next == focusComposer && !m.composer.Enabled(m.snap) {
			next = focusSearch
		}
		return m, m.setFocus(next)
	case tea.KeyShiftTab:
		next := (m.focus + 2) % 3
		if next == focusComposer && !m.composer.Enabled(m.snap) {
			next = focusPeers
		}
		return m, m.setFocus(next)
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.chat, cmd = m.chat.Update(msg)
		return m, cmd
	}

	switch m.focus {
	case focusSearch:
		if msg.Type == tea.KeyEnter {
			return m, discoverCmd(m.ctx, m.coord, strings.TrimSpace(m.search.Value()))
		}
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		return m, cmd
	case focusPeers:
		switch msg.String() {
		case "up", "k":
			m.dir.Move(-1, len(rows))
		case "down", "j":
			m.dir.Move(1, len(rows))
		case "enter":
			if len(rows) == 0 {
				return m, nil
			}
			return m, selectRowCmd(m.ctx, m.dir, rows)
		case "q":
			return m, tea.Quit
		}
		return m, nil
	case focusComposer:
		if msg.Type == tea.KeyEnter {
			return m.submitComposer()
		}
		var cmd tea.Cmd
		m.compose, cmd = m.compose.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) submitComposer() (tea.Model, tea.Cmd) {
	line := m.compose.Value()
	cmd, isSlash, err := parseSlash(line)
	if isSlash {
		if err != nil {
			m.lastErr = err.Error()
			return m, nil
		}
		m.compose.Reset()
		switch cmd.Kind {
		case slashFind:
			m.search.SetValue(cmd.Arg)
			return m, discoverCmd(m.ctx, m.coord, cmd.Arg)
		case slashOpen:
			return m, selectCmd(m.ctx, m.coord, cmd.Arg)
		case slashRefresh:
			return m, refreshCmd(m.ctx, m.coord, m.snap.Active)
		case slashQuit:
			return m, tea.Quit
		}
		return m, nil
	}
	if !m.composer.Enabled(m.snap) {
		return m, nil
	}
	m.composer.SetDraft(unescapeSlash(line))
	return m, composeCmd(m.ctx, m.composer)
}

func (m *model) resize() {
	w, h := m.chatSize()
	m.chat.Width = w
	m.chat.Height = h
	m.search.Width = max(10, m.width-40)
	m.compose.Width = max(10, w-4)
	m.refreshChat()
}

func (m model) chatSize() (int, int) {
	w := m.width - sidebarWidth - 10
	h := m.height - 14
	return max(20, w), max(5, h)
}

func (m *model) refreshChat() {
	m.chat.SetContent(renderMessages(m.snap, m.chat.Width, paletteFor(m.cfg.UI.Theme)))
	m.chat.GotoBottom()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Options carries what the terminal UI needs beyond the gateway.
type Options struct {
	Config     config.Config
	Home       string
	ConfigPath string
	Logger     *log.Logger
}

// Run drives onboarding and then the chat view until the user quits.
func Run(ctx context.Context, gw backend.Gateway, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := opts.Logger
	boot := bootstrap.New(gw, bootstrap.Options{
		Splash: time.Duration(opts.Config.UI.SplashMS) * time.Millisecond,
		Logger: logger,
	})
	coord := session.NewCoordinator(gw, session.Options{Logger: logger})
	boot.Start(ctx)

	m := initialModel(ctx, opts.Config, opts.Home, logger, boot, coord)
	if opts.ConfigPath == "" && opts.Home != "" {
		opts.ConfigPath = paths.ConfigPath(opts.Home)
	}
	if opts.ConfigPath != "" {
		updates, stop, err := watchConfig(ctx, opts.ConfigPath, logger)
		if err != nil {
			logger.Printf("config watch disabled: %v", err)
		} else {
			defer stop()
			m.configUpdates = updates
		}
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	cancel()
	boot.Flush()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
