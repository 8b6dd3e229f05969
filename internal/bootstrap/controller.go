// Package bootstrap sequences onboarding: splash, first-run detection,
// password setup and network setup, ending in Ready.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"cofe/internal/backend"
)

const DefaultSplash = 1800 * time.Millisecond

type State int

const (
	Initializing State = iota
	ReturningUser
	NewUser
	PasswordSetup
	NetworkSetup
	Ready
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case ReturningUser:
		return "returning-user"
	case NewUser:
		return "new-user"
	case PasswordSetup:
		return "password-setup"
	case NetworkSetup:
		return "network-setup"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

var (
	ErrWrongState = errors.New("not allowed in current state")
	ErrBusy       = errors.New("submission in progress")

	// ErrInvalidForm marks input refused locally, before any backend call.
	ErrInvalidForm = errors.New("invalid input")
)

// Form is the editable network setup form. Numeric fields are kept as
// typed text until Confirm.
type Form struct {
	IPVersion       backend.IPVersion
	ListenIP        string
	ListenPort      string
	BootstrapIP     string
	BootstrapPort   string
	BootstrapPeerID string
}

func FormFromConfig(n backend.NetworkConfig) Form {
	n = n.WithDefaults()
	f := Form{
		IPVersion:  n.IPVersion,
		ListenIP:   n.ListenIP,
		ListenPort: strconv.Itoa(n.ListenPort),
	}
	if n.BootstrapIP != nil {
		f.BootstrapIP = *n.BootstrapIP
	}
	if n.BootstrapPort != nil {
		f.BootstrapPort = strconv.Itoa(*n.BootstrapPort)
	}
	if n.BootstrapPeerID != nil {
		f.BootstrapPeerID = *n.BootstrapPeerID
	}
	return f
}

// Config converts the form into the full document sent to save_config.
// Blank bootstrap fields become null; they are not required together.
func (f Form) Config() (backend.Config, error) {
	port, err := strconv.Atoi(strings.TrimSpace(f.ListenPort))
	if err != nil {
		return backend.Config{}, fmt.Errorf("%w: listen port %q", ErrInvalidForm, f.ListenPort)
	}
	n := backend.NetworkConfig{
		IPVersion:  f.IPVersion,
		ListenIP:   strings.TrimSpace(f.ListenIP),
		ListenPort: port,
	}
	if v := strings.TrimSpace(f.BootstrapIP); v != "" {
		n.BootstrapIP = &v
	}
	if v := strings.TrimSpace(f.BootstrapPort); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return backend.Config{}, fmt.Errorf("%w: bootstrap port %q", ErrInvalidForm, v)
		}
		n.BootstrapPort = &p
	}
	if v := strings.TrimSpace(f.BootstrapPeerID); v != "" {
		n.BootstrapPeerID = &v
	}
	if err := n.CheckFields(); err != nil {
		return backend.Config{}, fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}
	return backend.Config{Network: n}, nil
}

type Options struct {
	Splash time.Duration
	Clock  clock.Clock
	Logger *log.Logger
}

type Controller struct {
	backend backend.Onboarding
	splash  time.Duration
	clock   clock.Clock
	logger  *log.Logger

	mu         sync.Mutex
	state      State
	path       []State
	form       Form
	submitting bool
	started    bool
	changed    chan struct{}
	ready      chan struct{}
	saves      sync.WaitGroup
}

func New(b backend.Onboarding, opts Options) *Controller {
	if opts.Splash <= 0 {
		opts.Splash = DefaultSplash
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Controller{
		backend: b,
		splash:  opts.Splash,
		clock:   opts.Clock,
		logger:  opts.Logger,
		state:   Initializing,
		path:    []State{Initializing},
		form:    FormFromConfig(backend.DefaultNetworkConfig()),
		changed: make(chan struct{}),
		ready:   make(chan struct{}),
	}
}

// Start runs the splash timer and the first-run query side by side and
// leaves Initializing once both are done. Calling it again is a no-op.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	// created before returning so a mock clock can be advanced right away
	timer := c.clock.Timer(c.splash)
	firstRun := make(chan bool, 1)
	go func() {
		first, err := c.backend.FirstRun(ctx)
		if err != nil {
			c.logger.Printf("get_first_run failed, assuming first run: %v", err)
			first = true
		}
		firstRun <- first
	}()

	go func() {
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
		var first bool
		select {
		case first = <-firstRun:
		case <-ctx.Done():
			return
		}
		if first {
			c.transition(NewUser)
			c.transition(PasswordSetup)
			return
		}
		c.transition(ReturningUser)
		c.transition(Ready)
	}()
}

func (c *Controller) transition(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitionLocked(s)
}

func (c *Controller) transitionLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.path = append(c.path, s)
	close(c.changed)
	c.changed = make(chan struct{})
	if s == Ready {
		close(c.ready)
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Path lists every state entered so far, oldest first.
func (c *Controller) Path() []State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]State(nil), c.path...)
}

// Changed returns a channel closed at the next state transition.
func (c *Controller) Changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

// Submitting reports whether a password submission is in flight; the
// submit control is disabled while it is true.
func (c *Controller) Submitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitting
}

// Ready returns a channel closed once the controller reaches Ready.
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

func (c *Controller) Wait(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitPassword sends password to the backend. On rejection the
// controller stays in PasswordSetup and the error is returned for logging
// only. On success the network form is prefilled from load_config.
func (c *Controller) SubmitPassword(ctx context.Context, password string) error {
	c.mu.Lock()
	if c.state != PasswordSetup {
		c.mu.Unlock()
		return ErrWrongState
	}
	if c.submitting {
		c.mu.Unlock()
		return ErrBusy
	}
	if password == "" {
		c.mu.Unlock()
		return fmt.Errorf("%w: password is empty", ErrInvalidForm)
	}
	c.submitting = true
	c.mu.Unlock()

	err := c.backend.SetupPassword(ctx, password)
	if err != nil {
		c.mu.Lock()
		c.submitting = false
		c.mu.Unlock()
		c.logger.Printf("setup_password rejected: %v", err)
		return err
	}

	form := FormFromConfig(backend.DefaultNetworkConfig())
	cfg, err := c.backend.LoadConfig(ctx)
	if err != nil {
		c.logger.Printf("load_config failed, keeping defaults: %v", err)
	} else {
		form = FormFromConfig(cfg.Network)
	}

	c.mu.Lock()
	c.submitting = false
	c.form = form
	c.transitionLocked(NetworkSetup)
	c.mu.Unlock()
	return nil
}

func (c *Controller) Form() Form {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form
}

// SetForm replaces the edited form. It does not apply the ip version
// coupling; use SelectIPVersion for that.
func (c *Controller) SetForm(f Form) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != NetworkSetup {
		return ErrWrongState
	}
	c.form = f
	return nil
}

// SelectIPVersion sets the version and resets the listen address to the
// wildcard address of that version.
func (c *Controller) SelectIPVersion(v backend.IPVersion) error {
	if v != backend.IPv4 && v != backend.IPv6 {
		return fmt.Errorf("%w: ip version %q", ErrInvalidForm, v)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != NetworkSetup {
		return ErrWrongState
	}
	c.form.IPVersion = v
	c.form.ListenIP = backend.DefaultListenIP(v)
	return nil
}

// Confirm moves to Ready and persists the full form in the background.
// A save failure is logged and never reported back. A form that cannot
// be converted keeps the controller in NetworkSetup.
func (c *Controller) Confirm(ctx context.Context) error {
	c.mu.Lock()
	if c.state != NetworkSetup {
		c.mu.Unlock()
		return ErrWrongState
	}
	cfg, err := c.form.Config()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.transitionLocked(Ready)
	c.saves.Add(1)
	c.mu.Unlock()

	saveCtx := context.WithoutCancel(ctx)
	go func() {
		defer c.saves.Done()
		if err := c.backend.SaveConfig(saveCtx, cfg); err != nil {
			c.logger.Printf("save_config failed: %v", err)
		}
	}()
	return nil
}

// Flush waits for background saves started by Confirm.
func (c *Controller) Flush() {
	c.saves.Wait()
}
