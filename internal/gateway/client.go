// Package gateway is the client side of the node command surface.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"cofe/internal/backend"
	"cofe/internal/wire"
)

const DefaultCallTimeout = 15 * time.Second

type Options struct {
	Transport   string
	Address     string
	CallTimeout time.Duration
	Logger      *log.Logger
}

// Client implements backend.Gateway over a wire connection.
type Client struct {
	conn    wire.Conn
	timeout time.Duration
	logger  *log.Logger

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan wire.Frame
	subs    map[string]map[uint64]func(backend.Event)
	nextSub uint64
	err     error
	done    chan struct{}
}

var _ backend.Gateway = (*Client)(nil)

func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("%w: gateway address is empty", backend.ErrConnectivity)
	}
	conn, err := wire.Dial(ctx, opts.Transport, opts.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrConnectivity, err)
	}
	return NewClient(conn, opts), nil
}

// NewClient wraps an established connection and starts its read loop.
func NewClient(conn wire.Conn, opts Options) *Client {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	c := &Client{
		conn:    conn,
		timeout: opts.CallTimeout,
		logger:  opts.Logger,
		pending: make(map[uint64]chan wire.Frame),
		subs:    make(map[string]map[uint64]func(backend.Event)),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		f, err := c.conn.ReadFrame()
		if err != nil {
			c.fail(err)
			return
		}
		switch f.Type {
		case wire.TypeReply:
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		case wire.TypeEvent:
			c.deliver(backend.Event{Name: f.Event, Payload: f.Payload})
		}
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = fmt.Errorf("%w: %v", backend.ErrConnectivity, err)
		if c.logger != nil {
			c.logger.Printf("gateway: connection lost: %v", err)
		}
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) deliver(ev backend.Event) {
	c.mu.Lock()
	fns := make([]func(backend.Event), 0, len(c.subs[ev.Name]))
	for _, fn := range c.subs[ev.Name] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (c *Client) call(ctx context.Context, cmd string, args any, out any) error {
	var raw json.RawMessage
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return err
		}
		raw = data
	}

	ch := make(chan wire.Frame, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.conn.WriteFrame(wire.Frame{Type: wire.TypeCall, ID: id, Cmd: cmd, Args: raw}); err != nil {
		c.forget(id)
		return fmt.Errorf("%w: %v", backend.ErrConnectivity, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case f, ok := <-ch:
		if !ok {
			c.mu.Lock()
			err := c.err
			c.mu.Unlock()
			return err
		}
		if f.Error != nil {
			return wire.ErrorFromCode(f.Error)
		}
		if out == nil || len(f.Result) == 0 {
			return nil
		}
		return json.Unmarshal(f.Result, out)
	case <-timer.C:
		c.forget(id)
		return fmt.Errorf("%w: %s timed out", backend.ErrConnectivity, cmd)
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) FirstRun(ctx context.Context) (bool, error) {
	var first bool
	err := c.call(ctx, backend.CmdGetFirstRun, nil, &first)
	return first, err
}

func (c *Client) SetupPassword(ctx context.Context, password string) error {
	return c.call(ctx, backend.CmdSetupPassword, wire.PasswordArgs{Password: password}, nil)
}

func (c *Client) LoadConfig(ctx context.Context) (backend.Config, error) {
	var raw json.RawMessage
	if err := c.call(ctx, backend.CmdLoadConfig, nil, &raw); err != nil {
		return backend.Config{Network: backend.DefaultNetworkConfig()}, err
	}
	return backend.DecodeConfig(raw)
}

func (c *Client) SaveConfig(ctx context.Context, cfg backend.Config) error {
	return c.call(ctx, backend.CmdSaveConfig, wire.ConfigArgs{Config: cfg}, nil)
}

func (c *Client) SelfPeerID(ctx context.Context) (string, error) {
	var id string
	err := c.call(ctx, backend.CmdGetSelfPeerID, nil, &id)
	return id, err
}

func (c *Client) FindPeer(ctx context.Context, peerID string) ([]string, error) {
	var peers []string
	err := c.call(ctx, backend.CmdFindPeer, wire.PeerArgs{PeerID: peerID}, &peers)
	return peers, err
}

func (c *Client) History(ctx context.Context, peerID string) ([]backend.ChatMessage, error) {
	var msgs []backend.ChatMessage
	err := c.call(ctx, backend.CmdGetHistoryMessage, wire.PeerArgs{PeerID: peerID}, &msgs)
	return msgs, err
}

func (c *Client) SendMessage(ctx context.Context, peerID string, msg backend.ChatMessage) error {
	return c.call(ctx, backend.CmdSendMessage, wire.SendArgs{PeerID: peerID, Message: msg}, nil)
}

// Subscribe registers fn locally; the node pushes every event to every
// client. Handlers run on the read loop and must not block.
func (c *Client) Subscribe(ctx context.Context, event string, fn func(backend.Event)) (func(), error) {
	if fn == nil {
		return nil, errors.New("gateway: nil event handler")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.nextSub++
	id := c.nextSub
	if c.subs[event] == nil {
		c.subs[event] = make(map[uint64]func(backend.Event))
	}
	c.subs[event][id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs[event], id)
			c.mu.Unlock()
		})
	}, nil
}

// Err reports why the connection stopped, or nil while it is alive.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}
