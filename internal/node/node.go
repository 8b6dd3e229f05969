// Package node is a local stand-in for the chat backend. It serves the
// full command surface from files under one data directory and delivers
// messages between nodes on the same host through inbox directories.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cofe/internal/backend"
	"cofe/internal/wire"
)

type Options struct {
	Dir    string
	Logger *log.Logger
}

type Node struct {
	dir    string
	logger *log.Logger

	self    string
	creds   credentialStore
	config  configStore
	peers   *peerBook
	history *historyStore

	stopInbox func() error

	mu      sync.Mutex
	subs    map[string]map[uint64]func(backend.Event)
	nextSub uint64
	server  *wire.Server
	closed  bool
}

var _ backend.Gateway = (*Node)(nil)

// Open prepares dir and starts watching the node's inbox. The returned
// node must be closed to release the history database.
func Open(ctx context.Context, opts Options) (*Node, error) {
	if opts.Dir == "" {
		return nil, errors.New("node dir is empty")
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if err := os.MkdirAll(opts.Dir, 0700); err != nil {
		return nil, err
	}
	self, err := ensurePeerID(filepath.Join(opts.Dir, "identity"))
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	peers, err := loadPeerBook(filepath.Join(opts.Dir, "peers.yaml"))
	if err != nil {
		return nil, fmt.Errorf("peer book: %w", err)
	}
	history, err := openHistory(filepath.Join(opts.Dir, "history"))
	if err != nil {
		return nil, err
	}

	n := &Node{
		dir:     opts.Dir,
		logger:  opts.Logger,
		self:    self,
		creds:   credentialStore{path: filepath.Join(opts.Dir, "credential")},
		config:  configStore{path: filepath.Join(opts.Dir, "config.json")},
		peers:   peers,
		history: history,
		subs:    make(map[string]map[uint64]func(backend.Event)),
	}

	stop, err := watchInbox(ctx, n.InboxDir(), n.receive, n.logger.Printf)
	if err != nil {
		_ = history.close()
		return nil, fmt.Errorf("inbox: %w", err)
	}
	n.stopInbox = stop
	n.logger.Printf("node %s ready in %s", self, opts.Dir)
	return n, nil
}

func (n *Node) InboxDir() string {
	return filepath.Join(n.dir, "inbox")
}

func (n *Node) Dir() string {
	return n.dir
}

// AddPeer records a contact. A non-empty inbox makes send_message deliver
// to that directory as well as storing the message locally.
func (n *Node) AddPeer(entry PeerEntry) error {
	if entry.ID == n.self {
		return fmt.Errorf("%w: cannot add self as peer", backend.ErrValidation)
	}
	return n.peers.learn(entry)
}

func (n *Node) FirstRun(ctx context.Context) (bool, error) {
	ok, err := n.creds.exists()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (n *Node) SetupPassword(ctx context.Context, password string) error {
	return n.creds.set(password)
}

func (n *Node) LoadConfig(ctx context.Context) (backend.Config, error) {
	raw, err := n.config.load()
	if err != nil {
		return backend.Config{Network: backend.DefaultNetworkConfig()}, err
	}
	return backend.DecodeConfig(raw)
}

func (n *Node) SaveConfig(ctx context.Context, cfg backend.Config) error {
	cfg.Network = cfg.Network.Normalize()
	return n.config.save(cfg)
}

func (n *Node) SelfPeerID(ctx context.Context) (string, error) {
	return n.self, nil
}

// FindPeer returns the known peers whose id contains query, in id order.
// An empty query lists every known peer.
func (n *Node) FindPeer(ctx context.Context, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	out := []string{}
	for _, id := range n.peers.ids() {
		if id == n.self {
			continue
		}
		if query == "" || strings.Contains(id, query) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (n *Node) History(ctx context.Context, peerID string) ([]backend.ChatMessage, error) {
	if peerID == "" {
		return []backend.ChatMessage{}, nil
	}
	return n.history.list(peerID)
}

// SendMessage stores msg in the conversation with peerID and hands it to
// the peer's inbox when one is known. Delivery failures are only logged.
func (n *Node) SendMessage(ctx context.Context, peerID string, msg backend.ChatMessage) error {
	if peerID == "" {
		return fmt.Errorf("%w: peer id is empty", backend.ErrValidation)
	}
	if msg.ID == "" {
		return fmt.Errorf("%w: message id is empty", backend.ErrValidation)
	}
	if msg.To == "" {
		msg.To = peerID
	}
	if msg.From == "" {
		msg.From = n.self
	}
	if err := n.history.append(peerID, msg); err != nil {
		return err
	}
	if err := n.peers.learn(PeerEntry{ID: peerID}); err != nil {
		n.logger.Printf("learn peer %s: %v", peerID, err)
	}
	if entry, ok := n.peers.lookup(peerID); ok && entry.Inbox != "" {
		if err := deliverToInbox(entry.Inbox, msg); err != nil {
			n.logger.Printf("deliver %s to %s: %v", msg.ID, peerID, err)
		}
	}
	return nil
}

func (n *Node) receive(msg backend.ChatMessage) error {
	if msg.From == "" || msg.ID == "" {
		return fmt.Errorf("%w: message without sender or id", backend.ErrValidation)
	}
	if err := n.history.append(msg.From, msg); err != nil {
		return err
	}
	if err := n.peers.learn(PeerEntry{ID: msg.From}); err != nil {
		n.logger.Printf("learn peer %s: %v", msg.From, err)
	}
	n.emit(backend.EventMessageReceived, backend.MessageReceived{Peer: msg.From, Message: msg})
	return nil
}

func (n *Node) Subscribe(ctx context.Context, event string, fn func(backend.Event)) (func(), error) {
	if fn == nil {
		return nil, errors.New("node: nil event handler")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	n.nextSub++
	id := n.nextSub
	if n.subs[event] == nil {
		n.subs[event] = make(map[uint64]func(backend.Event))
	}
	n.subs[event][id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs[event], id)
			n.mu.Unlock()
		})
	}, nil
}

// emit notifies in-process subscribers and every connected gateway client.
func (n *Node) emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		n.logger.Printf("emit %s: %v", event, err)
		return
	}
	n.mu.Lock()
	fns := make([]func(backend.Event), 0, len(n.subs[event]))
	for _, fn := range n.subs[event] {
		fns = append(fns, fn)
	}
	srv := n.server
	n.mu.Unlock()

	ev := backend.Event{Name: event, Payload: data}
	for _, fn := range fns {
		fn(ev)
	}
	if srv != nil {
		srv.Broadcast(event, json.RawMessage(data))
	}
}

// Handler exposes the node's commands to a wire.Server.
func (n *Node) Handler() wire.Handler {
	return func(ctx context.Context, cmd string, args json.RawMessage) (any, error) {
		switch cmd {
		case backend.CmdGetFirstRun:
			return n.FirstRun(ctx)
		case backend.CmdSetupPassword:
			var a wire.PasswordArgs
			if err := decodeArgs(args, &a); err != nil {
				return nil, err
			}
			return nil, n.SetupPassword(ctx, a.Password)
		case backend.CmdLoadConfig:
			// raw, so the client fills omitted fields with its own defaults
			return n.config.load()
		case backend.CmdSaveConfig:
			var a wire.ConfigArgs
			if err := decodeArgs(args, &a); err != nil {
				return nil, err
			}
			return nil, n.SaveConfig(ctx, a.Config)
		case backend.CmdGetSelfPeerID:
			return n.SelfPeerID(ctx)
		case backend.CmdFindPeer:
			var a wire.PeerArgs
			if err := decodeArgs(args, &a); err != nil {
				return nil, err
			}
			return n.FindPeer(ctx, a.PeerID)
		case backend.CmdGetHistoryMessage:
			var a wire.PeerArgs
			if err := decodeArgs(args, &a); err != nil {
				return nil, err
			}
			return n.History(ctx, a.PeerID)
		case backend.CmdSendMessage:
			var a wire.SendArgs
			if err := decodeArgs(args, &a); err != nil {
				return nil, err
			}
			return nil, n.SendMessage(ctx, a.PeerID, a.Message)
		default:
			return nil, fmt.Errorf("%w: unknown command %q", backend.ErrValidation, cmd)
		}
	}
}

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing arguments", backend.ErrValidation)
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", backend.ErrValidation, err)
	}
	return nil
}

// Serve answers gateway clients on l until ctx is done or the node closes.
func (n *Node) Serve(ctx context.Context, l wire.Listener) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		_ = l.Close()
		return wire.ErrListenerClosed
	}
	if n.server == nil {
		n.server = &wire.Server{Handler: n.Handler(), Logger: n.logger}
	}
	srv := n.server
	n.mu.Unlock()
	n.logger.Printf("serving gateway on %s", l.Addr())
	return srv.Serve(ctx, l)
}

func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	srv := n.server
	n.mu.Unlock()

	var errs []error
	if n.stopInbox != nil {
		errs = append(errs, n.stopInbox())
	}
	if srv != nil {
		errs = append(errs, srv.Close())
	}
	errs = append(errs, n.history.close())
	return errors.Join(errs...)
}
