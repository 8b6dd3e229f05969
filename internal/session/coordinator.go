// Package session keeps the chat view state in step with the node: local
// identity, active conversation, discovered peers and message history.
//
// All state lives in one struct owned by the coordinator's control loop.
// User actions and push events are both delivered to that loop as
// messages, so the event path always reads the current active peer.
package session

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"cofe/internal/backend"
)

var (
	ErrNoActivePeer = errors.New("no active conversation")
	ErrStopped      = errors.New("session stopped")
)

// Snapshot is a copy of the session state, safe to hand to a renderer.
type Snapshot struct {
	Self     string
	Active   string
	Peers    []string
	Messages []backend.ChatMessage
}

type state struct {
	self     string
	active   string
	peers    []string
	messages []backend.ChatMessage
}

func (s *state) snapshot() Snapshot {
	return Snapshot{
		Self:     s.self,
		Active:   s.active,
		Peers:    append([]string(nil), s.peers...),
		Messages: append([]backend.ChatMessage(nil), s.messages...),
	}
}

type Options struct {
	Logger *log.Logger
	Clock  clock.Clock
	// NewID generates outgoing message ids. Defaults to random UUIDs.
	NewID func() string
}

type Coordinator struct {
	chat   backend.Chat
	logger *log.Logger
	clock  clock.Clock
	newID  func() string

	ops      chan func(*state)
	triggers chan struct{}
	updates  chan Snapshot
	done     chan struct{}
	// reqCtx carries values but never a deadline or cancellation
	reqCtx context.Context
}

func NewCoordinator(chat backend.Chat, opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Coordinator{
		chat:     chat,
		logger:   opts.Logger,
		clock:    opts.Clock,
		newID:    opts.NewID,
		ops:      make(chan func(*state)),
		triggers: make(chan struct{}, 64),
		updates:  make(chan Snapshot, 1),
		done:     make(chan struct{}),
		reqCtx:   context.Background(),
	}
}

// Run subscribes to message-received, fetches the local identity and
// serves operations until ctx is done. The subscription is removed on
// return; requests already in flight are left to finish.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)
	c.reqCtx = context.WithoutCancel(ctx)

	unsubscribe, err := c.chat.Subscribe(ctx, backend.EventMessageReceived, c.onEvent)
	if err != nil {
		return err
	}
	defer unsubscribe()

	st := &state{}
	go c.fetchSelf()

	for {
		select {
		case <-ctx.Done():
			return nil
		case op := <-c.ops:
			op(st)
		case <-c.triggers:
			// the peer active right now, not at subscription time
			c.refresh(st.active, nil)
		}
	}
}

func (c *Coordinator) onEvent(ev backend.Event) {
	select {
	case c.triggers <- struct{}{}:
	default:
		// a queued trigger already covers this one
	}
}

// Updates delivers the latest snapshot after every state change. Only the
// newest unread snapshot is kept.
func (c *Coordinator) Updates() <-chan Snapshot {
	return c.updates
}

// Done is closed when Run returns.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) publish(st *state) {
	snap := st.snapshot()
	for {
		select {
		case c.updates <- snap:
			return
		default:
		}
		select {
		case <-c.updates:
		default:
		}
	}
}

// post runs op on the control loop. It gives up once the loop has stopped.
func (c *Coordinator) post(op func(*state)) bool {
	select {
	case c.ops <- op:
		return true
	case <-c.done:
		return false
	}
}

// do runs op on the loop and waits for the error it reports through
// finish, or for ctx to end.
func (c *Coordinator) do(ctx context.Context, op func(st *state, finish func(error))) error {
	result := make(chan error, 1)
	finish := func(err error) { result <- err }
	ok := c.post(func(st *state) { op(st, finish) })
	if !ok {
		return ErrStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) fetchSelf() {
	id, err := c.chat.SelfPeerID(c.reqCtx)
	if err != nil {
		c.logger.Printf("get_self_peer_id: %v", err)
		return
	}
	c.post(func(st *state) {
		st.self = id
		c.publish(st)
	})
}

// refresh fetches peer's history off the loop and replaces the message
// list with whatever comes back, even if the active peer has changed by
// then. finish may be nil.
func (c *Coordinator) refresh(peer string, finish func(error)) {
	go func() {
		msgs, err := c.chat.History(c.reqCtx, peer)
		if err != nil {
			c.logger.Printf("get_history_message %s: %v", peer, err)
			if finish != nil {
				finish(err)
			}
			return
		}
		if msgs == nil {
			msgs = []backend.ChatMessage{}
		}
		posted := c.post(func(st *state) {
			st.messages = msgs
			c.publish(st)
			if finish != nil {
				finish(nil)
			}
		})
		if !posted && finish != nil {
			finish(ErrStopped)
		}
	}()
}

// DiscoverPeer looks up query and replaces the directory with the result.
func (c *Coordinator) DiscoverPeer(ctx context.Context, query string) error {
	return c.do(ctx, func(st *state, finish func(error)) {
		go func() {
			peers, err := c.chat.FindPeer(c.reqCtx, query)
			if err != nil {
				c.logger.Printf("find_peer %q: %v", query, err)
				finish(err)
				return
			}
			if peers == nil {
				peers = []string{}
			}
			posted := c.post(func(st *state) {
				st.peers = peers
				c.publish(st)
				finish(nil)
			})
			if !posted {
				finish(ErrStopped)
			}
		}()
	})
}

// SelectConversation makes peer the active conversation and refreshes it.
func (c *Coordinator) SelectConversation(ctx context.Context, peer string) error {
	return c.do(ctx, func(st *state, finish func(error)) {
		st.active = peer
		c.publish(st)
		c.refresh(peer, finish)
	})
}

// RefreshHistory replaces the message list with peer's full history.
func (c *Coordinator) RefreshHistory(ctx context.Context, peer string) error {
	return c.do(ctx, func(st *state, finish func(error)) {
		c.refresh(peer, finish)
	})
}

// Compose sends text to the active peer and then refreshes that
// conversation whether or not the send succeeded. The send error is
// returned for logging only.
func (c *Coordinator) Compose(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.do(ctx, func(st *state, finish func(error)) {
		if st.active == "" {
			finish(ErrNoActivePeer)
			return
		}
		peer := st.active
		msg := backend.ChatMessage{
			ID:        c.newID(),
			From:      st.self,
			To:        peer,
			Timestamp: c.clock.Now().UnixMilli(),
			Content:   text,
		}
		go func() {
			sendErr := c.chat.SendMessage(c.reqCtx, peer, msg)
			if sendErr != nil {
				c.logger.Printf("send_message %s: %v", peer, sendErr)
			}
			posted := c.post(func(st *state) {
				c.refresh(peer, func(error) { finish(sendErr) })
			})
			if !posted {
				finish(ErrStopped)
			}
		}()
	})
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	result := make(chan Snapshot, 1)
	if !c.post(func(st *state) { result <- st.snapshot() }) {
		return Snapshot{}, ErrStopped
	}
	select {
	case snap := <-result:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}
