package session

import (
	"context"
	"errors"
	"sync"
)

// Composer owns the message input. Submitting hands the draft to the
// coordinator and clears it whatever the outcome of the send.
type Composer struct {
	coord *Coordinator

	mu    sync.Mutex
	draft string
}

func NewComposer(coord *Coordinator) *Composer {
	return &Composer{coord: coord}
}

func (m *Composer) SetDraft(text string) {
	m.mu.Lock()
	m.draft = text
	m.mu.Unlock()
}

func (m *Composer) Draft() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draft
}

// Enabled reports whether a conversation is open to write into.
func (m *Composer) Enabled(snap Snapshot) bool {
	return snap.Active != ""
}

// Submit sends the current draft. The returned error is informational;
// the input is cleared even when sending failed. Without an active
// conversation nothing is sent and the draft is kept.
func (m *Composer) Submit(ctx context.Context) error {
	text := m.Draft()
	err := m.coord.Compose(ctx, text)
	if errors.Is(err, ErrNoActivePeer) {
		return err
	}
	m.mu.Lock()
	if m.draft == text {
		m.draft = ""
	}
	m.mu.Unlock()
	return err
}
