package node

import (
	"errors"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// PeerEntry is one known contact. Inbox is the drop directory of a node
// on the same host; peers without one can only be messaged locally.
type PeerEntry struct {
	ID    string `yaml:"id"`
	Inbox string `yaml:"inbox,omitempty"`
}

type peerFile struct {
	Peers []PeerEntry `yaml:"peers"`
}

type peerBook struct {
	path string

	mu    sync.Mutex
	peers map[string]PeerEntry
}

func loadPeerBook(path string) (*peerBook, error) {
	b := &peerBook{path: path, peers: make(map[string]PeerEntry)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, err
	}
	var f peerFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	for _, p := range f.Peers {
		if p.ID == "" {
			continue
		}
		b.peers[p.ID] = p
	}
	return b, nil
}

func (b *peerBook) ids() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.peers))
	for id := range b.peers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (b *peerBook) lookup(id string) (PeerEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.peers[id]
	return p, ok
}

// learn records id if it is new, or sets its inbox if one is given.
func (b *peerBook) learn(entry PeerEntry) error {
	if entry.ID == "" {
		return errors.New("peer id is empty")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	old, ok := b.peers[entry.ID]
	if ok && (entry.Inbox == "" || entry.Inbox == old.Inbox) {
		return nil
	}
	if entry.Inbox == "" {
		entry.Inbox = old.Inbox
	}
	b.peers[entry.ID] = entry
	return b.saveLocked()
}

func (b *peerBook) saveLocked() error {
	f := peerFile{Peers: make([]PeerEntry, 0, len(b.peers))}
	for _, p := range b.peers {
		f.Peers = append(f.Peers, p)
	}
	sort.Slice(f.Peers, func(i, j int) bool { return f.Peers[i].ID < f.Peers[j].ID })
	data, err := yaml.Marshal(&f)
	if err != nil {
		return err
	}
	return os.WriteFile(b.path, data, 0600)
}
