package node

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"cofe/internal/backend"
)

// historyStore keeps one ordered conversation per peer. Keys sort by
// timestamp inside a peer prefix, so a prefix scan yields the history in order.
type historyStore struct {
	db *badger.DB
}

func openHistory(dir string) (*historyStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return &historyStore{db: db}, nil
}

// The peer id is hex encoded so that no id, whatever characters it
// holds, can produce a prefix of another peer's keys.
func historyPrefix(peer string) []byte {
	return []byte("chat:" + hex.EncodeToString([]byte(peer)) + ":")
}

func historyKey(peer string, msg backend.ChatMessage) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", historyPrefix(peer), msg.Timestamp, msg.ID))
}

func (h *historyStore) append(peer string, msg backend.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.db.Update(func(txn *badger.Txn) error {
		return txn.Set(historyKey(peer, msg), data)
	})
}

func (h *historyStore) list(peer string) ([]backend.ChatMessage, error) {
	msgs := []backend.ChatMessage{}
	prefix := historyPrefix(peer)
	err := h.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var msg backend.ChatMessage
				if err := json.Unmarshal(v, &msg); err != nil {
					return fmt.Errorf("decode message: %w", err)
				}
				msgs = append(msgs, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (h *historyStore) close() error {
	return h.db.Close()
}
