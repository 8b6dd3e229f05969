package node

import (
	"encoding/json"
	"fmt"
	"os"

	"cofe/internal/backend"
)

type configStore struct {
	path string
}

// load returns the raw document so that the client decides which
// defaults fill omitted fields.
func (s configStore) load() (json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no saved config", backend.ErrNotFound)
		}
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("config %s is corrupt", s.path)
	}
	return json.RawMessage(data), nil
}

func (s configStore) save(cfg backend.Config) error {
	if err := cfg.Network.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}
