package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"cofe/internal/backend"
)

const inboxSuffix = ".msg.json"

// deliverToInbox drops msg into another node's inbox. The file appears
// under its final name only once fully written.
func deliverToInbox(dir string, msg backend.ChatMessage) error {
	if dir == "" {
		return errors.New("inbox dir is empty")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".incoming-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	name := fmt.Sprintf("%020d-%s%s", msg.Timestamp, msg.ID, inboxSuffix)
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}

type inboxHandler func(backend.ChatMessage) error

// watchInbox consumes message files already in dir and then every new one.
// A file is removed once handle accepts it.
func watchInbox(ctx context.Context, dir string, handle inboxHandler, logf func(format string, args ...any)) (func() error, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if dir == "" {
		return nil, errors.New("inbox dir is empty")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	consume := func(path string) {
		if !strings.HasSuffix(path, inboxSuffix) {
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				logf("inbox read %s: %v", path, err)
			}
			return
		}
		var msg backend.ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logf("inbox decode %s: %v", path, err)
			_ = os.Rename(path, path+".bad")
			return
		}
		if err := handle(msg); err != nil {
			logf("inbox handle %s: %v", path, err)
			return
		}
		_ = os.Remove(path)
	}

	existing, err := filepath.Glob(filepath.Join(dir, "*"+inboxSuffix))
	if err != nil {
		_ = watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, path := range existing {
			consume(path)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				consume(ev.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if err != nil {
					logf("inbox watcher error: %v", err)
				}
			}
		}
	}()

	stop := func() error {
		err := watcher.Close()
		<-done
		return err
	}
	return stop, nil
}
