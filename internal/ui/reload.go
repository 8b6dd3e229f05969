package ui

import (
	"context"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"cofe/internal/config"
)

// watchConfig re-reads path whenever it changes and sends the result on
// the returned channel. The parent directory is watched because editors
// usually replace the file rather than write it in place.
func watchConfig(ctx context.Context, path string, logger *log.Logger) (<-chan config.Config, func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, nil, err
	}

	out := make(chan config.Config, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				cfg, err := config.LoadOptional(path)
				if err != nil {
					logger.Printf("config reload: %v", err)
					continue
				}
				// keep only the newest
				select {
				case <-out:
				default:
				}
				out <- cfg
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Printf("config watcher error: %v", err)
			}
		}
	}()

	stop := func() error {
		err := watcher.Close()
		<-done
		return err
	}
	return out, stop, nil
}
