package system

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cofe/internal/config"
	"cofe/internal/paths"
	"cofe/internal/wire"
)

type CheckResult struct {
	Name   string
	Status string
	Detail string
}

// RunDoctor inspects the local install: home layout, node data and the
// configured gateway endpoint.
func RunDoctor(ctx context.Context, cfg config.Config, home string) []CheckResult {
	results := []CheckResult{}

	add := func(name, status, detail string) {
		results = append(results, CheckResult{Name: name, Status: status, Detail: detail})
	}

	add("config", "ok", "loaded")
	if err := checkWritable(home); err != nil {
		add("home", "err", err.Error())
	} else {
		add("home", "ok", home)
	}

	logDir := filepath.Dir(paths.ResolveInHome(home, cfg.Log.File))
	if _, err := os.Stat(logDir); err != nil {
		add("logs", "warn", logDir+" missing (created on start)")
	} else {
		add("logs", "ok", logDir)
	}

	dataDir := paths.ResolveInHome(home, cfg.Node.DataDir)
	if _, err := os.Stat(filepath.Join(dataDir, "identity")); err != nil {
		if cfg.Node.Embedded {
			add("identity", "warn", "no identity yet, run init")
		} else {
			add("identity", "ok", "remote node")
		}
	} else {
		add("identity", "ok", dataDir)
	}

	for _, p := range cfg.Node.Peers {
		if p.Inbox == "" {
			add("peer "+p.ID, "ok", "no inbox")
			continue
		}
		if fi, err := os.Stat(p.Inbox); err != nil || !fi.IsDir() {
			add("peer "+p.ID, "warn", p.Inbox+" not reachable")
		} else {
			add("peer "+p.ID, "ok", p.Inbox)
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	endpoint := cfg.Gateway.Transport + "://" + cfg.Gateway.Address
	conn, err := wire.Dial(dialCtx, cfg.Gateway.Transport, cfg.Gateway.Address)
	switch {
	case err == nil:
		_ = conn.Close()
		add("gateway", "ok", endpoint)
	case cfg.Node.Embedded:
		add("gateway", "warn", endpoint+" not running (started with the TUI)")
	default:
		add("gateway", "err", fmt.Sprintf("%s: %v", endpoint, err))
	}

	return results
}

func checkWritable(dir string) error {
	if err := paths.EnsureDir(dir); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func FormatDoctor(results []CheckResult) string {
	var out string
	for _, r := range results {
		out += fmt.Sprintf("[%s] %s", r.Status, r.Name)
		if r.Detail != "" {
			out += fmt.Sprintf(" -> %s", r.Detail)
		}
		out += "\n"
	}
	return out
}
