package system

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cofe/internal/config"
	"cofe/internal/wire"
)

func TestFormatBytes(t *testing.T) {
	cases := map[uint64]string{
		512:     "512 B",
		1536:    "1.5 KB",
		3 << 20: "3.0 MB",
		2 << 30: "2.0 GB",
	}
	for in, want := range cases {
		if got := FormatBytes(in); got != want {
			t.Fatalf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatMetrics(t *testing.T) {
	got := FormatMetrics(Metrics{CPUPercent: 12.4, MemPercent: 50, DiskPercent: 70.6, DiskUsed: 1536})
	if got != "cpu 12% | mem 50% | disk 71% (1.5 KB)" {
		t.Fatalf("unexpected %q", got)
	}
}

func find(results []CheckResult, name string) (CheckResult, bool) {
	for _, r := range results {
		if r.Name == name {
			return r, true
		}
	}
	return CheckResult{}, false
}

func TestDoctorReportsGateway(t *testing.T) {
	home := t.TempDir()
	l, err := wire.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	cfg := config.DefaultConfig()
	cfg.Gateway.Address = l.Addr()
	cfg.Node.Peers = []config.PeerConfig{
		{ID: "near", Inbox: home},
		{ID: "far", Inbox: filepath.Join(home, "missing")},
	}

	results := RunDoctor(context.Background(), cfg, home)
	if r, _ := find(results, "gateway"); r.Status != "ok" {
		t.Fatalf("gateway check: %+v", r)
	}
	if r, _ := find(results, "home"); r.Status != "ok" {
		t.Fatalf("home check: %+v", r)
	}
	if r, _ := find(results, "identity"); r.Status != "warn" {
		t.Fatalf("identity check: %+v", r)
	}
	if r, _ := find(results, "peer near"); r.Status != "ok" {
		t.Fatalf("peer near: %+v", r)
	}
	if r, _ := find(results, "peer far"); r.Status != "warn" {
		t.Fatalf("peer far: %+v", r)
	}

	out := FormatDoctor(results)
	if !strings.Contains(out, "[ok] gateway -> tcp://"+l.Addr()) {
		t.Fatalf("unexpected report:\n%s", out)
	}
	entries, _ := os.ReadDir(home)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".doctor-") {
			t.Fatalf("probe file left behind: %s", e.Name())
		}
	}
}

func TestDoctorRemoteGatewayDown(t *testing.T) {
	l, err := wire.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr()
	_ = l.Close()

	cfg := config.DefaultConfig()
	cfg.Node.Embedded = false
	cfg.Gateway.Address = addr
	results := RunDoctor(context.Background(), cfg, t.TempDir())
	if r, _ := find(results, "gateway"); r.Status != "err" {
		t.Fatalf("gateway check: %+v", r)
	}
}
