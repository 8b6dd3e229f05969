package paths

import (
	"path/filepath"
	"testing"
)

func TestHomeDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvHome, dir)
	got, err := HomeDir()
	if err != nil {
		t.Fatalf("home dir error: %v", err)
	}
	if got != dir {
		t.Fatalf("unexpected home: %s", got)
	}
}

func TestResolveInHome(t *testing.T) {
	home := filepath.Join("/", "tmp", "cofe")
	if got := ResolveInHome(home, ""); got != home {
		t.Fatalf("empty rel: %s", got)
	}
	if got := ResolveInHome(home, "node"); got != filepath.Join(home, "node") {
		t.Fatalf("relative: %s", got)
	}
	abs := filepath.Join("/", "var", "node")
	if got := ResolveInHome(home, abs); got != abs {
		t.Fatalf("absolute: %s", got)
	}
}
