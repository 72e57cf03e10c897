package secrets

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileEnvProvider_FileWins(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "API_KEY"), []byte("from-file\n"), 0o600); err != nil {
		t.Fatalf("write secret file: %v", err)
	}
	t.Setenv("API_KEY", "from-env")

	p := NewFileEnvProvider(dir)
	got, err := p.Get("API_KEY")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-file" {
		t.Fatalf("expected file value, got %q", got)
	}
}

func TestFileEnvProvider_EnvFallback(t *testing.T) {
	t.Setenv("FALLBACK_KEY", "env-value")

	p := NewFileEnvProvider(t.TempDir())
	got, err := p.Get("FALLBACK_KEY")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "env-value" {
		t.Fatalf("expected env value, got %q", got)
	}
}

func TestFileEnvProvider_Missing(t *testing.T) {
	p := NewFileEnvProvider(t.TempDir())
	if _, err := p.Get("NOPE_NOT_SET"); err == nil {
		t.Fatalf("expected error for missing secret")
	}
}

func TestFileEnvProvider_CachesFirstRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "CACHED")
	if err := os.WriteFile(path, []byte("v1"), 0o600); err != nil {
		t.Fatalf("write secret file: %v", err)
	}

	p := NewFileEnvProvider(dir)
	if got, _ := p.Get("CACHED"); got != "v1" {
		t.Fatalf("expected v1, got %q", got)
	}
	if err := os.WriteFile(path, []byte("v2"), 0o600); err != nil {
		t.Fatalf("rewrite secret file: %v", err)
	}
	if got, _ := p.Get("CACHED"); got != "v1" {
		t.Fatalf("expected cached v1, got %q", got)
	}
}

func TestStaticProvider(t *testing.T) {
	p := Static{"K": "v"}
	if got, err := p.Get("K"); err != nil || got != "v" {
		t.Fatalf("expected v, got %q err %v", got, err)
	}
	if _, err := p.Get("MISSING"); err == nil {
		t.Fatalf("expected error for missing key")
	}
}
