package agencycms

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(".env", "SESSION_SECRET=from-dotenv\n")
	write("config.yaml", "site_name: Studio\nadmin_password: from-file\npost_cache_ttl: 30s\n")
	t.Cleanup(func() { os.Unsetenv("SESSION_SECRET") })
	t.Setenv("ADMIN_PASSWORD", "from-env")
	t.Setenv("ADDR", ":8080")

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Name != "Studio" {
		t.Errorf("Name = %q, want Studio", cfg.Name)
	}
	if cfg.AdminPassword != "from-env" {
		t.Errorf("AdminPassword = %q, want the environment to win", cfg.AdminPassword)
	}
	if cfg.SessionSecret != "from-dotenv" {
		t.Errorf("SessionSecret = %q", cfg.SessionSecret)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.PostCacheTTL != 30*time.Second {
		t.Errorf("PostCacheTTL = %v", cfg.PostCacheTTL)
	}
	if cfg.UploadDir != "public/uploads" || cfg.ShutdownGrace != 10*time.Second {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadConfigWithoutFiles(t *testing.T) {
	t.Setenv("ADMIN_PASSWORD", "")
	t.Setenv("SESSION_SECRET", "")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Name != "Agency" || cfg.Addr != ":3000" {
		t.Errorf("defaults = %+v", cfg)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected Validate to require an admin password")
	}
}
