package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"ccsa/internal/config"
	"ccsa/internal/resources"
)

func tempConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		EmailBackend:     "memory",
		DefaultFromEmail: "CCSA <no-reply@cc-sudavesnois.fr>",
		MaxUploadSize:    config.DefaultMaxUploadSize,
		BackupRetention:  4,
		DatabasePath:     filepath.Join(dir, "db.sqlite3"),
		MediaRoot:        filepath.Join(dir, "media"),
		BackupRoot:       filepath.Join(dir, "backups"),
	}
}

func TestOpen_SuccessAndCleanup(t *testing.T) {
	cfg := tempConfig(t)
	app, done, err := Open(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := app.Kernel.Type(resources.Commune); err != nil {
		t.Fatalf("catalog not registered: %v", err)
	}
	if app.Contact == nil || app.Backups == nil || app.Users == nil || app.Site == nil {
		t.Fatalf("components expected")
	}
	if err := done(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	// повторное открытие той же БД: миграции идемпотентны
	_, done, err = Open(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = done()
}

func TestOpen_UnknownMailBackend(t *testing.T) {
	cfg := tempConfig(t)
	cfg.EmailBackend = "pigeon"
	if _, _, err := Open(context.Background(), cfg, nil, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
