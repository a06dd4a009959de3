package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManagerCreatesAndUpdates(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	path := filepath.Join(dir, "config.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	cfg := mgr.Get()
	cfg.Symbol = "MSFT"
	cfg.Episodes = 7

	data, _ := json.Marshal(cfg)
	if err := mgr.UpdateFromJSON(string(data)); err != nil {
		t.Fatalf("UpdateFromJSON: %v", err)
	}

	updated := mgr.Get()
	if updated.Symbol != "MSFT" {
		t.Fatalf("expected symbol MSFT, got %s", updated.Symbol)
	}
	if updated.Episodes != 7 {
		t.Fatalf("expected 7 episodes, got %d", updated.Episodes)
	}
}

func TestManagerRejectsInvalidUpdate(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	cfg := mgr.Get()
	cfg.Epsilon = 1.5
	if err := mgr.Update(cfg); err == nil {
		t.Fatal("expected validation error for epsilon > 1")
	}
}

func TestManagerWatchReloads(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan struct{}, 1)
	if err := mgr.Watch(ctx, func(cfg Config) {
		reloaded <- struct{}{}
	}); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	cfg := mgr.Get()
	cfg.Symbol = "TSLA"

	if err := writeConfigFile(mgr.Path(), cfg); err != nil {
		t.Fatalf("writeConfigFile: %v", err)
	}

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not fire on config change")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfigWithRoot(t.TempDir())
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	bad := *cfg
	bad.MarketSource = "live"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown market source")
	}

	bad = *cfg
	bad.OrderFraction = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero order fraction")
	}

	bad = *cfg
	bad.InitialCash = "lots"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for non-numeric initial cash")
	}

	bad = *cfg
	bad.InitialCash = "0"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero initial cash")
	}
}
