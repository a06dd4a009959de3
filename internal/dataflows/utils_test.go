package dataflows

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestValidateSymbol(t *testing.T) {
	if err := ValidateSymbol("AAPL"); err != nil {
		t.Errorf("AAPL should be valid: %v", err)
	}
	if err := ValidateSymbol(""); err == nil {
		t.Error("empty symbol should be invalid")
	}
	if err := ValidateSymbol("WAYTOOLONGSYMBOL"); err == nil {
		t.Error("overlong symbol should be invalid")
	}
}

func TestNormalizeSymbol(t *testing.T) {
	if got := NormalizeSymbol("  aapl "); got != "AAPL" {
		t.Errorf("expected AAPL, got %q", got)
	}
}

func TestWithRetryEventuallySucceeds(t *testing.T) {
	cfg := &RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}

	calls := 0
	err := WithRetry(cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetryGivesUp(t *testing.T) {
	cfg := &RetryConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
		Multiplier: 2.0,
	}

	sentinel := errors.New("down")
	err := WithRetry(cfg, func() error { return sentinel })
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("expected wrapped sentinel error, got %v", err)
	}
}

func TestCacheManagerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cm := NewCacheManager(dir, time.Minute, true)

	in := map[string]string{"hello": "world"}
	if err := cm.Set("test", "roundtrip", "key", in); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var out map[string]string
	if !cm.Get("test", "roundtrip", "key", &out) {
		t.Fatal("expected cache hit")
	}
	if out["hello"] != "world" {
		t.Errorf("expected world, got %q", out["hello"])
	}
}

func TestCacheManagerDisabled(t *testing.T) {
	cm := NewCacheManager(t.TempDir(), time.Minute, false)

	if err := cm.Set("test", "disabled", "key", "value"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var out string
	if cm.Get("test", "disabled", "key", &out) {
		t.Error("disabled cache should never hit")
	}
}

func TestSaveLoadDataFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.json")

	in := []int{1, 2, 3}
	if err := SaveDataToFile(in, path); err != nil {
		t.Fatalf("SaveDataToFile: %v", err)
	}

	var out []int
	if err := LoadDataFromFile(path, &out); err != nil {
		t.Fatalf("LoadDataFromFile: %v", err)
	}
	if len(out) != 3 || out[2] != 3 {
		t.Errorf("unexpected round-trip result: %v", out)
	}
}

func TestSentimentScore(t *testing.T) {
	if got := scoreText("shares surge to record gains"); got <= 0 {
		t.Errorf("expected positive score, got %v", got)
	}
	if got := scoreText("stock plunges after earnings miss"); got >= 0 {
		t.Errorf("expected negative score, got %v", got)
	}
	if got := scoreText("the quarterly report was published"); got != 0 {
		t.Errorf("expected neutral score, got %v", got)
	}
}
