package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	c := LoadFromEnv()

	if c.WSURI == "" {
		t.Fatal("expected a default WS_URI")
	}
	if c.BufferSeconds != 180 {
		t.Errorf("expected default BUFFER_SECONDS=180, got %d", c.BufferSeconds)
	}
	if c.WhaleThreshold != 1.0 {
		t.Errorf("expected default WHALE_THRESHOLD=1.0, got %v", c.WhaleThreshold)
	}
	if c.GetDBRefreshInterval() != 10*time.Second {
		t.Errorf("expected default DB_REFRESH_INTERVAL=10s, got %v", c.GetDBRefreshInterval())
	}
}

func TestApplyOverridesOnlyTouchesKnownKeys(t *testing.T) {
	c := LoadFromEnv()
	before := c.WSURI

	c.applyOverrides(map[string]string{
		"WHALE_THRESHOLD": "2.5",
		"UNKNOWN_KEY":     "ignored",
	})

	if c.GetWhaleThreshold() != 2.5 {
		t.Errorf("expected WHALE_THRESHOLD override to apply, got %v", c.GetWhaleThreshold())
	}
	if c.WSURI != before {
		t.Errorf("expected WS_URI to be untouched, got %q", c.WSURI)
	}
}

func TestReadOverrideFileSkipsCommentsAndBlanks(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/.env"
	content := "# comment\n\nBUFFER_SECONDS=300\nWHALE_THRESHOLD=\"3.0\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	overrides, err := readOverrideFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if overrides["BUFFER_SECONDS"] != "300" {
		t.Errorf("expected BUFFER_SECONDS=300, got %q", overrides["BUFFER_SECONDS"])
	}
	if overrides["WHALE_THRESHOLD"] != "3.0" {
		t.Errorf("expected quotes stripped, got %q", overrides["WHALE_THRESHOLD"])
	}
}
