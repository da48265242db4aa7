package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
hass:
  url: ws://hass:8123/api/websocket
  token: secret
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Hass.CallTimeout.Duration() != 10*time.Second {
		t.Errorf("CallTimeout = %v", cfg.Hass.CallTimeout.Duration())
	}
	if cfg.Hass.RetryMultiplier != 2.0 {
		t.Errorf("RetryMultiplier = %v", cfg.Hass.RetryMultiplier)
	}
	if cfg.Updater.RefreshInterval.Duration() != time.Minute {
		t.Errorf("RefreshInterval = %v", cfg.Updater.RefreshInterval.Duration())
	}
	if cfg.API.Port != 9090 || cfg.API.Host != "0.0.0.0" {
		t.Errorf("API = %+v", cfg.API)
	}
	if cfg.Scenes.Path != "scenes.yaml" {
		t.Errorf("Scenes.Path = %q", cfg.Scenes.Path)
	}
	if cfg.EventBus.GetWorkers() != 4 || cfg.EventBus.GetQueueSize() != 100 {
		t.Errorf("EventBus defaults = %d/%d", cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())
	}
}

func TestLoadRequiresConnection(t *testing.T) {
	path := writeConfig(t, `
hass:
  url: ws://hass:8123/api/websocket
`)

	if _, err := Load(path); err == nil {
		t.Error("expected error for missing token")
	}
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("HASS_TOKEN", "from-env")

	path := writeConfig(t, `
hass:
  url: "${HASS_URL:ws://localhost:8123/api/websocket}"
  token: "${HASS_TOKEN}"
log:
  level: debug
updater:
  default_delay: 250ms
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Hass.Token != "from-env" {
		t.Errorf("Token = %q", cfg.Hass.Token)
	}
	if cfg.Hass.URL != "ws://localhost:8123/api/websocket" {
		t.Errorf("URL = %q", cfg.Hass.URL)
	}
	if cfg.Updater.DefaultDelay.Duration() != 250*time.Millisecond {
		t.Errorf("DefaultDelay = %v", cfg.Updater.DefaultDelay.Duration())
	}
}
