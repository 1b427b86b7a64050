package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
mode: debug
port: 9090
auth:
  secret: s3cret
sfu:
  driver: kurento
  kms_url: ws://kms:8888/kurento
signal:
  broadcast_scope: global
  offer_timeout: 3s
ice:
  servers:
    - urls: ["stun:stun.example.org:3478"]
    - urls: ["turn:turn.example.org:3478"]
      username: u
      credential: p
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "debug" || cfg.Port != 9090 {
		t.Fatalf("mode/port = %s/%d", cfg.Mode, cfg.Port)
	}
	if cfg.SFU.Driver != "kurento" || cfg.SFU.KMSURL != "ws://kms:8888/kurento" {
		t.Fatalf("sfu = %+v", cfg.SFU)
	}
	if cfg.Signal.BroadcastScope != "global" || cfg.Signal.OfferTimeout != 3*time.Second {
		t.Fatalf("signal = %+v", cfg.Signal)
	}
	if cfg.Signal.Backpressure != "kick" || cfg.Signal.PingPeriod != 54*time.Second || cfg.Signal.RateInterval != time.Second {
		t.Fatalf("signal defaults = %+v", cfg.Signal)
	}
	if len(cfg.ICE.Servers) != 2 || cfg.ICE.Servers[1].Username != "u" || cfg.ICE.Servers[1].URLs[0] != "turn:turn.example.org:3478" {
		t.Fatalf("ice = %+v", cfg.ICE)
	}
	if cfg.Redis.Enabled || cfg.Redis.TTL != 24*time.Hour {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "auth:\n  secret: from-file\n")
	t.Setenv("VOICEGATE_AUTH_SECRET", "from-env")
	t.Setenv("VOICEGATE_SIGNAL_RATE_LIMIT", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.Secret != "from-env" || cfg.Signal.RateLimit != 7 {
		t.Fatalf("auth=%q rate=%d", cfg.Auth.Secret, cfg.Signal.RateLimit)
	}
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, `
sfu:
  driver: janus
signal:
  broadcast_scope: galaxy
  backpressure: explode
`)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("invalid config accepted")
	}
	for _, want := range []string{"sfu.driver", "broadcast_scope", "backpressure", "auth.secret"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("VOICEGATE_AUTH_SECRET", "x")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SFU.Driver != "embedded" || cfg.Port != 8080 || len(cfg.ICE.Servers) != 1 {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestMalformedFileFails(t *testing.T) {
	path := writeConfig(t, "port: [unterminated\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("malformed config accepted")
	}
}
