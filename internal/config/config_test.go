package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.Port)
	}
	if cfg.Snake.Tick != 150*time.Millisecond || cfg.Snake.GridSize != 20 {
		t.Fatalf("snake = %+v, want 150ms on a 20 grid", cfg.Snake)
	}
	if cfg.Store.Driver != "memory" {
		t.Fatalf("store driver = %q, want memory", cfg.Store.Driver)
	}
	if len(cfg.WebRTC.ICEServers) != 1 || cfg.WebRTC.ICEServers[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Fatalf("ice servers = %+v, want default stun", cfg.WebRTC.ICEServers)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	body := `
port: 9090
room:
  backpressure: kick
  idle_timeout: 2m
store:
  driver: sqlite
  path: /tmp/x.db
webrtc:
  ice_servers:
    - urls: ["turn:turn.example.com:3478"]
      username: u
      credential: p
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PLAYROOM_INVITE_TTL", "10m")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 || cfg.Room.Backpressure != "kick" || cfg.Room.IdleTimeout != 2*time.Minute {
		t.Fatalf("cfg = %+v, want file overrides", cfg)
	}
	if cfg.Invite.TTL != 10*time.Minute {
		t.Fatalf("invite ttl = %v, want 10m from env", cfg.Invite.TTL)
	}
	if s := cfg.WebRTC.ICEServers[0]; s.Username != "u" || s.Credential != "p" {
		t.Fatalf("ice server = %+v, want turn credentials", s)
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("store:\n  driver: postgres\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected unknown driver to be rejected")
	}
}

func TestValidateSessionSecret(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"dev defaults", "", false},
		{"release with default secret", "mode: release\n", true},
		{"jwt with default secret", "auth:\n  jwt_secret: jwt\n", true},
		{"jwt with empty secret", "secret: \"\"\nauth:\n  jwt_secret: jwt\n", true},
		{"jwt with private secret", "secret: s3cr3t\nauth:\n  jwt_secret: jwt\n", false},
		{"release with private secret", "mode: release\nsecret: s3cr3t\n", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tc.body), 0o600); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, err := LoadFile(path)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
