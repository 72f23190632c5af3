package config

import (
	"testing"
)

func TestFlatten_Nested(t *testing.T) {
	m := map[string]any{
		"backend": map[string]any{
			"base_url":        "http://x/api",
			"timeout_seconds": 10.0,
		},
		"log_level": "info",
	}
	got := Flatten(m)
	if got["backend.base_url"] != "http://x/api" {
		t.Errorf("expected backend.base_url=http://x/api, got %v", got["backend.base_url"])
	}
	if got["backend.timeout_seconds"] != 10.0 {
		t.Errorf("expected backend.timeout_seconds=10, got %v", got["backend.timeout_seconds"])
	}
	if got["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", got["log_level"])
	}
	if len(got) != 3 {
		t.Errorf("expected 3 keys, got %d", len(got))
	}
}

func TestFlatten_DeeplyNested(t *testing.T) {
	m := map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c": "deep",
			},
		},
	}
	got := Flatten(m)
	if got["a.b.c"] != "deep" {
		t.Errorf("expected a.b.c=deep, got %v", got["a.b.c"])
	}
	if len(got) != 1 {
		t.Errorf("expected 1 key, got %d", len(got))
	}
}

func TestFlatten_EmptyNestedMap(t *testing.T) {
	got := Flatten(map[string]any{"metrics": map[string]any{}})
	if len(got) != 0 {
		t.Errorf("expected 0 keys (empty nested map produces nothing), got %d", len(got))
	}
}

func TestUnflatten_Nested(t *testing.T) {
	flat := map[string]any{
		"session.poll_interval_ms":  1000.0,
		"session.autosave_quiet_ms": 2000.0,
		"log_level":                 "info",
	}
	got := Unflatten(flat)
	session, ok := got["session"].(map[string]any)
	if !ok {
		t.Fatalf("expected session to be map, got %T", got["session"])
	}
	if session["poll_interval_ms"] != 1000.0 {
		t.Errorf("expected poll_interval_ms=1000, got %v", session["poll_interval_ms"])
	}
	if session["autosave_quiet_ms"] != 2000.0 {
		t.Errorf("expected autosave_quiet_ms=2000, got %v", session["autosave_quiet_ms"])
	}
	if got["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", got["log_level"])
	}
}

func TestUnflatten_ScalarReplacedByMap(t *testing.T) {
	flat := map[string]any{
		"slack":             "legacy",
		"slack.webhook_url": "https://hooks",
	}
	got := Unflatten(flat)
	if _, ok := got["slack"]; !ok {
		t.Fatal("expected slack key")
	}
}

func TestRoundTrip_FlattenUnflatten(t *testing.T) {
	original := map[string]any{
		"data_dir": "/home/test/.promptline",
		"telegram": map[string]any{
			"token":   "bot-token-abc",
			"chat_id": 42.0,
		},
		"slack": map[string]any{
			"webhook_url": "https://hooks.slack.com/services/x",
		},
	}

	restored := Unflatten(Flatten(original))

	if restored["data_dir"] != original["data_dir"] {
		t.Errorf("data_dir mismatch: %v != %v", restored["data_dir"], original["data_dir"])
	}
	tg := restored["telegram"].(map[string]any)
	if tg["token"] != "bot-token-abc" || tg["chat_id"] != 42.0 {
		t.Errorf("telegram mismatch: %v", tg)
	}
	slack := restored["slack"].(map[string]any)
	if slack["webhook_url"] != "https://hooks.slack.com/services/x" {
		t.Errorf("slack.webhook_url mismatch: %v", slack["webhook_url"])
	}
}

func TestMaskSecrets(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
		want  any
	}{
		{"long secret", "telegram.token", "123456:ABCdefGHIjkl", "***Ijkl"},
		{"webhook", "slack.webhook_url", "https://hooks.slack.com/services/T/B/abcd", "***abcd"},
		{"short secret", "telegram.token", "ab", "***ab"},
		{"exactly four", "telegram.token", "abcd", "***abcd"},
		{"empty secret", "telegram.token", "", ""},
		{"not a secret", "backend.base_url", "http://localhost:5000/api", "http://localhost:5000/api"},
		{"numeric non-secret", "telegram.chat_id", 42.0, 42.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaskSecrets(map[string]any{tt.key: tt.value})
			if got[tt.key] != tt.want {
				t.Errorf("MaskSecrets(%s=%v) = %v, want %v", tt.key, tt.value, got[tt.key], tt.want)
			}
		})
	}
}

func TestIsSecretKey(t *testing.T) {
	if !IsSecretKey("telegram.token") || !IsSecretKey("slack.webhook_url") {
		t.Error("expected telegram.token and slack.webhook_url to be secret")
	}
	if IsSecretKey("telegram.chat_id") {
		t.Error("telegram.chat_id is not secret")
	}
}
