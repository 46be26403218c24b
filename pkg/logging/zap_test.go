package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return FromZap(zap.New(core)), logs
}

func TestNewBuildsBothModes(t *testing.T) {
	for _, production := range []bool{false, true} {
		l, err := New(production)
		if err != nil {
			t.Fatalf("New(%v) returned error: %v", production, err)
		}
		l.Info("hello", "k", "v")
		l.Sync()
	}
}

func TestRedactsSensitiveKeys(t *testing.T) {
	l, logs := observedLogger()

	l.Warn("login failed",
		"user", "ada",
		"password", "hunter2",
		"api_key", "sk-123",
		"authorization", "Bearer abc",
	)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()

	if fields["user"] != "ada" {
		t.Errorf("user = %v, want untouched", fields["user"])
	}
	for _, key := range []string{"password", "api_key", "authorization"} {
		if fields[key] != redactedValue {
			t.Errorf("%s = %v, want %s", key, fields[key], redactedValue)
		}
	}
}

func TestRedactsNestedMaps(t *testing.T) {
	l, logs := observedLogger()

	l.Info("request", "payload", map[string]any{
		"name":  "ada",
		"token": "abc123",
	})

	payload, ok := logs.All()[0].ContextMap()["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload field has unexpected type")
	}
	if payload["name"] != "ada" || payload["token"] != redactedValue {
		t.Errorf("payload = %v", payload)
	}
}

func TestOddTrailingElementSurvives(t *testing.T) {
	l, logs := observedLogger()
	l.Debug("odd", "key1", "v1", "dangling")
	if logs.FilterMessage("odd").Len() != 1 {
		t.Fatalf("entry was dropped")
	}
}

func TestWithAttachesFields(t *testing.T) {
	l, logs := observedLogger()
	child := l.With("component", "repository", "secret", "s3cr3t")
	child.Info("ready")

	fields := logs.All()[0].ContextMap()
	if fields["component"] != "repository" {
		t.Errorf("component = %v", fields["component"])
	}
	if fields["secret"] != redactedValue {
		t.Errorf("secret = %v, want redacted", fields["secret"])
	}
}

func TestLevels(t *testing.T) {
	l, logs := observedLogger()
	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")

	levels := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	entries := logs.All()
	if len(entries) != len(levels) {
		t.Fatalf("entries = %d, want %d", len(entries), len(levels))
	}
	for i, want := range levels {
		if entries[i].Level != want {
			t.Errorf("entry %d level = %s, want %s", i, entries[i].Level, want)
		}
	}
}
