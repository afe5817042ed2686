package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/acorn-pups/dbinfra/pkg/config"
	obszap "github.com/acorn-pups/dbinfra/pkg/observability/zap"

	"github.com/acorn-pups/dbinfra/pkg/observability"
)

func TestLogger_DefaultIsNoOp(t *testing.T) {
	got := Logger()
	if got == nil {
		t.Fatal("expected Logger() to return a non-nil logger")
	}
	if !got.IsHealthy() {
		t.Fatal("expected default logger to be healthy")
	}
}

func TestLogger_SetLogger(t *testing.T) {
	stub := observability.NewTestLogger()
	SetLogger(stub)
	t.Cleanup(func() { SetLogger(nil) })

	if Logger() != stub {
		t.Fatal("expected Logger() to return the logger set via SetLogger")
	}

	Component("publish").Info("published")
	entries := stub.Entries()
	if len(entries) != 1 || entries[0].Component != "publish" {
		t.Fatalf("expected scoped entry, got %#v", entries)
	}

	SetLogger(nil)
	if Logger() == nil {
		t.Fatal("expected Logger() to reset to a non-nil logger")
	}
	if Logger() == observability.StructuredLogger(stub) {
		t.Fatal("expected Logger() to reset away from the previous logger")
	}
}

func TestSanitizeFieldValue_Delegates(t *testing.T) {
	if got := SanitizeFieldValue("session_token", "abc"); got != "[REDACTED]" {
		t.Fatalf("expected redaction, got %#v", got)
	}
}

func TestInit_InstallsScopedZapLogger(t *testing.T) {
	t.Setenv("ACORN_PUPS_ERROR_TOPIC_ARN", "")
	t.Setenv("ERROR_NOTIFICATIONS_TOPIC_ARN", "")
	t.Cleanup(func() { SetLogger(nil) })

	cfg := config.Default()
	cfg.Environment = "prod"
	cfg.Log.Format = "json"

	var buf bytes.Buffer
	l, err := Init(context.Background(), cfg, obszap.WithOutput(zapcore.AddSync(&buf)))
	if err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	if Logger() != l {
		t.Fatal("expected Init to install the global logger")
	}

	Component("provision").Info("table applied", map[string]any{"secret_access_key": "abc"})
	if err := l.Flush(context.Background()); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected one json line, got %q: %v", buf.String(), err)
	}
	if line["app"] != "acorn-pups" || line["environment"] != "prod" || line["component"] != "provision" {
		t.Fatalf("unexpected scope fields: %#v", line)
	}
	if line["secret_access_key"] != "[REDACTED]" {
		t.Fatalf("expected credentials to be redacted, got %#v", line["secret_access_key"])
	}
}

func TestInit_RejectsUnknownFormat(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Format = "xml"
	if _, err := Init(context.Background(), cfg); err == nil {
		t.Fatal("expected an error for an unsupported log format")
	}
}
