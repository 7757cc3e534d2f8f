package logger

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/docstore/internal/version"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		env     string
		level   string
		want    zapcore.Level
		wantErr bool
	}{
		{env: "local", want: zapcore.DebugLevel},
		{env: "prod", want: zapcore.InfoLevel},
		{env: "prod", level: "warn", want: zapcore.WarnLevel},
		{env: "dev", level: "error", want: zapcore.ErrorLevel},
		{env: "staging", wantErr: true},
		{env: "local", level: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.env+"/"+tt.level, func(t *testing.T) {
			l, err := NewLogger(tt.env, tt.level)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !l.Core().Enabled(tt.want) {
				t.Errorf("level %s should be enabled", tt.want)
			}
			if tt.want > zapcore.DebugLevel && l.Core().Enabled(tt.want-1) {
				t.Errorf("level %s should be disabled", tt.want-1)
			}
		})
	}
}

func TestNewConfig_ServiceFieldsAndTimeFormat(t *testing.T) {
	cfg, err := newConfig("prod", "")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.InitialFields["service"] != Service || cfg.InitialFields["version"] != version.Version {
		t.Errorf("initial fields: got %v", cfg.InitialFields)
	}
	if cfg.Encoding != "json" {
		t.Errorf("encoding: got %q, want json", cfg.Encoding)
	}

	enc := zapcore.NewJSONEncoder(cfg.EncoderConfig)
	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	buf, err := enc.EncodeEntry(zapcore.Entry{Level: zapcore.InfoLevel, Time: at, Message: "hello"}, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if line := buf.String(); !strings.Contains(line, `"ts":"2024-05-01T12:30:00Z"`) {
		t.Errorf("timestamp not RFC 3339: %s", line)
	}

	dev, err := newConfig("dev", "")
	if err != nil {
		t.Fatalf("dev config: %v", err)
	}
	if dev.Encoding != "console" || dev.InitialFields["service"] != Service {
		t.Errorf("dev config: encoding %q, fields %v", dev.Encoding, dev.InitialFields)
	}
}

func TestContextCarrier(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected nop logger for empty context")
	}
	l := zap.NewExample()
	ctx := WithLogger(context.Background(), l)
	if FromContext(ctx) != l {
		t.Error("expected stored logger")
	}
}

func TestWithFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))
	ctx = WithFields(ctx, zap.String("request_id", "r-1"))
	ctx = WithFields(ctx, zap.String("collection", "users"))

	FromContext(ctx).Info("inside")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "r-1" || fields["collection"] != "users" {
		t.Errorf("fields: got %v", fields)
	}
}
