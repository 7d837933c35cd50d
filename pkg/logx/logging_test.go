package logx

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestWriterLoggerStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "relay"))
	log.Info("dispatched", String("outcome", "Sent"), Int("count", 2))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal log line: %v (%q)", err, buf.String())
	}
	if m["comp"] != "relay" || m["outcome"] != "Sent" || m["message"] != "dispatched" {
		t.Fatalf("unexpected fields: %v", m)
	}
}

func TestWriterLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug to be filtered, got %q", buf.String())
	}
	if log.Enabled(LevelDebug) {
		t.Fatal("debug should not be enabled at warn level")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Error("no panic")
	Nop().Info("no panic either")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARNING ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatAlert(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		line string
		want string
	}{
		{
			name: "fields sorted",
			line: `{"level":"warn","message":"webhook failed","status":502,"cid":"c1","caller":"x.go:1"}`,
			want: "smsrelay [WARN] webhook failed\ncid=c1\nstatus=502",
		},
		{
			name: "body withheld",
			line: `{"level":"error","message":"delivery failed","to":"+92300","body":"secret text"}`,
			want: "smsrelay [ERROR] delivery failed\nto=+92300",
		},
		{name: "not json", line: "plain text\n", want: "plain text"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := formatAlert([]byte(tt.line)); got != tt.want {
				t.Fatalf("formatAlert = %q, want %q", got, tt.want)
			}
		})
	}
}
