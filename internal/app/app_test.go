package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"smsrelay/internal/config"
	"smsrelay/internal/relay"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestAppTriggerThenHotReloadToPolled(t *testing.T) {
	var served atomic.Int32
	fetch := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if served.Add(1) == 1 {
			_, _ = io.WriteString(w, `{"to":"+923009","message":"polled"}`)
		}
	}))
	defer fetch.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	historyPath := filepath.Join(dir, "history.json")
	base := `
gateway:
  enabled: true
  country: "+92"
  operating_mode: %s
  fetch_url: %s
poll:
  schedule: 50ms
storage:
  driver: file
  path: %s
logging:
  level: error
`
	writeConfig(t, path, fmt.Sprintf(base, "triggered", fetch.URL, historyPath))

	a, err := NewApp(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatal(err)
	}

	res := a.trig.Handle(ctx, relay.NewRequest("+923001", "hello", time.Time{}))
	if !res.Sent() {
		t.Fatalf("trigger not sent: %+v", res)
	}
	if a.poll.Running() {
		t.Fatal("poll loop should be idle in triggered mode")
	}

	// Give the watcher time to register before editing.
	time.Sleep(200 * time.Millisecond)
	writeConfig(t, path, fmt.Sprintf(base, "periodic", fetch.URL, historyPath))

	waitFor(t, "polled dispatch", func() bool { return len(a.ledger.Snapshot()) == 2 })
	got := a.ledger.Snapshot()
	if got[0].Destination != "+923009" || got[1].Destination != "+923001" {
		t.Fatalf("ledger = %+v", got)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopSignal); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(historyPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"phoneNumber":"+923009"`) {
		t.Fatalf("history not persisted: %s", b)
	}
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tests := map[string]string{
		"bad schedule": `{"poll": {"schedule": "sometimes"}}`,
		"bad timezone": `{"poll": {"timezone": "Mars/Olympus"}}`,
		"bad storage":  `{"storage": {"driver": "tape"}}`,
		"sqlite path":  `{"storage": {"driver": "sqlite"}}`,
		"redis addr":   `{"storage": {"driver": "redis"}}`,
		"negative":     `{"webhook": {"workers": -1}}`,
	}
	for name, body := range tests {
		p := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".json")
		writeConfig(t, p, body)
		if _, err := NewApp(p); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in     config.StorageConfig
		driver string
		path   string
		busy   time.Duration
	}{
		{in: config.StorageConfig{}, driver: "memory"},
		{in: config.StorageConfig{Driver: "none"}, driver: "memory"},
		{in: config.StorageConfig{Driver: "file"}, driver: "file", path: "./smsrelay-history.json"},
		{in: config.StorageConfig{Driver: "SQLite", Path: "x.db"}, driver: "sqlite", path: "x.db", busy: time.Second},
		{in: config.StorageConfig{Driver: "sqlite3", Path: "x.db", BusyTimeout: "3s"}, driver: "sqlite3", path: "x.db", busy: 3 * time.Second},
	}
	for _, tt := range tests {
		got, err := mapStorageConfig(&config.Config{Storage: tt.in})
		if err != nil {
			t.Fatalf("%+v: %v", tt.in, err)
		}
		if got.Driver != tt.driver || got.Path != tt.path || got.BusyTimeout != tt.busy {
			t.Fatalf("%+v: got %+v", tt.in, got)
		}
	}
}

func TestMapKafkaAndServerDefaults(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Kafka: config.KafkaConfig{Enabled: true, Brokers: []string{"b:9092"}, Topic: " sms ", MaxWait: "250ms"}}
	kc, enabled, err := mapKafkaConfig(cfg)
	if err != nil || !enabled {
		t.Fatalf("mapKafkaConfig = %v, %v", enabled, err)
	}
	if kc.Topic != "sms" || kc.GroupID != "smsrelay" || kc.MaxWait != 250*time.Millisecond {
		t.Fatalf("kafka = %+v", kc)
	}

	sc, err := mapServerConfig(&config.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if sc.ReadTimeout != 10*time.Second || sc.WriteTimeout != 40*time.Second || sc.IdleTimeout != time.Minute {
		t.Fatalf("server = %+v", sc)
	}
}
