package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"smsrelay/internal/relay"
	logx "smsrelay/pkg/logx"
)

func sampleEntries() []relay.HistoryEntry {
	ts := time.UnixMilli(1700000000123)
	return []relay.HistoryEntry{
		{Destination: "+923001", Body: "newest", Timestamp: ts.Add(time.Minute), Outcome: relay.OutcomeSent},
		{Destination: "+923002", Body: "mid", Timestamp: ts, Outcome: relay.OutcomeRateLimited},
		{Destination: "+923003", Body: "oldest", Timestamp: ts.Add(-time.Minute), Outcome: relay.OutcomeValidationFailed},
	}
}

func TestEncodeUsesPersistedLayout(t *testing.T) {
	t.Parallel()
	b, err := Encode(sampleEntries()[1:2])
	if err != nil {
		t.Fatal(err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	if len(raw) != 1 {
		t.Fatalf("len = %d", len(raw))
	}
	row := raw[0]
	for _, k := range []string{"phoneNumber", "message", "timestamp_ms", "status"} {
		if _, ok := row[k]; !ok {
			t.Fatalf("missing key %q in %v", k, row)
		}
	}
	if row["status"] != "Rate Limited" {
		t.Fatalf("status = %v", row["status"])
	}
	if row["timestamp_ms"].(float64) != 1700000000123 {
		t.Fatalf("timestamp_ms = %v", row["timestamp_ms"])
	}
}

func TestDecodeRejectsUnknownStatus(t *testing.T) {
	t.Parallel()
	_, err := Decode([]byte(`[{"phoneNumber":"+1","message":"m","timestamp_ms":1,"status":"Queued"}]`))
	if err == nil {
		t.Fatal("expected error for unknown status")
	}
	entries, err := Decode([]byte("  "))
	if err != nil || entries != nil {
		t.Fatalf("empty document: %v %v", entries, err)
	}
}

func TestDrivers(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  func(dir string) Config
	}{
		{name: "memory", cfg: func(string) Config { return Config{} }},
		{name: "file", cfg: func(dir string) Config { return Config{Driver: "file", Path: filepath.Join(dir, "ledger.json")} }},
		{name: "sqlite", cfg: func(dir string) Config {
			return Config{Driver: "sqlite", Path: filepath.Join(dir, "ledger.db"), BusyTimeout: time.Second}
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st, err := Open(tt.cfg(t.TempDir()), logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer st.Close()

			got, err := st.Load(ctx)
			if err != nil || len(got) != 0 {
				t.Fatalf("fresh Load = %v, %v", got, err)
			}

			want := sampleEntries()
			if err := st.Save(ctx, want); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if err := st.Save(ctx, want); err != nil {
				t.Fatalf("second Save: %v", err)
			}
			got, err = st.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(got) != len(want) {
				t.Fatalf("len = %d, want %d", len(got), len(want))
			}
			for i := range want {
				if got[i].Destination != want[i].Destination ||
					got[i].Body != want[i].Body ||
					got[i].Outcome != want[i].Outcome ||
					!got[i].Timestamp.Equal(want[i].Timestamp) {
					t.Fatalf("entry %d = %+v, want %+v", i, got[i], want[i])
				}
			}

			if err := st.Clear(ctx); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			got, err = st.Load(ctx)
			if err != nil || len(got) != 0 {
				t.Fatalf("after Clear = %v, %v", got, err)
			}
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "ledger.json")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Save(ctx, sampleEntries()); err != nil {
		t.Fatal(err)
	}
	_ = st.Close()
	if err := st.Save(ctx, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Save after Close = %v, want ErrClosed", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temp file should have been renamed away")
	}

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st2.Close()
	got, err := st2.Load(ctx)
	if err != nil || len(got) != 3 || got[0].Body != "newest" {
		t.Fatalf("reopened Load = %+v, %v", got, err)
	}
}

func TestLedgerHydratesFromStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "l.json")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	l := relay.NewLedger(relay.DefaultLedgerCapacity, st, logx.Nop())
	for _, e := range sampleEntries() {
		if err := l.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	l2 := relay.NewLedger(relay.DefaultLedgerCapacity, st, logx.Nop())
	if err := l2.Load(ctx); err != nil {
		t.Fatal(err)
	}
	snap := l2.Snapshot()
	if len(snap) != 3 || snap[0].Body != "oldest" {
		t.Fatalf("unexpected hydrated ledger %+v", snap)
	}
}

func TestOpenValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "unknown driver", cfg: Config{Driver: "mongo"}},
		{name: "file without path", cfg: Config{Driver: "file"}},
		{name: "sqlite without path", cfg: Config{Driver: "sqlite"}},
		{name: "redis without addr", cfg: Config{Driver: "redis"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Open(tt.cfg, logx.Nop()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("err = %v, want ErrUnknownDriver", err)
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("SMSRELAY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SMSRELAY_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	st, err := Open(Config{Driver: "redis", Redis: RedisConfig{Addr: addr, Key: "smsrelay:test:" + t.Name()}}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	defer st.Clear(ctx)

	if err := st.Save(ctx, sampleEntries()); err != nil {
		t.Fatal(err)
	}
	got, err := st.Load(ctx)
	if err != nil || len(got) != 3 {
		t.Fatalf("Load = %+v, %v", got, err)
	}
}
