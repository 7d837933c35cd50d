package relay

import (
	"context"
	"sync"

	"smsrelay/internal/metrics"
	logx "smsrelay/pkg/logx"
)

// DefaultLedgerCapacity is the number of entries the ledger retains.
const DefaultLedgerCapacity = 10

// Store persists the whole ledger document. Implementations must replace the
// stored document atomically.
type Store interface {
	Load(ctx context.Context) ([]HistoryEntry, error)
	Save(ctx context.Context, entries []HistoryEntry) error
	Clear(ctx context.Context) error
	Close() error
}

// Ledger is a bounded, newest-first log of dispatch outcomes.
//
// All mutations and reads go through mu, so concurrent appends from the
// trigger and poll paths are serialized and Snapshot never observes a
// partial write.
type Ledger struct {
	mu       sync.Mutex
	capacity int
	entries  []HistoryEntry
	store    Store
	log      logx.Logger
}

func NewLedger(capacity int, store Store, log logx.Logger) *Ledger {
	if capacity <= 0 {
		capacity = DefaultLedgerCapacity
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Ledger{capacity: capacity, store: store, log: log}
}

// Load replaces the in-memory entries with the stored document.
func (l *Ledger) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	entries, err := l.store.Load(ctx)
	if err != nil {
		return err
	}
	if len(entries) > l.capacity {
		entries = entries[:l.capacity]
	}
	l.mu.Lock()
	l.entries = append([]HistoryEntry(nil), entries...)
	n := len(l.entries)
	l.mu.Unlock()
	metrics.LedgerEntries.Set(float64(n))
	return nil
}

// Append inserts e at the head and evicts the oldest entry beyond capacity.
// The entry is kept in memory even if persisting fails; the store error is
// returned for logging.
func (l *Ledger) Append(ctx context.Context, e HistoryEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := make([]HistoryEntry, 0, min(len(l.entries)+1, l.capacity))
	next = append(next, e)
	for _, old := range l.entries {
		if len(next) >= l.capacity {
			break
		}
		next = append(next, old)
	}
	l.entries = next
	metrics.LedgerEntries.Set(float64(len(next)))

	if l.store == nil {
		return nil
	}
	if err := l.store.Save(ctx, append([]HistoryEntry(nil), next...)); err != nil {
		l.log.Warn("ledger persist failed", logx.Err(err), logx.Int("entries", len(next)))
		return err
	}
	return nil
}

// Snapshot returns a copy of the entries, newest first.
func (l *Ledger) Snapshot() []HistoryEntry {
	l.mu.Lock()
	out := append([]HistoryEntry(nil), l.entries...)
	l.mu.Unlock()
	return out
}

// Clear drops all entries.
func (l *Ledger) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	metrics.LedgerEntries.Set(0)
	if l.store == nil {
		return nil
	}
	return l.store.Clear(ctx)
}

func (l *Ledger) Capacity() int { return l.capacity }
