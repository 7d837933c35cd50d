package storage

import (
	"fmt"
	"strings"

	"smsrelay/internal/relay"
	logx "smsrelay/pkg/logx"
)

// Open initializes the configured ledger store. An empty driver selects the
// in-memory store.
func Open(cfg Config, log logx.Logger) (relay.Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "none", "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}
