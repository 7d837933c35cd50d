package storage

import (
	"errors"
	"time"
)

var (
	ErrClosed        = errors.New("storage closed")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

// Config configures the ledger store.
//
// Driver values:
//   - "" / "none" / "memory": in-process only, nothing survives a restart
//   - "file": one JSON document, replaced via temp file + rename
//   - "sqlite": single-row table in a SQLite database file
//   - "redis": single key holding the JSON document
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	Redis RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string // default "smsrelay:ledger"
}
