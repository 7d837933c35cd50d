// Package storage persists the history ledger document.
//
// Every driver stores the same JSON array (newest first) and replaces it as a
// whole on each save, so readers never observe a partially written ledger.
package storage
