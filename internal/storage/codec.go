package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"smsrelay/internal/relay"
)

// Record is one ledger row in the persisted layout.
type Record struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
	TimestampMS int64  `json:"timestamp_ms"`
	Status      string `json:"status"`
}

func ToRecords(entries []relay.HistoryEntry) []Record {
	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		out = append(out, Record{
			PhoneNumber: e.Destination,
			Message:     e.Body,
			TimestampMS: e.Timestamp.UnixMilli(),
			Status:      e.Outcome.String(),
		})
	}
	return out
}

// Encode renders entries as the persisted JSON document.
func Encode(entries []relay.HistoryEntry) ([]byte, error) {
	return json.Marshal(ToRecords(entries))
}

// Decode parses a persisted document. An empty document is an empty ledger.
// Rows with an unknown status are rejected so a corrupt file is not silently
// reinterpreted.
func Decode(b []byte) ([]relay.HistoryEntry, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, nil
	}
	var recs []Record
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	out := make([]relay.HistoryEntry, 0, len(recs))
	for i, r := range recs {
		o, ok := relay.ParseOutcome(r.Status)
		if !ok {
			return nil, fmt.Errorf("decode ledger: entry %d: unknown status %q", i, r.Status)
		}
		out = append(out, relay.HistoryEntry{
			Destination: r.PhoneNumber,
			Body:        r.Message,
			Timestamp:   time.UnixMilli(r.TimestampMS),
			Outcome:     o,
		})
	}
	return out, nil
}
