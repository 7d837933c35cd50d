package poll

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"smsrelay/internal/relay"
)

var ErrEmptyRequest = errors.New("poll response missing to or message")

type wireRequest struct {
	To          string `json:"to"`
	Message     string `json:"message"`
	TimestampMS int64  `json:"timestamp_ms,omitempty"`
}

// ParseRequest decodes one fetched item: a single JSON object
// {to, message, timestamp_ms?}. Extra fields are ignored; trailing data is
// not. Both to and message must be non-empty; they are passed on verbatim so
// the prefix check sees exactly what the remote served.
func ParseRequest(b []byte, now time.Time) (relay.MessageRequest, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	var w wireRequest
	if err := dec.Decode(&w); err != nil {
		return relay.MessageRequest{}, fmt.Errorf("decode poll response: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return relay.MessageRequest{}, errors.New("decode poll response: trailing data")
	}
	if w.To == "" || w.Message == "" {
		return relay.MessageRequest{}, ErrEmptyRequest
	}
	at := now
	if w.TimestampMS > 0 {
		at = time.UnixMilli(w.TimestampMS)
	}
	return relay.NewRequest(w.To, w.Message, at), nil
}
