package webhook

import (
	"errors"
	"fmt"
	"time"

	"smsrelay/internal/relay"
)

var (
	ErrQueueFull = errors.New("webhook queue full")
	ErrStopped   = errors.New("webhook notifier stopped")
)

// StatusError is returned for a non-2xx webhook response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook %s: unexpected status %d", e.URL, e.Code)
}

// Config controls the async notification pipeline and the HTTP client.
type Config struct {
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration

	ConnectTimeout time.Duration // dialer, default 10s
	ReadTimeout    time.Duration // response header, default 10s
	Timeout        time.Duration // whole request, default 30s
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// IdentitySource returns the push subscriber id attached to payloads as
// onesignal_id. An empty string omits the field.
type IdentitySource func() string

// Payload is the JSON body POSTed to webhook receivers.
type Payload struct {
	Event         string `json:"event"`
	Destination   string `json:"destination"`
	Body          string `json:"body"`
	TimestampMS   int64  `json:"timestamp_ms"`
	OneSignalID   string `json:"onesignal_id,omitempty"`
	Error         string `json:"error,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func NewPayload(ev relay.NotificationEvent, identity string) Payload {
	return Payload{
		Event:         ev.Kind.String(),
		Destination:   ev.Destination,
		Body:          ev.Body,
		TimestampMS:   ev.Timestamp.UnixMilli(),
		OneSignalID:   identity,
		Error:         ev.Error,
		CorrelationID: ev.CorrelationID,
	}
}

// Event is published on the bus when a notification is dropped or fails.
type Event struct {
	URL           string    `json:"url"`
	Kind          string    `json:"kind"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	At            time.Time `json:"at"`
	Error         string    `json:"error,omitempty"`
}
