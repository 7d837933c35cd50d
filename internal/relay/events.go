package relay

import "time"

// EventKind identifies a webhook callout.
type EventKind int

const (
	EventPreSend EventKind = iota
	EventPostSuccess
	EventPostFailure
)

// String returns the wire name used in webhook payloads.
func (k EventKind) String() string {
	switch k {
	case EventPreSend:
		return "before_sms"
	case EventPostSuccess:
		return "after_sms_success"
	case EventPostFailure:
		return "after_sms_error"
	default:
		return "unknown"
	}
}

// NotificationEvent describes one pipeline step to a webhook receiver.
type NotificationEvent struct {
	Kind          EventKind
	Destination   string
	Body          string
	Timestamp     time.Time
	Error         string
	CorrelationID string
}

// DispatchEvent is published on the event bus after every dispatch.
// It never carries the message body.
type DispatchEvent struct {
	State         State         `json:"state"`
	Outcome       string        `json:"outcome,omitempty"`
	Destination   string        `json:"destination"`
	CorrelationID string        `json:"correlation_id"`
	Took          time.Duration `json:"took"`
	Error         string        `json:"error,omitempty"`
}
