package relay

import (
	"strings"
	"time"
)

// MessageRequest is one inbound request to deliver Body to Destination.
// It is treated as immutable once constructed.
type MessageRequest struct {
	Destination string
	Body        string
	ReceivedAt  time.Time
}

// NewRequest trims nothing and stamps ReceivedAt with now when zero.
func NewRequest(destination, body string, receivedAt time.Time) MessageRequest {
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	return MessageRequest{Destination: destination, Body: body, ReceivedAt: receivedAt}
}

// Valid reports whether both required fields are non-empty.
func (r MessageRequest) Valid() bool {
	return r.Destination != "" && r.Body != ""
}

// Outcome is the recorded result of a dispatch attempt.
type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeFailed
	OutcomeRateLimited
	OutcomeValidationFailed
)

// String returns the persisted status name. These strings are part of the
// ledger document format and must stay stable.
func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "Sent"
	case OutcomeFailed:
		return "Failed"
	case OutcomeRateLimited:
		return "Rate Limited"
	case OutcomeValidationFailed:
		return "Webhook Failed"
	default:
		return "Unknown"
	}
}

// ParseOutcome maps a persisted status name back to an Outcome.
func ParseOutcome(s string) (Outcome, bool) {
	switch strings.TrimSpace(s) {
	case "Sent":
		return OutcomeSent, true
	case "Failed":
		return OutcomeFailed, true
	case "Rate Limited", "RateLimited":
		return OutcomeRateLimited, true
	case "Webhook Failed", "ValidationFailed":
		return OutcomeValidationFailed, true
	default:
		return 0, false
	}
}

// HistoryEntry is one ledger row. Entries are ordered newest-first.
type HistoryEntry struct {
	Destination string
	Body        string
	Timestamp   time.Time
	Outcome     Outcome
}

// WindowLimit caps Sent deliveries within a trailing window.
type WindowLimit struct {
	Window time.Duration
	Max    int
}

// DeliveryLimits is an immutable snapshot of all window caps.
type DeliveryLimits struct {
	Windows []WindowLimit
}

// DefaultLimits returns 10 per 15 minutes, 50 per hour and 200 per day.
func DefaultLimits() DeliveryLimits {
	return DeliveryLimits{Windows: []WindowLimit{
		{Window: 15 * time.Minute, Max: 10},
		{Window: time.Hour, Max: 50},
		{Window: 24 * time.Hour, Max: 200},
	}}
}

// ValidationMode controls the pre-send webhook.
type ValidationMode string

const (
	ValidationOff      ValidationMode = "off"
	ValidationStrict   ValidationMode = "strict"
	ValidationAdvisory ValidationMode = "advisory"
)

// OperatingMode selects which ingestor is active.
type OperatingMode string

const (
	ModeTriggered OperatingMode = "triggered"
	ModePolled    OperatingMode = "polled"
)

// Settings is the per-dispatch configuration snapshot. Callers read it fresh
// for every dispatch or poll cycle.
type Settings struct {
	Enabled              bool
	AcceptedOriginPrefix string
	ValidationWebhookURL string
	ValidationMode       ValidationMode
	NotificationURL      string
	AuthHeader           string
	Limits               DeliveryLimits
	FetchURL             string
	ForwardURL           string
	OperatingMode        OperatingMode
}

// SettingsSource yields a fresh Settings snapshot.
type SettingsSource func() Settings

// State is a dispatch state. Terminal states are the four rejections plus
// Notified.
type State string

const (
	StateReceived                 State = "received"
	StateRateChecked              State = "rate_checked"
	StateValidated                State = "validated"
	StateValidationSkipped        State = "validation_skipped"
	StateDelivered                State = "delivered"
	StateDeliveryFailed           State = "delivery_failed"
	StateRecorded                 State = "recorded"
	StateNotified                 State = "notified"
	StateRejectedDisabled         State = "rejected_disabled"
	StateRejectedInvalid          State = "rejected_invalid"
	StateRejectedCountryMismatch  State = "rejected_country_mismatch"
	StateRejectedRateLimited      State = "rejected_rate_limited"
	StateRejectedValidationFailed State = "rejected_validation_failed"
)

// Rejected reports whether s is an early-exit policy rejection.
func (s State) Rejected() bool {
	switch s {
	case StateRejectedDisabled, StateRejectedInvalid, StateRejectedCountryMismatch,
		StateRejectedRateLimited, StateRejectedValidationFailed:
		return true
	}
	return false
}

// Result is what Dispatch hands back to its caller.
type Result struct {
	State         State
	Outcome       Outcome
	Recorded      bool
	Entry         HistoryEntry
	CorrelationID string
	Err           error
}

// Sent reports whether the message was handed to the transport successfully.
func (r Result) Sent() bool {
	return r.Recorded && r.Outcome == OutcomeSent
}
