package transport

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnknownDriver = errors.New("unknown transport driver")

// DeliveryError is a failed hand-off to the physical send primitive.
type DeliveryError struct {
	Destination string
	Status      int // HTTP status when the driver talks HTTP, else 0
	Err         error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("deliver to %s: status %d: %v", e.Destination, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("deliver to %s: status %d", e.Destination, e.Status)
	default:
		return fmt.Sprintf("deliver to %s: %v", e.Destination, e.Err)
	}
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Config selects and configures the delivery driver.
//
// Driver values:
//   - "" / "log": dry run, logs and succeeds
//   - "http": POST {to, message} to URL
//   - "telegram": Destination is a numeric chat id
type Config struct {
	Driver     string
	URL        string
	AuthHeader string
	Timeout    time.Duration

	Telegram TelegramConfig
}

type TelegramConfig struct {
	Token     string
	APIURL    string // default https://api.telegram.org
	ParseMode string
}
