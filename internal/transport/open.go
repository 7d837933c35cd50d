package transport

import (
	"fmt"
	"strings"

	"smsrelay/internal/relay"
	logx "smsrelay/pkg/logx"
)

// Open builds the configured driver.
func Open(cfg Config, log logx.Logger) (relay.Deliverer, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch d := strings.ToLower(strings.TrimSpace(cfg.Driver)); d {
	case "", "log":
		return NewLog(log), nil
	case "http":
		return NewHTTP(cfg, log)
	case "telegram":
		return NewTelegram(cfg.Telegram, log)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, d)
	}
}
