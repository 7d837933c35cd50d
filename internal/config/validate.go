package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate checks every field that is parsed later, so a bad reload is
// rejected before anything is applied.
func Validate(ctx context.Context, cfg *Config) error {
	_ = ctx
	if cfg == nil {
		return fmt.Errorf("%w: nil config", ErrInvalid)
	}
	var errs []error
	if _, err := cfg.Gateway.Settings(); err != nil {
		errs = append(errs, err)
	}

	durations := map[string]string{
		"poll.timeout":              cfg.Poll.Timeout,
		"webhook.retry_base":        cfg.Webhook.RetryBase,
		"webhook.retry_max_delay":   cfg.Webhook.RetryMaxDelay,
		"webhook.connect_timeout":   cfg.Webhook.ConnectTimeout,
		"webhook.read_timeout":      cfg.Webhook.ReadTimeout,
		"webhook.timeout":           cfg.Webhook.Timeout,
		"transport.timeout":         cfg.Transport.Timeout,
		"transport.deliver_timeout": cfg.Transport.DeliverTimeout,
		"storage.busy_timeout":      cfg.Storage.BusyTimeout,
		"server.read_timeout":       cfg.Server.ReadTimeout,
		"server.write_timeout":      cfg.Server.WriteTimeout,
		"server.idle_timeout":       cfg.Server.IdleTimeout,
		"kafka.max_wait":            cfg.Kafka.MaxWait,
	}
	for path, raw := range durations {
		if _, err := ParseDuration(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Transport.Driver)) {
	case "", "log":
	case "http":
		if strings.TrimSpace(cfg.Transport.URL) == "" {
			errs = append(errs, fmt.Errorf("%w: transport.url is required when transport.driver=http", ErrInvalid))
		}
	case "telegram":
		if strings.TrimSpace(cfg.Transport.Telegram.Token) == "" {
			errs = append(errs, fmt.Errorf("%w: transport.telegram.token is required when transport.driver=telegram", ErrInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown transport.driver %q", ErrInvalid, cfg.Transport.Driver))
	}

	if cfg.Server.Enabled {
		addr := strings.TrimSpace(cfg.Server.Addr)
		if addr != "" {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				errs = append(errs, fmt.Errorf("%w: server.addr: %v", ErrInvalid, err))
			}
		}
	}

	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 || strings.TrimSpace(cfg.Kafka.Topic) == "" {
			errs = append(errs, fmt.Errorf("%w: kafka.brokers and kafka.topic are required when kafka.enabled", ErrInvalid))
		}
	}

	if cfg.Logging.Telegram.Enabled && cfg.Logging.Telegram.ChatID == 0 {
		errs = append(errs, fmt.Errorf("%w: logging.telegram.chat_id is required when enabled", ErrInvalid))
	}
	return errors.Join(errs...)
}
