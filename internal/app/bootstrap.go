package app

import (
	"context"
	"errors"
	"strings"

	"smsrelay/internal/config"
	"smsrelay/internal/transport"
	logx "smsrelay/pkg/logx"
)

// validateConfig runs the config package checks plus every mapping the app
// performs, so a reload that would fail to apply is rejected up front.
func validateConfig(ctx context.Context, cfg *config.Config) error {
	errs := []error{config.Validate(ctx, cfg)}
	if _, err := mapStorageConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapWebhookConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := mapTransportConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapPollConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapServerConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := mapKafkaConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// newLogSender builds the Telegram client behind the log sink. It is nil when
// Telegram logging is off or no bot token is configured.
func newLogSender(cfg *config.Config, log logx.Logger) logx.TextSender {
	if !cfg.Logging.Telegram.Enabled {
		return nil
	}
	tc := cfg.Transport.Telegram
	if strings.TrimSpace(tc.Token) == "" {
		log.Warn("logging.telegram enabled but transport.telegram.token is empty")
		return nil
	}
	tg, err := transport.NewTelegram(transport.TelegramConfig{
		Token:  strings.TrimSpace(tc.Token),
		APIURL: strings.TrimSpace(tc.APIURL),
	}, log)
	if err != nil {
		log.Warn("telegram log sink unavailable", logx.Err(err))
		return nil
	}
	return tg
}
