package app

import (
	"fmt"
	"strings"
	"time"

	"smsrelay/internal/config"
	"smsrelay/internal/poll"
	"smsrelay/internal/server"
	"smsrelay/internal/transport"
	"smsrelay/internal/trigger"
	"smsrelay/internal/webhook"
	logx "smsrelay/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			ChatID:     lc.Telegram.ChatID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func mapWebhookConfig(cfg *config.Config) (webhook.Config, error) {
	wc := cfg.Webhook
	if wc.Workers < 0 || wc.QueueSize < 0 || wc.RatePerSec < 0 || wc.RetryMax < 0 {
		return webhook.Config{}, fmt.Errorf("webhook: workers, queue_size, rate_per_sec and retry_max must be >= 0")
	}
	out := webhook.Config{
		Workers:    wc.Workers,
		QueueSize:  wc.QueueSize,
		RatePerSec: wc.RatePerSec,
		RetryMax:   wc.RetryMax,
	}
	var err error
	if out.RetryBase, err = config.ParseDuration("webhook.retry_base", wc.RetryBase); err != nil {
		return webhook.Config{}, err
	}
	if out.RetryMaxDelay, err = config.ParseDuration("webhook.retry_max_delay", wc.RetryMaxDelay); err != nil {
		return webhook.Config{}, err
	}
	if out.ConnectTimeout, err = config.ParseDuration("webhook.connect_timeout", wc.ConnectTimeout); err != nil {
		return webhook.Config{}, err
	}
	if out.ReadTimeout, err = config.ParseDuration("webhook.read_timeout", wc.ReadTimeout); err != nil {
		return webhook.Config{}, err
	}
	if out.Timeout, err = config.ParseDuration("webhook.timeout", wc.Timeout); err != nil {
		return webhook.Config{}, err
	}
	return out, nil
}

func mapTransportConfig(cfg *config.Config) (transport.Config, time.Duration, error) {
	tc := cfg.Transport
	timeout, err := config.ParseDuration("transport.timeout", tc.Timeout)
	if err != nil {
		return transport.Config{}, 0, err
	}
	deliver, err := config.DurationOr("transport.deliver_timeout", tc.DeliverTimeout, 30*time.Second)
	if err != nil {
		return transport.Config{}, 0, err
	}
	return transport.Config{
		Driver:     strings.TrimSpace(tc.Driver),
		URL:        strings.TrimSpace(tc.URL),
		AuthHeader: tc.Auth,
		Timeout:    timeout,
		Telegram: transport.TelegramConfig{
			Token:     strings.TrimSpace(tc.Telegram.Token),
			APIURL:    strings.TrimSpace(tc.Telegram.APIURL),
			ParseMode: tc.Telegram.ParseMode,
		},
	}, deliver, nil
}

func mapPollConfig(cfg *config.Config) (poll.Config, error) {
	pc := cfg.Poll
	timeout, err := config.DurationOr("poll.timeout", pc.Timeout, 10*time.Second)
	if err != nil {
		return poll.Config{}, err
	}
	var loc *time.Location
	if tz := strings.TrimSpace(pc.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return poll.Config{}, fmt.Errorf("poll.timezone: invalid %q: %w", tz, err)
		}
	}
	if _, _, err := poll.NewSchedule(pc.Schedule, loc); err != nil {
		return poll.Config{}, fmt.Errorf("poll.schedule: %w", err)
	}
	return poll.Config{Schedule: pc.Schedule, Timeout: timeout, Location: loc}, nil
}

func mapServerConfig(cfg *config.Config) (server.Config, error) {
	sc := cfg.Server
	out := server.Config{
		Enabled:       sc.Enabled,
		Addr:          strings.TrimSpace(sc.Addr),
		Token:         strings.TrimSpace(sc.Token),
		AllowInsecure: sc.AllowInsecure,
		Pprof:         sc.Pprof,
	}
	var err error
	if out.ReadTimeout, err = config.DurationOr("server.read_timeout", sc.ReadTimeout, 10*time.Second); err != nil {
		return server.Config{}, err
	}
	if out.WriteTimeout, err = config.DurationOr("server.write_timeout", sc.WriteTimeout, 40*time.Second); err != nil {
		return server.Config{}, err
	}
	if out.IdleTimeout, err = config.DurationOr("server.idle_timeout", sc.IdleTimeout, 60*time.Second); err != nil {
		return server.Config{}, err
	}
	return out, nil
}

func mapKafkaConfig(cfg *config.Config) (trigger.KafkaConfig, bool, error) {
	kc := cfg.Kafka
	if !kc.Enabled {
		return trigger.KafkaConfig{}, false, nil
	}
	maxWait, err := config.ParseDuration("kafka.max_wait", kc.MaxWait)
	if err != nil {
		return trigger.KafkaConfig{}, false, err
	}
	group := strings.TrimSpace(kc.GroupID)
	if group == "" {
		group = "smsrelay"
	}
	return trigger.KafkaConfig{
		Brokers:  kc.Brokers,
		Topic:    strings.TrimSpace(kc.Topic),
		GroupID:  group,
		MinBytes: kc.MinBytes,
		MaxBytes: kc.MaxBytes,
		MaxWait:  maxWait,
	}, true, nil
}
