package config

import (
	"reflect"
	"strings"

	logx "smsrelay/pkg/logx"
)

// SummarizeConfigChange returns the changed section names and safe
// structured attrs for logging. Secrets (auth, tokens, passwords) are only
// reported as "_set" booleans.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	og, ng := oldCfg.Gateway, newCfg.Gateway
	if !reflect.DeepEqual(og, ng) {
		changed = append(changed, "gateway")
		mode := "invalid"
		if s, err := ng.Settings(); err == nil {
			mode = string(s.ValidationMode)
		}
		attrs = append(attrs,
			logx.Bool("gateway.enabled", ng.Enabled),
			logx.String("gateway.country", strings.TrimSpace(ng.Country)),
			logx.String("gateway.operating_mode", strings.TrimSpace(ng.OperatingMode)),
			logx.String("gateway.validation_mode", mode),
			logx.Bool("gateway.auth_set", strings.TrimSpace(ng.Auth) != ""),
			logx.Bool("gateway.webhook_set", strings.TrimSpace(ng.Webhook) != ""),
			logx.Bool("gateway.fetch_url_set", strings.TrimSpace(ng.FetchURL) != ""),
			logx.Int("gateway.limits", len(ng.Limits)),
		)
	}

	if oldCfg.Poll != newCfg.Poll {
		changed = append(changed, "poll")
		attrs = append(attrs,
			logx.String("poll.schedule", strings.TrimSpace(newCfg.Poll.Schedule)),
			logx.String("poll.timeout", strings.TrimSpace(newCfg.Poll.Timeout)),
		)
	}

	if oldCfg.Webhook != newCfg.Webhook {
		changed = append(changed, "webhook")
		attrs = append(attrs,
			logx.Int("webhook.workers", newCfg.Webhook.Workers),
			logx.Int("webhook.rate_per_sec", newCfg.Webhook.RatePerSec),
			logx.Int("webhook.retry_max", newCfg.Webhook.RetryMax),
		)
	}

	ot, nt := oldCfg.Transport, newCfg.Transport
	if ot != nt {
		changed = append(changed, "transport")
		attrs = append(attrs,
			logx.String("transport.driver", strings.TrimSpace(nt.Driver)),
			logx.Bool("transport.url_set", strings.TrimSpace(nt.URL) != ""),
			logx.Bool("transport.telegram_token_set", strings.TrimSpace(nt.Telegram.Token) != ""),
		)
	}

	ost, nst := oldCfg.Storage, newCfg.Storage
	if ost != nst {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nst.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nst.Path) != ""),
			logx.Bool("storage.redis_addr_set", strings.TrimSpace(nst.Redis.Addr) != ""),
		)
	}

	if oldCfg.Server != newCfg.Server {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.Bool("server.enabled", newCfg.Server.Enabled),
			logx.String("server.addr", strings.TrimSpace(newCfg.Server.Addr)),
			logx.Bool("server.token_set", strings.TrimSpace(newCfg.Server.Token) != ""),
			logx.Bool("server.pprof", newCfg.Server.Pprof),
		)
	}

	if !reflect.DeepEqual(oldCfg.Kafka, newCfg.Kafka) {
		changed = append(changed, "kafka")
		attrs = append(attrs,
			logx.Bool("kafka.enabled", newCfg.Kafka.Enabled),
			logx.String("kafka.topic", strings.TrimSpace(newCfg.Kafka.Topic)),
			logx.Int("kafka.brokers", len(newCfg.Kafka.Brokers)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	return changed, attrs
}
