package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment overrides. Secrets and addresses can be kept out of the config
// file this way.
const (
	EnvAuth          = "SMSRELAY_AUTH"
	EnvFetchURL      = "SMSRELAY_FETCH_URL"
	EnvWebhookURL    = "SMSRELAY_WEBHOOK_URL"
	EnvListenAddr    = "SMSRELAY_LISTEN_ADDR"
	EnvServerToken   = "SMSRELAY_SERVER_TOKEN"
	EnvTelegramToken = "SMSRELAY_TELEGRAM_TOKEN"
)

// LoadDotEnv loads .env files into the process environment if present.
// Existing variables are never overwritten.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		_ = godotenv.Load()
		return
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// ApplyEnv overlays SMSRELAY_* variables onto cfg using lookup
// (os.LookupEnv when nil). Empty values are ignored.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil {
		return
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvAuth, &cfg.Gateway.Auth)
	set(EnvFetchURL, &cfg.Gateway.FetchURL)
	set(EnvWebhookURL, &cfg.Gateway.Webhook)
	set(EnvListenAddr, &cfg.Server.Addr)
	set(EnvServerToken, &cfg.Server.Token)
	set(EnvTelegramToken, &cfg.Transport.Telegram.Token)
}
