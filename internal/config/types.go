package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Poll      PollConfig      `json:"poll,omitempty"`
	Webhook   WebhookConfig   `json:"webhook,omitempty"`
	Transport TransportConfig `json:"transport,omitempty"`
	Storage   StorageConfig   `json:"storage,omitempty"`
	Server    ServerConfig    `json:"server,omitempty"`
	Kafka     KafkaConfig     `json:"kafka,omitempty"`
	Logging   LoggingConfig   `json:"logging"`
}

// GatewayConfig is the operator-facing relay policy. It is re-read on every
// dispatch and poll cycle, so edits take effect without a restart.
//
// Validation mode resolution:
//   - validation_mode wins when set (strict | advisory | off)
//   - else webhook_validation=true means strict
//   - else advisory (pre-send event is fired but never blocks)
type GatewayConfig struct {
	Enabled bool `json:"enabled"`
	// Country is the accepted destination prefix (e.g. "+92"). Empty accepts all.
	Country string `json:"country"`
	// Auth is sent verbatim as the Authorization header (do not log).
	Auth string `json:"auth,omitempty"`

	Webhook           string `json:"webhook,omitempty"`
	ValidationWebhook string `json:"validation_webhook,omitempty"`
	ValidationMode    string `json:"validation_mode,omitempty"`
	WebhookValidation *bool  `json:"webhook_validation,omitempty"`

	FetchURL      string `json:"fetch_url,omitempty"`
	OperatingMode string `json:"operating_mode,omitempty"` // triggered | polled
	ForwardURL    string `json:"forward_url,omitempty"`

	// SubscriberID is attached to webhook payloads as onesignal_id.
	SubscriberID string `json:"subscriber_id,omitempty"`

	// Limits replaces the defaults (15m:10, 1h:50, 24h:200) when non-empty.
	Limits []LimitConfig `json:"limits,omitempty"`
}

type LimitConfig struct {
	Window string `json:"window"`
	Max    int    `json:"max"`
}

// PollConfig controls the periodic fetch loop.
//
// Schedule accepts a duration ("10s"), a daily "HH:MM", or a cron expression
// ("*/1 * * * *"). Default "10s".
type PollConfig struct {
	Schedule string `json:"schedule,omitempty"`
	Timeout  string `json:"timeout,omitempty"` // default "10s"
	Timezone string `json:"timezone,omitempty"`
}

// WebhookConfig controls the async callout pipeline. Defaults:
// workers 2, queue_size 256, rate_per_sec 5, retry_max 0.
type WebhookConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	RatePerSec     int    `json:"rate_per_sec,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
	RetryBase      string `json:"retry_base,omitempty"`
	RetryMaxDelay  string `json:"retry_max_delay,omitempty"`
	ConnectTimeout string `json:"connect_timeout,omitempty"`
	ReadTimeout    string `json:"read_timeout,omitempty"`
	Timeout        string `json:"timeout,omitempty"`
}

// TransportConfig selects the delivery driver: log (default), http, telegram.
type TransportConfig struct {
	Driver         string            `json:"driver,omitempty"`
	URL            string            `json:"url,omitempty"`
	Auth           string            `json:"auth,omitempty"` // do not log
	Timeout        string            `json:"timeout,omitempty"`
	DeliverTimeout string            `json:"deliver_timeout,omitempty"` // default "30s"
	Telegram       TransportTelegram `json:"telegram,omitempty"`
}

type TransportTelegram struct {
	Token     string `json:"token,omitempty"` // do not log
	APIURL    string `json:"api_url,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// StorageConfig controls ledger persistence.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/ledger.json" }
type StorageConfig struct {
	Driver      string       `json:"driver,omitempty"`
	Path        string       `json:"path,omitempty"`
	BusyTimeout string       `json:"busy_timeout,omitempty"` // sqlite
	Redis       StorageRedis `json:"redis,omitempty"`
}

type StorageRedis struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"` // do not log
	DB       int    `json:"db,omitempty"`
	Key      string `json:"key,omitempty"`
}

// ServerConfig controls the HTTP ingress server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8080").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type ServerConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:8080"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// KafkaConfig enables a consumer-group trigger source.
type KafkaConfig struct {
	Enabled  bool     `json:"enabled"`
	Brokers  []string `json:"brokers,omitempty"`
	Topic    string   `json:"topic,omitempty"`
	GroupID  string   `json:"group_id,omitempty"`
	MinBytes int      `json:"min_bytes,omitempty"`
	MaxBytes int      `json:"max_bytes,omitempty"`
	MaxWait  string   `json:"max_wait,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram mirrors warnings to a chat via transport.telegram.token.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}
