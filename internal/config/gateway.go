package config

import (
	"errors"
	"fmt"
	"strings"

	"smsrelay/internal/relay"
)

var ErrInvalid = errors.New("invalid config")

// Settings maps the gateway section to the per-dispatch snapshot.
func (g GatewayConfig) Settings() (relay.Settings, error) {
	limits, err := g.limits()
	if err != nil {
		return relay.Settings{}, err
	}
	mode, err := g.validationMode()
	if err != nil {
		return relay.Settings{}, err
	}
	op, err := ParseOperatingMode(g.OperatingMode)
	if err != nil {
		return relay.Settings{}, err
	}

	webhook := strings.TrimSpace(g.Webhook)
	validation := strings.TrimSpace(g.ValidationWebhook)
	if validation == "" {
		validation = webhook
	}
	return relay.Settings{
		Enabled:              g.Enabled,
		AcceptedOriginPrefix: strings.TrimSpace(g.Country),
		ValidationWebhookURL: validation,
		ValidationMode:       mode,
		NotificationURL:      webhook,
		AuthHeader:           g.Auth,
		Limits:               limits,
		FetchURL:             strings.TrimSpace(g.FetchURL),
		ForwardURL:           strings.TrimSpace(g.ForwardURL),
		OperatingMode:        op,
	}, nil
}

func (g GatewayConfig) limits() (relay.DeliveryLimits, error) {
	if len(g.Limits) == 0 {
		return relay.DefaultLimits(), nil
	}
	out := relay.DeliveryLimits{Windows: make([]relay.WindowLimit, 0, len(g.Limits))}
	for i, l := range g.Limits {
		path := fmt.Sprintf("gateway.limits[%d].window", i)
		w, err := ParseDuration(path, l.Window)
		if err != nil {
			return relay.DeliveryLimits{}, err
		}
		if w <= 0 {
			return relay.DeliveryLimits{}, fmt.Errorf("%w: %s must be > 0", ErrInvalid, path)
		}
		if l.Max < 0 {
			return relay.DeliveryLimits{}, fmt.Errorf("%w: gateway.limits[%d].max must be >= 0", ErrInvalid, i)
		}
		out.Windows = append(out.Windows, relay.WindowLimit{Window: w, Max: l.Max})
	}
	return out, nil
}

func (g GatewayConfig) validationMode() (relay.ValidationMode, error) {
	switch strings.ToLower(strings.TrimSpace(g.ValidationMode)) {
	case "strict":
		return relay.ValidationStrict, nil
	case "advisory":
		return relay.ValidationAdvisory, nil
	case "off", "none", "disabled":
		return relay.ValidationOff, nil
	case "":
	default:
		return "", fmt.Errorf("%w: gateway.validation_mode %q", ErrInvalid, g.ValidationMode)
	}
	if g.WebhookValidation != nil && *g.WebhookValidation {
		return relay.ValidationStrict, nil
	}
	return relay.ValidationAdvisory, nil
}

// ParseOperatingMode accepts triggered/polled and the legacy names
// onesignal/periodic. Empty means triggered.
func ParseOperatingMode(s string) (relay.OperatingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "triggered", "onesignal", "push":
		return relay.ModeTriggered, nil
	case "polled", "periodic", "poll":
		return relay.ModePolled, nil
	default:
		return "", fmt.Errorf("%w: gateway.operating_mode %q", ErrInvalid, s)
	}
}
