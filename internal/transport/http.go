package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	logx "smsrelay/pkg/logx"
)

// HTTP hands messages to an upstream SMS API as JSON {to, message}.
type HTTP struct {
	url    string
	auth   string
	client *http.Client
	log    logx.Logger
}

type httpMessage struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func NewHTTP(cfg Config, log logx.Logger) (*HTTP, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("transport.url is required for http driver")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTP{
		url:    url,
		auth:   cfg.AuthHeader,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}, nil
}

func (h *HTTP) Deliver(ctx context.Context, destination, body string) error {
	b, err := json.Marshal(httpMessage{To: destination, Message: body})
	if err != nil {
		return &DeliveryError{Destination: destination, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(b))
	if err != nil {
		return &DeliveryError{Destination: destination, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if h.auth != "" {
		req.Header.Set("Authorization", h.auth)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return &DeliveryError{Destination: destination, Err: err}
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var cause error
		if s := strings.TrimSpace(string(snippet)); s != "" {
			cause = errors.New(s)
		}
		return &DeliveryError{Destination: destination, Status: resp.StatusCode, Err: cause}
	}
	h.log.Debug("upstream accepted message", logx.String("to", destination), logx.Int("status", resp.StatusCode))
	return nil
}
