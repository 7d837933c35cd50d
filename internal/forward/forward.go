// Package forward relays inbound messages (received by the gateway's
// carrier side) to the configured forward URL as {message, from}.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"smsrelay/internal/metrics"
	"smsrelay/internal/relay"
	rtsup "smsrelay/internal/runtime/supervisor"
	logx "smsrelay/pkg/logx"
)

var (
	ErrDisabled       = errors.New("forward: gateway disabled")
	ErrOriginMismatch = errors.New("forward: origin outside accepted prefix")
	ErrNoURL          = errors.New("forward: forward url not configured")
	ErrStopped        = errors.New("forward: forwarder stopped")
)

const defaultTimeout = 15 * time.Second

type message struct {
	Message string `json:"message"`
	From    string `json:"from"`
}

// Forwarder posts inbound messages in the background. Forward returns as
// soon as the post is scheduled.
type Forwarder struct {
	log    logx.Logger
	client *http.Client

	mu  sync.Mutex
	sup *rtsup.Supervisor
}

func New(timeout time.Duration, log logx.Logger) *Forwarder {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Forwarder{log: log, client: &http.Client{Timeout: timeout}}
}

func (f *Forwarder) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sup == nil {
		f.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(f.log), rtsup.WithCancelOnError(false))
	}
}

// Stop waits for in-flight posts until ctx expires, then cancels them.
func (f *Forwarder) Stop(ctx context.Context) error {
	f.mu.Lock()
	sup := f.sup
	f.sup = nil
	f.mu.Unlock()
	if sup == nil {
		return nil
	}
	if err := sup.Wait(ctx); err != nil {
		sup.Cancel()
		return err
	}
	sup.Cancel()
	return nil
}

// Forward checks policy and schedules the post. A nil error means queued.
func (f *Forwarder) Forward(_ context.Context, from, body string, s relay.Settings) error {
	switch {
	case !s.Enabled:
		return f.skip(ErrDisabled)
	case !strings.HasPrefix(from, s.AcceptedOriginPrefix):
		return f.skip(ErrOriginMismatch)
	case strings.TrimSpace(s.ForwardURL) == "":
		return f.skip(ErrNoURL)
	}

	url, auth := strings.TrimSpace(s.ForwardURL), s.AuthHeader
	msg := message{Message: body, From: from}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sup == nil {
		return f.skip(ErrStopped)
	}
	f.sup.Go0("forward.post", func(ctx context.Context) {
		if err := f.post(ctx, url, auth, msg); err != nil {
			metrics.ForwardTotal.WithLabelValues("error").Inc()
			f.log.Warn("forward failed", logx.String("from", from), logx.Err(err))
			return
		}
		metrics.ForwardTotal.WithLabelValues("ok").Inc()
		f.log.Debug("forwarded", logx.String("from", from))
	})
	return nil
}

func (f *Forwarder) skip(reason error) error {
	metrics.ForwardTotal.WithLabelValues("skipped").Inc()
	return reason
}

func (f *Forwarder) post(ctx context.Context, url, auth string, msg message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a := strings.TrimSpace(auth); a != "" {
		req.Header.Set("Authorization", a)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("forward: status %d", resp.StatusCode)
	}
	return nil
}
