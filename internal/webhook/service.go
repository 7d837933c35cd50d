package webhook

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"smsrelay/internal/eventbus"
	"smsrelay/internal/metrics"
	"smsrelay/internal/relay"
	rtsup "smsrelay/internal/runtime/supervisor"
	logx "smsrelay/pkg/logx"
)

type job struct {
	url  string
	auth string
	p    Payload
}

// Notifier delivers webhook callouts.
//
// NotifyAsync goes through queue + worker pool + rate limit + retry and never
// blocks the caller. ValidateSync is a direct blocking POST.
//
// It is safe for concurrent use.
type Notifier struct {
	mu sync.Mutex

	log      logx.Logger
	bus      eventbus.Bus
	identity IdentitySource

	cfg     Config
	client  *http.Client
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, identity IdentitySource) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	n := &Notifier{log: log, bus: bus, identity: identity}
	n.applyLocked(cfg)
	return n
}

// Supervisor returns the worker supervisor (nil if not started).
func (n *Notifier) Supervisor() *rtsup.Supervisor {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sup
}

// Apply swaps config. Queue size and worker count take effect on the next
// Start; rate, retry and timeouts apply immediately.
func (n *Notifier) Apply(cfg Config) {
	n.mu.Lock()
	n.applyLocked(cfg)
	n.mu.Unlock()
}

func (n *Notifier) applyLocked(cfg Config) {
	cfg = cfg.withDefaults()
	old := n.cfg
	n.cfg = cfg
	n.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	if n.client == nil ||
		old.ConnectTimeout != cfg.ConnectTimeout ||
		old.ReadTimeout != cfg.ReadTimeout ||
		old.Timeout != cfg.Timeout {
		n.client = newHTTPClient(cfg)
	}
}

func (n *Notifier) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	n.mu.Lock()
	if n.stopDone != nil {
		done := n.stopDone
		n.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		n.mu.Lock()
	}
	if n.queue != nil {
		n.mu.Unlock()
		return
	}

	n.queue = make(chan job, n.cfg.QueueSize)
	n.accepting = true
	n.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(n.log),
		rtsup.WithCancelOnError(false),
	)
	sup := n.sup
	q := n.queue
	workers := n.cfg.Workers
	n.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("webhook.worker.%d", i), func(c context.Context) error {
			n.workerLoop(c, q)
			n.mu.Lock()
			stopping := n.stopDone != nil
			n.mu.Unlock()
			if stopping {
				return context.Canceled
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("webhook worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
}

// Stop stops intake and drains the queue until ctx expires.
func (n *Notifier) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	n.mu.Lock()
	q := n.queue
	sup := n.sup
	if q == nil {
		n.mu.Unlock()
		return
	}
	if n.stopDone != nil {
		done := n.stopDone
		n.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	n.stopDone = done
	n.accepting = false
	n.mu.Unlock()

	go func() {
		defer close(done)
		n.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())

		n.mu.Lock()
		n.queue = nil
		n.stopDone = nil
		n.sup = nil
		n.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

// NotifyAsync enqueues a callout and returns immediately. The event is
// dropped with a log line when the queue is full or the notifier is stopped.
func (n *Notifier) NotifyAsync(url string, ev relay.NotificationEvent, authHeader string) {
	url = strings.TrimSpace(url)
	if url == "" {
		return
	}

	n.mu.Lock()
	if !n.accepting || n.queue == nil {
		n.mu.Unlock()
		n.dropped(url, ev, ErrStopped)
		return
	}
	q := n.queue
	n.sendWG.Add(1)
	n.mu.Unlock()
	defer n.sendWG.Done()

	select {
	case q <- job{url: url, auth: authHeader, p: NewPayload(ev, n.identityValue())}:
	default:
		n.dropped(url, ev, ErrQueueFull)
	}
}

// ValidateSync POSTs the event and reports whether the receiver answered 2xx.
// Any transport error or non-2xx status is a rejection.
func (n *Notifier) ValidateSync(ctx context.Context, url string, ev relay.NotificationEvent, authHeader string) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	n.mu.Lock()
	c := n.client
	n.mu.Unlock()

	err := post(ctx, c, url, NewPayload(ev, n.identityValue()), authHeader)
	var se *StatusError
	switch {
	case err == nil:
		metrics.WebhookTotal.WithLabelValues("validate", "ok").Inc()
		return true
	case errors.As(err, &se):
		metrics.WebhookTotal.WithLabelValues("validate", "rejected").Inc()
		n.log.Warn("validation webhook rejected", logx.Int("status", se.Code), logx.String("cid", ev.CorrelationID))
	default:
		metrics.WebhookTotal.WithLabelValues("validate", "error").Inc()
		n.log.Warn("validation webhook failed", logx.Err(err), logx.String("cid", ev.CorrelationID))
	}
	return false
}

func (n *Notifier) identityValue() string {
	if n.identity == nil {
		return ""
	}
	return strings.TrimSpace(n.identity())
}

func (n *Notifier) dropped(url string, ev relay.NotificationEvent, reason error) {
	metrics.WebhookTotal.WithLabelValues("notify", "dropped").Inc()
	n.log.Warn("webhook dropped", logx.String("event", ev.Kind.String()), logx.String("cid", ev.CorrelationID), logx.Err(reason))
	n.publish("webhook.dropped", url, ev.Kind.String(), ev.CorrelationID, reason)
}

func (n *Notifier) publish(typ, url, kind, cid string, err error) {
	if n.bus == nil {
		return
	}
	e := Event{URL: url, Kind: kind, CorrelationID: cid, At: time.Now()}
	if err != nil {
		e.Error = err.Error()
	}
	n.bus.Publish(eventbus.Event{Type: typ, Time: e.At, Data: e})
}

func (n *Notifier) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			n.sendWithRetry(ctx, j)
		}
	}
}

func (n *Notifier) sendWithRetry(runCtx context.Context, j job) {
	n.mu.Lock()
	cfg := n.cfg
	lim := n.limiter
	c := n.client
	n.mu.Unlock()

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(runCtx); err != nil {
			return
		}
		err := post(runCtx, c, j.url, j.p, j.auth)
		if err == nil {
			metrics.WebhookTotal.WithLabelValues("notify", "ok").Inc()
			n.log.Debug("webhook delivered", logx.String("event", j.p.Event), logx.String("cid", j.p.CorrelationID))
			return
		}
		lastErr = err
		n.log.Debug("webhook send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))
		if attempt >= maxAttempts {
			break
		}

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-runCtx.Done():
			t.Stop()
			return
		}
	}

	metrics.WebhookTotal.WithLabelValues("notify", "error").Inc()
	n.log.Warn("webhook failed", logx.String("event", j.p.Event), logx.String("cid", j.p.CorrelationID), logx.Err(lastErr))
	n.publish("webhook.failed", j.url, j.p.Event, j.p.CorrelationID, lastErr)
}

// retryDelay is the wait before attempt+1: base * 2^(attempt-1), jittered
// to 0.7..1.3 and capped at RetryMaxDelay.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	return min(max(d, 0), cfg.RetryMaxDelay)
}
