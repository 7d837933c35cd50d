package poll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"smsrelay/internal/metrics"
	"smsrelay/internal/relay"
	rtsup "smsrelay/internal/runtime/supervisor"
	logx "smsrelay/pkg/logx"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// Dispatcher is the part of relay.Dispatcher the poll loop needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, req relay.MessageRequest, s relay.Settings) relay.Result
}

// Acknowledger confirms a sent item back to the fetch endpoint.
type Acknowledger interface {
	Ack(ctx context.Context, req relay.MessageRequest, res relay.Result) error
}

// LogAcknowledger only logs. The fetch endpoint has no ack contract yet, so a
// sent item is simply not re-served by a well-behaved remote.
type LogAcknowledger struct {
	Log logx.Logger
}

func (a LogAcknowledger) Ack(_ context.Context, req relay.MessageRequest, res relay.Result) error {
	if !a.Log.IsZero() {
		a.Log.Debug("poll item acknowledged", logx.String("to", req.Destination), logx.String("cid", res.CorrelationID))
	}
	return nil
}

type Config struct {
	Schedule string
	Timeout  time.Duration
	Location *time.Location
}

// CycleResult names how one poll cycle ended. It doubles as the metric label.
type CycleResult string

const (
	CycleSkipped    CycleResult = "skipped"
	CycleFetchError CycleResult = "fetch_error"
	CycleEmpty      CycleResult = "empty"
	CycleInvalid    CycleResult = "invalid"
	CycleSent       CycleResult = "sent"
	CycleNotSent    CycleResult = "not_sent"
)

// Service is the periodic fetch loop. Start replaces any running loop; Stop
// returns only after the loop goroutine exited.
type Service struct {
	log      logx.Logger
	dispatch Dispatcher
	settings relay.SettingsSource
	ack      Acknowledger
	now      func() time.Time

	mu       sync.Mutex
	cfg      Config
	schedule Schedule
	client   *http.Client

	lifeMu sync.Mutex // serializes Start/Stop
	sup    *rtsup.Supervisor

	loops atomic.Int32
}

func New(cfg Config, d Dispatcher, settings relay.SettingsSource, ack Acknowledger, log logx.Logger) (*Service, error) {
	if d == nil || settings == nil {
		return nil, errors.New("poll: dispatcher and settings source are required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if ack == nil {
		ack = LogAcknowledger{Log: log}
	}
	s := &Service{log: log, dispatch: d, settings: settings, ack: ack, now: time.Now}
	if err := s.Apply(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Apply swaps schedule and timeout. A running loop picks them up when it
// computes its next activation.
func (s *Service) Apply(cfg Config) error {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	sched, spec, err := NewSchedule(cfg.Schedule, cfg.Location)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.schedule = sched
	if s.client == nil || s.client.Timeout != cfg.Timeout {
		s.client = &http.Client{Timeout: cfg.Timeout}
	}
	s.mu.Unlock()
	s.log.Debug("poll config applied", logx.String("schedule_source", spec.Source), logx.Duration("timeout", cfg.Timeout))
	return nil
}

// Running reports whether a loop is active.
func (s *Service) Running() bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	return s.sup != nil
}

// Start launches the loop, stopping any previous one first. The first cycle
// runs immediately.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.sup != nil {
		if err := s.stopLocked(ctx); err != nil {
			return fmt.Errorf("poll: stop previous loop: %w", err)
		}
	}
	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	sup.GoRestart("poll.loop", s.loop, rtsup.WithPublishFirstError(true))
	s.sup = sup
	s.log.Info("poll loop started")
	return nil
}

// Stop cancels the loop and waits for it to exit or ctx to expire.
func (s *Service) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	return s.stopLocked(ctx)
}

func (s *Service) stopLocked(ctx context.Context) error {
	sup := s.sup
	if sup == nil {
		return nil
	}
	err := sup.Stop(ctx)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	s.sup = nil
	s.log.Info("poll loop stopped")
	return nil
}

func (s *Service) loop(ctx context.Context) error {
	s.loops.Add(1)
	defer s.loops.Add(-1)

	for {
		s.RunOnce(ctx)

		s.mu.Lock()
		sched := s.schedule
		s.mu.Unlock()
		now := s.now()
		wait := sched.Next(now).Sub(now)
		if wait < 0 {
			wait = 0
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// RunOnce performs a single fetch and dispatch cycle.
func (s *Service) RunOnce(ctx context.Context) CycleResult {
	res := s.cycle(ctx)
	metrics.PollCycles.WithLabelValues(string(res)).Inc()
	return res
}

func (s *Service) cycle(ctx context.Context) CycleResult {
	st := s.settings()
	url := strings.TrimSpace(st.FetchURL)
	if !st.Enabled || st.OperatingMode != relay.ModePolled || url == "" {
		return CycleSkipped
	}

	body, err := s.fetch(ctx, url, st.AuthHeader)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("poll fetch failed", logx.String("url", url), logx.Err(err))
		}
		return CycleFetchError
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return CycleEmpty
	}

	req, err := ParseRequest(body, s.now())
	if err != nil {
		s.log.Debug("invalid poll item", logx.Err(err))
		return CycleInvalid
	}

	// Stop cancels ctx; a dispatch already past fetch runs to completion.
	dctx := context.WithoutCancel(ctx)
	res := s.dispatch.Dispatch(dctx, req, st)
	if !res.Sent() {
		s.log.Debug("poll item not sent", logx.String("state", string(res.State)), logx.String("cid", res.CorrelationID))
		return CycleNotSent
	}
	if err := s.ack.Ack(dctx, req, res); err != nil {
		s.log.Warn("poll ack failed", logx.String("cid", res.CorrelationID), logx.Err(err))
	}
	return CycleSent
}

type statusError struct{ code int }

func (e statusError) Error() string { return fmt.Sprintf("unexpected status %d", e.code) }

func (s *Service) fetch(ctx context.Context, url, auth string) ([]byte, error) {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if a := strings.TrimSpace(auth); a != "" {
		req.Header.Set("Authorization", a)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, statusError{code: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}
