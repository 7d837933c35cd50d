package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"smsrelay/internal/eventbus"
	"smsrelay/internal/metrics"
	logx "smsrelay/pkg/logx"
)

// Deliverer is the physical send primitive.
type Deliverer interface {
	Deliver(ctx context.Context, destination, body string) error
}

// Webhooks performs the pre-send and post-send callouts.
type Webhooks interface {
	NotifyAsync(url string, ev NotificationEvent, authHeader string)
	ValidateSync(ctx context.Context, url string, ev NotificationEvent, authHeader string) bool
}

// Options wires a Dispatcher. Ledger and Transport are required.
type Options struct {
	Ledger    *Ledger
	Transport Deliverer
	Webhooks  Webhooks
	Log       logx.Logger
	Bus       eventbus.Bus

	// DeliverTimeout bounds a single Transport.Deliver call. Default 30s.
	DeliverTimeout time.Duration

	Now   func() time.Time
	NewID func() string
}

// Dispatcher runs a single message request through
// rate-check -> validate -> deliver -> record -> notify.
//
// It is safe for concurrent use. Dispatches that passed the rate check but
// are not yet recorded hold a quota reservation, so overlapping requests
// cannot overrun a window between check and append.
type Dispatcher struct {
	ledger    *Ledger
	transport Deliverer
	hooks     Webhooks
	log       logx.Logger
	bus       eventbus.Bus
	timeout   time.Duration
	now       func() time.Time
	newID     func() string

	quotaMu sync.Mutex
	seq     uint64
	pending map[uint64]time.Time
}

func NewDispatcher(opts Options) *Dispatcher {
	d := &Dispatcher{
		ledger:    opts.Ledger,
		transport: opts.Transport,
		hooks:     opts.Webhooks,
		log:       opts.Log,
		bus:       opts.Bus,
		timeout:   opts.DeliverTimeout,
		now:       opts.Now,
		newID:     opts.NewID,
		pending:   make(map[uint64]time.Time),
	}
	if d.ledger == nil {
		d.ledger = NewLedger(DefaultLedgerCapacity, nil, opts.Log)
	}
	if d.log.IsZero() {
		d.log = logx.Nop()
	}
	if d.timeout <= 0 {
		d.timeout = 30 * time.Second
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.newID == nil {
		d.newID = uuid.NewString
	}
	return d
}

func (d *Dispatcher) Ledger() *Ledger { return d.ledger }

// Dispatch never returns an error: rejections and transport failures are
// reported through Result.
func (d *Dispatcher) Dispatch(ctx context.Context, req MessageRequest, s Settings) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	start := d.now()
	res := Result{State: StateReceived, CorrelationID: d.newID()}
	log := d.log.With(logx.String("to", req.Destination), logx.String("cid", res.CorrelationID))

	defer func() {
		d.finish(req, res, start)
	}()

	if !s.Enabled {
		log.Warn("gateway disabled; request dropped")
		res.State = StateRejectedDisabled
		return res
	}
	if !req.Valid() {
		log.Warn("destination or body empty; request dropped")
		res.State = StateRejectedInvalid
		return res
	}
	if !strings.HasPrefix(req.Destination, s.AcceptedOriginPrefix) {
		log.Warn("destination does not match accepted prefix", logx.String("prefix", s.AcceptedOriginPrefix))
		res.State = StateRejectedCountryMismatch
		return res
	}

	decision, release := d.reserve(s.Limits, start)
	defer release()
	res.State = StateRateChecked
	if !decision.Allowed {
		log.Warn("rate limit exceeded",
			logx.Duration("window", decision.Tightest.Window),
			logx.Int("max", decision.Tightest.Max),
		)
		d.record(ctx, &res, req, OutcomeRateLimited)
		res.State = StateRejectedRateLimited
		return res
	}

	switch {
	case s.ValidationWebhookURL != "" && s.ValidationMode == ValidationStrict:
		if d.hooks == nil {
			log.Error("strict validation configured without a webhook client; request dropped")
			d.record(ctx, &res, req, OutcomeValidationFailed)
			res.State = StateRejectedValidationFailed
			return res
		}
		ev := d.event(EventPreSend, req, res.CorrelationID, "")
		if !d.hooks.ValidateSync(ctx, s.ValidationWebhookURL, ev, s.AuthHeader) {
			log.Warn("validation webhook rejected request; skipping delivery")
			d.record(ctx, &res, req, OutcomeValidationFailed)
			res.State = StateRejectedValidationFailed
			return res
		}
		res.State = StateValidated
	case s.ValidationWebhookURL != "" && s.ValidationMode == ValidationAdvisory && d.hooks != nil:
		d.hooks.NotifyAsync(s.ValidationWebhookURL, d.event(EventPreSend, req, res.CorrelationID, ""), s.AuthHeader)
		res.State = StateValidationSkipped
	default:
		res.State = StateValidationSkipped
	}

	err := d.deliver(ctx, req)
	outcome := OutcomeSent
	if err != nil {
		log.Error("delivery failed", logx.Err(err))
		res.State = StateDeliveryFailed
		res.Err = err
		outcome = OutcomeFailed
	} else {
		log.Info("message delivered")
		res.State = StateDelivered
	}

	d.record(ctx, &res, req, outcome)
	release()
	res.State = StateRecorded

	if s.NotificationURL != "" && d.hooks != nil {
		if err != nil {
			d.hooks.NotifyAsync(s.NotificationURL, d.event(EventPostFailure, req, res.CorrelationID, err.Error()), s.AuthHeader)
		} else {
			d.hooks.NotifyAsync(s.NotificationURL, d.event(EventPostSuccess, req, res.CorrelationID, ""), s.AuthHeader)
		}
	}
	res.State = StateNotified
	return res
}

// reserve evaluates the limits over the ledger plus in-flight reservations
// and, when allowed, reserves one slot. The returned release is idempotent.
func (d *Dispatcher) reserve(limits DeliveryLimits, now time.Time) (Decision, func()) {
	d.quotaMu.Lock()
	defer d.quotaMu.Unlock()
	history := d.ledger.Snapshot()
	for _, at := range d.pending {
		history = append(history, HistoryEntry{Timestamp: at, Outcome: OutcomeSent})
	}
	dec := Evaluate(history, limits, now)
	if !dec.Allowed {
		return dec, func() {}
	}
	d.seq++
	id := d.seq
	d.pending[id] = now
	return dec, sync.OnceFunc(func() {
		d.quotaMu.Lock()
		delete(d.pending, id)
		d.quotaMu.Unlock()
	})
}

func (d *Dispatcher) deliver(ctx context.Context, req MessageRequest) (err error) {
	if d.transport == nil {
		return fmt.Errorf("no transport configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	dctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.transport.Deliver(dctx, req.Destination, req.Body)
}

func (d *Dispatcher) record(ctx context.Context, res *Result, req MessageRequest, o Outcome) {
	e := HistoryEntry{Destination: req.Destination, Body: req.Body, Timestamp: d.now(), Outcome: o}
	// Persist failures are logged by the ledger; the entry stays in memory.
	_ = d.ledger.Append(context.WithoutCancel(ctx), e)
	res.Outcome = o
	res.Entry = e
	res.Recorded = true
}

func (d *Dispatcher) event(kind EventKind, req MessageRequest, cid, errText string) NotificationEvent {
	return NotificationEvent{
		Kind:          kind,
		Destination:   req.Destination,
		Body:          req.Body,
		Timestamp:     d.now(),
		Error:         errText,
		CorrelationID: cid,
	}
}

func (d *Dispatcher) finish(req MessageRequest, res Result, start time.Time) {
	took := d.now().Sub(start)
	metrics.DispatchTotal.WithLabelValues(string(res.State)).Inc()
	metrics.DispatchSeconds.Observe(took.Seconds())
	if d.bus == nil {
		return
	}
	ev := DispatchEvent{
		State:         res.State,
		Destination:   req.Destination,
		CorrelationID: res.CorrelationID,
		Took:          took,
	}
	if res.Recorded {
		ev.Outcome = res.Outcome.String()
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	d.bus.Publish(eventbus.Event{Type: "relay.dispatched", Data: ev})
}
