package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"smsrelay/internal/relay"
	logx "smsrelay/pkg/logx"
)

var ErrBadPayload = errors.New("trigger: bad payload")

// Dispatcher is the part of relay.Dispatcher an ingestor needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, req relay.MessageRequest, s relay.Settings) relay.Result
}

// Ingestor turns push-style triggers into dispatches. Every call reads the
// settings fresh.
type Ingestor struct {
	dispatch Dispatcher
	settings relay.SettingsSource
	log      logx.Logger
	now      func() time.Time
}

func New(d Dispatcher, settings relay.SettingsSource, log logx.Logger) *Ingestor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Ingestor{dispatch: d, settings: settings, log: log, now: time.Now}
}

// Handle dispatches req synchronously. Cancellation of ctx (a client
// disconnect, a consumer stop) does not abort the dispatch; the pipeline's
// own validation and delivery timeouts bound it.
func (in *Ingestor) Handle(ctx context.Context, req relay.MessageRequest) relay.Result {
	res := in.dispatch.Dispatch(context.WithoutCancel(ctx), req, in.settings())
	in.log.Debug("trigger handled", logx.String("state", string(res.State)), logx.String("cid", res.CorrelationID))
	return res
}

// payload accepts both {to, message} and the push-notification shape
// {title, body} where title carries the destination.
type payload struct {
	To      string `json:"to"`
	Message string `json:"message"`
	Title   string `json:"title"`
	Body    string `json:"body"`
}

// Decode parses one trigger. Empty fields are not an error here; the
// dispatcher rejects them as invalid.
func Decode(b []byte, now time.Time) (relay.MessageRequest, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	var p payload
	if err := dec.Decode(&p); err != nil {
		return relay.MessageRequest{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return relay.MessageRequest{}, fmt.Errorf("%w: trailing data", ErrBadPayload)
	}
	to, msg := p.To, p.Message
	if to == "" && msg == "" {
		to, msg = p.Title, p.Body
	}
	return relay.NewRequest(to, msg, now), nil
}

// ResultView is the JSON shape returned to HTTP callers.
type ResultView struct {
	State         relay.State `json:"state"`
	Outcome       string      `json:"outcome,omitempty"`
	Recorded      bool        `json:"recorded"`
	Sent          bool        `json:"sent"`
	CorrelationID string      `json:"correlation_id"`
	Error         string      `json:"error,omitempty"`
}

func ViewOf(res relay.Result) ResultView {
	v := ResultView{
		State:         res.State,
		Recorded:      res.Recorded,
		Sent:          res.Sent(),
		CorrelationID: res.CorrelationID,
	}
	if res.Recorded {
		v.Outcome = res.Outcome.String()
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	return v
}
