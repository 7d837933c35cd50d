package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"smsrelay/internal/relay"
	logx "smsrelay/pkg/logx"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	reqs     []relay.MessageRequest
	settings []relay.Settings
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req relay.MessageRequest, s relay.Settings) relay.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	f.settings = append(f.settings, s)
	if !req.Valid() {
		return relay.Result{State: relay.StateRejectedInvalid, CorrelationID: "c"}
	}
	return relay.Result{State: relay.StateNotified, Outcome: relay.OutcomeSent, Recorded: true, CorrelationID: "c"}
}

func (f *fakeDispatcher) snapshot() []relay.MessageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]relay.MessageRequest(nil), f.reqs...)
}

func TestDecodeShapes(t *testing.T) {
	t.Parallel()
	now := time.Unix(100, 0)
	tests := []struct {
		name     string
		body     string
		wantTo   string
		wantBody string
		wantErr  bool
	}{
		{name: "to/message", body: `{"to":"+923001","message":"hi"}`, wantTo: "+923001", wantBody: "hi"},
		{name: "title/body", body: `{"title":"+923001","body":"hi"}`, wantTo: "+923001", wantBody: "hi"},
		{name: "to/message wins", body: `{"to":"+1","message":"a","title":"+2","body":"b"}`, wantTo: "+1", wantBody: "a"},
		{name: "empty passes through", body: `{}`},
		{name: "broken", body: `{"to":`, wantErr: true},
		{name: "trailing", body: `{} []`, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req, err := Decode([]byte(tt.body), now)
			if tt.wantErr {
				if !errors.Is(err, ErrBadPayload) {
					t.Fatalf("err = %v, want ErrBadPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if req.Destination != tt.wantTo || req.Body != tt.wantBody || !req.ReceivedAt.Equal(now) {
				t.Fatalf("got %+v", req)
			}
		})
	}
}

func TestHandleReadsSettingsFresh(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{}
	prefix := "+92"
	in := New(d, func() relay.Settings { return relay.Settings{Enabled: true, AcceptedOriginPrefix: prefix} }, logx.Nop())

	in.Handle(context.Background(), relay.NewRequest("+923001", "a", time.Time{}))
	prefix = "+44"
	in.Handle(context.Background(), relay.NewRequest("+923001", "b", time.Time{}))

	if d.settings[0].AcceptedOriginPrefix != "+92" || d.settings[1].AcceptedOriginPrefix != "+44" {
		t.Fatalf("settings were cached: %+v", d.settings)
	}
}

func TestServeHTTP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
		wantState  relay.State
	}{
		{name: "sent", method: http.MethodPost, body: `{"to":"+923001","message":"hi"}`, wantStatus: 200, wantState: relay.StateNotified},
		{name: "push shape", method: http.MethodPost, body: `{"title":"+923001","body":"hi"}`, wantStatus: 200, wantState: relay.StateNotified},
		{name: "rejected is still 200", method: http.MethodPost, body: `{"to":"","message":"hi"}`, wantStatus: 200, wantState: relay.StateRejectedInvalid},
		{name: "bad json", method: http.MethodPost, body: `nope`, wantStatus: 400},
		{name: "wrong method", method: http.MethodGet, wantStatus: 405},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := New(&fakeDispatcher{}, func() relay.Settings { return relay.Settings{Enabled: true} }, logx.Nop())
			rec := httptest.NewRecorder()
			in.ServeHTTP(rec, httptest.NewRequest(tt.method, "/v1/trigger", strings.NewReader(tt.body)))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != 200 {
				return
			}
			var v ResultView
			if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
				t.Fatal(err)
			}
			if v.State != tt.wantState || v.CorrelationID != "c" {
				t.Fatalf("view = %+v", v)
			}
			if (v.State == relay.StateNotified) != v.Sent {
				t.Fatalf("sent flag mismatch: %+v", v)
			}
		})
	}
}

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-r.msgs:
		return m, nil
	}
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestKafkaConsumerDispatchesAndCommits(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{}
	in := New(d, func() relay.Settings { return relay.Settings{Enabled: true} }, logx.Nop())
	r := &fakeReader{msgs: make(chan kafka.Message, 3)}
	r.msgs <- kafka.Message{Offset: 1, Value: []byte(`{"to":"+923001","message":"one"}`)}
	r.msgs <- kafka.Message{Offset: 2, Value: []byte(`not json`)}
	r.msgs <- kafka.Message{Offset: 3, Value: []byte(`{"title":"+923002","body":"three"}`)}

	c := NewConsumer(in, r, logx.Nop())
	c.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for len(r.commits()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := r.commits(); len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("commits = %v, want [1 2 3]", got)
	}
	reqs := d.snapshot()
	if len(reqs) != 2 || reqs[0].Body != "one" || reqs[1].Destination != "+923002" {
		t.Fatalf("dispatched = %+v", reqs)
	}
	if !r.closed {
		t.Fatal("reader not closed on Stop")
	}
}

// blockingDispatcher holds each dispatch until release is closed and
// records whether the dispatch context had been canceled by then.
type blockingDispatcher struct {
	started  chan struct{}
	release  chan struct{}
	once     sync.Once
	canceled atomic.Bool
}

func (b *blockingDispatcher) Dispatch(ctx context.Context, _ relay.MessageRequest, _ relay.Settings) relay.Result {
	b.once.Do(func() { close(b.started) })
	<-b.release
	if ctx.Err() != nil {
		b.canceled.Store(true)
		return relay.Result{State: relay.StateRejectedValidationFailed, Outcome: relay.OutcomeValidationFailed, Recorded: true}
	}
	return relay.Result{State: relay.StateNotified, Outcome: relay.OutcomeSent, Recorded: true}
}

func TestHandleIgnoresCallerCancellation(t *testing.T) {
	t.Parallel()
	d := &blockingDispatcher{started: make(chan struct{}), release: make(chan struct{})}
	in := New(d, func() relay.Settings { return relay.Settings{Enabled: true} }, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan relay.Result, 1)
	go func() { done <- in.Handle(ctx, relay.NewRequest("+1", "m", time.Now())) }()
	<-d.started
	cancel()
	close(d.release)

	if res := <-done; !res.Sent() || d.canceled.Load() {
		t.Fatalf("dispatch saw caller cancellation: %+v", res)
	}
}

func TestKafkaStopCommitsInFlightRecord(t *testing.T) {
	t.Parallel()
	d := &blockingDispatcher{started: make(chan struct{}), release: make(chan struct{})}
	in := New(d, func() relay.Settings { return relay.Settings{Enabled: true} }, logx.Nop())
	r := &fakeReader{msgs: make(chan kafka.Message, 1)}
	r.msgs <- kafka.Message{Offset: 7, Value: []byte(`{"to":"+923001","message":"one"}`)}

	c := NewConsumer(in, r, logx.Nop())
	c.Start(context.Background())
	<-d.started

	stopped := make(chan error, 1)
	go func() { stopped <- c.Stop(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	close(d.release)
	if err := <-stopped; err != nil {
		t.Fatal(err)
	}

	if d.canceled.Load() {
		t.Fatal("Stop canceled the in-flight dispatch")
	}
	if got := r.commits(); len(got) != 1 || got[0] != 7 {
		t.Fatalf("commits = %v, want [7]", got)
	}
}

func TestNewKafkaReaderRequiresFields(t *testing.T) {
	t.Parallel()
	if _, err := NewKafkaReader(KafkaConfig{Brokers: []string{" "}, Topic: "t", GroupID: "g"}); err == nil {
		t.Fatal("expected error for blank brokers")
	}
	r, err := NewKafkaReader(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: "sms", GroupID: "relay"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg := r.Config(); cfg.Topic != "sms" || cfg.GroupID != "relay" || cfg.MaxBytes != 10e6 {
		t.Fatalf("reader config = %+v", cfg)
	}
	_ = r.Close()
}
