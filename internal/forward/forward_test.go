package forward

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"smsrelay/internal/relay"
	logx "smsrelay/pkg/logx"
)

func TestForwardPolicy(t *testing.T) {
	t.Parallel()
	base := relay.Settings{Enabled: true, AcceptedOriginPrefix: "+92", ForwardURL: "http://127.0.0.1:1/in"}
	tests := []struct {
		name string
		from string
		mod  func(*relay.Settings)
		want error
	}{
		{name: "disabled", from: "+923001", mod: func(s *relay.Settings) { s.Enabled = false }, want: ErrDisabled},
		{name: "foreign origin", from: "+443001", want: ErrOriginMismatch},
		{name: "no url", from: "+923001", mod: func(s *relay.Settings) { s.ForwardURL = " " }, want: ErrNoURL},
		{name: "not started", from: "+923001", want: ErrStopped},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := base
			if tt.mod != nil {
				tt.mod(&s)
			}
			f := New(time.Second, logx.Nop())
			if err := f.Forward(context.Background(), tt.from, "hi", s); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestForwardPostsMessage(t *testing.T) {
	t.Parallel()
	var (
		mu   sync.Mutex
		got  message
		auth string
	)
	done := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&got)
		auth = r.Header.Get("Authorization")
		mu.Unlock()
		done <- struct{}{}
	}))
	defer srv.Close()

	f := New(time.Second, logx.Nop())
	f.Start(context.Background())
	s := relay.Settings{Enabled: true, AcceptedOriginPrefix: "+92", ForwardURL: srv.URL, AuthHeader: "Bearer k"}
	if err := f.Forward(context.Background(), "+923001", "ping", s); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("forward never arrived")
	}
	if err := f.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got.From != "+923001" || got.Message != "ping" || auth != "Bearer k" {
		t.Fatalf("got %+v auth=%q", got, auth)
	}
	if err := f.Forward(context.Background(), "+923001", "late", s); !errors.Is(err, ErrStopped) {
		t.Fatalf("Forward after Stop = %v", err)
	}
}
