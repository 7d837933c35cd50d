package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	logx "smsrelay/pkg/logx"
)

func TestHTTPDeliver(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		status     int
		wantErr    bool
		wantStatus int
	}{
		{name: "accepted", status: http.StatusAccepted},
		{name: "rejected", status: http.StatusUnprocessableEntity, wantErr: true, wantStatus: http.StatusUnprocessableEntity},
		{name: "upstream down", status: http.StatusServiceUnavailable, wantErr: true, wantStatus: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got httpMessage
			var auth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				auth = r.Header.Get("Authorization")
				_ = json.NewDecoder(r.Body).Decode(&got)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, "nope")
			}))
			defer srv.Close()

			d, err := Open(Config{Driver: "http", URL: srv.URL, AuthHeader: "Bearer k"}, logx.Nop())
			if err != nil {
				t.Fatal(err)
			}
			err = d.Deliver(context.Background(), "+923001", "hello")
			if got.To != "+923001" || got.Message != "hello" || auth != "Bearer k" {
				t.Fatalf("unexpected request %+v auth=%q", got, auth)
			}
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Deliver: %v", err)
				}
				return
			}
			var de *DeliveryError
			if !errors.As(err, &de) {
				t.Fatalf("err = %v, want *DeliveryError", err)
			}
			if de.Status != tt.wantStatus || de.Destination != "+923001" {
				t.Fatalf("unexpected DeliveryError %+v", de)
			}
		})
	}
}

func TestHTTPDeliverUnreachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d, err := NewHTTP(Config{URL: url}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	var de *DeliveryError
	if err := d.Deliver(context.Background(), "+1", "m"); !errors.As(err, &de) || de.Status != 0 {
		t.Fatalf("err = %v", err)
	}
}

func TestLogDeliver(t *testing.T) {
	t.Parallel()
	d := NewLog(logx.Nop())
	if err := d.Deliver(context.Background(), "+1", "m"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Deliver(ctx, "+1", "m"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestOpenValidation(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "carrier-pigeon"}, logx.Nop()); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("err = %v", err)
	}
	if _, err := Open(Config{Driver: "http"}, logx.Nop()); err == nil {
		t.Fatal("http driver without url should fail")
	}
	if _, err := Open(Config{Driver: "telegram"}, logx.Nop()); err == nil {
		t.Fatal("telegram driver without token should fail")
	}
	if d, err := Open(Config{}, logx.Nop()); err != nil || d == nil {
		t.Fatalf("default driver: %v", err)
	}
}

func TestTelegramDeliver(t *testing.T) {
	t.Parallel()
	var (
		mu    sync.Mutex
		paths []string
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		if s, ok := body["text"].(string); ok {
			texts = append(texts, s)
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"},"text":"x"}}`)
	}))
	defer srv.Close()

	tg, err := NewTelegram(TelegramConfig{Token: "123:abc", APIURL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}

	if err := tg.Deliver(context.Background(), "not-a-chat", "hi"); err == nil {
		t.Fatal("non-numeric destination should fail")
	}

	long := strings.Repeat("a", telegramTextLimit+10)
	if err := tg.Deliver(context.Background(), "42", long); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 2 {
		t.Fatalf("requests = %d, want 2 chunks", len(paths))
	}
	if paths[0] != "/bot123:abc/sendMessage" {
		t.Fatalf("path = %q", paths[0])
	}
	if len(texts) == 2 && len(texts[0])+len(texts[1]) != len(long) {
		t.Fatalf("chunks lost text: %d + %d", len(texts[0]), len(texts[1]))
	}
}

func TestSplitText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		in    string
		limit int
		want  []string
	}{
		{name: "short", in: "hello", limit: 10, want: []string{"hello"}},
		{name: "hard split", in: "abcdefghij", limit: 4, want: []string{"abcd", "efgh", "ij"}},
		{name: "newline preferred", in: "abcdefg\nhijk", limit: 10, want: []string{"abcdefg", "hijk"}},
		{name: "tiny head ignores newline", in: "a\nbcdefghijkl", limit: 6, want: []string{"a\nbcde", "fghijk", "l"}},
		{name: "multibyte", in: "ééééé", limit: 2, want: []string{"éé", "éé", "é"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := splitText(tt.in, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %q, want %q", got, tt.want)
				}
			}
		})
	}
}
