package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	hpprof "net/http/pprof"
	"strings"

	"smsrelay/internal/metrics"
	"smsrelay/internal/relay"
	"smsrelay/internal/storage"
)

// History is the ledger view served on /v1/history.
type History interface {
	Snapshot() []relay.HistoryEntry
	Clear(ctx context.Context) error
}

// InboundFunc forwards one received message. A nil error means queued.
type InboundFunc func(ctx context.Context, from, message string) error

// Handlers are the domain endpoints. Nil members are not mounted.
type Handlers struct {
	Trigger http.Handler
	Inbound InboundFunc
	History History
	Health  func() error
}

// Handler returns the full route table for cfg. It is what the server
// serves and is usable directly with httptest.
func (s *Service) Handler() http.Handler {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()
	return s.routes(cur)
}

func (s *Service) routes(cur Config) http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.Handler) http.Handler { return withAuth(cur.Token, h) }

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if s.h.Health != nil {
			if err := s.h.Health(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = io.WriteString(w, "ok")
	})
	mux.Handle("/metrics", wrap(metrics.Handler()))

	if s.h.Trigger != nil {
		mux.Handle("/v1/trigger", wrap(s.h.Trigger))
	}
	if s.h.Inbound != nil {
		mux.Handle("/v1/inbound", wrap(http.HandlerFunc(s.inbound)))
	}
	if s.h.History != nil {
		mux.Handle("/v1/history", wrap(http.HandlerFunc(s.history)))
	}

	if cur.Pprof {
		mux.Handle("/debug/pprof/", wrap(http.HandlerFunc(hpprof.Index)))
		mux.Handle("/debug/pprof/cmdline", wrap(http.HandlerFunc(hpprof.Cmdline)))
		mux.Handle("/debug/pprof/profile", wrap(http.HandlerFunc(hpprof.Profile)))
		mux.Handle("/debug/pprof/symbol", wrap(http.HandlerFunc(hpprof.Symbol)))
		mux.Handle("/debug/pprof/trace", wrap(http.HandlerFunc(hpprof.Trace)))
	}
	return mux
}

type inboundRequest struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

type inboundResponse struct {
	Queued bool   `json:"queued"`
	Reason string `json:"reason,omitempty"`
}

func (s *Service) inbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var in inboundRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&in); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(in.From) == "" {
		http.Error(w, "from is required", http.StatusBadRequest)
		return
	}
	if err := s.h.Inbound(r.Context(), in.From, in.Message); err != nil {
		writeJSON(w, http.StatusOK, inboundResponse{Reason: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, inboundResponse{Queued: true})
}

func (s *Service) history(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, storage.ToRecords(s.h.History.Snapshot()))
	case http.MethodDelete:
		if err := s.h.History.Clear(r.Context()); err != nil && !errors.Is(err, context.Canceled) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// withAuth requires "Authorization: Bearer <token>".
func withAuth(token string, h http.Handler) http.Handler {
	tok := []byte(strings.TrimSpace(token))
	if len(tok) == 0 {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const p = "Bearer "
		ah := r.Header.Get("Authorization")
		if strings.HasPrefix(ah, p) {
			got := []byte(strings.TrimSpace(strings.TrimPrefix(ah, p)))
			if subtle.ConstantTimeCompare(got, tok) == 1 {
				h.ServeHTTP(w, r)
				return
			}
		}
		unauthorized(w)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
