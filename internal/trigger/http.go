package trigger

import (
	"encoding/json"
	"io"
	"net/http"
)

const maxTriggerBytes = 64 << 10

// ServeHTTP handles POST /v1/trigger. A policy rejection is still a 200; the
// body reports the terminal state.
func (in *Ingestor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, maxTriggerBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	req, err := Decode(b, in.now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res := in.Handle(r.Context(), req)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ViewOf(res))
}
