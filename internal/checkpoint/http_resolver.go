package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// HTTPResolver exposes pending checkpoints over a local HTTP endpoint so
// external tooling (CI, chat bots, dashboards) can approve or reject a run.
//
//	GET  /checkpoints             -> pending prompts, keyed by slug
//	POST /checkpoints/{slug}      -> {"resolution": "proceed"|"reject"}
type HTTPResolver struct {
	addr  string
	clock func() time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	pending  map[string]*pendingPrompt
}

type pendingPrompt struct {
	Prompt   Prompt    `json:"prompt"`
	Since    time.Time `json:"since"`
	reply    chan Resolution
	resolved bool
}

// HTTPOption customizes an HTTPResolver.
type HTTPOption func(*HTTPResolver)

// WithHTTPClock allows tests to control the pending-since timestamps.
func WithHTTPClock(clock func() time.Time) HTTPOption {
	return func(r *HTTPResolver) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewHTTPResolver prepares a resolver bound to addr ("127.0.0.1:0" picks a
// free port). Start must be called before any checkpoint can resolve.
func NewHTTPResolver(addr string, opts ...HTTPOption) *HTTPResolver {
	r := &HTTPResolver{
		addr:    addr,
		clock:   func() time.Time { return time.Now().UTC() },
		pending: map[string]*pendingPrompt{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (r *HTTPResolver) Start() error {
	listener, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("checkpoint: bind %s: %w", r.addr, err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/checkpoints", r.handleList)
	mux.HandleFunc("/checkpoints/", r.handleDecision)
	server := &http.Server{Handler: mux}

	r.mu.Lock()
	r.listener = listener
	r.server = server
	r.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Serve only errors after Shutdown or a fatal listener fault.
			_ = err
		}
	}()
	return nil
}

// Addr reports the bound listen address.
func (r *HTTPResolver) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return r.addr
	}
	return r.listener.Addr().String()
}

// Shutdown stops the HTTP server and abandons pending prompts.
func (r *HTTPResolver) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	server := r.server
	r.server = nil
	r.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// Await registers the prompt and blocks until a decision is posted or the
// context ends.
func (r *HTTPResolver) Await(ctx context.Context, prompt Prompt) (Resolution, error) {
	slug := promptSlug(prompt)
	entry := &pendingPrompt{
		Prompt: prompt,
		Since:  r.clock(),
		reply:  make(chan Resolution, 1),
	}

	r.mu.Lock()
	if r.server == nil {
		r.mu.Unlock()
		return "", fmt.Errorf("checkpoint: http resolver is not started")
	}
	if _, exists := r.pending[slug]; exists {
		r.mu.Unlock()
		return "", fmt.Errorf("checkpoint: prompt %s is already pending", slug)
	}
	r.pending[slug] = entry
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pending, slug)
		r.mu.Unlock()
	}()

	select {
	case resolution := <-entry.reply:
		return resolution, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *HTTPResolver) handleList(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	r.mu.Lock()
	slugs := make([]string, 0, len(r.pending))
	for slug := range r.pending {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	entries := make([]map[string]any, 0, len(slugs))
	for _, slug := range slugs {
		entry := r.pending[slug]
		entries = append(entries, map[string]any{
			"slug":   slug,
			"prompt": entry.Prompt,
			"since":  entry.Since,
		})
	}
	r.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"pending": entries})
}

func (r *HTTPResolver) handleDecision(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	slug := strings.TrimPrefix(req.URL.Path, "/checkpoints/")
	slug = strings.Trim(slug, "/")
	if slug == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "checkpoint slug is required"})
		return
	}
	var body struct {
		Resolution string `json:"resolution"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	resolution, err := parseResolution(body.Resolution)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	r.mu.Lock()
	entry, ok := r.pending[slug]
	if ok && !entry.resolved {
		entry.resolved = true
		entry.reply <- resolution
	}
	r.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("no pending checkpoint %q", slug)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"slug": slug, "resolution": string(resolution)})
}

func parseResolution(value string) (Resolution, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "proceed", "approve", "yes":
		return Proceed, nil
	case "reject", "no":
		return Reject, nil
	default:
		return "", fmt.Errorf("resolution must be proceed or reject, got %q", value)
	}
}

func promptSlug(prompt Prompt) string {
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(prompt.Title), " ", "-"))
	if slug == "" {
		slug = "checkpoint"
	}
	return slug
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
