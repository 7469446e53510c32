// Package describe resolves a selected box's identity to descriptive HTML
// content: normalized name lookup, text fetch, asset rewrite. Selections
// supersede each other; a fetch started for one selection has no observable
// effect once a newer selection or a clear arrives.
package describe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hpsslab/smile-2dvp/internal/types"
)

// Config configures a Resolver.
type Config struct {
	// Mapping is the name → path table. A nil or empty mapping degrades
	// every selection to the missing state.
	Mapping *Mapping
	// Labels maps label ids to display names, the second name candidate.
	Labels map[int]string
	// BaseURL is what mapping paths resolve against.
	BaseURL *url.URL
	// FetchTimeout bounds each content fetch. A hung fetch otherwise
	// leaves the resolver loading forever.
	FetchTimeout time.Duration
	// OnUpdate receives every state transition, in order. Must not call
	// back into the resolver.
	OnUpdate func(types.DescriptionUpdate)
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// Resolver is the description lookup state machine:
// idle → loading → {ready | missing | error}, re-entering loading on each
// new selection. Superseded results are discarded, not surfaced.
type Resolver struct {
	mapping  *Mapping
	labels   map[int]string
	base     *url.URL
	client   *http.Client
	timeout  time.Duration
	onUpdate func(types.DescriptionUpdate)

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	state  types.ResolverState
}

// NewResolver creates a resolver in the idle state.
func NewResolver(cfg Config) *Resolver {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	mapping := cfg.Mapping
	if mapping == nil {
		mapping = NewMapping(nil, nil)
	}
	return &Resolver{
		mapping:  mapping,
		labels:   cfg.Labels,
		base:     cfg.BaseURL,
		client:   client,
		timeout:  timeout,
		onUpdate: cfg.OnUpdate,
		state:    types.StateIdle,
	}
}

// State returns the current resolver state.
func (r *Resolver) State() types.ResolverState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Select starts resolution for a newly selected box, superseding any
// in-flight request (last selection wins).
func (r *Resolver) Select(ctx context.Context, sel types.Selection) {
	r.mu.Lock()

	r.gen++
	gen := r.gen
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}

	// Explicit name first, then the display-name table.
	candidates := make([]string, 0, 2)
	if sel.Name != "" {
		candidates = append(candidates, sel.Name)
	}
	if name := r.labels[sel.LabelID]; name != "" {
		candidates = append(candidates, name)
	}

	key, path, ok := r.mapping.Resolve(candidates)
	if !ok {
		r.state = types.StateMissing
		update := types.NewDescriptionUpdate(sel.TraceID, types.StateMissing)
		r.emitLocked(update)
		r.mu.Unlock()
		slog.Debug("description missing", "trace_id", sel.TraceID, "candidates", candidates)
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	r.cancel = cancel

	r.state = types.StateLoading
	update := types.NewDescriptionUpdate(sel.TraceID, types.StateLoading)
	update.Name = key
	r.emitLocked(update)
	r.mu.Unlock()

	slog.Info("resolving description",
		"trace_id", sel.TraceID,
		"name", key,
		"path", path,
	)

	go r.fetch(fetchCtx, gen, sel.TraceID, key, path)
}

// Clear supersedes any in-flight request and returns to idle, for when the
// user closes the selection dialog.
func (r *Resolver) Clear(traceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gen++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.state = types.StateIdle
	r.emitLocked(types.NewDescriptionUpdate(traceID, types.StateIdle))
}

// fetch loads and rewrites the content, then applies the result only if
// this generation is still current.
func (r *Resolver) fetch(ctx context.Context, gen uint64, traceID, key, path string) {
	contentURL, err := r.resolveURL(path)
	var markup string
	if err == nil {
		markup, err = r.load(ctx, contentURL)
	}
	if err == nil {
		markup, err = RewriteContent(markup, contentURL)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen {
		// Superseded while in flight: silently discard.
		slog.Debug("stale description result discarded",
			"trace_id", traceID,
			"name", key,
		)
		return
	}
	if r.cancel != nil {
		r.cancel() // release the timeout timer; the request is done
		r.cancel = nil
	}

	if err != nil {
		r.state = types.StateError
		update := types.NewDescriptionUpdate(traceID, types.StateError)
		update.Name = key
		update.Error = err.Error()
		r.emitLocked(update)
		slog.Warn("description fetch failed",
			"trace_id", traceID,
			"name", key,
			"error", err,
		)
		return
	}

	r.state = types.StateReady
	update := types.NewDescriptionUpdate(traceID, types.StateReady)
	update.Name = key
	update.HTML = markup
	r.emitLocked(update)
}

func (r *Resolver) load(ctx context.Context, contentURL *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, contentURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build content request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("content fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("content fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read content body: %w", err)
	}
	return string(body), nil
}

func (r *Resolver) resolveURL(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid content path %q: %w", path, err)
	}
	if r.base == nil {
		return ref, nil
	}
	return r.base.ResolveReference(ref), nil
}

// emitLocked publishes a transition while holding the mutex so consumers
// observe transitions in order.
func (r *Resolver) emitLocked(update types.DescriptionUpdate) {
	if r.onUpdate != nil {
		r.onUpdate(update)
	}
}
