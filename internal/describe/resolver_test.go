package describe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hpsslab/smile-2dvp/internal/types"
)

// updateSink collects resolver transitions for assertions.
type updateSink struct {
	mu      sync.Mutex
	updates []types.DescriptionUpdate
}

func (s *updateSink) add(u types.DescriptionUpdate) {
	s.mu.Lock()
	s.updates = append(s.updates, u)
	s.mu.Unlock()
}

func (s *updateSink) snapshot() []types.DescriptionUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.DescriptionUpdate, len(s.updates))
	copy(out, s.updates)
	return out
}

func (s *updateSink) waitFor(t *testing.T, state types.ResolverState) types.DescriptionUpdate {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		for _, u := range s.snapshot() {
			if u.State == state {
				return u
			}
		}
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for state %q, got %+v", state, s.snapshot())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func newTestResolver(t *testing.T, server *httptest.Server, mapping *Mapping, labels map[int]string) (*Resolver, *updateSink) {
	t.Helper()
	sink := &updateSink{}
	var base *url.URL
	if server != nil {
		base = mustURL(t, server.URL+"/")
	}
	r := NewResolver(Config{
		Mapping:      mapping,
		Labels:       labels,
		BaseURL:      base,
		FetchTimeout: time.Second,
		OnUpdate:     sink.add,
	})
	return r, sink
}

// TestResolveReadyViaLabelTable exercises the happy path: the box has no
// explicit name, the label table supplies one, the underscore variant hits
// the mapping, content is fetched and rewritten.
func TestResolveReadyViaLabelTable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/desc/a.html" {
			http.NotFound(w, req)
			return
		}
		w.Write([]byte(`<html><body><article><img src="pic.png"></article></body></html>`))
	}))
	defer server.Close()

	mapping := NewMapping(map[string]string{"ald_device": "desc/a.html"}, nil)
	r, sink := newTestResolver(t, server, mapping, map[int]string{7: "ALD Device"})

	r.Select(context.Background(), types.Selection{TraceID: "t1", LabelID: 7})

	ready := sink.waitFor(t, types.StateReady)
	if ready.Name != "ald_device" {
		t.Errorf("ready name = %q, want ald_device", ready.Name)
	}
	// Relative asset resolved against the content document's location.
	if !strings.Contains(ready.HTML, server.URL+"/desc/pic.png") {
		t.Errorf("asset not rewritten:\n%s", ready.HTML)
	}
	if r.State() != types.StateReady {
		t.Errorf("state = %q, want ready", r.State())
	}
}

// TestMissingWithoutFetch verifies an unmapped name transitions straight
// to missing with no request issued.
func TestMissingWithoutFetch(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hits++
	}))
	defer server.Close()

	mapping := NewMapping(map[string]string{"ald_device": "desc/a.html"}, nil)
	r, sink := newTestResolver(t, server, mapping, nil)

	r.Select(context.Background(), types.Selection{TraceID: "t1", Name: "Mystery Machine"})

	sink.waitFor(t, types.StateMissing)
	if hits != 0 {
		t.Errorf("fetch attempted for unmapped name (%d hits)", hits)
	}
	if r.State() != types.StateMissing {
		t.Errorf("state = %q, want missing", r.State())
	}
}

// TestEmptyMappingDegrades verifies a missing mapping document means
// missing for every selection, not a crash.
func TestEmptyMappingDegrades(t *testing.T) {
	r, sink := newTestResolver(t, nil, nil, map[int]string{1: "ALD Device"})

	r.Select(context.Background(), types.Selection{TraceID: "t1", LabelID: 1})
	sink.waitFor(t, types.StateMissing)
}

// TestLastSelectionWins: selecting A then B before A's fetch resolves must
// publish only B's content as ready.
func TestLastSelectionWins(t *testing.T) {
	releaseA := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/desc/a.html":
			select {
			case <-releaseA:
			case <-req.Context().Done():
				return
			}
			w.Write([]byte(`<p>content A</p>`))
		case "/desc/b.html":
			w.Write([]byte(`<p>content B</p>`))
		default:
			http.NotFound(w, req)
		}
	}))
	defer server.Close()

	mapping := NewMapping(map[string]string{
		"tool_a": "desc/a.html",
		"tool_b": "desc/b.html",
	}, nil)
	r, sink := newTestResolver(t, server, mapping, nil)

	r.Select(context.Background(), types.Selection{TraceID: "a", Name: "Tool A"})
	r.Select(context.Background(), types.Selection{TraceID: "b", Name: "Tool B"})
	close(releaseA)

	ready := sink.waitFor(t, types.StateReady)
	if ready.TraceID != "b" || !strings.Contains(ready.HTML, "content B") {
		t.Errorf("ready update = %+v, want selection B", ready)
	}

	// Give A's stale result a chance to surface, then verify it never did.
	time.Sleep(50 * time.Millisecond)
	for _, u := range sink.snapshot() {
		if u.State == types.StateReady && u.TraceID == "a" {
			t.Errorf("superseded selection A published ready: %+v", u)
		}
	}
}

// TestClearSupersedesInflight verifies closing the selection discards the
// in-flight result and returns to idle.
func TestClearSupersedesInflight(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		select {
		case <-block:
		case <-req.Context().Done():
			return
		}
		w.Write([]byte(`<p>late</p>`))
	}))
	defer server.Close()

	mapping := NewMapping(map[string]string{"tool_a": "desc/a.html"}, nil)
	r, sink := newTestResolver(t, server, mapping, nil)

	r.Select(context.Background(), types.Selection{TraceID: "a", Name: "Tool A"})
	r.Clear("a")
	close(block)

	sink.waitFor(t, types.StateIdle)
	time.Sleep(50 * time.Millisecond)
	for _, u := range sink.snapshot() {
		if u.State == types.StateReady {
			t.Errorf("cleared selection still published ready: %+v", u)
		}
	}
	if r.State() != types.StateIdle {
		t.Errorf("state = %q, want idle", r.State())
	}
}

// TestFetchFailure verifies a non-200 response surfaces as the error
// state, scoped to the resolver.
func TestFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	mapping := NewMapping(map[string]string{"tool_a": "desc/a.html"}, nil)
	r, sink := newTestResolver(t, server, mapping, nil)

	r.Select(context.Background(), types.Selection{TraceID: "a", Name: "Tool A"})

	errUpdate := sink.waitFor(t, types.StateError)
	if errUpdate.Error == "" {
		t.Error("error state carries no detail")
	}
}

// A mapping path that does not parse as a URL, combined with no base URL to
// fall back on, must surface the error state rather than crash the fetch.
func TestUnparsablePathWithoutBase(t *testing.T) {
	mapping := NewMapping(map[string]string{"tool_a": "desc/%zz.html"}, nil)
	r, sink := newTestResolver(t, nil, mapping, nil)

	r.Select(context.Background(), types.Selection{TraceID: "a", Name: "Tool A"})

	errUpdate := sink.waitFor(t, types.StateError)
	if errUpdate.Error == "" {
		t.Error("error state carries no detail")
	}
	if !strings.Contains(errUpdate.Error, "invalid content path") {
		t.Errorf("error = %q, want invalid content path detail", errUpdate.Error)
	}
}
