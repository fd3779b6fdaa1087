package summary

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reblurb-gateway/internal/cache"
	"reblurb-gateway/internal/llm"
)

// countingStore wraps a MemoryStore and counts calls.
type countingStore struct {
	*cache.MemoryStore
	gets, puts atomic.Int32
	getErr     error
	putErr     error
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: cache.NewMemoryStore()}
}

func (s *countingStore) Get(ctx context.Context, key cache.SummaryKey) (cache.Record, bool, error) {
	s.gets.Add(1)
	if s.getErr != nil {
		return cache.Record{}, false, s.getErr
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *countingStore) Put(ctx context.Context, key cache.SummaryKey, summary string) error {
	s.puts.Add(1)
	if s.putErr != nil {
		return s.putErr
	}
	return s.MemoryStore.Put(ctx, key, summary)
}

type recordingGenerator struct {
	mu       sync.Mutex
	calls    int
	prompts  []string
	contents []string
	out      string
	err      error
}

func (g *recordingGenerator) Generate(ctx context.Context, stylePrompt, content string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.prompts = append(g.prompts, stylePrompt)
	g.contents = append(g.contents, content)
	return g.out, g.err
}

func newTestOrchestrator(t *testing.T, store cache.Store, gen llm.Generator) *Orchestrator {
	t.Helper()
	o, err := New(Config{Store: store, Generator: gen, CharLimit: CharLimit(16000, 250)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestSummarizeMissThenHit(t *testing.T) {
	store := newCountingStore()
	gen := &recordingGenerator{out: "Users like it."}
	o := newTestOrchestrator(t, store, gen)

	req := Request{ProductID: "abc", Site: "ebay", PromptType: "sentences", Reviews: []string{"Great product!", "Works well."}}

	res, err := o.Summarize(context.Background(), req)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if res.Summary != "Users like it." || res.Source != SourceGenerated {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Key.String() != "abc:ebay:sentences" {
		t.Fatalf("unexpected key %q", res.Key.String())
	}
	if gen.calls != 1 {
		t.Fatalf("expected one generation, got %d", gen.calls)
	}
	if gen.contents[0] != "Great product!|Works well." {
		t.Fatalf("unexpected content %q", gen.contents[0])
	}
	if gen.prompts[0] != DefaultSentencesPrompt {
		t.Fatalf("unexpected style prompt %q", gen.prompts[0])
	}

	rec, ok, _ := store.MemoryStore.Get(context.Background(), res.Key)
	if !ok || rec.Summary != "Users like it." {
		t.Fatalf("summary not persisted: %+v ok=%v", rec, ok)
	}

	// Repeat calls are served from the store, with or without reviews.
	for _, reviews := range [][]string{req.Reviews, nil, {"something else"}} {
		req.Reviews = reviews
		res, err := o.Summarize(context.Background(), req)
		if err != nil {
			t.Fatalf("cached Summarize: %v", err)
		}
		if res.Summary != "Users like it." || res.Source != SourceCache {
			t.Fatalf("expected cached summary, got %+v", res)
		}
	}
	if gen.calls != 1 {
		t.Fatalf("hits must not generate, got %d calls", gen.calls)
	}
	if store.puts.Load() != 1 {
		t.Fatalf("hits must not write, got %d puts", store.puts.Load())
	}
}

func TestSummarizeForceRefreshOverwrites(t *testing.T) {
	store := newCountingStore()
	gen := &recordingGenerator{out: "old"}
	o := newTestOrchestrator(t, store, gen)
	ctx := context.Background()

	req := Request{ProductID: "abc", Site: "ebay", PromptType: "bullets", Reviews: []string{"r1"}}
	if _, err := o.Summarize(ctx, req); err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	gen.out = "new"
	req.ForceRefresh = true
	res, err := o.Summarize(ctx, req)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.Summary != "new" || res.Source != SourceGenerated {
		t.Fatalf("unexpected refresh result %+v", res)
	}
	if gen.prompts[1] != DefaultBulletsPrompt {
		t.Fatalf("bullets request used wrong prompt")
	}

	req.ForceRefresh = false
	res, _ = o.Summarize(ctx, req)
	if res.Summary != "new" {
		t.Fatalf("refresh did not overwrite, got %q", res.Summary)
	}
}

func TestSummarizeMissingReviews(t *testing.T) {
	store := newCountingStore()
	gen := &recordingGenerator{out: "x"}
	o := newTestOrchestrator(t, store, gen)

	_, err := o.Summarize(context.Background(), Request{ProductID: "abc", Site: "ebay", PromptType: "sentences"})
	if !errors.Is(err, ErrMissingReviews) {
		t.Fatalf("expected ErrMissingReviews, got %v", err)
	}
	var sErr *Error
	if !errors.As(err, &sErr) || sErr.Phase != PhaseReviews || sErr.Key != "abc:ebay:sentences" {
		t.Fatalf("unexpected error detail %#v", err)
	}
	if gen.calls != 0 || store.puts.Load() != 0 {
		t.Fatalf("missing reviews must not generate or write")
	}

	// ForceRefresh without reviews is also rejected.
	_, err = o.Summarize(context.Background(), Request{ProductID: "abc", Site: "ebay", PromptType: "sentences", ForceRefresh: true})
	if !errors.Is(err, ErrMissingReviews) {
		t.Fatalf("expected ErrMissingReviews on refresh, got %v", err)
	}
}

func TestSummarizeEmptyBatchGenerates(t *testing.T) {
	gen := &recordingGenerator{out: "No reviews to summarize."}
	o := newTestOrchestrator(t, newCountingStore(), gen)

	res, err := o.Summarize(context.Background(), Request{ProductID: "abc", Site: "ebay", PromptType: "sentences", Reviews: []string{}})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if gen.calls != 1 || gen.contents[0] != "" {
		t.Fatalf("expected one call with empty content, got %d %q", gen.calls, gen.contents)
	}
	if res.Source != SourceGenerated {
		t.Fatalf("unexpected source %q", res.Source)
	}
}

func TestSummarizeGenerationFailureDoesNotWrite(t *testing.T) {
	store := newCountingStore()
	gen := &recordingGenerator{err: llm.ErrGenerationUnavailable}
	o := newTestOrchestrator(t, store, gen)

	_, err := o.Summarize(context.Background(), Request{ProductID: "abc", Site: "ebay", PromptType: "sentences", Reviews: []string{"r"}})
	if !errors.Is(err, llm.ErrGenerationUnavailable) {
		t.Fatalf("expected ErrGenerationUnavailable, got %v", err)
	}
	var sErr *Error
	if !errors.As(err, &sErr) || sErr.Phase != PhaseGenerate {
		t.Fatalf("expected generate phase, got %#v", err)
	}
	if store.puts.Load() != 0 || store.Len() != 0 {
		t.Fatalf("failed generation must not write")
	}
}

func TestSummarizeStoreErrors(t *testing.T) {
	storeDown := errors.Join(cache.ErrStoreUnavailable, errors.New("connection refused"))

	store := newCountingStore()
	store.getErr = storeDown
	gen := &recordingGenerator{out: "x"}
	o := newTestOrchestrator(t, store, gen)

	req := Request{ProductID: "abc", Site: "ebay", PromptType: "sentences", Reviews: []string{"r"}}
	_, err := o.Summarize(context.Background(), req)
	var sErr *Error
	if !errors.Is(err, cache.ErrStoreUnavailable) || !errors.As(err, &sErr) || sErr.Phase != PhaseLookup {
		t.Fatalf("expected lookup store error, got %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("failed lookup must not generate")
	}

	store = newCountingStore()
	store.putErr = storeDown
	o = newTestOrchestrator(t, store, gen)
	res, err := o.Summarize(context.Background(), req)
	if !errors.Is(err, cache.ErrStoreUnavailable) || !errors.As(err, &sErr) || sErr.Phase != PhaseStore {
		t.Fatalf("expected store phase error, got %v", err)
	}
	if res.Summary != "" {
		t.Fatalf("unpersisted summary must not be returned, got %q", res.Summary)
	}
}

func TestSummarizeInvalidKey(t *testing.T) {
	store := newCountingStore()
	o := newTestOrchestrator(t, store, &recordingGenerator{})

	_, err := o.Summarize(context.Background(), Request{ProductID: "abc", Site: "ebay", PromptType: "haiku", Reviews: []string{"r"}})
	if !errors.Is(err, cache.ErrInvalidKeyInput) {
		t.Fatalf("expected ErrInvalidKeyInput, got %v", err)
	}
	if store.gets.Load() != 0 {
		t.Fatalf("invalid key must not reach the store")
	}
}

func TestSummarizeUnknownPromptFallback(t *testing.T) {
	keys, err := cache.NewKeyBuilder("sentences")
	if err != nil {
		t.Fatalf("NewKeyBuilder: %v", err)
	}
	gen := &recordingGenerator{out: "x"}
	o, err := New(Config{Store: newCountingStore(), Generator: gen, Keys: keys, CharLimit: 100})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := o.Summarize(context.Background(), Request{ProductID: "abc", Site: "ebay", PromptType: "haiku", Reviews: []string{"r"}})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if res.Key.String() != "abc:ebay:sentences" {
		t.Fatalf("fallback should store under the canonical key, got %q", res.Key.String())
	}
}

func TestLookup(t *testing.T) {
	store := newCountingStore()
	gen := &recordingGenerator{out: "sum"}
	o := newTestOrchestrator(t, store, gen)
	ctx := context.Background()

	if _, ok, err := o.Lookup(ctx, "abc", "ebay", "sentences"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if _, err := o.Summarize(ctx, Request{ProductID: "abc", Site: "ebay", PromptType: "sentences", Reviews: []string{"r"}}); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	rec, ok, err := o.Lookup(ctx, "abc", "ebay", "sentences")
	if err != nil || !ok || rec.Summary != "sum" {
		t.Fatalf("expected hit, got %+v ok=%v err=%v", rec, ok, err)
	}
	if gen.calls != 1 || store.puts.Load() != 1 {
		t.Fatalf("Lookup must not generate or write")
	}
}

func TestNewValidation(t *testing.T) {
	gen := &recordingGenerator{}
	store := cache.NewMemoryStore()
	cases := []Config{
		{Generator: gen, CharLimit: 10},
		{Store: store, CharLimit: 10},
		{Store: store, Generator: gen},
	}
	for i, cfg := range cases {
		if _, err := New(cfg); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestSummarizeCoalescesConcurrentMisses(t *testing.T) {
	store := newCountingStore()

	var calls atomic.Int32
	release := make(chan struct{})
	gen := llm.GeneratorFunc(func(ctx context.Context, stylePrompt, content string) (string, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	})

	o, err := New(Config{Store: store, Generator: gen, CharLimit: 100, Coalesce: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := o.Summarize(context.Background(), Request{ProductID: "abc", Site: "ebay", PromptType: "sentences", Reviews: []string{"r"}})
			results[i], errs[i] = res.Summary, err
		}(i)
	}

	// Let every caller either join the flight or finish its miss lookup.
	deadline := time.Now().Add(2 * time.Second)
	for store.gets.Load() < n && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil || results[i] != "shared" {
			t.Fatalf("caller %d: got %q, %v", i, results[i], errs[i])
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one generation, got %d", got)
	}
	if got := store.puts.Load(); got != 1 {
		t.Fatalf("expected one write, got %d", got)
	}
}

func TestSummarizeCoalescedCallerCancel(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	gen := llm.GeneratorFunc(func(ctx context.Context, stylePrompt, content string) (string, error) {
		<-release
		return "late", nil
	})

	o, err := New(Config{Store: cache.NewMemoryStore(), Generator: gen, CharLimit: 100, Coalesce: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = o.Summarize(ctx, Request{ProductID: "abc", Site: "ebay", PromptType: "sentences", Reviews: []string{"r"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
