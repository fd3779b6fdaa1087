// Package summary implements the read-through, write-through summary cache:
// look the key up, and on a miss or forced refresh budget the reviews,
// generate once, and persist the result before returning it.
package summary

import (
	"context"
	"errors"

	"golang.org/x/sync/singleflight"

	"reblurb-gateway/internal/cache"
	"reblurb-gateway/internal/llm"
)

// Source tells where a returned summary came from.
type Source string

const (
	SourceCache     Source = "cache"
	SourceGenerated Source = "generated"
)

// Request is one summarize call. A nil Reviews means the caller sent no
// batch; an empty non-nil slice is a batch with no reviews.
type Request struct {
	ProductID    string
	Site         string
	PromptType   string
	Reviews      []string
	ForceRefresh bool
}

type Result struct {
	Key     cache.SummaryKey
	Summary string
	Source  Source
}

// Config holds the orchestrator's dependencies and policy.
type Config struct {
	Store     cache.Store
	Generator llm.Generator

	// Prompts defaults to DefaultPrompts for empty fields.
	Prompts Prompts
	// Keys sets the unknown-prompt-type policy.
	Keys     cache.KeyBuilder
	Budgeter ContentBudgeter
	// CharLimit is the content budget, see CharLimit().
	CharLimit int

	// Coalesce lets at most one build per key run at a time; concurrent
	// callers for the same key wait for the running build and share its
	// result. Without it, concurrent misses each generate and the last
	// Put wins.
	Coalesce bool
}

// Orchestrator holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	store     cache.Store
	generator llm.Generator
	prompts   Prompts
	keys      cache.KeyBuilder
	budgeter  ContentBudgeter
	charLimit int

	inflight *singleflight.Group // nil unless Coalesce
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("summary: store is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("summary: generator is required")
	}
	if cfg.CharLimit <= 0 {
		return nil, errors.New("summary: char limit must be positive")
	}

	defaults := DefaultPrompts()
	if cfg.Prompts.Sentences == "" {
		cfg.Prompts.Sentences = defaults.Sentences
	}
	if cfg.Prompts.Bullets == "" {
		cfg.Prompts.Bullets = defaults.Bullets
	}

	o := &Orchestrator{
		store:     cfg.Store,
		generator: cfg.Generator,
		prompts:   cfg.Prompts,
		keys:      cfg.Keys,
		budgeter:  cfg.Budgeter,
		charLimit: cfg.CharLimit,
	}
	if cfg.Coalesce {
		o.inflight = &singleflight.Group{}
	}
	return o, nil
}

// Summarize returns the cached summary for the request's key unless
// ForceRefresh is set; otherwise it generates exactly once and overwrites
// the stored record before returning.
func (o *Orchestrator) Summarize(ctx context.Context, req Request) (Result, error) {
	key, err := o.keys.Build(req.ProductID, req.Site, req.PromptType)
	if err != nil {
		return Result{}, &Error{Phase: PhaseKey, Err: err}
	}

	rec, hit, err := o.store.Get(ctx, key)
	if err != nil {
		return Result{Key: key}, &Error{Phase: PhaseLookup, Key: key.String(), Err: err}
	}
	if hit && !req.ForceRefresh {
		return Result{Key: key, Summary: rec.Summary, Source: SourceCache}, nil
	}

	if req.Reviews == nil {
		return Result{Key: key}, &Error{Phase: PhaseReviews, Key: key.String(), Err: ErrMissingReviews}
	}

	summary, err := o.build(ctx, key, req.Reviews)
	if err != nil {
		return Result{Key: key}, err
	}
	return Result{Key: key, Summary: summary, Source: SourceGenerated}, nil
}

// Lookup reads the stored summary without ever generating or writing.
func (o *Orchestrator) Lookup(ctx context.Context, productID, site, promptType string) (cache.Record, bool, error) {
	key, err := o.keys.Build(productID, site, promptType)
	if err != nil {
		return cache.Record{}, false, &Error{Phase: PhaseKey, Err: err}
	}
	rec, ok, err := o.store.Get(ctx, key)
	if err != nil {
		return cache.Record{}, false, &Error{Phase: PhaseLookup, Key: key.String(), Err: err}
	}
	return rec, ok, nil
}

func (o *Orchestrator) build(ctx context.Context, key cache.SummaryKey, reviews []string) (string, error) {
	if o.inflight == nil {
		return o.generateAndStore(ctx, key, reviews)
	}

	// The shared build outlives the caller that started it. Adapter
	// timeouts bound it.
	buildCtx := context.WithoutCancel(ctx)
	ch := o.inflight.DoChan(key.String(), func() (any, error) {
		return o.generateAndStore(buildCtx, key, reviews)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", &Error{Phase: PhaseGenerate, Key: key.String(), Err: ctx.Err()}
	}
}

func (o *Orchestrator) generateAndStore(ctx context.Context, key cache.SummaryKey, reviews []string) (string, error) {
	prompt, err := o.prompts.For(key.PromptType)
	if err != nil {
		return "", &Error{Phase: PhaseGenerate, Key: key.String(), Err: err}
	}

	content := o.budgeter.Budget(reviews, o.charLimit)

	summary, err := o.generator.Generate(ctx, prompt, content)
	if err != nil {
		return "", &Error{Phase: PhaseGenerate, Key: key.String(), Err: err}
	}

	if err := o.store.Put(ctx, key, summary); err != nil {
		return "", &Error{Phase: PhaseStore, Key: key.String(), Err: err}
	}
	return summary, nil
}
