package graph

import (
	"context"

	"legal-assistant-be/pkg/legal/state"
	"legal-assistant-be/pkg/llm"
)

// RunConfig carries cross-cutting settings for one run.
type RunConfig struct {
	SessionID string
	// SuppressStreaming keeps intermediate model output away from the user.
	SuppressStreaming bool
	Tags              map[string]string
}

// LLMOptions returns the call options every internal model call should carry.
func (c RunConfig) LLMOptions(extra ...llm.Option) []llm.Option {
	opts := make([]llm.Option, 0, len(extra)+1)
	if c.SuppressStreaming {
		opts = append(opts, llm.WithInternal())
	}
	return append(opts, extra...)
}

// Stage is one bounded unit of work. Run returns the fields the stage owns;
// Fallback returns a deterministic, schema-valid substitute used whenever Run
// fails, times out, panics or produces an update the state rejects.
type Stage interface {
	Name() string
	Run(ctx context.Context, st *state.State, cfg RunConfig) (state.Update, error)
	Fallback(st *state.State, cause error) state.Update
}

// StageFunc adapts plain functions for stages with a trivial fallback.
type StageFunc struct {
	StageName  string
	RunFunc    func(ctx context.Context, st *state.State, cfg RunConfig) (state.Update, error)
	FallbackFn func(st *state.State, cause error) state.Update
}

func (f StageFunc) Name() string { return f.StageName }

func (f StageFunc) Run(ctx context.Context, st *state.State, cfg RunConfig) (state.Update, error) {
	return f.RunFunc(ctx, st, cfg)
}

func (f StageFunc) Fallback(st *state.State, cause error) state.Update {
	if f.FallbackFn != nil {
		return f.FallbackFn(st, cause)
	}
	return state.Update{Stage: f.StageName}
}
