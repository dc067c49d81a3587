package graph

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"legal-assistant-be/internal/pkg/logger"
	"legal-assistant-be/pkg/legal/state"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultStageTimeout = 45 * time.Second
	DefaultMaxSteps     = 32
)

var (
	ErrStageTimeout = errors.New("stage timed out")
	ErrStagePanic   = errors.New("stage panicked")
	ErrMaxSteps     = errors.New("run exceeded max steps")
)

// Observer receives execution events. Implementations must not block.
type Observer interface {
	StageStarted(cfg RunConfig, node NodeID, stage string)
	StageFinished(cfg RunConfig, node NodeID, stage string, took time.Duration, cause error)
	Routed(cfg RunConfig, node NodeID, router, label string)
	RunFinished(cfg RunConfig, graph string, terminal NodeID, suspended bool)
}

// Result describes how a run ended.
type Result struct {
	Terminal  NodeID
	Suspended bool
	Path      []NodeID
	// Fallbacks lists stages that degraded to their fallback output.
	Fallbacks []string
}

type Executor struct {
	StageTimeout time.Duration
	MaxSteps     int
	Observers    []Observer
	Logger       logger.ILogger
}

func NewExecutor(log logger.ILogger, stageTimeout time.Duration, observers ...Observer) *Executor {
	if stageTimeout <= 0 {
		stageTimeout = DefaultStageTimeout
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Executor{
		StageTimeout: stageTimeout,
		MaxSteps:     DefaultMaxSteps,
		Observers:    observers,
		Logger:       log,
	}
}

// Run walks g from its entry node, merging each stage's update into st.
// Stage failures never surface here; only structural faults do.
func (e *Executor) Run(ctx context.Context, g *Graph, st *state.State, cfg RunConfig) (Result, error) {
	tracer := otel.Tracer("legal-graph")
	ctx, span := tracer.Start(ctx, "graph."+g.name)
	defer span.End()

	maxSteps := e.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	var res Result
	current := g.entry
	for step := 0; ; step++ {
		if step >= maxSteps {
			span.SetStatus(codes.Error, ErrMaxSteps.Error())
			return res, fmt.Errorf("%w: %d in graph %s", ErrMaxSteps, maxSteps, g.name)
		}
		n, ok := g.nodes[current]
		if !ok {
			return res, fmt.Errorf("%w: unknown node %s", ErrInvalidGraph, current)
		}
		res.Path = append(res.Path, current)

		fellBack, err := e.execute(ctx, n, st, cfg)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return res, err
		}
		if fellBack {
			res.Fallbacks = append(res.Fallbacks, n.stage.Name())
		}

		next := n.next
		if n.cond != nil {
			label := n.cond.route(st)
			target, ok := n.cond.targets[label]
			if !ok {
				return res, fmt.Errorf("%w: router %s returned undeclared label %q", ErrInvalidGraph, n.cond.router, label)
			}
			e.Logger.Debug("graph", "routed", map[string]interface{}{
				"session_id": cfg.SessionID,
				"node":       string(current),
				"router":     n.cond.router,
				"label":      label,
			})
			for _, o := range e.Observers {
				o.Routed(cfg, current, n.cond.router, label)
			}
			next = target
		}

		if next == End {
			res.Terminal = current
			res.Suspended = n.suspend && st.Phase != state.PhaseIdle
			span.SetAttributes(
				attribute.String("graph.terminal", string(current)),
				attribute.Bool("graph.suspended", res.Suspended),
			)
			for _, o := range e.Observers {
				o.RunFinished(cfg, g.name, current, res.Suspended)
			}
			return res, nil
		}
		current = next
	}
}

// execute runs one stage and merges its output, substituting the fallback
// on any failure. The returned error is set only when the fallback itself
// cannot be merged.
func (e *Executor) execute(ctx context.Context, n *node, st *state.State, cfg RunConfig) (bool, error) {
	name := n.stage.Name()
	ctx, span := otel.Tracer("legal-graph").Start(ctx, "stage."+name)
	defer span.End()
	span.SetAttributes(attribute.String("stage.node", string(n.id)))

	for _, o := range e.Observers {
		o.StageStarted(cfg, n.id, name)
	}
	started := time.Now()

	upd, cause := e.invoke(ctx, n.stage, st, cfg)
	if cause == nil {
		if err := state.Merge(st, upd); err != nil {
			cause = fmt.Errorf("merge rejected: %w", err)
		}
	}

	if cause != nil {
		span.RecordError(cause)
		span.SetStatus(codes.Error, "fallback")
		e.Logger.Warn("stage."+name, "stage failed, using fallback", map[string]interface{}{
			"session_id": cfg.SessionID,
			"error":      truncate(cause.Error(), 200),
		})
		fb := n.stage.Fallback(st, cause)
		if err := state.Merge(st, fb); err != nil {
			return true, fmt.Errorf("stage %s fallback rejected: %w", name, err)
		}
	}

	took := time.Since(started)
	for _, o := range e.Observers {
		o.StageFinished(cfg, n.id, name, took, cause)
	}
	return cause != nil, nil
}

type outcome struct {
	upd state.Update
	err error
}

// invoke runs the stage against a private copy so a timed-out stage that is
// still running cannot touch the live state.
func (e *Executor) invoke(ctx context.Context, s Stage, st *state.State, cfg RunConfig) (state.Update, error) {
	snapshot, err := st.Clone()
	if err != nil {
		return state.Update{}, err
	}

	timeout := e.StageTimeout
	if timeout <= 0 {
		timeout = DefaultStageTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.Logger.Error("stage."+s.Name(), "panic recovered", map[string]interface{}{
					"session_id": cfg.SessionID,
					"panic":      fmt.Sprint(r),
					"stack":      truncate(string(debug.Stack()), 2000),
				})
				done <- outcome{err: fmt.Errorf("%w: %v", ErrStagePanic, r)}
			}
		}()
		upd, err := s.Run(ctx, snapshot, cfg)
		done <- outcome{upd: upd, err: err}
	}()

	select {
	case out := <-done:
		return out.upd, out.err
	case <-ctx.Done():
		return state.Update{}, fmt.Errorf("%w after %s: %v", ErrStageTimeout, timeout, ctx.Err())
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
