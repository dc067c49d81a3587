// Package assistant is the entry point the service and the CLI drive: one
// conversational turn at a time, or a one-shot adaptive analysis.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"legal-assistant-be/internal/pkg/logger"
	"legal-assistant-be/pkg/legal/adaptive"
	"legal-assistant-be/pkg/legal/conversational"
	"legal-assistant-be/pkg/legal/graph"
	"legal-assistant-be/pkg/legal/session"
	"legal-assistant-be/pkg/legal/stage"
	"legal-assistant-be/pkg/legal/state"
)

var ErrEmptyMessage = errors.New("message is empty")

// ChatRequest is one user message in a conversation.
type ChatRequest struct {
	SessionID   string
	Message     string
	UserState   string
	DocumentURL string
	// UIMode is optional; an empty value keeps the session's current mode.
	UIMode state.UIMode
}

// AnalyzeRequest asks for a one-shot analysis.
type AnalyzeRequest struct {
	Query       string
	UserState   string
	DocumentURL string
}

// Analysis is the outcome of a one-shot run.
type Analysis struct {
	SessionID       string     `json:"session_id"`
	Response        string     `json:"response"`
	Path            state.Path `json:"path"`
	StagesCompleted []string   `json:"stages_completed"`
	Fallbacks       []string   `json:"fallbacks,omitempty"`
	BriefID         string     `json:"brief_id,omitempty"`
}

type Options struct {
	ReadinessThreshold float64
}

type Assistant struct {
	sessions *session.Manager
	exec     *graph.Executor
	chat     *graph.Graph
	analysis *graph.Graph
	logger   logger.ILogger
}

// New compiles both graphs over d.
func New(d stage.Deps, sessions *session.Manager, exec *graph.Executor, opts Options) (*Assistant, error) {
	chat, err := conversational.Build(d, conversational.Options{ReadinessThreshold: opts.ReadinessThreshold})
	if err != nil {
		return nil, err
	}
	analysis, err := adaptive.Build(d)
	if err != nil {
		return nil, err
	}
	log := d.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Assistant{sessions: sessions, exec: exec, chat: chat, analysis: analysis, logger: log}, nil
}

// Chat runs one conversational turn and returns what the user should see.
func (a *Assistant) Chat(ctx context.Context, req ChatRequest) (state.TurnView, error) {
	if strings.TrimSpace(req.Message) == "" {
		return state.TurnView{}, ErrEmptyMessage
	}

	var view state.TurnView
	_, err := a.sessions.Turn(ctx, req.SessionID, func(ctx context.Context, st *state.State) error {
		from := len(st.Messages)
		if _, err := a.run(ctx, a.chat, st, state.Inbound{Text: req.Message, UserState: req.UserState, DocumentURL: req.DocumentURL, UIMode: req.UIMode}); err != nil {
			return err
		}
		view = st.View(from)
		return nil
	})
	if err != nil {
		return state.TurnView{}, err
	}
	return view, nil
}

// Analyze runs the adaptive graph on a fresh session. The session is kept
// so an operator can review it.
func (a *Assistant) Analyze(ctx context.Context, req AnalyzeRequest) (Analysis, error) {
	if strings.TrimSpace(req.Query) == "" {
		return Analysis{}, ErrEmptyMessage
	}

	var out Analysis
	_, err := a.sessions.Turn(ctx, "", func(ctx context.Context, st *state.State) error {
		res, err := a.run(ctx, a.analysis, st, state.Inbound{Text: req.Query, UserState: req.UserState, DocumentURL: req.DocumentURL})
		if err != nil {
			return err
		}
		out = summarize(st, res)
		return nil
	})
	return out, err
}

func (a *Assistant) run(ctx context.Context, g *graph.Graph, st *state.State, in state.Inbound) (graph.Result, error) {
	st.BeginRun(in)
	if err := state.Merge(st, state.Update{Messages: []state.Message{state.Human(in.Text)}}); err != nil {
		return graph.Result{}, err
	}

	res, err := a.exec.Run(ctx, g, st, graph.RunConfig{
		SessionID:         st.SessionID,
		SuppressStreaming: true,
		Tags:              map[string]string{"graph": g.Name()},
	})
	if err != nil {
		a.logger.Error("assistant", "run aborted", map[string]interface{}{
			"session_id": st.SessionID,
			"graph":      g.Name(),
			"path":       res.Path,
			"error":      err.Error(),
		})
		return res, fmt.Errorf("%s run: %w", g.Name(), err)
	}

	a.logger.Info("assistant", "turn complete", map[string]interface{}{
		"session_id": st.SessionID,
		"graph":      g.Name(),
		"terminal":   string(res.Terminal),
		"suspended":  res.Suspended,
		"fallbacks":  res.Fallbacks,
		"phase":      string(st.Phase),
	})
	return res, nil
}

func summarize(st *state.State, res graph.Result) Analysis {
	out := Analysis{
		SessionID:       st.SessionID,
		StagesCompleted: append([]string(nil), st.StagesCompleted...),
		Fallbacks:       res.Fallbacks,
		Path:            state.PathSimple,
	}
	switch {
	case st.Safety != nil && st.Safety.RequiresEscalation:
		out.Path = state.PathEscalate
	case st.Routing != nil:
		out.Path = st.Routing.Path
	}
	if st.Brief != nil {
		out.BriefID = st.Brief.BriefID
	}
	for i := len(st.Messages) - 1; i >= 0; i-- {
		if st.Messages[i].Role == state.RoleAssistant {
			out.Response = st.Messages[i].Content
			break
		}
	}
	return out
}
