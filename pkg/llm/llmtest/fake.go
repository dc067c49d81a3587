// Package llmtest provides a scripted llm.LLMProvider for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"legal-assistant-be/pkg/llm"
)

var ErrUnscripted = errors.New("llmtest: no scripted reply for prompt")

type rule struct {
	match string
	reply string
	err   error
}

// Call records one invocation.
type Call struct {
	Prompt  string
	Options llm.Options
}

// Fake answers prompts by the first rule whose marker is contained in the prompt.
type Fake struct {
	mu       sync.Mutex
	rules    []rule
	fallback *rule
	calls    []Call
}

var _ llm.LLMProvider = &Fake{}

func New() *Fake {
	return &Fake{}
}

// On scripts a reply for prompts containing marker.
func (f *Fake) On(marker, reply string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{match: marker, reply: reply})
	return f
}

// Fail makes prompts containing marker return err.
func (f *Fake) Fail(marker string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{match: marker, err: err})
	return f
}

// Otherwise sets the reply used when no rule matches.
func (f *Fake) Otherwise(reply string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallback = &rule{reply: reply, err: err}
	return f
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsMatching counts calls whose prompt contains marker.
func (f *Fake) CallsMatching(marker string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.Contains(c.Prompt, marker) {
			n++
		}
	}
	return n
}

func (f *Fake) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	var sb strings.Builder
	for _, m := range history {
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return f.Generate(ctx, sb.String(), options...)
}

func (f *Fake) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Prompt: prompt, Options: llm.Apply(llm.Options{}, options...)})

	for _, r := range f.rules {
		if strings.Contains(prompt, r.match) {
			return r.reply, r.err
		}
	}
	if f.fallback != nil {
		return f.fallback.reply, f.fallback.err
	}
	return "", ErrUnscripted
}
