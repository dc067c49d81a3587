package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Area  string  `json:"area"`
	Score float64 `json:"score"`
}

func (s *sample) Validate() error {
	if s.Area == "" {
		return errors.New("area required")
	}
	return nil
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"fenced", "Here you go:\n```json\n{\"a\": {\"b\": 2}}\n```", `{"a": {"b": 2}}`},
		{"prose around", `Sure! {"a":"x}"} hope that helps`, `{"a":"x}"}`},
		{"escaped quote", `{"a":"say \"hi\" {"}`, `{"a":"say \"hi\" {"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ExtractJSON("no object here")
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestDecodeJSONRunsValidation(t *testing.T) {
	var out sample
	err := DecodeJSON(`{"area":"","score":0.2}`, &out)
	assert.Error(t, err)

	require.NoError(t, DecodeJSON(`{"area":"tenancy","score":0.2}`, &out))
	assert.Equal(t, "tenancy", out.Area)
}

type recordingProvider struct {
	opts Options
}

func (r *recordingProvider) Chat(ctx context.Context, history []Message, options ...Option) (string, error) {
	return r.Generate(ctx, history[0].Content, options...)
}

func (r *recordingProvider) Generate(_ context.Context, _ string, options ...Option) (string, error) {
	r.opts = Apply(Options{}, options...)
	return `{"area":"employment","score":0.9}`, nil
}

func TestGenerateJSONForcesInternalJSONMode(t *testing.T) {
	p := &recordingProvider{}
	var out sample

	require.NoError(t, GenerateJSON(context.Background(), p, "classify", &out, WithModel("small")))
	assert.True(t, p.opts.JSON)
	assert.True(t, p.opts.Internal)
	assert.Equal(t, "small", p.opts.Model)
	assert.Equal(t, 0.0, p.opts.Temperature)
	assert.Equal(t, "employment", out.Area)
}
