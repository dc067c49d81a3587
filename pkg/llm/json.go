package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrNoJSON = errors.New("no JSON object in model output")

// Validator is implemented by structured outputs that can check themselves
// after decoding.
type Validator interface {
	Validate() error
}

// GenerateJSON runs an internal JSON-mode call and decodes the reply into out.
func GenerateJSON(ctx context.Context, p LLMProvider, prompt string, out any, opts ...Option) error {
	opts = append([]Option{WithTemperature(0.0)}, opts...)
	opts = append(opts, WithJSON(), WithInternal())

	raw, err := p.Generate(ctx, prompt, opts...)
	if err != nil {
		return err
	}
	return DecodeJSON(raw, out)
}

// DecodeJSON extracts the first JSON object from raw model text.
func DecodeJSON(raw string, out any) error {
	body, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid model output: %w", err)
		}
	}
	return nil
}

// ExtractJSON strips markdown fences and surrounding prose.
func ExtractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			s = strings.TrimSpace(rest[:j])
		}
	}

	start := strings.Index(s, "{")
	if start < 0 {
		return "", ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", ErrNoJSON
}
