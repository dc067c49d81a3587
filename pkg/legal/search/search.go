// Package search finds legislation and case law for the chat and analysis
// stages.
package search

import (
	"context"
	"strings"
)

// Result is one ranked candidate. Ranking quality is the searcher's concern.
type Result struct {
	Content      string  `json:"content"`
	Citation     string  `json:"citation"`
	Jurisdiction string  `json:"jurisdiction"`
	SourceURL    string  `json:"source_url"`
	Score        float64 `json:"relevance_score"`
	Source       string  `json:"source"`
}

const (
	SourceLegislation = "legislation"
	SourceCaseLaw     = "austlii_case"
)

// Confidence is the quality signal used to decide on fallback.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
	// ConfidenceWeb marks results that come from a web index without scores.
	ConfidenceWeb Confidence = "web_search"
)

type Response struct {
	Results    []Result   `json:"results"`
	Confidence Confidence `json:"confidence"`
	// Note explains substitutions such as federal law shown for a state.
	Note string `json:"note,omitempty"`
}

type Searcher interface {
	Search(ctx context.Context, query, jurisdiction string, topK int) (Response, error)
}

// Tier grades a result set by its best score.
func Tier(results []Result) Confidence {
	if len(results) == 0 {
		return ConfidenceNone
	}
	best := 0.0
	for _, r := range results {
		if r.Score > best {
			best = r.Score
		}
	}
	switch {
	case best >= 0.7:
		return ConfidenceHigh
	case best >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// FormatForPrompt renders results as a compact list for a model prompt.
func FormatForPrompt(resp Response, max int) string {
	if len(resp.Results) == 0 {
		return "No matching legislation or cases found."
	}
	var b strings.Builder
	if resp.Note != "" {
		b.WriteString(resp.Note)
		b.WriteString("\n")
	}
	for i, r := range resp.Results {
		if max > 0 && i >= max {
			break
		}
		b.WriteString("- ")
		b.WriteString(r.Citation)
		if r.Jurisdiction != "" {
			b.WriteString(" (" + r.Jurisdiction + ")")
		}
		if r.SourceURL != "" {
			b.WriteString(" " + r.SourceURL)
		}
		b.WriteString("\n  ")
		content := r.Content
		if len(content) > 600 {
			content = content[:600] + "..."
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String()
}
