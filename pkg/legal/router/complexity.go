package router

import (
	"context"
	"fmt"
	"strings"

	"legal-assistant-be/internal/pkg/logger"
	"legal-assistant-be/pkg/legal/state"
	"legal-assistant-be/pkg/llm"
)

// Verdict is the outcome of the heuristic pass.
type Verdict string

const (
	VerdictSimple    Verdict = "simple"
	VerdictComplex   Verdict = "complex"
	VerdictUncertain Verdict = "uncertain"
)

// DefaultOnClassifierFailure is the path taken when the heuristic is
// inconclusive and the model classification fails. It biases toward the
// cheaper path.
const DefaultOnClassifierFailure = state.PathSimple

var simplePatterns = []string{
	"what are my rights",
	"what is the law",
	"how do i",
	"can my landlord",
	"can my employer",
	"what is the",
	"how much notice",
	"notice period",
	"am i entitled",
	"is it legal",
	"do i have to",
	"what happens if",
	"how long do i have",
}

var complexIndicators = []string{
	"dispute",
	"sued",
	"court",
	"tribunal",
	"lawyer",
	"legal action",
	"they're claiming",
	"i'm being",
	"unfair dismissal",
	"domestic violence",
	"child custody",
	"property settlement",
	"multiple",
	"complicated",
	"complex",
}

// Thresholds tune the heuristic. Zero values are replaced by defaults.
type Thresholds struct {
	MaxSecondaryIssues     int      `koanf:"max_secondary_issues"`
	ScoreThreshold         float64  `koanf:"score_threshold"`
	SimpleScoreCeiling     float64  `koanf:"simple_score_ceiling"`
	MaxQueryLength         int      `koanf:"max_query_length"`
	ExtraSimplePatterns    []string `koanf:"extra_simple_patterns"`
	ExtraComplexIndicators []string `koanf:"extra_complex_indicators"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxSecondaryIssues: 1,
		ScoreThreshold:     0.4,
		SimpleScoreCeiling: 0.3,
		MaxQueryLength:     250,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.MaxSecondaryIssues <= 0 {
		t.MaxSecondaryIssues = d.MaxSecondaryIssues
	}
	if t.ScoreThreshold <= 0 {
		t.ScoreThreshold = d.ScoreThreshold
	}
	if t.SimpleScoreCeiling <= 0 {
		t.SimpleScoreCeiling = d.SimpleScoreCeiling
	}
	if t.MaxQueryLength <= 0 {
		t.MaxQueryLength = d.MaxQueryLength
	}
	return t
}

// ComplexityHeuristic classifies a query without calling a model. The rules
// are applied in order and the first one that fires wins.
func ComplexityHeuristic(st *state.State, th Thresholds) Verdict {
	v, _ := explainHeuristic(st, th)
	return v
}

func explainHeuristic(st *state.State, th Thresholds) (Verdict, string) {
	th = th.withDefaults()
	query := strings.ToLower(st.CurrentQuery)

	if st.HasDocument() {
		return VerdictComplex, "document uploaded"
	}

	if ic := st.Issue; ic != nil {
		switch {
		case len(ic.SecondaryIssues) > th.MaxSecondaryIssues:
			return VerdictComplex, fmt.Sprintf("%d secondary issues", len(ic.SecondaryIssues))
		case ic.ComplexityScore > th.ScoreThreshold:
			return VerdictComplex, fmt.Sprintf("complexity score %.2f", ic.ComplexityScore)
		case ic.InvolvesMultipleJurisdictions:
			return VerdictComplex, "multiple jurisdictions"
		case ic.RequiresDocumentAnalysis:
			return VerdictComplex, "document analysis recommended"
		}
	}

	for _, ind := range append(complexIndicators, th.ExtraComplexIndicators...) {
		if ind != "" && strings.Contains(query, strings.ToLower(ind)) {
			return VerdictComplex, fmt.Sprintf("indicator %q", ind)
		}
	}

	if len(query) < th.MaxQueryLength {
		for _, p := range append(simplePatterns, th.ExtraSimplePatterns...) {
			if p != "" && strings.Contains(query, strings.ToLower(p)) {
				return VerdictSimple, fmt.Sprintf("pattern %q", p)
			}
		}
	}

	if ic := st.Issue; ic != nil && ic.ComplexityScore <= th.SimpleScoreCeiling && len(ic.SecondaryIssues) == 0 {
		return VerdictSimple, fmt.Sprintf("low score %.2f, no secondary issues", ic.ComplexityScore)
	}

	return VerdictUncertain, "needs model classification"
}

type classification struct {
	Path       string  `json:"path"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

func (c *classification) Validate() error {
	if c.Path != string(state.PathSimple) && c.Path != string(state.PathComplex) {
		return fmt.Errorf("%w: path %q", state.ErrInvalidOutput, c.Path)
	}
	return nil
}

// ComplexityClassifier is the two-tier complexity decision: heuristic first,
// model only when the heuristic is uncertain.
type ComplexityClassifier struct {
	llm        llm.LLMProvider
	logger     logger.ILogger
	thresholds Thresholds
}

func NewComplexityClassifier(provider llm.LLMProvider, log logger.ILogger, th Thresholds) *ComplexityClassifier {
	return &ComplexityClassifier{llm: provider, logger: log, thresholds: th}
}

// Classify never fails. A model error resolves to DefaultOnClassifierFailure.
func (c *ComplexityClassifier) Classify(ctx context.Context, st *state.State, opts ...llm.Option) (state.Path, string) {
	verdict, reason := explainHeuristic(st, c.thresholds)
	switch verdict {
	case VerdictSimple:
		c.logger.Info("router.complexity", "classified by heuristic", map[string]interface{}{"path": "simple", "reason": reason})
		return state.PathSimple, reason
	case VerdictComplex:
		c.logger.Info("router.complexity", "classified by heuristic", map[string]interface{}{"path": "complex", "reason": reason})
		return state.PathComplex, reason
	}

	var out classification
	if err := llm.GenerateJSON(ctx, c.llm, complexityPrompt(st), &out, opts...); err != nil {
		c.logger.Error("router.complexity", "model classification failed", map[string]interface{}{
			"error":   err.Error(),
			"default": string(DefaultOnClassifierFailure),
		})
		return DefaultOnClassifierFailure, "classifier unavailable, defaulted"
	}
	c.logger.Info("router.complexity", "classified by model", map[string]interface{}{
		"path":       out.Path,
		"confidence": out.Confidence,
	})
	return state.Path(out.Path), out.Reasoning
}

func complexityPrompt(st *state.State) string {
	issueSummary := "Not classified"
	score := "Unknown"
	if ic := st.Issue; ic != nil {
		issueSummary = fmt.Sprintf("Primary: %s - %s. Secondary issues: %d",
			ic.PrimaryIssue.Area, ic.PrimaryIssue.SubCategory, len(ic.SecondaryIssues))
		score = fmt.Sprintf("%.2f", ic.ComplexityScore)
	}
	hasDoc := "No"
	if st.HasDocument() {
		hasDoc = "Yes"
	}

	return fmt.Sprintf(`You classify legal queries as either "simple" or "complex" for analysis depth.

SIMPLE: a single clear question, general rights information, one party relationship, common well-documented issues, no documents, no deadlines.
COMPLEX: several interrelated issues, contested facts, several parties, documents to analyse, likely litigation, deadlines, emotionally charged or high-stakes matters.

Query: %s
Issue classification: %s
Has uploaded document: %s
Complexity score from classification: %s

Respond with JSON: {"path": "simple" | "complex", "reasoning": string, "confidence": number between 0 and 1}`,
		st.CurrentQuery, issueSummary, hasDoc, score)
}
