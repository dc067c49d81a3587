// Package stage holds every unit of work the legal graphs are built from.
// Each stage reads the shared state, returns only the fields it owns, and
// knows a deterministic fallback for when its model call or collaborator
// fails.
package stage

import (
	"context"
	"strings"
	"time"

	"legal-assistant-be/internal/pkg/logger"
	"legal-assistant-be/pkg/events"
	"legal-assistant-be/pkg/legal/casedb"
	"legal-assistant-be/pkg/legal/document"
	"legal-assistant-be/pkg/legal/graph"
	"legal-assistant-be/pkg/legal/resources"
	"legal-assistant-be/pkg/legal/router"
	"legal-assistant-be/pkg/legal/search"
	"legal-assistant-be/pkg/legal/state"
	"legal-assistant-be/pkg/llm"

	"github.com/google/uuid"
)

// Stage names as they appear in stages_completed.
const (
	Initialize             = "initialize"
	SafetyGate             = "safety_gate"
	SafetyCheck            = "safety_check"
	EscalationResponse     = "escalation_response"
	IssueIdentification    = "issue_identification"
	ComplexityRouting      = "complexity_routing"
	Jurisdiction           = "jurisdiction"
	Strategy               = "strategy"
	SimpleResponse         = "simple_response"
	FactStructuring        = "fact_structuring"
	LegalElements          = "legal_elements"
	CasePrecedent          = "case_precedent"
	RiskAnalysis           = "risk_analysis"
	EscalationBrief        = "escalation_brief"
	ComplexResponse        = "complex_response"
	ChatResponse           = "chat_response"
	AnalysisOffer          = "analysis_offer"
	HandleAnalysisResponse = "handle_analysis_response"
	DeepAnalysis           = "deep_analysis"
	AnalysisResponse       = "analysis_response"
	BriefCheckInfo         = "brief_check_info"
	BriefAskQuestions      = "brief_ask_questions"
	BriefGenerate          = "brief_generate"
)

const (
	simpleDisclaimer = "\n\n---\n\n_This is general information, not legal advice. Please consult a qualified lawyer for your specific situation._"

	complexDisclaimer = "\n\n---\n\n_This is general information, not legal advice. For your specific situation, consider consulting a qualified lawyer. You can use the 'Find Lawyer' feature to search for specialists in your area._"
)

// DocumentFetcher is what the chat stage needs to read an uploaded file.
type DocumentFetcher interface {
	Fetch(ctx context.Context, url string) (string, document.ContentType, error)
}

// Deps are the collaborators shared by all stages. Build them once at start
// up and hand the same value to every constructor.
type Deps struct {
	LLM        llm.LLMProvider
	Logger     logger.ILogger
	Search     search.Searcher
	Cases      casedb.Lookup
	Resources  *resources.Directory
	Documents  DocumentFetcher
	Events     events.Publisher
	Complexity *router.ComplexityClassifier

	// Models overrides the model per stage name.
	Models map[string]string
	// MaxIntakeQuestions caps follow-up questions per brief intake.
	MaxIntakeQuestions int
	Now                func() time.Time
	NewID              func() string
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logger.NewNopLogger()
	}
	if d.Resources == nil {
		d.Resources = resources.Default()
	}
	if d.Events == nil {
		d.Events = events.NopPublisher{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.MaxIntakeQuestions <= 0 {
		d.MaxIntakeQuestions = DefaultMaxIntakeQuestions
	}
	return d
}

type base struct {
	name   string
	model  string
	logger logger.ILogger
}

func newBase(name string, d Deps) base {
	return base{name: name, model: d.Models[name], logger: d.Logger}
}

func (b base) Name() string { return b.name }

func (b base) module() string { return "stage." + b.name }

// options are the call options for an internal, structured model call.
func (b base) options(cfg graph.RunConfig, extra ...llm.Option) []llm.Option {
	return cfg.LLMOptions(append(extra, llm.WithModel(b.model))...)
}

// replyOptions are used for text the user reads.
func (b base) replyOptions() []llm.Option {
	return []llm.Option{llm.WithTemperature(0.3), llm.WithModel(b.model)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func bullets(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	var sb strings.Builder
	for i, it := range items {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("- ")
		sb.WriteString(it)
	}
	return sb.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func userStateOr(st *state.State, def string) string {
	return orDefault(st.UserState, def)
}

func primaryIssue(st *state.State) state.LegalIssue {
	if st.Issue == nil {
		return state.LegalIssue{Area: "general", SubCategory: "general"}
	}
	return st.Issue.PrimaryIssue
}

func primaryJurisdiction(st *state.State) string {
	if st.Jurisdiction == nil {
		return state.Federal
	}
	return st.Jurisdiction.PrimaryJurisdiction
}
