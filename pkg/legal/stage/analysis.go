package stage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"legal-assistant-be/pkg/events"
	"legal-assistant-be/pkg/legal/casedb"
	"legal-assistant-be/pkg/legal/graph"
	"legal-assistant-be/pkg/legal/state"
	"legal-assistant-be/pkg/llm"

	dps "github.com/markusmobius/go-dateparser"
	"golang.org/x/sync/errgroup"
)

// FactStructuringStage organises the query into a timeline, parties,
// evidence and key facts.
type FactStructuringStage struct {
	base
	llm llm.LLMProvider
	now func() time.Time
}

func NewFactStructuring(d Deps) *FactStructuringStage {
	d = d.withDefaults()
	return &FactStructuringStage{base: newBase(FactStructuring, d), llm: d.LLM, now: d.Now}
}

func (s *FactStructuringStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	var out state.FactStructure
	if err := llm.GenerateJSON(ctx, s.llm, factPrompt(st), &out, s.options(cfg)...); err != nil {
		return state.Update{}, fmt.Errorf("fact structuring: %w", err)
	}

	normalized := NormalizeTimeline(out.Timeline, s.now())
	if out.Parties == nil {
		out.Parties = []state.Party{}
	}
	if out.Evidence == nil {
		out.Evidence = []state.Evidence{}
	}
	if out.FactGaps == nil {
		out.FactGaps = []string{}
	}

	s.logger.Info(s.module(), "facts structured", map[string]interface{}{
		"session_id": cfg.SessionID,
		"timeline":   len(out.Timeline),
		"dated":      normalized,
		"parties":    len(out.Parties),
		"key_facts":  len(out.KeyFacts),
		"gaps":       len(out.FactGaps),
	})
	return state.Update{Stage: FactStructuring, Facts: &out}, nil
}

func (s *FactStructuringStage) Fallback(st *state.State, cause error) state.Update {
	return state.Update{
		Stage: FactStructuring,
		Facts: &state.FactStructure{
			Timeline:         []state.TimelineEvent{},
			Parties:          []state.Party{{Role: "user", IsUser: true}},
			Evidence:         []state.Evidence{},
			KeyFacts:         []string{"Unable to extract facts from query"},
			FactGaps:         []string{"Complete situation details needed"},
			NarrativeSummary: "Unable to structure facts from the provided information.",
		},
	}
}

// NormalizeTimeline resolves free-text dates such as "last March" or
// "3 weeks ago" against now and returns how many were resolved. Dates the
// parser cannot read are left as written.
func NormalizeTimeline(events []state.TimelineEvent, now time.Time) int {
	parser := dps.Parser{}
	cfg := &dps.Configuration{
		CurrentTime:         now,
		PreferredDateSource: dps.Past,
	}

	n := 0
	for i := range events {
		raw := strings.TrimSpace(events[i].Date)
		if raw == "" {
			continue
		}
		parsed, err := parser.Parse(cfg, raw)
		if err != nil || parsed.IsZero() {
			continue
		}
		t := parsed.Time
		events[i].NormalizedDate = &t
		n++
	}
	return n
}

func factPrompt(st *state.State) string {
	issue := primaryIssue(st)
	return fmt.Sprintf(`<system>
You are a legal fact analyst. Organise the user's account into structured facts a lawyer can work from.
Extract a timeline (date as the user wrote it, description, significance critical|relevant|background, source),
the parties (role, name if given, is_user, relationship to user), the evidence (type, description, status, strength strong|moderate|weak),
the key facts, the gaps that still need clarifying, and a short neutral narrative.
Do not invent facts that were not stated.
</system>

Legal area: %s (%s)
Jurisdiction: %s
User's account: %s

Respond with JSON: {"timeline": [...], "parties": [...], "evidence": [...], "key_facts": [string], "fact_gaps": [string], "narrative_summary": string}`,
		issue.Area, issue.SubCategory, primaryJurisdiction(st), st.CurrentQuery)
}

// LegalElementsStage maps the facts onto the elements that must be proven.
type LegalElementsStage struct {
	base
	llm llm.LLMProvider
}

func NewLegalElements(d Deps) *LegalElementsStage {
	d = d.withDefaults()
	return &LegalElementsStage{base: newBase(LegalElements, d), llm: d.LLM}
}

func (s *LegalElementsStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	var out state.ElementsAnalysis
	if err := llm.GenerateJSON(ctx, s.llm, elementsPrompt(st), &out, s.options(cfg)...); err != nil {
		return state.Update{}, fmt.Errorf("legal elements: %w", err)
	}

	// The counts are derived, never trusted from the model.
	satisfied := 0
	for i := range out.Elements {
		out.Elements[i].IsSatisfied = strings.ToLower(strings.TrimSpace(out.Elements[i].IsSatisfied))
		if out.Elements[i].IsSatisfied == "yes" {
			satisfied++
		}
	}
	if out.Elements == nil {
		out.Elements = []state.LegalElement{}
	}
	out.ElementsSatisfied = satisfied
	out.ElementsTotal = len(out.Elements)

	s.logger.Info(s.module(), "elements analysed", map[string]interface{}{
		"session_id": cfg.SessionID,
		"satisfied":  out.ElementsSatisfied,
		"total":      out.ElementsTotal,
		"viability":  string(out.ViabilityAssessment),
	})
	return state.Update{Stage: LegalElements, Elements: &out}, nil
}

func (s *LegalElementsStage) Fallback(st *state.State, cause error) state.Update {
	return state.Update{
		Stage: LegalElements,
		Elements: &state.ElementsAnalysis{
			ApplicableLaw:       "Unable to determine applicable law",
			Elements:            []state.LegalElement{},
			ViabilityAssessment: state.ViabilityInsufficient,
			Reasoning:           "Unable to complete legal elements analysis due to an error.",
		},
	}
}

func elementsPrompt(st *state.State) string {
	issue := primaryIssue(st)
	var p strings.Builder
	p.WriteString("<system>\n")
	p.WriteString("You are an Australian legal analyst. Identify the legal elements that must be established for the user's matter ")
	p.WriteString("and assess each against the facts. For each element give element_name, description, is_satisfied (yes|no|partial|unknown), ")
	p.WriteString("supporting_facts and missing_facts. Then give an overall viability: strong, moderate, weak or insufficient_info.\n")
	p.WriteString("</system>\n\n")
	fmt.Fprintf(&p, "Legal area: %s (%s)\n", issue.Area, issue.SubCategory)
	fmt.Fprintf(&p, "Jurisdiction: %s\n", primaryJurisdiction(st))
	if f := st.Facts; f != nil {
		fmt.Fprintf(&p, "Narrative: %s\nKey facts:\n%s\n", f.NarrativeSummary, bullets(f.KeyFacts, "- none"))
		if len(f.Evidence) > 0 {
			p.WriteString("Evidence:\n")
			for _, e := range f.Evidence {
				fmt.Fprintf(&p, "- %s: %s (%s)\n", e.Type, e.Description, orDefault(e.Strength, "unknown strength"))
			}
		}
	}
	fmt.Fprintf(&p, "User's question: %s\n\n", st.CurrentQuery)
	p.WriteString(`Respond with JSON: {"applicable_law": string, "elements": [...], "viability_assessment": string, "reasoning": string}`)
	return p.String()
}

// MinPrecedentRelevance is the score below which a candidate case is dropped.
const MinPrecedentRelevance = 0.4

const maxPrecedentCandidates = 5

type caseFit struct {
	RelevanceScore         float64 `json:"relevance_score"`
	HowItApplies           string  `json:"how_it_applies"`
	OutcomeForSimilarParty string  `json:"outcome_for_similar_party"`
}

type precedentSynthesis struct {
	PatternIdentified     string   `json:"pattern_identified"`
	TypicalOutcome        string   `json:"typical_outcome"`
	DistinguishingFactors []string `json:"distinguishing_factors"`
}

// CasePrecedentStage scores reference cases against the matter. Each
// candidate is scored by its own model call; the calls run concurrently.
type CasePrecedentStage struct {
	base
	llm   llm.LLMProvider
	cases casedb.Lookup
}

func NewCasePrecedent(d Deps) *CasePrecedentStage {
	d = d.withDefaults()
	cases := d.Cases
	if cases == nil {
		cases = casedb.Default()
	}
	return &CasePrecedentStage{base: newBase(CasePrecedent, d), llm: d.LLM, cases: cases}
}

func (s *CasePrecedentStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	candidates := s.candidates(st)
	if len(candidates) == 0 {
		return state.Update{
			Stage: CasePrecedent,
			Precedents: &state.PrecedentAnalysis{
				MatchingCases:         []state.CasePrecedent{},
				DistinguishingFactors: []string{"No comparable decisions were found in the reference set"},
			},
		}, nil
	}

	scored := make([]*state.CasePrecedent, len(candidates))
	var mu sync.Mutex
	failed := 0

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			var fit caseFit
			if err := llm.GenerateJSON(gctx, s.llm, caseFitPrompt(st, c), &fit, s.options(cfg)...); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				mu.Lock()
				failed++
				mu.Unlock()
				s.logger.Warn(s.module(), "case scoring failed", map[string]interface{}{
					"session_id": cfg.SessionID,
					"case":       c.CaseName,
					"error":      truncate(err.Error(), 200),
				})
				return nil
			}
			scored[i] = precedentFrom(c, fit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return state.Update{}, fmt.Errorf("case precedent: %w", err)
	}
	if failed == len(candidates) {
		return state.Update{}, fmt.Errorf("case precedent: all %d candidates failed to score", failed)
	}

	matching := make([]state.CasePrecedent, 0, len(scored))
	for _, cp := range scored {
		if cp != nil && cp.RelevanceScore >= MinPrecedentRelevance {
			matching = append(matching, *cp)
		}
	}

	analysis := &state.PrecedentAnalysis{MatchingCases: matching, DistinguishingFactors: []string{}}
	if len(matching) == 0 {
		analysis.DistinguishingFactors = []string{"None of the reference decisions are closely comparable to this matter"}
	} else {
		var syn precedentSynthesis
		if err := llm.GenerateJSON(ctx, s.llm, synthesisPrompt(st, matching), &syn, s.options(cfg)...); err != nil {
			s.logger.Warn(s.module(), "precedent synthesis failed", map[string]interface{}{
				"session_id": cfg.SessionID,
				"error":      truncate(err.Error(), 200),
			})
		} else {
			analysis.PatternIdentified = syn.PatternIdentified
			analysis.TypicalOutcome = syn.TypicalOutcome
			if syn.DistinguishingFactors != nil {
				analysis.DistinguishingFactors = syn.DistinguishingFactors
			}
		}
	}

	s.logger.Info(s.module(), "precedents analysed", map[string]interface{}{
		"session_id": cfg.SessionID,
		"candidates": len(candidates),
		"matching":   len(matching),
	})
	return state.Update{Stage: CasePrecedent, Precedents: analysis}, nil
}

func (s *CasePrecedentStage) Fallback(st *state.State, cause error) state.Update {
	return state.Update{
		Stage: CasePrecedent,
		Precedents: &state.PrecedentAnalysis{
			MatchingCases:         []state.CasePrecedent{},
			DistinguishingFactors: []string{"Unable to complete precedent analysis"},
		},
	}
}

// candidates looks up by sub-category first and tops up by keyword.
func (s *CasePrecedentStage) candidates(st *state.State) []casedb.Case {
	issue := primaryIssue(st)
	out := s.cases.BySubCategory(issue.Area, issue.SubCategory)
	if len(out) >= 3 {
		if len(out) > maxPrecedentCandidates {
			out = out[:maxPrecedentCandidates]
		}
		return out
	}

	seen := make(map[string]bool, len(out))
	for _, c := range out {
		seen[c.CaseName] = true
	}
	for _, c := range s.cases.SearchKeywords(precedentKeywords(st), issue.Area) {
		if len(out) >= maxPrecedentCandidates {
			break
		}
		if !seen[c.CaseName] {
			seen[c.CaseName] = true
			out = append(out, c)
		}
	}
	return out
}

func precedentKeywords(st *state.State) []string {
	var words []string
	issue := primaryIssue(st)
	words = append(words, strings.Fields(strings.ReplaceAll(issue.SubCategory, "_", " "))...)
	if f := st.Facts; f != nil {
		for i, fact := range f.KeyFacts {
			if i >= 5 {
				break
			}
			for _, w := range strings.Fields(strings.ToLower(fact)) {
				if len(w) > 4 {
					words = append(words, strings.Trim(w, ".,;:!?\"'()"))
				}
			}
		}
	}
	if e := st.Elements; e != nil {
		for i, el := range e.Elements {
			if i >= 3 {
				break
			}
			words = append(words, strings.Fields(strings.ToLower(el.ElementName))...)
		}
	}

	seen := make(map[string]bool)
	out := make([]string, 0, 10)
	for _, w := range words {
		if len(w) <= 3 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) >= 10 {
			break
		}
	}
	return out
}

func precedentFrom(c casedb.Case, fit caseFit) *state.CasePrecedent {
	outcome := strings.ToLower(fit.OutcomeForSimilarParty)
	switch outcome {
	case "favorable", "unfavorable", "mixed":
	default:
		outcome = "mixed"
	}
	score := fit.RelevanceScore
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return &state.CasePrecedent{
		CaseName:               c.CaseName,
		Citation:               c.Citation,
		Year:                   c.Year,
		Jurisdiction:           c.Jurisdiction,
		RelevanceScore:         score,
		KeyHolding:             c.KeyHolding,
		HowItApplies:           fit.HowItApplies,
		OutcomeForSimilarParty: outcome,
	}
}

func caseFitPrompt(st *state.State, c casedb.Case) string {
	keyFacts := "No key facts identified"
	if st.Facts != nil {
		keyFacts = bullets(st.Facts.KeyFacts, keyFacts)
	}
	issue := primaryIssue(st)
	return fmt.Sprintf(`<system>
You are an Australian legal researcher assessing whether one decided case is relevant to a current matter.
Relevance: 0.8-1.0 nearly identical facts and issues; 0.6-0.8 same area with similar issues; 0.4-0.6 related principles, different facts; below 0.4 limited applicability.
Outcome for a party in the user's position: favorable, unfavorable or mixed.
</system>

Current matter: %s (%s), %s
Key facts:
%s

Case: %s %s (%d, %s)
Facts: %s
Holding: %s
Outcome: %s

Respond with JSON: {"relevance_score": number, "how_it_applies": string, "outcome_for_similar_party": string}`,
		issue.Area, issue.SubCategory, primaryJurisdiction(st), keyFacts,
		c.CaseName, c.Citation, c.Year, c.Jurisdiction, c.KeyFacts, c.KeyHolding, c.Outcome)
}

func synthesisPrompt(st *state.State, cases []state.CasePrecedent) string {
	var p strings.Builder
	p.WriteString("<system>\nYou summarise how Australian courts decide matters like the user's, based only on the cases listed.\n</system>\n\n")
	issue := primaryIssue(st)
	fmt.Fprintf(&p, "Current matter: %s (%s)\n", issue.Area, issue.SubCategory)
	if st.Elements != nil {
		fmt.Fprintf(&p, "Viability: %s\n", st.Elements.ViabilityAssessment)
	}
	p.WriteString("Relevant cases:\n")
	for _, c := range cases {
		fmt.Fprintf(&p, "- %s (%d): %s, %s\n", c.CaseName, c.Year, c.OutcomeForSimilarParty, truncate(c.KeyHolding, 160))
	}
	p.WriteString("\nRespond with JSON: {\"pattern_identified\": string, \"typical_outcome\": string, \"distinguishing_factors\": [string]}")
	return p.String()
}

// RiskAnalysisStage weighs risks, evidence weaknesses and likely defences.
type RiskAnalysisStage struct {
	base
	llm llm.LLMProvider
}

func NewRiskAnalysis(d Deps) *RiskAnalysisStage {
	d = d.withDefaults()
	return &RiskAnalysisStage{base: newBase(RiskAnalysis, d), llm: d.LLM}
}

func (s *RiskAnalysisStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	var out state.RiskAssessment
	if err := llm.GenerateJSON(ctx, s.llm, riskPrompt(st), &out, s.options(cfg)...); err != nil {
		return state.Update{}, fmt.Errorf("risk analysis: %w", err)
	}
	out.OverallRiskLevel = strings.ToLower(out.OverallRiskLevel)
	if out.Risks == nil {
		out.Risks = []state.RiskFactor{}
	}
	if out.EvidenceWeaknesses == nil {
		out.EvidenceWeaknesses = []string{}
	}
	if out.PossibleDefences == nil {
		out.PossibleDefences = []state.DefenceAnalysis{}
	}
	if out.CounterfactualScenarios == nil {
		out.CounterfactualScenarios = []string{}
	}
	s.logger.Info(s.module(), "risks assessed", map[string]interface{}{
		"session_id": cfg.SessionID,
		"overall":    out.OverallRiskLevel,
		"risks":      len(out.Risks),
		"defences":   len(out.PossibleDefences),
	})
	return state.Update{Stage: RiskAnalysis, Risk: &out}, nil
}

func (s *RiskAnalysisStage) Fallback(st *state.State, cause error) state.Update {
	return state.Update{
		Stage: RiskAnalysis,
		Risk: &state.RiskAssessment{
			OverallRiskLevel: "medium",
			Risks: []state.RiskFactor{{
				Description: "Unable to complete full risk analysis",
				Severity:    "medium",
				Likelihood:  "possible",
				Mitigation:  "Seek professional legal advice for comprehensive risk assessment",
			}},
			EvidenceWeaknesses:      []string{"Risk analysis incomplete - evidence assessment unavailable"},
			PossibleDefences:        []state.DefenceAnalysis{},
			CounterfactualScenarios: []string{},
		},
	}
}

func riskPrompt(st *state.State) string {
	issue := primaryIssue(st)
	var p strings.Builder
	p.WriteString("<system>\n")
	p.WriteString("You are an Australian litigation risk analyst. Identify the risks to the user's position, weaknesses in their evidence, ")
	p.WriteString("defences the other side may raise with a counter strategy for each, what-if scenarios, and any time sensitivity such as limitation periods.\n")
	p.WriteString("Severity is high|medium|low and likelihood is likely|possible|unlikely.\n")
	p.WriteString("</system>\n\n")
	fmt.Fprintf(&p, "Legal area: %s (%s), jurisdiction %s\n", issue.Area, issue.SubCategory, primaryJurisdiction(st))
	if f := st.Facts; f != nil {
		fmt.Fprintf(&p, "Narrative: %s\nFact gaps:\n%s\n", f.NarrativeSummary, bullets(f.FactGaps, "- none"))
	}
	if e := st.Elements; e != nil {
		fmt.Fprintf(&p, "Elements satisfied: %d/%d, viability %s\n", e.ElementsSatisfied, e.ElementsTotal, e.ViabilityAssessment)
	}
	if pr := st.Precedents; pr != nil {
		fmt.Fprintf(&p, "Precedent pattern: %s\n", orDefault(pr.PatternIdentified, "none identified"))
	}
	fmt.Fprintf(&p, "User's account: %s\n\n", st.CurrentQuery)
	p.WriteString(`Respond with JSON: {"overall_risk_level": "high"|"medium"|"low", "risks": [{"description", "severity", "likelihood", "mitigation"}], ` +
		`"evidence_weaknesses": [string], "possible_defences": [{"defence_type", "likelihood_of_use", "strength", "counter_strategy"}], ` +
		`"counterfactual_scenarios": [string], "time_sensitivity": string}`)
	return p.String()
}

type briefDraft struct {
	ExecutiveSummary   string   `json:"executive_summary"`
	UrgencyLevel       string   `json:"urgency_level"`
	ClientSituation    string   `json:"client_situation"`
	OpenQuestions      []string `json:"open_questions"`
	SuggestedNextSteps []string `json:"suggested_next_steps"`
}

// EscalationBriefStage assembles the lawyer-facing brief from every earlier
// analysis and announces it on the event bus.
type EscalationBriefStage struct {
	base
	llm    llm.LLMProvider
	events events.Publisher
	now    func() time.Time
	newID  func() string
}

func NewEscalationBrief(d Deps) *EscalationBriefStage {
	d = d.withDefaults()
	return &EscalationBriefStage{
		base:   newBase(EscalationBrief, d),
		llm:    d.LLM,
		events: d.Events,
		now:    d.Now,
		newID:  d.NewID,
	}
}

func (s *EscalationBriefStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	var draft briefDraft
	if err := llm.GenerateJSON(ctx, s.llm, briefPrompt(st), &draft, s.options(cfg)...); err != nil {
		return state.Update{}, fmt.Errorf("escalation brief: %w", err)
	}

	brief := s.assemble(st)
	brief.ExecutiveSummary = orDefault(draft.ExecutiveSummary, brief.ExecutiveSummary)
	brief.ClientSituation = orDefault(draft.ClientSituation, brief.ClientSituation)
	switch u := strings.ToLower(draft.UrgencyLevel); u {
	case "urgent", "standard", "low_priority":
		brief.UrgencyLevel = u
	}
	if len(draft.OpenQuestions) > 0 {
		brief.OpenQuestions = draft.OpenQuestions
	}
	if len(draft.SuggestedNextSteps) > 0 {
		brief.SuggestedNextSteps = draft.SuggestedNextSteps
	}

	if err := s.events.Publish(ctx, events.BriefGenerated(st.SessionID, brief.BriefID, brief.UrgencyLevel, brief)); err != nil {
		s.logger.Error(s.module(), "failed to publish brief", map[string]interface{}{
			"session_id": cfg.SessionID,
			"brief_id":   brief.BriefID,
			"error":      err.Error(),
		})
	}

	s.logger.Info(s.module(), "brief generated", map[string]interface{}{
		"session_id": cfg.SessionID,
		"brief_id":   brief.BriefID,
		"urgency":    brief.UrgencyLevel,
	})
	return state.Update{Stage: EscalationBrief, Brief: brief}, nil
}

// Fallback still produces a brief so the complex response can reference it.
func (s *EscalationBriefStage) Fallback(st *state.State, cause error) state.Update {
	return state.Update{Stage: EscalationBrief, Brief: s.assemble(st)}
}

// assemble builds a brief from the state alone.
func (s *EscalationBriefStage) assemble(st *state.State) *state.EscalationBrief {
	b := &state.EscalationBrief{
		BriefID:            s.newID(),
		GeneratedAt:        s.now().UTC(),
		ExecutiveSummary:   "Brief generation encountered an error. Manual review required.",
		UrgencyLevel:       "standard",
		ClientSituation:    st.CurrentQuery,
		LegalIssues:        []state.LegalIssue{},
		Jurisdiction:       st.Jurisdiction,
		Facts:              st.Facts,
		LegalAnalysis:      st.Elements,
		RelevantPrecedents: []state.CasePrecedent{},
		RiskAssessment:     st.Risk,
		OpenQuestions:      []string{},
		SuggestedNextSteps: []string{},
	}
	if st.Issue != nil {
		b.LegalIssues = append(b.LegalIssues, st.Issue.PrimaryIssue)
		b.LegalIssues = append(b.LegalIssues, st.Issue.SecondaryIssues...)
	}
	if st.Facts != nil {
		b.ClientSituation = orDefault(st.Facts.NarrativeSummary, st.CurrentQuery)
		b.OpenQuestions = append(b.OpenQuestions, st.Facts.FactGaps...)
	}
	if st.Precedents != nil {
		b.RelevantPrecedents = append(b.RelevantPrecedents, st.Precedents.MatchingCases...)
	}
	if st.Strategy != nil {
		rec := st.Strategy.RecommendedStrategy
		b.RecommendedStrategy = &rec
		b.SuggestedNextSteps = append(b.SuggestedNextSteps, st.Strategy.ImmediateActions...)
	}
	if st.Risk != nil && st.Risk.OverallRiskLevel == "high" && st.Risk.TimeSensitivity != "" {
		b.UrgencyLevel = "urgent"
	}
	return b
}

func briefPrompt(st *state.State) string {
	issue := primaryIssue(st)
	var p strings.Builder
	p.WriteString("<system>\n")
	p.WriteString("You are preparing a handoff brief for an Australian lawyer. Write a concise executive summary of the matter, ")
	p.WriteString("describe the client's situation in neutral terms, set urgency (urgent if there are deadlines within weeks or safety issues, ")
	p.WriteString("standard for ordinary disputes, low_priority for general enquiries), list open questions the lawyer should ask ")
	p.WriteString("and suggest next steps.\n")
	p.WriteString("</system>\n\n")
	fmt.Fprintf(&p, "Legal area: %s (%s), jurisdiction %s\n", issue.Area, issue.SubCategory, primaryJurisdiction(st))
	if f := st.Facts; f != nil {
		fmt.Fprintf(&p, "Narrative: %s\nKey facts:\n%s\nFact gaps:\n%s\n", f.NarrativeSummary, bullets(f.KeyFacts, "- none"), bullets(f.FactGaps, "- none"))
		if len(f.Evidence) > 0 {
			p.WriteString("Evidence:\n")
			for _, e := range f.Evidence {
				fmt.Fprintf(&p, "- %s: %s (%s)\n", e.Type, e.Description, orDefault(e.Status, "status unknown"))
			}
		}
	}
	if e := st.Elements; e != nil {
		fmt.Fprintf(&p, "Applicable law: %s; viability %s (%d/%d)\n", e.ApplicableLaw, e.ViabilityAssessment, e.ElementsSatisfied, e.ElementsTotal)
	}
	if r := st.Risk; r != nil {
		fmt.Fprintf(&p, "Overall risk: %s; time sensitivity: %s\n", r.OverallRiskLevel, orDefault(r.TimeSensitivity, "none identified"))
	}
	if s := st.Strategy; s != nil {
		fmt.Fprintf(&p, "Recommended strategy: %s\n", s.RecommendedStrategy.Name)
	}
	fmt.Fprintf(&p, "Client's words: %s\n\n", st.CurrentQuery)
	p.WriteString(`Respond with JSON: {"executive_summary": string, "urgency_level": "urgent"|"standard"|"low_priority", ` +
		`"client_situation": string, "open_questions": [string], "suggested_next_steps": [string]}`)
	return p.String()
}

// ComplexResponseStage writes the full answer for the complex path.
type ComplexResponseStage struct {
	base
	llm llm.LLMProvider
}

func NewComplexResponse(d Deps) *ComplexResponseStage {
	d = d.withDefaults()
	return &ComplexResponseStage{base: newBase(ComplexResponse, d), llm: d.LLM}
}

func (s *ComplexResponseStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	text, err := s.llm.Generate(ctx, complexResponsePrompt(st), s.replyOptions()...)
	if err != nil {
		return state.Update{}, fmt.Errorf("complex response: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return state.Update{}, fmt.Errorf("complex response: empty reply")
	}
	return state.Update{
		Stage:    ComplexResponse,
		Messages: []state.Message{state.Assistant(withBriefNote(strings.TrimSpace(text), st))},
	}, nil
}

func (s *ComplexResponseStage) Fallback(st *state.State, cause error) state.Update {
	var b strings.Builder
	if f := st.Facts; f != nil && f.NarrativeSummary != "" {
		b.WriteString("## Your Situation\n\n")
		b.WriteString(f.NarrativeSummary)
		b.WriteString("\n\n")
	}
	if r := st.Risk; r != nil {
		fmt.Fprintf(&b, "**Overall risk:** %s\n\n", r.OverallRiskLevel)
	}
	b.WriteString(strategySummaryText(st))
	return state.Update{
		Stage:    ComplexResponse,
		Messages: []state.Message{state.Assistant(withBriefNote(b.String(), st))},
	}
}

func withBriefNote(text string, st *state.State) string {
	text += complexDisclaimer
	if st.Brief != nil {
		id := st.Brief.BriefID
		if len(id) > 8 {
			id = id[:8]
		}
		text += fmt.Sprintf("\n\n_A detailed brief (ID: %s) has been prepared that can be shared with a lawyer for faster consultation._", id)
	}
	return text
}

func complexResponsePrompt(st *state.State) string {
	issue := primaryIssue(st)
	strat := st.Strategy
	if strat == nil {
		strat = fallbackStrategy()
	}

	narrative, keyFacts := "No summary available", "No key facts identified"
	if f := st.Facts; f != nil {
		narrative = orDefault(f.NarrativeSummary, narrative)
		facts := f.KeyFacts
		if len(facts) > 10 {
			facts = facts[:10]
		}
		keyFacts = bullets(facts, keyFacts)
	}

	viability, elementsStatus, law := "unknown", "0/0", "Not determined"
	if e := st.Elements; e != nil {
		viability = string(e.ViabilityAssessment)
		elementsStatus = fmt.Sprintf("%d/%d", e.ElementsSatisfied, e.ElementsTotal)
		law = e.ApplicableLaw
	}

	riskLevel, risks, timing := "unknown", "No significant risks identified", "No specific deadlines identified"
	if r := st.Risk; r != nil {
		riskLevel = r.OverallRiskLevel
		timing = orDefault(r.TimeSensitivity, timing)
		lines := make([]string, 0, 5)
		for i, f := range r.Risks {
			if i >= 5 {
				break
			}
			lines = append(lines, fmt.Sprintf("[%s/%s] %s", f.Severity, orDefault(f.Likelihood, "N/A"), f.Description))
		}
		risks = bullets(lines, risks)
	}

	precedents := "No relevant precedents found"
	if pr := st.Precedents; pr != nil && len(pr.MatchingCases) > 0 {
		lines := make([]string, 0, 3)
		for i, c := range pr.MatchingCases {
			if i >= 3 {
				break
			}
			lines = append(lines, fmt.Sprintf("%s (%d): %s - %s", c.CaseName, c.Year, c.OutcomeForSimilarParty, truncate(c.KeyHolding, 100)))
		}
		precedents = bullets(lines, precedents)
	}

	alts := make([]string, 0, 3)
	for i, a := range strat.AlternativeStrategies {
		if i >= 3 {
			break
		}
		alts = append(alts, a.Name+": "+truncate(a.Description, 100))
	}

	rec := strat.RecommendedStrategy
	return fmt.Sprintf(`<system>
You are an Australian legal assistant. Generate a comprehensive response based on the detailed analysis provided.
Be thorough but clear, use plain language and clear headings, reference key facts, legal elements and precedents where relevant,
highlight risks, and include the recommended strategy. Do not add a disclaimer; one is appended for you.
</system>

Legal area: %s (%s)
Jurisdiction: %s

Case summary:
%s

Key facts:
%s

Legal position:
- Viability: %s
- Elements satisfied: %s
- Applicable law: %s

Risk assessment:
- Overall risk level: %s
- Key risks:
%s
- Time sensitivity: %s

Relevant precedents:
%s

Recommended strategy:
**%s**: %s
- Success likelihood: %s
- Estimated cost: %s
- Timeline: %s

Alternative options:
%s

Immediate actions:
%s

User's original question: %s`,
		issue.Area, issue.SubCategory, primaryJurisdiction(st),
		narrative, keyFacts,
		viability, elementsStatus, law,
		riskLevel, risks, timing,
		precedents,
		rec.Name, rec.Description, orDefault(rec.SuccessLikelihood, "N/A"), orDefault(rec.EstimatedCost, "N/A"), orDefault(rec.EstimatedTimeline, "N/A"),
		bullets(alts, "No alternatives provided"),
		bullets(strat.ImmediateActions, "No specific actions identified"),
		st.CurrentQuery)
}
