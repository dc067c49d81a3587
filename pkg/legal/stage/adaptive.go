package stage

import (
	"context"
	"fmt"
	"strings"

	"legal-assistant-be/pkg/legal/graph"
	"legal-assistant-be/pkg/legal/router"
	"legal-assistant-be/pkg/legal/state"
	"legal-assistant-be/pkg/llm"
)

// InitializeStage opens a turn: session id, current query and the caller's
// jurisdiction and document hints. The conversational variant also detects
// the brief trigger.
type InitializeStage struct {
	base
	newID        func() string
	conversation bool
}

func NewInitialize(d Deps) *InitializeStage {
	d = d.withDefaults()
	return &InitializeStage{base: newBase(Initialize, d), newID: d.NewID}
}

func NewConversationInitialize(d Deps) *InitializeStage {
	s := NewInitialize(d)
	s.conversation = true
	return s
}

func (s *InitializeStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	upd := s.sessionUpdate(st)
	raw := st.LatestHumanMessage()

	if !s.conversation {
		upd.CurrentQuery = state.Ptr(raw)
		s.logger.Info(s.module(), "initializing adaptive run", map[string]interface{}{
			"session_id":   *upd.SessionID,
			"query_length": len(raw),
		})
		return upd, nil
	}

	brief := router.HasBriefTrigger(raw)
	query := strings.TrimSpace(strings.ReplaceAll(raw, router.BriefTrigger, ""))
	upd.CurrentQuery = state.Ptr(query)
	upd.FirstMessage = state.Ptr(len(st.Messages) <= 1)

	mode := state.ModeChat
	if brief || st.Phase == state.PhaseAwaitingIntakeAnswer {
		mode = state.ModeBrief
	}
	upd.Mode = &mode

	if brief {
		switch st.Phase {
		case state.PhaseAwaitingOfferReply:
			upd.Event = state.EventOfferPreempted
			upd.Intake = &state.IntakePatch{Reset: true}
		case state.PhaseIdle, "":
			upd.Intake = &state.IntakePatch{Reset: true}
		}
	}

	s.logger.Info(s.module(), "initializing conversation turn", map[string]interface{}{
		"session_id": *upd.SessionID,
		"mode":       string(mode),
		"phase":      string(st.Phase),
	})
	return upd, nil
}

func (s *InitializeStage) sessionUpdate(st *state.State) state.Update {
	id := st.SessionID
	if id == "" {
		id = s.newID()
	}
	upd := state.Update{
		Stage:       Initialize,
		SessionID:   &id,
		DocumentURL: state.Ptr(strings.TrimSpace(st.Inbound.DocumentURL)),
	}
	if us := state.NormalizeJurisdiction(st.Inbound.UserState); us != "" {
		upd.UserState = &us
	}
	if m := st.Inbound.UIMode; m.Valid() {
		upd.UIMode = &m
	}
	return upd
}

// Fallback keeps whatever the caller sent; initialization has nothing that
// can fail short of a panic.
func (s *InitializeStage) Fallback(st *state.State, cause error) state.Update {
	upd := s.sessionUpdate(st)
	upd.CurrentQuery = state.Ptr(strings.TrimSpace(strings.ReplaceAll(st.LatestHumanMessage(), router.BriefTrigger, "")))
	return upd
}

var legalAreas = []string{
	"tenancy", "employment", "family", "criminal", "contract", "immigration", "property",
	"wills_estates", "injury", "debt", "administrative", "consumer", "other",
}

func knownArea(area string) bool {
	for _, a := range legalAreas {
		if a == area {
			return true
		}
	}
	return false
}

// IssueIdentificationStage classifies the legal area, sub-category and
// complexity of the query.
type IssueIdentificationStage struct {
	base
	llm llm.LLMProvider
}

func NewIssueIdentification(d Deps) *IssueIdentificationStage {
	d = d.withDefaults()
	return &IssueIdentificationStage{base: newBase(IssueIdentification, d), llm: d.LLM}
}

func (s *IssueIdentificationStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	var out state.IssueClassification
	if err := llm.GenerateJSON(ctx, s.llm, issuePrompt(st), &out, s.options(cfg)...); err != nil {
		return state.Update{}, fmt.Errorf("issue classification: %w", err)
	}

	out.PrimaryIssue.Area = strings.ToLower(out.PrimaryIssue.Area)
	if !knownArea(out.PrimaryIssue.Area) {
		out.PrimaryIssue.Area = "other"
	}
	if out.SecondaryIssues == nil {
		out.SecondaryIssues = []state.LegalIssue{}
	}

	s.logger.Info(s.module(), "issue identified", map[string]interface{}{
		"session_id": cfg.SessionID,
		"area":       out.PrimaryIssue.Area,
		"sub":        out.PrimaryIssue.SubCategory,
		"complexity": out.ComplexityScore,
		"secondary":  len(out.SecondaryIssues),
	})
	return state.Update{Stage: IssueIdentification, Issue: &out}, nil
}

func (s *IssueIdentificationStage) Fallback(st *state.State, cause error) state.Update {
	return state.Update{
		Stage: IssueIdentification,
		Issue: &state.IssueClassification{
			PrimaryIssue: state.LegalIssue{
				Area:        "other",
				SubCategory: "general_inquiry",
				Confidence:  0.5,
				Description: "Unable to classify - treating as general inquiry",
			},
			SecondaryIssues: []state.LegalIssue{},
			ComplexityScore: 0.5,
		},
	}
}

func issuePrompt(st *state.State) string {
	hasDoc := "No"
	if st.HasDocument() {
		hasDoc = "Yes"
	}

	var p strings.Builder
	p.WriteString("<system>\n")
	p.WriteString("You are an Australian legal issue classifier. Identify and categorize the legal issues in the user's query.\n\n")
	p.WriteString("Legal areas (choose one as primary): ")
	p.WriteString(strings.Join(legalAreas, ", "))
	p.WriteString(".\n")
	p.WriteString("Use specific sub-categories such as bond_refund, rent_increase, eviction_notice, unfair_dismissal, underpayment, child_custody, property_settlement.\n\n")
	p.WriteString("Complexity score from 0 to 1:\n")
	p.WriteString("- 0.0-0.3: single clear question, one party relationship, general information\n")
	p.WriteString("- 0.4-0.6: some ambiguity, related issues, time pressure\n")
	p.WriteString("- 0.7-1.0: several legal areas, conflicting parties, ongoing litigation, documents to analyse\n")
	p.WriteString("</system>\n\n")
	fmt.Fprintf(&p, "User's query: %s\n", st.CurrentQuery)
	fmt.Fprintf(&p, "User's Australian state/territory: %s\n", orDefault(st.UserState, "Not specified"))
	fmt.Fprintf(&p, "User has uploaded document: %s\n\n", hasDoc)
	p.WriteString(`Respond with JSON: {"primary_issue": {"area": string, "sub_category": string, "confidence": number, "description": string}, ` +
		`"secondary_issues": [same shape], "complexity_score": number, "involves_multiple_jurisdictions": bool, "requires_document_analysis": bool}`)
	return p.String()
}

var simplePathSkips = []string{FactStructuring, LegalElements, CasePrecedent, RiskAnalysis, EscalationBrief}

// ComplexityRoutingStage records the simple or complex decision.
type ComplexityRoutingStage struct {
	base
	classifier *router.ComplexityClassifier
}

func NewComplexityRouting(d Deps) *ComplexityRoutingStage {
	d = d.withDefaults()
	c := d.Complexity
	if c == nil {
		c = router.NewComplexityClassifier(d.LLM, d.Logger, router.Thresholds{})
	}
	return &ComplexityRoutingStage{base: newBase(ComplexityRouting, d), classifier: c}
}

func (s *ComplexityRoutingStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	path, reason := s.classifier.Classify(ctx, st, s.options(cfg)...)
	return state.Update{Stage: ComplexityRouting, Routing: routingFor(path, reason)}, nil
}

func (s *ComplexityRoutingStage) Fallback(st *state.State, cause error) state.Update {
	return state.Update{
		Stage:   ComplexityRouting,
		Routing: routingFor(router.DefaultOnClassifierFailure, "complexity routing failed, using default"),
	}
}

func routingFor(path state.Path, reason string) *state.RoutingDecision {
	d := &state.RoutingDecision{Path: path, Reasoning: reason, SkipStages: []string{}}
	if path != state.PathComplex {
		d.SkipStages = append(d.SkipStages, simplePathSkips...)
	}
	return d
}

// federalAreas and stateAreas resolve clear-cut matters without a model
// call. A nil sub-category list matches every sub-category of the area.
var (
	federalAreas = map[string][]string{
		"employment":  {"unfair_dismissal", "redundancy", "general_protections", "workplace_rights"},
		"family":      {"divorce", "child_custody", "child_support", "property_settlement"},
		"immigration": nil,
		"consumer":    {"accc", "competition", "consumer_guarantees"},
	}
	stateAreas = map[string][]string{
		"tenancy":       nil,
		"property":      {"boundary_disputes", "strata", "conveyancing"},
		"criminal":      {"state_offences", "traffic"},
		"wills_estates": nil,
	}
	// searchableJurisdictions have indexed legislation.
	searchableJurisdictions = map[string]bool{"NSW": true, "QLD": true, state.Federal: true}
)

const defaultState = "NSW"

func areaMatches(table map[string][]string, area, sub string) bool {
	subs, ok := table[area]
	if !ok {
		return false
	}
	if subs == nil {
		return true
	}
	for _, s := range subs {
		if strings.Contains(sub, s) {
			return true
		}
	}
	return false
}

func appendUnique(list []string, items ...string) []string {
	for _, it := range items {
		found := false
		for _, l := range list {
			if l == it {
				found = true
				break
			}
		}
		if !found {
			list = append(list, it)
		}
	}
	return list
}

// QuickJurisdiction resolves federal-only and state-only areas. It returns
// nil when a model call is needed.
func QuickJurisdiction(area, subCategory, userState string) *state.JurisdictionResult {
	area = strings.ToLower(area)
	sub := strings.ToLower(subCategory)
	st := orDefault(userState, defaultState)

	if areaMatches(federalAreas, area, sub) {
		return &state.JurisdictionResult{
			PrimaryJurisdiction:     state.Federal,
			ApplicableJurisdictions: appendUnique([]string{state.Federal}, st),
			JurisdictionConflicts:   []string{},
			Reasoning:               area + " matters are governed by federal law",
		}
	}
	if areaMatches(stateAreas, area, sub) {
		fallback := !searchableJurisdictions[st]
		applicable := []string{st}
		if fallback {
			applicable = append(applicable, state.Federal)
		}
		return &state.JurisdictionResult{
			PrimaryJurisdiction:     st,
			ApplicableJurisdictions: applicable,
			JurisdictionConflicts:   []string{},
			FallbackToFederal:       fallback,
			Reasoning:               fmt.Sprintf("%s matters are governed by %s state law", area, st),
		}
	}
	return nil
}

// JurisdictionStage determines which laws apply.
type JurisdictionStage struct {
	base
	llm llm.LLMProvider
}

func NewJurisdiction(d Deps) *JurisdictionStage {
	d = d.withDefaults()
	return &JurisdictionStage{base: newBase(Jurisdiction, d), llm: d.LLM}
}

func (s *JurisdictionStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	issue := primaryIssue(st)
	if quick := QuickJurisdiction(issue.Area, issue.SubCategory, st.UserState); quick != nil {
		s.logger.Info(s.module(), "jurisdiction resolved (quick)", map[string]interface{}{
			"session_id": cfg.SessionID,
			"primary":    quick.PrimaryJurisdiction,
			"fallback":   quick.FallbackToFederal,
		})
		return state.Update{Stage: Jurisdiction, Jurisdiction: quick}, nil
	}

	var out state.JurisdictionResult
	if err := llm.GenerateJSON(ctx, s.llm, jurisdictionPrompt(st, issue), &out, s.options(cfg)...); err != nil {
		return state.Update{}, fmt.Errorf("jurisdiction resolution: %w", err)
	}

	primary := strings.ToUpper(out.PrimaryJurisdiction)
	if !state.ValidJurisdiction(primary) {
		primary = orDefault(st.UserState, defaultState)
	}
	applicable := make([]string, 0, len(out.ApplicableJurisdictions))
	for _, j := range out.ApplicableJurisdictions {
		if j = strings.ToUpper(j); state.ValidJurisdiction(j) {
			applicable = appendUnique(applicable, j)
		}
	}
	if len(applicable) == 0 {
		applicable = []string{primary}
	}
	res := &state.JurisdictionResult{
		PrimaryJurisdiction:     primary,
		ApplicableJurisdictions: applicable,
		JurisdictionConflicts:   out.JurisdictionConflicts,
		FallbackToFederal:       !searchableJurisdictions[primary],
		Reasoning:               out.Reasoning,
	}
	if res.JurisdictionConflicts == nil {
		res.JurisdictionConflicts = []string{}
	}

	s.logger.Info(s.module(), "jurisdiction resolved (model)", map[string]interface{}{
		"session_id": cfg.SessionID,
		"primary":    primary,
		"fallback":   res.FallbackToFederal,
		"conflicts":  len(res.JurisdictionConflicts),
	})
	return state.Update{Stage: Jurisdiction, Jurisdiction: res}, nil
}

func (s *JurisdictionStage) Fallback(st *state.State, cause error) state.Update {
	def := orDefault(st.UserState, defaultState)
	return state.Update{
		Stage: Jurisdiction,
		Jurisdiction: &state.JurisdictionResult{
			PrimaryJurisdiction:     def,
			ApplicableJurisdictions: appendUnique([]string{def}, state.Federal),
			JurisdictionConflicts:   []string{},
			FallbackToFederal:       !searchableJurisdictions[def],
			Reasoning:               fmt.Sprintf("Defaulting to %s due to resolution error", def),
		},
	}
}

func jurisdictionPrompt(st *state.State, issue state.LegalIssue) string {
	return fmt.Sprintf(`<system>
You are an Australian legal jurisdiction specialist. Determine which jurisdiction(s) apply to the legal matter.

Federal law applies across Australia for employment (Fair Work Act 2009), family law (Family Law Act 1975), immigration, consumer law (Australian Consumer Law), corporations and taxation.
State and territory law applies for residential tenancies, property and conveyancing, state criminal offences, wills and estates, and local government.
</system>

User's stated location: %s
Primary legal area: %s
Sub-category: %s
Query: %s

Valid codes: %s.
Respond with JSON: {"primary_jurisdiction": string, "applicable_jurisdictions": [string], "jurisdiction_conflicts": [string], "reasoning": string}`,
		orDefault(st.UserState, "Not specified"), issue.Area, issue.SubCategory, st.CurrentQuery,
		strings.Join(state.AllJurisdictions, ", "))
}

// StrategyStage recommends a course of action. The same stage serves the
// simple and the complex path; on the complex path it sees every earlier
// analysis.
type StrategyStage struct {
	base
	llm llm.LLMProvider
}

func NewStrategy(d Deps) *StrategyStage {
	d = d.withDefaults()
	return &StrategyStage{base: newBase(Strategy, d), llm: d.LLM}
}

func (s *StrategyStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	var out state.StrategyRecommendation
	if err := llm.GenerateJSON(ctx, s.llm, strategyPrompt(st), &out, s.options(cfg)...); err != nil {
		return state.Update{}, fmt.Errorf("strategy recommendation: %w", err)
	}
	if out.AlternativeStrategies == nil {
		out.AlternativeStrategies = []state.StrategyOption{}
	}
	if out.DecisionFactors == nil {
		out.DecisionFactors = []string{}
	}
	s.logger.Info(s.module(), "strategy recommended", map[string]interface{}{
		"session_id":   cfg.SessionID,
		"strategy":     out.RecommendedStrategy.Name,
		"alternatives": len(out.AlternativeStrategies),
	})
	return state.Update{Stage: Strategy, Strategy: &out}, nil
}

func (s *StrategyStage) Fallback(st *state.State, cause error) state.Update {
	return state.Update{Stage: Strategy, Strategy: fallbackStrategy()}
}

func fallbackStrategy() *state.StrategyRecommendation {
	return &state.StrategyRecommendation{
		RecommendedStrategy: state.StrategyOption{
			Name:              "Seek professional legal advice",
			Description:       "Given the complexity of this matter, we recommend consulting with a qualified solicitor who can provide tailored advice based on the full details of your situation.",
			Pros:              []string{"Expert guidance", "Tailored to your specific circumstances", "Can identify issues we may have missed"},
			Cons:              []string{"Cost involved", "Takes time to arrange"},
			EstimatedCost:     "$300-1000 for initial consultation",
			EstimatedTimeline: "1-2 weeks to arrange",
			SuccessLikelihood: "high",
			RecommendedFor:    "All situations where legal rights are at stake",
		},
		AlternativeStrategies: []state.StrategyOption{{
			Name:              "Community legal centre consultation",
			Description:       "Free legal advice is available through community legal centres for eligible individuals.",
			Pros:              []string{"Free service", "Professional advice", "No obligation"},
			Cons:              []string{"May have waitlist", "Limited appointment times", "Income eligibility may apply"},
			EstimatedCost:     "$0",
			EstimatedTimeline: "1-3 weeks to get appointment",
			SuccessLikelihood: "medium",
			RecommendedFor:    "Those who meet income eligibility criteria",
		}},
		ImmediateActions: []string{
			"Document all relevant facts and gather supporting evidence",
			"Note any upcoming deadlines or limitation periods",
			"Consider seeking professional legal advice",
		},
		DecisionFactors: []string{
			"The financial stakes involved",
			"Your available time and resources",
			"The strength of your evidence",
			"Your relationship with the other party",
		},
	}
}

func strategyPrompt(st *state.State) string {
	issue := primaryIssue(st)

	var p strings.Builder
	p.WriteString("<system>\n")
	p.WriteString("You are an Australian legal strategist. Recommend the most practical course of action for the user.\n")
	p.WriteString("Prefer free options first (ombudsmen, fair trading, community legal centres), then low-cost tribunals, then self-help. ")
	p.WriteString("Recommend a paid lawyer only for criminal charges, unavoidable litigation, large sums or safety concerns.\n")
	p.WriteString("</system>\n\n")
	fmt.Fprintf(&p, "Legal area: %s (%s)\n", issue.Area, issue.SubCategory)
	fmt.Fprintf(&p, "Issue: %s\n", orDefault(issue.Description, "Legal matter"))
	fmt.Fprintf(&p, "Jurisdiction: %s\n", primaryJurisdiction(st))
	if f := st.Facts; f != nil {
		fmt.Fprintf(&p, "Case summary: %s\nKey facts:\n%s\n", f.NarrativeSummary, bullets(f.KeyFacts, "- none"))
	}
	if e := st.Elements; e != nil {
		fmt.Fprintf(&p, "Viability: %s (%d/%d elements satisfied)\n", e.ViabilityAssessment, e.ElementsSatisfied, e.ElementsTotal)
	}
	if pr := st.Precedents; pr != nil && pr.TypicalOutcome != "" {
		fmt.Fprintf(&p, "Typical outcome in similar cases: %s\n", pr.TypicalOutcome)
	}
	if r := st.Risk; r != nil {
		fmt.Fprintf(&p, "Overall risk: %s\n", r.OverallRiskLevel)
		if r.TimeSensitivity != "" {
			fmt.Fprintf(&p, "Time sensitivity: %s\n", r.TimeSensitivity)
		}
	}
	fmt.Fprintf(&p, "\nUser's question: %s\n\n", st.CurrentQuery)
	p.WriteString(`Respond with JSON: {"recommended_strategy": {"name": string, "description": string, "pros": [string], "cons": [string], ` +
		`"estimated_cost": string, "estimated_timeline": string, "success_likelihood": "high"|"medium"|"low", "recommended_for": string}, ` +
		`"alternative_strategies": [same shape], "immediate_actions": [string], "decision_factors": [string]}`)
	return p.String()
}

// SimpleResponseStage writes the answer for the simple path.
type SimpleResponseStage struct {
	base
	llm llm.LLMProvider
}

func NewSimpleResponse(d Deps) *SimpleResponseStage {
	d = d.withDefaults()
	return &SimpleResponseStage{base: newBase(SimpleResponse, d), llm: d.LLM}
}

func (s *SimpleResponseStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	text, err := s.llm.Generate(ctx, simpleResponsePrompt(st), s.replyOptions()...)
	if err != nil {
		return state.Update{}, fmt.Errorf("simple response: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return state.Update{}, fmt.Errorf("simple response: empty reply")
	}
	return state.Update{
		Stage:    SimpleResponse,
		Messages: []state.Message{state.Assistant(strings.TrimSpace(text) + simpleDisclaimer)},
	}, nil
}

func (s *SimpleResponseStage) Fallback(st *state.State, cause error) state.Update {
	return state.Update{
		Stage:    SimpleResponse,
		Messages: []state.Message{state.Assistant(strategySummaryText(st) + simpleDisclaimer)},
	}
}

func simpleResponsePrompt(st *state.State) string {
	issue := primaryIssue(st)
	strat := st.Strategy
	if strat == nil {
		strat = fallbackStrategy()
	}
	return fmt.Sprintf(`<system>
You are an Australian legal assistant. Generate a helpful response based on the analysis below.
Be clear and concise, use plain language, structure the answer with short headings where useful and include the recommended actions.
Do not add a disclaimer; one is appended for you.
</system>

Legal area: %s
Jurisdiction: %s
Issue summary: %s

Recommended strategy: %s: %s

Immediate actions:
%s

Key decision factors:
%s

User's original question: %s`,
		issue.Area, primaryJurisdiction(st), orDefault(issue.Description, "Legal matter"),
		strat.RecommendedStrategy.Name, strat.RecommendedStrategy.Description,
		bullets(strat.ImmediateActions, "No specific actions identified"),
		bullets(strat.DecisionFactors, "Consider seeking professional advice"),
		st.CurrentQuery)
}

// strategySummaryText renders the recommendation without a model.
func strategySummaryText(st *state.State) string {
	strat := st.Strategy
	if strat == nil {
		strat = fallbackStrategy()
	}
	var b strings.Builder
	issue := primaryIssue(st)
	if issue.Description != "" {
		fmt.Fprintf(&b, "Here's what I can tell you about your %s matter: %s\n\n", strings.ReplaceAll(issue.Area, "_", " "), issue.Description)
	}
	fmt.Fprintf(&b, "**Recommended approach: %s**\n\n%s\n\n", strat.RecommendedStrategy.Name, strat.RecommendedStrategy.Description)
	b.WriteString("**What to do now:**\n")
	b.WriteString(bullets(strat.ImmediateActions, "- Consider seeking professional legal advice"))
	return b.String()
}
