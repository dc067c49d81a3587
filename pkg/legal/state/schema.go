package state

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidOutput = errors.New("invalid stage output")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidOutput, fmt.Sprintf(format, args...))
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// RiskCategory values used by safety screening.
type RiskCategory string

const (
	RiskNone           RiskCategory = ""
	RiskCriminal       RiskCategory = "criminal"
	RiskFamilyViolence RiskCategory = "family_violence"
	RiskUrgentDeadline RiskCategory = "urgent_deadline"
	RiskChildWelfare   RiskCategory = "child_welfare"
	RiskSuicide        RiskCategory = "suicide_self_harm"
)

func (c RiskCategory) Valid() bool {
	switch c {
	case RiskCriminal, RiskFamilyViolence, RiskUrgentDeadline, RiskChildWelfare, RiskSuicide:
		return true
	}
	return false
}

// LifeSafety reports categories where someone may be in immediate danger.
func (c RiskCategory) LifeSafety() bool {
	return c == RiskSuicide || c == RiskFamilyViolence || c == RiskChildWelfare
}

// Resource is one entry of the emergency-resource directory.
type Resource struct {
	Name        string `json:"name" yaml:"name"`
	Phone       string `json:"phone,omitempty" yaml:"phone"`
	URL         string `json:"url,omitempty" yaml:"url"`
	Description string `json:"description,omitempty" yaml:"description"`
}

type SafetyAssessment struct {
	IsHighRisk           bool         `json:"is_high_risk"`
	RiskCategory         RiskCategory `json:"risk_category,omitempty"`
	RiskIndicators       []string     `json:"risk_indicators"`
	RecommendedResources []Resource   `json:"recommended_resources"`
	RequiresEscalation   bool         `json:"requires_escalation"`
	Reasoning            string       `json:"reasoning"`
}

func (a *SafetyAssessment) Validate() error {
	if a.RiskCategory != RiskNone && !a.RiskCategory.Valid() {
		return invalid("unknown risk category %q", a.RiskCategory)
	}
	if a.RequiresEscalation && !a.IsHighRisk {
		return invalid("escalation without high risk")
	}
	if a.Reasoning == "" {
		return invalid("safety reasoning missing")
	}
	return nil
}

type LegalIssue struct {
	Area        string  `json:"area"`
	SubCategory string  `json:"sub_category"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
}

func (i LegalIssue) validate() error {
	if i.Area == "" || i.SubCategory == "" {
		return invalid("issue area and sub_category required")
	}
	if i.Confidence < 0 || i.Confidence > 1 {
		return invalid("issue confidence %v out of range", i.Confidence)
	}
	return nil
}

type IssueClassification struct {
	PrimaryIssue                  LegalIssue   `json:"primary_issue"`
	SecondaryIssues               []LegalIssue `json:"secondary_issues"`
	ComplexityScore               float64      `json:"complexity_score"`
	InvolvesMultipleJurisdictions bool         `json:"involves_multiple_jurisdictions"`
	RequiresDocumentAnalysis      bool         `json:"requires_document_analysis"`
}

func (c *IssueClassification) Validate() error {
	if err := c.PrimaryIssue.validate(); err != nil {
		return err
	}
	for _, s := range c.SecondaryIssues {
		if err := s.validate(); err != nil {
			return err
		}
	}
	if c.ComplexityScore < 0 || c.ComplexityScore > 1 {
		return invalid("complexity score %v out of range", c.ComplexityScore)
	}
	return nil
}

type JurisdictionResult struct {
	PrimaryJurisdiction     string   `json:"primary_jurisdiction"`
	ApplicableJurisdictions []string `json:"applicable_jurisdictions"`
	JurisdictionConflicts   []string `json:"jurisdiction_conflicts"`
	FallbackToFederal       bool     `json:"fallback_to_federal"`
	Reasoning               string   `json:"reasoning"`
}

func (j *JurisdictionResult) Validate() error {
	if !ValidJurisdiction(j.PrimaryJurisdiction) {
		return invalid("unknown jurisdiction %q", j.PrimaryJurisdiction)
	}
	if len(j.ApplicableJurisdictions) == 0 {
		return invalid("applicable jurisdictions empty")
	}
	return nil
}

type TimelineEvent struct {
	Date string `json:"date,omitempty"`
	// NormalizedDate is set when Date could be resolved to a calendar day.
	NormalizedDate *time.Time `json:"normalized_date,omitempty"`
	Description    string     `json:"description"`
	Significance   string     `json:"significance"`
	Source         string     `json:"source"`
}

type Party struct {
	Role               string `json:"role"`
	Name               string `json:"name,omitempty"`
	IsUser             bool   `json:"is_user"`
	RelationshipToUser string `json:"relationship_to_user,omitempty"`
}

type Evidence struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Strength    string `json:"strength"`
}

type FactStructure struct {
	Timeline         []TimelineEvent `json:"timeline"`
	Parties          []Party         `json:"parties"`
	Evidence         []Evidence      `json:"evidence"`
	KeyFacts         []string        `json:"key_facts"`
	FactGaps         []string        `json:"fact_gaps"`
	NarrativeSummary string          `json:"narrative_summary"`
}

func (f *FactStructure) Validate() error {
	if f.NarrativeSummary == "" {
		return invalid("narrative summary missing")
	}
	if len(f.KeyFacts) == 0 {
		return invalid("no key facts")
	}
	for _, ev := range f.Timeline {
		if ev.Significance != "" && !oneOf(ev.Significance, "critical", "relevant", "background") {
			return invalid("timeline significance %q", ev.Significance)
		}
	}
	for _, e := range f.Evidence {
		if e.Strength != "" && !oneOf(e.Strength, "strong", "moderate", "weak") {
			return invalid("evidence strength %q", e.Strength)
		}
	}
	return nil
}

type Viability string

const (
	ViabilityStrong       Viability = "strong"
	ViabilityModerate     Viability = "moderate"
	ViabilityWeak         Viability = "weak"
	ViabilityInsufficient Viability = "insufficient_info"
)

type LegalElement struct {
	ElementName     string   `json:"element_name"`
	Description     string   `json:"description"`
	IsSatisfied     string   `json:"is_satisfied"`
	SupportingFacts []string `json:"supporting_facts"`
	MissingFacts    []string `json:"missing_facts"`
}

type ElementsAnalysis struct {
	ApplicableLaw       string         `json:"applicable_law"`
	Elements            []LegalElement `json:"elements"`
	ElementsSatisfied   int            `json:"elements_satisfied"`
	ElementsTotal       int            `json:"elements_total"`
	ViabilityAssessment Viability      `json:"viability_assessment"`
	Reasoning           string         `json:"reasoning"`
}

func (e *ElementsAnalysis) Validate() error {
	switch e.ViabilityAssessment {
	case ViabilityStrong, ViabilityModerate, ViabilityWeak, ViabilityInsufficient:
	default:
		return invalid("viability %q", e.ViabilityAssessment)
	}
	if e.ApplicableLaw == "" {
		return invalid("applicable law missing")
	}
	if e.ElementsTotal != len(e.Elements) || e.ElementsSatisfied > e.ElementsTotal {
		return invalid("element counts %d/%d do not match %d elements", e.ElementsSatisfied, e.ElementsTotal, len(e.Elements))
	}
	for _, el := range e.Elements {
		if !oneOf(el.IsSatisfied, "yes", "no", "partial", "unknown") {
			return invalid("element %q satisfaction %q", el.ElementName, el.IsSatisfied)
		}
	}
	return nil
}

type CasePrecedent struct {
	CaseName               string  `json:"case_name"`
	Citation               string  `json:"citation"`
	Year                   int     `json:"year"`
	Jurisdiction           string  `json:"jurisdiction"`
	RelevanceScore         float64 `json:"relevance_score"`
	KeyHolding             string  `json:"key_holding"`
	HowItApplies           string  `json:"how_it_applies"`
	OutcomeForSimilarParty string  `json:"outcome_for_similar_party"`
}

type PrecedentAnalysis struct {
	MatchingCases         []CasePrecedent `json:"matching_cases"`
	PatternIdentified     string          `json:"pattern_identified,omitempty"`
	TypicalOutcome        string          `json:"typical_outcome,omitempty"`
	DistinguishingFactors []string        `json:"distinguishing_factors"`
}

func (p *PrecedentAnalysis) Validate() error {
	if len(p.MatchingCases) == 0 && len(p.DistinguishingFactors) == 0 {
		return invalid("precedent analysis carries neither cases nor distinguishing factors")
	}
	for _, c := range p.MatchingCases {
		if c.CaseName == "" || c.Citation == "" {
			return invalid("case without name or citation")
		}
		if !oneOf(c.OutcomeForSimilarParty, "favorable", "unfavorable", "mixed") {
			return invalid("case outcome %q", c.OutcomeForSimilarParty)
		}
	}
	return nil
}

type RiskFactor struct {
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Likelihood  string `json:"likelihood"`
	Mitigation  string `json:"mitigation,omitempty"`
}

type DefenceAnalysis struct {
	DefenceType     string  `json:"defence_type"`
	LikelihoodOfUse float64 `json:"likelihood_of_use"`
	Strength        string  `json:"strength"`
	CounterStrategy string  `json:"counter_strategy"`
}

type RiskAssessment struct {
	OverallRiskLevel        string            `json:"overall_risk_level"`
	Risks                   []RiskFactor      `json:"risks"`
	EvidenceWeaknesses      []string          `json:"evidence_weaknesses"`
	PossibleDefences        []DefenceAnalysis `json:"possible_defences"`
	CounterfactualScenarios []string          `json:"counterfactual_scenarios"`
	TimeSensitivity         string            `json:"time_sensitivity,omitempty"`
}

func (r *RiskAssessment) Validate() error {
	if !oneOf(r.OverallRiskLevel, "high", "medium", "low") {
		return invalid("overall risk %q", r.OverallRiskLevel)
	}
	for _, f := range r.Risks {
		if !oneOf(f.Severity, "high", "medium", "low") {
			return invalid("risk severity %q", f.Severity)
		}
		if f.Likelihood != "" && !oneOf(f.Likelihood, "likely", "possible", "unlikely") {
			return invalid("risk likelihood %q", f.Likelihood)
		}
	}
	return nil
}

type StrategyOption struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Pros              []string `json:"pros"`
	Cons              []string `json:"cons"`
	EstimatedCost     string   `json:"estimated_cost,omitempty"`
	EstimatedTimeline string   `json:"estimated_timeline,omitempty"`
	SuccessLikelihood string   `json:"success_likelihood,omitempty"`
	RecommendedFor    string   `json:"recommended_for,omitempty"`
}

type StrategyRecommendation struct {
	RecommendedStrategy   StrategyOption   `json:"recommended_strategy"`
	AlternativeStrategies []StrategyOption `json:"alternative_strategies"`
	ImmediateActions      []string         `json:"immediate_actions"`
	DecisionFactors       []string         `json:"decision_factors"`
}

func (s *StrategyRecommendation) Validate() error {
	if s.RecommendedStrategy.Name == "" {
		return invalid("recommended strategy unnamed")
	}
	if l := s.RecommendedStrategy.SuccessLikelihood; l != "" && !oneOf(l, "high", "medium", "low") {
		return invalid("success likelihood %q", l)
	}
	if len(s.ImmediateActions) == 0 {
		return invalid("no immediate actions")
	}
	return nil
}

type EscalationBrief struct {
	BriefID             string              `json:"brief_id"`
	GeneratedAt         time.Time           `json:"generated_at"`
	ExecutiveSummary    string              `json:"executive_summary"`
	UrgencyLevel        string              `json:"urgency_level"`
	ClientSituation     string              `json:"client_situation"`
	LegalIssues         []LegalIssue        `json:"legal_issues"`
	Jurisdiction        *JurisdictionResult `json:"jurisdiction,omitempty"`
	Facts               *FactStructure      `json:"facts,omitempty"`
	LegalAnalysis       *ElementsAnalysis   `json:"legal_analysis,omitempty"`
	RelevantPrecedents  []CasePrecedent     `json:"relevant_precedents"`
	RiskAssessment      *RiskAssessment     `json:"risk_assessment,omitempty"`
	RecommendedStrategy *StrategyOption     `json:"recommended_strategy,omitempty"`
	OpenQuestions       []string            `json:"open_questions"`
	SuggestedNextSteps  []string            `json:"suggested_next_steps"`
}

func (b *EscalationBrief) Validate() error {
	if b.BriefID == "" || b.GeneratedAt.IsZero() {
		return invalid("brief id and timestamp required")
	}
	if !oneOf(b.UrgencyLevel, "urgent", "standard", "low_priority") {
		return invalid("urgency %q", b.UrgencyLevel)
	}
	if b.ExecutiveSummary == "" {
		return invalid("executive summary missing")
	}
	return nil
}

// ExtractedFacts is what brief intake learns from the conversation.
type ExtractedFacts struct {
	LegalArea           string   `json:"legal_area"`
	SituationSummary    string   `json:"situation_summary"`
	KeyFacts            []string `json:"key_facts"`
	PartiesInvolved     []string `json:"parties_involved"`
	TimelineEvents      []string `json:"timeline_events"`
	DocumentsMentioned  []string `json:"documents_mentioned"`
	UserGoals           []string `json:"user_goals"`
	MissingCriticalInfo []string `json:"missing_critical_info"`
	Confidence          float64  `json:"confidence"`
}

func (f *ExtractedFacts) Validate() error {
	if f.LegalArea == "" {
		return invalid("legal area missing")
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return invalid("confidence %v out of range", f.Confidence)
	}
	return nil
}

type RiskSummary struct {
	OverallRisk   string       `json:"overall_risk"`
	Strengths     []string     `json:"strengths"`
	Weaknesses    []string     `json:"weaknesses"`
	Risks         []RiskFactor `json:"risks"`
	TimeSensitive string       `json:"time_sensitive,omitempty"`
}

func (r *RiskSummary) Validate() error {
	if !oneOf(r.OverallRisk, "high", "medium", "low") {
		return invalid("overall risk %q", r.OverallRisk)
	}
	return nil
}

type StrategySummary struct {
	Recommended      StrategyOption   `json:"recommended"`
	Alternatives     []StrategyOption `json:"alternatives"`
	ImmediateActions []string         `json:"immediate_actions"`
}

func (s *StrategySummary) Validate() error {
	if s.Recommended.Name == "" {
		return invalid("recommended strategy unnamed")
	}
	return nil
}

// AnalysisResult is the payload of an accepted deep analysis.
type AnalysisResult struct {
	Facts    FactStructure   `json:"facts"`
	Risks    RiskSummary     `json:"risks"`
	Strategy StrategySummary `json:"strategy"`
}

func (a *AnalysisResult) Validate() error {
	if err := a.Facts.Validate(); err != nil {
		return err
	}
	if err := a.Risks.Validate(); err != nil {
		return err
	}
	return a.Strategy.Validate()
}
