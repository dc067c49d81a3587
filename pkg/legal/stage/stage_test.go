package stage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"legal-assistant-be/pkg/events"
	"legal-assistant-be/pkg/legal/casedb"
	"legal-assistant-be/pkg/legal/document"
	"legal-assistant-be/pkg/legal/graph"
	"legal-assistant-be/pkg/legal/search"
	"legal-assistant-be/pkg/legal/state"
	"legal-assistant-be/pkg/llm/llmtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errModel = errors.New("model unavailable")
	fixedNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

type stubSearch struct {
	resp search.Response
	err  error
}

func (s stubSearch) Search(context.Context, string, string, int) (search.Response, error) {
	return s.resp, s.err
}

type stubDocs struct{ err error }

func (s stubDocs) Fetch(context.Context, string) (string, document.ContentType, error) {
	if s.err != nil {
		return "", "", s.err
	}
	return "Residential tenancy agreement. Rent is $500 per week.", document.ContentText, nil
}

type stubCases []casedb.Case

func (c stubCases) BySubCategory(string, string) []casedb.Case { return c }
func (c stubCases) SearchKeywords([]string, string) []casedb.Case { return nil }

func deps(fake *llmtest.Fake) Deps {
	return Deps{
		LLM:   fake,
		Now:   func() time.Time { return fixedNow },
		NewID: func() string { return "brief-1" },
	}
}

func withQuery(q string) *state.State {
	st := state.New("s")
	st.Messages = append(st.Messages, state.Human(q))
	st.CurrentQuery = q
	return st
}

func run(t *testing.T, s graph.Stage, st *state.State) state.Update {
	t.Helper()
	upd, err := s.Run(context.Background(), st, graph.RunConfig{SessionID: st.SessionID})
	require.NoError(t, err)
	require.NoError(t, state.Merge(st, upd))
	return upd
}

func TestSafetyGateKeywordHitIsOnlyAHint(t *testing.T) {
	fake := llmtest.New().On("safety classifier", `{"is_high_risk": false, "risk_category": null, "risk_indicators": [], "reasoning": "asking what an order is"}`)
	st := withQuery("what is an AVO and how long does one last")

	run(t, NewSafetyGate(deps(fake)), st)

	require.NotNil(t, st.Safety)
	assert.False(t, st.Safety.RequiresEscalation)
	require.Len(t, fake.Calls(), 1)
	assert.Contains(t, fake.Calls()[0].Prompt, "Keyword screen: family_violence")
}

func TestSafetyGateModelConfirmsKeywordHit(t *testing.T) {
	fake := llmtest.New().On("safety classifier", `{"is_high_risk": true, "risk_category": null, "risk_indicators": ["physical violence"], "reasoning": "partner assaulted user"}`)
	st := withQuery("my partner hit me last night and I'm scared to go home")

	run(t, NewSafetyGate(deps(fake)), st)

	require.NotNil(t, st.Safety)
	assert.True(t, st.Safety.RequiresEscalation)
	assert.Equal(t, state.RiskFamilyViolence, st.Safety.RiskCategory)
	assert.NotEmpty(t, st.Safety.RecommendedResources)
}

func TestSafetyGateFallback(t *testing.T) {
	tests := []struct {
		query    string
		escalate bool
	}{
		{"my partner hit me last night and I'm scared to go home", true},
		{"I want to die", true},
		{"I was arrested yesterday", false},
		{"my landlord kept my bond", false},
	}
	gate := NewSafetyGate(deps(llmtest.New()))
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			st := withQuery(tt.query)
			require.NoError(t, state.Merge(st, gate.Fallback(st, errModel)))
			assert.Equal(t, tt.escalate, st.Safety.RequiresEscalation)
		})
	}
}

func TestSafetyGateModelVerdict(t *testing.T) {
	fake := llmtest.New().On("safety classifier", `{"is_high_risk": false, "risk_category": null, "risk_indicators": [], "reasoning": "general tenancy question"}`)
	st := withQuery("can my landlord raise the rent twice a year")

	run(t, NewSafetyGate(deps(fake)), st)

	assert.False(t, st.Safety.RequiresEscalation)
	assert.Equal(t, "general tenancy question", st.Safety.Reasoning)
}

func TestSafetyCheckSkipsModelWithoutRiskWords(t *testing.T) {
	fake := llmtest.New().Otherwise("", errModel)
	st := withQuery("how much notice does my landlord need to give for an inspection")

	run(t, NewSafetyCheck(deps(fake)), st)

	assert.Equal(t, state.SafetySafe, st.SafetyResult)
	assert.Empty(t, fake.Calls())
}

func TestSafetyCheckUncertainWordsAskModel(t *testing.T) {
	fake := llmtest.New().On("Assess if this legal query indicates a crisis",
		`{"requires_escalation": true, "is_high_risk": true, "risk_category": "urgent_deadline", "reasoning": "hearing tomorrow"}`)
	st := withQuery("my tribunal hearing is tomorrow and I have no lawyer")

	run(t, NewSafetyCheck(deps(fake)), st)

	assert.Equal(t, state.SafetyEscalate, st.SafetyResult)
	assert.Equal(t, 1, fake.CallsMatching("Assess if this legal query indicates a crisis"))
}

func TestQuickJurisdiction(t *testing.T) {
	tests := []struct {
		name       string
		area, sub  string
		userState  string
		wantNil    bool
		primary    string
		applicable []string
		fallback   bool
	}{
		{"state matter in searchable state", "tenancy", "bond", "QLD", false, "QLD", []string{"QLD"}, false},
		{"state matter outside index", "tenancy", "bond", "VIC", false, "VIC", []string{"VIC", state.Federal}, true},
		{"state matter without user state", "tenancy", "bond", "", false, "NSW", []string{"NSW"}, false},
		{"federal matter", "employment", "unfair_dismissal", "QLD", false, state.Federal, []string{state.Federal, "QLD"}, false},
		{"whole federal area", "immigration", "visa_refusal", "WA", false, state.Federal, []string{state.Federal, "WA"}, false},
		{"needs the model", "contract", "breach", "NSW", true, "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QuickJurisdiction(tt.area, tt.sub, tt.userState)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.primary, got.PrimaryJurisdiction)
			assert.Equal(t, tt.applicable, got.ApplicableJurisdictions)
			assert.Equal(t, tt.fallback, got.FallbackToFederal)
			assert.NoError(t, got.Validate())
		})
	}
}

func TestNormalizeTimeline(t *testing.T) {
	evs := []state.TimelineEvent{
		{Date: "2023-03-15", Description: "lease signed"},
		{Date: "??", Description: "unclear"},
		{Description: "no date"},
	}

	n := NormalizeTimeline(evs, fixedNow)

	assert.Equal(t, 1, n)
	require.NotNil(t, evs[0].NormalizedDate)
	assert.Equal(t, 2023, evs[0].NormalizedDate.Year())
	assert.Equal(t, time.March, evs[0].NormalizedDate.Month())
	assert.Equal(t, 15, evs[0].NormalizedDate.Day())
	assert.Equal(t, "??", evs[1].Date)
	assert.Nil(t, evs[1].NormalizedDate)
	assert.Nil(t, evs[2].NormalizedDate)
}

func precedentState() *state.State {
	st := withQuery("my landlord kept my bond")
	st.Issue = &state.IssueClassification{
		PrimaryIssue:    state.LegalIssue{Area: "tenancy", SubCategory: "bond_dispute", Confidence: 0.9},
		SecondaryIssues: []state.LegalIssue{},
	}
	return st
}

var referenceCases = stubCases{
	{CaseName: "Alpha v Beta", Citation: "[2019] NCAT 1", Year: 2019, Jurisdiction: "NSW"},
	{CaseName: "Gamma v Delta", Citation: "[2020] NCAT 2", Year: 2020, Jurisdiction: "NSW"},
	{CaseName: "Epsilon v Zeta", Citation: "[2021] NCAT 3", Year: 2021, Jurisdiction: "NSW"},
}

func TestCasePrecedentKeepsRelevantAndSkipsFailures(t *testing.T) {
	fake := llmtest.New().
		On("You summarise how Australian courts decide", `{"pattern_identified": "bond returned without evidence of damage", "typical_outcome": "tenant recovers bond", "distinguishing_factors": ["condition report"]}`).
		On("Case: Alpha v Beta", `{"relevance_score": 0.9, "how_it_applies": "same facts", "outcome_for_similar_party": "favorable"}`).
		On("Case: Gamma v Delta", `{"relevance_score": 0.2, "how_it_applies": "different", "outcome_for_similar_party": "unfavorable"}`).
		Fail("Case: Epsilon v Zeta", errModel)
	d := deps(fake)
	d.Cases = referenceCases
	st := precedentState()

	run(t, NewCasePrecedent(d), st)

	require.NotNil(t, st.Precedents)
	require.Len(t, st.Precedents.MatchingCases, 1)
	assert.Equal(t, "Alpha v Beta", st.Precedents.MatchingCases[0].CaseName)
	assert.Equal(t, "tenant recovers bond", st.Precedents.TypicalOutcome)
	assert.Equal(t, []string{"condition report"}, st.Precedents.DistinguishingFactors)
}

func TestCasePrecedentFailsWhenNoCaseScores(t *testing.T) {
	d := deps(llmtest.New().Otherwise("", errModel))
	d.Cases = referenceCases

	_, err := NewCasePrecedent(d).Run(context.Background(), precedentState(), graph.RunConfig{})
	assert.Error(t, err)
}

func TestCasePrecedentNoCandidates(t *testing.T) {
	d := deps(llmtest.New().Otherwise("", errModel))
	d.Cases = stubCases{}
	st := precedentState()

	run(t, NewCasePrecedent(d), st)

	assert.Empty(t, st.Precedents.MatchingCases)
	assert.Equal(t, []string{"No comparable decisions were found in the reference set"}, st.Precedents.DistinguishingFactors)
}

func TestChatResponseAnswersWithReadiness(t *testing.T) {
	fake := llmtest.New().
		On("suggest 2-4 quick reply options", `{"quick_replies": ["How do I apply?", "What forms?", "Deadlines?", "Costs?", "More"], "suggest_brief": true}`).
		On("You are an Australian legal assistant having a natural", "You can apply to the tribunal for your bond.")
	d := deps(fake)
	d.Search = stubSearch{resp: search.Response{
		Results:    []search.Result{{Content: "Bond must be returned", Citation: "Residential Tenancies Act 2010 (NSW) s 63", Jurisdiction: "NSW", Score: 0.8}},
		Confidence: search.ConfidenceHigh,
	}}
	st := withQuery("I'm a tenant in NSW and my landlord kept my bond")
	st.UserState = "NSW"

	run(t, NewChatResponse(d), st)

	assert.Equal(t, "You can apply to the tribunal for your bond.", st.Messages[len(st.Messages)-1].Content)
	assert.Len(t, st.QuickReplies, 4)
	assert.True(t, st.SuggestBrief)
	assert.Greater(t, st.Readiness, 0.0)
}

func TestChatResponseGuideFollowsUIMode(t *testing.T) {
	tests := []struct {
		mode  state.UIMode
		guide string
	}{
		{"", "having a natural, helpful conversation"},
		{state.UIModeChat, "having a natural, helpful conversation"},
		{state.UIModeAnalysis, "running an initial consultation"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			fake := llmtest.New().
				On("suggest 2-4 quick reply options", "not json").
				On(tt.guide, "What date did you move out?")
			st := withQuery("my landlord kept my bond")
			st.UIMode = tt.mode

			run(t, NewChatResponse(deps(fake)), st)

			assert.Equal(t, "What date did you move out?", st.Messages[len(st.Messages)-1].Content)
			assert.Equal(t, 1, fake.CallsMatching(tt.guide))
		})
	}
}

func TestConversationInitializeKeepsUIMode(t *testing.T) {
	s := NewConversationInitialize(deps(llmtest.New()))
	st := state.New("s")

	st.BeginRun(state.Inbound{Text: "hello", UIMode: state.UIModeAnalysis})
	st.Messages = append(st.Messages, state.Human("hello"))
	run(t, s, st)
	assert.Equal(t, state.UIModeAnalysis, st.UIMode)

	st.BeginRun(state.Inbound{Text: "my landlord kept my bond"})
	st.Messages = append(st.Messages, state.Human("my landlord kept my bond"))
	run(t, s, st)
	assert.Equal(t, state.UIModeAnalysis, st.UIMode)

	st.BeginRun(state.Inbound{Text: "thanks", UIMode: "verbose"})
	st.Messages = append(st.Messages, state.Human("thanks"))
	run(t, s, st)
	assert.Equal(t, state.UIModeAnalysis, st.UIMode)
}

func TestChatResponseReportsUnreadableDocument(t *testing.T) {
	fake := llmtest.New().
		On("suggest 2-4 quick reply options", "not json").
		On("You are an Australian legal assistant having a natural", "Based on what you told me, the notice period is 14 days.")
	d := deps(fake)
	d.Search = stubSearch{err: errors.New("index down")}
	d.Documents = stubDocs{err: document.ErrUnsupportedType}
	st := withQuery("is this notice valid?")
	st.DocumentURL = "https://files.example.com/notice.pdf"

	run(t, NewChatResponse(d), st)

	last := st.Messages[len(st.Messages)-1].Content
	assert.Contains(t, last, "I couldn't fetch that document")
	assert.Contains(t, last, "the notice period is 14 days")
	assert.Equal(t, defaultQuickReplies, st.QuickReplies)
}

func TestOfferAcceptedThenAnalysed(t *testing.T) {
	fake := llmtest.New().
		On("You organise the facts of a legal situation", `{"timeline": [], "parties": [{"role": "tenant", "is_user": true}], "evidence": [], "key_facts": ["Bond of $2000 withheld"], "fact_gaps": [], "narrative_summary": "The landlord kept the bond."}`).
		Fail("You assess the strengths and weaknesses", errModel).
		On("You recommend practical next steps", `{"recommended": {"name": "Apply to NCAT", "description": "Lodge a bond claim.", "estimated_cost": "$56", "estimated_timeline": "4-6 weeks"}, "alternatives": [], "immediate_actions": ["Gather the condition report"]}`)
	d := deps(fake)
	st := withQuery("my landlord kept my bond")

	run(t, NewAnalysisOffer(d), st)
	assert.Equal(t, state.PhaseAwaitingOfferReply, st.Phase)
	assert.True(t, st.Offer.Offered)
	assert.True(t, st.Offer.PendingResponse)

	st.BeginRun(state.Inbound{Text: "yes please"})
	st.Messages = append(st.Messages, state.Human("yes please"))
	st.CurrentQuery = "yes please"
	run(t, NewHandleAnalysisResponse(d), st)
	assert.Equal(t, state.OfferAccepted, st.Offer.Decision)
	assert.Equal(t, state.PhaseIdle, st.Phase)
	assert.False(t, st.Offer.PendingResponse)

	run(t, NewDeepAnalysis(d), st)
	require.NotNil(t, st.Offer.Result)
	assert.Equal(t, "medium", st.Offer.Result.Risks.OverallRisk)
	assert.Equal(t, "Apply to NCAT", st.Offer.Result.Strategy.Recommended.Name)

	run(t, NewAnalysisResponse(d), st)
	text := st.Messages[len(st.Messages)-1].Content
	assert.Contains(t, text, "## Your Situation")
	assert.Contains(t, text, "The landlord kept the bond.")
	assert.Contains(t, text, "**Apply to NCAT**")
	assert.Contains(t, text, "1. Gather the condition report")
	assert.True(t, st.SuggestBrief)
}

func TestAnalysisResponseAfterFailedAnalysis(t *testing.T) {
	d := deps(llmtest.New())
	st := withQuery("yes")

	require.NoError(t, state.Merge(st, NewDeepAnalysis(d).Fallback(st, context.DeadlineExceeded)))
	assert.Contains(t, st.Error, "Analysis error")

	run(t, NewAnalysisResponse(d), st)
	assert.Contains(t, st.Messages[len(st.Messages)-1].Content, "I encountered an issue while analyzing your situation")
	assert.Equal(t, []string{"What are my options?", "Find me a lawyer"}, st.QuickReplies)
}

func TestDeclineIsDefault(t *testing.T) {
	st := withQuery("hmm what about my lease")
	st.Phase = state.PhaseAwaitingOfferReply

	run(t, NewHandleAnalysisResponse(deps(llmtest.New())), st)

	assert.Equal(t, state.OfferDeclined, st.Offer.Decision)
	assert.Equal(t, state.PhaseIdle, st.Phase)
}

// Every fallback must be accepted by Merge on a state that holds nothing
// but the query, because that is the worst case the executor can meet.
func TestFallbacksAreMergeable(t *testing.T) {
	d := deps(llmtest.New().Otherwise("", errModel))
	stages := []graph.Stage{
		NewInitialize(d), NewConversationInitialize(d),
		NewSafetyGate(d), NewSafetyCheck(d), NewEscalationResponse(d), NewCrisisResponse(d),
		NewIssueIdentification(d), NewComplexityRouting(d), NewJurisdiction(d), NewStrategy(d),
		NewSimpleResponse(d), NewFactStructuring(d), NewLegalElements(d), NewCasePrecedent(d),
		NewRiskAnalysis(d), NewEscalationBrief(d), NewComplexResponse(d),
		NewChatResponse(d), NewAnalysisOffer(d), NewDeepAnalysis(d), NewAnalysisResponse(d),
		NewBriefCheckInfo(d), NewBriefAskQuestions(d), NewBriefGenerate(d),
	}
	for _, s := range stages {
		t.Run(s.Name(), func(t *testing.T) {
			st := withQuery("my landlord kept my bond")
			upd := s.Fallback(st, errModel)
			assert.Equal(t, s.Name(), upd.Stage)
			assert.NoError(t, state.Merge(st, upd))
		})
	}

	t.Run(HandleAnalysisResponse, func(t *testing.T) {
		st := withQuery("whatever")
		st.Phase = state.PhaseAwaitingOfferReply
		assert.NoError(t, state.Merge(st, NewHandleAnalysisResponse(d).Fallback(st, errModel)))
	})
}

func TestFormatAnalysisLimitsLists(t *testing.T) {
	r := &state.AnalysisResult{
		Facts: state.FactStructure{NarrativeSummary: "n", KeyFacts: []string{"1", "2", "3", "4", "5", "6"}},
		Risks: state.RiskSummary{
			OverallRisk:   "low",
			Weaknesses:    []string{"w1"},
			Risks:         []state.RiskFactor{{Description: "late claim", Severity: "low", Mitigation: "file this week"}},
			TimeSensitive: "claim within 6 months",
		},
		Strategy: state.StrategySummary{Recommended: state.StrategyOption{Name: "Negotiate", Description: "Write to the agent."}},
	}

	text := FormatAnalysis(r)

	assert.Contains(t, text, "- 5")
	assert.NotContains(t, text, "- 6")
	assert.Contains(t, text, "- late claim - *file this week*")
	assert.Contains(t, text, "**Time Sensitive:** claim within 6 months")
	assert.NotContains(t, text, "## What's In Your Favor")
}
