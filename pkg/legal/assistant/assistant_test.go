package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"legal-assistant-be/internal/pkg/logger"
	"legal-assistant-be/pkg/events"
	"legal-assistant-be/pkg/legal/graph"
	"legal-assistant-be/pkg/legal/session"
	"legal-assistant-be/pkg/legal/stage"
	"legal-assistant-be/pkg/legal/state"
	"legal-assistant-be/pkg/llm/llmtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errModel = errors.New("model unavailable")

const (
	safetyMarker   = "You are a safety classifier"
	issueMarker    = "You are an Australian legal issue classifier"
	simpleMarker   = "Generate a helpful response based on the analysis below"
	elementsMarker = "Identify the legal elements that must be established"
	chatMarker     = "You are an Australian legal assistant having a natural"
	extractMarker  = "to extract facts for a lawyer brief"
	questionMarker = "You need to ask the user some follow-up questions"
	briefMarker    = "You are generating a comprehensive lawyer brief"
)

type recorder struct {
	mu    sync.Mutex
	types []string
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, e.EventType())
	return nil
}

func (r *recorder) seen(t string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.types {
		if x == t {
			return true
		}
	}
	return false
}

type fixture struct {
	fake     *llmtest.Fake
	events   *recorder
	sessions *session.Manager
	a        *Assistant
}

func newFixture(t *testing.T, fake *llmtest.Fake) *fixture {
	t.Helper()
	rec := &recorder{}
	log := logger.NewNopLogger()
	sessions := session.NewManager(session.NewMemoryStore(time.Hour), log)
	d := stage.Deps{
		LLM:    fake,
		Logger: log,
		Events: rec,
		Now:    func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) },
		NewID:  func() string { return "brief-1" },
	}
	a, err := New(d, sessions, graph.NewExecutor(log, time.Second), Options{})
	require.NoError(t, err)
	return &fixture{fake: fake, events: rec, sessions: sessions, a: a}
}

func (f *fixture) state(t *testing.T, id string) *state.State {
	t.Helper()
	st, err := f.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	return st
}

func (f *fixture) chat(t *testing.T, id, msg string) state.TurnView {
	t.Helper()
	view, err := f.a.Chat(context.Background(), ChatRequest{SessionID: id, Message: msg})
	require.NoError(t, err)
	return view
}

func TestAnalyzeCrisisEscalatesWithoutAnalysis(t *testing.T) {
	fake := llmtest.New().
		On(safetyMarker, `{"is_high_risk": true, "risk_category": "family_violence", "risk_indicators": ["assault"], "reasoning": "partner violence"}`).
		Otherwise("", errModel)
	f := newFixture(t, fake)

	out, err := f.a.Analyze(context.Background(), AnalyzeRequest{
		Query:     "My partner hit me last night and I'm scared to go home",
		UserState: "NSW",
	})

	require.NoError(t, err)
	assert.Equal(t, state.PathEscalate, out.Path)
	assert.Contains(t, out.Response, "1800RESPECT")
	assert.Equal(t, []string{stage.Initialize, stage.SafetyGate, stage.EscalationResponse}, out.StagesCompleted)
	assert.Len(t, fake.Calls(), 1)
	assert.True(t, f.events.seen(events.TypeSafetyEscalated))
}

func TestAnalyzeCrisisEscalatesWhenModelIsDown(t *testing.T) {
	f := newFixture(t, llmtest.New().Otherwise("", errModel))

	out, err := f.a.Analyze(context.Background(), AnalyzeRequest{
		Query:     "My partner hit me last night and I'm scared to go home",
		UserState: "NSW",
	})

	require.NoError(t, err)
	assert.Equal(t, state.PathEscalate, out.Path)
	assert.Contains(t, out.Fallbacks, stage.SafetyGate)
	assert.Contains(t, out.Response, "1800RESPECT")
}

func TestAnalyzeEverydayWordsDoNotEscalate(t *testing.T) {
	queries := []string{
		"My landlord charged with a $200 cleaning fee after I moved out, can they do that?",
		"I have the docs from my lease, what is the notice period for ending it early?",
	}
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			fake := llmtest.New().
				On(safetyMarker, `{"is_high_risk": false, "risk_category": null, "risk_indicators": [], "reasoning": "tenancy question"}`).
				Otherwise("", errModel)
			f := newFixture(t, fake)

			out, err := f.a.Analyze(context.Background(), AnalyzeRequest{Query: q, UserState: "NSW"})

			require.NoError(t, err)
			assert.NotEqual(t, state.PathEscalate, out.Path)
			assert.Contains(t, out.StagesCompleted, stage.IssueIdentification)
			assert.NotContains(t, out.StagesCompleted, stage.EscalationResponse)
			assert.Equal(t, 1, fake.CallsMatching(safetyMarker))
			assert.False(t, f.events.seen(events.TypeSafetyEscalated))
		})
	}
}

func TestAnalyzeSimpleQuestionTakesSimplePath(t *testing.T) {
	fake := llmtest.New().
		On(issueMarker, `{"primary_issue": {"area": "tenancy", "sub_category": "rent_increase", "confidence": 0.9, "description": "Notice for a rent increase"}, `+
			`"secondary_issues": [], "complexity_score": 0.2, "involves_multiple_jurisdictions": false, "requires_document_analysis": false}`).
		On(simpleMarker, "In NSW your landlord must give at least 60 days written notice of a rent increase.").
		Otherwise("", errModel)
	f := newFixture(t, fake)

	out, err := f.a.Analyze(context.Background(), AnalyzeRequest{
		Query: "What notice period does my landlord need to give for a rent increase in NSW?",
	})

	require.NoError(t, err)
	assert.Equal(t, state.PathSimple, out.Path)
	for _, name := range []string{stage.IssueIdentification, stage.Jurisdiction, stage.Strategy, stage.SimpleResponse} {
		assert.Contains(t, out.StagesCompleted, name)
	}
	assert.NotContains(t, out.StagesCompleted, stage.FactStructuring)
	assert.NotContains(t, out.StagesCompleted, stage.EscalationBrief)
	assert.Contains(t, out.Response, "60 days")
	assert.Equal(t, stage.SimpleResponse, out.StagesCompleted[len(out.StagesCompleted)-1])
}

func TestAnalyzeDocumentForcesComplexPath(t *testing.T) {
	f := newFixture(t, llmtest.New().Otherwise("", errModel))

	out, err := f.a.Analyze(context.Background(), AnalyzeRequest{
		Query:       "My landlord sent me this notice, what does it mean?",
		UserState:   "VIC",
		DocumentURL: "https://example.com/notice.pdf",
	})

	require.NoError(t, err)
	assert.Equal(t, state.PathComplex, out.Path)
	assert.Equal(t, []string{
		stage.Initialize,
		stage.SafetyGate,
		stage.IssueIdentification,
		stage.ComplexityRouting,
		stage.Jurisdiction,
		stage.FactStructuring,
		stage.LegalElements,
		stage.CasePrecedent,
		stage.RiskAnalysis,
		stage.Strategy,
		stage.EscalationBrief,
		stage.ComplexResponse,
	}, out.StagesCompleted)
	assert.Equal(t, "brief-1", out.BriefID)
	assert.NotEmpty(t, out.Response)
}

func TestAnalyzeElementsFailureDegrades(t *testing.T) {
	fake := llmtest.New().
		On(issueMarker, `{"primary_issue": {"area": "employment", "sub_category": "unfair_dismissal", "confidence": 0.8, "description": "Dismissed after complaint"}, `+
			`"secondary_issues": [], "complexity_score": 0.8}`).
		Fail(elementsMarker, errModel).
		Otherwise("", errModel)
	f := newFixture(t, fake)

	out, err := f.a.Analyze(context.Background(), AnalyzeRequest{
		Query:     "I was dismissed two days after I complained about unpaid overtime.",
		UserState: "QLD",
	})

	require.NoError(t, err)
	assert.Contains(t, out.Fallbacks, stage.LegalElements)
	assert.Equal(t, stage.ComplexResponse, out.StagesCompleted[len(out.StagesCompleted)-1])

	st := f.state(t, out.SessionID)
	require.NotNil(t, st.Elements)
	assert.Equal(t, state.ViabilityInsufficient, st.Elements.ViabilityAssessment)
	assert.Equal(t, 1, fake.CallsMatching(elementsMarker))
}

func TestAnalyzeRejectsEmptyQuery(t *testing.T) {
	f := newFixture(t, llmtest.New())

	_, err := f.a.Analyze(context.Background(), AnalyzeRequest{Query: "  "})

	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestChatBriefIntakeAsksThenGenerates(t *testing.T) {
	fake := llmtest.New().
		On(extractMarker, `{"legal_area": "tenancy", "situation_summary": "Bond withheld", "key_facts": ["lease ended"], `+
			`"missing_critical_info": ["who the other party is", "what outcome you want"], "confidence": 0.4}`).
		On(questionMarker, `{"questions": ["Who is the other party?", "What outcome do you want?"], "question_context": "gaps"}`).
		On(briefMarker, `{"executive_summary": "Tenant seeking return of a withheld bond.", "legal_area": "tenancy", "jurisdiction": "NSW", `+
			`"situation_narrative": "The lease ended and the bond was kept.", "key_facts": ["lease ended"], "urgency_level": "standard"}`).
		Otherwise("", errModel)
	f := newFixture(t, fake)

	first := f.chat(t, "", "[GENERATE_BRIEF]")
	id := first.SessionID
	require.Len(t, first.Messages, 1)
	assert.Contains(t, first.Messages[0].Content, "**Question 1/2**\n\nWho is the other party?")
	assert.Equal(t, state.PhaseAwaitingIntakeAnswer, first.Phase)
	assert.Len(t, f.state(t, id).Intake.MissingInfo, 2)

	second := f.chat(t, id, "I don't know")
	require.Len(t, second.Messages, 1)
	assert.Equal(t, "**Question 2/2**\n\nWhat outcome do you want?", second.Messages[0].Content)
	assert.Len(t, f.state(t, id).Intake.MissingInfo, 1)

	third := f.chat(t, id, "I don't know")
	require.Len(t, third.Messages, 1)
	brief := third.Messages[0].Content
	assert.Contains(t, brief, "## Information Not Provided")
	assert.Contains(t, brief, "who the other party is")
	assert.Contains(t, brief, "what outcome you want")
	assert.Equal(t, state.PhaseIdle, third.Phase)
	assert.True(t, third.SuggestLawyer)

	st := f.state(t, id)
	assert.Empty(t, st.Intake.MissingInfo)
	assert.True(t, st.Intake.Complete)
	assert.True(t, f.events.seen(events.TypeBriefGenerated))
	assert.Equal(t, 1, fake.CallsMatching(extractMarker))
	assert.Equal(t, 1, fake.CallsMatching(questionMarker))
}

func TestChatCrisisDuringIntakeEscalates(t *testing.T) {
	fake := llmtest.New().
		On(extractMarker, `{"legal_area": "family", "situation_summary": "Separation", "key_facts": ["separated in May"], `+
			`"missing_critical_info": ["children involved", "current living situation"], "confidence": 0.4}`).
		On(questionMarker, `{"questions": ["Are children involved?", "Where are you living now?"], "question_context": "gaps"}`).
		Otherwise("", errModel)
	f := newFixture(t, fake)

	first := f.chat(t, "", "[GENERATE_BRIEF]")
	id := first.SessionID
	require.Equal(t, state.PhaseAwaitingIntakeAnswer, first.Phase)

	second := f.chat(t, id, "He threatened to kill me if I take the kids")
	require.Len(t, second.Messages, 1)
	assert.Contains(t, second.Messages[0].Content, "1800RESPECT")
	assert.NotContains(t, second.Messages[0].Content, "Question 2/2")
	assert.Equal(t, state.PhaseIdle, second.Phase)
	assert.True(t, f.events.seen(events.TypeSafetyEscalated))

	st := f.state(t, id)
	assert.Contains(t, st.StagesCompleted, stage.SafetyCheck)
	assert.NotContains(t, st.StagesCompleted, stage.BriefCheckInfo)
	assert.Empty(t, st.Intake.PendingQuestions)
	assert.Equal(t, 1, fake.CallsMatching(extractMarker))
}

const richMessage = "I'm a tenant in NSW and my landlord kept my whole bond after I moved out in March. " +
	"I have photos and emails from the inspection and I want my bond back."

func TestChatOfferDeclinedThenNotRepeated(t *testing.T) {
	fake := llmtest.New().
		On(chatMarker, "Here is some general information about bonds.").
		Otherwise("", errModel)
	f := newFixture(t, fake)

	first := f.chat(t, "", "Hello there")
	id := first.SessionID
	assert.Equal(t, state.PhaseIdle, first.Phase)

	second := f.chat(t, id, richMessage)
	require.Len(t, second.Messages, 2)
	assert.Contains(t, second.Messages[1].Content, "deeper analysis")
	assert.Equal(t, state.PhaseAwaitingOfferReply, second.Phase)
	assert.GreaterOrEqual(t, second.AnalysisReadiness, 0.7)

	third := f.chat(t, id, "nah not right now")
	require.Len(t, third.Messages, 1)
	assert.Equal(t, "Here is some general information about bonds.", third.Messages[0].Content)
	assert.Equal(t, state.PhaseIdle, third.Phase)

	st := f.state(t, id)
	assert.Equal(t, state.OfferDeclined, st.Offer.Decision)
	assert.Nil(t, st.Offer.Result)

	fourth := f.chat(t, id, "My landlord also says I owe cleaning fees, I have the receipts.")
	assert.Len(t, fourth.Messages, 1)
	assert.Equal(t, state.PhaseIdle, fourth.Phase)

	offers := 0
	for _, m := range f.state(t, id).Messages {
		if m.Role == state.RoleAssistant && strings.Contains(m.Content, "deeper analysis") {
			offers++
		}
	}
	assert.Equal(t, 1, offers)
}

func TestChatLogIsAppendOnly(t *testing.T) {
	fake := llmtest.New().On(chatMarker, "Noted.").Otherwise("", errModel)
	f := newFixture(t, fake)

	id := f.chat(t, "", "Hello there").SessionID
	var before []state.Message
	for _, msg := range []string{"My landlord kept my bond", "What can I do?", richMessage} {
		before = append([]state.Message(nil), f.state(t, id).Messages...)
		f.chat(t, id, msg)

		after := f.state(t, id).Messages
		require.Greater(t, len(after), len(before))
		assert.Equal(t, before, after[:len(before)])
		assert.Equal(t, state.Human(msg), after[len(before)])
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	f := newFixture(t, llmtest.New())

	_, err := f.a.Chat(context.Background(), ChatRequest{Message: ""})

	assert.ErrorIs(t, err, ErrEmptyMessage)
}
