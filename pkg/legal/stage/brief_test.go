package stage

import (
	"strings"
	"testing"

	"legal-assistant-be/pkg/events"
	"legal-assistant-be/pkg/legal/state"
	"legal-assistant-be/pkg/llm/llmtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	extractMarker  = "to extract facts for a lawyer brief"
	questionMarker = "You need to ask the user some follow-up questions"
	briefMarker    = "You are generating a comprehensive lawyer brief"
)

func intakeState(query string, in state.BriefIntake) *state.State {
	st := withQuery(query)
	st.Intake = in
	return st
}

func TestBriefCheckInfoShortcuts(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		in          state.BriefIntake
		complete    bool
		missing     []string
		unknown     []string
		pendingLeft int
	}{
		{
			name:     "generate now clears pending",
			query:    "Generate brief now",
			in:       state.BriefIntake{MissingInfo: []string{"a"}, PendingQuestions: []string{"q2"}},
			complete: true,
			missing:  []string{"a"},
		},
		{
			name:        "skip moves the first missing item to unknown",
			query:       "I don't know",
			in:          state.BriefIntake{MissingInfo: []string{"a", "b"}, PendingQuestions: []string{"q2"}},
			missing:     []string{"b"},
			unknown:     []string{"a"},
			pendingLeft: 1,
		},
		{
			name:     "skip of the last item completes",
			query:    "no idea",
			in:       state.BriefIntake{MissingInfo: []string{"a"}},
			complete: true,
			missing:  []string{},
			unknown:  []string{"a"},
		},
		{
			name:        "answer with pending questions continues",
			query:       "It was a verbal lease",
			in:          state.BriefIntake{MissingInfo: []string{"a"}, PendingQuestions: []string{"q2"}},
			missing:     []string{"a"},
			pendingLeft: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := llmtest.New().Otherwise("", errModel)
			st := intakeState(tt.query, tt.in)

			run(t, NewBriefCheckInfo(deps(fake)), st)

			assert.Equal(t, tt.complete, st.Intake.Complete)
			assert.Equal(t, tt.missing, st.Intake.MissingInfo)
			assert.Equal(t, tt.unknown, st.Intake.UnknownInfo)
			assert.Len(t, st.Intake.PendingQuestions, tt.pendingLeft)
			assert.Empty(t, fake.Calls())
		})
	}
}

func TestBriefCheckInfoExtractsFacts(t *testing.T) {
	fake := llmtest.New().On(extractMarker, `{"legal_area": "tenancy", "situation_summary": "Bond withheld", "key_facts": ["lease ended", "bond kept"], `+
		`"missing_critical_info": ["desired outcome", "deadline"], "confidence": 0.8}`)
	st := intakeState("", state.BriefIntake{UnknownInfo: []string{"Deadline"}})
	st.Messages = append([]state.Message{state.Human("my landlord kept my bond"), state.Assistant("I can help")}, st.Messages...)

	run(t, NewBriefCheckInfo(deps(fake)), st)

	require.NotNil(t, st.Intake.Facts)
	assert.Equal(t, "tenancy", st.Intake.Facts.LegalArea)
	assert.Equal(t, []string{"desired outcome"}, st.Intake.MissingInfo)
	assert.Equal(t, []string{"Deadline"}, st.Intake.UnknownInfo)
	assert.False(t, st.Intake.Complete)
	assert.True(t, st.Intake.NeedsFullIntake)
}

func TestBriefCheckInfoHonoursQuestionCap(t *testing.T) {
	in := state.BriefIntake{PendingQuestions: []string{"q3"}, QuestionsAsked: 2}

	st := intakeState("it was a written lease", in)
	run(t, NewBriefCheckInfo(deps(llmtest.New())), st)
	assert.False(t, st.Intake.Complete)

	d := deps(llmtest.New())
	d.MaxIntakeQuestions = 2
	st = intakeState("it was a written lease", in)
	run(t, NewBriefCheckInfo(d), st)
	assert.True(t, st.Intake.Complete)
}

func TestBriefCheckInfoFallbackCompletes(t *testing.T) {
	st := intakeState("", state.BriefIntake{})
	s := NewBriefCheckInfo(deps(llmtest.New()))

	require.NoError(t, state.Merge(st, s.Fallback(st, errModel)))

	assert.True(t, st.Intake.Complete)
	assert.Equal(t, "general", st.Intake.Facts.LegalArea)
	assert.Equal(t, 0.3, st.Intake.Facts.Confidence)
}

func TestPruneMissingNeverGrowsAfterQuestions(t *testing.T) {
	extracted := []string{"a", "b", "c", "d"}

	assert.Equal(t, extracted, pruneMissing(extracted, nil, nil, false))
	assert.Equal(t, []string{"a", "c"}, pruneMissing(extracted, []string{"x", "y"}, []string{"B"}, true))
	assert.Equal(t, []string{}, pruneMissing(extracted, nil, nil, true))
}

func TestBriefQuestionsAskedOneAtATime(t *testing.T) {
	fake := llmtest.New().On(questionMarker, `{"questions": ["Is the lease written?", "When did you move out?"], "question_context": "gaps"}`)
	d := deps(fake)
	st := intakeState("", state.BriefIntake{MissingInfo: []string{"lease status", "timeline"}, NeedsFullIntake: true})
	st.Mode = state.ModeBrief

	run(t, NewBriefAskQuestions(d), st)

	first := st.Messages[len(st.Messages)-1].Content
	assert.True(t, strings.HasPrefix(first, "I need a bit more information to prepare your brief."))
	assert.Contains(t, first, "**Question 1/2**\n\nIs the lease written?")
	assert.Equal(t, state.PhaseAwaitingIntakeAnswer, st.Phase)
	assert.Equal(t, []string{"When did you move out?"}, st.Intake.PendingQuestions)
	assert.Equal(t, []string{"I don't know", "Generate brief now"}, st.QuickReplies)

	st.BeginRun(state.Inbound{Text: "yes, written"})
	st.Messages = append(st.Messages, state.Human("yes, written"))
	run(t, NewBriefAskQuestions(d), st)

	second := st.Messages[len(st.Messages)-1].Content
	assert.Equal(t, "**Question 2/2**\n\nWhen did you move out?", second)
	assert.Empty(t, st.Intake.PendingQuestions)
	assert.Equal(t, 2, st.Intake.QuestionsAsked)
	assert.Equal(t, 1, fake.CallsMatching(questionMarker))
}

func TestBriefQuestionsFallBackToChecklist(t *testing.T) {
	fake := llmtest.New().Fail(questionMarker, errModel)
	st := intakeState("", state.BriefIntake{MissingInfo: []string{"lease status"}})

	run(t, NewBriefAskQuestions(deps(fake)), st)

	assert.Equal(t, "**Question 1/1**\n\nCould you tell me more about the lease status?", st.Messages[len(st.Messages)-1].Content)
}

func TestBriefGenerateClosesIntake(t *testing.T) {
	fake := llmtest.New().On(briefMarker, `{"executive_summary": "Tenant seeks return of a $2000 bond.", "legal_area": "tenancy", "jurisdiction": "NSW", `+
		`"situation_narrative": "The lease ended in March.", "key_facts": ["Bond $2000"], "fact_gaps": ["Condition report"], "parties": ["Tenant", "Landlord"], `+
		`"documents_evidence": [], "client_goals": ["Recover bond"], "potential_issues": [], "questions_for_lawyer": ["Can I claim interest?"], `+
		`"urgency_level": "standard", "urgency_reason": "No hearing yet"}`)
	pub := &recorder{}
	d := deps(fake)
	d.Events = pub
	st := intakeState("I don't know", state.BriefIntake{UnknownInfo: []string{"exact move-out date"}, Complete: true})
	st.Phase = state.PhaseAwaitingIntakeAnswer
	st.Mode = state.ModeBrief

	run(t, NewBriefGenerate(d), st)

	text := st.Messages[len(st.Messages)-1].Content
	assert.True(t, strings.HasPrefix(text, "# Lawyer Brief"))
	assert.Contains(t, text, "**Urgency:** Standard")
	assert.Contains(t, text, "## Information Not Provided")
	assert.Contains(t, text, "- exact move-out date")
	assert.Contains(t, text, "**Parties Involved:** Tenant, Landlord")
	assert.NotContains(t, text, "## Documents & Evidence")
	assert.Equal(t, state.PhaseIdle, st.Phase)
	assert.Equal(t, state.ModeChat, st.Mode)
	assert.True(t, st.SuggestLawyer)
	assert.Equal(t, []string{events.TypeBriefGenerated}, pub.types())
}

func TestBriefGenerateFallbackUsesIntakeFacts(t *testing.T) {
	st := intakeState("", state.BriefIntake{
		Facts: &state.ExtractedFacts{
			LegalArea:        "employment",
			SituationSummary: "Casual worker dismissed without notice",
			KeyFacts:         []string{"two years casual"},
			Confidence:       0.5,
		},
		MissingInfo: []string{"date of dismissal"},
	})
	st.UserState = "VIC"
	s := NewBriefGenerate(deps(llmtest.New()))

	require.NoError(t, state.Merge(st, s.Fallback(st, errModel)))

	text := st.Messages[len(st.Messages)-1].Content
	assert.Contains(t, text, "Casual worker dismissed without notice")
	assert.Contains(t, text, "**Legal Area:** Employment")
	assert.Contains(t, text, "**Jurisdiction:** VIC")
	assert.Contains(t, text, "- date of dismissal")
}
