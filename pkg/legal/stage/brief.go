package stage

import (
	"context"
	"fmt"
	"strings"

	"legal-assistant-be/pkg/events"
	"legal-assistant-be/pkg/legal/graph"
	"legal-assistant-be/pkg/legal/router"
	"legal-assistant-be/pkg/legal/state"
	"legal-assistant-be/pkg/llm"
)

const (
	// DefaultMaxIntakeQuestions bounds one intake unless Deps overrides it;
	// past it the brief is written with whatever is known.
	DefaultMaxIntakeQuestions = 6

	briefConfidenceFloor = 0.6
	briefHistoryLimit    = 20
)

// requiredInfo seeds the question generator with what a lawyer needs per area.
var requiredInfo = map[string][]string{
	"tenancy": {
		"type of tenancy (residential, commercial)",
		"lease status (signed, verbal, expired)",
		"issue (rent, repairs, eviction, bond, etc.)",
		"other party (landlord, agent, roommate)",
	},
	"employment": {
		"employment type (full-time, part-time, casual, contractor)",
		"issue (dismissal, wages, discrimination, injury, etc.)",
		"employer relationship (current, former, potential)",
		"length of employment if relevant",
	},
	"family": {
		"relationship type (marriage, de facto, etc.)",
		"issue (separation, children, property, violence)",
		"children involved (yes/no)",
		"current living situation",
	},
	"consumer": {
		"product or service involved",
		"issue (refund, warranty, scam, etc.)",
		"value of transaction",
		"business or seller involved",
	},
	"criminal": {
		"type of matter (charged, accused, victim, witness)",
		"nature of alleged offense",
		"court involvement (yes/no, stage)",
		"representation status",
	},
	"general": {
		"nature of legal issue",
		"desired outcome",
		"any deadlines or urgency",
	},
}

// BriefCheckInfoStage works out whether intake has enough to write the brief.
type BriefCheckInfoStage struct {
	base
	llm          llm.LLMProvider
	maxQuestions int
}

func NewBriefCheckInfo(d Deps) *BriefCheckInfoStage {
	d = d.withDefaults()
	return &BriefCheckInfoStage{base: newBase(BriefCheckInfo, d), llm: d.LLM, maxQuestions: d.MaxIntakeQuestions}
}

func (s *BriefCheckInfoStage) exhausted(in state.BriefIntake) bool {
	return in.QuestionsAsked >= s.maxQuestions
}

func (s *BriefCheckInfoStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	in := st.Intake
	query := st.CurrentQuery
	fields := map[string]interface{}{
		"session_id":      cfg.SessionID,
		"pending":         len(in.PendingQuestions),
		"questions_asked": in.QuestionsAsked,
	}

	if router.IsGenerateNow(query) {
		s.logger.Info(s.module(), "immediate brief requested", fields)
		return checked(&state.IntakePatch{Complete: state.Ptr(true), PendingQuestions: []string{}}), nil
	}

	if router.IsSkipReply(query) {
		missing := append([]string{}, in.MissingInfo...)
		unknown := append([]string{}, in.UnknownInfo...)
		if len(missing) > 0 {
			unknown = append(unknown, missing[0])
			missing = missing[1:]
		}
		complete := len(in.PendingQuestions) == 0 && len(missing) == 0
		fields["skipped"] = len(unknown) - len(in.UnknownInfo)
		s.logger.Info(s.module(), "question skipped", fields)
		return checked(&state.IntakePatch{
			MissingInfo: missing,
			UnknownInfo: unknown,
			Complete:    state.Ptr(complete || s.exhausted(in)),
		}), nil
	}

	if len(in.PendingQuestions) > 0 {
		s.logger.Info(s.module(), "answer received, questions still pending", fields)
		return checked(&state.IntakePatch{Complete: state.Ptr(s.exhausted(in))}), nil
	}

	var facts state.ExtractedFacts
	if err := llm.GenerateJSON(ctx, s.llm, factExtractionPrompt(st), &facts, s.options(cfg)...); err != nil {
		return state.Update{}, fmt.Errorf("extract brief facts: %w", err)
	}

	missing := pruneMissing(facts.MissingCriticalInfo, in.MissingInfo, in.UnknownInfo, in.QuestionsAsked > 0)
	enough := facts.Confidence >= briefConfidenceFloor &&
		len(missing) == 0 &&
		facts.LegalArea != "unknown" &&
		len(facts.KeyFacts) >= 2
	fullIntake := substantiveHumanMessages(st) < 2

	fields["legal_area"] = facts.LegalArea
	fields["confidence"] = facts.Confidence
	fields["missing"] = len(missing)
	fields["complete"] = enough
	s.logger.Info(s.module(), "brief facts extracted", fields)

	return checked(&state.IntakePatch{
		Facts:            &facts,
		MissingInfo:      missing,
		UnknownInfo:      append([]string{}, in.UnknownInfo...),
		Complete:         state.Ptr(enough || s.exhausted(in)),
		NeedsFullIntake:  state.Ptr(fullIntake),
		PendingQuestions: []string{},
		QuestionIndex:    state.Ptr(0),
		TotalQuestions:   state.Ptr(0),
	}), nil
}

// Fallback proceeds to the brief with what is already known.
func (s *BriefCheckInfoStage) Fallback(st *state.State, cause error) state.Update {
	facts := st.Intake.Facts
	if facts == nil {
		facts = &state.ExtractedFacts{
			LegalArea:           "general",
			SituationSummary:    "Could not fully analyze conversation",
			KeyFacts:            []string{},
			MissingCriticalInfo: []string{"Full conversation analysis failed"},
			Confidence:          0.3,
		}
	}
	return checked(&state.IntakePatch{
		Facts:            facts,
		MissingInfo:      []string{"Unable to complete analysis - proceeding with available info"},
		Complete:         state.Ptr(true),
		PendingQuestions: []string{},
	})
}

func checked(p *state.IntakePatch) state.Update {
	return state.Update{Stage: BriefCheckInfo, Intake: p}
}

// pruneMissing drops items the user already said they don't know. After the
// first round of questions the list may shrink but never grow, so intake
// always converges.
func pruneMissing(extracted, previous, unknown []string, asked bool) []string {
	known := make(map[string]bool, len(unknown))
	for _, u := range unknown {
		known[strings.ToLower(strings.TrimSpace(u))] = true
	}
	out := []string{}
	for _, m := range extracted {
		key := strings.ToLower(strings.TrimSpace(m))
		if key == "" || known[key] {
			continue
		}
		out = append(out, m)
	}
	if asked && len(out) > len(previous) {
		out = out[:len(previous)]
	}
	return out
}

func substantiveHumanMessages(st *state.State) int {
	n := 0
	for _, m := range st.Messages {
		if m.Role == state.RoleHuman && !router.HasBriefTrigger(m.Content) && strings.TrimSpace(m.Content) != "" {
			n++
		}
	}
	return n
}

func briefConversation(st *state.State) string {
	return strings.ReplaceAll(st.FormatConversation(briefHistoryLimit), router.BriefTrigger, "")
}

func factExtractionPrompt(st *state.State) string {
	return fmt.Sprintf(`<system>
You are analyzing a conversation between a user and a legal assistant to extract facts for a lawyer brief.
</system>

Extract every fact that helps a lawyer understand what the legal situation is, who is involved, what happened and when, what documents or evidence exist and what the user wants.

For a useful brief we need at minimum:
- the general nature of the legal problem
- the user's role in the situation
- what outcome the user wants
- any urgent deadlines or time pressures
If any of these are unclear, list them in missing_critical_info. If something is implied but not stated, note it as uncertain.

User's state/territory: %s

Conversation:
%s

Respond with JSON: {"legal_area": "tenancy"|"employment"|"family"|"consumer"|"criminal"|"general"|"unknown", "situation_summary": string, `+
		`"key_facts": [string], "parties_involved": [string], "timeline_events": [string], "documents_mentioned": [string], `+
		`"user_goals": [string], "missing_critical_info": [string], "confidence": number between 0 and 1}`,
		userStateOr(st, "Not specified"), briefConversation(st))
}

type followUpQuestions struct {
	Questions       []string `json:"questions"`
	QuestionContext string   `json:"question_context"`
}

func (f *followUpQuestions) Validate() error {
	var kept []string
	for _, q := range f.Questions {
		if q = strings.TrimSpace(q); q != "" {
			kept = append(kept, q)
		}
	}
	if len(kept) == 0 {
		return fmt.Errorf("no follow-up questions")
	}
	if len(kept) > 3 {
		kept = kept[:3]
	}
	f.Questions = kept
	return nil
}

const fullIntakeIntro = "I need a bit more information to prepare your brief. " +
	"I'll ask you a few questions - feel free to say \"I don't know\" if you're unsure.\n\n"

// BriefAskQuestionsStage asks the next intake question and suspends the
// conversation until it is answered.
type BriefAskQuestionsStage struct {
	base
	llm llm.LLMProvider
}

func NewBriefAskQuestions(d Deps) *BriefAskQuestionsStage {
	d = d.withDefaults()
	return &BriefAskQuestionsStage{base: newBase(BriefAskQuestions, d), llm: d.LLM}
}

func (s *BriefAskQuestionsStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	in := st.Intake
	if len(in.PendingQuestions) > 0 {
		return ask(st, in.PendingQuestions, in.QuestionIndex, in.TotalQuestions), nil
	}

	var out followUpQuestions
	if err := llm.GenerateJSON(ctx, s.llm, followUpPrompt(st), &out, s.options(cfg, llm.WithTemperature(0.3))...); err != nil {
		s.logger.Warn(s.module(), "question generation failed, using checklist", map[string]interface{}{
			"session_id": cfg.SessionID,
			"error":      truncate(err.Error(), 200),
		})
		out.Questions = checklistQuestions(st)
	}
	s.logger.Info(s.module(), "intake questions prepared", map[string]interface{}{
		"session_id": cfg.SessionID,
		"questions":  len(out.Questions),
	})
	return ask(st, out.Questions, 0, len(out.Questions)), nil
}

func (s *BriefAskQuestionsStage) Fallback(st *state.State, cause error) state.Update {
	in := st.Intake
	if len(in.PendingQuestions) > 0 {
		return ask(st, in.PendingQuestions, in.QuestionIndex, in.TotalQuestions)
	}
	qs := checklistQuestions(st)
	return ask(st, qs, 0, len(qs))
}

// ask pops the first of questions.
func ask(st *state.State, questions []string, index, total int) state.Update {
	if total < index+len(questions) {
		total = index + len(questions)
	}
	progress := fmt.Sprintf("**Question %d/%d**", index+1, total)
	text := progress + "\n\n" + questions[0]
	if st.Intake.NeedsFullIntake && st.Intake.QuestionsAsked == 0 && index == 0 {
		text = fullIntakeIntro + text
	}
	return state.Update{
		Stage:        BriefAskQuestions,
		Messages:     []state.Message{state.Assistant(text)},
		QuickReplies: []string{"I don't know", "Generate brief now"},
		Intake: &state.IntakePatch{
			PendingQuestions: append([]string{}, questions[1:]...),
			QuestionIndex:    state.Ptr(index + 1),
			TotalQuestions:   state.Ptr(total),
			QuestionsAsked:   state.Ptr(st.Intake.QuestionsAsked + 1),
		},
		Event: state.EventQuestionAsked,
	}
}

// checklistQuestions turns the missing items, or the area checklist when
// none are recorded, into plain questions.
func checklistQuestions(st *state.State) []string {
	items := limit(st.Intake.MissingInfo, 3)
	if len(items) == 0 {
		area := "general"
		if st.Intake.Facts != nil {
			if _, ok := requiredInfo[st.Intake.Facts.LegalArea]; ok {
				area = st.Intake.Facts.LegalArea
			}
		}
		items = limit(requiredInfo[area], 3)
	}
	qs := make([]string, 0, len(items))
	for _, it := range items {
		qs = append(qs, fmt.Sprintf("Could you tell me more about the %s?", it))
	}
	return qs
}

func followUpPrompt(st *state.State) string {
	summary := "User needs legal help"
	area := "general"
	if f := st.Intake.Facts; f != nil {
		summary = orDefault(f.SituationSummary, summary)
		if _, ok := requiredInfo[f.LegalArea]; ok {
			area = f.LegalArea
		}
	}
	return fmt.Sprintf(`<system>
You need to ask the user some follow-up questions before generating their lawyer brief.
</system>

What we know:
%s

Missing information:
%s

A lawyer in this area usually needs:
%s

Generate 1-3 targeted questions that fill the most critical gaps. Keep them conversational, focused and practical; this should not feel like an interrogation.

Respond with JSON: {"questions": [string], "question_context": string}`,
		summary, bullets(limit(st.Intake.MissingInfo, 5), "- none recorded"), bullets(requiredInfo[area], ""))
}

// LawyerBrief is the brief written at the end of intake.
type LawyerBrief struct {
	ExecutiveSummary   string   `json:"executive_summary"`
	LegalArea          string   `json:"legal_area"`
	Jurisdiction       string   `json:"jurisdiction"`
	SituationNarrative string   `json:"situation_narrative"`
	KeyFacts           []string `json:"key_facts"`
	FactGaps           []string `json:"fact_gaps"`
	Parties            []string `json:"parties"`
	DocumentsEvidence  []string `json:"documents_evidence"`
	ClientGoals        []string `json:"client_goals"`
	PotentialIssues    []string `json:"potential_issues"`
	QuestionsForLawyer []string `json:"questions_for_lawyer"`
	UrgencyLevel       string   `json:"urgency_level"`
	UrgencyReason      string   `json:"urgency_reason"`
}

func (b *LawyerBrief) Validate() error {
	if strings.TrimSpace(b.ExecutiveSummary) == "" {
		return fmt.Errorf("executive summary missing")
	}
	switch b.UrgencyLevel {
	case "urgent", "standard", "low_priority":
	default:
		return fmt.Errorf("urgency %q", b.UrgencyLevel)
	}
	return nil
}

// BriefGenerateStage writes the lawyer brief and closes intake.
type BriefGenerateStage struct {
	base
	llm    llm.LLMProvider
	events events.Publisher
	newID  func() string
}

func NewBriefGenerate(d Deps) *BriefGenerateStage {
	d = d.withDefaults()
	return &BriefGenerateStage{base: newBase(BriefGenerate, d), llm: d.LLM, events: d.Events, newID: d.NewID}
}

func (s *BriefGenerateStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	var brief LawyerBrief
	if err := llm.GenerateJSON(ctx, s.llm, briefGenerationPrompt(st), &brief, s.options(cfg)...); err != nil {
		return state.Update{}, fmt.Errorf("generate lawyer brief: %w", err)
	}

	id := s.newID()
	if err := s.events.Publish(ctx, events.BriefGenerated(cfg.SessionID, id, brief.UrgencyLevel, brief)); err != nil {
		s.logger.Warn(s.module(), "brief event not published", map[string]interface{}{
			"session_id": cfg.SessionID,
			"error":      truncate(err.Error(), 200),
		})
	}
	s.logger.Info(s.module(), "lawyer brief generated", map[string]interface{}{
		"session_id": cfg.SessionID,
		"brief_id":   id,
		"legal_area": brief.LegalArea,
		"urgency":    brief.UrgencyLevel,
		"unknown":    len(st.Intake.UnknownInfo),
	})
	return briefDone(FormatLawyerBrief(&brief, st.UserState, st.Intake.UnknownInfo)), nil
}

// Fallback assembles the brief from the facts gathered during intake.
func (s *BriefGenerateStage) Fallback(st *state.State, cause error) state.Update {
	brief := briefFromIntake(st)
	return briefDone(FormatLawyerBrief(&brief, st.UserState, st.Intake.UnknownInfo))
}

func briefDone(text string) state.Update {
	return state.Update{
		Stage:         BriefGenerate,
		Messages:      []state.Message{state.Assistant(text)},
		Mode:          state.Ptr(state.ModeChat),
		QuickReplies:  []string{"Find me a lawyer", "What should I ask the lawyer?", "Explain the urgency"},
		SuggestLawyer: state.Ptr(true),
		Intake:        &state.IntakePatch{Complete: state.Ptr(true)},
		Event:         state.EventIntakeFinished,
	}
}

func briefFromIntake(st *state.State) LawyerBrief {
	f := st.Intake.Facts
	if f == nil {
		f = &state.ExtractedFacts{LegalArea: "general"}
	}
	summary := orDefault(f.SituationSummary, "Matter discussed with the legal assistant; details are summarised below.")
	return LawyerBrief{
		ExecutiveSummary:   summary,
		LegalArea:          orDefault(f.LegalArea, "general"),
		Jurisdiction:       st.UserState,
		SituationNarrative: summary,
		KeyFacts:           f.KeyFacts,
		FactGaps:           st.Intake.MissingInfo,
		Parties:            f.PartiesInvolved,
		DocumentsEvidence:  f.DocumentsMentioned,
		ClientGoals:        f.UserGoals,
		UrgencyLevel:       "standard",
		UrgencyReason:      "Urgency could not be assessed automatically. Ask the lawyer to confirm any deadlines.",
	}
}

func briefGenerationPrompt(st *state.State) string {
	return fmt.Sprintf(`<system>
You are generating a comprehensive lawyer brief based on the conversation between a user and a legal assistant.
</system>

User's state/territory: %s

Conversation:
%s

Extracted facts:
%s

Write a professional, structured brief that lets a lawyer quickly understand what the case is about, the key facts and timeline, who is involved, what documents exist, what the client wants and what the client should discuss with the lawyer.

Urgency:
- urgent: court or tribunal deadlines within 14 days, limitation periods about to expire, risk of eviction, termination or harm, criminal charges pending, family violence or safety concerns
- standard: active disputes, deadlines within 1-3 months, complex matters needing analysis
- low_priority: information gathering, no immediate deadlines, preventative advice

Respond with JSON: {"executive_summary", "legal_area", "jurisdiction", "situation_narrative", "key_facts": [string], "fact_gaps": [string], `+
		`"parties": [string], "documents_evidence": [string], "client_goals": [string], "potential_issues": [string], `+
		`"questions_for_lawyer": [string], "urgency_level": "urgent"|"standard"|"low_priority", "urgency_reason"}`,
		userStateOr(st, "Not specified"), briefConversation(st), formatExtractedFacts(st.Intake.Facts))
}

func formatExtractedFacts(f *state.ExtractedFacts) string {
	if f == nil {
		return "None extracted."
	}
	var parts []string
	if f.LegalArea != "" {
		parts = append(parts, "**Legal Area:** "+f.LegalArea)
	}
	if f.SituationSummary != "" {
		parts = append(parts, "**Summary:** "+f.SituationSummary)
	}
	if len(f.KeyFacts) > 0 {
		parts = append(parts, "**Key Facts:**", bullets(f.KeyFacts, ""))
	}
	if len(f.PartiesInvolved) > 0 {
		parts = append(parts, "**Parties:** "+strings.Join(f.PartiesInvolved, ", "))
	}
	if len(f.TimelineEvents) > 0 {
		parts = append(parts, "**Timeline:**", bullets(f.TimelineEvents, ""))
	}
	if len(f.DocumentsMentioned) > 0 {
		parts = append(parts, "**Documents:** "+strings.Join(f.DocumentsMentioned, ", "))
	}
	if len(f.UserGoals) > 0 {
		parts = append(parts, "**User Goals:**", bullets(f.UserGoals, ""))
	}
	return strings.Join(parts, "\n")
}

// FormatLawyerBrief renders the brief as a chat message. unknown lists the
// items the user said they could not answer.
func FormatLawyerBrief(b *LawyerBrief, userState string, unknown []string) string {
	var sb strings.Builder
	section := func(title, note string, items []string) {
		if len(items) == 0 {
			return
		}
		sb.WriteString("## " + title + "\n")
		if note != "" {
			sb.WriteString(note + "\n")
		}
		sb.WriteString(bullets(items, ""))
		sb.WriteString("\n\n")
	}

	sb.WriteString("# Lawyer Brief\n\n")
	sb.WriteString("## Summary\n")
	sb.WriteString(b.ExecutiveSummary + "\n\n")
	fmt.Fprintf(&sb, "**Urgency:** %s\n", titleCase(b.UrgencyLevel))
	if b.UrgencyReason != "" {
		fmt.Fprintf(&sb, "*%s*\n", b.UrgencyReason)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "**Legal Area:** %s\n", titleCase(b.LegalArea))
	fmt.Fprintf(&sb, "**Jurisdiction:** %s\n\n", orDefault(b.Jurisdiction, orDefault(userState, "Australia")))
	sb.WriteString("---\n\n")
	sb.WriteString("## Your Situation\n")
	sb.WriteString(b.SituationNarrative + "\n\n")

	section("Key Facts", "", b.KeyFacts)
	if len(b.Parties) > 0 {
		fmt.Fprintf(&sb, "**Parties Involved:** %s\n\n", strings.Join(b.Parties, ", "))
	}
	section("Documents & Evidence", "", b.DocumentsEvidence)
	section("Your Goals", "", b.ClientGoals)
	section("Information Not Provided", "*You indicated you don't know these details - the lawyer may need to discuss:*", unknown)
	section("Information to Gather", "*These are things the lawyer may ask about:*", b.FactGaps)
	section("Potential Legal Issues", "", b.PotentialIssues)
	section("Questions for Your Lawyer", "", b.QuestionsForLawyer)

	sb.WriteString("---\n\n")
	sb.WriteString("*This brief summarizes our conversation. Share it with a lawyer for professional advice.*")
	return sb.String()
}

func titleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
