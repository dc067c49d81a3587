package stage

import (
	"context"
	"fmt"
	"strings"

	"legal-assistant-be/pkg/legal/graph"
	"legal-assistant-be/pkg/legal/readiness"
	"legal-assistant-be/pkg/legal/router"
	"legal-assistant-be/pkg/legal/search"
	"legal-assistant-be/pkg/legal/state"
	"legal-assistant-be/pkg/llm"
)

const (
	chatHistoryLimit    = 20
	chatSearchTopK      = 5
	documentPromptChars = 8000
)

var (
	defaultQuickReplies = []string{"Tell me more", "What are my options?"}
	chatErrorReplies    = []string{"What can you help with?", "Tell me about tenant rights"}
)

const chatErrorMessage = "I encountered an issue processing your request. Could you try rephrasing your question?"

type quickReplyAnalysis struct {
	QuickReplies []string `json:"quick_replies"`
	SuggestBrief bool     `json:"suggest_brief"`
}

// ChatResponseStage answers a conversational turn grounded on legislation
// search and, when attached, the user's document.
type ChatResponseStage struct {
	base
	llm       llm.LLMProvider
	search    search.Searcher
	documents DocumentFetcher
}

func NewChatResponse(d Deps) *ChatResponseStage {
	d = d.withDefaults()
	return &ChatResponseStage{base: newBase(ChatResponse, d), llm: d.LLM, search: d.Search, documents: d.Documents}
}

func (s *ChatResponseStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	legislation := s.lookupLaw(ctx, st, cfg)
	docText, notice := s.readDocument(ctx, st, cfg)

	history := []llm.Message{{Role: llm.RoleSystem, Content: chatSystemPrompt(st, legislation, docText)}}
	msgs := st.Messages
	if len(msgs) > chatHistoryLimit {
		msgs = msgs[len(msgs)-chatHistoryLimit:]
	}
	for _, m := range msgs {
		role := llm.RoleUser
		if m.Role == state.RoleAssistant {
			role = llm.RoleAssistant
		}
		history = append(history, llm.Message{Role: role, Content: m.Content})
	}

	reply, err := s.llm.Chat(ctx, history, s.replyOptions()...)
	if err != nil {
		return state.Update{}, fmt.Errorf("chat response: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = "I'm sorry, I couldn't generate a response. Could you rephrase your question?"
	}

	qr := s.quickReplies(ctx, st, reply, cfg)
	score := readiness.Score(st)

	s.logger.Info(s.module(), "chat response generated", map[string]interface{}{
		"session_id": cfg.SessionID,
		"readiness":  score,
		"document":   st.HasDocument(),
		"ui_mode":    string(st.UIMode),
	})
	return state.Update{
		Stage:        ChatResponse,
		Messages:     []state.Message{state.Assistant(notice + reply)},
		QuickReplies: qr.QuickReplies,
		SuggestBrief: state.Ptr(qr.SuggestBrief),
		Readiness:    &score,
	}, nil
}

func (s *ChatResponseStage) Fallback(st *state.State, cause error) state.Update {
	score := readiness.Score(st)
	return state.Update{
		Stage:        ChatResponse,
		Messages:     []state.Message{state.Assistant(chatErrorMessage)},
		QuickReplies: append([]string(nil), chatErrorReplies...),
		SuggestBrief: state.Ptr(false),
		Readiness:    &score,
	}
}

// lookupLaw never fails the turn; a search outage becomes an instruction to
// the model.
func (s *ChatResponseStage) lookupLaw(ctx context.Context, st *state.State, cfg graph.RunConfig) string {
	if s.search == nil || strings.TrimSpace(st.CurrentQuery) == "" {
		return "Legislation search is not available for this turn."
	}
	resp, err := s.search.Search(ctx, st.CurrentQuery, st.UserState, chatSearchTopK)
	if err != nil {
		s.logger.Warn(s.module(), "legislation search failed", map[string]interface{}{
			"session_id": cfg.SessionID,
			"error":      truncate(err.Error(), 200),
		})
		return "No legislation found. Tell the user you couldn't find specific legislation and suggest they try rephrasing."
	}
	if len(resp.Results) == 0 {
		return "No legislation found. Tell the user you couldn't find specific legislation and suggest they try rephrasing."
	}
	return search.FormatForPrompt(resp, chatSearchTopK)
}

// readDocument returns the document text, or a notice for the user when the
// document could not be read.
func (s *ChatResponseStage) readDocument(ctx context.Context, st *state.State, cfg graph.RunConfig) (string, string) {
	if !st.HasDocument() || s.documents == nil {
		return "", ""
	}
	text, contentType, err := s.documents.Fetch(ctx, st.DocumentURL)
	if err != nil {
		s.logger.Warn(s.module(), "document fetch failed", map[string]interface{}{
			"session_id": cfg.SessionID,
			"error":      truncate(err.Error(), 200),
		})
		return "", fmt.Sprintf("_I couldn't fetch that document (%s). I'll answer from what you've told me._\n\n", truncate(err.Error(), 120))
	}
	s.logger.Debug(s.module(), "document fetched", map[string]interface{}{
		"session_id":   cfg.SessionID,
		"content_type": string(contentType),
		"chars":        len(text),
	})
	return truncate(text, documentPromptChars), ""
}

func (s *ChatResponseStage) quickReplies(ctx context.Context, st *state.State, reply string, cfg graph.RunConfig) quickReplyAnalysis {
	var out quickReplyAnalysis
	if err := llm.GenerateJSON(ctx, s.llm, quickReplyPrompt(st, reply), &out, s.options(cfg)...); err != nil || len(out.QuickReplies) == 0 {
		if err != nil {
			s.logger.Warn(s.module(), "quick replies failed", map[string]interface{}{
				"session_id": cfg.SessionID,
				"error":      truncate(err.Error(), 200),
			})
		}
		return quickReplyAnalysis{QuickReplies: append([]string(nil), defaultQuickReplies...)}
	}
	if len(out.QuickReplies) > 4 {
		out.QuickReplies = out.QuickReplies[:4]
	}
	return out
}

func chatSystemPrompt(st *state.State, legislation, document string) string {
	hasDoc := "No"
	if st.HasDocument() {
		hasDoc = "Yes"
	}

	var p strings.Builder
	if st.UIMode == state.UIModeAnalysis {
		p.WriteString(consultationGuide)
	} else {
		p.WriteString(conversationGuide)
	}
	p.WriteString("## User context\n")
	fmt.Fprintf(&p, "- State/Territory: %s\n", orDefault(st.UserState, "Not specified"))
	fmt.Fprintf(&p, "- Has uploaded document: %s\n", hasDoc)
	if st.UserState == "" {
		p.WriteString("\nThe user's state is not specified. Ask them to pick their state or territory from the dropdown at the top of the chat, because laws vary between states.\n")
	}
	p.WriteString("\n## Relevant legislation\n")
	p.WriteString(legislation)
	p.WriteString("\n")
	if document != "" {
		p.WriteString("\n## Uploaded document\n")
		p.WriteString(document)
		p.WriteString("\n")
	}
	return p.String()
}

const conversationGuide = `You are an Australian legal assistant having a natural, helpful conversation. You're like a knowledgeable friend who happens to understand law: approachable, clear and never condescending.

## How to respond
- Write in plain language and answer the immediate question.
- If you need more information, ask ONE clear follow-up question.
- Base legal statements on the legislation below. Never make up legal information; if nothing relevant was found, say so.
- When a result comes from AustLII, cite the source URL and suggest the user verify it on the official site.
- If something needs a real lawyer, say so gently.

`

const consultationGuide = `You are a friendly Australian legal assistant running an initial consultation, like a paralegal doing intake: thorough, warm and methodical.

## Understand the situation first
- Don't explain the law straight away. Ask ONE clarifying question at a time about what happened (events, dates, amounts), who is involved, the outcome they want and the evidence they hold.
- Once you have enough, summarise ("Let me make sure I understand correctly...") and confirm before moving on.

## Then explain the law
- Use plain English and base every legal statement on the legislation below. Never make up legal information.
- Explain their rights and obligations, the strengths of their position and the risks they should know about.
- Point out time limits such as limitation periods.
- When a result comes from AustLII, cite the source URL and suggest the user verify it on the official site.

## Options, when asked or when it follows naturally
Prefer free options first (ombudsmen, fair trading, community legal centres), then low-cost tribunals (NCAT, VCAT, QCAT and so on), then self-help guides. Suggest a paid lawyer only for criminal charges, unavoidable litigation, more than $50,000 at stake or safety concerns.

`

func quickReplyPrompt(st *state.State, reply string) string {
	return fmt.Sprintf(`Based on this conversation, suggest 2-4 quick reply options that would be natural for the user to say next.
Make them short (2-6 words), conversational, useful for moving forward and different from each other.
Also indicate if the situation seems complex enough that a formal lawyer brief would help.

Current conversation:
%s

Assistant's response:
%s

Respond with JSON: {"quick_replies": [string], "suggest_brief": bool}`, st.FormatConversation(6), truncate(reply, 2000))
}

const analysisOfferMessage = "I've gathered quite a bit about your situation. Would you like me to do a " +
	"**deeper analysis**? This would organize the facts, identify strengths and " +
	"weaknesses in your position, and suggest concrete next steps.\n\n" +
	"Just say **yes** to continue, or **no** to keep chatting."

// AnalysisOfferStage asks whether the user wants a deep analysis and
// suspends the conversation until they answer.
type AnalysisOfferStage struct {
	base
}

func NewAnalysisOffer(d Deps) *AnalysisOfferStage {
	return &AnalysisOfferStage{base: newBase(AnalysisOffer, d.withDefaults())}
}

func (s *AnalysisOfferStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	s.logger.Info(s.module(), "offering deep analysis", map[string]interface{}{
		"session_id": cfg.SessionID,
		"readiness":  st.Readiness,
	})
	return s.offer(), nil
}

func (s *AnalysisOfferStage) Fallback(st *state.State, cause error) state.Update {
	return s.offer()
}

func (s *AnalysisOfferStage) offer() state.Update {
	return state.Update{
		Stage:        AnalysisOffer,
		Messages:     []state.Message{state.Assistant(analysisOfferMessage)},
		QuickReplies: []string{"Yes, analyze my situation", "No, keep chatting"},
		Offer:        &state.OfferPatch{Offered: state.Ptr(true)},
		Event:        state.EventOfferEmitted,
	}
}

// HandleAnalysisResponseStage classifies the reply to a pending offer and
// clears the suspension.
type HandleAnalysisResponseStage struct {
	base
}

func NewHandleAnalysisResponse(d Deps) *HandleAnalysisResponseStage {
	return &HandleAnalysisResponseStage{base: newBase(HandleAnalysisResponse, d.withDefaults())}
}

func (s *HandleAnalysisResponseStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	decision := state.OfferDeclined
	if router.ClassifyOfferReply(st.CurrentQuery) == router.OfferAccept {
		decision = state.OfferAccepted
	}
	s.logger.Info(s.module(), "offer answered", map[string]interface{}{
		"session_id":       cfg.SessionID,
		"decision":         string(decision),
		"explicit_decline": router.IsExplicitDecline(st.CurrentQuery),
	})
	return answered(decision), nil
}

func (s *HandleAnalysisResponseStage) Fallback(st *state.State, cause error) state.Update {
	return answered(state.OfferDeclined)
}

func answered(d state.OfferDecision) state.Update {
	return state.Update{
		Stage: HandleAnalysisResponse,
		Offer: &state.OfferPatch{Decision: &d},
		Event: state.EventOfferAnswered,
	}
}

// DeepAnalysisStage organises facts, weighs risks and recommends a strategy
// from the whole conversation. Each step degrades on its own, so a model
// failure in one step still yields a complete result.
type DeepAnalysisStage struct {
	base
	llm llm.LLMProvider
}

func NewDeepAnalysis(d Deps) *DeepAnalysisStage {
	d = d.withDefaults()
	return &DeepAnalysisStage{base: newBase(DeepAnalysis, d), llm: d.LLM}
}

func (s *DeepAnalysisStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	conversation := st.FormatConversation(0)
	opts := s.options(cfg)

	var facts state.FactStructure
	if err := llm.GenerateJSON(ctx, s.llm, organizeFactsPrompt(conversation, st.UserState), &facts, opts...); err != nil {
		s.stepFailed(cfg, "facts", err)
		facts = fallbackConversationFacts()
	}
	if err := ctx.Err(); err != nil {
		return state.Update{}, err
	}

	var risks state.RiskSummary
	if err := llm.GenerateJSON(ctx, s.llm, riskSummaryPrompt(facts, st.UserState), &risks, opts...); err != nil {
		s.stepFailed(cfg, "risks", err)
		risks = fallbackRiskSummary()
	}
	if err := ctx.Err(); err != nil {
		return state.Update{}, err
	}

	var strategy state.StrategySummary
	if err := llm.GenerateJSON(ctx, s.llm, strategySummaryPrompt(facts, risks, st.UserState), &strategy, opts...); err != nil {
		s.stepFailed(cfg, "strategy", err)
		strategy = fallbackStrategySummary()
	}

	result := &state.AnalysisResult{Facts: facts, Risks: risks, Strategy: strategy}
	s.logger.Info(s.module(), "deep analysis complete", map[string]interface{}{
		"session_id":  cfg.SessionID,
		"key_facts":   len(facts.KeyFacts),
		"risk":        risks.OverallRisk,
		"recommended": strategy.Recommended.Name,
	})
	return state.Update{Stage: DeepAnalysis, Offer: &state.OfferPatch{Result: result}}, nil
}

func (s *DeepAnalysisStage) stepFailed(cfg graph.RunConfig, step string, err error) {
	s.logger.Warn(s.module(), "analysis step failed, using fallback", map[string]interface{}{
		"session_id": cfg.SessionID,
		"step":       step,
		"error":      truncate(err.Error(), 200),
	})
}

// Fallback reports the failure; the response stage turns it into an apology.
func (s *DeepAnalysisStage) Fallback(st *state.State, cause error) state.Update {
	return state.Update{
		Stage: DeepAnalysis,
		Error: state.Ptr("Analysis error: " + truncate(cause.Error(), 200)),
	}
}

func fallbackConversationFacts() state.FactStructure {
	return state.FactStructure{
		Timeline:         []state.TimelineEvent{},
		Parties:          []state.Party{{Role: "user", IsUser: true}},
		Evidence:         []state.Evidence{},
		KeyFacts:         []string{"Unable to extract facts from conversation"},
		FactGaps:         []string{"Complete situation details needed"},
		NarrativeSummary: "Unable to organize facts from the conversation.",
	}
}

func fallbackRiskSummary() state.RiskSummary {
	return state.RiskSummary{
		OverallRisk: "medium",
		Strengths:   []string{"Unable to fully assess strengths"},
		Weaknesses:  []string{"Incomplete analysis - consider seeking professional advice"},
		Risks: []state.RiskFactor{{
			Description: "Incomplete risk assessment",
			Severity:    "medium",
			Mitigation:  "Consult with a legal professional for comprehensive analysis",
		}},
	}
}

func fallbackStrategySummary() state.StrategySummary {
	fb := fallbackStrategy()
	return state.StrategySummary{
		Recommended:      fb.RecommendedStrategy,
		Alternatives:     fb.AlternativeStrategies,
		ImmediateActions: fb.ImmediateActions,
	}
}

func organizeFactsPrompt(conversation, userState string) string {
	return fmt.Sprintf(`<system>
You organise the facts of a legal situation from a conversation between a user and a legal assistant.
Only use what the user actually said.
</system>

User's state/territory: %s

Conversation:
%s

Respond with JSON: {"timeline": [{"date", "description", "significance": "critical"|"relevant"|"background", "source"}], `+
		`"parties": [{"role", "name", "is_user", "relationship_to_user"}], "evidence": [{"type", "description", "status", "strength": "strong"|"moderate"|"weak"}], `+
		`"key_facts": [string], "fact_gaps": [string], "narrative_summary": string}`,
		orDefault(userState, "Not specified"), conversation)
}

func riskSummaryPrompt(facts state.FactStructure, userState string) string {
	return fmt.Sprintf(`<system>
You assess the strengths and weaknesses of a person's legal position in Australia.
</system>

State/territory: %s
Situation: %s
Key facts:
%s
Evidence items: %d

Respond with JSON: {"overall_risk": "high"|"medium"|"low", "strengths": [string], "weaknesses": [string], `+
		`"risks": [{"description", "severity": "high"|"medium"|"low", "likelihood", "mitigation"}], "time_sensitive": string or null}`,
		orDefault(userState, "Not specified"), facts.NarrativeSummary, bullets(facts.KeyFacts, "- none"), len(facts.Evidence))
}

func strategySummaryPrompt(facts state.FactStructure, risks state.RiskSummary, userState string) string {
	return fmt.Sprintf(`<system>
You recommend practical next steps for an Australian legal problem.
Prefer free options first (ombudsmen, fair trading, community legal centres), then low-cost tribunals, then self-help; a paid lawyer only when truly necessary.
</system>

State/territory: %s
Situation: %s
Overall risk: %s
Strengths:
%s
Weaknesses:
%s

Respond with JSON: {"recommended": {"name", "description", "pros", "cons", "estimated_cost", "estimated_timeline"}, `+
		`"alternatives": [same shape], "immediate_actions": [string]}`,
		orDefault(userState, "Not specified"), facts.NarrativeSummary, risks.OverallRisk,
		bullets(risks.Strengths, "- none"), bullets(risks.Weaknesses, "- none"))
}

// AnalysisResponseStage presents the deep analysis conversationally.
type AnalysisResponseStage struct {
	base
}

func NewAnalysisResponse(d Deps) *AnalysisResponseStage {
	return &AnalysisResponseStage{base: newBase(AnalysisResponse, d.withDefaults())}
}

func (s *AnalysisResponseStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	if st.Error != "" || st.Offer.Result == nil {
		return analysisFailed(), nil
	}
	return state.Update{
		Stage:        AnalysisResponse,
		Messages:     []state.Message{state.Assistant(FormatAnalysis(st.Offer.Result))},
		QuickReplies: []string{"Help with step 1", "Find me a lawyer", "Generate a brief", "Tell me more about risks"},
		SuggestBrief: state.Ptr(true),
	}, nil
}

func (s *AnalysisResponseStage) Fallback(st *state.State, cause error) state.Update {
	return analysisFailed()
}

func analysisFailed() state.Update {
	return state.Update{
		Stage: AnalysisResponse,
		Messages: []state.Message{state.Assistant("I'm sorry, I encountered an issue while analyzing your situation. " +
			"Let's continue our conversation - I can still help answer specific questions.")},
		QuickReplies: []string{"What are my options?", "Find me a lawyer"},
	}
}

// FormatAnalysis renders a deep-analysis result as a chat message.
func FormatAnalysis(r *state.AnalysisResult) string {
	var b strings.Builder
	b.WriteString("Based on what you've told me, here's my analysis:\n\n")

	b.WriteString("## Your Situation\n")
	b.WriteString(r.Facts.NarrativeSummary)
	b.WriteString("\n\n")

	if len(r.Facts.KeyFacts) > 0 {
		b.WriteString("**Key Facts:**\n")
		b.WriteString(bullets(limit(r.Facts.KeyFacts, 5), ""))
		b.WriteString("\n\n")
	}

	if len(r.Risks.Strengths) > 0 {
		b.WriteString("## What's In Your Favor\n")
		b.WriteString(bullets(limit(r.Risks.Strengths, 4), ""))
		b.WriteString("\n\n")
	}

	if len(r.Risks.Weaknesses) > 0 || len(r.Risks.Risks) > 0 {
		b.WriteString("## Things to Be Aware Of\n")
		items := append([]string(nil), limit(r.Risks.Weaknesses, 3)...)
		for i, risk := range r.Risks.Risks {
			if i >= 2 {
				break
			}
			line := risk.Description
			if risk.Mitigation != "" {
				line += " - *" + risk.Mitigation + "*"
			}
			items = append(items, line)
		}
		b.WriteString(bullets(items, ""))
		b.WriteString("\n\n")
	}

	if r.Risks.TimeSensitive != "" {
		fmt.Fprintf(&b, "**Time Sensitive:** %s\n\n", r.Risks.TimeSensitive)
	}

	rec := r.Strategy.Recommended
	b.WriteString("## Recommended Next Steps\n")
	fmt.Fprintf(&b, "**%s**\n%s\n\n", rec.Name, rec.Description)
	if rec.EstimatedCost != "" {
		fmt.Fprintf(&b, "Estimated cost: %s\n", rec.EstimatedCost)
	}
	if rec.EstimatedTimeline != "" {
		fmt.Fprintf(&b, "Timeline: %s\n", rec.EstimatedTimeline)
	}
	b.WriteString("\n")

	if len(r.Strategy.ImmediateActions) > 0 {
		b.WriteString("**What to do now:**\n")
		for i, a := range limit(r.Strategy.ImmediateActions, 4) {
			fmt.Fprintf(&b, "%d. %s\n", i+1, a)
		}
		b.WriteString("\n")
	}

	if len(r.Strategy.Alternatives) > 0 {
		b.WriteString("**Alternative approaches:**\n")
		for _, alt := range limit(r.Strategy.Alternatives, 2) {
			fmt.Fprintf(&b, "- **%s** - %s\n", alt.Name, alt.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n")
	b.WriteString("Would you like me to help with any of these steps, or would you prefer a **formal brief** to take to a lawyer?")
	return b.String()
}

func limit[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}
