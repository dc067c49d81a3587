package stage

import (
	"context"
	"fmt"
	"strings"

	"legal-assistant-be/pkg/events"
	"legal-assistant-be/pkg/legal/graph"
	"legal-assistant-be/pkg/legal/resources"
	"legal-assistant-be/pkg/legal/router"
	"legal-assistant-be/pkg/legal/state"
	"legal-assistant-be/pkg/llm"
)

type safetyVerdict struct {
	IsHighRisk         bool     `json:"is_high_risk"`
	RequiresEscalation bool     `json:"requires_escalation"`
	RiskCategory       string   `json:"risk_category"`
	RiskIndicators     []string `json:"risk_indicators"`
	Reasoning          string   `json:"reasoning"`
}

// SafetyGateStage is the first stage of the adaptive graph. The model decides;
// a crisis keyword hit is passed to it as a hint. When the model cannot answer,
// a hit in a life-safety category still escalates.
type SafetyGateStage struct {
	base
	llm       llm.LLMProvider
	resources *resources.Directory
}

func NewSafetyGate(d Deps) *SafetyGateStage {
	d = d.withDefaults()
	return &SafetyGateStage{base: newBase(SafetyGate, d), llm: d.LLM, resources: d.Resources}
}

func (s *SafetyGateStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	query := st.CurrentQuery
	if strings.TrimSpace(query) == "" {
		return state.Update{
			Stage:  SafetyGate,
			Safety: &state.SafetyAssessment{RiskIndicators: []string{}, Reasoning: "No query provided"},
		}, nil
	}

	hint, hit := router.CrisisCategory(query)
	if hit {
		s.logger.Info(s.module(), "crisis keywords detected, asking model to confirm", map[string]interface{}{
			"session_id":    cfg.SessionID,
			"risk_category": string(hint),
		})
	}

	var out safetyVerdict
	if err := llm.GenerateJSON(ctx, s.llm, safetyPrompt(query, st.UserState, hint), &out, s.options(cfg)...); err != nil {
		return state.Update{}, fmt.Errorf("safety classification: %w", err)
	}

	assessment := &state.SafetyAssessment{
		IsHighRisk:         out.IsHighRisk,
		RiskIndicators:     out.RiskIndicators,
		RequiresEscalation: out.IsHighRisk,
		Reasoning:          orDefault(out.Reasoning, "No reasoning given"),
	}
	if assessment.RiskIndicators == nil {
		assessment.RiskIndicators = []string{}
	}
	if out.IsHighRisk {
		cat := state.RiskCategory(out.RiskCategory)
		if !cat.Valid() && hit {
			cat = hint
		}
		if cat.Valid() {
			assessment.RiskCategory = cat
			assessment.RecommendedResources = s.resources.For(cat, st.UserState)
		}
	}

	if assessment.IsHighRisk {
		s.logger.Warn(s.module(), "high risk detected", map[string]interface{}{
			"session_id":    cfg.SessionID,
			"risk_category": string(assessment.RiskCategory),
			"indicators":    assessment.RiskIndicators,
		})
	} else {
		s.logger.Info(s.module(), "safety check passed", map[string]interface{}{
			"session_id":   cfg.SessionID,
			"keyword_hint": string(hint),
			"reasoning":    truncate(assessment.Reasoning, 100),
		})
	}
	return state.Update{Stage: SafetyGate, Safety: assessment}, nil
}

// Fallback escalates only on a life-safety keyword hit; otherwise the failure
// is visible in the reasoning and the analysis continues.
func (s *SafetyGateStage) Fallback(st *state.State, cause error) state.Update {
	reasoning := "Safety check encountered an error: " + truncate(cause.Error(), 200)
	if cat, hit := router.CrisisCategory(st.CurrentQuery); hit && cat.LifeSafety() {
		return state.Update{
			Stage: SafetyGate,
			Safety: &state.SafetyAssessment{
				IsHighRisk:           true,
				RiskCategory:         cat,
				RiskIndicators:       []string{"crisis keywords"},
				RecommendedResources: s.resources.For(cat, st.UserState),
				RequiresEscalation:   true,
				Reasoning:            reasoning,
			},
		}
	}
	return state.Update{
		Stage: SafetyGate,
		Safety: &state.SafetyAssessment{
			RiskIndicators:       []string{},
			RecommendedResources: []state.Resource{},
			Reasoning:            reasoning,
		},
	}
}

func safetyPrompt(query, userState string, hint state.RiskCategory) string {
	screen := "none"
	if hint.Valid() {
		screen = string(hint) + " (keyword match only; confirm from the message itself)"
	}
	return fmt.Sprintf(`<system>
You are a safety classifier for a legal assistance service in Australia.
Identify HIGH-RISK situations that need immediate professional help, not just general information.

HIGH-RISK categories:
- criminal: accused of a crime, police investigation, arrest, criminal charges
- family_violence: domestic violence, AVO/DVO, threats of harm, stalking
- urgent_deadline: court date within 7 days, eviction notice expiring soon, limitation periods
- child_welfare: child custody emergency, child protection involvement, child abuse
- suicide_self_harm: self-harm, suicide, hopelessness

General rights questions, non-urgent disputes and contract reviews are not high risk.
Context matters: look for actual danger, urgency or distress. When in doubt about family violence or self-harm, err on the side of caution.
</system>

User's message: %s
User's Australian state/territory: %s
Keyword screen: %s

Respond with JSON: {"is_high_risk": bool, "risk_category": string or null, "risk_indicators": [string], "reasoning": string}`,
		query, orDefault(userState, "Unknown"), screen)
}

// SafetyCheckStage is the lightweight conversational screen: keywords first, the
// model only when the wording is uncertain.
type SafetyCheckStage struct {
	base
	llm       llm.LLMProvider
	resources *resources.Directory
}

func NewSafetyCheck(d Deps) *SafetyCheckStage {
	d = d.withDefaults()
	return &SafetyCheckStage{base: newBase(SafetyCheck, d), llm: d.LLM, resources: d.Resources}
}

func (s *SafetyCheckStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	query := st.CurrentQuery
	if strings.TrimSpace(query) == "" {
		return safeUpdate("No query provided"), nil
	}

	if cat, ok := router.CrisisCategory(query); ok {
		s.logger.Warn(s.module(), "crisis keywords detected", map[string]interface{}{
			"session_id":    cfg.SessionID,
			"risk_category": string(cat),
		})
		return s.escalate(cat, st.UserState, "Crisis keywords detected"), nil
	}

	if !router.MightBeRisky(query) {
		return safeUpdate("No risk indicators"), nil
	}

	s.logger.Info(s.module(), "uncertain keywords detected, running model check", map[string]interface{}{
		"session_id": cfg.SessionID,
	})
	var out safetyVerdict
	if err := llm.GenerateJSON(ctx, s.llm, safetyLitePrompt(query, st.UserState), &out, s.options(cfg)...); err != nil {
		return state.Update{}, fmt.Errorf("safety check: %w", err)
	}
	if cat := state.RiskCategory(out.RiskCategory); out.RequiresEscalation && cat.Valid() {
		return s.escalate(cat, st.UserState, orDefault(out.Reasoning, "Model flagged a crisis")), nil
	}
	return safeUpdate(orDefault(out.Reasoning, "No crisis indicated")), nil
}

func (s *SafetyCheckStage) escalate(cat state.RiskCategory, userState, reasoning string) state.Update {
	res := s.resources.For(cat, userState)
	return state.Update{
		Stage: SafetyCheck,
		Safety: &state.SafetyAssessment{
			IsHighRisk:           true,
			RiskCategory:         cat,
			RiskIndicators:       []string{},
			RecommendedResources: res,
			RequiresEscalation:   true,
			Reasoning:            reasoning,
		},
		SafetyResult:    state.Ptr(state.SafetyEscalate),
		CrisisResources: res,
	}
}

func safeUpdate(reasoning string) state.Update {
	return state.Update{
		Stage:        SafetyCheck,
		Safety:       &state.SafetyAssessment{RiskIndicators: []string{}, Reasoning: reasoning},
		SafetyResult: state.Ptr(state.SafetySafe),
	}
}

func (s *SafetyCheckStage) Fallback(st *state.State, cause error) state.Update {
	return safeUpdate("Safety check encountered an error: " + truncate(cause.Error(), 200))
}

func safetyLitePrompt(query, userState string) string {
	return fmt.Sprintf(`Assess if this legal query indicates a crisis requiring immediate professional support.

Query: %s
User location: %s

Crisis categories that require escalation:
- suicide_self_harm: mentions of self-harm, suicide, wanting to die
- family_violence: domestic violence, abuse, threats, protection orders
- child_welfare: child protection, abuse, DOCS involvement
- criminal: arrests, criminal charges, police custody

Only set requires_escalation to true if there is a clear indication of immediate risk or crisis.
General legal questions about these topics (e.g. "what is a DVO?") do NOT require escalation.

Respond with JSON: {"requires_escalation": bool, "risk_category": string or null, "reasoning": string}`,
		query, orDefault(userState, "Unknown"))
}

var crisisOpenings = map[state.RiskCategory]string{
	state.RiskCriminal: "I understand you may be facing criminal charges or police involvement. " +
		"This is a serious matter that requires professional legal representation.",
	state.RiskFamilyViolence: "I'm concerned about your safety. If you're experiencing family violence, " +
		"please know that help is available and you don't have to face this alone.",
	state.RiskUrgentDeadline: "I can see you're dealing with an urgent legal deadline. " +
		"Time-sensitive legal matters require immediate professional attention.",
	state.RiskChildWelfare: "Matters involving children's safety and welfare are extremely serious. " +
		"It's important to get professional support right away.",
	state.RiskSuicide: "I'm really concerned about what you've shared. Your wellbeing matters, " +
		"and there are people who can help you through this difficult time.",
}

const (
	defaultOpening = "I want to make sure you get the right support for your situation."

	crisisClosing = "These services are free and confidential. They can provide the urgent, " +
		"professional support that I, as an AI assistant, cannot offer.\n\n" +
		"If you have other legal questions that aren't urgent safety matters, " +
		"I'm still here to help with general legal information."

	emergencyLine = "**Emergency** - 000\n  _If you or someone else is in immediate danger_"
)

// EscalationResponseStage ends a turn on crisis resources. The adaptive graph
// writes a category-specific opening; the conversational graph uses a
// shorter message.
type EscalationResponseStage struct {
	base
	events    events.Publisher
	resources *resources.Directory
	lite      bool
}

func NewEscalationResponse(d Deps) *EscalationResponseStage {
	d = d.withDefaults()
	return &EscalationResponseStage{base: newBase(EscalationResponse, d), events: d.Events, resources: d.Resources}
}

// NewCrisisResponse is the conversational variant.
func NewCrisisResponse(d Deps) *EscalationResponseStage {
	r := NewEscalationResponse(d)
	r.lite = true
	return r
}

func (s *EscalationResponseStage) Run(ctx context.Context, st *state.State, cfg graph.RunConfig) (state.Update, error) {
	cat := state.RiskNone
	var res []state.Resource
	if st.Safety != nil {
		cat = st.Safety.RiskCategory
		res = st.Safety.RecommendedResources
	}
	if len(st.CrisisResources) > 0 {
		res = st.CrisisResources
	}
	if len(res) == 0 && cat.Valid() {
		res = s.resources.For(cat, st.UserState)
	}

	if err := s.events.Publish(ctx, events.SafetyEscalated(st.SessionID, string(cat), st.UserState)); err != nil {
		s.logger.Error(s.module(), "failed to publish escalation", map[string]interface{}{
			"session_id": cfg.SessionID,
			"error":      err.Error(),
		})
	}

	var msg string
	if s.lite {
		msg = liteCrisisMessage(res)
	} else {
		msg = crisisMessage(cat, res)
	}
	return abandonIntake(st, state.Update{
		Stage:         EscalationResponse,
		Messages:      []state.Message{state.Assistant(msg)},
		SuggestLawyer: state.Ptr(cat == state.RiskCriminal),
	}), nil
}

func (s *EscalationResponseStage) Fallback(st *state.State, cause error) state.Update {
	return abandonIntake(st, state.Update{
		Stage:    EscalationResponse,
		Messages: []state.Message{state.Assistant(crisisMessage(state.RiskNone, nil))},
	})
}

// abandonIntake closes a brief intake interrupted by a crisis so the next
// turn is not taken as an answer to the pending question.
func abandonIntake(st *state.State, upd state.Update) state.Update {
	if st.Phase == state.PhaseAwaitingIntakeAnswer {
		upd.Event = state.EventIntakeFinished
		upd.Intake = &state.IntakePatch{Reset: true}
	}
	return upd
}

func formatResources(res []state.Resource) string {
	lines := make([]string, 0, len(res))
	for _, r := range res {
		line := "**" + r.Name + "**"
		if r.Phone != "" {
			line += " - " + r.Phone
		}
		if r.Description != "" {
			line += "\n  _" + r.Description + "_"
		}
		if r.URL != "" {
			line += "\n  " + r.URL
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return emergencyLine
	}
	return strings.Join(lines, "\n\n")
}

func crisisMessage(cat state.RiskCategory, res []state.Resource) string {
	opening, ok := crisisOpenings[cat]
	if !ok {
		opening = defaultOpening
	}
	return strings.Join([]string{
		opening,
		"",
		"**I strongly recommend contacting these services for immediate help:**",
		"",
		formatResources(res),
		"",
		"---",
		"",
		crisisClosing,
	}, "\n")
}

func liteCrisisMessage(res []state.Resource) string {
	return "I'm concerned about what you've shared. Your wellbeing and safety come first.\n\n" +
		"**Please contact these services for immediate support:**\n\n" +
		formatResources(res) +
		"\n\n---\n\n" + crisisClosing
}
