package state

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func Human(content string) Message     { return Message{Role: RoleHuman, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Mode is the conversational mode picked for a turn.
type Mode string

const (
	ModeChat  Mode = "chat"
	ModeBrief Mode = "brief"
)

// UIMode is the client's chat persona: quick answers or a guided
// consultation. It sticks to the session until the client sends another.
type UIMode string

const (
	UIModeChat     UIMode = "chat"
	UIModeAnalysis UIMode = "analysis"
)

func (m UIMode) Valid() bool { return m == UIModeChat || m == UIModeAnalysis }

// SafetyResult is the lightweight safety verdict of the conversational graph.
type SafetyResult string

const (
	SafetyUnknown  SafetyResult = "unknown"
	SafetySafe     SafetyResult = "safe"
	SafetyEscalate SafetyResult = "escalate"
)

type Path string

const (
	PathEscalate Path = "escalate"
	PathSimple   Path = "simple"
	PathComplex  Path = "complex"
)

type RoutingDecision struct {
	Path       Path     `json:"path"`
	Reasoning  string   `json:"reasoning"`
	SkipStages []string `json:"skip_stages"`
}

// Inbound carries what the caller sent with this turn.
type Inbound struct {
	Text        string `json:"text"`
	UserState   string `json:"user_state,omitempty"`
	DocumentURL string `json:"document_url,omitempty"`
	UIMode      UIMode `json:"ui_mode,omitempty"`
}

// BriefIntake is the incremental brief-gathering sub-state.
type BriefIntake struct {
	Facts            *ExtractedFacts `json:"facts,omitempty"`
	MissingInfo      []string        `json:"missing_info"`
	UnknownInfo      []string        `json:"unknown_info"`
	Complete         bool            `json:"complete"`
	NeedsFullIntake  bool            `json:"needs_full_intake"`
	PendingQuestions []string        `json:"pending_questions"`
	QuestionIndex    int             `json:"current_question_index"`
	TotalQuestions   int             `json:"total_questions"`
	QuestionsAsked   int             `json:"questions_asked"`
}

type OfferDecision string

const (
	OfferNone     OfferDecision = ""
	OfferAccepted OfferDecision = "accepted"
	OfferDeclined OfferDecision = "declined"
)

// AnalysisOffer tracks the deep-analysis opt-in.
type AnalysisOffer struct {
	Offered bool `json:"analysis_offered"`
	// PendingResponse mirrors Phase == PhaseAwaitingOfferReply and is kept in
	// sync by Merge.
	PendingResponse bool            `json:"analysis_pending_response"`
	Decision        OfferDecision   `json:"decision,omitempty"`
	Result          *AnalysisResult `json:"analysis_result,omitempty"`
}

// State is threaded through every stage of a run and persisted between turns.
type State struct {
	// session context
	SessionID   string `json:"session_id"`
	UserState   string `json:"user_state,omitempty"`
	DocumentURL string `json:"uploaded_document_url,omitempty"`
	UIMode      UIMode `json:"ui_mode,omitempty"`

	Messages []Message `json:"messages"`

	// routing and control
	CurrentStage    string           `json:"current_stage"`
	StagesCompleted []string         `json:"stages_completed"`
	Routing         *RoutingDecision `json:"routing_decision,omitempty"`

	// stage outputs, write-once per run
	Safety       *SafetyAssessment       `json:"safety_assessment,omitempty"`
	Issue        *IssueClassification    `json:"issue_classification,omitempty"`
	Jurisdiction *JurisdictionResult     `json:"jurisdiction_result,omitempty"`
	Facts        *FactStructure          `json:"fact_structure,omitempty"`
	Elements     *ElementsAnalysis       `json:"elements_analysis,omitempty"`
	Precedents   *PrecedentAnalysis      `json:"precedent_analysis,omitempty"`
	Risk         *RiskAssessment         `json:"risk_assessment,omitempty"`
	Strategy     *StrategyRecommendation `json:"strategy_recommendation,omitempty"`
	Brief        *EscalationBrief        `json:"escalation_brief,omitempty"`

	// turn-local
	Inbound         Inbound      `json:"inbound"`
	CurrentQuery    string       `json:"current_query"`
	Mode            Mode         `json:"mode"`
	FirstMessage    bool         `json:"is_first_message"`
	SafetyResult    SafetyResult `json:"safety_result"`
	QuickReplies    []string     `json:"quick_replies"`
	SuggestBrief    bool         `json:"suggest_brief"`
	SuggestLawyer   bool         `json:"suggest_lawyer"`
	CrisisResources []Resource   `json:"crisis_resources,omitempty"`
	Readiness       float64      `json:"analysis_readiness"`
	Error           string       `json:"error,omitempty"`

	Intake BriefIntake   `json:"brief_intake"`
	Offer  AnalysisOffer `json:"offer"`
	Phase  Phase         `json:"phase"`
}

// New returns an empty state for a fresh session.
func New(sessionID string) *State {
	return &State{
		SessionID: sessionID,
		Mode:      ModeChat,
		Phase:     PhaseIdle,
	}
}

// BeginRun clears run-scoped fields before a new turn executes. Session
// fields, history and the sub-protocol states survive.
func (s *State) BeginRun(in Inbound) {
	s.CurrentStage = ""
	s.StagesCompleted = nil
	s.Routing = nil

	s.Safety = nil
	s.Issue = nil
	s.Jurisdiction = nil
	s.Facts = nil
	s.Elements = nil
	s.Precedents = nil
	s.Risk = nil
	s.Strategy = nil
	s.Brief = nil

	s.Inbound = in
	s.CurrentQuery = ""
	s.Mode = ModeChat
	s.SafetyResult = SafetyUnknown
	s.QuickReplies = nil
	s.SuggestBrief = false
	s.SuggestLawyer = false
	s.CrisisResources = nil
	s.Error = ""
	if s.Phase == "" {
		s.Phase = PhaseIdle
	}
}

// LatestHumanMessage returns the most recent user message.
func (s *State) LatestHumanMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleHuman {
			return s.Messages[i].Content
		}
	}
	return ""
}

// HasDocument reports whether a document was attached this turn.
func (s *State) HasDocument() bool {
	return strings.TrimSpace(s.DocumentURL) != ""
}

// Completed reports whether a stage already ran in this run.
func (s *State) Completed(stage string) bool {
	for _, name := range s.StagesCompleted {
		if name == stage {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (s *State) Clone() (*State, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("clone state: %w", err)
	}
	var out State
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("clone state: %w", err)
	}
	return &out, nil
}

// FormatConversation renders the last max messages as a transcript.
func (s *State) FormatConversation(max int) string {
	msgs := s.Messages
	if max > 0 && len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		content := m.Content
		if len(content) > 1000 {
			content = content[:1000] + "..."
		}
		if m.Role == RoleHuman {
			parts = append(parts, "User: "+content)
		} else {
			parts = append(parts, "Assistant: "+content)
		}
	}
	return strings.Join(parts, "\n\n")
}
