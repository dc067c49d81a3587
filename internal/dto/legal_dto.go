package dto

import "legal-assistant-be/pkg/legal/state"

type ChatTurnRequest struct {
	SessionId   string `json:"session_id" validate:"omitempty,max=64"`
	Message     string `json:"message" validate:"required,max=8000"`
	UserState   string `json:"user_state" validate:"omitempty,oneof=NSW VIC QLD SA WA TAS NT ACT FEDERAL"`
	DocumentUrl string `json:"document_url" validate:"omitempty,url"`
	UiMode      string `json:"ui_mode" validate:"omitempty,oneof=chat analysis"`
}

type ChatMessageDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatTurnResponse struct {
	SessionId         string           `json:"session_id"`
	Messages          []ChatMessageDTO `json:"messages"`
	QuickReplies      []string         `json:"quick_replies"`
	SuggestBrief      bool             `json:"suggest_brief"`
	SuggestLawyer     bool             `json:"suggest_lawyer"`
	AnalysisReadiness float64          `json:"analysis_readiness"`
	Phase             string           `json:"phase"`
}

type AnalysisRequest struct {
	Query       string `json:"query" validate:"required,max=8000"`
	UserState   string `json:"user_state" validate:"omitempty,oneof=NSW VIC QLD SA WA TAS NT ACT FEDERAL"`
	DocumentUrl string `json:"document_url" validate:"omitempty,url"`
}

type AnalysisResponse struct {
	SessionId       string   `json:"session_id"`
	Response        string   `json:"response"`
	Path            string   `json:"path"`
	StagesCompleted []string `json:"stages_completed"`
	Fallbacks       []string `json:"fallbacks,omitempty"`
	BriefId         string   `json:"brief_id,omitempty"`
}

// NewChatTurnResponse copies the turn view into the wire shape.
func NewChatTurnResponse(v state.TurnView) *ChatTurnResponse {
	msgs := make([]ChatMessageDTO, 0, len(v.Messages))
	for _, m := range v.Messages {
		msgs = append(msgs, ChatMessageDTO{Role: string(m.Role), Content: m.Content})
	}
	replies := v.QuickReplies
	if replies == nil {
		replies = []string{}
	}
	return &ChatTurnResponse{
		SessionId:         v.SessionID,
		Messages:          msgs,
		QuickReplies:      replies,
		SuggestBrief:      v.SuggestBrief,
		SuggestLawyer:     v.SuggestLawyer,
		AnalysisReadiness: v.AnalysisReadiness,
		Phase:             string(v.Phase),
	}
}
