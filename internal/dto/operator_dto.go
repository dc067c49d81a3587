package dto

import "legal-assistant-be/pkg/legal/state"

type SessionDetailResponse struct {
	SessionId string       `json:"session_id"`
	Phase     string       `json:"phase"`
	Turns     int          `json:"turns"`
	State     *state.State `json:"state"`
}

type LogQuery struct {
	Level     string `query:"level" validate:"omitempty,oneof=debug info warn error"`
	Module    string `query:"module"`
	SessionId string `query:"session_id"`
	Limit     int    `query:"limit" validate:"omitempty,min=1,max=500"`
	Offset    int    `query:"offset" validate:"omitempty,min=0"`
}

// Log IDs are hashes of the raw line, not UUIDs.
type LogListResponse struct {
	Id        string                 `json:"id"`
	Level     string                 `json:"level"`
	Module    string                 `json:"module"`
	Message   string                 `json:"message"`
	Timestamp string                 `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}
