package service

import (
	"context"
	"errors"

	"legal-assistant-be/internal/dto"
	"legal-assistant-be/pkg/legal/assistant"
	"legal-assistant-be/pkg/legal/state"

	"github.com/gofiber/fiber/v2"
)

type ILegalService interface {
	ChatTurn(ctx context.Context, req dto.ChatTurnRequest) (*dto.ChatTurnResponse, error)
	Analyze(ctx context.Context, req dto.AnalysisRequest) (*dto.AnalysisResponse, error)
}

type legalService struct {
	assistant *assistant.Assistant
}

func NewLegalService(a *assistant.Assistant) ILegalService {
	return &legalService{assistant: a}
}

func (s *legalService) ChatTurn(ctx context.Context, req dto.ChatTurnRequest) (*dto.ChatTurnResponse, error) {
	view, err := s.assistant.Chat(ctx, assistant.ChatRequest{
		SessionID:   req.SessionId,
		Message:     req.Message,
		UserState:   req.UserState,
		DocumentURL: req.DocumentUrl,
		UIMode:      state.UIMode(req.UiMode),
	})
	if err != nil {
		return nil, mapAssistantError(err)
	}
	return dto.NewChatTurnResponse(view), nil
}

func (s *legalService) Analyze(ctx context.Context, req dto.AnalysisRequest) (*dto.AnalysisResponse, error) {
	res, err := s.assistant.Analyze(ctx, assistant.AnalyzeRequest{
		Query:       req.Query,
		UserState:   req.UserState,
		DocumentURL: req.DocumentUrl,
	})
	if err != nil {
		return nil, mapAssistantError(err)
	}
	return &dto.AnalysisResponse{
		SessionId:       res.SessionID,
		Response:        res.Response,
		Path:            string(res.Path),
		StagesCompleted: res.StagesCompleted,
		Fallbacks:       res.Fallbacks,
		BriefId:         res.BriefID,
	}, nil
}

func mapAssistantError(err error) error {
	switch {
	case errors.Is(err, assistant.ErrEmptyMessage):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fiber.NewError(fiber.StatusServiceUnavailable, "request cancelled before the turn finished")
	}
	return fiber.NewError(fiber.StatusServiceUnavailable, "The assistant could not finish this turn. Please try again.")
}
