package service

import (
	"context"
	"errors"

	"legal-assistant-be/internal/dto"
	"legal-assistant-be/internal/pkg/logger"
	"legal-assistant-be/pkg/legal/session"
	"legal-assistant-be/pkg/legal/state"

	"github.com/gofiber/fiber/v2"
)

// LogSource is satisfied by *logger.ZapLogger.
type LogSource interface {
	GetLogs(filter logger.LogFilter) ([]logger.LogEntry, error)
}

type IOperatorService interface {
	GetSession(ctx context.Context, id string) (*dto.SessionDetailResponse, error)
	DeleteSession(ctx context.Context, id string) error
	GetLogs(ctx context.Context, q dto.LogQuery) ([]*dto.LogListResponse, error)
}

type operatorService struct {
	sessions *session.Manager
	logs     LogSource
	logger   logger.ILogger
}

func NewOperatorService(sessions *session.Manager, logs LogSource, log logger.ILogger) IOperatorService {
	return &operatorService{sessions: sessions, logs: logs, logger: log}
}

func (s *operatorService) GetSession(ctx context.Context, id string) (*dto.SessionDetailResponse, error) {
	st, err := s.sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		return nil, err
	}
	turns := 0
	for _, m := range st.Messages {
		if m.Role == state.RoleHuman {
			turns++
		}
	}
	return &dto.SessionDetailResponse{
		SessionId: st.SessionID,
		Phase:     string(st.Phase),
		Turns:     turns,
		State:     st,
	}, nil
}

func (s *operatorService) DeleteSession(ctx context.Context, id string) error {
	if err := s.sessions.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("OperatorService", "session deleted", map[string]interface{}{"session_id": id})
	return nil
}

func (s *operatorService) GetLogs(_ context.Context, q dto.LogQuery) ([]*dto.LogListResponse, error) {
	entries, err := s.logs.GetLogs(logger.LogFilter{
		Level:     q.Level,
		Module:    q.Module,
		SessionID: q.SessionId,
		Limit:     q.Limit,
		Offset:    q.Offset,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*dto.LogListResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, &dto.LogListResponse{
			Id:        e.Id,
			Level:     e.Level,
			Module:    e.Module,
			Message:   e.Message,
			Timestamp: e.Timestamp,
			Details:   e.Details,
		})
	}
	return out, nil
}
