package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"legal-assistant-be/internal/pkg/logger"
	"legal-assistant-be/internal/pkg/mailer"
	"legal-assistant-be/internal/websocket"
	"legal-assistant-be/pkg/events"
	"legal-assistant-be/pkg/legal/archive"
)

// maxHandoffAttempts equals the JetStream consumer MaxDeliver.
const maxHandoffAttempts = 5

// Notifier pushes frames to websocket listeners.
type Notifier interface {
	Send(key string, msg websocket.Message)
}

type IHandoffService interface {
	Start() error
	Handle(ctx context.Context, ev events.Event) error
}

// HandoffConfig wires the optional sinks. A nil sink is skipped.
type HandoffConfig struct {
	Subscriber  events.Subscriber
	Mailer      mailer.IEmailService
	IntakeEmail string
	Archive     *archive.Archive
	Notifier    Notifier
	Logger      logger.ILogger
}

type handoffService struct {
	cfg HandoffConfig

	mu       sync.Mutex
	attempts map[string]int
}

func NewHandoffService(cfg HandoffConfig) IHandoffService {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	return &handoffService{cfg: cfg, attempts: make(map[string]int)}
}

// Start subscribes one durable consumer per event type.
func (s *handoffService) Start() error {
	if err := s.cfg.Subscriber.Subscribe(events.TypeBriefGenerated, "handoff-brief", s.Handle); err != nil {
		return fmt.Errorf("subscribe briefs: %w", err)
	}
	if err := s.cfg.Subscriber.Subscribe(events.TypeSafetyEscalated, "handoff-safety", s.Handle); err != nil {
		return fmt.Errorf("subscribe safety alerts: %w", err)
	}
	return nil
}

func (s *handoffService) Handle(ctx context.Context, ev events.Event) error {
	switch ev.EventType() {
	case events.TypeBriefGenerated:
		return s.retry(ev, func() error { return s.handleBrief(ctx, ev.Payload()) })
	case events.TypeSafetyEscalated:
		s.handleSafety(ev)
		return nil
	}
	return nil
}

// retry returns err so the bus redelivers, until the event has failed
// maxHandoffAttempts times; then it is logged and dropped.
func (s *handoffService) retry(ev events.Event, fn func() error) error {
	key := ev.EventType() + ":" + str(ev.Payload(), "session_id") + ":" + str(ev.Payload(), "brief_id")
	err := fn()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.attempts, key)
		return nil
	}
	s.attempts[key]++
	if s.attempts[key] >= maxHandoffAttempts {
		delete(s.attempts, key)
		s.cfg.Logger.Error("HandoffService", "giving up on event", map[string]interface{}{
			"type":  ev.EventType(),
			"key":   key,
			"error": err.Error(),
		})
		return nil
	}
	return err
}

func (s *handoffService) handleBrief(ctx context.Context, data map[string]interface{}) error {
	sessionID := str(data, "session_id")
	briefID := str(data, "brief_id")
	if sessionID == "" || briefID == "" {
		s.cfg.Logger.Warn("HandoffService", "brief event without ids", nil)
		return nil
	}
	brief, err := asMap(data["brief"])
	if err != nil {
		s.cfg.Logger.Warn("HandoffService", "brief payload unreadable", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return nil
	}
	urgency := str(data, "urgency")
	markdown := RenderBriefMarkdown(briefID, urgency, brief)

	if s.cfg.Archive != nil {
		key, err := s.cfg.Archive.Save(ctx, archive.Record{
			SessionID: sessionID,
			BriefID:   briefID,
			Urgency:   urgency,
			Brief:     brief,
			Markdown:  markdown,
		})
		if err != nil {
			return err
		}
		s.cfg.Logger.Info("HandoffService", "brief archived", map[string]interface{}{
			"session_id": sessionID,
			"key":        key,
		})
	}

	if s.cfg.Mailer != nil && s.cfg.IntakeEmail != "" {
		err := s.cfg.Mailer.SendBrief(s.cfg.IntakeEmail, mailer.BriefMail{
			SessionID: sessionID,
			BriefID:   briefID,
			Urgency:   urgency,
			Summary:   str(brief, "executive_summary"),
			Body:      markdown,
		})
		if err != nil {
			return fmt.Errorf("mail brief %s: %w", briefID, err)
		}
		s.cfg.Logger.Info("HandoffService", "brief sent to intake", map[string]interface{}{
			"session_id": sessionID,
			"brief_id":   briefID,
		})
	}
	return nil
}

func (s *handoffService) handleSafety(ev events.Event) {
	data := ev.Payload()
	sessionID := str(data, "session_id")
	s.cfg.Logger.Warn("HandoffService", "safety escalation", map[string]interface{}{
		"session_id":    sessionID,
		"risk_category": str(data, "risk_category"),
	})
	if s.cfg.Notifier == nil {
		return
	}
	s.cfg.Notifier.Send(websocket.OperatorKey, websocket.Message{
		Type:      "safety_alert",
		SessionID: sessionID,
		Data: map[string]interface{}{
			"risk_category": str(data, "risk_category"),
			"jurisdiction":  str(data, "jurisdiction"),
		},
		At: ev.Timestamp(),
	})
}

// RenderBriefMarkdown lays a brief out as headed sections: the summary first,
// then every other field in key order.
func RenderBriefMarkdown(briefID, urgency string, brief map[string]interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Client Brief %s\n\n", briefID)
	if urgency != "" {
		fmt.Fprintf(&b, "**Urgency:** %s\n\n", urgency)
	}
	if summary := str(brief, "executive_summary"); summary != "" {
		fmt.Fprintf(&b, "## Executive Summary\n\n%s\n\n", summary)
	}

	keys := make([]string, 0, len(brief))
	for k := range brief {
		switch k {
		case "executive_summary", "urgency_level", "brief_id":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		section := renderValue(brief[k])
		if section == "" {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", heading(k), section)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func renderValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case []interface{}:
		var lines []string
		for _, item := range val {
			if s := renderValue(item); s != "" {
				lines = append(lines, "- "+strings.ReplaceAll(s, "\n", " "))
			}
		}
		return strings.Join(lines, "\n")
	case map[string]interface{}:
		raw, _ := json.MarshalIndent(val, "", "  ")
		return "```json\n" + string(raw) + "\n```"
	default:
		return fmt.Sprint(val)
	}
}

func heading(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// asMap normalises a payload value that is a struct in process and a
// decoded JSON object after crossing a bus.
func asMap(v interface{}) (map[string]interface{}, error) {
	if m, ok := v.(map[string]interface{}); ok {
		return m, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func str(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
