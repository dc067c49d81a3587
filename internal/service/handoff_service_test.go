package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"legal-assistant-be/internal/pkg/mailer"
	"legal-assistant-be/internal/websocket"
	"legal-assistant-be/pkg/events"
	"legal-assistant-be/pkg/legal/archive"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.BriefMail
	to   []string
	err  error
}

func (f *fakeMailer) SendBrief(to string, b mailer.BriefMail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.to = append(f.to, to)
	f.sent = append(f.sent, b)
	return nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeNotifier struct {
	mu   sync.Mutex
	keys []string
	msgs []websocket.Message
}

func (f *fakeNotifier) Send(key string, msg websocket.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.msgs = append(f.msgs, msg)
}

type sampleBrief struct {
	ExecutiveSummary string   `json:"executive_summary"`
	UrgencyLevel     string   `json:"urgency_level"`
	KeyFacts         []string `json:"key_facts"`
}

func briefEvent() events.BaseEvent {
	return events.BriefGenerated("sess-1", "brief-abc", "urgent", sampleBrief{
		ExecutiveSummary: "Tenant's bond withheld after lease end.",
		UrgencyLevel:     "urgent",
		KeyFacts:         []string{"Lease ended 1 March", "Bond of $2000"},
	})
}

func TestHandleBriefArchivesAndMails(t *testing.T) {
	store := archive.NewMemoryStore()
	m := &fakeMailer{}
	svc := NewHandoffService(HandoffConfig{
		Mailer:      m,
		IntakeEmail: "intake@example.org",
		Archive:     archive.New(store),
	})

	require.NoError(t, svc.Handle(context.Background(), briefEvent()))

	rec, err := archive.New(store).Load(context.Background(), "sess-1", "brief-abc")
	require.NoError(t, err)
	assert.Equal(t, "urgent", rec.Urgency)
	assert.Equal(t, "Tenant's bond withheld after lease end.", rec.Brief["executive_summary"])

	md, err := store.Get(context.Background(), "briefs/sess-1/brief-abc.md")
	require.NoError(t, err)
	assert.Contains(t, string(md), "## Executive Summary")
	assert.Contains(t, string(md), "## Key Facts\n\n- Lease ended 1 March\n- Bond of $2000")

	require.Equal(t, 1, m.count())
	assert.Equal(t, "intake@example.org", m.to[0])
	assert.Equal(t, "Tenant's bond withheld after lease end.", m.sent[0].Summary)
	assert.Equal(t, "brief-abc", m.sent[0].BriefID)
}

func TestHandleBriefWithoutSinksIsNoop(t *testing.T) {
	svc := NewHandoffService(HandoffConfig{})

	assert.NoError(t, svc.Handle(context.Background(), briefEvent()))
}

func TestHandleBriefGivesUpAfterMaxAttempts(t *testing.T) {
	m := &fakeMailer{err: errors.New("smtp down")}
	svc := NewHandoffService(HandoffConfig{Mailer: m, IntakeEmail: "intake@example.org"})
	ev := briefEvent()

	for i := 1; i < maxHandoffAttempts; i++ {
		assert.Error(t, svc.Handle(context.Background(), ev), "attempt %d", i)
	}
	assert.NoError(t, svc.Handle(context.Background(), ev))
}

func TestHandleSafetyAlertsOperators(t *testing.T) {
	n := &fakeNotifier{}
	svc := NewHandoffService(HandoffConfig{Notifier: n})

	require.NoError(t, svc.Handle(context.Background(), events.SafetyEscalated("sess-9", "family_violence", "NSW")))

	require.Len(t, n.msgs, 1)
	assert.Equal(t, websocket.OperatorKey, n.keys[0])
	assert.Equal(t, "safety_alert", n.msgs[0].Type)
	assert.Equal(t, "sess-9", n.msgs[0].SessionID)
	assert.Equal(t, "family_violence", n.msgs[0].Data["risk_category"])
}

func TestHandoffOverChannelBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	defer pubSub.Close()

	m := &fakeMailer{}
	n := &fakeNotifier{}
	svc := NewHandoffService(HandoffConfig{
		Subscriber:  events.NewChannelSubscriber(ctx, pubSub, "legal_events", nil),
		Mailer:      m,
		IntakeEmail: "intake@example.org",
		Notifier:    n,
	})
	require.NoError(t, svc.Start())

	pub := events.NewChannelPublisher(pubSub, "legal_events")
	require.NoError(t, pub.Publish(ctx, briefEvent()))
	require.NoError(t, pub.Publish(ctx, events.SafetyEscalated("sess-2", "suicide_self_harm", "VIC")))

	require.Eventually(t, func() bool { return m.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		n.mu.Lock()
		defer n.mu.Unlock()
		return len(n.msgs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// each consumer filters by type, so nothing is handled twice
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, m.count())
}
