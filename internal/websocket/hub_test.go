package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"legal-assistant-be/pkg/legal/graph"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attach(h *Hub, key string, buf int) *Client {
	c := &Client{Hub: h, Key: key, Send: make(chan []byte, buf)}
	h.register(c)
	return c
}

func frame(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case raw := <-c.Send:
		var m Message
		require.NoError(t, json.Unmarshal(raw, &m))
		return m
	default:
		t.Fatal("no frame queued")
		return Message{}
	}
}

func TestProgressGoesToSessionClientsOnly(t *testing.T) {
	h := NewHub(nil, nil)
	mine := attach(h, "s1", 4)
	other := attach(h, "s2", 4)
	cfg := graph.RunConfig{SessionID: "s1"}

	h.StageFinished(cfg, "legal_elements", "legal_elements", 1500*time.Millisecond, errors.New("timeout"))

	m := frame(t, mine)
	assert.Equal(t, "stage_finished", m.Type)
	assert.Equal(t, "s1", m.SessionID)
	assert.Equal(t, "legal_elements", m.Data["stage"])
	assert.Equal(t, true, m.Data["fell_back"])
	assert.EqualValues(t, 1500, m.Data["duration_ms"])
	assert.Len(t, other.Send, 0)
}

func TestProgressWithoutSessionIsDropped(t *testing.T) {
	h := NewHub(nil, nil)
	c := attach(h, "", 4)

	h.RunFinished(graph.RunConfig{}, "adaptive", "simple_response", false)

	assert.Len(t, c.Send, 0)
}

func TestFullBufferDoesNotBlock(t *testing.T) {
	h := NewHub(nil, nil)
	c := attach(h, "s1", 1)
	cfg := graph.RunConfig{SessionID: "s1"}

	done := make(chan struct{})
	go func() {
		h.Routed(cfg, "safety_gate", "safety", "continue")
		h.Routed(cfg, "issue_identification", "path", "simple")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("send blocked on a full client")
	}
	assert.Equal(t, "continue", frame(t, c).Data["label"])
}

func TestUnregisterClosesAndForgets(t *testing.T) {
	h := NewHub(nil, nil)
	c := attach(h, "s1", 1)
	require.Equal(t, 1, h.Clients("s1"))

	h.unregister(c)

	assert.Equal(t, 0, h.Clients("s1"))
	_, open := <-c.Send
	assert.False(t, open)
}

func TestUnreachableRedisDoesNotSlowProgress(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "10.255.255.1:6379", DialTimeout: 5 * time.Second, MaxRetries: -1})
	defer rdb.Close()
	h := NewHub(rdb, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.publish(ctx)
	c := attach(h, "s1", 8)
	cfg := graph.RunConfig{SessionID: "s1"}

	started := time.Now()
	h.StageStarted(cfg, "safety_gate", "safety_gate")
	h.StageFinished(cfg, "safety_gate", "safety_gate", time.Millisecond, nil)
	took := time.Since(started)

	assert.Less(t, took, 50*time.Millisecond)
	assert.Equal(t, "stage_started", frame(t, c).Type)
	assert.Equal(t, "stage_finished", frame(t, c).Type)
}

func TestFullOutboxDropsClusterFrames(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "10.255.255.1:6379"})
	defer rdb.Close()
	h := NewHub(rdb, nil)
	cfg := graph.RunConfig{SessionID: "s1"}

	done := make(chan struct{})
	go func() {
		for i := 0; i < outboxSize+10; i++ {
			h.Routed(cfg, "safety_gate", "safety", "continue")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("send blocked on a full outbox")
	}
	assert.Len(t, h.outbox, outboxSize)
}
