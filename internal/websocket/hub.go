package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"legal-assistant-be/internal/pkg/logger"
	"legal-assistant-be/pkg/legal/graph"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	clusterChannel = "legal_progress"
	// OperatorKey receives alerts for every session.
	OperatorKey = "operators"

	outboxSize     = 256
	publishTimeout = 2 * time.Second
)

// Message is one frame pushed to subscribers.
type Message struct {
	Type      string                 `json:"type"`
	SessionID string                 `json:"session_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	At        time.Time              `json:"at"`
}

type clusterEnvelope struct {
	Origin string          `json:"origin"`
	Key    string          `json:"key"`
	Frame  json.RawMessage `json:"frame"`
}

// Hub fans messages out to websocket clients keyed by session id. With redis
// configured, messages published on one instance reach clients connected to
// any instance.
type Hub struct {
	mu      sync.RWMutex
	clients map[string][]*Client

	rdb    *redis.Client
	outbox chan []byte
	origin string
	logger logger.ILogger
}

var _ graph.Observer = (*Hub)(nil)

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Hub{
		clients: make(map[string][]*Client),
		rdb:     rdb,
		outbox:  make(chan []byte, outboxSize),
		origin:  uuid.NewString(),
		logger:  log,
	}
}

// Run relays cluster messages in both directions until ctx ends. Without
// redis it returns at once.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb == nil {
		return
	}
	go h.publish(ctx)

	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env clusterEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				h.logger.Warn("Hub", "unreadable cluster message", map[string]interface{}{"error": err.Error()})
				continue
			}
			if env.Origin == h.origin {
				continue
			}
			h.deliver(env.Key, env.Frame)
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.Key] = append(h.clients[c.Key], c)
	h.mu.Unlock()
	h.logger.Info("Hub", "client registered", map[string]interface{}{"key": c.Key})
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.clients[c.Key]
	for i, existing := range clients {
		if existing == c {
			h.clients[c.Key] = append(clients[:i], clients[i+1:]...)
			close(c.Send)
			break
		}
	}
	if len(h.clients[c.Key]) == 0 {
		delete(h.clients, c.Key)
	}
}

// Clients reports how many clients listen on key.
func (h *Hub) Clients(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[key])
}

// Send pushes msg to the clients of key, here and on other instances.
func (h *Hub) Send(key string, msg Message) {
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.deliver(key, frame)

	if h.rdb == nil {
		return
	}
	payload, err := json.Marshal(clusterEnvelope{Origin: h.origin, Key: key, Frame: frame})
	if err != nil {
		return
	}
	select {
	case h.outbox <- payload:
	default:
		h.logger.Warn("Hub", "cluster outbox full, dropping frame", map[string]interface{}{"key": key})
	}
}

// publish drains the outbox so a slow or unreachable redis never stalls Send.
func (h *Hub) publish(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-h.outbox:
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			err := h.rdb.Publish(pctx, clusterChannel, payload).Err()
			cancel()
			if err != nil {
				h.logger.Warn("Hub", "cluster publish failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

// deliver never blocks: a client whose buffer is full misses the frame.
func (h *Hub) deliver(key string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients[key] {
		select {
		case c.Send <- frame:
		default:
			h.logger.Warn("Hub", "client buffer full, dropping frame", map[string]interface{}{"key": key})
		}
	}
}

func (h *Hub) StageStarted(cfg graph.RunConfig, node graph.NodeID, stage string) {
	h.progress(cfg, "stage_started", map[string]interface{}{"node": string(node), "stage": stage})
}

func (h *Hub) StageFinished(cfg graph.RunConfig, node graph.NodeID, stage string, took time.Duration, cause error) {
	h.progress(cfg, "stage_finished", map[string]interface{}{
		"node":        string(node),
		"stage":       stage,
		"duration_ms": took.Milliseconds(),
		"fell_back":   cause != nil,
	})
}

func (h *Hub) Routed(cfg graph.RunConfig, node graph.NodeID, router, label string) {
	h.progress(cfg, "routed", map[string]interface{}{"node": string(node), "router": router, "label": label})
}

func (h *Hub) RunFinished(cfg graph.RunConfig, g string, terminal graph.NodeID, suspended bool) {
	h.progress(cfg, "run_finished", map[string]interface{}{"graph": g, "terminal": string(terminal), "suspended": suspended})
}

func (h *Hub) progress(cfg graph.RunConfig, typ string, data map[string]interface{}) {
	if cfg.SessionID == "" {
		return
	}
	h.Send(cfg.SessionID, Message{Type: typ, SessionID: cfg.SessionID, Data: data})
}
