package bootstrap

import (
	"context"
	"fmt"
	"log"

	"legal-assistant-be/internal/config"
	"legal-assistant-be/internal/controller"
	"legal-assistant-be/internal/handler"
	"legal-assistant-be/internal/metrics"
	"legal-assistant-be/internal/pkg/logger"
	"legal-assistant-be/internal/pkg/mailer"
	"legal-assistant-be/internal/repository/implementation"
	"legal-assistant-be/internal/service"
	"legal-assistant-be/internal/websocket"
	"legal-assistant-be/pkg/database"
	"legal-assistant-be/pkg/embedding"
	"legal-assistant-be/pkg/events"
	"legal-assistant-be/pkg/legal/archive"
	"legal-assistant-be/pkg/legal/assistant"
	"legal-assistant-be/pkg/legal/casedb"
	"legal-assistant-be/pkg/legal/document"
	"legal-assistant-be/pkg/legal/graph"
	"legal-assistant-be/pkg/legal/resources"
	"legal-assistant-be/pkg/legal/router"
	"legal-assistant-be/pkg/legal/search"
	"legal-assistant-be/pkg/legal/session"
	"legal-assistant-be/pkg/legal/stage"
	"legal-assistant-be/pkg/llm/factory"
	pktNats "legal-assistant-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const eventTopic = "legal_events"

type Container struct {
	// Controllers
	LegalController    controller.ILegalController
	OperatorController controller.IOperatorController
	SystemController   controller.ISystemController
	ProgressHandler    *handler.ProgressHandler

	// Background services, started by main
	HandoffService service.IHandoffService
	WebSocketHub   *websocket.Hub

	// Assistant is exposed for the CLI, which skips HTTP.
	Assistant *assistant.Assistant
	Logger    *logger.ZapLogger

	closers []func() error
}

// NewContainer wires every collaborator from cfg. Optional infrastructure
// (postgres, redis, NATS, SMTP, minio) is skipped with a warning when it is
// not configured or not reachable.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{}
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	if cfg.App.QuietConsole {
		sysLogger = logger.NewIsolatedLogger(cfg.App.LogFilePath)
	}
	c.Logger = sysLogger
	c.closers = append(c.closers, sysLogger.Sync)

	// 1. Policy
	policy, err := config.LoadPolicy(cfg.Orchestrator.PolicyFile)
	if err != nil {
		return nil, err
	}

	// 2. Model
	llmProvider, err := factory.NewLLMProvider(ctx, factory.Settings{
		Provider: cfg.Ai.LLMProvider,
		Model:    cfg.Ai.LLMModel,
		BaseURL:  llmBaseURL(cfg),
		APIKey:   llmAPIKey(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 3. Infrastructure
	var db *gorm.DB
	if cfg.Database.Connection != "" {
		db, err = database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			log.Printf("[WARN] Postgres unavailable: %v", err)
			db = nil
		}
	}
	rdb := newRedis(ctx, cfg.App.RedisURL)
	if rdb != nil {
		c.closers = append(c.closers, rdb.Close)
	}

	searcher, err := newSearcher(cfg, db, sysLogger)
	if err != nil {
		return nil, err
	}

	publisher, subscriber := c.newEventBus(ctx, cfg, sysLogger)

	store, err := c.newSessionStore(cfg, db, rdb)
	if err != nil {
		return nil, err
	}

	// 4. Orchestration
	wsHub := websocket.NewHub(rdb, sysLogger)
	c.WebSocketHub = wsHub

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	exec := newExecutor(cfg, policy, sysLogger, metrics.New(registry), wsHub)

	deps := stage.Deps{
		LLM:        llmProvider,
		Logger:     sysLogger,
		Search:     searcher,
		Cases:      casedb.Default(),
		Resources:  resources.Default(),
		Documents:  document.NewFetcher(cfg.Orchestrator.AllowedHosts, cfg.Orchestrator.MaxDocBytes),
		Events:     publisher,
		Complexity: router.NewComplexityClassifier(llmProvider, sysLogger, policy.Complexity),
		Models:     policy.Models,

		MaxIntakeQuestions: policy.MaxIntakeQuestions,
	}
	sessions := session.NewManager(store, sysLogger)
	legalAssistant, err := assistant.New(deps, sessions, exec, assistant.Options{ReadinessThreshold: policy.ReadinessThreshold})
	if err != nil {
		return nil, fmt.Errorf("build assistant: %w", err)
	}
	c.Assistant = legalAssistant

	// 5. Handoff
	handoff := service.HandoffConfig{
		Subscriber:  subscriber,
		IntakeEmail: cfg.SMTP.IntakeEmail,
		Notifier:    wsHub,
		Logger:      sysLogger,
	}
	if cfg.SMTP.Host != "" {
		handoff.Mailer = mailer.NewEmailService(
			cfg.SMTP.Host,
			cfg.SMTP.Port,
			cfg.SMTP.Email,
			cfg.SMTP.Password,
			cfg.SMTP.Email,
			cfg.SMTP.SenderName,
		)
	}
	if cfg.Storage.Endpoint != "" {
		objects, err := archive.NewMinioStore(archive.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			log.Printf("[WARN] Brief archive disabled: %v", err)
		} else {
			handoff.Archive = archive.New(objects)
		}
	}
	c.HandoffService = service.NewHandoffService(handoff)

	// 6. HTTP surface
	c.LegalController = controller.NewLegalController(service.NewLegalService(legalAssistant))
	c.OperatorController = controller.NewOperatorController(
		service.NewOperatorService(sessions, sysLogger, sysLogger),
		cfg.Keys.JWTSecret,
	)
	c.SystemController = controller.NewSystemController(registry)
	c.ProgressHandler = handler.NewProgressHandler(wsHub, cfg.Keys.JWTSecret, sysLogger)

	return c, nil
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			log.Printf("[WARN] close: %v", err)
		}
	}
}

func llmBaseURL(cfg *config.Config) string {
	if cfg.Ai.LLMBaseURL != "" {
		return cfg.Ai.LLMBaseURL
	}
	if cfg.Ai.LLMProvider == "" || cfg.Ai.LLMProvider == "ollama" {
		return cfg.Ai.OllamaBaseURL
	}
	return ""
}

func llmAPIKey(cfg *config.Config) string {
	switch cfg.Ai.LLMProvider {
	case "anthropic":
		return cfg.Keys.Anthropic
	case "gemini":
		return cfg.Keys.Gemini
	case "huggingface":
		return cfg.Keys.HuggingFace
	}
	return ""
}

func newRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		return nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{Addr: url}
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[WARN] Redis unreachable, continuing without it: %v", err)
		rdb.Close()
		return nil
	}
	return rdb
}

// newSearcher prefers vector search over ingested legislation with case-law
// search as its fallback. Without postgres only case-law search runs.
func newSearcher(cfg *config.Config, db *gorm.DB, log logger.ILogger) (search.Searcher, error) {
	var base search.Searcher = search.NewCaseLawSearcher()
	if db != nil {
		embedder, err := embedding.NewProvider(cfg.Ai.EmbeddingProvider, cfg.Ai.OllamaBaseURL, cfg.Ai.EmbeddingModel, cfg.Keys.Gemini)
		if err != nil {
			return nil, fmt.Errorf("embedding provider: %w", err)
		}
		vector := search.NewVectorSearcher(embedder, implementation.NewLegalChunkRepository(db))
		base = search.NewFallback(vector, base, log)
	}
	cached, err := search.NewCachedSearcher(base, cfg.Orchestrator.SearchCacheSz)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

func (c *Container) newEventBus(ctx context.Context, cfg *config.Config, log logger.ILogger) (events.Publisher, events.Subscriber) {
	if cfg.App.EventBus == "nats" {
		pub, sub, err := connectNats(cfg.App.NatsURL, log)
		if err == nil {
			c.closers = append(c.closers,
				func() error { pub.Close(); return nil },
				func() error { sub.Close(); return nil },
			)
			return pub, sub
		}
		log.Warn("Bootstrap", "NATS unavailable, using in-process event bus", map[string]interface{}{"error": err.Error()})
	}

	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NewStdLogger(false, false))
	c.closers = append(c.closers, pubSub.Close)
	return events.NewChannelPublisher(pubSub, eventTopic), events.NewChannelSubscriber(ctx, pubSub, eventTopic, log)
}

func connectNats(url string, log logger.ILogger) (*pktNats.Publisher, *pktNats.Subscriber, error) {
	pub, err := pktNats.NewPublisher(url, log)
	if err != nil {
		return nil, nil, err
	}
	sub, err := pktNats.NewSubscriber(url, log)
	if err != nil {
		pub.Close()
		return nil, nil, err
	}
	return pub, sub, nil
}

func (c *Container) newSessionStore(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (session.Store, error) {
	ttl := cfg.Orchestrator.SessionTTL
	switch cfg.Database.SessionBackend {
	case "", "memory":
		return session.NewMemoryStore(ttl), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("session backend redis needs a reachable REDIS_URL")
		}
		return implementation.NewRedisSessionStore(rdb, ttl), nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("session backend postgres needs DB_CONNECTION_STRING")
		}
		return implementation.NewGormSessionStore(db, ttl), nil
	case "sqlite":
		store, err := implementation.NewSqliteSessionStore(cfg.Database.SqlitePath, ttl)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, store.Close)
		return store, nil
	}
	return nil, fmt.Errorf("unknown session backend %q", cfg.Database.SessionBackend)
}

func newExecutor(cfg *config.Config, policy config.Policy, log logger.ILogger, observers ...graph.Observer) *graph.Executor {
	timeout := cfg.Orchestrator.StageTimeout
	if policy.StageTimeout > 0 {
		timeout = policy.StageTimeout
	}
	exec := graph.NewExecutor(log, timeout, observers...)
	if policy.MaxSteps > 0 {
		exec.MaxSteps = policy.MaxSteps
	} else if cfg.Orchestrator.MaxSteps > 0 {
		exec.MaxSteps = cfg.Orchestrator.MaxSteps
	}
	return exec
}
