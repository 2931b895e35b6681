package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acme/powerdialer/internal/agent"
	campaignpkg "github.com/acme/powerdialer/internal/campaign"
	"github.com/acme/powerdialer/internal/compliance"
	"github.com/acme/powerdialer/internal/concurrency"
	"github.com/acme/powerdialer/internal/config"
	"github.com/acme/powerdialer/internal/dialer"
	"github.com/acme/powerdialer/internal/dialqueue"
	"github.com/acme/powerdialer/internal/domain"
	"github.com/acme/powerdialer/internal/events"
	"github.com/acme/powerdialer/internal/infra/db"
	"github.com/acme/powerdialer/internal/infra/redis"
	"github.com/acme/powerdialer/internal/outcome"
	"github.com/acme/powerdialer/internal/report"
	"github.com/acme/powerdialer/internal/repository"
	pgrepo "github.com/acme/powerdialer/internal/repository/postgres"
	scyllarepo "github.com/acme/powerdialer/internal/repository/scylla"
	"github.com/acme/powerdialer/internal/telephony"
	telephonymock "github.com/acme/powerdialer/internal/telephony/mock"
	"github.com/acme/powerdialer/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *events.Kafka

	components struct {
		once         sync.Once
		repositories *repositories
		publisher    *events.Publisher
		provider     telephony.Provider
		hub          *agent.Hub
		gateway      *agent.Gateway
		engine       *dialer.Engine
		manager      *campaignpkg.Manager
	}
}

type repositories struct {
	Campaigns repository.CampaignRepository
	Contacts  repository.ContactRepository
	Attempts  repository.AttemptLog
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	scylla, err := db.NewScylla(cfg.Scylla)
	if err != nil {
		return nil, fmt.Errorf("bootstrap scylla: %w", err)
	}
	if err := scylla.EnsureSchema(); err != nil {
		return nil, fmt.Errorf("bootstrap scylla schema: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}

	kafka, err := events.NewKafka(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("bootstrap kafka: %w", err)
	}

	return &Container{
		Config:   cfg,
		Logger:   lg,
		Postgres: pg,
		Scylla:   scylla,
		Redis:    redisClient,
		Kafka:    kafka,
	}, nil
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		cfg := c.Config

		repos := &repositories{
			Campaigns: pgrepo.NewCampaignRepository(c.Postgres.DB()),
			Contacts:  pgrepo.NewContactRepository(c.Postgres.DB()),
			Attempts:  scyllarepo.NewAttemptLog(c.Scylla.Session()),
		}

		publisher := events.NewPublisher(c.Kafka, cfg.Kafka.OutcomeTopic, cfg.Kafka.ReportTopic)

		provider := telephonymock.NewProvider()
		waiter := telephony.NewWaiter(provider, cfg.Dialer.StatusPollInterval, cfg.Dialer.StatusTimeout)

		gate := compliance.NewGate()
		builder := dialqueue.NewBuilder(gate)

		hub := agent.NewHub(c.Logger, cfg.Agent.DecisionTimeout)
		gateway := agent.NewGateway(hub, cfg.Agent.Port, c.Logger)
		limiter := concurrency.NewRedisLimiter(c.Redis.Inner(), 0, cfg.Dialer.SlotTTL)

		engine := dialer.NewEngine(
			provider,
			waiter,
			outcome.NewProcessor(),
			gate,
			hub,
			limiter,
			repos.Attempts,
			repos.Campaigns,
			publisher,
			cfg.Dialer,
			c.Logger,
		)

		store := campaignpkg.NewStore()
		defaultRetry := domain.RetryPolicy{
			MaxRetries: cfg.Dialer.MaxRetries,
			RetryDelay: cfg.Dialer.RetryDelay,
		}
		manager := campaignpkg.NewManager(
			store,
			repos.Campaigns,
			repos.Contacts,
			builder,
			report.NewGenerator(cfg.Report.CostPerMinute),
			publisher,
			engine,
			defaultRetry,
			c.Logger,
		)
		engine.OnExhausted(func(campaignID uuid.UUID) {
			autoCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			manager.AutoComplete(autoCtx, campaignID)
		})

		c.components.repositories = repos
		c.components.publisher = publisher
		c.components.provider = provider
		c.components.hub = hub
		c.components.gateway = gateway
		c.components.engine = engine
		c.components.manager = manager
	})
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() *repositories {
	c.initComponents()
	return c.components.repositories
}

// Manager exposes the campaign manager.
func (c *Container) Manager() *campaignpkg.Manager {
	c.initComponents()
	return c.components.manager
}

// Engine exposes the dialing engine.
func (c *Container) Engine() *dialer.Engine {
	c.initComponents()
	return c.components.engine
}

// Hub exposes the agent console hub.
func (c *Container) Hub() *agent.Hub {
	c.initComponents()
	return c.components.hub
}

// Gateway exposes the agent console websocket gateway.
func (c *Container) Gateway() *agent.Gateway {
	c.initComponents()
	return c.components.gateway
}

// Publisher exposes the Kafka event publisher.
func (c *Container) Publisher() *events.Publisher {
	c.initComponents()
	return c.components.publisher
}

// EnsureTopics ensures required Kafka topics exist.
func (c *Container) EnsureTopics(ctx context.Context) error {
	topics := []string{c.Config.Kafka.OutcomeTopic, c.Config.Kafka.ReportTopic}
	return c.Kafka.EnsureTopics(ctx, topics, 12, 1)
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.components.publisher != nil {
		if err := c.components.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
