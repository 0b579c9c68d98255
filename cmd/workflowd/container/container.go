// Package container wires the workflowd service graph once at startup.
package container

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aether-ai/conductor/common/bootstrap"
	"github.com/aether-ai/conductor/common/engine"
	"github.com/aether-ai/conductor/common/events"
	"github.com/aether-ai/conductor/common/provider"
	"github.com/aether-ai/conductor/common/ratelimit"
	"github.com/aether-ai/conductor/common/repository"
	"github.com/aether-ai/conductor/common/retrieval"
	"github.com/aether-ai/conductor/common/tools"
)

// Container holds all initialized services and repositories
type Container struct {
	Components *bootstrap.Components
	Engine     *engine.Engine
	Tools      *tools.InMemoryRegistry

	Logging *events.LoggingSubscriber
	Metrics *events.MetricsSubscriber
	Limiter *ratelimit.Limiter

	ExecutionRepo  *repository.ExecutionRepository
	TemplateRepo   *repository.TemplateRepository
	DefinitionRepo *repository.DefinitionRepository
}

// New initializes all services once. Event subscribers attach to the
// bus created by bootstrap; which ones attach follows the feature
// flags, so a relay-less deployment never touches Redis.
func New(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	c := &Container{
		Components: components,
		Tools:      tools.NewInMemoryRegistry(),
	}

	c.Logging = events.NewLoggingSubscriber(cfg.Engine.DebugLogCap, log)
	c.Logging.Attach(components.Bus)

	if components.DB != nil {
		c.ExecutionRepo = repository.NewExecutionRepository(components.DB)
		c.TemplateRepo = repository.NewTemplateRepository(components.DB)
		c.DefinitionRepo = repository.NewDefinitionRepository(components.DB)

		events.NewDatabaseSubscriber(c.ExecutionRepo, log).Attach(components.Bus)
	}

	if components.Redis != nil {
		events.NewRelaySubscriber(
			components.Redis,
			cfg.Redis.EventStream,
			cfg.Redis.MaxLen,
			log,
		).Attach(components.Bus)

		c.Limiter = ratelimit.New(components.Redis.GetUnderlying(), log)
	}

	if cfg.Features.EnablePrometheus {
		c.Metrics = events.NewMetricsSubscriber(prometheus.DefaultRegisterer)
		c.Metrics.Attach(components.Bus)
	}

	deps := engine.Deps{
		Provider:  provider.NewOpenAIProvider(&cfg.Provider, log),
		Tools:     c.Tools,
		Retriever: retrieval.New(nil, nil, retrieval.Options{}, log),
		Bus:       components.Bus,
		Logger:    log,
	}
	if c.TemplateRepo != nil {
		deps.Templates = c.TemplateRepo
	}
	if c.DefinitionRepo != nil {
		deps.Definitions = c.DefinitionRepo
	}

	c.Engine = engine.New(cfg.Engine, deps)

	return c, nil
}
