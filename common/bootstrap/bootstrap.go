// Package bootstrap wires the shared service components: config, logger,
// Postgres pool, Redis client, and the event bus. Every service entry
// point calls Setup once and defers Shutdown.
package bootstrap

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aether-ai/conductor/common/config"
	"github.com/aether-ai/conductor/common/db"
	"github.com/aether-ai/conductor/common/events"
	"github.com/aether-ai/conductor/common/logger"
	"github.com/aether-ai/conductor/common/redis"
)

// Setup initializes all shared components for a service
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(
			components.Config.Service.LogLevel,
			components.Config.Service.LogFormat,
		)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", components.Config.Service.Environment,
	)

	if !options.skipDB && components.Config.Features.EnablePersist {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, components.Config, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		components.addCleanup(func() error {
			components.Logger.Info("closing database connection")
			components.DB.Close()
			return nil
		})
	}

	if !options.skipRedis && components.Config.Features.EnableRelay {
		components.Logger.Info("connecting to redis",
			"addr", components.Config.Redis.Addr,
		)
		client := goredis.NewClient(&goredis.Options{
			Addr:     components.Config.Redis.Addr,
			Password: components.Config.Redis.Password,
			DB:       components.Config.Redis.DB,
		})
		components.Redis = redis.NewClient(client, components.Logger)
		if err := components.Redis.Ping(ctx); err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		components.addCleanup(func() error {
			components.Logger.Info("closing redis connection")
			return components.Redis.Close()
		})
	}

	components.Bus = events.NewBus(components.Logger)
	events.SetDefault(components.Bus)

	return components, nil
}
