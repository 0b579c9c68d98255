package bootstrap

import (
	"github.com/aether-ai/conductor/common/config"
	"github.com/aether-ai/conductor/common/logger"
)

type setupOptions struct {
	skipDB       bool
	skipRedis    bool
	customConfig *config.Config
	customLogger *logger.Logger
}

func defaultOptions() *setupOptions {
	return &setupOptions{}
}

// Option customizes Setup behavior
type Option func(*setupOptions)

// WithoutDB skips database initialization even when persistence is enabled
func WithoutDB() Option {
	return func(o *setupOptions) {
		o.skipDB = true
	}
}

// WithoutRedis skips redis initialization even when the relay is enabled
func WithoutRedis() Option {
	return func(o *setupOptions) {
		o.skipRedis = true
	}
}

// WithConfig injects a pre-built config, bypassing config.Load
func WithConfig(cfg *config.Config) Option {
	return func(o *setupOptions) {
		o.customConfig = cfg
	}
}

// WithLogger injects a pre-built logger
func WithLogger(log *logger.Logger) Option {
	return func(o *setupOptions) {
		o.customLogger = log
	}
}
