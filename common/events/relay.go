package events

import (
	"context"

	"github.com/aether-ai/conductor/common/logger"
	redisWrapper "github.com/aether-ai/conductor/common/redis"
)

// RelaySubscriber mirrors lifecycle events onto a capped Redis stream so
// out-of-process transports (SSE gateways, websocket fanouts) can follow
// executions without a hook into the in-process bus.
type RelaySubscriber struct {
	redis  *redisWrapper.Client
	stream string
	maxLen int64
	log    *logger.Logger
}

// NewRelaySubscriber creates the subscriber
func NewRelaySubscriber(client *redisWrapper.Client, stream string, maxLen int64, log *logger.Logger) *RelaySubscriber {
	return &RelaySubscriber{
		redis:  client,
		stream: stream,
		maxLen: maxLen,
		log:    log,
	}
}

// Attach registers the subscriber on the bus as a global handler
func (s *RelaySubscriber) Attach(bus *Bus) {
	bus.SubscribeAll(s.Handle)
}

// Handle appends the event to the stream. Failures are returned to the
// bus, which logs and swallows them; relay loss never fails an execution.
func (s *RelaySubscriber) Handle(ctx context.Context, event Event) error {
	payload, err := event.Marshal()
	if err != nil {
		return err
	}

	_, err = s.redis.AddToStream(ctx, s.stream, s.maxLen, map[string]interface{}{
		"type":         string(event.Type),
		"execution_id": event.ExecutionID,
		"payload":      string(payload),
	})
	return err
}
