package offlinecache

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Command kinds understood by the coordinator.
const (
	MessageSkipWaiting = "SKIP_WAITING"
	MessageCacheURLs   = "CACHE_URLS"
)

// Message is a command sent by controlling application code.
type Message struct {
	Type string   `mapstructure:"type"`
	URLs []string `mapstructure:"urls"`
}

// HandleMessage decodes and executes an out-of-band command.
// Unknown command kinds are ignored, so newer application code can send
// commands an older deployed coordinator does not understand yet.
func (c *Coordinator) HandleMessage(ctx context.Context, payload map[string]interface{}) error {
	var msg Message
	if err := mapstructure.Decode(payload, &msg); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	switch msg.Type {
	case MessageSkipWaiting:
		return c.ForceActivate(ctx)
	case MessageCacheURLs:
		c.log.Info().Int("urls", len(msg.URLs)).Msg("Priming cache on request")
		return c.primeAssets(ctx, msg.URLs)
	default:
		c.log.Trace().Str("type", msg.Type).Msg("Ignoring unknown message")
		return nil
	}
}
