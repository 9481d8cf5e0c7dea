package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// NewPubSub creates the in-process channel that carries competition topics to connected subscribers.
// Messages are not persisted, a subscriber only sees what is published while it is connected.
func NewPubSub(logger *slog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, watermill.NewSlogLogger(logger))
}

// Broadcaster publishes engine events. Publishing never fails the caller, errors are logged.
type Broadcaster struct {
	publisher message.Publisher
	logger    *slog.Logger
}

func NewBroadcaster(publisher message.Publisher, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{publisher: publisher, logger: logger}
}

func (b *Broadcaster) Publish(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.ErrorContext(ctx, "Failed to marshal event", "type", event.Type, "error", err)
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", string(event.Type))

	if err := b.publisher.Publish(Topic(event.CompetitionID), msg); err != nil {
		b.logger.ErrorContext(ctx, "Failed to publish event",
			"type", event.Type,
			"competition_id", event.CompetitionID,
			"error", err,
		)
	}
}
