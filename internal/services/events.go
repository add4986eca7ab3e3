package services

import (
	"context"
	"strconv"
	"time"

	"github.com/microblog/microblog/pkg/logger"
	"github.com/microblog/microblog/pkg/queue"
)

// publish emits an event after the write committed. Delivery is best effort:
// failures are logged, never returned.
func publish(ctx context.Context, producer queue.Publisher, log *logger.Logger, key uint, eventType queue.EventType, at time.Time, data interface{}) {
	event, err := queue.NewEvent(eventType, at, data)
	if err == nil {
		err = producer.Publish(ctx, strconv.FormatUint(uint64(key), 10), event)
	}
	if err != nil {
		log.WithError(err).WithField("event_type", eventType).Error("Failed to publish event")
	}
}
