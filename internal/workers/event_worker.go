package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/microblog/microblog/internal/services"
	"github.com/microblog/microblog/pkg/logger"
	"github.com/microblog/microblog/pkg/queue"
	"github.com/sirupsen/logrus"
)

// Subscriber is the read side of the event stream. KafkaConsumer implements it.
type Subscriber interface {
	Subscribe(ctx context.Context, handler func(queue.Message) error) error
	Close() error
}

// EventWorker consumes domain events. It drops cached follow counts touched
// by an event, which covers writers that failed to invalidate after commit,
// and records activity in the log.
type EventWorker struct {
	counts   *services.CountCache
	consumer Subscriber
	logger   *logger.Logger
}

func NewEventWorker(counts *services.CountCache, consumer Subscriber, logger *logger.Logger) *EventWorker {
	return &EventWorker{
		counts:   counts,
		consumer: consumer,
		logger:   logger,
	}
}

// Start blocks until ctx is cancelled or the subscription fails.
func (w *EventWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting event worker...")

	return w.consumer.Subscribe(ctx, func(msg queue.Message) error {
		return w.HandleMessage(ctx, msg)
	})
}

func (w *EventWorker) Stop() error {
	w.logger.Info("Stopping event worker...")
	return w.consumer.Close()
}

func (w *EventWorker) HandleMessage(ctx context.Context, msg queue.Message) error {
	event, err := queue.DecodeEvent(msg.Value)
	if err != nil {
		return err
	}

	log := w.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"timestamp":  event.Timestamp,
	})
	log.Debug("Processing event")

	switch event.Type {
	case queue.EventFollowCreated, queue.EventFollowDeleted:
		var data queue.FollowEventData
		if err := decodeData(event, &data); err != nil {
			return err
		}
		w.counts.Invalidate(ctx, data.FollowerID, data.FollowedID)
		log.WithFields(logrus.Fields{
			"follower_id": data.FollowerID,
			"followed_id": data.FollowedID,
		}).Info("Follow graph changed")

	case queue.EventUserDeleted:
		var data queue.UserEventData
		if err := decodeData(event, &data); err != nil {
			return err
		}
		w.counts.Invalidate(ctx, append(data.Neighbors, data.UserID)...)
		log.WithField("user_id", data.UserID).Info("User deleted")

	case queue.EventUserRegistered:
		var data queue.UserEventData
		if err := decodeData(event, &data); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"user_id":  data.UserID,
			"username": data.Username,
		}).Info("User registered")

	case queue.EventPostCreated:
		var data queue.PostEventData
		if err := decodeData(event, &data); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"post_id": data.PostID,
			"user_id": data.UserID,
		}).Info("Post created")

	case queue.EventPasswordResetRequested:
		var data queue.PasswordResetEventData
		if err := decodeData(event, &data); err != nil {
			return err
		}
		// mail delivery lives outside this service; never log the token
		log.WithField("user_id", data.UserID).Info("Password reset requested")

	default:
		log.Warn("Unknown event type")
	}
	return nil
}

func decodeData(event *queue.Event, v interface{}) error {
	if err := json.Unmarshal(event.Data, v); err != nil {
		return fmt.Errorf("invalid %s event data: %w", event.Type, err)
	}
	return nil
}
