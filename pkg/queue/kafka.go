package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Publisher is the write side used by services. KafkaProducer and
// NopPublisher implement it.
type Publisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type KafkaProducer struct {
	writer *kafka.Writer
}

type KafkaConsumer struct {
	reader *kafka.Reader
	logger logrus.FieldLogger
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		Async:                  false,
		AllowAutoTopicCreation: true,
	}

	return &KafkaProducer{writer: writer}
}

func NewKafkaConsumer(brokers []string, topic, groupID string, logger logrus.FieldLogger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: 1 * time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	return &KafkaConsumer{reader: reader, logger: logger}
}

// Publish writes event keyed by key; events with the same key land on the
// same partition and keep their order.
func (p *KafkaProducer) Publish(ctx context.Context, key string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  event.Timestamp,
	}

	return p.writer.WriteMessages(ctx, message)
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// Subscribe blocks, passing every message to handler until ctx is done.
// Handler errors are logged and the message is skipped.
func (c *KafkaConsumer) Subscribe(ctx context.Context, handler func(Message) error) error {
	for {
		message, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("failed to read message: %w", err)
		}

		msg := Message{
			Key:   string(message.Key),
			Value: message.Value,
			Topic: message.Topic,
		}

		if err := handler(msg); err != nil {
			c.logger.WithError(err).WithField("topic", message.Topic).Error("Failed to handle message")
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

// NopPublisher drops events; used when kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error {
	return nil
}

type Message struct {
	Key   string
	Value []byte
	Topic string
}

type EventType string

const (
	EventUserRegistered EventType = "user_registered"
	EventUserDeleted    EventType = "user_deleted"
	EventPostCreated    EventType = "post_created"
	EventFollowCreated  EventType = "follow_created"
	EventFollowDeleted  EventType = "follow_deleted"

	EventPasswordResetRequested EventType = "password_reset_requested"
)

type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func NewEvent(eventType EventType, at time.Time, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal event data: %w", err)
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: at,
		Data:      raw,
	}, nil
}

func DecodeEvent(value []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &event, nil
}

type UserEventData struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	// Neighbors lists users whose follow counts changed with this event.
	Neighbors []uint `json:"neighbors,omitempty"`
}

type PostEventData struct {
	PostID    uint      `json:"post_id"`
	UserID    uint      `json:"user_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type FollowEventData struct {
	FollowerID uint `json:"follower_id"`
	FollowedID uint `json:"followed_id"`
}

// PasswordResetEventData is addressed to whatever delivers reset mail.
type PasswordResetEventData struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Token  string `json:"token"`
}
