package publisher

import (
	"context"
	"time"

	"github.com/fjod/partshop/orders-service/internal/repository"
	"github.com/fjod/partshop/pkg/logger"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTopic = "orders-outbox"
	// batchSize caps how many outbox rows one tick publishes.
	batchSize = 100
)

// MessageWriter is the part of *kafka.Writer the poller needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller relays outbox_events rows to Kafka in insertion order and marks
// them processed once the broker acknowledged them.
type OutboxPoller struct {
	tick   time.Duration
	repo   repository.OutboxRepository
	writer MessageWriter
	log    *logrus.Entry
}

func NewOutboxPoller(repo repository.OutboxRepository, log *logrus.Entry, topic string, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
	}
	return NewOutboxPollerWithWriter(repo, w, time.Second, log)
}

func NewOutboxPollerWithWriter(repo repository.OutboxRepository, w MessageWriter, tick time.Duration, log *logrus.Entry) *OutboxPoller {
	if log == nil {
		log = logger.Discard()
	}
	return &OutboxPoller{tick: tick, repo: repo, writer: w, log: log}
}

// Run publishes pending events every tick until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.repo.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		p.log.WithError(err).Error("failed to fetch outbox events")
		return 0
	}

	published := 0
	for _, event := range events {
		entry := p.log.WithFields(logrus.Fields{
			"event_id":     event.ID,
			"event_type":   event.EventType,
			"order_number": event.AggregateID,
		})
		if err := p.publishToKafka(ctx, event); err != nil {
			// later events for the same order must wait behind this one
			entry.WithError(err).Warn("failed to publish outbox event")
			return published
		}
		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			entry.WithError(err).Error("failed to mark outbox event as processed")
			return published
		}
		published++
		entry.Debug("outbox event published")
	}
	return published
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
		Time: event.CreatedAt,
	}
	return p.writer.WriteMessages(ctx, msg)
}
