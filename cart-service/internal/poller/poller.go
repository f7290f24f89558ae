package poller

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTopic   = "orders-outbox"
	DefaultGroupID = "cart-service-consumer"

	// EventOrderCreated is the only event that touches carts.
	EventOrderCreated = "order.created"

	headerEventType = "event_type"
	readRetryDelay  = time.Second
)

// CartClearer empties a user's cart, idempotently.
type CartClearer interface {
	ClearCart(ctx context.Context, userID string) error
}

// MessageReader is the subset of *kafka.Reader the poller uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type orderEvent struct {
	EventType   string `json:"event_type"`
	OrderNumber string `json:"order_number"`
	UserID      string `json:"user_id"`
}

// Poller clears a shopper's cart once orders-service reports their order as created.
type Poller struct {
	carts      CartClearer
	reader     MessageReader
	log        *logrus.Entry
	retryDelay time.Duration
}

func NewPoller(carts CartClearer, log *logrus.Entry, topic string, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  DefaultGroupID,
		MaxBytes: 10e6, // 10MB
	})
	return NewPollerWithReader(carts, reader, log)
}

func NewPollerWithReader(carts CartClearer, reader MessageReader, log *logrus.Entry) *Poller {
	return &Poller{
		carts:      carts,
		reader:     reader,
		log:        log.WithField("component", "order-events-poller"),
		retryDelay: readRetryDelay,
	}
}

// Run consumes until ctx is cancelled. An offset is committed only after its
// message was handled, so a cart that could not be cleared is retried.
func (p *Poller) Run(ctx context.Context) {
	for ctx.Err() == nil {
		m, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			p.log.WithError(err).Warn("error reading message")
			if !p.wait(ctx) {
				return
			}
			continue
		}
		for {
			err := p.handle(ctx, m)
			if err == nil {
				break
			}
			if !p.wait(ctx) {
				return
			}
		}
		if err := p.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			p.log.WithError(err).WithField("offset", m.Offset).Warn("error committing message")
		}
	}
}

func (p *Poller) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(p.retryDelay):
		return true
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.WithError(err).Warn("error closing reader")
	}
}

// handle returns an error only when the cart could not be cleared; messages
// that will never apply to a cart are logged and skipped.
func (p *Poller) handle(ctx context.Context, m kafka.Message) error {
	var evt orderEvent
	if err := json.Unmarshal(m.Value, &evt); err != nil {
		p.log.WithError(err).WithField("offset", m.Offset).Warn("error parsing message")
		return nil
	}
	if t := eventType(m); t != "" {
		evt.EventType = t
	}
	if evt.EventType != EventOrderCreated {
		return nil
	}
	if evt.UserID == "" {
		p.log.WithField("order_number", evt.OrderNumber).Warn("missing user_id")
		return nil
	}

	entry := p.log.WithFields(logrus.Fields{"user_id": evt.UserID, "order_number": evt.OrderNumber})
	if err := p.carts.ClearCart(ctx, evt.UserID); err != nil {
		entry.WithError(err).Error("failed to clear cart")
		return err
	}
	entry.Info("cart cleared after order")
	return nil
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == headerEventType {
			return string(h.Value)
		}
	}
	return ""
}
