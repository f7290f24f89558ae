package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/partshop/orders-service/internal/domain"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order with this number already exists")
	ErrStatusConflict = errors.New("order status changed concurrently")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// OutboxEvent is a row of outbox_events waiting to be published.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

type OrderRepository interface {
	// CreateOrder stores the order, its items and the event in one transaction.
	CreateOrder(ctx context.Context, order *domain.Order, event domain.OrderEvent) error
	GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID string) ([]domain.OrderSummary, error)
	// UpdatePayment persists a payment outcome if the stored status is still from.
	UpdatePayment(ctx context.Context, order *domain.Order, from domain.OrderStatus, event domain.OrderEvent) error
	Stats(ctx context.Context, topN int) (*domain.Stats, error)
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}
