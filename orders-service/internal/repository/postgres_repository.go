package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/partshop/orders-service/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

var (
	_ OrderRepository  = (*Repository)(nil)
	_ OutboxRepository = (*Repository)(nil)
)

func NewRepository(ctx context.Context, cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "orders_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order, event domain.OrderEvent) error {
	billing, err := json.Marshal(order.BillingAddress)
	if err != nil {
		return fmt.Errorf("marshal billing address: %w", err)
	}
	shipping, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO orders (id, order_number, user_id, status, customer_email, customer_name, customer_phone,
			                    billing_address, shipping_address, payment_method, notes,
			                    subtotal, shipping_fee, tax, total_amount, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
			RETURNING created_at, updated_at`,
			order.ID,
			order.OrderNumber,
			order.UserID,
			order.Status,
			order.CustomerEmail,
			order.CustomerName,
			order.CustomerPhone,
			billing,
			shipping,
			order.PaymentMethod,
			order.Notes,
			order.Subtotal,
			order.ShippingFee,
			order.Tax,
			order.TotalAmount,
		).Scan(&order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return ErrDuplicateOrder
			}
			return fmt.Errorf("insert order: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO order_items (order_id, product_id, sku, name, unit_price, quantity, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`)
		if err != nil {
			return fmt.Errorf("prepare order items: %w", err)
		}
		defer stmt.Close()

		for _, it := range order.Items {
			if _, err := stmt.ExecContext(ctx, order.ID, it.ProductID, it.SKU, it.Name, it.UnitPrice, it.Quantity, it.Subtotal); err != nil {
				return fmt.Errorf("insert order item %d: %w", it.ProductID, err)
			}
		}

		event.OccurredAt = order.CreatedAt
		return insertEvent(ctx, tx, event)
	})
}

func (r *Repository) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	var (
		order             domain.Order
		billing, shipping []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_number, user_id, status, customer_email, customer_name, customer_phone,
		       billing_address, shipping_address, payment_method, notes,
		       subtotal, shipping_fee, tax, total_amount, payment_id, failure_reason, created_at, updated_at
		FROM orders WHERE order_number = $1`, orderNumber).Scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&order.Status,
		&order.CustomerEmail,
		&order.CustomerName,
		&order.CustomerPhone,
		&billing,
		&shipping,
		&order.PaymentMethod,
		&order.Notes,
		&order.Subtotal,
		&order.ShippingFee,
		&order.Tax,
		&order.TotalAmount,
		&order.PaymentID,
		&order.FailureReason,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by number: %w", err)
	}
	if err := json.Unmarshal(billing, &order.BillingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal billing address: %w", err)
	}
	if err := json.Unmarshal(shipping, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, sku, name, unit_price, quantity, subtotal
		FROM order_items WHERE order_id = $1 ORDER BY id`, order.ID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	order.Items = []domain.OrderItem{}
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ProductID, &it.SKU, &it.Name, &it.UnitPrice, &it.Quantity, &it.Subtotal); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		order.Items = append(order.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return &order, nil
}

func (r *Repository) ListOrdersByUserID(ctx context.Context, userID string) ([]domain.OrderSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT o.order_number, o.status, o.total_amount, COALESCE(SUM(oi.quantity), 0), o.created_at
		FROM orders o
		LEFT JOIN order_items oi ON oi.order_id = o.id
		WHERE o.user_id = $1
		GROUP BY o.id
		ORDER BY o.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders by user id: %w", err)
	}
	defer rows.Close()

	orders := []domain.OrderSummary{}
	for rows.Next() {
		var s domain.OrderSummary
		if err := rows.Scan(&s.OrderNumber, &s.Status, &s.TotalAmount, &s.ItemCount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return orders, nil
}

func (r *Repository) UpdatePayment(ctx context.Context, order *domain.Order, from domain.OrderStatus, event domain.OrderEvent) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			UPDATE orders
			SET status = $1, payment_id = $2, failure_reason = $3, updated_at = NOW()
			WHERE order_number = $4 AND status = $5
			RETURNING updated_at`,
			order.Status, order.PaymentID, order.FailureReason, order.OrderNumber, from,
		).Scan(&order.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStatusConflict
		}
		if err != nil {
			return fmt.Errorf("update order payment: %w", err)
		}

		event.OccurredAt = order.UpdatedAt
		return insertEvent(ctx, tx, event)
	})
}

func (r *Repository) Stats(ctx context.Context, topN int) (*domain.Stats, error) {
	stats := &domain.Stats{
		OrdersByStatus: map[string]int{},
		TopProducts:    []domain.TopProduct{},
	}

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query order counts: %w", err)
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order count: %w", err)
		}
		stats.OrdersByStatus[status] = n
		stats.TotalOrders += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	var confirmed int
	err = r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_amount), 0), COUNT(*) FROM orders WHERE status = $1`,
		domain.OrderStatusConfirmed).Scan(&stats.TotalRevenue, &confirmed)
	if err != nil {
		return nil, fmt.Errorf("query revenue: %w", err)
	}
	stats.AverageOrderValue = decimal.Zero
	if confirmed > 0 {
		stats.AverageOrderValue = stats.TotalRevenue.Div(decimal.NewFromInt(int64(confirmed))).Round(2)
	}

	rows, err = r.db.QueryContext(ctx, `
		SELECT oi.product_id, MAX(oi.name), SUM(oi.quantity) AS qty
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.status = $1
		GROUP BY oi.product_id
		ORDER BY qty DESC, oi.product_id
		LIMIT $2`, domain.OrderStatusConfirmed, topN)
	if err != nil {
		return nil, fmt.Errorf("query top products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.TopProduct
		if err := rows.Scan(&p.ProductID, &p.Name, &p.Quantity); err != nil {
			return nil, fmt.Errorf("scan top product: %w", err)
		}
		stats.TopProducts = append(stats.TopProducts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return stats, nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox_events
		WHERE processed_at IS NULL
		ORDER BY id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event %d: %w", id, err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, event domain.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox_events (aggregate_id, event_type, payload) VALUES ($1, $2, $3)`,
		event.OrderNumber, event.EventType, payload)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}
