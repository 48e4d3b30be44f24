package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ohana-reunion/backend/internal/entity"
)

type orderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id, reference, purchaser_name, purchaser_email, payment_method, status,
	subtotal_cents, fee_cents, donation_cents, total_cents, answers, session_id, created_at, updated_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (*entity.Order, error) {
	var order entity.Order
	var answersRaw []byte
	var sessionID sql.NullString

	err := row.Scan(
		&order.ID,
		&order.Reference,
		&order.PurchaserName,
		&order.PurchaserEmail,
		&order.PaymentMethod,
		&order.Status,
		&order.SubtotalCents,
		&order.FeeCents,
		&order.DonationCents,
		&order.TotalCents,
		&answersRaw,
		&sessionID,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(answersRaw, &order.Answers); err != nil {
		return nil, fmt.Errorf("failed to decode order answers: %w", err)
	}
	if sessionID.Valid {
		order.SessionID = sessionID.String
	}
	return &order, nil
}

// CreateWithItems persists the order and all of its items in a single
// transaction, so a partially created order is never visible.
func (r *orderRepository) CreateWithItems(ctx context.Context, order *entity.Order) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	answersRaw, err := json.Marshal(order.Answers)
	if err != nil {
		return fmt.Errorf("failed to encode order answers: %w", err)
	}

	query := `
		INSERT INTO orders (
			reference, purchaser_name, purchaser_email, payment_method, status,
			subtotal_cents, fee_cents, donation_cents, total_cents, answers, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`

	now := time.Now()
	err = tx.QueryRowContext(ctx, query,
		order.Reference,
		order.PurchaserName,
		order.PurchaserEmail,
		order.PaymentMethod,
		order.Status,
		order.SubtotalCents,
		order.FeeCents,
		order.DonationCents,
		order.TotalCents,
		answersRaw,
		now,
		now,
	).Scan(&order.ID)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, tier_id, tier_name, quantity, unit_price_cents)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	for _, item := range order.Items {
		item.OrderID = order.ID
		err = tx.QueryRowContext(ctx, itemQuery,
			item.OrderID,
			item.TierID,
			item.TierName,
			item.Quantity,
			item.UnitPriceCents,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	order.CreatedAt = now
	order.UpdatedAt = now
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id int64) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *orderRepository) GetByReference(ctx context.Context, ref uuid.UUID) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE reference = $1`
	return r.getOne(ctx, query, ref)
}

func (r *orderRepository) GetBySessionID(ctx context.Context, sessionID string) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE session_id = $1`
	return r.getOne(ctx, query, sessionID)
}

func (r *orderRepository) getOne(ctx context.Context, query string, arg interface{}) (*entity.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, entity.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	order.Items, err = r.getItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) getItems(ctx context.Context, orderID int64) ([]*entity.OrderItem, error) {
	query := `
		SELECT id, order_id, tier_id, tier_name, quantity, unit_price_cents
		FROM order_items
		WHERE order_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []*entity.OrderItem
	for rows.Next() {
		var item entity.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.TierID,
			&item.TierName,
			&item.Quantity,
			&item.UnitPriceCents,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, &item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return items, nil
}

func (r *orderRepository) GetAll(ctx context.Context) ([]*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*entity.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	for _, order := range orders {
		order.Items, err = r.getItems(ctx, order.ID)
		if err != nil {
			return nil, err
		}
	}

	return orders, nil
}

func (r *orderRepository) SetSessionID(ctx context.Context, id int64, sessionID string) error {
	query := `UPDATE orders SET session_id = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, sessionID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set order session id: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrOrderNotFound
	}

	return nil
}

// TransitionStatus moves the order from one status to another only when it
// is still in the expected source status. Returns false (without error)
// when another caller already moved it, which is how concurrent finalize
// attempts detect they lost the race.
func (r *orderRepository) TransitionStatus(ctx context.Context, id int64, from, to entity.OrderStatus) (bool, error) {
	query := `UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, to, time.Now(), id, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// ReplaceAttendees deletes and re-inserts the order's attendees in one
// transaction. Replace-not-append is what keeps repeated materialization
// from duplicating attendees.
func (r *orderRepository) ReplaceAttendees(ctx context.Context, orderID int64, attendees []*entity.Attendee) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM attendees WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("failed to clear attendees: %w", err)
	}

	query := `
		INSERT INTO attendees (order_id, name, age, tier_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	now := time.Now()
	for _, attendee := range attendees {
		attendee.OrderID = orderID
		err = tx.QueryRowContext(ctx, query,
			orderID,
			attendee.Name,
			attendee.Age,
			attendee.TierID,
			now,
		).Scan(&attendee.ID)
		if err != nil {
			return fmt.Errorf("failed to create attendee: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *orderRepository) GetAttendees(ctx context.Context, orderID int64) ([]*entity.Attendee, error) {
	query := `
		SELECT id, order_id, name, age, tier_id, created_at
		FROM attendees
		WHERE order_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendees: %w", err)
	}
	defer rows.Close()

	var attendees []*entity.Attendee
	for rows.Next() {
		var attendee entity.Attendee
		err := rows.Scan(
			&attendee.ID,
			&attendee.OrderID,
			&attendee.Name,
			&attendee.Age,
			&attendee.TierID,
			&attendee.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendee: %w", err)
		}
		attendees = append(attendees, &attendee)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attendees: %w", err)
	}

	return attendees, nil
}

func (r *orderRepository) UpdateAnswers(ctx context.Context, id int64, answers entity.RegistrationAnswers) error {
	answersRaw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("failed to encode order answers: %w", err)
	}

	query := `UPDATE orders SET answers = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, answersRaw, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update order answers: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrOrderNotFound
	}

	return nil
}

// AdminOverwrite rewrites the order's mutable fields directly, replacing
// items when the order carries any. No status-machine checks here: this
// is the admin escape hatch and deliberately bypasses them.
func (r *orderRepository) AdminOverwrite(ctx context.Context, order *entity.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	answersRaw, err := json.Marshal(order.Answers)
	if err != nil {
		return fmt.Errorf("failed to encode order answers: %w", err)
	}

	query := `
		UPDATE orders
		SET purchaser_name = $1, purchaser_email = $2, payment_method = $3, status = $4,
		    subtotal_cents = $5, fee_cents = $6, donation_cents = $7, total_cents = $8,
		    answers = $9, updated_at = $10
		WHERE id = $11
	`
	result, err := tx.ExecContext(ctx, query,
		order.PurchaserName,
		order.PurchaserEmail,
		order.PaymentMethod,
		order.Status,
		order.SubtotalCents,
		order.FeeCents,
		order.DonationCents,
		order.TotalCents,
		answersRaw,
		time.Now(),
		order.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to overwrite order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrOrderNotFound
	}

	if order.Items != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
			return fmt.Errorf("failed to clear order items: %w", err)
		}

		itemQuery := `
			INSERT INTO order_items (order_id, tier_id, tier_name, quantity, unit_price_cents)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`
		for _, item := range order.Items {
			item.OrderID = order.ID
			err = tx.QueryRowContext(ctx, itemQuery,
				item.OrderID,
				item.TierID,
				item.TierName,
				item.Quantity,
				item.UnitPriceCents,
			).Scan(&item.ID)
			if err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
