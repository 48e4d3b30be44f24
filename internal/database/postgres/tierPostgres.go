package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ohana-reunion/backend/internal/entity"
)

type tierRepository struct {
	db *sql.DB
}

func NewTierRepository(db *sql.DB) TierRepository {
	return &tierRepository{db: db}
}

const tierColumns = `id, name, price_cents, age_min, age_max, inventory, position, active, apparel, created_at, updated_at`

func scanTier(row interface{ Scan(...interface{}) error }) (*entity.TicketTier, error) {
	var tier entity.TicketTier
	err := row.Scan(
		&tier.ID,
		&tier.Name,
		&tier.PriceCents,
		&tier.AgeMin,
		&tier.AgeMax,
		&tier.Inventory,
		&tier.Position,
		&tier.Active,
		&tier.Apparel,
		&tier.CreatedAt,
		&tier.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

func (r *tierRepository) Create(ctx context.Context, tier *entity.TicketTier) error {
	query := `
		INSERT INTO tiers (name, price_cents, age_min, age_max, inventory, position, active, apparel, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		tier.Name,
		tier.PriceCents,
		tier.AgeMin,
		tier.AgeMax,
		tier.Inventory,
		tier.Position,
		tier.Active,
		tier.Apparel,
		now,
		now,
	).Scan(&tier.ID)

	if err != nil {
		return fmt.Errorf("failed to create tier: %w", err)
	}

	tier.CreatedAt = now
	tier.UpdatedAt = now
	return nil
}

func (r *tierRepository) GetByID(ctx context.Context, id int64) (*entity.TicketTier, error) {
	query := `SELECT ` + tierColumns + ` FROM tiers WHERE id = $1`

	tier, err := scanTier(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, entity.ErrTierNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tier: %w", err)
	}
	return tier, nil
}

func (r *tierRepository) GetAll(ctx context.Context) ([]*entity.TicketTier, error) {
	query := `SELECT ` + tierColumns + ` FROM tiers ORDER BY position ASC, id ASC`
	return r.queryTiers(ctx, query)
}

func (r *tierRepository) GetActive(ctx context.Context) ([]*entity.TicketTier, error) {
	query := `SELECT ` + tierColumns + ` FROM tiers WHERE active = TRUE ORDER BY position ASC, id ASC`
	return r.queryTiers(ctx, query)
}

func (r *tierRepository) queryTiers(ctx context.Context, query string, args ...interface{}) ([]*entity.TicketTier, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tiers: %w", err)
	}
	defer rows.Close()

	var tiers []*entity.TicketTier
	for rows.Next() {
		tier, err := scanTier(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tier: %w", err)
		}
		tiers = append(tiers, tier)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tiers: %w", err)
	}

	return tiers, nil
}

func (r *tierRepository) Update(ctx context.Context, tier *entity.TicketTier) error {
	query := `
		UPDATE tiers
		SET name = $1, price_cents = $2, age_min = $3, age_max = $4,
		    inventory = $5, position = $6, active = $7, apparel = $8, updated_at = $9
		WHERE id = $10
	`

	result, err := r.db.ExecContext(ctx, query,
		tier.Name,
		tier.PriceCents,
		tier.AgeMin,
		tier.AgeMax,
		tier.Inventory,
		tier.Position,
		tier.Active,
		tier.Apparel,
		time.Now(),
		tier.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update tier: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrTierNotFound
	}

	return nil
}

func (r *tierRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM tiers WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete tier: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrTierNotFound
	}

	return nil
}

// EnsureApparelTier looks the tier up by its (name, price) key and creates
// it when missing. The conditional insert rides on the unique index over
// (name, price_cents), so two concurrent first purchases cannot create two
// rows; whoever loses the race re-reads the winner's row.
func (r *tierRepository) EnsureApparelTier(ctx context.Context, name string, priceCents int64) (*entity.TicketTier, error) {
	selectQuery := `SELECT ` + tierColumns + ` FROM tiers WHERE name = $1 AND price_cents = $2`

	tier, err := scanTier(r.db.QueryRowContext(ctx, selectQuery, name, priceCents))
	if err == nil {
		return tier, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to look up apparel tier: %w", err)
	}

	now := time.Now()
	insertQuery := `
		INSERT INTO tiers (name, price_cents, position, active, apparel, created_at, updated_at)
		VALUES ($1, $2, 1000, TRUE, TRUE, $3, $3)
		ON CONFLICT (name, price_cents) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, insertQuery, name, priceCents, now); err != nil {
		return nil, fmt.Errorf("failed to create apparel tier: %w", err)
	}

	tier, err = scanTier(r.db.QueryRowContext(ctx, selectQuery, name, priceCents))
	if err != nil {
		return nil, fmt.Errorf("failed to re-read apparel tier: %w", err)
	}
	return tier, nil
}

// ApplyOrderDebits performs the order-scoped inventory decrement. The
// debit row insert is the idempotency key: a (order, tier) pair that
// already debited inserts nothing and decrements nothing, so duplicate
// finalize calls collapse to one effective decrement. Rows are locked so
// two different orders racing for a tier's last unit serialize.
func (r *tierRepository) ApplyOrderDebits(ctx context.Context, orderID int64, items []*entity.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, item := range items {
		var inventory *int
		query := `SELECT inventory FROM tiers WHERE id = $1 FOR UPDATE`
		if err := tx.QueryRowContext(ctx, query, item.TierID).Scan(&inventory); err != nil {
			if err == sql.ErrNoRows {
				return entity.ErrTierNotFound
			}
			return fmt.Errorf("failed to lock tier %d: %w", item.TierID, err)
		}

		// Unbounded tiers have nothing to decrement.
		if inventory == nil {
			continue
		}

		query = `
			INSERT INTO inventory_debits (order_id, tier_id, quantity)
			VALUES ($1, $2, $3)
			ON CONFLICT (order_id, tier_id) DO NOTHING
		`
		result, err := tx.ExecContext(ctx, query, orderID, item.TierID, item.Quantity)
		if err != nil {
			return fmt.Errorf("failed to record inventory debit: %w", err)
		}

		inserted, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if inserted == 0 {
			// This order already debited this tier.
			continue
		}

		query = `UPDATE tiers SET inventory = inventory - $1, updated_at = $2 WHERE id = $3 AND inventory >= $1`
		result, err = tx.ExecContext(ctx, query, item.Quantity, time.Now(), item.TierID)
		if err != nil {
			return fmt.Errorf("failed to decrement tier inventory: %w", err)
		}

		updated, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if updated == 0 {
			return entity.ErrInsufficientInventory
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ReleaseOrderDebits undoes ApplyOrderDebits for an order that ended up
// canceled. The debit row doubles as the release guard: deleting it hands
// back the recorded quantity, and a (order, tier) pair with no row has
// nothing to give back.
func (r *tierRepository) ReleaseOrderDebits(ctx context.Context, orderID int64, items []*entity.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, item := range items {
		var quantity int
		query := `DELETE FROM inventory_debits WHERE order_id = $1 AND tier_id = $2 RETURNING quantity`
		err := tx.QueryRowContext(ctx, query, orderID, item.TierID).Scan(&quantity)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to release inventory debit: %w", err)
		}

		query = `UPDATE tiers SET inventory = inventory + $1, updated_at = $2 WHERE id = $3 AND inventory IS NOT NULL`
		if _, err := tx.ExecContext(ctx, query, quantity, time.Now(), item.TierID); err != nil {
			return fmt.Errorf("failed to restore tier inventory: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
