package postgres

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/ohana-reunion/backend/config"

	_ "github.com/lib/pq"
)

func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to PostgreSQL")
	return db, nil
}

func RunMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tiers (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			price_cents BIGINT NOT NULL,
			age_min INTEGER,
			age_max INTEGER,
			inventory INTEGER,
			position INTEGER NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			apparel BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			CHECK (age_min IS NULL OR age_max IS NULL OR age_min <= age_max)
		)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id SERIAL PRIMARY KEY,
			reference UUID UNIQUE NOT NULL,
			purchaser_name VARCHAR(255) NOT NULL,
			purchaser_email VARCHAR(255) NOT NULL,
			payment_method VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			subtotal_cents BIGINT NOT NULL DEFAULT 0,
			fee_cents BIGINT NOT NULL DEFAULT 0,
			donation_cents BIGINT NOT NULL DEFAULT 0,
			total_cents BIGINT NOT NULL DEFAULT 0,
			answers JSONB NOT NULL DEFAULT '{}',
			session_id VARCHAR(255),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS order_items (
			id SERIAL PRIMARY KEY,
			order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			tier_id INTEGER NOT NULL REFERENCES tiers(id),
			tier_name VARCHAR(255) NOT NULL,
			quantity INTEGER NOT NULL,
			unit_price_cents BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS attendees (
			id SERIAL PRIMARY KEY,
			order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			age INTEGER NOT NULL,
			tier_id INTEGER REFERENCES tiers(id),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		// Order-scoped inventory decrements. The primary key is what makes a
		// duplicate finalize call a no-op instead of a double decrement.
		`CREATE TABLE IF NOT EXISTS inventory_debits (
			order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			tier_id INTEGER NOT NULL REFERENCES tiers(id),
			quantity INTEGER NOT NULL,
			PRIMARY KEY (order_id, tier_id)
		)`,

		// Backs the idempotent self-healing apparel tier creation.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tiers_name_price ON tiers(name, price_cents)`,

		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_session_id ON orders(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attendees_order_id ON attendees(order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tiers_active ON tiers(active)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %v", err)
		}
	}

	log.Println("Database migrations completed successfully")
	return nil
}
