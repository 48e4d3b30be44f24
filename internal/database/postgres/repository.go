package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/ohana-reunion/backend/internal/entity"
)

type TierRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tier *entity.TicketTier) error
	GetByID(ctx context.Context, id int64) (*entity.TicketTier, error)
	GetAll(ctx context.Context) ([]*entity.TicketTier, error)
	GetActive(ctx context.Context) ([]*entity.TicketTier, error)
	Update(ctx context.Context, tier *entity.TicketTier) error
	Delete(ctx context.Context, id int64) error

	// EnsureApparelTier finds or creates the catalog tier for an apparel
	// price point. Keyed by (name, price); safe under concurrent first
	// purchases.
	EnsureApparelTier(ctx context.Context, name string, priceCents int64) (*entity.TicketTier, error)

	// ApplyOrderDebits decrements inventory for every inventory-bounded
	// item on the order, exactly once per (order, tier) no matter how many
	// times it is called.
	ApplyOrderDebits(ctx context.Context, orderID int64, items []*entity.OrderItem) error

	// ReleaseOrderDebits returns whatever ApplyOrderDebits took for this
	// order. Pairs that never debited release nothing, so it is as
	// repeatable as the debit itself.
	ReleaseOrderDebits(ctx context.Context, orderID int64, items []*entity.OrderItem) error
}

type OrderRepository interface {
	// CreateWithItems persists the order and its items in one transaction;
	// no caller ever observes an order without its items.
	CreateWithItems(ctx context.Context, order *entity.Order) error

	GetByID(ctx context.Context, id int64) (*entity.Order, error)
	GetByReference(ctx context.Context, ref uuid.UUID) (*entity.Order, error)
	GetBySessionID(ctx context.Context, sessionID string) (*entity.Order, error)
	GetAll(ctx context.Context) ([]*entity.Order, error)

	SetSessionID(ctx context.Context, id int64, sessionID string) error

	// TransitionStatus performs a conditional status move and reports
	// whether this call won the transition.
	TransitionStatus(ctx context.Context, id int64, from, to entity.OrderStatus) (bool, error)

	// ReplaceAttendees swaps the order's attendee set atomically so
	// repeated materialization can never duplicate attendees.
	ReplaceAttendees(ctx context.Context, orderID int64, attendees []*entity.Attendee) error
	GetAttendees(ctx context.Context, orderID int64) ([]*entity.Attendee, error)

	UpdateAnswers(ctx context.Context, id int64, answers entity.RegistrationAnswers) error

	// AdminOverwrite rewrites order fields (and items when provided)
	// directly, bypassing every invariant. Admin escape hatch only.
	AdminOverwrite(ctx context.Context, order *entity.Order) error
}
