package entity

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusCanceled OrderStatus = "canceled"
)

type PaymentMethod string

const (
	// PaymentMethodCard is hosted checkout through the card processor.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodWallet is an external wallet handle settled manually.
	PaymentMethodWallet PaymentMethod = "wallet"
	// PaymentMethodMail is a check mailed to the organizers.
	PaymentMethodMail PaymentMethod = "mail"
)

// IsManual reports whether the method settles outside a hosted session.
func (m PaymentMethod) IsManual() bool {
	return m == PaymentMethodWallet || m == PaymentMethodMail
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodWallet, PaymentMethodMail:
		return true
	}
	return false
}

// Order is the authoritative transaction record. Status only moves
// pending->paid or pending->canceled; paid and canceled are terminal.
type Order struct {
	ID             int64               `json:"id" db:"id"`
	Reference      uuid.UUID           `json:"reference" db:"reference"`
	PurchaserName  string              `json:"purchaser_name" db:"purchaser_name"`
	PurchaserEmail string              `json:"purchaser_email" db:"purchaser_email"`
	PaymentMethod  PaymentMethod       `json:"payment_method" db:"payment_method"`
	Status         OrderStatus         `json:"status" db:"status"`
	SubtotalCents  int64               `json:"subtotal_cents" db:"subtotal_cents"`
	FeeCents       int64               `json:"fee_cents" db:"fee_cents"`
	DonationCents  int64               `json:"donation_cents" db:"donation_cents"`
	TotalCents     int64               `json:"total_cents" db:"total_cents"`
	Answers        RegistrationAnswers `json:"answers" db:"answers"`
	SessionID      string              `json:"session_id,omitempty" db:"session_id"`
	CreatedAt      time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at" db:"updated_at"`
	Items          []*OrderItem        `json:"items,omitempty" db:"-"`
}

// OrderItem is a priced snapshot of one tier purchase, created atomically
// with its order. The tier name and unit price are copied so later catalog
// edits do not rewrite history.
type OrderItem struct {
	ID             int64  `json:"id" db:"id"`
	OrderID        int64  `json:"order_id" db:"order_id"`
	TierID         int64  `json:"tier_id" db:"tier_id"`
	TierName       string `json:"tier_name" db:"tier_name"`
	Quantity       int    `json:"quantity" db:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents" db:"unit_price_cents"`
}

// Attendee is one confirmed, attending participant materialized from an
// order's answer blob. Materialization replaces the order's attendee set,
// never appends to it.
type Attendee struct {
	ID        int64     `json:"id" db:"id"`
	OrderID   int64     `json:"order_id" db:"order_id"`
	Name      string    `json:"name" db:"name"`
	Age       int       `json:"age" db:"age"`
	TierID    *int64    `json:"tier_id,omitempty" db:"tier_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
