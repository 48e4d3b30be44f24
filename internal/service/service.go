package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ohana-reunion/backend/internal/entity"
	"github.com/ohana-reunion/backend/pkg/payment"
)

// TierSelection is one submitted catalog line: how many of a tier the
// registrant claims to be buying. The server recomputes the required
// quantities from the participant list and rejects any mismatch.
type TierSelection struct {
	TierID   int64 `json:"tier_id" binding:"required"`
	Quantity int   `json:"quantity" binding:"required,min=1"`
}

// SubmissionRequest is a complete registration submission.
type SubmissionRequest struct {
	PurchaserName  string                     `json:"purchaser_name" binding:"required"`
	PurchaserEmail string                     `json:"purchaser_email" binding:"required,email"`
	PaymentMethod  entity.PaymentMethod       `json:"payment_method" binding:"required"`
	Items          []TierSelection            `json:"items"`
	Answers        entity.RegistrationAnswers `json:"answers"`
}

// SubmissionResult is what a successful submission returns: the created
// order plus where to send the registrant next. Hosted is true when the
// redirect goes to the payment provider rather than our confirmation page.
type SubmissionResult struct {
	Order       *entity.Order `json:"order"`
	RedirectURL string        `json:"redirect_url"`
	Hosted      bool          `json:"hosted"`
}

// Quote is a pricing preview for a submission, computed without creating
// anything.
type Quote struct {
	TicketSubtotalCents  int64 `json:"ticket_subtotal_cents"`
	ApparelSubtotalCents int64 `json:"apparel_subtotal_cents"`
	DonationCents        int64 `json:"donation_cents"`
	FeeCents             int64 `json:"fee_cents"`
	TotalCents           int64 `json:"total_cents"`
}

// FinalizeResult reports the outcome of a finalize attempt. Finalized is
// false when the order was already paid, including when a concurrent
// attempt won the status transition first.
type FinalizeResult struct {
	Order     *entity.Order `json:"order"`
	Finalized bool          `json:"finalized"`
}

type CheckoutService interface {
	// SubmitRegistration validates the submission, prices it, creates the
	// pending order atomically with its items, and routes the registrant
	// to hosted checkout or the manual confirmation page.
	SubmitRegistration(ctx context.Context, req *SubmissionRequest) (*SubmissionResult, error)

	// QuoteSubmission prices a submission without persisting anything.
	QuoteSubmission(ctx context.Context, req *SubmissionRequest) (*Quote, error)

	// GetOrderByReference looks an order up by its public reference, the
	// only identifier a registrant ever sees.
	GetOrderByReference(ctx context.Context, ref uuid.UUID) (*entity.Order, error)

	ListActiveTiers(ctx context.Context) ([]*entity.TicketTier, error)
}

type FinalizeService interface {
	// FinalizeBySession handles the synchronous return-URL path: it asks
	// the provider for the session state and finalizes only if the session
	// reports the payment settled.
	FinalizeBySession(ctx context.Context, sessionID string) (*FinalizeResult, error)

	// HandleWebhookEvent handles the asynchronous confirmation path.
	HandleWebhookEvent(ctx context.Context, event *payment.Event) error

	// MarkPaid finalizes an order without consulting the provider. Used
	// for manual settlement (wallet, mailed check) and admin corrections.
	MarkPaid(ctx context.Context, orderID int64) (*FinalizeResult, error)

	// CancelBySession moves a pending order to canceled after its hosted
	// session was abandoned, and returns the order for the redirect back
	// to the confirmation page.
	CancelBySession(ctx context.Context, sessionID string) (*entity.Order, error)
}

// ParticipantPatch is a partial update of one participant's flags; nil
// fields are left alone.
type ParticipantPatch struct {
	Attending    *bool `json:"attending,omitempty"`
	Refunded     *bool `json:"refunded,omitempty"`
	ShowOnRoster *bool `json:"show_on_roster,omitempty"`
}

type AdminService interface {
	// Catalog management
	CreateTier(ctx context.Context, tier *entity.TicketTier) error
	UpdateTier(ctx context.Context, tier *entity.TicketTier) error
	DeleteTier(ctx context.Context, id int64) error
	GetAllTiers(ctx context.Context) ([]*entity.TicketTier, error)

	// Order management
	GetOrder(ctx context.Context, id int64) (*entity.Order, error)
	GetAllOrders(ctx context.Context) ([]*entity.Order, error)
	OverwriteOrder(ctx context.Context, order *entity.Order) error

	// Participant management on an existing order
	UpdateParticipant(ctx context.Context, orderID int64, index int, patch ParticipantPatch) (*entity.Order, error)
	DeleteParticipant(ctx context.Context, orderID int64, index int) (*entity.Order, error)

	// ExportOrdersCSV streams every order as one CSV row per participant.
	ExportOrdersCSV(ctx context.Context) ([]byte, error)
}
