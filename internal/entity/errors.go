package entity

import (
	"errors"
	"fmt"
)

var (
	// Tier errors
	ErrTierNotFound          = errors.New("ticket tier not found")
	ErrInsufficientInventory = errors.New("not enough tier inventory")

	// Order errors
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidOrderStatus = errors.New("invalid order status transition")

	// General errors
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized access")
)

// RejectionCode identifies why a registration submission was refused.
// Every code is user-recoverable by correcting the submission.
type RejectionCode string

const (
	RejectMissingAge           RejectionCode = "missing_age"
	RejectUnmatchedAge         RejectionCode = "unmatched_age"
	RejectQuantityMismatch     RejectionCode = "quantity_mismatch"
	RejectInsufficientStock    RejectionCode = "insufficient_inventory"
	RejectMissingWalletHandle  RejectionCode = "missing_payment_handle"
	RejectMailingNotConfirmed  RejectionCode = "mailing_address_not_confirmed"
	RejectNoTicketsSelected    RejectionCode = "no_tickets_selected"
	RejectInvalidPaymentMethod RejectionCode = "invalid_payment_method"
)

// Rejection is a reason-coded validation failure. The code is machine
// readable; Message is safe to show to the registrant.
type Rejection struct {
	Code     RejectionCode `json:"code"`
	Message  string        `json:"message"`
	TierName string        `json:"tier_name,omitempty"`
	Age      int           `json:"age,omitempty"`
	Required int           `json:"required,omitempty"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("registration rejected (%s): %s", r.Code, r.Message)
}

// AsRejection unwraps err into a Rejection when it is one.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
