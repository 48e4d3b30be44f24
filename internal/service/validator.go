package service

import (
	"fmt"

	"github.com/ohana-reunion/backend/internal/entity"
)

// pricedSubmission is the validator's output: the server-computed truth
// about what a submission buys. Handlers and the checkout flow never
// trust client-sent quantities or amounts; everything downstream prices
// from this.
type pricedSubmission struct {
	// Required maps ticket tier id to the quantity the participant list
	// demands. TicketTiers lists those tiers in catalog order.
	Required    map[int64]int
	TicketTiers []*entity.TicketTier

	Apparel ApparelCounts

	TicketSubtotalCents  int64
	ApparelSubtotalCents int64
	DonationCents        int64
	FeeCents             int64
	TotalCents           int64
}

type validator struct {
	feeCalc           FeeCalculator
	adultApparelCents int64
	youthApparelCents int64
}

// Validate runs the submission rules in a fixed order and returns the
// first failure as an entity.Rejection. A submission that passes comes
// back fully priced.
func (v *validator) Validate(req *SubmissionRequest, tiers []*entity.TicketTier) (*pricedSubmission, error) {
	if !req.PaymentMethod.Valid() {
		return nil, &entity.Rejection{
			Code:    entity.RejectInvalidPaymentMethod,
			Message: fmt.Sprintf("unknown payment method %q", req.PaymentMethod),
		}
	}

	priced := &pricedSubmission{
		Required:      map[int64]int{},
		Apparel:       CountApparel(&req.Answers),
		DonationCents: req.Answers.DonationCents,
	}
	if priced.DonationCents < 0 {
		priced.DonationCents = 0
	}

	if !req.Answers.ApparelOnly {
		if rej := v.requireTickets(req, tiers, priced); rej != nil {
			return nil, rej
		}
	}

	priced.ApparelSubtotalCents = int64(priced.Apparel.Adult)*v.adultApparelCents +
		int64(priced.Apparel.Youth)*v.youthApparelCents

	base := priced.TicketSubtotalCents + priced.ApparelSubtotalCents + priced.DonationCents

	// The surcharge is a card-network pass-through; manual settlement
	// methods pay the base amount exactly.
	if req.PaymentMethod == entity.PaymentMethodCard {
		priced.FeeCents = v.feeCalc.Fee(base)
	}
	priced.TotalCents = base + priced.FeeCents

	if req.PaymentMethod == entity.PaymentMethodWallet && priced.TotalCents > 0 && req.Answers.WalletHandle == "" {
		return nil, &entity.Rejection{
			Code:    entity.RejectMissingWalletHandle,
			Message: "a wallet handle is required to settle this order",
		}
	}
	if req.PaymentMethod == entity.PaymentMethodMail && priced.TotalCents > 0 && !req.Answers.MailingConfirmed {
		return nil, &entity.Rejection{
			Code:    entity.RejectMailingNotConfirmed,
			Message: "please confirm the mailing address before choosing payment by mail",
		}
	}

	if !req.Answers.ApparelOnly && len(priced.Required) == 0 {
		return nil, &entity.Rejection{
			Code:    entity.RejectNoTicketsSelected,
			Message: "no attending participants, so there are no tickets to buy",
		}
	}
	if req.Answers.ApparelOnly && priced.TotalCents == 0 {
		return nil, &entity.Rejection{
			Code:    entity.RejectNoTicketsSelected,
			Message: "the order contains nothing to purchase",
		}
	}

	return priced, nil
}

// requireTickets derives the required per-tier quantities from the
// attending participants, then checks the submitted quantities and the
// catalog inventory against them.
func (v *validator) requireTickets(req *SubmissionRequest, tiers []*entity.TicketTier, priced *pricedSubmission) *entity.Rejection {
	for i := range req.Answers.People {
		p := &req.Answers.People[i]
		if !p.IsAttending() {
			continue
		}

		age, ok := p.ParsedAge()
		if !ok {
			return &entity.Rejection{
				Code:    entity.RejectMissingAge,
				Message: fmt.Sprintf("participant %q has no usable age", p.Name),
			}
		}

		tier := SelectTier(tiers, age)
		if tier == nil {
			return &entity.Rejection{
				Code:    entity.RejectUnmatchedAge,
				Message: fmt.Sprintf("no ticket tier covers age %d", age),
				Age:     age,
			}
		}

		if priced.Required[tier.ID] == 0 {
			priced.TicketTiers = append(priced.TicketTiers, tier)
		}
		priced.Required[tier.ID]++
	}

	submitted := map[int64]int{}
	for _, item := range req.Items {
		submitted[item.TierID] += item.Quantity
	}

	// Compare in catalog order so the reported tier is deterministic.
	// A submitted quantity on a tier nobody needs is as much a mismatch
	// as a short count on one they do.
	for _, tier := range tiers {
		required := priced.Required[tier.ID]
		if submitted[tier.ID] != required {
			return &entity.Rejection{
				Code:     entity.RejectQuantityMismatch,
				Message:  fmt.Sprintf("tier %q needs quantity %d, got %d", tier.Name, required, submitted[tier.ID]),
				TierName: tier.Name,
				Required: required,
			}
		}
		delete(submitted, tier.ID)
	}
	for tierID := range submitted {
		return &entity.Rejection{
			Code:    entity.RejectQuantityMismatch,
			Message: fmt.Sprintf("submitted tier %d is not in the catalog", tierID),
		}
	}

	for _, tier := range priced.TicketTiers {
		required := priced.Required[tier.ID]
		if tier.HasInventoryLimit() && required > *tier.Inventory {
			return &entity.Rejection{
				Code:     entity.RejectInsufficientStock,
				Message:  fmt.Sprintf("tier %q has %d left, %d requested", tier.Name, *tier.Inventory, required),
				TierName: tier.Name,
				Required: required,
			}
		}
		priced.TicketSubtotalCents += int64(required) * tier.PriceCents
	}

	return nil
}
