package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ohana-reunion/backend/config"
	repository "github.com/ohana-reunion/backend/internal/database/postgres"
	"github.com/ohana-reunion/backend/internal/entity"
	"github.com/ohana-reunion/backend/pkg/mailer"
	"github.com/ohana-reunion/backend/pkg/payment"
)

type checkoutService struct {
	tierRepo  repository.TierRepository
	orderRepo repository.OrderRepository
	provider  *payment.Client
	mail      *mailer.Mailer
	cfg       *config.Config
	validator validator
}

func NewCheckoutService(
	tierRepo repository.TierRepository,
	orderRepo repository.OrderRepository,
	provider *payment.Client,
	mail *mailer.Mailer,
	cfg *config.Config,
) CheckoutService {
	return &checkoutService{
		tierRepo:  tierRepo,
		orderRepo: orderRepo,
		provider:  provider,
		mail:      mail,
		cfg:       cfg,
		validator: validator{
			feeCalc: FeeCalculator{
				PercentBasisPts: cfg.Payment.PercentBasisPts,
				FixedCents:      cfg.Payment.FixedFeeCents,
			},
			adultApparelCents: cfg.Registration.AdultApparelCents,
			youthApparelCents: cfg.Registration.YouthApparelCents,
		},
	}
}

// GetOrderByReference backs the confirmation page, which only ever holds
// the order's reference.
func (s *checkoutService) GetOrderByReference(ctx context.Context, ref uuid.UUID) (*entity.Order, error) {
	return s.orderRepo.GetByReference(ctx, ref)
}

func (s *checkoutService) ListActiveTiers(ctx context.Context) ([]*entity.TicketTier, error) {
	tiers, err := s.tierRepo.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tiers: %w", err)
	}
	return tiers, nil
}

func (s *checkoutService) QuoteSubmission(ctx context.Context, req *SubmissionRequest) (*Quote, error) {
	tiers, err := s.tierRepo.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	priced, err := s.validator.Validate(req, tiers)
	if err != nil {
		return nil, err
	}

	return &Quote{
		TicketSubtotalCents:  priced.TicketSubtotalCents,
		ApparelSubtotalCents: priced.ApparelSubtotalCents,
		DonationCents:        priced.DonationCents,
		FeeCents:             priced.FeeCents,
		TotalCents:           priced.TotalCents,
	}, nil
}

// SubmitRegistration is the single entry point for new registrations.
// The order and its items are created in one transaction before any
// provider call, so a provider outage can never lose a submission: card
// orders that cannot reach the provider fall back to the manual
// confirmation path and stay pending for later settlement.
func (s *checkoutService) SubmitRegistration(ctx context.Context, req *SubmissionRequest) (*SubmissionResult, error) {
	tiers, err := s.tierRepo.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	priced, err := s.validator.Validate(req, tiers)
	if err != nil {
		return nil, err
	}

	items, err := s.buildItems(ctx, priced)
	if err != nil {
		return nil, err
	}

	order := &entity.Order{
		Reference:      uuid.New(),
		PurchaserName:  req.PurchaserName,
		PurchaserEmail: req.PurchaserEmail,
		PaymentMethod:  req.PaymentMethod,
		Status:         entity.OrderStatusPending,
		SubtotalCents:  priced.TicketSubtotalCents + priced.ApparelSubtotalCents,
		FeeCents:       priced.FeeCents,
		DonationCents:  priced.DonationCents,
		TotalCents:     priced.TotalCents,
		Answers:        req.Answers,
		Items:          items,
	}

	if err := s.orderRepo.CreateWithItems(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"order_id":  order.ID,
		"reference": order.Reference,
		"method":    order.PaymentMethod,
		"total":     order.TotalCents,
	}).Info("registration order created")

	if order.PaymentMethod == entity.PaymentMethodCard && s.provider.Enabled() {
		result, err := s.startHostedCheckout(ctx, order)
		if err == nil {
			return result, nil
		}
		logrus.WithError(err).WithField("order_id", order.ID).
			Warn("hosted checkout unavailable, degrading to manual confirmation")
	}

	return s.manualConfirmation(ctx, order, tiers)
}

// buildItems turns the priced submission into order item snapshots,
// creating the apparel catalog tiers on demand.
func (s *checkoutService) buildItems(ctx context.Context, priced *pricedSubmission) ([]*entity.OrderItem, error) {
	var items []*entity.OrderItem

	for _, tier := range priced.TicketTiers {
		items = append(items, &entity.OrderItem{
			TierID:         tier.ID,
			TierName:       tier.Name,
			Quantity:       priced.Required[tier.ID],
			UnitPriceCents: tier.PriceCents,
		})
	}

	if priced.Apparel.Adult > 0 {
		tier, err := s.tierRepo.EnsureApparelTier(ctx, apparelAdultTierName, s.cfg.Registration.AdultApparelCents)
		if err != nil {
			return nil, fmt.Errorf("failed to ensure adult apparel tier: %w", err)
		}
		items = append(items, &entity.OrderItem{
			TierID:         tier.ID,
			TierName:       tier.Name,
			Quantity:       priced.Apparel.Adult,
			UnitPriceCents: tier.PriceCents,
		})
	}
	if priced.Apparel.Youth > 0 {
		tier, err := s.tierRepo.EnsureApparelTier(ctx, apparelYouthTierName, s.cfg.Registration.YouthApparelCents)
		if err != nil {
			return nil, fmt.Errorf("failed to ensure youth apparel tier: %w", err)
		}
		items = append(items, &entity.OrderItem{
			TierID:         tier.ID,
			TierName:       tier.Name,
			Quantity:       priced.Apparel.Youth,
			UnitPriceCents: tier.PriceCents,
		})
	}

	return items, nil
}

func (s *checkoutService) startHostedCheckout(ctx context.Context, order *entity.Order) (*SubmissionResult, error) {
	lineItems := make([]payment.LineItem, 0, len(order.Items)+2)
	for _, item := range order.Items {
		lineItems = append(lineItems, payment.LineItem{
			Name:        item.TierName,
			AmountCents: item.UnitPriceCents,
			Quantity:    item.Quantity,
		})
	}
	if order.DonationCents > 0 {
		lineItems = append(lineItems, payment.LineItem{
			Name:        "Donation",
			AmountCents: order.DonationCents,
			Quantity:    1,
		})
	}
	if order.FeeCents > 0 {
		lineItems = append(lineItems, payment.LineItem{
			Name:        "Processing fee",
			AmountCents: order.FeeCents,
			Quantity:    1,
		})
	}

	session, err := s.provider.CreateSession(ctx, payment.CreateSessionParams{
		Reference:     order.Reference.String(),
		CustomerEmail: order.PurchaserEmail,
		LineItems:     lineItems,
	})
	if err != nil {
		return nil, err
	}

	if err := s.orderRepo.SetSessionID(ctx, order.ID, session.ID); err != nil {
		return nil, fmt.Errorf("failed to save checkout session id: %w", err)
	}
	order.SessionID = session.ID

	logrus.WithFields(logrus.Fields{
		"order_id":   order.ID,
		"session_id": session.ID,
	}).Info("hosted checkout session created")

	return &SubmissionResult{
		Order:       order,
		RedirectURL: session.URL,
		Hosted:      true,
	}, nil
}

// manualConfirmation is the non-hosted path: attendees are materialized
// immediately, the order stays pending until an organizer records the
// payment, and the registrant lands on our own confirmation page.
func (s *checkoutService) manualConfirmation(ctx context.Context, order *entity.Order, tiers []*entity.TicketTier) (*SubmissionResult, error) {
	attendees := MaterializeAttendees(order, tiers)
	if err := s.orderRepo.ReplaceAttendees(ctx, order.ID, attendees); err != nil {
		return nil, fmt.Errorf("failed to materialize attendees: %w", err)
	}

	s.sendPendingMail(ctx, order)

	return &SubmissionResult{
		Order:       order,
		RedirectURL: s.confirmationURL(order),
		Hosted:      false,
	}, nil
}

func (s *checkoutService) confirmationURL(order *entity.Order) string {
	base := s.cfg.Payment.ConfirmationURL
	if base == "" {
		base = "/confirmation"
	}
	q := url.Values{}
	q.Set("order", order.Reference.String())
	q.Set("status", string(order.Status))
	q.Set("method", string(order.PaymentMethod))
	q.Set("amount", strconv.FormatInt(order.TotalCents, 10))
	return base + "?" + q.Encode()
}

// sendPendingMail tells the purchaser how to settle a manual order.
// Mail is best effort; a delivery failure never fails the submission.
func (s *checkoutService) sendPendingMail(ctx context.Context, order *entity.Order) {
	var instructions string
	switch order.PaymentMethod {
	case entity.PaymentMethodWallet:
		instructions = fmt.Sprintf("We will request $%.2f from wallet handle %s.",
			float64(order.TotalCents)/100, order.Answers.WalletHandle)
	case entity.PaymentMethodMail:
		instructions = fmt.Sprintf("Please mail a check for $%.2f to the address you confirmed.",
			float64(order.TotalCents)/100)
	default:
		instructions = fmt.Sprintf("Your balance of $%.2f is due before the event.",
			float64(order.TotalCents)/100)
	}

	err := s.mail.Send(ctx, mailer.Message{
		To:      order.PurchaserEmail,
		Subject: fmt.Sprintf("Registration received (order %s)", order.Reference),
		HTML: fmt.Sprintf("<p>Thanks, %s! Your registration is in.</p><p>%s</p>",
			order.PurchaserName, instructions),
		Text: instructions,
	})
	if err != nil {
		logrus.WithError(err).WithField("order_id", order.ID).Warn("failed to send pending-order mail")
	}
}

// MaterializeAttendees derives the attendee rows for an order from its
// answer blob: one row per attending participant, bound to the tier the
// participant's age selects. Participants without a usable age (possible
// after admin edits) come through with no tier.
func MaterializeAttendees(order *entity.Order, tiers []*entity.TicketTier) []*entity.Attendee {
	if order.Answers.ApparelOnly {
		return nil
	}
	var attendees []*entity.Attendee
	for i := range order.Answers.People {
		p := &order.Answers.People[i]
		if !p.IsAttending() {
			continue
		}
		attendee := &entity.Attendee{
			OrderID: order.ID,
			Name:    p.Name,
		}
		if age, ok := p.ParsedAge(); ok {
			attendee.Age = age
			if tier := SelectTier(tiers, age); tier != nil {
				attendee.TierID = &tier.ID
			}
		}
		attendees = append(attendees, attendee)
	}
	return attendees
}
