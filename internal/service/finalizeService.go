package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	repository "github.com/ohana-reunion/backend/internal/database/postgres"
	"github.com/ohana-reunion/backend/internal/entity"
	"github.com/ohana-reunion/backend/pkg/mailer"
	"github.com/ohana-reunion/backend/pkg/payment"
)

type finalizeService struct {
	tierRepo  repository.TierRepository
	orderRepo repository.OrderRepository
	provider  *payment.Client
	mail      *mailer.Mailer
}

func NewFinalizeService(
	tierRepo repository.TierRepository,
	orderRepo repository.OrderRepository,
	provider *payment.Client,
	mail *mailer.Mailer,
) FinalizeService {
	return &finalizeService{
		tierRepo:  tierRepo,
		orderRepo: orderRepo,
		provider:  provider,
		mail:      mail,
	}
}

// FinalizeBySession serves the return-URL path. The registrant's browser
// arriving back proves nothing by itself, so the session state is fetched
// from the provider and only a settled payment finalizes the order.
func (s *finalizeService) FinalizeBySession(ctx context.Context, sessionID string) (*FinalizeResult, error) {
	order, err := s.orderRepo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	session, err := s.provider.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch checkout session: %w", err)
	}
	if !session.Paid() {
		logrus.WithFields(logrus.Fields{
			"order_id":       order.ID,
			"session_id":     sessionID,
			"payment_status": session.PaymentStatus,
		}).Info("return visit with unsettled session, leaving order pending")
		return &FinalizeResult{Order: order, Finalized: false}, nil
	}

	return s.finalize(ctx, order)
}

// HandleWebhookEvent serves the asynchronous confirmation path. The two
// paths race each other routinely; finalize is idempotent, so whichever
// arrives second is a no-op.
func (s *finalizeService) HandleWebhookEvent(ctx context.Context, event *payment.Event) error {
	order, err := s.orderRepo.GetBySessionID(ctx, event.Session.ID)
	if err != nil {
		return err
	}

	switch event.Type {
	case payment.EventSessionCompleted:
		if !event.Session.Paid() {
			logrus.WithFields(logrus.Fields{
				"order_id": order.ID,
				"event_id": event.ID,
			}).Info("session completed without settled payment, waiting for follow-up event")
			return nil
		}
		_, err := s.finalize(ctx, order)
		return err

	case payment.EventSessionExpired, payment.EventPaymentFailed:
		return s.cancel(ctx, order, event.Type)

	default:
		logrus.WithField("type", event.Type).Debug("ignoring unhandled webhook event type")
		return nil
	}
}

// MarkPaid records a manual settlement. Same finalize machinery as the
// hosted paths, just without a provider check in front of it.
func (s *finalizeService) MarkPaid(ctx context.Context, orderID int64) (*FinalizeResult, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.finalize(ctx, order)
}

// CancelBySession serves the cancel return-URL: the registrant backed out
// of the hosted payment page, so the pending order is closed out and the
// browser continues to the confirmation page with the canceled order.
func (s *finalizeService) CancelBySession(ctx context.Context, sessionID string) (*entity.Order, error) {
	order, err := s.orderRepo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.cancel(ctx, order, "checkout abandoned"); err != nil {
		return nil, err
	}
	return s.orderRepo.GetByID(ctx, order.ID)
}

// finalize moves an order from pending to paid exactly once. The steps
// run in a deliberate order:
//
//  1. a paid order returns immediately with Finalized false
//  2. inventory debits apply, keyed per (order, tier) so re-runs do not
//     decrement twice
//  3. attendees are replaced, not appended
//  4. the status flips conditionally; losing that race to another
//     finalizer is success with Finalized false, losing it to a cancel
//     releases the debits and surfaces the conflict
//
// A failure between steps leaves the order pending and every completed
// step safe to repeat on the next attempt.
func (s *finalizeService) finalize(ctx context.Context, order *entity.Order) (*FinalizeResult, error) {
	if order.Status == entity.OrderStatusPaid {
		return &FinalizeResult{Order: order, Finalized: false}, nil
	}
	if order.Status == entity.OrderStatusCanceled {
		return nil, fmt.Errorf("order %d is canceled: %w", order.ID, entity.ErrInvalidOrderStatus)
	}

	if err := s.tierRepo.ApplyOrderDebits(ctx, order.ID, order.Items); err != nil {
		return nil, fmt.Errorf("failed to apply inventory debits: %w", err)
	}

	tiers, err := s.tierRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	attendees := MaterializeAttendees(order, tiers)
	if err := s.orderRepo.ReplaceAttendees(ctx, order.ID, attendees); err != nil {
		return nil, fmt.Errorf("failed to materialize attendees: %w", err)
	}

	won, err := s.orderRepo.TransitionStatus(ctx, order.ID, entity.OrderStatusPending, entity.OrderStatusPaid)
	if err != nil {
		return nil, err
	}
	if !won {
		current, err := s.orderRepo.GetByID(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == entity.OrderStatusCanceled {
			// A cancel won the race after the debits applied. Hand the
			// inventory back before reporting the conflict.
			if err := s.releaseOrder(ctx, current); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("order %d was canceled during finalization: %w", order.ID, entity.ErrInvalidOrderStatus)
		}
		return &FinalizeResult{Order: current, Finalized: false}, nil
	}

	order.Status = entity.OrderStatusPaid

	logrus.WithFields(logrus.Fields{
		"order_id":  order.ID,
		"reference": order.Reference,
		"attendees": len(attendees),
	}).Info("order finalized as paid")

	s.sendReceipt(ctx, order)

	return &FinalizeResult{Order: order, Finalized: true}, nil
}

func (s *finalizeService) cancel(ctx context.Context, order *entity.Order, reason string) error {
	won, err := s.orderRepo.TransitionStatus(ctx, order.ID, entity.OrderStatusPending, entity.OrderStatusCanceled)
	if err != nil {
		return err
	}
	if !won {
		// Already paid or already canceled; a late expiry event must not
		// claw back a settled order.
		logrus.WithFields(logrus.Fields{
			"order_id": order.ID,
			"reason":   reason,
		}).Info("cancel skipped, order already left pending")
		return nil
	}

	// A finalize attempt that died between the debit and the status flip
	// may have left inventory held; give it back.
	if err := s.releaseOrder(ctx, order); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"order_id": order.ID,
		"reason":   reason,
	}).Info("order canceled")
	return nil
}

// releaseOrder returns any inventory the order debited and clears its
// attendee rows. Keyed the same way as the debit, so repeating it after a
// partial failure is safe.
func (s *finalizeService) releaseOrder(ctx context.Context, order *entity.Order) error {
	if err := s.tierRepo.ReleaseOrderDebits(ctx, order.ID, order.Items); err != nil {
		return fmt.Errorf("failed to release inventory debits: %w", err)
	}
	if err := s.orderRepo.ReplaceAttendees(ctx, order.ID, nil); err != nil {
		return fmt.Errorf("failed to clear attendees: %w", err)
	}
	return nil
}

func (s *finalizeService) sendReceipt(ctx context.Context, order *entity.Order) {
	err := s.mail.Send(ctx, mailer.Message{
		To:      order.PurchaserEmail,
		Subject: fmt.Sprintf("Payment received (order %s)", order.Reference),
		HTML: fmt.Sprintf("<p>Thanks, %s!</p><p>We received your payment of $%.2f. See you at the reunion!</p>",
			order.PurchaserName, float64(order.TotalCents)/100),
		Text: fmt.Sprintf("We received your payment of $%.2f.", float64(order.TotalCents)/100),
	})
	if err != nil {
		logrus.WithError(err).WithField("order_id", order.ID).Warn("failed to send receipt mail")
	}
}
