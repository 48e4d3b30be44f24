package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	repository "github.com/ohana-reunion/backend/internal/database/postgres"
	"github.com/ohana-reunion/backend/internal/entity"
)

type adminService struct {
	tierRepo  repository.TierRepository
	orderRepo repository.OrderRepository
}

func NewAdminService(tierRepo repository.TierRepository, orderRepo repository.OrderRepository) AdminService {
	return &adminService{
		tierRepo:  tierRepo,
		orderRepo: orderRepo,
	}
}

func (s *adminService) CreateTier(ctx context.Context, tier *entity.TicketTier) error {
	if err := validateTier(tier); err != nil {
		return err
	}
	return s.tierRepo.Create(ctx, tier)
}

func (s *adminService) UpdateTier(ctx context.Context, tier *entity.TicketTier) error {
	if err := validateTier(tier); err != nil {
		return err
	}
	return s.tierRepo.Update(ctx, tier)
}

func (s *adminService) DeleteTier(ctx context.Context, id int64) error {
	return s.tierRepo.Delete(ctx, id)
}

func (s *adminService) GetAllTiers(ctx context.Context) ([]*entity.TicketTier, error) {
	return s.tierRepo.GetAll(ctx)
}

func validateTier(tier *entity.TicketTier) error {
	if tier.Name == "" {
		return fmt.Errorf("tier name is required: %w", entity.ErrInvalidInput)
	}
	if tier.PriceCents < 0 {
		return fmt.Errorf("tier price cannot be negative: %w", entity.ErrInvalidInput)
	}
	if tier.AgeMin != nil && tier.AgeMax != nil && *tier.AgeMin > *tier.AgeMax {
		return fmt.Errorf("tier age window is inverted: %w", entity.ErrInvalidInput)
	}
	if tier.Inventory != nil && *tier.Inventory < 0 {
		return fmt.Errorf("tier inventory cannot be negative: %w", entity.ErrInvalidInput)
	}
	return nil
}

func (s *adminService) GetOrder(ctx context.Context, id int64) (*entity.Order, error) {
	return s.orderRepo.GetByID(ctx, id)
}

func (s *adminService) GetAllOrders(ctx context.Context) ([]*entity.Order, error) {
	return s.orderRepo.GetAll(ctx)
}

// OverwriteOrder applies an organizer's direct edit. Totals are taken as
// given; this is the correction tool for refunds, comped tickets and
// typo fixes, not a re-run of the pricing pipeline.
func (s *adminService) OverwriteOrder(ctx context.Context, order *entity.Order) error {
	if order.Status != "" {
		switch order.Status {
		case entity.OrderStatusPending, entity.OrderStatusPaid, entity.OrderStatusCanceled:
		default:
			return fmt.Errorf("unknown order status %q: %w", order.Status, entity.ErrInvalidInput)
		}
	}
	if !order.PaymentMethod.Valid() {
		return fmt.Errorf("unknown payment method %q: %w", order.PaymentMethod, entity.ErrInvalidInput)
	}

	if err := s.orderRepo.AdminOverwrite(ctx, order); err != nil {
		return err
	}

	logrus.WithField("order_id", order.ID).Warn("order overwritten by admin")
	return s.rematerialize(ctx, order.ID)
}

func (s *adminService) UpdateParticipant(ctx context.Context, orderID int64, index int, patch ParticipantPatch) (*entity.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(order.Answers.People) {
		return nil, fmt.Errorf("participant index %d out of range: %w", index, entity.ErrInvalidInput)
	}

	p := &order.Answers.People[index]
	if patch.Attending != nil {
		p.Attending = patch.Attending
	}
	if patch.Refunded != nil {
		p.Refunded = *patch.Refunded
	}
	if patch.ShowOnRoster != nil {
		p.ShowOnRoster = *patch.ShowOnRoster
	}

	if err := s.orderRepo.UpdateAnswers(ctx, orderID, order.Answers); err != nil {
		return nil, err
	}
	if err := s.rematerialize(ctx, orderID); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *adminService) DeleteParticipant(ctx context.Context, orderID int64, index int) (*entity.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(order.Answers.People) {
		return nil, fmt.Errorf("participant index %d out of range: %w", index, entity.ErrInvalidInput)
	}

	order.Answers.People = append(order.Answers.People[:index], order.Answers.People[index+1:]...)

	if err := s.orderRepo.UpdateAnswers(ctx, orderID, order.Answers); err != nil {
		return nil, err
	}
	if err := s.rematerialize(ctx, orderID); err != nil {
		return nil, err
	}
	return order, nil
}

// rematerialize rebuilds the attendee set after an edit so the roster
// always reflects the current answer blob.
func (s *adminService) rematerialize(ctx context.Context, orderID int64) error {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	tiers, err := s.tierRepo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	attendees := MaterializeAttendees(order, tiers)
	if err := s.orderRepo.ReplaceAttendees(ctx, orderID, attendees); err != nil {
		return fmt.Errorf("failed to rebuild attendees: %w", err)
	}
	return nil
}

var exportHeader = []string{
	"order_id", "reference", "status", "payment_method",
	"purchaser_name", "purchaser_email",
	"participant_name", "participant_age", "attending",
	"apparel_category", "apparel_size", "apparel_quantity",
	"subtotal_cents", "fee_cents", "donation_cents", "total_cents",
	"created_at",
}

// ExportOrdersCSV flattens every order into one row per participant.
// Orders without participants (apparel-only) still get a single row so
// nothing disappears from the export.
func (s *adminService) ExportOrdersCSV(ctx context.Context) ([]byte, error) {
	orders, err := s.orderRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load orders for export: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, fmt.Errorf("failed to write export header: %w", err)
	}

	for _, order := range orders {
		if len(order.Answers.People) == 0 {
			if err := w.Write(exportRow(order, nil)); err != nil {
				return nil, fmt.Errorf("failed to write export row: %w", err)
			}
			continue
		}
		for i := range order.Answers.People {
			if err := w.Write(exportRow(order, &order.Answers.People[i])); err != nil {
				return nil, fmt.Errorf("failed to write export row: %w", err)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush export: %w", err)
	}
	return buf.Bytes(), nil
}

func exportRow(order *entity.Order, p *entity.Participant) []string {
	row := []string{
		strconv.FormatInt(order.ID, 10),
		order.Reference.String(),
		string(order.Status),
		string(order.PaymentMethod),
		order.PurchaserName,
		order.PurchaserEmail,
	}

	if p != nil {
		age := ""
		if v, ok := p.ParsedAge(); ok {
			age = strconv.Itoa(v)
		}
		apparelCategory, apparelSize, apparelQty := "", "", ""
		if n := p.Apparel.Count(); n > 0 {
			apparelCategory = p.Apparel.Category
			apparelSize = p.Apparel.Size
			apparelQty = strconv.Itoa(n)
		}
		row = append(row,
			p.Name,
			age,
			strconv.FormatBool(p.IsAttending()),
			apparelCategory,
			apparelSize,
			apparelQty,
		)
	} else {
		row = append(row, "", "", "", "", "", "")
	}

	row = append(row,
		strconv.FormatInt(order.SubtotalCents, 10),
		strconv.FormatInt(order.FeeCents, 10),
		strconv.FormatInt(order.DonationCents, 10),
		strconv.FormatInt(order.TotalCents, 10),
		order.CreatedAt.Format("2006-01-02 15:04:05"),
	)
	return row
}
