package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ohana-reunion/backend/internal/entity"
)

// In-memory repository fakes that mirror the Postgres semantics the
// services rely on: conditional status transitions, per-(order, tier)
// debit idempotency and attendee replacement.

type debitKey struct {
	orderID int64
	tierID  int64
}

type fakeTierRepo struct {
	mu     sync.Mutex
	nextID int64
	tiers  map[int64]*entity.TicketTier
	debits map[debitKey]int
}

func newFakeTierRepo() *fakeTierRepo {
	return &fakeTierRepo{
		tiers:  map[int64]*entity.TicketTier{},
		debits: map[debitKey]int{},
	}
}

func (f *fakeTierRepo) add(tier *entity.TicketTier) *entity.TicketTier {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	tier.ID = f.nextID
	f.tiers[tier.ID] = tier
	return tier
}

func (f *fakeTierRepo) Create(ctx context.Context, tier *entity.TicketTier) error {
	f.add(tier)
	return nil
}

func (f *fakeTierRepo) GetByID(ctx context.Context, id int64) (*entity.TicketTier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tier, ok := f.tiers[id]
	if !ok {
		return nil, entity.ErrTierNotFound
	}
	return tier, nil
}

func (f *fakeTierRepo) GetAll(ctx context.Context) ([]*entity.TicketTier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.TicketTier
	for id := int64(1); id <= f.nextID; id++ {
		if tier, ok := f.tiers[id]; ok {
			out = append(out, tier)
		}
	}
	return out, nil
}

func (f *fakeTierRepo) GetActive(ctx context.Context) ([]*entity.TicketTier, error) {
	all, _ := f.GetAll(ctx)
	var out []*entity.TicketTier
	for _, tier := range all {
		if tier.Active {
			out = append(out, tier)
		}
	}
	return out, nil
}

func (f *fakeTierRepo) Update(ctx context.Context, tier *entity.TicketTier) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tiers[tier.ID]; !ok {
		return entity.ErrTierNotFound
	}
	f.tiers[tier.ID] = tier
	return nil
}

func (f *fakeTierRepo) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tiers[id]; !ok {
		return entity.ErrTierNotFound
	}
	delete(f.tiers, id)
	return nil
}

func (f *fakeTierRepo) EnsureApparelTier(ctx context.Context, name string, priceCents int64) (*entity.TicketTier, error) {
	f.mu.Lock()
	for _, tier := range f.tiers {
		if tier.Name == name && tier.PriceCents == priceCents {
			f.mu.Unlock()
			return tier, nil
		}
	}
	f.mu.Unlock()
	return f.add(&entity.TicketTier{
		Name:       name,
		PriceCents: priceCents,
		Position:   1000,
		Active:     true,
		Apparel:    true,
	}), nil
}

func (f *fakeTierRepo) ApplyOrderDebits(ctx context.Context, orderID int64, items []*entity.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range items {
		tier, ok := f.tiers[item.TierID]
		if !ok {
			return entity.ErrTierNotFound
		}
		if tier.Inventory == nil {
			continue
		}
		key := debitKey{orderID: orderID, tierID: item.TierID}
		if _, ok := f.debits[key]; ok {
			continue
		}
		if *tier.Inventory < item.Quantity {
			return entity.ErrInsufficientInventory
		}
		f.debits[key] = item.Quantity
		*tier.Inventory -= item.Quantity
	}
	return nil
}

func (f *fakeTierRepo) ReleaseOrderDebits(ctx context.Context, orderID int64, items []*entity.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range items {
		key := debitKey{orderID: orderID, tierID: item.TierID}
		quantity, ok := f.debits[key]
		if !ok {
			continue
		}
		delete(f.debits, key)
		if tier, ok := f.tiers[item.TierID]; ok && tier.Inventory != nil {
			*tier.Inventory += quantity
		}
	}
	return nil
}

type fakeOrderRepo struct {
	mu        sync.Mutex
	nextID    int64
	orders    map[int64]*entity.Order
	attendees map[int64][]*entity.Attendee

	// beforeTransition, when set, runs at the top of TransitionStatus so a
	// test can interleave a competing status change.
	beforeTransition func(from, to entity.OrderStatus)
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:    map[int64]*entity.Order{},
		attendees: map[int64][]*entity.Attendee{},
	}
}

func (f *fakeOrderRepo) CreateWithItems(ctx context.Context, order *entity.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	order.ID = f.nextID
	for _, item := range order.Items {
		item.OrderID = order.ID
	}
	f.orders[order.ID] = order
	return nil
}

// copyOrder hands callers their own Order value, the way a row scan
// would, so concurrent finalize attempts in tests do not share memory.
func copyOrder(order *entity.Order) *entity.Order {
	clone := *order
	return &clone
}

func (f *fakeOrderRepo) GetByID(ctx context.Context, id int64) (*entity.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, entity.ErrOrderNotFound
	}
	return copyOrder(order), nil
}

func (f *fakeOrderRepo) GetByReference(ctx context.Context, ref uuid.UUID) (*entity.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, order := range f.orders {
		if order.Reference == ref {
			return copyOrder(order), nil
		}
	}
	return nil, entity.ErrOrderNotFound
}

func (f *fakeOrderRepo) GetBySessionID(ctx context.Context, sessionID string) (*entity.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, order := range f.orders {
		if order.SessionID == sessionID {
			return copyOrder(order), nil
		}
	}
	return nil, entity.ErrOrderNotFound
}

func (f *fakeOrderRepo) GetAll(ctx context.Context) ([]*entity.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Order
	for id := int64(1); id <= f.nextID; id++ {
		if order, ok := f.orders[id]; ok {
			out = append(out, order)
		}
	}
	return out, nil
}

func (f *fakeOrderRepo) SetSessionID(ctx context.Context, id int64, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return entity.ErrOrderNotFound
	}
	order.SessionID = sessionID
	return nil
}

func (f *fakeOrderRepo) TransitionStatus(ctx context.Context, id int64, from, to entity.OrderStatus) (bool, error) {
	if f.beforeTransition != nil {
		f.beforeTransition(from, to)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return false, entity.ErrOrderNotFound
	}
	if order.Status != from {
		return false, nil
	}
	order.Status = to
	return true, nil
}

func (f *fakeOrderRepo) ReplaceAttendees(ctx context.Context, orderID int64, attendees []*entity.Attendee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attendees[orderID] = attendees
	return nil
}

func (f *fakeOrderRepo) GetAttendees(ctx context.Context, orderID int64) ([]*entity.Attendee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attendees[orderID], nil
}

func (f *fakeOrderRepo) UpdateAnswers(ctx context.Context, id int64, answers entity.RegistrationAnswers) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return entity.ErrOrderNotFound
	}
	order.Answers = answers
	return nil
}

func (f *fakeOrderRepo) AdminOverwrite(ctx context.Context, order *entity.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.orders[order.ID]
	if !ok {
		return entity.ErrOrderNotFound
	}
	*existing = *order
	return nil
}

func intPtr(v int) *int { return &v }
