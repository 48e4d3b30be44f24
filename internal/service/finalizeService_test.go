package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohana-reunion/backend/config"
	"github.com/ohana-reunion/backend/internal/entity"
	"github.com/ohana-reunion/backend/pkg/mailer"
	"github.com/ohana-reunion/backend/pkg/payment"
)

func newTestFinalize(t *testing.T) (FinalizeService, *fakeTierRepo, *fakeOrderRepo) {
	t.Helper()
	tierRepo := newFakeTierRepo()
	orderRepo := newFakeOrderRepo()
	svc := NewFinalizeService(tierRepo, orderRepo, payment.NewClient(payment.Config{}), mailer.NewMailer(config.MailConfig{}))
	return svc, tierRepo, orderRepo
}

// seedPendingOrder creates a pending card order for one adult against a
// tier with limited inventory.
func seedPendingOrder(t *testing.T, tierRepo *fakeTierRepo, orderRepo *fakeOrderRepo) *entity.Order {
	t.Helper()

	adult := tier(0, "Adult", 5000, intPtr(13), nil)
	adult.Inventory = intPtr(5)
	tierRepo.add(adult)

	order := &entity.Order{
		Reference:      uuid.New(),
		PurchaserName:  "Keanu",
		PurchaserEmail: "keanu@example.com",
		PaymentMethod:  entity.PaymentMethodCard,
		Status:         entity.OrderStatusPending,
		SubtotalCents:  5000,
		TotalCents:     5000,
		SessionID:      "cs_123",
		Answers: entity.RegistrationAnswers{
			People: []entity.Participant{attendee("Keanu", 40)},
		},
		Items: []*entity.OrderItem{
			{TierID: adult.ID, TierName: adult.Name, Quantity: 1, UnitPriceCents: 5000},
		},
	}
	require.NoError(t, orderRepo.CreateWithItems(context.Background(), order))
	return order
}

func TestMarkPaidFinalizesOnce(t *testing.T) {
	svc, tierRepo, orderRepo := newTestFinalize(t)
	order := seedPendingOrder(t, tierRepo, orderRepo)

	first, err := svc.MarkPaid(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, first.Finalized)
	assert.Equal(t, entity.OrderStatusPaid, first.Order.Status)

	adult, err := tierRepo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 4, *adult.Inventory)

	attendees, err := orderRepo.GetAttendees(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, attendees, 1)
	assert.Equal(t, "Keanu", attendees[0].Name)

	// Second finalize is a no-op: no second decrement, no duplicate
	// attendees, Finalized false.
	second, err := svc.MarkPaid(context.Background(), order.ID)
	require.NoError(t, err)
	assert.False(t, second.Finalized)
	assert.Equal(t, entity.OrderStatusPaid, second.Order.Status)

	adult, err = tierRepo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 4, *adult.Inventory)

	attendees, err = orderRepo.GetAttendees(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, attendees, 1)
}

func TestMarkPaidCanceledOrderFails(t *testing.T) {
	svc, tierRepo, orderRepo := newTestFinalize(t)
	order := seedPendingOrder(t, tierRepo, orderRepo)

	won, err := orderRepo.TransitionStatus(context.Background(), order.ID, entity.OrderStatusPending, entity.OrderStatusCanceled)
	require.NoError(t, err)
	require.True(t, won)

	_, err = svc.MarkPaid(context.Background(), order.ID)
	assert.ErrorIs(t, err, entity.ErrInvalidOrderStatus)
}

func TestWebhookCompletedFinalizes(t *testing.T) {
	svc, tierRepo, orderRepo := newTestFinalize(t)
	order := seedPendingOrder(t, tierRepo, orderRepo)

	event := &payment.Event{
		ID:   "evt_1",
		Type: payment.EventSessionCompleted,
		Session: payment.Session{
			ID:              "cs_123",
			PaymentStatus:   payment.PaymentStatusPaid,
			ClientReference: order.Reference.String(),
		},
	}
	require.NoError(t, svc.HandleWebhookEvent(context.Background(), event))

	got, err := orderRepo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusPaid, got.Status)
}

func TestWebhookCompletedUnpaidLeavesPending(t *testing.T) {
	svc, tierRepo, orderRepo := newTestFinalize(t)
	order := seedPendingOrder(t, tierRepo, orderRepo)

	event := &payment.Event{
		ID:   "evt_1",
		Type: payment.EventSessionCompleted,
		Session: payment.Session{
			ID:            "cs_123",
			PaymentStatus: "unpaid",
		},
	}
	require.NoError(t, svc.HandleWebhookEvent(context.Background(), event))

	got, err := orderRepo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusPending, got.Status)
}

func TestWebhookExpiredCancelsPendingOnly(t *testing.T) {
	svc, tierRepo, orderRepo := newTestFinalize(t)
	order := seedPendingOrder(t, tierRepo, orderRepo)

	expired := &payment.Event{
		ID:      "evt_2",
		Type:    payment.EventSessionExpired,
		Session: payment.Session{ID: "cs_123"},
	}
	require.NoError(t, svc.HandleWebhookEvent(context.Background(), expired))

	got, err := orderRepo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusCanceled, got.Status)

	// A late expiry event after payment must not claw back a paid order.
	svc2, tierRepo2, orderRepo2 := newTestFinalize(t)
	order2 := seedPendingOrder(t, tierRepo2, orderRepo2)

	_, err = svc2.MarkPaid(context.Background(), order2.ID)
	require.NoError(t, err)
	require.NoError(t, svc2.HandleWebhookEvent(context.Background(), expired))

	got2, err := orderRepo2.GetByID(context.Background(), order2.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusPaid, got2.Status)
}

func TestFinalizeBySession(t *testing.T) {
	// The provider answers session fetches; its reported payment status is
	// the only thing allowed to finalize the order on the return path.
	paymentStatus := "unpaid"
	providerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions/cs_123", r.URL.Path)
		_ = json.NewEncoder(w).Encode(payment.Session{
			ID:            "cs_123",
			PaymentStatus: paymentStatus,
			Status:        "complete",
		})
	}))
	defer providerSrv.Close()

	tierRepo := newFakeTierRepo()
	orderRepo := newFakeOrderRepo()
	client := payment.NewClient(payment.Config{APIBase: providerSrv.URL, SecretKey: "sk_test"})
	svc := NewFinalizeService(tierRepo, orderRepo, client, mailer.NewMailer(config.MailConfig{}))
	order := seedPendingOrder(t, tierRepo, orderRepo)

	t.Run("unsettled session leaves the order pending", func(t *testing.T) {
		res, err := svc.FinalizeBySession(context.Background(), "cs_123")
		require.NoError(t, err)
		assert.False(t, res.Finalized)

		got, err := orderRepo.GetByID(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.OrderStatusPending, got.Status)

		adult, err := tierRepo.GetByID(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, 5, *adult.Inventory)
	})

	t.Run("settled session finalizes", func(t *testing.T) {
		paymentStatus = payment.PaymentStatusPaid

		res, err := svc.FinalizeBySession(context.Background(), "cs_123")
		require.NoError(t, err)
		assert.True(t, res.Finalized)
		assert.Equal(t, entity.OrderStatusPaid, res.Order.Status)

		adult, err := tierRepo.GetByID(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, 4, *adult.Inventory)
	})

	t.Run("unknown session never reaches the provider", func(t *testing.T) {
		_, err := svc.FinalizeBySession(context.Background(), "cs_missing")
		assert.ErrorIs(t, err, entity.ErrOrderNotFound)
	})
}

func TestCancelBySessionReturnsCanceledOrder(t *testing.T) {
	svc, tierRepo, orderRepo := newTestFinalize(t)
	order := seedPendingOrder(t, tierRepo, orderRepo)

	got, err := svc.CancelBySession(context.Background(), "cs_123")
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.Equal(t, entity.OrderStatusCanceled, got.Status)

	// Canceling twice is a no-op.
	got, err = svc.CancelBySession(context.Background(), "cs_123")
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusCanceled, got.Status)

	_, err = svc.CancelBySession(context.Background(), "cs_missing")
	assert.ErrorIs(t, err, entity.ErrOrderNotFound)
}

func TestCancelWinningFinalizeRaceReleasesInventory(t *testing.T) {
	svc, tierRepo, orderRepo := newTestFinalize(t)
	order := seedPendingOrder(t, tierRepo, orderRepo)

	// A cancel lands between the inventory debit and the status flip.
	orderRepo.beforeTransition = func(from, to entity.OrderStatus) {
		orderRepo.beforeTransition = nil
		won, err := orderRepo.TransitionStatus(context.Background(), order.ID, entity.OrderStatusPending, entity.OrderStatusCanceled)
		require.NoError(t, err)
		require.True(t, won)
	}

	_, err := svc.MarkPaid(context.Background(), order.ID)
	assert.ErrorIs(t, err, entity.ErrInvalidOrderStatus)

	// The canceled order holds no inventory and no attendees.
	adult, err := tierRepo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 5, *adult.Inventory)

	attendees, err := orderRepo.GetAttendees(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Empty(t, attendees)
}

func TestWebhookUnknownSession(t *testing.T) {
	svc, _, _ := newTestFinalize(t)

	event := &payment.Event{
		ID:      "evt_3",
		Type:    payment.EventSessionCompleted,
		Session: payment.Session{ID: "cs_missing", PaymentStatus: payment.PaymentStatusPaid},
	}
	err := svc.HandleWebhookEvent(context.Background(), event)
	assert.ErrorIs(t, err, entity.ErrOrderNotFound)
}

func TestFinalizeConcurrentAttempts(t *testing.T) {
	svc, tierRepo, orderRepo := newTestFinalize(t)
	order := seedPendingOrder(t, tierRepo, orderRepo)

	const attempts = 8
	results := make(chan *FinalizeResult, attempts)
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		go func() {
			res, err := svc.MarkPaid(context.Background(), order.ID)
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}()
	}

	finalized := 0
	for i := 0; i < attempts; i++ {
		select {
		case res := <-results:
			if res.Finalized {
				finalized++
			}
		case err := <-errs:
			t.Fatalf("finalize attempt failed: %v", err)
		}
	}

	// Exactly one attempt wins; the inventory moved exactly once.
	assert.Equal(t, 1, finalized)
	adult, err := tierRepo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 4, *adult.Inventory)
}
