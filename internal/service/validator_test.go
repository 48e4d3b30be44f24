package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohana-reunion/backend/internal/entity"
)

func testValidator() *validator {
	return &validator{
		feeCalc:           FeeCalculator{PercentBasisPts: 290, FixedCents: 30},
		adultApparelCents: 2000,
		youthApparelCents: 1500,
	}
}

func testCatalog() []*entity.TicketTier {
	adult := tier(1, "Adult", 5000, intPtr(13), nil)
	child := tier(2, "Child", 2500, intPtr(3), intPtr(12))
	child.Inventory = intPtr(10)
	free := tier(3, "Under 3", 0, nil, intPtr(2))
	return []*entity.TicketTier{adult, child, free}
}

func attendee(name string, age int) entity.Participant {
	return entity.Participant{Name: name, Age: entity.FlexInt{Value: age, Set: true}}
}

func TestValidateAcceptsMatchingSubmission(t *testing.T) {
	v := testValidator()

	req := &SubmissionRequest{
		PurchaserName:  "Keanu",
		PurchaserEmail: "keanu@example.com",
		PaymentMethod:  entity.PaymentMethodCard,
		Items: []TierSelection{
			{TierID: 1, Quantity: 2},
			{TierID: 2, Quantity: 1},
		},
		Answers: entity.RegistrationAnswers{
			People: []entity.Participant{
				attendee("Keanu", 40),
				attendee("Pua", 38),
				attendee("Malia", 8),
			},
			DonationCents: 1000,
		},
	}

	priced, err := v.Validate(req, testCatalog())
	require.NoError(t, err)

	assert.Equal(t, int64(12500), priced.TicketSubtotalCents)
	assert.Equal(t, int64(1000), priced.DonationCents)
	assert.Equal(t, 2, priced.Required[1])
	assert.Equal(t, 1, priced.Required[2])

	// base 13500, card fee on top
	base := priced.TicketSubtotalCents + priced.DonationCents
	assert.Equal(t, v.feeCalc.Fee(base), priced.FeeCents)
	assert.Equal(t, base+priced.FeeCents, priced.TotalCents)
}

func TestValidateManualMethodsCarryNoFee(t *testing.T) {
	v := testValidator()

	req := &SubmissionRequest{
		PaymentMethod: entity.PaymentMethodWallet,
		Items:         []TierSelection{{TierID: 1, Quantity: 1}},
		Answers: entity.RegistrationAnswers{
			People:       []entity.Participant{attendee("Keanu", 40)},
			WalletHandle: "@keanu",
		},
	}

	priced, err := v.Validate(req, testCatalog())
	require.NoError(t, err)
	assert.Equal(t, int64(0), priced.FeeCents)
	assert.Equal(t, int64(5000), priced.TotalCents)
}

func TestValidateRejections(t *testing.T) {
	v := testValidator()
	notAttending := false

	tests := []struct {
		name     string
		req      *SubmissionRequest
		wantCode entity.RejectionCode
	}{
		{
			name: "unknown payment method",
			req: &SubmissionRequest{
				PaymentMethod: "barter",
			},
			wantCode: entity.RejectInvalidPaymentMethod,
		},
		{
			name: "participant without age",
			req: &SubmissionRequest{
				PaymentMethod: entity.PaymentMethodCard,
				Answers: entity.RegistrationAnswers{
					People: []entity.Participant{{Name: "Nameless"}},
				},
			},
			wantCode: entity.RejectMissingAge,
		},
		{
			name: "tampered quantities",
			req: &SubmissionRequest{
				PaymentMethod: entity.PaymentMethodCard,
				Items: []TierSelection{
					{TierID: 1, Quantity: 1},
					{TierID: 2, Quantity: 1},
				},
				Answers: entity.RegistrationAnswers{
					People: []entity.Participant{
						attendee("Keanu", 40),
						attendee("Pua", 38),
						attendee("Malia", 8),
					},
				},
			},
			wantCode: entity.RejectQuantityMismatch,
		},
		{
			name: "quantity on a tier nobody needs",
			req: &SubmissionRequest{
				PaymentMethod: entity.PaymentMethodCard,
				Items: []TierSelection{
					{TierID: 1, Quantity: 1},
					{TierID: 2, Quantity: 1},
				},
				Answers: entity.RegistrationAnswers{
					People: []entity.Participant{attendee("Keanu", 40)},
				},
			},
			wantCode: entity.RejectQuantityMismatch,
		},
		{
			name: "wallet without handle",
			req: &SubmissionRequest{
				PaymentMethod: entity.PaymentMethodWallet,
				Items:         []TierSelection{{TierID: 1, Quantity: 1}},
				Answers: entity.RegistrationAnswers{
					People: []entity.Participant{attendee("Keanu", 40)},
				},
			},
			wantCode: entity.RejectMissingWalletHandle,
		},
		{
			name: "mail without confirmed address",
			req: &SubmissionRequest{
				PaymentMethod: entity.PaymentMethodMail,
				Items:         []TierSelection{{TierID: 1, Quantity: 1}},
				Answers: entity.RegistrationAnswers{
					People: []entity.Participant{attendee("Keanu", 40)},
				},
			},
			wantCode: entity.RejectMailingNotConfirmed,
		},
		{
			name: "nobody attending",
			req: &SubmissionRequest{
				PaymentMethod: entity.PaymentMethodCard,
				Answers: entity.RegistrationAnswers{
					People: []entity.Participant{
						{Name: "Skip", Age: entity.FlexInt{Value: 40, Set: true}, Attending: &notAttending},
					},
				},
			},
			wantCode: entity.RejectNoTicketsSelected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.req, testCatalog())
			require.Error(t, err)
			rej, ok := entity.AsRejection(err)
			require.True(t, ok, "expected a rejection, got %v", err)
			assert.Equal(t, tt.wantCode, rej.Code)
		})
	}
}

func TestValidateUnmatchedAge(t *testing.T) {
	v := testValidator()

	// A catalog with a gap: no tier covers ages 13 through 17.
	catalog := []*entity.TicketTier{
		tier(1, "Adult", 5000, intPtr(18), nil),
		tier(2, "Child", 2500, nil, intPtr(12)),
	}

	req := &SubmissionRequest{
		PaymentMethod: entity.PaymentMethodCard,
		Answers: entity.RegistrationAnswers{
			People: []entity.Participant{attendee("Teen", 15)},
		},
	}

	_, err := v.Validate(req, catalog)
	rej, ok := entity.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, entity.RejectUnmatchedAge, rej.Code)
	assert.Equal(t, 15, rej.Age)
}

func TestValidateQuantityMismatchReportsFirstCatalogTier(t *testing.T) {
	v := testValidator()

	// Two adults and one child attending, but the submission claims one
	// adult. The adult tier is first in the catalog, so it is the one
	// reported.
	req := &SubmissionRequest{
		PaymentMethod: entity.PaymentMethodCard,
		Items: []TierSelection{
			{TierID: 1, Quantity: 1},
			{TierID: 2, Quantity: 1},
		},
		Answers: entity.RegistrationAnswers{
			People: []entity.Participant{
				attendee("Keanu", 40),
				attendee("Pua", 38),
				attendee("Malia", 8),
			},
		},
	}

	_, err := v.Validate(req, testCatalog())
	rej, ok := entity.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, entity.RejectQuantityMismatch, rej.Code)
	assert.Equal(t, "Adult", rej.TierName)
	assert.Equal(t, 2, rej.Required)
}

func TestValidateInsufficientInventory(t *testing.T) {
	v := testValidator()

	catalog := testCatalog()
	catalog[1].Inventory = intPtr(1)

	req := &SubmissionRequest{
		PaymentMethod: entity.PaymentMethodCard,
		Items:         []TierSelection{{TierID: 2, Quantity: 2}},
		Answers: entity.RegistrationAnswers{
			People: []entity.Participant{
				attendee("Malia", 8),
				attendee("Nalu", 10),
			},
		},
	}

	_, err := v.Validate(req, catalog)
	rej, ok := entity.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, entity.RejectInsufficientStock, rej.Code)
	assert.Equal(t, "Child", rej.TierName)
	assert.Equal(t, 2, rej.Required)
}

func TestValidateApparelOnlySkipsTicketRules(t *testing.T) {
	v := testValidator()

	req := &SubmissionRequest{
		PaymentMethod: entity.PaymentMethodCard,
		Answers: entity.RegistrationAnswers{
			ApparelOnly: true,
			People: []entity.Participant{
				// No age at all; ticket rules would reject this.
				{Name: "Aunty", Apparel: &entity.ApparelSelection{
					Category: "adult",
					Quantity: entity.FlexInt{Value: 2, Set: true},
				}},
			},
		},
	}

	priced, err := v.Validate(req, testCatalog())
	require.NoError(t, err)
	assert.Equal(t, int64(0), priced.TicketSubtotalCents)
	assert.Equal(t, int64(4000), priced.ApparelSubtotalCents)
	assert.Empty(t, priced.Required)
}

func TestValidateApparelOnlyWithNothingToBuy(t *testing.T) {
	v := testValidator()

	req := &SubmissionRequest{
		PaymentMethod: entity.PaymentMethodCard,
		Answers:       entity.RegistrationAnswers{ApparelOnly: true},
	}

	_, err := v.Validate(req, testCatalog())
	rej, ok := entity.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, entity.RejectNoTicketsSelected, rej.Code)
}

func TestValidateFreeTierNeedsNoPaymentAck(t *testing.T) {
	v := testValidator()

	// A lone toddler registration totals zero, so the wallet handle and
	// mailing confirmation requirements do not apply.
	req := &SubmissionRequest{
		PaymentMethod: entity.PaymentMethodWallet,
		Items:         []TierSelection{{TierID: 3, Quantity: 1}},
		Answers: entity.RegistrationAnswers{
			People: []entity.Participant{attendee("Keiki", 1)},
		},
	}

	priced, err := v.Validate(req, testCatalog())
	require.NoError(t, err)
	assert.Equal(t, int64(0), priced.TotalCents)
}
