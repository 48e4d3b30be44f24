package service

import (
	"github.com/ohana-reunion/backend/internal/entity"
)

// Apparel tier catalog names. Tiers under these names are created on
// demand the first time an order needs them; repeated orders at the same
// price point reuse the same row.
const (
	apparelAdultTierName = "Reunion Apparel (Adult)"
	apparelYouthTierName = "Reunion Apparel (Youth)"
)

// SelectTier picks the ticket tier for a participant of the given age.
// Among active, non-apparel tiers whose age window contains the age, the
// cheapest wins; ties go to the narrowest window, then catalog position,
// then id, so the result is deterministic for any catalog.
func SelectTier(tiers []*entity.TicketTier, age int) *entity.TicketTier {
	var best *entity.TicketTier
	for _, tier := range tiers {
		if !tier.Active || tier.Apparel || !tier.MatchesAge(age) {
			continue
		}
		if best == nil || tierLess(tier, best) {
			best = tier
		}
	}
	return best
}

func tierLess(a, b *entity.TicketTier) bool {
	if a.PriceCents != b.PriceCents {
		return a.PriceCents < b.PriceCents
	}
	if a.AgeSpan() != b.AgeSpan() {
		return a.AgeSpan() < b.AgeSpan()
	}
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	return a.ID < b.ID
}

// ApparelCounts is the order-level aggregation of apparel picks: every
// participant selection and every standalone line collapses into two
// buckets, since price depends only on the youth/adult split.
type ApparelCounts struct {
	Youth int
	Adult int
}

func (c ApparelCounts) Total() int {
	return c.Youth + c.Adult
}

// CountApparel aggregates apparel across the whole answer blob.
// Non-positive and unparseable quantities contribute nothing.
func CountApparel(answers *entity.RegistrationAnswers) ApparelCounts {
	var counts ApparelCounts
	for i := range answers.People {
		sel := answers.People[i].Apparel
		if n := sel.Count(); n > 0 {
			if sel.IsYouth() {
				counts.Youth += n
			} else {
				counts.Adult += n
			}
		}
	}
	for i := range answers.ApparelLines {
		line := &answers.ApparelLines[i]
		if n := line.Count(); n > 0 {
			if line.IsYouth() {
				counts.Youth += n
			} else {
				counts.Adult += n
			}
		}
	}
	return counts
}

// FeeCalculator computes the card-processing surcharge that is passed
// through to the purchaser. Percent is in basis points (290 = 2.9%).
type FeeCalculator struct {
	PercentBasisPts int64
	FixedCents      int64
}

// Gross returns the amount to charge so that after the processor takes
// its percentage of the gross plus the fixed fee, the merchant nets
// exactly the base amount:
//
//	gross = ceil((base + fixed) / (1 - percent))
//
// carried out in integer arithmetic. Rounding is always up, so the net
// can only ever exceed the base by fractions of a cent, never fall short.
func (f FeeCalculator) Gross(baseCents int64) int64 {
	if baseCents <= 0 {
		return 0
	}
	den := 10000 - f.PercentBasisPts
	if den <= 0 {
		return baseCents
	}
	num := (baseCents + f.FixedCents) * 10000
	return (num + den - 1) / den
}

// Fee returns just the surcharge portion for the base amount.
func (f FeeCalculator) Fee(baseCents int64) int64 {
	if baseCents <= 0 {
		return 0
	}
	return f.Gross(baseCents) - baseCents
}
