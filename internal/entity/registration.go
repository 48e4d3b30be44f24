package entity

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ApparelCategoryYouth is the one category priced at the youth rate;
// every other category value is priced as adult.
const ApparelCategoryYouth = "youth"

// FlexInt is an integer captured from a free-form answer blob. Registration
// forms deliver numbers, numeric strings, and blanks interchangeably, so
// parsing is lenient: anything unparseable just leaves Set false.
type FlexInt struct {
	Value int
	Set   bool
}

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		f.Set = false
		return nil
	}
	s = strings.Trim(s, `"`)
	s = strings.TrimSpace(s)
	if s == "" {
		f.Set = false
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		f.Value = n
		f.Set = true
		return nil
	}
	if fv, err := strconv.ParseFloat(s, 64); err == nil && fv == float64(int(fv)) {
		f.Value = int(fv)
		f.Set = true
		return nil
	}
	f.Set = false
	return nil
}

func (f FlexInt) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// ApparelSelection is one participant's clothing pick. Style and size are
// display-only; only the category changes the price.
type ApparelSelection struct {
	Category string  `json:"category"`
	Style    string  `json:"style,omitempty"`
	Size     string  `json:"size,omitempty"`
	Quantity FlexInt `json:"quantity"`
}

// Count returns the effective quantity: non-positive or unparseable
// quantities are dropped, not rejected.
func (a *ApparelSelection) Count() int {
	if a == nil || !a.Quantity.Set || a.Quantity.Value <= 0 {
		return 0
	}
	return a.Quantity.Value
}

func (a *ApparelSelection) IsYouth() bool {
	return a != nil && strings.EqualFold(strings.TrimSpace(a.Category), ApparelCategoryYouth)
}

// ApparelLine is a standalone apparel order entry not bound to any
// participant. Priced by the same category rule as participant apparel.
type ApparelLine struct {
	Category string  `json:"category"`
	Style    string  `json:"style,omitempty"`
	Size     string  `json:"size,omitempty"`
	Quantity FlexInt `json:"quantity"`
}

func (l *ApparelLine) Count() int {
	if l == nil || !l.Quantity.Set || l.Quantity.Value <= 0 {
		return 0
	}
	return l.Quantity.Value
}

func (l *ApparelLine) IsYouth() bool {
	return l != nil && strings.EqualFold(strings.TrimSpace(l.Category), ApparelCategoryYouth)
}

// Participant is one registrant inside an order's answer blob. Age is the
// sole key binding a participant to a ticket tier.
type Participant struct {
	Name         string            `json:"name"`
	Age          FlexInt           `json:"age"`
	Attending    *bool             `json:"attending,omitempty"`
	Refunded     bool              `json:"refunded,omitempty"`
	ShowOnRoster bool              `json:"show_on_roster,omitempty"`
	Email        string            `json:"email,omitempty"`
	Phone        string            `json:"phone,omitempty"`
	Apparel      *ApparelSelection `json:"apparel,omitempty"`
}

// IsAttending defaults to true unless the flag is explicitly false.
func (p *Participant) IsAttending() bool {
	return p.Attending == nil || *p.Attending
}

// ParsedAge returns the participant's age and whether one was supplied.
func (p *Participant) ParsedAge() (int, bool) {
	if !p.Age.Set || p.Age.Value < 0 {
		return 0, false
	}
	return p.Age.Value, true
}

// RegistrationAnswers is the typed form of an order's free-form answer
// blob. It is validated once at the submission boundary; everything past
// that boundary works with this struct, not raw maps.
type RegistrationAnswers struct {
	People        []Participant `json:"people"`
	ApparelLines  []ApparelLine `json:"apparel_lines,omitempty"`
	DonationCents int64         `json:"donation_cents,omitempty"`
	ApparelOnly   bool          `json:"apparel_only,omitempty"`

	// Payment-method acknowledgements.
	WalletHandle     string `json:"wallet_handle,omitempty"`
	MailingConfirmed bool   `json:"mailing_confirmed,omitempty"`

	Comments string `json:"comments,omitempty"`
}

// AttendingParticipants returns the participants that count toward tickets
// and attendee materialization.
func (a *RegistrationAnswers) AttendingParticipants() []Participant {
	var out []Participant
	for _, p := range a.People {
		if p.IsAttending() {
			out = append(out, p)
		}
	}
	return out
}
