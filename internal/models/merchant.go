package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Merchant struct {
	ID         string    `json:"id"`
	Firstname  string    `json:"firstname"`
	Lastname   string    `json:"lastname"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	AvatarURL  string    `json:"avatarUrl"`
	HasPremium bool      `json:"hasPremium"`
	Bids       []Bid     `json:"bids"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Bid struct {
	ID       string          `json:"id" validate:"required"`
	CarTitle string          `json:"carTitle" validate:"max=200"`
	Amount   decimal.Decimal `json:"amount" validate:"gt=0"`
	Created  time.Time       `json:"created"`
}

// DisplayName is the single-field form of the merchant's name.
func (m *Merchant) DisplayName() string {
	return m.Firstname + " " + m.Lastname
}

// Clone returns a deep copy so callers never share the bid slice.
func (m *Merchant) Clone() *Merchant {
	if m == nil {
		return nil
	}
	c := *m
	if m.Bids != nil {
		c.Bids = make([]Bid, len(m.Bids))
		copy(c.Bids, m.Bids)
	}
	return &c
}

// MerchantPatch is a partial update. Nil fields are left untouched; a
// non-nil empty Bids clears the sequence.
type MerchantPatch struct {
	Firstname  *string `json:"firstname,omitempty" validate:"omitempty,max=100"`
	Lastname   *string `json:"lastname,omitempty" validate:"omitempty,max=100"`
	Email      *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Phone      *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	AvatarURL  *string `json:"avatarUrl,omitempty" validate:"omitempty,url,max=1024"`
	HasPremium *bool   `json:"hasPremium,omitempty"`
	Bids       []Bid   `json:"bids" validate:"omitempty,dive"`
}

// Fields lists the attribute names carried by the patch, in a stable order.
func (p MerchantPatch) Fields() []string {
	var fields []string
	if p.Firstname != nil {
		fields = append(fields, "firstname")
	}
	if p.Lastname != nil {
		fields = append(fields, "lastname")
	}
	if p.Email != nil {
		fields = append(fields, "email")
	}
	if p.Phone != nil {
		fields = append(fields, "phone")
	}
	if p.AvatarURL != nil {
		fields = append(fields, "avatarUrl")
	}
	if p.HasPremium != nil {
		fields = append(fields, "hasPremium")
	}
	if p.Bids != nil {
		fields = append(fields, "bids")
	}
	return fields
}

func (p MerchantPatch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// Apply merges the patch into m.
func (p MerchantPatch) Apply(m *Merchant) {
	if p.Firstname != nil {
		m.Firstname = *p.Firstname
	}
	if p.Lastname != nil {
		m.Lastname = *p.Lastname
	}
	if p.Email != nil {
		m.Email = *p.Email
	}
	if p.Phone != nil {
		m.Phone = *p.Phone
	}
	if p.AvatarURL != nil {
		m.AvatarURL = *p.AvatarURL
	}
	if p.HasPremium != nil {
		m.HasPremium = *p.HasPremium
	}
	if p.Bids != nil {
		m.Bids = make([]Bid, len(p.Bids))
		copy(m.Bids, p.Bids)
	}
}

type CreateMerchantRequest struct {
	Firstname  string `json:"firstname" validate:"required,max=100"`
	Lastname   string `json:"lastname" validate:"max=100"`
	Email      string `json:"email" validate:"required,email,max=255"`
	Phone      string `json:"phone" validate:"max=32"`
	AvatarURL  string `json:"avatarUrl" validate:"omitempty,url,max=1024"`
	HasPremium bool   `json:"hasPremium"`
}

type NewBidRequest struct {
	CarTitle string          `json:"carTitle" validate:"required,max=200"`
	Amount   decimal.Decimal `json:"amount" validate:"gt=0"`
}

type MerchantPage struct {
	Merchants []*Merchant `json:"merchants"`
	Page      int         `json:"page"`
	Size      int         `json:"size"`
	Total     int         `json:"total"`
}

func StringPtr(s string) *string { return &s }

func BoolPtr(b bool) *bool { return &b }
