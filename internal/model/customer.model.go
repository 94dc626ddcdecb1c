package model

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/rules"
)

type Customer struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	TotalSpend   float64   `json:"totalSpend"`
	Visits       int       `json:"visits"`
	LastActivity time.Time `json:"lastActivity"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RuleValue exposes the fields audience rules can target. An empty phone
// or a never-set lastActivity count as absent.
func (c *Customer) RuleValue(f rules.Field) (any, bool) {
	switch f {
	case rules.FieldName:
		return c.Name, true
	case rules.FieldEmail:
		return c.Email, true
	case rules.FieldPhone:
		return c.Phone, c.Phone != ""
	case rules.FieldTotalSpend:
		return c.TotalSpend, true
	case rules.FieldVisits:
		return c.Visits, true
	case rules.FieldLastActivity:
		return c.LastActivity, !c.LastActivity.IsZero()
	}
	return nil, false
}

// Recipient is the address a campaign message goes to: phone first, then
// email.
func (c *Customer) Recipient() string {
	if c.Phone != "" {
		return c.Phone
	}
	return c.Email
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (r *CustomerCreateRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = NormalizeEmail(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
}

func (r CustomerCreateRequest) Validate() error {
	if r.Name == "" {
		return invalidField("name", "is required")
	}
	if r.Email == "" {
		return invalidField("email", "is required")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return invalidField("email", "is not a valid address")
	}
	return nil
}

// CustomerUpdateRequest changes only the fields that are set.
type CustomerUpdateRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

func (r *CustomerUpdateRequest) Normalize() {
	if r.Name != nil {
		n := strings.TrimSpace(*r.Name)
		r.Name = &n
	}
	if r.Email != nil {
		e := NormalizeEmail(*r.Email)
		r.Email = &e
	}
	if r.Phone != nil {
		p := strings.TrimSpace(*r.Phone)
		r.Phone = &p
	}
}

func (r CustomerUpdateRequest) Validate() error {
	if r.Name != nil && *r.Name == "" {
		return invalidField("name", "cannot be empty")
	}
	if r.Email != nil {
		if _, err := mail.ParseAddress(*r.Email); err != nil {
			return invalidField("email", "is not a valid address")
		}
	}
	return nil
}

type ListParams struct {
	Limit  int
	Offset int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

func (p ListParams) Normalized() ListParams {
	if p.Limit <= 0 {
		p.Limit = DefaultListLimit
	}
	if p.Limit > MaxListLimit {
		p.Limit = MaxListLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
