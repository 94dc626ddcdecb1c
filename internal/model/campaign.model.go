package model

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/rules"
)

type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

const NamePlaceholder = "{{name}}"

const (
	minMessageLength = 10
	maxMessageLength = 5000
	maxNameLength    = 200
)

// DeliveryStats is the cached sent/failed counter pair kept on the
// campaign row.
type DeliveryStats struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

type Campaign struct {
	ID            uuid.UUID      `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Rules         rules.Tree     `json:"rules"`
	Message       string         `json:"message"`
	Status        CampaignStatus `json:"status"`
	AudienceSize  int            `json:"audienceSize"`
	Audience      []uuid.UUID    `json:"audience,omitempty"`
	DeliveryStats DeliveryStats  `json:"deliveryStats"`
	CreatedBy     string         `json:"createdBy"`
	ActivatedAt   *time.Time     `json:"activatedAt,omitempty"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Render personalises the template for one customer. Every placeholder is
// replaced.
func Render(template string, c *Customer) string {
	return strings.ReplaceAll(template, NamePlaceholder, c.Name)
}

type CampaignCreateRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Rules       rules.Tree `json:"rules"`
	Message     string     `json:"message"`
}

func (r *CampaignCreateRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
	r.Message = strings.TrimSpace(r.Message)
}

// Validate returns a rules.RuleError for a bad tree and a ValidationError
// for anything else.
func (r CampaignCreateRequest) Validate() error {
	if err := validateName(r.Name); err != nil {
		return err
	}
	if err := validateMessage(r.Message); err != nil {
		return err
	}
	return r.Rules.Validate()
}

// CampaignUpdateRequest edits a draft. Nil fields are left alone.
type CampaignUpdateRequest struct {
	Name        *string     `json:"name"`
	Description *string     `json:"description"`
	Rules       *rules.Tree `json:"rules"`
	Message     *string     `json:"message"`
}

func (r *CampaignUpdateRequest) Normalize() {
	for _, p := range []*string{r.Name, r.Description, r.Message} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
}

func (r CampaignUpdateRequest) Validate() error {
	if r.Name != nil {
		if err := validateName(*r.Name); err != nil {
			return err
		}
	}
	if r.Message != nil {
		if err := validateMessage(*r.Message); err != nil {
			return err
		}
	}
	if r.Rules != nil {
		return r.Rules.Validate()
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return invalidField("name", "is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return invalidField("name", "is too long")
	}
	return nil
}

func validateMessage(msg string) error {
	n := utf8.RuneCountInString(msg)
	if n < minMessageLength || n > maxMessageLength {
		return invalidField("message", "must be between 10 and 5000 characters")
	}
	return nil
}

// CampaignStats is computed from the delivery log, not from the cached
// counters.
type CampaignStats struct {
	CampaignID   uuid.UUID      `json:"campaignId"`
	Status       CampaignStatus `json:"status"`
	AudienceSize int            `json:"audienceSize"`
	Total        int            `json:"total"`
	Sent         int            `json:"sent"`
	Failed       int            `json:"failed"`
	Pending      int            `json:"pending"`
	SuccessRate  float64        `json:"successRate"`
}

// Resolved reports whether every audience member has a terminal record.
func (s CampaignStats) Resolved() bool {
	return s.Sent+s.Failed == s.AudienceSize
}

// DispatchFailure is one recipient that could not be handed to the vendor.
type DispatchFailure struct {
	CustomerID uuid.UUID  `json:"customerId"`
	DeliveryID *uuid.UUID `json:"deliveryId,omitempty"`
	Stage      string     `json:"stage"`
	Reason     string     `json:"reason"`
}

const (
	DispatchStageRecord  = "record"
	DispatchStageEnqueue = "enqueue"
)

type ActivationResult struct {
	CampaignID   uuid.UUID         `json:"campaignId"`
	AudienceSize int               `json:"audienceSize"`
	// Created counts pending records written for dispatch. A record written
	// only to be failed after its first insert failed is not counted.
	Created      int               `json:"created"`
	Dispatched   int               `json:"dispatched"`
	Failures     []DispatchFailure `json:"failures,omitempty"`
}

// Err is non-nil when some recipients failed. The activation still stands.
func (r *ActivationResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return &PartialDispatchError{CampaignID: r.CampaignID.String(), Failures: r.Failures}
}
