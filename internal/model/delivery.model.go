package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusSent || s == DeliveryStatusFailed
}

// DeliveryRecord is the communication log entry for one campaign recipient.
type DeliveryRecord struct {
	ID            uuid.UUID      `json:"id"`
	CampaignID    uuid.UUID      `json:"campaignId"`
	CustomerID    uuid.UUID      `json:"customerId"`
	Recipient     string         `json:"recipient"`
	Message       string         `json:"message"`
	Status        DeliveryStatus `json:"status"`
	FailureReason string         `json:"failureReason,omitempty"`
	SentAt        *time.Time     `json:"sentAt,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// DeliveryWorkItem is what the dispatcher puts on the queue for the
// delivery worker.
type DeliveryWorkItem struct {
	DeliveryID uuid.UUID `json:"deliveryId"`
	CampaignID uuid.UUID `json:"campaignId"`
	Recipient  string    `json:"recipient"`
	Message    string    `json:"message"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

const defaultFailureReason = "delivery failed"

type Receipt struct {
	DeliveryID    uuid.UUID      `json:"communicationId"`
	Status        DeliveryStatus `json:"status"`
	FailureReason string         `json:"failureReason,omitempty"`
}

// Normalize keeps failureReason only on failed receipts and fills in a
// generic one when the vendor sent none.
func (r *Receipt) Normalize() {
	switch r.Status {
	case DeliveryStatusSent:
		r.FailureReason = ""
	case DeliveryStatusFailed:
		if r.FailureReason == "" {
			r.FailureReason = defaultFailureReason
		}
	}
}

func (r Receipt) Validate() error {
	if r.DeliveryID == uuid.Nil {
		return &ValidationError{Field: "communicationId", Reason: "is required"}
	}
	if !r.Status.Terminal() {
		return fmt.Errorf("%w: status must be sent or failed, got %q", ErrInvalidReceipt, r.Status)
	}
	return nil
}

type ReceiptOutcome string

const (
	ReceiptApplied   ReceiptOutcome = "applied"
	ReceiptDuplicate ReceiptOutcome = "duplicate"
)
