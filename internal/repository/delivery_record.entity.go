package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/pkg/pg"
)

type DeliveryRecordEntity struct {
	pg.Model
	CampaignID    uuid.UUID  `gorm:"column:campaign_id;type:uuid;not null;index:idx_delivery_campaign_status,priority:1"`
	CustomerID    uuid.UUID  `gorm:"column:customer_id;type:uuid;not null;index"`
	Recipient     string     `gorm:"column:recipient;not null"`
	Message       string     `gorm:"column:message;not null"`
	Status        string     `gorm:"column:status;not null;default:pending;index:idx_delivery_campaign_status,priority:2"`
	FailureReason *string    `gorm:"column:failure_reason"`
	SentAt        *time.Time `gorm:"column:sent_at"`
}

func (DeliveryRecordEntity) TableName() string {
	return "delivery_records"
}

func toDeliveryRecordEntity(m *model.DeliveryRecord) *DeliveryRecordEntity {
	if m == nil {
		return nil
	}
	e := &DeliveryRecordEntity{
		Model:      pg.Model{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		CampaignID: m.CampaignID,
		CustomerID: m.CustomerID,
		Recipient:  m.Recipient,
		Message:    m.Message,
		Status:     string(m.Status),
		SentAt:     m.SentAt,
	}
	if m.FailureReason != "" {
		reason := m.FailureReason
		e.FailureReason = &reason
	}
	return e
}

func toDeliveryRecordModel(e *DeliveryRecordEntity) *model.DeliveryRecord {
	if e == nil {
		return nil
	}
	m := &model.DeliveryRecord{
		ID:         e.ID,
		CampaignID: e.CampaignID,
		CustomerID: e.CustomerID,
		Recipient:  e.Recipient,
		Message:    e.Message,
		Status:     model.DeliveryStatus(e.Status),
		SentAt:     e.SentAt,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
	if e.FailureReason != nil {
		m.FailureReason = *e.FailureReason
	}
	return m
}

func toDeliveryRecordModels(entities []*DeliveryRecordEntity) []*model.DeliveryRecord {
	models := make([]*model.DeliveryRecord, len(entities))
	for i, e := range entities {
		models[i] = toDeliveryRecordModel(e)
	}
	return models
}
