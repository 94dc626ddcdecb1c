package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/internal/rules"
	"github.com/nimasrn/crm-campaigns/pkg/pg"
)

type CampaignEntity struct {
	pg.Model
	Name         string     `gorm:"column:name;not null"`
	Description  string     `gorm:"column:description;not null;default:''"`
	Rules        rules.Tree `gorm:"column:rules;type:jsonb;serializer:json;not null"`
	Message      string     `gorm:"column:message;not null"`
	Status       string     `gorm:"column:status;not null;default:draft;index"`
	AudienceSize int        `gorm:"column:audience_size;not null;default:0"`
	SentCount    int        `gorm:"column:sent_count;not null;default:0"`
	FailedCount  int        `gorm:"column:failed_count;not null;default:0"`
	CreatedBy    string     `gorm:"column:created_by;not null;default:''"`
	ActivatedAt  *time.Time `gorm:"column:activated_at"`
	CompletedAt  *time.Time `gorm:"column:completed_at"`
}

func (CampaignEntity) TableName() string {
	return "campaigns"
}

// CampaignAudienceEntity freezes one audience member of an activated
// campaign. Position keeps resolution order.
type CampaignAudienceEntity struct {
	CampaignID uuid.UUID `gorm:"column:campaign_id;type:uuid;primaryKey"`
	CustomerID uuid.UUID `gorm:"column:customer_id;type:uuid;primaryKey"`
	Position   int       `gorm:"column:position;not null"`
}

func (CampaignAudienceEntity) TableName() string {
	return "campaign_audience"
}

func toCampaignEntity(m *model.Campaign) *CampaignEntity {
	if m == nil {
		return nil
	}
	return &CampaignEntity{
		Model:        pg.Model{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		Name:         m.Name,
		Description:  m.Description,
		Rules:        m.Rules,
		Message:      m.Message,
		Status:       string(m.Status),
		AudienceSize: m.AudienceSize,
		SentCount:    m.DeliveryStats.Sent,
		FailedCount:  m.DeliveryStats.Failed,
		CreatedBy:    m.CreatedBy,
		ActivatedAt:  m.ActivatedAt,
		CompletedAt:  m.CompletedAt,
	}
}

func toCampaignModel(e *CampaignEntity) *model.Campaign {
	if e == nil {
		return nil
	}
	return &model.Campaign{
		ID:           e.ID,
		Name:         e.Name,
		Description:  e.Description,
		Rules:        e.Rules,
		Message:      e.Message,
		Status:       model.CampaignStatus(e.Status),
		AudienceSize: e.AudienceSize,
		DeliveryStats: model.DeliveryStats{
			Sent:   e.SentCount,
			Failed: e.FailedCount,
		},
		CreatedBy:   e.CreatedBy,
		ActivatedAt: e.ActivatedAt,
		CompletedAt: e.CompletedAt,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func toCampaignModels(entities []*CampaignEntity) []*model.Campaign {
	models := make([]*model.Campaign, len(entities))
	for i, e := range entities {
		models[i] = toCampaignModel(e)
	}
	return models
}
