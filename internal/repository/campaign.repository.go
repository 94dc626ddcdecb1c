package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const audienceInsertBatch = 500

type CampaignRepository struct {
	*pg.DB
}

func NewCampaignRepository(db *pg.DB) *CampaignRepository {
	return &CampaignRepository{
		db,
	}
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) (*model.Campaign, error) {
	entity := toCampaignEntity(c)
	if entity.Status == "" {
		entity.Status = string(model.CampaignStatusDraft)
	}
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toCampaignModel(entity), nil
}

func (r *CampaignRepository) Get(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	var entity CampaignEntity
	if err := r.Read(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		return nil, notFound(err)
	}
	return toCampaignModel(&entity), nil
}

// GetForUpdate reads the campaign row and, on postgres, holds its row lock
// until the surrounding transaction ends. Counter increments take the same
// lock, so they queue behind it.
func (r *CampaignRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	var entity CampaignEntity
	q := r.Write(ctx).Where("id = ?", id)
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&entity).Error; err != nil {
		return nil, notFound(err)
	}
	return toCampaignModel(&entity), nil
}

func (r *CampaignRepository) List(ctx context.Context, p model.ListParams) ([]*model.Campaign, int64, error) {
	p = p.Normalized()
	q := r.Read(ctx).Model(&CampaignEntity{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entities []*CampaignEntity
	err := q.Order("created_at DESC").Order("id DESC").
		Limit(p.Limit).
		Offset(p.Offset).
		Find(&entities).
		Error
	if err != nil {
		return nil, 0, err
	}
	return toCampaignModels(entities), total, nil
}

// UpdateDraft writes the given columns only while the campaign is still a
// draft. The boolean is false when the row was not in draft.
func (r *CampaignRepository) UpdateDraft(ctx context.Context, id uuid.UUID, c *model.Campaign) (bool, error) {
	tree, err := json.Marshal(c.Rules)
	if err != nil {
		return false, err
	}
	res := r.Write(ctx).
		Model(&CampaignEntity{}).
		Where("id = ? AND status = ?", id, model.CampaignStatusDraft).
		Updates(map[string]any{
			"name":        c.Name,
			"description": c.Description,
			"rules":       string(tree),
			"message":     c.Message,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Transition moves the campaign from one of the allowed statuses to next,
// setting extra columns in the same statement. It reports false when the
// row was in none of the allowed statuses.
func (r *CampaignRepository) Transition(ctx context.Context, id uuid.UUID, from []model.CampaignStatus, next model.CampaignStatus, extra map[string]any) (bool, error) {
	set := map[string]any{"status": string(next), "updated_at": time.Now()}
	for k, v := range extra {
		set[k] = v
	}
	res := r.Write(ctx).
		Model(&CampaignEntity{}).
		Where("id = ? AND status IN ?", id, statusStrings(from)).
		Updates(set)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Activate flips draft to active, fixes the audience size and stores the
// audience in resolution order. Run it inside a transaction so the rows and
// the status change commit together.
func (r *CampaignRepository) Activate(ctx context.Context, id uuid.UUID, audience []uuid.UUID, at time.Time) (bool, error) {
	ok, err := r.Transition(ctx, id,
		[]model.CampaignStatus{model.CampaignStatusDraft},
		model.CampaignStatusActive,
		map[string]any{"audience_size": len(audience), "activated_at": at},
	)
	if err != nil || !ok {
		return ok, err
	}
	if len(audience) == 0 {
		return true, nil
	}

	rows := make([]*CampaignAudienceEntity, len(audience))
	for i, customerID := range audience {
		rows[i] = &CampaignAudienceEntity{CampaignID: id, CustomerID: customerID, Position: i}
	}
	if err := r.Write(ctx).CreateInBatches(rows, audienceInsertBatch).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (r *CampaignRepository) Audience(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.Read(ctx).
		Model(&CampaignAudienceEntity{}).
		Where("campaign_id = ?", id).
		Order("position ASC").
		Pluck("customer_id", &ids).
		Error
	return ids, err
}

// IncrementDelivered bumps the cached sent or failed counter by one.
func (r *CampaignRepository) IncrementDelivered(ctx context.Context, id uuid.UUID, status model.DeliveryStatus) error {
	column := "sent_count"
	if status == model.DeliveryStatusFailed {
		column = "failed_count"
	}
	res := r.Write(ctx).
		Model(&CampaignEntity{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// SetDelivered overwrites the cached counters.
func (r *CampaignRepository) SetDelivered(ctx context.Context, id uuid.UUID, stats model.DeliveryStats) error {
	res := r.Write(ctx).
		Model(&CampaignEntity{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{"sent_count": stats.Sent, "failed_count": stats.Failed})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

func statusStrings(in []model.CampaignStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
