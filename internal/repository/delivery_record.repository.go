package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/pkg/pg"
)

type DeliveryRecordRepository struct {
	*pg.DB
}

func NewDeliveryRecordRepository(db *pg.DB) *DeliveryRecordRepository {
	return &DeliveryRecordRepository{
		db,
	}
}

func (r *DeliveryRecordRepository) Create(ctx context.Context, d *model.DeliveryRecord) (*model.DeliveryRecord, error) {
	entity := toDeliveryRecordEntity(d)
	if entity.Status == "" {
		entity.Status = string(model.DeliveryStatusPending)
	}
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toDeliveryRecordModel(entity), nil
}

func (r *DeliveryRecordRepository) Get(ctx context.Context, id uuid.UUID) (*model.DeliveryRecord, error) {
	var entity DeliveryRecordEntity
	if err := r.Read(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		return nil, notFound(err)
	}
	return toDeliveryRecordModel(&entity), nil
}

// Resolve moves a pending record to a terminal status. It reports false
// when the record was no longer pending, leaving the row untouched.
func (r *DeliveryRecordRepository) Resolve(ctx context.Context, id uuid.UUID, status model.DeliveryStatus, reason string, at time.Time) (bool, error) {
	set := map[string]any{
		"status":     string(status),
		"sent_at":    at,
		"updated_at": at,
	}
	if reason != "" {
		set["failure_reason"] = reason
	} else {
		set["failure_reason"] = nil
	}

	res := r.Write(ctx).
		Model(&DeliveryRecordEntity{}).
		Where("id = ? AND status = ?", id, model.DeliveryStatusPending).
		Updates(set)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CountByStatus aggregates the log of one campaign.
func (r *DeliveryRecordRepository) CountByStatus(ctx context.Context, campaignID uuid.UUID) (map[model.DeliveryStatus]int, error) {
	var rows []struct {
		Status string
		Total  int
	}
	err := r.Read(ctx).
		Model(&DeliveryRecordEntity{}).
		Select("status, COUNT(*) AS total").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).
		Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.DeliveryStatus]int, len(rows))
	for _, row := range rows {
		counts[model.DeliveryStatus(row.Status)] = row.Total
	}
	return counts, nil
}

func (r *DeliveryRecordRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID, p model.ListParams) ([]*model.DeliveryRecord, int64, error) {
	p = p.Normalized()
	q := r.Read(ctx).Model(&DeliveryRecordEntity{}).Where("campaign_id = ?", campaignID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entities []*DeliveryRecordEntity
	err := q.Order("created_at ASC").Order("id ASC").
		Limit(p.Limit).
		Offset(p.Offset).
		Find(&entities).
		Error
	if err != nil {
		return nil, 0, err
	}
	return toDeliveryRecordModels(entities), total, nil
}

func (r *DeliveryRecordRepository) CountByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error) {
	var n int64
	err := r.Read(ctx).Model(&DeliveryRecordEntity{}).Where("customer_id = ?", customerID).Count(&n).Error
	return n, err
}
