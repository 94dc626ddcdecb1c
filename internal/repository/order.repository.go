package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/pkg/pg"
)

type OrderRepository struct {
	*pg.DB
}

func NewOrderRepository(db *pg.DB) *OrderRepository {
	return &OrderRepository{
		db,
	}
}

func (r *OrderRepository) Create(ctx context.Context, o *model.Order) (*model.Order, error) {
	entity := toOrderEntity(o)
	if err := r.Write(ctx).Omit("Customer").Create(entity).Error; err != nil {
		return nil, err
	}
	return toOrderModel(entity), nil
}

func (r *OrderRepository) Get(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var entity OrderEntity
	if err := r.Read(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		return nil, notFound(err)
	}
	return toOrderModel(&entity), nil
}

func (r *OrderRepository) List(ctx context.Context, p model.ListParams) ([]*model.Order, int64, error) {
	return r.list(ctx, nil, p)
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID, p model.ListParams) ([]*model.Order, int64, error) {
	return r.list(ctx, &customerID, p)
}

func (r *OrderRepository) list(ctx context.Context, customerID *uuid.UUID, p model.ListParams) ([]*model.Order, int64, error) {
	p = p.Normalized()
	q := r.Read(ctx).Model(&OrderEntity{})
	if customerID != nil {
		q = q.Where("customer_id = ?", *customerID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entities []*OrderEntity
	err := q.Order("order_date DESC").Order("id DESC").
		Limit(p.Limit).
		Offset(p.Offset).
		Find(&entities).
		Error
	if err != nil {
		return nil, 0, err
	}
	return toOrderModels(entities), total, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) (*model.Order, error) {
	res := r.Write(ctx).Model(&OrderEntity{}).Where("id = ?", id).Update("status", string(status))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, model.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *OrderRepository) CountByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error) {
	var n int64
	err := r.Read(ctx).Model(&OrderEntity{}).Where("customer_id = ?", customerID).Count(&n).Error
	return n, err
}
