package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/pkg/pg"
	"gorm.io/gorm"
)

type CustomerRepository struct {
	*pg.DB
}

func NewCustomerRepository(db *pg.DB) *CustomerRepository {
	return &CustomerRepository{
		db,
	}
}

func (r *CustomerRepository) Create(ctx context.Context, c *model.Customer) (*model.Customer, error) {
	entity := toCustomerEntity(c)
	if entity.LastActivity.IsZero() {
		entity.LastActivity = time.Now()
	}

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, model.ErrDuplicateEmail
		}
		return nil, err
	}

	return toCustomerModel(entity), nil
}

func (r *CustomerRepository) Get(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	var entity CustomerEntity
	if err := r.Read(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		return nil, notFound(err)
	}
	return toCustomerModel(&entity), nil
}

func (r *CustomerRepository) GetByEmail(ctx context.Context, email string) (*model.Customer, error) {
	var entity CustomerEntity
	err := r.Read(ctx).
		Where("email = ?", model.NormalizeEmail(email)).
		First(&entity).
		Error
	if err != nil {
		return nil, notFound(err)
	}
	return toCustomerModel(&entity), nil
}

// List returns customers newest first along with the total count.
func (r *CustomerRepository) List(ctx context.Context, p model.ListParams) ([]*model.Customer, int64, error) {
	p = p.Normalized()
	q := r.Read(ctx).Model(&CustomerEntity{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entities []*CustomerEntity
	err := q.Order("created_at DESC").Order("id DESC").
		Limit(p.Limit).
		Offset(p.Offset).
		Find(&entities).
		Error
	if err != nil {
		return nil, 0, err
	}
	return toCustomerModels(entities), total, nil
}

// Update applies the set fields of req. It returns ErrDuplicateEmail when the
// new email belongs to someone else.
func (r *CustomerRepository) Update(ctx context.Context, id uuid.UUID, req model.CustomerUpdateRequest) (*model.Customer, error) {
	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Phone != nil {
		if *req.Phone == "" {
			updates["phone"] = nil
		} else {
			updates["phone"] = *req.Phone
		}
	}

	if len(updates) > 0 {
		res := r.Write(ctx).Model(&CustomerEntity{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
				return nil, model.ErrDuplicateEmail
			}
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, model.ErrNotFound
		}
	}

	return r.Get(ctx, id)
}

func (r *CustomerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.Write(ctx).Where("id = ?", id).Delete(&CustomerEntity{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ApplyOrder folds one order into the customer's aggregates with a single
// atomic update.
func (r *CustomerRepository) ApplyOrder(ctx context.Context, id uuid.UUID, amount float64, at time.Time) error {
	res := r.Write(ctx).
		Model(&CustomerEntity{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"total_spend":   gorm.Expr("total_spend + ?", amount),
			"visits":        gorm.Expr("visits + ?", 1),
			"last_activity": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ScanBatches walks every customer in (created_at, id) order, handing fn
// at most size records at a time. Keyset pagination keeps the walk stable
// across batches.
func (r *CustomerRepository) ScanBatches(ctx context.Context, size int, fn func(batch []*model.Customer) error) error {
	if size <= 0 {
		size = 500
	}

	var (
		lastCreated time.Time
		lastID      uuid.UUID
		first       = true
	)
	for {
		q := r.Read(ctx).Model(&CustomerEntity{})
		if !first {
			q = q.Where("created_at > ? OR (created_at = ? AND id > ?)", lastCreated, lastCreated, lastID)
		}

		var entities []*CustomerEntity
		if err := q.Order("created_at ASC").Order("id ASC").Limit(size).Find(&entities).Error; err != nil {
			return err
		}
		if len(entities) == 0 {
			return nil
		}

		if err := fn(toCustomerModels(entities)); err != nil {
			return err
		}

		if len(entities) < size {
			return nil
		}
		last := entities[len(entities)-1]
		lastCreated, lastID, first = last.CreatedAt, last.ID, false

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}
