package repository

import (
	"time"

	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/pkg/pg"
)

type CustomerEntity struct {
	pg.Model
	Name         string    `gorm:"column:name;not null"`
	Email        string    `gorm:"column:email;not null;uniqueIndex"`
	Phone        *string   `gorm:"column:phone"`
	TotalSpend   float64   `gorm:"column:total_spend;not null;default:0"`
	Visits       int       `gorm:"column:visits;not null;default:0"`
	LastActivity time.Time `gorm:"column:last_activity;not null"`
}

func (CustomerEntity) TableName() string {
	return "customers"
}

func toCustomerEntity(m *model.Customer) *CustomerEntity {
	if m == nil {
		return nil
	}
	e := &CustomerEntity{
		Model:        pg.Model{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		Name:         m.Name,
		Email:        m.Email,
		TotalSpend:   m.TotalSpend,
		Visits:       m.Visits,
		LastActivity: m.LastActivity,
	}
	if m.Phone != "" {
		phone := m.Phone
		e.Phone = &phone
	}
	return e
}

func toCustomerModel(e *CustomerEntity) *model.Customer {
	if e == nil {
		return nil
	}
	m := &model.Customer{
		ID:           e.ID,
		Name:         e.Name,
		Email:        e.Email,
		TotalSpend:   e.TotalSpend,
		Visits:       e.Visits,
		LastActivity: e.LastActivity,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
	if e.Phone != nil {
		m.Phone = *e.Phone
	}
	return m
}

func toCustomerModels(entities []*CustomerEntity) []*model.Customer {
	models := make([]*model.Customer, len(entities))
	for i, e := range entities {
		models[i] = toCustomerModel(e)
	}
	return models
}
