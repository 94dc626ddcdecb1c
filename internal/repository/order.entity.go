package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/pkg/pg"
)

type OrderEntity struct {
	pg.Model
	CustomerID uuid.UUID         `gorm:"column:customer_id;type:uuid;not null;index"`
	Customer   *CustomerEntity   `gorm:"foreignKey:CustomerID;references:ID"`
	Amount     float64           `gorm:"column:amount;not null"`
	Items      []model.OrderItem `gorm:"column:items;type:jsonb;serializer:json"`
	Status     string            `gorm:"column:status;not null;default:pending"`
	OrderDate  time.Time         `gorm:"column:order_date;not null"`
}

func (OrderEntity) TableName() string {
	return "orders"
}

func toOrderEntity(m *model.Order) *OrderEntity {
	if m == nil {
		return nil
	}
	return &OrderEntity{
		Model:      pg.Model{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		CustomerID: m.CustomerID,
		Amount:     m.Amount,
		Items:      m.Items,
		Status:     string(m.Status),
		OrderDate:  m.OrderDate,
	}
}

func toOrderModel(e *OrderEntity) *model.Order {
	if e == nil {
		return nil
	}
	items := e.Items
	if items == nil {
		items = []model.OrderItem{}
	}
	return &model.Order{
		ID:         e.ID,
		CustomerID: e.CustomerID,
		Amount:     e.Amount,
		Items:      items,
		Status:     model.OrderStatus(e.Status),
		OrderDate:  e.OrderDate,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

func toOrderModels(entities []*OrderEntity) []*model.Order {
	models := make([]*model.Order, len(entities))
	for i, e := range entities {
		models[i] = toOrderModel(e)
	}
	return models
}
