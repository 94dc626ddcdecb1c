package model

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

type OrderItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

type Order struct {
	ID         uuid.UUID   `json:"id"`
	CustomerID uuid.UUID   `json:"customerId"`
	Amount     float64     `json:"amount"`
	Items      []OrderItem `json:"items"`
	Status     OrderStatus `json:"status"`
	OrderDate  time.Time   `json:"orderDate"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

type OrderCreateRequest struct {
	CustomerID uuid.UUID   `json:"customerId"`
	Amount     float64     `json:"amount"`
	Items      []OrderItem `json:"items"`
	Status     OrderStatus `json:"status"`
	OrderDate  *time.Time  `json:"orderDate"`
}

func (r OrderCreateRequest) Validate() error {
	if r.CustomerID == uuid.Nil {
		return invalidField("customerId", "is required")
	}
	if r.Amount < 0 {
		return invalidField("amount", "must not be negative")
	}
	if r.Status != "" && !r.Status.Valid() {
		return invalidField("status", "must be pending, completed or cancelled")
	}
	for _, it := range r.Items {
		if it.Name == "" {
			return invalidField("items.name", "is required")
		}
		if it.Quantity < 1 {
			return invalidField("items.quantity", "must be at least 1")
		}
		if it.Price < 0 {
			return invalidField("items.price", "must not be negative")
		}
	}
	return nil
}
