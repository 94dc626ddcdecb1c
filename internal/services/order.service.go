package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/pkg/logger"
)

type OrderRepository interface {
	Create(ctx context.Context, o *model.Order) (*model.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Order, error)
	List(ctx context.Context, p model.ListParams) ([]*model.Order, int64, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, p model.ListParams) ([]*model.Order, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) (*model.Order, error)
}

// CustomerAggregates is the part of the customer store an order touches.
type CustomerAggregates interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Customer, error)
	ApplyOrder(ctx context.Context, id uuid.UUID, amount float64, at time.Time) error
}

type OrderService struct {
	tx        Transactor
	orders    OrderRepository
	customers CustomerAggregates
	now       func() time.Time
}

func NewOrderService(tx Transactor, orders OrderRepository, customers CustomerAggregates) *OrderService {
	return &OrderService{
		tx:        tx,
		orders:    orders,
		customers: customers,
		now:       time.Now,
	}
}

// Create stores the order and folds it into the customer's totalSpend,
// visits and lastActivity in the same transaction.
func (s *OrderService) Create(ctx context.Context, req model.OrderCreateRequest) (*model.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = model.OrderStatusPending
	}
	orderDate := s.now().UTC()
	if req.OrderDate != nil {
		orderDate = req.OrderDate.UTC()
	}

	var created *model.Order
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.customers.Get(ctx, req.CustomerID); err != nil {
			return err
		}

		var err error
		created, err = s.orders.Create(ctx, &model.Order{
			CustomerID: req.CustomerID,
			Amount:     req.Amount,
			Items:      req.Items,
			Status:     status,
			OrderDate:  orderDate,
		})
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		if err := s.customers.ApplyOrder(ctx, req.CustomerID, req.Amount, orderDate); err != nil {
			return fmt.Errorf("update customer aggregates: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("order created", "order_id", created.ID, "customer_id", created.CustomerID, "amount", created.Amount)
	return created, nil
}

func (s *OrderService) Get(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return s.orders.Get(ctx, id)
}

func (s *OrderService) List(ctx context.Context, p model.ListParams) ([]*model.Order, int64, error) {
	return s.orders.List(ctx, p)
}

func (s *OrderService) ListByCustomer(ctx context.Context, customerID uuid.UUID, p model.ListParams) ([]*model.Order, int64, error) {
	if _, err := s.customers.Get(ctx, customerID); err != nil {
		return nil, 0, err
	}
	return s.orders.ListByCustomer(ctx, customerID, p)
}

// UpdateStatus only changes the status. Aggregates already counted stay as
// they are.
func (s *OrderService) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) (*model.Order, error) {
	if !status.Valid() {
		return nil, &model.ValidationError{Field: "status", Reason: "must be pending, completed or cancelled"}
	}
	return s.orders.UpdateStatus(ctx, id, status)
}
