package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/pkg/logger"
)

type CustomerRepository interface {
	Create(ctx context.Context, c *model.Customer) (*model.Customer, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Customer, error)
	List(ctx context.Context, p model.ListParams) ([]*model.Customer, int64, error)
	Update(ctx context.Context, id uuid.UUID, req model.CustomerUpdateRequest) (*model.Customer, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ReferenceCounter counts rows pointing at a customer.
type ReferenceCounter interface {
	CountByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error)
}

type CustomerService struct {
	customers  CustomerRepository
	orders     ReferenceCounter
	deliveries ReferenceCounter
}

func NewCustomerService(customers CustomerRepository, orders, deliveries ReferenceCounter) *CustomerService {
	return &CustomerService{
		customers:  customers,
		orders:     orders,
		deliveries: deliveries,
	}
}

func (s *CustomerService) Create(ctx context.Context, req model.CustomerCreateRequest) (*model.Customer, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	customer, err := s.customers.Create(ctx, &model.Customer{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("customer created", "customer_id", customer.ID)
	return customer, nil
}

func (s *CustomerService) Get(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	return s.customers.Get(ctx, id)
}

func (s *CustomerService) List(ctx context.Context, p model.ListParams) ([]*model.Customer, int64, error) {
	return s.customers.List(ctx, p)
}

func (s *CustomerService) Update(ctx context.Context, id uuid.UUID, req model.CustomerUpdateRequest) (*model.Customer, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.customers.Update(ctx, id, req)
}

// Delete refuses while orders or delivery records still point at the
// customer. The check is advisory: a row added between the count and the
// delete is caught by the foreign key instead.
func (s *CustomerService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.customers.Get(ctx, id); err != nil {
		return err
	}

	orders, err := s.orders.CountByCustomer(ctx, id)
	if err != nil {
		return err
	}
	deliveries, err := s.deliveries.CountByCustomer(ctx, id)
	if err != nil {
		return err
	}
	if orders > 0 || deliveries > 0 {
		logger.Info("refusing to delete referenced customer", "customer_id", id, "orders", orders, "deliveries", deliveries)
		return model.ErrCustomerReferenced
	}

	return s.customers.Delete(ctx, id)
}
