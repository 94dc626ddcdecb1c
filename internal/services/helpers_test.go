package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nimasrn/crm-campaigns/internal/audience"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/internal/repository"
	"github.com/nimasrn/crm-campaigns/internal/rules"
	"github.com/nimasrn/crm-campaigns/internal/testutil"
	"github.com/nimasrn/crm-campaigns/pkg/pg"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu    sync.Mutex
	items []model.DeliveryWorkItem
	meta  []map[string]string
	fail  error
}

func (q *fakeQueue) PublishJSON(_ context.Context, data interface{}, metadata map[string]string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail != nil {
		return "", q.fail
	}
	item, ok := data.(model.DeliveryWorkItem)
	if !ok {
		return "", errors.New("unexpected payload")
	}
	q.items = append(q.items, item)
	q.meta = append(q.meta, metadata)
	return "0-1", nil
}

func (q *fakeQueue) published() []model.DeliveryWorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.DeliveryWorkItem(nil), q.items...)
}

type testEnv struct {
	db *pg.DB

	customerRepo *repository.CustomerRepository
	orderRepo    *repository.OrderRepository
	campaignRepo *repository.CampaignRepository
	deliveryRepo *repository.DeliveryRecordRepository

	queue     *fakeQueue
	receipts  *ReceiptService
	dispatch  *DispatchService
	campaigns *CampaignService
	customers *CustomerService
	orders    *OrderService
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.OpenDB(t, repository.AutoMigrate)

	env := &testEnv{
		db:           db,
		customerRepo: repository.NewCustomerRepository(db),
		orderRepo:    repository.NewOrderRepository(db),
		campaignRepo: repository.NewCampaignRepository(db),
		deliveryRepo: repository.NewDeliveryRecordRepository(db),
		queue:        &fakeQueue{},
	}
	resolver := audience.NewResolver(env.customerRepo, 2)

	env.receipts = NewReceiptService(db, env.deliveryRepo, env.campaignRepo)
	env.dispatch = NewDispatchService(db, env.campaignRepo, env.deliveryRepo, resolver, env.queue, env.receipts)
	env.campaigns = NewCampaignService(env.campaignRepo, resolver, env.dispatch, env.receipts, env.deliveryRepo)
	env.customers = NewCustomerService(env.customerRepo, env.orderRepo, env.deliveryRepo)
	env.orders = NewOrderService(db, env.orderRepo, env.customerRepo)
	return env
}

func (e *testEnv) customer(t *testing.T, name, email string, orders ...float64) *model.Customer {
	t.Helper()
	ctx := context.Background()
	c, err := e.customers.Create(ctx, model.CustomerCreateRequest{Name: name, Email: email})
	require.NoError(t, err)
	for _, amount := range orders {
		_, err := e.orders.Create(ctx, model.OrderCreateRequest{CustomerID: c.ID, Amount: amount})
		require.NoError(t, err)
	}
	c, err = e.customers.Get(ctx, c.ID)
	require.NoError(t, err)
	return c
}

func (e *testEnv) campaign(t *testing.T, tree rules.Tree) *model.Campaign {
	t.Helper()
	c, err := e.campaigns.Create(context.Background(), model.CampaignCreateRequest{
		Name:    "Win back",
		Rules:   tree,
		Message: "Hi {{name}}, here's 10% off",
	})
	require.NoError(t, err)
	return c
}

func highValueTree() rules.Tree {
	return rules.Tree{
		Combinator: rules.And,
		Conditions: []rules.Condition{
			{Field: rules.FieldTotalSpend, Operator: rules.OpGreater, Value: rules.NumberValue(1000)},
			{Field: rules.FieldVisits, Operator: rules.OpLess, Value: rules.NumberValue(3)},
		},
	}
}

func everyoneTree() rules.Tree {
	return rules.Tree{Conditions: []rules.Condition{
		{Field: rules.FieldVisits, Operator: rules.OpGreaterEqual, Value: rules.NumberValue(0)},
	}}
}
