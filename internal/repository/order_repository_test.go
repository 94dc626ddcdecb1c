package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderRepository(t *testing.T) {
	db := setupTestDB(t)
	customers := NewCustomerRepository(db)
	repo := NewOrderRepository(db)
	ctx := context.Background()

	a := seedCustomer(t, customers, "A", "a@example.com", 0)
	b := seedCustomer(t, customers, "B", "b@example.com", 0)

	first, err := repo.Create(ctx, &model.Order{
		CustomerID: a.ID,
		Amount:     30,
		Items:      []model.OrderItem{{Name: "Tea", Quantity: 3, Price: 10}},
		Status:     model.OrderStatusPending,
		OrderDate:  time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, first.ID)

	_, err = repo.Create(ctx, &model.Order{CustomerID: a.ID, Amount: 5, Status: model.OrderStatusPending, OrderDate: time.Now()})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &model.Order{CustomerID: b.ID, Amount: 7, Status: model.OrderStatusPending, OrderDate: time.Now()})
	require.NoError(t, err)

	t.Run("get keeps items", func(t *testing.T) {
		got, err := repo.Get(ctx, first.ID)
		require.NoError(t, err)
		require.Len(t, got.Items, 1)
		assert.Equal(t, "Tea", got.Items[0].Name)
		assert.Equal(t, 3, got.Items[0].Quantity)
	})

	t.Run("list and list by customer", func(t *testing.T) {
		all, total, err := repo.List(ctx, model.ListParams{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, all, 3)

		mine, total, err := repo.ListByCustomer(ctx, a.ID, model.ListParams{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, mine, 2)
		assert.Equal(t, first.ID, mine[1].ID)

		n, err := repo.CountByCustomer(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("update status", func(t *testing.T) {
		got, err := repo.UpdateStatus(ctx, first.ID, model.OrderStatusCompleted)
		require.NoError(t, err)
		assert.Equal(t, model.OrderStatusCompleted, got.Status)

		_, err = repo.UpdateStatus(ctx, uuid.New(), model.OrderStatusCompleted)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}
