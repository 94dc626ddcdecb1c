package audience

import (
	"context"
	"fmt"
	"testing"

	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/internal/repository"
	"github.com/nimasrn/crm-campaigns/internal/rules"
	"github.com/nimasrn/crm-campaigns/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	mock.Mock
	customers []*model.Customer
}

func (m *mockSource) ScanBatches(ctx context.Context, size int, fn func([]*model.Customer) error) error {
	args := m.Called(size)
	for i := 0; i < len(m.customers); i += size {
		end := i + size
		if end > len(m.customers) {
			end = len(m.customers)
		}
		if err := fn(m.customers[i:end]); err != nil {
			return err
		}
	}
	return args.Error(0)
}

func spenders(n int) []*model.Customer {
	out := make([]*model.Customer, n)
	for i := range out {
		out[i] = &model.Customer{Name: fmt.Sprintf("c%d", i), Email: fmt.Sprintf("c%d@x.io", i), TotalSpend: float64(i * 50)}
	}
	return out
}

var bigSpenders = rules.Tree{Conditions: []rules.Condition{
	{Field: rules.FieldTotalSpend, Operator: rules.OpGreater, Value: rules.NumberValue(100)},
}}

func TestResolver_ResolveKeepsSourceOrder(t *testing.T) {
	src := &mockSource{customers: spenders(6)}
	src.On("ScanBatches", 4).Return(nil)

	got, err := NewResolver(src, 4).Resolve(context.Background(), bigSpenders)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"c3", "c4", "c5"}, []string{got[0].Name, got[1].Name, got[2].Name})
	src.AssertExpectations(t)
}

func TestResolver_CountMatchesResolve(t *testing.T) {
	src := &mockSource{customers: spenders(9)}
	src.On("ScanBatches", DefaultBatchSize).Return(nil)
	r := NewResolver(src, 0)

	trees := []rules.Tree{
		{},
		bigSpenders,
		{Combinator: rules.Or, Conditions: []rules.Condition{
			{Field: rules.FieldName, Operator: rules.OpContains, Value: rules.StringValue("C1")},
			{Field: rules.FieldTotalSpend, Operator: rules.OpGreaterEqual, Value: rules.NumberValue(400)},
		}},
	}
	for _, tree := range trees {
		resolved, err := r.Resolve(context.Background(), tree)
		require.NoError(t, err)
		count, err := r.Count(context.Background(), tree)
		require.NoError(t, err)
		assert.Equal(t, len(resolved), count)
	}
}

func TestResolver_EmptyTreeSelectsEveryone(t *testing.T) {
	src := &mockSource{customers: spenders(5)}
	src.On("ScanBatches", 2).Return(nil)

	n, err := NewResolver(src, 2).Count(context.Background(), rules.Tree{})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestResolver_InvalidTreeNeverScans(t *testing.T) {
	src := &mockSource{customers: spenders(3)}
	bad := rules.Tree{Conditions: []rules.Condition{{Field: "age", Operator: rules.OpEqual, Value: rules.NumberValue(1)}}}

	_, err := NewResolver(src, 2).Resolve(context.Background(), bad)
	assert.ErrorIs(t, err, rules.ErrInvalidRule)
	src.AssertNotCalled(t, "ScanBatches", mock.Anything)
}

func TestResolver_SourceError(t *testing.T) {
	src := &mockSource{}
	src.On("ScanBatches", 2).Return(assert.AnError)

	_, err := NewResolver(src, 2).Resolve(context.Background(), rules.Tree{})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestResolver_CancelledContext(t *testing.T) {
	src := &mockSource{customers: spenders(4)}
	src.On("ScanBatches", 2).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewResolver(src, 2).Resolve(ctx, rules.Tree{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolver_WithRepository(t *testing.T) {
	db := testutil.OpenDB(t, repository.AutoMigrate)
	repo := repository.NewCustomerRepository(db)
	ctx := context.Background()

	for i, spend := range []float64{50, 150, 250, 99, 101} {
		_, err := repo.Create(ctx, &model.Customer{Name: fmt.Sprintf("c%d", i), Email: fmt.Sprintf("c%d@x.io", i), TotalSpend: spend})
		require.NoError(t, err)
	}

	r := NewResolver(repo, 2)
	got, err := r.Resolve(ctx, bigSpenders)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	n, err := r.Count(ctx, bigSpenders)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
