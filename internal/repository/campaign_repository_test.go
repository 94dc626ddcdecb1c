package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCampaignRepository_CreateGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db)
	ctx := context.Background()

	c := seedCampaign(t, repo)
	assert.Equal(t, model.CampaignStatusDraft, c.Status)

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "tester", got.CreatedBy)
	require.Len(t, got.Rules.Conditions, 1)
	assert.Equal(t, rules.FieldTotalSpend, got.Rules.Conditions[0].Field)
	n, ok := got.Rules.Conditions[0].Value.Number()
	assert.True(t, ok)
	assert.Equal(t, 100.0, n)

	_, err = repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCampaignRepository_UpdateDraft(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db)
	ctx := context.Background()

	c := seedCampaign(t, repo)
	c.Name = "Summer"
	c.Rules = rules.Tree{Combinator: rules.Or}
	ok, err := repo.UpdateDraft(ctx, c.ID, c)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Summer", got.Name)
	assert.Equal(t, rules.Or, got.Rules.Combinator)
	assert.Empty(t, got.Rules.Conditions)

	ok, err = repo.Transition(ctx, c.ID, []model.CampaignStatus{model.CampaignStatusDraft}, model.CampaignStatusCancelled, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.UpdateDraft(ctx, c.ID, c)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCampaignRepository_Activate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db)
	ctx := context.Background()

	c := seedCampaign(t, repo)
	audience := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	err := db.WithinTransaction(ctx, func(ctx context.Context) error {
		ok, err := repo.Activate(ctx, c.ID, audience, time.Now())
		require.True(t, ok)
		return err
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusActive, got.Status)
	assert.Equal(t, 3, got.AudienceSize)
	assert.NotNil(t, got.ActivatedAt)

	ids, err := repo.Audience(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, audience, ids)

	t.Run("second activation is refused", func(t *testing.T) {
		ok, err := repo.Activate(ctx, c.ID, audience, time.Now())
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.AudienceSize)
	})
}

func TestCampaignRepository_ConcurrentActivateOnlyOneWins(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db)
	ctx := context.Background()
	c := seedCampaign(t, repo)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.Transition(ctx, c.ID, []model.CampaignStatus{model.CampaignStatusDraft}, model.CampaignStatusActive, nil)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestCampaignRepository_Counters(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db)
	ctx := context.Background()
	c := seedCampaign(t, repo)

	require.NoError(t, repo.IncrementDelivered(ctx, c.ID, model.DeliveryStatusSent))
	require.NoError(t, repo.IncrementDelivered(ctx, c.ID, model.DeliveryStatusSent))
	require.NoError(t, repo.IncrementDelivered(ctx, c.ID, model.DeliveryStatusFailed))

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStats{Sent: 2, Failed: 1}, got.DeliveryStats)

	require.NoError(t, repo.SetDelivered(ctx, c.ID, model.DeliveryStats{Sent: 5}))
	got, err = repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStats{Sent: 5}, got.DeliveryStats)

	assert.ErrorIs(t, repo.IncrementDelivered(ctx, uuid.New(), model.DeliveryStatusSent), model.ErrNotFound)
}

func TestCampaignRepository_GetForUpdate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db)
	c := seedCampaign(t, repo)

	err := db.WithinTransaction(context.Background(), func(ctx context.Context) error {
		got, err := repo.GetForUpdate(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.ID)
		require.NoError(t, repo.IncrementDelivered(ctx, c.ID, model.DeliveryStatusSent))

		_, err = repo.GetForUpdate(ctx, uuid.New())
		assert.ErrorIs(t, err, model.ErrNotFound)
		return nil
	})
	require.NoError(t, err)

	got, err := repo.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.DeliveryStats.Sent)
}

func TestCampaignRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db)
	ctx := context.Background()

	first := seedCampaign(t, repo)
	time.Sleep(2 * time.Millisecond)
	second := seedCampaign(t, repo)

	list, total, err := repo.List(ctx, model.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}
