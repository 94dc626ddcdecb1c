package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliveryRecordRepository_Resolve(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDeliveryRecordRepository(db)
	ctx := context.Background()

	campaignID, customerID := uuid.New(), uuid.New()
	d := seedRecord(t, repo, campaignID, customerID)
	assert.Equal(t, model.DeliveryStatusPending, d.Status)

	ok, err := repo.Resolve(ctx, d.ID, model.DeliveryStatusFailed, "Delivery failed to recipient", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStatusFailed, got.Status)
	assert.Equal(t, "Delivery failed to recipient", got.FailureReason)
	assert.NotNil(t, got.SentAt)

	t.Run("terminal records are not touched again", func(t *testing.T) {
		ok, err := repo.Resolve(ctx, d.ID, model.DeliveryStatusSent, "", time.Now())
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.Get(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, model.DeliveryStatusFailed, got.Status)
	})
}

func TestDeliveryRecordRepository_ConcurrentResolveOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDeliveryRecordRepository(db)
	ctx := context.Background()
	d := seedRecord(t, repo, uuid.New(), uuid.New())

	var applied int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.Resolve(ctx, d.ID, model.DeliveryStatusSent, "", time.Now())
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&applied, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), applied)
}

func TestDeliveryRecordRepository_CountByStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDeliveryRecordRepository(db)
	ctx := context.Background()

	campaignID := uuid.New()
	customer := uuid.New()
	var ids []uuid.UUID
	for i := 0; i < 4; i++ {
		ids = append(ids, seedRecord(t, repo, campaignID, customer).ID)
	}
	seedRecord(t, repo, uuid.New(), customer)

	_, err := repo.Resolve(ctx, ids[0], model.DeliveryStatusSent, "", time.Now())
	require.NoError(t, err)
	_, err = repo.Resolve(ctx, ids[1], model.DeliveryStatusSent, "", time.Now())
	require.NoError(t, err)
	_, err = repo.Resolve(ctx, ids[2], model.DeliveryStatusFailed, "bounced", time.Now())
	require.NoError(t, err)

	counts, err := repo.CountByStatus(ctx, campaignID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[model.DeliveryStatusSent])
	assert.Equal(t, 1, counts[model.DeliveryStatusFailed])
	assert.Equal(t, 1, counts[model.DeliveryStatusPending])

	list, total, err := repo.ListByCampaign(ctx, campaignID, model.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, list, 4)

	n, err := repo.CountByCustomer(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}
