package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	gateway "github.com/nimasrn/crm-campaigns/internal/gateways"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/internal/queue"
	"github.com/nimasrn/crm-campaigns/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReceipts struct {
	mu       sync.Mutex
	receipts map[uuid.UUID]model.Receipt
}

func (r *recordingReceipts) ProcessReceipt(_ context.Context, receipt model.Receipt) (model.ReceiptOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.receipts[receipt.DeliveryID]; ok {
		return model.ReceiptDuplicate, nil
	}
	r.receipts[receipt.DeliveryID] = receipt
	return model.ReceiptApplied, nil
}

func (r *recordingReceipts) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.receipts)
}

func testOptions() Options {
	return Options{
		Queue: queue.QueueConfig{
			Name:              "deliveries",
			ConsumerGroup:     "delivery-workers",
			ConsumerName:      "test",
			MaxRetries:        3,
			VisibilityTimeout: time.Second,
			PollInterval:      10 * time.Millisecond,
			BatchSize:         10,
			EnableDLQ:         true,
		},
		Consumers: 2,
		Workers:   4,
	}
}

func TestProcessorService_DeliversQueuedWorkItems(t *testing.T) {
	_, adapter := testutil.OpenRedis(t)
	receipts := &recordingReceipts{receipts: map[uuid.UUID]model.Receipt{}}

	svc, err := NewProcessorService(adapter, testOptions())
	require.NoError(t, err)
	idem := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
	svc.RegisterProcessor(NewDeliveryProcessor(gateway.NewSimulator(1, 0), receipts, idem))
	require.NoError(t, svc.Start())
	defer svc.Stop()

	producer, err := queue.NewQueue(adapter, testOptions().Queue)
	require.NoError(t, err)
	defer producer.Stop(time.Second)

	const n = 25
	for i := 0; i < n; i++ {
		_, err := producer.PublishJSON(context.Background(), model.DeliveryWorkItem{
			DeliveryID: uuid.New(),
			CampaignID: uuid.New(),
			Recipient:  "ada@example.com",
			Message:    "Hi Ada, ten percent off this week",
			EnqueuedAt: time.Now(),
		}, nil)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return receipts.count() == n }, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return svc.Metrics().Processed == n }, time.Second, 10*time.Millisecond)

	receipts.mu.Lock()
	for _, r := range receipts.receipts {
		assert.Equal(t, model.DeliveryStatusSent, r.Status)
	}
	receipts.mu.Unlock()
}

func TestProcessorService_RequiresProcessor(t *testing.T) {
	_, adapter := testutil.OpenRedis(t)

	svc, err := NewProcessorService(adapter, testOptions())
	require.NoError(t, err)
	assert.Error(t, svc.Start())
}

func TestNewProcessorService_Validation(t *testing.T) {
	_, adapter := testutil.OpenRedis(t)

	_, err := NewProcessorService(adapter, Options{})
	assert.Error(t, err)

	svc, err := NewProcessorService(adapter, Options{Queue: queue.QueueConfig{Name: "q"}})
	require.NoError(t, err)
	assert.Equal(t, 1, svc.opts.Consumers)
	assert.Equal(t, 1, svc.opts.Workers)
	assert.Equal(t, ProcessingTimeout, svc.opts.ProcessingTimeout)
}

func TestServiceMetrics_Snapshot(t *testing.T) {
	m := NewServiceMetrics()
	m.RecordSuccess(10 * time.Millisecond)
	m.RecordSuccess(30 * time.Millisecond)
	m.RecordFailure()

	s := m.Snapshot()
	assert.Equal(t, int64(2), s.Processed)
	assert.Equal(t, int64(1), s.Failed)
	assert.Equal(t, int64(20), s.AvgDurationMs)

	m.Reset()
	assert.Equal(t, int64(0), m.Snapshot().Processed)
}
