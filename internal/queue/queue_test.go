package queue

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nimasrn/crm-campaigns/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(name string) QueueConfig {
	return QueueConfig{
		Name:              name,
		ConsumerGroup:     "test-group",
		ConsumerName:      "test-consumer",
		MaxRetries:        3,
		VisibilityTimeout: 5 * time.Second,
		PollInterval:      50 * time.Millisecond,
		BatchSize:         10,
		EnableDLQ:         true,
	}
}

func TestQueue_PublishAndConsume(t *testing.T) {
	_, adapter := testutil.OpenRedis(t)

	queue, err := NewQueue(adapter, testConfig("test:queue"))
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	ctx := context.Background()
	_, err = queue.PublishJSON(ctx, map[string]string{"key": "value"}, map[string]string{"type": "test"})
	require.NoError(t, err)

	received := make(chan *Message, 1)
	require.NoError(t, queue.Consume(func(ctx context.Context, msg *Message) error {
		received <- msg
		return nil
	}))

	select {
	case msg := <-received:
		var data map[string]string
		require.NoError(t, json.Unmarshal(msg.Data, &data))
		assert.Equal(t, "value", data["key"])
		assert.Equal(t, "test", msg.Metadata["type"])
		assert.Equal(t, 0, msg.Attempts)
		assert.WithinDuration(t, time.Now(), msg.Timestamp, 5*time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}

	assert.Eventually(t, func() bool {
		stats, err := queue.GetStats(ctx)
		return err == nil && stats.PendingMessages == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestQueue_SecondQueueOnSameGroup(t *testing.T) {
	_, adapter := testutil.OpenRedis(t)

	q1, err := NewQueue(adapter, testConfig("test:shared"))
	require.NoError(t, err)
	defer q1.Stop(time.Second)

	q2, err := NewQueue(adapter, testConfig("test:shared"))
	require.NoError(t, err)
	defer q2.Stop(time.Second)
}

func TestQueue_FailedMessageIsRedelivered(t *testing.T) {
	_, adapter := testutil.OpenRedis(t)

	cfg := testConfig("test:retry")
	cfg.VisibilityTimeout = 100 * time.Millisecond
	queue, err := NewQueue(adapter, cfg)
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	ctx := context.Background()
	_, err = queue.PublishJSON(ctx, map[string]string{"test": "retry"}, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var attempts []int
	require.NoError(t, queue.Consume(func(ctx context.Context, msg *Message) error {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, msg.Attempts)
		if len(attempts) < 2 {
			return assert.AnError
		}
		return nil
	}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(attempts) >= 2
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 0, attempts[0])
	assert.Greater(t, attempts[1], 0)
	mu.Unlock()
}

func TestQueue_DeadLetterAfterMaxRetries(t *testing.T) {
	_, adapter := testutil.OpenRedis(t)

	cfg := testConfig("test:dlq")
	cfg.MaxRetries = 1
	cfg.VisibilityTimeout = 80 * time.Millisecond
	queue, err := NewQueue(adapter, cfg)
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	dead := make(chan *Message, 1)
	queue.OnDeadLetter(func(ctx context.Context, msg *Message) {
		dead <- msg
	})

	ctx := context.Background()
	_, err = queue.Publish(ctx, []byte(`{"n":1}`), map[string]string{"kind": "delivery"})
	require.NoError(t, err)

	var calls int32
	require.NoError(t, queue.Consume(func(ctx context.Context, msg *Message) error {
		atomic.AddInt32(&calls, 1)
		return assert.AnError
	}))

	select {
	case msg := <-dead:
		assert.JSONEq(t, `{"n":1}`, string(msg.Data))
		assert.Equal(t, "delivery", msg.Metadata["kind"])
	case <-time.After(5 * time.Second):
		t.Fatal("message never dead-lettered")
	}

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	n, err := adapter.XLen(ctx, queue.DeadLetterName())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestQueue_GetStats(t *testing.T) {
	_, adapter := testutil.OpenRedis(t)

	queue, err := NewQueue(adapter, testConfig("test:stats"))
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := queue.PublishJSON(ctx, map[string]int{"count": i}, nil)
		require.NoError(t, err)
	}

	stats, err := queue.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.TotalMessages)
	assert.Equal(t, int64(0), stats.PendingMessages)
}

func TestMessage_Ack(t *testing.T) {
	_, adapter := testutil.OpenRedis(t)

	queue, err := NewQueue(adapter, testConfig("test:ack"))
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	ctx := context.Background()
	id, err := queue.Publish(ctx, []byte(`{}`), nil)
	require.NoError(t, err)

	msg := &Message{ID: id, queue: queue}
	assert.NoError(t, msg.Ack(ctx))
	assert.ErrorIs(t, msg.Ack(ctx), ErrAlreadyAcked)
}

func TestQueue_Validation(t *testing.T) {
	_, adapter := testutil.OpenRedis(t)

	_, err := NewQueue(adapter, QueueConfig{})
	assert.Error(t, err)

	queue, err := NewQueue(adapter, QueueConfig{Name: "defaults"})
	require.NoError(t, err)
	defer queue.Stop(time.Second)
	assert.ErrorIs(t, queue.Consume(nil), ErrNoHandler)
}

func TestQueue_ConcurrentPublish(t *testing.T) {
	_, adapter := testutil.OpenRedis(t)

	queue, err := NewQueue(adapter, testConfig("test:concurrent"))
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := queue.PublishJSON(ctx, map[string]int{"id": id}, nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stats, err := queue.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.TotalMessages)
}

func TestQueue_Stop(t *testing.T) {
	_, adapter := testutil.OpenRedis(t)

	queue, err := NewQueue(adapter, testConfig("test:stop"))
	require.NoError(t, err)

	require.NoError(t, queue.Consume(func(ctx context.Context, msg *Message) error {
		time.Sleep(100 * time.Millisecond)
		return nil
	}))
	assert.NoError(t, queue.Stop(2*time.Second))
}
