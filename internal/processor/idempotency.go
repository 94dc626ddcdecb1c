package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nimasrn/crm-campaigns/pkg/logger"
	"github.com/nimasrn/crm-campaigns/pkg/redis"
)

var (
	ErrAlreadyProcessed   = errors.New("delivery already handed to vendor")
	ErrLockAcquireFailed  = errors.New("failed to acquire processing lock")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

type IdempotencyConfig struct {
	// LockTTL bounds how long a crashed worker can block a delivery.
	LockTTL time.Duration

	ProcessedTTL time.Duration

	MaxRetries int

	RetryKeyPrefix     string
	LockKeyPrefix      string
	ProcessedKeyPrefix string
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		LockTTL:            30 * time.Second,
		ProcessedTTL:       24 * time.Hour,
		MaxRetries:         3,
		RetryKeyPrefix:     "delivery:retry:",
		LockKeyPrefix:      "delivery:lock:",
		ProcessedKeyPrefix: "delivery:processed:",
	}
}

// IdempotencyService makes sure a delivery reaches the vendor at most once,
// however often its work item is redelivered.
type IdempotencyService struct {
	redis  redis.RedisAdapter
	config IdempotencyConfig
}

func NewIdempotencyService(redisAdapter redis.RedisAdapter, config IdempotencyConfig) *IdempotencyService {
	return &IdempotencyService{
		redis:  redisAdapter,
		config: config,
	}
}

type ProcessingContext struct {
	DeliveryID   string
	RetryCount   int
	IsRetry      bool
	lockAcquired bool
}

func (s *IdempotencyService) AcquireProcessingLock(ctx context.Context, deliveryID string) (*ProcessingContext, error) {
	exists, err := s.redis.Exist(ctx, s.config.ProcessedKeyPrefix+deliveryID)
	if err != nil {
		return nil, fmt.Errorf("failed to check processed marker: %w", err)
	}
	if exists > 0 {
		return nil, ErrAlreadyProcessed
	}

	retryCount, err := s.GetRetryCount(ctx, deliveryID)
	if err != nil {
		logger.Warn("failed to read retry counter", "delivery_id", deliveryID, "error", err)
	}
	if retryCount >= s.config.MaxRetries {
		return nil, fmt.Errorf("%w: delivery_id=%s, retries=%d", ErrMaxRetriesExceeded, deliveryID, retryCount)
	}

	lockValue := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
	acquired, err := s.redis.SetNX(ctx, s.config.LockKeyPrefix+deliveryID, lockValue, s.config.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}
	if !acquired {
		return nil, ErrLockAcquireFailed
	}

	logger.Debug("processing lock acquired", "delivery_id", deliveryID, "retry_count", retryCount, "lock_ttl", s.config.LockTTL)

	return &ProcessingContext{
		DeliveryID:   deliveryID,
		RetryCount:   retryCount,
		IsRetry:      retryCount > 0,
		lockAcquired: true,
	}, nil
}

// MarkSuccess stores the vendor outcome as the processed marker and drops
// the lock and retry counter. The outcome is replayed by Outcome when the
// work item comes back.
func (s *IdempotencyService) MarkSuccess(ctx context.Context, pc *ProcessingContext, outcome []byte) error {
	if len(outcome) == 0 {
		outcome = []byte("1")
	}
	if err := s.redis.Set(ctx, s.config.ProcessedKeyPrefix+pc.DeliveryID, outcome, s.config.ProcessedTTL); err != nil {
		return fmt.Errorf("failed to mark as processed: %w", err)
	}
	s.cleanup(ctx, pc)
	return nil
}

func (s *IdempotencyService) MarkFailure(ctx context.Context, pc *ProcessingContext, reason error) error {
	next := pc.RetryCount + 1
	err := s.redis.Set(ctx, s.config.RetryKeyPrefix+pc.DeliveryID, []byte(strconv.Itoa(next)), s.config.ProcessedTTL)
	if err != nil {
		logger.Error("failed to increment retry counter", "delivery_id", pc.DeliveryID, "error", err)
	}
	if delErr := s.ReleaseLock(ctx, pc); delErr != nil && err == nil {
		err = delErr
	}

	logger.Warn("delivery attempt failed, will retry",
		"delivery_id", pc.DeliveryID,
		"retry_count", next,
		"max_retries", s.config.MaxRetries,
		"reason", reason)
	return err
}

func (s *IdempotencyService) ReleaseLock(ctx context.Context, pc *ProcessingContext) error {
	if pc == nil || !pc.lockAcquired {
		return nil
	}
	if err := s.redis.Del(ctx, s.config.LockKeyPrefix+pc.DeliveryID); err != nil {
		logger.Warn("failed to release lock", "delivery_id", pc.DeliveryID, "error", err)
		return err
	}
	pc.lockAcquired = false
	return nil
}

func (s *IdempotencyService) cleanup(ctx context.Context, pc *ProcessingContext) {
	if err := s.redis.Del(ctx, s.config.LockKeyPrefix+pc.DeliveryID, s.config.RetryKeyPrefix+pc.DeliveryID); err != nil {
		logger.Warn("failed to clean up idempotency keys", "delivery_id", pc.DeliveryID, "error", err)
	}
	pc.lockAcquired = false
}

func (s *IdempotencyService) GetRetryCount(ctx context.Context, deliveryID string) (int, error) {
	raw, err := s.redis.Get(ctx, s.config.RetryKeyPrefix+deliveryID)
	if err != nil {
		if errors.Is(err, redis.NilError) {
			return 0, nil
		}
		return 0, err
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("corrupt retry counter %q: %w", raw, err)
	}
	return n, nil
}

func (s *IdempotencyService) IsProcessed(ctx context.Context, deliveryID string) (bool, error) {
	exists, err := s.redis.Exist(ctx, s.config.ProcessedKeyPrefix+deliveryID)
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// Outcome returns what MarkSuccess stored for deliveryID, or nil when the
// delivery has not been processed.
func (s *IdempotencyService) Outcome(ctx context.Context, deliveryID string) ([]byte, error) {
	raw, err := s.redis.Get(ctx, s.config.ProcessedKeyPrefix+deliveryID)
	if err != nil {
		if errors.Is(err, redis.NilError) {
			return nil, nil
		}
		return nil, err
	}
	return raw, nil
}
