package gateway

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

const SimulatedFailureReason = "Delivery failed to recipient"

// Simulator is an in-process vendor. It answers every send after Delay and
// reports VendorSent with probability SuccessRate.
type Simulator struct {
	vendorID    string
	successRate float64
	delay       time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulator(successRate float64, delay time.Duration) *Simulator {
	return NewSimulatorWithSeed(successRate, delay, time.Now().UnixNano())
}

func NewSimulatorWithSeed(successRate float64, delay time.Duration, seed int64) *Simulator {
	if successRate < 0 {
		successRate = 0
	}
	if successRate > 1 {
		successRate = 1
	}
	return &Simulator{
		vendorID:    "SIM_" + uuid.New().String()[:8],
		successRate: successRate,
		delay:       delay,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

func (s *Simulator) VendorID() string { return s.vendorID }

func (s *Simulator) SuccessRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.successRate
}

// SetSuccessRate changes the success rate at runtime. Values outside [0,1]
// are ignored.
func (s *Simulator) SetSuccessRate(rate float64) bool {
	if rate < 0 || rate > 1 {
		return false
	}
	s.mu.Lock()
	s.successRate = rate
	s.mu.Unlock()
	return true
}

func (s *Simulator) Send(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	resp := &SendResponse{
		DeliveryID:  req.DeliveryID,
		VendorID:    s.vendorID,
		ProcessedAt: time.Now().UTC(),
	}
	if s.roll() {
		resp.Status = VendorSent
	} else {
		resp.Status = VendorFailed
		resp.FailureReason = SimulatedFailureReason
	}
	return resp, nil
}

func (s *Simulator) roll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < s.successRate
}
