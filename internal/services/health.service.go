package services

import (
	"context"
	"fmt"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthService reports whether the stores the API depends on answer.
type HealthService struct {
	checks map[string]Pinger
}

func NewHealthService(checks map[string]Pinger) *HealthService {
	return &HealthService{checks: checks}
}

// Check returns a status per dependency and an error naming the first one
// that failed.
func (s *HealthService) Check(ctx context.Context) (map[string]string, error) {
	status := make(map[string]string, len(s.checks))
	var firstErr error
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			status[name] = "down"
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", name, err)
			}
			continue
		}
		status[name] = "up"
	}
	return status, firstErr
}
