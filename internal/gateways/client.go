package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nimasrn/crm-campaigns/pkg/logger"
	"github.com/valyala/fasthttp"
)

const (
	SendPath   = "/api/v1/deliveries"
	HealthPath = "/health"
)

var (
	ErrNoAvailableProviders = errors.New("no available providers")
	ErrInvalidResponse      = errors.New("invalid vendor response")
)

// VendorStatus is the outcome a vendor reports for one send.
type VendorStatus string

const (
	VendorSent   VendorStatus = "SENT"
	VendorFailed VendorStatus = "FAILED"
)

type SendRequest struct {
	DeliveryID string `json:"delivery_id"`
	CampaignID string `json:"campaign_id,omitempty"`
	Recipient  string `json:"recipient"`
	Message    string `json:"message"`
}

type SendResponse struct {
	DeliveryID    string       `json:"delivery_id"`
	Status        VendorStatus `json:"status"`
	FailureReason string       `json:"failure_reason,omitempty"`
	VendorID      string       `json:"vendor_id,omitempty"`
	ProcessedAt   time.Time    `json:"processed_at"`
}

// Sender hands one rendered message to a delivery vendor. A nil error means
// the vendor answered; the answer itself may still be VendorFailed.
type Sender interface {
	Send(ctx context.Context, req *SendRequest) (*SendResponse, error)
}

type Config struct {
	Providers               []ProviderConfig
	Timeout                 time.Duration
	MaxRetries              int
	RetryDelay              time.Duration
	MaxConns                int
	ReadBufferSize          int
	WriteBufferSize         int
	HealthCheckInterval     time.Duration
	EvaluateInterval        time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration

	// Dial overrides the transport dialer. Tests use in-memory listeners.
	Dial fasthttp.DialFunc
}

type ProviderConfig struct {
	Name   string
	URL    string
	Weight int // 1-100
}

// DefaultConfig builds a client config for urls in priority order.
func DefaultConfig(urls ...string) *Config {
	names := []string{"primary", "secondary", "backup"}
	cfg := &Config{
		Timeout:                 10 * time.Second,
		MaxRetries:              2,
		RetryDelay:              200 * time.Millisecond,
		MaxConns:                200,
		ReadBufferSize:          4096,
		WriteBufferSize:         4096,
		HealthCheckInterval:     30 * time.Second,
		EvaluateInterval:        30 * time.Second,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
	}
	for i, u := range urls {
		name := fmt.Sprintf("vendor-%d", i+1)
		if i < len(names) {
			name = names[i]
		}
		weight := 100 - i*20
		if weight < 10 {
			weight = 10
		}
		cfg.Providers = append(cfg.Providers, ProviderConfig{Name: name, URL: u, Weight: weight})
	}
	return cfg
}

// Client sends through the best scoring provider and fails over on
// transport errors.
type Client struct {
	config    *Config
	providers []*Provider
	mu        sync.RWMutex
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if len(config.Providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}
	if config.HealthCheckInterval <= 0 {
		config.HealthCheckInterval = 30 * time.Second
	}
	if config.EvaluateInterval <= 0 {
		config.EvaluateInterval = 30 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	client := &Client{
		config:    config,
		providers: make([]*Provider, 0, len(config.Providers)),
		stopCh:    make(chan struct{}),
	}

	for _, pc := range config.Providers {
		httpClient := &fasthttp.Client{
			MaxConnsPerHost:     config.MaxConns,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
			ReadBufferSize:      config.ReadBufferSize,
			WriteBufferSize:     config.WriteBufferSize,
			Dial:                config.Dial,
		}
		client.providers = append(client.providers, NewProvider(pc.Name, pc.URL, pc.Weight, httpClient))
		logger.Info("vendor provider initialized", "name", pc.Name, "url", pc.URL, "weight", pc.Weight)
	}

	client.wg.Add(2)
	go client.healthChecker()
	go client.metricsCollector()

	logger.Info("vendor client initialized", "providers", len(client.providers), "timeout", config.Timeout)
	return client, nil
}

// SelectBestProvider returns the available provider with the highest score.
func (c *Client) SelectBestProvider() (*Provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var best *Provider
	var bestScore float64
	for _, provider := range c.providers {
		if !provider.IsAvailable() {
			continue
		}
		if score := provider.CalculateScore(); score > bestScore {
			bestScore = score
			best = provider
		}
	}

	if best == nil {
		return nil, ErrNoAvailableProviders
	}
	logger.Debug("selected vendor provider", "provider", best.name, "score", bestScore)
	return best, nil
}

func (c *Client) Send(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		provider, err := c.SelectBestProvider()
		if err != nil {
			lastErr = err
			continue
		}

		start := time.Now()
		raw, err := c.doRequest(ctx, provider, fasthttp.MethodPost, SendPath, body)
		latency := time.Since(start).Milliseconds()
		if err != nil {
			provider.metrics.RecordFailure()
			c.checkCircuitBreaker(provider)
			logger.Warn("vendor request failed", "error", err, "provider", provider.name, "attempt", attempt+1)
			lastErr = err
			continue
		}
		provider.metrics.RecordSuccess(latency)

		resp, err := decodeSendResponse(raw)
		if err != nil {
			return nil, err
		}
		if resp.DeliveryID == "" {
			resp.DeliveryID = req.DeliveryID
		}

		logger.Info("delivery handed to vendor", "delivery_id", req.DeliveryID, "status", string(resp.Status), "provider", provider.name, "latency_ms", latency)
		return resp, nil
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func decodeSendResponse(raw []byte) (*SendResponse, error) {
	var resp SendResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	switch resp.Status {
	case VendorSent, VendorFailed:
	default:
		return nil, fmt.Errorf("%w: status %q", ErrInvalidResponse, resp.Status)
	}
	return &resp, nil
}

func (c *Client) doRequest(ctx context.Context, provider *Provider, method, path string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(provider.url + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}
	if err := provider.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	status := resp.StatusCode()
	if status != fasthttp.StatusOK && status != fasthttp.StatusAccepted {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", status, resp.Body())
	}

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())
	return result, nil
}

func (c *Client) checkCircuitBreaker(provider *Provider) {
	fails := provider.metrics.ConsecutiveFails.Load()
	if fails >= int32(c.config.CircuitBreakerThreshold) {
		provider.SetState(StateCircuitOpen)
		provider.circuitOpenUntil.Store(time.Now().Add(c.config.CircuitBreakerTimeout).Unix())
		logger.Warn("vendor circuit opened", "provider", provider.name, "consecutive_fails", fails, "timeout", c.config.CircuitBreakerTimeout)
	}
}

func (c *Client) healthChecker() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.performHealthChecks()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Client) performHealthChecks() {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	c.mu.RLock()
	providers := make([]*Provider, len(c.providers))
	copy(providers, c.providers)
	c.mu.RUnlock()

	for _, provider := range providers {
		healthy := c.checkProviderHealth(ctx, provider)
		provider.lastHealthCheck.Store(time.Now().Unix())

		oldState := provider.GetState()
		newState := oldState
		if healthy {
			if oldState == StateUnhealthy || oldState == StateDegraded {
				newState = StateHealthy
			}
		} else if oldState != StateCircuitOpen {
			newState = StateUnhealthy
		}

		if newState != oldState {
			provider.SetState(newState)
			logger.Info("vendor provider state changed", "provider", provider.name, "old_state", oldState.String(), "new_state", newState.String())
		}
	}
}

func (c *Client) checkProviderHealth(ctx context.Context, provider *Provider) bool {
	raw, err := c.doRequest(ctx, provider, fasthttp.MethodGet, HealthPath, nil)
	if err != nil {
		return false
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &health); err != nil {
		return false
	}
	return health.Status == "healthy"
}

func (c *Client) metricsCollector() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.EvaluateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.evaluateProviders()
		case <-c.stopCh:
			return
		}
	}
}

// evaluateProviders moves providers between healthy and degraded from their
// observed success rate and latency.
func (c *Client) evaluateProviders() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, provider := range c.providers {
		state := provider.GetState()
		if state == StateCircuitOpen || state == StateUnhealthy {
			continue
		}

		successRate := provider.metrics.SuccessRate()
		avgLatency := provider.metrics.AvgLatencyMs()

		if successRate < 0.8 || avgLatency > 5000 {
			if state != StateDegraded {
				provider.SetState(StateDegraded)
				logger.Warn("vendor provider degraded", "provider", provider.name, "success_rate", successRate, "avg_latency_ms", avgLatency)
			}
		} else if successRate > 0.95 && avgLatency < 2000 {
			if state != StateHealthy {
				provider.SetState(StateHealthy)
				logger.Info("vendor provider recovered", "provider", provider.name)
			}
		}
	}
}

// GetProviderStats returns per-provider statistics, best score first.
func (c *Client) GetProviderStats() []ProviderStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := make([]ProviderStats, 0, len(c.providers))
	for _, provider := range c.providers {
		stats = append(stats, provider.stats())
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Score > stats[j].Score
	})
	return stats
}

func (c *Client) Close() error {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.wg.Wait()
		logger.Info("vendor client closed")
	})
	return nil
}
