package gateway

import (
	"context"
	"encoding/json"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

// startVendor serves handler on an in-memory listener and returns a config
// whose single provider dials it.
func startVendor(t *testing.T, handler fasthttp.RequestHandler) *Config {
	t.Helper()

	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = fasthttp.Serve(ln, handler) }()
	t.Cleanup(func() { _ = ln.Close() })

	cfg := DefaultConfig("http://vendor.test")
	cfg.Timeout = time.Second
	cfg.RetryDelay = time.Millisecond
	cfg.CircuitBreakerThreshold = 2
	cfg.Dial = func(addr string) (net.Conn, error) { return ln.Dial() }
	return cfg
}

func newTestClient(t *testing.T, cfg *Config) *Client {
	t.Helper()
	client, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewClient_Validation(t *testing.T) {
	t.Run("nil config returns error", func(t *testing.T) {
		client, err := NewClient(nil)
		assert.Error(t, err)
		assert.Nil(t, client)
		assert.Contains(t, err.Error(), "config is required")
	})

	t.Run("empty providers returns error", func(t *testing.T) {
		client, err := NewClient(&Config{Timeout: time.Second})
		assert.Error(t, err)
		assert.Nil(t, client)
		assert.Contains(t, err.Error(), "at least one provider is required")
	})

	t.Run("valid config creates client", func(t *testing.T) {
		client := newTestClient(t, DefaultConfig("http://localhost:8090"))
		assert.Len(t, client.providers, 1)
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("http://a", "http://b", "http://c", "http://d")

	require.Len(t, cfg.Providers, 4)
	assert.Equal(t, "primary", cfg.Providers[0].Name)
	assert.Equal(t, "backup", cfg.Providers[2].Name)
	assert.Equal(t, "vendor-4", cfg.Providers[3].Name)
	assert.Greater(t, cfg.Providers[0].Weight, cfg.Providers[1].Weight)
}

func TestClient_Send(t *testing.T) {
	var got SendRequest
	cfg := startVendor(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) != SendPath || !ctx.IsPost() {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		_ = json.Unmarshal(ctx.PostBody(), &got)
		ctx.SetStatusCode(fasthttp.StatusAccepted)
		ctx.SetBodyString(`{"delivery_id":"d-1","status":"FAILED","failure_reason":"Delivery failed to recipient"}`)
	})
	client := newTestClient(t, cfg)

	resp, err := client.Send(context.Background(), &SendRequest{DeliveryID: "d-1", Recipient: "+15550100", Message: "Hi Ada"})

	require.NoError(t, err)
	assert.Equal(t, VendorFailed, resp.Status)
	assert.Equal(t, SimulatedFailureReason, resp.FailureReason)
	assert.Equal(t, "+15550100", got.Recipient)
	assert.Equal(t, "Hi Ada", got.Message)

	stats := client.GetProviderStats()
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].SuccessfulReqs)
}

func TestClient_SendFillsMissingDeliveryID(t *testing.T) {
	cfg := startVendor(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"status":"SENT"}`)
	})
	client := newTestClient(t, cfg)

	resp, err := client.Send(context.Background(), &SendRequest{DeliveryID: "d-2"})
	require.NoError(t, err)
	assert.Equal(t, "d-2", resp.DeliveryID)
	assert.Equal(t, VendorSent, resp.Status)
}

func TestClient_SendRejectsUnknownStatus(t *testing.T) {
	cfg := startVendor(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"delivery_id":"d-3","status":"MAYBE"}`)
	})
	client := newTestClient(t, cfg)

	_, err := client.Send(context.Background(), &SendRequest{DeliveryID: "d-3"})
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestClient_SendRetriesAndOpensCircuit(t *testing.T) {
	var calls atomic.Int32
	cfg := startVendor(t, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	})
	cfg.MaxRetries = 3
	client := newTestClient(t, cfg)

	_, err := client.Send(context.Background(), &SendRequest{DeliveryID: "d-4"})

	require.Error(t, err)
	// threshold 2 opens the circuit, the remaining attempts find no provider
	assert.Equal(t, int32(2), calls.Load())
	assert.ErrorIs(t, err, ErrNoAvailableProviders)
	assert.Equal(t, StateCircuitOpen, client.providers[0].GetState())
}

func TestClient_SelectBestProvider(t *testing.T) {
	client := newTestClient(t, DefaultConfig("http://a", "http://b", "http://c"))

	t.Run("selects highest weight when metrics are equal", func(t *testing.T) {
		provider, err := client.SelectBestProvider()
		require.NoError(t, err)
		assert.Equal(t, "primary", provider.Name())
	})

	t.Run("skips unhealthy providers", func(t *testing.T) {
		client.providers[0].SetState(StateUnhealthy)
		defer client.providers[0].SetState(StateHealthy)

		provider, err := client.SelectBestProvider()
		require.NoError(t, err)
		assert.Equal(t, "secondary", provider.Name())
	})

	t.Run("returns error when all providers unavailable", func(t *testing.T) {
		for _, p := range client.providers {
			p.SetState(StateUnhealthy)
		}
		defer func() {
			for _, p := range client.providers {
				p.SetState(StateHealthy)
			}
		}()

		provider, err := client.SelectBestProvider()
		assert.Nil(t, provider)
		assert.Equal(t, ErrNoAvailableProviders, err)
	})
}

func TestClient_HealthChecks(t *testing.T) {
	var healthy atomic.Bool
	cfg := startVendor(t, func(ctx *fasthttp.RequestCtx) {
		if healthy.Load() {
			ctx.SetBodyString(`{"status":"healthy"}`)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	})
	client := newTestClient(t, cfg)
	provider := client.providers[0]

	client.performHealthChecks()
	assert.Equal(t, StateUnhealthy, provider.GetState())

	healthy.Store(true)
	client.performHealthChecks()
	assert.Equal(t, StateHealthy, provider.GetState())
}

func TestClient_EvaluateProviders(t *testing.T) {
	client := newTestClient(t, DefaultConfig("http://a"))
	provider := client.providers[0]

	for i := 0; i < 5; i++ {
		provider.metrics.RecordFailure()
	}
	provider.metrics.RecordSuccess(10)
	client.evaluateProviders()
	assert.Equal(t, StateDegraded, provider.GetState())

	for i := 0; i < 200; i++ {
		provider.metrics.RecordSuccess(10)
	}
	client.evaluateProviders()
	assert.Equal(t, StateHealthy, provider.GetState())
}

func TestClient_GetProviderStatsSorted(t *testing.T) {
	client := newTestClient(t, DefaultConfig("http://a", "http://b", "http://c"))
	client.providers[0].metrics.RecordFailure()
	client.providers[2].metrics.RecordSuccess(100)

	stats := client.GetProviderStats()
	require.Len(t, stats, 3)
	assert.GreaterOrEqual(t, stats[0].Score, stats[1].Score)
	assert.GreaterOrEqual(t, stats[1].Score, stats[2].Score)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	client, err := NewClient(DefaultConfig("http://a"))
	require.NoError(t, err)
	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
}
