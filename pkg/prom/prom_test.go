package prom

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, label string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			if label == "" {
				return m.GetCounter().GetValue()
			}
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "status" && lp.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestCreateAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, CreateWithRegistry(reg, "test-host", "test", "crm"))

	CampaignActivated(3)
	DeliveryOutcome("sent", 0.4)
	DeliveryOutcome("failed", 0.2)
	DeliveryOutcome("sent", 0.1)
	DuplicateReceipt()
	QueueDepth(10, 4)

	assert.Equal(t, float64(1), counterValue(t, reg, "crm_campaign_activated_total", ""))
	assert.Equal(t, float64(2), counterValue(t, reg, "crm_delivery_outcome_total", "sent"))
	assert.Equal(t, float64(1), counterValue(t, reg, "crm_delivery_outcome_total", "failed"))
	assert.Equal(t, float64(1), counterValue(t, reg, "crm_delivery_duplicate_receipts_total", ""))
	assert.Equal(t, float64(4), gaugeValue(t, reg, "crm_delivery_queue_messages", "pending"))
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name, state string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "state" && lp.GetValue() == state {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	return 0
}

func TestCreateMetric_UnknownType(t *testing.T) {
	err := CreateMetric("summary", "x", "y")
	assert.Error(t, err)
}
