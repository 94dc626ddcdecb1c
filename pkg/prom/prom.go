package prom

import (
	"fmt"
	"sync"

	xhttp "github.com/nimasrn/crm-campaigns/pkg/http"
	"github.com/nimasrn/crm-campaigns/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemCampaigns  = "campaign"
	SystemDeliveries = "delivery"
)

const (
	MetricCampaignActivated    = "activated_total"
	MetricCampaignAudienceSize = "audience_size"
	MetricDeliveryOutcome      = "outcome_total"
	MetricDeliveryDuplicate    = "duplicate_receipts_total"
	MetricDeliveryDuration     = "dispatch_to_receipt_seconds"
	MetricQueueMessages        = "queue_messages"
)

const (
	TypeCounter      = "counter"
	TypeCounterVec   = "counterVec"
	TypeHistogram    = "histogram"
	TypeHistogramVec = "histogramVec"
	TypeGaugeVec     = "gaugeVec"
)

var (
	mu        sync.RWMutex
	namespace = "none"
	enabled   bool
	registry  prometheus.Registerer = prometheus.DefaultRegisterer

	counters      = make(map[string]prometheus.Counter)
	counterVecs   = make(map[string]*prometheus.CounterVec)
	gaugeVecs     = make(map[string]*prometheus.GaugeVec)
	histograms    = make(map[string]prometheus.Histogram)
	histogramVecs = make(map[string]*prometheus.HistogramVec)

	defaultLabels prometheus.Labels
)

// Create registers the campaign and delivery metrics. Until it is called
// every recording helper is a no-op.
func Create(host string, env string, nameSpace string) error {
	return CreateWithRegistry(prometheus.DefaultRegisterer, host, env, nameSpace)
}

func CreateWithRegistry(reg prometheus.Registerer, host, env, nameSpace string) error {
	mu.Lock()
	registry = reg
	defaultLabels = prometheus.Labels{"env": env, "instance": host}
	namespace = nameSpace
	enabled = true
	mu.Unlock()

	var err error
	hasError := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}

	hasError(CreateMetric(TypeCounter, SystemCampaigns, MetricCampaignActivated))
	hasError(CreateMetric(TypeHistogram, SystemCampaigns, MetricCampaignAudienceSize))
	hasError(CreateMetric(TypeCounterVec, SystemDeliveries, MetricDeliveryOutcome, "status"))
	hasError(CreateMetric(TypeCounter, SystemDeliveries, MetricDeliveryDuplicate))
	hasError(CreateMetric(TypeHistogramVec, SystemDeliveries, MetricDeliveryDuration, "status"))
	hasError(CreateMetric(TypeGaugeVec, SystemDeliveries, MetricQueueMessages, "state"))

	return err
}

func CreateMetric(metricType, subsystem, name string, labels ...string) error {
	mu.Lock()
	defer mu.Unlock()

	key := subsystem + name
	var c prometheus.Collector
	switch metricType {
	case TypeCounter:
		m := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: name, ConstLabels: defaultLabels})
		counters[key], c = m, m
	case TypeCounterVec:
		m := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: name, ConstLabels: defaultLabels}, labels)
		counterVecs[key], c = m, m
	case TypeHistogram:
		m := prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: name, ConstLabels: defaultLabels, Buckets: prometheus.ExponentialBuckets(1, 4, 10)})
		histograms[key], c = m, m
	case TypeHistogramVec:
		m := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: name, ConstLabels: defaultLabels, Buckets: prometheus.DefBuckets}, labels)
		histogramVecs[key], c = m, m
	case TypeGaugeVec:
		m := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: name, ConstLabels: defaultLabels}, labels)
		gaugeVecs[key], c = m, m
	default:
		return fmt.Errorf("metric type %s is not defined", metricType)
	}
	return registry.Register(c)
}

func ListenAndServer(addr string, url string) {
	hh := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	s := xhttp.CreateServer()
	s.GET(url, hh)
	logger.Info("[metrics-server] listening...", "addr", addr, "url", url)
	if err := s.ListenAndServe(addr); err != nil {
		logger.Panic("[metrics-server] http listen error", "error", err)
	}
}

func AddCounter(subsystem, name string, num float64) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	if v, ok := counters[subsystem+name]; ok {
		v.Add(num)
		return
	}
	logger.Warn("[metrics-server] counter not found", "subsystem", subsystem, "name", name)
}

func IncCounter(subsystem, name string) {
	AddCounter(subsystem, name, 1)
}

func AddCounterVec(subsystem, name string, num float64, labelValues ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	if v, ok := counterVecs[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Add(num)
		return
	}
	logger.Warn("[metrics-server] counter vec not found", "subsystem", subsystem, "name", name)
}

func IncCounterVec(subsystem, name string, labelValues ...string) {
	AddCounterVec(subsystem, name, 1, labelValues...)
}

func SetGaugeVec(subsystem, name string, num float64, labelValues ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	if v, ok := gaugeVecs[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Set(num)
		return
	}
	logger.Warn("[metrics-server] gauge not found", "subsystem", subsystem, "name", name)
}

func AddHistogram(subsystem, name string, number float64) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	if v, ok := histograms[subsystem+name]; ok {
		v.Observe(number)
		return
	}
	logger.Warn("[metrics-server] histogram not found", "subsystem", subsystem, "name", name)
}

func AddHistogramVec(subsystem, name string, number float64, labelValues ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	if v, ok := histogramVecs[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Observe(number)
		return
	}
	logger.Warn("[metrics-server] histogram vec not found", "subsystem", subsystem, "name", name)
}

func CampaignActivated(audienceSize int) {
	IncCounter(SystemCampaigns, MetricCampaignActivated)
	AddHistogram(SystemCampaigns, MetricCampaignAudienceSize, float64(audienceSize))
}

func DeliveryOutcome(status string, sinceDispatch float64) {
	IncCounterVec(SystemDeliveries, MetricDeliveryOutcome, status)
	AddHistogramVec(SystemDeliveries, MetricDeliveryDuration, sinceDispatch, status)
}

func DuplicateReceipt() {
	IncCounter(SystemDeliveries, MetricDeliveryDuplicate)
}

// QueueDepth publishes the stream length and the unacknowledged count.
func QueueDepth(total, pending int64) {
	SetGaugeVec(SystemDeliveries, MetricQueueMessages, float64(total), "total")
	SetGaugeVec(SystemDeliveries, MetricQueueMessages, float64(pending), "pending")
}
