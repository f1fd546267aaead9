package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// POS records sale, register and cache activity. A nil *POS, or one built
// with a nil registerer, records nothing.
type POS struct {
	salesRecorded  *prometheus.CounterVec
	salesAmount    *prometheus.CounterVec
	saleMutations  *prometheus.CounterVec
	registerEvents *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *POS {
	if reg == nil {
		return &POS{}
	}

	m := &POS{
		salesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_sales_recorded_total",
			Help: "Sales recorded, by payment method.",
		}, []string{"payment_method"}),
		salesAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_sales_amount_cents_total",
			Help: "Sum of recorded sale totals in cents, by payment method.",
		}, []string{"payment_method"}),
		saleMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_sale_mutations_total",
			Help: "Same-day edit and cancel attempts, by action and result.",
		}, []string{"action", "result"}),
		registerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_register_sessions_total",
			Help: "Register sessions opened and closed.",
		}, []string{"event"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_cache_lookups_total",
			Help: "Read-through cache lookups, by entity and outcome.",
		}, []string{"entity", "result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.salesRecorded, m.salesAmount, m.saleMutations, m.registerEvents, m.cacheLookups, m.httpDuration)
	return m
}

func (m *POS) SaleRecorded(paymentMethod string, totalCents int64) {
	if m == nil || m.salesRecorded == nil {
		return
	}
	m.salesRecorded.WithLabelValues(label(paymentMethod)).Inc()
	m.salesAmount.WithLabelValues(label(paymentMethod)).Add(float64(totalCents))
}

func (m *POS) SaleMutation(action string, applied bool) {
	if m == nil || m.saleMutations == nil {
		return
	}
	result := "rejected"
	if applied {
		result = "applied"
	}
	m.saleMutations.WithLabelValues(label(action), result).Inc()
}

func (m *POS) RegisterEvent(event string) {
	if m == nil || m.registerEvents == nil {
		return
	}
	m.registerEvents.WithLabelValues(label(event)).Inc()
}

func (m *POS) CacheLookup(entity string, result string) {
	if m == nil || m.cacheLookups == nil {
		return
	}
	m.cacheLookups.WithLabelValues(label(entity), label(result)).Inc()
}

func (m *POS) ObserveHTTP(method string, route string, status int, elapsed time.Duration) {
	if m == nil || m.httpDuration == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, label(route), strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func label(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
