package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 签到核心的 Prometheus 指标
// 方法对 nil 接收者安全，测试中可直接传 nil
type Metrics struct {
	Redemptions   *prometheus.CounterVec
	Registrations *prometheus.CounterVec
	BulkImports   *prometheus.CounterVec
	StoreErrors   *prometheus.CounterVec
}

// New 创建并注册全部指标
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Redemptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_redemptions_total",
			Help: "Scan attempts by outcome (accepted, already_redeemed, unknown, malformed)",
		}, []string{"outcome"}),
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_registrations_total",
			Help: "Guest registrations by mode (single, bulk) and outcome",
		}, []string{"mode", "outcome"}),
		BulkImports: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_bulk_imports_total",
			Help: "Bulk import calls by result (committed, empty, failed, partial)",
		}, []string{"result"}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_store_errors_total",
			Help: "Record store failures by operation",
		}, []string{"op"}),
	}
}

func (m *Metrics) ObserveRedemption(outcome string) {
	if m == nil {
		return
	}
	m.Redemptions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRegistrations(mode, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Registrations.WithLabelValues(mode, outcome).Add(float64(n))
}

func (m *Metrics) ObserveBulkImport(result string) {
	if m == nil {
		return
	}
	m.BulkImports.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveStoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(op).Inc()
}
