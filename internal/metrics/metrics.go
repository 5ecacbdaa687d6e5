package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MandateMetrics 签约扣款服务指标
type MandateMetrics struct {
	// 服务商调用相关指标
	ProviderRequestTotal    *prometheus.CounterVec   // 服务商调用总数（按操作、结果）
	ProviderRequestDuration *prometheus.HistogramVec // 服务商调用耗时

	// 扣款相关指标
	ChargeSubmittedTotal *prometheus.CounterVec // 扣款提交总数（按入口、结果）
	ChargeAmount         *prometheus.CounterVec // 扣款提交金额（按入口）
	ChargeSkippedTotal   *prometheus.CounterVec // 状态守卫拒绝的扣款（按入口）

	// 订单状态流转
	OrderTransitionTotal *prometheus.CounterVec // 订单状态流转总数（按目标状态、入口）

	// 回调相关指标
	CallbackTotal *prometheus.CounterVec // 签约回调总数（按结果）

	// 对账相关指标
	SweepRunTotal     *prometheus.CounterVec // 对账执行次数（按结果）
	SweepEntriesTotal *prometheus.CounterVec // 对账条目处理数（按结果）
	SweepDuration     prometheus.Histogram   // 对账耗时

	// 分布式锁相关指标
	LockAcquireTotal    *prometheus.CounterVec // 锁获取总数（按结果）
	LockAcquireDuration prometheus.Histogram   // 锁获取耗时
}

// NewMandateMetrics 创建指标
func NewMandateMetrics() *MandateMetrics {
	return &MandateMetrics{
		ProviderRequestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mandate_provider_request_total",
				Help: "Total number of Twikey API requests",
			},
			[]string{"op", "result"}, // result: success/failed
		),
		ProviderRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mandate_provider_request_duration_seconds",
				Help:    "Duration of Twikey API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),

		ChargeSubmittedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mandate_charge_submitted_total",
				Help: "Total number of transaction submissions",
			},
			[]string{"entry", "result"}, // entry: checkout/renewal/callback
		),
		ChargeAmount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mandate_charge_amount_total",
				Help: "Total amount submitted for collection",
			},
			[]string{"entry"},
		),
		ChargeSkippedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mandate_charge_skipped_total",
				Help: "Charge submissions refused by the order state guard",
			},
			[]string{"entry"},
		),

		OrderTransitionTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mandate_order_transition_total",
				Help: "Total number of order status transitions",
			},
			[]string{"status", "entry"},
		),

		CallbackTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mandate_callback_total",
				Help: "Total number of exit-url callbacks",
			},
			[]string{"result"}, // result: success/invalid/no_match/anomaly/failed
		),

		SweepRunTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mandate_sweep_run_total",
				Help: "Total number of reconciliation sweeps",
			},
			[]string{"result"},
		),
		SweepEntriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mandate_sweep_entries_total",
				Help: "Transaction feed entries handled by the sweep",
			},
			[]string{"result"}, // result: success/skipped/failed
		),
		SweepDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mandate_sweep_duration_seconds",
				Help:    "Duration of reconciliation sweeps",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),

		LockAcquireTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mandate_lock_acquire_total",
				Help: "Total number of lock acquisition attempts",
			},
			[]string{"result"}, // result: success/failed
		),
		LockAcquireDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mandate_lock_acquire_duration_seconds",
				Help:    "Duration of lock acquisition",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0}, // 毫秒级
			},
		),
	}
}

// 全局指标实例
var defaultMetrics *MandateMetrics

// InitMetrics 初始化全局指标
func InitMetrics() {
	defaultMetrics = NewMandateMetrics()
}

// GetMetrics 获取全局指标实例
func GetMetrics() *MandateMetrics {
	if defaultMetrics == nil {
		InitMetrics()
	}
	return defaultMetrics
}
