package biz

import (
	"context"
	"strings"
	"sync"
	"time"

	"mandate-service/internal/constants"
	"mandate-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"
)

// SweepReport 一次对账的处理结果
type SweepReport struct {
	Entries int // 流水条目数
	Paid    int // 新标记为已支付的订单数
	Skipped int // 未支付/未知订单/已是终态
	Failed  int // 存储读写失败，下次对账重试
}

// SweepUseCase 定时对账：拉取服务商交易流水，将已到账的订单标记为已支付
type SweepUseCase struct {
	repo    OrderRepo
	client  MandateClient
	locker  Locker
	conf    *MandateConfig
	log     *log.Helper
	metrics *metrics.MandateMetrics
}

// NewSweepUseCase 创建对账 UseCase
func NewSweepUseCase(repo OrderRepo, client MandateClient, locker Locker, conf *MandateConfig, logger log.Logger) *SweepUseCase {
	return &SweepUseCase{
		repo:    repo,
		client:  client,
		locker:  locker,
		conf:    conf,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// Run 执行一次对账
// 同一时刻只有一个实例执行；授权或拉取流水失败时不做任何写入，等待下次调度
func (uc *SweepUseCase) Run(ctx context.Context) (*SweepReport, error) {
	startTime := time.Now()
	defer func() {
		uc.metrics.SweepDuration.Observe(time.Since(startTime).Seconds())
	}()

	unlock, err := uc.locker.Lock(ctx, constants.RedisKeySweepLock)
	if err != nil {
		uc.log.Warnf("sweep lock unavailable, skipping this cycle: %v", err)
		uc.metrics.SweepRunTotal.WithLabelValues(constants.ResultSkipped).Inc()
		return nil, err
	}
	defer unlock()

	auth, err := uc.client.Authenticate(ctx)
	if err != nil {
		uc.log.Errorf("sweep authenticate failed: %v", err)
		uc.metrics.SweepRunTotal.WithLabelValues(constants.ResultFailed).Inc()
		return nil, err
	}

	feed, err := uc.client.FetchTransactionFeed(ctx, auth)
	if err != nil {
		uc.log.Errorf("sweep fetch transaction feed failed: %v", err)
		uc.metrics.SweepRunTotal.WithLabelValues(constants.ResultFailed).Inc()
		return nil, err
	}

	report := &SweepReport{Entries: len(feed)}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(max(uc.conf.SweepConcurrency, 1))

	for ref, entry := range feed {
		g.Go(func() error {
			result := uc.applyEntry(ctx, ref, entry)
			uc.metrics.SweepEntriesTotal.WithLabelValues(result).Inc()

			mu.Lock()
			defer mu.Unlock()
			switch result {
			case constants.ResultSuccess:
				report.Paid++
			case constants.ResultFailed:
				report.Failed++
			default:
				report.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	uc.metrics.SweepRunTotal.WithLabelValues(constants.ResultSuccess).Inc()
	uc.log.Infof("sweep finished: entries=%d paid=%d skipped=%d failed=%d duration=%s",
		report.Entries, report.Paid, report.Skipped, report.Failed, time.Since(startTime))
	return report, nil
}

// applyEntry 处理单条流水，返回结果标签
func (uc *SweepUseCase) applyEntry(ctx context.Context, ref string, entry *FeedEntry) string {
	if !strings.EqualFold(entry.Status, constants.TransactionStatePaid) {
		return constants.ResultSkipped
	}

	order, err := uc.repo.GetOrder(ctx, ref)
	if err != nil {
		uc.log.Errorf("sweep get order failed: order_id=%s error=%v", ref, err)
		return constants.ResultFailed
	}
	if order == nil {
		uc.log.Debugf("sweep entry for unknown order: order_id=%s", ref)
		return constants.ResultSkipped
	}
	switch order.PaymentState() {
	case StatePaid:
		return constants.ResultSkipped
	case StateFailed:
		uc.log.Warnf("paid transaction for failed order, left for manual review: order_id=%s", ref)
		return constants.ResultSkipped
	}

	ok, err := uc.repo.MarkPaid(ctx, order.ID, entry.BookingDate, constants.NotePaymentConfirmed)
	if err != nil {
		uc.log.Errorf("sweep mark paid failed: order_id=%s error=%v", order.ID, err)
		return constants.ResultFailed
	}
	if !ok {
		return constants.ResultSkipped
	}

	uc.metrics.OrderTransitionTotal.WithLabelValues(constants.OrderStatusProcessing, constants.EntrySweep).Inc()
	uc.log.Infof("order paid: order_id=%s booking_date=%s", order.ID, entry.BookingDate.Format(time.RFC3339))
	return constants.ResultSuccess
}
