package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mandate-service/internal/constants"
	mandateErrors "mandate-service/internal/errors"
	"mandate-service/internal/metrics"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// chargeableStatuses 扣款与失败写入的前置状态（条件更新）
var chargeableStatuses = []OrderStatus{OrderStatusPending}

// 扣款提交成功后保存订单状态的尝试次数
const chargeSaveAttempts = 3

// PaymentResult 结账处理结果
type PaymentResult struct {
	Result   string
	Redirect string
}

// ReconcilerUseCase 订单与签约对账（结账、续费、签约回调三个入口共享同一套状态流转）
type ReconcilerUseCase struct {
	repo     OrderRepo
	client   MandateClient
	locker   Locker
	verifier *SignatureVerifier
	conf     *MandateConfig
	log      *log.Helper
	metrics  *metrics.MandateMetrics
	now      func() time.Time

	saveRetryDelay time.Duration
}

// NewReconcilerUseCase 创建对账 UseCase
func NewReconcilerUseCase(
	repo OrderRepo,
	client MandateClient,
	locker Locker,
	verifier *SignatureVerifier,
	conf *MandateConfig,
	logger log.Logger,
) *ReconcilerUseCase {
	return &ReconcilerUseCase{
		repo:     repo,
		client:   client,
		locker:   locker,
		verifier: verifier,
		conf:     conf,
		log:      log.NewHelper(logger),
		metrics:  metrics.GetMetrics(),
		now:      time.Now,

		saveRetryDelay: 200 * time.Millisecond,
	}
}

// ProcessPayment 结账时处理支付
// 返回的错误消息可直接展示给顾客，订单状态保持不变，顾客可重新提交
func (uc *ReconcilerUseCase) ProcessPayment(ctx context.Context, orderID string) (*PaymentResult, error) {
	order, err := uc.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, mandateErrors.OrderNotFound(orderID)
	}

	thankYou := &PaymentResult{Result: constants.PaymentResultSuccess, Redirect: uc.conf.ThankYouURL(order.ID)}

	switch state := order.PaymentState(); state {
	case StateChargeRequested, StatePaid:
		// 重复提交：扣款已提交或已支付
		uc.log.Infof("checkout for already charged order: order_id=%s state=%s", order.ID, state)
		return thankYou, nil
	case StateFailed:
		return nil, mandateErrors.Checkout(409, mandateErrors.ReasonConflict, constants.NoticeOrderNotPayable, nil)
	}

	// 零金额订单（如免费试用）直接完成；与商城一致，只有 total > 0 才需要扣款（负数同样视为无需扣款）
	if !order.Total.IsPositive() {
		if _, err := uc.repo.MarkPaid(ctx, order.ID, uc.now(), constants.NoteZeroTotal); err != nil {
			return nil, err
		}
		uc.metrics.OrderTransitionTotal.WithLabelValues(constants.OrderStatusProcessing, constants.EntryCheckout).Inc()
		uc.log.Infof("zero total order completed: order_id=%s", order.ID)
		return thankYou, nil
	}

	if strings.Contains(order.Billing.Email, "+") {
		return nil, mandateErrors.Checkout(400, mandateErrors.ReasonCheckoutValidation, constants.NoticeEmailPlusSign, nil)
	}

	auth, err := uc.client.Authenticate(ctx)
	if err != nil {
		uc.log.Errorf("checkout authenticate failed: order_id=%s error=%v", order.ID, err)
		return nil, notice(err, constants.NoticeConnectFailed)
	}

	invite, err := uc.client.CreateInvite(ctx, auth, uc.inviteRequest(order))
	if err != nil {
		uc.log.Errorf("checkout invite failed: order_id=%s error=%v", order.ID, err)
		return nil, notice(err, constants.NoticeInviteFailed)
	}
	if err := uc.repo.SetMandateID(ctx, order.ID, invite.MandateID); err != nil {
		return nil, err
	}

	// 新签约需先签署，签署后由回调继续
	if invite.NeedsSignature() {
		uc.log.Infof("mandate needs signature: order_id=%s mandate_id=%s", order.ID, invite.MandateID)
		return &PaymentResult{Result: constants.PaymentResultSuccess, Redirect: invite.SignURL}, nil
	}

	status, err := uc.client.GetMandateStatus(ctx, auth, invite.MandateID)
	if err != nil {
		uc.log.Errorf("checkout mandate status failed: order_id=%s mandate_id=%s error=%v", order.ID, invite.MandateID, err)
		return nil, notice(err, constants.NoticeInvalidMandate)
	}
	if !status.Collectable {
		uc.log.Warnf("mandate not collectable: order_id=%s mandate_id=%s", order.ID, invite.MandateID)
		return nil, mandateErrors.Checkout(402, mandateErrors.ReasonNotCollectable, constants.NoticeInvalidMandate, nil)
	}

	if err := uc.submitCharge(ctx, constants.EntryCheckout, auth, order.ID, invite.MandateID); err != nil {
		if mandateErrors.IsConflict(err) {
			return thankYou, nil
		}
		return nil, notice(err, constants.NoticeChargeFailed)
	}
	return thankYou, nil
}

// ProcessRenewal 续费订单扣款（由外部订阅调度触发）
// parentOrderID 为空时使用订单自身记录的父订单
// 没有顾客在场重试，服务商拒绝签约或签约不可扣款时直接置为失败；网络/授权/存储错误返回给调度方重试
func (uc *ReconcilerUseCase) ProcessRenewal(ctx context.Context, orderID, parentOrderID string) error {
	order, err := uc.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return mandateErrors.OrderNotFound(orderID)
	}
	if order.Status != OrderStatusPending {
		uc.log.Infof("renewal skipped: order_id=%s status=%s", order.ID, order.Status)
		uc.metrics.ChargeSkippedTotal.WithLabelValues(constants.EntryRenewal).Inc()
		return nil
	}
	if parentOrderID == "" {
		parentOrderID = order.ParentID
	}

	auth, err := uc.client.Authenticate(ctx)
	if err != nil {
		uc.log.Errorf("renewal authenticate failed: order_id=%s error=%v", order.ID, err)
		uc.addNote(ctx, order.ID, constants.NoteRenewalNoAuth)
		return err
	}

	mandateID := order.MandateID
	inherited := false
	if mandateID == "" && parentOrderID != "" {
		parent, err := uc.repo.GetOrder(ctx, parentOrderID)
		if err != nil {
			return err
		}
		if parent != nil && parent.MandateID != "" {
			mandateID = parent.MandateID
			inherited = true
		}
	}

	if mandateID == "" {
		return uc.renewWithInvite(ctx, auth, order, parentOrderID)
	}

	usable, err := uc.checkRenewalMandate(ctx, auth, order.ID, mandateID)
	if err != nil || !usable {
		return err
	}

	if inherited {
		if err := uc.repo.SetMandateID(ctx, order.ID, mandateID); err != nil {
			return err
		}
	}
	return uc.chargeRenewal(ctx, auth, order.ID, mandateID)
}

// renewWithInvite 续费订单没有可用签约时重新发起邀请
func (uc *ReconcilerUseCase) renewWithInvite(ctx context.Context, auth *AuthToken, order *Order, parentOrderID string) error {
	invite, err := uc.client.CreateInvite(ctx, auth, uc.inviteRequest(order))
	if err != nil {
		uc.log.Errorf("renewal invite failed: order_id=%s error=%v", order.ID, err)
		uc.addNote(ctx, order.ID, constants.NoteRenewalInviteFailed)
		return err
	}

	if invite.NeedsSignature() {
		uc.log.Warnf("renewal mandate needs signature: order_id=%s mandate_id=%s", order.ID, invite.MandateID)
		return uc.failOrder(ctx, order.ID, constants.NoteRenewalInvalid, constants.EntryRenewal)
	}

	usable, err := uc.checkRenewalMandate(ctx, auth, order.ID, invite.MandateID)
	if err != nil || !usable {
		return err
	}

	// 签约同时记录到父订单，后续续费直接使用
	if err := uc.repo.SetMandateID(ctx, order.ID, invite.MandateID); err != nil {
		return err
	}
	if parentOrderID != "" {
		if err := uc.repo.SetMandateID(ctx, parentOrderID, invite.MandateID); err != nil {
			uc.log.Warnf("set parent mandate failed: order_id=%s parent_order_id=%s error=%v", order.ID, parentOrderID, err)
		}
	}
	return uc.chargeRenewal(ctx, auth, order.ID, invite.MandateID)
}

// checkRenewalMandate 查询续费签约是否可扣款
// 服务商明确拒绝或签约不可扣款时订单置为失败并返回 false；网络/授权等可重试错误原样返回，订单保持 pending
func (uc *ReconcilerUseCase) checkRenewalMandate(ctx context.Context, auth *AuthToken, orderID, mandateID string) (bool, error) {
	status, err := uc.client.GetMandateStatus(ctx, auth, mandateID)
	switch {
	case err == nil && status.Collectable:
		return true, nil
	case err == nil:
		uc.log.Warnf("renewal mandate not collectable: order_id=%s mandate_id=%s", orderID, mandateID)
	case mandateErrors.IsProvider(err):
		uc.log.Warnf("renewal mandate rejected: order_id=%s mandate_id=%s error=%v", orderID, mandateID, err)
	default:
		uc.log.Errorf("renewal mandate status failed: order_id=%s mandate_id=%s error=%v", orderID, mandateID, err)
		return false, err
	}
	return false, uc.failOrder(ctx, orderID, constants.NoteRenewalInvalid, constants.EntryRenewal)
}

func (uc *ReconcilerUseCase) chargeRenewal(ctx context.Context, auth *AuthToken, orderID, mandateID string) error {
	err := uc.submitCharge(ctx, constants.EntryRenewal, auth, orderID, mandateID)
	if mandateErrors.IsConflict(err) {
		return nil
	}
	return err
}

// HandleCallback 处理签约回调，返回浏览器跳转地址
// 任何情况下都只返回跳转地址，不向浏览器暴露错误
func (uc *ReconcilerUseCase) HandleCallback(ctx context.Context, params *CallbackParams) string {
	landing := uc.conf.LandingURL

	if err := uc.verifier.Verify(params); err != nil {
		// 不记录签名本身
		mandateID := ""
		if params != nil {
			mandateID = params.MandateID
		}
		uc.log.Warnf("callback rejected: mandate_id=%q reason=%s", mandateID, kerrors.FromError(err).GetMessage())
		uc.metrics.CallbackTotal.WithLabelValues(constants.ResultInvalid).Inc()
		return landing
	}

	if !params.IsSigned() {
		uc.log.Warnf("callback mandate state is something other than signed: mandate_id=%s state=%s", params.MandateID, params.State)
		uc.metrics.CallbackTotal.WithLabelValues(constants.ResultAnomaly).Inc()
		return landing
	}

	orders, err := uc.repo.FindOrdersByMandate(ctx, params.MandateID, chargeableStatuses, uc.conf.CallbackLookback, true)
	if err != nil {
		uc.log.Errorf("callback order lookup failed: mandate_id=%s error=%v", params.MandateID, err)
		uc.metrics.CallbackTotal.WithLabelValues(constants.ResultFailed).Inc()
		return landing
	}
	if len(orders) == 0 {
		uc.log.Infof("callback found no pending orders: mandate_id=%s", params.MandateID)
		uc.metrics.CallbackTotal.WithLabelValues(constants.ResultNoMatch).Inc()
		return landing
	}

	// 只对最近的一笔订单扣款，较早的匹配订单保持不变
	order := orders[0]
	if len(orders) > 1 {
		uc.log.Warnf("callback matched %d pending orders, charging most recent: mandate_id=%s order_id=%s", len(orders), params.MandateID, order.ID)
	}
	redirect := uc.conf.ThankYouURL(order.ID)

	auth, err := uc.client.Authenticate(ctx)
	if err != nil {
		uc.log.Errorf("callback authenticate failed: order_id=%s error=%v", order.ID, err)
		uc.metrics.CallbackTotal.WithLabelValues(constants.ResultFailed).Inc()
		return redirect
	}

	if err := uc.submitCharge(ctx, constants.EntryCallback, auth, order.ID, params.MandateID); err != nil {
		if mandateErrors.IsConflict(err) {
			uc.metrics.CallbackTotal.WithLabelValues(constants.ResultSkipped).Inc()
			return redirect
		}
		uc.log.Errorf("callback charge failed: order_id=%s mandate_id=%s error=%v", order.ID, params.MandateID, err)
		uc.metrics.CallbackTotal.WithLabelValues(constants.ResultFailed).Inc()
		return redirect
	}

	uc.metrics.CallbackTotal.WithLabelValues(constants.ResultSuccess).Inc()
	return redirect
}

// submitCharge 提交扣款并将订单置为 on-hold
// 持有订单锁后重新读取订单，状态已离开 pending 时返回 Conflict
// 提交失败时订单状态不变，服务商返回的信息记录为订单备注
func (uc *ReconcilerUseCase) submitCharge(ctx context.Context, entry string, auth *AuthToken, orderID, mandateID string) error {
	unlock, err := uc.locker.Lock(ctx, constants.RedisKeyOrderLock+orderID)
	if err != nil {
		uc.log.Errorf("acquire order lock failed: order_id=%s error=%v", orderID, err)
		return err
	}
	defer unlock()

	order, err := uc.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return mandateErrors.OrderNotFound(orderID)
	}
	// 只有已关联签约、仍待支付的订单可以扣款
	if state := order.PaymentState(); state != StateMandatePending {
		uc.log.Infof("charge skipped, order already handled: entry=%s order_id=%s state=%s", entry, order.ID, state)
		uc.metrics.ChargeSkippedTotal.WithLabelValues(entry).Inc()
		return mandateErrors.Conflict(order.ID, string(order.Status))
	}

	transactionID, err := uc.client.SubmitTransaction(ctx, auth, &TransactionRequest{
		MandateID: mandateID,
		Reference: order.ID,
		Amount:    order.Total,
		Message:   uc.conf.TransactionMessage(order.ID),
	})
	if err != nil {
		uc.metrics.ChargeSubmittedTotal.WithLabelValues(entry, constants.ResultFailed).Inc()
		if msg := mandateErrors.ProviderMessage(err); msg != "" {
			uc.addNote(ctx, order.ID, fmt.Sprintf(constants.NoteTransactionFailed, msg))
		}
		uc.log.Errorf("submit transaction failed: entry=%s order_id=%s mandate_id=%s error=%v", entry, order.ID, mandateID, err)
		return err
	}

	uc.metrics.ChargeSubmittedTotal.WithLabelValues(entry, constants.ResultSuccess).Inc()
	uc.metrics.ChargeAmount.WithLabelValues(entry).Add(order.Total.InexactFloat64())

	// 交易已提交：之后不再向调用方返回失败，避免顾客重试或消息重投导致重复扣款
	ok, err := uc.saveChargeSubmitted(context.WithoutCancel(ctx), order.ID)
	if err != nil {
		uc.log.Errorf("transaction submitted but order status not saved: order_id=%s transaction_id=%s error=%v", order.ID, transactionID, err)
		uc.addNote(context.WithoutCancel(ctx), order.ID, fmt.Sprintf(constants.NoteChargeSubmittedUnsaved, transactionID))
		return nil
	}
	if !ok {
		uc.log.Warnf("transaction submitted but order changed concurrently: order_id=%s transaction_id=%s", order.ID, transactionID)
		return nil
	}

	uc.metrics.OrderTransitionTotal.WithLabelValues(constants.OrderStatusOnHold, entry).Inc()
	uc.log.Infof("transaction submitted: entry=%s order_id=%s mandate_id=%s transaction_id=%s amount=%s",
		entry, order.ID, mandateID, transactionID, order.Total.StringFixed(2))
	return nil
}

// saveChargeSubmitted 将订单置为 on-hold，写入失败时重试
func (uc *ReconcilerUseCase) saveChargeSubmitted(ctx context.Context, orderID string) (bool, error) {
	var err error
	for attempt := 0; attempt < chargeSaveAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * uc.saveRetryDelay)
		}
		var ok bool
		ok, err = uc.repo.TransitionOrderStatus(ctx, orderID, chargeableStatuses, OrderStatusOnHold, constants.NoteChargeSubmitted)
		if err == nil {
			return ok, nil
		}
		uc.log.Warnf("save charge submitted failed: order_id=%s attempt=%d error=%v", orderID, attempt+1, err)
	}
	return false, err
}

// failOrder 将 pending 订单置为失败（持锁，避免与正在进行的扣款交错）
func (uc *ReconcilerUseCase) failOrder(ctx context.Context, orderID, note, entry string) error {
	unlock, err := uc.locker.Lock(ctx, constants.RedisKeyOrderLock+orderID)
	if err != nil {
		return err
	}
	defer unlock()

	ok, err := uc.repo.TransitionOrderStatus(ctx, orderID, chargeableStatuses, OrderStatusFailed, note)
	if err != nil {
		return err
	}
	if !ok {
		uc.log.Infof("order left pending before it could be failed: order_id=%s", orderID)
		return nil
	}
	uc.metrics.OrderTransitionTotal.WithLabelValues(constants.OrderStatusFailed, entry).Inc()
	uc.log.Warnf("order failed: entry=%s order_id=%s", entry, orderID)
	return nil
}

func (uc *ReconcilerUseCase) inviteRequest(order *Order) *InviteRequest {
	return &InviteRequest{
		ContractTemplate: uc.conf.ContractTemplate,
		Language:         uc.conf.Language,
		Profile:          order.Billing,
		DedupeExisting:   true,
	}
}

func (uc *ReconcilerUseCase) addNote(ctx context.Context, orderID, note string) {
	if err := uc.repo.AddOrderNote(ctx, orderID, note); err != nil {
		uc.log.Warnf("add order note failed: order_id=%s error=%v", orderID, err)
	}
}

// notice 包装为面向顾客的结账提示，保留原始错误的 code/reason
func notice(err error, message string) error {
	return mandateErrors.Checkout(kerrors.Code(err), kerrors.Reason(err), message, err)
}
