package constants

// 订单状态常量（与商城订单表保持一致）
const (
	// OrderStatusPending 待支付（含：未发起签约、等待签约）
	OrderStatusPending = "pending"
	// OrderStatusOnHold 已提交扣款，等待到账确认
	OrderStatusOnHold = "on-hold"
	// OrderStatusProcessing 已支付
	OrderStatusProcessing = "processing"
	// OrderStatusCompleted 已完成
	OrderStatusCompleted = "completed"
	// OrderStatusFailed 失败
	OrderStatusFailed = "failed"
)

// 签约回调中视为"已签署"的状态（比较时忽略大小写）
const (
	MandateStateOK            = "ok"
	MandateStateSigned        = "signed"
	MandateStateAlreadySigned = "alreadysigned"
)

// 交易流水状态
const (
	// TransactionStatePaid 已到账
	TransactionStatePaid = "paid"
)

// Redis Key 前缀常量
const (
	// RedisKeyOrderLock 订单扣款锁 key 前缀
	RedisKeyOrderLock = "mandate:order:lock:"
	// RedisKeySweepLock 对账任务锁 key
	RedisKeySweepLock = "mandate:sweep:lock"
	// RedisKeyAuthToken 授权令牌缓存 key 前缀
	RedisKeyAuthToken = "mandate:auth:token:"
)

// 入口标识（用于日志与指标）
const (
	EntryCheckout = "checkout"
	EntryRenewal  = "renewal"
	EntryCallback = "callback"
	EntrySweep    = "sweep"
)

// 服务商接口操作名（用于日志与指标）
const (
	OpAuthenticate      = "authenticate"
	OpCreateInvite      = "create_invite"
	OpGetMandateStatus  = "get_mandate_status"
	OpSubmitTransaction = "submit_transaction"
	OpTransactionFeed   = "transaction_feed"
)

// 指标结果标签
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
	ResultInvalid = "invalid"
	ResultNoMatch = "no_match"
	ResultAnomaly = "anomaly"
)

// 订单备注
const (
	NoteChargeSubmitted        = "Twikey payment request successfully submitted. Awaiting final payment confirmation."
	NotePaymentConfirmed       = "Twikey payment confirmed."
	NoteZeroTotal              = "Order total is zero, no Twikey payment required."
	NoteRenewalNoAuth          = "Order could not be completed: no Twikey authorization token returned."
	NoteRenewalInviteFailed    = "Invite error: no (new) Twikey mandate ID returned."
	NoteRenewalInvalid         = "Renewal order could not be completed: the status of the Twikey mandate associated with the order is invalid."
	NoteTransactionFailed      = "Twikey transaction could not be added. The Twikey API responded: '%s'."
	NoteChargeSubmittedUnsaved = "Twikey transaction %s submitted, but the order status could not be updated."
)

// 结账结果
const (
	PaymentResultSuccess = "success"
)

// OrderIDPlaceholder 跳转地址/扣款附言中的订单号占位符
const OrderIDPlaceholder = "{order_id}"

// 结账提示（面向顾客）
const (
	NoticeConnectFailed   = "Could not connect to Twikey server. If this keeps happening, please contact the store owner."
	NoticeInviteFailed    = "No Twikey mandate ID returned. Please verify the checkout form was filled out correctly and try again."
	NoticeInvalidMandate  = "Payment error: invalid existing Twikey mandate status returned."
	NoticeChargeFailed    = "Payment error: could not get Twikey to confirm the payment request."
	NoticeEmailPlusSign   = "Unfortunately, Twikey does not allow plus signs in email addresses."
	NoticeOrderNotPayable = "This order can no longer be paid."
)
