package biz

import (
	"context"
	"strings"
	"time"

	"mandate-service/internal/constants"

	"github.com/shopspring/decimal"
)

// OrderStatus 订单状态（由外部商城定义）
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = constants.OrderStatusPending
	OrderStatusOnHold     OrderStatus = constants.OrderStatusOnHold
	OrderStatusProcessing OrderStatus = constants.OrderStatusProcessing
	OrderStatusCompleted  OrderStatus = constants.OrderStatusCompleted
	OrderStatusFailed     OrderStatus = constants.OrderStatusFailed
)

// IsPaid 已支付或已完成
func (s OrderStatus) IsPaid() bool {
	return s == OrderStatusProcessing || s == OrderStatusCompleted
}

// IsChargeRequested 已提交扣款或之后的状态
func (s OrderStatus) IsChargeRequested() bool {
	return s == OrderStatusOnHold || s.IsPaid()
}

// PaymentState 订单与签约之间的对账状态
type PaymentState string

const (
	// StateNew 尚未发起签约
	StateNew PaymentState = "NEW"
	// StateMandatePending 已邀请，等待签署
	StateMandatePending PaymentState = "MANDATE_PENDING"
	// StateChargeRequested 已提交扣款（on-hold）
	StateChargeRequested PaymentState = "CHARGE_REQUESTED"
	// StatePaid 已到账（终态）
	StatePaid PaymentState = "PAID"
	// StateFailed 失败（终态，只能通过新的续费订单重试）
	StateFailed PaymentState = "FAILED"
)

// BillingProfile 账单信息
type BillingProfile struct {
	FirstName string
	LastName  string
	Email     string
	Address1  string
	Address2  string
	Postcode  string
	City      string
	Country   string
}

// Address 合并两行地址
func (p BillingProfile) Address() string {
	return strings.TrimSpace(strings.TrimSpace(p.Address1) + " " + strings.TrimSpace(p.Address2))
}

// Order 订单领域对象（外部商城拥有，这里只投影需要的字段）
type Order struct {
	ID        string
	ParentID  string // 续费订单的父订单
	Total     decimal.Decimal
	Billing   BillingProfile
	Status    OrderStatus
	MandateID string
	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentState 根据订单状态与签约关联推导对账状态
func (o *Order) PaymentState() PaymentState {
	switch o.Status {
	case OrderStatusPending:
		if o.MandateID == "" {
			return StateNew
		}
		return StateMandatePending
	case OrderStatusOnHold:
		return StateChargeRequested
	case OrderStatusProcessing, OrderStatusCompleted:
		return StatePaid
	default:
		return StateFailed
	}
}

// OrderRepo 订单存储接口（定义在 biz 层，由 data 层实现）
// 查询不到订单时返回 nil, nil
type OrderRepo interface {
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	// TransitionOrderStatus 仅当当前状态属于 from 时写入 to，返回是否写入
	TransitionOrderStatus(ctx context.Context, orderID string, from []OrderStatus, to OrderStatus, note string) (bool, error)
	SetMandateID(ctx context.Context, orderID, mandateID string) error
	FindOrdersByMandate(ctx context.Context, mandateID string, statuses []OrderStatus, limit int, newestFirst bool) ([]*Order, error)
	// MarkPaid 仅当订单尚未支付且未失败时写入，返回是否写入
	MarkPaid(ctx context.Context, orderID string, paidAt time.Time, note string) (bool, error)
	AddOrderNote(ctx context.Context, orderID, note string) error
}

// Locker 分布式互斥锁
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
