package biz

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AuthToken 服务商授权令牌（有效期 24 小时）
type AuthToken struct {
	Value     string
	ExpiresAt time.Time
}

// InviteRequest 签约邀请请求
type InviteRequest struct {
	ContractTemplate string
	Language         string
	Profile          BillingProfile
	DedupeExisting   bool // 已有签约时不新建
}

// Invite 签约邀请结果
// SignURL 为空表示匹配到已签署的签约（或无需立即签署）
type Invite struct {
	MandateID string
	SignURL   string
}

// NeedsSignature 是否需要跳转签署
func (i *Invite) NeedsSignature() bool {
	return i.SignURL != ""
}

// MandateStatus 签约状态
type MandateStatus struct {
	Collectable bool
}

// TransactionRequest 扣款请求
type TransactionRequest struct {
	MandateID string
	Reference string // 订单号
	Amount    decimal.Decimal
	Message   string
}

// FeedEntry 交易流水变更
type FeedEntry struct {
	Reference   string
	Status      string // OPEN, PAID, ERROR ...
	BookingDate time.Time
}

// MandateClient 服务商接口（由 data 层实现）
type MandateClient interface {
	Authenticate(ctx context.Context) (*AuthToken, error)
	CreateInvite(ctx context.Context, auth *AuthToken, req *InviteRequest) (*Invite, error)
	GetMandateStatus(ctx context.Context, auth *AuthToken, mandateID string) (*MandateStatus, error)
	SubmitTransaction(ctx context.Context, auth *AuthToken, req *TransactionRequest) (string, error)
	// FetchTransactionFeed 返回自上次拉取以来状态变更的交易，按订单号索引
	FetchTransactionFeed(ctx context.Context, auth *AuthToken) (map[string]*FeedEntry, error)
}
