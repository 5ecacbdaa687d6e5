package errors

import (
	"strconv"

	kerrors "github.com/go-kratos/kratos/v2/errors"
)

// Mandate Service 错误原因定义
// 统一使用 kratos errors：Code 对应 HTTP 状态码，Reason 供调用方判断错误类别

// 服务商调用错误
const (
	// ReasonTransport 网络/超时，与非 200 响应同等对待
	ReasonTransport = "TWIKEY_TRANSPORT"
	// ReasonAuth 授权失败（凭证错误或响应缺少 Authorization）
	ReasonAuth = "TWIKEY_AUTH"
	// ReasonProvider 服务商返回非 200 或响应内容不完整
	ReasonProvider = "TWIKEY_PROVIDER"
)

// 业务错误
const (
	// ReasonCallbackValidation 回调参数格式错误或签名不匹配
	ReasonCallbackValidation = "CALLBACK_VALIDATION"
	// ReasonConflict 订单已离开允许扣款的状态（空操作信号，并非真正失败）
	ReasonConflict = "ORDER_STATE_CONFLICT"
	// ReasonOrderNotFound 订单不存在
	ReasonOrderNotFound = "ORDER_NOT_FOUND"
	// ReasonNotCollectable 签约无法扣款
	ReasonNotCollectable = "MANDATE_NOT_COLLECTABLE"
	// ReasonCheckoutValidation 结账信息不合法
	ReasonCheckoutValidation = "CHECKOUT_VALIDATION"
	// ReasonLockUnavailable 获取订单锁失败
	ReasonLockUnavailable = "LOCK_UNAVAILABLE"
	// ReasonStore 订单存储读写失败
	ReasonStore = "STORE_FAILURE"
)

// 元数据 key
const (
	MetadataOp              = "op"
	MetadataStatus          = "status"
	MetadataProviderMessage = "provider_message"
	MetadataOrderID         = "order_id"
)

// Transport 网络层错误
func Transport(op string, cause error) *kerrors.Error {
	return kerrors.ServiceUnavailable(ReasonTransport, "twikey request failed: "+op).
		WithCause(cause).
		WithMetadata(map[string]string{MetadataOp: op})
}

// Auth 授权错误
func Auth(message string) *kerrors.Error {
	return kerrors.Unauthorized(ReasonAuth, message).
		WithMetadata(map[string]string{MetadataOp: "authenticate"})
}

// Provider 服务商错误，providerMessage 为服务商返回的可读信息（可能为空）
func Provider(op string, status int, providerMessage string) *kerrors.Error {
	message := "twikey " + op + " failed"
	if providerMessage != "" {
		message += ": " + providerMessage
	}
	return kerrors.New(502, ReasonProvider, message).WithMetadata(map[string]string{
		MetadataOp:              op,
		MetadataStatus:          strconv.Itoa(status),
		MetadataProviderMessage: providerMessage,
	})
}

// Validation 回调校验错误
func Validation(message string) *kerrors.Error {
	return kerrors.BadRequest(ReasonCallbackValidation, message)
}

// Conflict 订单状态冲突
func Conflict(orderID, status string) *kerrors.Error {
	return kerrors.Conflict(ReasonConflict, "order "+orderID+" is already "+status).
		WithMetadata(map[string]string{MetadataOrderID: orderID, MetadataStatus: status})
}

// OrderNotFound 订单不存在
func OrderNotFound(orderID string) *kerrors.Error {
	return kerrors.NotFound(ReasonOrderNotFound, "order "+orderID+" not found").
		WithMetadata(map[string]string{MetadataOrderID: orderID})
}

// Checkout 面向顾客的结账提示（reason 为具体类别）
func Checkout(code int, reason, notice string, cause error) *kerrors.Error {
	return kerrors.New(code, reason, notice).WithCause(cause)
}

// LockUnavailable 获取锁失败
func LockUnavailable(key string, cause error) *kerrors.Error {
	return kerrors.ServiceUnavailable(ReasonLockUnavailable, "lock unavailable: "+key).WithCause(cause)
}

// Store 存储错误
func Store(op string, cause error) *kerrors.Error {
	return kerrors.InternalServer(ReasonStore, "order store "+op+" failed").WithCause(cause)
}

// IsProvider 是否为服务商错误
func IsProvider(err error) bool {
	return err != nil && kerrors.Reason(err) == ReasonProvider
}

// IsAuth 是否为授权错误
func IsAuth(err error) bool {
	return err != nil && kerrors.Reason(err) == ReasonAuth
}

// IsConflict 是否为订单状态冲突
func IsConflict(err error) bool {
	return err != nil && kerrors.Reason(err) == ReasonConflict
}

// IsRetryable 调度方可在下次运行时重试的错误
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch kerrors.Reason(err) {
	case ReasonTransport, ReasonAuth, ReasonLockUnavailable, ReasonStore:
		return true
	}
	return false
}

// ProviderMessage 提取服务商返回的可读信息
func ProviderMessage(err error) string {
	if err == nil {
		return ""
	}
	e := kerrors.FromError(err)
	if e == nil || e.Metadata == nil {
		return ""
	}
	return e.Metadata[MetadataProviderMessage]
}
