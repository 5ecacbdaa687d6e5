package service

import (
	"context"

	"mandate-service/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

// ProcessPaymentRequest 结账支付请求
type ProcessPaymentRequest struct {
	OrderID string `json:"order_id"`
}

// ProcessPaymentReply 结账支付结果
// redirect 为签约页（需签署）或感谢页
type ProcessPaymentReply struct {
	Result   string `json:"result"`
	Redirect string `json:"redirect"`
}

// ProcessRenewalRequest 续费扣款请求，parent_order_id 为空时使用订单记录的父订单
type ProcessRenewalRequest struct {
	OrderID       string `json:"order_id"`
	ParentOrderID string `json:"parent_order_id"`
}

// ProcessRenewalReply 续费扣款结果
type ProcessRenewalReply struct {
	OrderID string `json:"order_id"`
}

// MandateService 面向商城与浏览器的签约扣款服务
type MandateService struct {
	uc   *biz.ReconcilerUseCase
	conf *biz.MandateConfig
	log  *log.Helper
}

// NewMandateService 创建 MandateService
func NewMandateService(uc *biz.ReconcilerUseCase, conf *biz.MandateConfig, logger log.Logger) *MandateService {
	return &MandateService{
		uc:   uc,
		conf: conf,
		log:  log.NewHelper(logger),
	}
}

// ProcessPayment 结账支付
func (s *MandateService) ProcessPayment(ctx context.Context, req *ProcessPaymentRequest) (*ProcessPaymentReply, error) {
	result, err := s.uc.ProcessPayment(ctx, req.OrderID)
	if err != nil {
		s.log.Warnf("ProcessPayment failed: order_id=%s error=%v", req.OrderID, err)
		return nil, err
	}
	return &ProcessPaymentReply{
		Result:   result.Result,
		Redirect: result.Redirect,
	}, nil
}

// ProcessRenewal 续费扣款（供通过 HTTP 调用的调度方使用）
func (s *MandateService) ProcessRenewal(ctx context.Context, req *ProcessRenewalRequest) (*ProcessRenewalReply, error) {
	if err := s.uc.ProcessRenewal(ctx, req.OrderID, req.ParentOrderID); err != nil {
		s.log.Errorf("ProcessRenewal failed: order_id=%s error=%v", req.OrderID, err)
		return nil, err
	}
	return &ProcessRenewalReply{OrderID: req.OrderID}, nil
}

// Exit 签约回调，返回跳转地址；处理过程中 panic 时跳转到落地页
func (s *MandateService) Exit(ctx context.Context, params *biz.CallbackParams) (target string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("exit callback panic: mandate_id=%q panic=%v", params.MandateID, r)
			target = s.conf.LandingURL
		}
	}()
	return s.uc.HandleCallback(ctx, params)
}
