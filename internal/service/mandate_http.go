package service

import (
	"context"
	nethttp "net/http"

	"mandate-service/internal/biz"

	"github.com/go-kratos/kratos/v2/transport/http"
)

const (
	OperationMandateProcessPayment = "/mandate.v1.Mandate/ProcessPayment"
	OperationMandateProcessRenewal = "/mandate.v1.Mandate/ProcessRenewal"
	OperationMandateExit           = "/mandate.v1.Mandate/Exit"
)

// RegisterMandateHTTPServer 注册结账、续费与签约回调路由
func RegisterMandateHTTPServer(s *http.Server, srv *MandateService) {
	r := s.Route("/")
	r.POST("/v1/orders/{order_id}/payment", _Mandate_ProcessPayment0_HTTP_Handler(srv))
	r.POST("/v1/orders/{order_id}/renewal", _Mandate_ProcessRenewal0_HTTP_Handler(srv))
	r.GET("/twikey/exit", _Mandate_Exit0_HTTP_Handler(srv))
}

func _Mandate_ProcessPayment0_HTTP_Handler(srv *MandateService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in ProcessPaymentRequest
		if err := ctx.BindVars(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationMandateProcessPayment)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.ProcessPayment(ctx, req.(*ProcessPaymentRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*ProcessPaymentReply))
	}
}

func _Mandate_ProcessRenewal0_HTTP_Handler(srv *MandateService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in ProcessRenewalRequest
		// 请求体可省略（续费订单自带签约时无需 parent_order_id）
		if ctx.Request().ContentLength != 0 {
			if err := ctx.Bind(&in); err != nil {
				return err
			}
		}
		if err := ctx.BindVars(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationMandateProcessRenewal)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.ProcessRenewal(ctx, req.(*ProcessRenewalRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*ProcessRenewalReply))
	}
}

// 回调始终以 302 响应，不经过错误编码器
func _Mandate_Exit0_HTTP_Handler(srv *MandateService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		http.SetOperation(ctx, OperationMandateExit)
		query := ctx.Query()
		target := srv.Exit(ctx, &biz.CallbackParams{
			MandateID: query.Get("mandateNumber"),
			State:     query.Get("state"),
			Signature: query.Get("sig"),
		})
		nethttp.Redirect(ctx.Response(), ctx.Request(), target, nethttp.StatusFound)
		return nil
	}
}
