package server

import (
	"context"
	"encoding/json"

	"mandate-service/internal/biz"
	"mandate-service/internal/conf"
	mandateErrors "mandate-service/internal/errors"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/go-kratos/kratos/v2/log"
)

// RenewalDueEvent 订阅调度方发出的续费到期消息
type RenewalDueEvent struct {
	OrderID       string `json:"order_id"`
	ParentOrderID string `json:"parent_order_id"`
}

// Renewer 续费扣款入口
type Renewer interface {
	ProcessRenewal(ctx context.Context, orderID, parentOrderID string) error
}

// MQConsumerServer consumes renewal-due events from RocketMQ
type MQConsumerServer struct {
	c       rocketmq.PushConsumer
	renewer Renewer
	conf    *conf.Data
	log     *log.Helper
	enabled bool
}

// NewMQConsumerServer creates a RocketMQ consumer server
func NewMQConsumerServer(c *conf.Data, uc *biz.ReconcilerUseCase, logger log.Logger) *MQConsumerServer {
	logHelper := log.NewHelper(logger)
	if c == nil || c.Rocketmq == nil || !c.Rocketmq.Enabled {
		return &MQConsumerServer{log: logHelper, enabled: false}
	}

	r, err := rocketmq.NewPushConsumer(
		consumer.WithNsResolver(primitive.NewPassthroughResolver(c.Rocketmq.NameServers)),
		consumer.WithGroupName(c.Rocketmq.GroupName),
		consumer.WithRetry(int(c.Rocketmq.RetryTimes)),
		// 每条消息独立确认，失败的续费单独重投
		consumer.WithConsumeMessageBatchMaxSize(1),
	)
	if err != nil {
		logHelper.Errorf("init consumer error: %v", err)
		return &MQConsumerServer{log: logHelper, enabled: false}
	}

	return &MQConsumerServer{
		c:       r,
		renewer: uc,
		conf:    c,
		log:     logHelper,
		enabled: true,
	}
}

// Start starts the consumer
func (s *MQConsumerServer) Start(ctx context.Context) error {
	if !s.enabled {
		s.log.Infof("MQConsumerServer is disabled, skipping startup")
		return nil
	}

	if s.c == nil {
		s.log.Warnf("MQConsumerServer consumer is nil, skipping startup")
		return nil
	}

	s.log.Infof("Starting MQConsumerServer, topic: %s", s.conf.Rocketmq.Topic)

	err := s.c.Subscribe(s.conf.Rocketmq.Topic, consumer.MessageSelector{}, s.handler)
	if err != nil {
		s.log.Errorf("Failed to subscribe to topic %s: %v", s.conf.Rocketmq.Topic, err)
		// 不返回错误，避免导致整个应用启动失败
		// 在开发环境中，RocketMQ 可能不可用
		return nil
	}

	err = s.c.Start()
	if err != nil {
		s.log.Errorf("Failed to start RocketMQ consumer: %v", err)
		// 不返回错误，避免导致整个应用启动失败
		return nil
	}

	return nil
}

// Stop stops the consumer
func (s *MQConsumerServer) Stop(ctx context.Context) error {
	if !s.enabled || s.c == nil {
		return nil
	}
	s.log.Info("Stopping MQConsumerServer")
	return s.c.Shutdown()
}

// handler 网络/授权/锁失败时稍后重投，其余结果（含订单置为失败）直接确认
func (s *MQConsumerServer) handler(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
	for _, msg := range msgs {
		var event RenewalDueEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil || event.OrderID == "" {
			s.log.Errorf("Unmarshal renewal event failed: %v, body: %s", err, string(msg.Body))
			continue
		}

		err := s.renewer.ProcessRenewal(ctx, event.OrderID, event.ParentOrderID)
		if err == nil {
			continue
		}
		if mandateErrors.IsRetryable(err) {
			s.log.Warnf("ProcessRenewal will be retried: order_id=%s error=%v", event.OrderID, err)
			return consumer.ConsumeRetryLater, nil
		}
		s.log.Errorf("ProcessRenewal failed: order_id=%s error=%v", event.OrderID, err)
	}
	return consumer.ConsumeSuccess, nil
}
