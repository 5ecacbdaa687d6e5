package biz

import (
	"strings"

	"mandate-service/internal/conf"
	"mandate-service/internal/constants"
)

// MandateConfig 签约扣款配置
type MandateConfig struct {
	PrivateKey                 string
	ContractTemplate           string
	TransactionMessageTemplate string
	Language                   string
	CallbackLookback           int
	ReturnURL                  string
	LandingURL                 string
	SweepConcurrency           int
}

// NewMandateConfig 从配置创建 MandateConfig
func NewMandateConfig(c *conf.Bootstrap) *MandateConfig {
	config := &MandateConfig{
		Language:         conf.DefaultLanguage,
		CallbackLookback: conf.DefaultCallbackLookback,
		SweepConcurrency: conf.DefaultSweepConcurrency,
	}
	if c.Twikey != nil {
		config.PrivateKey = c.Twikey.PrivateKey
		config.ContractTemplate = c.Twikey.ContractTemplateId
		config.TransactionMessageTemplate = c.Twikey.TransactionMessageTemplate
		if c.Twikey.Language != "" {
			config.Language = c.Twikey.Language
		}
		if c.Twikey.CallbackLookback > 0 {
			config.CallbackLookback = c.Twikey.CallbackLookback
		}
	}
	if c.Checkout != nil {
		config.ReturnURL = c.Checkout.ReturnUrl
		config.LandingURL = c.Checkout.LandingUrl
	}
	if c.Cron != nil && c.Cron.SweepConcurrency > 0 {
		config.SweepConcurrency = c.Cron.SweepConcurrency
	}
	return config
}

// ThankYouURL 订单感谢页地址
func (c *MandateConfig) ThankYouURL(orderID string) string {
	if c.ReturnURL == "" {
		return c.LandingURL
	}
	return strings.ReplaceAll(c.ReturnURL, constants.OrderIDPlaceholder, orderID)
}

// TransactionMessage 扣款附言（发送前由客户端再做清洗）
func (c *MandateConfig) TransactionMessage(orderID string) string {
	return strings.ReplaceAll(c.TransactionMessageTemplate, constants.OrderIDPlaceholder, orderID)
}
