package biz

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"mandate-service/internal/constants"
	mandateErrors "mandate-service/internal/errors"
)

var alnumPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// CallbackParams 签约回调参数（exit url 查询参数）
type CallbackParams struct {
	MandateID string // mandateNumber
	State     string // state
	Signature string // sig
}

// IsSigned 回调状态是否表示已签署
func (p *CallbackParams) IsSigned() bool {
	switch strings.ToLower(p.State) {
	case constants.MandateStateOK, constants.MandateStateSigned, constants.MandateStateAlreadySigned:
		return true
	}
	return false
}

// SignatureVerifier 回调签名校验
type SignatureVerifier struct {
	privateKey []byte
}

// NewSignatureVerifier 创建签名校验器
func NewSignatureVerifier(conf *MandateConfig) *SignatureVerifier {
	return &SignatureVerifier{privateKey: []byte(conf.PrivateKey)}
}

// Checksum 计算 HMAC-SHA256(privateKey, mandateID + "/" + state) 的十六进制小写形式
func (v *SignatureVerifier) Checksum(mandateID, state string) string {
	mac := hmac.New(sha256.New, v.privateKey)
	mac.Write([]byte(mandateID + "/" + state))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify 校验回调参数
// 任一参数非纯字母数字时直接拒绝，不计算签名
func (v *SignatureVerifier) Verify(p *CallbackParams) error {
	if p == nil || !alnumPattern.MatchString(p.MandateID) || !alnumPattern.MatchString(p.State) || !alnumPattern.MatchString(p.Signature) {
		return mandateErrors.Validation("callback handler called with incomplete or wrong arguments")
	}

	expected := v.Checksum(p.MandateID, p.State)
	// 十六进制比较忽略大小写
	if !hmac.Equal([]byte(strings.ToLower(p.Signature)), []byte(expected)) {
		return mandateErrors.Validation("callback signature mismatch")
	}
	return nil
}
