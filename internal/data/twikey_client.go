package data

import (
	"bytes"
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mandate-service/internal/biz"
	"mandate-service/internal/conf"
	"mandate-service/internal/constants"
	mandateErrors "mandate-service/internal/errors"
	"mandate-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/encoding"
	"github.com/go-kratos/kratos/v2/encoding/form"
	"github.com/go-kratos/kratos/v2/encoding/json"
	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// 服务商声明的令牌有效期
const authTokenValidity = 24 * time.Hour

// 交易流水 bkdate 可能出现的格式
var bookingDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

type opKey struct{}

// twikeyClient Twikey API 客户端（实现 biz.MandateClient）
type twikeyClient struct {
	hc       *http.Client
	host     string
	timeout  time.Duration
	apiToken string
	cache    *TokenCache
	form     encoding.Codec
	json     encoding.Codec
	log      *log.Helper
	metrics  *metrics.MandateMetrics
}

// NewTwikeyClient 创建 Twikey API 客户端
func NewTwikeyClient(c *conf.Bootstrap, cache *TokenCache, logger log.Logger) (biz.MandateClient, func(), error) {
	if c.Twikey == nil {
		return nil, nil, errors.New("twikey config is nil")
	}

	host := c.Twikey.TwikeyHost()
	timeout := c.Twikey.Timeout.AsDuration()
	if timeout <= 0 {
		timeout = conf.DefaultTwikeyTimeout
	}

	hc, err := http.NewClient(
		context.Background(),
		http.WithEndpoint(host),
		http.WithTimeout(timeout),
		http.WithErrorDecoder(decodeTwikeyError),
	)
	if err != nil {
		return nil, nil, err
	}

	logHelper := log.NewHelper(logger)
	cleanup := func() {
		if err := hc.Close(); err != nil {
			logHelper.Warnf("failed to close twikey client: %v", err)
		}
	}

	return &twikeyClient{
		hc:       hc,
		host:     strings.TrimRight(host, "/"),
		timeout:  timeout,
		apiToken: c.Twikey.ApiToken,
		cache:    cache,
		form:     encoding.GetCodec(form.Name),
		json:     encoding.GetCodec(json.Name),
		log:      logHelper,
		metrics:  metrics.GetMetrics(),
	}, cleanup, nil
}

type authForm struct {
	APIToken string `json:"apiToken"`
}

type inviteForm struct {
	ContractTemplate string `json:"ct"`
	Language         string `json:"l"`
	Email            string `json:"email"`
	LastName         string `json:"lastname"`
	FirstName        string `json:"firstname"`
	Address          string `json:"address"`
	Zip              string `json:"zip"`
	City             string `json:"city"`
	Country          string `json:"country"`
	Check            string `json:"check,omitempty"` // 已存在签约时不新建
}

type transactionForm struct {
	MandateID string `json:"mndtId"`
	Reference string `json:"ref"`
	Message   string `json:"message"`
	Amount    string `json:"amount"`
}

// flexString 兼容字符串和数字两种 JSON 表示
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(string(b)); err == nil {
		*s = flexString(unquoted)
		return nil
	}
	*s = flexString(b)
	return nil
}

type authReply struct {
	Authorization string `json:"Authorization"`
}

type inviteReply struct {
	MandateID string `json:"mndtId"`
	URL       string `json:"url"`
}

type transactionEntry struct {
	ID          flexString `json:"id"`
	Reference   flexString `json:"ref"`
	State       string     `json:"state"`
	BookingDate string     `json:"bkdate"`
}

type transactionReply struct {
	Entries []transactionEntry `json:"Entries"`
	Message string             `json:"message"`
}

type errorReply struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Authenticate 获取授权令牌
func (c *twikeyClient) Authenticate(ctx context.Context) (*biz.AuthToken, error) {
	if token := c.cache.Get(ctx); token != nil {
		return token, nil
	}

	res, err := c.do(ctx, constants.OpAuthenticate, nethttp.MethodPost, "/creditor", nil, &authForm{APIToken: c.apiToken}, nil)
	if err != nil {
		return nil, err
	}

	var reply authReply
	if len(res.body) > 0 {
		_ = c.json.Unmarshal(res.body, &reply)
	}
	value := reply.Authorization
	if value == "" {
		value = res.header.Get("Authorization")
	}
	if value == "" {
		c.metrics.ProviderRequestTotal.WithLabelValues(constants.OpAuthenticate, constants.ResultFailed).Inc()
		return nil, mandateErrors.Auth("no authorization token returned")
	}

	token := &biz.AuthToken{Value: value, ExpiresAt: time.Now().Add(authTokenValidity)}
	c.cache.Set(ctx, token)
	return token, nil
}

// CreateInvite 请求签约邀请
func (c *twikeyClient) CreateInvite(ctx context.Context, auth *biz.AuthToken, req *biz.InviteRequest) (*biz.Invite, error) {
	f := &inviteForm{
		ContractTemplate: req.ContractTemplate,
		Language:         languagePrefix(req.Language),
		Email:            req.Profile.Email,
		LastName:         removeAccents(req.Profile.LastName),
		FirstName:        removeAccents(req.Profile.FirstName),
		Address:          removeAccents(req.Profile.Address()),
		Zip:              req.Profile.Postcode,
		City:             removeAccents(req.Profile.City),
		Country:          req.Profile.Country,
	}
	if req.DedupeExisting {
		f.Check = "1"
	}

	res, err := c.do(ctx, constants.OpCreateInvite, nethttp.MethodPost, "/creditor/invite", nil, f, auth)
	if err != nil {
		return nil, err
	}

	var reply inviteReply
	if err := c.json.Unmarshal(res.body, &reply); err != nil || reply.MandateID == "" {
		c.metrics.ProviderRequestTotal.WithLabelValues(constants.OpCreateInvite, constants.ResultFailed).Inc()
		return nil, mandateErrors.Provider(constants.OpCreateInvite, nethttp.StatusOK, "no mandate id returned")
	}
	return &biz.Invite{MandateID: reply.MandateID, SignURL: reply.URL}, nil
}

// GetMandateStatus 查询签约是否可扣款（响应头 X-Collectable: true）
func (c *twikeyClient) GetMandateStatus(ctx context.Context, auth *biz.AuthToken, mandateID string) (*biz.MandateStatus, error) {
	query := url.Values{"mndtId": []string{mandateID}}
	res, err := c.do(ctx, constants.OpGetMandateStatus, nethttp.MethodGet, "/creditor/mandate/detail", query, nil, auth)
	if err != nil {
		return nil, err
	}
	return &biz.MandateStatus{
		Collectable: strings.EqualFold(strings.TrimSpace(res.header.Get("X-Collectable")), "true"),
	}, nil
}

// SubmitTransaction 提交扣款，返回服务商交易 ID
func (c *twikeyClient) SubmitTransaction(ctx context.Context, auth *biz.AuthToken, req *biz.TransactionRequest) (string, error) {
	f := &transactionForm{
		MandateID: req.MandateID,
		Reference: req.Reference,
		Message:   SanitizeMessage(req.Message),
		Amount:    req.Amount.StringFixed(2),
	}

	res, err := c.do(ctx, constants.OpSubmitTransaction, nethttp.MethodPost, "/creditor/transaction", nil, f, auth)
	if err != nil {
		return "", err
	}

	var reply transactionReply
	if err := c.json.Unmarshal(res.body, &reply); err != nil || len(reply.Entries) == 0 || reply.Entries[0].ID == "" {
		c.metrics.ProviderRequestTotal.WithLabelValues(constants.OpSubmitTransaction, constants.ResultFailed).Inc()
		return "", mandateErrors.Provider(constants.OpSubmitTransaction, nethttp.StatusOK, reply.Message)
	}
	return string(reply.Entries[0].ID), nil
}

// FetchTransactionFeed 拉取自上次拉取以来状态变更的交易（游标由服务商维护）
// 缺少 ref/state/bkdate 或日期无法解析的条目直接跳过
func (c *twikeyClient) FetchTransactionFeed(ctx context.Context, auth *biz.AuthToken) (map[string]*biz.FeedEntry, error) {
	res, err := c.do(ctx, constants.OpTransactionFeed, nethttp.MethodGet, "/creditor/transaction", nil, nil, auth)
	if err != nil {
		return nil, err
	}

	var reply transactionReply
	if len(res.body) > 0 {
		if err := c.json.Unmarshal(res.body, &reply); err != nil {
			c.metrics.ProviderRequestTotal.WithLabelValues(constants.OpTransactionFeed, constants.ResultFailed).Inc()
			return nil, mandateErrors.Provider(constants.OpTransactionFeed, nethttp.StatusOK, "invalid transaction feed")
		}
	}

	feed := make(map[string]*biz.FeedEntry, len(reply.Entries))
	for _, e := range reply.Entries {
		ref := string(e.Reference)
		if ref == "" || e.State == "" || e.BookingDate == "" {
			continue
		}
		bookingDate, ok := parseBookingDate(e.BookingDate)
		if !ok {
			c.log.Warnf("skip feed entry with invalid bkdate: ref=%s bkdate=%s", ref, e.BookingDate)
			continue
		}
		feed[ref] = &biz.FeedEntry{Reference: ref, Status: e.State, BookingDate: bookingDate}
	}
	return feed, nil
}

type twikeyResponse struct {
	header nethttp.Header
	body   []byte
}

// do 发送请求；非 200 响应由 decodeTwikeyError 转换为业务错误，网络错误统一为 Transport
func (c *twikeyClient) do(ctx context.Context, op, method, path string, query url.Values, body interface{}, auth *biz.AuthToken) (*twikeyResponse, error) {
	startTime := time.Now()
	defer func() {
		c.metrics.ProviderRequestDuration.WithLabelValues(op).Observe(time.Since(startTime).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		payload, err := c.form.Marshal(body)
		if err != nil {
			return nil, mandateErrors.Transport(op, err)
		}
		reader = bytes.NewReader(payload)
	}

	target := c.host + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	// Do 不应用 WithTimeout，这里按请求设置
	reqCtx, cancel := context.WithTimeout(context.WithValue(ctx, opKey{}, op), c.timeout)
	defer cancel()

	req, err := nethttp.NewRequestWithContext(reqCtx, method, target, reader)
	if err != nil {
		return nil, mandateErrors.Transport(op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if auth != nil {
		req.Header.Set("Authorization", auth.Value)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		c.metrics.ProviderRequestTotal.WithLabelValues(op, constants.ResultFailed).Inc()
		if se := new(kerrors.Error); errors.As(err, &se) {
			if mandateErrors.IsAuth(se) && op != constants.OpAuthenticate {
				c.cache.Invalidate(ctx)
			}
			c.log.Warnf("twikey %s rejected: %v", op, se)
			return nil, se
		}
		c.log.Errorf("twikey %s request failed: %v", op, err)
		return nil, mandateErrors.Transport(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.ProviderRequestTotal.WithLabelValues(op, constants.ResultFailed).Inc()
		return nil, mandateErrors.Transport(op, err)
	}

	c.metrics.ProviderRequestTotal.WithLabelValues(op, constants.ResultSuccess).Inc()
	return &twikeyResponse{header: resp.Header, body: data}, nil
}

// decodeTwikeyError 只有 200 视为成功
func decodeTwikeyError(ctx context.Context, res *nethttp.Response) error {
	if res.StatusCode == nethttp.StatusOK {
		return nil
	}
	defer res.Body.Close()

	op, _ := ctx.Value(opKey{}).(string)
	var reply errorReply
	if data, err := io.ReadAll(res.Body); err == nil && len(data) > 0 {
		_ = encoding.GetCodec(json.Name).Unmarshal(data, &reply)
	}

	if op == constants.OpAuthenticate || res.StatusCode == nethttp.StatusUnauthorized {
		message := reply.Message
		if message == "" {
			message = "twikey authentication failed: " + strconv.Itoa(res.StatusCode)
		}
		return mandateErrors.Auth(message)
	}
	return mandateErrors.Provider(op, res.StatusCode, reply.Message)
}

func languagePrefix(language string) string {
	if len(language) > 2 {
		return language[:2]
	}
	return language
}

func parseBookingDate(value string) (time.Time, bool) {
	for _, layout := range bookingDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
