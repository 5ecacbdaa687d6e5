package conf

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Bootstrap 服务完整配置（对应 configs/config.yaml）
type Bootstrap struct {
	Server   *Server   `json:"server"`
	Data     *Data     `json:"data"`
	Twikey   *Twikey   `json:"twikey"`
	Checkout *Checkout `json:"checkout"`
	Cron     *Cron     `json:"cron"`
	Log      *Log      `json:"log"`
}

// Server 传输层配置
type Server struct {
	Http *Server_HTTP `json:"http"`
}

// Server_HTTP HTTP 服务配置
type Server_HTTP struct {
	Network string   `json:"network"`
	Addr    string   `json:"addr"`
	Timeout Duration `json:"timeout"`
}

// Data 数据层配置
type Data struct {
	Database *Data_Database `json:"database"`
	Redis    *Data_Redis    `json:"redis"`
	Rocketmq *Data_Rocketmq `json:"rocketmq"`
}

// Data_Database 数据库配置
type Data_Database struct {
	Driver string `json:"driver"`
	Source string `json:"source"`
}

// Data_Redis Redis 配置
type Data_Redis struct {
	Addr         string   `json:"addr"`
	Password     string   `json:"password"`
	Db           int      `json:"db"`
	ReadTimeout  Duration `json:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout"`
}

// Data_Rocketmq 续费到期消息消费配置
type Data_Rocketmq struct {
	Enabled     bool     `json:"enabled"`
	NameServers []string `json:"name_servers"`
	GroupName   string   `json:"group_name"`
	Topic       string   `json:"topic"`
	RetryTimes  int32    `json:"retry_times"`
}

// Twikey 支付服务商账户配置
type Twikey struct {
	ApiToken                   string   `json:"api_token"`
	PrivateKey                 string   `json:"private_key"`
	ContractTemplateId         string   `json:"contract_template_id"`
	TransactionMessageTemplate string   `json:"transaction_message_template"`
	UseSandboxEnvironment      bool     `json:"use_sandbox_environment"`
	BaseUrl                    string   `json:"base_url"` // 覆盖默认地址（测试/代理）
	Timeout                    Duration `json:"timeout"`
	Language                   string   `json:"language"`
	CacheAuthToken             bool     `json:"cache_auth_token"`
	AuthTokenTtl               Duration `json:"auth_token_ttl"`
	CallbackLookback           int      `json:"callback_lookback"`
}

// Checkout 结账跳转配置
type Checkout struct {
	ReturnUrl  string `json:"return_url"` // 感谢页，可包含 {order_id}
	LandingUrl string `json:"landing_url"`
}

// Cron 对账任务配置
type Cron struct {
	SweepSpec        string   `json:"sweep_spec"`
	SweepTimeout     Duration `json:"sweep_timeout"`
	SweepConcurrency int      `json:"sweep_concurrency"`
}

// Log 日志配置
type Log struct {
	Level    string `json:"level"`
	Format   string `json:"format"`
	FilePath string `json:"file_path"`
}

// Duration 支持 "15s" / "10m" 形式的时长配置
type Duration struct {
	time.Duration
}

// UnmarshalJSON 解析字符串或纳秒整数
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		if value == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration: %s", string(b))
	}
}

// MarshalJSON 输出字符串形式
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// AsDuration 返回 time.Duration
func (d Duration) AsDuration() time.Duration {
	return d.Duration
}

// 默认值
const (
	DefaultTwikeyTimeout    = 15 * time.Second
	DefaultAuthTokenTtl     = 23 * time.Hour
	DefaultCallbackLookback = 10
	DefaultLanguage         = "en"
	DefaultSweepSpec        = "0 0 3 * * *"
	DefaultSweepTimeout     = 10 * time.Minute
	DefaultSweepConcurrency = 4
	DefaultRenewalTopic     = "subscription_renewal_due"
)

// SetDefaults 填充未配置项
func (c *Bootstrap) SetDefaults() {
	if c.Twikey == nil {
		c.Twikey = &Twikey{}
	}
	if c.Twikey.Timeout.Duration <= 0 {
		c.Twikey.Timeout.Duration = DefaultTwikeyTimeout
	}
	if c.Twikey.AuthTokenTtl.Duration <= 0 {
		c.Twikey.AuthTokenTtl.Duration = DefaultAuthTokenTtl
	}
	if c.Twikey.CallbackLookback == 0 {
		c.Twikey.CallbackLookback = DefaultCallbackLookback
	}
	if c.Twikey.Language == "" {
		c.Twikey.Language = DefaultLanguage
	}
	if c.Checkout == nil {
		c.Checkout = &Checkout{}
	}
	if c.Cron == nil {
		c.Cron = &Cron{}
	}
	if c.Cron.SweepSpec == "" {
		c.Cron.SweepSpec = DefaultSweepSpec
	}
	if c.Cron.SweepTimeout.Duration <= 0 {
		c.Cron.SweepTimeout.Duration = DefaultSweepTimeout
	}
	if c.Cron.SweepConcurrency == 0 {
		c.Cron.SweepConcurrency = DefaultSweepConcurrency
	}
	if c.Data != nil && c.Data.Rocketmq != nil && c.Data.Rocketmq.Topic == "" {
		c.Data.Rocketmq.Topic = DefaultRenewalTopic
	}
}

// Validate 加载时校验配置，避免运行期才发现缺项
func (c *Bootstrap) Validate() error {
	if c.Twikey == nil {
		return fmt.Errorf("twikey config is nil")
	}
	if strings.TrimSpace(c.Twikey.ApiToken) == "" {
		return fmt.Errorf("twikey.api_token cannot be empty")
	}
	if strings.TrimSpace(c.Twikey.PrivateKey) == "" {
		return fmt.Errorf("twikey.private_key cannot be empty")
	}
	if strings.TrimSpace(c.Twikey.ContractTemplateId) == "" {
		return fmt.Errorf("twikey.contract_template_id cannot be empty")
	}
	if c.Twikey.CallbackLookback < 1 {
		return fmt.Errorf("twikey.callback_lookback must be >= 1, got %d", c.Twikey.CallbackLookback)
	}
	if c.Checkout == nil || c.Checkout.ReturnUrl == "" {
		return fmt.Errorf("checkout.return_url cannot be empty")
	}
	if c.Checkout.LandingUrl == "" {
		return fmt.Errorf("checkout.landing_url cannot be empty")
	}
	if c.Cron != nil {
		if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(c.Cron.SweepSpec); err != nil {
			return fmt.Errorf("invalid cron.sweep_spec %q: %w", c.Cron.SweepSpec, err)
		}
		if c.Cron.SweepConcurrency < 1 {
			return fmt.Errorf("cron.sweep_concurrency must be >= 1, got %d", c.Cron.SweepConcurrency)
		}
	}
	if c.Log != nil && c.Log.Level != "" {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[c.Log.Level] {
			return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
		}
	}
	return nil
}

// TwikeyHost 返回当前环境的 API 地址（不含结尾斜杠）
func (t *Twikey) TwikeyHost() string {
	if t.BaseUrl != "" {
		return strings.TrimRight(t.BaseUrl, "/")
	}
	if t.UseSandboxEnvironment {
		return "https://api.beta.twikey.com"
	}
	return "https://api.twikey.com"
}
