package config

import (
	"strings"
	"time"
)

// Config 是 tradedesk 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Database DatabaseConfig `toml:"database"`
	Security SecurityConfig `toml:"security"`
	Broker   BrokerConfig   `toml:"broker"`
	Desk     DeskConfig     `toml:"desk"`
	Live     LiveConfig     `toml:"live"`
	Notify   NotifyConfig   `toml:"notify"`
}

type AppConfig struct {
	Env           string `toml:"env"`
	LogLevel      string `toml:"log_level"`
	HTTPAddr      string `toml:"http_addr"`
	LogPath       string `toml:"log_path"`
	LogMaxSizeMB  int    `toml:"log_max_size_mb"`
	LogMaxBackups int    `toml:"log_max_backups"`
	LogMaxAgeDays int    `toml:"log_max_age_days"`
}

// DatabaseConfig 描述账本存储。driver 取值 sqlite | postgres。
type DatabaseConfig struct {
	Driver       string            `toml:"driver"`
	Path         string            `toml:"path"`
	Host         string            `toml:"host"`
	Port         int               `toml:"port"`
	User         string            `toml:"user"`
	Password     string            `toml:"password"`
	Name         string            `toml:"name"`
	SSLMode      string            `toml:"sslmode"`
	Params       map[string]string `toml:"params"`
	MaxOpenConns int               `toml:"max_open_conns"`
}

func (d DatabaseConfig) IsPostgres() bool {
	return strings.EqualFold(strings.TrimSpace(d.Driver), "postgres")
}

// SecurityConfig holds the vault key and the badger secret store location.
type SecurityConfig struct {
	SecretKey   string `toml:"secret_key"`
	SecretsPath string `toml:"secrets_path"`
	SecretsKey  string `toml:"secrets_key"` // 32 bytes, hex or base64; empty = badger without encryption
}

// BrokerConfig 描述外部券商接口的访问方式。
type BrokerConfig struct {
	Mode                   string      `toml:"mode"` // "rest" | "paper"
	BaseURL                string      `toml:"base_url"`
	TimeoutSeconds         int         `toml:"timeout_seconds"`
	SourceID               string      `toml:"source_id"`
	VendorInfo             string      `toml:"vendor_info"`
	RatePerSecond          float64     `toml:"rate_per_second"`
	Burst                  int         `toml:"burst"`
	BreakerThreshold       int         `toml:"breaker_threshold"`
	BreakerCooldownSeconds int         `toml:"breaker_cooldown_seconds"`
	DefaultPassword        string      `toml:"default_password"`
	DefaultTwoFA           string      `toml:"default_two_fa"`
	Paper                  PaperConfig `toml:"paper"`
}

type PaperConfig struct {
	FillPrice float64 `toml:"fill_price"`
}

func (b BrokerConfig) IsPaper() bool {
	return strings.EqualFold(strings.TrimSpace(b.Mode), "paper")
}

func (b BrokerConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

func (b BrokerConfig) BreakerCooldown() time.Duration {
	return time.Duration(b.BreakerCooldownSeconds) * time.Second
}

// DeskConfig 控制扇出并发与账本补偿。
type DeskConfig struct {
	MaxInFlight           int    `toml:"max_in_flight"`
	SessionTTLSeconds     int    `toml:"session_ttl_seconds"`
	UnitTimeoutSeconds    int    `toml:"unit_timeout_seconds"`
	ExitProductType       string `toml:"exit_product_type"`
	ReplayIntervalSeconds int    `toml:"replay_interval_seconds"`
	JournalPath           string `toml:"journal_path"`
}

func (d DeskConfig) SessionTTL() time.Duration {
	return time.Duration(d.SessionTTLSeconds) * time.Second
}

func (d DeskConfig) UnitTimeout() time.Duration {
	return time.Duration(d.UnitTimeoutSeconds) * time.Second
}

func (d DeskConfig) ReplayInterval() time.Duration {
	return time.Duration(d.ReplayIntervalSeconds) * time.Second
}

// LiveConfig configures the P/L broadcast feed.
type LiveConfig struct {
	UpstreamURL      string `toml:"upstream_url"`
	SubscribeMessage string `toml:"subscribe_message"`
	Simulate         bool   `toml:"simulate"`
	SimIntervalMS    int    `toml:"sim_interval_ms"`
	ObserverBuffer   int    `toml:"observer_buffer"`
}

func (l LiveConfig) SimInterval() time.Duration {
	return time.Duration(l.SimIntervalMS) * time.Millisecond
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
