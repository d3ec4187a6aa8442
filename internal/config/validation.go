package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Database.validate(); err != nil {
		return err
	}
	if err := c.Security.validate(); err != nil {
		return err
	}
	if err := c.Broker.validate(); err != nil {
		return err
	}
	if err := c.Desk.validate(); err != nil {
		return err
	}
	if err := c.Live.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (d *DatabaseConfig) validate() error {
	switch d.Driver {
	case "sqlite":
		if strings.TrimSpace(d.Path) == "" {
			return fmt.Errorf("database.path cannot be empty for sqlite")
		}
	case "postgres":
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("database.name cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", d.Driver)
	}
	if d.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	return nil
}

func (s *SecurityConfig) validate() error {
	if strings.TrimSpace(s.SecretKey) == "" {
		return fmt.Errorf("security.secret_key cannot be empty")
	}
	if strings.TrimSpace(s.SecretsPath) == "" {
		return fmt.Errorf("security.secrets_path cannot be empty")
	}
	return nil
}

func (b *BrokerConfig) validate() error {
	switch b.Mode {
	case "rest":
		if b.BaseURL == "" {
			return fmt.Errorf("broker.base_url cannot be empty in rest mode")
		}
	case "paper":
		if b.Paper.FillPrice <= 0 {
			return fmt.Errorf("broker.paper.fill_price must be > 0")
		}
	default:
		return fmt.Errorf("broker.mode must be rest or paper, got %q", b.Mode)
	}
	if b.TimeoutSeconds <= 0 {
		return fmt.Errorf("broker.timeout_seconds must be > 0")
	}
	if b.RatePerSecond <= 0 || b.Burst <= 0 {
		return fmt.Errorf("broker.rate_per_second and broker.burst must be > 0")
	}
	if b.BreakerThreshold <= 0 {
		return fmt.Errorf("broker.breaker_threshold must be > 0")
	}
	return nil
}

func (d *DeskConfig) validate() error {
	if d.MaxInFlight <= 0 {
		return fmt.Errorf("desk.max_in_flight must be > 0")
	}
	if d.UnitTimeoutSeconds <= 0 {
		return fmt.Errorf("desk.unit_timeout_seconds must be > 0")
	}
	if d.SessionTTLSeconds < 0 {
		return fmt.Errorf("desk.session_ttl_seconds must be >= 0")
	}
	if strings.TrimSpace(d.JournalPath) == "" {
		return fmt.Errorf("desk.journal_path cannot be empty")
	}
	return nil
}

func (l *LiveConfig) validate() error {
	if l.ObserverBuffer <= 0 {
		return fmt.Errorf("live.observer_buffer must be > 0")
	}
	if l.Simulate && l.SimIntervalMS <= 0 {
		return fmt.Errorf("live.sim_interval_ms must be > 0 when simulate is on")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	tg := n.Telegram
	if !tg.Enabled {
		return nil
	}
	if strings.TrimSpace(tg.BotToken) == "" || strings.TrimSpace(tg.ChatID) == "" {
		return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
	}
	return nil
}
