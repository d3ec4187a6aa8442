package config

import (
	"strings"
)

// 默认值常量
const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppHTTPAddr       = ":8000"
	defaultAppLogPath        = "data/logs/tradedesk.log"
	defaultAppLogMaxSizeMB   = 100
	defaultAppLogMaxBackups  = 7
	defaultAppLogMaxAgeDays  = 30
	defaultDBDriver          = "sqlite"
	defaultDBPath            = "data/db/ledger.db"
	defaultDBHost            = "localhost"
	defaultDBPort            = 5432
	defaultDBSSLMode         = "disable"
	defaultDBMaxOpenConns    = 8
	defaultSecretsPath       = "data/secrets"
	defaultBrokerMode        = "rest"
	defaultBrokerBaseURL     = "https://api.motilaloswal.com"
	defaultBrokerTimeout     = 10
	defaultBrokerSourceID    = "WEB"
	defaultBrokerVendorInfo  = "TradeDesk"
	defaultBrokerRate        = 20
	defaultBrokerBurst       = 10
	defaultBreakerThreshold  = 5
	defaultBreakerCooldown   = 30
	defaultPaperFillPrice    = 100
	defaultDeskMaxInFlight   = 8
	defaultDeskSessionTTL    = 900
	defaultDeskUnitTimeout   = 30
	defaultDeskExitProduct   = "INTRADAY"
	defaultDeskReplay        = 30
	defaultDeskJournalPath   = "data/journal"
	defaultLiveSimIntervalMS = 1000
	defaultLiveObserverBuf   = 64
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Database.applyDefaults(keys)
	c.Security.applyDefaults(keys)
	c.Broker.applyDefaults(keys)
	c.Desk.applyDefaults(keys)
	c.Live.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		intFieldDefault("app.log_max_size_mb", &a.LogMaxSizeMB, defaultAppLogMaxSizeMB),
		intFieldDefault("app.log_max_backups", &a.LogMaxBackups, defaultAppLogMaxBackups),
		intFieldDefault("app.log_max_age_days", &a.LogMaxAgeDays, defaultAppLogMaxAgeDays),
	)
}

func (d *DatabaseConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("database.driver", &d.Driver, defaultDBDriver),
		intFieldDefault("database.max_open_conns", &d.MaxOpenConns, defaultDBMaxOpenConns),
	)
	d.Driver = strings.ToLower(strings.TrimSpace(d.Driver))
	if d.IsPostgres() {
		applyFieldDefaults(keys,
			stringFieldDefault("database.host", &d.Host, defaultDBHost),
			intFieldDefault("database.port", &d.Port, defaultDBPort),
			stringFieldDefault("database.sslmode", &d.SSLMode, defaultDBSSLMode),
		)
		return
	}
	applyFieldDefaults(keys, stringFieldDefault("database.path", &d.Path, defaultDBPath))
}

func (s *SecurityConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("security.secrets_path", &s.SecretsPath, defaultSecretsPath),
	)
}

func (b *BrokerConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("broker.mode", &b.Mode, defaultBrokerMode),
		stringFieldDefault("broker.base_url", &b.BaseURL, defaultBrokerBaseURL),
		stringFieldDefault("broker.source_id", &b.SourceID, defaultBrokerSourceID),
		stringFieldDefault("broker.vendor_info", &b.VendorInfo, defaultBrokerVendorInfo),
		intFieldDefault("broker.timeout_seconds", &b.TimeoutSeconds, defaultBrokerTimeout),
		intFieldDefault("broker.burst", &b.Burst, defaultBrokerBurst),
		intFieldDefault("broker.breaker_threshold", &b.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("broker.breaker_cooldown_seconds", &b.BreakerCooldownSeconds, defaultBreakerCooldown),
		fieldDefault{
			key:   "broker.rate_per_second",
			need:  func() bool { return b.RatePerSecond <= 0 },
			apply: func() { b.RatePerSecond = defaultBrokerRate },
		},
		fieldDefault{
			key:   "broker.paper.fill_price",
			need:  func() bool { return b.Paper.FillPrice <= 0 },
			apply: func() { b.Paper.FillPrice = defaultPaperFillPrice },
		},
	)
	b.Mode = strings.ToLower(strings.TrimSpace(b.Mode))
	b.BaseURL = strings.TrimSuffix(strings.TrimSpace(b.BaseURL), "/")
}

func (d *DeskConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("desk.max_in_flight", &d.MaxInFlight, defaultDeskMaxInFlight),
		intFieldDefault("desk.session_ttl_seconds", &d.SessionTTLSeconds, defaultDeskSessionTTL),
		intFieldDefault("desk.unit_timeout_seconds", &d.UnitTimeoutSeconds, defaultDeskUnitTimeout),
		intFieldDefault("desk.replay_interval_seconds", &d.ReplayIntervalSeconds, defaultDeskReplay),
		stringFieldDefault("desk.exit_product_type", &d.ExitProductType, defaultDeskExitProduct),
		stringFieldDefault("desk.journal_path", &d.JournalPath, defaultDeskJournalPath),
	)
	d.ExitProductType = strings.ToUpper(strings.TrimSpace(d.ExitProductType))
}

func (l *LiveConfig) applyDefaults(keys keySet) {
	if l == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("live.sim_interval_ms", &l.SimIntervalMS, defaultLiveSimIntervalMS),
		intFieldDefault("live.observer_buffer", &l.ObserverBuffer, defaultLiveObserverBuf),
	)
	l.UpstreamURL = strings.TrimSpace(l.UpstreamURL)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
