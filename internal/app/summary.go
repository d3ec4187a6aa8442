package app

import (
	"fmt"
	"strings"

	"tradedesk/internal/config"
	"tradedesk/internal/live"
)

type StartupSummary struct {
	Env            string
	HTTPAddr       string
	LedgerDriver   string
	BrokerMode     string
	BrokerURL      string
	MaxInFlight    int
	UnitTimeout    string
	SessionTTL     string
	FeedKind       string
	PendingEntries int
	Telegram       bool
}

func newStartupSummary(cfg *config.Config, feed live.Feed, pending int) *StartupSummary {
	s := &StartupSummary{
		Env:            cfg.App.Env,
		HTTPAddr:       cfg.App.HTTPAddr,
		LedgerDriver:   cfg.Database.Driver,
		BrokerMode:     cfg.Broker.Mode,
		MaxInFlight:    cfg.Desk.MaxInFlight,
		UnitTimeout:    cfg.Desk.UnitTimeout().String(),
		SessionTTL:     cfg.Desk.SessionTTL().String(),
		PendingEntries: pending,
		Telegram:       cfg.Notify.Telegram.Enabled,
	}
	if !cfg.Broker.IsPaper() {
		s.BrokerURL = cfg.Broker.BaseURL
	}
	switch feed.(type) {
	case *live.WSFeed:
		s.FeedKind = "upstream " + cfg.Live.UpstreamURL
	case *live.PLSimulator:
		s.FeedKind = "simulator every " + cfg.Live.SimInterval().String()
	default:
		s.FeedKind = "-"
	}
	return s
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[服务 (SERVICE)]")
	fmt.Printf("  环境: %s\n", s.Env)
	fmt.Printf("  监听: %s\n", s.HTTPAddr)
	fmt.Printf("  账本: %s\n", s.LedgerDriver)
	fmt.Println()

	fmt.Println("[券商 (BROKER)]")
	fmt.Printf("  模式: %s\n", s.BrokerMode)
	fmt.Printf("  地址: %s\n", orDash(s.BrokerURL))
	fmt.Printf("  并发: %d  单元超时: %s  会话有效期: %s\n", s.MaxInFlight, s.UnitTimeout, s.SessionTTL)
	fmt.Println()

	fmt.Println("[实时推送与补账 (LIVE & REPLAY)]")
	fmt.Printf("  行情源: %s\n", s.FeedKind)
	fmt.Printf("  待补账条目: %d\n", s.PendingEntries)
	fmt.Printf("  Telegram 告警: %v\n", s.Telegram)
	fmt.Println(strings.Repeat("=", 80))
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
