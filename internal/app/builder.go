package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tradedesk/internal/config"
	"tradedesk/internal/desk"
	"tradedesk/internal/gateway/broker"
	"tradedesk/internal/gateway/notifier"
	"tradedesk/internal/journal"
	"tradedesk/internal/live"
	"tradedesk/internal/logger"
	"tradedesk/internal/store"
	"tradedesk/internal/store/gormstore"
	apihttp "tradedesk/internal/transport/http/api"
	"tradedesk/internal/vault"
)

type AppBuilder struct {
	cfg *config.Config

	storeFn     func(config.DatabaseConfig) (store.Store, error)
	connectorFn func(config.BrokerConfig) broker.Connector
	notifierFn  func(config.NotifyConfig) notifier.TextNotifier
}

type AppBuilderOption func(*AppBuilder)

// WithStore overrides the ledger store, e.g. with an in-test sqlite file.
func WithStore(fn func(config.DatabaseConfig) (store.Store, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.storeFn = fn }
}

func WithConnector(fn func(config.BrokerConfig) broker.Connector) AppBuilderOption {
	return func(b *AppBuilder) { b.connectorFn = fn }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:         cfg,
		storeFn:     openStore,
		connectorFn: buildConnector,
		notifierFn:  buildNotifier,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func openStore(cfg config.DatabaseConfig) (store.Store, error) {
	return gormstore.Open(cfg)
}

func buildConnector(cfg config.BrokerConfig) broker.Connector {
	if cfg.IsPaper() {
		return broker.NewPaperConnector(decimal.NewFromFloat(cfg.Paper.FillPrice))
	}
	return broker.NewRESTConnector(broker.RESTOptions{
		BaseURL:          cfg.BaseURL,
		Timeout:          cfg.Timeout(),
		SourceID:         cfg.SourceID,
		VendorInfo:       cfg.VendorInfo,
		RatePerSecond:    cfg.RatePerSecond,
		Burst:            cfg.Burst,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown(),
	})
}

func buildNotifier(cfg config.NotifyConfig) notifier.TextNotifier {
	if !cfg.Telegram.Enabled {
		return notifier.Noop{}
	}
	return notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
}

func buildFeed(cfg config.LiveConfig, positions live.PositionSource) live.Feed {
	switch {
	case cfg.UpstreamURL != "":
		return live.NewWSFeed(cfg.UpstreamURL, cfg.SubscribeMessage)
	case cfg.Simulate:
		return live.NewPLSimulator(positions, cfg.SimInterval())
	default:
		return nil
	}
}

func (b *AppBuilder) Build(ctx context.Context) (app *App, err error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	st, err := b.storeFn(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	closers = append(closers, st.Close)
	logger.Infof("✓ ledger ready (driver=%s)", cfg.Database.Driver)

	cipher, err := vault.New(cfg.Security.SecretKey)
	if err != nil {
		return nil, err
	}
	secretsKey, err := vault.ParseKey(cfg.Security.SecretsKey)
	if err != nil {
		return nil, fmt.Errorf("security.secrets_key: %w", err)
	}
	secrets, err := vault.OpenSecretStore(vault.SecretStoreOptions{
		Path:          cfg.Security.SecretsPath,
		EncryptionKey: secretsKey,
		Fallback: vault.LoginSecrets{
			Password: cfg.Broker.DefaultPassword,
			TwoFA:    cfg.Broker.DefaultTwoFA,
		},
	})
	if err != nil {
		return nil, err
	}
	closers = append(closers, secrets.Close)

	jr, err := journal.Open(journal.Options{Path: cfg.Desk.JournalPath})
	if err != nil {
		return nil, err
	}
	closers = append(closers, jr.Close)

	d, err := desk.New(desk.Deps{
		Store:     st,
		Cipher:    cipher,
		Secrets:   secrets,
		Connector: b.connectorFn(cfg.Broker),
		Journal:   jr,
		Notifier:  b.notifierFn(cfg.Notify),
	}, desk.Options{
		MaxInFlight:     cfg.Desk.MaxInFlight,
		SessionTTL:      cfg.Desk.SessionTTL(),
		UnitTimeout:     cfg.Desk.UnitTimeout(),
		ExitProductType: cfg.Desk.ExitProductType,
		ReplayInterval:  cfg.Desk.ReplayInterval(),
	})
	if err != nil {
		return nil, err
	}

	hub := live.NewHub(cfg.Live.ObserverBuffer)
	feed := buildFeed(cfg.Live, st.Trades())
	server, err := apihttp.NewServer(apihttp.ServerConfig{Addr: cfg.App.HTTPAddr, Desk: d, Hub: hub})
	if err != nil {
		return nil, err
	}

	pending := 0
	if entries, perr := jr.Pending(); perr == nil {
		pending = len(entries)
	}
	return &App{
		cfg:     cfg,
		desk:    d,
		hub:     hub,
		feed:    feed,
		http:    server,
		closers: closers,
		Summary: newStartupSummary(cfg, feed, pending),
	}, nil
}
