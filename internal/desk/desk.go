// Package desk 是多客户下单台的核心：批量扇出下单、一键平仓、账本对账与补账。
package desk

import (
	"context"
	"fmt"
	"time"

	"tradedesk/internal/gateway/broker"
	"tradedesk/internal/gateway/notifier"
	"tradedesk/internal/journal"
	"tradedesk/internal/pkg/keylock"
	"tradedesk/internal/store"
	"tradedesk/internal/vault"
)

// Cipher encrypts client credentials at rest.
type Cipher interface {
	EncryptString(s string) ([]byte, error)
	DecryptString(ciphertext []byte) (string, error)
}

// SecretSource stores the per-client login secrets that never enter the relational ledger.
type SecretSource interface {
	PutLogin(clientCode string, secrets vault.LoginSecrets) error
	Login(clientCode string) (vault.LoginSecrets, error)
}

// PendingJournal holds units whose broker side succeeded but whose ledger write did not.
type PendingJournal interface {
	Append(e journal.Entry) error
	Pending() ([]journal.Entry, error)
	Remove(orderID string) error
}

type Deps struct {
	Store     store.Store
	Cipher    Cipher
	Secrets   SecretSource
	Connector broker.Connector
	Journal   PendingJournal
	Notifier  notifier.TextNotifier
}

type Options struct {
	MaxInFlight     int
	SessionTTL      time.Duration
	UnitTimeout     time.Duration
	ExitProductType string
	ReplayInterval  time.Duration
}

func (o *Options) normalize() {
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = 8
	}
	if o.UnitTimeout <= 0 {
		o.UnitTimeout = 30 * time.Second
	}
	if o.ExitProductType == "" {
		o.ExitProductType = "INTRADAY"
	}
	if o.ReplayInterval <= 0 {
		o.ReplayInterval = 30 * time.Second
	}
}

// Desk executes fan-out orders and keeps the local ledger in step with the broker.
type Desk struct {
	store    store.Store
	cipher   Cipher
	secrets  SecretSource
	sessions *SessionCache
	journal  PendingJournal
	notifier notifier.TextNotifier
	locks    *keylock.Map
	opts     Options
	now      func() time.Time
}

func New(deps Deps, opts Options) (*Desk, error) {
	if deps.Store == nil || deps.Cipher == nil || deps.Secrets == nil || deps.Connector == nil || deps.Journal == nil {
		return nil, fmt.Errorf("desk: store, cipher, secrets, connector and journal are required")
	}
	if deps.Notifier == nil {
		deps.Notifier = notifier.Noop{}
	}
	opts.normalize()
	d := &Desk{
		store:    deps.Store,
		cipher:   deps.Cipher,
		secrets:  deps.Secrets,
		journal:  deps.Journal,
		notifier: deps.Notifier,
		locks:    keylock.New(),
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
	d.sessions = NewSessionCache(deps.Connector, opts.SessionTTL, d.credentials)
	return d, nil
}

// Sessions exposes the session cache so callers can drop sessions on shutdown.
func (d *Desk) Sessions() *SessionCache {
	return d.sessions
}

func (d *Desk) Options() Options {
	return d.opts
}

func pairKey(clientID string, tokenID int64) string {
	return fmt.Sprintf("%s|%d", clientID, tokenID)
}

// withUnitContext detaches a started unit from request cancellation and bounds it by UnitTimeout.
func (d *Desk) withUnitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d.opts.UnitTimeout)
}
