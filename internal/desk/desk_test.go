package desk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tradedesk/internal/domain"
	"tradedesk/internal/gateway/broker"
	"tradedesk/internal/journal"
	"tradedesk/internal/store"
	"tradedesk/internal/store/gormstore"
	"tradedesk/internal/store/model"
	"tradedesk/internal/vault"
)

type fakeSession struct {
	code string

	mu        sync.Mutex
	positions []domain.Position
	placed    []broker.OrderDetails
	place     func(ctx context.Context, d broker.OrderDetails) (broker.OrderResult, error)
	seq       int
}

func (s *fakeSession) ClientCode() string { return s.code }

func (s *fakeSession) PlaceOrder(ctx context.Context, d broker.OrderDetails) (broker.OrderResult, error) {
	s.mu.Lock()
	s.placed = append(s.placed, d)
	s.seq++
	seq := s.seq
	place := s.place
	s.mu.Unlock()
	if place != nil {
		return place(ctx, d)
	}
	return broker.OrderResult{
		Status:  "SUCCESS",
		OrderID: fmt.Sprintf("%s-%d", s.code, seq),
		Message: "Order placed",
		Price:   decimal.NewFromInt(100),
	}, nil
}

func (s *fakeSession) GetPositions(context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Position(nil), s.positions...), nil
}

func (s *fakeSession) GetMargin(context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"marginused":"0.00"}`), nil
}

func (s *fakeSession) GetOrderBook(context.Context) ([]broker.BookOrder, error) { return nil, nil }

func (s *fakeSession) CancelOrder(context.Context, string) error { return nil }

func (s *fakeSession) Logout(context.Context) error { return nil }

func (s *fakeSession) placedOrders() []broker.OrderDetails {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]broker.OrderDetails(nil), s.placed...)
}

type fakeConnector struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	logins   atomic.Int32
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{sessions: make(map[string]*fakeSession)}
}

func (c *fakeConnector) Connect(_ context.Context, creds broker.Credentials) (broker.Session, error) {
	c.logins.Add(1)
	return c.session(creds.ClientCode), nil
}

func (c *fakeConnector) session(code string) *fakeSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[code]
	if !ok {
		s = &fakeSession{code: code}
		c.sessions[code] = s
	}
	return s
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *recordingNotifier) SendText(text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, text)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// flakyStore fails Begin while failing is set, so ledger writes fail after the broker accepted.
type flakyStore struct {
	store.Store
	failing atomic.Bool
}

func (s *flakyStore) Begin(ctx context.Context) (store.UnitOfWork, error) {
	if s.failing.Load() {
		return nil, errors.New("database is locked")
	}
	return s.Store.Begin(ctx)
}

type harness struct {
	desk     *Desk
	store    *flakyStore
	journal  *journal.Journal
	secrets  *vault.SecretStore
	notifier *recordingNotifier
}

func newHarness(t *testing.T, connector broker.Connector, opts Options) *harness {
	t.Helper()
	db, err := gormstore.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	v, err := vault.New("test-secret")
	require.NoError(t, err)
	secrets, err := vault.OpenSecretStore(vault.SecretStoreOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = secrets.Close() })
	j, err := journal.Open(journal.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	st := &flakyStore{Store: db}
	n := &recordingNotifier{}
	if opts.SessionTTL == 0 {
		opts.SessionTTL = time.Minute
	}
	d, err := New(Deps{
		Store:     st,
		Cipher:    v,
		Secrets:   secrets,
		Connector: connector,
		Journal:   j,
		Notifier:  n,
	}, opts)
	require.NoError(t, err)
	return &harness{desk: d, store: st, journal: j, secrets: secrets, notifier: n}
}

func (h *harness) register(t *testing.T, code string) *model.Client {
	t.Helper()
	c, err := h.desk.RegisterClient(context.Background(), NewClient{
		ClientCode: code,
		Name:       "Client " + code,
		APIKey:     "key-" + code,
		APISecret:  "secret-" + code,
		Password:   "pw-" + code,
		TwoFA:      "01/01/1990",
	})
	require.NoError(t, err)
	return c
}

func (h *harness) openTrade(t *testing.T, clientID, symbol, exchange string) *model.Trade {
	t.Helper()
	ctx := context.Background()
	tok, err := h.store.Tokens().Find(ctx, symbol, exchange)
	require.NoError(t, err)
	require.NotNil(t, tok)
	tr, err := h.store.Trades().FindOpen(ctx, clientID, tok.ID)
	require.NoError(t, err)
	return tr
}

func buyBatch(symbol string, side domain.Side, orders ...domain.ClientOrder) domain.BatchOrderRequest {
	return domain.BatchOrderRequest{
		TokenSymbol:   symbol,
		TokenExchange: "NSE",
		TradeType:     "INTRADAY",
		OrderType:     "MARKET",
		Side:          side,
		ClientOrders:  orders,
	}
}
