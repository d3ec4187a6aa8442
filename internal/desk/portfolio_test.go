package desk

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedesk/internal/domain"
	"tradedesk/internal/gateway/broker"
	"tradedesk/internal/store"
	"tradedesk/internal/store/model"
)

func TestRegisterClientEncryptsCredentials(t *testing.T) {
	h := newHarness(t, newFakeConnector(), Options{})
	ctx := context.Background()
	c := h.register(t, "A1")

	assert.NotContains(t, string(c.APIKeyEncrypted), "key-A1")
	assert.NotContains(t, string(c.APISecretEncrypted), "secret-A1")
	login, err := h.secrets.Login("A1")
	require.NoError(t, err)
	assert.Equal(t, "pw-A1", login.Password)

	creds, err := h.desk.credentials(c)
	require.NoError(t, err)
	assert.Equal(t, broker.Credentials{
		ClientCode: "A1", APIKey: "key-A1", APISecret: "secret-A1", Password: "pw-A1", TwoFA: "01/01/1990",
	}, creds)

	_, err = h.desk.RegisterClient(ctx, NewClient{ClientCode: "A1", Name: "Dup", APIKey: "k", APISecret: "s"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	_, err = h.desk.RegisterClient(ctx, NewClient{ClientCode: "B1", Name: "No keys"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	list, err := h.desk.ListClients(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	_, err = h.desk.GetClient(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// staleLookupStore hides existing clients from FindByCode, as seen by the losing side of
// two concurrent registrations.
type staleLookupStore struct {
	store.Store
}

func (s staleLookupStore) Clients() store.ClientRepository {
	return staleLookupClients{s.Store.Clients()}
}

type staleLookupClients struct {
	store.ClientRepository
}

func (staleLookupClients) FindByCode(context.Context, string) (*model.Client, error) {
	return nil, nil
}

func TestDuplicateRegistrationKeepsLoginSecrets(t *testing.T) {
	h := newHarness(t, newFakeConnector(), Options{})
	h.register(t, "A1")
	h.desk.store = staleLookupStore{h.store}

	_, err := h.desk.RegisterClient(context.Background(), NewClient{
		ClientCode: "A1", Name: "Late", APIKey: "k2", APISecret: "s2", Password: "pw-late", TwoFA: "02/02/2000",
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	login, err := h.secrets.Login("A1")
	require.NoError(t, err)
	assert.Equal(t, "pw-A1", login.Password)
	assert.Equal(t, "01/01/1990", login.TwoFA)
}

func TestPortfolioAndOrderBook(t *testing.T) {
	paper := broker.NewPaperConnector(decimal.NewFromInt(100))
	h := newHarness(t, paper, Options{})
	a := h.register(t, "A1")
	ctx := context.Background()
	_, err := h.desk.ExecuteBatch(ctx, buyBatch("TCS", domain.SideBuy, domain.ClientOrder{ClientID: a.ID, Quantity: 2}))
	require.NoError(t, err)

	view, err := h.desk.Portfolio(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, view.Positions, 1)
	assert.Equal(t, int64(2), view.Positions[0].Net())
	assert.Contains(t, string(view.Margin), "200.00")

	book, err := h.desk.OrderBook(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, book, 1)

	err = h.desk.CancelOrder(ctx, a.ID, book[0].OrderID)
	assert.ErrorIs(t, err, domain.ErrRemoteRejected)
	assert.ErrorIs(t, h.desk.CancelOrder(ctx, a.ID, " "), domain.ErrInvalidRequest)

	_, err = h.desk.Portfolio(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTokenHolders(t *testing.T) {
	conn := newFakeConnector()
	h := newHarness(t, conn, Options{})
	a := h.register(t, "A1")
	b := h.register(t, "B1")
	ctx := context.Background()
	_, err := h.desk.ExecuteBatch(ctx, buyBatch("HDFC", domain.SideBuy,
		domain.ClientOrder{ClientID: a.ID, Quantity: 3},
		domain.ClientOrder{ClientID: b.ID, Quantity: 5},
	))
	require.NoError(t, err)

	holders, err := h.desk.TokenHolders(ctx, "HDFC", "nse")
	require.NoError(t, err)
	require.Len(t, holders, 2)
	total := int64(0)
	for _, hd := range holders {
		total += hd.QuantityHeld
	}
	assert.Equal(t, int64(8), total)

	_, err = h.desk.TokenHolders(ctx, "NONE", "NSE")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	tokens, err := h.desk.ListTokens(ctx, "HD", 10)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "HDFC", tokens[0].Symbol)
}
