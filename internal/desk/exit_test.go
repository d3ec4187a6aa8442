package desk

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedesk/internal/domain"
	"tradedesk/internal/gateway/broker"
	"tradedesk/internal/store/model"
)

func TestExitUnknownTokenMakesNoBrokerCalls(t *testing.T) {
	conn := newFakeConnector()
	h := newHarness(t, conn, Options{})
	a := h.register(t, "A1")

	_, err := h.desk.ExitInstrument(context.Background(), domain.ExitRequest{
		TokenSymbol: "NOPE", TokenExchange: "NSE", ClientIDs: []string{a.ID},
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, conn.logins.Load())
}

func TestExitSkipsFlatClients(t *testing.T) {
	conn := newFakeConnector()
	h := newHarness(t, conn, Options{})
	a := h.register(t, "A1")
	ctx := context.Background()
	_, _, err := h.store.Tokens().Ensure(ctx, &model.Token{Symbol: "TCS", Exchange: "NSE"})
	require.NoError(t, err)
	conn.session("A1").positions = []domain.Position{{Symbol: "TCS", BuyQuantity: 5, SellQuantity: 5}}

	out, err := h.desk.ExitInstrument(ctx, domain.ExitRequest{
		TokenSymbol: "TCS", TokenExchange: "nse", ClientIDs: []string{a.ID, "ghost"},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, domain.Outcome{
		BrokerOrderID: domain.NoOrderID,
		ClientID:      a.ID,
		Status:        domain.StatusSkipped,
		Message:       "No open position found for TCS for client A1",
	}, out[0])
	assert.Equal(t, domain.ErrorOutcome("ghost", "Client not found"), out[1])
	assert.Empty(t, conn.session("A1").placedOrders())
}

func TestExitFlattensLongPositionAtLTP(t *testing.T) {
	paper := broker.NewPaperConnector(decimal.NewFromInt(100))
	h := newHarness(t, paper, Options{ExitProductType: "DELIVERY"})
	a := h.register(t, "A1")
	ctx := context.Background()

	out, err := h.desk.ExecuteBatch(ctx, buyBatch("INFY", domain.SideBuy, domain.ClientOrder{ClientID: a.ID, Quantity: 10}))
	require.NoError(t, err)
	require.Equal(t, domain.StatusSuccess, out[0].Status)
	paper.SetPrice("INFY", decimal.NewFromInt(120))

	out, err = h.desk.ExitInstrument(ctx, domain.ExitRequest{TokenSymbol: "INFY", TokenExchange: "NSE", ClientIDs: []string{a.ID}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.StatusSuccess, out[0].Status, out[0].Message)
	assert.Nil(t, h.openTrade(t, a.ID, "INFY", "NSE"))

	trades, err := h.desk.Ledger(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].ExitPrice.Decimal.Equal(decimal.NewFromInt(120)))

	active, err := h.desk.ActiveTrades(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestExitCoversShortWithMarketBuy(t *testing.T) {
	conn := newFakeConnector()
	h := newHarness(t, conn, Options{})
	a := h.register(t, "A1")
	ctx := context.Background()
	_, _, err := h.store.Tokens().Ensure(ctx, &model.Token{Symbol: "SBIN", Exchange: "NSE"})
	require.NoError(t, err)
	sess := conn.session("A1")
	sess.positions = []domain.Position{
		{Symbol: "OTHER", BuyQuantity: 3},
		{Symbol: "SBIN", SellQuantity: 7, SellAmount: decimal.NewFromInt(700), LTP: decimal.NewFromInt(98)},
	}

	out, err := h.desk.ExitInstrument(ctx, domain.ExitRequest{TokenSymbol: "SBIN", TokenExchange: "NSE", ClientIDs: []string{a.ID}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, out[0].Status)

	placed := sess.placedOrders()
	require.Len(t, placed, 1)
	assert.Equal(t, broker.OrderDetails{
		Symbol: "SBIN", Exchange: "NSE", Quantity: 7, OrderType: domain.OrderTypeMarket, Side: domain.SideBuy, ProductType: "INTRADAY",
	}, placed[0])

	ok, err := h.store.Executions().ExistsByOrderID(ctx, out[0].BrokerOrderID)
	require.NoError(t, err)
	assert.True(t, ok)
}
