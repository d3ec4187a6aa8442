package broker

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedesk/internal/domain"
)

func TestPaperNetsBuysAndSells(t *testing.T) {
	p := NewPaperConnector(decimal.NewFromInt(100))
	ctx := context.Background()
	sess, err := p.Connect(ctx, Credentials{ClientCode: "C1", APIKey: "k"})
	require.NoError(t, err)

	res, err := sess.PlaceOrder(ctx, OrderDetails{Symbol: "X", Quantity: 10, Side: domain.SideBuy})
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.NotEmpty(t, res.OrderID)

	p.SetPrice("X", decimal.NewFromInt(110))
	_, err = sess.PlaceOrder(ctx, OrderDetails{Symbol: "X", Quantity: 4, Side: domain.SideSell})
	require.NoError(t, err)

	pos, err := sess.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.Equal(t, int64(6), pos[0].Net())
	assert.True(t, decimal.NewFromInt(1000).Equal(pos[0].BuyAmount))
	assert.True(t, decimal.NewFromInt(440).Equal(pos[0].SellAmount))
	assert.True(t, decimal.NewFromInt(110).Equal(pos[0].LTP))

	book, err := sess.GetOrderBook(ctx)
	require.NoError(t, err)
	assert.Len(t, book, 2)
	assert.ErrorIs(t, sess.CancelOrder(ctx, book[0].OrderID), domain.ErrRemoteRejected)

	other, err := p.Connect(ctx, Credentials{ClientCode: "C2", APIKey: "k"})
	require.NoError(t, err)
	pos, err = other.GetPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, pos)
}

func TestPaperRejectsMissingKey(t *testing.T) {
	_, err := NewPaperConnector(decimal.Zero).Connect(context.Background(), Credentials{ClientCode: "C1"})
	assert.ErrorIs(t, err, domain.ErrAuthenticationFailed)
}
