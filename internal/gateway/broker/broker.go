// Package broker 抽象外部券商接口：登录得到 Session，再在 Session 上下单、查持仓等。
package broker

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"tradedesk/internal/domain"
)

// Credentials are the decrypted login material for one client account.
type Credentials struct {
	ClientCode string
	APIKey     string
	APISecret  string
	Password   string
	TwoFA      string
	TOTP       string
}

type OrderDetails struct {
	Symbol      string
	Exchange    string
	Quantity    int64
	OrderType   string
	Side        domain.Side
	ProductType string
}

// OrderResult is the broker's answer to a placement. Price is zero when no fill price is reported.
type OrderResult struct {
	Status  string
	OrderID string
	Message string
	Price   decimal.Decimal
	Raw     json.RawMessage
}

// Succeeded reports the broker's SUCCESS status.
func (r OrderResult) Succeeded() bool {
	return r.Status == "SUCCESS"
}

// BookOrder is one row of the order book.
type BookOrder struct {
	OrderID  string          `json:"uniqueorderid"`
	Symbol   string          `json:"symbol"`
	Side     string          `json:"buyorsell"`
	Quantity int64           `json:"orderqty"`
	Price    decimal.Decimal `json:"price"`
	Status   string          `json:"orderstatus"`
}

// Session is an authenticated handle for one client. Every call is one round trip, no retries.
type Session interface {
	ClientCode() string
	PlaceOrder(ctx context.Context, details OrderDetails) (OrderResult, error)
	GetPositions(ctx context.Context) ([]domain.Position, error)
	GetMargin(ctx context.Context) (json.RawMessage, error)
	GetOrderBook(ctx context.Context) ([]BookOrder, error)
	CancelOrder(ctx context.Context, orderID string) error
	Logout(ctx context.Context) error
}

// Connector performs the login handshake. It fails with domain.ErrAuthenticationFailed
// when no usable session token comes back.
type Connector interface {
	Connect(ctx context.Context, creds Credentials) (Session, error)
}
