package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Side 下单方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalises "buy"/"BUY"/" Sell " into a Side.
func ParseSide(raw string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(raw))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", fmt.Errorf("%w: side must be BUY or SELL, got %q", ErrInvalidRequest, raw)
	}
}

// Opposite returns the side that flattens a position opened on s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OutcomeStatus 单个客户单元的最终状态。
type OutcomeStatus string

const (
	StatusSuccess       OutcomeStatus = "SUCCESS"
	StatusError         OutcomeStatus = "ERROR"
	StatusSkipped       OutcomeStatus = "SKIPPED"
	StatusLedgerPending OutcomeStatus = "RECORDED_REMOTE_LEDGER_PENDING"
)

// NoOrderID is reported when the broker never assigned an order id.
const NoOrderID = "N/A"

const (
	OrderTypeMarket = "MARKET"
	ProductIntraday = "INTRADAY"
)

// Outcome 是批量请求中每个客户对应的一条结果。
type Outcome struct {
	BrokerOrderID string        `json:"mofsl_order_id"`
	ClientID      string        `json:"client_id"`
	Status        OutcomeStatus `json:"status"`
	Message       string        `json:"message"`
}

func ErrorOutcome(clientID, message string) Outcome {
	return Outcome{BrokerOrderID: NoOrderID, ClientID: clientID, Status: StatusError, Message: message}
}

type ClientOrder struct {
	ClientID string `json:"client_id"`
	Quantity int64  `json:"quantity"`
}

// BatchOrderRequest 描述一次多客户扇出下单。
type BatchOrderRequest struct {
	TokenSymbol   string        `json:"token_symbol"`
	TokenExchange string        `json:"token_exchange"`
	TradeType     string        `json:"trade_type"`
	OrderType     string        `json:"order_type"`
	Side          Side          `json:"buy_or_sell"`
	ClientOrders  []ClientOrder `json:"client_orders"`
}

// Normalize trims identifiers and upper-cases the enumerations in place.
func (r *BatchOrderRequest) Normalize() {
	r.TokenSymbol = strings.TrimSpace(r.TokenSymbol)
	r.TokenExchange = strings.ToUpper(strings.TrimSpace(r.TokenExchange))
	r.TradeType = strings.ToUpper(strings.TrimSpace(r.TradeType))
	r.OrderType = strings.ToUpper(strings.TrimSpace(r.OrderType))
	r.Side = Side(strings.ToUpper(strings.TrimSpace(string(r.Side))))
	for i := range r.ClientOrders {
		r.ClientOrders[i].ClientID = strings.TrimSpace(r.ClientOrders[i].ClientID)
	}
}

func (r BatchOrderRequest) Validate() error {
	if r.TokenSymbol == "" || r.TokenExchange == "" {
		return fmt.Errorf("%w: token_symbol and token_exchange are required", ErrInvalidRequest)
	}
	if _, err := ParseSide(string(r.Side)); err != nil {
		return err
	}
	if r.OrderType == "" {
		return fmt.Errorf("%w: order_type is required", ErrInvalidRequest)
	}
	if len(r.ClientOrders) == 0 {
		return fmt.Errorf("%w: client_orders cannot be empty", ErrInvalidRequest)
	}
	for i, co := range r.ClientOrders {
		if co.ClientID == "" {
			return fmt.Errorf("%w: client_orders[%d].client_id is required", ErrInvalidRequest, i)
		}
		if co.Quantity <= 0 {
			return fmt.Errorf("%w: client_orders[%d].quantity must be > 0", ErrInvalidRequest, i)
		}
	}
	return nil
}

// ExitRequest 一键平掉多个客户在某个标的上的净头寸。
type ExitRequest struct {
	TokenSymbol   string   `json:"token_symbol"`
	TokenExchange string   `json:"token_exchange"`
	ClientIDs     []string `json:"clients_to_exit"`
}

func (r *ExitRequest) Normalize() {
	r.TokenSymbol = strings.TrimSpace(r.TokenSymbol)
	r.TokenExchange = strings.ToUpper(strings.TrimSpace(r.TokenExchange))
	for i := range r.ClientIDs {
		r.ClientIDs[i] = strings.TrimSpace(r.ClientIDs[i])
	}
}

func (r ExitRequest) Validate() error {
	if r.TokenSymbol == "" || r.TokenExchange == "" {
		return fmt.Errorf("%w: token_symbol and token_exchange are required", ErrInvalidRequest)
	}
	if len(r.ClientIDs) == 0 {
		return fmt.Errorf("%w: clients_to_exit cannot be empty", ErrInvalidRequest)
	}
	return nil
}

// Position is one broker-reported line item for a symbol, aggregated for the day.
type Position struct {
	Symbol       string          `json:"symbol"`
	BuyQuantity  int64           `json:"buyquantity"`
	SellQuantity int64           `json:"sellquantity"`
	BuyAmount    decimal.Decimal `json:"buyamount"`
	SellAmount   decimal.Decimal `json:"sellamount"`
	LTP          decimal.Decimal `json:"LTP"`
}

// Net is buy minus sell; positive means long.
func (p Position) Net() int64 {
	return p.BuyQuantity - p.SellQuantity
}

// ActivePosition 聚合后的活跃持仓。
type ActivePosition struct {
	Symbol   string          `json:"symbol"`
	Quantity int64           `json:"quantity"`
	AvgPrice decimal.Decimal `json:"avg_price"`
	LTP      decimal.Decimal `json:"ltp"`
}
