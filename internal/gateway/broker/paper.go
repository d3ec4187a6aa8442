package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"tradedesk/internal/domain"
)

// PaperConnector 是内存券商：市价单按固定价格立即成交，按客户号维护当日持仓。
type PaperConnector struct {
	mu        sync.Mutex
	fillPrice decimal.Decimal
	ltp       map[string]decimal.Decimal
	accounts  map[string]*paperAccount
	seq       atomic.Int64
}

type paperAccount struct {
	positions []*domain.Position
	orders    []BookOrder
}

func NewPaperConnector(fillPrice decimal.Decimal) *PaperConnector {
	if !fillPrice.IsPositive() {
		fillPrice = decimal.NewFromInt(100)
	}
	return &PaperConnector{
		fillPrice: fillPrice,
		ltp:       make(map[string]decimal.Decimal),
		accounts:  make(map[string]*paperAccount),
	}
}

// SetPrice overrides the fill price and LTP for one symbol.
func (p *PaperConnector) SetPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ltp[symbol] = price
	for _, acct := range p.accounts {
		for _, pos := range acct.positions {
			if pos.Symbol == symbol {
				pos.LTP = price
			}
		}
	}
}

func (p *PaperConnector) Connect(_ context.Context, creds Credentials) (Session, error) {
	if strings.TrimSpace(creds.ClientCode) == "" || strings.TrimSpace(creds.APIKey) == "" {
		return nil, domain.NewRemoteError(domain.ErrAuthenticationFailed, "login", "client code and api key are required")
	}
	p.mu.Lock()
	if _, ok := p.accounts[creds.ClientCode]; !ok {
		p.accounts[creds.ClientCode] = &paperAccount{}
	}
	p.mu.Unlock()
	return &paperSession{broker: p, code: creds.ClientCode}, nil
}

func (p *PaperConnector) priceOf(symbol string) decimal.Decimal {
	if px, ok := p.ltp[symbol]; ok {
		return px
	}
	return p.fillPrice
}

type paperSession struct {
	broker *PaperConnector
	code   string
}

func (s *paperSession) ClientCode() string { return s.code }

func (s *paperSession) PlaceOrder(ctx context.Context, d OrderDetails) (OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return OrderResult{}, domain.NewRemoteError(domain.ErrRemoteUnavailable, "place order", err.Error())
	}
	if d.Quantity <= 0 {
		return OrderResult{}, domain.NewRemoteError(domain.ErrRemoteRejected, "place order", "quantity must be positive")
	}
	p := s.broker
	p.mu.Lock()
	defer p.mu.Unlock()

	acct := p.accounts[s.code]
	price := p.priceOf(d.Symbol)
	orderID := fmt.Sprintf("PAPER-%06d", p.seq.Add(1))
	amount := price.Mul(decimal.NewFromInt(d.Quantity))

	pos := acct.position(d.Symbol)
	if d.Side == domain.SideBuy {
		pos.BuyQuantity += d.Quantity
		pos.BuyAmount = pos.BuyAmount.Add(amount)
	} else {
		pos.SellQuantity += d.Quantity
		pos.SellAmount = pos.SellAmount.Add(amount)
	}
	pos.LTP = price
	acct.orders = append(acct.orders, BookOrder{
		OrderID:  orderID,
		Symbol:   d.Symbol,
		Side:     string(d.Side),
		Quantity: d.Quantity,
		Price:    price,
		Status:   "Traded",
	})

	raw, _ := json.Marshal(map[string]any{
		"status":  "SUCCESS",
		"message": "Order placed",
		"data":    map[string]any{"orderid": orderID, "averageprice": price.String()},
	})
	return OrderResult{
		Status:  "SUCCESS",
		OrderID: orderID,
		Message: "Order placed",
		Price:   price,
		Raw:     raw,
	}, nil
}

func (a *paperAccount) position(symbol string) *domain.Position {
	for _, pos := range a.positions {
		if pos.Symbol == symbol {
			return pos
		}
	}
	pos := &domain.Position{Symbol: symbol}
	a.positions = append(a.positions, pos)
	return pos
}

func (s *paperSession) GetPositions(context.Context) ([]domain.Position, error) {
	p := s.broker
	p.mu.Lock()
	defer p.mu.Unlock()
	acct := p.accounts[s.code]
	out := make([]domain.Position, 0, len(acct.positions))
	for _, pos := range acct.positions {
		out = append(out, *pos)
	}
	return out, nil
}

func (s *paperSession) GetMargin(context.Context) (json.RawMessage, error) {
	p := s.broker
	p.mu.Lock()
	defer p.mu.Unlock()
	used := decimal.Zero
	for _, pos := range p.accounts[s.code].positions {
		net := pos.Net()
		if net < 0 {
			net = -net
		}
		used = used.Add(pos.LTP.Mul(decimal.NewFromInt(net)))
	}
	return json.Marshal(map[string]any{"clientcode": s.code, "marginused": used.StringFixed(2)})
}

func (s *paperSession) GetOrderBook(context.Context) ([]BookOrder, error) {
	p := s.broker
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]BookOrder(nil), p.accounts[s.code].orders...), nil
}

func (s *paperSession) CancelOrder(_ context.Context, orderID string) error {
	p := s.broker
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, o := range p.accounts[s.code].orders {
		if o.OrderID == orderID {
			return domain.NewRemoteError(domain.ErrRemoteRejected, "cancel order", "order already traded")
		}
	}
	return domain.NewRemoteError(domain.ErrRemoteRejected, "cancel order", "order not found")
}

func (s *paperSession) Logout(context.Context) error { return nil }
