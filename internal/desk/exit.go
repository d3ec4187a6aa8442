package desk

import (
	"context"
	"fmt"

	"tradedesk/internal/domain"
	"tradedesk/internal/gateway/broker"
	"tradedesk/internal/journal"
	"tradedesk/internal/store/model"
)

// ExitInstrument 按券商报告的净头寸为每个客户下反向市价单平仓。
// 标的未登记时返回 domain.ErrNotFound，不做任何券商调用。
func (d *Desk) ExitInstrument(ctx context.Context, req domain.ExitRequest) ([]domain.Outcome, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	token, err := d.store.Tokens().Find(ctx, req.TokenSymbol, req.TokenExchange)
	if err != nil {
		return nil, fmt.Errorf("resolve token %s/%s: %w", req.TokenSymbol, req.TokenExchange, err)
	}
	if token == nil {
		return nil, fmt.Errorf("%w: token %s on %s", domain.ErrNotFound, req.TokenSymbol, req.TokenExchange)
	}
	outcomes := d.fanOut(ctx, req.ClientIDs, func(uctx context.Context, i int) domain.Outcome {
		return d.exitOne(uctx, token, req.ClientIDs[i])
	})
	logSummary("exit", token, outcomes)
	return outcomes, nil
}

func (d *Desk) exitOne(ctx context.Context, token *model.Token, clientID string) domain.Outcome {
	client, err := d.store.Clients().FindByID(ctx, clientID)
	if err != nil {
		return domain.ErrorOutcome(clientID, failureMessage(err))
	}
	if client == nil {
		return domain.ErrorOutcome(clientID, "Client not found")
	}
	sess, err := d.sessions.Get(ctx, client)
	if err != nil {
		d.sessions.Observe(client.ID, err)
		return domain.ErrorOutcome(client.ID, failureMessage(err))
	}
	positions, err := sess.GetPositions(ctx)
	if err != nil {
		d.sessions.Observe(client.ID, err)
		return domain.ErrorOutcome(client.ID, failureMessage(err))
	}

	pos, ok := findPosition(positions, token.Symbol)
	if !ok || pos.Net() == 0 {
		return domain.Outcome{
			BrokerOrderID: domain.NoOrderID,
			ClientID:      client.ID,
			Status:        domain.StatusSkipped,
			Message:       fmt.Sprintf("No open position found for %s for client %s", token.Symbol, client.ClientCode),
		}
	}

	net := pos.Net()
	held := domain.SideBuy
	if net < 0 {
		held = domain.SideSell
		net = -net
	}
	side := held.Opposite()
	res, err := sess.PlaceOrder(ctx, broker.OrderDetails{
		Symbol:      token.Symbol,
		Exchange:    token.Exchange,
		Quantity:    net,
		OrderType:   domain.OrderTypeMarket,
		Side:        side,
		ProductType: d.opts.ExitProductType,
	})
	if err != nil {
		return d.recordRejection(ctx, client, side, net, err)
	}
	return d.record(ctx, client, token, ledgerIntent{
		kind:     journal.KindExit,
		clientID: client.ID,
		tokenID:  token.ID,
		side:     side,
		quantity: net,
		price:    pos.LTP,
		orderID:  localOrderID(res.OrderID),
		raw:      res.Raw,
	}, res.Message)
}

func findPosition(positions []domain.Position, symbol string) (domain.Position, bool) {
	for _, p := range positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return domain.Position{}, false
}
