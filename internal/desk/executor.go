package desk

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"tradedesk/internal/domain"
	"tradedesk/internal/gateway/broker"
	"tradedesk/internal/journal"
	"tradedesk/internal/logger"
	"tradedesk/internal/store/model"
)

const msgCancelledBeforeDispatch = "request cancelled before dispatch"

// unitFunc executes the work for the i-th client of a batch and always yields an outcome.
type unitFunc func(ctx context.Context, i int) domain.Outcome

// fanOut runs one unit per client id with at most MaxInFlight in flight. Outcomes keep the
// input order. Units not yet started when ctx is cancelled are reported as errors; started
// units run to completion under their own timeout.
func (d *Desk) fanOut(ctx context.Context, clientIDs []string, unit unitFunc) []domain.Outcome {
	out := make([]domain.Outcome, len(clientIDs))
	var g errgroup.Group
	g.SetLimit(d.opts.MaxInFlight)
	for i, id := range clientIDs {
		if ctx.Err() != nil {
			out[i] = domain.ErrorOutcome(id, msgCancelledBeforeDispatch)
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				out[i] = domain.ErrorOutcome(id, msgCancelledBeforeDispatch)
				return nil
			}
			uctx, cancel := d.withUnitContext(ctx)
			defer cancel()
			out[i] = d.runUnit(uctx, i, id, unit)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (d *Desk) runUnit(ctx context.Context, i int, clientID string, unit unitFunc) (out domain.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.With("client_id", clientID).Errorf("unit panicked: %v", r)
			out = domain.ErrorOutcome(clientID, fmt.Sprintf("An unexpected error occurred: %v", r))
		}
	}()
	return unit(ctx, i)
}

// ExecuteBatch 把同一标的、同一方向的订单扇出给多个客户，返回与 client_orders 等长且同序的结果。
// 请求本身非法或标的无法解析时返回 error，此时不会发出任何订单。
func (d *Desk) ExecuteBatch(ctx context.Context, req domain.BatchOrderRequest) ([]domain.Outcome, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	token, created, err := d.store.Tokens().Ensure(ctx, &model.Token{Symbol: req.TokenSymbol, Exchange: req.TokenExchange})
	if err != nil {
		return nil, fmt.Errorf("resolve token %s/%s: %w", req.TokenSymbol, req.TokenExchange, err)
	}
	if created {
		logger.With("symbol", token.Symbol, "exchange", token.Exchange).Infof("token registered")
	}

	ids := make([]string, len(req.ClientOrders))
	for i, co := range req.ClientOrders {
		ids[i] = co.ClientID
	}
	outcomes := d.fanOut(ctx, ids, func(uctx context.Context, i int) domain.Outcome {
		return d.placeEntry(uctx, req, token, req.ClientOrders[i])
	})
	logSummary("batch", token, outcomes)
	return outcomes, nil
}

func (d *Desk) placeEntry(ctx context.Context, req domain.BatchOrderRequest, token *model.Token, co domain.ClientOrder) domain.Outcome {
	client, err := d.store.Clients().FindByID(ctx, co.ClientID)
	if err != nil {
		return domain.ErrorOutcome(co.ClientID, failureMessage(err))
	}
	if client == nil {
		return domain.ErrorOutcome(co.ClientID, "Client not found")
	}
	sess, err := d.sessions.Get(ctx, client)
	if err != nil {
		d.sessions.Observe(client.ID, err)
		return domain.ErrorOutcome(client.ID, failureMessage(err))
	}
	product := req.TradeType
	if product == "" {
		product = domain.ProductIntraday
	}
	res, err := sess.PlaceOrder(ctx, broker.OrderDetails{
		Symbol:      token.Symbol,
		Exchange:    token.Exchange,
		Quantity:    co.Quantity,
		OrderType:   req.OrderType,
		Side:        req.Side,
		ProductType: product,
	})
	if err != nil {
		return d.recordRejection(ctx, client, req.Side, co.Quantity, err)
	}
	return d.record(ctx, client, token, ledgerIntent{
		kind:     journal.KindEntry,
		clientID: client.ID,
		tokenID:  token.ID,
		side:     req.Side,
		quantity: co.Quantity,
		price:    res.Price,
		orderID:  localOrderID(res.OrderID),
		raw:      res.Raw,
	}, res.Message)
}

func logSummary(op string, token *model.Token, outcomes []domain.Outcome) {
	counts := make(map[domain.OutcomeStatus]int, 4)
	for _, o := range outcomes {
		counts[o.Status]++
	}
	logger.With("op", op, "symbol", token.Symbol, "exchange", token.Exchange).Infof(
		"%d units: success=%d error=%d skipped=%d ledger_pending=%d",
		len(outcomes), counts[domain.StatusSuccess], counts[domain.StatusError],
		counts[domain.StatusSkipped], counts[domain.StatusLedgerPending])
}
