package desk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradedesk/internal/domain"
	"tradedesk/internal/gateway/notifier"
	"tradedesk/internal/journal"
	"tradedesk/internal/logger"
	"tradedesk/internal/store"
	"tradedesk/internal/store/model"
)

// ledgerIntent 是一次券商成交需要落到本地账本的全部信息。
type ledgerIntent struct {
	kind     journal.Kind
	clientID string
	tokenID  int64
	side     domain.Side
	quantity int64
	price    decimal.Decimal
	orderID  string
	raw      json.RawMessage
}

func (i ledgerIntent) entry(reason string, at time.Time) journal.Entry {
	return journal.Entry{
		Kind:          i.kind,
		ClientID:      i.clientID,
		TokenID:       i.tokenID,
		Side:          string(i.side),
		Quantity:      i.quantity,
		Price:         i.price,
		BrokerOrderID: i.orderID,
		Raw:           i.raw,
		Reason:        reason,
		RecordedAt:    at,
	}
}

func intentFromEntry(e journal.Entry) (ledgerIntent, error) {
	side, err := domain.ParseSide(e.Side)
	if err != nil {
		return ledgerIntent{}, err
	}
	return ledgerIntent{
		kind:     e.Kind,
		clientID: e.ClientID,
		tokenID:  e.TokenID,
		side:     side,
		quantity: e.Quantity,
		price:    e.Price,
		orderID:  e.BrokerOrderID,
		raw:      e.Raw,
	}, nil
}

func executionSide(s domain.Side) model.ExecutionSide {
	if s == domain.SideSell {
		return model.ExecutionSell
	}
	return model.ExecutionBuy
}

// apply writes one intent inside a single transaction under the (client, token) lock.
// It reports false when an execution with the same broker order id is already recorded.
func (d *Desk) apply(ctx context.Context, in ledgerIntent) (bool, error) {
	unlock := d.locks.Lock(pairKey(in.clientID, in.tokenID))
	defer unlock()

	applied := false
	err := store.WithTx(ctx, d.store, func(uow store.UnitOfWork) error {
		exists, err := uow.Executions().ExistsByOrderID(ctx, in.orderID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		now := d.now()
		trade, err := uow.Trades().FindOpen(ctx, in.clientID, in.tokenID)
		if err != nil {
			return err
		}
		if in.kind == journal.KindExit {
			trade, err = closeTrade(ctx, uow, trade, in.price, now)
		} else {
			trade, err = applyEntry(ctx, uow, trade, in, now)
		}
		if err != nil {
			return err
		}
		exec := &model.Execution{
			ID:            uuid.NewString(),
			BrokerOrderID: in.orderID,
			ClientID:      in.clientID,
			Side:          executionSide(in.side),
			Quantity:      in.quantity,
			Price:         in.price,
			Timestamp:     now,
			Raw:           []byte(in.raw),
		}
		if trade != nil {
			exec.TradeID = &trade.ID
		}
		if err := uow.Executions().Insert(ctx, exec); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrLedgerWriteFailed, err)
	}
	return applied, nil
}

// applyEntry 处理普通下单：BUY 开仓或加仓（只加数量），SELL 减仓，减到零则关闭。
func applyEntry(ctx context.Context, uow store.UnitOfWork, trade *model.Trade, in ledgerIntent, now time.Time) (*model.Trade, error) {
	if in.side == domain.SideBuy {
		if trade == nil {
			trade = &model.Trade{
				ID:             uuid.NewString(),
				ClientID:       in.clientID,
				TokenID:        in.tokenID,
				Status:         model.TradeOpen,
				Quantity:       in.quantity,
				AvgEntryPrice:  in.price,
				EntryTimestamp: now,
			}
			return trade, uow.Trades().Create(ctx, trade)
		}
		// 入场价仍是 0 占位时取本次成交价
		if trade.AvgEntryPrice.IsZero() {
			trade.AvgEntryPrice = in.price
		}
		trade.Quantity += in.quantity
		return trade, uow.Trades().Save(ctx, trade)
	}

	// SELL without an open trade is recorded as an unattached execution.
	if trade == nil {
		return nil, nil
	}
	if trade.Quantity-in.quantity > 0 {
		trade.Quantity -= in.quantity
		return trade, uow.Trades().Save(ctx, trade)
	}
	return closeTrade(ctx, uow, trade, in.price, now)
}

// closeTrade keeps the last held quantity on the closed row.
func closeTrade(ctx context.Context, uow store.UnitOfWork, trade *model.Trade, price decimal.Decimal, now time.Time) (*model.Trade, error) {
	if trade == nil {
		return nil, nil
	}
	trade.Status = model.TradeClosed
	trade.ExitPrice = decimal.NewNullDecimal(price)
	trade.ExitTimestamp = &now
	return trade, uow.Trades().Save(ctx, trade)
}

// record applies the intent and falls back to the journal when the ledger write fails.
func (d *Desk) record(ctx context.Context, client *model.Client, token *model.Token, in ledgerIntent, message string) domain.Outcome {
	if _, err := d.apply(ctx, in); err != nil {
		return d.ledgerPending(client, token, in, err)
	}
	return domain.Outcome{
		BrokerOrderID: in.orderID,
		ClientID:      client.ID,
		Status:        domain.StatusSuccess,
		Message:       message,
	}
}

func (d *Desk) ledgerPending(client *model.Client, token *model.Token, in ledgerIntent, cause error) domain.Outcome {
	now := d.now()
	log := logger.With("client", client.ClientCode, "symbol", token.Symbol, "order_id", in.orderID)
	log.Errorf("broker accepted order but ledger write failed: %v", cause)
	if err := d.journal.Append(in.entry(cause.Error(), now)); err != nil {
		log.Errorf("journal append failed, manual reconciliation required: %v", err)
	}
	msg := notifier.LedgerPending(client.ClientCode, token.Symbol, string(in.side), in.quantity, in.orderID, cause, now)
	if err := d.notifier.SendText(msg.RenderMarkdown()); err != nil {
		log.Warnf("ledger pending alert not delivered: %v", err)
	}
	return domain.Outcome{
		BrokerOrderID: in.orderID,
		ClientID:      client.ID,
		Status:        domain.StatusLedgerPending,
		Message:       fmt.Sprintf("Order %s placed with broker; ledger update pending", in.orderID),
	}
}

// recordRejection stores an unattached execution when the broker assigned an order id before
// failing, then builds the ERROR outcome.
func (d *Desk) recordRejection(ctx context.Context, client *model.Client, side domain.Side, qty int64, cause error) domain.Outcome {
	d.sessions.Observe(client.ID, cause)
	orderID := domain.RemoteOrderID(cause)
	out := domain.ErrorOutcome(client.ID, failureMessage(cause))
	if orderID == "" {
		return out
	}
	out.BrokerOrderID = orderID
	exec := &model.Execution{
		ID:            uuid.NewString(),
		BrokerOrderID: orderID,
		ClientID:      client.ID,
		Side:          executionSide(side),
		Quantity:      qty,
		Price:         decimal.Zero,
		Timestamp:     d.now(),
	}
	if err := d.store.Executions().Insert(ctx, exec); err != nil {
		logger.With("client", client.ClientCode, "order_id", orderID).Warnf("record rejected execution: %v", err)
	}
	return out
}

func failureMessage(err error) string {
	if domain.IsRemote(err) {
		return "API Error: " + domain.RemoteDetail(err)
	}
	return "An unexpected error occurred: " + err.Error()
}

// localOrderID stands in for a missing broker order id so the execution row stays unique.
func localOrderID(id string) string {
	if strings.TrimSpace(id) != "" {
		return id
	}
	return "LOCAL-" + uuid.NewString()
}
