package gormstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tradedesk/internal/store/model"
)

type tradeRepository struct {
	db *gorm.DB
}

func (r *tradeRepository) FindOpen(ctx context.Context, clientID string, tokenID int64) (*model.Trade, error) {
	var t model.Trade
	err := r.db.WithContext(ctx).
		Where("client_id = ? AND token_id = ? AND status = ?", clientID, tokenID, model.TradeOpen).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a trade; a second open trade for the same pair violates idx_trades_open_pair.
func (r *tradeRepository) Create(ctx context.Context, t *model.Trade) error {
	if t == nil {
		return errors.New("trade cannot be nil")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return uniqueViolation(r.db.WithContext(ctx).Create(t).Error)
}

func (r *tradeRepository) Save(ctx context.Context, t *model.Trade) error {
	if t == nil || t.ID == "" {
		return errors.New("trade must be persisted before save")
	}
	return uniqueViolation(r.db.WithContext(ctx).Save(t).Error)
}

func (r *tradeRepository) ListByClient(ctx context.Context, clientID string) ([]model.Trade, error) {
	var out []model.Trade
	if err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("entry_timestamp DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *tradeRepository) OpenPositions(ctx context.Context) ([]model.OpenPosition, error) {
	var out []model.OpenPosition
	err := r.db.WithContext(ctx).
		Table("trades AS t").
		Select("t.id AS trade_id, t.client_id, t.token_id, k.symbol, t.quantity, t.avg_entry_price").
		Joins("JOIN tokens AS k ON k.id = t.token_id").
		Where("t.status = ?", model.TradeOpen).
		Order("t.client_id, k.symbol").
		Scan(&out).Error
	return out, err
}

func (r *tradeRepository) Holders(ctx context.Context, tokenID int64) ([]model.Holder, error) {
	var out []model.Holder
	err := r.db.WithContext(ctx).
		Table("trades AS t").
		Select("c.id AS client_id, c.name AS client_name, t.quantity AS quantity_held, t.avg_entry_price AS avg_price").
		Joins("JOIN clients AS c ON c.id = t.client_id").
		Where("t.token_id = ? AND t.status = ?", tokenID, model.TradeOpen).
		Order("c.name").
		Scan(&out).Error
	return out, err
}
