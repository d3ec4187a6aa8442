package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tradedesk/internal/store/model"
)

type executionRepository struct {
	db *gorm.DB
}

func (r *executionRepository) Insert(ctx context.Context, e *model.Execution) error {
	if e == nil || e.BrokerOrderID == "" {
		return errors.New("execution requires a broker order id")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return uniqueViolation(r.db.WithContext(ctx).Create(e).Error)
}

func (r *executionRepository) ExistsByOrderID(ctx context.Context, orderID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Execution{}).Where("broker_order_id = ?", orderID).Count(&n).Error
	return n > 0, err
}

func (r *executionRepository) ListByTrade(ctx context.Context, tradeID string) ([]model.Execution, error) {
	var out []model.Execution
	if err := r.db.WithContext(ctx).
		Where("trade_id = ?", tradeID).
		Order("timestamp ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
