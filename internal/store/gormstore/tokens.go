package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradedesk/internal/store/model"
)

type tokenRepository struct {
	db *gorm.DB
}

func (r *tokenRepository) Find(ctx context.Context, symbol, exchange string) (*model.Token, error) {
	var t model.Token
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND exchange = ?", symbol, exchange).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tokenRepository) FindByID(ctx context.Context, id int64) (*model.Token, error) {
	var t model.Token
	err := r.db.WithContext(ctx).First(&t, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Ensure returns the stored token and whether this call inserted it.
func (r *tokenRepository) Ensure(ctx context.Context, t *model.Token) (*model.Token, bool, error) {
	if t == nil || strings.TrimSpace(t.Symbol) == "" || strings.TrimSpace(t.Exchange) == "" {
		return nil, false, errors.New("token symbol and exchange are required")
	}
	existing, err := r.Find(ctx, t.Symbol, t.Exchange)
	if err != nil || existing != nil {
		return existing, false, err
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(t)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return t, true, nil
	}
	// 并发插入输给了另一方，重新读取
	existing, err = r.Find(ctx, t.Symbol, t.Exchange)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("token %s/%s vanished after conflict", t.Symbol, t.Exchange)
	}
	return existing, false, nil
}

// Search does a case-insensitive symbol prefix match.
func (r *tokenRepository) Search(ctx context.Context, query string, limit int) ([]model.Token, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("symbol ASC, exchange ASC").Limit(limit)
	if query = strings.TrimSpace(query); query != "" {
		q = q.Where("UPPER(symbol) LIKE ?", strings.ToUpper(query)+"%")
	}
	var out []model.Token
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
