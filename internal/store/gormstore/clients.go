package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tradedesk/internal/domain"
	"tradedesk/internal/store/model"
)

type clientRepository struct {
	db *gorm.DB
}

func (r *clientRepository) Create(ctx context.Context, c *model.Client) error {
	if c == nil {
		return errors.New("client cannot be nil")
	}
	c.ClientCode = strings.TrimSpace(c.ClientCode)
	existing, err := r.FindByCode(ctx, c.ClientCode)
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.ErrAlreadyExists
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return uniqueViolation(r.db.WithContext(ctx).Create(c).Error)
}

func (r *clientRepository) FindByID(ctx context.Context, id string) (*model.Client, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *clientRepository) FindByCode(ctx context.Context, code string) (*model.Client, error) {
	return r.first(ctx, "client_code = ?", code)
}

func (r *clientRepository) first(ctx context.Context, query string, arg any) (*model.Client, error) {
	var c model.Client
	err := r.db.WithContext(ctx).Where(query, arg).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *clientRepository) List(ctx context.Context) ([]model.Client, error) {
	var out []model.Client
	if err := r.db.WithContext(ctx).Order("created_at ASC, client_code ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
