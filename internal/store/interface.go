package store

import (
	"context"

	"tradedesk/internal/store/model"
)

// Repositories groups the ledger repositories. Finders return (nil, nil) when no row matches.
type Repositories interface {
	Clients() ClientRepository
	Tokens() TokenRepository
	Trades() TradeRepository
	Executions() ExecutionRepository
}

// UnitOfWork defines a transaction scope.
type UnitOfWork interface {
	Repositories
	Commit() error
	Rollback() error
}

// Store is the entry point for ledger access. Repositories obtained from Store directly run
// outside any transaction.
type Store interface {
	Repositories
	Begin(ctx context.Context) (UnitOfWork, error)
	Close() error
}

type ClientRepository interface {
	// Create fails with domain.ErrAlreadyExists on a duplicate client code.
	Create(ctx context.Context, client *model.Client) error
	FindByID(ctx context.Context, id string) (*model.Client, error)
	FindByCode(ctx context.Context, code string) (*model.Client, error)
	List(ctx context.Context) ([]model.Client, error)
}

type TokenRepository interface {
	Find(ctx context.Context, symbol, exchange string) (*model.Token, error)
	FindByID(ctx context.Context, id int64) (*model.Token, error)
	// Ensure resolves (symbol, exchange) or inserts it; the unique index breaks ties.
	Ensure(ctx context.Context, token *model.Token) (*model.Token, bool, error)
	Search(ctx context.Context, query string, limit int) ([]model.Token, error)
}

type TradeRepository interface {
	FindOpen(ctx context.Context, clientID string, tokenID int64) (*model.Trade, error)
	Create(ctx context.Context, trade *model.Trade) error
	Save(ctx context.Context, trade *model.Trade) error
	ListByClient(ctx context.Context, clientID string) ([]model.Trade, error)
	OpenPositions(ctx context.Context) ([]model.OpenPosition, error)
	Holders(ctx context.Context, tokenID int64) ([]model.Holder, error)
}

type ExecutionRepository interface {
	// Insert fails with domain.ErrAlreadyExists when the broker order id is already recorded.
	Insert(ctx context.Context, exec *model.Execution) error
	ExistsByOrderID(ctx context.Context, orderID string) (bool, error)
	ListByTrade(ctx context.Context, tradeID string) ([]model.Execution, error)
}

// WithTx runs fn inside a UnitOfWork, committing on nil and rolling back otherwise.
func WithTx(ctx context.Context, s Store, fn func(uow UnitOfWork) error) (err error) {
	uow, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = uow.Rollback()
			panic(p)
		}
	}()
	if err = fn(uow); err != nil {
		_ = uow.Rollback()
		return err
	}
	return uow.Commit()
}
