package gormstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"tradedesk/internal/config"
	"tradedesk/internal/domain"
	"tradedesk/internal/store"
	"tradedesk/internal/store/model"
)

// openTradeIndex 保证同一 (client, token) 至多一条 open trade。sqlite 与 postgres 均支持部分索引。
const openTradeIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_open_pair ON trades (client_id, token_id) WHERE status = 'open'`

// GormStore implements store.Store on gorm, backed by SQLite or PostgreSQL.
type GormStore struct {
	db *gorm.DB
}

var _ store.Store = (*GormStore)(nil)

// Open picks the dialect from cfg.Driver.
func Open(cfg config.DatabaseConfig) (*GormStore, error) {
	if cfg.IsPostgres() {
		return OpenPostgres(cfg)
	}
	return OpenSQLite(cfg.Path)
}

// OpenSQLite opens path with the pure-Go modernc driver in WAL mode.
func OpenSQLite(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), gormConfig())
	if err != nil {
		return nil, err
	}
	// SQLite 只有一个写者；单连接避免 SQLITE_BUSY 在事务间扩散。
	return newGormStore(db, 1)
}

func OpenPostgres(cfg config.DatabaseConfig) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(postgresDSN(cfg)), gormConfig())
	if err != nil {
		return nil, err
	}
	return newGormStore(db, cfg.MaxOpenConns)
}

// NewFromDB wraps an existing connection and migrates the schema.
func NewFromDB(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	return newGormStore(db, 0)
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	}
}

func postgresDSN(cfg config.DatabaseConfig) string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.Name,
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}
	query := url.Values{}
	query.Set("sslmode", cfg.SSLMode)
	for key, value := range cfg.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()
	return u.String()
}

func newGormStore(db *gorm.DB, maxOpen int) (*GormStore, error) {
	models := []interface{}{
		&model.Client{},
		&model.Token{},
		&model.Trade{},
		&model.Execution{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	if err := db.Exec(openTradeIndex).Error; err != nil {
		return nil, fmt.Errorf("create open trade index: %w", err)
	}
	if maxOpen > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(maxOpen)
		sqlDB.SetMaxIdleConns(maxOpen)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Begin(ctx context.Context) (store.UnitOfWork, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &gormUnitOfWork{tx: tx}, nil
}

func (s *GormStore) Clients() store.ClientRepository       { return &clientRepository{db: s.db} }
func (s *GormStore) Tokens() store.TokenRepository         { return &tokenRepository{db: s.db} }
func (s *GormStore) Trades() store.TradeRepository         { return &tradeRepository{db: s.db} }
func (s *GormStore) Executions() store.ExecutionRepository { return &executionRepository{db: s.db} }

// DB exposes the underlying *gorm.DB, mainly for tests and diagnostics.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormUnitOfWork struct {
	tx *gorm.DB
}

func (u *gormUnitOfWork) Clients() store.ClientRepository       { return &clientRepository{db: u.tx} }
func (u *gormUnitOfWork) Tokens() store.TokenRepository         { return &tokenRepository{db: u.tx} }
func (u *gormUnitOfWork) Trades() store.TradeRepository         { return &tradeRepository{db: u.tx} }
func (u *gormUnitOfWork) Executions() store.ExecutionRepository { return &executionRepository{db: u.tx} }

func (u *gormUnitOfWork) Commit() error {
	return u.tx.Commit().Error
}

func (u *gormUnitOfWork) Rollback() error {
	return u.tx.Rollback().Error
}

// uniqueViolation maps driver-specific duplicate-key errors onto domain.ErrAlreadyExists.
func uniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") {
		return fmt.Errorf("%w: %v", domain.ErrAlreadyExists, err)
	}
	return err
}
