package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

type ExecutionSide string

const (
	ExecutionBuy  ExecutionSide = "buy"
	ExecutionSell ExecutionSide = "sell"
)

// Client 是一个券商账户持有人，凭据以密文保存。
type Client struct {
	ID                 string    `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	ClientCode         string    `gorm:"column:client_code;uniqueIndex;not null" json:"client_id"`
	Name               string    `gorm:"column:name;not null" json:"name"`
	APIKeyEncrypted    []byte    `gorm:"column:api_key_encrypted;not null" json:"-"`
	APISecretEncrypted []byte    `gorm:"column:api_secret_encrypted;not null" json:"-"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Client) TableName() string { return "clients" }

type Token struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Symbol      string `gorm:"column:symbol;not null;uniqueIndex:idx_tokens_symbol_exchange,priority:1" json:"symbol"`
	Exchange    string `gorm:"column:exchange;not null;uniqueIndex:idx_tokens_symbol_exchange,priority:2" json:"exchange"`
	Description string `gorm:"column:description" json:"description"`
}

func (Token) TableName() string { return "tokens" }

// Trade 本地账本对某客户某标的持仓的汇总；同一 (client, token) 至多一条 open。
type Trade struct {
	ID             string              `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	ClientID       string              `gorm:"column:client_id;not null;index" json:"client_id"`
	TokenID        int64               `gorm:"column:token_id;not null;index" json:"token_id"`
	Status         TradeStatus         `gorm:"column:status;not null;type:varchar(8)" json:"status"`
	Quantity       int64               `gorm:"column:quantity;not null" json:"quantity"`
	AvgEntryPrice  decimal.Decimal     `gorm:"column:avg_entry_price;type:numeric(18,4);not null" json:"avg_entry_price"`
	EntryTimestamp time.Time           `gorm:"column:entry_timestamp;not null" json:"entry_timestamp"`
	ExitPrice      decimal.NullDecimal `gorm:"column:exit_price;type:numeric(18,4)" json:"exit_price"`
	ExitTimestamp  *time.Time          `gorm:"column:exit_timestamp" json:"exit_timestamp"`
}

func (Trade) TableName() string { return "trades" }

func (t Trade) IsOpen() bool { return t.Status == TradeOpen }

// Execution is append-only. TradeID is nil when no trade could be associated.
type Execution struct {
	ID            string          `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	BrokerOrderID string          `gorm:"column:broker_order_id;uniqueIndex;not null" json:"mofsl_order_id"`
	TradeID       *string         `gorm:"column:trade_id;index;type:varchar(36)" json:"trade_id"`
	ClientID      string          `gorm:"column:client_id;index" json:"client_id"`
	Side          ExecutionSide   `gorm:"column:side;not null;type:varchar(4)" json:"type"`
	Quantity      int64           `gorm:"column:quantity;not null" json:"quantity"`
	Price         decimal.Decimal `gorm:"column:price;type:numeric(18,4);not null" json:"price"`
	Timestamp     time.Time       `gorm:"column:timestamp;not null" json:"timestamp"`
	Raw           datatypes.JSON  `gorm:"column:raw" json:"-"`
}

func (Execution) TableName() string { return "executions" }

// Holder is one row of the token-holders view.
type Holder struct {
	ClientID     string          `gorm:"column:client_id" json:"client_id"`
	ClientName   string          `gorm:"column:client_name" json:"client_name"`
	QuantityHeld int64           `gorm:"column:quantity_held" json:"quantity_held"`
	AvgPrice     decimal.Decimal `gorm:"column:avg_price" json:"avg_price"`
}

// OpenPosition is an open trade joined with its token symbol.
type OpenPosition struct {
	TradeID       string          `gorm:"column:trade_id"`
	ClientID      string          `gorm:"column:client_id"`
	TokenID       int64           `gorm:"column:token_id"`
	Symbol        string          `gorm:"column:symbol"`
	Quantity      int64           `gorm:"column:quantity"`
	AvgEntryPrice decimal.Decimal `gorm:"column:avg_entry_price"`
}
