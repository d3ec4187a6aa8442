package desk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"tradedesk/internal/domain"
	"tradedesk/internal/gateway/broker"
	"tradedesk/internal/logger"
	"tradedesk/internal/store/model"
	"tradedesk/internal/vault"
)

// NewClient is the registration payload; credentials arrive in plaintext and are encrypted here.
type NewClient struct {
	ClientCode string `json:"client_id"`
	Name       string `json:"name"`
	APIKey     string `json:"api_key"`
	APISecret  string `json:"api_secret"`
	Password   string `json:"password"`
	TwoFA      string `json:"two_fa"`
	TOTP       string `json:"totp"`
}

func (n *NewClient) normalize() {
	n.ClientCode = strings.TrimSpace(n.ClientCode)
	n.Name = strings.TrimSpace(n.Name)
	n.APIKey = strings.TrimSpace(n.APIKey)
	n.APISecret = strings.TrimSpace(n.APISecret)
}

func (n NewClient) validate() error {
	if n.ClientCode == "" || n.Name == "" {
		return fmt.Errorf("%w: client_id and name are required", domain.ErrInvalidRequest)
	}
	if n.APIKey == "" || n.APISecret == "" {
		return fmt.Errorf("%w: api_key and api_secret are required", domain.ErrInvalidRequest)
	}
	return nil
}

// PortfolioView is the broker-side picture of one client.
type PortfolioView struct {
	Positions []domain.Position `json:"positions"`
	Margin    json.RawMessage   `json:"margin_summary"`
}

// RegisterClient 加密凭据后登记客户；登录口令写入密钥库而不是账本。
func (d *Desk) RegisterClient(ctx context.Context, in NewClient) (*model.Client, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}
	existing, err := d.store.Clients().FindByCode(ctx, in.ClientCode)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: client %s", domain.ErrAlreadyExists, in.ClientCode)
	}
	keyCT, err := d.cipher.EncryptString(in.APIKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt api key: %w", err)
	}
	secretCT, err := d.cipher.EncryptString(in.APISecret)
	if err != nil {
		return nil, fmt.Errorf("encrypt api secret: %w", err)
	}
	client := &model.Client{
		ID:                 uuid.NewString(),
		ClientCode:         in.ClientCode,
		Name:               in.Name,
		APIKeyEncrypted:    keyCT,
		APISecretEncrypted: secretCT,
	}
	if err := d.store.Clients().Create(ctx, client); err != nil {
		return nil, err
	}
	// 登录口令仅在建档成功后写入
	if in.Password != "" || in.TwoFA != "" || in.TOTP != "" {
		if err := d.secrets.PutLogin(in.ClientCode, vault.LoginSecrets{Password: in.Password, TwoFA: in.TwoFA, TOTP: in.TOTP}); err != nil {
			return nil, fmt.Errorf("store login secrets: %w", err)
		}
	}
	logger.With("client", client.ClientCode).Infof("client registered")
	return client, nil
}

func (d *Desk) ListClients(ctx context.Context) ([]model.Client, error) {
	return d.store.Clients().List(ctx)
}

func (d *Desk) GetClient(ctx context.Context, id string) (*model.Client, error) {
	client, err := d.store.Clients().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("%w: client %s", domain.ErrNotFound, id)
	}
	return client, nil
}

// session resolves the client and its broker session, evicting the session on auth failure.
func (d *Desk) session(ctx context.Context, id string) (*model.Client, broker.Session, error) {
	client, err := d.GetClient(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	sess, err := d.sessions.Get(ctx, client)
	if err != nil {
		d.sessions.Observe(client.ID, err)
		return nil, nil, err
	}
	return client, sess, nil
}

func (d *Desk) Portfolio(ctx context.Context, id string) (PortfolioView, error) {
	client, sess, err := d.session(ctx, id)
	if err != nil {
		return PortfolioView{}, err
	}
	positions, err := sess.GetPositions(ctx)
	if err != nil {
		d.sessions.Observe(client.ID, err)
		return PortfolioView{}, err
	}
	margin, err := sess.GetMargin(ctx)
	if err != nil {
		d.sessions.Observe(client.ID, err)
		return PortfolioView{}, err
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	return PortfolioView{Positions: positions, Margin: margin}, nil
}

// ActiveTrades returns the client's broker positions with a non-zero net quantity.
func (d *Desk) ActiveTrades(ctx context.Context, id string) ([]domain.ActivePosition, error) {
	client, sess, err := d.session(ctx, id)
	if err != nil {
		return nil, err
	}
	positions, err := sess.GetPositions(ctx)
	if err != nil {
		d.sessions.Observe(client.ID, err)
		return nil, err
	}
	return ActivePositions(positions), nil
}

func (d *Desk) OrderBook(ctx context.Context, id string) ([]broker.BookOrder, error) {
	client, sess, err := d.session(ctx, id)
	if err != nil {
		return nil, err
	}
	book, err := sess.GetOrderBook(ctx)
	if err != nil {
		d.sessions.Observe(client.ID, err)
		return nil, err
	}
	if book == nil {
		book = []broker.BookOrder{}
	}
	return book, nil
}

func (d *Desk) CancelOrder(ctx context.Context, id, orderID string) error {
	if strings.TrimSpace(orderID) == "" {
		return fmt.Errorf("%w: order id is required", domain.ErrInvalidRequest)
	}
	client, sess, err := d.session(ctx, id)
	if err != nil {
		return err
	}
	if err := sess.CancelOrder(ctx, orderID); err != nil {
		d.sessions.Observe(client.ID, err)
		return err
	}
	logger.With("client", client.ClientCode, "order_id", orderID).Infof("order cancelled")
	return nil
}

// Ledger lists the locally recorded trades of one client, newest first.
func (d *Desk) Ledger(ctx context.Context, id string) ([]model.Trade, error) {
	if _, err := d.GetClient(ctx, id); err != nil {
		return nil, err
	}
	return d.store.Trades().ListByClient(ctx, id)
}

// TokenHolders lists the clients holding an open ledger trade on the token.
func (d *Desk) TokenHolders(ctx context.Context, symbol, exchange string) ([]model.Holder, error) {
	symbol = strings.TrimSpace(symbol)
	exchange = strings.ToUpper(strings.TrimSpace(exchange))
	token, err := d.store.Tokens().Find(ctx, symbol, exchange)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, fmt.Errorf("%w: token %s on %s", domain.ErrNotFound, symbol, exchange)
	}
	holders, err := d.store.Trades().Holders(ctx, token.ID)
	if err != nil {
		return nil, err
	}
	if holders == nil {
		holders = []model.Holder{}
	}
	return holders, nil
}

func (d *Desk) ListTokens(ctx context.Context, query string, limit int) ([]model.Token, error) {
	return d.store.Tokens().Search(ctx, strings.TrimSpace(query), limit)
}
