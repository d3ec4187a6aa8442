package apihttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"tradedesk/internal/desk"
	"tradedesk/internal/domain"
	"tradedesk/internal/gateway/broker"
	"tradedesk/internal/logger"
	"tradedesk/internal/store/model"
)

// DeskService is what the HTTP layer needs from the desk.
type DeskService interface {
	ExecuteBatch(ctx context.Context, req domain.BatchOrderRequest) ([]domain.Outcome, error)
	ExitInstrument(ctx context.Context, req domain.ExitRequest) ([]domain.Outcome, error)
	RegisterClient(ctx context.Context, in desk.NewClient) (*model.Client, error)
	ListClients(ctx context.Context) ([]model.Client, error)
	GetClient(ctx context.Context, id string) (*model.Client, error)
	Portfolio(ctx context.Context, id string) (desk.PortfolioView, error)
	ActiveTrades(ctx context.Context, id string) ([]domain.ActivePosition, error)
	OrderBook(ctx context.Context, id string) ([]broker.BookOrder, error)
	CancelOrder(ctx context.Context, id, orderID string) error
	Ledger(ctx context.Context, id string) ([]model.Trade, error)
	TokenHolders(ctx context.Context, symbol, exchange string) ([]model.Holder, error)
	ListTokens(ctx context.Context, query string, limit int) ([]model.Token, error)
}

// Router 挂载 /api/v1 下的业务接口。
type Router struct {
	desk    DeskService
	schemas payloadSchemas
}

func NewRouter(d DeskService, schemas payloadSchemas) *Router {
	return &Router{desk: d, schemas: schemas}
}

// Register 将路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/clients", r.handleCreateClient)
	group.GET("/clients", r.handleListClients)
	group.GET("/clients/:id", r.handleGetClient)
	group.GET("/clients/:id/portfolio", r.handlePortfolio)
	group.GET("/clients/:id/active-trades", r.handleActiveTrades)
	group.GET("/clients/:id/orders", r.handleOrderBook)
	group.DELETE("/clients/:id/orders/:orderId", r.handleCancelOrder)
	group.GET("/clients/:id/ledger", r.handleLedger)

	group.POST("/orders/execute-all", r.handleExecuteAll)
	group.POST("/orders/exit-token", r.handleExitToken)

	group.GET("/tokens", r.handleListTokens)
	group.GET("/tokens/:symbol/holders", r.handleTokenHolders)
}

// respondError maps the domain error families to HTTP status codes.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrAlreadyExists):
		status = http.StatusBadRequest
	case domain.IsRemote(err):
		status = http.StatusBadGateway
	}
	detail := err.Error()
	if domain.IsRemote(err) {
		detail = "API Error: " + domain.RemoteDetail(err)
	}
	if status == http.StatusInternalServerError {
		logger.Errorf("[api] %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"detail": detail})
}

func (r *Router) bind(c *gin.Context, schema string, dst any) bool {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, err)
		return false
	}
	if err := r.schemas.decode(schema, body, dst); err != nil {
		respondError(c, err)
		return false
	}
	return true
}

func (r *Router) handleCreateClient(c *gin.Context) {
	var in desk.NewClient
	if !r.bind(c, schemaClientCreate, &in) {
		return
	}
	client, err := r.desk.RegisterClient(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, client)
}

func (r *Router) handleListClients(c *gin.Context) {
	clients, err := r.desk.ListClients(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if clients == nil {
		clients = []model.Client{}
	}
	c.JSON(http.StatusOK, clients)
}

func (r *Router) handleGetClient(c *gin.Context) {
	client, err := r.desk.GetClient(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

func (r *Router) handlePortfolio(c *gin.Context) {
	view, err := r.desk.Portfolio(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (r *Router) handleActiveTrades(c *gin.Context) {
	active, err := r.desk.ActiveTrades(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, active)
}

func (r *Router) handleOrderBook(c *gin.Context) {
	book, err := r.desk.OrderBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (r *Router) handleCancelOrder(c *gin.Context) {
	orderID := c.Param("orderId")
	if err := r.desk.CancelOrder(c.Request.Context(), c.Param("id"), orderID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mofsl_order_id": orderID, "status": "CANCELLED"})
}

func (r *Router) handleLedger(c *gin.Context) {
	trades, err := r.desk.Ledger(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	c.JSON(http.StatusOK, trades)
}

// handleExecuteAll 校验通过后总是 200，单个客户的失败体现在各自的 outcome 里。
func (r *Router) handleExecuteAll(c *gin.Context) {
	var req domain.BatchOrderRequest
	if !r.bind(c, schemaExecuteAll, &req) {
		return
	}
	outcomes, err := r.desk.ExecuteBatch(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcomes)
}

func (r *Router) handleExitToken(c *gin.Context) {
	var req domain.ExitRequest
	if !r.bind(c, schemaExitToken, &req) {
		return
	}
	outcomes, err := r.desk.ExitInstrument(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcomes)
}

func (r *Router) handleListTokens(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	tokens, err := r.desk.ListTokens(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if tokens == nil {
		tokens = []model.Token{}
	}
	c.JSON(http.StatusOK, tokens)
}

func (r *Router) handleTokenHolders(c *gin.Context) {
	exchange := strings.TrimSpace(c.Query("token_exchange"))
	if exchange == "" {
		respondError(c, fmt.Errorf("%w: token_exchange is required", domain.ErrInvalidRequest))
		return
	}
	holders, err := r.desk.TokenHolders(c.Request.Context(), c.Param("symbol"), exchange)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, holders)
}
