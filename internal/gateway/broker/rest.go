package broker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"tradedesk/internal/domain"
	"tradedesk/internal/logger"
	"tradedesk/internal/pkg/circuit"
)

const (
	apiVersion = "V.1.1.0"

	pathLogin       = "/rest/login/v4/authdirectapi"
	pathLogout      = "/rest/login/v1/logout"
	pathOrderBook   = "/rest/book/v1/getorderbook"
	pathPosition    = "/rest/book/v1/getposition"
	pathPlaceOrder  = "/rest/trans/v1/placeorder"
	pathCancelOrder = "/rest/trans/v1/cancelorder"
	pathMargin      = "/rest/report/v1/getreportmargin"
)

// RESTOptions configures the MOFSL-style REST connector.
type RESTOptions struct {
	BaseURL          string
	Timeout          time.Duration
	SourceID         string
	VendorInfo       string
	RatePerSecond    float64
	Burst            int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// RESTConnector talks to the broker over HTTPS. One limiter and one breaker guard all sessions.
type RESTConnector struct {
	client  *resty.Client
	limiter *rate.Limiter
	breaker *circuit.Breaker
	opts    RESTOptions
	device  map[string]string
}

func NewRESTConnector(opts RESTOptions) *RESTConnector {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "MOSL/"+apiVersion)
	return &RESTConnector{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		breaker: circuit.New("broker-rest", opts.BreakerThreshold, opts.BreakerCooldown),
		opts:    opts,
		device:  deviceHeaders(),
	}
}

// deviceHeaders 券商要求的终端信息头，进程内固定。
func deviceHeaders() map[string]string {
	return map[string]string{
		"macaddress":     "00:00:00:00:00:00",
		"clientlocalip":  "127.0.0.1",
		"clientpublicip": "127.0.0.1",
		"osname":         "Linux",
		"osversion":      "5.15",
		"installedappid": uuid.NewString(),
		"devicemodel":    "server",
		"manufacturer":   "generic",
		"productname":    "tradedesk",
		"productversion": "1.0",
		"browsername":    "go-resty",
		"browserversion": "2",
	}
}

// Connect logs in. The password sent is sha256_hex(password + apiKey).
func (c *RESTConnector) Connect(ctx context.Context, creds Credentials) (Session, error) {
	if strings.TrimSpace(creds.ClientCode) == "" || strings.TrimSpace(creds.APIKey) == "" {
		return nil, domain.NewRemoteError(domain.ErrAuthenticationFailed, "login", "client code and api key are required")
	}
	sum := sha256.Sum256([]byte(creds.Password + creds.APIKey))
	payload := map[string]any{
		"userid":   creds.ClientCode,
		"password": hex.EncodeToString(sum[:]),
		"2FA":      creds.TwoFA,
		"totp":     creds.TOTP,
	}
	s := &restSession{conn: c, creds: creds}
	body, err := s.call(ctx, "login", pathLogin, payload)
	if err != nil {
		if errors.Is(err, domain.ErrRemoteRejected) {
			return nil, domain.NewRemoteError(domain.ErrAuthenticationFailed, "login", domain.RemoteDetail(err))
		}
		return nil, errors.Wrapf(err, "login %s", creds.ClientCode)
	}
	token := strings.TrimSpace(body.Get("AuthToken").String())
	if body.Get("status").String() != "SUCCESS" || token == "" {
		msg := body.Get("message").String()
		if msg == "" {
			msg = "login failed: no AuthToken returned"
		}
		return nil, domain.NewRemoteError(domain.ErrAuthenticationFailed, "login", msg)
	}
	s.authToken = token
	logger.With("client", creds.ClientCode).Debugf("broker session established")
	return s, nil
}

type restSession struct {
	conn      *RESTConnector
	creds     Credentials
	authToken string
}

func (s *restSession) ClientCode() string { return s.creds.ClientCode }

func (s *restSession) PlaceOrder(ctx context.Context, d OrderDetails) (OrderResult, error) {
	payload := map[string]any{
		"clientcode":  s.creds.ClientCode,
		"symbol":      d.Symbol,
		"exchange":    d.Exchange,
		"quantity":    d.Quantity,
		"type":        d.OrderType,
		"side":        string(d.Side),
		"producttype": d.ProductType,
	}
	body, err := s.call(ctx, "place order", pathPlaceOrder, payload)
	if err != nil {
		return OrderResult{}, err
	}
	res := OrderResult{
		Status:  body.Get("status").String(),
		OrderID: firstString(body, "data.orderid", "data.uniqueorderid"),
		Message: body.Get("message").String(),
		Price:   firstDecimal(body, "data.averageprice", "data.price"),
		Raw:     json.RawMessage(body.Raw),
	}
	if !res.Succeeded() {
		msg := res.Message
		if msg == "" {
			msg = "Order placement failed"
		}
		re := domain.NewRemoteError(domain.ErrRemoteRejected, "place order", msg)
		re.OrderID = res.OrderID
		return res, re
	}
	return res, nil
}

func (s *restSession) GetPositions(ctx context.Context) ([]domain.Position, error) {
	body, err := s.call(ctx, "get positions", pathPosition, map[string]any{"clientcode": s.creds.ClientCode})
	if err != nil {
		return nil, err
	}
	data := body.Get("data")
	if data.Exists() && !data.IsArray() && data.Type != gjson.Null {
		return nil, domain.NewRemoteError(domain.ErrDecodeFailed, "get positions", "data is not an array")
	}
	var out []domain.Position
	data.ForEach(func(_, item gjson.Result) bool {
		out = append(out, domain.Position{
			Symbol:       item.Get("symbol").String(),
			BuyQuantity:  item.Get("buyquantity").Int(),
			SellQuantity: item.Get("sellquantity").Int(),
			BuyAmount:    decimalOf(item.Get("buyamount")),
			SellAmount:   decimalOf(item.Get("sellamount")),
			LTP:          decimalOf(item.Get("LTP")),
		})
		return true
	})
	return out, nil
}

func (s *restSession) GetMargin(ctx context.Context) (json.RawMessage, error) {
	body, err := s.call(ctx, "get margin", pathMargin, map[string]any{"clientcode": s.creds.ClientCode})
	if err != nil {
		return nil, err
	}
	data := body.Get("data")
	if !data.Exists() {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(data.Raw), nil
}

func (s *restSession) GetOrderBook(ctx context.Context) ([]BookOrder, error) {
	body, err := s.call(ctx, "get order book", pathOrderBook, map[string]any{"clientcode": s.creds.ClientCode})
	if err != nil {
		return nil, err
	}
	var out []BookOrder
	body.Get("data").ForEach(func(_, item gjson.Result) bool {
		out = append(out, BookOrder{
			OrderID:  item.Get("uniqueorderid").String(),
			Symbol:   item.Get("symbol").String(),
			Side:     item.Get("buyorsell").String(),
			Quantity: item.Get("orderqty").Int(),
			Price:    decimalOf(item.Get("price")),
			Status:   item.Get("orderstatus").String(),
		})
		return true
	})
	return out, nil
}

func (s *restSession) CancelOrder(ctx context.Context, orderID string) error {
	_, err := s.call(ctx, "cancel order", pathCancelOrder, map[string]any{
		"clientcode":    s.creds.ClientCode,
		"uniqueorderid": orderID,
	})
	return err
}

func (s *restSession) Logout(ctx context.Context) error {
	_, err := s.call(ctx, "logout", pathLogout, map[string]any{"userid": s.creds.ClientCode})
	return err
}

// call performs one guarded round trip and maps failures onto the domain taxonomy.
func (s *restSession) call(ctx context.Context, op, path string, payload any) (gjson.Result, error) {
	c := s.conn
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, domain.NewRemoteError(domain.ErrRemoteUnavailable, op, err.Error())
	}
	var result gjson.Result
	err := c.breaker.Do(func() error {
		var rerr error
		result, rerr = s.roundTrip(ctx, op, path, payload)
		return rerr
	}, func(err error) bool {
		return errors.Is(err, domain.ErrRemoteUnavailable)
	})
	if errors.Is(err, circuit.ErrOpen) {
		return gjson.Result{}, domain.NewRemoteError(domain.ErrRemoteUnavailable, op, "circuit open")
	}
	return result, err
}

func (s *restSession) roundTrip(ctx context.Context, op, path string, payload any) (gjson.Result, error) {
	req := s.conn.client.R().
		SetContext(ctx).
		SetHeaders(s.conn.device).
		SetHeader("Authorization", s.authToken).
		SetHeader("apikey", s.creds.APIKey).
		SetHeader("apisecretkey", s.creds.APISecret).
		SetHeader("sourceid", s.conn.opts.SourceID).
		SetHeader("vendorinfo", s.conn.opts.VendorInfo).
		SetBody(payload)

	resp, err := req.Post(path)
	if err != nil {
		return gjson.Result{}, domain.NewRemoteError(domain.ErrRemoteUnavailable, op,
			fmt.Sprintf("Failed to connect to broker API: %v", err))
	}
	if resp.StatusCode() >= 400 {
		return gjson.Result{}, domain.NewRemoteError(domain.ErrRemoteUnavailable, op,
			fmt.Sprintf("broker API returned HTTP %d", resp.StatusCode()))
	}
	raw := resp.Body()
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, domain.NewRemoteError(domain.ErrDecodeFailed, op, "Failed to decode response from broker API.")
	}
	body := gjson.ParseBytes(raw)
	if body.Get("status").String() == "ERROR" {
		msg := body.Get("message").String()
		if msg == "" {
			msg = "An unknown API error occurred."
		}
		re := domain.NewRemoteError(domain.ErrRemoteRejected, op, msg)
		re.OrderID = firstString(body, "data.orderid", "data.uniqueorderid")
		return body, re
	}
	return body, nil
}

func firstString(body gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := strings.TrimSpace(body.Get(p).String()); v != "" {
			return v
		}
	}
	return ""
}

func firstDecimal(body gjson.Result, paths ...string) decimal.Decimal {
	for _, p := range paths {
		if d := decimalOf(body.Get(p)); !d.IsZero() {
			return d
		}
	}
	return decimal.Zero
}

// decimalOf accepts both JSON numbers and numeric strings.
func decimalOf(r gjson.Result) decimal.Decimal {
	if !r.Exists() {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(strings.TrimSpace(r.String())); err == nil {
		return d
	}
	return decimal.NewFromFloat(r.Float())
}
