package apihttp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedesk/internal/desk"
	"tradedesk/internal/domain"
	"tradedesk/internal/gateway/broker"
	"tradedesk/internal/journal"
	"tradedesk/internal/live"
	"tradedesk/internal/store/gormstore"
	"tradedesk/internal/vault"
)

type testAPI struct {
	server *Server
	hub    *live.Hub
	paper  *broker.PaperConnector
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db, err := gormstore.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	v, err := vault.New("api-test")
	require.NoError(t, err)
	secrets, err := vault.OpenSecretStore(vault.SecretStoreOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = secrets.Close() })
	j, err := journal.Open(journal.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	paper := broker.NewPaperConnector(decimal.NewFromInt(100))
	d, err := desk.New(desk.Deps{
		Store: db, Cipher: v, Secrets: secrets, Connector: paper, Journal: j,
	}, desk.Options{SessionTTL: time.Minute})
	require.NoError(t, err)

	hub := live.NewHub(8)
	srv, err := NewServer(ServerConfig{Desk: d, Hub: hub})
	require.NoError(t, err)
	return &testAPI{server: srv, hub: hub, paper: paper}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) createClient(t *testing.T, code string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/clients",
		`{"client_id":"`+code+`","name":"Client `+code+`","api_key":"k","api_secret":"s","password":"p","two_fa":"x"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, code, out["client_id"])
	assert.NotContains(t, out, "api_key_encrypted")
	return out["id"].(string)
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	for _, p := range []string{"/", "/healthz"} {
		rec := a.do(t, http.MethodGet, p, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
	}
	rec := a.do(t, http.MethodOptions, "/api/v1/clients", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestClientLifecycle(t *testing.T) {
	a := newTestAPI(t)
	id := a.createClient(t, "A1")

	rec := a.do(t, http.MethodPost, "/api/v1/clients", `{"client_id":"A1","name":"x","api_key":"k","api_secret":"s"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/v1/clients", `{"client_id":"B1","name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/clients", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/v1/clients/"+id, "").Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/v1/clients/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/v1/clients/nope/portfolio", "").Code)
}

func TestExecuteAllAndExit(t *testing.T) {
	a := newTestAPI(t)
	id := a.createClient(t, "A1")

	rec := a.do(t, http.MethodPost, "/api/v1/orders/execute-all", `{
		"token_symbol":"RELIANCE","token_exchange":"NSE","trade_type":"INTRADAY","order_type":"MARKET",
		"buy_or_sell":"buy","client_orders":[{"client_id":"`+id+`","quantity":10},{"client_id":"ghost","quantity":1}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var outcomes []domain.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcomes))
	require.Len(t, outcomes, 2)
	assert.Equal(t, domain.StatusSuccess, outcomes[0].Status)
	assert.Equal(t, domain.ErrorOutcome("ghost", "Client not found"), outcomes[1])

	rec = a.do(t, http.MethodGet, "/api/v1/clients/"+id+"/active-trades", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"symbol":"RELIANCE","quantity":10,"avg_price":100,"ltp":100}]`, rec.Body.String())

	rec = a.do(t, http.MethodGet, "/api/v1/tokens/RELIANCE/holders?token_exchange=NSE", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var holders []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &holders))
	require.Len(t, holders, 1)
	assert.Equal(t, id, holders[0]["client_id"])
	assert.EqualValues(t, 10, holders[0]["quantity_held"])

	rec = a.do(t, http.MethodGet, "/api/v1/tokens?q=REL", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"symbol":"RELIANCE"`)

	rec = a.do(t, http.MethodPost, "/api/v1/orders/exit-token",
		`{"token_symbol":"RELIANCE","token_exchange":"NSE","clients_to_exit":["`+id+`"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcomes))
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.StatusSuccess, outcomes[0].Status)

	rec = a.do(t, http.MethodGet, "/api/v1/clients/"+id+"/ledger", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"closed"`)
}

func TestPayloadValidationAndErrorMapping(t *testing.T) {
	a := newTestAPI(t)
	cases := []struct {
		name, path, body string
		want             int
	}{
		{"malformed", "/api/v1/orders/execute-all", `{`, http.StatusBadRequest},
		{"bad side", "/api/v1/orders/execute-all", `{"token_symbol":"X","token_exchange":"NSE","order_type":"MARKET","buy_or_sell":"hold","client_orders":[{"client_id":"a","quantity":1}]}`, http.StatusBadRequest},
		{"zero qty", "/api/v1/orders/execute-all", `{"token_symbol":"X","token_exchange":"NSE","order_type":"MARKET","buy_or_sell":"BUY","client_orders":[{"client_id":"a","quantity":0}]}`, http.StatusBadRequest},
		{"empty exit", "/api/v1/orders/exit-token", `{"token_symbol":"X","token_exchange":"NSE","clients_to_exit":[]}`, http.StatusBadRequest},
		{"unknown token", "/api/v1/orders/exit-token", `{"token_symbol":"NOPE","token_exchange":"NSE","clients_to_exit":["a"]}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := a.do(t, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"detail"`)
		})
	}
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/v1/tokens/X/holders", "").Code)
}

func TestCancelRejectedMapsToBadGateway(t *testing.T) {
	a := newTestAPI(t)
	id := a.createClient(t, "A1")
	rec := a.do(t, http.MethodDelete, "/api/v1/clients/"+id+"/orders/PAPER-999999", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"detail":"API Error: order not found"}`, rec.Body.String())
}

func TestPLSocketReceivesBroadcasts(t *testing.T) {
	a := newTestAPI(t)
	ts := httptest.NewServer(a.server.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/pl", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ignored")))

	require.Eventually(t, func() bool { return a.hub.Len() == 1 }, time.Second, 10*time.Millisecond)
	a.hub.Broadcast(live.Message{Type: "pl", Data: live.ClientPL{ClientID: "c1", PnL: decimal.RequireFromString("12.5")}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pl","data":{"clientId":"c1","pnl":12.5}}`, string(frame))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return a.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
