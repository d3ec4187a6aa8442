package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedesk/internal/store/model"
)

type staticPositions []model.OpenPosition

func (s staticPositions) OpenPositions(context.Context) ([]model.OpenPosition, error) {
	return s, nil
}

func TestSimulatorSumsPerClient(t *testing.T) {
	sim := NewPLSimulator(staticPositions{
		{ClientID: "b", TokenID: 1, Quantity: 10, AvgEntryPrice: decimal.NewFromInt(100)},
		{ClientID: "a", TokenID: 1, Quantity: 5, AvgEntryPrice: decimal.NewFromInt(90)},
		{ClientID: "a", TokenID: 2, Quantity: 2, AvgEntryPrice: decimal.NewFromInt(50)},
	}, time.Second)
	sim.SetStep(0)
	sim.SetLTP(1, decimal.NewFromInt(110))
	sim.SetLTP(2, decimal.NewFromInt(45))

	got, err := sim.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ClientID)
	// (110-90)*5 + (45-50)*2
	assert.Equal(t, "90", got[0].PnL.String())
	assert.Equal(t, "b", got[1].ClientID)
	assert.Equal(t, "100", got[1].PnL.String())
}

func TestSimulatorFeedsHubThroughBridge(t *testing.T) {
	sim := NewPLSimulator(staticPositions{
		{ClientID: "c1", TokenID: 7, Quantity: 1, AvgEntryPrice: decimal.NewFromInt(10)},
	}, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub(8)
	o := h.Attach()
	go func() { _ = h.Run(ctx, Bridge(ctx, sim, 8)) }()

	m := recv(t, o)
	assert.Equal(t, "pl", m.Type)
	assert.Equal(t, "c1", m.Data.(map[string]any)["clientId"])
}

func TestWSFeedReconnectsAndSubscribes(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		n := conns.Add(1)
		_, sub, err := c.ReadMessage()
		if err != nil {
			return
		}
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"conn":`+string(rune('0'+n))+`,"sub":`+string(sub)+`}`))
		_ = c.WriteMessage(websocket.TextMessage, []byte("not json"))
		// first connection drops right away to force a reconnect
		if n == 1 {
			return
		}
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	feed := NewWSFeed("ws"+strings.TrimPrefix(srv.URL, "http"), `{"op":"subscribe"}`)
	feed.MinBackoff = 10 * time.Millisecond
	feed.MaxBackoff = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	got := make(chan Message, 4)
	go func() {
		_ = feed.Subscribe(ctx, func(m Message) { got <- m })
	}()

	for want := 1; want <= 2; want++ {
		select {
		case m := <-got:
			assert.Equal(t, "feed", m.Type)
			assert.Contains(t, string(m.Data.(json.RawMessage)), `"sub":{"op":"subscribe"}`)
		case <-ctx.Done():
			t.Fatalf("frame %d not received", want)
		}
	}
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
}

func TestJitterStaysInRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := jitter(100 * time.Millisecond)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.Less(t, d, 100*time.Millisecond)
	}
}
