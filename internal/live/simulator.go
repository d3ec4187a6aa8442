package live

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradedesk/internal/logger"
	"tradedesk/internal/store/model"
)

// PositionSource lists the ledger's open trades.
type PositionSource interface {
	OpenPositions(ctx context.Context) ([]model.OpenPosition, error)
}

// ClientPL is the per-client profit/loss frame payload.
type ClientPL struct {
	ClientID string          `json:"clientId"`
	PnL      decimal.Decimal `json:"pnl"`
}

// PLSimulator 在没有上游行情时，基于账本持仓随机游走出一个标的价格并推送各客户浮动盈亏。
type PLSimulator struct {
	source   PositionSource
	interval time.Duration
	step     float64

	mu  sync.Mutex
	rng *rand.Rand
	ltp map[int64]decimal.Decimal
}

func NewPLSimulator(source PositionSource, interval time.Duration) *PLSimulator {
	if interval <= 0 {
		interval = time.Second
	}
	return &PLSimulator{
		source:   source,
		interval: interval,
		step:     0.002,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		ltp:      make(map[int64]decimal.Decimal),
	}
}

// Subscribe implements Feed.
func (s *PLSimulator) Subscribe(ctx context.Context, onMessage func(Message)) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		frames, err := s.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warnf("pl simulator: %v", err)
			continue
		}
		for _, f := range frames {
			onMessage(Message{Type: "pl", Data: f})
		}
	}
}

// Tick advances every token price one step and returns the P/L per client, ordered by client id.
func (s *PLSimulator) Tick(ctx context.Context) ([]ClientPL, error) {
	positions, err := s.source.OpenPositions(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	moved := make(map[int64]bool)
	pnl := make(map[string]decimal.Decimal)
	for _, p := range positions {
		if !moved[p.TokenID] {
			s.walk(p.TokenID, p.AvgEntryPrice)
			moved[p.TokenID] = true
		}
		diff := s.ltp[p.TokenID].Sub(p.AvgEntryPrice).Mul(decimal.NewFromInt(p.Quantity))
		pnl[p.ClientID] = pnl[p.ClientID].Add(diff)
	}

	out := make([]ClientPL, 0, len(pnl))
	for id, v := range pnl {
		out = append(out, ClientPL{ClientID: id, PnL: v.Round(2)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

// walk seeds the token price from the entry price on first sight, then applies one random step.
func (s *PLSimulator) walk(tokenID int64, seed decimal.Decimal) {
	px, ok := s.ltp[tokenID]
	if !ok {
		px = seed
	}
	shock := s.rng.NormFloat64() * s.step
	px = px.Mul(decimal.NewFromFloat(1 + shock)).Round(4)
	if !px.IsPositive() {
		px = seed
	}
	s.ltp[tokenID] = px
}

// SetLTP pins the simulated price of a token.
func (s *PLSimulator) SetLTP(tokenID int64, px decimal.Decimal) {
	s.mu.Lock()
	s.ltp[tokenID] = px
	s.mu.Unlock()
}

// SetStep changes the relative size of one random step; zero freezes prices.
func (s *PLSimulator) SetStep(step float64) {
	s.mu.Lock()
	s.step = step
	s.mu.Unlock()
}
