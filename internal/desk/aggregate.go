package desk

import (
	"github.com/shopspring/decimal"

	"tradedesk/internal/domain"
)

// ActivePositions 过滤掉净头寸为零的行，按持仓方向计算均价（四舍五入到 2 位）。
func ActivePositions(positions []domain.Position) []domain.ActivePosition {
	out := make([]domain.ActivePosition, 0, len(positions))
	for _, p := range positions {
		net := p.Net()
		if net == 0 {
			continue
		}
		avg := decimal.Zero
		switch {
		case net > 0 && p.BuyQuantity > 0:
			avg = p.BuyAmount.Div(decimal.NewFromInt(p.BuyQuantity))
		case net < 0 && p.SellQuantity > 0:
			avg = p.SellAmount.Div(decimal.NewFromInt(p.SellQuantity))
		}
		out = append(out, domain.ActivePosition{
			Symbol:   p.Symbol,
			Quantity: net,
			AvgPrice: avg.Round(2),
			LTP:      p.LTP,
		})
	}
	return out
}
