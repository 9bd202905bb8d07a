package settlement

import (
	"strings"

	"github.com/shopspring/decimal"

	"lv-settle/internal/types"
)

var (
	goldContractSize     = decimal.NewFromInt(100)
	standardContractSize = decimal.NewFromInt(100000) // standard lot
)

// ContractSize returns the per-lot contract size: 100 for gold symbols,
// 100,000 otherwise.
func ContractSize(symbol string) decimal.Decimal {
	if strings.HasPrefix(strings.ToUpper(symbol), "GOLD") {
		return goldContractSize
	}
	return standardContractSize
}

// ComputePnl prices a fill against its open:
// contractSize × volume × (close − open), negated for sells.
func ComputePnl(symbol string, side types.PositionSide, volume, openPrice, closePrice decimal.Decimal) decimal.Decimal {
	pnl := ContractSize(symbol).Mul(volume).Mul(closePrice.Sub(openPrice))
	if side == types.PositionSideSell {
		pnl = pnl.Neg()
	}
	return pnl.Round(2)
}
