package pamm

import (
	"github.com/shopspring/decimal"

	"lv-settle/internal/model"
)

var (
	hundred = decimal.NewFromInt(100)
	// shareFloor drops dust: shares at or below a tenth of a cent are not
	// worth a posting.
	shareFloor = decimal.NewFromFloat(0.001)
)

// InvestorShare is one investor's cut of a distributed trade.
type InvestorShare struct {
	AllocationID string
	FollowerID   string
	Share        decimal.Decimal
}

// Distribution is the complete split of one trade's P&L across a fund.
type Distribution struct {
	TotalCapital decimal.Decimal
	Fee          decimal.Decimal
	ManagerShare decimal.Decimal
	Investors    []InvestorShare
}

// buildDistribution splits pnl over the manager and the active allocations,
// proportional to capital.
//
// On profit the performance fee paid to the manager is the fraction rounded
// to 2 decimals, while the pool distributed to participants is pnl minus the
// unrounded fraction; the sub-cent difference stays in the fund. Each share
// is rounded independently and dust shares are dropped, so the distributed
// sum may drift from the pool by a few cents. Losses flow through the same
// proportional split with no fee.
func buildDistribution(pnl, feePercent, managerCapital decimal.Decimal, allocs []model.PammAllocation) Distribution {
	d := Distribution{TotalCapital: managerCapital}
	for _, a := range allocs {
		d.TotalCapital = d.TotalCapital.Add(a.AllocatedBalance)
	}
	if !d.TotalCapital.IsPositive() {
		d.TotalCapital = decimal.Zero
		return d
	}

	remaining := pnl
	if pnl.IsPositive() && feePercent.IsPositive() {
		feeFraction := pnl.Mul(feePercent).Div(hundred)
		d.Fee = feeFraction.Round(2)
		remaining = pnl.Sub(feeFraction)
	}

	managerShare := managerCapital.Div(d.TotalCapital).Mul(remaining).Round(2)
	if managerShare.Abs().Cmp(shareFloor) > 0 {
		d.ManagerShare = managerShare
	}

	for _, a := range allocs {
		share := a.AllocatedBalance.Div(d.TotalCapital).Mul(remaining).Round(2)
		if share.Abs().Cmp(shareFloor) <= 0 {
			continue
		}
		d.Investors = append(d.Investors, InvestorShare{
			AllocationID: a.ID,
			FollowerID:   a.FollowerID,
			Share:        share,
		})
	}
	return d
}
