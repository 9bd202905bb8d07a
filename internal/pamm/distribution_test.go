package pamm

import (
	"testing"

	"github.com/shopspring/decimal"

	"lv-settle/internal/model"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func allocs(balances ...string) []model.PammAllocation {
	out := make([]model.PammAllocation, 0, len(balances))
	for i, b := range balances {
		out = append(out, model.PammAllocation{
			ID:               string(rune('a' + i)),
			FollowerID:       "follower-" + string(rune('a'+i)),
			AllocatedBalance: dec(b),
		})
	}
	return out
}

func TestBuildDistributionProfit(t *testing.T) {
	// Manager holds 2000 of 6000 total, two investors 2000 each.
	// Pnl 200 with a 20% fee: 40 to the manager as fee, 160 split as
	// 53.33 + 53.33 + 53.33 (0.01 drift stays in the fund).
	d := buildDistribution(dec("200"), dec("20"), dec("2000"), allocs("2000", "2000"))

	if got := d.TotalCapital.String(); got != "6000" {
		t.Fatalf("total capital = %s, want 6000", got)
	}
	if got := d.Fee.String(); got != "40" {
		t.Fatalf("fee = %s, want 40", got)
	}
	if got := d.ManagerShare.String(); got != "53.33" {
		t.Fatalf("manager share = %s, want 53.33", got)
	}
	if len(d.Investors) != 2 {
		t.Fatalf("investors = %d, want 2", len(d.Investors))
	}
	for _, inv := range d.Investors {
		if got := inv.Share.String(); got != "53.33" {
			t.Fatalf("investor %s share = %s, want 53.33", inv.FollowerID, got)
		}
	}
}

func TestBuildDistributionFeeRounding(t *testing.T) {
	// fee fraction 10.005: the manager is paid the rounded 10.01 but the
	// pool is pnl minus the unrounded fraction, so the half cent is not
	// distributed twice.
	d := buildDistribution(dec("66.70"), dec("15"), dec("100"), nil)

	if got := d.Fee.String(); got != "10.01" {
		t.Fatalf("fee = %s, want 10.01", got)
	}
	// remaining = 66.70 - 10.005 = 56.695, all to the manager.
	if got := d.ManagerShare.String(); got != "56.7" {
		t.Fatalf("manager share = %s, want 56.7", got)
	}
}

func TestBuildDistributionLossSkipsFee(t *testing.T) {
	d := buildDistribution(dec("-90"), dec("20"), dec("1000"), allocs("2000"))

	if !d.Fee.IsZero() {
		t.Fatalf("fee on loss = %s, want 0", d.Fee)
	}
	if got := d.ManagerShare.String(); got != "-30" {
		t.Fatalf("manager share = %s, want -30", got)
	}
	if got := d.Investors[0].Share.String(); got != "-60" {
		t.Fatalf("investor share = %s, want -60", got)
	}
}

func TestBuildDistributionZeroCapital(t *testing.T) {
	d := buildDistribution(dec("100"), dec("20"), decimal.Zero, nil)
	if !d.TotalCapital.IsZero() || !d.Fee.IsZero() || !d.ManagerShare.IsZero() || len(d.Investors) != 0 {
		t.Fatalf("expected empty distribution, got %+v", d)
	}
}

func TestBuildDistributionDropsDust(t *testing.T) {
	// A 0.01 allocation against 100000 capital earns well under a cent.
	d := buildDistribution(dec("10"), decimal.Zero, dec("99999.99"), allocs("0.01"))
	if len(d.Investors) != 0 {
		t.Fatalf("dust share kept: %+v", d.Investors)
	}
	if got := d.ManagerShare.String(); got != "10" {
		t.Fatalf("manager share = %s, want 10", got)
	}
}
