// Package chart is the static chart of accounts. Codes are 4 digits; the
// first digit fixes the account class and with it the normal balance side.
package chart

type AccountType string

const (
	TypeAsset     AccountType = "asset"
	TypeLiability AccountType = "liability"
	TypeEquity    AccountType = "equity"
	TypeRevenue   AccountType = "revenue"
	TypeExpense   AccountType = "expense"
	TypeUnknown   AccountType = "unknown"
)

const (
	CashBank         = "1001"
	IBReceivables    = "1101"
	ClientWallet     = "2001"
	ClientFunds      = "2101"
	TradingPnl       = "4001"
	CommissionIncome = "4101"
	CommissionPaid   = "5001"
	PammFees         = "5101"
)

var names = map[string]string{
	CashBank:         "Cash/Bank",
	IBReceivables:    "IB Receivables",
	ClientWallet:     "Client Wallet",
	ClientFunds:      "Client Funds",
	TradingPnl:       "Trading P&L",
	CommissionIncome: "Commission Income",
	CommissionPaid:   "Commission Paid",
	PammFees:         "PAMM Fees",
}

// Type classifies a code by its first digit.
func Type(code string) AccountType {
	if len(code) != 4 {
		return TypeUnknown
	}
	switch code[0] {
	case '1':
		return TypeAsset
	case '2':
		return TypeLiability
	case '3':
		return TypeEquity
	case '4':
		return TypeRevenue
	case '5':
		return TypeExpense
	default:
		return TypeUnknown
	}
}

// IsDebitNormal reports whether debits increase the account's balance.
// Assets and expenses are debit-normal; everything else is credit-normal.
func IsDebitNormal(code string) bool {
	t := Type(code)
	return t == TypeAsset || t == TypeExpense
}

// Valid reports whether code is a well-formed 4-digit account code in a
// known class. Codes outside the registry are still valid as long as the
// class digit is known.
func Valid(code string) bool {
	if Type(code) == TypeUnknown {
		return false
	}
	for _, ch := range code[1:] {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}

// Name returns the registry name for a code, or empty when unregistered.
func Name(code string) string {
	return names[code]
}
