package types

type AccountMode string

type PositionSide string

type TransactionType string

type TransactionStatus string

type CommissionStatus string

type AllocationStatus string

type FundStatus string

type OutboxKind string

type OutboxStatus string

const (
	AccountModeDemo AccountMode = "demo"
	AccountModeLive AccountMode = "live"
	AccountModePamm AccountMode = "pamm"
)

const (
	PositionSideBuy  PositionSide = "buy"
	PositionSideSell PositionSide = "sell"
)

const (
	TransactionTypeDeposit           TransactionType = "deposit"
	TransactionTypeWithdrawal        TransactionType = "withdrawal"
	TransactionTypeTrade             TransactionType = "trade"
	TransactionTypeTransferIn        TransactionType = "transfer_in"
	TransactionTypeTransferOut       TransactionType = "transfer_out"
	TransactionTypeAdminCredit       TransactionType = "admin_credit"
	TransactionTypePammAlloc         TransactionType = "pamm_alloc"
	TransactionTypePammUnalloc       TransactionType = "pamm_unalloc"
	TransactionTypePammFee           TransactionType = "pamm_fee"
	TransactionTypePammDist          TransactionType = "pamm_dist"
	TransactionTypePammManagerCapIn  TransactionType = "pamm_manager_cap_in"
	TransactionTypePammManagerCapOut TransactionType = "pamm_manager_cap_out"
)

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

const (
	CommissionStatusPending CommissionStatus = "pending"
	CommissionStatusPaid    CommissionStatus = "paid"
)

const (
	AllocationStatusActive AllocationStatus = "active"
	AllocationStatusClosed AllocationStatus = "closed"
)

const (
	FundStatusActive FundStatus = "active"
	FundStatusClosed FundStatus = "closed"
)

const (
	OutboxKindIBCascade        OutboxKind = "ib_cascade"
	OutboxKindPammDistribution OutboxKind = "pamm_distribution"
	OutboxKindNotify           OutboxKind = "notify"
)

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusDone    OutboxStatus = "done"
	OutboxStatusFailed  OutboxStatus = "failed"
)

// Reference types stamped on ledger entries so every posting can be traced
// back to the business event that produced it.
const (
	RefDeposit          = "deposit"
	RefWithdrawal       = "withdrawal"
	RefTransfer         = "transfer"
	RefAdminCredit      = "admin_credit"
	RefTrade            = "trade"
	RefIBCommission     = "ib_commission"
	RefIBPayout         = "ib_payout"
	RefPammAllocation   = "pamm_allocation"
	RefPammWithdrawal   = "pamm_withdrawal"
	RefPammFee          = "pamm_fee"
	RefPammDistribution = "pamm_distribution"
)
