// Package escrow implements the settlement accounting core: escrow accounts
// with an append-only transaction log and once-only settlement issuance. All
// money is int64 minor units; floats never touch a balance.
package escrow

import (
	"errors"
	"time"
)

var (
	ErrNotFound               = errors.New("escrow: not found")
	ErrAlreadyExists          = errors.New("escrow: already exists")
	ErrInvalidAmount          = errors.New("escrow: invalid amount")
	ErrUnknownTransactionType = errors.New("escrow: unknown transaction type")
	ErrAccountClosed          = errors.New("escrow: account not open")
	ErrAlreadyIssued          = errors.New("escrow: settlement already issued")
	ErrNetMismatch            = errors.New("escrow: net amount does not equal gross minus deductions")
	ErrNotDraft               = errors.New("escrow: settlement is not a draft")
)

// AccountingStatus is the escrow account lifecycle state.
type AccountingStatus string

const (
	AccountOpen   AccountingStatus = "open"
	AccountFrozen AccountingStatus = "frozen"
	AccountClosed AccountingStatus = "closed"
)

// EscrowAccount holds reserve funds for a contract. Balance is materialized
// from the transaction log and must always equal a full replay of it.
type EscrowAccount struct {
	ID         string           `json:"id"`
	ContractID string           `json:"contract_id"`
	Balance    int64            `json:"balance"`
	Status     AccountingStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// TransactionType classifies an escrow posting and fixes its sign.
type TransactionType string

const (
	TxDeposit    TransactionType = "deposit"
	TxWithdrawal TransactionType = "withdrawal"
	TxInterest   TransactionType = "interest"
	TxCharge     TransactionType = "charge"
	TxAdjustment TransactionType = "adjustment"
)

// ValidTransactionType reports whether t is a known posting type.
func ValidTransactionType(t TransactionType) bool {
	switch t {
	case TxDeposit, TxWithdrawal, TxInterest, TxCharge, TxAdjustment:
		return true
	}
	return false
}

// SignedAmount applies the type's sign convention to a stored magnitude.
// Deposits and interest credit the account, withdrawals and charges debit
// it. Adjustments carry their own sign and pass through unchanged.
func SignedAmount(t TransactionType, amount int64) int64 {
	switch t {
	case TxWithdrawal, TxCharge:
		return -amount
	default:
		return amount
	}
}

// EscrowTransaction is one immutable log entry. Sequence is strictly
// increasing per account with no gaps, so the log totally orders postings
// even when timestamps collide.
type EscrowTransaction struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	Sequence     int64           `json:"sequence"`
	Type         TransactionType `json:"type"`
	Amount       int64           `json:"amount"`
	BalanceAfter int64           `json:"balance_after"`
	Reference    string          `json:"reference,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SettlementStatus is the settlement lifecycle state.
type SettlementStatus string

const (
	SettlementDraft  SettlementStatus = "draft"
	SettlementIssued SettlementStatus = "issued"
)

// Settlement is a periodic statement for a unit. TotalGross,
// TotalDeductions and NetAmount are minor units and must satisfy
// NetAmount == TotalGross - TotalDeductions at all times. TotalFuel is
// informational: fuel spend for the period, already folded into
// TotalDeductions by whichever policy produced the totals, so it never
// enters the net identity on its own.
type Settlement struct {
	ID              string           `json:"id"`
	UnitID          string           `json:"unit_id"`
	PeriodStart     time.Time        `json:"period_start"`
	PeriodEnd       time.Time        `json:"period_end"`
	TotalGross      int64            `json:"total_gross"`
	TotalDeductions int64            `json:"total_deductions"`
	TotalFuel       int64            `json:"total_fuel"`
	NetAmount       int64            `json:"net_amount"`
	Status          SettlementStatus `json:"status"`
	IssuedAt        *time.Time       `json:"issued_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}
