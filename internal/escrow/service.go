package escrow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fleetcore.org/internal/ids"
	"fleetcore.org/internal/obs"
)

// Service defines escrow and settlement operations.
type Service interface {
	OpenAccount(ctx context.Context, contractID string) (EscrowAccount, error)
	GetAccount(ctx context.Context, id string) (EscrowAccount, error)
	SetAccountStatus(ctx context.Context, id string, status AccountingStatus) (EscrowAccount, error)
	PostTransaction(ctx context.Context, accountID string, t TransactionType, amount int64, reference string) (EscrowTransaction, error)
	ListTransactions(ctx context.Context, accountID string) ([]EscrowTransaction, error)
	Replay(ctx context.Context, accountID string) (int64, error)

	CreateSettlement(ctx context.Context, s Settlement) (Settlement, error)
	GetSettlement(ctx context.Context, id string) (Settlement, error)
	IssueSettlement(ctx context.Context, id string) (Settlement, error)
}

// InMemory implements Service. Postings serialize under the mutex, which is
// what makes the per-account sequence gapless and the materialized balance
// equal to the log sum.
type InMemory struct {
	mu          sync.RWMutex
	accounts    map[string]*EscrowAccount
	txs         map[string][]EscrowTransaction // accountID -> ascending by Sequence
	settlements map[string]*Settlement
	nowFn       func() time.Time
	newID       func() string
}

var _ Service = (*InMemory)(nil)

// Option configures InMemory.
type Option func(*InMemory)

// WithClock injects the time source.
func WithClock(nowFn func() time.Time) Option {
	return func(s *InMemory) {
		if nowFn != nil {
			s.nowFn = nowFn
		}
	}
}

// WithIDGenerator injects the identifier generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *InMemory) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewInMemory creates an empty escrow store.
func NewInMemory(opts ...Option) *InMemory {
	s := &InMemory{
		accounts:    make(map[string]*EscrowAccount),
		txs:         make(map[string][]EscrowTransaction),
		settlements: make(map[string]*Settlement),
		nowFn:       func() time.Time { return time.Now().UTC() },
		newID:       ids.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenAccount creates an escrow account for the contract. One account per
// contract.
func (s *InMemory) OpenAccount(ctx context.Context, contractID string) (EscrowAccount, error) {
	if strings.TrimSpace(contractID) == "" {
		return EscrowAccount{}, fmt.Errorf("%w: contract id required", ErrInvalidAmount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.ContractID == contractID {
			return EscrowAccount{}, ErrAlreadyExists
		}
	}
	now := s.nowFn()
	acc := EscrowAccount{
		ID:         s.newID(),
		ContractID: contractID,
		Balance:    0,
		Status:     AccountOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	cp := acc
	s.accounts[acc.ID] = &cp
	return acc, nil
}

func (s *InMemory) GetAccount(ctx context.Context, id string) (EscrowAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return EscrowAccount{}, ErrNotFound
	}
	return *acc, nil
}

func (s *InMemory) SetAccountStatus(ctx context.Context, id string, status AccountingStatus) (EscrowAccount, error) {
	switch status {
	case AccountOpen, AccountFrozen, AccountClosed:
	default:
		return EscrowAccount{}, fmt.Errorf("escrow: unknown account status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return EscrowAccount{}, ErrNotFound
	}
	acc.Status = status
	acc.UpdatedAt = s.nowFn()
	return *acc, nil
}

// PostTransaction appends an immutable log entry and moves the materialized
// balance by the signed amount. Amount is a positive magnitude for every
// type except adjustment, which carries its own sign.
func (s *InMemory) PostTransaction(ctx context.Context, accountID string, t TransactionType, amount int64, reference string) (EscrowTransaction, error) {
	if !ValidTransactionType(t) {
		return EscrowTransaction{}, fmt.Errorf("%w: %q", ErrUnknownTransactionType, t)
	}
	if t != TxAdjustment && amount <= 0 {
		return EscrowTransaction{}, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if t == TxAdjustment && amount == 0 {
		return EscrowTransaction{}, fmt.Errorf("%w: zero adjustment", ErrInvalidAmount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[accountID]
	if !ok {
		return EscrowTransaction{}, ErrNotFound
	}
	if acc.Status != AccountOpen {
		return EscrowTransaction{}, ErrAccountClosed
	}

	// No overdraft floor: the balance is a running sum of the log, and a
	// charge larger than the reserve simply drives it negative.
	newBalance := acc.Balance + SignedAmount(t, amount)

	log := s.txs[accountID]
	var seq int64 = 1
	if len(log) > 0 {
		seq = log[len(log)-1].Sequence + 1
	}
	tx := EscrowTransaction{
		ID:           s.newID(),
		AccountID:    accountID,
		Sequence:     seq,
		Type:         t,
		Amount:       amount,
		BalanceAfter: newBalance,
		Reference:    reference,
		CreatedAt:    s.nowFn(),
	}
	s.txs[accountID] = append(log, tx)
	acc.Balance = newBalance
	acc.UpdatedAt = tx.CreatedAt

	obs.ObserveEscrowPosting(string(t))
	return tx, nil
}

func (s *InMemory) ListTransactions(ctx context.Context, accountID string) ([]EscrowTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.accounts[accountID]; !ok {
		return nil, ErrNotFound
	}
	src := s.txs[accountID]
	out := make([]EscrowTransaction, len(src))
	copy(out, src)
	return out, nil
}

// Replay folds the transaction log from zero and returns the resulting
// balance. It must always equal the materialized account balance; the
// reconciliation tests assert exactly that.
func (s *InMemory) Replay(ctx context.Context, accountID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.accounts[accountID]; !ok {
		return 0, ErrNotFound
	}
	log := s.txs[accountID]
	sorted := make([]EscrowTransaction, len(log))
	copy(sorted, log)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	var balance int64
	for _, tx := range sorted {
		balance += SignedAmount(tx.Type, tx.Amount)
	}
	return balance, nil
}

// CreateSettlement records a draft statement. The arithmetic identity is
// validated up front so a draft can never hold inconsistent totals.
func (s *InMemory) CreateSettlement(ctx context.Context, stl Settlement) (Settlement, error) {
	if strings.TrimSpace(stl.UnitID) == "" {
		return Settlement{}, fmt.Errorf("%w: unit id required", ErrInvalidAmount)
	}
	if stl.NetAmount != stl.TotalGross-stl.TotalDeductions {
		return Settlement{}, ErrNetMismatch
	}
	if stl.PeriodEnd.Before(stl.PeriodStart) {
		return Settlement{}, fmt.Errorf("%w: period end precedes start", ErrInvalidAmount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if stl.ID == "" {
		stl.ID = s.newID()
	}
	stl.Status = SettlementDraft
	stl.IssuedAt = nil
	stl.CreatedAt = s.nowFn()
	cp := stl
	s.settlements[stl.ID] = &cp
	return stl, nil
}

func (s *InMemory) GetSettlement(ctx context.Context, id string) (Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stl, ok := s.settlements[id]
	if !ok {
		return Settlement{}, ErrNotFound
	}
	return *stl, nil
}

// IssueSettlement finalizes a draft exactly once. The null-issued_at check
// and the swap happen under the lock, so two racing issuers cannot both
// succeed; the loser gets ErrAlreadyIssued.
func (s *InMemory) IssueSettlement(ctx context.Context, id string) (Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stl, ok := s.settlements[id]
	if !ok {
		return Settlement{}, ErrNotFound
	}
	if stl.IssuedAt != nil || stl.Status == SettlementIssued {
		return Settlement{}, ErrAlreadyIssued
	}
	now := s.nowFn()
	stl.Status = SettlementIssued
	stl.IssuedAt = &now
	return *stl, nil
}
