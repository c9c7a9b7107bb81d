// Package pg provides the Postgres-backed escrow store. It implements the
// same escrow.Service interface as the in-memory store, so the API binary
// swaps between them on configuration alone.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetcore.org/internal/escrow"
	"fleetcore.org/internal/ids"
	"fleetcore.org/internal/obs"
)

type Store struct {
	db *sql.DB
}

var _ escrow.Service = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle. Used by tests with sqlmock.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const accountColumns = `id, contract_id, balance, status, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (escrow.EscrowAccount, error) {
	var acc escrow.EscrowAccount
	err := row.Scan(&acc.ID, &acc.ContractID, &acc.Balance, &acc.Status, &acc.CreatedAt, &acc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return escrow.EscrowAccount{}, escrow.ErrNotFound
	}
	if err != nil {
		return escrow.EscrowAccount{}, err
	}
	return acc, nil
}

func (s *Store) OpenAccount(ctx context.Context, contractID string) (escrow.EscrowAccount, error) {
	if contractID == "" {
		return escrow.EscrowAccount{}, escrow.ErrInvalidAmount
	}
	id := ids.New()
	row := s.db.QueryRowContext(ctx, `
		insert into escrow_accounts(id, contract_id, balance, status)
		values ($1, $2, 0, 'open')
		on conflict (contract_id) do nothing
		returning `+accountColumns, id, contractID)
	acc, err := scanAccount(row)
	if errors.Is(err, escrow.ErrNotFound) {
		return escrow.EscrowAccount{}, escrow.ErrAlreadyExists
	}
	return acc, err
}

func (s *Store) GetAccount(ctx context.Context, id string) (escrow.EscrowAccount, error) {
	row := s.db.QueryRowContext(ctx, `select `+accountColumns+` from escrow_accounts where id=$1`, id)
	return scanAccount(row)
}

func (s *Store) SetAccountStatus(ctx context.Context, id string, status escrow.AccountingStatus) (escrow.EscrowAccount, error) {
	switch status {
	case escrow.AccountOpen, escrow.AccountFrozen, escrow.AccountClosed:
	default:
		return escrow.EscrowAccount{}, fmt.Errorf("escrow: unknown account status %q", status)
	}
	row := s.db.QueryRowContext(ctx, `
		update escrow_accounts set status=$2, updated_at=now()
		where id=$1
		returning `+accountColumns, id, status)
	return scanAccount(row)
}

// PostTransaction appends a log entry and moves the materialized balance in
// one serializable transaction. The account row is locked first, so the
// per-account sequence allocation cannot race.
func (s *Store) PostTransaction(ctx context.Context, accountID string, t escrow.TransactionType, amount int64, reference string) (escrow.EscrowTransaction, error) {
	if !escrow.ValidTransactionType(t) {
		return escrow.EscrowTransaction{}, escrow.ErrUnknownTransactionType
	}
	if t != escrow.TxAdjustment && amount <= 0 {
		return escrow.EscrowTransaction{}, escrow.ErrInvalidAmount
	}
	if t == escrow.TxAdjustment && amount == 0 {
		return escrow.EscrowTransaction{}, escrow.ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return escrow.EscrowTransaction{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var balance int64
	var status escrow.AccountingStatus
	err = tx.QueryRowContext(ctx, `
		select balance, status from escrow_accounts where id=$1 for update
	`, accountID).Scan(&balance, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return escrow.EscrowTransaction{}, escrow.ErrNotFound
	}
	if err != nil {
		return escrow.EscrowTransaction{}, err
	}
	if status != escrow.AccountOpen {
		return escrow.EscrowTransaction{}, escrow.ErrAccountClosed
	}

	// No overdraft floor: charges beyond the reserve drive the balance
	// negative, same as the in-memory store.
	newBalance := balance + escrow.SignedAmount(t, amount)

	tid := ids.New()
	var seq int64
	var created time.Time
	if err := tx.QueryRowContext(ctx, `
		insert into escrow_transactions(id, account_id, sequence, type, amount, balance_after, reference)
		values ($1, $2,
			(select coalesce(max(sequence),0)+1 from escrow_transactions where account_id=$2),
			$3, $4, $5, nullif($6,''))
		returning sequence, created_at
	`, tid, accountID, t, amount, newBalance, reference).Scan(&seq, &created); err != nil {
		return escrow.EscrowTransaction{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		update escrow_accounts set balance=$2, updated_at=now() where id=$1
	`, accountID, newBalance); err != nil {
		return escrow.EscrowTransaction{}, err
	}

	if err := tx.Commit(); err != nil {
		return escrow.EscrowTransaction{}, err
	}

	obs.ObserveEscrowPosting(string(t))
	return escrow.EscrowTransaction{
		ID:           tid,
		AccountID:    accountID,
		Sequence:     seq,
		Type:         t,
		Amount:       amount,
		BalanceAfter: newBalance,
		Reference:    reference,
		CreatedAt:    created,
	}, nil
}

func (s *Store) ListTransactions(ctx context.Context, accountID string) ([]escrow.EscrowTransaction, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, account_id, sequence, type, amount, balance_after, coalesce(reference,''), created_at
		from escrow_transactions
		where account_id=$1
		order by sequence asc
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []escrow.EscrowTransaction
	for rows.Next() {
		var t escrow.EscrowTransaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Sequence, &t.Type, &t.Amount, &t.BalanceAfter, &t.Reference, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// Replay folds the log server-side and returns the resulting balance.
func (s *Store) Replay(ctx context.Context, accountID string) (int64, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return 0, err
	}
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		select coalesce(sum(case when type in ('withdrawal','charge') then -amount else amount end), 0)
		from escrow_transactions where account_id=$1
	`, accountID).Scan(&balance)
	return balance, err
}

const settlementColumns = `id, unit_id, period_start, period_end, total_gross, total_deductions, total_fuel, net_amount, status, issued_at, created_at`

func scanSettlement(row interface{ Scan(...any) error }) (escrow.Settlement, error) {
	var stl escrow.Settlement
	var issued sql.NullTime
	err := row.Scan(&stl.ID, &stl.UnitID, &stl.PeriodStart, &stl.PeriodEnd,
		&stl.TotalGross, &stl.TotalDeductions, &stl.TotalFuel, &stl.NetAmount, &stl.Status, &issued, &stl.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return escrow.Settlement{}, escrow.ErrNotFound
	}
	if err != nil {
		return escrow.Settlement{}, err
	}
	if issued.Valid {
		t := issued.Time
		stl.IssuedAt = &t
	}
	return stl, nil
}

func (s *Store) CreateSettlement(ctx context.Context, stl escrow.Settlement) (escrow.Settlement, error) {
	if stl.NetAmount != stl.TotalGross-stl.TotalDeductions {
		return escrow.Settlement{}, escrow.ErrNetMismatch
	}
	if stl.PeriodEnd.Before(stl.PeriodStart) {
		return escrow.Settlement{}, escrow.ErrInvalidAmount
	}
	if stl.ID == "" {
		stl.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into settlements(id, unit_id, period_start, period_end, total_gross, total_deductions, total_fuel, net_amount, status)
		values ($1, $2, $3, $4, $5, $6, $7, $8, 'draft')
		returning `+settlementColumns,
		stl.ID, stl.UnitID, stl.PeriodStart, stl.PeriodEnd, stl.TotalGross, stl.TotalDeductions, stl.TotalFuel, stl.NetAmount)
	return scanSettlement(row)
}

func (s *Store) GetSettlement(ctx context.Context, id string) (escrow.Settlement, error) {
	row := s.db.QueryRowContext(ctx, `select `+settlementColumns+` from settlements where id=$1`, id)
	return scanSettlement(row)
}

// IssueSettlement finalizes a draft exactly once. The null check rides in
// the update predicate, so concurrent issuers race on one row version and
// only one update reports an affected row.
func (s *Store) IssueSettlement(ctx context.Context, id string) (escrow.Settlement, error) {
	row := s.db.QueryRowContext(ctx, `
		update settlements set status='issued', issued_at=now()
		where id=$1 and issued_at is null
		returning `+settlementColumns, id)
	stl, err := scanSettlement(row)
	if errors.Is(err, escrow.ErrNotFound) {
		// Distinguish a missing row from an already-issued one.
		if _, getErr := s.GetSettlement(ctx, id); getErr == nil {
			return escrow.Settlement{}, escrow.ErrAlreadyIssued
		}
		return escrow.Settlement{}, escrow.ErrNotFound
	}
	return stl, err
}
