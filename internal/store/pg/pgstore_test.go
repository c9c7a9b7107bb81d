package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"fleetcore.org/internal/escrow"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOpenAccountConflict(t *testing.T) {
	store, mock := newMock(t)

	// The on-conflict insert returns no row when the contract already
	// has an account.
	mock.ExpectQuery(`insert into escrow_accounts`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "contract_id", "balance", "status", "created_at", "updated_at"}))

	_, err := store.OpenAccount(context.Background(), "contract-1")
	if !errors.Is(err, escrow.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestPostTransactionLocksAndSequences(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`select balance, status from escrow_accounts where id=\$1 for update`).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance", "status"}).AddRow(int64(5_000), "open"))
	mock.ExpectQuery(`insert into escrow_transactions`).
		WillReturnRows(sqlmock.NewRows([]string{"sequence", "created_at"}).AddRow(int64(4), now))
	mock.ExpectExec(`update escrow_accounts set balance=\$2`).
		WithArgs("acc-1", int64(3_800)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := store.PostTransaction(context.Background(), "acc-1", escrow.TxCharge, 1_200, "fuel")
	if err != nil {
		t.Fatal(err)
	}
	if tx.Sequence != 4 || tx.BalanceAfter != 3_800 {
		t.Fatalf("unexpected posting %+v", tx)
	}
	expectationsMet(t, mock)
}

func TestPostTransactionFrozenAccount(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`select balance, status from escrow_accounts`).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance", "status"}).AddRow(int64(100), "frozen"))
	mock.ExpectRollback()

	_, err := store.PostTransaction(context.Background(), "acc-1", escrow.TxDeposit, 50, "")
	if !errors.Is(err, escrow.ErrAccountClosed) {
		t.Fatalf("expected ErrAccountClosed, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestPostTransactionOverdraftPosts(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()

	// A withdrawal beyond the reserve still posts; the balance simply
	// goes negative.
	mock.ExpectBegin()
	mock.ExpectQuery(`select balance, status from escrow_accounts`).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance", "status"}).AddRow(int64(100), "open"))
	mock.ExpectQuery(`insert into escrow_transactions`).
		WillReturnRows(sqlmock.NewRows([]string{"sequence", "created_at"}).AddRow(int64(2), now))
	mock.ExpectExec(`update escrow_accounts set balance=\$2`).
		WithArgs("acc-1", int64(-400)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := store.PostTransaction(context.Background(), "acc-1", escrow.TxWithdrawal, 500, "")
	if err != nil {
		t.Fatalf("overdraft must post, got %v", err)
	}
	if tx.BalanceAfter != -400 {
		t.Fatalf("running balance %d, want -400", tx.BalanceAfter)
	}
	expectationsMet(t, mock)
}

func TestReplaySumsServerSide(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(`select id, contract_id, balance, status, created_at, updated_at from escrow_accounts where id=\$1`).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "contract_id", "balance", "status", "created_at", "updated_at"}).
			AddRow("acc-1", "contract-1", int64(4_042), "open", now, now))
	mock.ExpectQuery(`select coalesce\(sum\(case when type in`).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(4_042)))

	got, err := store.Replay(context.Background(), "acc-1")
	if err != nil {
		t.Fatal(err)
	}
	if got != 4_042 {
		t.Fatalf("expected 4042, got %d", got)
	}
	expectationsMet(t, mock)
}

func TestIssueSettlementOnce(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(`update settlements set status='issued'`).
		WithArgs("stl-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "unit_id", "period_start", "period_end",
			"total_gross", "total_deductions", "total_fuel", "net_amount", "status", "issued_at", "created_at",
		}).AddRow("stl-1", "unit-1", now, now, int64(90_000), int64(15_000), int64(8_000), int64(75_000), "issued", now, now))

	stl, err := store.IssueSettlement(context.Background(), "stl-1")
	if err != nil {
		t.Fatal(err)
	}
	if stl.Status != escrow.SettlementIssued || stl.IssuedAt == nil {
		t.Fatalf("unexpected settlement %+v", stl)
	}
	expectationsMet(t, mock)
}

func TestIssueSettlementAlreadyIssued(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()
	cols := []string{
		"id", "unit_id", "period_start", "period_end",
		"total_gross", "total_deductions", "total_fuel", "net_amount", "status", "issued_at", "created_at",
	}

	// The guarded update matches no row, then the follow-up read finds the
	// settlement with issued_at already set.
	mock.ExpectQuery(`update settlements set status='issued'`).
		WithArgs("stl-1").
		WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery(`select .* from settlements where id=\$1`).
		WithArgs("stl-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("stl-1", "unit-1", now, now, int64(90_000), int64(15_000), int64(8_000), int64(75_000), "issued", now, now))

	_, err := store.IssueSettlement(context.Background(), "stl-1")
	if !errors.Is(err, escrow.ErrAlreadyIssued) {
		t.Fatalf("expected ErrAlreadyIssued, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestIssueSettlementNotFound(t *testing.T) {
	store, mock := newMock(t)
	cols := []string{
		"id", "unit_id", "period_start", "period_end",
		"total_gross", "total_deductions", "total_fuel", "net_amount", "status", "issued_at", "created_at",
	}

	mock.ExpectQuery(`update settlements set status='issued'`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery(`select .* from settlements where id=\$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(cols))

	_, err := store.IssueSettlement(context.Background(), "missing")
	if !errors.Is(err, escrow.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestCreateSettlementNetIdentity(t *testing.T) {
	store, mock := newMock(t)

	_, err := store.CreateSettlement(context.Background(), escrow.Settlement{
		UnitID:          "unit-1",
		PeriodStart:     time.Now(),
		PeriodEnd:       time.Now().AddDate(0, 0, 7),
		TotalGross:      90_000,
		TotalDeductions: 15_000,
		NetAmount:       1,
	})
	if !errors.Is(err, escrow.ErrNetMismatch) {
		t.Fatalf("expected ErrNetMismatch, got %v", err)
	}
	expectationsMet(t, mock)
}
