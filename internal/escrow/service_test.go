package escrow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func openAccount(t *testing.T, s *InMemory, contractID string) EscrowAccount {
	t.Helper()
	acc, err := s.OpenAccount(context.Background(), contractID)
	if err != nil {
		t.Fatal(err)
	}
	return acc
}

func TestPostingSignsAndBalance(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	acc := openAccount(t, s, "c1")

	if _, err := s.PostTransaction(ctx, acc.ID, TxDeposit, 10_000, "initial reserve"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PostTransaction(ctx, acc.ID, TxInterest, 50, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PostTransaction(ctx, acc.ID, TxCharge, 2_000, "tire repair"); err != nil {
		t.Fatal(err)
	}
	tx, err := s.PostTransaction(ctx, acc.ID, TxWithdrawal, 1_000, "")
	if err != nil {
		t.Fatal(err)
	}

	if tx.BalanceAfter != 7_050 {
		t.Fatalf("unexpected running balance %d", tx.BalanceAfter)
	}
	got, _ := s.GetAccount(ctx, acc.ID)
	if got.Balance != 7_050 {
		t.Fatalf("materialized balance %d", got.Balance)
	}
}

func TestReplayReproducesBalance(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	acc := openAccount(t, s, "c1")

	_, _ = s.PostTransaction(ctx, acc.ID, TxDeposit, 5_000, "")
	_, _ = s.PostTransaction(ctx, acc.ID, TxCharge, 700, "")
	_, _ = s.PostTransaction(ctx, acc.ID, TxAdjustment, -300, "audit correction")
	_, _ = s.PostTransaction(ctx, acc.ID, TxDeposit, 42, "")

	replayed, err := s.Replay(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	acct, _ := s.GetAccount(ctx, acc.ID)
	if replayed != acct.Balance {
		t.Fatalf("replay %d != materialized %d", replayed, acct.Balance)
	}
	if replayed != 4_042 {
		t.Fatalf("unexpected balance %d", replayed)
	}
}

func TestSequenceIsGapless(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	acc := openAccount(t, s, "c1")
	_, _ = s.PostTransaction(ctx, acc.ID, TxDeposit, 1_000_000, "")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.PostTransaction(ctx, acc.ID, TxCharge, 10, "")
		}()
	}
	wg.Wait()

	txs, err := s.ListTransactions(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	for i, tx := range txs {
		if tx.Sequence != int64(i+1) {
			t.Fatalf("sequence gap at %d: got %d", i, tx.Sequence)
		}
	}
}

func TestPostingValidation(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	acc := openAccount(t, s, "c1")

	if _, err := s.PostTransaction(ctx, acc.ID, "refund", 100, ""); !errors.Is(err, ErrUnknownTransactionType) {
		t.Fatalf("expected ErrUnknownTransactionType, got %v", err)
	}
	if _, err := s.PostTransaction(ctx, acc.ID, TxDeposit, 0, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero deposit, got %v", err)
	}
	if _, err := s.PostTransaction(ctx, acc.ID, TxDeposit, -5, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative magnitude, got %v", err)
	}

	if _, err := s.SetAccountStatus(ctx, acc.ID, AccountFrozen); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PostTransaction(ctx, acc.ID, TxDeposit, 100, ""); !errors.Is(err, ErrAccountClosed) {
		t.Fatalf("frozen account must reject postings, got %v", err)
	}
}

func TestOverdraftPostsNegativeBalance(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	acc := openAccount(t, s, "c1")

	if _, err := s.PostTransaction(ctx, acc.ID, TxDeposit, 100, ""); err != nil {
		t.Fatal(err)
	}
	tx, err := s.PostTransaction(ctx, acc.ID, TxWithdrawal, 500, "emergency repair")
	if err != nil {
		t.Fatalf("withdrawal beyond the reserve must post, got %v", err)
	}
	if tx.BalanceAfter != -400 {
		t.Fatalf("running balance %d, want -400", tx.BalanceAfter)
	}

	got, _ := s.GetAccount(ctx, acc.ID)
	if got.Balance != -400 {
		t.Fatalf("materialized balance %d, want -400", got.Balance)
	}
	replayed, err := s.Replay(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if replayed != got.Balance {
		t.Fatalf("replay %d != materialized %d", replayed, got.Balance)
	}
}

func TestOneAccountPerContract(t *testing.T) {
	s := NewInMemory()
	openAccount(t, s, "c1")
	if _, err := s.OpenAccount(context.Background(), "c1"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestSettlementNetIdentity(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.CreateSettlement(ctx, Settlement{
		UnitID:          "u1",
		PeriodStart:     start,
		PeriodEnd:       start.AddDate(0, 0, 7),
		TotalGross:      100_000,
		TotalDeductions: 20_000,
		NetAmount:       70_000,
	})
	if !errors.Is(err, ErrNetMismatch) {
		t.Fatalf("expected ErrNetMismatch, got %v", err)
	}

	// TotalFuel is informational and never enters the identity.
	stl, err := s.CreateSettlement(ctx, Settlement{
		UnitID:          "u1",
		PeriodStart:     start,
		PeriodEnd:       start.AddDate(0, 0, 7),
		TotalGross:      100_000,
		TotalDeductions: 20_000,
		TotalFuel:       12_345,
		NetAmount:       80_000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if stl.Status != SettlementDraft || stl.IssuedAt != nil {
		t.Fatalf("new settlement must be an unissued draft: %+v", stl)
	}
	if stl.TotalFuel != 12_345 {
		t.Fatalf("fuel total must be preserved, got %d", stl.TotalFuel)
	}
}

func TestIssueSettlementOnce(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	stl, err := s.CreateSettlement(ctx, Settlement{
		UnitID:      "u1",
		PeriodStart: start,
		PeriodEnd:   start.AddDate(0, 0, 7),
		TotalGross:  50_000,
		NetAmount:   50_000,
	})
	if err != nil {
		t.Fatal(err)
	}

	issued, err := s.IssueSettlement(ctx, stl.ID)
	if err != nil {
		t.Fatal(err)
	}
	if issued.Status != SettlementIssued || issued.IssuedAt == nil {
		t.Fatalf("issuance must stamp the settlement: %+v", issued)
	}

	if _, err := s.IssueSettlement(ctx, stl.ID); !errors.Is(err, ErrAlreadyIssued) {
		t.Fatalf("second issuance must fail, got %v", err)
	}
}

func TestConcurrentIssuanceSingleWinner(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	stl, _ := s.CreateSettlement(ctx, Settlement{
		UnitID:      "u1",
		PeriodStart: start,
		PeriodEnd:   start.AddDate(0, 0, 7),
		TotalGross:  50_000,
		NetAmount:   50_000,
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IssueSettlement(ctx, stl.ID); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("exactly one issuance must win, got %d", wins)
	}
}
