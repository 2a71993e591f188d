package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/ticketdex/settlement-scheduler/pkg/ledger"
	"github.com/ticketdex/settlement-scheduler/pkg/store"
)

func newTestWorker(t *testing.T, mock *MockLedgerClient) (*Worker, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	return NewWorker(st, mock, zap.NewNop(), 5), st
}

func TestRunCycle_EnqueuesExpiredAuctions(t *testing.T) {
	w, st := newTestWorker(t, &MockLedgerClient{})
	if err := st.UpdateConfig(func(c *store.SchedulerConfig) {
		c.SettlementEnabled = false
	}); err != nil {
		t.Fatalf("failed to disable settlement: %v", err)
	}

	now := time.Now().Unix()
	seedAuction(t, st, "1", now-60)
	seedAuction(t, st, "2", now+3600)

	if err := w.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	queue, err := st.Queue()
	if err != nil {
		t.Fatalf("failed to read queue: %v", err)
	}
	if len(queue) != 1 {
		t.Fatalf("expected 1 queued item, got %d", len(queue))
	}
	if queue[0].AuctionID != "1" {
		t.Errorf("expected auction 1 queued, got %s", queue[0].AuctionID)
	}
	if queue[0].Status != store.QueueStatusPending {
		t.Errorf("expected pending status, got %s", queue[0].Status)
	}
}

func TestRunCycle_SettlesExpiredAuction(t *testing.T) {
	var settled []string
	mock := &MockLedgerClient{
		SettleFunc: func(ctx context.Context, auctionID *big.Int, fee *ledger.FeeEstimate) (*types.Transaction, error) {
			settled = append(settled, auctionID.String())
			return dummyTx(), nil
		},
	}
	w, st := newTestWorker(t, mock)
	seedAuction(t, st, "1", time.Now().Unix()-60)

	if err := w.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(settled) != 1 || settled[0] != "1" {
		t.Fatalf("expected one settle call for auction 1, got %v", settled)
	}

	auction, err := st.GetAuction("1")
	if err != nil {
		t.Fatalf("failed to read auction: %v", err)
	}
	if !auction.IsSettled || auction.IsActive {
		t.Errorf("expected settled inactive auction, got settled=%v active=%v",
			auction.IsSettled, auction.IsActive)
	}
	if auction.SettlementTxHash == "" {
		t.Error("expected settlement tx hash recorded")
	}
	if auction.SettledAt == nil {
		t.Error("expected settledAt recorded")
	}

	queue, _ := st.Queue()
	if len(queue) != 0 {
		t.Errorf("expected queue drained, got %d items", len(queue))
	}
}

func TestRunCycle_FailureSchedulesRetry(t *testing.T) {
	mock := &MockLedgerClient{
		SettleFunc: func(ctx context.Context, auctionID *big.Int, fee *ledger.FeeEstimate) (*types.Transaction, error) {
			return nil, errors.New("execution reverted")
		},
	}
	w, st := newTestWorker(t, mock)
	seedAuction(t, st, "1", time.Now().Unix()-60)

	before := time.Now().UTC()
	if err := w.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	queue, err := st.Queue()
	if err != nil {
		t.Fatalf("failed to read queue: %v", err)
	}
	if len(queue) != 1 {
		t.Fatalf("expected item retained for retry, got %d items", len(queue))
	}
	item := queue[0]
	if item.Status != store.QueueStatusPending {
		t.Errorf("expected pending status for retry, got %s", item.Status)
	}
	if item.AttemptCount != 1 {
		t.Errorf("expected attempt count 1, got %d", item.AttemptCount)
	}
	if item.ErrorMessage != "execution reverted" {
		t.Errorf("unexpected error message %q", item.ErrorMessage)
	}

	// First failure backs off one minute.
	wantMin := before.Add(50 * time.Second)
	wantMax := before.Add(70 * time.Second)
	if item.NextAttemptAt.Before(wantMin) || item.NextAttemptAt.After(wantMax) {
		t.Errorf("expected next attempt ~1m out, got %s", item.NextAttemptAt.Sub(before))
	}

	auction, _ := st.GetAuction("1")
	if auction.IsSettled {
		t.Error("failed settlement must not mark the auction settled")
	}
}

func TestSettleOne_BackoffProgression(t *testing.T) {
	tests := []struct {
		attemptsBefore int
		backoffMinutes int
		terminal       bool
	}{
		{0, 1, false},
		{1, 2, false},
		{2, 4, false},
		{3, 8, false},
		{4, 16, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attemptsBefore), func(t *testing.T) {
			mock := &MockLedgerClient{
				SettleFunc: func(ctx context.Context, auctionID *big.Int, fee *ledger.FeeEstimate) (*types.Transaction, error) {
					return nil, errors.New("nonce too low")
				},
			}
			w, st := newTestWorker(t, mock)
			seedAuction(t, st, "1", time.Now().Unix()-60)
			if err := st.AddToQueue("1", timeNow()); err != nil {
				t.Fatalf("failed to enqueue: %v", err)
			}
			if err := st.UpdateQueueItem("1", func(q *store.QueueItem) {
				q.AttemptCount = tt.attemptsBefore
			}); err != nil {
				t.Fatalf("failed to set attempt count: %v", err)
			}

			queue, _ := st.Queue()
			before := time.Now().UTC()
			if err := w.settleOne(context.Background(), queue[0], 5); err == nil {
				t.Fatal("expected settlement error")
			}

			queue, _ = st.Queue()
			item := queue[0]

			wantStatus := store.QueueStatusPending
			if tt.terminal {
				wantStatus = store.QueueStatusFailed
			}
			if item.Status != wantStatus {
				t.Errorf("expected status %s, got %s", wantStatus, item.Status)
			}
			if item.AttemptCount != tt.attemptsBefore+1 {
				t.Errorf("expected attempt count %d, got %d", tt.attemptsBefore+1, item.AttemptCount)
			}

			backoff := time.Duration(tt.backoffMinutes) * time.Minute
			got := item.NextAttemptAt.Sub(before)
			if got < backoff-10*time.Second || got > backoff+10*time.Second {
				t.Errorf("expected backoff ~%s, got %s", backoff, got)
			}
		})
	}
}

func TestRunCycle_SkipsExhaustedItems(t *testing.T) {
	settleCalls := 0
	mock := &MockLedgerClient{
		SettleFunc: func(ctx context.Context, auctionID *big.Int, fee *ledger.FeeEstimate) (*types.Transaction, error) {
			settleCalls++
			return dummyTx(), nil
		},
	}
	w, st := newTestWorker(t, mock)
	seedAuction(t, st, "1", time.Now().Unix()-60)
	if err := st.AddToQueue("1", timeNow()); err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}
	if err := st.UpdateQueueItem("1", func(q *store.QueueItem) {
		q.Status = store.QueueStatusFailed
		q.AttemptCount = 5
	}); err != nil {
		t.Fatalf("failed to exhaust item: %v", err)
	}

	if err := w.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settleCalls != 0 {
		t.Errorf("expected no settle calls for exhausted item, got %d", settleCalls)
	}
}

func TestRunCycle_BatchCap(t *testing.T) {
	settleCalls := 0
	mock := &MockLedgerClient{
		SettleFunc: func(ctx context.Context, auctionID *big.Int, fee *ledger.FeeEstimate) (*types.Transaction, error) {
			settleCalls++
			return dummyTx(), nil
		},
	}
	w, st := newTestWorker(t, mock)

	expiry := time.Now().Unix() - 60
	for i := 1; i <= 7; i++ {
		seedAuction(t, st, fmt.Sprintf("%d", i), expiry)
	}

	if err := w.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settleCalls != 5 {
		t.Errorf("expected 5 settle calls in one cycle, got %d", settleCalls)
	}

	queue, _ := st.Queue()
	if len(queue) != 2 {
		t.Errorf("expected 2 items left for the next cycle, got %d", len(queue))
	}
}

func TestSettleNow(t *testing.T) {
	mock := &MockLedgerClient{}
	w, st := newTestWorker(t, mock)

	if err := w.SettleNow(context.Background(), "42"); err == nil {
		t.Error("expected error for unknown auction")
	}

	seedAuction(t, st, "1", time.Now().Unix()-60)
	if err := w.SettleNow(context.Background(), "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	auction, _ := st.GetAuction("1")
	if !auction.IsSettled {
		t.Error("expected auction settled")
	}

	if err := w.SettleNow(context.Background(), "1"); err == nil {
		t.Error("expected error for already settled auction")
	}
}
