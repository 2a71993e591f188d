package scheduler

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/ticketdex/settlement-scheduler/internal/metrics"
	"github.com/ticketdex/settlement-scheduler/pkg/store"
)

// Worker drives the settlement pipeline: it sweeps the auction mirror for
// newly expired auctions, enqueues them, and works the queue with a bounded
// retry budget. Attempts run sequentially so the coordinator account never
// races itself on nonces.
type Worker struct {
	store     *store.Store
	ledger    LedgerClient
	logger    *zap.Logger
	batchSize int
}

// NewWorker creates a settlement worker. batchSize caps how many queue items
// one cycle may attempt.
func NewWorker(st *store.Store, lc LedgerClient, logger *zap.Logger, batchSize int) *Worker {
	return &Worker{store: st, ledger: lc, logger: logger, batchSize: batchSize}
}

// RunCycle performs one settlement pass: discover expired auctions, enqueue
// them, then attempt every eligible queue item up to the batch cap. A failed
// attempt does not abort the cycle; each remaining item still gets its turn.
func (w *Worker) RunCycle(ctx context.Context) error {
	now := time.Now().UTC()

	expired, err := w.store.ExpiredAuctions(now)
	if err != nil {
		return err
	}
	for _, a := range expired {
		if err := w.store.AddToQueue(a.ID, now); err != nil {
			return err
		}
	}
	if len(expired) > 0 {
		metrics.ExpiredAuctions.Add(float64(len(expired)))
		w.logger.Info("Found expired auctions", zap.Int("count", len(expired)))
	}

	cfg, err := w.store.Config()
	if err != nil {
		return err
	}
	if !cfg.SettlementEnabled {
		w.logger.Debug("Settlement disabled, skipping queue")
		return nil
	}

	pending, err := w.store.PendingSettlements(now, cfg.MaxSettlementAttempts)
	if err != nil {
		return err
	}
	if len(pending) > w.batchSize {
		pending = pending[:w.batchSize]
	}

	for _, item := range pending {
		if err := w.settleOne(ctx, item, cfg.MaxSettlementAttempts); err != nil {
			w.logger.Error("Settlement attempt failed",
				zap.String("auction_id", item.AuctionID),
				zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("worker", "settlement").Inc()
		}
	}
	return nil
}

// SettleNow runs a single settlement attempt for one auction outside the
// periodic cycle, enqueuing it first if needed. Used by the manual
// settlement path.
func (w *Worker) SettleNow(ctx context.Context, auctionID string) error {
	auction, err := w.store.GetAuction(auctionID)
	if err != nil {
		return err
	}
	if auction == nil {
		return fmt.Errorf("auction %s not found", auctionID)
	}
	if auction.IsSettled {
		return fmt.Errorf("auction %s is already settled", auctionID)
	}

	if err := w.store.AddToQueue(auctionID, time.Now().UTC()); err != nil {
		return err
	}

	cfg, err := w.store.Config()
	if err != nil {
		return err
	}

	queue, err := w.store.Queue()
	if err != nil {
		return err
	}
	for _, item := range queue {
		if item.AuctionID == auctionID {
			return w.settleOne(ctx, item, cfg.MaxSettlementAttempts)
		}
	}
	return fmt.Errorf("auction %s missing from settlement queue", auctionID)
}

// settleOne submits one settlement transaction and waits for confirmation.
// item carries the attempt count before this attempt; failures schedule a
// retry with exponential backoff, or mark the item failed once the attempt
// budget is spent.
func (w *Worker) settleOne(ctx context.Context, item store.QueueItem, maxAttempts int) error {
	w.logger.Info("Attempting settlement",
		zap.String("auction_id", item.AuctionID),
		zap.Int("attempt", item.AttemptCount+1))

	if err := w.store.UpdateQueueItem(item.AuctionID, func(q *store.QueueItem) {
		q.Status = store.QueueStatusProcessing
		q.AttemptCount = item.AttemptCount + 1
	}); err != nil {
		return err
	}

	start := time.Now()
	err := w.submitAndConfirm(ctx, item.AuctionID)
	metrics.SettlementDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		return w.recordFailure(item, maxAttempts, err)
	}

	metrics.SettlementsTotal.WithLabelValues("success").Inc()
	return nil
}

func (w *Worker) submitAndConfirm(ctx context.Context, auctionID string) error {
	id, ok := new(big.Int).SetString(auctionID, 10)
	if !ok {
		return fmt.Errorf("invalid auction id %q", auctionID)
	}

	fee, err := w.ledger.FeeEstimate(ctx)
	if err != nil {
		return err
	}

	tx, err := w.ledger.Settle(ctx, id, fee)
	if err != nil {
		return err
	}
	if err := w.store.AppendLog("info", "Settlement transaction sent", map[string]any{
		"auctionId": auctionID,
		"txHash":    tx.Hash().Hex(),
	}); err != nil {
		return err
	}

	receipt, err := w.ledger.WaitConfirmed(ctx, tx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	txHash := receipt.TxHash.Hex()
	if err := w.store.UpdateAuction(auctionID, func(a *store.Auction) {
		a.IsSettled = true
		a.IsActive = false
		a.SettlementTxHash = txHash
		a.SettledAt = &now
	}); err != nil {
		return err
	}
	if err := w.store.RemoveFromQueue(auctionID); err != nil {
		return err
	}

	metrics.GasUsed.Observe(float64(receipt.GasUsed))
	w.logger.Info("Auction successfully settled",
		zap.String("auction_id", auctionID),
		zap.String("tx_hash", txHash),
		zap.Uint64("gas_used", receipt.GasUsed))
	return w.store.AppendLog("info", "Auction successfully settled", map[string]any{
		"auctionId": auctionID,
		"txHash":    txHash,
		"gasUsed":   receipt.GasUsed,
	})
}

// recordFailure schedules the retry or marks the item terminally failed. The
// backoff doubles per attempt already made, capped at an hour.
func (w *Worker) recordFailure(item store.QueueItem, maxAttempts int, cause error) error {
	backoffMinutes := int64(1) << item.AttemptCount
	if backoffMinutes > 60 {
		backoffMinutes = 60
	}
	nextAttemptAt := time.Now().UTC().Add(time.Duration(backoffMinutes) * time.Minute)

	terminal := item.AttemptCount >= maxAttempts-1
	status := store.QueueStatusPending
	if terminal {
		status = store.QueueStatusFailed
	}

	if err := w.store.UpdateQueueItem(item.AuctionID, func(q *store.QueueItem) {
		q.Status = status
		q.ErrorMessage = cause.Error()
		q.NextAttemptAt = nextAttemptAt
	}); err != nil {
		return err
	}

	if terminal {
		metrics.SettlementsTotal.WithLabelValues("failed").Inc()
		if err := w.store.AppendLog("error", "Settlement failed - max attempts reached", map[string]any{
			"auctionId":    item.AuctionID,
			"error":        cause.Error(),
			"attemptCount": item.AttemptCount + 1,
		}); err != nil {
			return err
		}
	} else {
		metrics.SettlementsTotal.WithLabelValues("retry").Inc()
		if err := w.store.AppendLog("warn", "Settlement failed - will retry", map[string]any{
			"auctionId":     item.AuctionID,
			"error":         cause.Error(),
			"nextAttemptAt": nextAttemptAt,
			"attemptCount":  item.AttemptCount + 1,
		}); err != nil {
			return err
		}
	}
	return cause
}
