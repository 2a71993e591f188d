package scheduler

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/ticketdex/settlement-scheduler/internal/metrics"
	"github.com/ticketdex/settlement-scheduler/pkg/config"
	"github.com/ticketdex/settlement-scheduler/pkg/ledger"
	"github.com/ticketdex/settlement-scheduler/pkg/store"
)

// LedgerClient defines the interface for auction contract interactions.
type LedgerClient interface {
	BlockHeight(ctx context.Context) (uint64, error)
	QueryEvents(ctx context.Context, name string, fromBlock, toBlock uint64) ([]ledger.Event, error)
	FeeEstimate(ctx context.Context) (*ledger.FeeEstimate, error)
	Settle(ctx context.Context, auctionID *big.Int, fee *ledger.FeeEstimate) (*types.Transaction, error)
	WaitConfirmed(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// pollRetryDelay holds off the next event poll after a failed one so a flaky
// RPC endpoint is not hammered at full cadence.
const pollRetryDelay = 5 * time.Second

// Supervisor owns the scheduler's periodic loops: the settlement cycle, the
// event poll and the heartbeat. Each loop runs its pass immediately on start
// and then on its ticker. A shared mutex serializes event polls and
// settlement cycles so the two never interleave store mutations.
type Supervisor struct {
	config     *config.SchedulerConfig
	store      *store.Store
	reconciler *Reconciler
	worker     *Worker
	logger     *zap.Logger

	// tickMu serializes reconciliation and settlement passes.
	tickMu sync.Mutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSupervisor creates a supervisor over the given reconciler and worker.
func NewSupervisor(
	cfg *config.SchedulerConfig,
	st *store.Store,
	reconciler *Reconciler,
	worker *Worker,
	logger *zap.Logger,
) *Supervisor {
	return &Supervisor{
		config:     cfg,
		store:      st,
		reconciler: reconciler,
		worker:     worker,
		logger:     logger,
	}
}

// Start launches the periodic loops. Starting a running supervisor is a
// no-op; a stopped supervisor can be started again.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("Scheduler already running")
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("Starting settlement scheduler",
		zap.Duration("settlement_interval", s.config.SettlementInterval()),
		zap.Duration("event_poll_interval", s.config.EventPollInterval()))

	if err := s.store.AppendLog("info", "Settlement scheduler started", nil); err != nil {
		s.logger.Error("Failed to record startup", zap.Error(err))
	}

	s.wg.Add(3)
	go s.settlementLoop(ctx, s.stopCh)
	go s.eventLoop(ctx, s.stopCh)
	go s.heartbeatLoop(ctx, s.stopCh)

	return nil
}

// Stop halts the loops and waits for in-flight passes to finish. Stopping a
// stopped supervisor is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()

	if err := s.store.AppendLog("info", "Settlement scheduler stopped", nil); err != nil {
		s.logger.Error("Failed to record shutdown", zap.Error(err))
	}
	s.logger.Info("Settlement scheduler stopped")
}

// IsRunning reports whether the loops are active.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Supervisor) settlementLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	s.runSettlementPass(ctx)

	ticker := time.NewTicker(s.config.SettlementInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.runSettlementPass(ctx)
		}
	}
}

func (s *Supervisor) runSettlementPass(ctx context.Context) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if err := s.worker.RunCycle(ctx); err != nil {
		s.logger.Error("Settlement cycle failed", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("worker", "cycle").Inc()
	}
}

func (s *Supervisor) eventLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	s.runEventPass(ctx, stopCh)

	ticker := time.NewTicker(s.config.EventPollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.runEventPass(ctx, stopCh)
		}
	}
}

// runEventPass polls once. A failed poll leaves the checkpoint alone, so the
// next pass retries the same block range after a short delay.
func (s *Supervisor) runEventPass(ctx context.Context, stopCh <-chan struct{}) {
	s.tickMu.Lock()
	err := s.reconciler.Poll(ctx)
	s.tickMu.Unlock()

	if err == nil {
		return
	}

	s.logger.Error("Event poll failed", zap.Error(err))
	metrics.ErrorsTotal.WithLabelValues("reconciler", "poll").Inc()
	if logErr := s.store.AppendLog("error", "Error polling for events", map[string]any{
		"error": err.Error(),
	}); logErr != nil {
		s.logger.Error("Failed to record poll error", zap.Error(logErr))
	}

	select {
	case <-ctx.Done():
	case <-stopCh:
	case <-time.After(pollRetryDelay):
	}
}

func (s *Supervisor) heartbeatLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	s.runHeartbeat()

	ticker := time.NewTicker(s.config.HeartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.runHeartbeat()
		}
	}
}

// runHeartbeat emits a liveness line and refreshes the queue depth gauges.
func (s *Supervisor) runHeartbeat() {
	metrics.Heartbeats.Inc()

	queue, err := s.store.Queue()
	if err != nil {
		s.logger.Error("Heartbeat queue read failed", zap.Error(err))
		return
	}

	counts := map[store.QueueStatus]int{}
	for _, item := range queue {
		counts[item.Status]++
	}
	for _, status := range []store.QueueStatus{
		store.QueueStatusPending,
		store.QueueStatusProcessing,
		store.QueueStatusCompleted,
		store.QueueStatusFailed,
	} {
		metrics.QueueDepth.WithLabelValues(string(status)).Set(float64(counts[status]))
	}

	s.logger.Debug("Scheduler heartbeat",
		zap.Int("queue_depth", len(queue)),
		zap.Int("pending", counts[store.QueueStatusPending]),
		zap.Int("failed", counts[store.QueueStatusFailed]))
}
