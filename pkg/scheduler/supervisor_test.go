package scheduler

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ticketdex/settlement-scheduler/pkg/config"
	"github.com/ticketdex/settlement-scheduler/pkg/store"
)

func newTestSupervisor(t *testing.T, mock *MockLedgerClient) (*Supervisor, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	logger := zap.NewNop()
	// Intervals long enough that only the immediate first passes run during
	// the test.
	cfg := &config.SchedulerConfig{
		SettlementIntervalMs:  3_600_000,
		EventPollIntervalMs:   3_600_000,
		HeartbeatIntervalMs:   3_600_000,
		MaxSettlementAttempts: 5,
		SettlementBatchSize:   5,
	}
	reconciler := NewReconciler(st, mock, logger)
	worker := NewWorker(st, mock, logger, cfg.SettlementBatchSize)
	return NewSupervisor(cfg, st, reconciler, worker, logger), st
}

func TestSupervisor_StartStop(t *testing.T) {
	heightCalls := make(chan struct{}, 8)
	mock := &MockLedgerClient{
		BlockHeightFunc: func(ctx context.Context) (uint64, error) {
			heightCalls <- struct{}{}
			return 10, nil
		},
	}
	s, _ := newTestSupervisor(t, mock)

	if s.IsRunning() {
		t.Fatal("expected supervisor stopped before start")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	if !s.IsRunning() {
		t.Error("expected supervisor running after start")
	}

	// The event loop runs its first pass immediately, not on the first tick.
	select {
	case <-heightCalls:
	case <-time.After(2 * time.Second):
		t.Fatal("expected an immediate event poll after start")
	}

	s.Stop()
	if s.IsRunning() {
		t.Error("expected supervisor stopped after stop")
	}
}

func TestSupervisor_StartIdempotent(t *testing.T) {
	s, _ := newTestSupervisor(t, &MockLedgerClient{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	defer s.Stop()

	// Second start must not spawn a second set of loops or error.
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("second start errored: %v", err)
	}
	if !s.IsRunning() {
		t.Error("expected supervisor still running")
	}
}

func TestSupervisor_StopIdempotentAndRestartable(t *testing.T) {
	s, st := newTestSupervisor(t, &MockLedgerClient{
		BlockHeightFunc: func(ctx context.Context) (uint64, error) {
			return 10, nil
		},
	})

	s.Stop() // stop before start is a no-op

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	s.Stop()
	s.Stop() // double stop is a no-op

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("failed to restart: %v", err)
	}
	if !s.IsRunning() {
		t.Error("expected supervisor running after restart")
	}
	s.Stop()

	// Lifecycle transitions are recorded in the operational log.
	logs, err := st.RecentLogs(0)
	if err != nil {
		t.Fatalf("failed to read logs: %v", err)
	}
	var started, stopped int
	for _, entry := range logs {
		switch entry.Message {
		case "Settlement scheduler started":
			started++
		case "Settlement scheduler stopped":
			stopped++
		}
	}
	if started != 2 || stopped != 2 {
		t.Errorf("expected 2 start and 2 stop entries, got %d and %d", started, stopped)
	}
}
