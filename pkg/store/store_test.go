package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir(), zap.NewNop())
	require.NoError(t, s.Init())
	return s
}

func TestInit_SeedsDefaults(t *testing.T) {
	s := newTestStore(t)

	auctions, err := s.Auctions()
	require.NoError(t, err)
	require.Empty(t, auctions)

	queue, err := s.Queue()
	require.NoError(t, err)
	require.Empty(t, queue)

	cfg, err := s.Config()
	require.NoError(t, err)
	require.Equal(t, uint64(0), cfg.LastProcessedBlock)
	require.Equal(t, int64(60_000), cfg.SettlementIntervalMs)
	require.Equal(t, 5, cfg.MaxSettlementAttempts)
	require.True(t, cfg.SettlementEnabled)
}

func TestInit_DoesNotOverwriteExistingState(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpdateConfig(func(c *SchedulerConfig) {
		c.LastProcessedBlock = 777
	}))

	// Second Init simulates a process restart.
	require.NoError(t, s.Init())

	cfg, err := s.Config()
	require.NoError(t, err)
	require.Equal(t, uint64(777), cfg.LastProcessedBlock)
}

func TestPutAuction_StampsTimestamps(t *testing.T) {
	s := newTestStore(t)

	a := &Auction{ID: "1", TicketID: "10", HighestBid: "0", IsActive: true}
	require.NoError(t, s.PutAuction(a))
	require.False(t, a.CreatedAt.IsZero())

	created := a.CreatedAt

	a.HighestBid = "500000"
	require.NoError(t, s.PutAuction(a))
	require.Equal(t, created, a.CreatedAt)

	got, err := s.GetAuction("1")
	require.NoError(t, err)
	require.Equal(t, "500000", got.HighestBid)
	require.Equal(t, created, got.CreatedAt)
}

func TestGetAuction_MissingReturnsNil(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetAuction("nope")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestUpdateAuction_MissingIsNoop(t *testing.T) {
	s := newTestStore(t)

	called := false
	require.NoError(t, s.UpdateAuction("nope", func(*Auction) { called = true }))
	require.False(t, called)
}

func TestExpiredAuctions(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	require.NoError(t, s.PutAuction(&Auction{
		ID: "expired", ExpiryTime: now.Unix() - 1, IsActive: true,
	}))
	require.NoError(t, s.PutAuction(&Auction{
		ID: "live", ExpiryTime: now.Unix() + 3600, IsActive: true,
	}))
	require.NoError(t, s.PutAuction(&Auction{
		ID: "settled", ExpiryTime: now.Unix() - 100, IsActive: false, IsSettled: true,
	}))

	expired, err := s.ExpiredAuctions(now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, "expired", expired[0].ID)
}

func TestAddToQueue_Dedup(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.AddToQueue("7", now))
	require.NoError(t, s.AddToQueue("7", now))

	queue, err := s.Queue()
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Equal(t, "7", queue[0].AuctionID)
	require.Equal(t, QueueStatusPending, queue[0].Status)
	require.Equal(t, 0, queue[0].AttemptCount)

	// The duplicate enqueue is logged, not dropped silently.
	logs, err := s.RecentLogs(10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "info", logs[0].Level)
}

func TestRemoveFromQueue_AbsentIsNoop(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AddToQueue("1", time.Now()))
	require.NoError(t, s.RemoveFromQueue("1"))
	require.NoError(t, s.RemoveFromQueue("1"))

	queue, err := s.Queue()
	require.NoError(t, err)
	require.Empty(t, queue)
}

func TestPendingSettlements_Gating(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.AddToQueue("due", now.Add(-time.Minute)))
	require.NoError(t, s.AddToQueue("future", now.Add(-time.Minute)))
	require.NoError(t, s.UpdateQueueItem("future", func(q *QueueItem) {
		q.NextAttemptAt = now.Add(time.Hour)
	}))
	require.NoError(t, s.AddToQueue("exhausted", now.Add(-time.Minute)))
	require.NoError(t, s.UpdateQueueItem("exhausted", func(q *QueueItem) {
		q.AttemptCount = 5
	}))
	require.NoError(t, s.AddToQueue("failed", now.Add(-time.Minute)))
	require.NoError(t, s.UpdateQueueItem("failed", func(q *QueueItem) {
		q.Status = QueueStatusFailed
	}))

	eligible, err := s.PendingSettlements(now, 5)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	require.Equal(t, "due", eligible[0].AuctionID)
}

func TestPendingSettlements_InsertionOrder(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Add(-time.Minute)

	for _, id := range []string{"3", "1", "2"} {
		require.NoError(t, s.AddToQueue(id, now))
	}

	eligible, err := s.PendingSettlements(time.Now(), 5)
	require.NoError(t, err)
	require.Len(t, eligible, 3)
	require.Equal(t, "3", eligible[0].AuctionID)
	require.Equal(t, "1", eligible[1].AuctionID)
	require.Equal(t, "2", eligible[2].AuctionID)
}

func TestPruneQueue(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	require.NoError(t, s.AddToQueue("done", now))
	require.NoError(t, s.UpdateQueueItem("done", func(q *QueueItem) {
		q.Status = QueueStatusCompleted
	}))
	require.NoError(t, s.AddToQueue("stuck", now))
	require.NoError(t, s.UpdateQueueItem("stuck", func(q *QueueItem) {
		q.Status = QueueStatusFailed
	}))

	removed, err := s.PruneQueue()
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	queue, err := s.Queue()
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Equal(t, "stuck", queue[0].AuctionID)
}

func TestAppendLog_CapTrimsOldest(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < logCap+25; i++ {
		require.NoError(t, s.AppendLog("info", "entry", map[string]any{"i": i}))
	}

	logs, err := s.RecentLogs(0)
	require.NoError(t, err)
	require.Len(t, logs, logCap)

	// Oldest 25 entries were pruned, the rest preserved in order.
	require.EqualValues(t, 25, logs[0].Data["i"])
	require.EqualValues(t, logCap+24, logs[len(logs)-1].Data["i"])
}

func TestTrimLogs(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 30; i++ {
		require.NoError(t, s.AppendLog("info", "entry", nil))
	}

	dropped, err := s.TrimLogs(10)
	require.NoError(t, err)
	require.Equal(t, 20, dropped)

	logs, err := s.RecentLogs(0)
	require.NoError(t, err)
	require.Len(t, logs, 10)
}

func TestRecentLogs_Limit(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendLog("warn", "entry", map[string]any{"i": i}))
	}

	logs, err := s.RecentLogs(2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.EqualValues(t, 3, logs[0].Data["i"])
	require.EqualValues(t, 4, logs[1].Data["i"])
}
