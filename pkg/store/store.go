package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	auctionsFile = "auctions.json"
	queueFile    = "settlement-queue.json"
	configFile   = "config.json"
	logFile      = "settlement-log.json"

	// logCap bounds the persisted log collection; the oldest entries are
	// pruned once the cap is exceeded.
	logCap = 1000
)

// Store persists the scheduler's four collections as JSON documents under a
// single data directory. Every operation reads or writes a whole collection
// atomically; read-modify-write sequencing is the caller's responsibility.
// I/O errors propagate to the caller, which treats them as fatal for the
// current cycle and relies on the next tick to retry.
type Store struct {
	dataDir string
	logger  *zap.Logger

	mu sync.Mutex
}

// New creates a store rooted at dataDir. Call Init before first use.
func New(dataDir string, logger *zap.Logger) *Store {
	return &Store{dataDir: dataDir, logger: logger}
}

// Init creates the data directory and seeds any missing collection with its
// first-run default document.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := s.seed(auctionsFile, map[string]Auction{}); err != nil {
		return err
	}
	if err := s.seed(queueFile, []QueueItem{}); err != nil {
		return err
	}
	if err := s.seed(configFile, SchedulerConfig{
		LastProcessedBlock:    0,
		SettlementIntervalMs:  60_000,
		MaxSettlementAttempts: 5,
		SettlementEnabled:     true,
	}); err != nil {
		return err
	}
	if err := s.seed(logFile, []LogEntry{}); err != nil {
		return err
	}

	s.logger.Info("Durable store initialized", zap.String("data_dir", s.dataDir))
	return nil
}

func (s *Store) seed(name string, doc any) error {
	path := filepath.Join(s.dataDir, name)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat %s: %w", name, err)
	}
	return s.writeJSON(name, doc)
}

func (s *Store) readJSON(name string, out any) error {
	data, err := os.ReadFile(filepath.Join(s.dataDir, name))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

// writeJSON replaces a collection document. The write goes to a temp file in
// the same directory followed by a rename, so a crash mid-write never leaves
// a truncated document behind.
func (s *Store) writeJSON(name string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	path := filepath.Join(s.dataDir, name)
	tmp, err := os.CreateTemp(s.dataDir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file for %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

// Auctions returns the full mirrored auction collection keyed by id.
func (s *Store) Auctions() (map[string]Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var auctions map[string]Auction
	if err := s.readJSON(auctionsFile, &auctions); err != nil {
		return nil, err
	}
	return auctions, nil
}

// GetAuction returns one auction, or nil if it is not mirrored.
func (s *Store) GetAuction(id string) (*Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var auctions map[string]Auction
	if err := s.readJSON(auctionsFile, &auctions); err != nil {
		return nil, err
	}
	a, ok := auctions[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// PutAuction inserts or replaces an auction record, stamping CreatedAt on
// first write and UpdatedAt always.
func (s *Store) PutAuction(a *Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var auctions map[string]Auction
	if err := s.readJSON(auctionsFile, &auctions); err != nil {
		return err
	}

	now := time.Now().UTC()
	if existing, ok := auctions[a.ID]; ok {
		a.CreatedAt = existing.CreatedAt
	} else {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	auctions[a.ID] = *a

	return s.writeJSON(auctionsFile, auctions)
}

// UpdateAuction applies fn to the named auction and persists the result.
// Missing auctions are a no-op, mirroring ledger events that reference state
// older than the checkpoint seed.
func (s *Store) UpdateAuction(id string, fn func(*Auction)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var auctions map[string]Auction
	if err := s.readJSON(auctionsFile, &auctions); err != nil {
		return err
	}
	a, ok := auctions[id]
	if !ok {
		return nil
	}

	fn(&a)
	a.UpdatedAt = time.Now().UTC()
	auctions[id] = a

	return s.writeJSON(auctionsFile, auctions)
}

// ExpiredAuctions returns every auction past expiry that is still active and
// unsettled.
func (s *Store) ExpiredAuctions(now time.Time) ([]Auction, error) {
	auctions, err := s.Auctions()
	if err != nil {
		return nil, err
	}

	var expired []Auction
	for _, a := range auctions {
		if a.Expired(now) {
			expired = append(expired, a)
		}
	}
	return expired, nil
}

// Queue returns the settlement queue in insertion order.
func (s *Store) Queue() ([]QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var queue []QueueItem
	if err := s.readJSON(queueFile, &queue); err != nil {
		return nil, err
	}
	return queue, nil
}

// AddToQueue enqueues an auction for settlement. Enqueuing an auction that is
// already queued is an idempotent no-op recorded as an info log entry, not an
// error.
func (s *Store) AddToQueue(auctionID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var queue []QueueItem
	if err := s.readJSON(queueFile, &queue); err != nil {
		return err
	}

	for _, item := range queue {
		if item.AuctionID == auctionID {
			return s.appendLogLocked("info", "Auction already in settlement queue",
				map[string]any{"auctionId": auctionID})
		}
	}

	queue = append(queue, QueueItem{
		AuctionID:     auctionID,
		Status:        QueueStatusPending,
		AttemptCount:  0,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err := s.writeJSON(queueFile, queue); err != nil {
		return err
	}

	s.logger.Info("Auction added to settlement queue", zap.String("auction_id", auctionID))
	return nil
}

// UpdateQueueItem applies fn to the queue item for auctionID. No-op if absent.
func (s *Store) UpdateQueueItem(auctionID string, fn func(*QueueItem)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var queue []QueueItem
	if err := s.readJSON(queueFile, &queue); err != nil {
		return err
	}

	for i := range queue {
		if queue[i].AuctionID == auctionID {
			fn(&queue[i])
			queue[i].UpdatedAt = time.Now().UTC()
			return s.writeJSON(queueFile, queue)
		}
	}
	return nil
}

// RemoveFromQueue drops the queue item for auctionID. Removing an absent item
// is a no-op, so a settlement confirmation observed twice converges cleanly.
func (s *Store) RemoveFromQueue(auctionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var queue []QueueItem
	if err := s.readJSON(queueFile, &queue); err != nil {
		return err
	}

	filtered := queue[:0]
	for _, item := range queue {
		if item.AuctionID != auctionID {
			filtered = append(filtered, item)
		}
	}
	if len(filtered) == len(queue) {
		return nil
	}
	return s.writeJSON(queueFile, filtered)
}

// PendingSettlements returns queue items eligible for an attempt now, in
// insertion order: pending status, retry gate elapsed, attempt budget left.
func (s *Store) PendingSettlements(now time.Time, maxAttempts int) ([]QueueItem, error) {
	queue, err := s.Queue()
	if err != nil {
		return nil, err
	}

	var eligible []QueueItem
	for _, item := range queue {
		if item.Status == QueueStatusPending &&
			!item.NextAttemptAt.After(now) &&
			item.AttemptCount < maxAttempts {
			eligible = append(eligible, item)
		}
	}
	return eligible, nil
}

// PruneQueue drops completed leftovers from the queue and reports how many
// were removed. Pending, processing and failed items are retained.
func (s *Store) PruneQueue() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var queue []QueueItem
	if err := s.readJSON(queueFile, &queue); err != nil {
		return 0, err
	}

	kept := queue[:0]
	for _, item := range queue {
		if item.Status != QueueStatusCompleted {
			kept = append(kept, item)
		}
	}
	removed := len(queue) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	return removed, s.writeJSON(queueFile, kept)
}

// Config returns the persisted scheduler configuration singleton.
func (s *Store) Config() (*SchedulerConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cfg SchedulerConfig
	if err := s.readJSON(configFile, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpdateConfig applies fn to the persisted configuration and writes it back.
func (s *Store) UpdateConfig(fn func(*SchedulerConfig)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cfg SchedulerConfig
	if err := s.readJSON(configFile, &cfg); err != nil {
		return err
	}
	fn(&cfg)
	return s.writeJSON(configFile, cfg)
}

// AppendLog appends an operational log entry, pruning the oldest entries once
// the collection exceeds its cap.
func (s *Store) AppendLog(level, message string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLogLocked(level, message, data)
}

func (s *Store) appendLogLocked(level, message string, data map[string]any) error {
	var logs []LogEntry
	if err := s.readJSON(logFile, &logs); err != nil {
		return err
	}

	logs = append(logs, LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Data:      data,
	})
	if len(logs) > logCap {
		logs = logs[len(logs)-logCap:]
	}
	return s.writeJSON(logFile, logs)
}

// RecentLogs returns the most recent n log entries, oldest first.
func (s *Store) RecentLogs(n int) ([]LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var logs []LogEntry
	if err := s.readJSON(logFile, &logs); err != nil {
		return nil, err
	}
	if n > 0 && len(logs) > n {
		logs = logs[len(logs)-n:]
	}
	return logs, nil
}

// TrimLogs discards all but the most recent keep entries and reports how many
// were dropped.
func (s *Store) TrimLogs(keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var logs []LogEntry
	if err := s.readJSON(logFile, &logs); err != nil {
		return 0, err
	}
	if len(logs) <= keep {
		return 0, nil
	}
	dropped := len(logs) - keep
	return dropped, s.writeJSON(logFile, logs[dropped:])
}
