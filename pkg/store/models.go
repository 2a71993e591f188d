package store

import (
	"time"
)

// QueueStatus represents the current state of a settlement queue item
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
)

// Auction is the locally mirrored view of an on-chain auction. The ledger is
// authoritative for every field except the store-managed timestamps; record
// values lag the chain until the next reconciliation tick.
type Auction struct {
	ID            string `json:"id"`
	TicketID      string `json:"ticketId"`
	TicketCount   string `json:"ticketCount"`
	StartPrice    string `json:"startPrice"`
	BuyNowPrice   string `json:"buyNowPrice"`
	MinIncrement  string `json:"minIncrement"`
	HighestBid    string `json:"highestBid"`
	HighestBidder string `json:"highestBidder,omitempty"`
	ExpiryTime    int64  `json:"expiryTime"`
	Seller        string `json:"seller"`
	IsActive      bool   `json:"isActive"`
	IsSettled     bool   `json:"isSettled"`

	// Provenance of the creating event and, once settled, of the settlement.
	TransactionHash  string     `json:"transactionHash,omitempty"`
	BlockNumber      uint64     `json:"blockNumber,omitempty"`
	SettlementTxHash string     `json:"settlementTxHash,omitempty"`
	SettledAt        *time.Time `json:"settledAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Expired reports whether the auction is past expiry and still needs
// settlement.
func (a *Auction) Expired(now time.Time) bool {
	return a.ExpiryTime <= now.Unix() && a.IsActive && !a.IsSettled
}

// QueueItem is one settlement attempt record. AuctionID is unique within the
// queue; the store enforces this on insert.
type QueueItem struct {
	AuctionID     string      `json:"auctionId"`
	Status        QueueStatus `json:"status"`
	AttemptCount  int         `json:"attemptCount"`
	NextAttemptAt time.Time   `json:"nextAttemptAt"`
	ErrorMessage  string      `json:"errorMessage,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// SchedulerConfig is the persisted singleton scheduler state.
// LastProcessedBlock only advances after a block range's events have been
// fully applied.
type SchedulerConfig struct {
	LastProcessedBlock    uint64 `json:"lastProcessedBlock"`
	SettlementIntervalMs  int64  `json:"settlementIntervalMs"`
	MaxSettlementAttempts int    `json:"maxSettlementAttempts"`
	CoordinatorAddress    string `json:"coordinatorAddress"`
	ContractAddress       string `json:"contractAddress"`
	RPCURL                string `json:"rpcUrl"`
	SettlementEnabled     bool   `json:"settlementEnabled"`
}

// LogEntry is one append-only operational log record.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}
