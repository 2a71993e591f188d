package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ticketdex/settlement-scheduler/internal/metrics"
	"github.com/ticketdex/settlement-scheduler/pkg/ledger"
	"github.com/ticketdex/settlement-scheduler/pkg/store"
)

// Reconciler mirrors auction contract events into the durable store. Each
// Poll covers the block range after the persisted checkpoint up to the chain
// head; the checkpoint only advances once every event in the range has been
// applied, so a failed poll replays the same range. Handlers are idempotent
// to make that replay safe.
type Reconciler struct {
	store  *store.Store
	ledger LedgerClient
	logger *zap.Logger
}

// NewReconciler creates an event reconciler.
func NewReconciler(st *store.Store, lc LedgerClient, logger *zap.Logger) *Reconciler {
	return &Reconciler{store: st, ledger: lc, logger: logger}
}

// Poll processes all contract events between the checkpoint and the current
// chain head. On the very first run the checkpoint is seeded just below the
// head, so historical events are never backfilled.
func (r *Reconciler) Poll(ctx context.Context) error {
	cfg, err := r.store.Config()
	if err != nil {
		return err
	}

	height, err := r.ledger.BlockHeight(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain head: %w", err)
	}

	if cfg.LastProcessedBlock == 0 {
		seed := height
		if seed > 0 {
			seed--
		}
		if err := r.store.UpdateConfig(func(c *store.SchedulerConfig) {
			c.LastProcessedBlock = seed
		}); err != nil {
			return err
		}
		metrics.LastProcessedBlock.Set(float64(seed))
		r.logger.Info("Seeded event checkpoint", zap.Uint64("block", seed))
		return nil
	}

	if height <= cfg.LastProcessedBlock {
		r.logger.Debug("No new blocks",
			zap.Uint64("head", height),
			zap.Uint64("last_processed", cfg.LastProcessedBlock))
		return nil
	}

	fromBlock := cfg.LastProcessedBlock + 1
	toBlock := height
	r.logger.Debug("Polling events",
		zap.Uint64("from_block", fromBlock),
		zap.Uint64("to_block", toBlock))

	var events []ledger.Event
	for _, name := range ledger.EventNames {
		batch, err := r.ledger.QueryEvents(ctx, name, fromBlock, toBlock)
		if err != nil {
			return err
		}
		events = append(events, batch...)
	}

	// Apply in emission order across event types, not grouped per type, so a
	// create and its settlement landing in the same range resolve correctly.
	sort.Slice(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})

	for _, ev := range events {
		if err := r.apply(ev); err != nil {
			return fmt.Errorf("failed to apply %s event at block %d: %w", ev.Name, ev.BlockNumber, err)
		}
		metrics.EventsApplied.WithLabelValues(ev.Name).Inc()
	}

	if err := r.store.UpdateConfig(func(c *store.SchedulerConfig) {
		if toBlock > c.LastProcessedBlock {
			c.LastProcessedBlock = toBlock
		}
	}); err != nil {
		return err
	}
	metrics.LastProcessedBlock.Set(float64(toBlock))

	if len(events) > 0 {
		r.logger.Info("Processed events",
			zap.Int("count", len(events)),
			zap.Uint64("from_block", fromBlock),
			zap.Uint64("to_block", toBlock))
	}
	return nil
}

func (r *Reconciler) apply(ev ledger.Event) error {
	switch data := ev.Data.(type) {
	case *ledger.AuctionCreatedEvent:
		return r.applyCreated(ev, data)
	case *ledger.BidPlacedEvent:
		return r.applyBid(data)
	case *ledger.BuyNowExecutedEvent:
		return r.applyBuyNow(ev, data)
	case *ledger.AuctionSettledEvent:
		return r.applySettled(ev, data)
	case *ledger.AuctionRefundedEvent:
		return r.applyRefunded(data)
	case *ledger.CoordinatorUpdatedEvent:
		return r.applyCoordinatorUpdated(data)
	default:
		return fmt.Errorf("unhandled event %s", ev.Name)
	}
}

// applyCreated mirrors a new auction. Replaying a create for an auction that
// is already mirrored refreshes the static fields only, so bid and settlement
// state accumulated since the first application survives the replay.
func (r *Reconciler) applyCreated(ev ledger.Event, data *ledger.AuctionCreatedEvent) error {
	id := data.AuctionId.String()

	existing, err := r.store.GetAuction(id)
	if err != nil {
		return err
	}
	if existing != nil {
		return r.store.UpdateAuction(id, func(a *store.Auction) {
			a.TicketID = data.TicketId.String()
			a.TicketCount = data.TicketCount.String()
			a.StartPrice = data.StartPrice.String()
			a.BuyNowPrice = data.BuyNowPrice.String()
			a.MinIncrement = data.MinIncrement.String()
			a.ExpiryTime = data.ExpiryTime.Int64()
			a.Seller = data.Seller.Hex()
		})
	}

	auction := &store.Auction{
		ID:              id,
		TicketID:        data.TicketId.String(),
		TicketCount:     data.TicketCount.String(),
		StartPrice:      data.StartPrice.String(),
		BuyNowPrice:     data.BuyNowPrice.String(),
		MinIncrement:    data.MinIncrement.String(),
		HighestBid:      "0",
		ExpiryTime:      data.ExpiryTime.Int64(),
		Seller:          data.Seller.Hex(),
		IsActive:        true,
		IsSettled:       false,
		TransactionHash: ev.TxHash.Hex(),
		BlockNumber:     ev.BlockNumber,
	}
	if err := r.store.PutAuction(auction); err != nil {
		return err
	}

	r.logger.Info("New auction detected",
		zap.String("auction_id", id),
		zap.String("ticket_id", auction.TicketID))
	return r.store.AppendLog("info", "New auction detected", map[string]any{
		"auctionId":  id,
		"ticketId":   auction.TicketID,
		"expiryTime": auction.ExpiryTime,
		"seller":     auction.Seller,
	})
}

func (r *Reconciler) applyBid(data *ledger.BidPlacedEvent) error {
	id := data.AuctionId.String()
	if err := r.store.UpdateAuction(id, func(a *store.Auction) {
		a.HighestBid = data.BidAmount.String()
		a.HighestBidder = data.Bidder.Hex()
	}); err != nil {
		return err
	}

	r.logger.Info("Bid placed",
		zap.String("auction_id", id),
		zap.String("bidder", data.Bidder.Hex()),
		zap.String("amount", data.BidAmount.String()))
	return r.store.AppendLog("info", "Bid placed", map[string]any{
		"auctionId": id,
		"bidder":    data.Bidder.Hex(),
		"bidAmount": data.BidAmount.String(),
	})
}

// applyBuyNow resolves the auction immediately: the instant-buy path is
// terminal on chain, so the mirror is marked settled and any queued
// settlement work is dropped.
func (r *Reconciler) applyBuyNow(ev ledger.Event, data *ledger.BuyNowExecutedEvent) error {
	id := data.AuctionId.String()
	now := time.Now().UTC()
	if err := r.store.UpdateAuction(id, func(a *store.Auction) {
		a.HighestBid = data.BuyNowPrice.String()
		a.HighestBidder = data.Buyer.Hex()
		a.IsActive = false
		a.IsSettled = true
		a.SettlementTxHash = ev.TxHash.Hex()
		a.SettledAt = &now
	}); err != nil {
		return err
	}
	if err := r.store.RemoveFromQueue(id); err != nil {
		return err
	}

	r.logger.Info("Buy-now executed",
		zap.String("auction_id", id),
		zap.String("buyer", data.Buyer.Hex()))
	return r.store.AppendLog("info", "Buy-now executed", map[string]any{
		"auctionId": id,
		"buyer":     data.Buyer.Hex(),
		"price":     data.BuyNowPrice.String(),
		"txHash":    ev.TxHash.Hex(),
	})
}

func (r *Reconciler) applySettled(ev ledger.Event, data *ledger.AuctionSettledEvent) error {
	id := data.AuctionId.String()
	now := time.Now().UTC()
	if err := r.store.UpdateAuction(id, func(a *store.Auction) {
		a.IsActive = false
		a.IsSettled = true
		a.HighestBidder = data.Winner.Hex()
		a.HighestBid = data.WinningBid.String()
		a.SettlementTxHash = ev.TxHash.Hex()
		a.SettledAt = &now
	}); err != nil {
		return err
	}
	if err := r.store.RemoveFromQueue(id); err != nil {
		return err
	}

	r.logger.Info("Auction settled",
		zap.String("auction_id", id),
		zap.String("winner", data.Winner.Hex()),
		zap.String("winning_bid", data.WinningBid.String()))
	return r.store.AppendLog("info", "Auction settled", map[string]any{
		"auctionId":  id,
		"winner":     data.Winner.Hex(),
		"winningBid": data.WinningBid.String(),
		"txHash":     ev.TxHash.Hex(),
	})
}

// applyRefunded deactivates the auction without marking it settled; the
// ticket went back to the seller, so there is nothing left to settle.
func (r *Reconciler) applyRefunded(data *ledger.AuctionRefundedEvent) error {
	id := data.AuctionId.String()
	if err := r.store.UpdateAuction(id, func(a *store.Auction) {
		a.IsActive = false
	}); err != nil {
		return err
	}
	if err := r.store.RemoveFromQueue(id); err != nil {
		return err
	}

	r.logger.Info("Auction refunded", zap.String("auction_id", id))
	return r.store.AppendLog("info", "Auction refunded", map[string]any{
		"auctionId": id,
		"seller":    data.Seller.Hex(),
	})
}

func (r *Reconciler) applyCoordinatorUpdated(data *ledger.CoordinatorUpdatedEvent) error {
	if err := r.store.UpdateConfig(func(c *store.SchedulerConfig) {
		c.CoordinatorAddress = data.NewCoordinator.Hex()
	}); err != nil {
		return err
	}

	r.logger.Info("Coordinator updated",
		zap.String("old", data.OldCoordinator.Hex()),
		zap.String("new", data.NewCoordinator.Hex()))
	return r.store.AppendLog("info", "Coordinator updated", map[string]any{
		"oldCoordinator": data.OldCoordinator.Hex(),
		"newCoordinator": data.NewCoordinator.Hex(),
	})
}
