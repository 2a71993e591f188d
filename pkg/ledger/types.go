package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Auction lifecycle event names as emitted by the TicketAuction contract.
const (
	EventAuctionCreated     = "AuctionCreated"
	EventBidPlaced          = "BidPlaced"
	EventBuyNowExecuted     = "BuyNowExecuted"
	EventAuctionSettled     = "AuctionSettled"
	EventAuctionRefunded    = "AuctionRefunded"
	EventCoordinatorUpdated = "CoordinatorUpdated"
)

// EventNames lists every lifecycle event the scheduler consumes.
var EventNames = []string{
	EventAuctionCreated,
	EventBidPlaced,
	EventBuyNowExecuted,
	EventAuctionSettled,
	EventAuctionRefunded,
	EventCoordinatorUpdated,
}

// AuctionState is the on-chain auction snapshot returned by getAuction.
type AuctionState struct {
	AuctionId     *big.Int
	TicketId      *big.Int
	TicketCount   *big.Int
	StartPrice    *big.Int
	BuyNowPrice   *big.Int
	MinIncrement  *big.Int
	ExpiryTime    *big.Int
	Seller        common.Address
	HighestBidder common.Address
	HighestBid    *big.Int
	IsActive      bool
	IsSettled     bool
}

// AuctionCreatedEvent mirrors AuctionCreated(uint256,uint256,uint256,uint256,uint256,uint256,uint256,address).
type AuctionCreatedEvent struct {
	AuctionId    *big.Int
	TicketId     *big.Int
	TicketCount  *big.Int
	StartPrice   *big.Int
	BuyNowPrice  *big.Int
	MinIncrement *big.Int
	ExpiryTime   *big.Int
	Seller       common.Address
}

// BidPlacedEvent mirrors BidPlaced(uint256,address,uint256).
type BidPlacedEvent struct {
	AuctionId *big.Int
	Bidder    common.Address
	BidAmount *big.Int
}

// BuyNowExecutedEvent mirrors BuyNowExecuted(uint256,address,uint256).
type BuyNowExecutedEvent struct {
	AuctionId   *big.Int
	Buyer       common.Address
	BuyNowPrice *big.Int
}

// AuctionSettledEvent mirrors AuctionSettled(uint256,address,uint256).
type AuctionSettledEvent struct {
	AuctionId  *big.Int
	Winner     common.Address
	WinningBid *big.Int
}

// AuctionRefundedEvent mirrors AuctionRefunded(uint256,address).
type AuctionRefundedEvent struct {
	AuctionId *big.Int
	Seller    common.Address
}

// CoordinatorUpdatedEvent mirrors CoordinatorUpdated(address,address).
type CoordinatorUpdatedEvent struct {
	OldCoordinator common.Address
	NewCoordinator common.Address
}

// Event is one decoded contract log. BlockNumber and LogIndex give the
// emission order across event types; Data holds the typed event payload.
type Event struct {
	Name        string
	BlockNumber uint64
	LogIndex    uint
	TxHash      common.Hash
	Data        any
}

// FeeEstimate carries the current gas price suggestions used when submitting
// a transaction.
type FeeEstimate struct {
	GasPrice *big.Int
	TipCap   *big.Int
}
