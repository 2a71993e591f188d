package ledger

// ticketAuctionABI covers the slice of the TicketAuction contract the
// scheduler consumes: the lifecycle events and the coordinator-facing calls.
const ticketAuctionABI = `[
  {
    "type": "event",
    "name": "AuctionCreated",
    "inputs": [
      {"name": "auctionId", "type": "uint256", "indexed": true},
      {"name": "ticketId", "type": "uint256", "indexed": false},
      {"name": "ticketCount", "type": "uint256", "indexed": false},
      {"name": "startPrice", "type": "uint256", "indexed": false},
      {"name": "buyNowPrice", "type": "uint256", "indexed": false},
      {"name": "minIncrement", "type": "uint256", "indexed": false},
      {"name": "expiryTime", "type": "uint256", "indexed": false},
      {"name": "seller", "type": "address", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "BidPlaced",
    "inputs": [
      {"name": "auctionId", "type": "uint256", "indexed": true},
      {"name": "bidder", "type": "address", "indexed": false},
      {"name": "bidAmount", "type": "uint256", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "BuyNowExecuted",
    "inputs": [
      {"name": "auctionId", "type": "uint256", "indexed": true},
      {"name": "buyer", "type": "address", "indexed": false},
      {"name": "buyNowPrice", "type": "uint256", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "AuctionSettled",
    "inputs": [
      {"name": "auctionId", "type": "uint256", "indexed": true},
      {"name": "winner", "type": "address", "indexed": false},
      {"name": "winningBid", "type": "uint256", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "AuctionRefunded",
    "inputs": [
      {"name": "auctionId", "type": "uint256", "indexed": true},
      {"name": "seller", "type": "address", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "CoordinatorUpdated",
    "inputs": [
      {"name": "oldCoordinator", "type": "address", "indexed": true},
      {"name": "newCoordinator", "type": "address", "indexed": true}
    ]
  },
  {
    "type": "function",
    "name": "getAuction",
    "stateMutability": "view",
    "inputs": [{"name": "auctionId", "type": "uint256"}],
    "outputs": [
      {
        "name": "auction",
        "type": "tuple",
        "components": [
          {"name": "auctionId", "type": "uint256"},
          {"name": "ticketId", "type": "uint256"},
          {"name": "ticketCount", "type": "uint256"},
          {"name": "startPrice", "type": "uint256"},
          {"name": "buyNowPrice", "type": "uint256"},
          {"name": "minIncrement", "type": "uint256"},
          {"name": "expiryTime", "type": "uint256"},
          {"name": "seller", "type": "address"},
          {"name": "highestBidder", "type": "address"},
          {"name": "highestBid", "type": "uint256"},
          {"name": "isActive", "type": "bool"},
          {"name": "isSettled", "type": "bool"}
        ]
      }
    ]
  },
  {
    "type": "function",
    "name": "getActiveAuctionForTicket",
    "stateMutability": "view",
    "inputs": [{"name": "ticketId", "type": "uint256"}],
    "outputs": [{"name": "auctionId", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "settle",
    "stateMutability": "nonpayable",
    "inputs": [{"name": "auctionId", "type": "uint256"}],
    "outputs": []
  },
  {
    "type": "function",
    "name": "bid",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "auctionId", "type": "uint256"},
      {"name": "bidPrice", "type": "uint256"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "buyNow",
    "stateMutability": "nonpayable",
    "inputs": [{"name": "auctionId", "type": "uint256"}],
    "outputs": []
  },
  {
    "type": "function",
    "name": "refund",
    "stateMutability": "nonpayable",
    "inputs": [{"name": "ticketId", "type": "uint256"}],
    "outputs": []
  }
]`
