package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/ticketdex/settlement-scheduler/pkg/config"
)

// Client is a thin adapter over the TicketAuction contract: auction reads,
// coordinator-signed state mutations, and event-log queries over a block
// range. It holds the signing key for the coordinator account.
type Client struct {
	config       *config.LedgerConfig
	eth          *ethclient.Client
	abi          abi.ABI
	contract     *bind.BoundContract
	contractAddr common.Address
	privateKey   *ecdsa.PrivateKey
	address      common.Address
	chainID      *big.Int
	logger       *zap.Logger
}

// NewClient dials the RPC endpoint, loads the signing key and binds the
// auction contract.
func NewClient(cfg *config.LedgerConfig, logger *zap.Logger) (*Client, error) {
	eth, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ledger RPC: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(ticketAuctionABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse auction contract ABI: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}
	address := crypto.PubkeyToAddress(privateKey.PublicKey)
	contractAddr := common.HexToAddress(cfg.ContractAddress)

	logger.Info("Connected to ledger",
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("rpc_url", cfg.RPCURL),
		zap.String("auction_contract", contractAddr.Hex()),
		zap.String("signer_address", address.Hex()))

	return &Client{
		config:       cfg,
		eth:          eth,
		abi:          parsed,
		contract:     bind.NewBoundContract(contractAddr, parsed, eth, eth, eth),
		contractAddr: contractAddr,
		privateKey:   privateKey,
		address:      address,
		chainID:      big.NewInt(cfg.ChainID),
		logger:       logger,
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}

// SignerAddress returns the coordinator account derived from the signing key.
func (c *Client) SignerAddress() common.Address {
	return c.address
}

// BlockHeight returns the current chain head height.
func (c *Client) BlockHeight(ctx context.Context) (uint64, error) {
	height, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get block height: %w", err)
	}
	return height, nil
}

// FeeEstimate returns the node's current gas price suggestions.
func (c *Client) FeeEstimate(ctx context.Context) (*FeeEstimate, error) {
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}
	tipCap, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas tip cap: %w", err)
	}
	return &FeeEstimate{GasPrice: gasPrice, TipCap: tipCap}, nil
}

// GetAuction reads the current on-chain auction snapshot.
func (c *Client) GetAuction(ctx context.Context, auctionID *big.Int) (*AuctionState, error) {
	var out []any
	opts := &bind.CallOpts{Context: ctx}
	if err := c.contract.Call(opts, &out, "getAuction", auctionID); err != nil {
		return nil, fmt.Errorf("failed to call getAuction: %w", err)
	}
	state := *abi.ConvertType(out[0], new(AuctionState)).(*AuctionState)
	return &state, nil
}

// GetActiveAuctionForTicket returns the id of the ticket's active auction, or
// zero when the ticket has none.
func (c *Client) GetActiveAuctionForTicket(ctx context.Context, ticketID *big.Int) (*big.Int, error) {
	var out []any
	opts := &bind.CallOpts{Context: ctx}
	if err := c.contract.Call(opts, &out, "getActiveAuctionForTicket", ticketID); err != nil {
		return nil, fmt.Errorf("failed to call getActiveAuctionForTicket: %w", err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// transactor builds signed transact opts with a fresh pending nonce. The fee
// estimate is optional; without one the node's suggestion is used at submit
// time.
func (c *Client) transactor(ctx context.Context, fee *FeeEstimate) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(c.privateKey, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	auth.Nonce = new(big.Int).SetUint64(nonce)
	auth.GasLimit = c.config.GasLimit
	auth.Context = ctx
	if fee != nil {
		auth.GasPrice = fee.GasPrice
	}
	return auth, nil
}

// Settle submits the settlement transaction for an expired auction.
func (c *Client) Settle(ctx context.Context, auctionID *big.Int, fee *FeeEstimate) (*types.Transaction, error) {
	auth, err := c.transactor(ctx, fee)
	if err != nil {
		return nil, err
	}

	tx, err := c.contract.Transact(auth, "settle", auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to submit settle transaction: %w", err)
	}

	c.logger.Info("Settlement transaction submitted",
		zap.String("auction_id", auctionID.String()),
		zap.String("tx_hash", tx.Hash().Hex()))
	return tx, nil
}

// Bid submits a bid on an active auction.
func (c *Client) Bid(ctx context.Context, auctionID, bidPrice *big.Int, fee *FeeEstimate) (*types.Transaction, error) {
	auth, err := c.transactor(ctx, fee)
	if err != nil {
		return nil, err
	}
	tx, err := c.contract.Transact(auth, "bid", auctionID, bidPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to submit bid transaction: %w", err)
	}
	return tx, nil
}

// BuyNow executes the instant-buy path for an active auction.
func (c *Client) BuyNow(ctx context.Context, auctionID *big.Int, fee *FeeEstimate) (*types.Transaction, error) {
	auth, err := c.transactor(ctx, fee)
	if err != nil {
		return nil, err
	}
	tx, err := c.contract.Transact(auth, "buyNow", auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to submit buyNow transaction: %w", err)
	}
	return tx, nil
}

// Refund returns an unsold ticket to its seller.
func (c *Client) Refund(ctx context.Context, ticketID *big.Int, fee *FeeEstimate) (*types.Transaction, error) {
	auth, err := c.transactor(ctx, fee)
	if err != nil {
		return nil, err
	}
	tx, err := c.contract.Transact(auth, "refund", ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to submit refund transaction: %w", err)
	}
	return tx, nil
}

// WaitConfirmed blocks until the transaction is mined and returns its
// receipt, erroring if the transaction reverted.
func (c *Client) WaitConfirmed(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for confirmation: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}
	return receipt, nil
}

// QueryEvents returns the named lifecycle events emitted by the auction
// contract in [fromBlock, toBlock], decoded and in log order.
func (c *Client) QueryEvents(ctx context.Context, name string, fromBlock, toBlock uint64) ([]Event, error) {
	ev, ok := c.abi.Events[name]
	if !ok {
		return nil, fmt.Errorf("unknown event %q", name)
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.contractAddr},
		Topics:    [][]common.Hash{{ev.ID}},
	}
	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s events: %w", name, err)
	}

	events := make([]Event, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		data, err := c.decodeLog(name, lg)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s log at block %d: %w", name, lg.BlockNumber, err)
		}
		events = append(events, Event{
			Name:        name,
			BlockNumber: lg.BlockNumber,
			LogIndex:    lg.Index,
			TxHash:      lg.TxHash,
			Data:        data,
		})
	}
	return events, nil
}

func (c *Client) decodeLog(name string, lg types.Log) (any, error) {
	var out any
	switch name {
	case EventAuctionCreated:
		out = new(AuctionCreatedEvent)
	case EventBidPlaced:
		out = new(BidPlacedEvent)
	case EventBuyNowExecuted:
		out = new(BuyNowExecutedEvent)
	case EventAuctionSettled:
		out = new(AuctionSettledEvent)
	case EventAuctionRefunded:
		out = new(AuctionRefundedEvent)
	case EventCoordinatorUpdated:
		out = new(CoordinatorUpdatedEvent)
	default:
		return nil, fmt.Errorf("unknown event %q", name)
	}
	if err := c.contract.UnpackLog(out, name, lg); err != nil {
		return nil, err
	}
	return out, nil
}
