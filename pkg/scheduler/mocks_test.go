package scheduler

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/ticketdex/settlement-scheduler/pkg/ledger"
	"github.com/ticketdex/settlement-scheduler/pkg/store"
)

// MockLedgerClient is a mock implementation of LedgerClient
type MockLedgerClient struct {
	BlockHeightFunc   func(ctx context.Context) (uint64, error)
	QueryEventsFunc   func(ctx context.Context, name string, fromBlock, toBlock uint64) ([]ledger.Event, error)
	FeeEstimateFunc   func(ctx context.Context) (*ledger.FeeEstimate, error)
	SettleFunc        func(ctx context.Context, auctionID *big.Int, fee *ledger.FeeEstimate) (*types.Transaction, error)
	WaitConfirmedFunc func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

func (m *MockLedgerClient) BlockHeight(ctx context.Context) (uint64, error) {
	if m.BlockHeightFunc != nil {
		return m.BlockHeightFunc(ctx)
	}
	return 0, nil
}

func (m *MockLedgerClient) QueryEvents(ctx context.Context, name string, fromBlock, toBlock uint64) ([]ledger.Event, error) {
	if m.QueryEventsFunc != nil {
		return m.QueryEventsFunc(ctx, name, fromBlock, toBlock)
	}
	return nil, nil
}

func (m *MockLedgerClient) FeeEstimate(ctx context.Context) (*ledger.FeeEstimate, error) {
	if m.FeeEstimateFunc != nil {
		return m.FeeEstimateFunc(ctx)
	}
	return &ledger.FeeEstimate{GasPrice: big.NewInt(1)}, nil
}

func (m *MockLedgerClient) Settle(ctx context.Context, auctionID *big.Int, fee *ledger.FeeEstimate) (*types.Transaction, error) {
	if m.SettleFunc != nil {
		return m.SettleFunc(ctx, auctionID, fee)
	}
	return dummyTx(), nil
}

func (m *MockLedgerClient) WaitConfirmed(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if m.WaitConfirmedFunc != nil {
		return m.WaitConfirmedFunc(ctx, tx)
	}
	return &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		TxHash: tx.Hash(),
	}, nil
}

func dummyTx() *types.Transaction {
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	return types.NewTx(&types.LegacyTx{
		Nonce:    1,
		To:       &to,
		Gas:      21000,
		GasPrice: big.NewInt(1),
		Value:    big.NewInt(0),
	})
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(t.TempDir(), zap.NewNop())
	if err := st.Init(); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	return st
}

func timeNow() time.Time {
	return time.Now().UTC()
}

// seedAuction mirrors an active unsettled auction with the given expiry.
func seedAuction(t *testing.T, st *store.Store, id string, expiry int64) {
	t.Helper()
	err := st.PutAuction(&store.Auction{
		ID:           id,
		TicketID:     "7",
		TicketCount:  "2",
		StartPrice:   "1000000",
		BuyNowPrice:  "5000000",
		MinIncrement: "100000",
		HighestBid:   "0",
		ExpiryTime:   expiry,
		Seller:       common.HexToAddress("0xc1").Hex(),
		IsActive:     true,
	})
	if err != nil {
		t.Fatalf("failed to seed auction %s: %v", id, err)
	}
}
