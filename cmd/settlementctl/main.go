package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ticketdex/settlement-scheduler/pkg/config"
	"github.com/ticketdex/settlement-scheduler/pkg/ledger"
	"github.com/ticketdex/settlement-scheduler/pkg/scheduler"
	"github.com/ticketdex/settlement-scheduler/pkg/store"
)

var (
	configPath = flag.String("config", "", "Path to configuration file (optional, env vars apply on top)")
	dataDir    = flag.String("data-dir", "", "Data directory (overrides config)")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	if err := run(flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}

	switch command {
	case "status":
		return showStatus(st)
	case "list":
		return listAuctions(st)
	case "logs":
		count := 20
		if len(args) > 0 {
			count, err = strconv.Atoi(args[0])
			if err != nil || count < 1 {
				return fmt.Errorf("invalid log count %q", args[0])
			}
		}
		return showLogs(st, count)
	case "settle":
		if len(args) < 1 {
			return fmt.Errorf("usage: settlementctl settle <auctionId>")
		}
		return settleSingle(st, args[0])
	case "cleanup":
		return cleanup(st)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func openStore() (*store.Store, error) {
	dir := *dataDir
	if dir == "" {
		dir = os.Getenv("DATA_DIR")
	}
	if dir == "" && *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		dir = cfg.DataDir
	}
	if dir == "" {
		dir = "./settlement-data"
	}

	st := store.New(dir, zap.NewNop())
	if err := st.Init(); err != nil {
		return nil, err
	}
	return st, nil
}

func showStatus(st *store.Store) error {
	cfg, err := st.Config()
	if err != nil {
		return err
	}
	auctions, err := st.Auctions()
	if err != nil {
		return err
	}
	queue, err := st.Queue()
	if err != nil {
		return err
	}

	fmt.Println("Settlement System Status")
	fmt.Println("========================")

	fmt.Println("\nConfiguration:")
	fmt.Printf("  Settlement Enabled:   %v\n", cfg.SettlementEnabled)
	fmt.Printf("  Check Interval:       %ds\n", cfg.SettlementIntervalMs/1000)
	fmt.Printf("  Max Attempts:         %d\n", cfg.MaxSettlementAttempts)
	fmt.Printf("  Contract:             %s\n", cfg.ContractAddress)
	fmt.Printf("  Coordinator:          %s\n", cfg.CoordinatorAddress)
	fmt.Printf("  Last Processed Block: %d\n", cfg.LastProcessedBlock)

	now := time.Now()
	var active, settled, expired int
	for _, a := range auctions {
		switch {
		case a.IsSettled:
			settled++
		case a.Expired(now):
			expired++
		case a.IsActive:
			active++
		}
	}

	fmt.Println("\nAuction Statistics:")
	fmt.Printf("  Total Auctions:               %d\n", len(auctions))
	fmt.Printf("  Active Auctions:              %d\n", active)
	fmt.Printf("  Expired (Pending Settlement): %d\n", expired)
	fmt.Printf("  Settled Auctions:             %d\n", settled)

	counts := map[store.QueueStatus]int{}
	for _, item := range queue {
		counts[item.Status]++
	}
	fmt.Println("\nSettlement Queue:")
	fmt.Printf("  Pending:    %d\n", counts[store.QueueStatusPending])
	fmt.Printf("  Processing: %d\n", counts[store.QueueStatusProcessing])
	fmt.Printf("  Failed:     %d\n", counts[store.QueueStatusFailed])

	if expired > 0 {
		fmt.Println("\nExpired Auctions Needing Settlement:")
		for _, a := range auctions {
			if a.Expired(now) {
				ago := now.Unix() - a.ExpiryTime
				fmt.Printf("  Auction %s: Expired %d minutes ago\n", a.ID, ago/60)
			}
		}
	}
	return nil
}

func listAuctions(st *store.Store) error {
	auctions, err := st.Auctions()
	if err != nil {
		return err
	}

	fmt.Println("All Auctions")
	fmt.Println("============")

	if len(auctions) == 0 {
		fmt.Println("No auctions found.")
		return nil
	}

	now := time.Now().Unix()
	for _, a := range auctions {
		timeLeft := a.ExpiryTime - now
		status := "Active"
		switch {
		case a.IsSettled:
			status = "Settled"
		case timeLeft <= 0:
			status = "Expired"
		}

		fmt.Printf("\nAuction %s:\n", a.ID)
		fmt.Printf("  Status:      %s\n", status)
		fmt.Printf("  Ticket ID:   %s\n", a.TicketID)
		fmt.Printf("  Count:       %s\n", a.TicketCount)
		fmt.Printf("  Start Price: %s USDC\n", formatUSDC(a.StartPrice))
		fmt.Printf("  Buy Now:     %s USDC\n", formatUSDC(a.BuyNowPrice))
		fmt.Printf("  Highest Bid: %s USDC\n", formatUSDC(a.HighestBid))
		fmt.Printf("  Seller:      %s\n", a.Seller)
		if a.HighestBidder != "" {
			fmt.Printf("  Highest Bidder: %s\n", a.HighestBidder)
		}
		if a.SettlementTxHash != "" {
			fmt.Printf("  Settlement Tx:  %s\n", a.SettlementTxHash)
		}
		if timeLeft > 0 {
			fmt.Printf("  Time Left:   %d minutes\n", timeLeft/60)
		} else {
			fmt.Printf("  Expired:     %d minutes ago\n", -timeLeft/60)
		}
	}
	return nil
}

func showLogs(st *store.Store, count int) error {
	logs, err := st.RecentLogs(count)
	if err != nil {
		return err
	}

	fmt.Printf("Recent Logs (last %d)\n", count)
	fmt.Println("=====================")

	for _, entry := range logs {
		fmt.Printf("[%s] %-5s %s\n",
			entry.Timestamp.Local().Format("2006-01-02 15:04:05"),
			entry.Level,
			entry.Message)
		if len(entry.Data) > 0 {
			fmt.Printf("        %v\n", entry.Data)
		}
	}
	return nil
}

// settleSingle runs one settlement attempt immediately, outside the periodic
// cycle. It needs ledger access, so the full configuration applies.
func settleSingle(st *store.Store, auctionID string) error {
	fmt.Printf("Manually settling auction %s...\n", auctionID)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ledgerClient, err := ledger.NewClient(&cfg.Ledger, logger)
	if err != nil {
		return err
	}
	defer ledgerClient.Close()

	worker := scheduler.NewWorker(st, ledgerClient, logger, cfg.Scheduler.SettlementBatchSize)
	if err := worker.SettleNow(context.Background(), auctionID); err != nil {
		return err
	}

	fmt.Printf("Auction %s settled\n", auctionID)
	return nil
}

func cleanup(st *store.Store) error {
	fmt.Println("Cleaning up old data...")

	removed, err := st.PruneQueue()
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d completed settlements from queue\n", removed)

	dropped, err := st.TrimLogs(500)
	if err != nil {
		return err
	}
	if dropped > 0 {
		fmt.Printf("Archived %d old log entries\n", dropped)
	}

	fmt.Println("Cleanup completed")
	return nil
}

// formatUSDC renders a micro-USDC amount as a decimal USDC string.
func formatUSDC(raw string) string {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return raw
	}
	return d.Shift(-6).String()
}

func usage() {
	fmt.Println("Usage: settlementctl [flags] <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  status              - Show settlement system status")
	fmt.Println("  list                - List all auctions")
	fmt.Println("  logs [count]        - Show recent logs (default 20)")
	fmt.Println("  settle <auctionId>  - Manually settle an auction")
	fmt.Println("  cleanup             - Clean up old data")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
