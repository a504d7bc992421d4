package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/SettleGuard/settleguard/internal/config"
	"github.com/SettleGuard/settleguard/internal/ledger"
	"github.com/SettleGuard/settleguard/internal/pkg/logger"
	"github.com/SettleGuard/settleguard/internal/repository"
)

// inspector runs a one-shot integrity check from the command line, outside
// the scheduler. Useful for deep audits (-full) and post-incident re-checks.
func main() {
	day := flag.String("day", time.Now().UTC().AddDate(0, 0, -1).Format("20060102"), "accounting day yyyymmdd")
	full := flag.Bool("full", false, "full chain rescan, ignoring the checkpoint watermark")
	flag.Parse()

	logger.Init("info")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := repository.NewDB(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	store := repository.NewPostgresLedgerStore(db)
	engine := ledger.NewEngine(store, cfg.Ledger.EpsilonUSDT, cfg.Ledger.CreditPrefixes)
	verifier := ledger.NewVerifier(store, *full)
	job := ledger.NewIntegrityJob(engine, verifier, store, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	run, err := job.RunDailyCheck(ctx, *day)
	if err != nil {
		fmt.Fprintf(os.Stderr, "integrity check failed to run: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("day:      %s\n", run.Day)
	fmt.Printf("ok:       %t\n", run.OK)
	for _, finding := range run.Findings {
		fmt.Printf("finding:  %s\n", finding)
	}

	if !run.OK {
		os.Exit(2)
	}
}
