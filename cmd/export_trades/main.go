// Command export_trades dumps the closed-trade history from the engine's
// database to CSV and prints a performance summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"cryptoRiskEngine/config"
	"cryptoRiskEngine/internal/adapters/logger"
	"cryptoRiskEngine/internal/adapters/sqlite"
	"cryptoRiskEngine/internal/analytics"
	"cryptoRiskEngine/internal/utils"
)

var (
	dbPath   = flag.String("db", "", "path to the engine database (defaults to DB_PATH)")
	outFile  = flag.String("out", "data/trades.csv", "CSV file to write")
	limit    = flag.Int("limit", 0, "export only the most recent N trades (0 exports all)")
	capital  = flag.Float64("capital", 0, "starting capital for return figures (defaults to STARTING_CAPITAL)")
	logLevel = flag.String("log-level", "WARN", "log level for database diagnostics")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	if *dbPath == "" {
		*dbPath = cfg.DBPath
	}
	startingCapital := cfg.StartingCapital
	if *capital > 0 {
		startingCapital = *capital
	}

	appLogger, err := logger.NewZapLogger(logger.ParseLevel(*logLevel))
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: *dbPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open database %s: %v", *dbPath, err)
	}
	defer repo.Close()

	trades, err := repo.FindTrades(context.Background(), *limit)
	if err != nil {
		log.Fatalf("Error reading trade history: %v", err)
	}
	if len(trades) == 0 {
		log.Println("No closed trades recorded yet.")
		return
	}

	if err := utils.WriteTradesToCSV(trades, *outFile); err != nil {
		log.Fatalf("Error writing CSV: %v", err)
	}
	fmt.Printf("Wrote %d trades to %s\n\n", len(trades), *outFile)

	m := analytics.AnalyzePerformance(trades, decimal.NewFromFloat(startingCapital))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Trades\tWinRate\tAvgWin\tAvgLoss\tTotalPnL\tFees\tPF\tMaxDD\tROI\t")
	fmt.Fprintf(w, "%d\t%.2f\t%s\t%s\t%s\t%s\t%.2f\t%.2f\t%.2f\t\n",
		m.TotalTrades,
		m.WinRate*100,
		m.AverageWin.StringFixed(2),
		m.AverageLoss.StringFixed(2),
		m.TotalProfit.StringFixed(2),
		m.TotalFees.StringFixed(2),
		m.ProfitFactor,
		m.MaxDrawdown*100,
		m.ReturnOnInvestment*100,
	)
	w.Flush()

	fmt.Println("\n## Monthly Returns")
	months := make([]string, 0, len(m.MonthlyReturns))
	for month := range m.MonthlyReturns {
		months = append(months, month)
	}
	sort.Strings(months)
	mw := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(mw, "Month\tPnL\t")
	for _, month := range months {
		fmt.Fprintf(mw, "%s\t%s\t\n", month, m.MonthlyReturns[month].StringFixed(2))
	}
	mw.Flush()

	fmt.Printf("\nMax consecutive wins: %d, losses: %d, average hold: %s\n",
		m.MaxConsecutiveWins, m.MaxConsecutiveLosses, m.AverageTradeDuration)
}
