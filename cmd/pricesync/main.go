// Price Sync CLI
// This application keeps a local cache of daily and minute price bars in sync
// with an upstream time-series provider, fetching only the ranges the cache
// is missing, and serves the cached series from the command line or over HTTP.
//
// Usage:
//
//	pricesync get --symbol AAPL --start 2024-01-01 --end 2024-01-31
//	pricesync multi --symbols AAPL,MSFT --start 2024-01-01 --end 2024-01-31
//	pricesync aggregate --symbol AAPL --start 2024-03-01 --end 2024-03-05 --timeframe 15m
//	pricesync refresh --symbols AAPL,MSFT
//	pricesync serve --addr :8080
//
// For detailed help on any command, use: pricesync <command> --help
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/johnayoung/go-price-sync/internal/adjuster"
	"github.com/johnayoung/go-price-sync/internal/api"
	"github.com/johnayoung/go-price-sync/internal/config"
	"github.com/johnayoung/go-price-sync/internal/coordinator"
	errs "github.com/johnayoung/go-price-sync/internal/errors"
	"github.com/johnayoung/go-price-sync/internal/gaps"
	"github.com/johnayoung/go-price-sync/internal/logger"
	"github.com/johnayoung/go-price-sync/internal/models"
	"github.com/johnayoung/go-price-sync/internal/scheduler"
	"github.com/johnayoung/go-price-sync/internal/source"
	"github.com/johnayoung/go-price-sync/internal/storage"
)

// CLI version information
const (
	Version    = "1.0.0"
	AppName    = "pricesync"
	ConfigFile = "pricesync.json"
)

// Exit codes following standard conventions
const (
	ExitSuccess       = 0
	ExitUsageError    = 1
	ExitConfigError   = 2
	ExitConnectionErr = 3
	ExitDataError     = 4
	ExitInterrupt     = 130
)

// CLI represents the main CLI application
type CLI struct {
	config      *config.AppConfig
	logs        *logger.LoggerManager
	logger      *slog.Logger
	store       storage.BarStore
	coordinator *coordinator.Coordinator
}

// main is the entry point for the CLI application
func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(ExitUsageError)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "--version", "-v":
		fmt.Printf("%s version %s\n", AppName, Version)
		return
	case "--help", "-h", "help":
		if len(args) > 0 {
			printCommandHelp(args[0])
		} else {
			printUsage()
		}
		return
	}

	handler, ok := commands[command]
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: Unknown command '%s'\n\n", command)
		printUsage()
		os.Exit(ExitUsageError)
	}

	flags, err := parseFlags(command, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		printCommandHelp(command)
		os.Exit(ExitUsageError)
	}
	if flags.Help {
		printCommandHelp(command)
		return
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cli := &CLI{}
	if err := cli.initialize(ctx, flags.ConfigPath, command == "serve"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to initialize CLI: %v\n", err)
		os.Exit(ExitConfigError)
	}
	defer cli.close()

	if err := handler(cli, ctx, flags); err != nil {
		cli.logger.Error("command failed", "command", command, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cli.close()
		os.Exit(exitCode(ctx, err))
	}
}

// commands maps each subcommand to its handler.
var commands = map[string]func(*CLI, context.Context, *Flags) error{
	"get":       (*CLI).handleGet,
	"multi":     (*CLI).handleMulti,
	"aggregate": (*CLI).handleAggregate,
	"clear":     (*CLI).handleClear,
	"symbols":   (*CLI).handleSymbols,
	"stats":     (*CLI).handleStats,
	"info":      (*CLI).handleInfo,
	"validate":  (*CLI).handleValidate,
	"refresh":   (*CLI).handleRefresh,
	"serve":     (*CLI).handleServe,
}

// exitCode maps a command failure to the process exit code.
func exitCode(ctx context.Context, err error) int {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return ExitInterrupt
	}
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return ExitUsageError
	case errs.KindSource:
		return ExitConnectionErr
	default:
		return ExitDataError
	}
}

// initialize sets up the CLI application components
func (cli *CLI) initialize(ctx context.Context, configPath string, serving bool) error {
	// A missing .env file is not an error
	_ = godotenv.Load()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = ConfigFile
	}

	bootstrap := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg, err := config.NewConfigManager(configPath, bootstrap).LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cli.config = cfg

	// Command output owns stdout outside of serve
	if !serving && cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}

	logs, err := logger.NewLoggerManager(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	cli.logs = logs
	cli.logger = logs.GetLogger()

	provider, err := source.NewProvider(cfg.Provider, logs.GetComponentLogger("source_fetcher").Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize provider: %w", err)
	}

	sourceName := cfg.Provider.SourceName
	if sourceName == "" {
		sourceName = provider.Name()
	}

	store, err := storage.New(ctx, cfg.Storage, sourceName, logs.GetComponentLogger("bar_store").Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	cli.store = store

	fetcher := source.NewFetcher(provider, source.OptionsFromConfig(cfg.Fetcher), logs.GetComponentLogger("source_fetcher").Logger)

	cli.coordinator = coordinator.New(
		store,
		fetcher,
		gaps.NewResolver(logs.GetComponentLogger("gap_resolver").Logger),
		adjuster.New(logs.GetComponentLogger("price_adjuster").Logger),
		coordinator.ConfigFromSync(cfg.Sync),
		logs.GetComponentLogger("sync_coordinator").Logger,
	)
	return nil
}

func (cli *CLI) close() {
	if cli.store != nil {
		if err := cli.store.Close(); err != nil {
			cli.logger.Warn("failed to close storage", "error", err)
		}
		cli.store = nil
	}
	if cli.logs != nil {
		_ = cli.logs.Close()
		cli.logs = nil
	}
}

// handleGet handles the 'get' command for a single symbol
func (cli *CLI) handleGet(ctx context.Context, flags *Flags) error {
	if flags.Symbol == "" {
		return fmt.Errorf("--symbol is required")
	}

	var (
		res *coordinator.SeriesResult
		err error
	)
	if flags.MarketHours {
		if flags.Date == "" {
			return fmt.Errorf("--date is required with --market-hours")
		}
		res, err = cli.coordinator.GetMarketHours(ctx, flags.Symbol, flags.Date, !flags.NoCache)
	} else {
		res, err = cli.coordinator.GetSeries(ctx, flags.Symbol, flags.Start, flags.End, flags.seriesOptions())
	}
	if err != nil {
		return err
	}

	if flags.Format != "json" {
		printSeriesHeader(res)
	}
	return outputBars(res.Bars, flags.Format, flags.Limit, res.Kind.IsIntraday())
}

// handleMulti handles the 'multi' command for several symbols at once
func (cli *CLI) handleMulti(ctx context.Context, flags *Flags) error {
	if len(flags.Symbols) == 0 {
		return fmt.Errorf("--symbols is required")
	}

	res, err := cli.coordinator.GetMultiple(ctx, flags.Symbols, flags.Start, flags.End, flags.seriesOptions())
	if err != nil {
		return err
	}

	if flags.Format == "json" {
		return outputJSON(res)
	}

	fmt.Printf("%-10s %-14s %-8s %-12s %-12s %-10s\n", "Symbol", "Kind", "Bars", "First", "Last", "Cache")
	fmt.Println(strings.Repeat("-", 70))
	for _, sym := range flags.Symbols {
		r, ok := res.Results[models.NormalizeSymbol(sym)]
		if !ok {
			continue
		}
		fmt.Printf("%-10s %-14s %-8d %-12s %-12s %-10t\n", r.Symbol, r.Kind, r.Count, r.FirstDate, r.LastDate, r.FromCache)
	}
	for _, e := range res.Errors {
		fmt.Printf("%-10s failed (%s): %s\n", e.Symbol, e.Kind, e.Error)
	}
	if len(res.Results) == 0 {
		return fmt.Errorf("no symbol succeeded")
	}
	return nil
}

// handleAggregate handles the 'aggregate' command: syncs minute bars and
// resamples them to a coarser timeframe
func (cli *CLI) handleAggregate(ctx context.Context, flags *Flags) error {
	if flags.Symbol == "" {
		return fmt.Errorf("--symbol is required")
	}
	if flags.Timeframe == "" {
		return fmt.Errorf("--timeframe is required")
	}

	res, err := cli.coordinator.GetMinute(ctx, flags.Symbol, flags.Start, flags.End, !flags.NoCache)
	if err != nil {
		return err
	}
	bars, err := cli.coordinator.Aggregate(res.Bars, flags.Timeframe)
	if err != nil {
		return err
	}

	if flags.Format != "json" {
		fmt.Printf("📊 %s %s bars aggregated from %d minute bars\n\n", res.Symbol, flags.Timeframe, res.Count)
	}
	return outputBars(bars, flags.Format, flags.Limit, true)
}

// handleClear handles the 'clear' command
func (cli *CLI) handleClear(ctx context.Context, flags *Flags) error {
	if flags.Symbol == "" {
		return fmt.Errorf("--symbol is required")
	}
	if err := cli.coordinator.ClearCache(ctx, flags.Symbol, flags.Kind); err != nil {
		return err
	}

	target := models.NormalizeSymbol(flags.Symbol)
	if flags.Kind != "" {
		target += "/" + flags.Kind
	}
	fmt.Printf("✅ Cleared cache for %s\n", target)
	return nil
}

// handleSymbols handles the 'symbols' command
func (cli *CLI) handleSymbols(ctx context.Context, flags *Flags) error {
	listings, err := cli.coordinator.ListCachedSymbols(ctx)
	if err != nil {
		return err
	}
	if flags.Format == "json" {
		return outputJSON(listings)
	}

	if len(listings) == 0 {
		fmt.Println("No cached symbols.")
		return nil
	}
	fmt.Printf("%-10s %-14s %-10s %-25s\n", "Symbol", "Kind", "Records", "Last Update")
	fmt.Println(strings.Repeat("-", 62))
	for _, l := range listings {
		for _, k := range l.Kinds {
			fmt.Printf("%-10s %-14s %-10d %-25s\n", l.Symbol, k.Kind, k.RecordCount, k.LastUpdate.Format("2006-01-02 15:04:05"))
		}
	}
	return nil
}

// handleStats handles the 'stats' command
func (cli *CLI) handleStats(ctx context.Context, flags *Flags) error {
	if flags.Symbol == "" {
		return fmt.Errorf("--symbol is required")
	}
	stats, err := cli.coordinator.Stats(ctx, flags.Symbol, flags.Kind)
	if err != nil {
		return err
	}
	if flags.Format == "json" {
		return outputJSON(stats)
	}

	fmt.Printf("📊 Cache statistics for %s (%s)\n", stats.Symbol, stats.Kind)
	fmt.Printf("Records:               %d\n", stats.RecordCount)
	fmt.Printf("First date:            %s\n", stats.FirstDate)
	fmt.Printf("Last date:             %s\n", stats.LastDate)
	fmt.Printf("Missing business days: %d\n", stats.MissingBusinessDays)
	fmt.Printf("Source:                %s\n", stats.SourceName)
	fmt.Printf("Last update:           %s\n", stats.LastSyncedAt.Format("2006-01-02 15:04:05"))
	if stats.SizeBytes > 0 {
		fmt.Printf("Size:                  %.1f KB\n", float64(stats.SizeBytes)/1024)
	}
	return nil
}

// handleInfo handles the 'info' command
func (cli *CLI) handleInfo(ctx context.Context, flags *Flags) error {
	if flags.Symbol == "" {
		return fmt.Errorf("--symbol is required")
	}
	info, err := cli.coordinator.Info(ctx, flags.Symbol)
	if err != nil {
		return err
	}
	return outputJSON(info)
}

// handleValidate handles the 'validate' command, optionally comparing
// adjusted and regular prices
func (cli *CLI) handleValidate(ctx context.Context, flags *Flags) error {
	if flags.Symbol == "" {
		return fmt.Errorf("--symbol is required")
	}

	if flags.Compare {
		cmp, err := cli.coordinator.Compare(ctx, flags.Symbol, flags.Start, flags.End)
		if err != nil {
			return err
		}
		return outputJSON(cmp)
	}

	report, err := cli.coordinator.Validate(ctx, flags.Symbol, flags.Start, flags.End)
	if report != nil {
		if flags.Format == "json" {
			if jsonErr := outputJSON(report); jsonErr != nil {
				return jsonErr
			}
		} else {
			printReport(report)
		}
	}
	return err
}

// handleServe handles the 'serve' command
func (cli *CLI) handleServe(ctx context.Context, flags *Flags) error {
	serverCfg := cli.config.Server
	if flags.Addr != "" {
		serverCfg.Addr = flags.Addr
	}

	if len(cli.config.Refresh.Symbols) > 0 {
		schedCfg := scheduler.ConfigFromRefresh(cli.config.Refresh)
		sched := scheduler.New(schedCfg, cli.coordinator, cli.logs.GetComponentLogger("scheduler").Logger)
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), schedCfg.JobTimeout)
			defer cancel()
			_ = sched.Stop(stopCtx)
		}()
		fmt.Printf("🔄 Refreshing %d watchlist symbol(s) every %s\n", len(schedCfg.Symbols), schedCfg.Frequency)
	}

	server := api.NewServer(serverCfg, cli.coordinator, cli.logs.GetComponentLogger("api").Logger)
	fmt.Printf("🚀 Serving price sync API on %s\n", server.Addr())
	fmt.Println("Press Ctrl+C to stop gracefully")
	return server.Start(ctx)
}

// handleRefresh handles the 'refresh' command: one pass over the watchlist,
// or over --symbols when given
func (cli *CLI) handleRefresh(ctx context.Context, flags *Flags) error {
	refresh := cli.config.Refresh
	if len(flags.Symbols) > 0 {
		refresh.Symbols = flags.Symbols
	}
	if len(refresh.Symbols) == 0 {
		return fmt.Errorf("no symbols to refresh: pass --symbols or set refresh.symbols")
	}

	sched := scheduler.New(scheduler.ConfigFromRefresh(refresh), cli.coordinator,
		cli.logs.GetComponentLogger("scheduler").Logger)
	err := sched.RunOnce(ctx)

	stats := sched.GetStats()
	fmt.Printf("Refreshed %d job(s): %d completed, %d failed\n",
		stats.TotalJobs, stats.CompletedJobs, stats.FailedJobs)
	for _, job := range sched.Jobs() {
		_, count, jobErr := job.LastResult()
		status := "ok"
		if jobErr != nil {
			status = "failed"
		}
		fmt.Printf("  %-12s %-3s %6d bars  %s\n", job.Symbol(), job.Interval(), count, status)
	}
	return err
}

// Flags holds the parsed options of every subcommand. Each command accepts
// only the subset listed in commandFlags.
type Flags struct {
	Symbol      string
	Symbols     []string
	Start       string
	End         string
	Date        string
	Interval    string
	Kind        string
	Timeframe   string
	Format      string
	Addr        string
	ConfigPath  string
	Limit       int
	NoCache     bool
	Raw         bool
	MarketHours bool
	Compare     bool
	Help        bool
}

func (f *Flags) seriesOptions() models.SeriesOptions {
	return models.SeriesOptions{
		Interval: models.Interval(f.Interval),
		UseCache: !f.NoCache,
		Adjusted: !f.Raw,
	}
}

var commandFlags = map[string][]string{
	"get":       {"--symbol", "--start", "--end", "--interval", "--no-cache", "--raw", "--market-hours", "--date", "--format", "--limit"},
	"multi":     {"--symbols", "--start", "--end", "--interval", "--no-cache", "--raw", "--format"},
	"aggregate": {"--symbol", "--start", "--end", "--timeframe", "--no-cache", "--format", "--limit"},
	"clear":     {"--symbol", "--kind"},
	"symbols":   {"--format"},
	"stats":     {"--symbol", "--kind", "--format"},
	"info":      {"--symbol"},
	"validate":  {"--symbol", "--start", "--end", "--compare", "--format"},
	"refresh":   {"--symbols"},
	"serve":     {"--addr"},
}

var shortFlags = map[string]string{
	"-s": "--symbol",
	"-i": "--interval",
	"-k": "--kind",
	"-t": "--timeframe",
	"-f": "--format",
	"-l": "--limit",
}

// parseFlags parses command line arguments for command
func parseFlags(command string, args []string) (*Flags, error) {
	flags := &Flags{
		Interval: string(models.IntervalDaily),
		Format:   "table",
		Limit:    50,
	}

	allowed := make(map[string]bool)
	for _, name := range commandFlags[command] {
		allowed[name] = true
	}

	value := func(i int, name string) (string, error) {
		if i+1 >= len(args) {
			return "", fmt.Errorf("%s requires a value", name)
		}
		return args[i+1], nil
	}

	for i := 0; i < len(args); i++ {
		name := args[i]
		if long, ok := shortFlags[name]; ok {
			name = long
		}

		switch name {
		case "--help", "-h":
			flags.Help = true
			continue
		case "--config":
			v, err := value(i, name)
			if err != nil {
				return nil, err
			}
			flags.ConfigPath = v
			i++
			continue
		}

		if !allowed[name] {
			return nil, fmt.Errorf("unknown flag: %s", args[i])
		}

		switch name {
		case "--no-cache":
			flags.NoCache = true
			continue
		case "--raw":
			flags.Raw = true
			continue
		case "--market-hours":
			flags.MarketHours = true
			continue
		case "--compare":
			flags.Compare = true
			continue
		}

		v, err := value(i, name)
		if err != nil {
			return nil, err
		}
		i++

		switch name {
		case "--symbol":
			flags.Symbol = v
		case "--symbols":
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					flags.Symbols = append(flags.Symbols, s)
				}
			}
		case "--start":
			flags.Start = v
		case "--end":
			flags.End = v
		case "--date":
			flags.Date = v
		case "--interval":
			flags.Interval = v
		case "--kind":
			flags.Kind = v
		case "--timeframe":
			flags.Timeframe = v
		case "--addr":
			flags.Addr = v
		case "--format":
			if v != "json" && v != "csv" && v != "table" {
				return nil, fmt.Errorf("invalid format, must be: json, csv, or table")
			}
			flags.Format = v
		case "--limit":
			limit, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid limit value: %w", err)
			}
			flags.Limit = limit
		}
	}

	return flags, nil
}

// Output formatting functions

func printSeriesHeader(res *coordinator.SeriesResult) {
	fmt.Printf("📊 %s %s", res.Symbol, res.Kind)
	if res.SourceSymbol != "" {
		fmt.Printf(" (served as %s)", res.SourceSymbol)
	}
	if res.MarketHoursOnly {
		fmt.Printf(" market hours")
	}
	fmt.Printf("\n")
	fmt.Printf("Range: %s to %s\n", res.FirstDate, res.LastDate)
	fmt.Printf("Found: %d bars (from cache: %t)\n\n", res.Count, res.FromCache)
}

// outputJSON writes v as indented JSON
func outputJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func outputBars(bars []models.Bar, format string, limit int, intraday bool) error {
	switch format {
	case "json":
		return outputJSON(bars)
	case "csv":
		return outputCSV(bars, intraday)
	default:
		return outputTable(bars, limit, intraday)
	}
}

// outputCSV formats bars as CSV
func outputCSV(bars []models.Bar, intraday bool) error {
	fmt.Println("timestamp,open,high,low,close,volume,adj_close")
	for _, b := range bars {
		adj := ""
		if b.AdjClose.Valid {
			adj = b.AdjClose.Decimal.String()
		}
		fmt.Printf("%s,%s,%s,%s,%s,%d,%s\n",
			formatTimestamp(b, intraday),
			b.Open, b.High, b.Low, b.Close, b.Volume, adj)
	}
	return nil
}

// outputTable formats bars as a table
func outputTable(bars []models.Bar, limit int, intraday bool) error {
	total := len(bars)
	if limit > 0 && total > limit {
		bars = bars[:limit]
	}

	fmt.Printf("%-20s %-12s %-12s %-12s %-12s %-14s %-12s\n",
		"Timestamp", "Open", "High", "Low", "Close", "Volume", "Adj Close")
	fmt.Println(strings.Repeat("-", 100))

	for _, b := range bars {
		adj := "-"
		if b.AdjClose.Valid {
			adj = b.AdjClose.Decimal.StringFixed(4)
		}
		fmt.Printf("%-20s %-12s %-12s %-12s %-12s %-14d %-12s\n",
			formatTimestamp(b, intraday),
			b.Open.StringFixed(2), b.High.StringFixed(2), b.Low.StringFixed(2), b.Close.StringFixed(2),
			b.Volume, adj)
	}

	if limit > 0 && total > limit {
		fmt.Printf("\n... showing first %d of %d bars (use --limit to see more)\n", limit, total)
	}
	return nil
}

func formatTimestamp(b models.Bar, intraday bool) string {
	if intraday {
		return b.Timestamp.Format(models.DateTimeLayout)
	}
	return b.Timestamp.Format(models.DateLayout)
}

func printReport(report *adjuster.Report) {
	if report.IsValid {
		fmt.Println("✅ Adjusted series is consistent")
	} else {
		fmt.Printf("❌ Adjusted series has %d issue(s):\n", len(report.Issues))
		for _, issue := range report.Issues {
			fmt.Printf("   - %s\n", issue)
		}
	}
	s := report.Statistics
	fmt.Printf("\nBars:               %d\n", s.TotalBars)
	fmt.Printf("Bars adjusted:      %d\n", s.BarsAdjusted)
	fmt.Printf("Adjustment factor:  min %.6f / max %.6f / mean %.6f\n",
		s.MinAdjustmentFactor, s.MaxAdjustmentFactor, s.MeanAdjustmentFactor)
}

// Help and usage functions

// printUsage prints the main usage information
func printUsage() {
	fmt.Printf(`%s - Price Sync CLI v%s

USAGE:
    %s <command> [options]

COMMANDS:
    get         Sync and print the bars of one symbol
    multi       Sync several symbols concurrently
    aggregate   Sync minute bars and resample them (5m, 15m, 30m, 1h, 4h)
    clear       Remove cached data of a symbol
    symbols     List cached symbols and kinds
    stats       Show cache statistics of one series
    info        Show provider metadata of a symbol
    validate    Validate (or compare) the adjusted daily series
    refresh     Sync the trailing window of the watchlist once
    serve       Serve the HTTP API (and refresh the watchlist periodically)

GLOBAL OPTIONS:
    --config <path>  Configuration file (default: %s or $CONFIG_PATH)
    --help, -h       Show help information
    --version, -v    Show version information

EXAMPLES:
    # Daily adjusted bars for January 2024
    %s get --symbol AAPL --start 2024-01-01 --end 2024-01-31

    # Raw minute bars during regular trading hours
    %s get --symbol AAPL --date 2024-03-04 --market-hours

    # Several symbols, unadjusted, as JSON
    %s multi --symbols AAPL,MSFT,BRK.B --start 2024-01-01 --end 2024-01-31 --raw --format json

CONFIGURATION:
    Configuration can be provided via:
    - Config file: %s (JSON format)
    - Environment variables (e.g., DATA_DIR, STORAGE_TYPE, LOG_LEVEL), also read from .env

For detailed help on any command, use: %s <command> --help
`, AppName, Version, AppName, ConfigFile, AppName, AppName, AppName, ConfigFile, AppName)
}

// printCommandHelp prints detailed help for a specific command
func printCommandHelp(command string) {
	switch command {
	case "get":
		fmt.Printf(`%s get - Sync and print the bars of one symbol

USAGE:
    %s get [options]

OPTIONS:
    --symbol, -s <symbol>     Ticker symbol (required)
    --start <date>            Start date (YYYY-MM-DD)
    --end <date>              End date (YYYY-MM-DD)
    --interval, -i <interval> 1d or 1m (default: 1d)
    --raw                     Daily bars without split/dividend adjustment
    --no-cache                Fetch directly, never read or write the cache
    --market-hours            Minute bars of --date within 09:30-16:00
    --date <date>             Trading date for --market-hours
    --format, -f <format>     table, csv or json (default: table)
    --limit, -l <n>           Rows shown in table format (default: 50)
`, AppName, AppName)
	case "multi":
		fmt.Printf(`%s multi - Sync several symbols concurrently

USAGE:
    %s multi --symbols AAPL,MSFT [options]

OPTIONS:
    --symbols <list>          Comma-separated ticker symbols (required)
    --start, --end <date>     Date range (YYYY-MM-DD)
    --interval, -i <interval> 1d or 1m (default: 1d)
    --raw, --no-cache         As for get
    --format, -f <format>     table or json (default: table)
`, AppName, AppName)
	case "aggregate":
		fmt.Printf(`%s aggregate - Resample minute bars

USAGE:
    %s aggregate --symbol AAPL --start 2024-03-01 --end 2024-03-05 --timeframe 15m

OPTIONS:
    --symbol, -s <symbol>     Ticker symbol (required)
    --start, --end <date>     Date range (YYYY-MM-DD)
    --timeframe, -t <tf>      5m, 15m, 30m, 1h or 4h (required)
    --no-cache                Fetch directly, never read or write the cache
    --format, -f <format>     table, csv or json (default: table)
`, AppName, AppName)
	case "clear":
		fmt.Printf(`%s clear - Remove cached data

USAGE:
    %s clear --symbol AAPL [--kind daily|dailyAdjusted|minute]

Without --kind every kind of the symbol is removed.
`, AppName, AppName)
	case "symbols":
		fmt.Printf(`%s symbols - List cached symbols

USAGE:
    %s symbols [--format table|json]
`, AppName, AppName)
	case "stats":
		fmt.Printf(`%s stats - Show cache statistics

USAGE:
    %s stats --symbol AAPL [--kind dailyAdjusted] [--format table|json]
`, AppName, AppName)
	case "info":
		fmt.Printf(`%s info - Show provider metadata

USAGE:
    %s info --symbol AAPL
`, AppName, AppName)
	case "validate":
		fmt.Printf(`%s validate - Validate the adjusted daily series

USAGE:
    %s validate --symbol AAPL --start 2024-01-01 --end 2024-01-31 [--compare]

OPTIONS:
    --compare                 Compare adjusted and regular prices instead
    --format, -f <format>     table or json (default: table)
`, AppName, AppName)
	case "refresh":
		fmt.Printf(`%s refresh - Sync the trailing window of the watchlist once

USAGE:
    %s refresh [--symbols AAPL,MSFT]

Symbols default to refresh.symbols (REFRESH_SYMBOLS). Each symbol is synced
for every interval in refresh.intervals over the last refresh.lookback_days.
`, AppName, AppName)
	case "serve":
		fmt.Printf(`%s serve - Serve the HTTP API

USAGE:
    %s serve [--addr :8080]

When refresh.symbols is set, the watchlist is refreshed every
refresh.frequency while the server runs.
`, AppName, AppName)
	default:
		fmt.Printf("No help available for command: %s\n\n", command)
		printUsage()
	}
}
