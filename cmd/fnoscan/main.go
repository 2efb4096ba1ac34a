package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradelab/fnoscan/internal/config"
	"github.com/tradelab/fnoscan/internal/database"
	"github.com/tradelab/fnoscan/internal/pipeline"
	"github.com/tradelab/fnoscan/internal/server"
	"github.com/tradelab/fnoscan/internal/source"
	"github.com/tradelab/fnoscan/internal/universe"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "fnoscan",
	Short:   "Announcement-driven options trade scanner",
	Long:    "fnoscan ingests corporate announcements, classifies them with an LLM, enriches them with technical signals, and produces confidence-scored options trade recommendations.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(researchCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("fnoscan", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/fnoscan/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure announcement feeds and LLM API keys.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Today: %s\n\n", database.GetToday())
		fmt.Println("Ingested data:")
		fmt.Printf("  Announcements: %d (%d dates)\n", stats.Announcements, stats.DatesWithData)
		fmt.Printf("  Daily price bars: %d\n", stats.PriceBars)
		fmt.Printf("  Option-chain rows: %d\n", stats.OptionRows)
		fmt.Printf("  FNO universe symbols: %d\n", stats.UniverseSymbols)
		fmt.Println("\nOutput:")
		fmt.Printf("  Recommendations: %d\n", stats.Recommendations)
		fmt.Printf("  Trade ready: %d\n", stats.TradeReady)

		lastRun, err := db.GetLastRunDate()
		if err != nil {
			return err
		}
		if lastRun != "" {
			fmt.Printf("\nLast pipeline run: %s\n", lastRun)
		} else {
			fmt.Println("\nNo pipeline run yet. Ingest data and run 'fnoscan run'.")
		}
		return nil
	},
}

// --- ingest commands ---

var ingestDaysBack int

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest announcements, prices, options, or the FNO universe",
}

var ingestFeedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "Pull announcements from configured feeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if len(cfg.Sources.Feeds) == 0 {
			return fmt.Errorf("no feeds configured; add some under sources.feeds")
		}

		feeds := make([]source.FeedConfig, len(cfg.Sources.Feeds))
		for i, f := range cfg.Sources.Feeds {
			feeds[i] = source.FeedConfig{URL: f.URL, Name: f.Name}
		}

		ingester := source.NewFeedIngester(feeds, db)
		result := ingester.IngestAll(cmd.Context(), ingestDaysBack)
		printIngestResult(result)
		return nil
	},
}

var ingestAnnouncementsCmd = &cobra.Command{
	Use:   "announcements [file]",
	Short: "Load announcements from a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		result, err := source.IngestAnnouncementsCSV(db, f)
		if err != nil {
			return err
		}
		printIngestResult(result)
		return nil
	},
}

var ingestPricesCmd = &cobra.Command{
	Use:   "prices [file]",
	Short: "Load daily OHLCV bars from a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		n, err := source.IngestPricesCSV(db, f)
		if err != nil {
			return err
		}
		fmt.Printf("Ingested %d price bars\n", n)
		return nil
	},
}

var ingestOptionsCmd = &cobra.Command{
	Use:   "options [file]",
	Short: "Load option-chain rows from a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		n, err := source.IngestOptionsCSV(db, f)
		if err != nil {
			return err
		}
		fmt.Printf("Ingested %d option-chain rows\n", n)
		return nil
	},
}

var ingestUniverseCmd = &cobra.Command{
	Use:   "universe [file]",
	Short: "Replace the FNO universe from a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		symbols, lotSizes, err := universe.ParseCSV(f)
		if err != nil {
			return err
		}
		if err := db.ReplaceUniverse(symbols, lotSizes); err != nil {
			return err
		}
		fmt.Printf("Replaced FNO universe: %d symbols\n", len(symbols))
		return nil
	},
}

func init() {
	ingestFeedsCmd.Flags().IntVar(&ingestDaysBack, "days-back", 1, "Only keep feed entries this many days old")
	ingestCmd.AddCommand(ingestFeedsCmd)
	ingestCmd.AddCommand(ingestAnnouncementsCmd)
	ingestCmd.AddCommand(ingestPricesCmd)
	ingestCmd.AddCommand(ingestOptionsCmd)
	ingestCmd.AddCommand(ingestUniverseCmd)
}

func printIngestResult(r *source.IngestResult) {
	fmt.Println("Ingestion complete:")
	fmt.Printf("  Total found: %d\n", r.TotalFound)
	fmt.Printf("  New announcements: %d\n", r.New)
	fmt.Printf("  Duplicates skipped: %d\n", r.Duplicates)

	if len(r.Sources) > 0 {
		type kv struct {
			key string
			val int
		}
		var sorted []kv
		for k, v := range r.Sources {
			sorted = append(sorted, kv{k, v})
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
		fmt.Println("\nBy source:")
		for _, s := range sorted {
			fmt.Printf("  %s: %d\n", s.key, s.val)
		}
	}
}

// --- run command ---

var runDate string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline: filter -> dedup -> classify -> dedup -> research -> recommend",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		date, err := resolveDate(runDate)
		if err != nil {
			return err
		}

		runner, err := pipeline.New(cfg, db)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, err := runner.Run(ctx, date)
		if err != nil {
			return err
		}

		fmt.Printf("\nRun %s for %s\n", result.RunID, date.Format("2006-01-02"))
		for _, stage := range []pipeline.Stage{
			pipeline.StageFiltered, pipeline.StagePreDeduped, pipeline.StageClassified,
			pipeline.StagePostDeduped, pipeline.StageResearched, pipeline.StageRecommended,
		} {
			fmt.Printf("  %-14s %d\n", stage, result.Counts[stage])
		}
		if result.Partial {
			fmt.Println("\nRun was partial (cap reached or cancelled).")
		}
		if len(result.Errors) > 0 {
			fmt.Printf("\nSkipped items (%d):\n", len(result.Errors))
			for _, e := range result.Errors {
				fmt.Printf("  %s: %s (%s)\n", e.Symbol, e.Reason, e.Stage)
			}
		}

		if len(result.Recommendations) == 0 {
			fmt.Println("\nNo recommendations.")
			return nil
		}
		fmt.Printf("\nRecommendations (%d):\n", len(result.Recommendations))
		for _, rec := range result.Recommendations {
			ready := " "
			if rec.TradeReady {
				ready = "*"
			}
			fmt.Printf("  %s %-12s %3d  %-7s  %s\n",
				ready, rec.Symbol, rec.ConfidenceScore, rec.Direction, rec.SuggestedStrategy)
		}
		return nil
	},
}

// --- research command ---

var researchDate string

var researchCmd = &cobra.Command{
	Use:   "research [symbol]",
	Short: "Research one symbol's latest announcement ad hoc",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		date, err := resolveDate(researchDate)
		if err != nil {
			return err
		}

		runner, err := pipeline.New(cfg, db)
		if err != nil {
			return err
		}

		symbol := strings.ToUpper(args[0])
		rec, err := runner.ResearchSymbol(cmd.Context(), symbol, date)
		if err != nil {
			return err
		}

		fmt.Printf("%s on %s\n", rec.Symbol, rec.AnnouncementDate.Format("2006-01-02"))
		fmt.Printf("  Headline:   %s\n", rec.Headline)
		fmt.Printf("  Event:      %s (%s, %s confidence)\n",
			rec.Classification.EventType, rec.Direction, rec.Classification.Confidence)
		fmt.Printf("  Score:      %d\n", rec.ConfidenceScore)
		fmt.Printf("  Trade ready: %v\n", rec.TradeReady)
		fmt.Printf("  Strategy:   %s\n", rec.SuggestedStrategy)
		if rec.Technicals != nil {
			t := rec.Technicals
			fmt.Printf("  Technicals: dir=%s return=%.2f%% vol_spike=%.2f atr=%.2f%% liquidity=%v (as of %s)\n",
				t.Direction, t.DailyReturn*100, t.VolumeSpikeRatio, t.ATRPct*100,
				t.LiquidityPresent, t.AsOf.Format("2006-01-02"))
		} else {
			fmt.Println("  Technicals: not available")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runDate, "date", "", "Target trading date (YYYY-MM-DD, default today)")
	researchCmd.Flags().StringVar(&researchDate, "date", "", "Announcement date (YYYY-MM-DD, default today)")
}

func resolveDate(flag string) (time.Time, error) {
	if flag == "" {
		return time.Parse("2006-01-02", database.GetToday())
	}
	date, err := time.Parse("2006-01-02", flag)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", flag)
	}
	return date, nil
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local JSON API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(filepath.Join(dataDir, "fnoscan.db"))
}
