package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/John-Curcio/grepl-scraper/browser"
	"github.com/John-Curcio/grepl-scraper/capture"
	"github.com/John-Curcio/grepl-scraper/config"
	"github.com/John-Curcio/grepl-scraper/models"
	"github.com/John-Curcio/grepl-scraper/preflight"
	"github.com/John-Curcio/grepl-scraper/store"
)

func main() {
	defaultCfg := config.DefaultConfig()

	collectionDefault := defaultCfg.CollectionURL
	if value, ok := config.EnvString("CAPTURE_COLLECTION_URL"); ok {
		collectionDefault = value
	}
	budgetDefault := defaultCfg.PageBudget
	if value, ok, err := config.EnvInt("CAPTURE_PAGE_BUDGET"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid CAPTURE_PAGE_BUDGET: %v\n", err)
		os.Exit(1)
	} else if ok {
		budgetDefault = value
	}
	resumeDefault := defaultCfg.ResumeFromPage
	if value, ok, err := config.EnvInt("CAPTURE_RESUME_FROM_PAGE"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid CAPTURE_RESUME_FROM_PAGE: %v\n", err)
		os.Exit(1)
	} else if ok {
		resumeDefault = value
	}
	dbPathDefault := defaultCfg.DBPath
	if value, ok := config.EnvString("CAPTURE_DB_PATH"); ok {
		dbPathDefault = value
	}
	esAddrDefault := defaultCfg.ESAddress
	if value, ok := config.EnvString("CAPTURE_ES_ADDRESS"); ok {
		esAddrDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("CAPTURE_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	collectionURL := flag.String("url", collectionDefault, "Collection URL to capture")
	loginURL := flag.String("login-url", defaultCfg.LoginURL, "Login page URL")
	backend := flag.String("backend", defaultCfg.Backend, "Browser backend: rod or chromedp")
	headless := flag.Bool("headless", defaultCfg.Headless, "Run the browser without a visible window")
	skipLogin := flag.Bool("skip-login", defaultCfg.SkipLogin, "Skip the manual login step")
	scrollSteps := flag.Int("scroll-steps", defaultCfg.ScrollStepsPerPage, "Scroll steps per page")
	pageBudget := flag.Int("page-budget", budgetDefault, "Pages to capture before stopping")
	resumeFrom := flag.Int("resume-from-page", resumeDefault, "1-based page to resume capturing from")
	pauseMs := flag.Int("pause", int(defaultCfg.PauseBetweenSteps/time.Millisecond), "Pause between scroll steps (milliseconds)")
	maxAdvance := flag.Int("max-advance-attempts", defaultCfg.MaxAdvanceAttempts, "Page-advance attempts before escalation")
	storeKind := flag.String("store", defaultCfg.Store, "Snapshot store: sqlite or es")
	dbPath := flag.String("db", dbPathDefault, "SQLite database path")
	esAddress := flag.String("es-address", esAddrDefault, "Elasticsearch address")
	esIndex := flag.String("es-index", defaultCfg.ESIndex, "Elasticsearch index name")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	noPreflight := flag.Bool("no-preflight", false, "Skip the HTTP reachability probe")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := config.DefaultConfig()
	cfg.CollectionURL = *collectionURL
	cfg.LoginURL = *loginURL
	cfg.Backend = *backend
	cfg.Headless = *headless
	cfg.SkipLogin = *skipLogin
	cfg.ScrollStepsPerPage = *scrollSteps
	cfg.PageBudget = *pageBudget
	cfg.ResumeFromPage = *resumeFrom
	cfg.PauseBetweenSteps = time.Duration(*pauseMs) * time.Millisecond
	cfg.MaxAdvanceAttempts = *maxAdvance
	cfg.Store = *storeKind
	cfg.DBPath = *dbPath
	cfg.ESAddress = *esAddress
	cfg.ESIndex = *esIndex
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose
	if user, ok := config.EnvString("CAPTURE_ES_USERNAME"); ok {
		cfg.ESUsername = user
	}
	if pass, ok := config.EnvString("CAPTURE_ES_PASSWORD"); ok {
		cfg.ESPassword = pass
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing current step")
	}()

	if !*noPreflight {
		runPreflight(ctx, cfg)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("opening snapshot store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("close store", slog.Any("error", err))
		}
	}()

	logResumeHint(ctx, cfg, st)

	b, err := browser.New(ctx, cfg)
	if err != nil {
		slog.Error("launching browser", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := b.Close(); err != nil {
			slog.Error("close browser", slog.Any("error", err))
		}
	}()

	prompter := &capture.ConsolePrompter{In: os.Stdin, Out: os.Stdout}
	session, err := capture.NewSession(cfg, b, st, prompter)
	if err != nil {
		slog.Error("initialising session", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && session.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(session.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	if !cfg.SkipLogin && !cfg.Headless {
		if err := session.ManualLogin(ctx); err != nil {
			slog.Error("manual login failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	result, runErr := session.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if result != nil {
		printSummary(result)
	}
	if runErr != nil {
		slog.Error("capture failed", slog.Any("error", runErr))
		os.Exit(1)
	}
}

// runPreflight probes the target before paying for a browser boot. Failures
// are fatal except when the probe itself cannot run.
func runPreflight(ctx context.Context, cfg *config.Config) {
	probe, err := preflight.NewProbe(cfg)
	if err != nil {
		slog.Error("preflight setup failed", slog.Any("error", err))
		os.Exit(1)
	}
	report, err := probe.Run(ctx)
	if err != nil {
		slog.Error("preflight probe failed", slog.Any("error", err))
		os.Exit(1)
	}
	if report.LoginWalled && cfg.SkipLogin {
		slog.Warn("target appears login-walled but -skip-login is set; captures may be empty")
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.SnapshotStore, error) {
	switch cfg.Store {
	case "sqlite":
		return store.OpenSQLite(cfg.DBPath)
	case "es":
		return store.OpenES(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported store: %s", cfg.Store)
	}
}

// logResumeHint surfaces the highest already-captured page so an operator can
// pick -resume-from-page without querying the store by hand.
func logResumeHint(ctx context.Context, cfg *config.Config, st store.SnapshotStore) {
	maxPage, found, err := st.MaxPageIndex(ctx, cfg.CollectionURL)
	if err != nil {
		slog.Warn("resume hint unavailable", slog.Any("error", err))
		return
	}
	if !found {
		return
	}
	slog.Info("previous captures found for this collection",
		slog.Int("max_page_index", maxPage),
		slog.Int("suggested_resume_from_page", maxPage+2),
		slog.Int("configured_resume_from_page", cfg.ResumeFromPage),
	)
}

func printSummary(result *models.SessionResult) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Capture session complete")
	fmt.Printf("  Final state:        %s\n", result.FinalState)
	fmt.Printf("  Pages captured:     %d\n", result.PagesCaptured)
	fmt.Printf("  Pages skipped:      %d\n", result.PagesSkipped)
	fmt.Printf("  Snapshots written:  %d\n", result.SnapshotsWritten)
	fmt.Printf("  Duplicate inserts:  %d\n", result.DuplicateInserts)
	fmt.Printf("  Degraded scrolls:   %d\n", result.DegradedScrolls)
	fmt.Printf("  Readiness timeouts: %d\n", result.ReadinessTimeouts)
	fmt.Printf("  Pagination retries: %d\n", result.PaginationRetries)
	fmt.Printf("  Interventions:      %d\n", result.Interventions)
	fmt.Printf("  Stalled snapshots:  %d\n", result.StalledSnapshots)
	fmt.Printf("  Duration:           %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
