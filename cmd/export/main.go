// Command export dumps persisted snapshots for one collection to JSONL or
// CSV, ordered by page and scroll index, so downstream parsing can run
// against a flat file instead of the live store.
package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/John-Curcio/grepl-scraper/config"
	"github.com/John-Curcio/grepl-scraper/models"
	"github.com/John-Curcio/grepl-scraper/store"
)

const exportBatchSize = 100

func main() {
	defaultCfg := config.DefaultConfig()

	collectionURL := flag.String("url", defaultCfg.CollectionURL, "Collection URL to export")
	storeKind := flag.String("store", defaultCfg.Store, "Snapshot store: sqlite or es")
	dbPath := flag.String("db", defaultCfg.DBPath, "SQLite database path")
	esAddress := flag.String("es-address", defaultCfg.ESAddress, "Elasticsearch address")
	esIndex := flag.String("es-index", defaultCfg.ESIndex, "Elasticsearch index name")
	format := flag.String("format", "jsonl", "Output format: jsonl or csv")
	output := flag.String("output", "snapshots.jsonl", "Output file path")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := config.DefaultConfig()
	cfg.CollectionURL = *collectionURL
	cfg.Store = *storeKind
	cfg.DBPath = *dbPath
	cfg.ESAddress = *esAddress
	cfg.ESIndex = *esIndex
	if user, ok := config.EnvString("CAPTURE_ES_USERNAME"); ok {
		cfg.ESUsername = user
	}
	if pass, ok := config.EnvString("CAPTURE_ES_PASSWORD"); ok {
		cfg.ESPassword = pass
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	writer, err := newWriter(*format, *output)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}

	exported, err := export(ctx, st, cfg.CollectionURL, writer)
	if closeErr := writer.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		slog.Error("export failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("export complete",
		slog.Int("snapshots", exported),
		slog.String("output", *output),
	)
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

func export(ctx context.Context, st store.SnapshotStore, collectionURL string, w snapshotWriter) (int, error) {
	exported := 0
	for offset := 0; ; offset += exportBatchSize {
		if err := ctx.Err(); err != nil {
			return exported, err
		}
		batch, err := st.List(ctx, collectionURL, exportBatchSize, offset)
		if err != nil {
			return exported, fmt.Errorf("list snapshots: %w", err)
		}
		if len(batch) == 0 {
			return exported, nil
		}
		for _, snap := range batch {
			if err := w.Write(snap); err != nil {
				return exported, err
			}
			exported++
		}
	}
}

type snapshotWriter interface {
	Write(snap *models.Snapshot) error
	Close() error
}

func newWriter(format, filename string) (snapshotWriter, error) {
	switch format {
	case "jsonl":
		return newJSONLWriter(filename)
	case "csv":
		return newCSVWriter(filename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

type jsonlWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
}

func newJSONLWriter(filename string) (*jsonlWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create jsonl file: %w", err)
	}
	buffered := bufio.NewWriter(f)
	return &jsonlWriter{file: f, writer: buffered, encoder: json.NewEncoder(buffered)}, nil
}

func (jw *jsonlWriter) Write(snap *models.Snapshot) error {
	if err := jw.encoder.Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

func (jw *jsonlWriter) Close() error {
	if err := jw.writer.Flush(); err != nil {
		jw.file.Close()
		return fmt.Errorf("flush jsonl writer: %w", err)
	}
	return jw.file.Close()
}

type csvWriter struct {
	file   *os.File
	writer *csv.Writer
}

func newCSVWriter(filename string) (*csvWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}
	writer := csv.NewWriter(f)
	header := []string{"collection_url", "page_index", "scroll_index", "captured_at", "markup"}
	if err := writer.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}
	return &csvWriter{file: f, writer: writer}, nil
}

func (cw *csvWriter) Write(snap *models.Snapshot) error {
	record := []string{
		snap.CollectionURL,
		strconv.Itoa(snap.PageIndex),
		strconv.Itoa(snap.ScrollIndex),
		snap.CapturedAt,
		snap.Markup,
	}
	if err := cw.writer.Write(record); err != nil {
		return fmt.Errorf("write csv record: %w", err)
	}
	return nil
}

func (cw *csvWriter) Close() error {
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		cw.file.Close()
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return nil
}
