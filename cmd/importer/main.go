// Command importer merges invoice documents into their month workbooks
// and exits non-zero when any document needs manual review.
//
//	importer -config configs/config.yaml [-month 2025-10] [-reset] invoice1.pdf invoice2.pages ...
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/labinvoice/internal/config"
	"github.com/garyjia/labinvoice/internal/container"
	"github.com/garyjia/labinvoice/internal/convert"
	"github.com/garyjia/labinvoice/internal/importer"
	"github.com/garyjia/labinvoice/internal/storage"
	"github.com/garyjia/labinvoice/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration (defaults and environment when empty)")
	envFile := flag.String("env", ".env", "optional dotenv file loaded before the configuration")
	month := flag.String("month", "", "file every document under this month (YYYY-MM)")
	reset := flag.Bool("reset", false, "remove the month's workbook, CSV and statement before importing (requires -month)")
	flag.Parse()

	if err := gotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFile, err)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 2
	}
	if *month != "" {
		if err := storage.ValidateMonth(*month); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		cfg.Output.MonthOverride = *month
	}
	if *reset && *month == "" {
		fmt.Fprintln(os.Stderr, "-reset requires -month")
		return 2
	}
	// the CLI never watches a folder
	cfg.Inbox.Enabled = false

	paths, err := documentPaths(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if len(paths) == 0 && !*reset {
		fmt.Fprintln(os.Stderr, "usage: importer [flags] files or folders...")
		flag.PrintDefaults()
		return 2
	}

	runLog := storage.NewMonthStore(cfg.Output.BaseDir, zap.NewNop()).RunLogPath(time.Now())
	log, err := logger.Tee(logger.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	}, runLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 2
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.New(cfg, log)
	if err != nil {
		log.Error("Failed to create container", zap.Error(err))
		return 2
	}
	if err := c.Start(ctx); err != nil {
		log.Error("Failed to start container", zap.Error(err))
		return 2
	}
	defer c.Close()

	if *reset {
		removed, err := c.Importer().ResetMonth(ctx, *month)
		if err != nil {
			log.Error("Failed to reset month", zap.String("month", *month), zap.Error(err))
			return 2
		}
		fmt.Printf("Reset %s: removed %d file(s)\n", *month, len(removed))
		if len(paths) == 0 {
			return 0
		}
	}

	res, err := c.Importer().ImportFiles(ctx, paths)
	if err != nil {
		log.Error("Import failed", zap.Error(err))
		return 2
	}

	printSummary(res)
	fmt.Printf("Run log: %s\n", runLog)
	if res.HasExceptions() {
		return 1
	}
	return 0
}

// documentPaths expands folders into the supported documents they hold
func documentPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", arg, err)
		}
		// a .pages document may itself be a folder bundle
		if !info.IsDir() || convert.Supported(arg) {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot list %s: %w", arg, err)
		}
		for _, e := range entries {
			p := filepath.Join(arg, e.Name())
			if convert.Supported(p) {
				paths = append(paths, p)
			}
		}
	}
	return paths, nil
}

func printSummary(res *importer.BatchResult) {
	for _, m := range res.Months {
		fmt.Printf("%s: %d added, %d updated, %d rows -> %s\n",
			m.Month, m.Inserted, m.Updated, m.Rows, m.WorkbookPath)
		for _, d := range m.Documents {
			fmt.Printf("  %-8s %s  %s  %s  $%s\n", d.Outcome, filepath.Base(d.Path), d.DueDate, d.PatientName, d.TotalCost)
		}
		if m.StatementPath != "" {
			fmt.Printf("  statement: %s\n", m.StatementPath)
		}
		if m.StatementError != "" {
			fmt.Printf("  statement failed: %s\n", m.StatementError)
		}
	}
	if len(res.Exceptions) > 0 {
		fmt.Printf("%d document(s) need review:\n", len(res.Exceptions))
		for _, e := range res.Exceptions {
			fmt.Printf("  [%s] %s: %s\n", e.Stage, e.Name, e.Message)
		}
	}
}
