package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/whearn17/FTP-Smasher/internal/config"
	"github.com/whearn17/FTP-Smasher/internal/database"
	"github.com/whearn17/FTP-Smasher/internal/hostlist"
	"github.com/whearn17/FTP-Smasher/internal/logging"
	"github.com/whearn17/FTP-Smasher/internal/scanner"
	"github.com/whearn17/FTP-Smasher/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	inputFlag := flag.String("input", "", "file with newline-delimited hosts to scan")
	configFlag := flag.String("config", "", "path to config file")
	flag.Parse()

	configPath := *configFlag
	if configPath == "" {
		configPath = os.Getenv("FTPSMASHER_CONFIG")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *inputFlag != "" {
		cfg.Scan.InputFile = *inputFlag
	}
	if cfg.Scan.InputFile == "" {
		return fmt.Errorf("no input file specified (use -input or scan.input_file)")
	}

	// Read the host list before touching anything else; a missing input
	// file aborts the run before any worker is spawned.
	hosts, err := hostlist.Read(cfg.Scan.InputFile)
	if err != nil {
		return err
	}

	logManager, logger := logging.NewManager(logging.Config{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		FilePath: cfg.Logging.FilePath,
	})
	defer logManager.Close() //nolint:errcheck
	slog.SetDefault(logger)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database ready", slog.String("path", cfg.Database.Path))

	st := store.New(db)
	sc := scanner.New(st, logger, scanner.Options{
		Workers:           cfg.Scan.Workers,
		SessionsPerWorker: cfg.Scan.SessionsPerWorker,
		ConnectTimeout:    time.Duration(cfg.Scan.ConnectTimeoutSeconds) * time.Second,
		MaxDepth:          cfg.Scan.MaxDepth,
	})

	ctx := context.Background()
	result := sc.Run(ctx, hosts)

	fmt.Printf("Found %d/%d servers with anonymous access\n", len(result.Found), result.Scanned)
	for _, host := range result.Found {
		fmt.Println(host)
	}

	summary, err := st.Summary(ctx)
	if err != nil {
		logger.Error("reading summary statistics", "error", err)
		return nil
	}
	fmt.Printf("Totals: %d servers (%d successful), %d directories, %d files, %d bytes\n",
		summary.TotalServers, summary.SuccessfulServers,
		summary.TotalDirectories, summary.TotalFiles, summary.TotalSize)

	return nil
}
