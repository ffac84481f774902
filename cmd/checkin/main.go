package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/checkin/internal/repository"
	"github.com/noah-isme/checkin/internal/service"
	"github.com/noah-isme/checkin/pkg/config"
	"github.com/noah-isme/checkin/pkg/logger"
	"github.com/noah-isme/checkin/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.NewCLI(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	cli, err := newCommandLine(context.Background(), cfg, logr, os.Stdout)
	if err != nil {
		logr.Fatal("data directory unavailable", zap.String("dir", cfg.Data.Dir), zap.Error(err))
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "error: %s\n", err)
		}
		logr.Sync() //nolint:errcheck
		os.Exit(1)
	}
}

// newCommandLine wires storage and services for one invocation. An unreadable
// document is only a warning: read commands see an empty log and mutations
// re-read the document and fail until it is fixed.
func newCommandLine(ctx context.Context, cfg *config.Config, logr *zap.Logger, out io.Writer) (*commandLine, error) {
	store, err := storage.NewLocalStorage(cfg.Data.Dir)
	if err != nil {
		return nil, err
	}
	repo := repository.NewAttendanceRepository(store, cfg.Data.File, nil)
	attendance := service.NewAttendanceService(repo, validator.New())
	if _, err := attendance.Load(ctx); err != nil {
		logr.Warn("attendance document not loaded", zap.String("path", cfg.Data.Path()), zap.Error(err))
	}

	exports := service.NewExportService(attendance, store, nil, service.ExportConfig{
		ReportName: service.ReportNameFor(repo.Filename()),
	}, logr, nil, nil)
	return &commandLine{
		attendance: attendance,
		exports:    exports,
		prefixSkip: cfg.Roster.PrefixSkip,
		dataDir:    cfg.Data.Dir,
		out:        out,
		logger:     logr,
		now:        time.Now,
	}, nil
}
