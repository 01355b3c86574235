// Package scheduler runs periodic unattended exports.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/saylee206/AWS-API/internal/config"
	"github.com/saylee206/AWS-API/internal/inventory"
)

// Exporter runs the bulk export kinds on demand.
type Exporter interface {
	ExportHardware(ctx context.Context) (*inventory.HardwareExport, error)
	ExportSoftware(ctx context.Context) (*inventory.SoftwareExport, error)
	ExportAll(ctx context.Context) (*inventory.CombinedExport, error)
}

// Scheduler triggers the configured export kind on a fixed interval.
// A run that fails logs the error and waits for the next tick.
type Scheduler struct {
	cfg      *config.ScheduleConfig
	exporter Exporter
	sched    gocron.Scheduler
	logger   *zap.Logger
}

// New registers the export job without starting it.
func New(cfg *config.ScheduleConfig, exporter Exporter, logger *zap.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}

	s := &Scheduler{
		cfg:      cfg,
		exporter: exporter,
		sched:    sched,
		logger:   logger,
	}

	// A bulk export can outlast the interval on large fleets. Singleton
	// mode skips the tick instead of stacking concurrent runs.
	_, err = sched.NewJob(
		gocron.DurationJob(cfg.Interval),
		gocron.NewTask(s.run),
		gocron.WithName("inventory-export"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("registering export job: %w", err)
	}

	return s, nil
}

// Start begins the interval timer. The first run fires one interval
// from now.
func (s *Scheduler) Start() {
	s.logger.Info("Starting export scheduler",
		zap.String("kind", s.cfg.Kind),
		zap.Duration("interval", s.cfg.Interval))
	s.sched.Start()
}

// Shutdown stops the timer and waits for a running job to finish.
func (s *Scheduler) Shutdown() error {
	s.logger.Info("Stopping export scheduler")
	return s.sched.Shutdown()
}

func (s *Scheduler) run() {
	start := time.Now()
	records, err := s.export(context.Background())
	if err != nil {
		s.logger.Error("Scheduled export failed",
			zap.String("kind", s.cfg.Kind),
			zap.Error(err))
		return
	}

	s.logger.Info("Scheduled export completed",
		zap.String("kind", s.cfg.Kind),
		zap.Int("records", records),
		zap.Duration("duration", time.Since(start)))
}

// export dispatches on the configured kind and reports how many rows
// the run produced.
func (s *Scheduler) export(ctx context.Context) (int, error) {
	switch s.cfg.Kind {
	case "hardware":
		result, err := s.exporter.ExportHardware(ctx)
		if err != nil {
			return 0, err
		}
		return result.Records, nil
	case "software":
		result, err := s.exporter.ExportSoftware(ctx)
		if err != nil {
			return 0, err
		}
		return result.Records, nil
	case "all":
		result, err := s.exporter.ExportAll(ctx)
		if err != nil {
			return 0, err
		}
		return result.HardwareRecords + result.SoftwareRecords, nil
	default:
		return 0, fmt.Errorf("unknown export kind %q", s.cfg.Kind)
	}
}
