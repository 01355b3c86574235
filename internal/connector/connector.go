// Package connector assembles and runs the inventory service: the AWS
// gateway, the HTTP API, and the optional scheduler and event publisher.
package connector

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/saylee206/AWS-API/internal/awsx"
	"github.com/saylee206/AWS-API/internal/config"
	"github.com/saylee206/AWS-API/internal/events"
	"github.com/saylee206/AWS-API/internal/export"
	"github.com/saylee206/AWS-API/internal/inventory"
	"github.com/saylee206/AWS-API/internal/scheduler"
	"github.com/saylee206/AWS-API/internal/server"
)

const shutdownTimeout = 10 * time.Second

// Connector owns every long-lived component.
type Connector struct {
	cfg       *config.Config
	logger    *zap.Logger
	service   *inventory.Service
	server    *server.Server
	scheduler *scheduler.Scheduler
	publisher *events.Publisher
	version   string
}

// New loads configuration and builds all components. Nothing starts
// running until Run.
func New(configPath string, version string) (*Connector, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	logger.Info("Starting AWS inventory connector",
		zap.String("version", version),
		zap.String("listen_addr", cfg.ListenAddr))

	gateway, err := awsx.New(context.Background(), cfg.AWS.Region, logger)
	if err != nil {
		return nil, fmt.Errorf("creating AWS clients: %w", err)
	}

	specs, err := inventory.LoadSpecs(cfg.SpecsFile)
	if err != nil {
		return nil, fmt.Errorf("loading instance specs: %w", err)
	}

	writer, err := export.NewWriter(&cfg.Exports, logger)
	if err != nil {
		return nil, fmt.Errorf("creating export writer: %w", err)
	}

	prober := inventory.NewProber(gateway, inventory.PollPolicy{
		SettleDelay:  cfg.Probe.SettleDelay,
		PollInterval: cfg.Probe.PollInterval,
		MaxPolls:     cfg.Probe.MaxPolls,
	}, logger)

	service := inventory.NewService(gateway, prober, specs, writer, logger)

	c := &Connector{
		cfg:     cfg,
		logger:  logger,
		service: service,
		version: version,
	}

	if cfg.Events.Enabled {
		logger.Info("Connecting event publisher...")
		publisher, err := events.NewPublisher(&cfg.Events, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting event publisher: %w", err)
		}
		service.SetNotifier(publisher)
		c.publisher = publisher
	}

	if cfg.Schedule.Enabled {
		sched, err := scheduler.New(&cfg.Schedule, service, logger)
		if err != nil {
			return nil, fmt.Errorf("creating scheduler: %w", err)
		}
		c.scheduler = sched
	}

	c.server = server.New(cfg, service, writer, writer.Directory(), logger)

	return c, nil
}

// Run starts the HTTP server and the scheduler, then blocks until a
// shutdown signal arrives or the listener fails.
func (c *Connector) Run() error {
	if c.scheduler != nil {
		c.scheduler.Start()
	}
	serverErr := c.server.Start()

	c.logger.Info("Connector running", zap.String("version", c.version))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		c.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverErr:
		c.logger.Error("HTTP server failed", zap.Error(err))
		c.Shutdown()
		return err
	}

	return c.Shutdown()
}

// Export runs a single export of the given kind. Used by the CLI for
// one-shot exports without starting the server.
func (c *Connector) Export(ctx context.Context, kind string) (any, error) {
	switch kind {
	case "hardware":
		return c.service.ExportHardware(ctx)
	case "software":
		return c.service.ExportSoftware(ctx)
	case "all":
		return c.service.ExportAll(ctx)
	default:
		return nil, fmt.Errorf("unknown export kind %q (must be hardware, software, or all)", kind)
	}
}

// Shutdown stops every component, draining in-flight work where the
// component supports it. Safe to call when Run was never started.
func (c *Connector) Shutdown() error {
	c.logger.Info("Shutting down connector")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := c.server.Shutdown(ctx); err != nil {
		c.logger.Error("Error shutting down HTTP server", zap.Error(err))
	}

	if c.scheduler != nil {
		if err := c.scheduler.Shutdown(); err != nil {
			c.logger.Error("Error shutting down scheduler", zap.Error(err))
		}
	}

	if c.publisher != nil {
		if err := c.publisher.Drain(); err != nil {
			c.logger.Error("Error draining event publisher", zap.Error(err))
		}
	}

	c.logger.Info("Connector shutdown complete")
	c.logger.Sync()
	return nil
}

// initLogger creates the logger with rotation on the file sink and a
// console sink for interactive use.
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
	fileWriter := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB, // megabytes
		MaxBackups: cfg.MaxBackups,
		MaxAge:     28, // days
		Compress:   true,
	}

	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	core := zapcore.NewTee(
		zapcore.NewCore(fileEncoder, zapcore.AddSync(fileWriter), level),
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), level),
	)

	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
