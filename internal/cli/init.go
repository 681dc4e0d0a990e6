// Package cli provides common CLI initialization utilities shared by
// cmd/invoicer and cmd/invoicer-worker.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"invoicer/internal/amqp"
	"invoicer/internal/backend"
	"invoicer/internal/config"
	"invoicer/internal/core"
	applog "invoicer/internal/log"
	"invoicer/internal/services"
	"invoicer/internal/storage"
)

// Collection IDs used by the memory backend when none are configured.
const (
	MemoryMasterID   = "master"
	MemoryEffortID   = "effort"
	MemoryContactsID = "contacts"
	MemoryProgramID  = "program"
)

// SetupLogger builds the process logger from cfg and installs it as the
// slog default, tagged with component.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	level, err := applog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	logger := applog.New(applog.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stderr,
	})
	slog.SetDefault(logger.Logger.With(applog.FieldComponent, component))
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProcessorConfig maps application config onto the processor's locations.
// The memory backend falls back to fixed collection IDs.
func ProcessorConfig(cfg *config.Config) services.ProcessorConfig {
	master, effort, contacts, program := cfg.MasterSheetID, cfg.EffortSheetID, cfg.SMESheetID, cfg.ProgramSheetID
	if cfg.DataBackend == string(backend.MemoryBackend) {
		master = orDefault(master, MemoryMasterID)
		effort = orDefault(effort, MemoryEffortID)
		contacts = orDefault(contacts, MemoryContactsID)
		program = orDefault(program, MemoryProgramID)
	}
	return services.ProcessorConfig{
		Ledger:             services.LedgerLocation{CollectionID: master, Table: cfg.MasterSheetName},
		ConfigTable:        cfg.ConfigSheetName,
		EffortCollection:   effort,
		ContactsCollection: contacts,
		Program:            services.ProgramLocation{CollectionID: program, Table: cfg.ProgramSheetName},
		Mode:               services.MatchMode(cfg.InvoiceMatchMode),
		ForceOverwrite:     cfg.InvoiceForceOverwrite,
		AllowReprocess:     cfg.AllowReprocess,
		ReadConcurrency:    cfg.ReadConcurrency,
	}
}

// LoadClassifier returns the rule table from CATEGORY_RULES_FILE, or the
// built-in table.
func LoadClassifier(cfg *config.Config) (*core.Classifier, error) {
	if cfg.CategoryRulesFile == "" {
		return core.DefaultClassifier(), nil
	}
	c, err := core.LoadClassifier(cfg.CategoryRulesFile)
	if err != nil {
		return nil, fmt.Errorf("load category rules: %w", err)
	}
	return c, nil
}

// App bundles the wired processor with the resources it holds.
type App struct {
	Processor  *services.Processor
	Classifier *core.Classifier
	History    *storage.SQLiteRepository
	Events     *amqp.Client
	cleanups   []func() error
}

// Close releases every resource opened by NewApp.
func (a *App) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		if err := a.cleanups[i](); err != nil {
			slog.Warn("Cleanup failed", "error", err)
		}
	}
}

// NewApp wires store, classifier, run history and event publishing into a
// Processor. Run history and events are optional; an unreachable broker is
// logged and skipped.
func NewApp(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*App, error) {
	app := &App{}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}
	if res.Cleanup != nil {
		app.cleanups = append(app.cleanups, res.Cleanup)
	}

	app.Classifier, err = LoadClassifier(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	var opts []services.Option
	if cfg.HistoryEnabled() {
		app.History, err = storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		app.cleanups = append(app.cleanups, app.History.Close)
		opts = append(opts, services.WithHistory(app.History))
	}

	if cfg.EventsEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.AMQPEventsKey)
		if err != nil {
			logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", applog.FieldError, err)
		} else {
			app.Events = client
			app.cleanups = append(app.cleanups, client.Close)
			opts = append(opts, services.WithEvents(client))
			logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				applog.FieldQueue, cfg.AMQPQueue)
		}
	}

	app.Processor = services.NewProcessor(res.Store, app.Classifier, ProcessorConfig(cfg), opts...)

	logger.InfoContext(ctx, "Application initialized",
		applog.FieldBackend, cfg.DataBackend,
		applog.FieldMatchMode, cfg.InvoiceMatchMode,
		"history_enabled", app.History != nil,
		"events_enabled", app.Events != nil)
	return app, nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
