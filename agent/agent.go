// Package agent wires the policywatch components together and runs the
// periodic check cycles until told to stop.
package agent

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"

	"github.com/policywatch/policywatch/agent/config"
	"github.com/policywatch/policywatch/alert"
	"github.com/policywatch/policywatch/fetch"
	"github.com/policywatch/policywatch/fetcher"
	"github.com/policywatch/policywatch/scheduler"
	"github.com/policywatch/policywatch/sdk"
	"github.com/policywatch/policywatch/store"
)

type Agent struct {
	logger      hclog.Logger
	config      *config.Agent
	configPaths []string

	store     store.Store
	inMemSink *metrics.InmemSink

	// runnerLock guards the components rebuilt on SIGHUP reload.
	runnerLock sync.RWMutex
	registry   *fetcher.Registry
	alerts     *alert.Engine
	runner     *scheduler.Runner

	// statusLock guards lastResults, the per-cadence outcome of the most
	// recent check cycle served by the status endpoint.
	statusLock  sync.RWMutex
	lastResults map[sdk.CheckFrequency]*sdk.JobResult
}

func NewAgent(c *config.Agent, configPaths []string, logger hclog.Logger) *Agent {
	return &Agent{
		logger:      logger,
		config:      c,
		configPaths: configPaths,
		lastResults: make(map[sdk.CheckFrequency]*sdk.JobResult),
	}
}

// Setup initializes the telemetry sinks, the storage backend and the
// fetch, alert and scheduler components without starting any cadence
// tickers.
func (a *Agent) Setup(ctx context.Context) error {

	// Setup the telemetry sinks.
	inMem, err := a.setupTelemetry(a.config.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %v", err)
	}
	a.inMemSink = inMem

	// Setup the storage backend.
	if err := a.setupStore(ctx); err != nil {
		return fmt.Errorf("failed to setup store: %v", err)
	}

	// Build the fetch, alert and scheduler components.
	if err := a.setupComponents(); err != nil {
		return fmt.Errorf("failed to setup components: %v", err)
	}
	return nil
}

func (a *Agent) Run(ctx context.Context) error {

	// Create context to handle propagation to downstream routines.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.Setup(ctx); err != nil {
		return err
	}

	// Launch the cadence tickers.
	go a.runScheduler(ctx)

	// Wait for our exit.
	a.handleSignals(ctx)
	return nil
}

// RunOnce executes a single check cycle for the passed cadence and
// returns its outcome. Setup must have been called.
func (a *Agent) RunOnce(ctx context.Context, cadence sdk.CheckFrequency) (*sdk.JobResult, error) {
	a.runnerLock.RLock()
	runner := a.runner
	a.runnerLock.RUnlock()

	result, err := runner.Run(ctx, cadence)
	if err != nil {
		return nil, err
	}

	a.statusLock.Lock()
	a.lastResults[cadence] = result
	a.statusLock.Unlock()
	return result, nil
}

// setupStore selects the storage backend. A configured Postgres DSN
// wins; otherwise state lives in memory and is lost on restart.
func (a *Agent) setupStore(ctx context.Context) error {
	if a.config.Postgres != nil && a.config.Postgres.DSN != "" {
		pg, err := store.NewPostgresStore(a.logger, a.config.Postgres.DSN)
		if err != nil {
			return err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		a.store = pg
		return nil
	}

	a.logger.Warn("no postgres DSN configured, using in-memory store")
	a.store = store.NewMemoryStore()
	return nil
}

// setupComponents builds the fetch client, handler registry, alert
// engine and scheduler runner from the current configuration. It is
// called at startup and again on reload.
func (a *Agent) setupComponents() error {
	client := fetch.NewClient(fetch.ClientConfig{
		Logger:           a.logger,
		Timeout:          a.config.Fetch.Timeout,
		MaxAttempts:      a.config.Fetch.MaxRetries,
		RetryBase:        a.config.Fetch.RetryBase,
		UserAgent:        a.config.Fetch.UserAgent,
		RateLimitPerHost: a.config.Fetch.RateLimitPerHost,
		DisableRobots:    a.config.Fetch.DisableRobots,
	})

	registry := fetcher.NewRegistry(a.logger)
	if err := fetcher.RegisterBuiltins(a.logger, registry, client); err != nil {
		return fmt.Errorf("failed to register fetch handlers: %v", err)
	}

	alerts := alert.NewEngine(alert.EngineConfig{
		Logger:       a.logger,
		Store:        a.store,
		Sender:       a.setupSender(),
		DiffTruncate: a.config.Alert.DiffTruncate,
	})

	runner := scheduler.NewRunner(scheduler.RunnerConfig{
		Logger:         a.logger,
		Store:          a.store,
		Registry:       registry,
		Alerts:         alerts,
		Workers:        a.config.Scheduler.Workers,
		SourceDeadline: a.config.Scheduler.SourceDeadline,
	})

	a.runnerLock.Lock()
	a.registry = registry
	a.alerts = alerts
	a.runner = runner
	a.runnerLock.Unlock()

	return nil
}

// setupSender returns the email delivery implementation selected by the
// alert provider configuration.
func (a *Agent) setupSender() alert.EmailSender {
	return &alert.LogSender{
		Log:  a.logger.Named("email"),
		From: a.config.Alert.FromAddress,
	}
}

// runScheduler drives the cadence tickers. Each cadence runs once at
// startup so a fresh agent observes every source without waiting a full
// interval.
func (a *Agent) runScheduler(ctx context.Context) {
	daily := time.NewTicker(a.config.Scheduler.DailyInterval)
	defer daily.Stop()
	weekly := time.NewTicker(a.config.Scheduler.WeeklyInterval)
	defer weekly.Stop()

	a.runCycle(ctx, sdk.CheckFrequencyDaily)
	a.runCycle(ctx, sdk.CheckFrequencyWeekly)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("context closed, shutting down scheduler")
			return
		case <-daily.C:
			a.runCycle(ctx, sdk.CheckFrequencyDaily)
		case <-weekly.C:
			a.runCycle(ctx, sdk.CheckFrequencyWeekly)
		}
	}
}

func (a *Agent) runCycle(ctx context.Context, cadence sdk.CheckFrequency) {
	if _, err := a.RunOnce(ctx, cadence); err != nil {
		a.logger.Error("check cycle failed", "cadence", cadence, "error", err)
	}
}

// reload triggers the reload of sub-routines based on the operator
// sending a SIGHUP signal to the agent, or a reload API request.
func (a *Agent) reload() {
	a.logger.Info("reloading agent configuration")

	// Reload config files from disk. Exit on error so operators can
	// detect and correct configuration early.
	newCfg, err := config.LoadPaths(a.configPaths)
	if err != nil {
		a.logger.Error("failed to reload agent configuration", "error", err)
		os.Exit(1)
	}

	a.config = newCfg

	// The store is deliberately kept; fetch, alert and scheduler are
	// rebuilt from the new configuration.
	if err := a.setupComponents(); err != nil {
		a.logger.Error("failed to rebuild components", "error", err)
		os.Exit(1)
	}
}

// handleSignals blocks until the agent receives an exit signal or its
// context closes.
func (a *Agent) handleSignals(ctx context.Context) {

	signalCh := make(chan os.Signal, 3)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	// Wait to receive a signal. This blocks until we are notified.
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("context closed, shutting down agent")
			return
		case sig := <-signalCh:
			a.logger.Info("caught signal", "signal", sig.String())

			// Check the signal we received. If it was a SIGHUP perform
			// the reload tasks and then continue to wait for another
			// signal. Everything else means exit.
			switch sig {
			case syscall.SIGHUP:
				a.reload()
			default:
				return
			}
		}
	}
}
