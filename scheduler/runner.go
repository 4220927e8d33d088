// Package scheduler drives the periodic check cycles: it selects the
// sources due for a cadence, runs the fetch-extract-diff pipeline over
// a bounded worker pool and hands detected changes to the alert engine.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/policywatch/policywatch/alert"
	"github.com/policywatch/policywatch/fetcher"
	"github.com/policywatch/policywatch/normalize"
	"github.com/policywatch/policywatch/sdk"
	metrics "github.com/policywatch/policywatch/sdk/helper/metrics"
	"github.com/policywatch/policywatch/store"
)

const (
	// DefaultWorkers bounds the number of sources checked concurrently.
	DefaultWorkers = 8

	// DefaultSourceDeadline caps the wall time spent on a single source,
	// fetch retries included.
	DefaultSourceDeadline = 120 * time.Second
)

// Runner executes check cycles.
type Runner struct {
	log      hclog.Logger
	store    store.Store
	registry *fetcher.Registry
	alerts   *alert.Engine

	workers        int
	sourceDeadline time.Duration
}

// RunnerConfig holds the values required to build a Runner.
type RunnerConfig struct {
	Logger   hclog.Logger
	Store    store.Store
	Registry *fetcher.Registry
	Alerts   *alert.Engine

	// Workers is the worker pool size; zero means DefaultWorkers.
	Workers int

	// SourceDeadline is the per-source processing deadline; zero means
	// DefaultSourceDeadline.
	SourceDeadline time.Duration
}

// NewRunner creates a new check cycle runner.
func NewRunner(cfg RunnerConfig) *Runner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	deadline := cfg.SourceDeadline
	if deadline <= 0 {
		deadline = DefaultSourceDeadline
	}
	return &Runner{
		log:            cfg.Logger.Named("scheduler"),
		store:          cfg.Store,
		registry:       cfg.Registry,
		alerts:         cfg.Alerts,
		workers:        workers,
		sourceDeadline: deadline,
	}
}

// RunDaily checks every active daily source.
func (r *Runner) RunDaily(ctx context.Context) (*sdk.JobResult, error) {
	return r.run(ctx, sdk.CheckFrequencyDaily)
}

// RunWeekly checks every active weekly source.
func (r *Runner) RunWeekly(ctx context.Context) (*sdk.JobResult, error) {
	return r.run(ctx, sdk.CheckFrequencyWeekly)
}

// Run checks every active source of the passed cadence.
func (r *Runner) Run(ctx context.Context, cadence sdk.CheckFrequency) (*sdk.JobResult, error) {
	return r.run(ctx, cadence)
}

func (r *Runner) run(ctx context.Context, cadence sdk.CheckFrequency) (*sdk.JobResult, error) {
	defer metrics.MeasureSince([]string{"scheduler", "cycle", string(cadence)}, time.Now())

	log := r.log.With("cadence", cadence)

	sources, err := r.store.ActiveSourcesByFrequency(ctx, cadence)
	if err != nil {
		return nil, fmt.Errorf("selecting sources: %w", err)
	}

	result := &sdk.JobResult{
		Cadence:   cadence,
		StartedAt: time.Now().UTC(),
	}
	log.Info("starting check cycle", "sources", len(sources), "workers", r.workers)

	var (
		wg         sync.WaitGroup
		resultLock sync.Mutex
		sem        = make(chan struct{}, r.workers)
	)

	for _, src := range sources {
		// A cancelled run deadline stops admitting new sources; workers
		// already running finish their source.
		if ctx.Err() != nil {
			log.Warn("run deadline reached, stopping admission",
				"remaining", len(sources)-result.SourcesProcessed)
			break
		}

		sem <- struct{}{}
		wg.Add(1)

		go func(src *sdk.Source) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if p := recover(); p != nil {
					r.log.Error("worker panic", "source_id", src.ID, "panic", p)
					resultLock.Lock()
					// The panicking source never reached the accounting
					// block below; it still counts as processed so the
					// totals add up.
					result.SourcesProcessed++
					result.SourcesFailed++
					result.Errors = append(result.Errors, fmt.Sprintf("%s: panic: %v", src.Name, p))
					resultLock.Unlock()
				}
			}()

			srcCtx, cancel := context.WithTimeout(ctx, r.sourceDeadline)
			defer cancel()

			out := r.processSource(srcCtx, src)

			resultLock.Lock()
			defer resultLock.Unlock()
			result.SourcesProcessed++
			if out.err != "" {
				result.SourcesFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", src.Name, out.err))
			} else {
				result.SourcesSucceeded++
			}
			if out.changed {
				result.ChangesDetected++
			}
			result.AlertsSent += out.alertsSent
		}(src)
	}

	wg.Wait()
	result.CompletedAt = time.Now().UTC()

	// Sources never admitted still count as processed failures so the
	// totals add up.
	skipped := len(sources) - result.SourcesProcessed
	if skipped > 0 {
		result.SourcesProcessed += skipped
		result.SourcesFailed += skipped
		result.Errors = append(result.Errors, fmt.Sprintf("%d sources skipped: run deadline exceeded", skipped))
	}

	metrics.IncrCounterWithLabels([]string{"scheduler", "sources", "succeeded"},
		float32(result.SourcesSucceeded), []metrics.Label{{Name: "cadence", Value: string(cadence)}})
	metrics.IncrCounterWithLabels([]string{"scheduler", "sources", "failed"},
		float32(result.SourcesFailed), []metrics.Label{{Name: "cadence", Value: string(cadence)}})
	metrics.IncrCounterWithLabels([]string{"scheduler", "changes", "detected"},
		float32(result.ChangesDetected), []metrics.Label{{Name: "cadence", Value: string(cadence)}})

	log.Info("check cycle complete",
		"processed", result.SourcesProcessed,
		"succeeded", result.SourcesSucceeded,
		"failed", result.SourcesFailed,
		"changes", result.ChangesDetected,
		"alerts", result.AlertsSent,
		"duration", result.Duration())
	return result, nil
}

// sourceOutcome is the per-source summary folded into the JobResult.
type sourceOutcome struct {
	changed    bool
	alertsSent int

	// err is empty on success and carries the cause otherwise.
	err string
}

// processSource runs the full pipeline for one source: fetch, extract,
// normalize, hash, compare against the latest stored version, persist
// and alert.
func (r *Runner) processSource(ctx context.Context, src *sdk.Source) sourceOutcome {
	log := r.log.With("source_id", src.ID, "source", src.Name)
	now := time.Now().UTC()

	f := r.registry.ForSource(src)
	if f == nil {
		log.Warn("no fetch handler matches source",
			"country", src.Country, "visa_type", src.VisaType, "fetch_type", src.FetchType)
		return sourceOutcome{err: "no fetch handler registered"}
	}

	fetchStart := time.Now()
	fr := f.Run(ctx, src.URL, src.Config)
	fetchDuration := time.Since(fetchStart)

	if !fr.Success {
		return r.recordFetchFailure(ctx, src, fr, now)
	}

	normalized := normalize.Text(fr.RawText)
	hash := normalize.Hash(normalized)
	normalizedAt := time.Now().UTC()

	latest, err := r.store.LatestVersion(ctx, src.ID)
	if err != nil {
		return sourceOutcome{err: fmt.Sprintf("loading latest version: %v", err)}
	}

	if latest != nil && latest.ContentHash == hash {
		log.Debug("content unchanged", "hash", hash)
		if err := r.recordFetchSuccess(ctx, src, now, false); err != nil {
			return sourceOutcome{err: err.Error()}
		}
		return sourceOutcome{}
	}

	var change *sdk.PolicyChange
	err = r.store.InTx(ctx, func(tx store.Store) error {
		version, err := tx.AppendVersion(ctx, &sdk.PolicyVersion{
			SourceID:      src.ID,
			ContentHash:   hash,
			RawText:       normalized,
			FetchedAt:     fr.FetchedAt,
			NormalizedAt:  normalizedAt,
			ContentLength: len(normalized),
			FetchDuration: fetchDuration.Milliseconds(),
		})
		if err != nil {
			return fmt.Errorf("appending version: %w", err)
		}

		// First observation records the baseline version only.
		if latest == nil {
			log.Info("first observation recorded", "version_id", version.ID)
			return r.updateAfterSuccess(ctx, tx, src, now, false)
		}

		diff, err := store.UnifiedDiff(latest.RawText, normalized)
		if err != nil {
			return fmt.Errorf("computing diff: %w", err)
		}

		change, err = tx.AppendChange(ctx, &sdk.PolicyChange{
			SourceID:     src.ID,
			OldVersionID: &latest.ID,
			NewVersionID: version.ID,
			OldHash:      latest.ContentHash,
			NewHash:      hash,
			Diff:         diff,
			DiffLength:   len(diff),
			DetectedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("appending change: %w", err)
		}

		log.Info("policy change detected", "change_id", change.ID,
			"old_hash", latest.ContentHash, "new_hash", hash, "diff_length", len(diff))
		return r.updateAfterSuccess(ctx, tx, src, now, true)
	})
	if err != nil {
		return sourceOutcome{err: err.Error()}
	}

	out := sourceOutcome{changed: change != nil}
	if change != nil {
		// Alert dispatch runs outside the transaction: a failed send must
		// not roll back the recorded change.
		ar, err := r.alerts.Dispatch(ctx, src, change)
		if err != nil {
			log.Error("alert dispatch failed", "change_id", change.ID, "error", err)
		} else {
			out.alertsSent = ar.EmailsSent
		}
	}
	return out
}

// recordFetchFailure advances the consecutive fetch failure counter and
// stores the tagged error message.
func (r *Runner) recordFetchFailure(ctx context.Context, src *sdk.Source, fr *sdk.FetchResult, now time.Time) sourceOutcome {
	r.log.Warn("fetch failed", "source_id", src.ID, "kind", fr.ErrorKind(), "error", fr.ErrorMessage)
	metrics.IncrCounterWithLabels([]string{"scheduler", "fetch", "failure"}, 1,
		[]metrics.Label{{Name: "kind", Value: string(fr.ErrorKind())}})

	failures := src.ConsecutiveFetchFailures + 1
	errMsg := fr.ErrorMessage

	// The source context may already be past its deadline when the
	// failure was a timeout; the bookkeeping write must still land.
	ctx = context.WithoutCancel(ctx)
	if err := r.store.UpdateSource(ctx, src.ID, store.SourceUpdate{
		LastCheckedAt:            &now,
		ConsecutiveFetchFailures: &failures,
		LastFetchError:           &errMsg,
	}); err != nil {
		return sourceOutcome{err: fmt.Sprintf("%s (recording failure: %v)", fr.ErrorMessage, err)}
	}
	return sourceOutcome{err: fr.ErrorMessage}
}

// recordFetchSuccess stamps last_checked_at and resets the fetch
// failure state outside a transaction, for the unchanged path.
func (r *Runner) recordFetchSuccess(ctx context.Context, src *sdk.Source, now time.Time, changed bool) error {
	if err := r.updateAfterSuccess(ctx, r.store, src, now, changed); err != nil {
		return fmt.Errorf("recording successful check: %w", err)
	}
	return nil
}

func (r *Runner) updateAfterSuccess(ctx context.Context, s store.Store, src *sdk.Source, now time.Time, changed bool) error {
	reset := 0
	clear := ""
	update := store.SourceUpdate{
		LastCheckedAt:            &now,
		ConsecutiveFetchFailures: &reset,
		LastFetchError:           &clear,
	}
	if changed {
		update.LastChangeDetectedAt = &now
	}
	return s.UpdateSource(ctx, src.ID, update)
}
