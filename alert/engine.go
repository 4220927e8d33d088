// Package alert resolves the route subscriptions affected by a policy
// change and dispatches email notifications, keeping the per-source
// email failure accounting.
package alert

import (
	"context"
	"fmt"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/policywatch/policywatch/sdk"
	metrics "github.com/policywatch/policywatch/sdk/helper/metrics"
	"github.com/policywatch/policywatch/store"
)

// Engine fans a change out to its matching subscribers.
type Engine struct {
	log    hclog.Logger
	store  store.Store
	sender EmailSender

	diffTruncate int
}

// EngineConfig holds the values required to build an Engine.
type EngineConfig struct {
	Logger hclog.Logger
	Store  store.Store
	Sender EmailSender

	// DiffTruncate bounds the diff excerpt in alert bodies; zero means
	// DefaultDiffTruncate.
	DiffTruncate int
}

// NewEngine creates a new alert engine.
func NewEngine(cfg EngineConfig) *Engine {
	truncate := cfg.DiffTruncate
	if truncate == 0 {
		truncate = DefaultDiffTruncate
	}
	return &Engine{
		log:          cfg.Logger.Named("alert_engine"),
		store:        cfg.Store,
		sender:       cfg.Sender,
		diffTruncate: truncate,
	}
}

// Dispatch notifies every active subscription matching the source of
// the change. Sends are sequential so the failure accounting on the
// source stays well defined. The change's alert_sent_at is stamped iff
// at least one send succeeded; a fully failed batch advances the
// source's consecutive_email_failures counter instead.
func (e *Engine) Dispatch(ctx context.Context, source *sdk.Source, change *sdk.PolicyChange) (*sdk.AlertResult, error) {
	log := e.log.With("source_id", source.ID, "change_id", change.ID)

	subs, err := e.store.ActiveSubscriptionsForSource(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("resolving subscriptions: %w", err)
	}

	result := &sdk.AlertResult{RoutesNotified: len(subs)}
	if len(subs) == 0 {
		log.Debug("no matching subscriptions for change")
		return result, nil
	}

	subject, body, err := renderEmail(source, change, e.diffTruncate)
	if err != nil {
		return nil, err
	}

	var lastSendError string
	for _, sub := range subs {
		sr := e.sender.Send(ctx, sub.Email, subject, body)
		if sr.Success {
			result.EmailsSent++
			metrics.IncrCounter([]string{"alert", "email", "sent"}, 1)
			continue
		}

		result.EmailsFailed++
		metrics.IncrCounter([]string{"alert", "email", "failed"}, 1)
		lastSendError = sr.Error
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", sub.Email, sr.Error))
		log.Warn("alert email failed", "to", sub.Email, "error", sr.Error)
	}

	if err := e.account(ctx, source, change, result, lastSendError); err != nil {
		return result, err
	}

	log.Info("alert dispatch complete", "routes", result.RoutesNotified,
		"sent", result.EmailsSent, "failed", result.EmailsFailed)
	return result, nil
}

// account applies the email failure accounting rules after a batch.
func (e *Engine) account(ctx context.Context, source *sdk.Source, change *sdk.PolicyChange, result *sdk.AlertResult, lastSendError string) error {
	now := time.Now().UTC()

	if result.EmailsSent >= 1 {
		if err := e.store.MarkAlertSent(ctx, change.ID, now); err != nil {
			return fmt.Errorf("marking alert sent: %w", err)
		}

		reset := 0
		clear := ""
		if err := e.store.UpdateSource(ctx, source.ID, store.SourceUpdate{
			ConsecutiveEmailFailures: &reset,
			LastEmailError:           &clear,
		}); err != nil {
			return fmt.Errorf("resetting email failure counter: %w", err)
		}
		return nil
	}

	failures := source.ConsecutiveEmailFailures + 1
	errMsg := fmt.Sprintf("email_error: %s", lastSendError)
	if err := e.store.UpdateSource(ctx, source.ID, store.SourceUpdate{
		ConsecutiveEmailFailures: &failures,
		LastEmailError:           &errMsg,
	}); err != nil {
		return fmt.Errorf("recording email failure: %w", err)
	}
	return nil
}
