// Package store defines the persistence operations the fetch-and-diff
// engine needs and ships two implementations: a Postgres store used in
// production and an in-memory store used by tests and local runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/policywatch/policywatch/sdk"
)

// ErrDuplicateVersion is returned by AppendVersion when the new hash is
// identical to the latest stored version of the same source. Callers
// are expected to check the latest hash first; the store enforces it
// regardless so the append-only history never records a non-change.
var ErrDuplicateVersion = errors.New("content hash identical to latest version")

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// SourceUpdate carries the mutable source fields the engine maintains.
// Nil fields are left untouched; a non-nil empty error string clears
// the stored error.
type SourceUpdate struct {
	LastCheckedAt            *time.Time
	LastChangeDetectedAt     *time.Time
	ConsecutiveFetchFailures *int
	ConsecutiveEmailFailures *int
	LastFetchError           *string
	LastEmailError           *string
}

// Store is the persistence boundary of the engine.
type Store interface {

	// ActiveSourcesByFrequency returns the active sources due under the
	// passed cadence.
	ActiveSourcesByFrequency(ctx context.Context, freq sdk.CheckFrequency) ([]*sdk.Source, error)

	// LatestVersion returns the most recent version of the source, or
	// nil when the source has never been observed.
	LatestVersion(ctx context.Context, sourceID int64) (*sdk.PolicyVersion, error)

	// AppendVersion persists a new version and returns it with its
	// assigned ID. Appending a version whose hash equals the latest one
	// for the same source fails with ErrDuplicateVersion.
	AppendVersion(ctx context.Context, v *sdk.PolicyVersion) (*sdk.PolicyVersion, error)

	// AppendChange persists a new change row and returns it with its
	// assigned ID.
	AppendChange(ctx context.Context, c *sdk.PolicyChange) (*sdk.PolicyChange, error)

	// MarkAlertSent stamps alert_sent_at on the change.
	MarkAlertSent(ctx context.Context, changeID int64, ts time.Time) error

	// UpdateSource applies the non-nil fields of the update to the
	// source in a single statement.
	UpdateSource(ctx context.Context, sourceID int64, update SourceUpdate) error

	// ActiveSubscriptionsForSource returns the active subscriptions
	// whose destination country equals the source country and whose
	// visa type matches the source visa type, with the source label
	// "Both" matching every subscription.
	ActiveSubscriptionsForSource(ctx context.Context, source *sdk.Source) ([]*sdk.RouteSubscription, error)

	// InTx runs fn against a transactional view of the store so the
	// per-cycle writes of one source either all land or none do.
	InTx(ctx context.Context, fn func(Store) error) error
}

// UnifiedDiff renders a unified text diff with 3 lines of context
// between two versions of normalized source text.
func UnifiedDiff(oldText, newText string) (string, error) {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldText),
		B:        difflib.SplitLines(newText),
		FromFile: "previous",
		ToFile:   "current",
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("rendering diff: %w", err)
	}
	return diff, nil
}
