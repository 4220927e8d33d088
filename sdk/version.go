package sdk

import (
	"fmt"
	"regexp"
	"time"

	multierror "github.com/hashicorp/go-multierror"
)

// ContentHashLength is the expected length of a lowercase hex SHA-256
// content hash.
const ContentHashLength = 64

var contentHashRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ValidContentHash reports whether h is a 64 character lowercase hex
// string.
func ValidContentHash(h string) bool {
	return contentHashRe.MatchString(h)
}

// PolicyVersion is one observed snapshot of a source. Versions are
// append-only and never mutated after creation.
type PolicyVersion struct {
	ID       int64
	SourceID int64

	// ContentHash is the lowercase hex SHA-256 of RawText.
	ContentHash string

	// RawText is the normalized page text the hash was computed over.
	RawText string

	FetchedAt    time.Time
	NormalizedAt time.Time

	// ContentLength is the length of RawText and must always agree with
	// it.
	ContentLength int

	// FetchDuration is the total wall time of the fetch, including
	// retries, in milliseconds.
	FetchDuration int64

	CreatedAt time.Time
}

// Validate checks the version invariants.
func (v *PolicyVersion) Validate() error {
	var mErr *multierror.Error

	if !ValidContentHash(v.ContentHash) {
		mErr = multierror.Append(mErr, fmt.Errorf("content_hash must be 64 lowercase hex characters, got %q", v.ContentHash))
	}
	if v.ContentLength != len(v.RawText) {
		mErr = multierror.Append(mErr, fmt.Errorf("content_length %d does not match raw_text length %d", v.ContentLength, len(v.RawText)))
	}
	if v.SourceID == 0 {
		mErr = multierror.Append(mErr, fmt.Errorf("source_id is required"))
	}

	return mErr.ErrorOrNil()
}

// PolicyChange records a detected transition between two consecutive
// versions of the same source. Changes are append-only.
type PolicyChange struct {
	ID       int64
	SourceID int64

	// OldVersionID is nil only in the legacy case where the first
	// observation was treated as a change; the scheduler never writes
	// such rows.
	OldVersionID *int64
	NewVersionID int64

	OldHash string
	NewHash string

	// Diff is a unified diff with 3 lines of context between the old and
	// new normalized text.
	Diff       string
	DiffLength int

	DetectedAt time.Time

	// AlertSentAt is nil until alert dispatch completes with at least
	// one successful send.
	AlertSentAt *time.Time

	CreatedAt time.Time
}

// Validate checks the change invariants.
func (c *PolicyChange) Validate() error {
	var mErr *multierror.Error

	if !ValidContentHash(c.OldHash) {
		mErr = multierror.Append(mErr, fmt.Errorf("old_hash must be 64 lowercase hex characters, got %q", c.OldHash))
	}
	if !ValidContentHash(c.NewHash) {
		mErr = multierror.Append(mErr, fmt.Errorf("new_hash must be 64 lowercase hex characters, got %q", c.NewHash))
	}
	if c.OldHash == c.NewHash {
		mErr = multierror.Append(mErr, fmt.Errorf("old_hash and new_hash must differ"))
	}
	if c.NewVersionID == 0 {
		mErr = multierror.Append(mErr, fmt.Errorf("new_version_id is required"))
	}
	if c.DiffLength != len(c.Diff) {
		mErr = multierror.Append(mErr, fmt.Errorf("diff_length %d does not match diff length %d", c.DiffLength, len(c.Diff)))
	}

	return mErr.ErrorOrNil()
}
