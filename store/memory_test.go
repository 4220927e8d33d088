package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policywatch/policywatch/normalize"
	"github.com/policywatch/policywatch/sdk"
)

func testSource(t *testing.T, m *MemoryStore, freq sdk.CheckFrequency) *sdk.Source {
	t.Helper()
	s, err := m.AddSource(&sdk.Source{
		Country:        "UK",
		VisaType:       "Student",
		URL:            "https://www.gov.uk/student-visa",
		Name:           "UK Student Visa",
		FetchType:      sdk.FetchTypeHTML,
		CheckFrequency: freq,
		IsActive:       true,
	})
	require.NoError(t, err)
	return s
}

func testVersion(sourceID int64, text string) *sdk.PolicyVersion {
	now := time.Now().UTC()
	return &sdk.PolicyVersion{
		SourceID:      sourceID,
		ContentHash:   normalize.Hash(text),
		RawText:       text,
		FetchedAt:     now,
		NormalizedAt:  now,
		ContentLength: len(text),
	}
}

func TestMemoryStore_ActiveSourcesByFrequency(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	daily := testSource(t, m, sdk.CheckFrequencyDaily)
	testSource(t, m, sdk.CheckFrequencyWeekly)

	inactive := &sdk.Source{
		Country: "DE", VisaType: "Work", URL: "https://example.de/work",
		Name: "DE Work", FetchType: sdk.FetchTypeHTML,
		CheckFrequency: sdk.CheckFrequencyDaily, IsActive: false,
	}
	_, err := m.AddSource(inactive)
	require.NoError(t, err)

	due, err := m.ActiveSourcesByFrequency(ctx, sdk.CheckFrequencyDaily)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, daily.ID, due[0].ID)
}

func TestMemoryStore_AppendVersion(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	src := testSource(t, m, sdk.CheckFrequencyDaily)

	v1, err := m.AppendVersion(ctx, testVersion(src.ID, "Student visa requires X."))
	require.NoError(t, err)
	assert.NotZero(t, v1.ID)

	// Identical hash to the latest version is rejected.
	_, err = m.AppendVersion(ctx, testVersion(src.ID, "Student visa requires X."))
	assert.ErrorIs(t, err, ErrDuplicateVersion)

	// A different hash appends.
	v2, err := m.AppendVersion(ctx, testVersion(src.ID, "Student visa requires X and Y."))
	require.NoError(t, err)

	latest, err := m.LatestVersion(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, latest.ID)
	assert.Equal(t, 2, m.VersionCount(src.ID))

	// Reverting to an older hash is a change, not a duplicate.
	_, err = m.AppendVersion(ctx, testVersion(src.ID, "Student visa requires X."))
	assert.NoError(t, err)
}

func TestMemoryStore_LatestVersion_None(t *testing.T) {
	m := NewMemoryStore()
	src := testSource(t, m, sdk.CheckFrequencyDaily)

	latest, err := m.LatestVersion(context.Background(), src.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestMemoryStore_AppendChange(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	src := testSource(t, m, sdk.CheckFrequencyDaily)

	v1, err := m.AppendVersion(ctx, testVersion(src.ID, "old text"))
	require.NoError(t, err)
	v2, err := m.AppendVersion(ctx, testVersion(src.ID, "new text"))
	require.NoError(t, err)

	diff, err := UnifiedDiff(v1.RawText, v2.RawText)
	require.NoError(t, err)
	assert.Contains(t, diff, "-old text")
	assert.Contains(t, diff, "+new text")

	change := &sdk.PolicyChange{
		SourceID:     src.ID,
		OldVersionID: &v1.ID,
		NewVersionID: v2.ID,
		OldHash:      v1.ContentHash,
		NewHash:      v2.ContentHash,
		Diff:         diff,
		DiffLength:   len(diff),
		DetectedAt:   time.Now().UTC(),
	}
	stored, err := m.AppendChange(ctx, change)
	require.NoError(t, err)
	assert.NotZero(t, stored.ID)
	assert.Nil(t, stored.AlertSentAt)

	ts := time.Now().UTC()
	require.NoError(t, m.MarkAlertSent(ctx, stored.ID, ts))

	got, err := m.GetChange(stored.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AlertSentAt)
	assert.WithinDuration(t, ts, *got.AlertSentAt, time.Second)
}

func TestMemoryStore_AppendChange_InvalidRejected(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	src := testSource(t, m, sdk.CheckFrequencyDaily)

	v1, err := m.AppendVersion(ctx, testVersion(src.ID, "text"))
	require.NoError(t, err)

	// Identical hashes violate the change invariant.
	_, err = m.AppendChange(ctx, &sdk.PolicyChange{
		SourceID:     src.ID,
		NewVersionID: v1.ID,
		OldHash:      v1.ContentHash,
		NewHash:      v1.ContentHash,
		DetectedAt:   time.Now().UTC(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")

	// Dangling version reference is rejected.
	_, err = m.AppendChange(ctx, &sdk.PolicyChange{
		SourceID:     src.ID,
		NewVersionID: 999,
		OldHash:      strings.Repeat("a", 64),
		NewHash:      strings.Repeat("b", 64),
		DetectedAt:   time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_UpdateSource(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	src := testSource(t, m, sdk.CheckFrequencyDaily)

	now := time.Now().UTC()
	failures := 3
	errMsg := "network_error: connection refused"
	require.NoError(t, m.UpdateSource(ctx, src.ID, SourceUpdate{
		LastCheckedAt:            &now,
		ConsecutiveFetchFailures: &failures,
		LastFetchError:           &errMsg,
	}))

	got, err := m.GetSource(src.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastCheckedAt)
	assert.Equal(t, 3, got.ConsecutiveFetchFailures)
	assert.Equal(t, errMsg, got.LastFetchError)

	// Untouched fields survive partial updates.
	assert.Nil(t, got.LastChangeDetectedAt)
	assert.Equal(t, 0, got.ConsecutiveEmailFailures)

	// Clearing the error writes the empty string.
	zero := 0
	clear := ""
	require.NoError(t, m.UpdateSource(ctx, src.ID, SourceUpdate{
		ConsecutiveFetchFailures: &zero,
		LastFetchError:           &clear,
	}))

	got, err = m.GetSource(src.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ConsecutiveFetchFailures)
	assert.Empty(t, got.LastFetchError)

	assert.ErrorIs(t, m.UpdateSource(ctx, 999, SourceUpdate{}), ErrNotFound)
}

func TestMemoryStore_ActiveSubscriptionsForSource(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	add := func(dest, visa, email string, active bool) {
		t.Helper()
		_, err := m.AddSubscription(&sdk.RouteSubscription{
			OriginCountry: "IN", DestinationCountry: dest,
			VisaType: visa, Email: email, IsActive: active,
		})
		require.NoError(t, err)
	}

	add("UK", "Student", "student@example.com", true)
	add("UK", "Work", "work@example.com", true)
	add("UK", "Both", "both@example.com", true)
	add("UK", "Student", "inactive@example.com", false)
	add("DE", "Student", "elsewhere@example.com", true)

	src := &sdk.Source{Country: "UK", VisaType: "Student"}
	subs, err := m.ActiveSubscriptionsForSource(ctx, src)
	require.NoError(t, err)

	emails := make([]string, 0, len(subs))
	for _, sub := range subs {
		emails = append(emails, sub.Email)
	}
	assert.Equal(t, []string{"student@example.com", "both@example.com"}, emails)

	// A "Both" source fans out to every active UK subscription.
	src.VisaType = "Both"
	subs, err = m.ActiveSubscriptionsForSource(ctx, src)
	require.NoError(t, err)
	assert.Len(t, subs, 3)
}
