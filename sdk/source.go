package sdk

import (
	"fmt"
	"strings"
	"time"

	multierror "github.com/hashicorp/go-multierror"
)

// FetchType describes the content format of a monitored source and
// therefore which extractor a handler must use.
type FetchType string

const (
	FetchTypeHTML FetchType = "html"
	FetchTypePDF  FetchType = "pdf"

	// FetchTypeAPI is reserved for handlers which talk to structured
	// endpoints rather than scraping documents. No source is stored with
	// this type yet, but handlers may declare it.
	FetchTypeAPI FetchType = "api"
)

// CheckFrequency is the scheduler cadence under which a source is due.
type CheckFrequency string

const (
	CheckFrequencyDaily  CheckFrequency = "daily"
	CheckFrequencyWeekly CheckFrequency = "weekly"

	// CheckFrequencyCustom sources are never selected by the built-in
	// cadences and are only run via external triggers.
	CheckFrequencyCustom CheckFrequency = "custom"
)

// VisaTypeAny is the literal visa type label which matches any
// subscription or handler visa type.
const VisaTypeAny = "Both"

// Source is a monitored URL along with its routing metadata and the
// failure accounting fields the scheduler maintains.
type Source struct {
	ID       int64
	Country  string // ISO-3166 alpha-2, uppercase
	VisaType string // free-form short label, e.g. "Student", "Work", "Both"
	URL      string
	Name     string

	FetchType      FetchType
	CheckFrequency CheckFrequency
	IsActive       bool

	LastCheckedAt        *time.Time
	LastChangeDetectedAt *time.Time

	// Config is a free-form per-source configuration mapping consumed by
	// handlers, e.g. user_agent overrides.
	Config map[string]interface{}

	ConsecutiveFetchFailures int
	ConsecutiveEmailFailures int
	LastFetchError           string
	LastEmailError           string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the source against its storage invariants and returns
// all violations found.
func (s *Source) Validate() error {
	var mErr *multierror.Error

	if len(s.Country) != 2 || s.Country != strings.ToUpper(s.Country) {
		mErr = multierror.Append(mErr, fmt.Errorf("country must be a 2 character uppercase code, got %q", s.Country))
	}
	if s.URL == "" {
		mErr = multierror.Append(mErr, fmt.Errorf("url is required"))
	}
	if s.VisaType == "" {
		mErr = multierror.Append(mErr, fmt.Errorf("visa_type is required"))
	}

	switch s.FetchType {
	case FetchTypeHTML, FetchTypePDF:
	default:
		mErr = multierror.Append(mErr, fmt.Errorf("invalid fetch_type %q", s.FetchType))
	}

	switch s.CheckFrequency {
	case CheckFrequencyDaily, CheckFrequencyWeekly, CheckFrequencyCustom:
	default:
		mErr = multierror.Append(mErr, fmt.Errorf("invalid check_frequency %q", s.CheckFrequency))
	}

	if s.ConsecutiveFetchFailures < 0 {
		mErr = multierror.Append(mErr, fmt.Errorf("consecutive_fetch_failures must be >= 0"))
	}
	if s.ConsecutiveEmailFailures < 0 {
		mErr = multierror.Append(mErr, fmt.Errorf("consecutive_email_failures must be >= 0"))
	}

	return mErr.ErrorOrNil()
}

// MatchesVisaType reports whether the passed visa type label matches
// this source. The comparison is case-insensitive and the literal
// "Both" on either side matches anything.
func (s *Source) MatchesVisaType(visaType string) bool {
	return MatchVisaTypes(s.VisaType, visaType)
}

// MatchVisaTypes implements the shared visa type matching rule used by
// both the fetcher registry and the alert engine.
func MatchVisaTypes(a, b string) bool {
	if strings.EqualFold(a, VisaTypeAny) || strings.EqualFold(b, VisaTypeAny) {
		return true
	}
	return strings.EqualFold(a, b)
}

// ConfigString returns the string value stored under key in the source
// configuration mapping, or the empty string when absent or not a
// string.
func (s *Source) ConfigString(key string) string {
	if s.Config == nil {
		return ""
	}
	v, ok := s.Config[key].(string)
	if !ok {
		return ""
	}
	return v
}
