package sdk

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	multierror "github.com/hashicorp/go-multierror"
)

// emailRe is a pragmatic RFC-5322 shaped check; full address grammar
// validation is left to the mail provider.
var emailRe = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

// ValidEmail reports whether the address passes the shape check used by
// the subscription constraints.
func ValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

// RouteSubscription registers interest in policy changes for an
// origin→destination route and visa type.
type RouteSubscription struct {
	ID                 int64
	OriginCountry      string
	DestinationCountry string
	VisaType           string
	Email              string
	IsActive           bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the subscription invariants.
func (r *RouteSubscription) Validate() error {
	var mErr *multierror.Error

	for _, c := range []struct {
		field string
		value string
	}{
		{"origin_country", r.OriginCountry},
		{"destination_country", r.DestinationCountry},
	} {
		if len(c.value) != 2 || c.value != strings.ToUpper(c.value) {
			mErr = multierror.Append(mErr, fmt.Errorf("%s must be a 2 character uppercase code, got %q", c.field, c.value))
		}
	}

	if r.VisaType == "" {
		mErr = multierror.Append(mErr, fmt.Errorf("visa_type is required"))
	}
	if !ValidEmail(r.Email) {
		mErr = multierror.Append(mErr, fmt.Errorf("invalid email address %q", r.Email))
	}

	return mErr.ErrorOrNil()
}

// Matches reports whether this subscription should be notified about a
// change on the passed source: the destination country must equal the
// source country and the visa types must match, with the source label
// "Both" matching any subscription visa type.
func (r *RouteSubscription) Matches(s *Source) bool {
	if !r.IsActive {
		return false
	}
	if !strings.EqualFold(r.DestinationCountry, s.Country) {
		return false
	}
	return MatchVisaTypes(s.VisaType, r.VisaType)
}
