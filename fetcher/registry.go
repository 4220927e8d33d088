// Package fetcher implements the registry of per-source fetch
// handlers. The registry is a typed plugin table populated at init
// time: each entry is a key following the {country}_{agency}_{visa}
// naming convention, a declared source type and a fetch function,
// optionally paired with static metadata enrichment.
package fetcher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/policywatch/policywatch/sdk"
)

// FetchFunc retrieves a document and never returns an out-of-band
// error; failures are reported inside the FetchResult.
type FetchFunc func(ctx context.Context, url string, config map[string]interface{}) *sdk.FetchResult

// Fetcher is a single registry entry.
type Fetcher struct {
	// Key is the logical handler name, e.g. "de_bmi_student". It must
	// follow the 3-segment {country}_{agency}_{visa} convention.
	Key string

	// SourceType declares the content format this handler understands
	// and must equal the fetch type of any source it is matched to.
	SourceType sdk.FetchType

	// Fetch performs the retrieval.
	Fetch FetchFunc

	// Enrich holds static metadata merged into successful results, e.g.
	// the agency label.
	Enrich map[string]interface{}

	country string
	visa    string
}

// reservedKeys are names skipped by convention; they exist in handler
// directories as shared scaffolding, not as registrable handlers.
var reservedKeys = map[string]bool{
	"base":             true,
	"example_template": true,
}

// ParseKey splits a handler key into its country and visa segments. The
// middle agency segment only disambiguates keys and does not take part
// in matching.
func ParseKey(key string) (country, visa string, err error) {
	if reservedKeys[key] {
		return "", "", fmt.Errorf("handler key %q is reserved", key)
	}

	parts := strings.Split(key, "_")
	if len(parts) != 3 {
		return "", "", fmt.Errorf("handler key %q does not follow the country_agency_visa convention", key)
	}
	for _, p := range parts {
		if p == "" {
			return "", "", fmt.Errorf("handler key %q has an empty segment", key)
		}
	}

	return parts[0], parts[2], nil
}

// Registry holds the handler table and answers source-to-handler
// lookups. Lookups are deterministic: candidates are considered in
// lexical key order and the first match wins.
type Registry struct {
	log hclog.Logger

	lock     sync.RWMutex
	fetchers map[string]*Fetcher
}

// NewRegistry returns an empty registry.
func NewRegistry(log hclog.Logger) *Registry {
	return &Registry{
		log:      log.Named("fetcher_registry"),
		fetchers: make(map[string]*Fetcher),
	}
}

// Register validates and adds a handler. Reserved and malformed keys
// are rejected, as are duplicate registrations.
func (r *Registry) Register(f *Fetcher) error {
	if f == nil || f.Fetch == nil {
		return fmt.Errorf("fetcher and its fetch function must not be nil")
	}

	country, visa, err := ParseKey(f.Key)
	if err != nil {
		return err
	}

	switch f.SourceType {
	case sdk.FetchTypeHTML, sdk.FetchTypePDF, sdk.FetchTypeAPI:
	default:
		return fmt.Errorf("handler %q declares invalid source type %q", f.Key, f.SourceType)
	}

	f.country = country
	f.visa = visa

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.fetchers[f.Key]; ok {
		return fmt.Errorf("handler %q already registered", f.Key)
	}
	r.fetchers[f.Key] = f

	r.log.Debug("registered fetch handler", "key", f.Key, "source_type", f.SourceType)
	return nil
}

// ForSource returns the handler for the passed source, or nil when no
// registered handler matches. A handler matches when its country
// equals the source country (case-insensitive), its visa segment
// matches the source visa type with the literal "Both" on either side
// matching anything, and its declared source type equals the source
// fetch type.
func (r *Registry) ForSource(s *sdk.Source) *Fetcher {
	r.lock.RLock()
	defer r.lock.RUnlock()

	keys := make([]string, 0, len(r.fetchers))
	for k := range r.fetchers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		f := r.fetchers[key]
		if !strings.EqualFold(f.country, s.Country) {
			continue
		}
		if !sdk.MatchVisaTypes(f.visa, s.VisaType) {
			continue
		}
		if f.SourceType != s.FetchType {
			continue
		}
		return f
	}
	return nil
}

// Keys returns the registered handler keys in lexical order.
func (r *Registry) Keys() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	keys := make([]string, 0, len(r.fetchers))
	for k := range r.fetchers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Run invokes the handler and applies its metadata enrichment when the
// underlying fetch succeeded.
func (f *Fetcher) Run(ctx context.Context, url string, config map[string]interface{}) *sdk.FetchResult {
	result := f.Fetch(ctx, url, config)
	if result == nil {
		return sdk.NewFetchError(sdk.FetchErrUnknown, "handler %q returned no result", f.Key)
	}

	if result.Success {
		for k, v := range f.Enrich {
			result.SetMetadata(k, v)
		}
	}
	return result
}
