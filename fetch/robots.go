package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/temoto/robotstxt"
)

// robotsCache resolves and caches per-host robots.txt files. The policy
// is fail-open: an unreachable or unparseable robots.txt never blocks a
// fetch, only an explicit disallow does.
type robotsCache struct {
	log        hclog.Logger
	httpClient *http.Client
	userAgent  string

	lock sync.Mutex

	// entries is keyed by scheme://host. A nil entry records a host
	// whose robots.txt could not be retrieved and allows everything.
	entries map[string]*robotstxt.RobotsData
}

func newRobotsCache(log hclog.Logger, httpClient *http.Client, userAgent string) *robotsCache {
	return &robotsCache{
		log:        log.Named("robots"),
		httpClient: httpClient,
		userAgent:  userAgent,
		entries:    make(map[string]*robotstxt.RobotsData),
	}
}

// allowed reports whether the configured user agent may fetch u.
func (rc *robotsCache) allowed(ctx context.Context, u *url.URL) bool {
	data := rc.robotsFor(ctx, u)
	if data == nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return data.TestAgent(path, rc.userAgent)
}

func (rc *robotsCache) robotsFor(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	key := u.Scheme + "://" + u.Host

	rc.lock.Lock()
	data, ok := rc.entries[key]
	rc.lock.Unlock()
	if ok {
		return data
	}

	data = rc.fetch(ctx, key+"/robots.txt")

	rc.lock.Lock()
	rc.entries[key] = data
	rc.lock.Unlock()

	return data
}

func (rc *robotsCache) fetch(ctx context.Context, robotsURL string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", rc.userAgent)

	resp, err := rc.httpClient.Do(req)
	if err != nil {
		rc.log.Debug("failed to retrieve robots.txt, failing open", "url", robotsURL, "error", err)
		return nil
	}
	defer resp.Body.Close()

	// The robotstxt library maps 5xx to disallow-all; our policy is to
	// fail open when the file is unreachable.
	if resp.StatusCode >= 500 {
		rc.log.Debug("robots.txt unreachable, failing open", "url", robotsURL, "status", resp.StatusCode)
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		rc.log.Debug("failed to read robots.txt, failing open", "url", robotsURL, "error", err)
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		rc.log.Debug("failed to parse robots.txt, failing open", "url", robotsURL, "error", err)
		return nil
	}
	return data
}
