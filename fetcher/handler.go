package fetcher

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/policywatch/policywatch/extract"
	"github.com/policywatch/policywatch/fetch"
	"github.com/policywatch/policywatch/sdk"
)

// Source config keys recognized by the builtin handlers.
const (
	// ConfigUserAgent overrides the default outbound user agent.
	ConfigUserAgent = "user_agent"

	// ConfigFilePath points a PDF handler at a local file instead of
	// downloading, used for manually imported documents.
	ConfigFilePath = "file_path"
)

// NewHTMLFetcher builds a registry entry which retrieves a page over
// HTTP and extracts its main content region.
func NewHTMLFetcher(key string, client *fetch.Client, enrich map[string]interface{}) *Fetcher {
	return &Fetcher{
		Key:        key,
		SourceType: sdk.FetchTypeHTML,
		Enrich:     enrich,
		Fetch: func(ctx context.Context, url string, config map[string]interface{}) *sdk.FetchResult {
			resp, err := client.Get(ctx, url, headersFromConfig(config))
			if err != nil {
				return fetchErrorResult(err)
			}

			text, meta, err := extract.HTML(resp.Body)
			if err != nil {
				return sdk.NewFetchError(sdk.FetchErrParse, "extracting html from %s: %v", url, err)
			}

			result := &sdk.FetchResult{
				RawText:     text,
				ContentType: resp.Header.Get("Content-Type"),
				FetchedAt:   time.Now().UTC(),
				Success:     true,
				Metadata:    meta,
			}
			result.SetMetadata("status_code", resp.StatusCode)
			result.SetMetadata("fetch_duration_ms", resp.Duration.Milliseconds())
			if lm := resp.Header.Get("Last-Modified"); lm != "" {
				result.SetMetadata("last_modified", lm)
			}
			if resp.Redirected {
				result.SetMetadata("final_url", resp.FinalURL)
			}
			return result
		},
	}
}

// NewPDFFetcher builds a registry entry which downloads a PDF to a
// temporary file, extracts its text per page and removes the file on
// every exit path. When the source config carries a file_path the
// download is skipped and the local file is read instead.
func NewPDFFetcher(key string, client *fetch.Client, enrich map[string]interface{}) *Fetcher {
	return &Fetcher{
		Key:        key,
		SourceType: sdk.FetchTypePDF,
		Enrich:     enrich,
		Fetch: func(ctx context.Context, url string, config map[string]interface{}) *sdk.FetchResult {
			path, cleanup, contentType, resp, errResult := pdfPath(ctx, client, url, config)
			if errResult != nil {
				return errResult
			}
			defer cleanup()

			text, meta, err := extract.PDFFile(path)
			if err != nil {
				var encErr *extract.ErrEncrypted
				if errors.As(err, &encErr) {
					return sdk.NewFetchError(sdk.FetchErrAuthentication, "pdf at %s is password protected", url)
				}
				return sdk.NewFetchError(sdk.FetchErrParse, "extracting pdf from %s: %v", url, err)
			}

			result := &sdk.FetchResult{
				RawText:     text,
				ContentType: contentType,
				FetchedAt:   time.Now().UTC(),
				Success:     true,
				Metadata:    meta,
			}
			if resp != nil {
				result.SetMetadata("status_code", resp.StatusCode)
				result.SetMetadata("fetch_duration_ms", resp.Duration.Milliseconds())
				if resp.Redirected {
					result.SetMetadata("final_url", resp.FinalURL)
				}
			}
			return result
		},
	}
}

// pdfPath resolves the document to a local file, downloading it when no
// file_path override is configured. The returned cleanup must always
// be called.
func pdfPath(ctx context.Context, client *fetch.Client, url string, config map[string]interface{}) (string, func(), string, *fetch.Response, *sdk.FetchResult) {
	noop := func() {}

	if p, ok := config[ConfigFilePath].(string); ok && p != "" {
		return p, noop, "application/pdf", nil, nil
	}

	resp, err := client.Get(ctx, url, headersFromConfig(config))
	if err != nil {
		return "", noop, "", nil, fetchErrorResult(err)
	}

	tmp, err := os.CreateTemp("", "policywatch-*.pdf")
	if err != nil {
		return "", noop, "", nil, sdk.NewFetchError(sdk.FetchErrUnknown, "creating temp file: %v", err)
	}

	cleanup := func() { os.Remove(tmp.Name()) }

	if _, err := tmp.Write(resp.Body); err != nil {
		tmp.Close()
		cleanup()
		return "", noop, "", nil, sdk.NewFetchError(sdk.FetchErrUnknown, "writing temp file: %v", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", noop, "", nil, sdk.NewFetchError(sdk.FetchErrUnknown, "closing temp file: %v", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}
	return tmp.Name(), cleanup, contentType, resp, nil
}

// headersFromConfig maps recognized source config entries onto request
// headers.
func headersFromConfig(config map[string]interface{}) map[string]string {
	headers := make(map[string]string)
	if ua, ok := config[ConfigUserAgent].(string); ok && ua != "" {
		headers["User-Agent"] = ua
	}
	return headers
}

// fetchErrorResult converts a typed retrieval error into a failed
// FetchResult carrying the taxonomy prefix.
func fetchErrorResult(err error) *sdk.FetchResult {
	var fErr *fetch.Error
	if errors.As(err, &fErr) {
		return sdk.NewFetchError(fErr.Kind, "%s", fErr.Message)
	}
	return sdk.NewFetchError(fetch.KindOf(err), "%v", err)
}
