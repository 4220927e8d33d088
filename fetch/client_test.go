package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policywatch/policywatch/sdk"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	return NewClient(ClientConfig{
		Timeout:       2 * time.Second,
		RetryBase:     time.Millisecond,
		DisableRobots: true,
	})
}

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		w.Write([]byte("Student visa requires X."))
	}))
	defer srv.Close()

	resp, err := testClient(t).Get(context.Background(), srv.URL, map[string]string{
		"Cache-Control": "no-cache",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Student visa requires X.", string(resp.Body))
	assert.Equal(t, 1, resp.Attempts)
	assert.False(t, resp.Redirected)
}

func TestClient_Get_retriesTransientServerErrors(t *testing.T) {
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	resp, err := testClient(t).Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, 3, resp.Attempts)
	assert.Equal(t, "recovered", string(resp.Body))
}

func TestClient_Get_exhaustsRetries(t *testing.T) {
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(t).Get(context.Background(), srv.URL, nil)
	require.Error(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, sdk.FetchErrNetwork, KindOf(err))
}

func TestClient_Get_notFoundIsNotRetried(t *testing.T) {
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testClient(t).Get(context.Background(), srv.URL, nil)
	require.Error(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, sdk.FetchErrNotFound, KindOf(err))
}

func TestClient_Get_clientErrorIsNotRetried(t *testing.T) {
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testClient(t).Get(context.Background(), srv.URL, nil)
	require.Error(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, sdk.FetchErrNetwork, KindOf(err))
}

func TestClient_Get_tracksRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("moved content"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := testClient(t).Get(context.Background(), srv.URL+"/old", nil)
	require.NoError(t, err)

	assert.True(t, resp.Redirected)
	assert.Equal(t, srv.URL+"/new", resp.FinalURL)
}

func TestClient_Get_robotsDisallow(t *testing.T) {
	var pageHits int32

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	})
	mux.HandleFunc("/private/policy", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&pageHits, 1)
	})
	mux.HandleFunc("/public/policy", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("public"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(ClientConfig{Timeout: 2 * time.Second, RetryBase: time.Millisecond})

	// Disallowed path is refused without issuing the request.
	_, err := client.Get(context.Background(), srv.URL+"/private/policy", nil)
	require.Error(t, err)
	assert.Equal(t, sdk.FetchErrNetwork, KindOf(err))
	assert.Contains(t, err.Error(), "robots_blocked")
	assert.Equal(t, int32(0), atomic.LoadInt32(&pageHits))

	// Allowed path proceeds.
	resp, err := client.Get(context.Background(), srv.URL+"/public/policy", nil)
	require.NoError(t, err)
	assert.Equal(t, "public", string(resp.Body))
}

func TestClient_Get_robotsFailOpen(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/policy", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("content"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(ClientConfig{Timeout: 2 * time.Second, RetryBase: time.Millisecond})

	resp, err := client.Get(context.Background(), srv.URL+"/policy", nil)
	require.NoError(t, err)
	assert.Equal(t, "content", string(resp.Body))
}

func TestClient_Get_invalidURL(t *testing.T) {
	_, err := testClient(t).Get(context.Background(), "not a url", nil)
	require.Error(t, err)
	assert.Equal(t, sdk.FetchErrNetwork, KindOf(err))
}
