package vectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ska-telescope/ska-pss-protest/types"
)

const vectorName = "SPS-MID_747e9ad_0.333_0.05_370.0_0.0_Gaussian_50.0_0000_1.fil"

// vectorServer serves a fake test vector and a /query endpoint, counting
// GETs of the vector itself.
func vectorServer(t *testing.T, content []byte, queryResponse string, downloads *int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(queryResponse))
	})
	mux.HandleFunc("/SPS-MID/"+vectorName, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			*downloads++
		}
		_, _ = w.Write(content)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher(t *testing.T, serverURL string) *Fetcher {
	t.Helper()
	t.Setenv("VECTOR_SERVER_URL", serverURL)
	f, err := NewFetcher(context.Background(), filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	return f
}

func TestFromNameDownloadsAndCaches(t *testing.T) {
	content := []byte("filterbank bytes")
	var downloads int
	srv := vectorServer(t, content, "", &downloads)

	f := newTestFetcher(t, srv.URL)

	path, err := f.FromName(context.Background(), vectorName, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.CacheDir(), vectorName), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, 1, downloads)

	// Second resolution is served from cache.
	_, err = f.FromName(context.Background(), vectorName, false)
	require.NoError(t, err)
	assert.Equal(t, 1, downloads)
}

func TestFromNameRefreshBypassesCache(t *testing.T) {
	var downloads int
	srv := vectorServer(t, []byte("data"), "", &downloads)

	f := newTestFetcher(t, srv.URL)

	_, err := f.FromName(context.Background(), vectorName, false)
	require.NoError(t, err)
	_, err = f.FromName(context.Background(), vectorName, true)
	require.NoError(t, err)
	assert.Equal(t, 2, downloads)
}

func TestFromNameStaleCacheRepulled(t *testing.T) {
	content := []byte("the full vector content")
	var downloads int
	srv := vectorServer(t, content, "", &downloads)

	f := newTestFetcher(t, srv.URL)

	// Seed the cache with a truncated copy.
	stale := filepath.Join(f.CacheDir(), vectorName)
	require.NoError(t, os.WriteFile(stale, content[:4], 0o644))

	path, err := f.FromName(context.Background(), vectorName, false)
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, 1, downloads)
}

func TestFromNameRemoteMissing(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	f := newTestFetcher(t, srv.URL)

	_, err := f.FromName(context.Background(), vectorName, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestFromProperties(t *testing.T) {
	var downloads int
	srv := vectorServer(t, []byte("data"), vectorName, &downloads)

	f := newTestFetcher(t, srv.URL)

	path, err := f.FromProperties(context.Background(), types.VectorSpec{
		Type: "SPS-MID",
		Freq: 0.333,
		Duty: 0.05,
		DM:   370.0,
		SN:   50.0,
		RFI:  "0000",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.CacheDir(), vectorName), path)
	assert.Equal(t, 1, downloads)
}

func TestFromPropertiesNoMatch(t *testing.T) {
	var downloads int
	srv := vectorServer(t, []byte("data"), "None", &downloads)

	f := newTestFetcher(t, srv.URL)

	_, err := f.FromProperties(context.Background(), types.VectorSpec{Type: "SPS-MID"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no vector with requested properties")
}

func TestFlush(t *testing.T) {
	srv := vectorServer(t, []byte("data"), "", new(int))
	f := newTestFetcher(t, srv.URL)

	_, err := f.FromName(context.Background(), vectorName, false)
	require.NoError(t, err)

	require.NoError(t, f.Flush())

	entries, err := os.ReadDir(f.CacheDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
