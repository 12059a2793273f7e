package objstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestOffloadFetcherDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "b0", r.URL.Query().Get("bucket"))
		assert.Equal(t, "7/file_data/42/mldata", r.URL.Query().Get("key"))
		w.Write([]byte("data")) //nolint:errcheck
	}))
	defer srv.Close()

	f := NewOffloadFetcher(srv.URL)
	data, err := f.Download(context.Background(), "b0", "7/file_data/42/mldata")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
}

func TestOffloadFetcherNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewOffloadFetcher(srv.URL)
	_, err := f.Download(context.Background(), "b0", "missing")
	require.True(t, xerrors.Is(err, ErrNotFound))
}

func TestOffloadFetcherRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("data")) //nolint:errcheck
	}))
	defer srv.Close()

	f := NewOffloadFetcher(srv.URL)
	data, err := f.Download(context.Background(), "b0", "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
	assert.Equal(t, 3, calls)
}
