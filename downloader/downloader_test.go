package downloader_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tcat.dev/transit/downloader"
)

// Serves a body that changes on every request, counting hits.
func countingServer(t *testing.T) (*httptest.Server, *int32) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		n := atomic.AddInt32(&hits, 1)
		w.Write([]byte{'a' + byte(n-1)})
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestHTTPGet(t *testing.T) {
	var apiKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("x-api-key")
		w.Write([]byte("0123456789"))
	}))
	defer server.Close()

	body, err := downloader.HTTPGet(
		context.Background(),
		server.URL,
		map[string]string{"x-api-key": "secret"},
		downloader.GetOptions{MaxSize: 10},
	)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(body))
	assert.Equal(t, "secret", apiKey)

	_, err = downloader.HTTPGet(context.Background(), server.URL, nil, downloader.GetOptions{MaxSize: 4})
	assert.ErrorIs(t, err, downloader.ErrTooLarge)
}

func TestHTTPGetStatusError(t *testing.T) {
	server, _ := countingServer(t)

	_, err := downloader.HTTPGet(context.Background(), server.URL+"/missing", nil, downloader.GetOptions{})
	var serr *downloader.StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)
}

func TestMemoryCache(t *testing.T) {
	server, hits := countingServer(t)

	now := time.Date(2018, 3, 26, 17, 0, 0, 0, time.UTC)
	d := downloader.NewMemory()
	d.TimeNow = func() time.Time { return now }

	opts := downloader.GetOptions{Cache: true, CacheTTL: time.Minute}

	body, err := d.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "a", string(body))

	body, err = d.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "a", string(body))
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))

	// Expired
	now = now.Add(2 * time.Minute)
	body, err = d.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "b", string(body))

	// Uncached requests always go upstream
	body, err = d.Get(context.Background(), server.URL, nil, downloader.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "c", string(body))

	d.Purge()
	body, err = d.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "d", string(body))
}

func TestFilesystemCache(t *testing.T) {
	server, hits := countingServer(t)
	path := filepath.Join(t.TempDir(), "cache")

	fs, err := downloader.NewFilesystem(path, zap.NewNop())
	require.NoError(t, err)

	opts := downloader.GetOptions{Cache: true, CacheTTL: time.Hour}
	body, err := fs.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "a", string(body))

	// A fresh instance reads what the first one saved
	fs, err = downloader.NewFilesystem(path, nil)
	require.NoError(t, err)
	body, err = fs.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "a", string(body))
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))

	_, err = fs.Get(context.Background(), server.URL+"/missing", nil, opts)
	assert.Error(t, err)
}

func TestFilesystemPrune(t *testing.T) {
	server, hits := countingServer(t)

	now := time.Date(2018, 3, 26, 17, 0, 0, 0, time.UTC)
	fs, err := downloader.NewFilesystem(t.TempDir(), nil)
	require.NoError(t, err)
	fs.TimeNow = func() time.Time { return now }

	_, err = fs.Get(context.Background(), server.URL+"/short", nil, downloader.GetOptions{Cache: true, CacheTTL: time.Minute})
	require.NoError(t, err)
	_, err = fs.Get(context.Background(), server.URL+"/long", nil, downloader.GetOptions{Cache: true, CacheTTL: time.Hour})
	require.NoError(t, err)

	now = now.Add(10 * time.Minute)
	removed, err := fs.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	// The long lived entry survives, the other one is refetched
	body, err := fs.Get(context.Background(), server.URL+"/long", nil, downloader.GetOptions{Cache: true, CacheTTL: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, "b", string(body))
	body, err = fs.Get(context.Background(), server.URL+"/short", nil, downloader.GetOptions{Cache: true, CacheTTL: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, "c", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))
}

func TestRedisCache(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 1})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	server, hits := countingServer(t)
	d := downloader.NewRedis(client, zap.NewNop())

	opts := downloader.GetOptions{Cache: true, CacheTTL: time.Minute}
	body, err := d.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "a", string(body))

	body, err = d.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "a", string(body))
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}
