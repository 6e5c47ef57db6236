package skhub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedCache lays out a cached file the way the hub client stores it.
func seedCache(t *testing.T, cacheDir, repoID, revision, commit, filename string, data []byte) string {
	t.Helper()
	repoDir := filepath.Join(cacheDir, repoFolder(repoID))
	require.NoError(t, os.MkdirAll(filepath.Join(repoDir, "refs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "refs", revision), []byte(commit), 0644))

	path := filepath.Join(repoDir, "snapshots", commit, filepath.FromSlash(filename))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestHubFetcherPresenceChecks(t *testing.T) {
	f := NewHubFetcher(Config{CacheDir: t.TempDir()}, nil)

	tests := []struct {
		name string
		ref  ModelRef
	}{
		{name: "empty repo id", ref: ModelRef{Filename: "model.bin"}},
		{name: "empty filename", ref: ModelRef{RepoID: "org/model-a"}},
		{name: "empty ref", ref: ModelRef{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), tt.ref)
			require.ErrorIs(t, err, ErrInvalidRef)
		})
	}
}

func TestHubFetcherCacheHit(t *testing.T) {
	t.Setenv("HF_HOME", t.TempDir())
	t.Setenv(EnvCacheDir, "")
	cacheDir := t.TempDir()

	mainPath := seedCache(t, cacheDir, "org/model-a", "main", "abc123", "model.bin", []byte("main"))
	v1Path := seedCache(t, cacheDir, "org/model-a", "v1", "def456", "model.bin", []byte("v1"))

	f := NewHubFetcher(Config{}, nil)

	t.Run("default revision", func(t *testing.T) {
		path, err := f.Fetch(context.Background(), ModelRef{RepoID: "org/model-a", Filename: "model.bin", CacheDir: cacheDir})
		require.NoError(t, err)
		assert.Equal(t, mainPath, path)
	})

	t.Run("explicit revision", func(t *testing.T) {
		path, err := f.Fetch(context.Background(), ModelRef{RepoID: "org/model-a", Filename: "model.bin", Revision: "v1", CacheDir: cacheDir})
		require.NoError(t, err)
		assert.Equal(t, v1Path, path)
	})

	t.Run("lock file created", func(t *testing.T) {
		_, err := os.Stat(filepath.Join(cacheDir, ".locks", "models--org--model-a", "model.bin.lock"))
		assert.NoError(t, err)
	})
}

// hubServer serves files the way the hub resolve endpoint does.
type hubServer struct {
	commit string
	files  map[string][]byte

	mu       sync.Mutex
	requests []string
	auth     []string
}

func (s *hubServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.URL.Path)
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	s.mu.Unlock()

	data, ok := s.files[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if r.Header.Get("Range") == "bytes=0-0" {
		w.Header().Set("X-Repo-Commit", s.commit)
		w.Header().Set("ETag", fmt.Sprintf("%q", "etag"+strings.ReplaceAll(r.URL.Path, "/", "-")))
		w.Header().Set("Content-Range", fmt.Sprintf("bytes 0-0/%d", len(data)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data[:1])
		return
	}
	w.Write(data)
}

func (s *hubServer) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func TestHubFetcherCacheMissDownloads(t *testing.T) {
	t.Setenv("HF_HOME", t.TempDir())
	t.Setenv(EnvCacheDir, "")
	t.Setenv(EnvEndpoint, "")
	t.Setenv(EnvToken, "")

	hub := &hubServer{
		commit: "0123456789abcdef",
		files: map[string][]byte{
			"/org/model-a/resolve/v2/model.joblib": []byte("joblib bytes"),
			"/org/model-a/resolve/v2/other.joblib": []byte("other bytes"),
		},
	}
	srv := httptest.NewServer(hub)
	defer srv.Close()

	cacheDir := t.TempDir()
	f := NewHubFetcher(Config{CacheDir: cacheDir, Endpoint: srv.URL, Token: "secret"}, nil)
	ref := ModelRef{RepoID: "org/model-a", Filename: "model.joblib", Revision: "v2"}

	path, err := f.Fetch(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cacheDir, "models--org--model-a", "snapshots", hub.commit, "model.joblib"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "joblib bytes", string(data))

	commit, err := os.ReadFile(filepath.Join(cacheDir, "models--org--model-a", "refs", "v2"))
	require.NoError(t, err)
	assert.Equal(t, hub.commit, string(commit))

	require.NotEmpty(t, hub.auth)
	for _, auth := range hub.auth {
		assert.Equal(t, "Bearer secret", auth)
	}

	t.Run("second fetch is served from cache", func(t *testing.T) {
		before := hub.requestCount()
		again, err := f.Fetch(context.Background(), ref)
		require.NoError(t, err)
		assert.Equal(t, path, again)
		assert.Equal(t, before, hub.requestCount())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), ModelRef{RepoID: "org/model-a", Filename: "missing.joblib", Revision: "v2"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := f.Fetch(ctx, ModelRef{RepoID: "org/model-a", Filename: "other.joblib", Revision: "v2"})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestHubFetcherRejectsEscapingRefs(t *testing.T) {
	cacheDir := t.TempDir()
	f := NewHubFetcher(Config{CacheDir: filepath.Join(cacheDir, "hub")}, nil)

	tests := []struct {
		name string
		ref  ModelRef
	}{
		{name: "parent in filename", ref: ModelRef{RepoID: "org/model-a", Filename: "../../escape.bin"}},
		{name: "parent in repo id", ref: ModelRef{RepoID: "../org", Filename: "model.bin"}},
		{name: "absolute filename", ref: ModelRef{RepoID: "org/model-a", Filename: "/etc/passwd"}},
		{name: "dot element", ref: ModelRef{RepoID: "org/./model-a", Filename: "model.bin"}},
		{name: "empty element", ref: ModelRef{RepoID: "org/model-a", Filename: "weights//model.bin"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), tt.ref)
			require.ErrorIs(t, err, ErrInvalidRef)
		})
	}

	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHubFetcherCacheDirFromEnv(t *testing.T) {
	t.Setenv("HF_HOME", t.TempDir())
	cacheDir := t.TempDir()
	t.Setenv(EnvCacheDir, cacheDir)

	want := seedCache(t, cacheDir, "org/model-b", "main", "abc123", "weights/model.pkl", []byte("x"))

	f := NewHubFetcher(Config{CacheDir: "/ignored"}, nil)
	path, err := f.Fetch(context.Background(), ModelRef{RepoID: "org/model-b", Filename: "weights/model.pkl"})
	require.NoError(t, err)
	assert.Equal(t, want, path)
}

func TestResolveCacheDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HF_HOME", home)

	tests := []struct {
		name string
		ref  ModelRef
		cfg  Config
		want string
	}{
		{name: "ref wins", ref: ModelRef{CacheDir: "/a"}, cfg: Config{CacheDir: "/b"}, want: "/a"},
		{name: "config", cfg: Config{CacheDir: "/b"}, want: "/b"},
		{name: "HF_HOME default", want: filepath.Join(home, "hub")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveCacheDir(tt.ref, tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "model.bin.lock")
	ctx := context.Background()

	first, err := acquireFileLock(ctx, path, time.Second)
	require.NoError(t, err)

	t.Run("timeout while held", func(t *testing.T) {
		_, err := acquireFileLock(ctx, path, 50*time.Millisecond)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "lock timeout")
	})

	t.Run("canceled while held", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := acquireFileLock(canceled, path, time.Minute)
		require.True(t, errors.Is(err, context.Canceled), "got %v", err)
	})

	require.NoError(t, first.release())
	require.NoError(t, first.release())

	second, err := acquireFileLock(ctx, path, time.Second)
	require.NoError(t, err)
	require.NoError(t, second.release())
}
