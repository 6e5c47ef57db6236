package skhub

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/seasonjs/hf-hub/api"
)

// DefaultRevision is the revision fetched when a ModelRef has none.
const DefaultRevision = "main"

// hubFetcher resolves references through the Hugging Face Hub client.
type hubFetcher struct {
	// cfg holds the client configuration, environment overrides applied.
	cfg Config

	// logger receives diagnostic messages. May be nil.
	logger Logger

	// lockTimeout bounds the wait for a concurrent download of the same file.
	lockTimeout time.Duration
}

// NewHubFetcher returns a Fetcher that downloads files from the Hugging
// Face Hub, or returns them from the local cache when present.
// Environment variables override cfg, see ApplyEnv. logger may be nil.
func NewHubFetcher(cfg Config, logger Logger) Fetcher {
	return &hubFetcher{
		cfg:         ApplyEnv(cfg),
		logger:      logger,
		lockTimeout: DefaultLockTimeout,
	}
}

// Fetch returns the local path of ref.
// Returns ErrInvalidRef if ref has no repository id or filename, or if
// either has an empty, "." or ".." path element.
// Concurrent fetches of the same file, from this or other processes,
// are serialized through a lock file in the cache directory.
func (f *hubFetcher) Fetch(ctx context.Context, ref ModelRef) (string, error) {
	if ref.RepoID == "" {
		return "", fmt.Errorf("%w: repository id is required", ErrInvalidRef)
	}
	if ref.Filename == "" {
		return "", fmt.Errorf("%w: filename is required", ErrInvalidRef)
	}
	if err := checkRefPath("repository id", ref.RepoID); err != nil {
		return "", err
	}
	if err := checkRefPath("filename", ref.Filename); err != nil {
		return "", err
	}

	cacheDir, err := resolveCacheDir(ref, f.cfg)
	if err != nil {
		return "", fmt.Errorf("resolving cache directory: %w", err)
	}

	lock, err := acquireFileLock(ctx, lockPath(cacheDir, ref), f.lockTimeout)
	if err != nil {
		return "", fmt.Errorf("locking %s: %w", ref, err)
	}
	defer lock.release()

	client, err := f.client(ctx, cacheDir)
	if err != nil {
		return "", err
	}

	revision := ref.Revision
	if revision == "" {
		revision = DefaultRevision
	}
	repo := client.Repo(api.NewRepoWithRevision(ref.RepoID, api.Model, revision))

	path, err := repo.Get(ref.Filename)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", err
	}
	if f.logger != nil {
		f.logger.Debug("resolved model file", "ref", ref.String(), "path", path)
	}
	return path, nil
}

// client builds a Hub client storing files in cacheDir.
// Requests made by the client are bound to ctx.
func (f *hubFetcher) client(ctx context.Context, cacheDir string) (*api.Api, error) {
	builder, err := api.NewApiBuilder()
	if err != nil {
		return nil, fmt.Errorf("creating hub client: %w", err)
	}

	builder = builder.WithCacheDir(cacheDir)
	if f.cfg.Token != "" {
		builder = builder.WithToken(f.cfg.Token)
	}
	if f.cfg.Endpoint != "" {
		builder = builder.WithEndpoint(f.cfg.Endpoint)
	}
	return builder.WithContext(ctx).WithProgress(f.cfg.Progress).Build(), nil
}

// checkRefPath rejects names that would resolve outside their cache folder.
func checkRefPath(field, name string) error {
	for _, elem := range strings.Split(filepath.ToSlash(name), "/") {
		if elem == "" || elem == "." || elem == ".." {
			return fmt.Errorf("%w: invalid %s %q", ErrInvalidRef, field, name)
		}
	}
	return nil
}
