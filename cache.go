package skhub

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultLockTimeout is the default timeout for acquiring a download lock.
const DefaultLockTimeout = 5 * time.Minute

// repoFolderPrefix prefixes model repository folders in the hub cache.
const repoFolderPrefix = "models--"

// CachedFile describes a model file present in the hub cache.
type CachedFile struct {
	// RepoID is the repository identifier, e.g., "org/model-a".
	RepoID string `json:"repo_id"`

	// Filename is the path of the file within the repository.
	Filename string `json:"filename"`

	// Commit is the snapshot commit hash the file belongs to.
	Commit string `json:"commit"`

	// Revisions lists the refs pointing at Commit, e.g., ["main"].
	Revisions []string `json:"revisions,omitempty"`

	// Size is the file size in bytes.
	Size int64 `json:"size"`

	// ModTime is the modification time of the cached blob.
	ModTime time.Time `json:"mod_time"`

	// Path is the absolute path of the file.
	Path string `json:"path"`
}

// DefaultCacheDir returns the cache directory the hub client uses when
// none is configured: $HF_HOME/hub, or ~/.cache/huggingface/hub.
func DefaultCacheDir() (string, error) {
	if home := os.Getenv("HF_HOME"); home != "" {
		return filepath.Join(home, "hub"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", "huggingface", "hub"), nil
}

// resolveCacheDir returns the cache directory for ref.
// Priority: ModelRef.CacheDir > Config.CacheDir > hub client default
func resolveCacheDir(ref ModelRef, cfg Config) (string, error) {
	if ref.CacheDir != "" {
		return ref.CacheDir, nil
	}
	if cfg.CacheDir != "" {
		return cfg.CacheDir, nil
	}
	return DefaultCacheDir()
}

// repoFolder returns the cache folder name of a model repository.
func repoFolder(repoID string) string {
	return repoFolderPrefix + strings.ReplaceAll(repoID, "/", "--")
}

// lockPath returns the lock file guarding downloads of ref.
func lockPath(cacheDir string, ref ModelRef) string {
	return filepath.Join(cacheDir, ".locks", repoFolder(ref.RepoID), filepath.FromSlash(ref.Filename)+".lock")
}

// fileLock is a cross-process exclusive lock on a file.
type fileLock struct {
	file *os.File
}

// acquireFileLock creates the lock file at path if needed and locks it.
// Polls with backoff until the lock is held, timeout expires or ctx is done.
func acquireFileLock(ctx context.Context, path string, timeout time.Duration) (*fileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	deadline := time.Now().Add(timeout)
	sleepDuration := 10 * time.Millisecond
	for {
		if err := tryLockFile(file); err == nil {
			return &fileLock{file: file}, nil
		}
		if time.Now().After(deadline) {
			file.Close()
			return nil, fmt.Errorf("lock timeout after %v", timeout)
		}

		select {
		case <-ctx.Done():
			file.Close()
			return nil, ctx.Err()
		case <-time.After(sleepDuration):
		}
		if sleepDuration < 100*time.Millisecond {
			sleepDuration *= 2
		}
	}
}

// release unlocks and closes the lock file. Safe to call multiple times.
func (l *fileLock) release() error {
	if l.file == nil {
		return nil
	}
	err := unlockFile(l.file)
	l.file.Close()
	l.file = nil
	return err
}

// ListCached returns the model files stored in the hub cache at cacheDir,
// sorted by repository, commit and filename.
// Returns an empty list if cacheDir does not exist.
func ListCached(cacheDir string) ([]CachedFile, error) {
	entries, err := os.ReadDir(cacheDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []CachedFile
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), repoFolderPrefix) {
			continue
		}
		repoID := strings.ReplaceAll(strings.TrimPrefix(entry.Name(), repoFolderPrefix), "--", "/")
		repoFiles, err := listRepo(filepath.Join(cacheDir, entry.Name()), repoID)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", repoID, err)
		}
		files = append(files, repoFiles...)
	}

	sort.Slice(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if a.RepoID != b.RepoID {
			return a.RepoID < b.RepoID
		}
		if a.Commit != b.Commit {
			return a.Commit < b.Commit
		}
		return a.Filename < b.Filename
	})
	return files, nil
}

// listRepo lists the snapshot files of one repository folder.
func listRepo(dir, repoID string) ([]CachedFile, error) {
	revisions, err := readRefs(filepath.Join(dir, "refs"))
	if err != nil {
		return nil, err
	}

	snapshots := filepath.Join(dir, "snapshots")
	commits, err := os.ReadDir(snapshots)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []CachedFile
	for _, commit := range commits {
		if !commit.IsDir() {
			continue
		}
		root := filepath.Join(snapshots, commit.Name())
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			// Snapshot entries are usually symlinks into blobs/.
			info, err := os.Stat(path)
			if err != nil {
				// Dangling link left by an interrupted download.
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			files = append(files, CachedFile{
				RepoID:    repoID,
				Filename:  filepath.ToSlash(rel),
				Commit:    commit.Name(),
				Revisions: revisions[commit.Name()],
				Size:      info.Size(),
				ModTime:   info.ModTime(),
				Path:      abs,
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// readRefs maps commit hashes to the refs pointing at them.
func readRefs(dir string) (map[string][]string, error) {
	refs := make(map[string][]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		name, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		commit := strings.TrimSpace(string(data))
		refs[commit] = append(refs[commit], filepath.ToSlash(name))
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, names := range refs {
		sort.Strings(names)
	}
	return refs, nil
}
