// Package sourcecache owns the on-disk cache of bare clones and their
// pinned worktrees (spec.md §4.B): one bare clone per source URL, one
// worktree per (source, commit) pair, coordinated across processes with
// file locks so N parallel resolvers never step on Git's own index.
package sourcecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/gitdriver"
	"github.com/agpm-project/agpm/pkg/logger"
)

var log = logger.New("sourcecache:cache")

// Cache manages <cache_root>/sources/<urlhash>/{bare.git,worktrees/<sha>/}.
type Cache struct {
	Root   string
	Driver *gitdriver.Driver
}

// New returns a Cache rooted at root, creating it if necessary. root should
// already be resolved from AGPM_CACHE_DIR or the platform default by the CLI
// boundary (spec.md §9 "Global-ish cache path discovery").
func New(root string) (*Cache, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("sourcecache: create cache root: %w", err)
	}
	return &Cache{Root: root, Driver: gitdriver.New()}, nil
}

// URLHash canonicalizes url (stripping a trailing ".git") and returns the
// SHA-256 hex digest used as its cache subdirectory name.
func URLHash(url string) string {
	canon := strings.TrimSuffix(strings.TrimSpace(url), ".git")
	sum := sha256.Sum256([]byte(canon))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) sourceDir(url string) string {
	return filepath.Join(c.Root, "sources", URLHash(url))
}

func (c *Cache) bareDir(url string) string {
	return filepath.Join(c.sourceDir(url), "bare.git")
}

func (c *Cache) worktreeDir(url, sha string) string {
	return filepath.Join(c.sourceDir(url), "worktrees", sha)
}

// lock acquires an exclusive file lock at path for the duration of fn,
// creating parent directories as needed. Locks are classified CacheError
// LockBusy when contended past the caller's context deadline.
func lock(ctx context.Context, path string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("sourcecache: create lock dir: %w", err)
	}
	fl := flock.New(path)
	locked, err := fl.TryLockContext(ctx, 200*time.Millisecond)
	if err != nil {
		return core.NewCacheError(core.CodeLockBusy, "acquiring lock %s: %v", path, err)
	}
	if !locked {
		return core.NewCacheError(core.CodeLockBusy, "lock %s busy", path)
	}
	defer fl.Unlock()
	return fn()
}

// EnsureSource clones url if absent, otherwise fetches; concurrent callers
// for the same URL coalesce on the source lock.
func (c *Cache) EnsureSource(ctx context.Context, url string) (string, error) {
	bare := c.bareDir(url)
	lockPath := filepath.Join(c.sourceDir(url), ".lock")

	err := lock(ctx, lockPath, func() error {
		if _, statErr := os.Stat(filepath.Join(bare, "HEAD")); statErr == nil {
			log.Printf("fetching existing source %s", url)
			return c.Driver.Fetch(ctx, bare)
		}
		log.Printf("cloning new source %s", url)
		if err := os.MkdirAll(filepath.Dir(bare), 0755); err != nil {
			return err
		}
		return c.Driver.CloneBare(ctx, url, bare)
	})
	if err != nil {
		return "", err
	}
	return bare, nil
}

// GetOrCreateWorktree returns a worktree directory pinned to sha, creating
// it if absent. Idempotent and safe under parallel callers for the same
// (url, sha): the loser of a create race waits on the lock, then observes
// the winner's worktree.
func (c *Cache) GetOrCreateWorktree(ctx context.Context, url, sha string) (string, error) {
	bare := c.bareDir(url)
	wt := c.worktreeDir(url, sha)
	lockPath := filepath.Join(c.sourceDir(url), "worktrees", sha+".lock")

	err := lock(ctx, lockPath, func() error {
		if looksValid(wt) {
			log.Printf("worktree %s already present", wt)
			return nil
		}
		if _, statErr := os.Stat(wt); statErr == nil {
			// Present but broken: remove and recreate.
			log.Printf("worktree %s invalid, recreating", wt)
			_ = c.Driver.WorktreeRemove(ctx, bare, wt)
			_ = os.RemoveAll(wt)
		}
		if err := os.MkdirAll(filepath.Dir(wt), 0755); err != nil {
			return err
		}
		return c.Driver.WorktreeAdd(ctx, bare, wt, sha)
	})
	if err != nil {
		return "", err
	}
	return wt, nil
}

func looksValid(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil && !info.IsDir() // worktree ".git" is a file pointing at the bare repo
}

// CleanupStaleLocks removes ".lock" files under the cache older than
// olderThan, guarding against a crashed process leaving a lock held forever.
func (c *Cache) CleanupStaleLocks(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	return filepath.WalkDir(filepath.Join(c.Root, "sources"), func(path string, d fsDirEntry, err error) error {
		if err != nil || d == nil || d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".lock") {
			return nil
		}
		info, statErr := os.Stat(path)
		if statErr != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			log.Printf("removing stale lock %s", path)
			_ = os.Remove(path)
		}
		return nil
	})
}

// CleanUnused deletes source subtrees not named in activeSourceNames.
func (c *Cache) CleanUnused(activeSourceNames map[string]string) error {
	sourcesDir := filepath.Join(c.Root, "sources")
	entries, err := os.ReadDir(sourcesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	active := make(map[string]bool, len(activeSourceNames))
	for _, url := range activeSourceNames {
		active[URLHash(url)] = true
	}
	for _, e := range entries {
		if !e.IsDir() || active[e.Name()] {
			continue
		}
		log.Printf("removing unused source cache %s", e.Name())
		if err := os.RemoveAll(filepath.Join(sourcesDir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// Info reports per-source disk usage and worktree counts (supplemented
// feature, `cache info`; SPEC_FULL.md §6).
type Info struct {
	URL            string
	URLHash        string
	BareSizeBytes  int64
	WorktreeCount  int
	TotalSizeBytes int64
}

// Inspect reports disk usage for every cached source.
func (c *Cache) Inspect() ([]Info, error) {
	sourcesDir := filepath.Join(c.Root, "sources")
	entries, err := os.ReadDir(sourcesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Info
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(sourcesDir, e.Name())
		bareSize := dirSize(filepath.Join(dir, "bare.git"))
		total := dirSize(dir)
		wtCount := 0
		if wts, err := os.ReadDir(filepath.Join(dir, "worktrees")); err == nil {
			for _, w := range wts {
				if w.IsDir() {
					wtCount++
				}
			}
		}
		out = append(out, Info{
			URLHash:        e.Name(),
			BareSizeBytes:  bareSize,
			WorktreeCount:  wtCount,
			TotalSizeBytes: total,
		})
	}
	return out, nil
}

func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(path string, d fsDirEntry, err error) error {
		if err != nil || d == nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

// fsDirEntry aliases fs.DirEntry to avoid importing io/fs solely for the type
// name in WalkDir callback signatures above.
type fsDirEntry = os.DirEntry
