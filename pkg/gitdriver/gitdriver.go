// Package gitdriver wraps the system "git" binary with the small set of
// plumbing operations the resolution pipeline needs: bare clone, fetch,
// worktree add/remove, rev-parse, ref enumeration, and content streaming at a
// commit. Modeled on the teacher's subprocess-wrapper idiom (exec.Command +
// namespaced logger + classified error), generalized from GitHub-repo-PR
// helpers to the read-mostly plumbing AGPM needs.
package gitdriver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/agpm-project/agpm/pkg/gitutil"
	"github.com/agpm-project/agpm/pkg/logger"
)

var log = logger.New("gitdriver:git")

// Kind classifies a GitError for retry/backoff and user-facing reporting,
// per spec.md §4.A.
type Kind string

const (
	NotFound     Kind = "NotFound"
	AuthRequired Kind = "AuthRequired"
	RefNotFound  Kind = "RefNotFound"
	NetworkError Kind = "NetworkError"
	LockBusy     Kind = "LockBusy"
	Other        Kind = "Other"
)

// GitError wraps a failed git invocation with enough context to classify and
// report it.
type GitError struct {
	Kind    Kind
	Command []string
	Stderr  string
	Cause   error
}

func (e *GitError) Error() string {
	return fmt.Sprintf("git %s: %s", strings.Join(e.Command, " "), strings.TrimSpace(e.Stderr))
}

func (e *GitError) Unwrap() error { return e.Cause }

// testMode disables retry backoff, per spec.md §6's AGPM_TEST_MODE.
var testMode = os.Getenv("AGPM_TEST_MODE") == "true"

// Driver runs git subprocess commands rooted at a working directory (either
// a bare repo directory for plumbing commands, or a worktree directory for
// worktree-relative commands).
type Driver struct {
	// Binary is the git executable to invoke; defaults to "git" on $PATH.
	Binary string
}

// New returns a Driver using the system git binary.
func New() *Driver {
	return &Driver{Binary: "git"}
}

func (d *Driver) bin() string {
	if d.Binary == "" {
		return "git"
	}
	return d.Binary
}

// run executes git with args in dir, classifying any failure into a GitError.
func (d *Driver) run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	log.Printf("git -C %s %s", dir, strings.Join(args, " "))
	fullArgs := append([]string{"-C", dir}, args...)
	cmd := exec.CommandContext(ctx, d.bin(), fullArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return stdout.Bytes(), classify(args, stderr.String(), err)
	}
	return stdout.Bytes(), nil
}

func classify(args []string, stderr string, cause error) *GitError {
	lower := strings.ToLower(stderr)
	kind := Other
	switch {
	case gitutil.IsAuthError(lower):
		kind = AuthRequired
	case strings.Contains(lower, "could not resolve host"),
		strings.Contains(lower, "could not read from remote"),
		strings.Contains(lower, "connection timed out"),
		strings.Contains(lower, "temporary failure in name resolution"),
		strings.Contains(lower, "network is unreachable"):
		kind = NetworkError
	case strings.Contains(lower, "unable to find remote helper"),
		strings.Contains(lower, "repository not found"),
		strings.Contains(lower, "does not exist"):
		kind = NotFound
	case strings.Contains(lower, "unknown revision"),
		strings.Contains(lower, "not a valid ref"),
		strings.Contains(lower, "ambiguous argument"):
		kind = RefNotFound
	case strings.Contains(lower, "unable to create") && strings.Contains(lower, "lock"),
		strings.Contains(lower, "index.lock"):
		kind = LockBusy
	}
	return &GitError{Kind: kind, Command: args, Stderr: stderr, Cause: cause}
}

// withRetry retries fn up to 3 times with 1s/2s/4s backoff when it fails
// with a NetworkError; other errors surface immediately (spec.md §4.A).
// Retries are skipped entirely in AGPM_TEST_MODE.
func withRetry(ctx context.Context, fn func() ([]byte, error)) ([]byte, error) {
	delays := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	var out []byte
	var err error
	attempts := len(delays) + 1
	if testMode {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		out, err = fn()
		if err == nil {
			return out, nil
		}
		gerr, ok := err.(*GitError)
		if !ok || gerr.Kind != NetworkError || i == attempts-1 {
			return out, err
		}
		select {
		case <-time.After(delays[i]):
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
	return out, err
}

// CloneBare clones url as a bare repository into dir.
func (d *Driver) CloneBare(ctx context.Context, url, dir string) error {
	_, err := withRetry(ctx, func() ([]byte, error) {
		return d.run(ctx, ".", "clone", "--bare", url, dir)
	})
	return err
}

// Fetch updates a bare repository's refs, pruning deleted ones and including
// tags.
func (d *Driver) Fetch(ctx context.Context, bareDir string) error {
	_, err := withRetry(ctx, func() ([]byte, error) {
		return d.run(ctx, bareDir, "fetch", "--prune", "--tags", "origin")
	})
	return err
}

// WorktreeAdd creates a detached worktree at dir pinned to sha.
func (d *Driver) WorktreeAdd(ctx context.Context, bareDir, dir, sha string) error {
	_, err := d.run(ctx, bareDir, "worktree", "add", "--detach", dir, sha)
	return err
}

// WorktreeRemove removes the worktree at dir, forcing removal of any local
// modifications (worktrees are read-only views; spec.md Glossary).
func (d *Driver) WorktreeRemove(ctx context.Context, bareDir, dir string) error {
	_, err := d.run(ctx, bareDir, "worktree", "remove", "--force", dir)
	return err
}

// WorktreePrune removes administrative files for worktrees whose directories
// are gone.
func (d *Driver) WorktreePrune(ctx context.Context, bareDir string) error {
	_, err := d.run(ctx, bareDir, "worktree", "prune")
	return err
}

// RevParse resolves ref to a full object id within bareDir.
func (d *Driver) RevParse(ctx context.Context, bareDir, ref string) (string, error) {
	out, err := d.run(ctx, bareDir, "rev-parse", "--verify", ref+"^{commit}")
	if err != nil {
		gerr, ok := err.(*GitError)
		if ok {
			gerr.Kind = RefNotFound
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Ref is one enumerated tag or branch.
type Ref struct {
	Name string // short name, e.g. "v1.2.3" or "main"
	SHA  string
	Tag  bool
}

// ForEachRef enumerates tag and branch refs in a bare repository.
func (d *Driver) ForEachRef(ctx context.Context, bareDir string) ([]Ref, error) {
	out, err := d.run(ctx, bareDir, "for-each-ref", "--format=%(objectname) %(refname)", "refs/tags", "refs/heads")
	if err != nil {
		return nil, err
	}
	var refs []Ref
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}
		sha, refname := parts[0], parts[1]
		switch {
		case strings.HasPrefix(refname, "refs/tags/"):
			refs = append(refs, Ref{Name: strings.TrimPrefix(refname, "refs/tags/"), SHA: sha, Tag: true})
		case strings.HasPrefix(refname, "refs/heads/"):
			refs = append(refs, Ref{Name: strings.TrimPrefix(refname, "refs/heads/"), SHA: sha, Tag: false})
		}
	}
	return refs, nil
}

// Show streams the content of path as it exists at sha, without checkout.
func (d *Driver) Show(ctx context.Context, bareDir, sha, path string) ([]byte, error) {
	out, err := d.run(ctx, bareDir, "show", fmt.Sprintf("%s:%s", sha, path))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LsTreeEntry is one path enumerated by LsTree.
type LsTreeEntry struct {
	Mode string
	Path string
}

// LsTree lists every blob path in the tree at sha, for glob expansion
// (spec.md §4.D).
func (d *Driver) LsTree(ctx context.Context, bareDir, sha string) ([]LsTreeEntry, error) {
	out, err := d.run(ctx, bareDir, "ls-tree", "-r", "--full-tree", sha)
	if err != nil {
		return nil, err
	}
	var entries []LsTreeEntry
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line == "" {
			continue
		}
		// "<mode> <type> <sha>\t<path>"
		tab := strings.IndexByte(line, '\t')
		if tab < 0 {
			continue
		}
		meta := strings.Fields(line[:tab])
		if len(meta) < 1 {
			continue
		}
		entries = append(entries, LsTreeEntry{Mode: meta[0], Path: line[tab+1:]})
	}
	return entries, nil
}
