// Package resolver maps a version constraint against the refs of a bare
// repository to one exact 40-character commit SHA (spec.md §4.C).
package resolver

import (
	"context"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/gitdriver"
	"github.com/agpm-project/agpm/pkg/gitutil"
	"github.com/agpm-project/agpm/pkg/logger"
)

var log = logger.New("resolver:version")

// Constraint selects exactly one of Tag, Range, Branch, or Rev, optionally
// with Prefix for monorepo-style prefixed tags (e.g. "pkg-v1.2.3").
type Constraint struct {
	Tag    string // exact tag name
	Range  string // SemVer range: "^1.0", "~1.2", ">=1.0 <2.0"
	Branch string
	Rev    string
	Prefix string // stripped before SemVer parsing, when set
}

// ResolvedVersion is the output of resolution: the exact commit and a
// human-readable display string for the lockfile's `version` field.
type ResolvedVersion struct {
	SHA     string
	Display string
}

// Resolver resolves constraints against a bare repository using a Driver to
// enumerate refs and look up revisions.
type Resolver struct {
	Driver *gitdriver.Driver
}

// New returns a Resolver using the given git driver.
func New(d *gitdriver.Driver) *Resolver {
	return &Resolver{Driver: d}
}

// Resolve resolves c against the bare repository at bareDir, which may be a
// local source's worktree-free bare clone or a local filesystem repo.
func (r *Resolver) Resolve(ctx context.Context, bareDir string, c Constraint) (*ResolvedVersion, error) {
	switch {
	case c.Tag != "":
		return r.resolveTag(ctx, bareDir, c.Tag)
	case c.Range != "":
		return r.resolveRange(ctx, bareDir, c.Range, c.Prefix)
	case c.Branch != "":
		return r.resolveBranch(ctx, bareDir, c.Branch)
	case c.Rev != "":
		return r.resolveRev(ctx, bareDir, c.Rev)
	default:
		return nil, core.NewResolutionError(core.CodeRefNotFound, "no version selector given")
	}
}

func (r *Resolver) resolveTag(ctx context.Context, bareDir, tag string) (*ResolvedVersion, error) {
	refs, err := r.Driver.ForEachRef(ctx, bareDir)
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if ref.Tag && ref.Name == tag {
			return &ResolvedVersion{SHA: ref.SHA, Display: tag}, nil
		}
	}
	return nil, core.NewResolutionError(core.CodeRefNotFound, "no tag %q", tag)
}

// resolveRange enumerates tag refs, strips an optional "v" prefix (and the
// configured monorepo prefix, if any), filters to valid SemVer satisfying
// rng, and picks the highest version; ties break by original tag string
// lexicographically descending (spec.md §4.C).
func (r *Resolver) resolveRange(ctx context.Context, bareDir, rangeExpr, prefix string) (*ResolvedVersion, error) {
	constraint, err := semver.NewConstraint(rangeExpr)
	if err != nil {
		return nil, core.NewResolutionError(core.CodeRefNotFound, "invalid version range %q: %v", rangeExpr, err)
	}

	refs, err := r.Driver.ForEachRef(ctx, bareDir)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		ref *gitdriver.Ref
		ver *semver.Version
	}
	var candidates []candidate
	for i := range refs {
		ref := refs[i]
		if !ref.Tag {
			continue
		}
		stripped := strings.TrimPrefix(ref.Name, prefix)
		v, err := semver.NewVersion(stripped)
		if err != nil {
			continue
		}
		if constraint.Check(v) {
			candidates = append(candidates, candidate{ref: &ref, ver: v})
		}
	}
	if len(candidates) == 0 {
		return nil, core.NewResolutionError(core.CodeRefNotFound, "no tag satisfies range %q", rangeExpr)
	}

	sort.Slice(candidates, func(i, j int) bool {
		cmp := candidates[i].ver.Compare(candidates[j].ver)
		if cmp != 0 {
			return cmp > 0
		}
		return candidates[i].ref.Name > candidates[j].ref.Name
	})

	best := candidates[0]
	log.Printf("range %q resolved to tag %s (%d candidates)", rangeExpr, best.ref.Name, len(candidates))
	return &ResolvedVersion{SHA: best.ref.SHA, Display: best.ref.Name}, nil
}

func (r *Resolver) resolveBranch(ctx context.Context, bareDir, branch string) (*ResolvedVersion, error) {
	// In a bare clone of a remote, branches live under refs/heads after
	// fetch (git clone --bare mirrors refs/heads directly, unlike a
	// non-bare clone's refs/remotes/origin). Try rev-parse on both forms.
	for _, ref := range []string{"refs/heads/" + branch, "refs/remotes/origin/" + branch} {
		sha, err := r.Driver.RevParse(ctx, bareDir, ref)
		if err == nil {
			return &ResolvedVersion{SHA: sha, Display: branch}, nil
		}
	}
	return nil, core.NewResolutionError(core.CodeRefNotFound, "no branch %q", branch)
}

// resolveRev accepts any unambiguous object id of at least 7 hex characters
// and disambiguates it to the full 40-character SHA.
func (r *Resolver) resolveRev(ctx context.Context, bareDir, rev string) (*ResolvedVersion, error) {
	if len(rev) < 7 || !gitutil.IsHexString(rev) {
		return nil, core.NewResolutionError(core.CodeAmbiguousRev, "rev %q must be >=7 hex characters", rev)
	}
	sha, err := r.Driver.RevParse(ctx, bareDir, rev)
	if err != nil {
		return nil, err
	}
	return &ResolvedVersion{SHA: sha, Display: rev}, nil
}

// ParseVersionDisplay reports whether s looks like a SemVer-ish tag (used by
// `update` reporting to render human diffs); it is intentionally permissive.
func ParseVersionDisplay(s string) (major, minor, patch int, ok bool) {
	v, err := semver.NewVersion(strings.TrimPrefix(s, "v"))
	if err != nil {
		return 0, 0, 0, false
	}
	return int(v.Major()), int(v.Minor()), int(v.Patch()), true
}
