// Package pipeline implements agpm's install/update/validate orchestrator:
// the staged state machine that turns a manifest into a resolved lockfile
// and a materialized project tree (spec.md §4.K).
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/agpm-project/agpm/pkg/cleanup"
	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/discovery"
	"github.com/agpm-project/agpm/pkg/gitdriver"
	"github.com/agpm-project/agpm/pkg/lockfile"
	"github.com/agpm-project/agpm/pkg/logger"
	"github.com/agpm-project/agpm/pkg/manifest"
	"github.com/agpm-project/agpm/pkg/resolver"
	"github.com/agpm-project/agpm/pkg/sourcecache"
)

var log = logger.New("pipeline")

// Pipeline wires together everything a staged install/update/validate run
// needs: the shared source cache, version resolver, and Git driver. One
// Pipeline is reused across runs against the same cache root.
type Pipeline struct {
	Cache    *sourcecache.Cache
	Resolver *resolver.Resolver
	Driver   *gitdriver.Driver
}

// New builds a Pipeline rooted at cacheRoot, creating it if absent.
func New(cacheRoot string) (*Pipeline, error) {
	cache, err := sourcecache.New(cacheRoot)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Cache:    cache,
		Resolver: resolver.New(cache.Driver),
		Driver:   cache.Driver,
	}, nil
}

// Options configures one pipeline run.
type Options struct {
	ProjectDir  string
	Frozen      bool     // fail rather than re-resolve if the lockfile disagrees with the manifest
	Regenerate  bool     // skip the --frozen staleness check; resolution never reads lockfile pins either way
	MaxParallel int      // 0 defaults to runtime.NumCPU()
	Filter      []string // narrow update/validate to these manifest aliases; empty means all
}

func (o Options) maxParallel() int {
	if o.MaxParallel > 0 {
		return o.MaxParallel
	}
	return runtime.NumCPU()
}

// Install runs the full install state machine: load manifest and lockfile,
// resolve sources and versions, discover transitive dependencies, render
// and patch, install, detect orphans, clean them up, then write the
// lockfile(s) — in that order, failing fast on any resolution-stage error
// and accumulating per-resource install failures without writing a stale
// lockfile (spec.md §4.K).
func (p *Pipeline) Install(ctx context.Context, opts Options) (*Report, error) {
	return p.run(ctx, opts, false)
}

// Update is Install with Regenerate set, so the --frozen staleness check
// never blocks it. Install and Update both re-resolve every dependency (or
// only opts.Filter's subset) against its manifest constraint; neither reuses
// the versions pinned in the previous lockfile.
func (p *Pipeline) Update(ctx context.Context, opts Options) (*Report, error) {
	opts.Regenerate = true
	return p.run(ctx, opts, false)
}

// ValidateRender runs resolution and rendering (state-machine steps 1-6)
// without ever writing to the project tree or the lockfile, then checks
// that every markdown link/path reference in the rendered content resolves
// to a file the corresponding install would actually produce (spec.md
// §4.K "validate --render").
func (p *Pipeline) ValidateRender(ctx context.Context, opts Options) (*Report, error) {
	return p.run(ctx, opts, true)
}

func (p *Pipeline) run(ctx context.Context, opts Options, validateOnly bool) (*Report, error) {
	manifestPath := filepath.Join(opts.ProjectDir, manifest.FileName)
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	log.Printf("loaded manifest with %d dependencies", len(m.AllDependencies()))

	// oldLock is loaded regardless of opts.Regenerate: cleanup's orphan
	// detection always needs the true prior installed state as its
	// baseline, even on `update` (spec.md §4.J). Regenerate only bypasses
	// the --frozen staleness check below, since re-resolving every
	// dependency's version fresh against its manifest constraint is what
	// both `install` and `update` already do — there is no separate
	// "respect existing pin" resolution path to skip.
	lockPath := filepath.Join(opts.ProjectDir, lockfile.FileName)
	oldLock, err := lockfile.Load(lockPath)
	if err != nil {
		return nil, err
	}
	if opts.Frozen && !opts.Regenerate {
		if reasons := lockfile.Diagnose(m, oldLock); len(reasons) > 0 {
			return nil, core.NewLockfileError(core.CodeVersionConflict, "lockfile is out of date: %v", reasons[0])
		}
	}

	privateManifestPath := filepath.Join(opts.ProjectDir, manifest.PrivateFileName)
	pm, err := manifest.LoadPrivate(privateManifestPath)
	if err != nil {
		return nil, err
	}

	expander := newSourceExpander(p.Cache, p.Resolver, m, opts.ProjectDir)
	disco := discovery.New(expander)
	result, err := disco.Run(ctx, filterManifest(m, opts.Filter))
	if err != nil {
		return nil, err
	}
	log.Printf("discovered %d resources", len(result.Resources))

	byID := map[core.ResourceId]discovery.Resolved{}
	for _, r := range result.Resources {
		byID[r.ID] = r
	}

	rn := newRenderer(expander, m, pm)
	renderedItems, err := renderAll(ctx, rn, result, byID)
	if err != nil {
		return nil, err
	}

	if validateOnly {
		report := &Report{}
		for _, item := range renderedItems {
			report.addSuccess(ResourceResult{ID: item.id, Alias: item.alias, Kind: item.kind, InstalledAt: item.installedAt, Skipped: item.skipInstall})
		}
		report.Warnings = append(report.Warnings, checkReferences(renderedItems)...)
		return report, nil
	}

	stage := newInstallStage(opts.ProjectDir, m, opts.maxParallel())
	outcomes, report := stage.run(renderedItems)

	if !report.OK() {
		log.Printf("install run failed: %d of %d resources failed", len(report.Failed), len(renderedItems))
		return report, fmt.Errorf("%d resource(s) failed to install", len(report.Failed))
	}

	// A Filter narrows discovery to a subset of manifest roots (spec.md
	// §4.K "specific resources may be narrowed via CLI filter"), so
	// outcomes only covers part of the dependency graph. Building newLock
	// from scratch would make cleanup see every un-narrowed resource as
	// orphaned and delete it. Instead the narrowed entries upsert onto a
	// copy of oldLock, and cleanup is skipped entirely: this run has no
	// sound way to tell "manifest actually dropped this" apart from "not
	// in scope this time" without re-running full discovery.
	var newLock *lockfile.LockFile
	var cleanupReport cleanup.Report
	if len(opts.Filter) > 0 && oldLock != nil {
		newLock = cloneLockfile(oldLock)
		upsertOutcomes(newLock, outcomes)
	} else {
		newLock = buildLockfile(m, outcomes)
		cleanupReport = cleanup.Run(opts.ProjectDir, oldLock, newLock)
	}
	newLock.Normalize()
	report.Removed = cleanupReport.Removed
	for _, e := range cleanupReport.Errors {
		report.Warnings = append(report.Warnings, e.Error())
	}

	if err := lockfile.Save(lockPath, newLock); err != nil {
		return report, err
	}

	privateLock := buildPrivateLockfile(outcomes)
	privateLockPath := filepath.Join(opts.ProjectDir, lockfile.PrivateFileName)
	if err := lockfile.SavePrivate(privateLockPath, privateLock); err != nil {
		return report, err
	}

	return report, nil
}

// filterManifest narrows m to only the dependencies named in filter (by
// manifest alias), across every kind, for `update`/`validate`'s optional
// resource-list argument. An empty filter returns m unchanged.
func filterManifest(m *manifest.Manifest, filter []string) *manifest.Manifest {
	if len(filter) == 0 {
		return m
	}
	want := map[string]bool{}
	for _, f := range filter {
		want[f] = true
	}
	narrowed := *m
	narrowed.Dependencies = map[core.Kind]map[string]manifest.DependencySpec{}
	for kind, byAlias := range m.Dependencies {
		for alias, spec := range byAlias {
			if want[alias] {
				if narrowed.Dependencies[kind] == nil {
					narrowed.Dependencies[kind] = map[string]manifest.DependencySpec{}
				}
				narrowed.Dependencies[kind][alias] = spec
			}
		}
	}
	return &narrowed
}

func renderAll(ctx context.Context, rn *renderer, result *discovery.Result, byID map[core.ResourceId]discovery.Resolved) ([]*rendered, error) {
	done := map[core.ResourceId]*rendered{}
	order, err := topoOrder(result)
	if err != nil {
		return nil, err
	}
	items := make([]*rendered, 0, len(order))
	for _, id := range order {
		res, ok := byID[id]
		if !ok {
			continue
		}
		r, err := rn.render(ctx, res, result.Edges[id], byID, done)
		if err != nil {
			return nil, err
		}
		done[id] = r
		items = append(items, r)
	}
	return items, nil
}

// topoOrder returns result's resources in dependency-first order (a
// resource renders only after every resource it depends on), via Kahn's
// algorithm. result.Edges forms a DAG by construction: discovery's own BFS
// rejects cycles before returning (spec.md §4.E "cycle detection").
func topoOrder(result *discovery.Result) ([]core.ResourceId, error) {
	indegree := map[core.ResourceId]int{}
	dependents := map[core.ResourceId][]core.ResourceId{}
	for _, r := range result.Resources {
		if _, ok := indegree[r.ID]; !ok {
			indegree[r.ID] = 0
		}
	}
	for id, deps := range result.Edges {
		for _, dep := range deps {
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var queue []core.ResourceId
	for _, r := range result.Resources {
		if indegree[r.ID] == 0 {
			queue = append(queue, r.ID)
		}
	}

	var order []core.ResourceId
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(result.Resources) {
		return nil, core.NewResolutionError(core.CodeDependencyCycle, "dependency graph has a cycle")
	}
	return order, nil
}

func buildLockfile(m *manifest.Manifest, outcomes []installOutcome) *lockfile.LockFile {
	lf := lockfile.New()
	upsertOutcomes(lf, outcomes)
	return lf
}

// cloneLockfile returns a new *LockFile with the same sources and resources
// as src, for the narrowed-update path that upserts onto a copy rather than
// rebuilding from scratch.
func cloneLockfile(src *lockfile.LockFile) *lockfile.LockFile {
	lf := lockfile.New()
	lf.Sources = append(lf.Sources, src.Sources...)
	for _, r := range src.AllResources() {
		lf.Upsert(r)
	}
	return lf
}

// upsertOutcomes writes each install outcome into lf as a LockedResource,
// adding its source the first time that source is seen.
func upsertOutcomes(lf *lockfile.LockFile, outcomes []installOutcome) {
	seenSources := map[string]bool{}
	for _, src := range lf.Sources {
		seenSources[src.Name] = true
	}
	for _, o := range outcomes {
		item := o.item
		entry := lockfile.LockedResource{
			Name: item.id.Name, ManifestAlias: manifestAliasIfDifferent(item.alias, item.id.Name),
			Source: item.sourceName, URL: item.sourceURL, Tool: item.tool, Kind: item.kind,
			VariantInputs: item.variantInputs, VariantHash: item.id.VariantInputsHash,
			Path:        item.spec.Path,
			InstalledAt: item.installedAt, Files: o.files,
			Version: item.version, ResolvedCommit: item.resolvedSHA,
			Checksum: item.checksum, ContextChecksum: item.contextChecksum,
			Dependencies: item.dependencies, AppliedPatches: item.appliedPatches,
			SkipInstall: item.skipInstall,
		}
		lf.Upsert(entry)
		if item.sourceName != "" && !seenSources[item.sourceName] {
			seenSources[item.sourceName] = true
			lf.Sources = append(lf.Sources, lockfile.LockedSource{
				Name: item.sourceName, URL: item.sourceURL, FetchedAt: time.Now().UTC().Format(time.RFC3339),
			})
		}
	}
}

func manifestAliasIfDifferent(alias, name string) string {
	if alias == name {
		return ""
	}
	return alias
}

func buildPrivateLockfile(outcomes []installOutcome) *lockfile.PrivateLockFile {
	pl := lockfile.NewPrivate()
	for _, o := range outcomes {
		item := o.item
		pl.Add(item.kind, item.alias, item.privatePatches)
	}
	return pl
}

// checkReferences extracts markdown link/path references from each rendered
// resource's content and verifies each resolves to an installedAt path the
// corresponding install would produce (spec.md §4.K "validate --render").
func checkReferences(items []*rendered) []string {
	installedPaths := map[string]bool{}
	for _, item := range items {
		installedPaths[item.installedAt] = true
	}

	var warnings []string
	for _, item := range items {
		if item.data == nil {
			continue
		}
		for _, ref := range extractMarkdownPaths(string(item.data)) {
			resolved := filepath.ToSlash(filepath.Join(filepath.Dir(item.installedAt), ref))
			if !installedPaths[resolved] {
				warnings = append(warnings, fmt.Sprintf("%s: reference %q does not resolve to an installed file", item.installedAt, ref))
			}
		}
	}
	return warnings
}
