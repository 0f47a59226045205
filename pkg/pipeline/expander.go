package pipeline

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/discovery"
	"github.com/agpm-project/agpm/pkg/frontmatter"
	"github.com/agpm-project/agpm/pkg/gitdriver"
	"github.com/agpm-project/agpm/pkg/manifest"
	"github.com/agpm-project/agpm/pkg/pattern"
	"github.com/agpm-project/agpm/pkg/resolver"
	"github.com/agpm-project/agpm/pkg/sourcecache"
)

// location is everything the render/install stages need about a resolved
// resource that discovery.Resolved itself doesn't carry: where its bytes
// live and how it was matched. Indexed by ResourceId since pkg/discovery's
// Expander interface only returns identity + declared deps.
type location struct {
	alias         string
	spec          frontmatter.DependencySpec
	sourceName    string
	sourceURL     string
	bareDir       string // "" for local resources
	base          string // directory bytes are read relative to: a worktree dir, or the project dir for local resources
	matchPath     string // path within base
	globPrefix    string
	isDir         bool
	version       string // display string for the lockfile
	resolvedSHA   string // "" for local
	variantHash   string
	variantInputs map[string]any
}

// sourceExpander implements discovery.Expander by composing the source
// cache, version resolver, and pattern expander against a project's
// manifest, and records each resolution's on-disk location for the later
// render/install stages (spec.md §4.K steps 3-5: ResolveSources,
// ResolveVersions, Expand&Discover).
type sourceExpander struct {
	cache      *sourcecache.Cache
	resolver   *resolver.Resolver
	manifest   *manifest.Manifest
	projectDir string

	mu       sync.Mutex
	bareDirs map[string]string                    // source url -> bare dir
	lsTrees  map[string][]gitdriver.LsTreeEntry    // "bareDir\x00sha" -> entries
	versions map[string]*resolver.ResolvedVersion  // "url\x00constraint" -> resolved
	locs     map[core.ResourceId]*location
}

func newSourceExpander(cache *sourcecache.Cache, res *resolver.Resolver, m *manifest.Manifest, projectDir string) *sourceExpander {
	return &sourceExpander{
		cache:      cache,
		resolver:   res,
		manifest:   m,
		projectDir: projectDir,
		bareDirs:   map[string]string{},
		lsTrees:    map[string][]gitdriver.LsTreeEntry{},
		versions:   map[string]*resolver.ResolvedVersion{},
		locs:       map[core.ResourceId]*location{},
	}
}

func (e *sourceExpander) location(id core.ResourceId) (*location, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	loc, ok := e.locs[id]
	return loc, ok
}

func (e *sourceExpander) putLocation(id core.ResourceId, loc *location) {
	e.mu.Lock()
	e.locs[id] = loc
	e.mu.Unlock()
}

// Expand resolves one WorkItem (a manifest alias or a discovered transitive
// dependency) into every concrete resource it produces.
func (e *sourceExpander) Expand(ctx context.Context, item discovery.WorkItem) ([]discovery.Resolved, error) {
	spec := item.Spec
	tool := spec.Tool
	if tool == "" {
		tool = item.Kind.DefaultTool()
	}
	variant := core.VariantInputs(spec.TemplateVars)
	variantHash := ""
	if len(spec.TemplateVars) > 0 {
		variantHash = variant.Hash()
	}

	if spec.Source == "" {
		return e.expandLocal(item, tool, variantHash)
	}

	url, ok := e.manifest.Sources[spec.Source]
	if !ok {
		return nil, core.NewManifestError(core.CodeOther, "dependency %q references undeclared source %q", item.Alias, spec.Source)
	}

	bareDir, err := e.ensureSource(ctx, spec.Source, url)
	if err != nil {
		return nil, err
	}

	rv, err := e.resolveVersion(ctx, bareDir, url, spec)
	if err != nil {
		return nil, err
	}

	entries, err := e.lsTree(ctx, bareDir, rv.SHA)
	if err != nil {
		return nil, err
	}

	if item.Kind.IsDirectory() {
		return e.expandDirectory(item, tool, spec.Source, url, bareDir, rv, entries, variantHash, spec.TemplateVars)
	}

	expansions, err := pattern.Expand(entries, "", spec.Path)
	if err != nil {
		return nil, err
	}

	globPrefix := globPrefixDir(spec.Path)
	out := make([]discovery.Resolved, 0, len(expansions))
	for _, exp := range expansions {
		id := core.ResourceId{Name: exp.CanonicalName, Source: spec.Source, Tool: tool, Kind: item.Kind, VariantInputsHash: variantHash}
		raw, err := e.cache.Driver.Show(ctx, bareDir, rv.SHA, exp.Path)
		if err != nil {
			return nil, err
		}
		declared, err := declaredFrom(raw)
		if err != nil {
			return nil, err
		}
		e.putLocation(id, &location{
			alias: item.Alias, spec: spec, sourceName: spec.Source, sourceURL: url,
			bareDir: bareDir, base: "", matchPath: exp.Path, globPrefix: globPrefix,
			version: rv.Display, resolvedSHA: rv.SHA, variantHash: variantHash, variantInputs: spec.TemplateVars,
		})
		out = append(out, discovery.Resolved{ID: id, Kind: item.Kind, Alias: item.Alias, Spec: spec, Declared: declared})
	}
	return out, nil
}

func (e *sourceExpander) expandDirectory(item discovery.WorkItem, tool, sourceName, url, bareDir string, rv *resolver.ResolvedVersion, entries []gitdriver.LsTreeEntry, variantHash string, variantInputs map[string]any) ([]discovery.Resolved, error) {
	prefix := strings.TrimSuffix(item.Spec.Path, "/")
	var found bool
	for _, en := range entries {
		if en.Path == prefix || strings.HasPrefix(en.Path, prefix+"/") {
			found = true
			break
		}
	}
	if !found {
		return nil, core.NewResolutionError(core.CodeResourceNotFound, "directory %q not found", prefix)
	}
	name := strings.ToLower(path.Base(prefix))
	id := core.ResourceId{Name: name, Source: sourceName, Tool: tool, Kind: item.Kind, VariantInputsHash: variantHash}
	e.putLocation(id, &location{
		alias: item.Alias, spec: item.Spec, sourceName: sourceName, sourceURL: url,
		bareDir: bareDir, base: "", matchPath: prefix, isDir: true,
		version: rv.Display, resolvedSHA: rv.SHA, variantHash: variantHash, variantInputs: variantInputs,
	})
	// Skill directories declare dependencies/template_vars in SKILL.md's
	// frontmatter, same as a single-file resource.
	var declared *frontmatter.Declared
	skillMD := path.Join(prefix, "SKILL.md")
	for _, en := range entries {
		if en.Path == skillMD {
			raw, err := e.cache.Driver.Show(context.Background(), bareDir, rv.SHA, skillMD)
			if err == nil {
				declared, _ = declaredFrom(raw)
			}
			break
		}
	}
	return []discovery.Resolved{{ID: id, Kind: item.Kind, Alias: item.Alias, Spec: item.Spec, Declared: declared}}, nil
}

func (e *sourceExpander) expandLocal(item discovery.WorkItem, tool, variantHash string) ([]discovery.Resolved, error) {
	spec := item.Spec
	full := filepath.Join(e.projectDir, spec.Path)

	info, err := os.Stat(full)
	if err != nil {
		return nil, core.NewResolutionError(core.CodeResourceNotFound, "local path %q: %v", spec.Path, err)
	}

	if item.Kind.IsDirectory() || info.IsDir() {
		name := strings.ToLower(path.Base(filepath.ToSlash(spec.Path)))
		id := core.ResourceId{Name: name, Tool: tool, Kind: item.Kind, VariantInputsHash: variantHash}
		e.putLocation(id, &location{
			alias: item.Alias, spec: spec, base: e.projectDir, matchPath: filepath.ToSlash(spec.Path), isDir: true,
			variantHash: variantHash, variantInputs: spec.TemplateVars,
		})
		var declared *frontmatter.Declared
		skillMD := filepath.Join(full, "SKILL.md")
		if raw, err := os.ReadFile(skillMD); err == nil {
			declared, _ = declaredFrom(raw)
		}
		return []discovery.Resolved{{ID: id, Kind: item.Kind, Alias: item.Alias, Spec: spec, Declared: declared}}, nil
	}

	if pattern.IsWildcard(spec.Path) {
		entries, err := localLsTree(e.projectDir)
		if err != nil {
			return nil, err
		}
		expansions, err := pattern.Expand(entries, "", spec.Path)
		if err != nil {
			return nil, err
		}
		globPrefix := globPrefixDir(spec.Path)
		out := make([]discovery.Resolved, 0, len(expansions))
		for _, exp := range expansions {
			id := core.ResourceId{Name: exp.CanonicalName, Tool: tool, Kind: item.Kind, VariantInputsHash: variantHash}
			raw, err := os.ReadFile(filepath.Join(e.projectDir, filepath.FromSlash(exp.Path)))
			if err != nil {
				return nil, core.NewResolutionError(core.CodeResourceNotFound, "reading %q: %v", exp.Path, err)
			}
			declared, err := declaredFrom(raw)
			if err != nil {
				return nil, err
			}
			e.putLocation(id, &location{
				alias: item.Alias, spec: spec, base: e.projectDir, matchPath: exp.Path, globPrefix: globPrefix,
				variantHash: variantHash, variantInputs: spec.TemplateVars,
			})
			out = append(out, discovery.Resolved{ID: id, Kind: item.Kind, Alias: item.Alias, Spec: spec, Declared: declared})
		}
		return out, nil
	}

	name := canonicalLocalName(spec.Path)
	id := core.ResourceId{Name: name, Tool: tool, Kind: item.Kind, VariantInputsHash: variantHash}
	raw, err := os.ReadFile(full)
	if err != nil {
		return nil, core.NewResolutionError(core.CodeResourceNotFound, "reading %q: %v", spec.Path, err)
	}
	declared, err := declaredFrom(raw)
	if err != nil {
		return nil, err
	}
	e.putLocation(id, &location{
		alias: item.Alias, spec: spec, base: e.projectDir, matchPath: filepath.ToSlash(spec.Path), globPrefix: path.Dir(filepath.ToSlash(spec.Path)),
		variantHash: variantHash, variantInputs: spec.TemplateVars,
	})
	return []discovery.Resolved{{ID: id, Kind: item.Kind, Alias: item.Alias, Spec: spec, Declared: declared}}, nil
}

func canonicalLocalName(relPath string) string {
	slash := filepath.ToSlash(relPath)
	ext := path.Ext(slash)
	return strings.ToLower(strings.TrimSuffix(slash, ext))
}

func declaredFrom(raw []byte) (*frontmatter.Declared, error) {
	split, err := frontmatter.Split(string(raw))
	if err != nil {
		return nil, err
	}
	if len(split.Frontmatter) == 0 {
		return nil, nil
	}
	return frontmatter.ParseDeclared(split.Frontmatter)
}

func (e *sourceExpander) ensureSource(ctx context.Context, name, url string) (string, error) {
	e.mu.Lock()
	if bare, ok := e.bareDirs[url]; ok {
		e.mu.Unlock()
		return bare, nil
	}
	e.mu.Unlock()

	bare, err := e.cache.EnsureSource(ctx, url)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	e.bareDirs[url] = bare
	e.mu.Unlock()
	return bare, nil
}

func (e *sourceExpander) lsTree(ctx context.Context, bareDir, sha string) ([]gitdriver.LsTreeEntry, error) {
	key := bareDir + "\x00" + sha
	e.mu.Lock()
	if entries, ok := e.lsTrees[key]; ok {
		e.mu.Unlock()
		return entries, nil
	}
	e.mu.Unlock()

	entries, err := e.cache.Driver.LsTree(ctx, bareDir, sha)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.lsTrees[key] = entries
	e.mu.Unlock()
	return entries, nil
}

func (e *sourceExpander) resolveVersion(ctx context.Context, bareDir, url string, spec frontmatter.DependencySpec) (*resolver.ResolvedVersion, error) {
	c, key := constraintFromSpec(spec)
	cacheKey := url + "\x00" + key
	e.mu.Lock()
	if rv, ok := e.versions[cacheKey]; ok {
		e.mu.Unlock()
		return rv, nil
	}
	e.mu.Unlock()

	rv, err := e.resolver.Resolve(ctx, bareDir, c)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.versions[cacheKey] = rv
	e.mu.Unlock()
	return rv, nil
}

// constraintFromSpec builds a resolver.Constraint from a dependency spec's
// single version selector. A `version` field that parses as a SemVer range
// operator expression is treated as a Range; otherwise it is an exact tag
// (spec.md §3 "exactly one of: version constraint, branch, rev" does not
// distinguish the two syntactically, so the disambiguation mirrors the
// version resolver's own tag-vs-range handling in §4.C).
func constraintFromSpec(spec frontmatter.DependencySpec) (resolver.Constraint, string) {
	switch {
	case spec.Version != "":
		if looksLikeRange(spec.Version) {
			return resolver.Constraint{Range: spec.Version}, "range:" + spec.Version
		}
		return resolver.Constraint{Tag: spec.Version}, "tag:" + spec.Version
	case spec.Branch != "":
		return resolver.Constraint{Branch: spec.Branch}, "branch:" + spec.Branch
	case spec.Rev != "":
		return resolver.Constraint{Rev: spec.Rev}, "rev:" + spec.Rev
	default:
		return resolver.Constraint{}, ""
	}
}

func looksLikeRange(v string) bool {
	return strings.ContainsAny(v, "^~<>=*")
}

// localLsTree enumerates every regular file under root as a pseudo ls-tree,
// so local (non-Git) sources can reuse pkg/pattern's glob-matching.
func localLsTree(root string) ([]gitdriver.LsTreeEntry, error) {
	var entries []gitdriver.LsTreeEntry
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		entries = append(entries, gitdriver.LsTreeEntry{Path: filepath.ToSlash(rel), Mode: "100644"})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}
