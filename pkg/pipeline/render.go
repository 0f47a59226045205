package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/discovery"
	"github.com/agpm-project/agpm/pkg/frontmatter"
	"github.com/agpm-project/agpm/pkg/installer"
	"github.com/agpm-project/agpm/pkg/manifest"
	"github.com/agpm-project/agpm/pkg/patch"
	"github.com/agpm-project/agpm/pkg/sliceutil"
	"github.com/agpm-project/agpm/pkg/stringutil"
	"github.com/agpm-project/agpm/pkg/template"
)

// checksumBytes is the lockfile's "sha256:<hex>" form of a single file's
// content (spec.md §3). installer.InstallFile computes the same bare-hex
// digest for its own write-verification purposes; this is the prefixed form
// the lockfile persists.
func checksumBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// checksumDir mirrors installer.InstallDirectory's composite digest (a
// SHA-256 over sorted (relpath, \0, bytes) tuples) so the lockfile checksum
// is known before the directory is actually written.
func checksumDir(entries []installer.DirEntry) string {
	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(filepath.ToSlash(filepath.Clean(e.RelPath))))
		h.Write([]byte{0})
		h.Write(e.Data)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// rendered is the render/patch stage's output for one resource: the bytes
// (or directory entries) ready to hand to the installer, plus the metadata
// the lockfile writer needs (spec.md §4.F, §4.G).
type rendered struct {
	id              core.ResourceId
	alias           string
	kind            core.Kind
	spec            frontmatter.DependencySpec
	sourceName      string
	sourceURL       string
	version         string
	resolvedSHA     string
	installedAt     string
	skipInstall     bool
	executable      bool
	data            []byte // single-file resources
	dirEntries      []installer.DirEntry
	checksum        string
	contextChecksum string // "" unless templated
	appliedPatches  map[string]any
	privatePatches  map[string]any // values from agpm.private.toml; kept out of appliedPatches
	dependencies    []string
	mergeTarget     string // "" unless this kind/tool has one configured
	tool            string
	variantInputs   map[string]any
}

type renderer struct {
	expander *sourceExpander
	manifest *manifest.Manifest
	private  *manifest.PrivateManifest
}

func newRenderer(e *sourceExpander, m *manifest.Manifest, pm *manifest.PrivateManifest) *renderer {
	return &renderer{expander: e, manifest: m, private: pm}
}

// render turns one discovery.Resolved node plus its already-rendered
// dependency contents into a rendered artifact. already must contain every
// entry r.depends on that install=false, keyed by ResourceId, so their
// bytes can be inlined into the template context (spec.md §4.F).
func (rn *renderer) render(ctx context.Context, res discovery.Resolved, edges []core.ResourceId, byID map[core.ResourceId]discovery.Resolved, already map[core.ResourceId]*rendered) (*rendered, error) {
	loc, ok := rn.expander.location(res.ID)
	if !ok {
		return nil, core.NewTemplateError(core.CodeOther, "no resolved location for %s", res.ID.String())
	}

	tool := loc.spec.Tool
	if tool == "" {
		tool = res.Kind.DefaultTool()
	}

	if loc.isDir {
		return rn.renderDirectory(ctx, res, loc, tool)
	}

	raw, err := rn.readFile(ctx, loc)
	if err != nil {
		return nil, err
	}

	if res.Kind == core.KindMCPServer {
		return rn.renderMCPServer(res, loc, tool, raw)
	}

	split, err := frontmatter.Split(string(raw))
	if err != nil {
		return nil, core.NewTemplateError(core.CodeOther, "splitting frontmatter for %s: %v", res.ID.String(), err)
	}

	patched := patch.ForAlias(rn.manifest, rn.private, res.Kind, loc.alias, split.Frontmatter)

	flatten := flattenFor(rn.manifest, tool, res.Kind, loc.spec.Flatten)
	relName := relativeInstallName(loc.matchPath, loc.globPrefix, flatten, loc.variantHash)
	installedAt := resolveInstalledAt(rn.manifest, tool, res.Kind, loc.spec.Target, relName)

	mergeTarget, _ := mergeTargetPath(rn.manifest, tool, res.Kind)

	body := split.Body
	templated := sliceutil.ContainsAny(body, "{{", "{%")
	var contextChecksum string
	if templated {
		tctx, err := rn.buildContext(res, loc, edges, byID, already, installedAt)
		if err != nil {
			return nil, err
		}
		body, err = template.Render(body, tctx, template.Options{Reader: nil, MaxContentBytes: 1 << 20})
		if err != nil {
			return nil, core.NewTemplateError(core.CodeOther, "rendering %s: %v", res.ID.String(), err)
		}
		// template control blocks routinely leave trailing blank lines and
		// ragged line-endings; normalize so re-renders of unchanged input
		// produce a stable checksum.
		body = stringutil.NormalizeWhitespace(body)
		contextChecksum = tctx.Checksum()
	}

	final, err := frontmatter.Render(patched.Frontmatter, body)
	if err != nil {
		return nil, core.NewTemplateError(core.CodeOther, "re-assembling %s: %v", res.ID.String(), err)
	}
	data := []byte(final)

	deps := dependencyRefs(rn.manifest, edges, byID)

	return &rendered{
		id: res.ID, alias: loc.alias, kind: res.Kind, spec: loc.spec,
		sourceName: loc.sourceName, sourceURL: loc.sourceURL, version: loc.version, resolvedSHA: loc.resolvedSHA,
		installedAt: installedAt, skipInstall: !loc.spec.InstallOrDefault(), executable: res.Kind == core.KindScript,
		data: data, checksum: checksumBytes(data), contextChecksum: contextChecksum,
		appliedPatches: patch.AppliedPatchValues(rn.manifest.Patch[res.Kind][loc.alias], patched.ProjectKeys),
		privatePatches: patch.AppliedPatchValues(patched.Frontmatter, patched.PrivateKeys),
		dependencies:   deps, mergeTarget: mergeTarget, tool: tool, variantInputs: loc.variantInputs,
	}, nil
}

// renderMCPServer handles the mcp-server kind's own content shape: the whole
// file is a single JSON object (no markdown frontmatter delimiters), patched
// by merging the project/private patch tables directly into the decoded
// object rather than into a frontmatter block (spec.md §4.G, §4.H
// "Merge-target tools").
func (rn *renderer) renderMCPServer(res discovery.Resolved, loc *location, tool string, raw []byte) (*rendered, error) {
	var original map[string]any
	if err := json.Unmarshal(raw, &original); err != nil {
		return nil, core.NewTemplateError(core.CodeOther, "mcp-server %s: %v", res.ID.String(), err)
	}

	patched := patch.ForAlias(rn.manifest, rn.private, res.Kind, loc.alias, original)

	merged, err := json.MarshalIndent(patched.Frontmatter, "", "  ")
	if err != nil {
		return nil, core.NewTemplateError(core.CodeOther, "mcp-server %s: %v", res.ID.String(), err)
	}
	if _, err := frontmatter.ParseMCPServerPayload(merged); err != nil {
		return nil, err
	}

	flatten := flattenFor(rn.manifest, tool, res.Kind, loc.spec.Flatten)
	relName := relativeInstallName(loc.matchPath, loc.globPrefix, flatten, loc.variantHash)
	installedAt := resolveInstalledAt(rn.manifest, tool, res.Kind, loc.spec.Target, relName)
	mergeTarget, _ := mergeTargetPath(rn.manifest, tool, res.Kind)

	return &rendered{
		id: res.ID, alias: loc.alias, kind: res.Kind, spec: loc.spec,
		sourceName: loc.sourceName, sourceURL: loc.sourceURL, version: loc.version, resolvedSHA: loc.resolvedSHA,
		installedAt: installedAt, skipInstall: !loc.spec.InstallOrDefault(),
		data: merged, checksum: checksumBytes(merged),
		appliedPatches: patch.AppliedPatchValues(rn.manifest.Patch[res.Kind][loc.alias], patched.ProjectKeys),
		privatePatches: patch.AppliedPatchValues(patched.Frontmatter, patched.PrivateKeys),
		mergeTarget:    mergeTarget, tool: tool, variantInputs: loc.variantInputs,
	}, nil
}

func (rn *renderer) renderDirectory(ctx context.Context, res discovery.Resolved, loc *location, tool string) (*rendered, error) {
	var entries []installer.DirEntry
	var err error
	if loc.bareDir != "" {
		entries, err = rn.readDirFromSource(ctx, loc)
	} else {
		entries, err = readDirFromDisk(filepath.Join(loc.base, filepath.FromSlash(loc.matchPath)))
	}
	if err != nil {
		return nil, err
	}

	flatten := flattenFor(rn.manifest, tool, res.Kind, loc.spec.Flatten)
	name := strings.ToLower(filepath.Base(loc.matchPath))
	relName := name
	if loc.variantHash != "" {
		relName = fmt.Sprintf("%s-%s", name, shortHash(loc.variantHash))
	}
	_ = flatten // directories are never flattened: spec.md §4.E skills install as a unit
	installedAt := resolveInstalledAt(rn.manifest, tool, res.Kind, loc.spec.Target, relName)

	sort.Slice(entries, func(i, j int) bool { return entries[i].RelPath < entries[j].RelPath })
	checksum := checksumDir(entries)

	return &rendered{
		id: res.ID, alias: loc.alias, kind: res.Kind, spec: loc.spec,
		sourceName: loc.sourceName, sourceURL: loc.sourceURL, version: loc.version, resolvedSHA: loc.resolvedSHA,
		installedAt: installedAt, skipInstall: !loc.spec.InstallOrDefault(),
		dirEntries: entries, checksum: checksum, tool: tool, variantInputs: loc.variantInputs,
		dependencies: nil,
	}, nil
}

func (rn *renderer) readFile(ctx context.Context, loc *location) ([]byte, error) {
	if loc.bareDir == "" {
		return os.ReadFile(filepath.Join(loc.base, filepath.FromSlash(loc.matchPath)))
	}
	return rn.expander.cache.Driver.Show(ctx, loc.bareDir, loc.resolvedSHA, loc.matchPath)
}

func (rn *renderer) readDirFromSource(ctx context.Context, loc *location) ([]installer.DirEntry, error) {
	worktree, err := rn.expander.cache.GetOrCreateWorktree(ctx, loc.sourceURL, loc.resolvedSHA)
	if err != nil {
		return nil, err
	}
	return readDirFromDisk(filepath.Join(worktree, filepath.FromSlash(loc.matchPath)))
}

func readDirFromDisk(root string) ([]installer.DirEntry, error) {
	var entries []installer.DirEntry
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		entries = append(entries, installer.DirEntry{RelPath: filepath.ToSlash(rel), Data: data})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// buildContext assembles the template.Context for one resource: project
// settings, template variables (only the dependency spec's own template_vars;
// no project-level defaults or frontmatter template_vars are merged in), and
// a deps.<kind>.<alias>
// entry for every declared dependency, with Content populated only for the
// install=false ones (spec.md §4.F).
func (rn *renderer) buildContext(res discovery.Resolved, loc *location, edges []core.ResourceId, byID map[core.ResourceId]discovery.Resolved, already map[core.ResourceId]*rendered, installedAt string) (*template.Context, error) {
	tctx := template.NewContext()
	tctx.Project = rn.manifest.Project
	for k, v := range loc.variantInputs {
		tctx.Vars[k] = v
	}
	tctx.Self = template.SelfContext{Name: res.ID.Name, Version: loc.version, Source: loc.sourceName}

	for _, depID := range edges {
		dep, ok := byID[depID]
		if !ok {
			continue
		}
		depLoc, ok := rn.expander.location(depID)
		if !ok {
			continue
		}
		key := depID.Kind.ManifestSection() + "." + dep.Alias
		entry := template.DepContext{
			Path:        depLoc.matchPath,
			InstalledAt: "",
			Version:     depLoc.version,
			Source:      depLoc.sourceName,
		}
		if r, ok := already[depID]; ok {
			entry.InstalledAt = r.installedAt
			if r.skipInstall {
				content := string(r.data)
				entry.Content = &content
			}
		}
		tctx.Deps[key] = entry
	}

	return tctx, nil
}

func dependencyRefs(m *manifest.Manifest, edges []core.ResourceId, byID map[core.ResourceId]discovery.Resolved) []string {
	refs := make([]string, 0, len(edges))
	for _, id := range edges {
		dep, ok := byID[id]
		if !ok {
			continue
		}
		refs = append(refs, core.DependencyKey(id.Source, id.Kind.ManifestSection(), id.Name, dep.Spec.Version))
	}
	sort.Strings(refs)
	return refs
}
