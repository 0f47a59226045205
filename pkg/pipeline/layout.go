package pipeline

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/manifest"
)

// toolRootDir returns the base directory a tool's artifacts live under,
// relative to the project root: the `[tools.<tool>].path` override if set,
// else the tool's own on-disk convention (spec.md Glossary "tool root
// (.claude/ et al.)"). Only "claude-code" has an established convention in
// scope today; any other tool name gets the generalized ".<tool>" form.
func toolRootDir(m *manifest.Manifest, tool string) string {
	if tc, ok := m.Tools[tool]; ok && tc.Path != "" {
		return tc.Path
	}
	if tool == "claude-code" || tool == "" {
		return ".claude"
	}
	return "." + tool
}

// kindInstallDir returns the directory a kind installs under, relative to
// the tool root: a per-tool `[tools.<tool>.resources.<kind>]` override,
// else a top-level `[target]` override, else the kind's own default
// (spec.md §3 "default install path that the tool config may override").
func kindInstallDir(m *manifest.Manifest, tool string, kind core.Kind) string {
	if tc, ok := m.Tools[tool]; ok {
		if rc, ok := tc.Resources[kind.ManifestSection()]; ok && rc.Path != "" {
			return rc.Path
		}
	}
	if v := targetOverride(m.Target, kind); v != "" {
		return v
	}
	return kind.DefaultInstallDir()
}

func targetOverride(t manifest.TargetConfig, kind core.Kind) string {
	switch kind {
	case core.KindAgent:
		return t.Agents
	case core.KindSnippet:
		return t.Snippets
	case core.KindCommand:
		return t.Commands
	case core.KindScript:
		return t.Scripts
	case core.KindHook:
		return t.Hooks
	case core.KindMCPServer:
		return t.MCPServers
	case core.KindSkill:
		return t.Skills
	default:
		return ""
	}
}

// mergeTargetPath returns the tool-root-relative merge-target file for
// (tool, kind), and whether one is configured at all (spec.md §4.H
// "merge-target tools").
func mergeTargetPath(m *manifest.Manifest, tool string, kind core.Kind) (string, bool) {
	tc, ok := m.Tools[tool]
	if !ok {
		return "", false
	}
	rc, ok := tc.Resources[kind.ManifestSection()]
	if !ok || rc.MergeTarget == "" {
		return "", false
	}
	return rc.MergeTarget, true
}

// flattenFor combines the per-resource manifest override with the
// per-tool-per-kind default.
func flattenFor(m *manifest.Manifest, tool string, kind core.Kind, specFlatten bool) bool {
	if specFlatten {
		return true
	}
	if tc, ok := m.Tools[tool]; ok {
		if rc, ok := tc.Resources[kind.ManifestSection()]; ok {
			return rc.Flatten
		}
	}
	return false
}

// globPrefixDir returns the non-wildcard leading directory of a path
// expression, e.g. "agents/ai/*.md" -> "agents/ai", "agents/**/*.md" ->
// "agents", "agents/helper.md" -> "agents". Used to compute a match's
// installed path relative to the expression's own root rather than the
// repository root, so unrelated leading directories don't leak into
// `installed_at`.
func globPrefixDir(expr string) string {
	parts := strings.Split(expr, "/")
	end := len(parts) - 1 // always drop the last segment (file or final glob element)
	for i, p := range parts[:end] {
		if strings.ContainsAny(p, "*?[") {
			end = i
			break
		}
	}
	return strings.Join(parts[:end], "/")
}

// relativeInstallName derives the file (or directory) name a matched path
// installs under, relative to its glob's own root, honoring flatten and
// suffixing the variant short hash when the resource has non-empty
// variant_inputs (spec.md §4.E.5 "suffixed by default").
func relativeInstallName(matchPath, globPrefix string, flatten bool, variantHash string) string {
	rel := matchPath
	if globPrefix != "" {
		rel = strings.TrimPrefix(rel, globPrefix+"/")
	}
	if flatten {
		rel = path.Base(matchPath)
	}
	if variantHash != "" {
		ext := path.Ext(rel)
		stem := strings.TrimSuffix(rel, ext)
		rel = fmt.Sprintf("%s-%s%s", stem, shortHash(variantHash), ext)
	}
	return filepath.FromSlash(rel)
}

// shortHash truncates a full hex digest to the 8-character form spec.md
// §4.E.5 suffixes variant filenames with.
func shortHash(hash string) string {
	if len(hash) <= 8 {
		return hash
	}
	return hash[:8]
}

// resolveInstalledAt joins the tool root, kind directory, and relative file
// name into a project-relative installed_at path, honoring a per-dependency
// `target` override that replaces the kind directory and file name wholesale.
func resolveInstalledAt(m *manifest.Manifest, tool string, kind core.Kind, target, relName string) string {
	root := toolRootDir(m, tool)
	if target != "" {
		return filepath.ToSlash(filepath.Join(root, target))
	}
	return filepath.ToSlash(filepath.Join(root, kindInstallDir(m, tool, kind), relName))
}
