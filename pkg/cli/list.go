package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/agpm-project/agpm/pkg/console"
	"github.com/agpm-project/agpm/pkg/constants"
	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/lockfile"
	"github.com/agpm-project/agpm/pkg/manifest"
	"github.com/agpm-project/agpm/pkg/sliceutil"
)

// listRow is one resource's flattened view, shared by every list --format.
type listRow struct {
	Kind        core.Kind `json:"kind" yaml:"kind"`
	Name        string    `json:"name" yaml:"name"`
	Alias       string    `json:"alias,omitempty" yaml:"alias,omitempty"`
	Source      string    `json:"source,omitempty" yaml:"source,omitempty"`
	Version     string    `json:"version,omitempty" yaml:"version,omitempty"`
	Commit      string    `json:"commit,omitempty" yaml:"commit,omitempty"`
	InstalledAt string    `json:"installed_at,omitempty" yaml:"installed_at,omitempty"`
	Skipped     bool      `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// NewListCommand builds `agpm list`.
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show installed (or declared) resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			fromManifest, _ := cmd.Flags().GetBool("manifest")
			typeFilter, _ := cmd.Flags().GetString("type")
			sourceFilter, _ := cmd.Flags().GetString("source")
			search, _ := cmd.Flags().GetString("search")
			detailed, _ := cmd.Flags().GetBool("detailed")
			sortField, _ := cmd.Flags().GetString("sort")
			kindFlags := kindFlagFilter(cmd)

			if !sliceutil.Contains([]string{"table", "json", "yaml", "compact", "simple"}, format) {
				exitWithCode(fmt.Errorf("unknown --format %q", format), constants.ExitInvocationError)
			}

			dir, err := projectDir()
			if err != nil {
				exitWithCode(err, exitCodeForError(err))
			}

			var rows []listRow
			if fromManifest {
				rows, err = rowsFromManifest(dir)
			} else {
				rows, err = rowsFromLockfile(dir)
			}
			if err != nil {
				exitWithCode(err, exitCodeForError(err))
			}

			rows = filterRows(rows, typeFilter, sourceFilter, search, kindFlags)
			sortRows(rows, sortField)

			printRows(rows, format, detailed)
			return nil
		},
	}

	cmd.Flags().String("format", "table", "output format: table|json|yaml|compact|simple")
	cmd.Flags().Bool("manifest", false, "list declared dependencies from agpm.toml instead of resolved ones from agpm.lock")
	cmd.Flags().String("type", "", "filter by resource kind")
	cmd.Flags().String("source", "", "filter by source name")
	cmd.Flags().String("search", "", "filter by substring match on name/alias")
	cmd.Flags().Bool("detailed", false, "include version, commit, and install path columns")
	cmd.Flags().String("sort", "name", "sort field: name|kind|source|version")
	addKindOnlyFlags(cmd)

	return cmd
}

// addKindOnlyFlags registers the `--agents`/`--snippets`/... boolean
// shortcuts spec.md §6 lists alongside list/tree's `--type` flag.
func addKindOnlyFlags(cmd *cobra.Command) {
	for _, k := range core.AllKinds {
		cmd.Flags().Bool(k.ManifestSection(), false, fmt.Sprintf("show only %s", k.ManifestSection()))
	}
}

func kindFlagFilter(cmd *cobra.Command) map[core.Kind]bool {
	active := map[core.Kind]bool{}
	any := false
	for _, k := range core.AllKinds {
		if v, _ := cmd.Flags().GetBool(k.ManifestSection()); v {
			active[k] = true
			any = true
		}
	}
	if !any {
		return nil
	}
	return active
}

func rowsFromLockfile(dir string) ([]listRow, error) {
	lf, err := lockfile.Load(filepath.Join(dir, lockfile.FileName))
	if err != nil {
		return nil, err
	}
	if lf == nil {
		return nil, nil
	}
	var rows []listRow
	for _, r := range lf.AllResources() {
		alias := r.ManifestAlias
		if alias == "" {
			alias = r.Name
		}
		rows = append(rows, listRow{
			Kind: r.Kind, Name: r.Name, Alias: alias, Source: r.Source,
			Version: r.Version, Commit: r.ResolvedCommit, InstalledAt: r.InstalledAt, Skipped: r.SkipInstall,
		})
	}
	return rows, nil
}

func rowsFromManifest(dir string) ([]listRow, error) {
	m, err := manifest.Load(filepath.Join(dir, manifest.FileName))
	if err != nil {
		return nil, err
	}
	var rows []listRow
	for _, entry := range m.AllDependencies() {
		version := entry.Spec.Version
		if version == "" {
			version = entry.Spec.Branch
		}
		if version == "" {
			version = entry.Spec.Rev
		}
		rows = append(rows, listRow{
			Kind: entry.Kind, Name: entry.Alias, Alias: entry.Alias,
			Source: entry.Spec.Source, Version: version, Skipped: !entry.Spec.InstallOrDefault(),
		})
	}
	return rows, nil
}

func filterRows(rows []listRow, typeFilter, sourceFilter, search string, kindFlags map[core.Kind]bool) []listRow {
	var out []listRow
	for _, r := range rows {
		if typeFilter != "" && string(r.Kind) != typeFilter {
			continue
		}
		if kindFlags != nil && !kindFlags[r.Kind] {
			continue
		}
		if sourceFilter != "" && r.Source != sourceFilter {
			continue
		}
		if search != "" && !sliceutil.ContainsIgnoreCase(r.Name, search) && !sliceutil.ContainsIgnoreCase(r.Alias, search) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func sortRows(rows []listRow, field string) {
	sort.Slice(rows, func(i, j int) bool {
		switch field {
		case "kind":
			if rows[i].Kind != rows[j].Kind {
				return rows[i].Kind < rows[j].Kind
			}
		case "source":
			if rows[i].Source != rows[j].Source {
				return rows[i].Source < rows[j].Source
			}
		case "version":
			if rows[i].Version != rows[j].Version {
				return rows[i].Version < rows[j].Version
			}
		}
		return rows[i].Name < rows[j].Name
	})
}

func printRows(rows []listRow, format string, detailed bool) {
	switch format {
	case "json":
		data, _ := json.MarshalIndent(rows, "", "  ")
		fmt.Println(string(data))
	case "yaml":
		data, _ := yaml.Marshal(rows)
		fmt.Print(string(data))
	case "simple":
		for _, r := range rows {
			fmt.Println(r.Name)
		}
	case "compact":
		for _, r := range rows {
			fmt.Printf("%s:%s@%s\n", r.Kind, r.Name, firstNonEmpty(r.Version, r.Commit, "local"))
		}
	default:
		printTable(rows, detailed)
	}
}

// tableRow and tableRowDetailed are console-tagged projections of listRow:
// console.RenderStruct renders a []struct as a table by reflecting over
// these tags (header names, defaults for empty cells), so the two views
// give `list`'s --format table (and --detailed) output without a
// hand-rolled formatter.
type tableRow struct {
	Kind   string `console:"header:Kind"`
	Name   string `console:"header:Name"`
	Source string `console:"header:Source"`
	Status string `console:"header:Status,omitempty"`
}

type tableRowDetailed struct {
	Kind        string `console:"header:Kind"`
	Name        string `console:"header:Name"`
	Source      string `console:"header:Source"`
	Version     string `console:"header:Version,default:-"`
	Commit      string `console:"header:Commit"`
	InstalledAt string `console:"header:Installed At"`
	Status      string `console:"header:Status,omitempty"`
}

func printTable(rows []listRow, detailed bool) {
	if len(rows) == 0 {
		fmt.Println(console.FormatInfoMessage("no resources"))
		return
	}
	if detailed {
		view := make([]tableRowDetailed, len(rows))
		for i, r := range rows {
			view[i] = tableRowDetailed{
				Kind:        string(r.Kind),
				Name:        r.Alias,
				Source:      firstNonEmpty(r.Source, "local"),
				Version:     firstNonEmpty(r.Version, "-"),
				Commit:      shortCommit(r.Commit),
				InstalledAt: r.InstalledAt,
				Status:      skippedLabel(r.Skipped),
			}
		}
		fmt.Print(console.RenderStruct(view))
		return
	}
	view := make([]tableRow, len(rows))
	for i, r := range rows {
		view[i] = tableRow{
			Kind:   string(r.Kind),
			Name:   r.Alias,
			Source: firstNonEmpty(r.Source, "local"),
			Status: skippedLabel(r.Skipped),
		}
	}
	fmt.Print(console.RenderStruct(view))
}

func skippedLabel(skipped bool) string {
	if skipped {
		return "not installed"
	}
	return ""
}

func shortCommit(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
