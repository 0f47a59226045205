package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agpm-project/agpm/pkg/console"
	"github.com/agpm-project/agpm/pkg/constants"
	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/lockfile"
	"github.com/agpm-project/agpm/pkg/sliceutil"
)

// treeNode is one resource in the rendered dependency tree, keyed by kind
// and name so --package and --invert can both walk the same index.
type treeNode struct {
	res      lockfile.LockedResource
	children []*treeNode
	parents  []*treeNode
}

func (n *treeNode) label() string {
	alias := n.res.ManifestAlias
	if alias == "" {
		alias = n.res.Name
	}
	version := n.res.Version
	if version == "" {
		version = n.res.ResolvedCommit
	}
	if version != "" {
		return fmt.Sprintf("%s:%s@%s", n.res.Kind, alias, version)
	}
	return fmt.Sprintf("%s:%s", n.res.Kind, alias)
}

// NewTreeCommand builds `agpm tree`.
func NewTreeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show the resolved dependency tree from agpm.lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			depth, _ := cmd.Flags().GetInt("depth")
			format, _ := cmd.Flags().GetString("format")
			duplicates, _ := cmd.Flags().GetBool("duplicates")
			noDedupe, _ := cmd.Flags().GetBool("no-dedupe")
			pkgName, _ := cmd.Flags().GetString("package")
			invert, _ := cmd.Flags().GetBool("invert")
			detailed, _ := cmd.Flags().GetBool("detailed")
			kindFlags := kindFlagFilter(cmd)

			if !sliceutil.Contains([]string{"tree", "json", "text"}, format) {
				exitWithCode(fmt.Errorf("unknown --format %q", format), constants.ExitInvocationError)
			}

			dir, err := projectDir()
			if err != nil {
				exitWithCode(err, exitCodeForError(err))
			}
			lf, err := lockfile.Load(filepath.Join(dir, lockfile.FileName))
			if err != nil {
				exitWithCode(err, exitCodeForError(err))
			}
			if lf == nil {
				fmt.Println(console.FormatInfoMessage("no agpm.lock; run `agpm install` first"))
				return nil
			}

			nodes, roots := buildTree(lf)

			if duplicates {
				printDuplicates(lf.AllResources())
				return nil
			}

			if pkgName != "" {
				target := findNode(nodes, pkgName)
				if target == nil {
					exitWithCode(fmt.Errorf("resource %q not found in agpm.lock", pkgName), exitCodeForError(nil))
				}
				if invert {
					printInvert(target, "")
				} else {
					printSubtree(target, "", 0, depth, map[*treeNode]bool{}, !noDedupe)
				}
				return nil
			}

			switch format {
			case "json":
				printTreeJSON(roots)
			default:
				seen := map[*treeNode]bool{}
				for _, r := range roots {
					if kindFlags != nil && !kindFlags[r.res.Kind] {
						continue
					}
					printSubtree(r, "", 0, depth, seen, !noDedupe)
					if detailed {
						fmt.Printf("    installed at %s\n", r.res.InstalledAt)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().Int("depth", 0, "limit tree depth (0 = unlimited)")
	cmd.Flags().String("format", "tree", "output format: tree|json|text")
	cmd.Flags().Bool("duplicates", false, "list resources installed under more than one alias")
	cmd.Flags().Bool("no-dedupe", false, "print every occurrence of a shared dependency instead of collapsing repeats")
	cmd.Flags().String("package", "", "show only the subtree rooted at this resource name")
	cmd.Flags().Bool("invert", false, "show which aliases transitively depend on --package")
	cmd.Flags().Bool("detailed", false, "include install paths")
	addKindOnlyFlags(cmd)

	return cmd
}

func buildTree(lf *lockfile.LockFile) (map[string]*treeNode, []*treeNode) {
	nodes := map[string]*treeNode{}
	for _, r := range lf.AllResources() {
		nodes[nodeKey(r.Kind, r.Name)] = &treeNode{res: r}
	}
	childOf := map[string]bool{}
	for _, r := range lf.AllResources() {
		n := nodes[nodeKey(r.Kind, r.Name)]
		for _, ref := range r.Dependencies {
			kindSection, name := parseDependencyRef(ref)
			kind, ok := core.ParseKindSection(kindSection)
			if !ok {
				continue
			}
			if child, ok := nodes[nodeKey(kind, name)]; ok {
				n.children = append(n.children, child)
				child.parents = append(child.parents, n)
				childOf[nodeKey(kind, name)] = true
			}
		}
	}
	var roots []*treeNode
	for _, r := range lf.AllResources() {
		if !childOf[nodeKey(r.Kind, r.Name)] {
			roots = append(roots, nodes[nodeKey(r.Kind, r.Name)])
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].res.Name < roots[j].res.Name })
	return nodes, roots
}

func nodeKey(k core.Kind, name string) string {
	return string(k) + ":" + name
}

// parseDependencyRef splits a core.DependencyKey-formatted ref
// ("[source/]kind-section:name[@version]") back into its kind-section and
// name, ignoring the optional source prefix and version suffix — tree only
// needs identity, not the constraint that produced it.
func parseDependencyRef(ref string) (kindSection, name string) {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		ref = ref[i+1:]
	}
	if i := strings.Index(ref, "@"); i >= 0 {
		ref = ref[:i]
	}
	parts := strings.SplitN(ref, ":", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

func printSubtree(n *treeNode, prefix string, depth, maxDepth int, seen map[*treeNode]bool, dedupe bool) {
	fmt.Println(prefix + n.label())
	if maxDepth > 0 && depth+1 >= maxDepth {
		return
	}
	if dedupe {
		if seen[n] {
			return
		}
		seen[n] = true
	}
	for i, c := range n.children {
		branch := "├── "
		childPrefix := prefix + "│   "
		if i == len(n.children)-1 {
			branch = "└── "
			childPrefix = prefix + "    "
		}
		fmt.Print(prefix + branch)
		printSubtreeInline(c, childPrefix, depth+1, maxDepth, seen, dedupe)
	}
}

// printSubtreeInline prints a child node's label on the current line (the
// branch glyph was already written by the caller) then recurses.
func printSubtreeInline(n *treeNode, prefix string, depth, maxDepth int, seen map[*treeNode]bool, dedupe bool) {
	fmt.Println(n.label())
	if maxDepth > 0 && depth+1 >= maxDepth {
		return
	}
	if dedupe {
		if seen[n] {
			return
		}
		seen[n] = true
	}
	for i, c := range n.children {
		branch := "├── "
		childPrefix := prefix + "│   "
		if i == len(n.children)-1 {
			branch = "└── "
			childPrefix = prefix + "    "
		}
		fmt.Print(prefix + branch)
		printSubtreeInline(c, childPrefix, depth+1, maxDepth, seen, dedupe)
	}
}

func printInvert(n *treeNode, prefix string) {
	fmt.Println(prefix + n.label())
	for i, p := range n.parents {
		branch := "├── "
		childPrefix := prefix + "│   "
		if i == len(n.parents)-1 {
			branch = "└── "
			childPrefix = prefix + "    "
		}
		fmt.Print(prefix + branch)
		printInvert(p, childPrefix)
	}
}

func printDuplicates(resources []lockfile.LockedResource) {
	byIdentity := map[string][]string{}
	for _, r := range resources {
		key := string(r.Kind) + ":" + r.Name
		alias := r.ManifestAlias
		if alias == "" {
			alias = r.Name
		}
		if !sliceutil.Contains(byIdentity[key], alias) {
			byIdentity[key] = append(byIdentity[key], alias)
		}
	}
	found := false
	for key, aliases := range byIdentity {
		if len(aliases) <= 1 {
			continue
		}
		sort.Strings(aliases)
		fmt.Println(console.FormatWarningMessage(fmt.Sprintf("%s installed under multiple aliases: %s", key, strings.Join(aliases, ", "))))
		found = true
	}
	if !found {
		fmt.Println(console.FormatSuccessMessage("no duplicate installs"))
	}
}

func findNode(nodes map[string]*treeNode, name string) *treeNode {
	for _, n := range nodes {
		if n.res.Name == name {
			return n
		}
	}
	return nil
}

func printTreeJSON(roots []*treeNode) {
	type jsonNode struct {
		Name     string     `json:"name"`
		Kind     string     `json:"kind"`
		Version  string     `json:"version,omitempty"`
		Children []jsonNode `json:"children,omitempty"`
	}
	var toJSON func(n *treeNode) jsonNode
	toJSON = func(n *treeNode) jsonNode {
		jn := jsonNode{Name: n.res.Name, Kind: string(n.res.Kind), Version: n.res.Version}
		for _, c := range n.children {
			jn.Children = append(jn.Children, toJSON(c))
		}
		return jn
	}
	var out []jsonNode
	for _, r := range roots {
		out = append(out, toJSON(r))
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(data))
}
