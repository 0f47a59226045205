package pipeline

import (
	"regexp"
	"strings"
)

// markdownLinkPattern matches inline markdown links and images:
// [text](target) / ![alt](target), capturing target.
var markdownLinkPattern = regexp.MustCompile(`!?\[[^\]]*\]\(([^)\s]+)\)`)

// extractMarkdownPaths returns every relative, local markdown-link target in
// content: external URLs, anchors, and absolute paths are excluded since
// `validate --render` only checks references an install actually controls
// (spec.md §4.K "checks each resolves to a file that will exist post-install").
func extractMarkdownPaths(content string) []string {
	var paths []string
	for _, m := range markdownLinkPattern.FindAllStringSubmatch(content, -1) {
		target := m[1]
		if isExternalOrAnchor(target) {
			continue
		}
		paths = append(paths, target)
	}
	return paths
}

func isExternalOrAnchor(target string) bool {
	if target == "" || strings.HasPrefix(target, "#") {
		return true
	}
	if strings.HasPrefix(target, "/") {
		return true
	}
	for _, scheme := range []string{"http://", "https://", "mailto:", "ftp://"} {
		if strings.HasPrefix(target, scheme) {
			return true
		}
	}
	return false
}
