package stringutil

import "strings"

// NormalizeResourceAlias strips a trailing resource-file extension from a
// user-supplied alias. Aliases are plain identifiers; a user typing the
// filename instead (e.g. "helper.md") shouldn't end up with the extension
// baked into the manifest key.
//
//	NormalizeResourceAlias("helper")        // returns "helper"
//	NormalizeResourceAlias("helper.md")     // returns "helper"
//	NormalizeResourceAlias("my.agent.md")   // returns "my.agent"
func NormalizeResourceAlias(alias string) string {
	for _, ext := range []string{".md", ".py", ".sh", ".json"} {
		if strings.HasSuffix(alias, ext) {
			return strings.TrimSuffix(alias, ext)
		}
	}
	return alias
}
