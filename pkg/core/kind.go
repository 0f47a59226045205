// Package core holds the types shared by every stage of the resolution and
// installation pipeline: resource kinds, resource identity, and the variant
// input hashing used to tell apart distinct renderings of the same resource.
package core

import "fmt"

// Kind is one of the seven resource types a manifest can declare.
type Kind string

const (
	KindAgent     Kind = "agent"
	KindSnippet   Kind = "snippet"
	KindCommand   Kind = "command"
	KindScript    Kind = "script"
	KindHook      Kind = "hook"
	KindMCPServer Kind = "mcp-server"
	KindSkill     Kind = "skill"
)

// AllKinds lists every resource kind in manifest table order.
var AllKinds = []Kind{
	KindAgent, KindSnippet, KindCommand, KindScript, KindHook, KindMCPServer, KindSkill,
}

// ManifestSection is the plural TOML table name for a kind, e.g. "agents".
func (k Kind) ManifestSection() string {
	switch k {
	case KindAgent:
		return "agents"
	case KindSnippet:
		return "snippets"
	case KindCommand:
		return "commands"
	case KindScript:
		return "scripts"
	case KindHook:
		return "hooks"
	case KindMCPServer:
		return "mcp-servers"
	case KindSkill:
		return "skills"
	default:
		return string(k) + "s"
	}
}

// ParseKindSection maps a manifest/lockfile table name back to a Kind.
func ParseKindSection(section string) (Kind, bool) {
	for _, k := range AllKinds {
		if k.ManifestSection() == section {
			return k, true
		}
	}
	return "", false
}

// IsDirectory reports whether a kind materializes as a directory (skills)
// rather than a single file.
func (k Kind) IsDirectory() bool {
	return k == KindSkill
}

// DefaultTool is the tool a kind installs under absent manifest overrides.
func (k Kind) DefaultTool() string {
	if k == KindMCPServer {
		return "claude-code"
	}
	return "claude-code"
}

// DefaultInstallDir is the default install path, relative to the tool root,
// for a kind absent a `[target]` override.
func (k Kind) DefaultInstallDir() string {
	switch k {
	case KindAgent:
		return "agents"
	case KindSnippet:
		return "snippets"
	case KindCommand:
		return "commands"
	case KindScript:
		return "scripts"
	case KindHook:
		return "hooks"
	case KindMCPServer:
		return "mcp-servers"
	case KindSkill:
		return "skills"
	default:
		return string(k)
	}
}

// Valid reports whether k is one of the seven known kinds.
func (k Kind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k Kind) String() string { return string(k) }

// DependencyKey formats a reference used in LockedResource.Dependencies,
// e.g. "agents:helper" or "official/agents:helper@v1.0.0"; callers pass the
// kind's manifest section name as kindName.
func DependencyKey(sourceName, kindName string, name, version string) string {
	ref := fmt.Sprintf("%s:%s", kindName, name)
	if sourceName != "" {
		ref = fmt.Sprintf("%s/%s", sourceName, ref)
	}
	if version != "" {
		ref = fmt.Sprintf("%s@%s", ref, version)
	}
	return ref
}
