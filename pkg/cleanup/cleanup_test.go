package cleanup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/lockfile"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestRunRemovesDroppedResource(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".claude/agents/old.md", "old")

	old := lockfile.New()
	old.Upsert(lockfile.LockedResource{Name: "old", Kind: core.KindAgent, InstalledAt: ".claude/agents/old.md", Checksum: "sha256:x"})

	report := Run(root, old, lockfile.New())
	require.Equal(t, []string{".claude/agents/old.md"}, report.Removed)
	require.Empty(t, report.Errors)

	_, err := os.Stat(filepath.Join(root, ".claude/agents/old.md"))
	require.True(t, os.IsNotExist(err))
}

func TestRunPrunesEmptyDirsUpToClaudeBoundary(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".claude/agents/rust/specialized/expert.md", "x")

	old := lockfile.New()
	old.Upsert(lockfile.LockedResource{Name: "expert", Kind: core.KindAgent, InstalledAt: ".claude/agents/rust/specialized/expert.md", Checksum: "sha256:x"})

	Run(root, old, lockfile.New())

	_, err := os.Stat(filepath.Join(root, ".claude", "agents"))
	require.True(t, os.IsNotExist(err), "every emptied directory up to (not including) .claude should be pruned")
	_, err = os.Stat(filepath.Join(root, ".claude"))
	require.NoError(t, err, "the .claude boundary directory itself must survive")
}

func TestRunStopsPruneAtNonEmptyDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".claude/agents/rust/expert.md", "x")
	writeFile(t, root, ".claude/agents/rust/sibling.md", "keep me")

	old := lockfile.New()
	old.Upsert(lockfile.LockedResource{Name: "expert", Kind: core.KindAgent, InstalledAt: ".claude/agents/rust/expert.md", Checksum: "sha256:x"})

	Run(root, old, lockfile.New())

	_, err := os.Stat(filepath.Join(root, ".claude", "agents", "rust", "sibling.md"))
	require.NoError(t, err)
}

func TestRunKeepsResourceStillPresentInNewLockfile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".claude/agents/kept.md", "kept")

	old := lockfile.New()
	old.Upsert(lockfile.LockedResource{Name: "kept", Kind: core.KindAgent, InstalledAt: ".claude/agents/kept.md", Checksum: "sha256:x"})
	newLock := lockfile.New()
	newLock.Upsert(lockfile.LockedResource{Name: "kept", Kind: core.KindAgent, InstalledAt: ".claude/agents/kept.md", Checksum: "sha256:x"})

	report := Run(root, old, newLock)
	require.Empty(t, report.Removed)

	_, err := os.Stat(filepath.Join(root, ".claude/agents/kept.md"))
	require.NoError(t, err)
}

func TestRunRemovesSkillDirectoryRecursively(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".claude/skills/old-skill/SKILL.md", "body")
	writeFile(t, root, ".claude/skills/old-skill/scripts/run.sh", "echo hi")

	old := lockfile.New()
	old.Upsert(lockfile.LockedResource{Name: "old-skill", Kind: core.KindSkill, InstalledAt: ".claude/skills/old-skill", Checksum: "sha256:x"})

	report := Run(root, old, lockfile.New())
	require.Equal(t, []string{".claude/skills/old-skill"}, report.Removed)

	_, err := os.Stat(filepath.Join(root, ".claude/skills/old-skill"))
	require.True(t, os.IsNotExist(err))
}

func TestRunSkipsResourcesMarkedSkipInstall(t *testing.T) {
	root := t.TempDir()
	old := lockfile.New()
	old.Upsert(lockfile.LockedResource{Name: "embedded", Kind: core.KindSnippet, InstalledAt: ".claude/snippets/embedded.md", Checksum: "sha256:x", SkipInstall: true})

	report := Run(root, old, lockfile.New())
	require.Empty(t, report.Removed)
	require.Empty(t, report.Errors)
}

func TestRunNilOldLockfileIsNoOp(t *testing.T) {
	report := Run(t.TempDir(), nil, lockfile.New())
	require.Empty(t, report.Removed)
	require.Empty(t, report.Errors)
}

func TestRunResourceNowInstallFalseIsRemoved(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".claude/agents/now-embedded.md", "x")

	old := lockfile.New()
	old.Upsert(lockfile.LockedResource{Name: "now-embedded", Kind: core.KindAgent, InstalledAt: ".claude/agents/now-embedded.md", Checksum: "sha256:x"})
	newLock := lockfile.New()
	newLock.Upsert(lockfile.LockedResource{Name: "now-embedded", Kind: core.KindAgent, InstalledAt: ".claude/agents/now-embedded.md", Checksum: "sha256:x", SkipInstall: true})

	report := Run(root, old, newLock)
	require.Equal(t, []string{".claude/agents/now-embedded.md"}, report.Removed)
}
