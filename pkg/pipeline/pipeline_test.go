package pipeline

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/lockfile"
)

// newFixtureSource builds a bare-clonable source repo with one commit per
// tag, following the same pattern used across pkg/resolver and
// pkg/sourcecache's own fixtures.
func newFixtureSource(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	writeFile := func(rel, content string) {
		full := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}

	run("init", "-b", "main")
	writeFile("agents/helper.md", "---\ndescription: a helper\n---\nHello from helper.\n")
	writeFile("agents/reviewer.md", "---\ndescription: reviews things\n---\nReview body.\n")
	writeFile("skills/demo/SKILL.md", "---\ndescription: a demo skill\n---\nSkill instructions.\n")
	writeFile("skills/demo/data.json", `{"k":"v"}`)
	run("add", ".")
	run("commit", "-m", "initial")
	run("tag", "v1.0.0")

	writeFile("agents/helper.md", "---\ndescription: a helper v2\n---\nHello v2.\n")
	run("add", ".")
	run("commit", "-m", "second")
	run("tag", "v1.1.0")

	return dir
}

func newProject(t *testing.T, manifestTOML string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agpm.toml"), []byte(manifestTOML), 0644))
	return dir
}

func newPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(t.TempDir())
	require.NoError(t, err)
	return p
}

func TestInstallFreshResolvesRendersAndWritesLockfile(t *testing.T) {
	src := newFixtureSource(t)
	manifestTOML := `
[project]
name = "demo"

[sources]
official = "` + src + `"

[agents]
helper = { source = "official", path = "agents/helper.md", version = "v1.0.0" }
`
	proj := newProject(t, manifestTOML)
	p := newPipeline(t)

	report, err := p.Install(context.Background(), Options{ProjectDir: proj})
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Len(t, report.Installed, 1)

	installedPath := filepath.Join(proj, ".claude", "agents", "helper.md")
	require.FileExists(t, installedPath)
	data, err := os.ReadFile(installedPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "Hello from helper.")

	lf, err := lockfile.Load(filepath.Join(proj, lockfile.FileName))
	require.NoError(t, err)
	require.NotNil(t, lf)
	resources := lf.Resources[core.KindAgent]
	require.Len(t, resources, 1)
	require.Equal(t, "helper", resources[0].Name)
	require.Equal(t, "v1.0.0", resources[0].Version)
	require.Equal(t, ".claude/agents/helper.md", resources[0].InstalledAt)
	require.NotEmpty(t, resources[0].Checksum)
	require.Len(t, lf.Sources, 1)
	require.Equal(t, "official", lf.Sources[0].Name)
}

func TestInstallExpandsGlobPattern(t *testing.T) {
	src := newFixtureSource(t)
	manifestTOML := `
[sources]
official = "` + src + `"

[agents]
all = { source = "official", path = "agents/*.md", version = "v1.0.0" }
`
	proj := newProject(t, manifestTOML)
	p := newPipeline(t)

	report, err := p.Install(context.Background(), Options{ProjectDir: proj})
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Len(t, report.Installed, 2)

	require.FileExists(t, filepath.Join(proj, ".claude", "agents", "helper.md"))
	require.FileExists(t, filepath.Join(proj, ".claude", "agents", "reviewer.md"))
}

func TestInstallAppliesManifestPatch(t *testing.T) {
	src := newFixtureSource(t)
	manifestTOML := `
[sources]
official = "` + src + `"

[agents]
helper = { source = "official", path = "agents/helper.md", version = "v1.0.0" }

[patch.agents.helper]
description = "overridden"
`
	proj := newProject(t, manifestTOML)
	p := newPipeline(t)

	report, err := p.Install(context.Background(), Options{ProjectDir: proj})
	require.NoError(t, err)
	require.True(t, report.OK())

	data, err := os.ReadFile(filepath.Join(proj, ".claude", "agents", "helper.md"))
	require.NoError(t, err)
	require.Contains(t, string(data), "overridden")

	lf, err := lockfile.Load(filepath.Join(proj, lockfile.FileName))
	require.NoError(t, err)
	res := lf.Resources[core.KindAgent][0]
	require.Equal(t, "overridden", res.AppliedPatches["description"])
}

func TestInstallSkillDirectory(t *testing.T) {
	src := newFixtureSource(t)
	manifestTOML := `
[sources]
official = "` + src + `"

[skills]
demo = { source = "official", path = "skills/demo", version = "v1.0.0" }
`
	proj := newProject(t, manifestTOML)
	p := newPipeline(t)

	report, err := p.Install(context.Background(), Options{ProjectDir: proj})
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Len(t, report.Installed, 1)

	require.FileExists(t, filepath.Join(proj, ".claude", "skills", "demo", "SKILL.md"))
	require.FileExists(t, filepath.Join(proj, ".claude", "skills", "demo", "data.json"))

	lf, err := lockfile.Load(filepath.Join(proj, lockfile.FileName))
	require.NoError(t, err)
	res := lf.Resources[core.KindSkill][0]
	require.ElementsMatch(t, []string{"SKILL.md", "data.json"}, res.Files)
	require.NotEmpty(t, res.Checksum)
}

func TestCleanupRemovesDroppedResourceOnInstall(t *testing.T) {
	src := newFixtureSource(t)
	both := `
[sources]
official = "` + src + `"

[agents]
helper = { source = "official", path = "agents/helper.md", version = "v1.0.0" }
reviewer = { source = "official", path = "agents/reviewer.md", version = "v1.0.0" }
`
	proj := newProject(t, both)
	p := newPipeline(t)

	_, err := p.Install(context.Background(), Options{ProjectDir: proj})
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(proj, ".claude", "agents", "reviewer.md"))

	onlyHelper := `
[sources]
official = "` + src + `"

[agents]
helper = { source = "official", path = "agents/helper.md", version = "v1.0.0" }
`
	require.NoError(t, os.WriteFile(filepath.Join(proj, "agpm.toml"), []byte(onlyHelper), 0644))

	report, err := p.Install(context.Background(), Options{ProjectDir: proj})
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Contains(t, report.Removed, ".claude/agents/reviewer.md")
	require.NoFileExists(t, filepath.Join(proj, ".claude", "agents", "reviewer.md"))
	require.FileExists(t, filepath.Join(proj, ".claude", "agents", "helper.md"))
}

func TestVariantInputsSplitIntoDistinctInstalls(t *testing.T) {
	src := newFixtureSource(t)
	manifestTOML := `
[sources]
official = "` + src + `"

[agents]
helper-a = { source = "official", path = "agents/helper.md", version = "v1.0.0", template_vars = { flavor = "a" } }
helper-b = { source = "official", path = "agents/helper.md", version = "v1.0.0", template_vars = { flavor = "b" } }
`
	proj := newProject(t, manifestTOML)
	p := newPipeline(t)

	report, err := p.Install(context.Background(), Options{ProjectDir: proj})
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Len(t, report.Installed, 2)

	lf, err := lockfile.Load(filepath.Join(proj, lockfile.FileName))
	require.NoError(t, err)
	resources := lf.Resources[core.KindAgent]
	require.Len(t, resources, 2)
	require.NotEqual(t, resources[0].VariantHash, resources[1].VariantHash)
	require.NotEqual(t, resources[0].InstalledAt, resources[1].InstalledAt)
}

func TestUpdateResolvesRangeToNewestSatisfyingTag(t *testing.T) {
	src := newFixtureSource(t)
	manifestTOML := `
[sources]
official = "` + src + `"

[agents]
helper = { source = "official", path = "agents/helper.md", version = "^1.0" }
`
	proj := newProject(t, manifestTOML)
	p := newPipeline(t)

	report, err := p.Update(context.Background(), Options{ProjectDir: proj})
	require.NoError(t, err)
	require.True(t, report.OK())

	lf, err := lockfile.Load(filepath.Join(proj, lockfile.FileName))
	require.NoError(t, err)
	require.Equal(t, "v1.1.0", lf.Resources[core.KindAgent][0].Version)

	data, err := os.ReadFile(filepath.Join(proj, ".claude", "agents", "helper.md"))
	require.NoError(t, err)
	require.Contains(t, string(data), "Hello v2.")
}

func TestUpdateStillCleansUpRemovedDependency(t *testing.T) {
	src := newFixtureSource(t)
	both := `
[sources]
official = "` + src + `"

[agents]
helper = { source = "official", path = "agents/helper.md", version = "v1.0.0" }
reviewer = { source = "official", path = "agents/reviewer.md", version = "v1.0.0" }
`
	proj := newProject(t, both)
	p := newPipeline(t)

	_, err := p.Install(context.Background(), Options{ProjectDir: proj})
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(proj, ".claude", "agents", "reviewer.md"))

	onlyHelper := `
[sources]
official = "` + src + `"

[agents]
helper = { source = "official", path = "agents/helper.md", version = "v1.0.0" }
`
	require.NoError(t, os.WriteFile(filepath.Join(proj, "agpm.toml"), []byte(onlyHelper), 0644))

	// Update re-resolves from the manifest rather than the lockfile,
	// but cleanup still needs the true prior installed state as its
	// baseline to detect that "reviewer" was dropped.
	report, err := p.Update(context.Background(), Options{ProjectDir: proj})
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Contains(t, report.Removed, ".claude/agents/reviewer.md")
	require.NoFileExists(t, filepath.Join(proj, ".claude", "agents", "reviewer.md"))
}

func TestFrozenFailsOnManifestLockfileMismatch(t *testing.T) {
	src := newFixtureSource(t)
	manifestTOML := `
[sources]
official = "` + src + `"

[agents]
helper = { source = "official", path = "agents/helper.md", version = "v1.0.0" }
`
	proj := newProject(t, manifestTOML)
	p := newPipeline(t)

	_, err := p.Install(context.Background(), Options{ProjectDir: proj})
	require.NoError(t, err)

	changed := `
[sources]
official = "` + src + `"

[agents]
helper = { source = "official", path = "agents/helper.md", version = "v1.1.0" }
`
	require.NoError(t, os.WriteFile(filepath.Join(proj, "agpm.toml"), []byte(changed), 0644))

	_, err = p.Install(context.Background(), Options{ProjectDir: proj, Frozen: true})
	require.Error(t, err)
}

func TestValidateRenderDoesNotWriteProjectTreeOrLockfile(t *testing.T) {
	src := newFixtureSource(t)
	manifestTOML := `
[sources]
official = "` + src + `"

[agents]
helper = { source = "official", path = "agents/helper.md", version = "v1.0.0" }
`
	proj := newProject(t, manifestTOML)
	p := newPipeline(t)

	report, err := p.ValidateRender(context.Background(), Options{ProjectDir: proj})
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Len(t, report.Installed, 1)

	require.NoFileExists(t, filepath.Join(proj, ".claude", "agents", "helper.md"))
	require.NoFileExists(t, filepath.Join(proj, lockfile.FileName))
}

func TestInstallFailureLeavesLockfileUntouched(t *testing.T) {
	src := newFixtureSource(t)
	manifestTOML := `
[sources]
official = "` + src + `"

[agents]
helper = { source = "official", path = "agents/helper.md", version = "v1.0.0" }
`
	proj := newProject(t, manifestTOML)
	p := newPipeline(t)

	_, err := p.Install(context.Background(), Options{ProjectDir: proj})
	require.NoError(t, err)

	// Replace the install target's parent directory with a file so the next
	// run's write fails, simulating a filesystem-level install failure.
	require.NoError(t, os.RemoveAll(filepath.Join(proj, ".claude", "agents")))
	require.NoError(t, os.WriteFile(filepath.Join(proj, ".claude", "agents"), []byte("blocker"), 0644))

	lockBefore, err := os.ReadFile(filepath.Join(proj, lockfile.FileName))
	require.NoError(t, err)

	_, err = p.Install(context.Background(), Options{ProjectDir: proj})
	require.Error(t, err)

	lockAfter, err := os.ReadFile(filepath.Join(proj, lockfile.FileName))
	require.NoError(t, err)
	require.Equal(t, lockBefore, lockAfter)
}
