package resolver

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agpm-project/agpm/pkg/gitdriver"
)

func newFixtureBare(t *testing.T, tags ...string) string {
	t.Helper()
	src := t.TempDir()
	run := func(dir string, args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	run(src, "init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(src, "f"), []byte("1"), 0644))
	run(src, "add", ".")
	for i, tag := range tags {
		require.NoError(t, os.WriteFile(filepath.Join(src, "f"), []byte{byte('0' + i)}, 0644))
		run(src, "add", ".")
		run(src, "commit", "-m", tag)
		run(src, "tag", tag)
	}

	bare := filepath.Join(t.TempDir(), "bare.git")
	run(".", "clone", "--bare", src, bare)
	return bare
}

func TestResolveTag(t *testing.T) {
	bare := newFixtureBare(t, "v1.0.0", "v1.1.0")
	r := New(gitdriver.New())

	rv, err := r.Resolve(context.Background(), bare, Constraint{Tag: "v1.0.0"})
	require.NoError(t, err)
	require.Equal(t, "v1.0.0", rv.Display)
	require.Len(t, rv.SHA, 40)
}

func TestResolveRangePicksHighestSatisfying(t *testing.T) {
	bare := newFixtureBare(t, "v1.0.0", "v1.1.0", "v2.0.0")
	r := New(gitdriver.New())

	rv, err := r.Resolve(context.Background(), bare, Constraint{Range: "^1.0"})
	require.NoError(t, err)
	require.Equal(t, "v1.1.0", rv.Display)
}

func TestResolveRangeNoMatch(t *testing.T) {
	bare := newFixtureBare(t, "v1.0.0")
	r := New(gitdriver.New())

	_, err := r.Resolve(context.Background(), bare, Constraint{Range: "^2.0"})
	require.Error(t, err)
}

func TestResolveBranch(t *testing.T) {
	bare := newFixtureBare(t, "v1.0.0")
	r := New(gitdriver.New())

	rv, err := r.Resolve(context.Background(), bare, Constraint{Branch: "main"})
	require.NoError(t, err)
	require.Equal(t, "main", rv.Display)
}

func TestResolveRevRejectsShortHex(t *testing.T) {
	bare := newFixtureBare(t, "v1.0.0")
	r := New(gitdriver.New())

	_, err := r.Resolve(context.Background(), bare, Constraint{Rev: "abc"})
	require.Error(t, err)
}

func TestResolveRevDisambiguates(t *testing.T) {
	bare := newFixtureBare(t, "v1.0.0")
	r := New(gitdriver.New())
	ctx := context.Background()

	full, err := r.Resolve(ctx, bare, Constraint{Tag: "v1.0.0"})
	require.NoError(t, err)

	rv, err := r.Resolve(ctx, bare, Constraint{Rev: full.SHA[:8]})
	require.NoError(t, err)
	require.Equal(t, full.SHA, rv.SHA)
}

func TestResolveRangeWithMonorepoPrefix(t *testing.T) {
	bare := newFixtureBare(t, "pkg-v1.0.0", "pkg-v1.2.0")
	r := New(gitdriver.New())

	rv, err := r.Resolve(context.Background(), bare, Constraint{Range: "^1.0", Prefix: "pkg-"})
	require.NoError(t, err)
	require.Equal(t, "pkg-v1.2.0", rv.Display)
}
