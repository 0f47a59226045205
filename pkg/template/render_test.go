package template

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderSimpleInterpolation(t *testing.T) {
	ctx := NewContext()
	ctx.Vars["model"] = "haiku"
	out, err := Render("Use model {{ vars.model }}.", ctx, Options{})
	require.NoError(t, err)
	require.Equal(t, "Use model haiku.", out)
}

func TestRenderSelfAndProject(t *testing.T) {
	ctx := NewContext()
	ctx.Project["name"] = "demo"
	ctx.Self = SelfContext{Name: "helper", Version: "v1.0.0"}
	out, err := Render("{{ self.name }}@{{ self.version }} in {{ project.name }}", ctx, Options{})
	require.NoError(t, err)
	require.Equal(t, "helper@v1.0.0 in demo", out)
}

func TestRenderDepsNamespace(t *testing.T) {
	ctx := NewContext()
	ctx.Deps["snippets.common"] = DepContext{Path: "snippets/common.md", InstalledAt: ".claude/snippets/common.md"}
	out, err := Render("{{ deps.snippets.common.installed_at }}", ctx, Options{})
	require.NoError(t, err)
	require.Equal(t, ".claude/snippets/common.md", out)
}

func TestRenderIfElse(t *testing.T) {
	ctx := NewContext()
	ctx.Vars["strict"] = true
	out, err := Render("{% if vars.strict %}strict{% else %}lenient{% endif %}", ctx, Options{})
	require.NoError(t, err)
	require.Equal(t, "strict", out)

	ctx.Vars["strict"] = false
	out, err = Render("{% if vars.strict %}strict{% else %}lenient{% endif %}", ctx, Options{})
	require.NoError(t, err)
	require.Equal(t, "lenient", out)
}

func TestRenderIfNot(t *testing.T) {
	ctx := NewContext()
	out, err := Render("{% if not vars.missing %}absent{% endif %}", ctx, Options{})
	require.NoError(t, err)
	require.Equal(t, "absent", out)
}

func TestRenderForLoop(t *testing.T) {
	ctx := NewContext()
	ctx.Vars["items"] = []any{"a", "b", "c"}
	out, err := Render("{% for item in vars.items %}[{{ item }}]{% endfor %}", ctx, Options{})
	require.NoError(t, err)
	require.Equal(t, "[a][b][c]", out)
}

func TestRenderUndefinedVariableErrors(t *testing.T) {
	ctx := NewContext()
	_, err := Render("{{ vars.missing }}", ctx, Options{})
	require.Error(t, err)
	var undef *UndefinedError
	require.True(t, errors.As(err, &undef))
	require.Equal(t, "UndefinedVariable", undef.Kind)
}

func TestRenderUnterminatedTagIsSyntaxError(t *testing.T) {
	ctx := NewContext()
	_, err := Render("{{ vars.model", ctx, Options{})
	require.Error(t, err)
	var syn *SyntaxError
	require.True(t, errors.As(err, &syn))
}

func TestRenderMissingEndifIsSyntaxError(t *testing.T) {
	ctx := NewContext()
	_, err := Render("{% if vars.x %}no end", ctx, Options{})
	require.Error(t, err)
}

type fakeReader struct{ files map[string][]byte }

func (f *fakeReader) ReadContentFile(path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func TestRenderContentFilter(t *testing.T) {
	ctx := NewContext()
	ctx.Vars["snippet_path"] = "snippets/common.md"
	reader := &fakeReader{files: map[string][]byte{"snippets/common.md": []byte("shared text")}}
	out, err := Render("{{ vars.snippet_path | content }}", ctx, Options{Reader: reader})
	require.NoError(t, err)
	require.Equal(t, "shared text", out)
}

func TestRenderContentFilterWithoutReaderFails(t *testing.T) {
	ctx := NewContext()
	ctx.Vars["snippet_path"] = "snippets/common.md"
	_, err := Render("{{ vars.snippet_path | content }}", ctx, Options{})
	require.Error(t, err)
}

func TestRenderContentFilterTooLarge(t *testing.T) {
	ctx := NewContext()
	ctx.Vars["p"] = "big.md"
	reader := &fakeReader{files: map[string][]byte{"big.md": make([]byte, 100)}}
	_, err := Render("{{ vars.p | content }}", ctx, Options{Reader: reader, MaxContentBytes: 10})
	require.Error(t, err)
	var tooLarge *ContentTooLargeError
	require.True(t, errors.As(err, &tooLarge))
}

func TestContextChecksumStableAcrossKeyOrder(t *testing.T) {
	a := NewContext()
	a.Vars["x"] = 1
	a.Vars["y"] = 2

	b := NewContext()
	b.Vars["y"] = 2
	b.Vars["x"] = 1

	require.Equal(t, a.Checksum(), b.Checksum())
}

func TestContextChecksumChangesWithContent(t *testing.T) {
	a := NewContext()
	a.Vars["x"] = 1
	b := NewContext()
	b.Vars["x"] = 2
	require.NotEqual(t, a.Checksum(), b.Checksum())
}
