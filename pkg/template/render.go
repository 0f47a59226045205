package template

import (
	"fmt"
	"strings"
)

const defaultMaxContentBytes = 1 << 20 // 1 MiB, spec.md §6 size cap

// Options configures one render.
type Options struct {
	// Reader serves the `content` filter. Leave nil for the lockfile-only
	// variant (spec.md §4.F), which must never touch the filesystem.
	Reader ContentReader
	// MaxContentBytes overrides the default 1 MiB content-filter cap.
	MaxContentBytes int64
}

// Render interprets body as a template over ctx and returns the rendered
// text, or a *SyntaxError / *UndefinedError / *ContentTooLargeError.
func Render(body string, ctx *Context, opts Options) (string, error) {
	tokens, err := lex(body)
	if err != nil {
		return "", err
	}
	nodes, err := parse(tokens)
	if err != nil {
		return "", err
	}

	max := opts.MaxContentBytes
	if max == 0 {
		max = defaultMaxContentBytes
	}
	e := &env{ctx: ctx, locals: map[string]any{}, reader: opts.Reader, maxContentBytes: max}

	var sb strings.Builder
	if err := renderNodes(nodes, e, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func renderNodes(nodes []Node, e *env, sb *strings.Builder) error {
	for _, n := range nodes {
		if err := renderNode(n, e, sb); err != nil {
			return err
		}
	}
	return nil
}

func renderNode(n Node, e *env, sb *strings.Builder) error {
	switch t := n.(type) {
	case textNode:
		sb.WriteString(t.text)
	case outputNode:
		val, err := e.evalExpr(t.expr, t.line, t.col)
		if err != nil {
			return err
		}
		fmt.Fprintf(sb, "%v", val)
	case ifNode:
		cond, err := e.evalCondition(t.cond, t.line, t.col)
		if err != nil {
			return err
		}
		if cond {
			return renderNodes(t.then, e, sb)
		}
		return renderNodes(t.els, e, sb)
	case forNode:
		val, err := e.evalPathOrLiteral(t.iterExpr, t.line, t.col)
		if err != nil {
			return err
		}
		items, ok := toSlice(val)
		if !ok {
			return &SyntaxError{Line: t.line, Col: t.col, Msg: fmt.Sprintf("for loop requires a list, got %T", val)}
		}
		for _, item := range items {
			child := &env{ctx: e.ctx, locals: map[string]any{}, reader: e.reader, maxContentBytes: e.maxContentBytes}
			for k, v := range e.locals {
				child.locals[k] = v
			}
			child.locals[t.varName] = item
			if err := renderNodes(t.body, child, sb); err != nil {
				return err
			}
		}
	}
	return nil
}
