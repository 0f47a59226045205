package template

import "strings"

type tokenKind int

const (
	tokText tokenKind = iota
	tokOutput
	tokTag
)

type token struct {
	kind tokenKind
	text string // literal text, or the trimmed content between delimiters
	line int
	col  int
}

// lex splits raw template source into a flat token stream: literal text runs
// and the contents of {{ ... }} / {% ... %} delimiters. Delimiter matching
// is the extent of the grammar handled here; nesting of if/for is a parser
// concern (parse.go).
func lex(src string) ([]token, error) {
	var tokens []token
	line, col := 1, 1
	advance := func(s string) {
		for _, r := range s {
			if r == '\n' {
				line++
				col = 1
			} else {
				col++
			}
		}
	}

	i := 0
	textStart := 0
	flushText := func(end int) {
		if end > textStart {
			tokens = append(tokens, token{kind: tokText, text: src[textStart:end]})
		}
	}

	for i < len(src) {
		rest := src[i:]
		var open, close string
		var kind tokenKind
		switch {
		case strings.HasPrefix(rest, "{{"):
			open, close, kind = "{{", "}}", tokOutput
		case strings.HasPrefix(rest, "{%"):
			open, close, kind = "{%", "%}", tokTag
		default:
			i++
			continue
		}

		flushText(i)
		advance(src[textStart:i])

		end := strings.Index(src[i+len(open):], close)
		if end < 0 {
			advance(src[i:])
			return nil, &SyntaxError{Line: line, Col: col, Msg: "unterminated " + open + " tag"}
		}
		body := src[i+len(open) : i+len(open)+end]
		tok := token{kind: kind, text: strings.TrimSpace(body), line: line, col: col}
		advance(src[i : i+len(open)+end+len(close)])
		tokens = append(tokens, tok)

		i = i + len(open) + end + len(close)
		textStart = i
	}
	flushText(len(src))
	return tokens, nil
}

// SyntaxError is a template lexing/parsing failure, matching spec.md §4.F's
// TemplateSyntax{line,col,msg}.
type SyntaxError struct {
	Line int
	Col  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return e.Msg
}
