// Package frontmatter extracts and interprets the YAML frontmatter carried
// by every AGPM resource file: dependency declarations, template_vars, and
// kind-specific metadata (skill name/description, MCP server payloads).
// Adapted from the teacher's pkg/parser frontmatter-splitting idiom
// (delimiter-bounded YAML block + goccy/go-yaml decode), generalized from
// GitHub-Actions-workflow frontmatter to AGPM's seven resource kinds.
package frontmatter

import (
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/logger"
)

var log = logger.New("frontmatter:split")

const delimiter = "---"

// SplitResult is the outcome of separating a resource file into its YAML
// frontmatter and markdown/body content.
type SplitResult struct {
	Frontmatter     map[string]any
	Body            string
	FrontmatterText string // raw YAML block, re-rendered after patching
	FrontmatterLine int    // 1-based line of the opening delimiter + 1, for error positions
}

// Split separates content into frontmatter and body. A resource with no
// frontmatter block returns an empty Frontmatter map and the whole content
// as Body (frontmatter is optional for plain scripts/hooks).
func Split(content string) (*SplitResult, error) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != delimiter {
		return &SplitResult{Frontmatter: map[string]any{}, Body: content}, nil
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == delimiter {
			end = i
			break
		}
	}
	if end == -1 {
		return nil, core.NewTemplateError("TemplateSyntax", "unterminated frontmatter block (missing closing %q)", delimiter)
	}

	yamlText := strings.Join(lines[1:end], "\n")
	body := strings.Join(lines[end+1:], "\n")
	body = strings.TrimPrefix(body, "\n")

	var fm map[string]any
	if strings.TrimSpace(yamlText) != "" {
		if err := yaml.Unmarshal([]byte(yamlText), &fm); err != nil {
			return nil, core.NewTemplateError("TemplateSyntax", "invalid frontmatter YAML: %v", err)
		}
	}
	if fm == nil {
		fm = map[string]any{}
	}

	log.Printf("split frontmatter: %d keys, body %d bytes", len(fm), len(body))
	return &SplitResult{
		Frontmatter:     fm,
		Body:            body,
		FrontmatterText: yamlText,
		FrontmatterLine: 2,
	}, nil
}

// Render re-assembles a resource file from frontmatter (re-marshaled to
// YAML) and body, used by the patch engine and installer after applying
// project/private patches (spec.md §4.G).
func Render(fm map[string]any, body string) (string, error) {
	if len(fm) == 0 {
		return body, nil
	}
	out, err := yaml.Marshal(fm)
	if err != nil {
		return "", core.NewTemplateError("TemplateSyntax", "re-serializing frontmatter: %v", err)
	}
	var b strings.Builder
	b.WriteString(delimiter)
	b.WriteByte('\n')
	b.Write(out)
	b.WriteString(delimiter)
	b.WriteByte('\n')
	b.WriteString(body)
	return b.String(), nil
}
