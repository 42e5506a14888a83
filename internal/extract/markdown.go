package extract

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// mdxImport matches a top-level ES import line in an MDX page.
var mdxImport = regexp.MustCompile(`^import\s.+\sfrom\s+['"][^'"]+['"];?\s*$`)

func extractMarkdown(content []byte, mdx bool) (string, error) {
	text, err := extractPlain(content)
	if err != nil {
		return "", err
	}
	text = stripFrontMatter(text)
	if mdx {
		text = stripMDXImports(text)
	}
	return text, nil
}

// FrontMatter returns the YAML front matter of a markdown page, or nil when the page has none
// or the block does not parse as a YAML mapping.
func FrontMatter(text string) map[string]any {
	block, _, ok := splitFrontMatter(text)
	if !ok {
		return nil
	}
	var fm map[string]any
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return nil
	}
	return fm
}

// stripFrontMatter removes a leading "---" delimited YAML block. A leading thematic break
// whose block is not a YAML mapping is left alone.
func stripFrontMatter(text string) string {
	block, body, ok := splitFrontMatter(text)
	if !ok {
		return text
	}
	if strings.TrimSpace(block) == "" {
		return body
	}
	var fm map[string]any
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil || fm == nil {
		return text
	}
	return body
}

func splitFrontMatter(text string) (block, body string, ok bool) {
	rest, found := strings.CutPrefix(text, "---\n")
	if !found {
		rest, found = strings.CutPrefix(text, "---\r\n")
		if !found {
			return "", text, false
		}
	}
	for offset := 0; offset <= len(rest); {
		end := strings.IndexByte(rest[offset:], '\n')
		line := rest[offset:]
		next := len(rest)
		if end >= 0 {
			line = rest[offset : offset+end]
			next = offset + end + 1
		}
		if strings.TrimRight(line, "\r") == "---" {
			return rest[:offset], strings.TrimLeft(rest[next:], "\r\n"), true
		}
		if end < 0 {
			break
		}
		offset = next
	}
	return "", text, false
}

func stripMDXImports(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	inFence := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		if !inFence && mdxImport.MatchString(strings.TrimRight(line, "\r")) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimLeft(strings.Join(kept, "\n"), "\n")
}
