package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/synapse/internal/doctree"
)

// TextParser handles plain text files. Form feeds mark page breaks, as in
// text exported by pdftotext; such files keep their page numbering. Files
// without form feeds are paginated later.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	text := strings.TrimPrefix(string(src), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	tree := &doctree.DocTree{Title: titleFor(filename)}

	pages := strings.Split(strings.TrimSuffix(strings.TrimRight(text, "\n"), "\f"), "\f")
	if len(pages) == 1 || blank(pages) {
		for _, para := range textParagraphs(text) {
			tree.Children = append(tree.Children, &doctree.DocNode{Text: para})
		}
		return tree, nil
	}

	for i, page := range pages {
		// Empty pages stay so numbering matches the source.
		tree.Children = append(tree.Children, &doctree.DocNode{
			Text: strings.Join(textParagraphs(page), "\n\n"),
			Page: i + 1,
		})
	}
	return tree, nil
}

// textParagraphs splits on blank lines. Lines within a paragraph stay joined
// by newlines and lose trailing whitespace.
func textParagraphs(text string) []string {
	var paragraphs []string
	var current []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t\f")
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				paragraphs = append(paragraphs, strings.Join(current, "\n"))
				current = current[:0]
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, strings.Join(current, "\n"))
	}
	return paragraphs
}
