package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/synapse/internal/doctree"
)

// Config controls pagination of formats that have no page breaks.
type Config struct {
	PageChars int // Target page size in characters.
	MinPage   int // Pages shorter than this are merged into the previous one.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PageChars: 3000,
		MinPage:   200,
	}
}

// Paginate turns a DocTree into viewer pages. Trees that carry source page
// numbers (PDF) keep them, with empty pages preserved so numbering matches
// the original. Other trees are cut into pages of roughly PageChars.
func Paginate(tree *doctree.DocTree, cfg Config) []doctree.Page {
	if cfg.PageChars <= 0 {
		cfg.PageChars = 3000
	}
	if cfg.MinPage <= 0 {
		cfg.MinPage = 200
	}
	if tree.Paged() {
		return pagesFromSource(tree)
	}

	p := &paginator{cfg: cfg}
	for _, child := range tree.Children {
		p.walkNode(child, nil)
	}
	p.flush()
	return p.pages
}

func pagesFromSource(tree *doctree.DocTree) []doctree.Page {
	byNumber := map[int]*doctree.Page{}
	maxPage := 0
	var walk func(nodes []*doctree.DocNode)
	walk = func(nodes []*doctree.DocNode) {
		for _, n := range nodes {
			if n.Page > 0 {
				pg, ok := byNumber[n.Page]
				if !ok {
					pg = &doctree.Page{Number: n.Page}
					byNumber[n.Page] = pg
				}
				if t := strings.TrimSpace(n.Text); t != "" {
					if pg.Text != "" {
						pg.Text += "\n\n"
					}
					pg.Text += t
				}
				if n.Page > maxPage {
					maxPage = n.Page
				}
			}
			walk(n.Children)
		}
	}
	walk(tree.Children)

	pages := make([]doctree.Page, 0, maxPage)
	for i := 1; i <= maxPage; i++ {
		if pg, ok := byNumber[i]; ok {
			pages = append(pages, *pg)
		} else {
			pages = append(pages, doctree.Page{Number: i})
		}
	}
	return pages
}

type paginator struct {
	cfg        Config
	pages      []doctree.Page
	current    strings.Builder
	breadcrumb []string
}

// walkNode recursively visits DocNodes, filling pages paragraph by paragraph.
func (p *paginator) walkNode(node *doctree.DocNode, breadcrumb []string) {
	var bc []string
	bc = append(bc, breadcrumb...)
	if node.Title != "" {
		bc = append(bc, node.Title)
		p.add(node.Title, bc)
	}

	for _, para := range Paragraphs(node.Text) {
		if len(para) > p.cfg.PageChars {
			for _, part := range splitBySentences(para, p.cfg.PageChars) {
				p.add(part, bc)
			}
			continue
		}
		p.add(para, bc)
	}

	for _, child := range node.Children {
		p.walkNode(child, bc)
	}
}

func (p *paginator) add(para string, bc []string) {
	if p.current.Len() > 0 && p.current.Len()+len(para)+2 > p.cfg.PageChars {
		p.flush()
	}
	if p.current.Len() == 0 {
		p.breadcrumb = copyBreadcrumb(bc)
	} else {
		p.current.WriteString("\n\n")
	}
	p.current.WriteString(para)
}

func (p *paginator) flush() {
	text := p.current.String()
	p.current.Reset()
	if strings.TrimSpace(text) == "" {
		return
	}
	if len(text) < p.cfg.MinPage && len(p.pages) > 0 {
		last := &p.pages[len(p.pages)-1]
		last.Text += "\n\n" + text
		return
	}
	p.pages = append(p.pages, doctree.Page{
		Number:     len(p.pages) + 1,
		Text:       text,
		Breadcrumb: p.breadcrumb,
	})
}

// Paragraphs splits text on blank lines. Text extracted from PDFs often has
// no blank lines at all, so a single block is split on line breaks instead.
func Paragraphs(text string) []string {
	result := splitNonEmpty(text, "\n\n")
	if len(result) <= 1 && strings.Contains(strings.TrimSpace(text), "\n") {
		return splitNonEmpty(text, "\n")
	}
	return result
}

func splitNonEmpty(text, sep string) []string {
	parts := strings.Split(text, sep)
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// splitBySentences breaks a large paragraph into pieces of at most maxChars,
// cutting at sentence ends where possible.
func splitBySentences(text string, maxChars int) []string {
	sentences := splitSentences(text)

	var result []string
	var current strings.Builder

	for _, sent := range sentences {
		if current.Len() > 0 && current.Len()+len(sent)+1 > maxChars {
			result = append(result, current.String())
			current.Reset()
		}
		for len(sent) > maxChars {
			cut := maxChars
			for cut > 1 && !utf8.RuneStart(sent[cut]) {
				cut--
			}
			result = append(result, sent[:cut])
			sent = sent[cut:]
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

// splitSentences does basic sentence splitting.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			sentences = append(sentences, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if current.Len() > 0 {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
	}

	return sentences
}

func copyBreadcrumb(bc []string) []string {
	if len(bc) == 0 {
		return nil
	}
	out := make([]string, len(bc))
	copy(out, bc)
	return out
}
