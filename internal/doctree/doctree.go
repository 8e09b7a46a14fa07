package doctree

// DocTree is the root of a parsed document.
type DocTree struct {
	Title    string     // Document title (from metadata or filename)
	Children []*DocNode // Top-level sections
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title    string     // Section heading (empty for leaf text)
	Text     string     // Text content of this node (may be empty for container nodes)
	Page     int        // Source page (0 if the format has no pages)
	Children []*DocNode // Subsections
}

// Page is the text a viewer shows on one page.
type Page struct {
	Number     int      // 1-based
	Text       string   // Plain text, paragraphs separated by blank lines
	Breadcrumb []string // Heading hierarchy at the start of the page
}

// Paged reports whether any node carries a source page number.
func (t *DocTree) Paged() bool {
	var walk func(nodes []*DocNode) bool
	walk = func(nodes []*DocNode) bool {
		for _, n := range nodes {
			if n.Page > 0 || walk(n.Children) {
				return true
			}
		}
		return false
	}
	return walk(t.Children)
}
