package parser

import (
	"strings"
	"testing"

	"github.com/dgallion1/synapse/internal/chunker"
)

func TestTextParser_ParagraphsSurvivePagination(t *testing.T) {
	input := "Harbour towns line the coast.\r\nTrains stop at each one.\r\n\r\n\r\n  \r\nFerries run in summer.   \r\n\r\nBook ahead in August."
	tree, err := (&TextParser{}).Parse(strings.NewReader(input), "doc_3_coast.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.Title != "doc_3_coast" {
		t.Errorf("expected title %q, got %q", "doc_3_coast", tree.Title)
	}
	if tree.Paged() {
		t.Error("expected text without form feeds to be unpaged")
	}

	want := []string{
		"Harbour towns line the coast.\nTrains stop at each one.",
		"Ferries run in summer.",
		"Book ahead in August.",
	}
	if len(tree.Children) != len(want) {
		t.Fatalf("expected %d paragraphs, got %d", len(want), len(tree.Children))
	}
	for i := range want {
		if tree.Children[i].Text != want[i] {
			t.Errorf("paragraph %d: expected %q, got %q", i, want[i], tree.Children[i].Text)
		}
	}

	pages := chunker.Paginate(tree, chunker.DefaultConfig())
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	if n := len(chunker.Paragraphs(pages[0].Text)); n < len(want) {
		t.Errorf("expected paragraph breaks to survive on the page, got %d paragraphs in %q", n, pages[0].Text)
	}
	if strings.Contains(pages[0].Text, "\r") {
		t.Errorf("expected carriage returns to be removed, got %q", pages[0].Text)
	}
}

func TestTextParser_FormFeedsKeepPageNumbers(t *testing.T) {
	input := "Page one text.\fPage two text.\n\nSecond paragraph.\f\fPage four text.\f\n"
	tree, err := (&TextParser{}).Parse(strings.NewReader(input), "export.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tree.Paged() {
		t.Fatal("expected form feeds to produce a paged tree")
	}

	pages := chunker.Paginate(tree, chunker.DefaultConfig())
	if len(pages) != 4 {
		t.Fatalf("expected 4 pages, got %d", len(pages))
	}
	for i, pg := range pages {
		if pg.Number != i+1 {
			t.Errorf("page %d: expected number %d, got %d", i, i+1, pg.Number)
		}
	}
	if pages[1].Text != "Page two text.\n\nSecond paragraph." {
		t.Errorf("unexpected page 2 text %q", pages[1].Text)
	}
	if pages[2].Text != "" {
		t.Errorf("expected page 3 to be kept empty, got %q", pages[2].Text)
	}
	if pages[3].Text != "Page four text." {
		t.Errorf("unexpected page 4 text %q", pages[3].Text)
	}
}

func TestTextParser_BlankFormFeedPagesAreUnpaged(t *testing.T) {
	tree, err := (&TextParser{}).Parse(strings.NewReader("\f \f\n\f"), "blank.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.Paged() || len(tree.Children) != 0 {
		t.Errorf("expected an empty unpaged tree, got %+v", tree.Children)
	}
}

func TestTextParser_ByteOrderMark(t *testing.T) {
	tree, err := (&TextParser{}).Parse(strings.NewReader("\ufeffFirst line.\n\nSecond."), "bom.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree.Children) != 2 || tree.Children[0].Text != "First line." {
		t.Errorf("expected the byte order mark to be dropped, got %+v", tree.Children)
	}
}

func TestTextParser_EmptyInput(t *testing.T) {
	tree, err := (&TextParser{}).Parse(strings.NewReader(""), "empty.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree.Children) != 0 {
		t.Errorf("expected no children, got %d", len(tree.Children))
	}
	if pages := chunker.Paginate(tree, chunker.DefaultConfig()); len(pages) != 0 {
		t.Errorf("expected no pages, got %d", len(pages))
	}
}
