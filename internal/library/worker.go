package library

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dgallion1/synapse/internal/chunker"
	"github.com/dgallion1/synapse/internal/parser"
)

// process parses one queued document into pages.
func (l *Library) process(ctx context.Context, doc *Document) {
	log := l.log.With("doc_id", doc.ID, "filename", doc.StoredName)
	if ctx.Err() != nil {
		return
	}

	doc.SetStatus(StatusParsing, "parsing")
	p, err := parser.ForFile(doc.StoredName)
	if err != nil {
		log.Error("unsupported format", "error", err)
		doc.AddError(err.Error())
		doc.SetStatus(StatusFailed, "parsing")
		return
	}
	if pdf, ok := p.(*parser.PDFParser); ok {
		pdf.FallbackPdftotext = l.cfg.PDFFallbackPdftotext
	}

	tree, err := p.Parse(bytes.NewReader(doc.FileData()), doc.DisplayName)
	if err != nil {
		log.Error("parse failed", "error", err)
		doc.AddError(fmt.Sprintf("parse: %s", err))
		doc.SetStatus(StatusFailed, "parsing")
		return
	}

	doc.SetStatus(StatusParsing, "paginating")
	pages := chunker.Paginate(tree, l.cfg.Pages)
	if len(pages) == 0 {
		log.Warn("no pages produced")
		doc.AddError("no extractable content")
		doc.SetStatus(StatusFailed, "paginating")
		return
	}
	if doc.declaredPages > 0 && len(pages) != doc.declaredPages {
		log.Warn("page count mismatch", "declared", doc.declaredPages, "parsed", len(pages))
	}

	doc.SetPages(pages)
	doc.SetStatus(StatusReady, "done")
	log.Info("document ready", "pages", len(pages))
}
