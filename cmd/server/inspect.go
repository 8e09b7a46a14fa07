package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/synapse/internal/config"
	"github.com/dgallion1/synapse/internal/library"
	"github.com/dgallion1/synapse/internal/readctx"
	"github.com/dgallion1/synapse/internal/viewer"
)

var (
	inspectPage    int
	inspectTimeout time.Duration
)

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Show the reading context detected for a page of a local document",
	Long: `Parse a local document the way uploads are parsed and print, as JSON, the
record the reading-position detector would forward for a page. With --page 0
every page is reported.

Examples:
  synapse inspect guide.pdf --page 3
  synapse inspect notes.md --page 0`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().IntVar(&inspectPage, "page", 1, "page number, 0 for all pages")
	inspectCmd.Flags().DurationVar(&inspectTimeout, "timeout", 2*time.Minute, "parse timeout")
}

type inspectResult struct {
	Page   int             `json:"page"`
	Record *readctx.Record `json:"record"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), inspectTimeout)
	defer cancel()

	libCfg := cfg.LibraryConfig()
	libCfg.Workers = 1
	lib := library.New(libCfg, log)
	lib.Start(ctx)
	defer lib.Stop()

	doc, _, err := lib.Submit(filepath.Base(args[0]), data)
	if err != nil {
		return err
	}
	if doc, err = lib.Wait(ctx, doc.ID); err != nil {
		return err
	}

	pages := []int{inspectPage}
	if inspectPage == 0 {
		pages = pages[:0]
		for p := 1; p <= doc.PageCount(); p++ {
			pages = append(pages, p)
		}
	}

	results := make([]inspectResult, 0, len(pages))
	for _, p := range pages {
		if p < 1 || p > doc.PageCount() {
			return fmt.Errorf("page %d out of range 1-%d", p, doc.PageCount())
		}
		results = append(results, inspectResult{Page: p, Record: detectPage(ctx, doc, p, cfg.ReadingConfig(), log)})
	}
	return writeResults(cmd.OutOrStdout(), results)
}

// detectPage drives a fresh viewer to page and runs one reading-position
// detection against it.
func detectPage(ctx context.Context, doc *library.Document, page int, cfg readctx.Config, log *slog.Logger) *readctx.Record {
	w := viewer.New(doc, nil)
	w.Apply(readctx.Event{Type: readctx.EventViewerReady})
	w.Apply(readctx.Event{Type: readctx.EventPageRendered, Page: page})

	det := readctx.NewDetector(readctx.Document{ID: doc.ID, Name: doc.StoredName}, cfg, log)
	det.Attach(w)
	return det.DetectReadingPosition(ctx)
}

func writeResults(w io.Writer, results []inspectResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
