package readctx

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dgallion1/synapse/internal/chunker"
)

// Config tunes detection thresholds and timers.
type Config struct {
	SelectionMinChars int // Minimum selected text length.
	ReadingMinChars   int // Minimum reading-position excerpt length.
	SegmentMinChars   int // Minimum paragraph length to count toward an excerpt.
	MaxSegments       int // Paragraphs joined into one excerpt.
	ExcerptChars      int // Excerpt is truncated to this many characters.

	PositionCooldown  time.Duration // Same-page repeats inside this window are suppressed.
	ScrollQuiet       time.Duration // Debounce before a reading-position check runs.
	BackstopPoll      time.Duration // Periodic check in case viewer events are missed.
	ViewerCallTimeout time.Duration // Upper bound for a single viewer handle call.

	// TemplateFallback forwards a description of the page when its text cannot
	// be extracted. When false the detector reports nothing instead.
	TemplateFallback bool
	// SyntheticSelection forwards a placeholder when a selection event fires
	// but no source yields text. Off by default.
	SyntheticSelection bool
}

// DefaultConfig returns the tuning used by the browser front-end.
func DefaultConfig() Config {
	return Config{
		SelectionMinChars: 5,
		ReadingMinChars:   30,
		SegmentMinChars:   50,
		MaxSegments:       2,
		ExcerptChars:      800,
		PositionCooldown:  5 * time.Second,
		ScrollQuiet:       1200 * time.Millisecond,
		BackstopPoll:      15 * time.Second,
		ViewerCallTimeout: 3 * time.Second,
		TemplateFallback:  true,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SelectionMinChars <= 0 {
		c.SelectionMinChars = d.SelectionMinChars
	}
	if c.ReadingMinChars <= 0 {
		c.ReadingMinChars = d.ReadingMinChars
	}
	if c.SegmentMinChars <= 0 {
		c.SegmentMinChars = d.SegmentMinChars
	}
	if c.MaxSegments <= 0 {
		c.MaxSegments = d.MaxSegments
	}
	if c.ExcerptChars <= 0 {
		c.ExcerptChars = d.ExcerptChars
	}
	if c.PositionCooldown < 0 {
		c.PositionCooldown = 0
	}
	if c.ScrollQuiet <= 0 {
		c.ScrollQuiet = d.ScrollQuiet
	}
	if c.BackstopPoll <= 0 {
		c.BackstopPoll = d.BackstopPoll
	}
	if c.ViewerCallTimeout <= 0 {
		c.ViewerCallTimeout = d.ViewerCallTimeout
	}
	return c
}

// Excerpt picks the part of a page most likely to be body prose. Headers and
// footers cluster at the page edges, so only the middle third of the
// paragraphs is considered. Up to MaxSegments paragraphs of at least
// SegmentMinChars are joined and the result is cut to ExcerptChars.
func (c Config) Excerpt(text string) string {
	c = c.withDefaults()
	segs := chunker.Paragraphs(text)
	n := len(segs)
	lo, hi := n/3, 2*n/3
	if hi <= lo {
		lo, hi = 0, n
	}

	var picked []string
	for _, s := range segs[lo:hi] {
		s = collapseSpace(s)
		if utf8.RuneCountInString(s) < c.SegmentMinChars {
			continue
		}
		picked = append(picked, s)
		if len(picked) == c.MaxSegments {
			break
		}
	}
	if len(picked) == 0 {
		return truncateRunes(collapseSpace(text), c.ExcerptChars)
	}
	return truncateRunes(strings.Join(picked, " "), c.ExcerptChars)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
