package model

import (
	"fmt"
	"strings"
)

// PlotPoint is the smallest unit of planned story content. One prose
// generation call expands exactly one plot point.
type PlotPoint struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// OutlineChapter is one planned chapter: a title plus ordered plot points.
type OutlineChapter struct {
	Title      string      `json:"title"`
	PlotPoints []PlotPoint `json:"plot_points"`
}

// Outline is the planned structure of a story before prose exists.
type Outline struct {
	Chapters []OutlineChapter `json:"chapters"`
}

// Conforms checks the outline against a length tier: exactly the tier's
// chapter count, and exactly the tier's plot point count per chapter.
func (o Outline) Conforms(tier LengthTier) bool {
	cfg, ok := TierConfig(tier)
	if !ok {
		return false
	}
	if len(o.Chapters) != cfg.Chapters {
		return false
	}
	for _, ch := range o.Chapters {
		if len(ch.PlotPoints) != cfg.PlotPointsPerChapter {
			return false
		}
	}
	return true
}

// Text renders the outline in the canonical plain-text form used in prompts:
// "Chapter N: Title" headers followed by "-" bullets.
func (o Outline) Text() string {
	var b strings.Builder
	for i, ch := range o.Chapters {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Chapter %d: %s\n", i+1, ch.Title)
		for _, pp := range ch.PlotPoints {
			fmt.Fprintf(&b, "- %s\n", pp.Text)
		}
	}
	return b.String()
}
