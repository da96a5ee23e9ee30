package usecase

import (
	"fmt"
	"regexp"
	"strings"

	"storyloom/internal/domain"
	"storyloom/internal/domain/model"
)

var (
	chapterHeaderRe = regexp.MustCompile(`(?i)^chapter\s+\d+:\s*(.+)$`)
	emphasisRe      = regexp.MustCompile(`[*_#]+`)
)

// stripEmphasis removes incidental markdown markers the model likes to wrap
// headers and bullet text in.
func stripEmphasis(s string) string {
	return strings.TrimSpace(emphasisRe.ReplaceAllString(s, ""))
}

// parseOutline turns the model's free-text response back into structured
// chapters. The format is "Chapter <n>: <title>" header lines followed by
// bullet lines; anything else (preamble sentences, stray commentary) is
// ignored. Zero recognized chapters is a hard failure, not an empty outline.
func parseOutline(raw string) (model.Outline, error) {
	var (
		out     model.Outline
		current *model.OutlineChapter
	)

	flush := func() {
		if current != nil {
			out.Chapters = append(out.Chapters, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := chapterHeaderRe.FindStringSubmatch(stripEmphasis(line)); m != nil {
			flush()
			current = &model.OutlineChapter{Title: strings.TrimSpace(m[1])}
			continue
		}

		// Bullet markers are checked on the raw line so an emphasis strip
		// cannot swallow a "*" marker.
		if current != nil {
			if text, ok := stripBullet(line); ok {
				current.PlotPoints = append(current.PlotPoints, model.PlotPoint{
					Text:  stripEmphasis(text),
					Index: len(current.PlotPoints),
				})
			}
		}
	}
	flush()

	if len(out.Chapters) == 0 {
		return model.Outline{}, fmt.Errorf("%w: %d chars of input", domain.ErrOutlineParse, len(raw))
	}
	return out, nil
}

// stripBullet reports whether the line is a bullet and returns it without the
// leading marker.
func stripBullet(line string) (string, bool) {
	for _, marker := range []string{"-", "*", "•"} {
		if strings.HasPrefix(line, marker) {
			return strings.TrimSpace(strings.TrimPrefix(line, marker)), true
		}
	}
	return "", false
}
