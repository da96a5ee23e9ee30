package usecase

import (
	"fmt"
	"hash/fnv"
	"strings"

	"storyloom/internal/domain/model"
)

const (
	outlineSystemPrompt = "You are a story architect for serialized romance fiction. " +
		"You answer only in the exact format requested, with no commentary."

	proseSystemPrompt = "You are a novelist writing serialized romance fiction. " +
		"You write immersive prose in third person past tense and never break character " +
		"or address the reader."

	metadataSystemPrompt = "You are a fiction catalog editor. You answer strictly as JSON " +
		"matching the provided schema."

	videoSystemPrompt = "You are a film director translating a line of fiction into a " +
		"single cinematic shot description."
)

// writingQuirks is the fixed pool a sequence draws its stylistic quirk from.
// The quirk is picked once and reused across outline regenerations so the
// story keeps one voice.
var writingQuirks = []string{
	"favors short, punchy sentences at moments of tension",
	"lingers on sensory detail, especially scent and touch",
	"lets dialogue carry most of the emotional weight",
	"uses weather and setting to mirror the characters' moods",
	"ends scenes a beat earlier than expected, on an unresolved note",
	"threads a recurring small object or gesture through the story",
	"leans on interior monologue to contrast what is said and felt",
}

// pickWritingQuirk is deterministic per sequence so regenerated outlines keep
// the voice the story started with.
func pickWritingQuirk(sequenceID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sequenceID))
	return writingQuirks[int(h.Sum32())%len(writingQuirks)]
}

// preferencesSummary renders the user's stored preferences into prompt text.
func preferencesSummary(p *model.StoryPreferences) string {
	if p == nil {
		return "a contemporary romance"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Genre: %s\n", orDefault(p.Genre, "romance"))
	fmt.Fprintf(&b, "Setting: %s\n", orDefault(p.Setting, "present day"))
	if len(p.Tropes) > 0 {
		fmt.Fprintf(&b, "Tropes: %s\n", strings.Join(p.Tropes, ", "))
	}
	if p.Characters != "" {
		fmt.Fprintf(&b, "Characters: %s\n", p.Characters)
	}
	fmt.Fprintf(&b, "Explicitness: %s\n", string(spiceOrDefault(p.SpiceLevel)))
	if p.FreeformAsk != "" {
		fmt.Fprintf(&b, "Reader's request: %s\n", p.FreeformAsk)
	}
	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func spiceOrDefault(s model.SpiceLevel) model.SpiceLevel {
	switch s {
	case model.SpiceMild, model.SpiceSteamy, model.SpiceExplicit:
		return s
	}
	return model.SpiceMild
}

// buildOutlinePrompt asks for a complete outline in the canonical
// "Chapter <n>: <title>" / "- bullet" format the parser understands. The
// reader's own direction, when present, is carried alongside the preferences.
func buildOutlinePrompt(prefs *model.StoryPreferences, direction string, cfg model.LengthTierConfig) string {
	var b strings.Builder
	b.WriteString("Plan a complete serialized story from these reader preferences:\n\n")
	b.WriteString(preferencesSummary(prefs))
	if direction != "" {
		fmt.Fprintf(&b, "\nThe reader asked for this story in particular, which the plan must honor:\n%s\n", direction)
	}
	fmt.Fprintf(&b, "\nProduce exactly %d chapters. Each chapter must have exactly %d plot points.\n",
		cfg.Chapters, cfg.PlotPointsPerChapter)
	b.WriteString("Use exactly this format, with no preamble and no other text:\n\n")
	b.WriteString("Chapter 1: <title>\n- <plot point>\n- <plot point>\n\nChapter 2: <title>\n...\n")
	return b.String()
}

// buildSuffixPrompt asks for continuation chapters that replace the outline
// from insertAt onward while honoring the new reader direction.
func buildSuffixPrompt(seq *model.Sequence, promptText string, insertAt int, cfg model.LengthTierConfig) string {
	kept := model.Outline{Chapters: seq.Chapters[:insertAt]}
	remaining := cfg.Chapters - insertAt

	var b strings.Builder
	b.WriteString("An in-progress serialized story needs its remaining chapters replanned.\n\n")
	if seq.Title != "" {
		fmt.Fprintf(&b, "Story: %s\n\n", seq.Title)
	}
	b.WriteString("Chapters already written, which must not change:\n\n")
	b.WriteString(kept.Text())
	fmt.Fprintf(&b, "\nNew reader direction: %s\n\n", promptText)
	fmt.Fprintf(&b, "Produce exactly %d new chapters continuing the story from chapter %d, numbered %d through %d. ",
		remaining, insertAt+1, insertAt+1, cfg.Chapters)
	fmt.Fprintf(&b, "Each chapter must have exactly %d plot points.\n", cfg.PlotPointsPerChapter)
	b.WriteString("Use exactly this format, with no preamble and no other text:\n\n")
	fmt.Fprintf(&b, "Chapter %d: <title>\n- <plot point>\n- <plot point>\n...\n", insertAt+1)
	return b.String()
}

// plotPointPosition frames where a plot point sits so the instruction can ask
// for a story opening, a hand-off into the next beat, or a chapter close.
type plotPointPosition int

const (
	positionOpening plotPointPosition = iota
	positionMiddle
	positionFinal
)

func classifyPlotPoint(chapterIndex, pointIndex, pointsPerChapter int) plotPointPosition {
	switch {
	case chapterIndex == 0 && pointIndex == 0:
		return positionOpening
	case pointIndex == pointsPerChapter-1:
		return positionFinal
	default:
		return positionMiddle
	}
}

// buildPlotPointPrompt assembles the prose prompt for one plot point: global
// outline, the chapter's own beats, a trailing window of prior prose, and
// positional framing.
func buildPlotPointPrompt(
	seq *model.Sequence,
	prefs *model.StoryPreferences,
	chapterIndex int,
	point model.PlotPoint,
	next *model.PlotPoint,
	proseWindow string,
	targetWords int,
	position plotPointPosition,
) string {
	chapter := seq.Chapters[chapterIndex]

	var b strings.Builder
	b.WriteString("Full story outline:\n\n")
	b.WriteString(seq.Outline().Text())
	fmt.Fprintf(&b, "\nYou are writing chapter %d, \"%s\". Its plot points:\n", chapterIndex+1, chapter.Title)
	for _, pp := range chapter.PlotPoints {
		fmt.Fprintf(&b, "- %s\n", pp.Text)
	}
	if proseWindow != "" {
		b.WriteString("\nThe story so far (most recent prose):\n\n")
		b.WriteString(proseWindow)
		b.WriteString("\n")
	}
	if seq.WritingQuirk != "" {
		fmt.Fprintf(&b, "\nStylistic note: this story %s.\n", seq.WritingQuirk)
	}
	if prefs != nil {
		fmt.Fprintf(&b, "Explicitness level: %s.\n", string(spiceOrDefault(prefs.SpiceLevel)))
	}

	fmt.Fprintf(&b, "\nWrite roughly %d words of prose covering only this plot point:\n%s\n\n", targetWords, point.Text)
	switch position {
	case positionOpening:
		b.WriteString("This is the opening of the story. Establish the world and the characters as you go; do not summarize.\n")
	case positionFinal:
		b.WriteString("This is the final plot point of the chapter. Bring the chapter to a close on it.\n")
	default:
		if next != nil {
			fmt.Fprintf(&b, "This is a middle plot point. End before the next one begins: %s\n", next.Text)
		} else {
			b.WriteString("This is a middle plot point. End before the next one begins.\n")
		}
	}
	b.WriteString("Continue seamlessly from the prose above. Output only story prose, no headers or notes.")
	return b.String()
}

// stripProsePreamble drops a leading boilerplate line the model sometimes
// prepends ("Here is the scene:", "Chapter 3:"). Only the first line is ever
// considered, and only when it is clearly not prose.
func stripProsePreamble(text string) string {
	text = strings.TrimSpace(text)
	idx := strings.Index(text, "\n")
	if idx < 0 {
		return text
	}
	first := strings.TrimSpace(text[:idx])
	lower := strings.ToLower(stripEmphasis(first))
	if strings.HasSuffix(first, ":") || strings.HasPrefix(lower, "here is") ||
		strings.HasPrefix(lower, "here's") || chapterHeaderRe.MatchString(lower) {
		return strings.TrimSpace(text[idx+1:])
	}
	return text
}

// Metadata prompts. Each sub-task is an independent schema-validated call.

func buildTitlePrompt(outlineText string) string {
	return "Given this story outline, produce a short evocative title for the story.\n\n" + outlineText
}

func buildDescriptionPrompt(outlineText string) string {
	return "Given this story outline, write a 2-3 sentence back-cover description. " +
		"Tease the premise without spoiling the ending.\n\n" + outlineText
}

func buildTagsPrompt(outlineText string) string {
	return "Given this story outline, produce between 5 and 8 short lowercase genre/trope tags.\n\n" + outlineText
}

func buildWarningsPrompt(outlineText string) string {
	return "Given this story outline, list up to 5 content warnings readers should see before " +
		"starting, and whether the story is sexually explicit.\n\n" + outlineText
}

func buildAudiencePrompt(outlineText string) string {
	return "Given this story outline, name the reader audiences it best fits.\n\n" + outlineText
}

// Video prompts. The base prompt turns a quote into one shot; the sanitized
// variants progressively abstract it after a policy rejection.

func buildVideoPrompt(q *model.Quote, seq *model.Sequence, maxChars int) string {
	var b strings.Builder
	b.WriteString("Turn this line from a story into one cinematic shot description for a video model. ")
	fmt.Fprintf(&b, "Describe camera, light and mood in under %d characters. No people's names, no text overlays.\n\n", maxChars)
	if seq != nil && seq.Title != "" {
		fmt.Fprintf(&b, "Story: %s\n", seq.Title)
	}
	fmt.Fprintf(&b, "Line: %q\n", q.Text)
	return b.String()
}

func buildMildSanitizePrompt(rejected string, maxChars int) string {
	return fmt.Sprintf("This shot description was rejected by a content filter. Rewrite it to be "+
		"suggestive rather than explicit, keeping the mood and setting, in under %d characters:\n\n%s",
		maxChars, rejected)
}

func buildAggressiveSanitizePrompt(rejected string, maxChars int) string {
	return fmt.Sprintf("This shot description keeps getting rejected by a content filter. Replace it "+
		"with a fully abstract, safe-for-work scene that only preserves the color palette and emotional "+
		"tone. No people, no touching, no bodies. Under %d characters:\n\n%s",
		maxChars, rejected)
}
