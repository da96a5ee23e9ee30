package model

// LengthTier is one of three configurations fixing chapter count, plot points
// per chapter, and target prose length per plot point.
type LengthTier string

const (
	TierShortStory LengthTier = "short_story"
	TierNovella    LengthTier = "novella"
	TierSlowBurn   LengthTier = "slow_burn"
)

type LengthTierConfig struct {
	Chapters             int
	PlotPointsPerChapter int
	TargetWordsPerPoint  int
}

var tierConfigs = map[LengthTier]LengthTierConfig{
	TierShortStory: {Chapters: 5, PlotPointsPerChapter: 3, TargetWordsPerPoint: 500},
	TierNovella:    {Chapters: 8, PlotPointsPerChapter: 4, TargetWordsPerPoint: 650},
	TierSlowBurn:   {Chapters: 12, PlotPointsPerChapter: 5, TargetWordsPerPoint: 800},
}

// TierConfig returns the configuration for a tier. Unknown tiers report ok=false.
func TierConfig(t LengthTier) (LengthTierConfig, bool) {
	cfg, ok := tierConfigs[t]
	return cfg, ok
}

// TierOrDefault falls back to the short story tier for empty or unknown values.
func TierOrDefault(t LengthTier) LengthTier {
	if _, ok := tierConfigs[t]; ok {
		return t
	}
	return TierShortStory
}
