package model

// SpiceLevel is a three-tier explicitness setting. The pipeline treats it as
// an opaque enum; only prompt builders interpret it.
type SpiceLevel string

const (
	SpiceMild     SpiceLevel = "mild"
	SpiceSteamy   SpiceLevel = "steamy"
	SpiceExplicit SpiceLevel = "explicit"
)

// StoryPreferences is the user-supplied direction embedded in a job.
type StoryPreferences struct {
	Genre       string     `json:"genre"`
	Setting     string     `json:"setting"`
	Tropes      []string   `json:"tropes,omitempty"`
	Characters  string     `json:"characters,omitempty"`
	SpiceLevel  SpiceLevel `json:"spice_level"`
	LengthTier  LengthTier `json:"length_tier"`
	FreeformAsk string     `json:"freeform_ask,omitempty"`
}
