// Package risk maps readmission risk scores to categorical labels and the
// display tier used for badges and progress bars.
package risk

import "fmt"

// Label is the categorical readmission risk bucket.
type Label string

const (
	High   Label = "Élevé"
	Medium Label = "Moyen"
	Low    Label = "Faible"
)

// Labels lists every bucket from highest to lowest risk.
var Labels = []Label{High, Medium, Low}

// Tier is the display colour associated with a label.
type Tier string

const (
	TierRed    Tier = "red"
	TierYellow Tier = "yellow"
	TierGreen  Tier = "green"
)

const (
	// HighThreshold is the exclusive lower bound for High.
	HighThreshold = 0.70
	// MediumThreshold is the exclusive lower bound for Medium.
	MediumThreshold = 0.30
)

// Classification is the result of classifying a score.
type Classification struct {
	Score float64 `json:"score"`
	Label Label   `json:"label"`
	Tier  Tier    `json:"tier"`
}

// Percent renders the score the way the dashboard shows it, e.g. "89.0%".
func (c Classification) Percent() string {
	return fmt.Sprintf("%.1f%%", c.Score*100)
}

// Clamp forces a score into [0,1].
func Clamp(score float64) float64 {
	if score != score { // NaN
		return 0
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Classify buckets a score. Out-of-range scores are clamped first.
func Classify(score float64) Classification {
	s := Clamp(score)
	switch {
	case s > HighThreshold:
		return Classification{Score: s, Label: High, Tier: TierRed}
	case s > MediumThreshold:
		return Classification{Score: s, Label: Medium, Tier: TierYellow}
	default:
		return Classification{Score: s, Label: Low, Tier: TierGreen}
	}
}

// LabelFor is shorthand for Classify(score).Label.
func LabelFor(score float64) Label {
	return Classify(score).Label
}

// ParseLabel validates a label string. The empty string is not a label.
func ParseLabel(s string) (Label, bool) {
	for _, l := range Labels {
		if string(l) == s {
			return l, true
		}
	}
	return "", false
}

// TierFor returns the tier of a label, or "" for an unknown label.
func TierFor(l Label) Tier {
	switch l {
	case High:
		return TierRed
	case Medium:
		return TierYellow
	case Low:
		return TierGreen
	}
	return ""
}

// ColorTag is the chart colour for a label.
func ColorTag(l Label) string {
	switch l {
	case High:
		return "#ef4444"
	case Medium:
		return "#f59e0b"
	case Low:
		return "#10b981"
	}
	return "#6b7280"
}
