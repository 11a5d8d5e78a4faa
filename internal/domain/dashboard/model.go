package dashboard

import (
	"errors"
	"fmt"

	"github.com/readmit/readmit/internal/domain/patient"
	"github.com/readmit/readmit/internal/domain/risk"
)

// ErrInconsistentStats is returned when bucket counts do not sum to the total.
var ErrInconsistentStats = errors.New("inconsistent dashboard stats")

// Stats holds the aggregate counts shown on the stat cards.
type Stats struct {
	TotalPatients int     `json:"total_patients" yaml:"total_patients"`
	HighRisk      int     `json:"high_risk" yaml:"high_risk"`
	MediumRisk    int     `json:"medium_risk" yaml:"medium_risk"`
	LowRisk       int     `json:"low_risk" yaml:"low_risk"`
	Accuracy      float64 `json:"accuracy" yaml:"accuracy"`
}

// Validate checks non-negativity, the bucket sum and the accuracy range.
func (s Stats) Validate() error {
	if s.TotalPatients < 0 || s.HighRisk < 0 || s.MediumRisk < 0 || s.LowRisk < 0 {
		return fmt.Errorf("%w: negative count", ErrInconsistentStats)
	}
	if s.HighRisk+s.MediumRisk+s.LowRisk != s.TotalPatients {
		return fmt.Errorf("%w: %d+%d+%d != %d", ErrInconsistentStats,
			s.HighRisk, s.MediumRisk, s.LowRisk, s.TotalPatients)
	}
	if s.Accuracy < 0 || s.Accuracy > 100 {
		return fmt.Errorf("%w: accuracy %.2f outside [0,100]", ErrInconsistentStats, s.Accuracy)
	}
	return nil
}

// Count returns the bucket count for a label.
func (s Stats) Count(l risk.Label) int {
	switch l {
	case risk.High:
		return s.HighRisk
	case risk.Medium:
		return s.MediumRisk
	case risk.Low:
		return s.LowRisk
	}
	return 0
}

// StatsFromPatients derives consistent bucket counts from a patient collection.
func StatsFromPatients(patients []patient.Patient, accuracy float64) Stats {
	s := Stats{TotalPatients: len(patients), Accuracy: accuracy}
	for _, p := range patients {
		switch risk.LabelFor(p.RiskScore) {
		case risk.High:
			s.HighRisk++
		case risk.Medium:
			s.MediumRisk++
		default:
			s.LowRisk++
		}
	}
	return s
}

// RiskFactorImpact is a population-level risk factor and its model impact.
type RiskFactorImpact struct {
	Factor string  `json:"factor" yaml:"factor"`
	Impact float64 `json:"impact" yaml:"impact"`
}

// MonthlyTrendPoint compares predicted and actual readmissions for a month.
type MonthlyTrendPoint struct {
	Month       string `json:"month" yaml:"month"`
	Predictions int    `json:"predictions" yaml:"predictions"`
	Actual      int    `json:"actual" yaml:"actual"`
}

// DistributionEntry is one slice of the risk distribution chart.
type DistributionEntry struct {
	Label    risk.Label `json:"label"`
	Name     string     `json:"name"`
	Count    int        `json:"count"`
	ColorTag string     `json:"color_tag"`
}

// ViewModel is everything the dashboard tab renders.
type ViewModel struct {
	Stats             Stats               `json:"stats"`
	RiskDistribution  []DistributionEntry `json:"risk_distribution"`
	RiskFactorRanking []RiskFactorImpact  `json:"risk_factor_ranking"`
	MonthlyTrends     []MonthlyTrendPoint `json:"monthly_trends"`
}

// Source is the raw dashboard data a repository supplies.
type Source struct {
	Stats         Stats
	RiskFactors   []RiskFactorImpact
	MonthlyTrends []MonthlyTrendPoint
}
