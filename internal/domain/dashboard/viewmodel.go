package dashboard

import (
	"sort"

	"github.com/readmit/readmit/internal/domain/risk"
)

var distributionNames = map[risk.Label]string{
	risk.High:   "Risque Élevé",
	risk.Medium: "Risque Moyen",
	risk.Low:    "Risque Faible",
}

// RiskDistribution derives the chart slices from the stats so the two can
// never drift apart.
func RiskDistribution(s Stats) []DistributionEntry {
	out := make([]DistributionEntry, 0, len(risk.Labels))
	for _, l := range risk.Labels {
		out = append(out, DistributionEntry{
			Label:    l,
			Name:     distributionNames[l],
			Count:    s.Count(l),
			ColorTag: risk.ColorTag(l),
		})
	}
	return out
}

// RankRiskFactors returns a copy sorted by descending impact. Equal impacts
// keep their input order.
func RankRiskFactors(factors []RiskFactorImpact) []RiskFactorImpact {
	out := make([]RiskFactorImpact, len(factors))
	copy(out, factors)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Impact > out[j].Impact
	})
	return out
}

// Build shapes a Source into the dashboard view model. Trends pass through
// in the order supplied.
func Build(src Source) ViewModel {
	trends := make([]MonthlyTrendPoint, len(src.MonthlyTrends))
	copy(trends, src.MonthlyTrends)
	return ViewModel{
		Stats:             src.Stats,
		RiskDistribution:  RiskDistribution(src.Stats),
		RiskFactorRanking: RankRiskFactors(src.RiskFactors),
		MonthlyTrends:     trends,
	}
}
