// Package reporting evaluates the analytics measures behind the full report
// of the analytics tab.
package reporting

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/readmit/readmit/internal/domain/dashboard"
	"github.com/readmit/readmit/internal/platform/auth"
)

// Row is one result line of a measure.
type Row map[string]any

// MeasureDefinition describes a measure and how to compute it from the
// dashboard view model.
type MeasureDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Columns     []string `json:"columns"`

	eval func(vm dashboard.ViewModel) []Row
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string    `json:"measure_id"`
	MeasureName string    `json:"measure_name"`
	Description string    `json:"description"`
	Columns     []string  `json:"columns"`
	GeneratedAt time.Time `json:"generated_at"`
	Results     []Row     `json:"results"`
	Summary     Row       `json:"summary,omitempty"`
}

// FullReport bundles every predefined measure.
type FullReport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Measures    []MeasureReport `json:"measures"`
}

// PredefinedMeasures is the list of available measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "risk-distribution",
		Name:        "Risk Distribution",
		Description: "Patients per risk bucket with their share of the total",
		Columns:     []string{"label", "count", "share_percent"},
		eval:        riskDistribution,
	},
	{
		ID:          "risk-factor-ranking",
		Name:        "Risk Factor Ranking",
		Description: "Risk factors ordered by decreasing impact",
		Columns:     []string{"rank", "factor", "impact"},
		eval:        riskFactorRanking,
	},
	{
		ID:          "monthly-trends",
		Name:        "Monthly Trends",
		Description: "Predicted versus actual readmissions per month with absolute error",
		Columns:     []string{"month", "predictions", "actual", "absolute_error"},
		eval:        monthlyTrends,
	},
	{
		ID:          "model-accuracy",
		Name:        "Model Accuracy",
		Description: "Overall model accuracy and mean absolute error of monthly predictions",
		Columns:     []string{"accuracy_percent", "mean_absolute_error", "months"},
		eval:        modelAccuracy,
	},
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}

// Evaluate computes m over vm.
func (m *MeasureDefinition) Evaluate(vm dashboard.ViewModel, now time.Time) MeasureReport {
	rows := m.eval(vm)
	if rows == nil {
		rows = []Row{}
	}
	r := MeasureReport{
		MeasureID:   m.ID,
		MeasureName: m.Name,
		Description: m.Description,
		Columns:     m.Columns,
		GeneratedAt: now,
		Results:     rows,
	}
	if m.ID == "monthly-trends" {
		r.Summary = Row{"mean_absolute_error": MeanAbsoluteError(vm.MonthlyTrends)}
	}
	return r
}

// Full evaluates every predefined measure over vm.
func Full(vm dashboard.ViewModel, now time.Time) FullReport {
	out := FullReport{GeneratedAt: now, Measures: make([]MeasureReport, 0, len(PredefinedMeasures))}
	for i := range PredefinedMeasures {
		out.Measures = append(out.Measures, PredefinedMeasures[i].Evaluate(vm, now))
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func riskDistribution(vm dashboard.ViewModel) []Row {
	total := vm.Stats.TotalPatients
	rows := make([]Row, 0, len(vm.RiskDistribution))
	for _, d := range vm.RiskDistribution {
		share := 0.0
		if total > 0 {
			share = round(float64(d.Count)/float64(total)*100, 1)
		}
		rows = append(rows, Row{"label": string(d.Label), "count": d.Count, "share_percent": share})
	}
	return rows
}

func riskFactorRanking(vm dashboard.ViewModel) []Row {
	rows := make([]Row, 0, len(vm.RiskFactorRanking))
	for i, f := range vm.RiskFactorRanking {
		rows = append(rows, Row{"rank": i + 1, "factor": f.Factor, "impact": f.Impact})
	}
	return rows
}

func monthlyTrends(vm dashboard.ViewModel) []Row {
	rows := make([]Row, 0, len(vm.MonthlyTrends))
	for _, m := range vm.MonthlyTrends {
		rows = append(rows, Row{
			"month":          m.Month,
			"predictions":    m.Predictions,
			"actual":         m.Actual,
			"absolute_error": absDiff(m.Predictions, m.Actual),
		})
	}
	return rows
}

func modelAccuracy(vm dashboard.ViewModel) []Row {
	return []Row{{
		"accuracy_percent":    vm.Stats.Accuracy,
		"mean_absolute_error": MeanAbsoluteError(vm.MonthlyTrends),
		"months":              len(vm.MonthlyTrends),
	}}
}

// MeanAbsoluteError averages |predictions-actual| over the months, rounded to
// two decimals. It is 0 for an empty series.
func MeanAbsoluteError(trends []dashboard.MonthlyTrendPoint) float64 {
	if len(trends) == 0 {
		return 0
	}
	sum := 0
	for _, m := range trends {
		sum += absDiff(m.Predictions, m.Actual)
	}
	return round(float64(sum)/float64(len(trends)), 2)
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// Source supplies the dashboard view model.
type Source interface {
	Overview(ctx context.Context) (dashboard.ViewModel, error)
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	src Source
	now func() time.Time
}

// NewHandler creates a new reporting handler.
func NewHandler(src Source) *Handler {
	return &Handler{src: src, now: time.Now}
}

// RegisterRoutes registers the reporting API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports", auth.RequireRole("admin", "physician", "analyst"))
	g.GET("/measures", h.ListMeasures)
	g.GET("/measures/:id/evaluate", h.EvaluateMeasure)
	g.GET("/full", h.FullReport)
}

// ListMeasures returns all available measure definitions.
func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure computes one measure over the current dashboard data.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	m := FindMeasure(c.Param("id"))
	if m == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}
	vm, err := h.src.Overview(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, m.Evaluate(vm, h.now().UTC()))
}

// FullReport computes every measure. The format query parameter selects
// json (default), markdown or html.
func (h *Handler) FullReport(c echo.Context) error {
	format := c.QueryParam("format")
	switch format {
	case "", "json", "markdown", "html":
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "format must be json, markdown or html")
	}

	vm, err := h.src.Overview(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	report := Full(vm, h.now().UTC())

	switch format {
	case "markdown":
		return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(Markdown(report)))
	case "html":
		page, err := HTML(report)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.HTMLBlob(http.StatusOK, page)
	}
	return c.JSON(http.StatusOK, report)
}
