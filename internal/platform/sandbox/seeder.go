// Package sandbox generates reproducible synthetic readmission cohorts for
// demos and load testing. A cohort is internally consistent: labels come from
// the classifier, stats are counted from the patients, risk factor impacts
// and monthly trends are derived from the same simulated population.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/readmit/readmit/internal/domain/dashboard"
	"github.com/readmit/readmit/internal/domain/patient"
	"github.com/readmit/readmit/internal/platform/dataset"
)

// SeedConfig controls the size and shape of a generated cohort.
type SeedConfig struct {
	PatientCount int   `json:"patient_count"`
	Months       int   `json:"months"`
	Seed         int64 `json:"seed"`
}

// DefaultSeedConfig returns a SeedConfig with demo defaults.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{PatientCount: 100, Months: 6}
}

// SeedResult summarises a generated cohort.
type SeedResult struct {
	Patients   int             `json:"patients"`
	Stats      dashboard.Stats `json:"stats"`
	Seed       int64           `json:"seed"`
	DurationMs int64           `json:"duration_ms"`
}

// predictionCutoff is the score at or above which the model predicts a
// readmission.
const predictionCutoff = 0.5

func predicted(score float64) bool {
	return score >= predictionCutoff
}

var (
	firstNames = []string{
		"Ahmed", "Fatima", "Mohamed", "Amina", "Karim", "Leïla", "Youssef",
		"Nadia", "Rachid", "Samira", "Hélène", "Jean", "Marie", "Pierre",
		"Sophie", "Élodie", "François", "Claire", "Nicolas", "Inès",
	}
	lastNames = []string{
		"Benali", "Khelif", "Saidi", "Bouzid", "Haddad", "Mansouri",
		"Cherif", "Amrani", "Martin", "Bernard", "Dubois", "Lefèvre",
		"Moreau", "Girard", "Rousseau", "Fontaine", "Mercier", "Chevalier",
	}
	conditions = []string{
		"Insuffisance cardiaque", "Pneumonie", "Appendicectomie", "BPCO",
		"Diabète déséquilibré", "Infarctus du myocarde", "AVC ischémique",
		"Insuffisance rénale", "Fracture du col du fémur", "Sepsis",
	}
	factorPool = []string{
		"Âge > 65 ans", "Diabète", "Hospitalisations précédentes",
		"Durée de séjour > 7j", "Insuffisance cardiaque", "Hypertension",
		"Historique respiratoire", "Polymédication", "Isolement social",
	}
	monthLabels = []string{"Jan", "Fév", "Mar", "Avr", "Mai", "Jun", "Jul", "Aoû", "Sep", "Oct", "Nov", "Déc"}
)

// noMajorFactor is listed for patients without any identified factor.
const noMajorFactor = "Aucun facteur majeur"

// Generator produces synthetic patients from a seeded RNG.
type Generator struct {
	rng     *rand.Rand
	counter int
	until   time.Time
}

// NewGenerator creates a generator whose admissions end on until.
func NewGenerator(seed int64, until time.Time) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed)), until: until}
}

func (g *Generator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

// score is skewed toward low risk, rounded to two decimals.
func (g *Generator) score() float64 {
	s := math.Pow(g.rng.Float64(), 2)
	return math.Round(s*100) / 100
}

// Patient generates one patient admitted within the trailing window of
// months calendar months ending at the generator's end date.
func (g *Generator) Patient(months int) patient.Patient {
	g.counter++
	s := g.score()

	var factors []string
	if s > 0.3 {
		n := 1 + g.rng.Intn(3)
		seen := map[string]bool{}
		for len(factors) < n {
			f := g.pick(factorPool)
			if !seen[f] {
				seen[f] = true
				factors = append(factors, f)
			}
		}
	} else {
		factors = []string{noMajorFactor}
	}

	from := time.Date(g.until.Year(), g.until.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1-months, 0)
	span := int(g.until.Sub(from).Hours()/24) + 1
	admitted := patient.NewDate(from.AddDate(0, 0, g.rng.Intn(span)))

	return patient.New(
		fmt.Sprintf("S%04d", g.counter),
		g.pick(firstNames)+" "+g.pick(lastNames),
		18+g.rng.Intn(78),
		g.pick(conditions),
		s,
		factors,
		admitted,
	)
}

// readmitted simulates the observed outcome for a score.
func (g *Generator) readmitted(score float64) bool {
	return g.rng.Float64() < score
}

// Cohort generates a complete, consistent dataset.
func (g *Generator) Cohort(cfg SeedConfig) *dataset.Dataset {
	months := cfg.Months
	if months <= 0 {
		months = 6
	}

	patients := make([]patient.Patient, 0, cfg.PatientCount)
	for i := 0; i < cfg.PatientCount; i++ {
		patients = append(patients, g.Patient(months))
	}

	type bucket struct{ predictions, actual int }
	byMonth := map[string]*bucket{}
	correct := 0
	factorSum := map[string]float64{}
	factorCount := map[string]int{}
	for _, p := range patients {
		flagged := predicted(p.RiskScore)
		actual := g.readmitted(p.RiskScore)
		if flagged == actual {
			correct++
		}
		key := p.AdmissionDate.Format("2006-01")
		b := byMonth[key]
		if b == nil {
			b = &bucket{}
			byMonth[key] = b
		}
		if flagged {
			b.predictions++
		}
		if actual {
			b.actual++
		}
		for _, f := range p.Factors {
			if f == noMajorFactor {
				continue
			}
			factorSum[f] += p.RiskScore
			factorCount[f]++
		}
	}

	accuracy := 0.0
	if len(patients) > 0 {
		accuracy = math.Round(float64(correct)/float64(len(patients))*1000) / 10
	}

	var trends []dashboard.MonthlyTrendPoint
	first := time.Date(g.until.Year(), g.until.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := months - 1; i >= 0; i-- {
		m := first.AddDate(0, -i, 0)
		point := dashboard.MonthlyTrendPoint{Month: monthLabels[int(m.Month())-1]}
		if b := byMonth[m.Format("2006-01")]; b != nil {
			point.Predictions, point.Actual = b.predictions, b.actual
		}
		trends = append(trends, point)
	}

	var factors []dashboard.RiskFactorImpact
	for _, f := range factorPool {
		if factorCount[f] == 0 {
			continue
		}
		impact := math.Round(factorSum[f]/float64(factorCount[f])*100) / 100
		factors = append(factors, dashboard.RiskFactorImpact{Factor: f, Impact: impact})
	}

	return &dataset.Dataset{
		Patients: patients,
		Dashboard: dashboard.Source{
			Stats:         dashboard.StatsFromPatients(patients, accuracy),
			RiskFactors:   factors,
			MonthlyTrends: trends,
		},
	}
}

// TxRunner runs fn as one unit of work. Writers called with the ctx passed
// to fn join that unit.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

func runDirect(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Seeder generates cohorts and writes them to the active data source.
type Seeder struct {
	mu       sync.RWMutex
	patients patient.Writer
	stats    dashboard.Writer
	inTx     TxRunner
	logger   zerolog.Logger
	now      func() time.Time
	last     *dataset.Dataset
}

// NewSeeder creates a seeder writing to the given data source.
func NewSeeder(patients patient.Writer, stats dashboard.Writer, logger zerolog.Logger) *Seeder {
	return &Seeder{patients: patients, stats: stats, inTx: runDirect, logger: logger, now: time.Now}
}

// WithTx makes Seed write patients and aggregates through run, so a failed
// aggregate write leaves the previous patients in place.
func (s *Seeder) WithTx(run TxRunner) *Seeder {
	if run == nil {
		run = runDirect
	}
	s.inTx = run
	return s
}

// Seed generates a cohort and replaces the data source with it.
func (s *Seeder) Seed(ctx context.Context, cfg SeedConfig) (*SeedResult, error) {
	start := s.now()
	if cfg.Seed == 0 {
		cfg.Seed = start.UnixNano()
	}
	if cfg.PatientCount < 0 {
		return nil, fmt.Errorf("patient_count must not be negative")
	}

	ds := NewGenerator(cfg.Seed, start).Cohort(cfg)
	err := s.inTx(ctx, func(ctx context.Context) error {
		if err := s.patients.ReplaceAll(ctx, ds.Patients); err != nil {
			return fmt.Errorf("write patients: %w", err)
		}
		if err := s.stats.Replace(ctx, ds.Dashboard); err != nil {
			return fmt.Errorf("write dashboard aggregates: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.last = ds
	s.mu.Unlock()

	s.logger.Info().
		Int("patients", len(ds.Patients)).
		Int64("seed", cfg.Seed).
		Msg("sandbox cohort seeded")

	return &SeedResult{
		Patients:   len(ds.Patients),
		Stats:      ds.Dashboard.Stats,
		Seed:       cfg.Seed,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// Last returns the most recently seeded cohort, or nil.
func (s *Seeder) Last() *dataset.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// ExportNDJSON writes the last cohort's patients as newline-delimited JSON.
func (s *Seeder) ExportNDJSON(w io.Writer) error {
	ds := s.Last()
	if ds == nil {
		return nil
	}
	enc := json.NewEncoder(w)
	for _, p := range ds.Patients {
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("encoding patient %s: %w", p.ID, err)
		}
	}
	return nil
}

// SeedHandler provides HTTP endpoints for sandbox data management.
type SeedHandler struct {
	seeder *Seeder
}

func NewSeedHandler(seeder *Seeder) *SeedHandler {
	return &SeedHandler{seeder: seeder}
}

// RegisterRoutes registers sandbox routes on the given Echo group.
func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/seed", h.handleSeed)
	g.GET("/patients.ndjson", h.handleExportNDJSON)
	g.GET("/dataset.yaml", h.handleExportYAML)
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	cfg := DefaultSeedConfig()
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&cfg); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	result, err := h.seeder.Seed(c.Request().Context(), cfg)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *SeedHandler) handleExportNDJSON(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderContentType, "application/x-ndjson")
	c.Response().WriteHeader(http.StatusOK)
	return h.seeder.ExportNDJSON(c.Response().Writer)
}

func (h *SeedHandler) handleExportYAML(c echo.Context) error {
	ds := h.seeder.Last()
	if ds == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no cohort seeded yet")
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/yaml")
	c.Response().WriteHeader(http.StatusOK)
	return dataset.Write(c.Response().Writer, ds)
}
