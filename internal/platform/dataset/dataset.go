// Package dataset loads the static dashboard data source from YAML and
// enforces the invariants the views rely on.
//
// Scores outside [0,1] are clamped and any supplied risk label is replaced by
// the one derived from the score; both produce warnings. Everything else that
// breaks an invariant (duplicate ids, inconsistent stats, negative counts,
// out-of-range impacts or accuracy) rejects the whole dataset.
package dataset

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/readmit/readmit/internal/domain/dashboard"
	"github.com/readmit/readmit/internal/domain/patient"
	"github.com/readmit/readmit/internal/domain/risk"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid dataset")

//go:embed default.yaml
var defaultYAML []byte

// Dataset is a validated snapshot of the data source.
type Dataset struct {
	Patients  []patient.Patient
	Dashboard dashboard.Source
	Warnings  []string
}

type rawPatient struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Age           int      `yaml:"age"`
	Condition     string   `yaml:"condition"`
	RiskScore     float64  `yaml:"risk_score"`
	Risk          string   `yaml:"risk"`
	AdmissionDate string   `yaml:"admission_date"`
	Factors       []string `yaml:"factors"`
}

type rawDataset struct {
	Stats         dashboard.Stats               `yaml:"stats"`
	RiskFactors   []dashboard.RiskFactorImpact  `yaml:"risk_factors"`
	MonthlyTrends []dashboard.MonthlyTrendPoint `yaml:"monthly_trends"`
	Patients      []rawPatient                  `yaml:"patients"`
}

// Load decodes and validates a YAML dataset. Unknown keys are rejected.
func Load(r io.Reader) (*Dataset, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var raw rawDataset
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalid)
		}
		return nil, fmt.Errorf("%w: decode yaml: %v", ErrInvalid, err)
	}
	return build(raw)
}

// LoadFile loads a dataset from disk.
func LoadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Default returns the embedded sample dataset.
func Default() *Dataset {
	ds, err := Load(bytes.NewReader(defaultYAML))
	if err != nil {
		panic(fmt.Sprintf("embedded dataset is invalid: %v", err))
	}
	return ds
}

func build(raw rawDataset) (*Dataset, error) {
	var problems []error
	ds := &Dataset{Patients: make([]patient.Patient, 0, len(raw.Patients))}

	if err := raw.Stats.Validate(); err != nil {
		problems = append(problems, err)
	}
	for i, f := range raw.RiskFactors {
		if f.Factor == "" {
			problems = append(problems, fmt.Errorf("risk_factors[%d]: empty factor", i))
		}
		if f.Impact < 0 || f.Impact > 1 {
			problems = append(problems, fmt.Errorf("risk_factors[%d]: impact %.2f outside [0,1]", i, f.Impact))
		}
	}
	for i, m := range raw.MonthlyTrends {
		if m.Month == "" {
			problems = append(problems, fmt.Errorf("monthly_trends[%d]: empty month", i))
		}
		if m.Predictions < 0 || m.Actual < 0 {
			problems = append(problems, fmt.Errorf("monthly_trends[%d]: negative count", i))
		}
	}

	seen := make(map[string]bool, len(raw.Patients))
	for i, rp := range raw.Patients {
		if rp.ID == "" {
			problems = append(problems, fmt.Errorf("patients[%d]: empty id", i))
			continue
		}
		if seen[rp.ID] {
			problems = append(problems, fmt.Errorf("patients[%d]: duplicate id %s", i, rp.ID))
			continue
		}
		seen[rp.ID] = true
		if rp.Age <= 0 {
			problems = append(problems, fmt.Errorf("patient %s: age must be positive", rp.ID))
		}
		admitted, err := patient.ParseDate(rp.AdmissionDate)
		if err != nil {
			problems = append(problems, fmt.Errorf("patient %s: %v", rp.ID, err))
		}

		clamped := risk.Clamp(rp.RiskScore)
		if clamped != rp.RiskScore {
			ds.Warnings = append(ds.Warnings,
				fmt.Sprintf("patient %s: risk_score %v clamped to %v", rp.ID, rp.RiskScore, clamped))
		}
		p := patient.New(rp.ID, rp.Name, rp.Age, rp.Condition, clamped, rp.Factors, admitted)
		if rp.Risk != "" && rp.Risk != string(p.Risk) {
			ds.Warnings = append(ds.Warnings,
				fmt.Sprintf("patient %s: risk %q replaced by %q derived from score", rp.ID, rp.Risk, p.Risk))
		}
		ds.Patients = append(ds.Patients, p)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, errors.Join(problems...))
	}

	ds.Dashboard = dashboard.Source{
		Stats:         raw.Stats,
		RiskFactors:   raw.RiskFactors,
		MonthlyTrends: raw.MonthlyTrends,
	}
	return ds, nil
}

// Write encodes ds in the format Load accepts.
func Write(w io.Writer, ds *Dataset) error {
	raw := rawDataset{
		Stats:         ds.Dashboard.Stats,
		RiskFactors:   ds.Dashboard.RiskFactors,
		MonthlyTrends: ds.Dashboard.MonthlyTrends,
		Patients:      make([]rawPatient, 0, len(ds.Patients)),
	}
	for _, p := range ds.Patients {
		raw.Patients = append(raw.Patients, rawPatient{
			ID:            p.ID,
			Name:          p.Name,
			Age:           p.Age,
			Condition:     p.Condition,
			RiskScore:     p.RiskScore,
			Risk:          string(p.Risk),
			AdmissionDate: p.AdmissionDate.String(),
			Factors:       p.Factors,
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(raw); err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	return enc.Close()
}
