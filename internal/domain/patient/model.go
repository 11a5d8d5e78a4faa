package patient

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/readmit/readmit/internal/domain/risk"
)

// ErrNotFound is returned when no patient has the requested id.
var ErrNotFound = errors.New("patient not found")

// DateLayout is the wire format of admission dates.
const DateLayout = "2006-01-02"

// Date is a calendar date serialised as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d Date) String() string { return d.Format(DateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Patient is a hospitalised patient with a predicted readmission risk.
// Risk is always derived from RiskScore; use New to build one.
type Patient struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Age           int        `json:"age"`
	Condition     string     `json:"condition"`
	RiskScore     float64    `json:"risk_score"`
	Risk          risk.Label `json:"risk"`
	Factors       []string   `json:"factors"`
	AdmissionDate Date       `json:"admission_date"`
}

// New builds a patient whose label is consistent with its (clamped) score.
func New(id, name string, age int, condition string, score float64, factors []string, admitted Date) Patient {
	c := risk.Classify(score)
	f := make([]string, len(factors))
	copy(f, factors)
	return Patient{
		ID:            id,
		Name:          name,
		Age:           age,
		Condition:     condition,
		RiskScore:     c.Score,
		Risk:          c.Label,
		Factors:       f,
		AdmissionDate: admitted,
	}
}

// Classification returns the risk classification of the patient's score.
func (p Patient) Classification() risk.Classification {
	return risk.Classify(p.RiskScore)
}

// Clone returns a deep copy so callers cannot mutate shared factor slices.
func (p Patient) Clone() Patient {
	c := p
	c.Factors = make([]string, len(p.Factors))
	copy(c.Factors, p.Factors)
	return c
}

// DefaultRecommendations is the follow-up plan shown in the detail overlay.
var DefaultRecommendations = []string{
	"Suivi cardiologique dans les 48h après la sortie",
	"Contrôle glycémique strict",
	"Programme d'éducation thérapeutique",
}

// Detail is the patient overlay payload.
type Detail struct {
	Patient         Patient             `json:"patient"`
	Classification  risk.Classification `json:"classification"`
	ScorePercent    string              `json:"score_percent"`
	Recommendations []string            `json:"recommendations"`
}

// NewDetail assembles the overlay for p.
func NewDetail(p Patient, recommendations []string) Detail {
	c := p.Classification()
	recs := make([]string, len(recommendations))
	copy(recs, recommendations)
	return Detail{
		Patient:         p.Clone(),
		Classification:  c,
		ScorePercent:    c.Percent(),
		Recommendations: recs,
	}
}
