package session

import (
	"errors"

	"github.com/readmit/readmit/internal/domain/dashboard"
	"github.com/readmit/readmit/internal/domain/patient"
)

var (
	ErrNotFound          = errors.New("session not found")
	ErrInvalidTab        = errors.New("invalid tab")
	ErrInvalidRiskFilter = patient.ErrInvalidRiskFilter
	ErrUnknownEvent      = errors.New("unknown event type")
)

// Tab is the active view of the dashboard.
type Tab string

const (
	TabDashboard Tab = "dashboard"
	TabPatients  Tab = "patients"
	TabAnalytics Tab = "analytics"
)

// ParseTab validates s as a Tab.
func ParseTab(s string) (Tab, error) {
	switch t := Tab(s); t {
	case TabDashboard, TabPatients, TabAnalytics:
		return t, nil
	}
	return "", ErrInvalidTab
}

// State is the UI state of one interactive session. SelectedPatient is nil
// when no detail overlay is open.
type State struct {
	ActiveTab       Tab             `json:"active_tab"`
	SearchTerm      string          `json:"search_term"`
	RiskFilter      string          `json:"risk_filter"`
	SelectedPatient *patient.Detail `json:"selected_patient"`
	Loading         bool            `json:"loading"`
}

// Initial returns the state of a new session.
func Initial() State {
	return State{ActiveTab: TabDashboard}
}

// View is the immutable snapshot handed to the client after every change.
type View struct {
	SessionID        string               `json:"session_id"`
	Version          int                  `json:"version"`
	State            State                `json:"state"`
	FilteredPatients []patient.Patient    `json:"filtered_patients"`
	Dashboard        *dashboard.ViewModel `json:"dashboard,omitempty"`
}
