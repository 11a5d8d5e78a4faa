package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/readmit/readmit/internal/domain/patient"
)

// PatientSource supplies the working set and the detail overlay.
type PatientSource interface {
	Search(ctx context.Context, c patient.Criteria) ([]patient.Patient, error)
	GetDetail(ctx context.Context, id string) (*patient.Detail, error)
}

// Controller owns the UI state of one session. Events are applied one at a
// time; a rejected event leaves state and version untouched.
type Controller struct {
	mu         sync.Mutex
	id         string
	version    int
	state      State
	working    []patient.Patient
	lastActive time.Time

	patients PatientSource
	logger   zerolog.Logger
	now      func() time.Time
}

func newController(ctx context.Context, id string, patients PatientSource, logger zerolog.Logger, now func() time.Time) (*Controller, error) {
	c := &Controller{
		id:         id,
		state:      Initial(),
		patients:   patients,
		logger:     logger.With().Str("session_id", id).Logger(),
		now:        now,
		lastActive: now(),
	}
	working, err := patients.Search(ctx, patient.Criteria{})
	if err != nil {
		return nil, fmt.Errorf("initial working set: %w", err)
	}
	c.working = working
	return c, nil
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// View returns the current snapshot.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	working := make([]patient.Patient, len(c.working))
	copy(working, c.working)
	return View{
		SessionID:        c.id,
		Version:          c.version,
		State:            c.state,
		FilteredPatients: working,
	}
}

// Apply handles one event. changed is false for pass-through triggers.
func (c *Controller) Apply(ctx context.Context, ev Event) (v View, changed bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastActive = c.now()

	if ev.Type.Trigger() {
		c.logger.Info().Str("event", string(ev.Type)).Str("tab", string(c.state.ActiveTab)).Msg("action requested")
		return c.viewLocked(), false, nil
	}

	next := c.state
	working := c.working

	switch ev.Type {
	case EventTabSelected:
		tab, err := ParseTab(ev.Tab)
		if err != nil {
			return View{}, false, err
		}
		next.ActiveTab = tab

	case EventSearchChanged:
		next.SearchTerm = ev.SearchTerm
		if working, err = c.patients.Search(ctx, criteriaOf(next)); err != nil {
			return View{}, false, err
		}

	case EventRiskFilterChanged:
		next.RiskFilter = ev.RiskFilter
		if working, err = c.patients.Search(ctx, criteriaOf(next)); err != nil {
			return View{}, false, err
		}

	case EventPatientClicked:
		d, err := c.patients.GetDetail(ctx, ev.PatientID)
		if err != nil {
			return View{}, false, err
		}
		next.SelectedPatient = d

	case EventOverlayDismissed:
		next.SelectedPatient = nil

	default:
		return View{}, false, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}

	c.state = next
	c.working = working
	c.version++
	return c.viewLocked(), true, nil
}

func (c *Controller) touch(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.After(c.lastActive) {
		c.lastActive = now
	}
}

func (c *Controller) idle(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastActive)
}

func criteriaOf(s State) patient.Criteria {
	return patient.Criteria{Search: s.SearchTerm, Risk: s.RiskFilter}
}
