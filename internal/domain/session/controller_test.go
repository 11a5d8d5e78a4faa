package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/readmit/readmit/internal/domain/patient"
)

func samplePatients() []patient.Patient {
	d := patient.NewDate(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	return []patient.Patient{
		patient.New("P001", "Ahmed Benali", 67, "Insuffisance cardiaque", 0.89, []string{"Âge > 65"}, d),
		patient.New("P002", "Fatima Khelif", 45, "Pneumonie", 0.45, []string{"Diabète"}, d),
		patient.New("P003", "Mohamed Saidi", 32, "Appendicectomie", 0.12, []string{"Aucun facteur majeur"}, d),
	}
}

func newPatientService() *patient.Service {
	return patient.NewService(patient.NewMemoryRepo(samplePatients()), patient.NewMatcher(false))
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	c, err := newController(context.Background(), "s1", newPatientService(), zerolog.Nop(), time.Now)
	if err != nil {
		t.Fatalf("newController: %v", err)
	}
	return c
}

func ids(ps []patient.Patient) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestController_InitialView(t *testing.T) {
	v := newTestController(t).View()

	if v.State.ActiveTab != TabDashboard {
		t.Errorf("expected dashboard tab, got %s", v.State.ActiveTab)
	}
	if v.State.Loading {
		t.Error("loading should be false")
	}
	if v.State.SelectedPatient != nil {
		t.Error("no patient should be selected")
	}
	if v.Version != 0 {
		t.Errorf("expected version 0, got %d", v.Version)
	}
	if !equalIDs(ids(v.FilteredPatients), []string{"P001", "P002", "P003"}) {
		t.Errorf("expected full collection, got %v", ids(v.FilteredPatients))
	}
}

func TestController_TabTransitions(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	for _, tab := range []Tab{TabPatients, TabAnalytics, TabDashboard, TabAnalytics} {
		v, changed, err := c.Apply(ctx, Event{Type: EventTabSelected, Tab: string(tab)})
		if err != nil {
			t.Fatalf("select %s: %v", tab, err)
		}
		if !changed || v.State.ActiveTab != tab {
			t.Errorf("expected active tab %s, got %s", tab, v.State.ActiveTab)
		}
	}
	if got := c.View().Version; got != 4 {
		t.Errorf("expected version 4, got %d", got)
	}
}

func TestController_RejectedEventsLeaveStateUntouched(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want error
	}{
		{"unknown tab", Event{Type: EventTabSelected, Tab: "settings"}, ErrInvalidTab},
		{"unknown risk filter", Event{Type: EventRiskFilterChanged, RiskFilter: "Critique"}, ErrInvalidRiskFilter},
		{"unknown patient", Event{Type: EventPatientClicked, PatientID: "P999"}, patient.ErrNotFound},
		{"unknown event", Event{Type: "double_click"}, ErrUnknownEvent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(t)
			before := c.View()
			_, changed, err := c.Apply(context.Background(), tt.ev)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if changed {
				t.Error("rejected event reported a change")
			}
			after := c.View()
			if after.Version != before.Version || after.State != before.State {
				t.Errorf("state changed: %+v -> %+v", before.State, after.State)
			}
		})
	}
}

func TestController_SearchAndFilterRecomputeWorkingSet(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	v, _, err := c.Apply(ctx, Event{Type: EventSearchChanged, SearchTerm: "ali"})
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(v.FilteredPatients), []string{"P001"}) {
		t.Errorf("search ali: got %v", ids(v.FilteredPatients))
	}

	v, _, err = c.Apply(ctx, Event{Type: EventSearchChanged, SearchTerm: ""})
	if err != nil {
		t.Fatal(err)
	}
	v, _, err = c.Apply(ctx, Event{Type: EventRiskFilterChanged, RiskFilter: "Moyen"})
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(v.FilteredPatients), []string{"P002"}) {
		t.Errorf("filter Moyen: got %v", ids(v.FilteredPatients))
	}

	v, _, err = c.Apply(ctx, Event{Type: EventSearchChanged, SearchTerm: "ahmed"})
	if err != nil {
		t.Fatal(err)
	}
	if len(v.FilteredPatients) != 0 {
		t.Errorf("expected empty working set, got %v", ids(v.FilteredPatients))
	}
	if v.FilteredPatients == nil {
		t.Error("empty working set should be non-nil")
	}
}

func TestController_SelectThenDismiss(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	v, _, err := c.Apply(ctx, Event{Type: EventPatientClicked, PatientID: "P001"})
	if err != nil {
		t.Fatal(err)
	}
	if v.State.SelectedPatient == nil || v.State.SelectedPatient.Patient.ID != "P001" {
		t.Fatalf("expected P001 selected, got %+v", v.State.SelectedPatient)
	}
	if v.State.SelectedPatient.ScorePercent != "89.0%" {
		t.Errorf("expected 89.0%%, got %s", v.State.SelectedPatient.ScorePercent)
	}

	v, _, err = c.Apply(ctx, Event{Type: EventOverlayDismissed})
	if err != nil {
		t.Fatal(err)
	}
	if v.State.SelectedPatient != nil {
		t.Error("expected no selection after dismiss")
	}
}

func TestController_SelectReplacesWithoutHistory(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	if _, _, err := c.Apply(ctx, Event{Type: EventPatientClicked, PatientID: "P001"}); err != nil {
		t.Fatal(err)
	}
	v, _, err := c.Apply(ctx, Event{Type: EventPatientClicked, PatientID: "P002"})
	if err != nil {
		t.Fatal(err)
	}
	if v.State.SelectedPatient.Patient.ID != "P002" {
		t.Fatalf("expected P002, got %s", v.State.SelectedPatient.Patient.ID)
	}

	v, _, _ = c.Apply(ctx, Event{Type: EventOverlayDismissed})
	if v.State.SelectedPatient != nil {
		t.Error("dismiss should clear selection, not return to P001")
	}
}

func TestController_TriggersAreNoOps(t *testing.T) {
	c := newTestController(t)
	before := c.View()

	for _, typ := range []EventType{EventUploadRequested, EventExportRequested, EventSettingsRequested, EventReportRequested} {
		v, changed, err := c.Apply(context.Background(), Event{Type: typ})
		if err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
		if changed || v.Version != before.Version || v.State != before.State {
			t.Errorf("%s changed state", typ)
		}
	}
}

func TestController_SnapshotsAreIndependent(t *testing.T) {
	c := newTestController(t)
	first := c.View()
	first.FilteredPatients[0] = patient.Patient{ID: "mutated"}

	if c.View().FilteredPatients[0].ID != "P001" {
		t.Error("mutating a snapshot leaked into the controller")
	}
}
