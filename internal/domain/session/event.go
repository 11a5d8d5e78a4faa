package session

// EventType names a user interaction.
type EventType string

const (
	EventTabSelected       EventType = "tab_selected"
	EventSearchChanged     EventType = "search_changed"
	EventRiskFilterChanged EventType = "risk_filter_changed"
	EventPatientClicked    EventType = "patient_clicked"
	EventOverlayDismissed  EventType = "overlay_dismissed"

	EventUploadRequested   EventType = "upload_requested"
	EventExportRequested   EventType = "export_requested"
	EventSettingsRequested EventType = "settings_requested"
	EventReportRequested   EventType = "report_requested"
)

// Event is one interaction sent by the client. Only the field matching Type
// is read.
type Event struct {
	Type       EventType `json:"type"`
	Tab        string    `json:"tab,omitempty"`
	SearchTerm string    `json:"search_term,omitempty"`
	RiskFilter string    `json:"risk_filter,omitempty"`
	PatientID  string    `json:"patient_id,omitempty"`
}

// Trigger reports whether t is a pass-through action with no state change.
func (t EventType) Trigger() bool {
	switch t {
	case EventUploadRequested, EventExportRequested, EventSettingsRequested, EventReportRequested:
		return true
	}
	return false
}
