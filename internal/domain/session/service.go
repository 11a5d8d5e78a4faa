package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/readmit/readmit/internal/domain/dashboard"
	"github.com/readmit/readmit/internal/platform/websocket"
)

// EventSessionUpdated is the websocket event type carrying a new View.
const EventSessionUpdated = "session.updated"

// Topic returns the websocket topic of a session.
func Topic(id string) string { return "session:" + id }

// DashboardSource supplies the aggregate view model.
type DashboardSource interface {
	Overview(ctx context.Context) (dashboard.ViewModel, error)
}

// Outcomes passed to an EventRecorder.
const (
	OutcomeApplied  = "applied"
	OutcomeTrigger  = "trigger"
	OutcomeRejected = "rejected"
)

// EventRecorder counts session events by type and outcome.
type EventRecorder interface {
	RecordSessionEvent(eventType, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordSessionEvent(string, string) {}

// Service runs sessions and publishes their snapshots.
type Service struct {
	store     *Store
	patients  PatientSource
	dashboard DashboardSource
	publisher websocket.EventPublisher
	recorder  EventRecorder
	logger    zerolog.Logger
}

// NewService creates a session service. publisher may be nil.
func NewService(store *Store, patients PatientSource, dash DashboardSource, publisher websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{store: store, patients: patients, dashboard: dash, publisher: publisher, recorder: nopRecorder{}, logger: logger}
}

// WithRecorder sets where event outcomes are counted.
func (s *Service) WithRecorder(r EventRecorder) *Service {
	if r == nil {
		r = nopRecorder{}
	}
	s.recorder = r
	return s
}

// Start opens a session and returns its first View.
func (s *Service) Start(ctx context.Context) (View, error) {
	c, err := s.store.Create(ctx, s.patients)
	if err != nil {
		return View{}, err
	}
	s.logger.Info().Str("session_id", c.ID()).Msg("session started")
	return s.render(ctx, c.View())
}

// Get returns the current View of a session.
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	c, err := s.store.Get(id)
	if err != nil {
		return View{}, err
	}
	return s.render(ctx, c.View())
}

// Apply applies ev to a session and publishes the new View when state changed.
func (s *Service) Apply(ctx context.Context, id string, ev Event) (View, error) {
	c, err := s.store.Get(id)
	if err != nil {
		return View{}, err
	}
	v, changed, err := c.Apply(ctx, ev)
	s.record(ev, changed, err)
	if err != nil {
		return View{}, err
	}
	v, err = s.render(ctx, v)
	if err != nil {
		return View{}, err
	}
	if changed {
		s.publish(ctx, v)
	}
	return v, nil
}

// End closes a session.
func (s *Service) End(_ context.Context, id string) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.logger.Info().Str("session_id", id).Msg("session ended")
	return nil
}

func (s *Service) record(ev Event, changed bool, err error) {
	eventType := string(ev.Type)
	switch {
	case errors.Is(err, ErrUnknownEvent):
		// client supplied types would grow the label set without bound
		s.recorder.RecordSessionEvent("unknown", OutcomeRejected)
	case err != nil:
		s.recorder.RecordSessionEvent(eventType, OutcomeRejected)
	case changed:
		s.recorder.RecordSessionEvent(eventType, OutcomeApplied)
	default:
		s.recorder.RecordSessionEvent(eventType, OutcomeTrigger)
	}
}

func (s *Service) render(ctx context.Context, v View) (View, error) {
	vm, err := s.dashboard.Overview(ctx)
	if err != nil {
		return View{}, fmt.Errorf("dashboard overview: %w", err)
	}
	v.Dashboard = &vm
	return v, nil
}

func (s *Service) publish(ctx context.Context, v View) {
	if s.publisher == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", v.SessionID).Msg("marshal session view")
		return
	}
	ev := websocket.Event{
		Type:    EventSessionUpdated,
		Topic:   Topic(v.SessionID),
		Version: v.Version,
		Data:    data,
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("session_id", v.SessionID).Msg("publish session view")
	}
}
