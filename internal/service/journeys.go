package service

import (
	"errors"
	"fmt"

	"campaign-action-engine/internal/journey"
	"campaign-action-engine/internal/observability"
	"campaign-action-engine/internal/storage"
)

var (
	ErrUnknownTemplate = errors.New("unknown journey template")
	ErrDraftTemplate   = errors.New("journey template is a draft")
)

// SessionView is the client-facing state of a journey session.
type SessionView struct {
	ID         string         `json:"sessionId"`
	TemplateID string         `json:"templateId"`
	Cursor     int            `json:"cursor"`
	Turn       uint64         `json:"turn"`
	Terminal   bool           `json:"terminal"`
	Current    journey.Step   `json:"current"`
	Revealed   []journey.Step `json:"revealed"`
}

func viewOf(id string, s *journey.Session) SessionView {
	return SessionView{
		ID:         id,
		TemplateID: s.TemplateID(),
		Cursor:     s.Cursor(),
		Turn:       s.Turn(),
		Terminal:   s.Terminal(),
		Current:    s.Current(),
		Revealed:   s.Revealed(),
	}
}

type TemplateReport struct {
	Complete bool           `json:"complete"`
	Issues   journey.Issues `json:"issues"`
}

func ValidateTemplate(t journey.Template) TemplateReport {
	issues := t.Validate()
	if issues == nil {
		issues = journey.Issues{}
	}
	return TemplateReport{Complete: len(issues) == 0, Issues: issues}
}

// Journeys plays catalog templates for end users.
type Journeys struct {
	catalogs RegistrySource
	sessions *storage.Sessions
}

func NewJourneys(catalogs RegistrySource, sessions *storage.Sessions) *Journeys {
	return &Journeys{catalogs: catalogs, sessions: sessions}
}

func (j *Journeys) Start(templateID string) (SessionView, error) {
	reg, ok := j.catalogs.Load()
	if !ok {
		return SessionView{}, ErrCatalogNotReady
	}
	t, ok := reg.Template(templateID)
	if !ok {
		if _, draft := reg.Draft(templateID); draft {
			return SessionView{}, fmt.Errorf("%w: %q", ErrDraftTemplate, templateID)
		}
		return SessionView{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, templateID)
	}
	s, err := journey.NewSession(t)
	if err != nil {
		return SessionView{}, err
	}
	id := j.sessions.Start(s)
	return viewOf(id, s), nil
}

func (j *Journeys) Get(id string) (SessionView, error) {
	var v SessionView
	err := j.sessions.With(id, func(s *journey.Session) error {
		v = viewOf(id, s)
		return nil
	})
	return v, err
}

// Advance confirms the step shown at turn. Stale or out-of-range advances
// are not errors: they come back as a Transition with a no-op outcome.
func (j *Journeys) Advance(id string, turn uint64) (SessionView, journey.Transition, error) {
	var (
		v  SessionView
		tr journey.Transition
	)
	err := j.sessions.With(id, func(s *journey.Session) error {
		tr = s.Advance(turn)
		v = viewOf(id, s)
		return nil
	})
	if err != nil {
		return SessionView{}, journey.Transition{}, err
	}
	observability.JourneyTransitions.WithLabelValues(string(tr.Outcome)).Inc()
	return v, tr, nil
}
