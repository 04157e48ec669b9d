package journey

import "fmt"

// Outcome is the result of an Advance call. Anything but OutcomeAdvanced is
// a no-op.
type Outcome string

const (
	OutcomeAdvanced     Outcome = "ADVANCED"
	OutcomeAlreadyAtEnd Outcome = "ALREADY_AT_END"
	// OutcomeStaleTurn: the confirmation was for a step that is no longer
	// current, usually a duplicate click.
	OutcomeStaleTurn Outcome = "STALE_TURN"
)

type Transition struct {
	Outcome Outcome `json:"outcome"`
	Cursor  int     `json:"cursor"`
	Step    Step    `json:"step"`
}

// Misuse reports an advance that was out of bounds for the session.
func (t Transition) Misuse() bool { return t.Outcome != OutcomeAdvanced }

// State is what needs persisting to resume a session.
type State struct {
	TemplateID string `json:"templateId"`
	Cursor     int    `json:"cursor"`
	Turn       uint64 `json:"turn"`
}

// Session plays a template forward one confirmed step at a time. A session
// has a single owner and is not safe for concurrent use.
type Session struct {
	templateID string
	steps      []Step
	cursor     int
	turn       uint64
}

// NewSession starts playback at the first step. The template must be
// complete.
func NewSession(t Template) (*Session, error) {
	if issues := t.Validate(); len(issues) > 0 {
		return nil, &ValidationError{TemplateID: t.ID, Issues: issues}
	}
	return &Session{templateID: t.ID, steps: playbackOrder(t.Steps), turn: 1}, nil
}

// Resume restores a session saved with State.
func Resume(t Template, st State) (*Session, error) {
	if st.TemplateID != t.ID {
		return nil, fmt.Errorf("journey: state is for template %q, not %q", st.TemplateID, t.ID)
	}
	s, err := NewSession(t)
	if err != nil {
		return nil, err
	}
	if st.Cursor < 0 || st.Cursor >= len(s.steps) {
		return nil, fmt.Errorf("journey: cursor %d out of range for %d steps", st.Cursor, len(s.steps))
	}
	s.cursor = st.Cursor
	s.turn = st.Turn
	return s, nil
}

func (s *Session) TemplateID() string { return s.templateID }
func (s *Session) Cursor() int        { return s.cursor }
func (s *Session) Current() Step      { return s.steps[s.cursor].clone() }

// Turn identifies the step currently shown. Advance only accepts the
// current turn.
func (s *Session) Turn() uint64 { return s.turn }

// Revealed is the prefix of steps shown so far, current step last.
func (s *Session) Revealed() []Step {
	out := make([]Step, s.cursor+1)
	for i := range out {
		out[i] = s.steps[i].clone()
	}
	return out
}

// Terminal reports whether no further transition is possible.
func (s *Session) Terminal() bool {
	return s.cursor == len(s.steps)-1 || !s.steps[s.cursor].HasButton()
}

func (s *Session) State() State {
	return State{TemplateID: s.templateID, Cursor: s.cursor, Turn: s.turn}
}

// Advance moves to the next step after the user confirmed the step shown
// at turn.
func (s *Session) Advance(turn uint64) Transition {
	if s.Terminal() {
		return Transition{Outcome: OutcomeAlreadyAtEnd, Cursor: s.cursor, Step: s.Current()}
	}
	if turn != s.turn {
		return Transition{Outcome: OutcomeStaleTurn, Cursor: s.cursor, Step: s.Current()}
	}
	s.cursor++
	s.turn++
	return Transition{Outcome: OutcomeAdvanced, Cursor: s.cursor, Step: s.Current()}
}
