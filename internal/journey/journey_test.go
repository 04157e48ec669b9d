package journey

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeSteps() Template {
	return Template{
		ID: "tryon",
		Steps: []Step{
			{ID: "welcome", Type: WelcomeScreen, Title: "Hi", Description: "d", ButtonText: "Go"},
			{ID: "vto", Type: ActionVTO, Prompt: "Try", Description: "d", ButtonText: "Next", PersonImageURL: "p.png",
				TryOnItems: []TryOnItem{{ID: "i1", Name: "Hat"}}},
			{ID: "bye", Type: ThankYouScreen, Title: "Thanks", Description: "d"},
		},
	}
}

func ids(steps []Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.ID
	}
	return out
}

func TestSession_RevealsStepByStep(t *testing.T) {
	s, err := NewSession(threeSteps())
	require.NoError(t, err)

	assert.Equal(t, 0, s.Cursor())
	assert.Equal(t, []string{"welcome"}, ids(s.Revealed()))
	assert.False(t, s.Terminal())

	tr := s.Advance(s.Turn())
	assert.Equal(t, OutcomeAdvanced, tr.Outcome)
	assert.Equal(t, 1, s.Cursor())
	assert.Equal(t, []string{"welcome", "vto"}, ids(s.Revealed()))

	tr = s.Advance(s.Turn())
	assert.Equal(t, OutcomeAdvanced, tr.Outcome)
	assert.Equal(t, 2, tr.Cursor)
	assert.Equal(t, "bye", tr.Step.ID)
	assert.True(t, s.Terminal())
	assert.Equal(t, []string{"welcome", "vto", "bye"}, ids(s.Revealed()))

	before := s.State()
	tr = s.Advance(s.Turn())
	assert.Equal(t, OutcomeAlreadyAtEnd, tr.Outcome)
	assert.True(t, tr.Misuse())
	assert.Equal(t, before, s.State(), "advance at the end is a no-op")
}

func TestSession_DuplicateAdvanceIsStale(t *testing.T) {
	s, err := NewSession(threeSteps())
	require.NoError(t, err)

	turn := s.Turn()
	assert.Equal(t, uint64(1), turn)
	require.Equal(t, OutcomeAdvanced, s.Advance(turn).Outcome)

	// a second click carrying the same turn must not skip the VTO step
	tr := s.Advance(turn)
	assert.Equal(t, OutcomeStaleTurn, tr.Outcome)
	assert.Equal(t, 1, s.Cursor())
	assert.Equal(t, "vto", tr.Step.ID)
}

func TestSession_LastStepIsTerminal(t *testing.T) {
	tpl := threeSteps()
	tpl.Steps[2].ButtonText = "Done"
	s, err := NewSession(tpl)
	require.NoError(t, err)

	s.Advance(s.Turn())
	s.Advance(s.Turn())
	assert.True(t, s.Terminal(), "the last step ends the journey even with a button")
	assert.Equal(t, OutcomeAlreadyAtEnd, s.Advance(s.Turn()).Outcome)
}

func TestSession_RejectsIncompleteTemplate(t *testing.T) {
	tpl := threeSteps()
	tpl.Steps[1].PersonImageURL = ""
	_, err := NewSession(tpl)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestSession_UsesOrderWhenSet(t *testing.T) {
	tpl := threeSteps()
	tpl.Steps[0].Order = 2
	tpl.Steps[1].Order = 1
	tpl.Steps[2].Order = 3
	s, err := NewSession(tpl)
	require.NoError(t, err)
	assert.Equal(t, "vto", s.Current().ID)
}

func TestSession_TerminalStepOrderedFirst(t *testing.T) {
	tpl := threeSteps()
	tpl.Steps[0].Order = 3
	tpl.Steps[1].Order = 2
	tpl.Steps[2].Order = 1

	issues := tpl.Validate()
	require.NotEmpty(t, issues)
	assert.Equal(t, "buttonText", issues[0].Field)
	assert.Equal(t, "bye", issues[0].StepID)

	_, err := NewSession(tpl)
	assert.True(t, IsValidationError(err))
}

func TestSession_PlaysInOrderThroughEveryStep(t *testing.T) {
	tpl := threeSteps()
	tpl.Steps[0], tpl.Steps[2] = tpl.Steps[2], tpl.Steps[0]
	tpl.Steps[0].Order = 3 // bye
	tpl.Steps[1].Order = 2 // vto
	tpl.Steps[2].Order = 1 // welcome
	require.Empty(t, tpl.Validate())

	s, err := NewSession(tpl)
	require.NoError(t, err)
	for !s.Terminal() {
		require.Equal(t, OutcomeAdvanced, s.Advance(s.Turn()).Outcome)
	}
	assert.Equal(t, []string{"welcome", "vto", "bye"}, ids(s.Revealed()))
}

func TestSession_IsolatedFromAuthoring(t *testing.T) {
	tpl := threeSteps()
	s, err := NewSession(tpl)
	require.NoError(t, err)

	tpl.Steps[0].Title = "changed"
	tpl.RemoveStep("vto")
	assert.Equal(t, "Hi", s.Current().Title)

	s.Advance(s.Turn())
	assert.Equal(t, "vto", s.Current().ID)
}

func TestResume(t *testing.T) {
	s, err := NewSession(threeSteps())
	require.NoError(t, err)
	s.Advance(s.Turn())

	r, err := Resume(threeSteps(), s.State())
	require.NoError(t, err)
	assert.Equal(t, s.Cursor(), r.Cursor())
	assert.Equal(t, s.Turn(), r.Turn())

	_, err = Resume(threeSteps(), State{TemplateID: "tryon", Cursor: 7})
	assert.Error(t, err)
	_, err = Resume(threeSteps(), State{TemplateID: "other"})
	assert.Error(t, err)
}

func TestAuthoring(t *testing.T) {
	orig, seq := newID, 0
	newID = func() string { seq++; return fmt.Sprintf("id%d", seq) }
	t.Cleanup(func() { newID = orig })

	var tpl Template
	w := tpl.AddStep(WelcomeScreen)
	v := tpl.AddStep(ActionVTO)
	ty := tpl.AddStep(ThankYouScreen)

	assert.Equal(t, "New Step Title", w.Title)
	assert.Equal(t, "Next", w.ButtonText)
	assert.NotEmpty(t, v.Prompt)
	assert.NotNil(t, v.TryOnItems)
	assert.Empty(t, ty.ButtonText)

	i1, ok := tpl.AddTryOnItem(v.ID)
	require.True(t, ok)
	assert.Equal(t, "Item 1", i1.Name)
	i2, ok := tpl.AddTryOnItem(v.ID)
	require.True(t, ok)
	assert.Equal(t, "Item 2", i2.Name)
	_, ok = tpl.AddTryOnItem(v.ID)
	assert.False(t, ok, "at most two try-on items")
	_, ok = tpl.AddTryOnItem(w.ID)
	assert.False(t, ok, "only try-on steps hold items")

	assert.True(t, tpl.SetTryOnImage(v.ID, i2.ID, "i2.png"))
	assert.True(t, tpl.RemoveTryOnItem(v.ID, i1.ID))
	require.Len(t, tpl.Steps[1].TryOnItems, 1)
	assert.Equal(t, "i2.png", tpl.Steps[1].TryOnItems[0].ImageURL)

	assert.False(t, tpl.SetPersonImage(w.ID, "x.png"))
	assert.True(t, tpl.SetPersonImage(v.ID, "p.png"))

	assert.True(t, tpl.MoveStep(1, -1))
	assert.Equal(t, v.ID, tpl.Steps[0].ID)
	assert.False(t, tpl.MoveStep(0, -1))
	assert.False(t, tpl.MoveStep(2, 1))

	tpl.Renumber()
	for i, s := range tpl.Steps {
		assert.Equal(t, i+1, s.Order)
	}

	assert.True(t, tpl.RemoveStep(w.ID))
	assert.False(t, tpl.RemoveStep("nope"))
	assert.Len(t, tpl.Steps, 2)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Template)
		field  string
	}{
		{"complete", func(*Template) {}, ""},
		{"no id", func(t *Template) { t.ID = "" }, "id"},
		{"missing title", func(t *Template) { t.Steps[0].Title = "" }, "title"},
		{"missing prompt", func(t *Template) { t.Steps[1].Prompt = "" }, "prompt"},
		{"missing description", func(t *Template) { t.Steps[2].Description = "" }, "description"},
		{"button missing mid-journey", func(t *Template) { t.Steps[0].ButtonText = "" }, "buttonText"},
		{"too many items", func(t *Template) {
			t.Steps[1].TryOnItems = []TryOnItem{{ID: "a", Name: "a"}, {ID: "b", Name: "b"}, {ID: "c", Name: "c"}}
		}, "tryOnItems"},
		{"unnamed item", func(t *Template) { t.Steps[1].TryOnItems[0].Name = " " }, "tryOnItems[0].name"},
		{"items on wrong step", func(t *Template) { t.Steps[0].TryOnItems = []TryOnItem{{ID: "x", Name: "x"}} }, "tryOnItems"},
		{"duplicate step id", func(t *Template) { t.Steps[2].ID = "welcome" }, "id"},
		{"unknown type", func(t *Template) { t.Steps[2].Type = "QUIZ" }, "type"},
		{"no steps", func(t *Template) { t.Steps = nil }, "steps"},
		{"partial order", func(t *Template) { t.Steps[0].Order = 1 }, "order"},
		{"duplicate order", func(t *Template) {
			t.Steps[0].Order, t.Steps[1].Order, t.Steps[2].Order = 1, 1, 2
		}, "order"},
		{"full order", func(t *Template) {
			t.Steps[0].Order, t.Steps[1].Order, t.Steps[2].Order = 10, 20, 30
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := threeSteps()
			tt.mutate(&tpl)
			issues := tpl.Validate()
			if tt.field == "" {
				assert.Empty(t, issues)
				assert.True(t, tpl.Complete())
				return
			}
			require.NotEmpty(t, issues)
			assert.Equal(t, tt.field, issues[0].Field, issues.String())
			assert.False(t, tpl.Complete())
		})
	}
}
