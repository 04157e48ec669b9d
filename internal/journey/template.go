package journey

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

type StepType string

const (
	WelcomeScreen  StepType = "WELCOME_SCREEN"
	ActionVTO      StepType = "ACTION_VTO"
	ActionShowcase StepType = "ACTION_SHOWCASE"
	ActionWishlist StepType = "ACTION_WISHLIST"
	ThankYouScreen StepType = "THANK_YOU_SCREEN"
)

// MaxTryOnItems is the number of items a virtual try-on step can offer.
const MaxTryOnItems = 2

func (t StepType) Valid() bool {
	switch t {
	case WelcomeScreen, ActionVTO, ActionShowcase, ActionWishlist, ThankYouScreen:
		return true
	}
	return false
}

// IsAction reports whether the step asks the user to do something. Action
// steps carry a prompt; screens carry a title.
func (t StepType) IsAction() bool { return strings.HasPrefix(string(t), "ACTION_") }

type TryOnItem struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	ImageURL string `yaml:"imageUrl,omitempty" json:"imageUrl,omitempty"`
}

type Step struct {
	ID   string   `yaml:"id" json:"id"`
	Type StepType `yaml:"type" json:"type"`
	// Order, when set on any step, defines playback order.
	Order       int    `yaml:"order,omitempty" json:"order,omitempty"`
	Title       string `yaml:"title,omitempty" json:"title,omitempty"`
	Prompt      string `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// ButtonText is empty only on the terminal step.
	ButtonText     string      `yaml:"buttonText,omitempty" json:"buttonText,omitempty"`
	PersonImageURL string      `yaml:"personImageUrl,omitempty" json:"personImageUrl,omitempty"`
	TryOnItems     []TryOnItem `yaml:"tryOnItems,omitempty" json:"tryOnItems,omitempty"`
}

// Heading is the title of a screen or the prompt of an action step.
func (s Step) Heading() string {
	if s.Type.IsAction() {
		return s.Prompt
	}
	return s.Title
}

func (s Step) HasButton() bool { return strings.TrimSpace(s.ButtonText) != "" }

func (s Step) clone() Step {
	if s.TryOnItems != nil {
		s.TryOnItems = append([]TryOnItem(nil), s.TryOnItems...)
	}
	return s
}

func ordered(steps []Step) bool {
	for _, s := range steps {
		if s.Order != 0 {
			return true
		}
	}
	return false
}

// playbackOrder returns copies of steps in the order a session shows them:
// by Order when any step sets it, otherwise as authored.
func playbackOrder(steps []Step) []Step {
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = s.clone()
	}
	if ordered(out) {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	}
	return out
}

// Template is an ordered, typed list of journey steps. The methods below are
// authoring operations; playback goes through Session, which keeps its own
// copy of the steps.
type Template struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Steps []Step `yaml:"steps" json:"steps"`
	// Draft templates may be incomplete and are never played.
	Draft bool `yaml:"draft,omitempty" json:"draft,omitempty"`
}

var newID = uuid.NewString

// AddStep appends a step of type t filled with placeholder content.
func (t *Template) AddStep(typ StepType) Step {
	s := Step{
		ID:          newID(),
		Type:        typ,
		Description: "Add specific instructions for the user here.",
		ButtonText:  "Next",
	}
	switch {
	case typ == ActionVTO:
		s.Prompt = "Upload your photo and select an item to try on."
		s.TryOnItems = []TryOnItem{}
	case typ.IsAction():
		s.Prompt = "New Step Title"
	default:
		s.Title = "New Step Title"
	}
	if typ == ThankYouScreen {
		s.ButtonText = ""
	}
	t.Steps = append(t.Steps, s)
	return s
}

// MoveStep swaps the step at index with its neighbour in direction dir
// (-1 up, +1 down). Out-of-range moves are ignored.
func (t *Template) MoveStep(index, dir int) bool {
	if dir != -1 && dir != 1 {
		return false
	}
	j := index + dir
	if index < 0 || index >= len(t.Steps) || j < 0 || j >= len(t.Steps) {
		return false
	}
	t.Steps[index], t.Steps[j] = t.Steps[j], t.Steps[index]
	return true
}

func (t *Template) RemoveStep(id string) bool {
	for i, s := range t.Steps {
		if s.ID == id {
			t.Steps = append(t.Steps[:i], t.Steps[i+1:]...)
			return true
		}
	}
	return false
}

// AddTryOnItem adds a placeholder item to a try-on step. It does nothing
// once the step already holds MaxTryOnItems.
func (t *Template) AddTryOnItem(stepID string) (TryOnItem, bool) {
	s := t.step(stepID)
	if s == nil || s.Type != ActionVTO || len(s.TryOnItems) >= MaxTryOnItems {
		return TryOnItem{}, false
	}
	item := TryOnItem{ID: newID(), Name: fmt.Sprintf("Item %d", len(s.TryOnItems)+1)}
	s.TryOnItems = append(s.TryOnItems, item)
	return item, true
}

func (t *Template) RemoveTryOnItem(stepID, itemID string) bool {
	s := t.step(stepID)
	if s == nil {
		return false
	}
	for i, it := range s.TryOnItems {
		if it.ID == itemID {
			s.TryOnItems = append(s.TryOnItems[:i], s.TryOnItems[i+1:]...)
			return true
		}
	}
	return false
}

func (t *Template) SetPersonImage(stepID, url string) bool {
	s := t.step(stepID)
	if s == nil || s.Type != ActionVTO {
		return false
	}
	s.PersonImageURL = url
	return true
}

func (t *Template) SetTryOnImage(stepID, itemID, url string) bool {
	s := t.step(stepID)
	if s == nil {
		return false
	}
	for i := range s.TryOnItems {
		if s.TryOnItems[i].ID == itemID {
			s.TryOnItems[i].ImageURL = url
			return true
		}
	}
	return false
}

// Renumber writes the current slice position into Order (1-based), so a
// saved template replays in the order it was authored.
func (t *Template) Renumber() {
	for i := range t.Steps {
		t.Steps[i].Order = i + 1
	}
}

func (t *Template) step(id string) *Step {
	for i := range t.Steps {
		if t.Steps[i].ID == id {
			return &t.Steps[i]
		}
	}
	return nil
}
