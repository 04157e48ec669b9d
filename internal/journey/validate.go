package journey

import (
	"errors"
	"fmt"
	"strings"
)

// Issue is one missing or invalid field. Issues do not stop a template from
// being saved as a draft; they stop it from being played.
type Issue struct {
	StepID  string `json:"stepId,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Issues []Issue

func (is Issues) String() string {
	parts := make([]string, 0, len(is))
	for _, i := range is {
		if i.StepID != "" {
			parts = append(parts, fmt.Sprintf("step %s: %s: %s", i.StepID, i.Field, i.Message))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", i.Field, i.Message))
	}
	return strings.Join(parts, "; ")
}

// ValidationError is returned when an incomplete template is loaded for
// playback.
type ValidationError struct {
	TemplateID string
	Issues     Issues
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("journey: template %q is incomplete: %s", e.TemplateID, e.Issues)
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate lists every field that keeps the template from being complete.
func (t Template) Validate() Issues {
	var out Issues
	add := func(stepID, field, msg string) {
		out = append(out, Issue{StepID: stepID, Field: field, Message: msg})
	}

	if strings.TrimSpace(t.ID) == "" {
		add("", "id", "required")
	}
	if len(t.Steps) == 0 {
		add("", "steps", "template has no steps")
		return out
	}

	if ordered(t.Steps) {
		orders := map[int]string{}
		for i, s := range t.Steps {
			ref := stepRef(s, i)
			switch prev, dup := orders[s.Order]; {
			case s.Order <= 0:
				add(ref, "order", "set on every step or on none, starting at 1")
			case dup:
				add(ref, "order", fmt.Sprintf("order %d already used by step %s", s.Order, prev))
			default:
				orders[s.Order] = ref
			}
		}
	}

	// Remaining checks follow playback order, so "last" means last shown.
	steps := playbackOrder(t.Steps)
	seen := map[string]bool{}
	last := len(steps) - 1
	for i, s := range steps {
		ref := stepRef(s, i)
		if strings.TrimSpace(s.ID) == "" {
			add(ref, "id", "required")
		} else if seen[s.ID] {
			add(ref, "id", "duplicate step id")
		}
		seen[s.ID] = true

		if !s.Type.Valid() {
			add(ref, "type", fmt.Sprintf("unknown step type %q", s.Type))
			continue
		}

		heading := "title"
		if s.Type.IsAction() {
			heading = "prompt"
		}
		if strings.TrimSpace(s.Heading()) == "" {
			add(ref, heading, "required")
		}
		if strings.TrimSpace(s.Description) == "" {
			add(ref, "description", "required")
		}
		if !s.HasButton() && i != last {
			add(ref, "buttonText", "only the last step may omit buttonText")
		}

		if s.Type == ActionVTO {
			if strings.TrimSpace(s.PersonImageURL) == "" {
				add(ref, "personImageUrl", "required for "+string(ActionVTO))
			}
			if len(s.TryOnItems) > MaxTryOnItems {
				add(ref, "tryOnItems", fmt.Sprintf("at most %d items", MaxTryOnItems))
			}
			for j, it := range s.TryOnItems {
				if strings.TrimSpace(it.Name) == "" {
					add(ref, fmt.Sprintf("tryOnItems[%d].name", j), "required")
				}
			}
		} else if s.PersonImageURL != "" || len(s.TryOnItems) > 0 {
			add(ref, "tryOnItems", "only allowed on "+string(ActionVTO))
		}
	}
	return out
}

func stepRef(s Step, i int) string {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Sprintf("#%d", i+1)
	}
	return s.ID
}

// Complete reports whether the template is eligible for playback.
func (t Template) Complete() bool { return len(t.Validate()) == 0 }
