package catalog

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed catalog entry. A catalog with any
// ValidationError is rejected as a whole.
type ValidationError struct {
	CampaignID string
	// RuleID is empty for campaign-level fields.
	RuleID  string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	switch {
	case e.RuleID != "":
		return fmt.Sprintf("catalog: campaign %q rule %q: %s: %s", e.CampaignID, e.RuleID, e.Field, e.Message)
	case e.CampaignID != "":
		return fmt.Sprintf("catalog: campaign %q: %s: %s", e.CampaignID, e.Field, e.Message)
	default:
		return fmt.Sprintf("catalog: %s: %s", e.Field, e.Message)
	}
}

// IsValidationError reports whether err (or anything it wraps) is a
// ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ReferenceKind names what an UnknownReferenceError points at.
type ReferenceKind string

const (
	ReferenceRule     ReferenceKind = "rule"
	ReferenceTemplate ReferenceKind = "template"
)

// UnknownReferenceError is raised when something names a rule or template
// that the catalog does not contain. It is never fatal: the reference is
// logged and skipped.
type UnknownReferenceError struct {
	CampaignID string
	Kind       ReferenceKind
	ID         string
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("catalog: campaign %q references unknown %s %q", e.CampaignID, e.Kind, e.ID)
}

func IsUnknownReference(err error) bool {
	var ue *UnknownReferenceError
	return errors.As(err, &ue)
}
