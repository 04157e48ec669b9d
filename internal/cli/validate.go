package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"campaign-action-engine/internal/catalog"
	"campaign-action-engine/internal/journey"
)

type TemplateResult struct {
	ID       string         `json:"id"`
	Draft    bool           `json:"draft"`
	Complete bool           `json:"complete"`
	Issues   journey.Issues `json:"issues,omitempty"`
}

type ValidationResult struct {
	Valid     bool             `json:"valid"`
	Campaigns int              `json:"campaigns"`
	Errors    []string         `json:"errors,omitempty"`
	Warnings  []string         `json:"warnings,omitempty"`
	Templates []TemplateResult `json:"templates"`
}

var ErrInvalidCatalog = errors.New("catalog invalid")

func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "validate <catalog.yaml>",
		Short:         "Load a catalog and report validation errors",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	doc, err := catalog.LoadFile(path)
	if err != nil {
		return err
	}
	reg, err := catalog.Load(doc)
	res := ValidationResult{Valid: err == nil, Templates: []TemplateResult{}}
	if err != nil {
		res.Errors = flatten(err)
	}
	if reg != nil {
		res.Campaigns = len(reg.Campaigns())
		for _, w := range reg.Warnings() {
			res.Warnings = append(res.Warnings, w.Error())
		}
	}
	for _, t := range doc.Templates {
		issues := t.Validate()
		res.Templates = append(res.Templates, TemplateResult{ID: t.ID, Draft: t.Draft, Complete: len(issues) == 0, Issues: issues})
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		if werr := writeJSON(out, res); werr != nil {
			return werr
		}
	} else {
		for _, e := range res.Errors {
			fmt.Fprintf(out, "error: %s\n", e)
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(out, "warning: %s\n", w)
		}
		for _, t := range res.Templates {
			if t.Draft && !t.Complete {
				fmt.Fprintf(out, "draft %s incomplete: %s\n", t.ID, t.Issues)
			}
		}
		if res.Valid {
			fmt.Fprintf(out, "✓ catalog valid: %d campaign(s), %d template(s)\n", res.Campaigns, len(res.Templates))
		}
	}
	if !res.Valid {
		return fmt.Errorf("%w: %d error(s)", ErrInvalidCatalog, len(res.Errors))
	}
	return nil
}

// flatten splits an errors.Join tree into one message per leaf.
func flatten(err error) []string {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range j.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []string{err.Error()}
}
