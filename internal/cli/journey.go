package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"campaign-action-engine/internal/journey"
)

func NewJourneyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "journey <catalog.yaml> <templateID>",
		Short:         "Walk a journey template from the first step to the last",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJourney(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runJourney(rootOpts *RootOptions, catalogPath, templateID string, cmd *cobra.Command) error {
	_, reg, err := loadRegistry(catalogPath)
	if err != nil {
		return err
	}
	t, ok := reg.Template(templateID)
	if !ok {
		if _, draft := reg.Draft(templateID); draft {
			return fmt.Errorf("template %q is a draft and cannot be played", templateID)
		}
		return fmt.Errorf("unknown template %q", templateID)
	}

	s, err := journey.NewSession(t)
	if err != nil {
		return err
	}
	for !s.Terminal() {
		if tr := s.Advance(s.Turn()); tr.Misuse() {
			return fmt.Errorf("journey stuck at step %d: %s", tr.Cursor, tr.Outcome)
		}
	}

	out := cmd.OutOrStdout()
	steps := s.Revealed()
	if rootOpts.Format == "json" {
		return writeJSON(out, steps)
	}
	for i, st := range steps {
		fmt.Fprintf(out, "%d. [%s] %s\n", i+1, st.Type, st.Heading())
		if st.Description != "" {
			fmt.Fprintf(out, "   %s\n", st.Description)
		}
		for _, item := range st.TryOnItems {
			fmt.Fprintf(out, "   - %s\n", item.Name)
		}
		if st.HasButton() {
			fmt.Fprintf(out, "   (%s)\n", st.ButtonText)
		}
	}
	return nil
}
