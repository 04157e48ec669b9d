package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"campaign-action-engine/internal/catalog"
	"campaign-action-engine/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the enginectl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "enginectl",
		Short: "Offline tools for the campaign action engine",
		Long:  "Validate catalogs, replay event histories and walk journey templates without a running server.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			level := "warn"
			if opts.Verbose {
				level = "debug"
			}
			config.SetupLogging(level)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewJourneyCommand(opts))
	return cmd
}

// loadRegistry reads and validates a catalog file.
func loadRegistry(path string) (catalog.Document, *catalog.Registry, error) {
	doc, err := catalog.LoadFile(path)
	if err != nil {
		return doc, nil, err
	}
	reg, err := catalog.Load(doc)
	return doc, reg, err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
