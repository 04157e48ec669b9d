package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"campaign-action-engine/internal/engine"
)

type ReplayOptions struct {
	HighValueCutoff float64
}

func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{}
	cmd := &cobra.Command{
		Use:   "replay <catalog.yaml> <events.jsonl>",
		Short: "Replay an event history from empty counters",
		Long: `Replay evaluates every event of a JSON-lines history, in file order,
against the catalog with fresh in-memory counters, then prints the effects
(one JSON object per line) and the final counters.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, opts, args[0], args[1], cmd)
		},
	}
	cmd.Flags().Float64Var(&opts.HighValueCutoff, "high-value-cutoff", engine.DefaultHighValueCutoff, "UGC value above which HIGH_VALUE_UGC fires")
	return cmd
}

func runReplay(rootOpts *RootOptions, opts *ReplayOptions, catalogPath, eventsPath string, cmd *cobra.Command) error {
	_, reg, err := loadRegistry(catalogPath)
	if err != nil {
		return err
	}

	f, err := os.Open(eventsPath)
	if err != nil {
		return fmt.Errorf("open events: %w", err)
	}
	defer f.Close()
	reqs, err := readRequests(f)
	if err != nil {
		return fmt.Errorf("%s: %w", eventsPath, err)
	}

	eval := engine.NewEvaluator(engine.WithHighValueCutoff(opts.HighValueCutoff))
	res, err := eval.Replay(cmd.Context(), reqs, reg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if rootOpts.Format == "json" {
		return writeJSON(out, res)
	}
	enc := json.NewEncoder(out)
	for _, e := range res.Effects {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "# %d event(s), %d effect(s), %d skipped\n", len(reqs), len(res.Effects), res.Skipped)
	for _, c := range res.Counters {
		fired := "-"
		if c.Counter.LastFired != nil {
			fired = fmt.Sprint(*c.Counter.LastFired)
		}
		fmt.Fprintf(out, "%s count=%d lastFired=%s\n", c.Key, c.Counter.Count, fired)
	}
	return nil
}

// readRequests parses one engine.Request per non-blank line. Events without
// an id get "line-<n>".
func readRequests(r io.Reader) ([]engine.Request, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var out []engine.Request
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var req engine.Request
		if err := json.Unmarshal([]byte(text), &req); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		n := line
		req.Normalize(func() string { return fmt.Sprintf("line-%d", n) })
		out = append(out, req)
	}
	return out, sc.Err()
}
