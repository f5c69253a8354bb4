package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petasbytes/toolloop/internal/runner"
	"github.com/petasbytes/toolloop/internal/workflow"
)

func newRunCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Run one goal to completion",
		Example: `  agent run "Check my podcasts from the last day and email me a digest"
  agent run --workflow discovery "vector databases"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGoal(cmd.Context(), name, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVarP(&name, "workflow", "w", workflow.NamePodcast,
		"workflow to run ("+strings.Join(workflow.Names(), ", ")+")")
	return cmd
}

func newDiscoverCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discover <topic>",
		Short: "Find the best learning resources on a topic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGoal(cmd.Context(), workflow.NameDiscovery, strings.Join(args, " "))
		},
	}
}

func (a *app) runGoal(ctx context.Context, name, input string) error {
	r, w, err := a.container.Runner(name)
	if err != nil {
		return err
	}
	res, runErr := r.Run(ctx, w.Goal(input))
	if res == nil {
		return runErr
	}
	a.printResult(res)
	if err := a.exportTranscript(res, a.export); err != nil {
		return err
	}
	return runErr
}

func (a *app) printResult(res *runner.Result) {
	if res.FinalText != "" {
		fmt.Fprintln(a.out, res.FinalText)
	}
	rep := res.Report
	fmt.Fprintf(a.errOut, "\n[%s] session %s: %d iteration(s), %d tool call(s), %d in / %d out tokens, ~$%.4f\n",
		res.Outcome, res.SessionID, res.Iterations, len(res.Trace), rep.InputTokens, rep.OutputTokens, rep.EstimatedCost)
}

func (a *app) exportTranscript(res *runner.Result, path string) error {
	if path == "" || res.Transcript == nil {
		return nil
	}
	if err := res.Transcript.Save(path); err != nil {
		return fmt.Errorf("export transcript: %w", err)
	}
	a.log.Info().Str("path", path).Str("session_id", res.SessionID).Msg("transcript exported")
	return nil
}

// numbered turns out.json into out-2.json for the second of several exports.
func numbered(path string, i int) string {
	if path == "" {
		return ""
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(path, ext), i, ext)
}
