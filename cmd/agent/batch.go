package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/petasbytes/toolloop/internal/workflow"
)

func newBatchCmd(a *app) *cobra.Command {
	var (
		name        string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "batch <goal>...",
		Short: "Run independent goals concurrently",
		Long: "Each argument is a separate goal with its own session. Results are printed in argument order.\n" +
			"With --export, goal N is written to <path>-N<ext>.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, w, err := a.container.Runner(name)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("concurrency") {
				concurrency = a.cfg.Loop.Concurrency
			}
			goals := make([]string, len(args))
			for i, g := range args {
				goals[i] = w.Goal(g)
			}

			var errs []error
			for i, br := range r.RunMany(cmd.Context(), goals, concurrency) {
				fmt.Fprintf(a.out, "=== %d: %s\n", i+1, args[i])
				if br.Result != nil {
					a.printResult(br.Result)
					if err := a.exportTranscript(br.Result, numbered(a.export, i+1)); err != nil {
						errs = append(errs, err)
					}
				}
				if br.Err != nil {
					errs = append(errs, fmt.Errorf("goal %d: %w", i+1, br.Err))
				}
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().StringVarP(&name, "workflow", "w", workflow.NamePodcast, "workflow for every goal")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "maximum concurrent sessions (default loop.concurrency)")
	return cmd
}
