package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petasbytes/toolloop/internal/schedule"
	"github.com/petasbytes/toolloop/internal/workflow"
)

func newScheduleCmd(a *app) *cobra.Command {
	var (
		name string
		expr string
	)
	cmd := &cobra.Command{
		Use:   "schedule --cron <expr> <goal>",
		Short: "Run a goal periodically until interrupted",
		Example: `  agent schedule --cron "0 8 * * *" "Check my podcasts and email me a digest"
  agent schedule --cron @hourly -w discovery "rust async runtimes"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, w, err := a.container.Runner(name)
			if err != nil {
				return err
			}
			runs := 0
			s := schedule.New(r,
				schedule.WithLogger(a.log),
				schedule.WithOutcome(func(o schedule.Outcome) {
					runs++
					fmt.Fprintf(a.out, "=== run %d at %s\n", runs, o.Started.Format("2006-01-02 15:04"))
					if o.FinalText != "" {
						fmt.Fprintln(a.out, o.FinalText)
					}
				}),
			)
			if _, err := s.Add(expr, w.Goal(strings.Join(args, " "))); err != nil {
				return err
			}
			if err := s.Start(cmd.Context()); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&expr, "cron", "", "five-field cron expression or @descriptor")
	cmd.Flags().StringVarP(&name, "workflow", "w", workflow.NamePodcast, "workflow to run")
	_ = cmd.MarkFlagRequired("cron")
	return cmd
}
