package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petasbytes/toolloop/internal/workflow"
)

func newToolsCmd(a *app) *cobra.Command {
	var (
		name   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools a workflow presents to the model",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			w, err := a.container.Workflow(name)
			if err != nil {
				return err
			}
			reg, err := w.Registry()
			if err != nil {
				return err
			}
			ds := reg.All()
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(ds)
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPARAMS\tSIDE EFFECTS\tDESCRIPTION")
			for _, d := range ds {
				params := make([]string, 0, len(d.Params))
				required := map[string]bool{}
				for _, p := range d.RequiredParams() {
					required[p] = true
				}
				names := make([]string, 0, len(d.Params))
				for p := range d.Params {
					names = append(names, p)
				}
				slices.Sort(names)
				for _, p := range names {
					if required[p] {
						p += "*"
					}
					params = append(params, p)
				}
				side := ""
				if d.SideEffecting {
					side = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, strings.Join(params, ","), side, firstSentence(d.Description))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&name, "workflow", "w", workflow.NamePodcast, "workflow whose tools to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print full descriptors as JSON")
	return cmd
}

func firstSentence(s string) string {
	if i := strings.Index(s, ". "); i >= 0 {
		return s[:i+1]
	}
	return s
}
