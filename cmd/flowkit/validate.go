package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/flowkit/workflow"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow-file>",
		Short: "Check a workflow definition without binding providers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := loadWorkflow(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := workflow.Validate(wf); err != nil {
				verr, ok := workflow.AsValidationError(err)
				if !ok {
					return err
				}
				for _, p := range verr.Problems {
					fmt.Fprintf(out, "  %s: %s\n", p.Code, p.Message)
				}
				return fmt.Errorf("%s: %d problem(s)", args[0], len(verr.Problems))
			}
			fmt.Fprintf(out, "%s: ok (%d nodes, %d edges)\n", wf.ID, len(wf.Nodes), len(wf.Edges))
			return nil
		},
	}
}
