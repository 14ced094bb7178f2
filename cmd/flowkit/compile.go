package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbukum/flowkit/bootstrap"
	"github.com/kbukum/flowkit/compiler"
)

func newCompileCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "compile <workflow-file>",
		Short: "Bind a workflow against the registered providers and print its plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := loadWorkflow(args[0])
			if err != nil {
				return err
			}
			app, err := g.app(bootstrap.WithSummaryOutput(nil))
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			graph, err := compiler.Compile(ctx, wf, compiler.Options{
				Providers:   app.Providers,
				Processors:  app.Processors,
				Credentials: app.Credentials,
				Logger:      app.Logger,
			})
			if err != nil {
				return err
			}
			defer graph.Close(context.WithoutCancel(ctx))

			levels, err := graph.Levels()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d nodes in %d levels\n", graph.WorkflowID(), len(graph.Nodes()), len(levels))
			for i, ids := range levels {
				labels := make([]string, len(ids))
				for j, id := range ids {
					labels[j] = nodeLabel(graph, id)
				}
				fmt.Fprintf(out, "  %d: %s\n", i, strings.Join(labels, ", "))
			}
			return nil
		},
	}
}

func nodeLabel(g *compiler.Graph, id string) string {
	n, ok := g.Node(id)
	if !ok {
		return id
	}
	impl := n.Provider
	if impl == "" {
		impl = n.Processor
	}
	if impl == "" {
		return fmt.Sprintf("%s(%s)", id, n.Kind)
	}
	return fmt.Sprintf("%s(%s:%s)", id, n.Kind, impl)
}
