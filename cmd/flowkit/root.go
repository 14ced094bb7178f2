package main

import (
	"github.com/spf13/cobra"

	"github.com/kbukum/flowkit/bootstrap"
	"github.com/kbukum/flowkit/config"
	"github.com/kbukum/flowkit/workflow"
)

type globalFlags struct {
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "flowkit",
		Short:         "Run checkpointed data workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "config file (default: ./flowkit.yml or ./cmd/flowkit/config.yml)")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", "", ".env file loaded before the config")

	root.AddCommand(
		newValidateCmd(),
		newCompileCmd(g),
		newRunCmd(g),
		newSealCmd(g),
		newVersionCmd(),
	)
	return root
}

func (g *globalFlags) load() (*config.Config, error) {
	var opts []config.LoaderOption
	if g.configFile != "" {
		opts = append(opts, config.WithConfigFile(g.configFile))
	}
	if g.envFile != "" {
		opts = append(opts, config.WithEnvFile(g.envFile))
	}
	return config.Load(opts...)
}

func (g *globalFlags) app(opts ...bootstrap.Option) (*bootstrap.App, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, err
	}
	return bootstrap.New(cfg, opts...)
}

func loadWorkflow(path string) (*workflow.Workflow, error) {
	return workflow.LoadFile(path)
}
