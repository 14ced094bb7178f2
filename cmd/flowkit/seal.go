package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kbukum/flowkit/credentials"
)

func newSealCmd(g *globalFlags) *cobra.Command {
	var (
		ref    string
		values map[string]string
	)
	cmd := &cobra.Command{
		Use:   "seal --ref <name> --set key=value...",
		Short: "Encrypt connection credentials for the config's credentials.sealed map",
		Long: `Encrypt connection credentials with the configured credentials.key.

The printed ciphertext belongs under credentials.sealed.<ref> in the config
file. It only opens for the same reference, so it cannot be copied to a
different connection name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(values) == 0 {
				return fmt.Errorf("at least one --set key=value is required")
			}
			key := os.Getenv("FLOWKIT_CREDENTIALS_KEY")
			if key == "" {
				cfg, err := g.load()
				if err != nil {
					return err
				}
				key = cfg.Credentials.Key
			}
			if key == "" {
				return fmt.Errorf("no credentials key: set credentials.key or FLOWKIT_CREDENTIALS_KEY")
			}
			sealed, err := credentials.Seal(key, ref, values)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "connection reference the credentials are bound to")
	cmd.Flags().StringToStringVar(&values, "set", nil, "credential entry key=value (repeatable)")
	_ = cmd.MarkFlagRequired("ref")
	return cmd
}
