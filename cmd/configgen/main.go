package main

import (
	"fmt"
	"os"

	"github.com/danmuck/counterctl/internal/config"
	"github.com/spf13/cobra"
)

const defaultPath = "cmd/counterd/config.toml"

func newRootCmd() *cobra.Command {
	var (
		output   string
		input    string
		validate bool
		force    bool
	)
	cmd := &cobra.Command{
		Use:           "configgen",
		Short:         "write or validate a counterd config template",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if validate {
				path := input
				if path == "" {
					path = defaultPath
				}
				if _, err := config.Load(path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Validated counterd config at %s\n", path)
				return nil
			}

			target := output
			if target == "" {
				target = defaultPath
			}
			if err := config.WriteTemplate(target, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote counterd config template to %s\n", target)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "output path for config template")
	cmd.Flags().BoolVar(&validate, "validate", false, "validate an existing config file")
	cmd.Flags().StringVar(&input, "input", "", "config path for validation")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config file")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
}
