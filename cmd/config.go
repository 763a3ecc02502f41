package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tanq16/rangedl/internal/config"
	"github.com/tanq16/rangedl/internal/output"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	var writePath string
	cmd := &cobra.Command{
		Use:   "config [--write PATH]",
		Short: "Print the effective configuration, or write it to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if writePath != "" {
				if err := config.Save(cfg, writePath); err != nil {
					return err
				}
				output.PrintSuccess(fmt.Sprintf("Configuration written to %s", writePath))
				return nil
			}
			data, err := yaml.Marshal(redacted(cfg))
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&writePath, "write", "w", "", "Write the configuration to PATH")
	return cmd
}

const redactedValue = "<redacted>"

// redacted returns a copy of c that is safe to print.
func redacted(c *config.Config) *config.Config {
	out := *c
	if out.HTTP.Token != "" {
		out.HTTP.Token = redactedValue
	}
	if out.HTTP.ProxyPassword != "" {
		out.HTTP.ProxyPassword = redactedValue
	}
	return &out
}
