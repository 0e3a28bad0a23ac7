package main

import (
	"github.com/spf13/cobra"

	"propertyvet/internal/platform/config"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "screenctl",
		Short:        "Run rental applicant background checks locally",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (defaults to $PROPERTYVET_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	cmd.AddCommand(newCheckCmd(opts), newTiersCmd(opts))
	return cmd
}

func (o *rootOptions) load() (config.Config, error) {
	if o.configPath != "" {
		return config.LoadFile(o.configPath)
	}
	return config.Load()
}
