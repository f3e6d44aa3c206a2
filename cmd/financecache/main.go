package main

import (
	"fmt"
	"os"

	"github.com/agentuity/financecache/env"
	"github.com/agentuity/financecache/finance"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "financecache",
		Short:         "Inspect and exercise the account balance and outstanding loan caches",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "", "log level: trace, debug, info, warn, error (env FINANCECACHE_LOG_LEVEL)")
	root.PersistentFlags().String("config", "", "path to a YAML cache config (env FINANCECACHE_CONFIG)")
	root.AddCommand(newConfigCommand(), newSimulateCommand())
	return root
}

func loadConfig(cmd *cobra.Command) (finance.Config, error) {
	return finance.LoadConfig(env.ConfigPath(cmd))
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
