package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds the persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "stackboot",
		Short: "Service stack launcher and supervisor",
		Long: `Stackboot launches a stack of backend services, waits for their HTTP
health endpoints, then launches the frontend. On SIGINT/SIGTERM it shuts
the stack down in reverse order with a bounded grace period.

Examples:
  stackboot up                       # launch with ./stackboot.toml
  stackboot up --config stack.toml
  stackboot check --config stack.toml`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "stackboot.toml", "path to TOML config file")

	root.AddCommand(
		createUpCommand(flags),
		createCheckCommand(flags),
		createVersionCommand(),
	)
	return root
}
