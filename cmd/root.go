package cmd

import (
	"fmt"
	"os"

	"github.com/mfellner/kvstash/cmd/kv"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "kvstash",
		Short: "embedded versioned key-value storage",
		Long: fmt.Sprintf(`kvstash (v%s)

An embedded key-value storage library with versioned databases,
named collections and debounced value bindings.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of kvstash",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kvstash v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
