package kv

import (
	"github.com/mfellner/kvstash/cmd/util"
	"github.com/mfellner/kvstash/lib/stash"
	"github.com/spf13/cobra"
)

var (
	kvStash *stash.Stash

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Perform key-value operations on a database",
		PersistentPreRunE: setupStash,
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if kvStash != nil {
				_ = kvStash.Close()
			}
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(stash.InitEnvConfig)

	// Add common storage flags to the KV command
	util.SetupStashFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(keysCmd)
	KeyValueCommands.AddCommand(clearCmd)
	KeyValueCommands.AddCommand(infoCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupStash builds the stash the subcommands operate on
func setupStash(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	kvStash = util.GetStash()
	return nil
}
