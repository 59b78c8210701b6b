package util

import (
	"strings"

	"github.com/mfellner/kvstash/lib/stash"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupStashFlags adds the common storage flags to a command
func SetupStashFlags(cmd *cobra.Command) {
	key := "dir"
	cmd.PersistentFlags().String(key, "", WrapString("Directory the database files are stored in"))

	key = "database"
	cmd.PersistentFlags().String(key, "", WrapString("Name of the database to operate on"))

	key = "version"
	cmd.PersistentFlags().Uint64(key, 0, WrapString("Schema version to request when opening the database"))

	key = "collection"
	cmd.PersistentFlags().String(key, "", WrapString("Collection to operate on"))
}

// GetStash builds a stash from the resolved configuration
func GetStash() *stash.Stash {
	return stash.New(&stash.Options{
		Dir:               viper.GetString("dir"),
		Database:          viper.GetString("database"),
		Version:           viper.GetUint64("version"),
		DefaultCollection: viper.GetString("collection"),
	})
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
