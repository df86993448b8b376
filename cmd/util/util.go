package util

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/emberdb/ember/lib/engine"
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

// SetupEngineFlags adds the common engine flags to a command
func SetupEngineFlags(cmd *cobra.Command) {
	key := "shards"
	cmd.PersistentFlags().Int(key, 0, WrapString("Number of engine shards (0 = one per CPU)"))

	key = "cache-mode"
	cmd.PersistentFlags().Bool(key, false, WrapString("Behave like a cache: evict entries when getting close to the maxmemory limit instead of failing inserts"))

	key = "hz"
	cmd.PersistentFlags().Int(key, 1000, WrapString("Base frequency at which each shard updates its expiry clock and performs background tasks. Decreasing it affects expiry precision"))

	key = "maxmemory"
	cmd.PersistentFlags().Int64(key, 8<<30, WrapString("Process-wide memory budget in bytes, divided equally across shards"))

	key = "backing-prefix"
	cmd.PersistentFlags().String(key, "", WrapString("Path prefix of the per-shard tiered-storage backing files; empty disables tiered storage"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("Level at which logs will be output (debug, info, warn, error)"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("ember")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetEngineOptions reads the engine configuration from viper
func GetEngineOptions() *engine.Options {
	return &engine.Options{
		NumShards:     viper.GetInt("shards"),
		CacheMode:     viper.GetBool("cache-mode"),
		Hz:            viper.GetInt("hz"),
		MaxMemory:     viper.GetInt64("maxmemory"),
		BackingPrefix: viper.GetString("backing-prefix"),
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
