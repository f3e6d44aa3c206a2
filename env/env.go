package env

import (
	"os"

	"github.com/agentuity/financecache/logger"
	"github.com/spf13/cobra"
)

// ConfigEnv names the environment variable holding the cache config path.
const ConfigEnv = "FINANCECACHE_CONFIG"

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and fallback to defaultValue if non found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok {
		return val
	}
	return defaultValue
}

// ConfigPath returns the --config flag or FINANCECACHE_CONFIG. An empty result
// means the built-in defaults apply.
func ConfigPath(cmd *cobra.Command) string {
	return FlagOrEnv(cmd, "config", ConfigEnv, "")
}

func LogLevel(cmd *cobra.Command) logger.LogLevel {
	level, _ := logger.ParseLevel(FlagOrEnv(cmd, "log-level", logger.LevelEnv, "info"))
	return level
}

// NewLogger returns a console logger by first checking the cobra.Command log-level flag, then use the
// FINANCECACHE_LOG_LEVEL environment value and falling back to the info logger level
func NewLogger(cmd *cobra.Command) logger.Logger {
	return logger.NewSinkLogger(cmd.ErrOrStderr(), LogLevel(cmd), false)
}
