// Package cmd wires the ensemble CLI together.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/calebforbes/ensemble/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "ensemble",
	Short: "AI agent session orchestrator",
	Long: `Ensemble manages long-running AI agent sessions on a single project.
Each session runs in an isolated git worktree on its own branch, with a
central orchestrator tracking lifecycle, cost, and transcripts, and a
websocket server broadcasting live progress to clients.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/ensemble/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/ensemble")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("ENSEMBLE")
	// Replace dots with underscores for nested keys in env vars
	// e.g., ENSEMBLE_RUNTIME_COMMAND for runtime.command
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
