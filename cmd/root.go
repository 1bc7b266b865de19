package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/rehearse/internal/config"
	"github.com/abhisek/rehearse/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "rehearse",
	Short: "Interview practice in the terminal",
	Long: "Rehearse: answer interview questions on camera from your terminal.\n" +
		"Each answer is timed, recorded and uploaded for feedback.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a config file (YAML, JSON or TOML)")
	rootCmd.PersistentFlags().String("db", "", "Path to the journal database (overrides db_path)")

	rootCmd.AddCommand(practiceCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(devserverCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config named by --config, or the defaults and
// environment when it is unset.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// resolveDBPath returns the database path using --db (highest priority),
// then db_path from the config, then the default XDG path.
func resolveDBPath(cmd *cobra.Command, cfg *config.Config) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	if cfg.DBPath != "" {
		return cfg.DBPath, store.EnsureDir(cfg.DBPath)
	}
	return store.DefaultDBPath()
}
