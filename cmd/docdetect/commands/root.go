package commands

import (
	"fmt"
	"os"

	"docdetect/internal/config"
	"docdetect/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "docdetect",
		Short: "docdetect - document capture from live camera frames",
		Long: `docdetect receives camera frames over TCP or UDP, detects documents and
other objects in every frame, picks the sharpest crop of each region and
forwards it to a downstream receiver.

Commands:
  • serve    run the detection service
  • stream   replay still images to a running service
  • receive  collect the crops the service sends
  • migrate  record existing screenshots in the capture database`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("transport", "", "tcp or udp (default tcp)")

	// Bind flags to viper
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("transport", rootCmd.PersistentFlags().Lookup("transport"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig merges flags, environment and the config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// consoleLogger is used by the client commands, which keep no log files.
func consoleLogger(cfg *config.Config) *logger.Logger {
	return logger.NewConsole(cfg.LogLevel)
}
