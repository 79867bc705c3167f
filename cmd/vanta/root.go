package main

import (
	"github.com/spf13/cobra"

	"github.com/vantavault/vanta/internal/config"
	"github.com/vantavault/vanta/internal/events"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *events.Logger
)

var rootCmd = &cobra.Command{
	Use:   "vanta",
	Short: "Single-user encrypted image vault",
	Long: `Vanta stores images encrypted at rest under a master password.
Uploads are transcoded into thumbnail and high-resolution variants,
tagged, searched by tag expression, and grouped into linked sets.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return &exitError{code: 1, err: err}
		}

		if root, _ := cmd.Flags().GetString("root"); root != "" {
			cfg.Vault.Root = root
		}
		if err := cfg.EnsureDirectories(); err != nil {
			return &exitError{code: 1, err: err}
		}

		logger = events.NewLogger(events.ParseLevel(cfg.Log.Level), cfg.Log.Format)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Config file path (default searches ./vanta.yaml)")
	rootCmd.PersistentFlags().String("root", "",
		"Vault root directory (overrides config)")
}
