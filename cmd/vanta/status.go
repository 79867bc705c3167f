package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vantavault/vanta/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vault state on disk",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, err := storage.NewStore(cfg.Vault.Root, logger)
	if err != nil {
		return &exitError{code: 1, err: err}
	}

	initialized, err := store.EnvelopeExists()
	if err != nil {
		return &exitError{code: 1, err: err}
	}

	ids, err := store.ListBlobIDs()
	if err != nil {
		return &exitError{code: 1, err: err}
	}

	fmt.Printf("Root:        %s\n", store.Root())
	if initialized {
		color.Green("Initialized: yes")
	} else {
		color.Yellow("Initialized: no")
	}
	fmt.Printf("Blob dirs:   %d\n", len(ids))

	return nil
}
