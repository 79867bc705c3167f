package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vantavault/vanta/internal/crypto"
	"github.com/vantavault/vanta/internal/imaging"
	"github.com/vantavault/vanta/internal/storage"
	"github.com/vantavault/vanta/internal/vault"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new vault",
	Long: `Init creates the encrypted envelope for a fresh vault under the
configured root directory, prompting for a master password. The vault is
left locked; use the API or web UI to unlock it.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func runInit(cmd *cobra.Command, args []string) error {
	store, err := storage.NewStore(cfg.Vault.Root, logger)
	if err != nil {
		return &exitError{code: 1, err: err}
	}

	if exists, err := store.EnvelopeExists(); err != nil {
		return &exitError{code: 1, err: err}
	} else if exists {
		return fmt.Errorf("vault already initialized at %s", store.Root())
	}

	password, err := promptPassword("Master password: ")
	if err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	params := crypto.KDFParams{
		MemoryKiB:   cfg.KDF.MemoryKiB,
		Iterations:  cfg.KDF.Iterations,
		Parallelism: cfg.KDF.Parallelism,
	}

	processor := imaging.NewProcessor(cfg.Pipeline.MaxConcurrent, cfg.Server.MaxUploadSize, logger)
	v := vault.New(store, processor, params, logger)

	if _, err := v.Initialize(password); err != nil {
		return err
	}
	v.Lock()

	color.Green("Vault initialized at %s", store.Root())
	return nil
}
