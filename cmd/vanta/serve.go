package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vantavault/vanta/internal/crypto"
	"github.com/vantavault/vanta/internal/imaging"
	"github.com/vantavault/vanta/internal/server"
	"github.com/vantavault/vanta/internal/storage"
	"github.com/vantavault/vanta/internal/vault"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the vault HTTP server",
	Long: `Serve starts the HTTP API on the configured bind address. The vault
starts locked; unlock it through the API with the master password.`,
	Example: `  vanta serve
  vanta serve --root /srv/vanta --config vanta.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func buildVault() (*vault.Vault, error) {
	store, err := storage.NewStore(cfg.Vault.Root, logger)
	if err != nil {
		return nil, &exitError{code: 1, err: err}
	}

	// A present but malformed envelope means the vault can never be
	// unlocked; refuse to start rather than serve a dead vault.
	if exists, err := store.EnvelopeExists(); err != nil {
		return nil, &exitError{code: 1, err: err}
	} else if exists {
		raw, err := store.ReadEnvelope()
		if err != nil {
			return nil, &exitError{code: 1, err: err}
		}
		if _, err := crypto.UnmarshalEnvelope(raw); err != nil {
			logger.WithError(err).Error("Envelope corrupt")
			return nil, &exitError{code: 2, err: err}
		}
	}

	processor := imaging.NewProcessor(
		cfg.Pipeline.MaxConcurrent,
		cfg.Server.MaxUploadSize,
		logger,
	)

	params := crypto.KDFParams{
		MemoryKiB:   cfg.KDF.MemoryKiB,
		Iterations:  cfg.KDF.Iterations,
		Parallelism: cfg.KDF.Parallelism,
	}

	return vault.New(store, processor, params, logger), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	v, err := buildVault()
	if err != nil {
		return err
	}

	srv := server.New(v, cfg, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Server failed")
			return &exitError{code: 1, err: err}
		}
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("Shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return &exitError{code: 1, err: fmt.Errorf("shutdown: %w", err)}
		}
	}

	return nil
}
