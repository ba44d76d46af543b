// Package cli implements the vaultctl command line interface.
package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"vault-ai/internal/app"
	"vault-ai/internal/config"
	"vault-ai/internal/service"
)

// Services used by the commands. They are built on first use from the
// environment; tests assign them directly.
var (
	documentService service.DocumentService
	supportsFile    func(name string) bool
	closeServices   func() error
)

var rootCmd = &cobra.Command{
	Use:   "vaultctl",
	Short: "Manage document vaults",
	Long: `vaultctl ingests PDF and Markdown documents into vaults and searches them,
using the same configuration (.env, CONFIG_FILE, environment) as the API server.`,
	SilenceUsage: true,
}

// Execute runs the root command and releases any services it opened, whether
// or not the command succeeded.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	return errors.Join(err, shutdownServices())
}

func shutdownServices() error {
	if closeServices == nil {
		return nil
	}
	err := closeServices()
	documentService, supportsFile, closeServices = nil, nil, nil
	return err
}

// services initializes the document service from configuration if needed.
func services(cmd *cobra.Command) (service.DocumentService, error) {
	if documentService != nil {
		return documentService, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	// Logs go to stderr so command output stays parseable.
	slog.SetDefault(app.NewLogger(cfg, os.Stderr))

	a, err := app.New(commandContext(cmd), cfg)
	if err != nil {
		return nil, err
	}

	documentService = a.Documents
	supportsFile = a.Extractor.Supports
	closeServices = a.Close
	return documentService, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// errNoSupport is returned when a directory is ingested without a format filter.
var errNoSupport = errors.New("supported formats not configured")
