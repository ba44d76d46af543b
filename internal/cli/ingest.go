package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"vault-ai/internal/indexer"
	"vault-ai/internal/service"
)

var (
	ingestVault string
	ingestUser  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Ingest documents into a vault",
	Long: `Extracts, chunks and embeds documents into a vault.
Directories are scanned recursively for supported formats; hidden directories are skipped.
Files already uploaded by the same user are reported and skipped.
Documents are stored under their base name, so a second file with the same
base name in one run is reported as failed instead of being uploaded.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestVault, "vault", "v", "", "target vault name")
	ingestCmd.Flags().StringVarP(&ingestUser, "user", "u", "anonymous", "user the uploads are recorded for")
	_ = ingestCmd.MarkFlagRequired("vault")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	svc, err := services(cmd)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	var files []indexer.ScannedFile
	for _, path := range args {
		found, err := collect(cmd, path)
		if err != nil {
			return err
		}
		files = append(files, found...)
	}

	var ingested, skipped, failed int
	seen := make(map[string]string, len(files))
	for _, f := range files {
		base := filepath.Base(f.RelPath)
		if first, ok := seen[base]; ok {
			failed++
			cmd.Printf("  fail  %s: duplicate file name %s (already ingested from %s)\n", f.RelPath, base, first)
			continue
		}
		seen[base] = f.RelPath

		resp, err := ingestFile(cmd, svc, f)
		var conflict *service.ConflictError
		switch {
		case errors.As(err, &conflict):
			skipped++
			cmd.Printf("  skip  %s (already uploaded)\n", f.RelPath)
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			cmd.Printf("  fail  %s: %v\n", f.RelPath, err)
		default:
			ingested++
			cmd.Printf("  ok    %s: %s\n", f.RelPath, resp.Message)
		}
	}

	cmd.Printf("Ingested %d, skipped %d, failed %d into vault %s\n", ingested, skipped, failed, ingestVault)
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

// collect expands a path argument into the files to ingest.
func collect(cmd *cobra.Command, path string) ([]indexer.ScannedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []indexer.ScannedFile{{RelPath: path, AbsPath: path}}, nil
	}
	if supportsFile == nil {
		return nil, errNoSupport
	}
	return indexer.ScanDir(commandContext(cmd), path, supportsFile)
}

func ingestFile(cmd *cobra.Command, svc service.DocumentService, f indexer.ScannedFile) (service.UploadResponse, error) {
	file, err := os.Open(f.AbsPath)
	if err != nil {
		return service.UploadResponse{}, err
	}
	defer func() {
		_ = file.Close()
	}()

	return svc.Upload(commandContext(cmd), service.UploadRequest{
		UserID:   ingestUser,
		Vault:    ingestVault,
		Filename: f.RelPath,
		Body:     file,
	})
}
