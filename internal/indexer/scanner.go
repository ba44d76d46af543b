package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// ScannedFile is a document found while walking a directory.
type ScannedFile struct {
	RelPath string // Relative path from the scan root, forward slashes
	AbsPath string // Path usable for opening the file
}

// ScanDir walks root and returns every file accepted by supports.
// Hidden directories (names starting with ".") are skipped.
func ScanDir(ctx context.Context, root string, supports func(name string) bool) ([]ScannedFile, error) {
	var scanned []ScannedFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path %s: %w", path, err)
		}

		// Check for context cancellation
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if !supports(d.Name()) {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}

		scanned = append(scanned, ScannedFile{
			RelPath: filepath.ToSlash(relPath),
			AbsPath: path,
		})
		return nil
	})
	if err != nil {
		return scanned, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	return scanned, nil
}
