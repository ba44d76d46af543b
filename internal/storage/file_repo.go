package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_file_store.go -package=mocks vault-ai/internal/storage FileStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// FileStore defines the interface for tracking uploaded files.
type FileStore interface {
	// Exists reports whether userID already uploaded filename into vault.
	Exists(ctx context.Context, userID, vault, filename string) (bool, error)
	// Record stores a successful upload. The vault must already exist.
	// Returns ErrAlreadyExists for a repeated (user, vault, filename).
	Record(ctx context.Context, rec FileRecord) error
	// ListByVault returns the files uploaded into vault, newest first.
	ListByVault(ctx context.Context, vault string) ([]FileRecord, error)
}

// FileRepo provides methods for uploaded file operations.
// It implements the FileStore interface.
type FileRepo struct {
	db *sql.DB
}

// NewFileRepo creates a new FileRepo.
func NewFileRepo(db *sql.DB) *FileRepo {
	return &FileRepo{db: db}
}

// Exists reports whether the (user, vault, filename) triple was recorded.
func (r *FileRepo) Exists(ctx context.Context, userID, vault, filename string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM uploaded_files f
			JOIN vaults v ON v.id = f.vault_id
			WHERE f.user_id = ? AND v.name = ? AND f.filename = ?
		)`,
		userID, vault, filename,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query uploaded file: %w", err)
	}
	return exists, nil
}

// Record inserts an uploaded file row.
// Returns ErrNotFound if the vault does not exist.
func (r *FileRepo) Record(ctx context.Context, rec FileRecord) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO uploaded_files (user_id, vault_id, filename, chunk_count)
		 SELECT ?, id, ?, ? FROM vaults WHERE name = ?`,
		rec.UserID, rec.Filename, rec.ChunkCount, rec.Vault,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to record uploaded file: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record uploaded file: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByVault returns the files uploaded into vault, newest first.
func (r *FileRepo) ListByVault(ctx context.Context, vault string) ([]FileRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT f.id, f.user_id, v.name, f.filename, f.chunk_count, f.uploaded_at
		 FROM uploaded_files f
		 JOIN vaults v ON v.id = f.vault_id
		 WHERE v.name = ?
		 ORDER BY f.uploaded_at DESC, f.id DESC`,
		vault,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploaded files: %w", err)
	}
	defer rows.Close()

	files := make([]FileRecord, 0)
	for rows.Next() {
		var f FileRecord
		if err := rows.Scan(&f.ID, &f.UserID, &f.Vault, &f.Filename, &f.ChunkCount, &f.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan uploaded file: %w", err)
		}
		files = append(files, f)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return files, nil
}
