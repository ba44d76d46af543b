package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vault_store.go -package=mocks vault-ai/internal/storage VaultStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned when an insert violates a uniqueness constraint.
	ErrAlreadyExists = errors.New("record already exists")
)

// VaultStore defines the interface for vault storage operations.
type VaultStore interface {
	// GetOrCreateByName gets an existing vault by name, or creates it if it doesn't exist.
	GetOrCreateByName(ctx context.Context, name string) (VaultRecord, error)
	// GetByName returns ErrNotFound if the vault does not exist.
	GetByName(ctx context.Context, name string) (VaultRecord, error)
	// ListAll returns all vaults ordered by name.
	ListAll(ctx context.Context) ([]VaultRecord, error)
}

// VaultRepo provides methods for vault operations.
// It implements the VaultStore interface.
type VaultRepo struct {
	db *sql.DB
}

// NewVaultRepo creates a new VaultRepo.
func NewVaultRepo(db *sql.DB) *VaultRepo {
	return &VaultRepo{db: db}
}

// GetOrCreateByName gets an existing vault by name, or creates it if it doesn't exist.
// Concurrent callers racing on the same name all receive the same row.
func (r *VaultRepo) GetOrCreateByName(ctx context.Context, name string) (VaultRecord, error) {
	vault, err := r.GetByName(ctx, name)
	if err == nil {
		return vault, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return VaultRecord{}, err
	}

	// Conflicting inserts still advance AUTOINCREMENT, so only new names are inserted.
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO vaults (name) VALUES (?) ON CONFLICT (name) DO NOTHING",
		name,
	)
	if err != nil {
		return VaultRecord{}, fmt.Errorf("failed to create vault: %w", err)
	}

	return r.GetByName(ctx, name)
}

// GetByName gets a vault by name.
// Returns ErrNotFound if not found.
func (r *VaultRepo) GetByName(ctx context.Context, name string) (VaultRecord, error) {
	var vault VaultRecord
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM vaults WHERE name = ?",
		name,
	).Scan(&vault.ID, &vault.Name, &vault.CreatedAt)

	if err == sql.ErrNoRows {
		return VaultRecord{}, ErrNotFound
	}
	if err != nil {
		return VaultRecord{}, fmt.Errorf("failed to query vault: %w", err)
	}

	return vault, nil
}

// ListAll returns all vaults ordered by name.
func (r *VaultRepo) ListAll(ctx context.Context) ([]VaultRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM vaults ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list vaults: %w", err)
	}
	defer rows.Close()

	vaults := make([]VaultRecord, 0)
	for rows.Next() {
		var vault VaultRecord
		if err := rows.Scan(&vault.ID, &vault.Name, &vault.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vault: %w", err)
		}
		vaults = append(vaults, vault)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return vaults, nil
}
