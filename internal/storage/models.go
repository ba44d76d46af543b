package storage

import "time"

// VaultRecord represents a vault known to the service.
type VaultRecord struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// FileRecord represents a document a user uploaded into a vault.
type FileRecord struct {
	ID         int       `json:"id"`
	UserID     string    `json:"user_id"`
	Vault      string    `json:"vault"`    // Vault name
	Filename   string    `json:"filename"` // Base filename, also the chunk source
	ChunkCount int       `json:"chunk_count"`
	UploadedAt time.Time `json:"uploaded_at"`
}
