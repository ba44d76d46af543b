package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"vault-ai/internal/service"
	"vault-ai/internal/storage"
)

// VaultsHandler serves vault and file listings.
type VaultsHandler struct {
	documents service.DocumentService
}

// NewVaultsHandler creates a new VaultsHandler.
func NewVaultsHandler(documents service.DocumentService) *VaultsHandler {
	return &VaultsHandler{documents: documents}
}

// VaultsResponse lists known vaults.
//
// swagger:model VaultsResponse
type VaultsResponse struct {
	Vaults []storage.VaultRecord `json:"vaults"`
}

// FilesResponse lists the files uploaded into a vault.
//
// swagger:model FilesResponse
type FilesResponse struct {
	Vault string               `json:"vault"`
	Files []storage.FileRecord `json:"files"`
}

// ListVaults handles GET /api/v1/vaults.
func (h *VaultsHandler) ListVaults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	vaults, err := h.documents.ListVaults(ctx)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to list vaults")
		return
	}
	if vaults == nil {
		vaults = []storage.VaultRecord{}
	}

	writeJSON(ctx, w, http.StatusOK, VaultsResponse{Vaults: vaults})
}

// ListFiles handles GET /api/v1/vaults/{vault}/files.
func (h *VaultsHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vaultName := chi.URLParam(r, "vault")

	files, err := h.documents.ListFiles(ctx, vaultName)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to list files")
		return
	}
	if files == nil {
		files = []storage.FileRecord{}
	}

	writeJSON(ctx, w, http.StatusOK, FilesResponse{Vault: vaultName, Files: files})
}
