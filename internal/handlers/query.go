package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vault-ai/internal/contextutil"
	"vault-ai/internal/service"
)

// QueryHandler handles similarity searches against a vault.
type QueryHandler struct {
	documents service.DocumentService
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(documents service.DocumentService) *QueryHandler {
	return &QueryHandler{documents: documents}
}

// QueryRequest represents the HTTP request payload for vault queries.
//
// swagger:model QueryRequest
type QueryRequest struct {
	// Free-text query
	Query string `json:"query"`

	// Number of results; 0 uses the server default
	TopK int `json:"top_k,omitempty"`
}

// ServeHTTP handles vault queries.
//
// swagger:route POST /api/v1/vaults/{vault}/query queryVault
//
// # Search a vault
//
// Returns up to top_k chunks ranked by similarity. A query that matches
// nothing is answered with status "no_matches", not an error.
//
// ---
// consumes:
// - application/json
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Ranked results
//	  schema:
//	    "$ref": "#/definitions/QueryResponse"
//	'400':
//	  description: Bad request (empty query, invalid vault or top_k)
func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(ctx, w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.documents.Query(ctx, service.QueryRequest{
		Vault: chi.URLParam(r, "vault"),
		Query: req.Query,
		TopK:  req.TopK,
	})
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to process query")
		return
	}

	writeJSON(ctx, w, http.StatusOK, resp)
}
