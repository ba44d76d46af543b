package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"vault-ai/internal/contextutil"
	"vault-ai/internal/service"
)

const (
	// UserIDHeader carries the caller's identity.
	UserIDHeader = "X-User-ID"
	// AnonymousUser is used when no identity header is sent.
	AnonymousUser = "anonymous"

	fileField = "file"
	// multipartSlack leaves room for boundaries and part headers on top of the file itself.
	multipartSlack = 1 << 20
)

// UploadHandler handles document uploads into a vault.
type UploadHandler struct {
	documents      service.DocumentService
	maxUploadBytes int64
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(documents service.DocumentService, maxUploadBytes int64) *UploadHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = service.DefaultMaxUploadBytes
	}
	return &UploadHandler{
		documents:      documents,
		maxUploadBytes: maxUploadBytes,
	}
}

// ServeHTTP handles document uploads.
//
// swagger:route POST /api/v1/vaults/{vault}/documents uploadDocument
//
// # Upload a document into a vault
//
// Accepts a multipart form with a single "file" part. The document is chunked,
// embedded and stored in the vault, which is created on first use.
//
// ---
// consumes:
// - multipart/form-data
// produces:
// - application/json
// responses:
//
//	'201':
//	  description: Document ingested
//	  schema:
//	    "$ref": "#/definitions/UploadResponse"
//	'400':
//	  description: Bad request (missing file, unsupported or empty document, invalid vault)
//	'409':
//	  description: The same user already uploaded this filename to the vault
//	'500':
//	  description: Internal server error
func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(ctx, w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if userID == "" {
		userID = AnonymousUser
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartSlack)
	part, err := filePart(r)
	if err != nil {
		logger.WarnContext(ctx, "invalid upload body", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(ctx, w, http.StatusBadRequest, "Request body too large")
			return
		}
		writeError(ctx, w, http.StatusBadRequest, "Expected multipart form with a file field")
		return
	}
	defer func() {
		_ = part.Close()
	}()

	resp, err := h.documents.Upload(ctx, service.UploadRequest{
		UserID:   userID,
		Vault:    chi.URLParam(r, "vault"),
		Filename: part.FileName(),
		Body:     part,
	})
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to process document")
		return
	}

	writeJSON(ctx, w, http.StatusCreated, resp)
}

// filePart streams the multipart body up to the file part.
func filePart(r *http.Request) (*multipart.Part, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil, errors.New("missing file field")
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == fileField {
			return part, nil
		}
		_ = part.Close()
	}
}
