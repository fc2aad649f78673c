package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/flowdeckio/api/internal/app"
	infrahttp "github.com/flowdeckio/api/internal/infra/http"
	"github.com/flowdeckio/api/pkg/apierror"
	"github.com/flowdeckio/api/pkg/domain/knowledge"
	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/logger"
	"github.com/flowdeckio/api/pkg/pagination"
	"github.com/flowdeckio/api/pkg/validator"
)

// UploadStore issues object keys and presigned URLs for direct
// browser-to-storage transfers.
type UploadStore interface {
	NewObjectKey(userID shared.ID, filename string) string
	PresignUpload(ctx context.Context, key, contentType string) (string, error)
	PresignDownload(ctx context.Context, key string) (string, error)
}

// DocumentHandler handles knowledge-base document endpoints.
type DocumentHandler struct {
	service   *app.DocumentService
	uploads   UploadStore
	batch     *app.BatchProcessor
	validator *validator.Validator
	logger    *logger.Logger
}

// NewDocumentHandler creates a new document handler. uploads may be nil
// when object storage is not configured; presign endpoints then return 503.
func NewDocumentHandler(service *app.DocumentService, uploads UploadStore, batch *app.BatchProcessor, v *validator.Validator, log *logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		service:   service,
		uploads:   uploads,
		batch:     batch,
		validator: v,
		logger:    log.With("handler", "document"),
	}
}

// CreateDocumentRequest registers a document for ingestion.
type CreateDocumentRequest struct {
	Filename   string `json:"filename" validate:"required,min=1,max=255"`
	SourceKind string `json:"sourceKind" validate:"required,oneof=upload url git"`
	SourceRef  string `json:"sourceRef" validate:"required,min=1,max=2048"`
}

// BulkCreateDocumentsRequest registers many documents in one call.
type BulkCreateDocumentsRequest struct {
	Documents []CreateDocumentRequest `json:"documents" validate:"required,min=1,max=100,dive"`
}

// BulkDocumentItemResponse is one slot of a bulk import result.
type BulkDocumentItemResponse struct {
	Index    int               `json:"index"`
	Success  bool              `json:"success"`
	Document *DocumentResponse `json:"document,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// BulkCreateDocumentsResponse summarizes a bulk import.
type BulkCreateDocumentsResponse struct {
	Total     int                        `json:"total"`
	Succeeded int                        `json:"succeeded"`
	Failed    int                        `json:"failed"`
	Results   []BulkDocumentItemResponse `json:"results"`
}

// PresignUploadRequest asks for a presigned upload URL.
type PresignUploadRequest struct {
	Filename    string `json:"filename" validate:"required,min=1,max=255"`
	ContentType string `json:"contentType" validate:"omitempty,max=255"`
}

// PresignUploadResponse carries the object key to use as sourceRef and
// the URL to PUT the file to.
type PresignUploadResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// DocumentResponse is the API shape of a document.
type DocumentResponse struct {
	ID              string     `json:"id"`
	KnowledgeBaseID string     `json:"knowledgeBaseId"`
	Filename        string     `json:"filename"`
	SourceKind      string     `json:"sourceKind"`
	Status          string     `json:"status"`
	ProcessingError string     `json:"processingError,omitempty"`
	ChunkCount      int        `json:"chunkCount"`
	TokenCount      int        `json:"tokenCount"`
	SizeBytes       int64      `json:"sizeBytes"`
	Enabled         bool       `json:"enabled"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func toDocumentResponse(doc *knowledge.Document) DocumentResponse {
	return DocumentResponse{
		ID:              doc.ID.String(),
		KnowledgeBaseID: doc.KnowledgeBaseID.String(),
		Filename:        doc.Filename,
		SourceKind:      string(doc.SourceKind),
		Status:          string(doc.Status),
		ProcessingError: doc.ProcessingError,
		ChunkCount:      doc.ChunkCount,
		TokenCount:      doc.TokenCount,
		SizeBytes:       doc.SizeBytes,
		Enabled:         doc.Enabled,
		CompletedAt:     doc.CompletedAt,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

// Create handles POST /api/v1/knowledge/{kbID}/documents.
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	kbID, ok := parseID(w, infrahttp.PathParam(r, "kbID"), "knowledge base id")
	if !ok {
		return
	}

	doc, err := h.service.Create(r.Context(), kbID, userID, req.Filename,
		knowledge.SourceKind(req.SourceKind), req.SourceRef)
	if err != nil {
		handleServiceError(w, h.logger, "Document", err)
		return
	}

	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

// BulkCreate handles POST /api/v1/knowledge/{kbID}/documents/bulk.
// Documents are created and ingested in bounded waves; results come
// back index-aligned with the request, and a document that fails to
// ingest is reported in its slot without aborting the rest.
func (h *DocumentHandler) BulkCreate(w http.ResponseWriter, r *http.Request) {
	var req BulkCreateDocumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	kbID, ok := parseID(w, infrahttp.PathParam(r, "kbID"), "knowledge base id")
	if !ok {
		return
	}

	specs := make([]app.DocumentSpec, len(req.Documents))
	for i, d := range req.Documents {
		specs[i] = app.DocumentSpec{
			Filename:  d.Filename,
			Kind:      knowledge.SourceKind(d.SourceKind),
			SourceRef: d.SourceRef,
		}
	}

	results := h.service.CreateBulk(r.Context(), kbID, userID, specs, h.batch)

	resp := BulkCreateDocumentsResponse{
		Total:   len(results),
		Results: make([]BulkDocumentItemResponse, len(results)),
	}
	for i, res := range results {
		item := BulkDocumentItemResponse{Index: res.Index}
		switch {
		case res.Err != nil:
			item.Error = res.Err.Error()
			resp.Failed++
		default:
			doc := toDocumentResponse(res.Value)
			item.Document = &doc
			item.Success = res.Value.Status != knowledge.StatusFailed
			item.Error = res.Value.ProcessingError
			if item.Success {
				resp.Succeeded++
			} else {
				resp.Failed++
			}
		}
		resp.Results[i] = item
	}

	writeJSON(w, http.StatusOK, resp)
}

// PresignUpload handles POST /api/v1/knowledge/{kbID}/documents/upload-url.
// The returned key becomes the sourceRef of a subsequent Create call
// with sourceKind "upload".
func (h *DocumentHandler) PresignUpload(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil {
		apierror.New(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Object storage is not configured").WriteJSON(w)
		return
	}

	var req PresignUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	key := h.uploads.NewObjectKey(userID, req.Filename)
	url, err := h.uploads.PresignUpload(r.Context(), key, req.ContentType)
	if err != nil {
		h.logger.Error("presign upload failed", "error", err)
		apierror.InternalError(err).WriteJSON(w)
		return
	}

	writeJSON(w, http.StatusOK, PresignUploadResponse{Key: key, URL: url})
}

// Get handles GET /api/v1/documents/{id}.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, infrahttp.PathParam(r, "id"), "document id")
	if !ok {
		return
	}

	doc, err := h.service.Get(r.Context(), id, userID)
	if err != nil {
		handleServiceError(w, h.logger, "Document", err)
		return
	}

	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// List handles GET /api/v1/knowledge/{kbID}/documents.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	kbID, ok := parseID(w, infrahttp.PathParam(r, "kbID"), "knowledge base id")
	if !ok {
		return
	}

	filter := knowledge.Filter{
		KnowledgeBaseID: &kbID,
		UserID:          &userID,
		Search:          infrahttp.QueryParam(r, "search"),
	}
	if raw := infrahttp.QueryParam(r, "status"); raw != "" {
		status := knowledge.ProcessingStatus(raw)
		filter.Status = &status
	}

	page := infrahttp.ParsePagination(r)

	result, err := h.service.List(r.Context(), filter, page)
	if err != nil {
		handleServiceError(w, h.logger, "Document", err)
		return
	}

	responses := make([]DocumentResponse, len(result.Data))
	for i, doc := range result.Data {
		responses[i] = toDocumentResponse(doc)
	}

	writeJSON(w, http.StatusOK, pagination.NewResult(responses, result.Total, page))
}

// Retry handles POST /api/v1/documents/{id}/retry. Only failed
// documents can be re-queued.
func (h *DocumentHandler) Retry(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, infrahttp.PathParam(r, "id"), "document id")
	if !ok {
		return
	}

	doc, err := h.service.Retry(r.Context(), id, userID)
	if err != nil {
		handleServiceError(w, h.logger, "Document", err)
		return
	}

	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// Delete handles DELETE /api/v1/documents/{id}.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, infrahttp.PathParam(r, "id"), "document id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id, userID); err != nil {
		handleServiceError(w, h.logger, "Document", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
