// Package handler contains HTTP handlers for the snapshot application.
//
// This file implements the image ingestion API.
package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/DukeRupert/snapshot/internal/domain"
	"github.com/DukeRupert/snapshot/internal/service"
	"github.com/google/uuid"
)

// maxUploadBody bounds a whole multipart request: every file at its size
// limit plus room for the form overhead.
const maxUploadBody = domain.MaxFilesPerBatch*domain.MaxImageSize + 1<<20

// =============================================================================
// Handler Configuration
// =============================================================================

// ImageHandler handles image-related HTTP requests.
type ImageHandler struct {
	imageService service.ImageService
	logger       *slog.Logger
}

// NewImageHandler creates a new ImageHandler.
func NewImageHandler(imageService service.ImageService, logger *slog.Logger) *ImageHandler {
	return &ImageHandler{
		imageService: imageService,
		logger:       logger,
	}
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterRoutes registers all image routes with the provided mux.
//
// Routes:
// - POST   /images           -> Create (wrapped by uploadLimit)
// - GET    /images           -> List
// - GET    /images/public    -> ListPublic
// - GET    /images/user/{id} -> ListByOwner
// - GET    /images/{id}      -> Get
// - DELETE /images/{id}      -> Delete
func (h *ImageHandler) RegisterRoutes(mux *http.ServeMux, uploadLimit func(http.Handler) http.Handler) {
	mux.Handle("POST /images", uploadLimit(http.HandlerFunc(h.Create)))
	mux.HandleFunc("GET /images", h.List)
	mux.HandleFunc("GET /images/public", h.ListPublic)
	mux.HandleFunc("GET /images/user/{id}", h.ListByOwner)
	mux.HandleFunc("GET /images/{id}", h.Get)
	mux.HandleFunc("DELETE /images/{id}", h.Delete)
}

// =============================================================================
// POST /images - Ingest a batch
// =============================================================================

// Create ingests the files of the "images" form field on behalf of the
// "user_id" form field.
func (h *ImageHandler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "handler.image.create"

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ErrorResponse(w, r, h.logger, domain.Errorf(domain.ETOOLARGE, op, "Request body too large"))
			return
		}
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Failed to parse form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	ownerID, err := uuid.Parse(r.FormValue("user_id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Invalid user ID"))
		return
	}

	headers := r.MultipartForm.File["images"]
	if len(headers) == 0 {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "No images uploaded"))
		return
	}
	if len(headers) > domain.MaxFilesPerBatch {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, fmt.Sprintf("At most %d images can be uploaded at once", domain.MaxFilesPerBatch)))
		return
	}

	files := make([]domain.UploadFile, 0, len(headers))
	for _, fh := range headers {
		if err := domain.ValidateImageSize(fh.Size); err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
		data, err := readFile(fh)
		if err != nil {
			h.logger.Error("failed to read uploaded file", "error", err, "filename", fh.Filename)
			ErrorResponse(w, r, h.logger, domain.Invalid(op, "Failed to read "+fh.Filename))
			return
		}
		files = append(files, domain.UploadFile{Filename: fh.Filename, Data: data})
	}

	assets, err := h.imageService.Create(r.Context(), domain.CreateImagesParams{
		OwnerID: ownerID,
		Files:   files,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, assets)
}

// =============================================================================
// GET /images, /images/public, /images/user/{id}
// =============================================================================

// List returns live images, newest first.
func (h *ImageHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	assets, err := h.imageService.List(r.Context(), page)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, assets)
}

// ListPublic returns public images.
func (h *ImageHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	assets, err := h.imageService.ListPublic(r.Context(), page)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, assets)
}

// ListByOwner returns the images of one user.
func (h *ImageHandler) ListByOwner(w http.ResponseWriter, r *http.Request) {
	ownerID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("handler.image.list_by_owner", "Invalid user ID"))
		return
	}
	page, err := parsePage(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	assets, err := h.imageService.ListByOwner(r.Context(), ownerID, page)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, assets)
}

// =============================================================================
// GET /images/{id}, DELETE /images/{id}
// =============================================================================

// Get returns one image.
func (h *ImageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("handler.image.get", "Invalid image ID"))
		return
	}
	asset, err := h.imageService.GetByID(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// Delete removes an image and its remote variants.
func (h *ImageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("handler.image.delete", "Invalid image ID"))
		return
	}
	msg, err := h.imageService.Delete(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// =============================================================================
// Helper Functions
// =============================================================================

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, domain.MaxImageSize+1))
}

// parsePage reads the limit and offset query parameters.
func parsePage(r *http.Request) (domain.Page, error) {
	const op = "handler.page"

	var page domain.Page
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return page, domain.Invalid(op, "limit must be a positive integer")
		}
		page.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > domain.MaxPageOffset {
			return page, domain.Invalid(op, fmt.Sprintf("offset must be an integer between 0 and %d", domain.MaxPageOffset))
		}
		page.Offset = n
	}
	return page.Normalize(), nil
}
