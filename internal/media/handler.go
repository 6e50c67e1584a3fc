package media

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/folio-cms/media/internal/resolver"
	"github.com/folio-cms/media/internal/storage"
	"github.com/folio-cms/media/internal/util"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type Handler struct {
	service *Service
	prober  *resolver.Prober
	logger  zerolog.Logger
}

func NewHandler(service *Service, prober *resolver.Prober, logger zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		prober:  prober,
		logger:  logger,
	}
}

// readUpload pulls the image and its declared type out of a multipart form.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (*UploadRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, util.MaxImageSize+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.logger.Debug().Err(err).Msg("failed to parse multipart form")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "File exceeds the 10MB limit", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return nil, false
	}

	imageType, err := storage.ParseImageType(r.FormValue("type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "No file provided", http.StatusBadRequest)
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read file", http.StatusBadRequest)
		return nil, false
	}

	req := &UploadRequest{
		Data:        data,
		ContentType: declaredType(header, data),
		FileName:    header.Filename,
		Type:        imageType,
	}
	if err := storage.ValidateImage(req.Data, req.ContentType); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return req, true
}

func declaredType(header *multipart.FileHeader, data []byte) string {
	ct := util.NormalizeMIME(header.Header.Get("Content-Type"))
	if ct == "" || ct == "application/octet-stream" {
		return util.DetectContentType(data)
	}
	return ct
}

func uploadStatus(res *storage.UploadResult) int {
	switch {
	case res.Success:
		return http.StatusCreated
	case res.Key == "":
		// rejected before reaching storage
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

// HandleUpload stores a multipart "file" under a key generated for "type".
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	res := h.service.UploadImage(r.Context(), *req)
	h.writeJSONResponse(w, uploadStatus(res.UploadResult), res)
}

// HandleReplace uploads a new image and removes the one named by "oldUrl".
func (h *Handler) HandleReplace(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	res := h.service.ReplaceImage(r.Context(), *req, r.FormValue("oldUrl"))
	status := uploadStatus(res.UploadResult)
	if res.Success {
		status = http.StatusOK
	}
	h.writeJSONResponse(w, status, res)
}

// HandleImport stores an image fetched from a URL or decoded from a data URI.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL     string `json:"url,omitempty"`
		DataURI string `json:"dataUri,omitempty"`
		Type    string `json:"type,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	imageType, err := storage.ParseImageType(req.Type)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var res *Result
	switch {
	case req.URL != "":
		res, err = h.service.ImportFromURL(r.Context(), req.URL, imageType)
	case req.DataURI != "":
		res, err = h.service.ImportFromDataURI(r.Context(), req.DataURI, imageType)
	default:
		http.Error(w, "Either 'url' or 'dataUri' must be provided", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("url", req.URL).Msg("failed to import image")
		http.Error(w, "Failed to import image: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSONResponse(w, uploadStatus(res.UploadResult), res)
}

// HandleCopy duplicates an object under a new key.
func (h *Handler) HandleCopy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceKey      string `json:"sourceKey"`
		DestinationKey string `json:"destinationKey,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.SourceKey == "" {
		http.Error(w, "sourceKey is required", http.StatusBadRequest)
		return
	}

	res, err := h.service.CopyImage(r.Context(), req.SourceKey, req.DestinationKey)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "Source object not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("source", req.SourceKey).Msg("failed to copy image")
		http.Error(w, "Failed to copy image: "+storage.UserMessage(err), http.StatusBadGateway)
		return
	}
	h.writeJSONResponse(w, uploadStatus(res), res)
}

// HandleDelete removes the object named by ?url= or ?key=.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		target = r.URL.Query().Get("key")
	}
	if target == "" {
		http.Error(w, "url or key is required", http.StatusBadRequest)
		return
	}

	key, err := h.service.DeleteImage(r.Context(), target)
	if err != nil {
		if errors.Is(err, ErrNotStorageURL) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error().Err(err).Str("target", target).Msg("failed to delete image")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"key":     key,
	})
}

// HandleList lists stored objects under ?prefix=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxListLimit)
	}

	objects, err := h.service.store.List(r.Context(), r.URL.Query().Get("prefix"), int32(limit))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list objects")
		http.Error(w, "Failed to list objects: "+storage.UserMessage(err), http.StatusBadGateway)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]any{
		"objects": objects,
		"count":   len(objects),
	})
}

// queryKey reads ?key= (or ?url=) and reduces it to an object key.
func (h *Handler) queryKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := r.URL.Query().Get("key")
	if raw == "" {
		raw = r.URL.Query().Get("url")
	}
	key, ok := h.service.store.URLs().ExtractObjectKey(raw)
	if !ok {
		http.Error(w, "a stored object key or url is required", http.StatusBadRequest)
		return "", false
	}
	return key, true
}

func (h *Handler) HandleExists(w http.ResponseWriter, r *http.Request) {
	key, ok := h.queryKey(w, r)
	if !ok {
		return
	}

	exists, err := h.service.store.ObjectExists(r.Context(), key)
	if err != nil {
		h.logger.Error().Err(err).Str("key", key).Msg("failed to check object")
		http.Error(w, storage.UserMessage(err), http.StatusBadGateway)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]any{
		"key":    key,
		"exists": exists,
	})
}

func (h *Handler) HandleURLs(w http.ResponseWriter, r *http.Request) {
	key, ok := h.queryKey(w, r)
	if !ok {
		return
	}

	urls := h.service.store.URLs()
	canonical, _ := urls.PublicURL(key, true)
	h.writeJSONResponse(w, http.StatusOK, map[string]any{
		"key":        key,
		"url":        canonical,
		"candidates": urls.AllPossibleURLs(key),
	})
}

// HandleCheck probes every candidate URL for a key.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	key, ok := h.queryKey(w, r)
	if !ok {
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]any{
		"key":     key,
		"results": h.prober.CheckURLAccessibility(r.Context(), key),
	})
}

// HandleResolve returns the best reachable URL for a stored URL or key.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		raw = r.URL.Query().Get("key")
	}
	if raw == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]string{
		"input": raw,
		"url":   h.prober.ResolveWithFallback(r.Context(), raw),
	})
}

func (h *Handler) writeJSONResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}
