package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"draw-relay/internal/blob"
	"draw-relay/internal/db"
)

const (
	contentTypeBinary = "application/octet-stream"
	contentTypeEmpty  = "application/x-empty"
)

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, reasonBadRequest)
		return
	}
	sub, err := validateSubmission(req, clientAddress(r))
	if err != nil {
		log.Printf("submission rejected reason=%q address=%s", err, clientAddress(r))
		writeFailure(w, http.StatusBadRequest, reasonBadRequest)
		return
	}

	imageID, err := s.submit(r.Context(), sub)
	if err != nil {
		switch {
		case errors.Is(err, errInvalidImageID):
			writeFailure(w, http.StatusBadRequest, reasonInvalidImageID)
		case errors.Is(err, errImageCompleted):
			writeFailure(w, http.StatusLocked, reasonCompleted)
		default:
			log.Printf("submission failed image_id=%s error=%v", sub.imageID, err)
			writeFailure(w, http.StatusInternalServerError, reasonInternal)
		}
		return
	}
	log.Printf("submission accepted image_id=%s author=%s", imageID, sub.author)
	writeResult(w, imageID)
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			page = value
		}
	}
	limit := s.cfg.PageSize
	offset := (page - 1) * limit

	records, err := s.store.ListRecent(r.Context(), offset, limit)
	if err != nil {
		log.Printf("list images failed page=%d error=%v", page, err)
		writeFailure(w, http.StatusInternalServerError, reasonInternal)
		return
	}
	items := make([]map[string]any, 0, len(records))
	for _, record := range records {
		items = append(items, imageSummary(record))
	}
	writeResult(w, items)
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	record, err := s.store.GetImage(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		writeFailure(w, http.StatusNotFound, reasonInvalidImageID)
		return
	}
	if err != nil {
		log.Printf("load image failed image_id=%s error=%v", id, err)
		writeFailure(w, http.StatusInternalServerError, reasonInternal)
		return
	}

	contentType := contentTypeBinary
	payload, err := s.blobs.Get(r.Context(), blobKey(id))
	if errors.Is(err, blob.ErrNotFound) {
		payload = nil
		contentType = contentTypeEmpty
	} else if err != nil {
		log.Printf("load payload failed image_id=%s error=%v", id, err)
		writeFailure(w, http.StatusInternalServerError, reasonInternal)
		return
	}

	result := imageSummary(*record)
	result["contentType"] = contentType
	result["bin"] = toIntSlice(payload)
	writeResult(w, result)
}

func (s *Server) handleImageHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	records, err := s.store.ListHistory(r.Context(), id)
	if err != nil {
		log.Printf("load history failed image_id=%s error=%v", id, err)
		writeFailure(w, http.StatusInternalServerError, reasonInternal)
		return
	}
	if len(records) == 0 {
		writeFailure(w, http.StatusNotFound, reasonInvalidImageID)
		return
	}
	entries := make([]map[string]any, 0, len(records))
	for _, record := range records {
		entries = append(entries, map[string]any{
			"id":               record.ID,
			"revision":         record.Revision,
			"author":           record.Author,
			"submitterAddress": record.SubmitterAddress,
			"createdAt":        record.CreatedAt.Format(time.RFC3339),
		})
	}
	writeResult(w, entries)
}

// imageSummary shapes an image row for responses. The delete token never
// leaves the server.
func imageSummary(record db.Image) map[string]any {
	return map[string]any{
		"id":             record.ID,
		"author":         record.Author,
		"description":    record.Description,
		"previewAssetId": record.PreviewAssetID,
		"revisionCount":  record.RevisionCount,
		"createdAt":      record.CreatedAt.Format(time.RFC3339),
	}
}

func toIntSlice(data []byte) []int {
	out := make([]int, len(data))
	for i, b := range data {
		out[i] = int(b)
	}
	return out
}
