package server

import (
	"context"
	"net/http"
	"time"

	"draw-relay/internal/blob"
	"draw-relay/internal/config"
	"draw-relay/internal/db"
	"draw-relay/internal/preview"
)

// metadataStore is the slice of the relational store the server needs.
// *db.Store satisfies it; tests substitute failing implementations.
type metadataStore interface {
	GetImage(ctx context.Context, id string) (*db.Image, error)
	CreateImage(ctx context.Context, record *db.Image) error
	UpdateImageRevision(ctx context.Context, id string, fromRevision int, assetID, deleteToken string, now time.Time) (bool, error)
	AppendHistory(ctx context.Context, record *db.ImageHistory) error
	DeleteImageWithHistory(ctx context.Context, id string) error
	ListRecent(ctx context.Context, offset, limit int) ([]db.Image, error)
	ListHistory(ctx context.Context, imageID string) ([]db.ImageHistory, error)
	RecordEvent(ctx context.Context, imageID, eventType string, payload any) error
}

// previewHost is the external image host. *preview.Client satisfies it.
type previewHost interface {
	Upload(ctx context.Context, imageBase64 string) (preview.Asset, error)
	Delete(ctx context.Context, deleteToken string) error
}

type Server struct {
	store   metadataStore
	blobs   blob.Store
	preview previewHost
	cfg     config.Config
}

func New(store metadataStore, blobs blob.Store, host previewHost, cfg config.Config) *Server {
	return &Server{
		store:   store,
		blobs:   blobs,
		preview: host,
		cfg:     cfg,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/images", s.handleSubmit)
	mux.HandleFunc("GET /api/images", s.handleListImages)
	mux.HandleFunc("GET /api/images/{id}", s.handleGetImage)
	mux.HandleFunc("GET /api/images/{id}/history", s.handleImageHistory)
	return withCORS(mux)
}
