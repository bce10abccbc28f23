package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"draw-relay/internal/db"
	"draw-relay/internal/preview"

	"github.com/google/uuid"
)

// revisionCap is the terminal revision count. An image at the cap is
// complete and accepts no further submissions.
const revisionCap = 10

type eventPayload struct {
	Author   string `json:"author,omitempty"`
	Address  string `json:"address,omitempty"`
	Revision int    `json:"revision,omitempty"`
	AssetID  string `json:"asset_id,omitempty"`
	Step     string `json:"step,omitempty"`
}

// submit runs the submission workflow: resolve the target image, upload
// the preview, persist metadata, append history, persist the payload.
// The three stores share no transaction, so each step orders its writes
// so that a failure either leaves nothing behind or triggers the
// new-image rollback. Revisions of existing images are never compensated:
// once the row is updated, later failures leave the update in place.
func (s *Server) submit(ctx context.Context, sub *submission) (string, error) {
	var existing *db.Image
	if sub.imageID != "" {
		record, err := s.store.GetImage(ctx, sub.imageID)
		if errors.Is(err, db.ErrNotFound) {
			return "", errInvalidImageID
		}
		if err != nil {
			return "", fmt.Errorf("%w: load image: %v", errStore, err)
		}
		if record.RevisionCount >= revisionCap {
			return "", errImageCompleted
		}
		existing = record
	}

	// Upload before any metadata write: a failure here leaves nothing
	// to undo.
	asset, err := s.preview.Upload(ctx, sub.imageData)
	if err != nil {
		return "", fmt.Errorf("%w: preview upload: %v", errUpstream, err)
	}

	now := time.Now().UTC()
	if existing == nil {
		return s.submitNew(ctx, sub, asset, now)
	}
	return s.submitRevision(ctx, sub, existing, asset, now)
}

func (s *Server) submitNew(ctx context.Context, sub *submission, asset preview.Asset, now time.Time) (string, error) {
	id := uuid.NewString()
	record := &db.Image{
		ID:                 id,
		Author:             sub.author,
		SubmitterAddress:   sub.submitterAddress,
		Description:        sub.description,
		PreviewAssetID:     asset.ID,
		PreviewDeleteToken: asset.DeleteToken,
		RevisionCount:      1,
		CreatedAt:          now,
	}
	if err := s.store.CreateImage(ctx, record); err != nil {
		return "", fmt.Errorf("%w: create image: %v", errStore, err)
	}
	if err := s.appendHistory(ctx, sub, id, 1, now); err != nil {
		s.rollback(ctx, id, "history")
		return "", fmt.Errorf("%w: append history: %v", errStore, err)
	}
	if err := s.blobs.Put(ctx, blobKey(id), sub.payload); err != nil {
		s.rollback(ctx, id, "payload")
		return "", fmt.Errorf("%w: write payload: %v", errStore, err)
	}
	s.recordEvent(ctx, id, "image_created", eventPayload{
		Author:   sub.author,
		Address:  sub.submitterAddress,
		Revision: 1,
		AssetID:  asset.ID,
	})
	return id, nil
}

func (s *Server) submitRevision(ctx context.Context, sub *submission, existing *db.Image, asset preview.Asset, now time.Time) (string, error) {
	// The old asset goes first. If the host refuses, the row stays
	// untouched; the freshly uploaded asset may orphan.
	if err := s.preview.Delete(ctx, existing.PreviewDeleteToken); err != nil {
		return "", fmt.Errorf("%w: preview delete: %v", errUpstream, err)
	}

	updated, err := s.store.UpdateImageRevision(ctx, existing.ID, existing.RevisionCount, asset.ID, asset.DeleteToken, now)
	if err != nil {
		return "", fmt.Errorf("%w: update image: %v", errStore, err)
	}
	if !updated {
		// The guarded update matched nothing: re-read to tell a vanished
		// row from a submission that raced us to the cap.
		record, lookupErr := s.store.GetImage(ctx, existing.ID)
		if errors.Is(lookupErr, db.ErrNotFound) {
			return "", errInvalidImageID
		}
		if lookupErr == nil && record.RevisionCount >= revisionCap {
			return "", errImageCompleted
		}
		return "", fmt.Errorf("%w: concurrent revision on image %s", errStore, existing.ID)
	}

	revision := existing.RevisionCount + 1
	if err := s.appendHistory(ctx, sub, existing.ID, revision, now); err != nil {
		return "", fmt.Errorf("%w: append history: %v", errStore, err)
	}
	if err := s.blobs.Put(ctx, blobKey(existing.ID), sub.payload); err != nil {
		return "", fmt.Errorf("%w: write payload: %v", errStore, err)
	}
	s.recordEvent(ctx, existing.ID, "image_revised", eventPayload{
		Author:   sub.author,
		Address:  sub.submitterAddress,
		Revision: revision,
		AssetID:  asset.ID,
	})
	return existing.ID, nil
}

func (s *Server) appendHistory(ctx context.Context, sub *submission, imageID string, revision int, now time.Time) error {
	return s.store.AppendHistory(ctx, &db.ImageHistory{
		ID:               uuid.NewString(),
		ImageID:          imageID,
		Revision:         revision,
		Author:           sub.author,
		SubmitterAddress: sub.submitterAddress,
		CreatedAt:        now,
	})
}

// rollback removes the image row and all of its history rows. It is
// idempotent and only ever fires on the new-image branch.
func (s *Server) rollback(ctx context.Context, imageID, failedStep string) {
	if err := s.store.DeleteImageWithHistory(ctx, imageID); err != nil {
		log.Printf("rollback failed image_id=%s step=%s error=%v", imageID, failedStep, err)
		return
	}
	s.recordEvent(ctx, imageID, "submission_rolled_back", eventPayload{Step: failedStep})
	log.Printf("submission rolled back image_id=%s step=%s", imageID, failedStep)
}

func (s *Server) recordEvent(ctx context.Context, imageID, eventType string, payload eventPayload) {
	if err := s.store.RecordEvent(ctx, imageID, eventType, payload); err != nil {
		log.Printf("event record failed image_id=%s type=%s error=%v", imageID, eventType, err)
	}
}

func blobKey(imageID string) string {
	return imageID + ".bin"
}
