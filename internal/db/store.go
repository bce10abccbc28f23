package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateRevision is returned when a history row for the same
	// image and revision number already exists.
	ErrDuplicateRevision = errors.New("duplicate revision")
)

// Store wraps the gorm connection with the queries the submission
// workflow and the read endpoints need.
type Store struct {
	conn *gorm.DB
}

func NewStore(conn *gorm.DB) *Store {
	return &Store{conn: conn}
}

func (s *Store) GetImage(ctx context.Context, id string) (*Image, error) {
	var record Image
	err := s.conn.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) CreateImage(ctx context.Context, record *Image) error {
	return s.conn.WithContext(ctx).Create(record).Error
}

// UpdateImageRevision advances an image to the next revision with a
// conditional update guarded on the previously read revision count. It
// reports false when no row matched, which means the row vanished or
// another submission won the race.
func (s *Store) UpdateImageRevision(ctx context.Context, id string, fromRevision int, assetID, deleteToken string, now time.Time) (bool, error) {
	result := s.conn.WithContext(ctx).Model(&Image{}).
		Where("id = ? AND revision_count = ?", id, fromRevision).
		Updates(map[string]any{
			"preview_asset_id":     assetID,
			"preview_delete_token": deleteToken,
			"revision_count":       fromRevision + 1,
			"created_at":           now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *Store) AppendHistory(ctx context.Context, record *ImageHistory) error {
	err := s.conn.WithContext(ctx).Create(record).Error
	if isUniqueViolation(err) {
		return ErrDuplicateRevision
	}
	return err
}

// DeleteImageWithHistory removes the image row and every history row for
// the id. Missing rows are not an error, so the call is idempotent.
func (s *Store) DeleteImageWithHistory(ctx context.Context, id string) error {
	if err := s.conn.WithContext(ctx).Where("image_id = ?", id).Delete(&ImageHistory{}).Error; err != nil {
		return err
	}
	return s.conn.WithContext(ctx).Where("id = ?", id).Delete(&Image{}).Error
}

func (s *Store) ListRecent(ctx context.Context, offset, limit int) ([]Image, error) {
	var records []Image
	err := s.conn.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) ListHistory(ctx context.Context, imageID string) ([]ImageHistory, error) {
	var records []ImageHistory
	err := s.conn.WithContext(ctx).
		Where("image_id = ?", imageID).
		Order("created_at asc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) RecordEvent(ctx context.Context, imageID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	event := SubmissionEvent{
		ImageID:   imageID,
		Type:      eventType,
		Payload:   datatypes.JSON(data),
		CreatedAt: time.Now().UTC(),
	}
	return s.conn.WithContext(ctx).Create(&event).Error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
