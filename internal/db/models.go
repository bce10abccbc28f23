package db

import (
	"time"

	"gorm.io/datatypes"
)

// Image is one collaborative drawing and its current revision state.
// CreatedAt doubles as the last-modified timestamp: it is refreshed on
// every accepted revision.
type Image struct {
	ID                 string    `gorm:"primaryKey;size:36"`
	Author             string    `gorm:"size:20;not null"`
	SubmitterAddress   string    `gorm:"size:64;not null"`
	Description        string    `gorm:"size:20;not null;default:''"`
	PreviewAssetID     string    `gorm:"size:64;not null"`
	PreviewDeleteToken string    `gorm:"size:64;not null"`
	RevisionCount      int       `gorm:"not null;default:1"`
	CreatedAt          time.Time `gorm:"not null;index"`
	Histories          []ImageHistory
}

// ImageHistory records one accepted submission. Rows are append-only and
// are removed only when the creating request rolls back.
type ImageHistory struct {
	ID               string    `gorm:"primaryKey;size:36"`
	ImageID          string    `gorm:"size:36;index;not null;uniqueIndex:idx_histories_image_revision"`
	Revision         int       `gorm:"not null;uniqueIndex:idx_histories_image_revision"`
	Author           string    `gorm:"size:20;not null"`
	SubmitterAddress string    `gorm:"size:64;not null"`
	CreatedAt        time.Time `gorm:"not null"`
}

// SubmissionEvent is a best-effort audit record of accepted submissions
// and rollbacks. It is observability data, never read back by the
// submission workflow.
type SubmissionEvent struct {
	ID        uint           `gorm:"primaryKey"`
	ImageID   string         `gorm:"size:36;index;not null"`
	Type      string         `gorm:"size:64;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null"`
}
