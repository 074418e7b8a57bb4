package model

import "time"

// RenderedArtifact is a cached compilation of a document at one version.
// The compiled bytes live in the blob store under the artifact ID.
type RenderedArtifact struct {
	ID              string `gorm:"primaryKey;uuid;not null;"`
	DocumentID      string `gorm:"uuid;not null;uniqueIndex:idx_rendered_artifacts_document_version"`
	DocumentVersion string `gorm:"not null;uniqueIndex:idx_rendered_artifacts_document_version"`
	Size            int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (RenderedArtifact) TableName() string {
	return "rendered_artifacts"
}
