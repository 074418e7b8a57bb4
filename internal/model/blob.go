package model

import "time"

// ArtifactBlob holds a compiled payload when the database doubles as the blob store.
type ArtifactBlob struct {
	ArtifactID string `gorm:"primaryKey;uuid;not null;"`
	Data       []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (ArtifactBlob) TableName() string {
	return "artifact_blobs"
}
