package model

import "time"

// Document is a unit of authored content owned by a single user.
// CurrentVersion is always the content fingerprint of (SourceCode, Language).
type Document struct {
	ID             string `gorm:"primaryKey;uuid;not null;"`
	Owner          string `gorm:"uuid;not null;index:idx_documents_owner"`
	Title          string `gorm:"not null"`
	Language       Language
	SourceCode     string
	CurrentVersion string `gorm:"not null"`
	Public         bool   `gorm:"not null;index:idx_documents_public"`
	LastModified   time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Document) TableName() string {
	return "documents"
}
