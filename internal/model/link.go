package model

import "time"

// ShareLink is a short token pointing at a document's rendered output.
// A pinned link (UseLatest false) always serves PinnedVersion, a floating link
// serves whatever the document's current version is.
type ShareLink struct {
	Token         string `gorm:"primaryKey;not null;"`
	DocumentID    string `gorm:"uuid;not null;index:idx_share_links_document_id"`
	CreatedBy     string `gorm:"uuid"`
	UseLatest     bool   `gorm:"not null"`
	PinnedVersion string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (ShareLink) TableName() string {
	return "share_links"
}

// Pinned reports whether the link is bound to a single version.
func (l *ShareLink) Pinned() bool {
	return !l.UseLatest
}
