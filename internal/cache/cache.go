package cache

import (
	"context"

	"github.com/emrgen/docrender/internal/model"
	"github.com/google/uuid"
)

// ArtifactCache is a lookaside index in front of the metadata store.
// A miss is never an error, callers fall back to the store.
type ArtifactCache interface {
	// GetArtifactID returns the cached artifact id for a document version.
	GetArtifactID(ctx context.Context, docID uuid.UUID, version string) (string, bool, error)
	// SetArtifactID caches the artifact id for a document version.
	SetArtifactID(ctx context.Context, docID uuid.UUID, version, artifactID string) error
	// DeleteArtifactID drops a single cached artifact id.
	DeleteArtifactID(ctx context.Context, docID uuid.UUID, version string) error
	// GetLink returns a cached share link.
	GetLink(ctx context.Context, token string) (*model.ShareLink, bool, error)
	// SetLink caches a share link.
	SetLink(ctx context.Context, link *model.ShareLink) error
	// InvalidateDocument drops every cached entry of a document and the given link tokens.
	InvalidateDocument(ctx context.Context, docID uuid.UUID, tokens []string) error
}

var _ ArtifactCache = Nop{}

// Nop caches nothing.
type Nop struct{}

func NewNop() Nop {
	return Nop{}
}

func (Nop) GetArtifactID(context.Context, uuid.UUID, string) (string, bool, error) {
	return "", false, nil
}

func (Nop) SetArtifactID(context.Context, uuid.UUID, string, string) error {
	return nil
}

func (Nop) DeleteArtifactID(context.Context, uuid.UUID, string) error {
	return nil
}

func (Nop) GetLink(context.Context, string) (*model.ShareLink, bool, error) {
	return nil, false, nil
}

func (Nop) SetLink(context.Context, *model.ShareLink) error {
	return nil
}

func (Nop) InvalidateDocument(context.Context, uuid.UUID, []string) error {
	return nil
}
