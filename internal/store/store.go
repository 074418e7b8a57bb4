package store

import (
	"context"
	"errors"
	"time"

	"github.com/emrgen/docrender/internal/model"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
	// ErrLocked is returned for writes while the store is locked.
	ErrLocked = errors.New("store is locked for writes")
)

type Store interface {
	DocumentStore
	ArtifactStore
	LinkStore
	Transaction(ctx context.Context, f func(tx Store) error) error
	Migrate() error
}

type DocumentStore interface {
	// CreateDocument creates a new document.
	CreateDocument(ctx context.Context, doc *model.Document) error
	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id uuid.UUID) (*model.Document, error)
	// ListDocumentsByOwner retrieves a page of documents owned by a user.
	ListDocumentsByOwner(ctx context.Context, owner uuid.UUID, publicOnly bool, limit, offset int) ([]*model.Document, error)
	// ListPublicDocuments retrieves a page of public documents, most recently modified first.
	ListPublicDocuments(ctx context.Context, limit, offset int) ([]*model.Document, error)
	// LockDocument retrieves a document and holds its row until the enclosing
	// transaction ends. Outside a transaction it behaves like GetDocument.
	LockDocument(ctx context.Context, id uuid.UUID) (*model.Document, error)
	// UpdateDocument saves all fields of a document.
	UpdateDocument(ctx context.Context, doc *model.Document) error
	// SetDocumentVersion writes only the current version of a document.
	SetDocumentVersion(ctx context.Context, id uuid.UUID, version string) error
	// DeleteDocument deletes a document by ID.
	DeleteDocument(ctx context.Context, id uuid.UUID) error
}

type ArtifactStore interface {
	// CreateArtifact inserts a rendered artifact record. Returns ErrDuplicate when
	// an artifact for the same document and version already exists.
	CreateArtifact(ctx context.Context, artifact *model.RenderedArtifact) error
	// FindArtifact retrieves the artifact for a document at a version.
	FindArtifact(ctx context.Context, docID uuid.UUID, version string) (*model.RenderedArtifact, error)
	// GetArtifact retrieves an artifact by ID.
	GetArtifact(ctx context.Context, id uuid.UUID) (*model.RenderedArtifact, error)
	// ListArtifacts retrieves all artifacts of a document.
	ListArtifacts(ctx context.Context, docID uuid.UUID) ([]*model.RenderedArtifact, error)
	// ListStaleArtifacts retrieves artifacts created before the given time whose version is
	// neither their document's current version nor pinned by a share link.
	ListStaleArtifacts(ctx context.Context, before time.Time, limit int) ([]*model.RenderedArtifact, error)
	// DeleteArtifact deletes an artifact record.
	DeleteArtifact(ctx context.Context, id uuid.UUID) error
	// DeleteArtifacts deletes every artifact record of a document.
	DeleteArtifacts(ctx context.Context, docID uuid.UUID) error
}

type LinkStore interface {
	// CreateLink inserts a share link. Returns ErrDuplicate when the token is taken.
	CreateLink(ctx context.Context, link *model.ShareLink) error
	// GetLink retrieves a share link by token.
	GetLink(ctx context.Context, token string) (*model.ShareLink, error)
	// LinkExists reports whether a token is taken.
	LinkExists(ctx context.Context, token string) (bool, error)
	// ListLinks retrieves the share links of a document.
	ListLinks(ctx context.Context, docID uuid.UUID) ([]*model.ShareLink, error)
	// DeleteLinks deletes every share link of a document.
	DeleteLinks(ctx context.Context, docID uuid.UUID) error
}
