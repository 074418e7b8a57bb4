package service

import (
	"context"
	"strings"
	"time"

	"github.com/emrgen/docrender/internal/cache"
	"github.com/emrgen/docrender/internal/model"
	"github.com/emrgen/docrender/internal/store"
	"github.com/emrgen/docrender/internal/version"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// CreateDocument is the input of DocumentService.Create.
type CreateDocument struct {
	Title      string
	Language   model.Language
	SourceCode string
	Public     bool
}

// UpdateDocument is the input of DocumentService.Update. Nil fields are left unchanged.
type UpdateDocument struct {
	Title      *string
	SourceCode *string
	Public     *bool
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(store store.Store, render *RenderService, cache cache.ArtifactCache) *DocumentService {
	return &DocumentService{
		store:  store,
		render: render,
		cache:  cache,
	}
}

// DocumentService is a service for managing documents.
type DocumentService struct {
	store  store.Store
	render *RenderService
	cache  cache.ArtifactCache
	guard  AccessGuard
}

// Create creates a new document owned by the actor.
func (d *DocumentService) Create(ctx context.Context, actor Actor, req CreateDocument) (*model.Document, error) {
	if !actor.Authenticated() {
		return nil, preconditionf("an authenticated owner is required")
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, preconditionf("document title cannot be empty")
	}

	if !req.Language.Authorable() {
		return nil, preconditionf("document language cannot be %s", req.Language)
	}

	doc := &model.Document{
		ID:           uuid.New().String(),
		Owner:        actor.ID().String(),
		Title:        title,
		Language:     req.Language,
		SourceCode:   req.SourceCode,
		Public:       req.Public,
		LastModified: time.Now().UTC(),
	}
	version.Stamp(doc)

	if err := d.store.CreateDocument(ctx, doc); err != nil {
		return nil, storeError("create document", err)
	}

	logrus.Infof("document %s created by %s", doc.ID, actor)
	return doc, nil
}

// Get returns a document the actor may view.
func (d *DocumentService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*model.Document, error) {
	doc, err := d.store.GetDocument(ctx, id)
	if err != nil {
		return nil, storeError("get document", err)
	}

	if !d.guard.CanView(actor, doc) {
		return nil, ErrNotFound
	}

	return doc, nil
}

// Update changes a document owned by the actor. A source change produces a new version.
func (d *DocumentService) Update(ctx context.Context, actor Actor, id uuid.UUID, req UpdateDocument) (*model.Document, error) {
	var doc *model.Document
	err := d.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		doc, err = tx.LockDocument(ctx, id)
		if err != nil {
			return storeError("get document", err)
		}

		if !d.guard.CanEdit(actor, doc) {
			return ErrNotFound
		}

		if req.Title != nil {
			title := strings.TrimSpace(*req.Title)
			if title == "" {
				return preconditionf("document title cannot be empty")
			}
			doc.Title = title
		}

		if req.Public != nil {
			doc.Public = *req.Public
		}

		if req.SourceCode != nil {
			old := doc.CurrentVersion
			doc.SourceCode = *req.SourceCode
			doc.LastModified = time.Now().UTC()
			if version.Stamp(doc) != old {
				logrus.Infof("document %s moved to version %s", doc.ID, doc.CurrentVersion)
			}
		}

		return storeError("update document", tx.UpdateDocument(ctx, doc))
	})
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// Delete removes a document owned by the actor together with its artifacts,
// their payloads and every share link pointing at it.
func (d *DocumentService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	var artifacts []*model.RenderedArtifact
	var links []*model.ShareLink

	err := d.store.Transaction(ctx, func(tx store.Store) error {
		doc, err := tx.LockDocument(ctx, id)
		if err != nil {
			return storeError("get document", err)
		}

		if !d.guard.CanEdit(actor, doc) {
			return ErrNotFound
		}

		if artifacts, err = tx.ListArtifacts(ctx, id); err != nil {
			return storeError("list artifacts", err)
		}

		if links, err = tx.ListLinks(ctx, id); err != nil {
			return storeError("list links", err)
		}

		if err = tx.DeleteLinks(ctx, id); err != nil {
			return storeError("delete links", err)
		}

		if err = tx.DeleteArtifacts(ctx, id); err != nil {
			return storeError("delete artifacts", err)
		}

		return storeError("delete document", tx.DeleteDocument(ctx, id))
	})
	if err != nil {
		return err
	}

	tokens := make([]string, 0, len(links))
	for _, link := range links {
		tokens = append(tokens, link.Token)
	}
	if err = d.cache.InvalidateDocument(ctx, id, tokens); err != nil {
		logrus.Warnf("failed to invalidate cache of document %s: %v", id, err)
	}

	logrus.Infof("document %s deleted with %d artifact(s) and %d link(s)", id, len(artifacts), len(links))

	return d.render.deletePayloads(ctx, artifacts)
}

// ListByOwner lists the documents of a user. Private documents are only listed to their owner.
func (d *DocumentService) ListByOwner(ctx context.Context, actor Actor, owner uuid.UUID, limit, offset int) ([]*model.Document, error) {
	limit, offset = page(limit, offset)
	publicOnly := !actor.Authenticated() || actor.ID() != owner

	docs, err := d.store.ListDocumentsByOwner(ctx, owner, publicOnly, limit, offset)
	if err != nil {
		return nil, storeError("list documents", err)
	}

	return docs, nil
}

// ListPublic lists public documents, most recently modified first.
func (d *DocumentService) ListPublic(ctx context.Context, limit, offset int) ([]*model.Document, error) {
	limit, offset = page(limit, offset)
	docs, err := d.store.ListPublicDocuments(ctx, limit, offset)
	if err != nil {
		return nil, storeError("list documents", err)
	}

	return docs, nil
}

// Render returns the compiled bytes of a document the actor may view.
func (d *DocumentService) Render(ctx context.Context, actor Actor, id uuid.UUID) ([]byte, *model.Document, error) {
	doc, err := d.Get(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}

	data, err := d.render.GetOrRender(ctx, doc)
	if err != nil {
		return nil, nil, err
	}

	return data, doc, nil
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	return limit, offset
}
