package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emrgen/docrender/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:   db,
		lock: &writeLock{},
	}
}

var _ Store = (*GormStore)(nil)

type GormStore struct {
	db   *gorm.DB
	lock *writeLock
}

func (g *GormStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	if err := g.lock.check(); err != nil {
		return err
	}

	return translate(g.db.WithContext(ctx).Create(doc).Error)
}

func (g *GormStore) GetDocument(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	var doc model.Document
	err := g.db.WithContext(ctx).Where("id = ?", id.String()).First(&doc).Error
	if err != nil {
		return nil, translate(err)
	}

	return &doc, nil
}

func (g *GormStore) ListDocumentsByOwner(ctx context.Context, owner uuid.UUID, publicOnly bool, limit, offset int) ([]*model.Document, error) {
	var docs []*model.Document
	query := g.db.WithContext(ctx).Where("owner = ?", owner.String())
	if publicOnly {
		query = query.Where("public = ?", true)
	}

	err := query.Order("last_modified desc").Limit(limit).Offset(offset).Find(&docs).Error
	return docs, translate(err)
}

func (g *GormStore) ListPublicDocuments(ctx context.Context, limit, offset int) ([]*model.Document, error) {
	var docs []*model.Document
	err := g.db.WithContext(ctx).Where("public = ?", true).
		Order("last_modified desc").Limit(limit).Offset(offset).Find(&docs).Error
	return docs, translate(err)
}

// LockDocument reads the document with FOR UPDATE. sqlite has no row locks; its
// transactions already hold the database write lock from BEGIN.
func (g *GormStore) LockDocument(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	var doc model.Document
	err := g.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id.String()).First(&doc).Error
	if err != nil {
		return nil, translate(err)
	}

	return &doc, nil
}

func (g *GormStore) SetDocumentVersion(ctx context.Context, id uuid.UUID, version string) error {
	if err := g.lock.check(); err != nil {
		return err
	}

	res := g.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id.String()).
		UpdateColumn("current_version", version)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (g *GormStore) UpdateDocument(ctx context.Context, doc *model.Document) error {
	if err := g.lock.check(); err != nil {
		return err
	}

	return translate(g.db.WithContext(ctx).Save(doc).Error)
}

func (g *GormStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	if err := g.lock.check(); err != nil {
		return err
	}

	return translate(g.db.WithContext(ctx).Unscoped().Where("id = ?", id.String()).Delete(&model.Document{}).Error)
}

func (g *GormStore) CreateArtifact(ctx context.Context, artifact *model.RenderedArtifact) error {
	if err := g.lock.check(); err != nil {
		return err
	}

	return translate(g.db.WithContext(ctx).Create(artifact).Error)
}

// FindArtifact returns the oldest artifact when duplicates exist so repeated lookups agree.
func (g *GormStore) FindArtifact(ctx context.Context, docID uuid.UUID, version string) (*model.RenderedArtifact, error) {
	var artifact model.RenderedArtifact
	err := g.db.WithContext(ctx).
		Where("document_id = ? AND document_version = ?", docID.String(), version).
		Order("created_at asc").
		First(&artifact).Error
	if err != nil {
		return nil, translate(err)
	}

	return &artifact, nil
}

func (g *GormStore) GetArtifact(ctx context.Context, id uuid.UUID) (*model.RenderedArtifact, error) {
	var artifact model.RenderedArtifact
	err := g.db.WithContext(ctx).Where("id = ?", id.String()).First(&artifact).Error
	if err != nil {
		return nil, translate(err)
	}

	return &artifact, nil
}

func (g *GormStore) ListArtifacts(ctx context.Context, docID uuid.UUID) ([]*model.RenderedArtifact, error) {
	var artifacts []*model.RenderedArtifact
	err := g.db.WithContext(ctx).Where("document_id = ?", docID.String()).Order("created_at asc").Find(&artifacts).Error
	return artifacts, translate(err)
}

func (g *GormStore) ListStaleArtifacts(ctx context.Context, before time.Time, limit int) ([]*model.RenderedArtifact, error) {
	var artifacts []*model.RenderedArtifact
	current := g.db.Model(&model.Document{}).Select("1").
		Where("documents.id = rendered_artifacts.document_id AND documents.current_version = rendered_artifacts.document_version")
	pinned := g.db.Model(&model.ShareLink{}).Select("1").
		Where("share_links.document_id = rendered_artifacts.document_id AND share_links.use_latest = ? AND share_links.pinned_version = rendered_artifacts.document_version", false)

	err := g.db.WithContext(ctx).
		Where("rendered_artifacts.created_at < ?", before).
		Where("NOT EXISTS (?)", current).
		Where("NOT EXISTS (?)", pinned).
		Order("rendered_artifacts.created_at asc").
		Limit(limit).
		Find(&artifacts).Error
	return artifacts, translate(err)
}

func (g *GormStore) DeleteArtifact(ctx context.Context, id uuid.UUID) error {
	if err := g.lock.check(); err != nil {
		return err
	}

	return translate(g.db.WithContext(ctx).Where("id = ?", id.String()).Delete(&model.RenderedArtifact{}).Error)
}

func (g *GormStore) DeleteArtifacts(ctx context.Context, docID uuid.UUID) error {
	if err := g.lock.check(); err != nil {
		return err
	}

	return translate(g.db.WithContext(ctx).Where("document_id = ?", docID.String()).Delete(&model.RenderedArtifact{}).Error)
}

func (g *GormStore) CreateLink(ctx context.Context, link *model.ShareLink) error {
	if err := g.lock.check(); err != nil {
		return err
	}

	return translate(g.db.WithContext(ctx).Create(link).Error)
}

func (g *GormStore) GetLink(ctx context.Context, token string) (*model.ShareLink, error) {
	var link model.ShareLink
	err := g.db.WithContext(ctx).Where("token = ?", token).First(&link).Error
	if err != nil {
		return nil, translate(err)
	}

	return &link, nil
}

func (g *GormStore) LinkExists(ctx context.Context, token string) (bool, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&model.ShareLink{}).Where("token = ?", token).Count(&count).Error
	if err != nil {
		return false, translate(err)
	}

	return count > 0, nil
}

func (g *GormStore) ListLinks(ctx context.Context, docID uuid.UUID) ([]*model.ShareLink, error) {
	var links []*model.ShareLink
	err := g.db.WithContext(ctx).Where("document_id = ?", docID.String()).Order("created_at asc").Find(&links).Error
	return links, translate(err)
}

func (g *GormStore) DeleteLinks(ctx context.Context, docID uuid.UUID) error {
	if err := g.lock.check(); err != nil {
		return err
	}

	return translate(g.db.WithContext(ctx).Where("document_id = ?", docID.String()).Delete(&model.ShareLink{}).Error)
}

func (g *GormStore) Migrate() error {
	return model.Migrate(g.db)
}

func (g *GormStore) Transaction(ctx context.Context, f func(tx Store) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return f(&GormStore{db: tx, lock: g.lock})
	})
}

// DB exposes the underlying handle for components sharing the connection pool.
func (g *GormStore) DB() *gorm.DB {
	return g.db
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	case strings.Contains(err.Error(), "UNIQUE constraint failed"),
		strings.Contains(err.Error(), "duplicate key value"):
		// drivers opened without TranslateError
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}

	return err
}
