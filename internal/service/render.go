package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/emrgen/docrender/internal/blob"
	"github.com/emrgen/docrender/internal/cache"
	"github.com/emrgen/docrender/internal/compiler"
	"github.com/emrgen/docrender/internal/model"
	"github.com/emrgen/docrender/internal/queue"
	"github.com/emrgen/docrender/internal/store"
	"github.com/emrgen/docrender/internal/version"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// NewRenderService creates a new RenderService.
func NewRenderService(store store.Store, blobs blob.Store, compiler compiler.Compiler, cache cache.ArtifactCache, queue queue.RenderQueue) *RenderService {
	return &RenderService{
		store:    store,
		blobs:    blobs,
		compiler: compiler,
		cache:    cache,
		queue:    queue,
	}
}

// RenderService owns compiled artifacts. Artifacts are keyed by (document, version),
// so an unchanged document is compiled once no matter how often it is read.
//
// Two concurrent requests for a version that was never rendered may both miss
// and both compile. The unique index on (document, version) keeps one record;
// the loser discards its payload. No lock is taken.
type RenderService struct {
	store    store.Store
	blobs    blob.Store
	compiler compiler.Compiler
	cache    cache.ArtifactCache
	queue    queue.RenderQueue
}

type renderResult struct {
	data []byte
	err  error
}

// GetOrRender returns the compiled bytes of the document at its current version,
// compiling and caching them on a miss.
func (r *RenderService) GetOrRender(ctx context.Context, doc *model.Document) ([]byte, error) {
	if !doc.Language.Authorable() {
		return nil, preconditionf("cannot render a document in language %s", doc.Language)
	}

	docID, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, preconditionf("invalid document id %q", doc.ID)
	}

	if doc.CurrentVersion == "" {
		version.Stamp(doc)
		logrus.Infof("backfilling version of document %s", doc.ID)
		err = r.store.SetDocumentVersion(ctx, docID, doc.CurrentVersion)
		if errors.Is(err, store.ErrLocked) {
			logrus.Warnf("store is locked, version of document %s not persisted", doc.ID)
		} else if err != nil {
			return nil, storeError("backfill version", err)
		}
	}

	log := logrus.WithFields(logrus.Fields{"document": doc.ID, "version": doc.CurrentVersion})

	data, _, err := r.lookup(ctx, docID, doc.CurrentVersion)
	if err == nil {
		log.Debugf("artifact cache hit")
		return data, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	log.Infof("artifact cache miss, compiling")

	// the fill survives the caller going away so the next reader finds the artifact
	snapshot := *doc
	done := make(chan renderResult, 1)
	go func() {
		data, err := r.fill(context.WithoutCancel(ctx), docID, &snapshot)
		done <- renderResult{data: data, err: err}
	}()

	select {
	case res := <-done:
		return res.data, res.err
	case <-ctx.Done():
		log.Warnf("render abandoned by caller, cache fill continues")
		return nil, ctx.Err()
	}
}

// GetArtifact returns the stored artifact of a document at an exact version.
// It never compiles.
func (r *RenderService) GetArtifact(ctx context.Context, docID uuid.UUID, version string) ([]byte, *model.RenderedArtifact, error) {
	return r.lookup(ctx, docID, version)
}

// HasArtifact reports whether an artifact exists for the document version.
func (r *RenderService) HasArtifact(ctx context.Context, docID uuid.UUID, version string) (bool, error) {
	_, err := r.store.FindArtifact(ctx, docID, version)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeError("find artifact", err)
	}

	return true, nil
}

func (r *RenderService) lookup(ctx context.Context, docID uuid.UUID, version string) ([]byte, *model.RenderedArtifact, error) {
	cachedID, ok, err := r.cache.GetArtifactID(ctx, docID, version)
	if err != nil {
		logrus.Warnf("artifact cache unavailable: %v", err)
	}

	if ok {
		data, err := r.blobs.Get(ctx, cachedID)
		if err == nil {
			artifact := &model.RenderedArtifact{ID: cachedID, DocumentID: docID.String(), DocumentVersion: version, Size: int64(len(data))}
			return data, artifact, nil
		}

		// stale index entry, fall back to the store
		_ = r.cache.DeleteArtifactID(ctx, docID, version)
	}

	artifact, err := r.store.FindArtifact(ctx, docID, version)
	if err != nil {
		return nil, nil, storeError("find artifact", err)
	}

	data, err := r.blobs.Get(ctx, artifact.ID)
	if errors.Is(err, blob.ErrNotFound) {
		// drop the dangling record so the version can be rendered again
		logrus.Errorf("artifact %s of document %s has no payload", artifact.ID, artifact.DocumentID)
		if id, perr := uuid.Parse(artifact.ID); perr == nil {
			if err := r.store.DeleteArtifact(ctx, id); err != nil {
				logrus.Warnf("failed to drop dangling artifact %s: %v", artifact.ID, err)
			}
		}
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, storeError("read artifact payload", err)
	}

	if err = r.cache.SetArtifactID(ctx, docID, version, artifact.ID); err != nil {
		logrus.Warnf("failed to cache artifact %s: %v", artifact.ID, err)
	}

	return data, artifact, nil
}

// fill compiles the document and stores the result. The payload is written
// before the record so a visible record always has its bytes.
func (r *RenderService) fill(ctx context.Context, docID uuid.UUID, doc *model.Document) ([]byte, error) {
	log := logrus.WithFields(logrus.Fields{"document": doc.ID, "version": doc.CurrentVersion})

	data, err := r.compiler.Compile(ctx, strings.NewReader(doc.SourceCode), doc.Language)
	if err != nil {
		if errors.Is(err, compiler.ErrUnsupportedLanguage) {
			return nil, preconditionf("%v", err)
		}
		log.Errorf("compilation failed: %v", err)
		return nil, &RenderError{DocumentID: doc.ID, Version: doc.CurrentVersion, Err: err}
	}

	artifact := &model.RenderedArtifact{
		ID:              uuid.New().String(),
		DocumentID:      doc.ID,
		DocumentVersion: doc.CurrentVersion,
		Size:            int64(len(data)),
	}

	if r.writesLocked() {
		log.Warnf("store is locked, serving compiled document without caching it")
		return data, nil
	}

	if err = r.blobs.Put(ctx, artifact.ID, data); err != nil {
		return nil, storeError("write artifact payload", err)
	}

	// the row lock on the document orders this insert against a concurrent delete
	err = r.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.CreateArtifact(ctx, artifact); err != nil {
			return err
		}

		_, err := tx.LockDocument(ctx, docID)
		return err
	})
	if err != nil {
		if err := r.blobs.Delete(ctx, artifact.ID); err != nil {
			log.Warnf("failed to discard payload %s: %v", artifact.ID, err)
		}
	}
	switch {
	case err == nil:
	case errors.Is(err, store.ErrDuplicate):
		// another request filled the same version first
		log.Infof("benign duplicate render, keeping existing artifact")
		return data, nil
	case errors.Is(err, store.ErrNotFound):
		log.Infof("document deleted while compiling, artifact discarded")
		return nil, ErrNotFound
	case errors.Is(err, store.ErrLocked):
		log.Warnf("store locked while compiling, serving compiled document without caching it")
		return data, nil
	default:
		return nil, storeError("create artifact", err)
	}

	if err = r.cache.SetArtifactID(ctx, docID, artifact.DocumentVersion, artifact.ID); err != nil {
		log.Warnf("failed to cache artifact %s: %v", artifact.ID, err)
	}

	err = r.queue.PublishRendered(ctx, &queue.RenderEvent{
		DocumentID: artifact.DocumentID,
		Version:    artifact.DocumentVersion,
		ArtifactID: artifact.ID,
		Size:       artifact.Size,
		RenderedAt: time.Now(),
	})
	if err != nil {
		log.Warnf("failed to publish render event: %v", err)
	}

	log.Infof("stored artifact %s (%d bytes)", artifact.ID, artifact.Size)
	return data, nil
}

func (r *RenderService) writesLocked() bool {
	manager, ok := r.store.(store.ResourceManager)
	return ok && manager.Locked()
}

// DeleteArtifact removes one artifact record, its payload and its cache entry.
func (r *RenderService) DeleteArtifact(ctx context.Context, artifact *model.RenderedArtifact) error {
	id, err := uuid.Parse(artifact.ID)
	if err != nil {
		return preconditionf("invalid artifact id %q", artifact.ID)
	}

	docID, err := uuid.Parse(artifact.DocumentID)
	if err != nil {
		return preconditionf("invalid document id %q", artifact.DocumentID)
	}

	if err = r.store.DeleteArtifact(ctx, id); err != nil {
		return storeError("delete artifact", err)
	}

	if err = r.cache.DeleteArtifactID(ctx, docID, artifact.DocumentVersion); err != nil {
		logrus.Warnf("failed to drop cached artifact %s: %v", artifact.ID, err)
	}

	if err = r.blobs.Delete(ctx, artifact.ID); err != nil {
		return storeError("delete artifact payload", err)
	}

	return nil
}

// deletePayloads removes the payloads of already deleted artifact records.
func (r *RenderService) deletePayloads(ctx context.Context, artifacts []*model.RenderedArtifact) error {
	var errs []error
	for _, artifact := range artifacts {
		if err := r.blobs.Delete(ctx, artifact.ID); err != nil {
			logrus.Errorf("failed to delete payload of artifact %s: %v", artifact.ID, err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return storeError("delete artifact payloads", errors.Join(errs...))
	}

	return nil
}
