package jobs

import (
	"context"
	"errors"

	"github.com/emrgen/docrender/internal/cache"
	"github.com/emrgen/docrender/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CacheSyncTask seeds the artifact index with the current versions of the most
// recently modified public documents, so a cold cache does not send every reader
// to the database.
type CacheSyncTask struct {
	store store.Store
	cache cache.ArtifactCache
	cron  string
	limit int
}

func NewCacheSyncTask(interval string, limit int, store store.Store, cache cache.ArtifactCache) *CacheSyncTask {
	if limit <= 0 {
		limit = 100
	}

	return &CacheSyncTask{
		store: store,
		cache: cache,
		cron:  interval,
		limit: limit,
	}
}

func (c *CacheSyncTask) Name() string {
	return "cache_sync"
}

func (c *CacheSyncTask) Schedule() string {
	return c.cron
}

func (c *CacheSyncTask) Run() {
	synced, err := c.Sync(context.Background())
	if err != nil {
		logrus.Errorf("cache sync failed: %v", err)
		return
	}

	logrus.Debugf("cache sync indexed %d artifact(s)", synced)
}

// Sync indexes the artifacts it finds and returns how many it wrote.
func (c *CacheSyncTask) Sync(ctx context.Context) (int, error) {
	docs, err := c.store.ListPublicDocuments(ctx, c.limit, 0)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, doc := range docs {
		if doc.CurrentVersion == "" {
			continue
		}

		docID, err := uuid.Parse(doc.ID)
		if err != nil {
			continue
		}

		if _, ok, err := c.cache.GetArtifactID(ctx, docID, doc.CurrentVersion); err == nil && ok {
			continue
		}

		artifact, err := c.store.FindArtifact(ctx, docID, doc.CurrentVersion)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return synced, err
		}

		if err = c.cache.SetArtifactID(ctx, docID, doc.CurrentVersion, artifact.ID); err != nil {
			return synced, err
		}
		synced++
	}

	return synced, nil
}
