package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/emrgen/docrender/internal/model"
	"github.com/emrgen/docrender/internal/store"
	"github.com/sirupsen/logrus"
)

const defaultPruneBatch = 100

type ArtifactDeleter interface {
	DeleteArtifact(ctx context.Context, artifact *model.RenderedArtifact) error
}

// ArtifactPruneTask removes artifacts of superseded versions once they are older than
// the retention window. Current versions and versions pinned by a share link are kept.
type ArtifactPruneTask struct {
	store     store.ArtifactStore
	deleter   ArtifactDeleter
	schedule  string
	retention time.Duration
	batch     int
	now       func() time.Time
}

func NewArtifactPruneTask(schedule string, retention time.Duration, store store.ArtifactStore, deleter ArtifactDeleter) *ArtifactPruneTask {
	return &ArtifactPruneTask{
		store:     store,
		deleter:   deleter,
		schedule:  schedule,
		retention: retention,
		batch:     defaultPruneBatch,
		now:       time.Now,
	}
}

func (p *ArtifactPruneTask) Name() string {
	return "artifact_prune"
}

func (p *ArtifactPruneTask) Schedule() string {
	return p.schedule
}

func (p *ArtifactPruneTask) Run() {
	pruned, err := p.Prune(context.Background())
	if err != nil {
		logrus.Errorf("artifact prune stopped after %d artifact(s): %v", pruned, err)
		return
	}

	if pruned > 0 {
		logrus.Infof("pruned %d stale artifact(s)", pruned)
	}
}

// Prune deletes stale artifacts batch by batch and returns how many were removed.
func (p *ArtifactPruneTask) Prune(ctx context.Context) (int, error) {
	before := p.now().Add(-p.retention)
	pruned := 0

	for {
		stale, err := p.store.ListStaleArtifacts(ctx, before, p.batch)
		if err != nil {
			return pruned, err
		}

		for _, artifact := range stale {
			err = p.deleter.DeleteArtifact(ctx, artifact)
			if errors.Is(err, store.ErrLocked) {
				logrus.Warnf("store is locked, postponing artifact prune")
				return pruned, nil
			}
			if err != nil {
				return pruned, err
			}
			pruned++
		}

		if len(stale) < p.batch {
			return pruned, nil
		}
	}
}
