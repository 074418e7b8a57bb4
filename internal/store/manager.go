package store

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// ResourceManager exposes operational commands against the persistence layer.
type ResourceManager interface {
	// Flush persists buffered writes to durable storage.
	Flush(ctx context.Context) error
	// Lock rejects all subsequent writes with ErrLocked.
	Lock(ctx context.Context) error
	// Unlock accepts writes again.
	Unlock(ctx context.Context) error
	// Locked reports whether writes are currently rejected.
	Locked() bool
}

type writeLock struct {
	locked atomic.Bool
}

func (l *writeLock) check() error {
	if l.locked.Load() {
		return ErrLocked
	}

	return nil
}

var _ ResourceManager = (*GormStore)(nil)

// Flush checkpoints the sqlite write-ahead log. Other databases flush on commit.
func (g *GormStore) Flush(ctx context.Context) error {
	if g.db.Dialector.Name() != "sqlite" {
		return nil
	}

	logrus.Infof("flushing sqlite write-ahead log")
	return g.db.WithContext(ctx).Exec("PRAGMA wal_checkpoint(TRUNCATE)").Error
}

func (g *GormStore) Lock(ctx context.Context) error {
	if g.lock.locked.CompareAndSwap(false, true) {
		logrus.Warnf("store locked for writes")
	}

	return nil
}

func (g *GormStore) Unlock(ctx context.Context) error {
	if g.lock.locked.CompareAndSwap(true, false) {
		logrus.Infof("store unlocked for writes")
	}

	return nil
}

func (g *GormStore) Locked() bool {
	return g.lock.locked.Load()
}
