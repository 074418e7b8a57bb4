package blob

import (
	"context"
	"errors"

	"github.com/emrgen/docrender/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ Store = (*GormStore)(nil)

// GormStore keeps payloads in the artifact_blobs table next to the metadata.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (g *GormStore) Put(ctx context.Context, key string, data []byte) error {
	row := &model.ArtifactBlob{ArtifactID: key, Data: data}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
}

func (g *GormStore) Get(ctx context.Context, key string) ([]byte, error) {
	var row model.ArtifactBlob
	err := g.db.WithContext(ctx).Where("artifact_id = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if row.Data == nil {
		return []byte{}, nil
	}

	return row.Data, nil
}

func (g *GormStore) Delete(ctx context.Context, key string) error {
	return g.db.WithContext(ctx).Where("artifact_id = ?", key).Delete(&model.ArtifactBlob{}).Error
}
