package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/emrgen/docrender/internal/model"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	defaultTTL = 24 * time.Hour
)

func artifactKey(docID, version string) string {
	return "artifact:" + docID + ":" + version
}

func documentArtifactsKey(docID string) string {
	return "document:artifacts:" + docID
}

func linkKey(token string) string {
	return "link:" + token
}

var _ ArtifactCache = (*RedisArtifactCache)(nil)

type RedisArtifactCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient connects to the redis server at addr.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		Protocol: 2, // Connection protocol
	})
}

func NewRedisArtifactCache(client *redis.Client, ttl time.Duration) *RedisArtifactCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &RedisArtifactCache{client: client, ttl: ttl}
}

func (r *RedisArtifactCache) GetArtifactID(ctx context.Context, docID uuid.UUID, version string) (string, bool, error) {
	res := r.client.Get(ctx, artifactKey(docID.String(), version))
	if res.Err() != nil {
		if errors.Is(res.Err(), redis.Nil) {
			return "", false, nil
		}
		return "", false, res.Err()
	}

	return res.Val(), true, nil
}

func (r *RedisArtifactCache) SetArtifactID(ctx context.Context, docID uuid.UUID, version, artifactID string) error {
	id := docID.String()
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if err := p.Set(ctx, artifactKey(id, version), artifactID, r.ttl).Err(); err != nil {
			return err
		}

		// remember the version so the document can be invalidated as a whole
		if err := p.SAdd(ctx, documentArtifactsKey(id), version).Err(); err != nil {
			return err
		}

		return p.Expire(ctx, documentArtifactsKey(id), r.ttl).Err()
	})

	return err
}

func (r *RedisArtifactCache) DeleteArtifactID(ctx context.Context, docID uuid.UUID, version string) error {
	id := docID.String()
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if err := p.Del(ctx, artifactKey(id, version)).Err(); err != nil {
			return err
		}

		return p.SRem(ctx, documentArtifactsKey(id), version).Err()
	})

	return err
}

func (r *RedisArtifactCache) GetLink(ctx context.Context, token string) (*model.ShareLink, bool, error) {
	res := r.client.Get(ctx, linkKey(token))
	if res.Err() != nil {
		if errors.Is(res.Err(), redis.Nil) {
			return nil, false, nil
		}
		return nil, false, res.Err()
	}

	buf, err := res.Bytes()
	if err != nil {
		return nil, false, err
	}

	link := &model.ShareLink{}
	if err = json.Unmarshal(buf, link); err != nil {
		// a corrupt entry is dropped and treated as a miss
		logrus.Warnf("dropping corrupt link cache entry %s: %v", token, err)
		_ = r.client.Del(ctx, linkKey(token)).Err()
		return nil, false, nil
	}

	return link, true, nil
}

func (r *RedisArtifactCache) SetLink(ctx context.Context, link *model.ShareLink) error {
	marshal, err := json.Marshal(link)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, linkKey(link.Token), marshal, r.ttl).Err()
}

func (r *RedisArtifactCache) InvalidateDocument(ctx context.Context, docID uuid.UUID, tokens []string) error {
	id := docID.String()
	versions := r.client.SMembers(ctx, documentArtifactsKey(id))
	if versions.Err() != nil && !errors.Is(versions.Err(), redis.Nil) {
		return versions.Err()
	}

	keys := make([]string, 0, len(versions.Val())+len(tokens)+1)
	keys = append(keys, documentArtifactsKey(id))
	for _, version := range versions.Val() {
		keys = append(keys, artifactKey(id, version))
	}
	for _, token := range tokens {
		keys = append(keys, linkKey(token))
	}

	return r.client.Del(ctx, keys...).Err()
}
