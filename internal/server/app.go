package server

import (
	"context"
	"fmt"

	"github.com/emrgen/docrender/internal/blob"
	"github.com/emrgen/docrender/internal/cache"
	"github.com/emrgen/docrender/internal/compiler"
	"github.com/emrgen/docrender/internal/compress"
	"github.com/emrgen/docrender/internal/config"
	"github.com/emrgen/docrender/internal/jobs"
	"github.com/emrgen/docrender/internal/queue"
	"github.com/emrgen/docrender/internal/service"
	"github.com/emrgen/docrender/internal/store"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App holds the services behind the API.
type App struct {
	Store     *store.GormStore
	Cache     cache.ArtifactCache
	Render    *service.RenderService
	Documents *service.DocumentService
	Links     *service.LinkService
	Tasks     *jobs.TaskExecutor

	closers []func()
}

// Components are the backends an App is assembled from.
type Components struct {
	Store       *store.GormStore
	Blobs       blob.Store
	Compiler    compiler.Compiler
	Cache       cache.ArtifactCache
	Queue       queue.RenderQueue
	TokenLength int
}

func NewAppFrom(c Components) *App {
	if c.Cache == nil {
		c.Cache = cache.NewNop()
	}
	if c.Queue == nil {
		c.Queue = queue.NewNop()
	}

	render := service.NewRenderService(c.Store, c.Blobs, c.Compiler, c.Cache, c.Queue)

	return &App{
		Store:     c.Store,
		Cache:     c.Cache,
		Render:    render,
		Documents: service.NewDocumentService(c.Store, render, c.Cache),
		Links:     service.NewLinkService(c.Store, render, c.Cache, service.RandomTokens(c.TokenLength)),
	}
}

// NewApp builds the App described by the configuration on top of an open database.
func NewApp(ctx context.Context, cfg *config.Config, db *gorm.DB) (*App, error) {
	docStore := store.NewGormStore(db)
	if err := docStore.Migrate(); err != nil {
		return nil, err
	}

	var closers []func()

	blobs, closeBlobs, err := newBlobStore(ctx, cfg, db)
	if err != nil {
		return nil, err
	}
	if closeBlobs != nil {
		closers = append(closers, closeBlobs)
	}

	var artifactCache cache.ArtifactCache = cache.NewNop()
	if cfg.Redis.Addr != "" {
		client := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err = client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		artifactCache = cache.NewRedisArtifactCache(client, cfg.Redis.TTL)
		closers = append(closers, func() { _ = client.Close() })
		logrus.Infof("artifact index cached in redis at %s", cfg.Redis.Addr)
	}

	var renderQueue queue.RenderQueue = queue.NewNop()
	if cfg.Kafka.Brokers != "" {
		kafkaQueue, err := queue.NewKafkaRenderQueue(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		renderQueue = kafkaQueue
		closers = append(closers, kafkaQueue.Close)
		logrus.Infof("publishing render events to %s", cfg.Kafka.Topic)
	}

	if len(cfg.Compiler.Endpoints) == 0 {
		logrus.Warnf("no compiler endpoints configured, every render will fail")
	}
	gateway := compiler.NewGateway(compiler.Options{
		Endpoints:        cfg.Compiler.Endpoints,
		Timeout:          cfg.Compiler.Timeout,
		FailureThreshold: cfg.Compiler.FailureThreshold,
		CoolDown:         cfg.Compiler.CoolDown,
	})

	app := NewAppFrom(Components{
		Store:       docStore,
		Blobs:       blobs,
		Compiler:    gateway,
		Cache:       artifactCache,
		Queue:       renderQueue,
		TokenLength: cfg.Links.TokenLength,
	})
	app.closers = closers

	var tasks []jobs.CronJob
	if cfg.Jobs.PruneSchedule != "" {
		tasks = append(tasks, jobs.NewArtifactPruneTask(cfg.Jobs.PruneSchedule, cfg.Jobs.PruneAfter, docStore, app.Render))
	}
	if cfg.Jobs.SyncSchedule != "" && cfg.Redis.Addr != "" {
		tasks = append(tasks, jobs.NewCacheSyncTask(cfg.Jobs.SyncSchedule, cfg.Jobs.SyncLimit, docStore, artifactCache))
	}
	app.Tasks = jobs.NewTaskExecutor(tasks...)

	return app, nil
}

func newBlobStore(ctx context.Context, cfg *config.Config, db *gorm.DB) (blob.Store, func(), error) {
	codec, err := compress.New(cfg.Blob.Compression)
	if err != nil {
		return nil, nil, err
	}

	var (
		blobs   blob.Store
		closeFn func()
	)

	switch cfg.Blob.Driver {
	case "", "fs":
		blobs, err = blob.NewFileStore(cfg.Blob.Dir)
	case "db":
		blobs = blob.NewGormStore(db)
	case "s3":
		blobs, err = blob.NewS3Store(ctx, cfg.Blob.Bucket, cfg.Blob.Region, cfg.Blob.Prefix)
	case "gcs":
		var gcs *blob.GCSStore
		gcs, err = blob.NewGCSStore(ctx, cfg.Blob.Bucket, cfg.Blob.Prefix)
		if err == nil {
			blobs = gcs
			closeFn = func() { _ = gcs.Close() }
		}
	default:
		err = fmt.Errorf("unknown blob driver %q", cfg.Blob.Driver)
	}
	if err != nil {
		return nil, nil, err
	}

	logrus.Infof("artifact payloads stored in %s with %s compression", cfg.Blob.Driver, codec.Name())
	return blob.NewCompressed(blobs, codec), closeFn, nil
}

// Close releases the connections held by the App.
func (a *App) Close() {
	if a.Tasks != nil {
		a.Tasks.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
