package service

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/emrgen/docrender/internal/blob"
	"github.com/emrgen/docrender/internal/cache"
	"github.com/emrgen/docrender/internal/model"
	"github.com/emrgen/docrender/internal/queue"
	"github.com/emrgen/docrender/internal/store"
	"github.com/emrgen/docrender/internal/tester"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeCompiler echoes the source back as the "compiled" payload and counts calls.
type fakeCompiler struct {
	mu      sync.Mutex
	calls   int
	sources []string
	fail    error
	gate    chan struct{}
}

func (f *fakeCompiler) Compile(ctx context.Context, source io.Reader, language model.Language) ([]byte, error) {
	body, err := io.ReadAll(source)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.calls++
	f.sources = append(f.sources, string(body))
	fail, gate := f.fail, f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	if fail != nil {
		return nil, fail
	}

	return []byte("%PDF " + language.String() + "\n" + string(body)), nil
}

func (f *fakeCompiler) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeCompiler) SetGate(gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = gate
}

func (f *fakeCompiler) SetFailure(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

type recordingQueue struct {
	mu     sync.Mutex
	events []*queue.RenderEvent
}

func (q *recordingQueue) PublishRendered(ctx context.Context, event *queue.RenderEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, event)
	return nil
}

func (q *recordingQueue) Close() {}

func (q *recordingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// countingBlobs counts payload deletes of the wrapped store.
type countingBlobs struct {
	blob.Store
	deletes atomic.Int32
}

func (c *countingBlobs) Delete(ctx context.Context, key string) error {
	defer c.deletes.Add(1)
	return c.Store.Delete(ctx, key)
}

func (c *countingBlobs) Deletes() int {
	return int(c.deletes.Load())
}

type env struct {
	store    *store.GormStore
	blobs    *blob.MemoryStore
	compiler *fakeCompiler
	queue    *recordingQueue
	render   *RenderService
	docs     *DocumentService
	links    *LinkService
}

func newEnv(t *testing.T, artifactCache cache.ArtifactCache) *env {
	t.Helper()
	tester.Quiet(t)

	if artifactCache == nil {
		artifactCache = cache.NewNop()
	}

	e := &env{
		store:    store.NewGormStore(tester.TestDB(t)),
		blobs:    blob.NewMemoryStore(),
		compiler: &fakeCompiler{},
		queue:    &recordingQueue{},
	}
	e.render = NewRenderService(e.store, e.blobs, e.compiler, artifactCache, e.queue)
	e.docs = NewDocumentService(e.store, e.render, artifactCache)
	e.links = NewLinkService(e.store, e.render, artifactCache, nil)

	return e
}

func (e *env) create(t *testing.T, owner Actor, source string, public bool) *model.Document {
	t.Helper()
	doc, err := e.docs.Create(context.TODO(), owner, CreateDocument{
		Title:      "paper",
		Language:   model.LanguageLatex,
		SourceCode: source,
		Public:     public,
	})
	require.NoError(t, err)

	return doc
}

func (e *env) edit(t *testing.T, owner Actor, doc *model.Document, source string) *model.Document {
	t.Helper()
	updated, err := e.docs.Update(context.TODO(), owner, uuid.MustParse(doc.ID), UpdateDocument{SourceCode: &source})
	require.NoError(t, err)

	return updated
}

func newOwner() Actor {
	return UserActor(uuid.New())
}
