package service

import (
	"context"
	"testing"

	"github.com/emrgen/docrender/internal/model"
	"github.com/emrgen/docrender/internal/version"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentService_Create(t *testing.T) {
	e := newEnv(t, nil)
	owner := newOwner()

	doc, err := e.docs.Create(context.TODO(), owner, CreateDocument{
		Title:      "  Notes  ",
		Language:   model.LanguageMarkdown,
		SourceCode: "# hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "Notes", doc.Title)
	assert.Equal(t, owner.ID().String(), doc.Owner)
	assert.Equal(t, version.Version("# hello", model.LanguageMarkdown), doc.CurrentVersion)
	assert.False(t, doc.Public)
	assert.False(t, doc.LastModified.IsZero())

	got, err := e.docs.Get(context.TODO(), owner, uuid.MustParse(doc.ID))
	require.NoError(t, err)
	assert.Equal(t, doc.CurrentVersion, got.CurrentVersion)
	assert.Equal(t, 0, e.compiler.Calls(), "documents are rendered on demand")
}

func TestDocumentService_CreatePreconditions(t *testing.T) {
	e := newEnv(t, nil)
	owner := newOwner()

	tests := []struct {
		name  string
		actor Actor
		req   CreateDocument
	}{
		{"anonymous", Anonymous(), CreateDocument{Title: "t", Language: model.LanguageLatex}},
		{"empty title", owner, CreateDocument{Title: "   ", Language: model.LanguageLatex}},
		{"unknown language", owner, CreateDocument{Title: "t", Language: model.LanguageUnknown}},
		{"pdf language", owner, CreateDocument{Title: "t", Language: model.LanguagePdf}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.docs.Create(context.TODO(), tt.actor, tt.req)
			assert.ErrorIs(t, err, ErrPrecondition)
		})
	}
}

func TestDocumentService_Visibility(t *testing.T) {
	e := newEnv(t, nil)
	owner := newOwner()
	doc := e.create(t, owner, "secret", false)
	docID := uuid.MustParse(doc.ID)

	_, err := e.docs.Get(context.TODO(), Anonymous(), docID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = e.docs.Render(context.TODO(), newOwner(), docID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, e.compiler.Calls())

	data, _, err := e.docs.Render(context.TODO(), owner, docID)
	require.NoError(t, err)
	assert.Contains(t, string(data), "secret")

	public := true
	_, err = e.docs.Update(context.TODO(), owner, docID, UpdateDocument{Public: &public})
	require.NoError(t, err)

	_, err = e.docs.Get(context.TODO(), Anonymous(), docID)
	require.NoError(t, err)

	_, err = e.docs.Get(context.TODO(), Anonymous(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentService_Update(t *testing.T) {
	e := newEnv(t, nil)
	owner := newOwner()
	doc := e.create(t, owner, "one", true)
	docID := uuid.MustParse(doc.ID)

	title := "renamed"
	updated, err := e.docs.Update(context.TODO(), owner, docID, UpdateDocument{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, doc.CurrentVersion, updated.CurrentVersion, "a rename keeps the version")

	same := "one"
	updated, err = e.docs.Update(context.TODO(), owner, docID, UpdateDocument{SourceCode: &same})
	require.NoError(t, err)
	assert.Equal(t, doc.CurrentVersion, updated.CurrentVersion, "identical source keeps the version")

	empty := ""
	_, err = e.docs.Update(context.TODO(), owner, docID, UpdateDocument{Title: &empty})
	assert.ErrorIs(t, err, ErrPrecondition)

	source := "two"
	_, err = e.docs.Update(context.TODO(), newOwner(), docID, UpdateDocument{SourceCode: &source})
	assert.ErrorIs(t, err, ErrNotFound, "a public document is still only editable by its owner")

	stored, err := e.store.GetDocument(context.TODO(), docID)
	require.NoError(t, err)
	assert.Equal(t, "one", stored.SourceCode)
	assert.Equal(t, "renamed", stored.Title)
}

func TestDocumentService_DeleteCascades(t *testing.T) {
	e := newEnv(t, nil)
	owner := newOwner()
	doc := e.create(t, owner, "v1", true)
	docID := uuid.MustParse(doc.ID)

	pinned, err := e.links.CreateLinkFor(context.TODO(), owner, docID, false)
	require.NoError(t, err)
	doc = e.edit(t, owner, doc, "v2")
	floating, err := e.links.CreateLinkFor(context.TODO(), owner, docID, true)
	require.NoError(t, err)
	_, err = e.render.GetOrRender(context.TODO(), doc)
	require.NoError(t, err)
	require.Equal(t, 2, e.blobs.Len())

	other := e.create(t, owner, "unrelated", true)
	_, err = e.render.GetOrRender(context.TODO(), other)
	require.NoError(t, err)

	err = e.docs.Delete(context.TODO(), newOwner(), docID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, e.docs.Delete(context.TODO(), owner, docID))

	_, err = e.docs.Get(context.TODO(), owner, docID)
	assert.ErrorIs(t, err, ErrNotFound)

	artifacts, err := e.store.ListArtifacts(context.TODO(), docID)
	require.NoError(t, err)
	assert.Empty(t, artifacts)
	assert.Equal(t, 1, e.blobs.Len(), "only the unrelated payload is left")

	for _, token := range []string{pinned, floating} {
		_, err = e.links.Resolve(context.TODO(), token)
		assert.ErrorIs(t, err, ErrNotFound)
	}

	err = e.docs.Delete(context.TODO(), owner, docID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentService_ListByOwner(t *testing.T) {
	e := newEnv(t, nil)
	owner := newOwner()
	e.create(t, owner, "public", true)
	e.create(t, owner, "private", false)
	e.create(t, newOwner(), "someone else", true)

	mine, err := e.docs.ListByOwner(context.TODO(), owner, owner.ID(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := e.docs.ListByOwner(context.TODO(), Anonymous(), owner.ID(), 0, 0)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, "public", theirs[0].SourceCode)

	paged, err := e.docs.ListByOwner(context.TODO(), owner, owner.ID(), 1, 1)
	require.NoError(t, err)
	assert.Len(t, paged, 1)

	public, err := e.docs.ListPublic(context.TODO(), 10, 0)
	require.NoError(t, err)
	assert.Len(t, public, 2)
}

func TestPage(t *testing.T) {
	limit, offset := page(0, -3)
	assert.Equal(t, defaultPageSize, limit)
	assert.Equal(t, 0, offset)

	limit, _ = page(1000, 0)
	assert.Equal(t, maxPageSize, limit)
}
