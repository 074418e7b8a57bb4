package cache

import (
	"context"
	"testing"
	"time"

	"github.com/emrgen/docrender/internal/model"
	"github.com/emrgen/docrender/internal/tester"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisArtifactCache_Artifacts(t *testing.T) {
	ctx := context.TODO()
	client, server := tester.Redis(t)
	c := NewRedisArtifactCache(client, time.Minute)
	docID := uuid.New()

	_, ok, err := c.GetArtifactID(ctx, docID, "v1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetArtifactID(ctx, docID, "v1", "a1"))
	require.NoError(t, c.SetArtifactID(ctx, docID, "v2", "a2"))

	id, ok, err := c.GetArtifactID(ctx, docID, "v1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a1", id)

	require.NoError(t, c.DeleteArtifactID(ctx, docID, "v1"))
	_, ok, err = c.GetArtifactID(ctx, docID, "v1")
	require.NoError(t, err)
	assert.False(t, ok)

	server.FastForward(2 * time.Minute)
	_, ok, err = c.GetArtifactID(ctx, docID, "v2")
	require.NoError(t, err)
	assert.False(t, ok, "entries expire after the ttl")
}

func TestRedisArtifactCache_Links(t *testing.T) {
	ctx := context.TODO()
	client, server := tester.Redis(t)
	c := NewRedisArtifactCache(client, time.Minute)
	docID := uuid.New()

	link := &model.ShareLink{Token: "k3y5abcd", DocumentID: docID.String(), PinnedVersion: "v1"}
	require.NoError(t, c.SetLink(ctx, link))

	got, ok, err := c.GetLink(ctx, "k3y5abcd")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, link.DocumentID, got.DocumentID)
	assert.True(t, got.Pinned())

	require.NoError(t, server.Set(linkKey("broken"), "{"))
	_, ok, err = c.GetLink(ctx, "broken")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, server.Exists(linkKey("broken")))
}

func TestRedisArtifactCache_InvalidateDocument(t *testing.T) {
	ctx := context.TODO()
	client, server := tester.Redis(t)
	c := NewRedisArtifactCache(client, time.Minute)
	docID := uuid.New()
	other := uuid.New()

	require.NoError(t, c.SetArtifactID(ctx, docID, "v1", "a1"))
	require.NoError(t, c.SetArtifactID(ctx, docID, "v2", "a2"))
	require.NoError(t, c.SetArtifactID(ctx, other, "v1", "b1"))
	require.NoError(t, c.SetLink(ctx, &model.ShareLink{Token: "tok00001", DocumentID: docID.String()}))

	require.NoError(t, c.InvalidateDocument(ctx, docID, []string{"tok00001"}))

	for _, v := range []string{"v1", "v2"} {
		_, ok, err := c.GetArtifactID(ctx, docID, v)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	_, ok, err := c.GetLink(ctx, "tok00001")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, server.Exists(documentArtifactsKey(docID.String())))

	id, ok, err := c.GetArtifactID(ctx, other, "v1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b1", id)
}
