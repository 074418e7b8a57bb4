package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEvent_MarshalBinary(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	event := &RenderEvent{DocumentID: "d", Version: "v", ArtifactID: "a", Size: 42, RenderedAt: at}

	buf, err := event.MarshalBinary()
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(buf, &fields))
	assert.Equal(t, "d", fields["documentId"])
	assert.Equal(t, "a", fields["artifactId"])
	assert.Equal(t, float64(42), fields["size"])
}

func TestNop(t *testing.T) {
	q := NewNop()
	assert.NoError(t, q.PublishRendered(context.TODO(), &RenderEvent{}))
	q.Close()
}
