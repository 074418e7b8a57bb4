package queue

import (
	"context"
	"encoding/json"
	"time"
)

const DefaultRenderTopic = "document.rendered"

// RenderEvent announces a freshly filled artifact.
type RenderEvent struct {
	DocumentID string    `json:"documentId"`
	Version    string    `json:"version"`
	ArtifactID string    `json:"artifactId"`
	Size       int64     `json:"size"`
	RenderedAt time.Time `json:"renderedAt"`
}

func (e *RenderEvent) MarshalBinary() ([]byte, error) {
	return json.Marshal(e)
}

type RenderQueue interface {
	// PublishRendered appends a render event to the queue.
	PublishRendered(ctx context.Context, event *RenderEvent) error
	Close()
}

var _ RenderQueue = Nop{}

type Nop struct{}

func NewNop() Nop {
	return Nop{}
}

func (Nop) PublishRendered(context.Context, *RenderEvent) error {
	return nil
}

func (Nop) Close() {}
