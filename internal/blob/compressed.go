package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/emrgen/docrender/internal/compress"
)

var _ Store = (*Compressed)(nil)

var errCorruptHeader = errors.New("corrupt blob header")

// Compressed encodes payloads before handing them to the underlying store.
// Each payload is prefixed with the codec name so the codec can change
// without breaking payloads written earlier.
type Compressed struct {
	store Store
	codec compress.Compress
}

func NewCompressed(store Store, codec compress.Compress) *Compressed {
	return &Compressed{store: store, codec: codec}
}

func (c *Compressed) Put(ctx context.Context, key string, data []byte) error {
	encoded, err := c.codec.Encode(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.codec.Name(), err)
	}

	name := c.codec.Name()
	buf := make([]byte, 0, 1+len(name)+len(encoded))
	buf = append(buf, byte(len(name)))
	buf = append(buf, name...)
	buf = append(buf, encoded...)

	return c.store.Put(ctx, key, buf)
}

func (c *Compressed) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if len(raw) == 0 || len(raw) < 1+int(raw[0]) {
		return nil, errCorruptHeader
	}

	n := int(raw[0])
	codec, err := compress.New(string(raw[1 : 1+n]))
	if err != nil {
		return nil, err
	}

	return codec.Decode(raw[1+n:])
}

func (c *Compressed) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}
