package compress

import "fmt"

// Compress encodes and decodes stored payloads. Decode(Encode(b)) must return b unchanged.
type Compress interface {
	Name() string
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// New returns the compressor registered under name.
func New(name string) (Compress, error) {
	switch name {
	case "", "nop", "none":
		return NewNop(), nil
	case "gzip":
		return NewGZip(), nil
	case "brotli":
		return NewBrotli(), nil
	case "lz4":
		return NewLZ4(), nil
	}

	return nil, fmt.Errorf("unknown compression %q", name)
}
