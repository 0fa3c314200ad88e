package messages

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

// EncodeAll and DecodeAll are safe for concurrent use, so one pair serves every connection.
func initZstd() error {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdErr
}

// SerializeEnvelope encodes an event and compresses it for the wire.
func SerializeEnvelope(e Event) ([]byte, error) {
	b, err := Encode(e)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize envelope: %w", err)
	}
	if err := initZstd(); err != nil {
		return nil, fmt.Errorf("failed to create zstd codec: %w", err)
	}
	return zstdEncoder.EncodeAll(b, make([]byte, 0, len(b))), nil
}

// DeserializeEnvelope decompresses wire bytes and decodes the envelope.
// A payload that fails to decompress is reported as malformed.
func DeserializeEnvelope(data []byte) (Event, error) {
	if err := initZstd(); err != nil {
		return nil, fmt.Errorf("failed to create zstd codec: %w", err)
	}
	b, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, malformed("", "failed to decompress: %v", err)
	}
	return Decode(b)
}
