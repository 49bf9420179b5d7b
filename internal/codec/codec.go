// Package codec wraps klauspost/compress/zstd into the streaming encoder
// and decoder the shard worker and extractor need.
package codec

import (
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/BlackTechX011/katana/katanaerr"
)

// Level names a compression profile and maps deterministically to a
// concrete zstd encoder level.
type Level int

const (
	LevelFast Level = iota
	LevelDefault
	LevelBest
)

func (l Level) zstdLevel() zstd.EncoderLevel {
	switch l {
	case LevelFast:
		return zstd.SpeedFastest
	case LevelBest:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// NewEncoder returns a streaming zstd encoder writing into w, at the given
// level and using codecThreads internal worker goroutines. Frame checksums
// are always enabled.
func NewEncoder(w io.Writer, level Level, codecThreads int) (*zstd.Encoder, error) {
	if codecThreads < 1 {
		codecThreads = 1
	}
	enc, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(level.zstdLevel()),
		zstd.WithEncoderConcurrency(codecThreads),
		zstd.WithEncoderCRC(true),
	)
	if err != nil {
		return nil, katanaerr.Wrap(katanaerr.KindFormat, "compress", "", err)
	}
	return enc, nil
}

// NewDecoder returns a streaming zstd decoder reading from r, using
// codecThreads internal worker goroutines.
func NewDecoder(r io.Reader, codecThreads int) (*zstd.Decoder, error) {
	if codecThreads < 1 {
		codecThreads = 1
	}
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(codecThreads))
	if err != nil {
		return nil, katanaerr.Wrap(katanaerr.KindFormat, "decompress", "", err)
	}
	return dec, nil
}

// CompressBuffer is a one-shot helper for the index: it compresses data at
// level into a new byte slice, used for the small, in-memory index blob
// rather than a full streaming pipeline.
func CompressBuffer(data []byte, level Level) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level.zstdLevel()))
	if err != nil {
		return nil, katanaerr.Wrap(katanaerr.KindFormat, "compress_index", "", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data))), nil
}

// DecompressBuffer reverses CompressBuffer.
func DecompressBuffer(data []byte, maxSize int) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, katanaerr.Wrap(katanaerr.KindFormat, "decompress_index", "", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, make([]byte, 0, maxSize))
	if err != nil {
		return nil, katanaerr.Wrap(katanaerr.KindFormat, "decompress_index", "", err)
	}
	return out, nil
}
