package codec

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressDecompressBufferRoundTrip(t *testing.T) {
	data := []byte(`{"files":[{"path":"a.txt","size":3}]}`)
	for _, level := range []Level{LevelFast, LevelDefault, LevelBest} {
		compressed, err := CompressBuffer(data, level)
		require.NoError(t, err)

		decompressed, err := DecompressBuffer(compressed, len(data))
		require.NoError(t, err)
		assert.Equal(t, data, decompressed)
	}
}

func TestStreamingEncoderDecoderRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("streaming shard content "), 1000)

	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, LevelDefault, 2)
	require.NoError(t, err)
	_, err = enc.Write(data)
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	dec, err := NewDecoder(&buf, 2)
	require.NoError(t, err)
	defer dec.Close()

	got, err := io.ReadAll(dec)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDecompressBufferRejectsGarbage(t *testing.T) {
	_, err := DecompressBuffer([]byte("not zstd data at all"), 16)
	assert.Error(t, err)
}
