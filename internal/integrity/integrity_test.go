package integrity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC32MatchesIncrementalUpdate(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, many times over")
	whole := CRC32(data)

	sum := uint32(0)
	for _, chunk := range [][]byte{data[:10], data[10:30], data[30:]} {
		sum = CRC32Update(sum, chunk)
	}
	assert.Equal(t, whole, sum)
}

func TestVerifyCRC32(t *testing.T) {
	data := []byte("payload")
	assert.NoError(t, VerifyCRC32(data, CRC32(data), "x"))
	assert.Error(t, VerifyCRC32(data, CRC32(data)+1, "x"))
}

func TestHashReader(t *testing.T) {
	hash, n, err := HashReader(strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, uint64(11), n)
	assert.NotEqual(t, [32]byte{}, hash)

	again, n2, err := HashReader(strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, n, n2)
	assert.Equal(t, hash, again)
}

func TestFooterRoundTrip(t *testing.T) {
	hash, _, err := HashReader(strings.NewReader("archive bytes"))
	require.NoError(t, err)

	f := Footer{DataLength: 12345, Hash: hash}
	buf := EncodeFooter(f)
	assert.Len(t, buf, FooterSize)
	assert.Equal(t, FooterMagic[:], buf[0:16])

	decoded, err := DecodeFooter(buf)
	require.NoError(t, err)
	assert.Equal(t, f, decoded)

	require.NoError(t, VerifyFooter(decoded, hash))
	assert.Error(t, VerifyFooter(decoded, [32]byte{1}))
}

func TestDecodeFooterRejectsBadMagic(t *testing.T) {
	buf := EncodeFooter(Footer{DataLength: 1})
	buf[0] ^= 0xFF
	_, err := DecodeFooter(buf)
	assert.Error(t, err)
}

func TestDecodeFooterRejectsWrongSize(t *testing.T) {
	_, err := DecodeFooter(make([]byte, FooterSize-1))
	assert.Error(t, err)
}

func TestTrailerRoundTrip(t *testing.T) {
	tr := Trailer{IndexCompressedSize: 512, IndexJSONSize: 2048}
	buf := EncodeTrailer(tr)
	assert.Len(t, buf, TrailerSize)

	decoded, err := DecodeTrailer(buf)
	require.NoError(t, err)
	assert.Equal(t, tr, decoded)

	assert.True(t, HasTrailerMagic(buf))
}

func TestDecodeTrailerRejectsBadMagic(t *testing.T) {
	buf := EncodeTrailer(Trailer{})
	buf[23] ^= 0xFF
	_, err := DecodeTrailer(buf)
	assert.Error(t, err)
	assert.False(t, HasTrailerMagic(buf))
}

func TestHasTrailerMagicShortBuffer(t *testing.T) {
	assert.False(t, HasTrailerMagic(make([]byte, TrailerSize-1)))
}
