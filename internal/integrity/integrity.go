// Package integrity implements the CRC32 and BLAKE3 checks that detect
// accidental corruption in a Katana archive, as distinct from the AEAD
// authentication cryptoshard provides against tampering.
package integrity

import (
	"crypto/subtle"
	"encoding/binary"
	"hash/crc32"
	"io"

	"lukechampine.com/blake3"

	"github.com/BlackTechX011/katana/katanaerr"
)

// FooterMagic is the 16-byte magic that opens the whole-file BLAKE3
// integrity footer.
var FooterMagic = [16]byte{'K', 'A', 'T', 'A', 'N', 'A', '_', 'H', 'A', 'S', 'H', '_', 'F', 'O', 'O', 'T'}

// FooterSize is the total on-disk size of the footer: 16-byte magic plus
// 32-byte BLAKE3 digest plus an 8-byte little-endian length of the hashed
// region preceding the footer.
const FooterSize = 56

// Footer is the trailing integrity record covering every byte of the
// archive written before it (shards, index, and the KATIDX01 trailer).
// On-disk layout: 16-byte magic || u64 data length (LE) || 32-byte BLAKE3.
type Footer struct {
	DataLength uint64
	Hash       [32]byte
}

// CRC32 returns the IEEE CRC32 of data.
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// VerifyCRC32 reports whether data's CRC32 equals want, returning a
// KindIntegrityCrc error on mismatch.
func VerifyCRC32(data []byte, want uint32, path string) error {
	got := CRC32(data)
	if got != want {
		return katanaerr.New(katanaerr.KindIntegrityCrc, "verify", path)
	}
	return nil
}

// CRC32Update folds chunk into a running IEEE CRC32 sum, letting callers
// compute a checksum incrementally while streaming bytes elsewhere (the
// coordinator's append copy, the extractor's shard read).
func CRC32Update(sum uint32, chunk []byte) uint32 {
	return crc32.Update(sum, crc32.IEEETable, chunk)
}

// HashReader streams r through BLAKE3, returning its 32-byte digest and the
// number of bytes read. Used to compute the whole-archive footer hash
// without buffering the archive in memory.
func HashReader(r io.Reader) ([32]byte, uint64, error) {
	h := blake3.New(32, nil)
	n, err := io.Copy(h, r)
	if err != nil {
		return [32]byte{}, 0, katanaerr.Wrap(katanaerr.KindIo, "hash", "", err)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, uint64(n), nil
}

// EncodeFooter serializes footer into its FooterSize on-disk form:
// magic || dataLength (little-endian) || hash.
func EncodeFooter(f Footer) []byte {
	buf := make([]byte, FooterSize)
	copy(buf[0:16], FooterMagic[:])
	binary.LittleEndian.PutUint64(buf[16:24], f.DataLength)
	copy(buf[24:56], f.Hash[:])
	return buf
}

// DecodeFooter parses a FooterSize-byte buffer produced by EncodeFooter.
func DecodeFooter(buf []byte) (Footer, error) {
	if len(buf) != FooterSize {
		return Footer{}, katanaerr.New(katanaerr.KindFormat, "decode_footer", "")
	}
	if subtle.ConstantTimeCompare(buf[0:16], FooterMagic[:]) != 1 {
		return Footer{}, katanaerr.New(katanaerr.KindFormat, "decode_footer", "")
	}
	var f Footer
	f.DataLength = binary.LittleEndian.Uint64(buf[16:24])
	copy(f.Hash[:], buf[24:56])
	return f, nil
}

// VerifyFooter reports whether gotHash matches footer.Hash, in constant
// time, returning a KindIntegrityHash error on mismatch.
func VerifyFooter(footer Footer, gotHash [32]byte) error {
	if subtle.ConstantTimeCompare(footer.Hash[:], gotHash[:]) != 1 {
		return katanaerr.New(katanaerr.KindIntegrityHash, "verify_footer", "")
	}
	return nil
}

// TrailerMagic is the 8-byte magic closing the index trailer.
var TrailerMagic = [8]byte{'K', 'A', 'T', 'I', 'D', 'X', '0', '1'}

// TrailerSize is the fixed on-disk size of the trailer: two little-endian
// u64s followed by the 8-byte magic.
const TrailerSize = 24

// Trailer locates the compressed index within the archive's data region.
type Trailer struct {
	IndexCompressedSize uint64
	IndexJSONSize       uint64
}

// EncodeTrailer serializes t into its TrailerSize on-disk form:
// indexCompressedSize || indexJSONSize || magic.
func EncodeTrailer(t Trailer) []byte {
	buf := make([]byte, TrailerSize)
	binary.LittleEndian.PutUint64(buf[0:8], t.IndexCompressedSize)
	binary.LittleEndian.PutUint64(buf[8:16], t.IndexJSONSize)
	copy(buf[16:24], TrailerMagic[:])
	return buf
}

// DecodeTrailer parses a TrailerSize-byte buffer produced by EncodeTrailer.
func DecodeTrailer(buf []byte) (Trailer, error) {
	if len(buf) != TrailerSize {
		return Trailer{}, katanaerr.New(katanaerr.KindFormat, "decode_trailer", "")
	}
	if subtle.ConstantTimeCompare(buf[16:24], TrailerMagic[:]) != 1 {
		return Trailer{}, katanaerr.New(katanaerr.KindFormat, "decode_trailer", "")
	}
	return Trailer{
		IndexCompressedSize: binary.LittleEndian.Uint64(buf[0:8]),
		IndexJSONSize:       binary.LittleEndian.Uint64(buf[8:16]),
	}, nil
}

// HasTrailerMagic reports whether the trailing TrailerSize bytes of buf end
// in the KATIDX01 magic, the basis of IsKatanaArchive.
func HasTrailerMagic(buf []byte) bool {
	if len(buf) < TrailerSize {
		return false
	}
	return subtle.ConstantTimeCompare(buf[len(buf)-8:], TrailerMagic[:]) == 1
}
