package katana

import (
	"bytes"
	"io"
	"os"

	"github.com/BlackTechX011/katana/internal/codec"
	"github.com/BlackTechX011/katana/internal/cryptoshard"
	"github.com/BlackTechX011/katana/internal/integrity"
	"github.com/BlackTechX011/katana/katanaerr"
)

// openArchive is the pre-flight state: the integrity footer, the index
// trailer, and the decompressed, CRC32/HMAC-verified index, gathered
// before any shard is touched.
type openArchive struct {
	path       string
	dataLength int64
	footer     integrity.Footer
	hasFooter  bool
	index      Index
	key        []byte
}

func openAndVerifyIndex(path, password string) (*openArchive, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, katanaerr.Wrap(katanaerr.KindIo, "open", path, err)
	}
	size := info.Size()

	f, err := os.Open(path)
	if err != nil {
		return nil, katanaerr.Wrap(katanaerr.KindIo, "open", path, err)
	}
	defer f.Close()

	oa := &openArchive{path: path, dataLength: size}

	if size >= integrity.FooterSize {
		footerBuf := make([]byte, integrity.FooterSize)
		if _, err := f.ReadAt(footerBuf, size-integrity.FooterSize); err != nil {
			return nil, katanaerr.Wrap(katanaerr.KindIo, "open", path, err)
		}
		if bytes.Equal(footerBuf[0:16], integrity.FooterMagic[:]) {
			footer, err := integrity.DecodeFooter(footerBuf)
			if err == nil {
				oa.footer = footer
				oa.hasFooter = true
				oa.dataLength = int64(footer.DataLength)
			}
		}
	}

	if oa.dataLength < integrity.TrailerSize {
		return nil, katanaerr.New(katanaerr.KindFormat, "verify", path)
	}

	trailerBuf := make([]byte, integrity.TrailerSize)
	if _, err := f.ReadAt(trailerBuf, oa.dataLength-integrity.TrailerSize); err != nil {
		return nil, katanaerr.Wrap(katanaerr.KindIo, "verify", path, err)
	}
	trailer, err := integrity.DecodeTrailer(trailerBuf)
	if err != nil {
		return nil, katanaerr.Wrap(katanaerr.KindFormat, "verify", path, err)
	}

	if trailer.IndexCompressedSize > uint64(oa.dataLength) {
		return nil, katanaerr.New(katanaerr.KindFormat, "verify", path)
	}
	indexStart := oa.dataLength - integrity.TrailerSize - int64(trailer.IndexCompressedSize)
	if indexStart < 0 {
		return nil, katanaerr.New(katanaerr.KindFormat, "verify", path)
	}
	indexCompressed := make([]byte, trailer.IndexCompressedSize)
	if _, err := f.ReadAt(indexCompressed, indexStart); err != nil {
		return nil, katanaerr.Wrap(katanaerr.KindIo, "verify", path, err)
	}

	indexJSON, err := codec.DecompressBuffer(indexCompressed, int(trailer.IndexJSONSize))
	if err != nil {
		return nil, err
	}

	idx, err := UnmarshalIndex(indexJSON)
	if err != nil {
		return nil, katanaerr.Wrap(katanaerr.KindFormat, "verify", path, err)
	}
	if err := idx.validate(); err != nil {
		return nil, katanaerr.Wrap(katanaerr.KindFormat, "verify", path, err)
	}

	canon, err := idx.canonicalJSON()
	if err != nil {
		return nil, katanaerr.Wrap(katanaerr.KindFormat, "verify", path, err)
	}
	if integrity.CRC32(canon) != idx.CRC32 {
		return nil, katanaerr.New(katanaerr.KindIntegrityCrc, "verify", path)
	}

	if idx.Encrypted() {
		if password == "" {
			return nil, katanaerr.New(katanaerr.KindConfig, "decrypt", path)
		}
		key := cryptoshard.DeriveKey(password, idx.Salt, cryptoshard.ProfileRelease)
		if !cryptoshard.VerifyIndexHMAC(key, canon, idx.HMAC) {
			return nil, katanaerr.New(katanaerr.KindIntegrityHmac, "verify", path)
		}
		oa.key = key
	}

	oa.index = idx
	return oa, nil
}

// verifyShards streams each shard and checks its CRC32 before the costly
// AEAD/zstd pipeline ever runs.
func verifyShards(path string, idx Index) error {
	f, err := os.Open(path)
	if err != nil {
		return katanaerr.Wrap(katanaerr.KindIo, "verify", path, err)
	}
	defer f.Close()

	for i, shard := range idx.Shards {
		if _, err := f.Seek(int64(shard.Offset), io.SeekStart); err != nil {
			return katanaerr.WrapShard(katanaerr.KindIo, "verify", i, err)
		}
		lr := io.LimitReader(f, int64(shard.CompressedSize))
		sum := uint32(0)
		buf := make([]byte, 256*1024)
		for {
			n, rerr := lr.Read(buf)
			if n > 0 {
				sum = integrity.CRC32Update(sum, buf[:n])
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				return katanaerr.WrapShard(katanaerr.KindIo, "verify", i, rerr)
			}
		}
		if sum != shard.CRC32 {
			return katanaerr.WrapShard(katanaerr.KindIntegrityCrc, "verify", i, nil)
		}
	}
	return nil
}

// verifyFooterIfPresent recomputes BLAKE3 over [0, dataLength) and
// compares it to the stored footer hash. Archives without a footer are
// accepted for backward compatibility and the check is skipped.
func verifyFooterIfPresent(oa *openArchive) error {
	if !oa.hasFooter {
		return nil
	}
	f, err := os.Open(oa.path)
	if err != nil {
		return katanaerr.Wrap(katanaerr.KindIo, "verify", oa.path, err)
	}
	defer f.Close()

	hash, _, err := integrity.HashReader(io.LimitReader(f, oa.dataLength))
	if err != nil {
		return err
	}
	return integrity.VerifyFooter(oa.footer, hash)
}
