package katana

import (
	"os"

	"github.com/BlackTechX011/katana/internal/integrity"
	"github.com/BlackTechX011/katana/katanaerr"
)

// List returns every file entry stored in the archive, after verifying
// the index's CRC32 (and HMAC, if encrypted) but without touching shard
// bodies.
func List(archivePath string, opts ListOptions) ([]Entry, error) {
	oa, err := openAndVerifyIndex(archivePath, opts.Password)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(oa.index.Files))
	for _, fe := range oa.index.Files {
		entries = append(entries, Entry{Path: fe.Path, Size: fe.Size, IsDir: false})
	}
	return entries, nil
}

// Verify performs the complete pre-flight integrity check (index
// CRC32/HMAC, every shard CRC32, whole-file BLAKE3) without writing any
// file.
func Verify(archivePath string, opts ExtractOptions) error {
	oa, err := openAndVerifyIndex(archivePath, opts.Password)
	if err != nil {
		return err
	}
	if err := verifyShards(archivePath, oa.index); err != nil {
		return err
	}
	return verifyFooterIfPresent(oa)
}

// IsKatanaArchive reports whether path ends in the KATIDX01 trailer
// magic. It never requires a password and never validates
// CRC32/HMAC/BLAKE3; it only recognizes the format.
func IsKatanaArchive(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, katanaerr.Wrap(katanaerr.KindIo, "open", path, err)
	}
	if info.Size() < integrity.TrailerSize {
		return false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, katanaerr.Wrap(katanaerr.KindIo, "open", path, err)
	}
	defer f.Close()

	buf := make([]byte, integrity.TrailerSize)
	dataLength := info.Size()
	if dataLength >= integrity.FooterSize {
		footerBuf := make([]byte, integrity.FooterSize)
		if _, err := f.ReadAt(footerBuf, dataLength-integrity.FooterSize); err == nil {
			if footer, ferr := integrity.DecodeFooter(footerBuf); ferr == nil {
				dataLength = int64(footer.DataLength)
			}
		}
	}
	if dataLength < integrity.TrailerSize {
		return false, nil
	}
	if _, err := f.ReadAt(buf, dataLength-integrity.TrailerSize); err != nil {
		return false, katanaerr.Wrap(katanaerr.KindIo, "open", path, err)
	}
	return integrity.HasTrailerMagic(buf), nil
}
