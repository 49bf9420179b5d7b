package katana

import (
	"encoding/json"
	"errors"
)

// FileEntry describes one archived file: its normalized relative path, its
// original size, its uncompressed offset within its shard, and (on Unix)
// its permission bits.
type FileEntry struct {
	Path        string  `json:"path"`
	Size        uint64  `json:"size"`
	Offset      uint64  `json:"offset"`
	Permissions *uint32 `json:"permissions,omitempty"`
}

// ShardInfo describes one shard's position and integrity metadata within
// the archive.
type ShardInfo struct {
	Offset           uint64 `json:"offset"`
	CompressedSize   uint64 `json:"compressed_size"`
	UncompressedSize uint64 `json:"uncompressed_size"`
	FileCount        int    `json:"file_count"`
	CRC32            uint32 `json:"crc32"`
	Nonce            []byte `json:"nonce,omitempty"`
}

// Index is the archive's metadata record, appended after all shards and
// located by the trailer. The json tags are part of the on-disk format:
// CRC32 and HMAC are computed over this exact encoding.
type Index struct {
	CRC32  uint32      `json:"crc32"`
	HMAC   []byte      `json:"hmac,omitempty"`
	Salt   []byte      `json:"salt,omitempty"`
	Shards []ShardInfo `json:"shards"`
	Files  []FileEntry `json:"files"`
}

// canonicalJSON serializes the index with crc32 zeroed and hmac omitted,
// the exact input to both the CRC32 and HMAC computations. salt is left
// as-is: it is present iff the archive is encrypted, independent of
// crc32/hmac state.
func (idx Index) canonicalJSON() ([]byte, error) {
	canon := idx
	canon.CRC32 = 0
	canon.HMAC = nil
	return json.Marshal(canon)
}

// Marshal serializes the index with its current crc32/hmac/salt fields,
// for writing to the archive.
func (idx Index) Marshal() ([]byte, error) {
	return json.Marshal(idx)
}

// UnmarshalIndex parses a previously-serialized index.
func UnmarshalIndex(data []byte) (Index, error) {
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return Index{}, err
	}
	return idx, nil
}

// Encrypted reports whether the index carries a salt, the sole signal
// that an archive requires a password.
func (idx Index) Encrypted() bool {
	return len(idx.Salt) > 0
}

// validate checks the structural invariants a well-formed index must hold:
// per-shard file counts sum to the file list length, offsets within a shard
// are non-decreasing and stay inside the shard's uncompressed size, and
// nonces are present on every shard or none, in lockstep with the salt.
func (idx Index) validate() error {
	total := 0
	for _, s := range idx.Shards {
		if s.FileCount < 0 {
			return errIndexShape
		}
		total += s.FileCount
	}
	if total != len(idx.Files) {
		return errIndexShape
	}

	pos := 0
	for _, s := range idx.Shards {
		var prev uint64
		for _, fe := range idx.Files[pos : pos+s.FileCount] {
			if fe.Offset < prev || fe.Offset+fe.Size > s.UncompressedSize {
				return errIndexShape
			}
			prev = fe.Offset
		}
		pos += s.FileCount

		if idx.Encrypted() != (len(s.Nonce) > 0) {
			return errIndexShape
		}
	}
	return nil
}

var errIndexShape = errors.New("index invariants violated")
