package katana

import (
	"io"
	"os"

	"github.com/BlackTechX011/katana/internal/integrity"
	"github.com/BlackTechX011/katana/katanaerr"
)

// coordinator is the single writer to the output archive. It receives
// completed shards out of order over a bounded channel but drains and
// appends them strictly in ascending id order, guaranteeing a
// deterministic on-disk layout despite parallel workers.
type coordinator struct {
	out     *os.File
	offset  uint64
	pending map[int]shardResult
	next    int
}

func newCoordinator(out *os.File) *coordinator {
	return &coordinator{out: out, pending: make(map[int]shardResult)}
}

// drainReady appends every buffered shard whose id is the next expected
// one, in order, returning their ShardInfo and FileEntry lists.
func (c *coordinator) drainReady() ([]ShardInfo, []FileEntry, error) {
	var infos []ShardInfo
	var files []FileEntry
	for {
		res, ok := c.pending[c.next]
		if !ok {
			return infos, files, nil
		}
		delete(c.pending, c.next)
		info, err := c.appendShard(res)
		if err != nil {
			return infos, files, err
		}
		infos = append(infos, info)
		files = append(files, res.Files...)
		c.next++
	}
}

// accept buffers a shard result until it (or its predecessors) can be
// drained in order.
func (c *coordinator) accept(res shardResult) {
	c.pending[res.ID] = res
}

// discardPending removes the temp files of every buffered shard that will
// never be appended, so an aborted create leaves nothing behind.
func (c *coordinator) discardPending() {
	for id, res := range c.pending {
		os.Remove(res.TempPath)
		delete(c.pending, id)
	}
}

func (c *coordinator) appendShard(res shardResult) (ShardInfo, error) {
	tempFile, err := os.Open(res.TempPath)
	if err != nil {
		return ShardInfo{}, katanaerr.WrapShard(katanaerr.KindIo, "write", res.ID, err)
	}
	defer func() {
		tempFile.Close()
		os.Remove(res.TempPath)
	}()

	startOffset := c.offset
	hasher := newCRC32Writer(c.out)
	if _, err := io.Copy(hasher, tempFile); err != nil {
		return ShardInfo{}, katanaerr.WrapShard(katanaerr.KindIo, "write", res.ID, err)
	}
	c.offset += res.CompressedSize

	return ShardInfo{
		Offset:           startOffset,
		CompressedSize:   res.CompressedSize,
		UncompressedSize: res.UncompressedSize,
		FileCount:        len(res.Files),
		CRC32:            hasher.Sum32(),
		Nonce:            res.Nonce,
	}, nil
}

// crc32Writer computes a running CRC32 of everything written through it
// while forwarding the bytes unmodified to an underlying writer.
type crc32Writer struct {
	w   io.Writer
	sum uint32
}

func newCRC32Writer(w io.Writer) *crc32Writer {
	return &crc32Writer{w: w}
}

func (c *crc32Writer) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 {
		c.sum = integrity.CRC32Update(c.sum, p[:n])
	}
	return n, err
}

func (c *crc32Writer) Sum32() uint32 { return c.sum }
