package katana

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/BlackTechX011/katana/internal/codec"
	"github.com/BlackTechX011/katana/internal/cryptoshard"
	"github.com/BlackTechX011/katana/internal/progress"
	"github.com/BlackTechX011/katana/internal/walker"
	"github.com/BlackTechX011/katana/katanaerr"
)

// fileTask is one file assigned to a shard worker: its location on disk and
// the normalized relative path it will be stored under.
type fileTask struct {
	AbsPath string
	RelPath string
	Size    int64
	Mode    os.FileMode
}

// shardResult is what a worker reports back to the coordinator on
// completion.
type shardResult struct {
	ID               int
	TempPath         string
	CompressedSize   uint64
	UncompressedSize uint64
	Files            []FileEntry
	Nonce            []byte // present iff encrypted
}

// countingWriter tracks the number of bytes written through it, used to
// learn an unencrypted shard's on-disk size without a second pass.
type countingWriter struct {
	w io.Writer
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}

// runShardWorker runs one shard's pipeline: read files in order, stream
// them through a zstd encoder, optionally seal the compressed result with
// AES-256-GCM, and spill to an anonymous temp file.
func runShardWorker(id int, files []fileTask, key []byte, level codec.Level, codecThreads int, copyBufSize int, tracker *progress.Tracker, workerIdx int) (shardResult, error) {
	// A uuid suffix keeps shard temp names collision-free when several
	// concurrent Create calls share a temp directory.
	tempPath := filepath.Join(os.TempDir(), "katana-shard-"+uuid.NewString()+".tmp")
	tempFile, err := os.OpenFile(tempPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return shardResult{}, katanaerr.WrapShard(katanaerr.KindIo, "write", id, err)
	}
	cleanup := func() {
		tempFile.Close()
		os.Remove(tempPath)
	}

	encrypted := len(key) > 0
	var compressBuf *bytes.Buffer
	var dest io.Writer
	var counter *countingWriter
	if encrypted {
		compressBuf = &bytes.Buffer{}
		dest = compressBuf
	} else {
		counter = &countingWriter{w: tempFile}
		dest = counter
	}

	enc, err := codec.NewEncoder(dest, level, codecThreads)
	if err != nil {
		cleanup()
		return shardResult{}, katanaerr.WrapShard(katanaerr.KindFormat, "compress", id, err)
	}

	if copyBufSize < 32*1024 {
		copyBufSize = 256 * 1024
	}
	copyBuf := make([]byte, copyBufSize)

	entries := make([]FileEntry, 0, len(files))
	var running uint64
	for _, task := range files {
		perm := uint32(task.Mode.Perm())
		entries = append(entries, FileEntry{
			Path:        task.RelPath,
			Size:        uint64(task.Size),
			Offset:      running,
			Permissions: &perm,
		})

		n, err := copyFileInto(enc, task.AbsPath, copyBuf)
		if err != nil {
			enc.Close()
			cleanup()
			return shardResult{}, katanaerr.WrapShard(katanaerr.KindIo, "read", id, err)
		}
		running += uint64(n)

		if tracker != nil {
			w := tracker.Worker(workerIdx)
			w.AddFile()
			w.AddBytes(n)
			tracker.Tick()
		}
	}

	if err := enc.Close(); err != nil {
		cleanup()
		return shardResult{}, katanaerr.WrapShard(katanaerr.KindFormat, "compress", id, err)
	}

	var nonce []byte
	var compressedSize uint64
	if encrypted {
		var ciphertext []byte
		nonce, ciphertext, err = cryptoshard.Seal(key, compressBuf.Bytes())
		if err != nil {
			cleanup()
			return shardResult{}, katanaerr.WrapShard(katanaerr.KindCrypto, "encrypt", id, err)
		}
		if _, err := tempFile.Write(ciphertext); err != nil {
			cleanup()
			return shardResult{}, katanaerr.WrapShard(katanaerr.KindIo, "write", id, err)
		}
		compressedSize = uint64(len(ciphertext))
	} else {
		compressedSize = counter.n
	}

	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return shardResult{}, katanaerr.WrapShard(katanaerr.KindIo, "write", id, err)
	}

	if tracker != nil {
		tracker.ShardDone()
		tracker.Tick()
	}

	return shardResult{
		ID:               id,
		TempPath:         tempPath,
		CompressedSize:   compressedSize,
		UncompressedSize: running,
		Files:            entries,
		Nonce:            nonce,
	}, nil
}

func copyFileInto(dst io.Writer, path string, buf []byte) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.CopyBuffer(dst, f, buf)
}

// assignShards splits files into contiguous chunks of ceil(N/threads) files
// each; the last chunk may be shorter, and there are at most threads
// chunks (fewer when N is small, e.g. 5 files over 4 threads gives 3).
func assignShards(files []walker.File, root string, threads int) [][]fileTask {
	if threads < 1 {
		threads = 1
	}
	n := len(files)
	if n == 0 {
		return nil
	}
	chunkSize := (n + threads - 1) / threads
	var shards [][]fileTask
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		chunk := make([]fileTask, 0, end-start)
		for _, f := range files[start:end] {
			chunk = append(chunk, fileTask{
				AbsPath: f.AbsPath,
				RelPath: walker.Normalize(relPath(root, f.AbsPath)),
				Size:    f.Size,
				Mode:    f.Mode,
			})
		}
		shards = append(shards, chunk)
	}
	return shards
}
