package katana

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/BlackTechX011/katana/internal/codec"
	"github.com/BlackTechX011/katana/internal/cryptoshard"
	"github.com/BlackTechX011/katana/internal/progress"
	"github.com/BlackTechX011/katana/internal/walker"
	"github.com/BlackTechX011/katana/katanaerr"
)

// Extract restores an archive into outputDir: pre-flight integrity
// verification, then one worker per shard (up to runtime.NumCPU), each
// decrypting/decompressing its byte range and writing sanitized file
// paths.
func Extract(archivePath, outputDir string, opts ExtractOptions) error {
	oa, err := openAndVerifyIndex(archivePath, opts.Password)
	if err != nil {
		return err
	}
	if err := verifyShards(archivePath, oa.index); err != nil {
		return err
	}
	if err := verifyFooterIfPresent(oa); err != nil {
		return err
	}

	outRoot, err := filepath.Abs(outputDir)
	if err != nil {
		return katanaerr.Wrap(katanaerr.KindIo, "write", outputDir, err)
	}
	if err := os.MkdirAll(outRoot, 0o755); err != nil {
		return katanaerr.Wrap(katanaerr.KindIo, "write", outRoot, err)
	}

	var selected map[string]bool
	if len(opts.SelectedPaths) > 0 {
		selected = make(map[string]bool, len(opts.SelectedPaths))
		for _, p := range opts.SelectedPaths {
			selected[walker.Normalize(p)] = true
		}
	}

	shardFiles := groupFilesByShard(oa.index)

	var fileCount, byteCount int64
	for _, fe := range oa.index.Files {
		fileCount++
		byteCount += int64(fe.Size)
	}
	var tracker *progress.Tracker
	if opts.Progress != nil {
		tracker = progress.New(len(oa.index.Shards), fileCount, byteCount, int32(len(oa.index.Shards)), progress.Callback(opts.Progress))
	}

	var failed atomic.Bool
	var firstErr error
	var errMu sync.Mutex
	var wg sync.WaitGroup

	// One worker per shard, capped at the core count.
	sem := make(chan struct{}, max1(runtime.NumCPU()))

	for i, shard := range oa.index.Shards {
		if shardSkippable(shard, shardFiles[i], selected) {
			continue
		}
		wg.Add(1)
		go func(idx int, shard ShardInfo, files []FileEntry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if failed.Load() {
				return
			}
			err := extractShard(archivePath, idx, shard, files, oa.key, outRoot, selected, opts.StripComponents, tracker, idx%max1(len(oa.index.Shards)))
			if err != nil {
				failed.Store(true)
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
			}
		}(i, shard, shardFiles[i])
	}
	wg.Wait()

	if tracker != nil {
		tracker.Finish()
	}
	return firstErr
}

// groupFilesByShard splits the flat idx.Files concatenation back into
// per-shard slices using each ShardInfo.FileCount.
func groupFilesByShard(idx Index) [][]FileEntry {
	out := make([][]FileEntry, len(idx.Shards))
	pos := 0
	for i, shard := range idx.Shards {
		out[i] = idx.Files[pos : pos+shard.FileCount]
		pos += shard.FileCount
	}
	return out
}

// shardSkippable reports whether a shard can be skipped entirely because
// no file within it matches the selection.
func shardSkippable(shard ShardInfo, files []FileEntry, selected map[string]bool) bool {
	if selected == nil {
		return false
	}
	for _, fe := range files {
		if selected[fe.Path] {
			return false
		}
	}
	return true
}

func extractShard(archivePath string, shardIdx int, shard ShardInfo, files []FileEntry, key []byte, outRoot string, selected map[string]bool, stripComponents int, tracker *progress.Tracker, workerIdx int) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return katanaerr.WrapShard(katanaerr.KindIo, "read", shardIdx, err)
	}
	defer f.Close()

	if _, err := f.Seek(int64(shard.Offset), io.SeekStart); err != nil {
		return katanaerr.WrapShard(katanaerr.KindIo, "read", shardIdx, err)
	}
	shardReader := io.LimitReader(f, int64(shard.CompressedSize))

	var plainReader io.Reader = shardReader
	if key != nil {
		ciphertext, err := io.ReadAll(shardReader)
		if err != nil {
			return katanaerr.WrapShard(katanaerr.KindIo, "read", shardIdx, err)
		}
		plaintext, err := cryptoshard.Open(key, shard.Nonce, ciphertext)
		if err != nil {
			return katanaerr.WrapShard(katanaerr.KindCrypto, "decrypt", shardIdx, err)
		}
		plainReader = bytes.NewReader(plaintext)
	}

	dec, err := codec.NewDecoder(plainReader, 1)
	if err != nil {
		return katanaerr.WrapShard(katanaerr.KindFormat, "decompress", shardIdx, err)
	}
	defer dec.Close()

	for _, fe := range files {
		write := selected == nil || selected[fe.Path]
		if !write {
			if _, err := io.CopyN(io.Discard, dec, int64(fe.Size)); err != nil && err != io.EOF {
				return katanaerr.WrapShard(katanaerr.KindIo, "decompress", shardIdx, err)
			}
			continue
		}

		target, err := sanitizedTarget(outRoot, fe.Path, stripComponents)
		if err != nil {
			return err
		}
		if target == "" {
			if _, err := io.CopyN(io.Discard, dec, int64(fe.Size)); err != nil && err != io.EOF {
				return katanaerr.WrapShard(katanaerr.KindIo, "decompress", shardIdx, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return katanaerr.Wrap(katanaerr.KindIo, "write", target, err)
		}
		if err := rejectUnsafeTarget(outRoot, target); err != nil {
			return err
		}

		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return katanaerr.Wrap(katanaerr.KindIo, "write", target, err)
		}
		n, err := io.CopyN(out, dec, int64(fe.Size))
		if err != nil && err != io.EOF {
			out.Close()
			return katanaerr.Wrap(katanaerr.KindIo, "write", target, err)
		}

		perm := os.FileMode(0o644)
		if fe.Permissions != nil {
			perm = os.FileMode(*fe.Permissions & 0o777)
		}
		out.Close()
		if err := os.Chmod(target, perm); err != nil {
			return katanaerr.Wrap(katanaerr.KindIo, "write", target, err)
		}

		if tracker != nil {
			w := tracker.Worker(workerIdx)
			w.AddFile()
			w.AddBytes(n)
			tracker.Tick()
		}
	}

	if tracker != nil {
		tracker.ShardDone()
		tracker.Tick()
	}
	return nil
}

// sanitizedTarget reconstructs the on-disk target path for a stored
// entry, applying strip-components and rejecting entries with parent-dir
// components. Returns "" (no error) when strip-components consumes the
// entire path, the tar convention for "nothing left to extract".
func sanitizedTarget(outRoot, storedPath string, stripComponents int) (string, error) {
	if walker.HasParentComponent(storedPath) {
		return "", katanaerr.New(katanaerr.KindPathUnsafe, "write", storedPath)
	}
	normalized := walker.Normalize(storedPath)
	if walker.HasParentComponent(normalized) {
		return "", katanaerr.New(katanaerr.KindPathUnsafe, "write", storedPath)
	}

	parts := strings.Split(normalized, "/")
	if stripComponents > 0 {
		if stripComponents >= len(parts) {
			return "", nil
		}
		parts = parts[stripComponents:]
	}
	rel := strings.Join(parts, "/")
	if rel == "" {
		return "", nil
	}

	target := filepath.Join(outRoot, filepath.FromSlash(rel))
	return target, nil
}

// rejectUnsafeTarget refuses to overwrite an existing directory or symlink
// at target, and requires the target's canonicalized parent to remain
// inside the canonicalized output root. sanitizedTarget already rejects
// every entry with a ".." component, so the join itself can only descend
// from outRoot;
// the canonicalization check additionally catches a pre-existing symlinked
// directory under the root that would redirect the write elsewhere.
func rejectUnsafeTarget(outRoot, target string) error {
	if info, err := os.Lstat(target); err == nil {
		if info.IsDir() || info.Mode()&os.ModeSymlink != 0 {
			return katanaerr.New(katanaerr.KindPathUnsafe, "write", target)
		}
	}

	rootReal, err := filepath.EvalSymlinks(outRoot)
	if err != nil {
		return katanaerr.Wrap(katanaerr.KindIo, "write", outRoot, err)
	}
	parentReal, err := filepath.EvalSymlinks(filepath.Dir(target))
	if err != nil {
		return katanaerr.Wrap(katanaerr.KindIo, "write", target, err)
	}
	if parentReal != rootReal && !strings.HasPrefix(parentReal, rootReal+string(filepath.Separator)) {
		return katanaerr.New(katanaerr.KindPathUnsafe, "write", target)
	}
	return nil
}
