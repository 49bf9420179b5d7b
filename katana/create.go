package katana

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/BlackTechX011/katana/internal/autotune"
	"github.com/BlackTechX011/katana/internal/codec"
	"github.com/BlackTechX011/katana/internal/cryptoshard"
	"github.com/BlackTechX011/katana/internal/integrity"
	"github.com/BlackTechX011/katana/internal/progress"
	"github.com/BlackTechX011/katana/internal/walker"
	"github.com/BlackTechX011/katana/katanaerr"
)

// Create builds a Katana archive at outputPath from inputs: walk, shard
// assignment, N parallel shard workers, ordered coordinator append, index
// build, and the BLAKE3 integrity footer.
func Create(inputs []string, outputPath string, opts CreateOptions) error {
	if len(inputs) == 0 {
		return katanaerr.New(katanaerr.KindConfig, "create", "")
	}

	files, err := walker.Walk(inputs)
	if err != nil {
		return katanaerr.Wrap(katanaerr.KindIo, "walk", "", err)
	}
	root := walker.CommonAncestor(inputs)

	threads := opts.Threads
	codecThreads := opts.CodecThreads
	copyBufSize := 256 * 1024
	if threads <= 0 || codecThreads <= 0 {
		budget := opts.MemoryBudget.toAutotuneBudget()
		budgetBytes, berr := budget.ResolveBytes()
		if berr != nil {
			budgetBytes = 0
		}
		cfg := tunedConfig(budgetBytes, files)
		if threads <= 0 {
			threads = cfg.ThreadCount
		}
		if codecThreads <= 0 {
			codecThreads = cfg.CodecThreads
		}
		if cfg.InputBufferSize > 0 {
			copyBufSize = cfg.InputBufferSize
		}
	}
	// The copy buffer is a streaming chunk, not the shard's working set, so
	// a controller-sized slice beyond a few MiB buys nothing.
	if copyBufSize > 4*1024*1024 {
		copyBufSize = 4 * 1024 * 1024
	}
	if threads < 1 {
		threads = max1(runtime.NumCPU())
	}
	if codecThreads < 1 {
		codecThreads = 1
	}

	var key, salt []byte
	if opts.Password != "" {
		salt, err = cryptoshard.GenerateSalt()
		if err != nil {
			return err
		}
		key = cryptoshard.DeriveKey(opts.Password, salt, cryptoshard.ProfileRelease)
	}

	shards := assignShards(files, root, threads)

	var fileCount, byteCount int64
	for _, f := range files {
		fileCount++
		byteCount += f.Size
	}
	var tracker *progress.Tracker
	if opts.Progress != nil {
		tracker = progress.New(len(shards), fileCount, byteCount, int32(len(shards)), progress.Callback(opts.Progress))
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		return katanaerr.Wrap(katanaerr.KindIo, "write", outputPath, err)
	}
	defer outFile.Close()

	infos, fileEntries, err := runShardsAndCoordinate(shards, key, opts.Level, codecThreads, copyBufSize, tracker, outFile)
	if err != nil {
		outFile.Close()
		os.Remove(outputPath)
		return err
	}

	idx := Index{Salt: salt, Shards: infos, Files: fileEntries}

	canon, err := idx.canonicalJSON()
	if err != nil {
		return katanaerr.Wrap(katanaerr.KindFormat, "index", "", err)
	}
	idx.CRC32 = integrity.CRC32(canon)
	if key != nil {
		// HMAC covers the same canonical form as CRC32 (crc32=0, hmac
		// omitted).
		idx.HMAC = cryptoshard.IndexHMAC(key, canon)
	}

	indexJSON, err := idx.Marshal()
	if err != nil {
		return katanaerr.Wrap(katanaerr.KindFormat, "index", "", err)
	}
	indexCompressed, err := codec.CompressBuffer(indexJSON, opts.Level)
	if err != nil {
		return err
	}

	if _, err := outFile.Write(indexCompressed); err != nil {
		return katanaerr.Wrap(katanaerr.KindIo, "write", outputPath, err)
	}

	trailer := integrity.EncodeTrailer(integrity.Trailer{
		IndexCompressedSize: uint64(len(indexCompressed)),
		IndexJSONSize:       uint64(len(indexJSON)),
	})
	if _, err := outFile.Write(trailer); err != nil {
		return katanaerr.Wrap(katanaerr.KindIo, "write", outputPath, err)
	}

	if tracker != nil {
		tracker.Finish()
	}

	// The footer is always written; without it no later verification is
	// possible. SkipIntegrityCheck only disables Create's own post-write
	// self-verification pass below, not the footer.
	if err := writeFooter(outFile); err != nil {
		return err
	}

	if err := outFile.Sync(); err != nil {
		return katanaerr.Wrap(katanaerr.KindIo, "write", outputPath, err)
	}

	if !opts.SkipIntegrityCheck {
		if err := Verify(outputPath, ExtractOptions{Password: opts.Password}); err != nil {
			return err
		}
	}

	return nil
}

// tunedConfig samples the live system through the adaptive controller and
// derives a resource allocation for the run. Sampling failure falls back to
// the balanced strategy rather than failing the create.
func tunedConfig(budgetBytes int64, files []walker.File) autotune.Config {
	var totalBytes int64
	for _, f := range files {
		totalBytes += f.Size
	}
	avgFileSize := uint64(0)
	if len(files) > 0 {
		avgFileSize = uint64(totalBytes / int64(len(files)))
	}

	tuner := autotune.NewTuner(budgetBytes)
	cfg, _, err := tuner.Tune(context.Background(), avgFileSize, 0)
	if err != nil {
		return autotune.NewCalculator(budgetBytes).Calculate(autotune.Balanced)
	}
	return cfg
}

// writeFooter computes BLAKE3 over every byte written to out so far and
// appends the 56-byte integrity footer.
func writeFooter(out *os.File) error {
	dataLength, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return katanaerr.Wrap(katanaerr.KindIo, "hash", out.Name(), err)
	}

	hashReader, err := os.Open(out.Name())
	if err != nil {
		return katanaerr.Wrap(katanaerr.KindIo, "hash", out.Name(), err)
	}
	defer hashReader.Close()

	hash, _, err := integrity.HashReader(io.LimitReader(hashReader, dataLength))
	if err != nil {
		return err
	}

	footer := integrity.EncodeFooter(integrity.Footer{DataLength: uint64(dataLength), Hash: hash})
	if _, err := out.Write(footer); err != nil {
		return katanaerr.Wrap(katanaerr.KindIo, "write", out.Name(), err)
	}
	return nil
}

// runShardsAndCoordinate spawns one goroutine per shard and a coordinator
// that drains completions strictly in id order.
func runShardsAndCoordinate(shards [][]fileTask, key []byte, level codec.Level, codecThreads, copyBufSize int, tracker *progress.Tracker, out *os.File) ([]ShardInfo, []FileEntry, error) {
	if len(shards) == 0 {
		return nil, nil, nil
	}

	results := make(chan shardResult, 3)
	errs := make(chan error, len(shards))
	var wg sync.WaitGroup

	for id, files := range shards {
		wg.Add(1)
		go func(id int, files []fileTask) {
			defer wg.Done()
			res, err := runShardWorker(id, files, key, level, codecThreads, copyBufSize, tracker, id%max1(len(shards)))
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}(id, files)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	coord := newCoordinator(out)
	var allInfos []ShardInfo
	var allFiles []FileEntry
	var drainErr error
	for res := range results {
		// After a failure the channel is still drained to completion so no
		// worker blocks on its send and every temp file gets removed.
		if drainErr != nil {
			os.Remove(res.TempPath)
			continue
		}
		coord.accept(res)
		infos, fileEntries, err := coord.drainReady()
		if err != nil {
			drainErr = err
			coord.discardPending()
			continue
		}
		allInfos = append(allInfos, infos...)
		allFiles = append(allFiles, fileEntries...)
	}
	if drainErr != nil {
		return nil, nil, drainErr
	}

	select {
	case err := <-errs:
		coord.discardPending()
		return nil, nil, err
	default:
	}

	return allInfos, allFiles, nil
}

func relPath(root, abs string) string {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return filepath.Base(abs)
	}
	return rel
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
