package katana

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackTechX011/katana/katanaerr"
)

// writeInputTree builds a small fixture tree: a.txt at the root and
// dir/b.bin nested one level down.
func writeInputTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("Hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dir", "b.bin"), []byte{0, 1, 2, 3, 4, 5}, 0o644))
	return dir
}

func TestCreateExtractRoundTripPlaintext(t *testing.T) {
	srcDir := writeInputTree(t)
	archive := filepath.Join(t.TempDir(), "out.katana")
	outDir := t.TempDir()

	err := Create([]string{srcDir}, archive, CreateOptions{Threads: 2})
	require.NoError(t, err)

	ok, err := IsKatanaArchive(archive)
	require.NoError(t, err)
	assert.True(t, ok)

	entries, err := List(archive, ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.NoError(t, Extract(archive, outDir, ExtractOptions{}))

	a, err := os.ReadFile(filepath.Join(outDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Hello", string(a))

	b, err := os.ReadFile(filepath.Join(outDir, "dir", "b.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5}, b)
}

func TestCreateExtractRoundTripEncrypted(t *testing.T) {
	srcDir := writeInputTree(t)
	archive := filepath.Join(t.TempDir(), "out.katana")
	outDir := t.TempDir()
	password := "correct horse battery staple"

	require.NoError(t, Create([]string{srcDir}, archive, CreateOptions{Threads: 2, Password: password}))

	data, err := os.ReadFile(archive)
	require.NoError(t, err)
	_ = data

	entries, err := List(archive, ListOptions{Password: password})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	require.NoError(t, Extract(archive, outDir, ExtractOptions{Password: password}))
	got, err := os.ReadFile(filepath.Join(outDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Hello", string(got))
}

func TestExtractWrongPasswordFailsAndWritesNothing(t *testing.T) {
	srcDir := writeInputTree(t)
	archive := filepath.Join(t.TempDir(), "out.katana")
	outDir := t.TempDir()

	require.NoError(t, Create([]string{srcDir}, archive, CreateOptions{Threads: 2, Password: "correct horse battery staple"}))

	err := Extract(archive, outDir, ExtractOptions{Password: "wrong"})
	require.Error(t, err)
	var kerr *katanaerr.Error
	require.ErrorAs(t, err, &kerr)
	assert.Contains(t, []katanaerr.Kind{katanaerr.KindIntegrityHmac, katanaerr.KindCrypto}, kerr.Kind)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExtractNoPasswordOnEncryptedArchiveFailsWithConfig(t *testing.T) {
	srcDir := writeInputTree(t)
	archive := filepath.Join(t.TempDir(), "out.katana")
	outDir := t.TempDir()

	require.NoError(t, Create([]string{srcDir}, archive, CreateOptions{Threads: 1, Password: "s3cr3t"}))

	err := Extract(archive, outDir, ExtractOptions{})
	require.Error(t, err)
	var kerr *katanaerr.Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, katanaerr.KindConfig, kerr.Kind)
}

func TestCreateEmptyInputsReturnsConfigError(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "out.katana")
	err := Create(nil, archive, CreateOptions{})
	require.Error(t, err)
	var kerr *katanaerr.Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, katanaerr.KindConfig, kerr.Kind)
}

func TestCreateSingleEmptyFileRoundTrips(t *testing.T) {
	srcDir := t.TempDir()
	empty := filepath.Join(srcDir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, nil, 0o640))

	archive := filepath.Join(t.TempDir(), "out.katana")
	outDir := t.TempDir()

	require.NoError(t, Create([]string{empty}, archive, CreateOptions{Threads: 1}))
	require.NoError(t, Extract(archive, outDir, ExtractOptions{}))

	info, err := os.Stat(filepath.Join(outDir, "empty.txt"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestBitFlipInDataRegionFailsIntegrity(t *testing.T) {
	srcDir := writeInputTree(t)
	archive := filepath.Join(t.TempDir(), "out.katana")
	outDir := t.TempDir()

	require.NoError(t, Create([]string{srcDir}, archive, CreateOptions{Threads: 1}))

	b, err := os.ReadFile(archive)
	require.NoError(t, err)
	b[0] ^= 0xFF
	require.NoError(t, os.WriteFile(archive, b, 0o644))

	err = Extract(archive, outDir, ExtractOptions{})
	require.Error(t, err)
	var kerr *katanaerr.Error
	require.ErrorAs(t, err, &kerr)
	assert.Contains(t, []katanaerr.Kind{katanaerr.KindIntegrityCrc, katanaerr.KindIntegrityHash, katanaerr.KindFormat}, kerr.Kind)
}

func TestIsKatanaArchiveFalseForArbitraryFile(t *testing.T) {
	notArchive := filepath.Join(t.TempDir(), "plain.bin")
	require.NoError(t, os.WriteFile(notArchive, []byte("just some bytes, not an archive"), 0o644))

	ok, err := IsKatanaArchive(notArchive)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSelectiveExtractionWritesOnlySelectedFiles(t *testing.T) {
	srcDir := writeInputTree(t)
	archive := filepath.Join(t.TempDir(), "out.katana")
	outDir := t.TempDir()

	require.NoError(t, Create([]string{srcDir}, archive, CreateOptions{Threads: 2}))

	require.NoError(t, Extract(archive, outDir, ExtractOptions{
		SelectedPaths: []string{"a.txt"},
	}))

	_, err := os.Stat(filepath.Join(outDir, "a.txt"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(outDir, "dir", "b.bin"))
	assert.True(t, os.IsNotExist(err))
}

func TestStripComponentsRemovesLeadingPathParts(t *testing.T) {
	srcDir := writeInputTree(t)
	archive := filepath.Join(t.TempDir(), "out.katana")
	outDir := t.TempDir()

	require.NoError(t, Create([]string{srcDir}, archive, CreateOptions{Threads: 1}))
	require.NoError(t, Extract(archive, outDir, ExtractOptions{StripComponents: 1}))

	_, err := os.Stat(filepath.Join(outDir, "b.bin"))
	require.NoError(t, err)
}

func TestVerifySucceedsOnFreshArchive(t *testing.T) {
	srcDir := writeInputTree(t)
	archive := filepath.Join(t.TempDir(), "out.katana")

	require.NoError(t, Create([]string{srcDir}, archive, CreateOptions{Threads: 2, SkipIntegrityCheck: true}))
	assert.NoError(t, Verify(archive, ExtractOptions{}))
}

func TestExtractRejectsSymlinkedDirectoryInOutputRoot(t *testing.T) {
	srcDir := writeInputTree(t)
	archive := filepath.Join(t.TempDir(), "out.katana")
	outDir := t.TempDir()
	elsewhere := t.TempDir()

	require.NoError(t, Create([]string{srcDir}, archive, CreateOptions{Threads: 1}))

	// A pre-existing symlink where the archive stores a directory would
	// redirect writes outside the output root.
	if err := os.Symlink(elsewhere, filepath.Join(outDir, "dir")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	err := Extract(archive, outDir, ExtractOptions{})
	require.Error(t, err)
	var kerr *katanaerr.Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, katanaerr.KindPathUnsafe, kerr.Kind)

	entries, rerr := os.ReadDir(elsewhere)
	require.NoError(t, rerr)
	assert.Empty(t, entries)
}

func TestTruncatedFooterFailsAsFormatOrHash(t *testing.T) {
	srcDir := writeInputTree(t)
	archive := filepath.Join(t.TempDir(), "out.katana")

	require.NoError(t, Create([]string{srcDir}, archive, CreateOptions{Threads: 1}))

	b, err := os.ReadFile(archive)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(archive, b[:len(b)-1], 0o644))

	err = Verify(archive, ExtractOptions{})
	require.Error(t, err)
	var kerr *katanaerr.Error
	require.ErrorAs(t, err, &kerr)
	assert.Contains(t, []katanaerr.Kind{katanaerr.KindFormat, katanaerr.KindIntegrityHash}, kerr.Kind)
}

func TestIndexValidateCatchesInconsistentFileCounts(t *testing.T) {
	idx := Index{
		Shards: []ShardInfo{{FileCount: 2, UncompressedSize: 10}},
		Files:  []FileEntry{{Path: "a", Size: 5, Offset: 0}},
	}
	assert.Error(t, idx.validate())

	idx.Files = append(idx.Files, FileEntry{Path: "b", Size: 5, Offset: 5})
	assert.NoError(t, idx.validate())

	idx.Files[1].Offset = 8 // 8+5 > 10
	assert.Error(t, idx.validate())
}

func TestAbsolutePathInputStoresSanitizedRelativePath(t *testing.T) {
	srcDir := t.TempDir()
	f := filepath.Join(srcDir, "secret.txt")
	require.NoError(t, os.WriteFile(f, []byte("s"), 0o644))

	archive := filepath.Join(t.TempDir(), "out.katana")
	require.NoError(t, Create([]string{f}, archive, CreateOptions{Threads: 1}))

	entries, err := List(archive, ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "secret.txt", entries[0].Path)
	assert.NotContains(t, entries[0].Path, "..")
}
