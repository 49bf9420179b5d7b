package walker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalkOrdersLexically(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "c.txt"), []byte("c"), 0o644))

	files, err := Walk([]string{dir})
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, filepath.Join(dir, "a.txt"), files[0].AbsPath)
	assert.Equal(t, filepath.Join(dir, "b.txt"), files[1].AbsPath)
	assert.Equal(t, filepath.Join(dir, "sub", "c.txt"), files[2].AbsPath)
}

func TestWalkSkipsSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	link := filepath.Join(dir, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	files, err := Walk([]string{dir})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, target, files[0].AbsPath)
}

func TestCommonAncestorMultipleInputs(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a", "x.txt")
	b := filepath.Join(dir, "b", "y.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(a), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Dir(b), 0o755))
	require.NoError(t, os.WriteFile(a, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("y"), 0o644))

	got := CommonAncestor([]string{a, b})
	assert.Equal(t, dir, got)
}

func TestCommonAncestorSingleFileUsesParent(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "only.txt")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))

	got := CommonAncestor([]string{f})
	assert.Equal(t, dir, got)
}

func TestNormalizeBasic(t *testing.T) {
	assert.Equal(t, "a/b/c.txt", Normalize(`./a\b\c.txt`))
	assert.Equal(t, "a/b", Normalize("a//b"))
	assert.Equal(t, "_", Normalize(""))
	assert.Equal(t, "_", Normalize("."))
}

func TestNormalizeDropsParentComponents(t *testing.T) {
	assert.Equal(t, "etc/passwd", Normalize("../../etc/passwd"))
}

func TestNormalizeStripsDriveLetter(t *testing.T) {
	assert.Equal(t, "windows/system32", Normalize(`C:\windows\system32`))
}

func TestNormalizeReplacesForbiddenCharsAndReserved(t *testing.T) {
	assert.Equal(t, "a_b", Normalize("a<b"))
	assert.Equal(t, "CON_", Normalize("CON"))
	assert.Equal(t, "nul_.txt", Normalize("nul.txt"))
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{`./a\b\c.txt`, "../../etc/passwd", `C:\windows\system32`, "CON", "a//b///c"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		assert.Equal(t, once, twice, "Normalize not idempotent for %q", in)
	}
}

func TestHasParentComponent(t *testing.T) {
	assert.True(t, HasParentComponent("a/../b"))
	assert.True(t, HasParentComponent(`a\..\b`))
	assert.False(t, HasParentComponent("a/b/c"))
}
