// Package walker enumerates filesystem inputs for archive creation and
// normalizes the paths that end up stored in the archive index.
package walker

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// debugPaths enables a trace line per directory input when
// KATANA_DEBUG_PATHS is set in the environment.
var debugPaths = os.Getenv("KATANA_DEBUG_PATHS") != ""

// File describes one enumerated input: its absolute path on disk plus the
// metadata the shard worker needs without re-statting.
type File struct {
	AbsPath string
	Size    int64
	Mode    os.FileMode
}

// Walk enumerates every regular file reachable from inputs, in
// deterministic order: inputs keep the order given, and the files under a
// directory input are sorted by absolute path compared byte-wise (so
// "a.txt" sorts before the contents of a sibling directory "a"). Symlinks
// are never followed; hard links are archived
// as independent files since the filesystem presents them as ordinary
// files.
func Walk(inputs []string) ([]File, error) {
	var files []File
	for _, raw := range inputs {
		in, err := filepath.Abs(raw)
		if err != nil {
			return nil, err
		}
		info, err := os.Lstat(in)
		if err != nil {
			return nil, err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}
		if !info.IsDir() {
			files = append(files, File{AbsPath: in, Size: info.Size(), Mode: info.Mode()})
			continue
		}
		var dirFiles []File
		err = filepath.WalkDir(in, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			entryInfo, err := d.Info()
			if err != nil {
				return err
			}
			if entryInfo.Mode()&os.ModeSymlink != 0 {
				return nil
			}
			if !entryInfo.Mode().IsRegular() {
				return nil
			}
			dirFiles = append(dirFiles, File{AbsPath: path, Size: entryInfo.Size(), Mode: entryInfo.Mode()})
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Slice(dirFiles, func(i, j int) bool { return dirFiles[i].AbsPath < dirFiles[j].AbsPath })
		if debugPaths {
			log.Printf("walker: %d files under %s", len(dirFiles), in)
		}
		files = append(files, dirFiles...)
	}
	return files, nil
}

// CommonAncestor returns the longest directory prefix shared by every
// input path. Every stored archive path is relative to this directory. If
// the intersection is empty and the first input is a single file, that
// file's parent directory is used instead. A single input is its own
// special case of "no common directory": its parent is used if it is a
// file, itself if it is a directory.
func CommonAncestor(inputs []string) string {
	if len(inputs) == 0 {
		return ""
	}
	if len(inputs) == 1 {
		return singleInputAncestor(inputs[0])
	}

	paths := make([]splitPath, 0, len(inputs))
	for _, in := range inputs {
		a, err := filepath.Abs(in)
		if err != nil {
			a = in
		}
		paths = append(paths, splitComponents(a))
	}

	prefix := paths[0].comps
	for _, p := range paths[1:] {
		n := 0
		for n < len(prefix) && n < len(p.comps) && prefix[n] == p.comps[n] {
			n++
		}
		prefix = prefix[:n]
		if len(prefix) == 0 {
			break
		}
	}

	if len(prefix) == 0 {
		return singleInputAncestor(inputs[0])
	}
	return joinSplitPath(paths[0].vol, paths[0].abs, prefix)
}

func singleInputAncestor(in string) string {
	first, err := filepath.Abs(in)
	if err != nil {
		first = in
	}
	if info, statErr := os.Stat(first); statErr == nil && !info.IsDir() {
		return filepath.Dir(first)
	}
	return first
}

// splitPath is an absolute path decomposed into its volume name (empty on
// Unix), whether it is rooted, and its non-empty path components. This is
// the representation CommonAncestor's prefix-intersection needs, since a
// plain "/"-joined string loses the leading separator once its first
// (empty) component is filtered out.
type splitPath struct {
	vol   string
	abs   bool
	comps []string
}

func splitComponents(p string) splitPath {
	p = filepath.Clean(p)
	vol := filepath.VolumeName(p)
	rest := filepath.ToSlash(p[len(vol):])
	abs := strings.HasPrefix(rest, "/")
	parts := strings.Split(rest, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return splitPath{vol: vol, abs: abs, comps: out}
}

func joinSplitPath(vol string, abs bool, comps []string) string {
	joined := strings.Join(comps, string(filepath.Separator))
	if abs {
		return vol + string(filepath.Separator) + joined
	}
	return vol + joined
}

var windowsReserved = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// Normalize converts path into the canonical forward-slash, relative form
// stored in the archive index: backslashes become slashes, a single leading
// "./" is stripped, repeated slashes collapse, and (unconditionally, so
// archives remain portable regardless of the host that extracts them)
// each component is sanitized: Windows-forbidden characters and control
// characters become "_", trailing dots/spaces are trimmed (a component
// left empty becomes "_"), and a reserved device basename gets "_"
// appended before any extension ("CON" -> "CON_", "nul.txt" ->
// "nul_.txt"). Normalize is idempotent: Normalize(Normalize(p)) == Normalize(p).
func Normalize(path string) string {
	s := strings.ReplaceAll(path, "\\", "/")
	s = strings.TrimPrefix(s, "./")
	for strings.Contains(s, "//") {
		s = strings.ReplaceAll(s, "//", "/")
	}

	// Strip a drive letter ("C:") or UNC prefix ("//server/share" already
	// collapsed to "/server/share" above) so nothing absolute survives.
	if len(s) >= 2 && s[1] == ':' {
		s = s[2:]
	}
	s = strings.TrimPrefix(s, "/")

	parts := strings.Split(s, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		if part == ".." {
			// Parent-dir components are dropped, never preserved: callers
			// that need to reject them outright do so before calling
			// Normalize (see katanaerr.KindPathUnsafe at extraction time).
			continue
		}
		out = append(out, sanitizeComponent(part))
	}
	if len(out) == 0 {
		return "_"
	}
	return strings.Join(out, "/")
}

func sanitizeComponent(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '<' || r == '>' || r == ':' || r == '"' || r == '/' || r == '\\' || r == '|' || r == '?' || r == '*':
			b.WriteRune('_')
		case r < 32:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimRight(b.String(), " .")
	if out == "" {
		out = "_"
	}
	dot := strings.Index(out, ".")
	base := out
	if dot >= 0 {
		base = out[:dot]
	}
	if windowsReserved[strings.ToUpper(base)] {
		// Insert the marker before the extension, not at the end: appending
		// after the extension would leave the reserved basename intact and
		// this function would keep re-flagging it as reserved on every
		// subsequent call, breaking Normalize's idempotency guarantee.
		if dot >= 0 {
			out = base + "_" + out[dot:]
		} else {
			out = base + "_"
		}
	}
	return out
}

// HasParentComponent reports whether any "/"-separated component of path is
// literally "..", after the same separator normalization Normalize applies.
// Used by the extractor to reject unsanitized legacy index entries outright
// rather than silently rewriting them.
func HasParentComponent(path string) bool {
	s := strings.ReplaceAll(path, "\\", "/")
	for _, part := range strings.Split(s, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}
