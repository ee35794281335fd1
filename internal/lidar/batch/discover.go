package batch

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/groundflat/internal/fsutil"
)

// Defaults for output naming.
const (
	DefaultOutputDir = "flat_output"
	DefaultSuffix    = "_flat"
	DefaultExtension = ".pcd"
)

// Discover returns the files below root whose extension matches ext
// (case-insensitively), in lexical order. Files under skipDirs, normally
// the output directory, are not returned so reruns never flatten their own
// output.
func Discover(fsys fsutil.FileSystem, root, ext string, skipDirs ...string) ([]string, error) {
	if ext == "" {
		ext = DefaultExtension
	}
	files, err := fsys.ListFiles(root, skipDirs...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}

	var out []string
	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f), ext) {
			out = append(out, f)
		}
	}
	return out, nil
}

// OutputPath names the flattened file for input: the suffix is inserted
// before the first '.' of the base name and the result placed in outDir.
// "scan.2024.pcd" with suffix "_flat" becomes "scan_flat.2024.pcd".
func OutputPath(input, outDir, suffix string) string {
	base := filepath.Base(input)
	name := base + suffix
	if dot := strings.IndexByte(base, '.'); dot >= 0 {
		name = base[:dot] + suffix + base[dot:]
	}
	return filepath.Join(outDir, name)
}
