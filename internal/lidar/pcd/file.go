package pcd

import (
	"fmt"

	"github.com/banshee-data/groundflat/internal/fsutil"
)

// ReadFile opens path on fsys and decodes it.
func ReadFile(fsys fsutil.FileSystem, path string, opts Options) (*Cloud, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	c, err := ReadWithOptions(f, opts)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return c, nil
}

// WriteFile encodes c to path on fsys, replacing any existing file.
func WriteFile(fsys fsutil.FileSystem, path string, c *Cloud) error {
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Write(f, c); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
