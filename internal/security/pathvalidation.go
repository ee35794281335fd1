// Package security holds path checks for files the flattener writes.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// maxNameLen caps names produced by SanitizeFilename.
const maxNameLen = 128

// CheckContained returns an error unless path, after cleaning, lies inside
// dir. The check is lexical so it works the same for in-memory filesystems.
func CheckContained(path, dir string) error {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("path %s is outside %s: %w", path, dir, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", path, dir)
	}
	return nil
}

// SanitizeFilename maps s to a name made of ASCII letters, digits, '.', '_'
// and '-'. Runs of other characters become a single '_'; leading and
// trailing dots and underscores are dropped. An empty result is "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range s {
		if b.Len() >= maxNameLen {
			break
		}
		ok := r == '.' || r == '_' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			pendingSep = true
			continue
		}
		if pendingSep && b.Len() > 0 {
			b.WriteByte('_')
		}
		pendingSep = false
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
