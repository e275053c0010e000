// Package security guards the output paths of a run. Stems, video names and
// frame patterns come from annotation files and must not steer writes or
// reads outside the directories the operator named.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// JoinWithin joins name onto dir and rejects results that leave dir. The
// check is lexical, so it works for in-memory filesystems too.
func JoinWithin(dir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty file name under %s", dir)
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("path traversal detected: absolute name %s under %s", name, dir)
	}
	joined := filepath.Join(dir, name)
	rel, err := filepath.Rel(filepath.Clean(dir), joined)
	if err != nil || escapes(rel) {
		return "", fmt.Errorf("path traversal detected: %s attempts to escape %s", name, dir)
	}
	return joined, nil
}

// ValidatePathWithinDirectory checks that filePath resolves inside safeDir
// on the real filesystem. Symlinks are resolved for both paths; for a path
// that does not exist yet the nearest existing parent is resolved instead.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	canonicalPath := absPath
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		canonicalPath = resolved
	} else {
		// /safe/evil-symlink/new.txt where evil-symlink -> /etc
		for check := absPath; ; {
			parent := filepath.Dir(check)
			if parent == check {
				break
			}
			if resolved, err := filepath.EvalSymlinks(parent); err == nil {
				rest, _ := filepath.Rel(parent, absPath)
				canonicalPath = filepath.Join(resolved, rest)
				break
			}
			check = parent
		}
	}

	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if escapes(rel) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel)
}
