// Package fileid derives stable note IDs from file paths under a notes directory and
// matches those paths against include globs.
package fileid

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// NoteID returns the ID of the note stored at absolutePath under root: the slash-separated
// path relative to root without its extension. ok is false when the path is outside root.
func NoteID(root, absolutePath string) (id string, ok bool) {
	rel, ok := Rel(root, absolutePath)
	if !ok {
		return "", false
	}
	return strings.TrimSuffix(rel, path.Ext(rel)), true
}

// Rel returns the cleaned slash path of absolutePath relative to root.
func Rel(root, absolutePath string) (string, bool) {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(absolutePath))
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

// Matches reports whether the slash path rel matches any include pattern.
// An empty pattern list matches everything; invalid patterns never match.
func Matches(rel string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}
