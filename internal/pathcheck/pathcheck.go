// Package pathcheck validates attach-image paths before they are handed to
// a restarted session. Every request crosses a trust boundary (the request
// log is writable by external tools), so candidates are rejected unless they
// name an existing image file strictly inside the configured root.
package pathcheck

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Reason identifies why a candidate path was rejected.
type Reason string

const (
	ReasonEmpty     Reason = "empty"
	ReasonAbsolute  Reason = "absolute"
	ReasonTraversal Reason = "traversal"
	ReasonExtension Reason = "extension"
	ReasonMissing   Reason = "missing"
)

// InvalidPathError reports a rejected candidate and the rejection reason.
type InvalidPathError struct {
	Path   string
	Reason Reason
}

func (e *InvalidPathError) Error() string {
	switch e.Reason {
	case ReasonEmpty:
		return "invalid path: empty"
	case ReasonAbsolute:
		return fmt.Sprintf("invalid path %q: absolute paths are not allowed", e.Path)
	case ReasonTraversal:
		return fmt.Sprintf("invalid path %q: escapes the root directory", e.Path)
	case ReasonExtension:
		return fmt.Sprintf("invalid path %q: extension not in %v", e.Path, allowedExtensions)
	case ReasonMissing:
		return fmt.Sprintf("invalid path %q: no such file", e.Path)
	}
	return fmt.Sprintf("invalid path %q", e.Path)
}

// allowedExtensions is the fixed allow-list of attachable image types.
var allowedExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}

// Validate checks a candidate relative path against root and returns the
// root-relative path normalized to a "./" prefix. Rejections carry a
// distinct *InvalidPathError reason: empty input, absolute path, traversal
// outside root (including through symlinked ".." segments), an extension
// outside the allow-list, or a file that does not exist.
func Validate(candidate, root string) (string, error) {
	if candidate == "" {
		return "", &InvalidPathError{Path: candidate, Reason: ReasonEmpty}
	}
	if filepath.IsAbs(candidate) {
		return "", &InvalidPathError{Path: candidate, Reason: ReasonAbsolute}
	}

	joined := filepath.Join(root, candidate)
	rel, err := filepath.Rel(root, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &InvalidPathError{Path: candidate, Reason: ReasonTraversal}
	}

	ext := strings.ToLower(filepath.Ext(joined))
	allowed := false
	for _, a := range allowedExtensions {
		if ext == a {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", &InvalidPathError{Path: candidate, Reason: ReasonExtension}
	}

	info, err := os.Stat(joined)
	if err != nil || info.IsDir() {
		return "", &InvalidPathError{Path: candidate, Reason: ReasonMissing}
	}

	// Lexical containment passed and the file exists; re-check containment
	// with symlinks resolved so a link pointing outside root cannot smuggle
	// a file in.
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", &InvalidPathError{Path: candidate, Reason: ReasonTraversal}
	}
	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", &InvalidPathError{Path: candidate, Reason: ReasonMissing}
	}
	resolvedRel, err := filepath.Rel(resolvedRoot, resolved)
	if err != nil || resolvedRel == ".." || strings.HasPrefix(resolvedRel, ".."+string(filepath.Separator)) {
		return "", &InvalidPathError{Path: candidate, Reason: ReasonTraversal}
	}

	return "./" + filepath.ToSlash(rel), nil
}
