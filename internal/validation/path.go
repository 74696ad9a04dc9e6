package validation

import (
	"fmt"
	"path"
	"strings"
)

// NormalizePath brings a vault-relative path into canonical form: forward
// slashes, a single leading slash, no trailing slash, dot segments collapsed.
// The vault root normalizes to "/".
func NormalizePath(p string) string {
	cleaned := strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	cleaned = "/" + strings.Trim(cleaned, "/")
	cleaned = path.Clean(cleaned)
	if cleaned == "." {
		return "/"
	}
	return cleaned
}

// ValidateDocumentPath checks that a path can identify a document in a vault.
// The vault root itself is not a document, and paths must not escape the
// vault through dot segments.
func ValidateDocumentPath(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("path cannot be empty")
	}

	// Inspect the raw path: NormalizePath would collapse dot segments before
	// they can be rejected.
	for _, segment := range strings.Split(strings.ReplaceAll(p, "\\", "/"), "/") {
		if strings.TrimSpace(segment) == ".." {
			return fmt.Errorf("path %q escapes the vault root", p)
		}
	}

	if strings.ContainsRune(p, 0) {
		return fmt.Errorf("path contains a NUL byte")
	}

	if NormalizePath(p) == "/" {
		return fmt.Errorf("cannot operate on the vault root")
	}

	return nil
}

// IsSubPath reports whether child is nested under (or equal to) parent. Both
// arguments must already be normalized.
func IsSubPath(parent, child string) bool {
	return child == parent || strings.HasPrefix(child, parent+"/")
}

// RebasePath translates a path nested under oldParent to the corresponding
// path under newParent. The caller must ensure IsSubPath(oldParent, p).
func RebasePath(p, oldParent, newParent string) string {
	if p == oldParent {
		return newParent
	}
	return newParent + strings.TrimPrefix(p, oldParent)
}
