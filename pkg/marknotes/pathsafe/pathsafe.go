// Package pathsafe maps user-supplied logical document paths onto the
// filesystem without letting them leave the document root.
package pathsafe

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/mikepea/marknotes/pkg/marknotes/errs"
)

// Clean normalizes a logical path. Backslashes are treated as separators and
// ".." segments that would climb above the root are dropped. The result
// always starts with "/" and never ends with one, except for the root itself.
func Clean(logical string) string {
	p := strings.ReplaceAll(logical, `\`, "/")
	return path.Clean("/" + p)
}

// Resolve returns the absolute filesystem path for logical under root.
// The joined path is checked against root after normalization and rejected
// with a PathEscape error if it is not contained in it.
func Resolve(logical, root string) (string, error) {
	if strings.ContainsRune(logical, 0) {
		return "", errs.PathEscape(logical)
	}
	base := filepath.Clean(root)
	full := filepath.Join(base, filepath.FromSlash(Clean(logical)))
	if !Contains(base, full) {
		return "", errs.PathEscape(logical)
	}
	return full, nil
}

// Contains reports whether target is root or lies beneath it.
func Contains(root, target string) bool {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	if target == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(target, prefix)
}

// IsRoot reports whether logical refers to the document root.
func IsRoot(logical string) bool {
	return Clean(logical) == "/"
}

// Parent returns the cleaned logical parent folder.
func Parent(logical string) string {
	return path.Dir(Clean(logical))
}

// Join appends name to a logical folder path.
func Join(folder, name string) string {
	return path.Join(Clean(folder), name)
}

// Within reports whether logical equals folder or is nested inside it.
func Within(folder, logical string) bool {
	folder = Clean(folder)
	logical = Clean(logical)
	if folder == "/" || folder == logical {
		return true
	}
	return strings.HasPrefix(logical, folder+"/")
}
