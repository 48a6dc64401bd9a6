// Package horosafe guards file system paths built from request input.
package horosafe

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned when a user-supplied path escapes its base.
var ErrPathTraversal = errors.New("horosafe: path traversal detected")

// ErrBadName is returned for names that are not a single path element.
var ErrBadName = errors.New("horosafe: not a plain file name")

// SafePath joins base and userInput, failing if the result would leave base.
func SafePath(base, userInput string) (string, error) {
	if strings.Contains(userInput, "..") {
		return "", ErrPathTraversal
	}
	cleanBase := filepath.Clean(base)
	cleaned := filepath.Join(cleanBase, filepath.Clean("/"+userInput))
	if cleaned != cleanBase && !strings.HasPrefix(cleaned, cleanBase+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}

// FileName checks that name can be used as-is inside a directory: not empty,
// not "." or "..", no separators.
func FileName(name string) error {
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return ErrBadName
	}
	return nil
}
