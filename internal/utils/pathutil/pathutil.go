package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands the path using the user's home directory.
// If the path starts with "~", it is replaced with the user's home directory.
func ExpandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}

		// Replace "~" with the home directory path
		path = filepath.Join(homeDir, path[1:])
	}

	return path, nil
}

// EnsureDir creates the directory and any missing parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, os.ModePerm)
}

// SafeName flattens a model identifier into a single path component, so
// namespaced ids like "tts_models/bn/dubai/vits-bangla" can be used as
// cache directory names.
func SafeName(id string) string {
	replacer := strings.NewReplacer("/", "--", "\\", "--", ":", "--")
	return replacer.Replace(id)
}
