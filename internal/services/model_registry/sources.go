package model_registry

import (
	"fmt"
	"strings"
)

type SourceType string

const (
	SourceTypeHuggingface SourceType = "huggingface"
	SourceTypeDirect      SourceType = "direct"
	SourceTypeFile        SourceType = "file"
)

// Source is one parsed model source location.
type Source struct {
	Type     SourceType
	Location string
	Original string
}

// ParseSource classifies a catalog source string: "hf:owner/repo" for a
// Hugging Face repo, an http(s) URL for direct file downloads, or a local
// path (optionally "file:" prefixed).
func ParseSource(source string) (*Source, error) {
	if source == "" {
		return nil, fmt.Errorf("empty source string. Source is required")
	}

	s := &Source{
		Original: source,
	}

	if strings.HasPrefix(source, "hf:") {
		s.Type = SourceTypeHuggingface
		s.Location = strings.TrimPrefix(source, "hf:")
	} else if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		s.Type = SourceTypeDirect
		s.Location = source
	} else if strings.HasPrefix(source, "file:") {
		s.Type = SourceTypeFile
		s.Location = strings.TrimPrefix(source, "file:")
	} else if strings.Contains(source, "://") {
		return nil, fmt.Errorf("unsupported model source: %s", source)
	} else {
		// Bare paths are local files.
		s.Type = SourceTypeFile
		s.Location = source
	}

	return s, nil
}

// IsRegistryRef reports whether a load_model path names a registry model
// rather than a local file: either a namespaced catalog identifier or a
// direct "hf:" repo reference.
func IsRegistryRef(path string) bool {
	return strings.HasPrefix(path, "tts_models/") || strings.HasPrefix(path, "hf:")
}
