package tts

import "errors"

// Wire-visible sentinel errors. The host application matches on some of
// these strings, so they keep their exact wording.
var (
	ErrNotLoaded      = errors.New("No model loaded")
	ErrModelNotFound  = errors.New("Model file not found")
	ErrConfigNotFound = errors.New("Config file not found")
)
