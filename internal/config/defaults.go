package config

import "errors"

const (
	BackendSherpa = "sherpa"
	BackendMock   = "mock"
)

const (
	DefaultDubaiHome    = "~/.dubai"
	DefaultEnvironment  = "dev"
	DefaultBackend      = BackendSherpa
	DefaultLanguage     = "bn"
	DefaultNumThreads   = 4
	DefaultCatalogLimit = 20

	// Bound for concurrent model prefetch downloads.
	DefaultMaxDownloadWorkers = 4
)

var (
	ErrDubaiHomeNotSet       = errors.New("dubai home directory is not set")
	ErrDubaiHomeExpandFailed = errors.New("failed to expand dubai home directory")
)
