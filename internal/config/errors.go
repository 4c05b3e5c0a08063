package config

import (
	"errors"
)

// Sentinel errors. Both end the process with the configuration exit code.
var (
	// ErrInvalidConfig marks a loaded configuration that cannot run an event,
	// such as a missing event key or an unknown store backend.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig marks an unreadable config file or event key file.
	ErrLoadConfig = errors.New("load config failed")
)
