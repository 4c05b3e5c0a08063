package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/okian/scoutcalc/internal/config"
	"github.com/okian/scoutcalc/internal/eventdata"
	"github.com/okian/scoutcalc/internal/schema"
)

// Exit codes for different failure modes
const (
	ExitSuccess = 0
	ExitConfig  = 1 // missing event key, schema or team list
	ExitError   = 2 // anything else that stopped a command
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case isConfigError(err):
		return ExitConfig
	default:
		return ExitError
	}
}

func isConfigError(err error) bool {
	for _, kind := range []error{
		config.ErrInvalidConfig, config.ErrLoadConfig,
		schema.ErrMissingSchema, schema.ErrInvalidSchema,
		eventdata.ErrMissingTeamList, eventdata.ErrMissingKey,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
