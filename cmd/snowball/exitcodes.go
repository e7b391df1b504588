package main

import (
	"github.com/matsen/snowball/internal/config"
	"github.com/matsen/snowball/internal/dedup"
	"github.com/matsen/snowball/internal/reconcile"
	"github.com/matsen/snowball/internal/storage"
	"github.com/matsen/snowball/internal/venue"
	"github.com/rotisserie/eris"
)

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (no project, invalid config)
	ExitDataError   = 3 // Data error (missing records, malformed input files)
	ExitAborted     = 4 // Operator aborted an interactive run
	ExitPartial     = 5 // Reconciliation applied to some rater stores only
)

// exitCode maps an internal error to its exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case eris.Is(err, reconcile.ErrPartialApply):
		return ExitPartial
	case eris.Is(err, reconcile.ErrAborted), eris.Is(err, dedup.ErrAborted), eris.Is(err, venue.ErrAborted):
		return ExitAborted
	case eris.Is(err, config.ErrNotProject):
		return ExitConfigError
	case eris.Is(err, storage.ErrNotFound), eris.Is(err, reconcile.ErrMissingRecord),
		eris.Is(err, reconcile.ErrTooFewRaters), eris.Is(err, dedup.ErrNotApproved):
		return ExitDataError
	}
	return ExitError
}
