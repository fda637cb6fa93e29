package db

import "errors"

var (
	// record is not found for the given identity.
	ErrMissing = errors.New("missing record")

	// experiment status cannot change as requested.
	ErrInvalidStatusChanging = errors.New("cannot change experiment status")

	// operation requires the experiment to be running, but it is not.
	ErrNotRunning = errors.New("experiment is not running")

	// variants can be attached only while the experiment is draft or paused.
	ErrNotEditable = errors.New("experiment is not editable")

	// the request is missing required fields or holds invalid values.
	ErrDeficientSpec = errors.New("deficient spec")
)
