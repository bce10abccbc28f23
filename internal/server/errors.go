package server

import "errors"

// Submission failures fall into a small taxonomy. Validation failures and
// the two business rejections carry their own identity; everything else
// collapses into upstream or store failure and surfaces as a generic
// internal error.
var (
	errInvalidImageID = errors.New("invalid image id")
	errImageCompleted = errors.New("image already completed")
	errUpstream       = errors.New("upstream failure")
	errStore          = errors.New("store failure")
)

type validationError struct {
	reason string
}

func (e validationError) Error() string {
	return e.reason
}
