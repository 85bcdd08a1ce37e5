package usecase

import "errors"

var (
	// ErrNoContent means no source channel produced a qualifying message, even after relaxing the threshold.
	ErrNoContent = errors.New("no qualifying content in source channels")
	// ErrInputTooShort is returned before any call to the text service.
	ErrInputTooShort = errors.New("input too short to transform")
	// ErrNoCredential means the credential pool is empty or exhausted after its single reset.
	ErrNoCredential = errors.New("no credential available")
	// ErrTransformFailed wraps the last cause once the content retry budget is spent.
	ErrTransformFailed = errors.New("transform failed")
	// ErrInvalidInput reports malformed arguments to a use case.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNothingPublished means no target accepted the content.
	ErrNothingPublished = errors.New("nothing published")
)
