package doccache

import "errors"

// Errors for unsupported cache operations.
var (
	// ErrFragmentsUnsupported is returned by every fragment operation. A
	// document-granular cache stores whole responses and cannot read or
	// write a fragment of one. This is a programming error on the caller's
	// side, not a transient failure; retrying is meaningless.
	ErrFragmentsUnsupported = errors.New("doccache: fragment operations are not supported by a document cache")
)
