// Package errors contains domain errors that the pipeline stages use to add
// meaning to a failure and that the scheduler uses to decide between queue
// redelivery and a terminal failed state. This is implemented as a separate
// package in order to avoid cycle import errors.
package errors

import (
	"errors"
	"fmt"
)

// The following errors serve as domain errors that the different layers wrap
// with %w. The scheduler inspects them to classify a task failure.
var (
	// ErrUnsupportedFormat is used when no parsing strategy matches the
	// task's parser id or the file extension. Terminal.
	ErrUnsupportedFormat = fmt.Errorf("unsupported file format")
	// ErrFileTooLarge is used when the file byte length exceeds the
	// configured ceiling. Checked before any processing starts. Terminal.
	ErrFileTooLarge = fmt.Errorf("file exceeds size ceiling")
	// ErrUnauthenticated is used when a vendor capability rejects the
	// configured credentials. Terminal.
	ErrUnauthenticated = fmt.Errorf("unauthenticated")
	// ErrEmbeddingService is used when the embedding model call exhausts its
	// retries. Transient: the task is eligible for redelivery.
	ErrEmbeddingService = fmt.Errorf("embedding service unavailable")
	// ErrIndexing is used when a bulk-insert batch fails. Transient.
	ErrIndexing = fmt.Errorf("index store insert failed")
	// ErrTaskNotFound is used when a claimed task references a document that
	// no longer exists. Terminal.
	ErrTaskNotFound = fmt.Errorf("task not found")
)

// IsPermanent reports whether err should mark the task terminally failed
// instead of leaving it for queue redelivery. Unclassified errors are
// treated as transient so that crashes and network faults are retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrFileTooLarge) ||
		errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrTaskNotFound)
}

// messageErr decorates an error with an end-user message that is persisted
// to the document's progress_msg field.
type messageErr struct {
	cause   error
	message string
}

func (e *messageErr) Error() string { return e.cause.Error() }
func (e *messageErr) Unwrap() error { return e.cause }

// AddMessage attaches an end-user message to an error, keeping the chain
// intact for errors.Is checks.
func AddMessage(err error, msg string) error {
	return &messageErr{cause: err, message: msg}
}

// Message returns the outermost end-user message in err's chain, falling
// back to the error string when none was attached.
func Message(err error) string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if me, ok := e.(*messageErr); ok {
			return me.message
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
