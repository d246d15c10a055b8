package domain

import (
	"errors"
	"fmt"
)

// Validation errors are handled locally: no network call, no state change.
var (
	// ErrEmptyQuestion is returned when a chat question is blank.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrNothingSelected is returned when submitting without a selected option.
	ErrNothingSelected = errors.New("no option selected")
	// ErrOptionNotFound indicates a selected option is not among the question's options.
	ErrOptionNotFound = errors.New("option not found")
	// ErrAlreadyRevealed is returned when changing the answer of a revealed question.
	ErrAlreadyRevealed = errors.New("question already revealed")
	// ErrEmptyQuiz is returned for review actions on an empty quiz collection.
	ErrEmptyQuiz = errors.New("no quizzes available")
	// ErrNoFiles is returned when an ingestion batch is started with an empty queue.
	ErrNoFiles = errors.New("no files queued")
	// ErrUnsupportedFile indicates a file type the ingestion pipeline does not accept.
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrAskInFlight is returned when a chat question is sent while another is outstanding.
	ErrAskInFlight = errors.New("a question is already in flight")
	// ErrBatchInProgress is returned when the queue is touched while a batch is running.
	ErrBatchInProgress = errors.New("ingestion batch in progress")
	// ErrSessionNotFound is returned when a review session id is unknown.
	ErrSessionNotFound = errors.New("review session not found")
)

// ErrCancelled marks a generation step abandoned by the caller.
var ErrCancelled = errors.New("cancelled")

var validationErrors = []error{
	ErrEmptyQuestion,
	ErrNothingSelected,
	ErrOptionNotFound,
	ErrAlreadyRevealed,
	ErrEmptyQuiz,
	ErrNoFiles,
	ErrUnsupportedFile,
	ErrAskInFlight,
	ErrBatchInProgress,
}

// IsValidation reports whether err is a locally handled validation error.
func IsValidation(err error) bool {
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// TransportError wraps a failed call to an external collaborator.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": transport error"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError builds a TransportError for op.
func NewTransportError(op string, status int, err error) *TransportError {
	return &TransportError{Op: op, Status: status, Err: err}
}

// IsTransport reports whether err came from an external collaborator.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
