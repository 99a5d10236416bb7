package protocol

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Status is the disposition of an RPC or of a Listen target. The taxonomy
// mirrors RPC status codes: RPC-level failures surface synchronously as
// errors carrying a Status, while Listen surfaces target-scoped failures as
// a REMOVE target change carrying a Cause.
type Status int32

const (
	// StatusOK indicates success.
	StatusOK Status = iota
	// StatusInvalidArgument indicates a malformed request: mismatched
	// cursor/orderBy arity, multiple variants of a sum set at once, a stale
	// readTime beyond the staleness bound, or reuse of a terminal
	// transaction token.
	StatusInvalidArgument
	// StatusNotFound indicates a referenced document or transaction does
	// not exist.
	StatusNotFound
	// StatusAlreadyExists indicates a created document already exists.
	StatusAlreadyExists
	// StatusFailedPrecondition indicates a Write's Precondition was not met.
	// The entire commit batch is rejected with no partial effect. It is not
	// retryable without application-level resolution.
	StatusFailedPrecondition
	// StatusAborted indicates a transaction conflict was detected at commit.
	// The caller must retry with a new (optionally chained) transaction.
	StatusAborted
	// StatusResourceExhausted indicates a Write stream was closed due to
	// excessive unacknowledged responses. The client must reopen the stream
	// with its last acknowledged stream token.
	StatusResourceExhausted
	// StatusInternal indicates an unexpected server fault.
	StatusInternal
)

var statusNames = map[Status]string{
	StatusOK:                 "OK",
	StatusInvalidArgument:    "INVALID_ARGUMENT",
	StatusNotFound:           "NOT_FOUND",
	StatusAlreadyExists:      "ALREADY_EXISTS",
	StatusFailedPrecondition: "FAILED_PRECONDITION",
	StatusAborted:            "ABORTED",
	StatusResourceExhausted:  "RESOURCE_EXHAUSTED",
	StatusInternal:           "INTERNAL",
}

// String returns the status name.
func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// Validate returns an error if the Status is unrecognized.
func (s Status) Validate() error {
	if _, ok := statusNames[s]; !ok {
		return NewValidationError("invalid status (%d)", s)
	}
	return nil
}

// GRPCCode maps the Status to its gRPC status code.
func (s Status) GRPCCode() codes.Code {
	switch s {
	case StatusOK:
		return codes.OK
	case StatusInvalidArgument:
		return codes.InvalidArgument
	case StatusNotFound:
		return codes.NotFound
	case StatusAlreadyExists:
		return codes.AlreadyExists
	case StatusFailedPrecondition:
		return codes.FailedPrecondition
	case StatusAborted:
		return codes.Aborted
	case StatusResourceExhausted:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}

// NewStatusError returns an error carrying |s|, suitable for returning from
// an RPC handler.
func NewStatusError(s Status, format string, args ...interface{}) error {
	return status.Errorf(s.GRPCCode(), format, args...)
}

// StatusOf maps |err| to its Status. A nil error is StatusOK, and errors
// which carry no recognized code are StatusInternal.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	switch status.Code(err) {
	case codes.OK:
		return StatusOK
	case codes.InvalidArgument:
		return StatusInvalidArgument
	case codes.NotFound:
		return StatusNotFound
	case codes.AlreadyExists:
		return StatusAlreadyExists
	case codes.FailedPrecondition:
		return StatusFailedPrecondition
	case codes.Aborted:
		return StatusAborted
	case codes.ResourceExhausted:
		return StatusResourceExhausted
	default:
		return StatusInternal
	}
}
