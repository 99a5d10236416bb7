package protocol

import (
	"fmt"
	"strings"
)

// Validator is a type able to validate itself. Validate inspects the type for
// syntactic or semantic issues, and returns a descriptive error if any
// violations are encountered. It is recommended that Validate return instances
// of ValidationError where possible, which enables tracking nested contexts.
type Validator interface {
	Validate() error
}

// ValidationError is an error implementation which captures its validation context.
type ValidationError struct {
	Context []string
	Err     error
}

// Error implements the error interface.
func (ve *ValidationError) Error() string {
	if len(ve.Context) != 0 {
		return strings.Join(ve.Context, ".") + ": " + ve.Err.Error()
	} else {
		return ve.Err.Error()
	}
}

// ExtendContext type-checks |err| to a *ValidationError, and if matched extends
// it with |context|. In all cases the value of |err| is returned.
func ExtendContext(err error, format string, args ...interface{}) error {
	if ve, ok := err.(*ValidationError); ok {
		ve.Context = append([]string{fmt.Sprintf(format, args...)}, ve.Context...)
	}
	return err
}

// NewValidationError parallels fmt.Errorf to returns a new ValidationError instance.
func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Err: fmt.Errorf(format, args...)}
}

// Resource paths have the shape:
//
//	databases/{database}
//	databases/{database}/documents                     (a documents root)
//	databases/{database}/documents/{coll}/{doc}/...    (alternating segments)
//
// A path naming a document has an even number of segments under "documents";
// a path naming a collection has an odd number. Segments are non-empty and
// may not contain '/'.

// ValidateDatabasePath ensures |p| names a database.
func ValidateDatabasePath(p string) error {
	var segs = strings.Split(p, "/")
	if len(segs) != 2 || segs[0] != "databases" || segs[1] == "" {
		return NewValidationError("not a valid database path (%s)", p)
	}
	return nil
}

// ValidateDocumentPath ensures |p| names a single document.
func ValidateDocumentPath(p string) error {
	var n, err = documentsSuffixLen(p)
	if err != nil {
		return err
	} else if n == 0 || n%2 != 0 {
		return NewValidationError("path does not name a document (%s)", p)
	}
	return nil
}

// ValidateParentPath ensures |p| names a documents root or a document, either
// of which may parent collections.
func ValidateParentPath(p string) error {
	var n, err = documentsSuffixLen(p)
	if err != nil {
		return err
	} else if n%2 != 0 {
		return NewValidationError("path does not name a document parent (%s)", p)
	}
	return nil
}

// ValidateCollectionID ensures |id| is a well-formed collection identifier.
func ValidateCollectionID(id string) error {
	if id == "" || strings.Contains(id, "/") {
		return NewValidationError("not a valid collection id (%s)", id)
	}
	return nil
}

// DatabaseOfPath returns the database path prefix of a documents-rooted path.
func DatabaseOfPath(p string) string {
	var segs = strings.Split(p, "/")
	if len(segs) < 2 {
		return ""
	}
	return strings.Join(segs[:2], "/")
}

// ParentOfDocument returns the parent path of document path |p| (its
// containing collection's parent document, or the documents root).
func ParentOfDocument(p string) string {
	var segs = strings.Split(p, "/")
	if len(segs) < 5 {
		return ""
	}
	return strings.Join(segs[:len(segs)-2], "/")
}

// CollectionOfDocument returns the collection id of document path |p|.
func CollectionOfDocument(p string) string {
	var segs = strings.Split(p, "/")
	if len(segs) < 5 {
		return ""
	}
	return segs[len(segs)-2]
}

// documentsSuffixLen validates the path prefix and returns the number of
// segments following the "documents" root segment.
func documentsSuffixLen(p string) (int, error) {
	var segs = strings.Split(p, "/")
	if len(segs) < 3 || segs[0] != "databases" || segs[1] == "" || segs[2] != "documents" {
		return 0, NewValidationError("path is not rooted by a database documents root (%s)", p)
	}
	for _, s := range segs[3:] {
		if s == "" {
			return 0, NewValidationError("path has an empty segment (%s)", p)
		}
	}
	return len(segs) - 3, nil
}
