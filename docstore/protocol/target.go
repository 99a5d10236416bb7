package protocol

import (
	"encoding/json"
	"time"
)

// Target is a single subscription multiplexed onto a Listen stream: either a
// query, or an explicit document set. Targets are independently added and
// removed, and each is identified by a client-assigned TargetID (or, when
// zero, a server-assigned one).
type Target struct {
	// TargetID identifies the target within its stream. Zero asks the server
	// to assign an id.
	TargetID int32
	// Selector is the subscribed query or document set.
	Selector TargetSelector
	// ResumeToken resumes the target from a previously returned token.
	// Mutually exclusive with ReadTime.
	ResumeToken []byte
	// ReadTime resumes the target from a wall-clock snapshot time.
	// Mutually exclusive with ResumeToken.
	ReadTime *time.Time
	// Once requests that the target be removed once it is current.
	Once bool
}

// TargetSelector is a closed sum over target selectors.
type TargetSelector interface {
	// Validate returns an error if the selector is not well-formed.
	Validate() error
	isTargetSelector()
}

// QueryTarget subscribes to the results of a query.
type QueryTarget struct {
	Parent string          `json:"parent"`
	Query  StructuredQuery `json:"query"`
}

// DocumentsTarget subscribes to an explicit set of documents.
type DocumentsTarget struct {
	Documents []string `json:"documents"`
}

func (QueryTarget) isTargetSelector()     {}
func (DocumentsTarget) isTargetSelector() {}

// Validate returns an error if the QueryTarget is not well-formed.
func (t QueryTarget) Validate() error {
	if err := ValidateParentPath(t.Parent); err != nil {
		return ExtendContext(err, "Parent")
	} else if err = t.Query.Validate(); err != nil {
		return ExtendContext(err, "Query")
	}
	return nil
}

// Validate returns an error if the DocumentsTarget is not well-formed.
func (t DocumentsTarget) Validate() error {
	if len(t.Documents) == 0 {
		return NewValidationError("expected at least one document")
	}
	for i, d := range t.Documents {
		if err := ValidateDocumentPath(d); err != nil {
			return ExtendContext(err, "Documents[%d]", i)
		}
	}
	return nil
}

// Validate returns an error if the Target is not well-formed.
func (t *Target) Validate() error {
	if t.TargetID < 0 {
		return NewValidationError("invalid TargetID (%d; expected >= 0)", t.TargetID)
	} else if t.Selector == nil {
		return NewValidationError("expected a target selector")
	} else if err := t.Selector.Validate(); err != nil {
		return ExtendContext(err, "Selector")
	} else if len(t.ResumeToken) != 0 && t.ReadTime != nil {
		return NewValidationError("ResumeToken and ReadTime are mutually exclusive")
	}
	return nil
}

type targetEnvelope struct {
	TargetID    int32            `json:"targetId,omitempty"`
	Query       *QueryTarget     `json:"query,omitempty"`
	Documents   *DocumentsTarget `json:"documents,omitempty"`
	ResumeToken []byte           `json:"resumeToken,omitempty"`
	ReadTime    *time.Time       `json:"readTime,omitempty"`
	Once        bool             `json:"once,omitempty"`
}

// MarshalJSON emits the Target envelope form.
func (t Target) MarshalJSON() ([]byte, error) {
	var env = targetEnvelope{
		TargetID:    t.TargetID,
		ResumeToken: t.ResumeToken,
		ReadTime:    t.ReadTime,
		Once:        t.Once,
	}
	switch sel := t.Selector.(type) {
	case QueryTarget:
		env.Query = &sel
	case DocumentsTarget:
		env.Documents = &sel
	case nil:
		return nil, NewValidationError("expected a target selector")
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes a Target from its envelope form.
func (t *Target) UnmarshalJSON(data []byte) error {
	var env targetEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch {
	case env.Query != nil:
		t.Selector = *env.Query
	case env.Documents != nil:
		t.Selector = *env.Documents
	default:
		return NewValidationError("no target selector is set")
	}
	t.TargetID = env.TargetID
	t.ResumeToken = env.ResumeToken
	t.ReadTime = env.ReadTime
	t.Once = env.Once
	return nil
}

// TargetChangeType is the kind of a TargetChange.
type TargetChangeType string

const (
	// TargetNoChange carries a snapshot boundary (and often a resume token)
	// without changing target states. Empty TargetIDs means it applies to
	// every current target of the stream.
	TargetNoChange TargetChangeType = "NO_CHANGE"
	// TargetAdd acknowledges targets added to the stream. TargetIDs is
	// ordered for TargetAdd, and unordered otherwise.
	TargetAdd TargetChangeType = "ADD"
	// TargetRemove indicates targets were removed, either by request or --
	// when Cause is set -- due to a target-scoped error.
	TargetRemove TargetChangeType = "REMOVE"
	// TargetCurrent indicates the listed targets are now consistent
	// snapshots as of the accompanying (or a subsequent) read time.
	TargetCurrent TargetChangeType = "CURRENT"
	// TargetReset instructs the client to discard its accumulated state for
	// the listed targets and rebuild from a fresh initial stream.
	TargetReset TargetChangeType = "RESET"
)

// TargetCause is the error which removed a target.
type TargetCause struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// TargetChange is a Listen stream event affecting target states.
// ReadTimes of a single stream are monotonically non-decreasing.
type TargetChange struct {
	Type        TargetChangeType `json:"type"`
	TargetIDs   []int32          `json:"targetIds,omitempty"`
	Cause       *TargetCause     `json:"cause,omitempty"`
	ResumeToken []byte           `json:"resumeToken,omitempty"`
	ReadTime    time.Time        `json:"readTime,omitzero"`
}

// Validate returns an error if the TargetChange is not well-formed.
func (tc *TargetChange) Validate() error {
	switch tc.Type {
	case TargetNoChange, TargetAdd, TargetRemove, TargetCurrent, TargetReset:
		// Pass.
	default:
		return NewValidationError("invalid change type (%s)", tc.Type)
	}
	if tc.Cause != nil && tc.Type != TargetRemove {
		return NewValidationError("unexpected Cause with type %s", tc.Type)
	}
	return nil
}

// DocumentChange reports a document which now matches the listed targets.
type DocumentChange struct {
	Document         Document `json:"document"`
	TargetIDs        []int32  `json:"targetIds,omitempty"`
	RemovedTargetIDs []int32  `json:"removedTargetIds,omitempty"`
}

// DocumentDelete reports a document which was deleted: it no longer exists
// anywhere, and is removed from the listed targets.
type DocumentDelete struct {
	Document         string    `json:"document"`
	RemovedTargetIDs []int32   `json:"removedTargetIds,omitempty"`
	ReadTime         time.Time `json:"readTime,omitzero"`
}

// DocumentRemove reports a document which no longer matches the listed
// targets' filters. Unlike DocumentDelete, the document may still exist.
type DocumentRemove struct {
	Document         string    `json:"document"`
	RemovedTargetIDs []int32   `json:"removedTargetIds,omitempty"`
	ReadTime         time.Time `json:"readTime,omitzero"`
}

// ExistenceFilter is a consistency hint: Count is the number of documents
// the server believes currently match the target. A client whose local
// count disagrees cannot trust its accumulated diff, and must resync the
// target as though it were RESET.
type ExistenceFilter struct {
	TargetID int32 `json:"targetId"`
	Count    int32 `json:"count"`
}
