package protocol

import (
	"encoding/json"
	"time"
)

// MaxReadStaleness is the bound on how far a requested readTime may lag the
// current time. Older read times are rejected with INVALID_ARGUMENT.
const MaxReadStaleness = 60 * time.Second

// TransactionOptions configures a transaction begun by BeginTransaction, or
// implicitly by the first read of a request carrying NewTransaction.
// Mode is a closed sum over read-only and read-write modes.
type TransactionOptions struct {
	Mode TransactionMode
}

// TransactionMode is a closed sum over transaction modes.
type TransactionMode interface{ isTransactionMode() }

// ReadOnly transactions read a consistent snapshot, optionally at an
// explicit ReadTime, and may not write.
type ReadOnly struct {
	ReadTime *time.Time `json:"readTime,omitempty"`
}

// ReadWrite transactions read a snapshot and may commit writes.
// RetryTransaction optionally chains the token of a prior failed attempt of
// the same logical transaction, letting the server reuse conflict-detection
// state across attempts.
type ReadWrite struct {
	RetryTransaction []byte `json:"retryTransaction,omitempty"`
}

func (ReadOnly) isTransactionMode()  {}
func (ReadWrite) isTransactionMode() {}

// Validate returns an error if the TransactionOptions is not well-formed.
func (o *TransactionOptions) Validate() error {
	switch o.Mode.(type) {
	case ReadOnly, ReadWrite:
		return nil
	default:
		return NewValidationError("expected a transaction mode")
	}
}

type transactionOptionsEnvelope struct {
	ReadOnly  *ReadOnly  `json:"readOnly,omitempty"`
	ReadWrite *ReadWrite `json:"readWrite,omitempty"`
}

// MarshalJSON emits the TransactionOptions envelope form.
func (o TransactionOptions) MarshalJSON() ([]byte, error) {
	var env transactionOptionsEnvelope
	switch m := o.Mode.(type) {
	case ReadOnly:
		env.ReadOnly = &m
	case ReadWrite:
		env.ReadWrite = &m
	case nil:
		return nil, NewValidationError("expected a transaction mode")
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes TransactionOptions from its envelope form.
func (o *TransactionOptions) UnmarshalJSON(data []byte) error {
	var env transactionOptionsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch {
	case env.ReadOnly != nil:
		o.Mode = *env.ReadOnly
	case env.ReadWrite != nil:
		o.Mode = *env.ReadWrite
	default:
		return NewValidationError("no transaction mode is set")
	}
	return nil
}

// validateConsistency requires that at most one consistency selector
// (transaction, new transaction, or read time) is set.
func validateConsistency(txn []byte, newTxn *TransactionOptions, readTime *time.Time) error {
	var n int
	if len(txn) != 0 {
		n++
	}
	if newTxn != nil {
		n++
		if err := newTxn.Validate(); err != nil {
			return ExtendContext(err, "NewTransaction")
		}
	}
	if readTime != nil {
		n++
	}
	if n > 1 {
		return NewValidationError("Transaction, NewTransaction and ReadTime are mutually exclusive")
	}
	return nil
}

// GetDocumentRequest is the unary request of the GetDocument RPC.
type GetDocumentRequest struct {
	Name        string        `json:"name"`
	Mask        *DocumentMask `json:"mask,omitempty"`
	Transaction []byte        `json:"transaction,omitempty"`
	ReadTime    *time.Time    `json:"readTime,omitempty"`
}

// Validate returns an error if the request is not well-formed.
func (r *GetDocumentRequest) Validate() error {
	if err := ValidateDocumentPath(r.Name); err != nil {
		return ExtendContext(err, "Name")
	}
	if r.Mask != nil {
		if err := r.Mask.Validate(); err != nil {
			return ExtendContext(err, "Mask")
		}
	}
	if len(r.Transaction) != 0 && r.ReadTime != nil {
		return NewValidationError("Transaction and ReadTime are mutually exclusive")
	}
	return nil
}

// ListDocumentsRequest is the unary request of the ListDocuments RPC.
type ListDocumentsRequest struct {
	Parent       string        `json:"parent"`
	CollectionID string        `json:"collectionId"`
	PageSize     int32         `json:"pageSize,omitempty"`
	PageToken    []byte        `json:"pageToken,omitempty"`
	OrderBy      []Order       `json:"orderBy,omitempty"`
	Mask         *DocumentMask `json:"mask,omitempty"`
	Transaction  []byte        `json:"transaction,omitempty"`
	ReadTime     *time.Time    `json:"readTime,omitempty"`
	// ShowMissing includes placeholder documents which exist only because
	// they have descendant documents.
	ShowMissing bool `json:"showMissing,omitempty"`
}

// Validate returns an error if the request is not well-formed.
func (r *ListDocumentsRequest) Validate() error {
	if err := ValidateParentPath(r.Parent); err != nil {
		return ExtendContext(err, "Parent")
	} else if err = ValidateCollectionID(r.CollectionID); err != nil {
		return ExtendContext(err, "CollectionID")
	} else if r.PageSize < 0 {
		return NewValidationError("invalid PageSize (%d; expected >= 0)", r.PageSize)
	}
	for i, o := range r.OrderBy {
		if err := validateFieldPath(o.Field); err != nil {
			return ExtendContext(err, "OrderBy[%d].Field", i)
		}
	}
	if r.Mask != nil {
		if err := r.Mask.Validate(); err != nil {
			return ExtendContext(err, "Mask")
		}
	}
	if len(r.Transaction) != 0 && r.ReadTime != nil {
		return NewValidationError("Transaction and ReadTime are mutually exclusive")
	}
	return nil
}

// ListDocumentsResponse is the unary response of the ListDocuments RPC.
// An empty NextPageToken means there are no further pages.
type ListDocumentsResponse struct {
	Documents     []Document `json:"documents,omitempty"`
	NextPageToken []byte     `json:"nextPageToken,omitempty"`
}

// CreateDocumentRequest is the unary request of the CreateDocument RPC.
type CreateDocumentRequest struct {
	Parent       string        `json:"parent"`
	CollectionID string        `json:"collectionId"`
	// DocumentID is the client-assigned id of the new document, or empty to
	// have the server assign one.
	DocumentID string        `json:"documentId,omitempty"`
	Document   Document      `json:"document"`
	Mask       *DocumentMask `json:"mask,omitempty"`
}

// Validate returns an error if the request is not well-formed.
func (r *CreateDocumentRequest) Validate() error {
	if err := ValidateParentPath(r.Parent); err != nil {
		return ExtendContext(err, "Parent")
	} else if err = ValidateCollectionID(r.CollectionID); err != nil {
		return ExtendContext(err, "CollectionID")
	} else if err = r.Document.Fields.Validate(); err != nil {
		return ExtendContext(err, "Document.Fields")
	}
	if r.Mask != nil {
		if err := r.Mask.Validate(); err != nil {
			return ExtendContext(err, "Mask")
		}
	}
	return nil
}

// UpdateDocumentRequest is the unary request of the UpdateDocument RPC.
type UpdateDocumentRequest struct {
	Document   Document      `json:"document"`
	UpdateMask *DocumentMask `json:"updateMask,omitempty"`
	Mask       *DocumentMask `json:"mask,omitempty"`
	// CurrentDocument is an optional Precondition on the updated document.
	CurrentDocument *Precondition `json:"currentDocument,omitempty"`
}

// Validate returns an error if the request is not well-formed.
func (r *UpdateDocumentRequest) Validate() error {
	if err := r.Document.Validate(); err != nil {
		return ExtendContext(err, "Document")
	}
	if r.UpdateMask != nil {
		if err := r.UpdateMask.Validate(); err != nil {
			return ExtendContext(err, "UpdateMask")
		}
	}
	if r.Mask != nil {
		if err := r.Mask.Validate(); err != nil {
			return ExtendContext(err, "Mask")
		}
	}
	if r.CurrentDocument != nil {
		if err := r.CurrentDocument.Validate(); err != nil {
			return ExtendContext(err, "CurrentDocument")
		}
	}
	return nil
}

// DeleteDocumentRequest is the unary request of the DeleteDocument RPC.
type DeleteDocumentRequest struct {
	Name            string        `json:"name"`
	CurrentDocument *Precondition `json:"currentDocument,omitempty"`
}

// Validate returns an error if the request is not well-formed.
func (r *DeleteDocumentRequest) Validate() error {
	if err := ValidateDocumentPath(r.Name); err != nil {
		return ExtendContext(err, "Name")
	}
	if r.CurrentDocument != nil {
		if err := r.CurrentDocument.Validate(); err != nil {
			return ExtendContext(err, "CurrentDocument")
		}
	}
	return nil
}

// DeleteDocumentResponse is the (empty) unary response of DeleteDocument.
type DeleteDocumentResponse struct{}

// BatchGetDocumentsRequest is the request of the server-streaming
// BatchGetDocuments RPC. Responses may arrive in any order.
type BatchGetDocumentsRequest struct {
	Database       string              `json:"database"`
	Documents      []string            `json:"documents"`
	Mask           *DocumentMask       `json:"mask,omitempty"`
	Transaction    []byte              `json:"transaction,omitempty"`
	NewTransaction *TransactionOptions `json:"newTransaction,omitempty"`
	ReadTime       *time.Time          `json:"readTime,omitempty"`
}

// Validate returns an error if the request is not well-formed.
func (r *BatchGetDocumentsRequest) Validate() error {
	if err := ValidateDatabasePath(r.Database); err != nil {
		return ExtendContext(err, "Database")
	} else if len(r.Documents) == 0 {
		return NewValidationError("expected at least one document")
	}
	for i, d := range r.Documents {
		if err := ValidateDocumentPath(d); err != nil {
			return ExtendContext(err, "Documents[%d]", i)
		}
	}
	if r.Mask != nil {
		if err := r.Mask.Validate(); err != nil {
			return ExtendContext(err, "Mask")
		}
	}
	return validateConsistency(r.Transaction, r.NewTransaction, r.ReadTime)
}

// BatchGetDocumentsResponse is a single result of the BatchGetDocuments
// stream: exactly one of Found or Missing is set. Transaction is set on the
// first response only, when the request carried NewTransaction.
type BatchGetDocumentsResponse struct {
	Found       *Document `json:"found,omitempty"`
	Missing     string    `json:"missing,omitempty"`
	Transaction []byte    `json:"transaction,omitempty"`
	ReadTime    time.Time `json:"readTime,omitzero"`
}

// Validate returns an error if the response is not well-formed.
func (r *BatchGetDocumentsResponse) Validate() error {
	if (r.Found == nil) == (r.Missing == "") {
		return NewValidationError("expected exactly one of Found or Missing")
	}
	if r.Found != nil {
		if err := r.Found.Validate(); err != nil {
			return ExtendContext(err, "Found")
		}
	}
	return nil
}

// BeginTransactionRequest is the unary request of the BeginTransaction RPC.
type BeginTransactionRequest struct {
	Database string              `json:"database"`
	Options  *TransactionOptions `json:"options,omitempty"`
}

// Validate returns an error if the request is not well-formed.
func (r *BeginTransactionRequest) Validate() error {
	if err := ValidateDatabasePath(r.Database); err != nil {
		return ExtendContext(err, "Database")
	}
	if r.Options != nil {
		if err := r.Options.Validate(); err != nil {
			return ExtendContext(err, "Options")
		}
	}
	return nil
}

// BeginTransactionResponse carries the opaque token of the new transaction.
type BeginTransactionResponse struct {
	Transaction []byte `json:"transaction"`
}

// CommitRequest is the unary request of the Commit RPC. With an empty
// Transaction, the batch commits as a one-shot implicit transaction.
type CommitRequest struct {
	Database    string  `json:"database"`
	Writes      []Write `json:"writes,omitempty"`
	Transaction []byte  `json:"transaction,omitempty"`
}

// Validate returns an error if the request is not well-formed.
func (r *CommitRequest) Validate() error {
	if err := ValidateDatabasePath(r.Database); err != nil {
		return ExtendContext(err, "Database")
	}
	for i := range r.Writes {
		if err := r.Writes[i].Validate(); err != nil {
			return ExtendContext(err, "Writes[%d]", i)
		}
	}
	return nil
}

// CommitResponse carries per-Write results, in request order, and the commit
// time of the batch.
type CommitResponse struct {
	WriteResults []WriteResult `json:"writeResults,omitempty"`
	CommitTime   time.Time     `json:"commitTime"`
}

// RollbackRequest is the unary request of the Rollback RPC.
type RollbackRequest struct {
	Database    string `json:"database"`
	Transaction []byte `json:"transaction"`
}

// Validate returns an error if the request is not well-formed.
func (r *RollbackRequest) Validate() error {
	if err := ValidateDatabasePath(r.Database); err != nil {
		return ExtendContext(err, "Database")
	} else if len(r.Transaction) == 0 {
		return NewValidationError("expected a transaction token")
	}
	return nil
}

// RollbackResponse is the (empty) unary response of Rollback.
type RollbackResponse struct{}

// RunQueryRequest is the request of the server-streaming RunQuery RPC.
type RunQueryRequest struct {
	Parent         string              `json:"parent"`
	Query          StructuredQuery     `json:"query"`
	Transaction    []byte              `json:"transaction,omitempty"`
	NewTransaction *TransactionOptions `json:"newTransaction,omitempty"`
	ReadTime       *time.Time          `json:"readTime,omitempty"`
}

// Validate returns an error if the request is not well-formed.
func (r *RunQueryRequest) Validate() error {
	if err := ValidateParentPath(r.Parent); err != nil {
		return ExtendContext(err, "Parent")
	} else if err = r.Query.Validate(); err != nil {
		return ExtendContext(err, "Query")
	}
	return validateConsistency(r.Transaction, r.NewTransaction, r.ReadTime)
}

// RunQueryResponse is a message of the RunQuery stream. Document may be nil:
// such responses report read-time and skipped-results progress only, and are
// merged by callers into the one logical result stream. Transaction is set
// on the first response only, when the request carried NewTransaction.
type RunQueryResponse struct {
	Transaction    []byte    `json:"transaction,omitempty"`
	Document       *Document `json:"document,omitempty"`
	ReadTime       time.Time `json:"readTime"`
	SkippedResults int32     `json:"skippedResults,omitempty"`
}

// WriteRequest is a message of the bidirectional Write stream. The first
// request of the stream establishes (empty StreamID) or resumes (StreamID +
// StreamToken) the stream, and must carry no writes. Subsequent requests
// carry write batches keyed to the most recently acknowledged token.
type WriteRequest struct {
	Database    string            `json:"database,omitempty"`
	StreamID    string            `json:"streamId,omitempty"`
	Writes      []Write           `json:"writes,omitempty"`
	StreamToken []byte            `json:"streamToken,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// Validate returns an error if the request is not well-formed.
func (r *WriteRequest) Validate() error {
	if r.Database != "" {
		if err := ValidateDatabasePath(r.Database); err != nil {
			return ExtendContext(err, "Database")
		}
	}
	for i := range r.Writes {
		if err := r.Writes[i].Validate(); err != nil {
			return ExtendContext(err, "Writes[%d]", i)
		}
	}
	return nil
}

// WriteResponse is a message of the bidirectional Write stream. StreamID and
// StreamToken are set on the first response; every response carries a new
// StreamToken which the client must acknowledge (by echoing it on a later
// request) to keep the stream's bounded in-flight window open.
type WriteResponse struct {
	StreamID     string        `json:"streamId,omitempty"`
	StreamToken  []byte        `json:"streamToken,omitempty"`
	WriteResults []WriteResult `json:"writeResults,omitempty"`
	CommitTime   time.Time     `json:"commitTime,omitzero"`
}

// ListenRequest is a message of the bidirectional Listen stream: exactly one
// of AddTarget or RemoveTarget is set. The first request must also name the
// database.
type ListenRequest struct {
	Database     string            `json:"database,omitempty"`
	AddTarget    *Target           `json:"addTarget,omitempty"`
	RemoveTarget int32             `json:"removeTarget,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`
}

// Validate returns an error if the request is not well-formed.
func (r *ListenRequest) Validate() error {
	if r.Database != "" {
		if err := ValidateDatabasePath(r.Database); err != nil {
			return ExtendContext(err, "Database")
		}
	}
	if r.AddTarget != nil && r.RemoveTarget != 0 {
		return NewValidationError("AddTarget and RemoveTarget are mutually exclusive")
	} else if r.AddTarget == nil && r.RemoveTarget == 0 {
		return NewValidationError("expected AddTarget or RemoveTarget")
	}
	if r.AddTarget != nil {
		if err := r.AddTarget.Validate(); err != nil {
			return ExtendContext(err, "AddTarget")
		}
	} else if r.RemoveTarget < 0 {
		return NewValidationError("invalid RemoveTarget (%d; expected > 0)", r.RemoveTarget)
	}
	return nil
}

// ListenResponse is a message of the bidirectional Listen stream: exactly
// one member is set.
type ListenResponse struct {
	TargetChange   *TargetChange    `json:"targetChange,omitempty"`
	DocumentChange *DocumentChange  `json:"documentChange,omitempty"`
	DocumentDelete *DocumentDelete  `json:"documentDelete,omitempty"`
	DocumentRemove *DocumentRemove  `json:"documentRemove,omitempty"`
	Filter         *ExistenceFilter `json:"filter,omitempty"`
}

// Validate returns an error if the response is not well-formed.
func (r *ListenResponse) Validate() error {
	var n int
	for _, set := range []bool{
		r.TargetChange != nil,
		r.DocumentChange != nil,
		r.DocumentDelete != nil,
		r.DocumentRemove != nil,
		r.Filter != nil,
	} {
		if set {
			n++
		}
	}
	if n != 1 {
		return NewValidationError("expected exactly one response member (got %d)", n)
	}
	if r.TargetChange != nil {
		if err := r.TargetChange.Validate(); err != nil {
			return ExtendContext(err, "TargetChange")
		}
	}
	if r.DocumentChange != nil {
		if err := r.DocumentChange.Document.Validate(); err != nil {
			return ExtendContext(err, "DocumentChange.Document")
		}
	}
	return nil
}

// ListCollectionIdsRequest is the unary request of the ListCollectionIds RPC.
type ListCollectionIdsRequest struct {
	Parent    string `json:"parent"`
	PageSize  int32  `json:"pageSize,omitempty"`
	PageToken []byte `json:"pageToken,omitempty"`
}

// Validate returns an error if the request is not well-formed.
func (r *ListCollectionIdsRequest) Validate() error {
	if err := ValidateParentPath(r.Parent); err != nil {
		return ExtendContext(err, "Parent")
	} else if r.PageSize < 0 {
		return NewValidationError("invalid PageSize (%d; expected >= 0)", r.PageSize)
	}
	return nil
}

// ListCollectionIdsResponse is the unary response of ListCollectionIds.
// An empty NextPageToken means there are no further pages.
type ListCollectionIdsResponse struct {
	CollectionIDs []string `json:"collectionIds,omitempty"`
	NextPageToken []byte   `json:"nextPageToken,omitempty"`
}
