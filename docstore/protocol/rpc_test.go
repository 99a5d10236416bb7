package protocol_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	pb "go.scrivodb.dev/core/docstore/protocol"
)

func TestResourcePathValidationCases(t *testing.T) {
	require.NoError(t, pb.ValidateDatabasePath("databases/db"))
	require.Error(t, pb.ValidateDatabasePath("databases/db/documents"))
	require.Error(t, pb.ValidateDatabasePath("databases/"))

	require.NoError(t, pb.ValidateDocumentPath("databases/db/documents/users/alice"))
	require.NoError(t, pb.ValidateDocumentPath("databases/db/documents/users/alice/posts/1"))
	// A collection path does not name a document.
	require.Error(t, pb.ValidateDocumentPath("databases/db/documents/users"))
	// Nor does the documents root.
	require.Error(t, pb.ValidateDocumentPath("databases/db/documents"))
	require.Error(t, pb.ValidateDocumentPath("databases/db/documents/users//posts"))

	require.NoError(t, pb.ValidateParentPath("databases/db/documents"))
	require.NoError(t, pb.ValidateParentPath("databases/db/documents/users/alice"))
	require.Error(t, pb.ValidateParentPath("databases/db/documents/users"))

	require.Equal(t, "databases/db",
		pb.DatabaseOfPath("databases/db/documents/users/alice"))
	require.Equal(t, "databases/db/documents",
		pb.ParentOfDocument("databases/db/documents/users/alice"))
	require.Equal(t, "users",
		pb.CollectionOfDocument("databases/db/documents/users/alice"))
	require.Equal(t, "posts",
		pb.CollectionOfDocument("databases/db/documents/users/alice/posts/1"))
}

func TestWriteEnvelopeRoundTrip(t *testing.T) {
	var exists = true
	var writes = []pb.Write{
		{
			Op: pb.WriteUpdate{
				Doc: pb.Document{
					Name:   "databases/db/documents/users/alice",
					Fields: pb.MapValue{"name": pb.StringValue("alice")},
				},
				Mask: &pb.DocumentMask{FieldPaths: []string{"name"}},
			},
			CurrentDocument: &pb.Precondition{Exists: &exists},
		},
		{Op: pb.WriteDelete{Name: "databases/db/documents/users/bob"}},
		{
			Op: pb.WriteTransform{
				Name: "databases/db/documents/users/alice",
				Transforms: []pb.FieldTransform{
					{FieldPath: "updatedAt", Op: pb.SetToServerValue(pb.ServerValueRequestTime)},
					{FieldPath: "tags", Op: pb.AppendMissingElements{pb.StringValue("a")}},
					{FieldPath: "tags", Op: pb.RemoveAllFromArray{pb.StringValue("b")}},
				},
			},
		},
	}
	for i := range writes {
		require.NoError(t, writes[i].Validate())
	}

	var b, err = json.Marshal(writes)
	require.NoError(t, err)

	var out []pb.Write
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, writes, out)

	// A Write without an operation fails both validation and marshalling.
	var empty pb.Write
	require.EqualError(t, empty.Validate(), "expected a write operation")
	_, err = json.Marshal(empty)
	require.Error(t, err)
}

func TestStructuredQueryEnvelopeRoundTrip(t *testing.T) {
	var limit int32 = 10
	var q = pb.StructuredQuery{
		Select: &pb.Projection{Fields: []string{"name", "age"}},
		From:   []pb.CollectionSelector{{CollectionID: "users", AllDescendants: true}},
		Where: pb.CompositeFilter{
			Op: pb.CompositeAnd,
			Filters: []pb.Filter{
				pb.FieldFilter{Field: "age", Op: pb.GreaterThanOrEqual, Value: pb.IntegerValue(21)},
				pb.UnaryFilter{Op: pb.IsNull, Field: "deletedAt"},
			},
		},
		OrderBy: []pb.Order{{Field: "age", Direction: pb.Descending}},
		StartAt: &pb.Cursor{Values: []pb.Value{pb.IntegerValue(30)}, Before: true},
		Offset:  5,
		Limit:   &limit,
	}
	require.NoError(t, q.Validate())

	var b, err = json.Marshal(q)
	require.NoError(t, err)

	var out pb.StructuredQuery
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, q, out)
}

func TestTransactionOptionsCases(t *testing.T) {
	var readTime = time.Unix(1000, 0).UTC()
	var cases = []pb.TransactionOptions{
		{Mode: pb.ReadOnly{}},
		{Mode: pb.ReadOnly{ReadTime: &readTime}},
		{Mode: pb.ReadWrite{}},
		{Mode: pb.ReadWrite{RetryTransaction: []byte("prior")}},
	}
	for _, opts := range cases {
		require.NoError(t, opts.Validate())

		var b, err = json.Marshal(opts)
		require.NoError(t, err)
		var out pb.TransactionOptions
		require.NoError(t, json.Unmarshal(b, &out))
		require.Equal(t, opts, out)
	}
	require.Error(t, (&pb.TransactionOptions{}).Validate())
}

func TestRequestValidationCases(t *testing.T) {
	var readTime = time.Now()

	// Consistency selectors are mutually exclusive.
	var get = pb.GetDocumentRequest{
		Name:        "databases/db/documents/users/alice",
		Transaction: []byte("txn"),
		ReadTime:    &readTime,
	}
	require.EqualError(t, get.Validate(), "Transaction and ReadTime are mutually exclusive")

	var batch = pb.BatchGetDocumentsRequest{
		Database:       "databases/db",
		Documents:      []string{"databases/db/documents/users/alice"},
		Transaction:    []byte("txn"),
		NewTransaction: &pb.TransactionOptions{Mode: pb.ReadWrite{}},
	}
	require.EqualError(t, batch.Validate(),
		"Transaction, NewTransaction and ReadTime are mutually exclusive")

	require.Error(t, (&pb.BatchGetDocumentsRequest{Database: "databases/db"}).Validate())

	var listen = pb.ListenRequest{}
	require.EqualError(t, listen.Validate(), "expected AddTarget or RemoveTarget")

	listen = pb.ListenRequest{
		AddTarget: &pb.Target{
			Selector: pb.DocumentsTarget{Documents: []string{"databases/db/documents/users/alice"}},
		},
		RemoveTarget: 2,
	}
	require.EqualError(t, listen.Validate(), "AddTarget and RemoveTarget are mutually exclusive")

	var target = pb.Target{
		Selector:    pb.DocumentsTarget{Documents: []string{"databases/db/documents/users/alice"}},
		ResumeToken: []byte("tok"),
		ReadTime:    &readTime,
	}
	require.EqualError(t, target.Validate(), "ResumeToken and ReadTime are mutually exclusive")

	var precondition = pb.Precondition{}
	require.EqualError(t, precondition.Validate(), "expected Exists or UpdateTime")
}

func TestListenResponseValidationCases(t *testing.T) {
	var resp = pb.ListenResponse{}
	require.EqualError(t, resp.Validate(), "expected exactly one response member (got 0)")

	resp = pb.ListenResponse{
		TargetChange: &pb.TargetChange{Type: pb.TargetNoChange},
		Filter:       &pb.ExistenceFilter{TargetID: 1},
	}
	require.EqualError(t, resp.Validate(), "expected exactly one response member (got 2)")

	resp = pb.ListenResponse{TargetChange: &pb.TargetChange{
		Type:  pb.TargetNoChange,
		Cause: &pb.TargetCause{Status: pb.StatusInternal},
	}}
	require.EqualError(t, resp.Validate(), "TargetChange: unexpected Cause with type NO_CHANGE")

	resp = pb.ListenResponse{TargetChange: &pb.TargetChange{
		Type:      pb.TargetRemove,
		TargetIDs: []int32{1},
		Cause:     &pb.TargetCause{Status: pb.StatusInvalidArgument, Message: "bad query"},
	}}
	require.NoError(t, resp.Validate())
}

func TestStatusMappings(t *testing.T) {
	require.Equal(t, pb.StatusOK, pb.StatusOf(nil))
	require.Equal(t, "ABORTED", pb.StatusAborted.String())

	var err = pb.NewStatusError(pb.StatusFailedPrecondition, "document %s does not exist", "x")
	require.Equal(t, pb.StatusFailedPrecondition, pb.StatusOf(err))

	// Arbitrary errors map to INTERNAL.
	require.Equal(t, pb.StatusInternal, pb.StatusOf(json.Unmarshal([]byte("{"), &struct{}{})))
}
