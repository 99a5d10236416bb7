package client

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	pb "go.scrivodb.dev/core/docstore/protocol"
)

// maxTxnAttempts bounds the retries of RunTransaction under contention.
const maxTxnAttempts = 5

// Txn stages the reads and writes of one transaction attempt. Reads are
// served from the transaction's snapshot, and writes are buffered locally
// until the attempt commits.
type Txn struct {
	dc       pb.DocstoreClient
	database string
	token    []byte
	writes   []pb.Write
}

// Get reads a document within the transaction. A document which does not
// exist is returned as (nil, nil).
func (t *Txn) Get(ctx context.Context, name string) (*pb.Document, error) {
	var doc, err = t.dc.GetDocument(ctx, &pb.GetDocumentRequest{
		Name:        name,
		Transaction: t.token,
	})
	if pb.StatusOf(err) == pb.StatusNotFound {
		return nil, nil
	}
	return doc, err
}

// Set stages a full write of |doc|.
func (t *Txn) Set(doc pb.Document) {
	t.writes = append(t.writes, pb.Write{Op: pb.WriteUpdate{Doc: doc}})
}

// Update stages a masked write of |doc|: only masked field paths are set
// (or, where absent from |doc|, deleted).
func (t *Txn) Update(doc pb.Document, mask *pb.DocumentMask) {
	t.writes = append(t.writes, pb.Write{Op: pb.WriteUpdate{Doc: doc, Mask: mask}})
}

// Delete stages a delete of document |name|.
func (t *Txn) Delete(name string) {
	t.writes = append(t.writes, pb.Write{Op: pb.WriteDelete{Name: name}})
}

// Transform stages server-side field transforms of document |name|.
func (t *Txn) Transform(name string, transforms ...pb.FieldTransform) {
	t.writes = append(t.writes, pb.Write{
		Op: pb.WriteTransform{Name: name, Transforms: transforms},
	})
}

// RunTransaction runs |fn| under an optimistic read-write transaction of
// |database|, committing its staged writes if |fn| succeeds. An ABORTED
// commit is retried under a new transaction which chains from the aborted
// attempt, with backoff, through maxTxnAttempts.
func RunTransaction(ctx context.Context, dc pb.DocstoreClient, database string, fn func(context.Context, *Txn) error) error {
	var retryOf []byte

	for attempt := 0; attempt != maxTxnAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(attempt)):
		}

		var begun, err = dc.BeginTransaction(ctx, &pb.BeginTransactionRequest{
			Database: database,
			Options: &pb.TransactionOptions{
				Mode: pb.ReadWrite{RetryTransaction: retryOf},
			},
		})
		if err != nil {
			return errors.WithMessage(err, "beginning transaction")
		}
		var txn = &Txn{dc: dc, database: database, token: begun.Transaction}

		if err = fn(ctx, txn); err != nil {
			if _, rbErr := dc.Rollback(ctx, &pb.RollbackRequest{
				Database:    database,
				Transaction: txn.token,
			}); rbErr != nil {
				log.WithFields(log.Fields{"err": rbErr}).
					Warn("failed to roll back transaction")
			}
			return err
		}

		_, err = dc.Commit(ctx, &pb.CommitRequest{
			Database:    database,
			Writes:      txn.writes,
			Transaction: txn.token,
		})
		if err == nil {
			return nil
		} else if pb.StatusOf(err) != pb.StatusAborted {
			return errors.WithMessage(err, "committing transaction")
		}
		retryOf = txn.token // Chain the next attempt from this one.
	}
	return pb.NewStatusError(pb.StatusAborted,
		"transaction failed after %d attempts", maxTxnAttempts)
}
