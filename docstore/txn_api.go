package docstore

import (
	"context"

	pb "go.scrivodb.dev/core/docstore/protocol"
)

// BeginTransaction dispatches the DocstoreServer.BeginTransaction API.
func (svc *Service) BeginTransaction(ctx context.Context, req *pb.BeginTransactionRequest) (resp *pb.BeginTransactionResponse, err error) {
	defer instrumentDocstoreRPC("BeginTransaction", &err)()

	if err = req.Validate(); err != nil {
		return nil, pb.NewStatusError(pb.StatusInvalidArgument, "%s", err)
	} else if err = svc.checkDatabase(req.Database); err != nil {
		return nil, err
	}

	var txn, beginErr = svc.txns.Begin(req.Options)
	if beginErr != nil {
		return nil, beginErr
	}
	return &pb.BeginTransactionResponse{Transaction: txn.Token()}, nil
}

// Commit dispatches the DocstoreServer.Commit API. With an empty transaction
// token, the write batch commits as a one-shot implicit transaction.
func (svc *Service) Commit(ctx context.Context, req *pb.CommitRequest) (resp *pb.CommitResponse, err error) {
	defer instrumentDocstoreRPC("Commit", &err)()

	if err = req.Validate(); err != nil {
		return nil, pb.NewStatusError(pb.StatusInvalidArgument, "%s", err)
	} else if err = svc.checkDatabase(req.Database); err != nil {
		return nil, err
	}

	if len(req.Transaction) == 0 {
		if len(req.Writes) == 0 {
			return &pb.CommitResponse{CommitTime: svc.store.ReadTime()}, nil
		}
		return svc.store.Commit(req.Writes, nil)
	}
	return svc.txns.Commit(req.Transaction, req.Writes)
}

// Rollback dispatches the DocstoreServer.Rollback API.
func (svc *Service) Rollback(ctx context.Context, req *pb.RollbackRequest) (resp *pb.RollbackResponse, err error) {
	defer instrumentDocstoreRPC("Rollback", &err)()

	if err = req.Validate(); err != nil {
		return nil, pb.NewStatusError(pb.StatusInvalidArgument, "%s", err)
	} else if err = svc.checkDatabase(req.Database); err != nil {
		return nil, err
	}

	if err = svc.txns.Rollback(req.Transaction); err != nil {
		return nil, err
	}
	return &pb.RollbackResponse{}, nil
}
