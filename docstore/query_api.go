package docstore

import (
	"context"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	pb "go.scrivodb.dev/core/docstore/protocol"
	"go.scrivodb.dev/core/docstore/query"
	"go.scrivodb.dev/core/docstore/storage"
	"go.scrivodb.dev/core/metrics"
)

// RunQuery dispatches the DocstoreServer.RunQuery API.
func (svc *Service) RunQuery(req *pb.RunQueryRequest, stream pb.Docstore_RunQueryServer) (err error) {
	defer instrumentDocstoreRPC("RunQuery", &err)()

	defer func() {
		if err != nil {
			log.WithFields(log.Fields{"err": err, "req": req}).
				Warn("served RunQuery RPC failed")
		}
	}()

	if err = req.Validate(); err != nil {
		return pb.NewStatusError(pb.StatusInvalidArgument, "%s", err)
	} else if err = svc.checkDatabase(pb.DatabaseOfPath(req.Parent)); err != nil {
		return err
	}

	var (
		readTime time.Time
		txn      *storage.Txn
		newToken []byte
	)
	if req.NewTransaction != nil {
		if txn, err = svc.txns.Begin(req.NewTransaction); err != nil {
			return err
		}
		readTime, newToken = txn.ReadTime(), txn.Token()
	} else if readTime, txn, err = svc.resolveReadTime(req.Transaction, req.ReadTime); err != nil {
		return err
	}

	q, err := query.Compile(req.Parent, &req.Query)
	if err != nil {
		return err
	}
	result, err := q.Evaluate(svc.store, readTime)
	if err != nil {
		return err
	}
	metrics.QueryDocumentsTotal.Add(float64(len(result.Documents)))

	// An initial progress-only response reports the read time, skipped
	// results, and (when newly begun) the transaction token. It is elided
	// when there is nothing to report beyond the documents themselves.
	if newToken != nil || result.SkippedResults != 0 || len(result.Documents) == 0 {
		var first = pb.RunQueryResponse{
			Transaction:    newToken,
			ReadTime:       readTime,
			SkippedResults: result.SkippedResults,
		}
		if err = stream.Send(&first); err != nil {
			return err
		}
	}

	for i := range result.Documents {
		if txn != nil {
			txn.RecordRead(result.Documents[i].Name, result.Documents[i].UpdateTime)
		}
		var resp = pb.RunQueryResponse{
			Document: &result.Documents[i],
			ReadTime: readTime,
		}
		if err = stream.Send(&resp); err != nil {
			return err
		}
	}
	return nil
}

// ListCollectionIds dispatches the DocstoreServer.ListCollectionIds API.
func (svc *Service) ListCollectionIds(ctx context.Context, req *pb.ListCollectionIdsRequest) (resp *pb.ListCollectionIdsResponse, err error) {
	defer instrumentDocstoreRPC("ListCollectionIds", &err)()

	if err = req.Validate(); err != nil {
		return nil, pb.NewStatusError(pb.StatusInvalidArgument, "%s", err)
	} else if err = svc.checkDatabase(pb.DatabaseOfPath(req.Parent)); err != nil {
		return nil, err
	}

	var pageSize = req.PageSize
	if pageSize == 0 {
		pageSize = svc.cfg.DefaultPageSize
	}

	var page pageToken
	if len(req.PageToken) != 0 {
		if err = decodeToken(req.PageToken, &page); err != nil {
			return nil, err
		} else if err = svc.store.CheckReadTime(page.ReadTime); err != nil {
			return nil, err
		}
	} else {
		page.ReadTime = svc.store.ReadTime()
	}

	// Collection ids are the distinct first path segments under the parent,
	// considering only documents which exist at the snapshot.
	var seen = make(map[string]struct{})
	svc.store.AscendPaths(req.Parent+"/", page.ReadTime, func(path string, exists bool) bool {
		if exists {
			var id, _, _ = strings.Cut(path[len(req.Parent)+1:], "/")
			seen[id] = struct{}{}
		}
		return true
	})

	var ids = make([]string, 0, len(seen))
	for id := range seen {
		if page.LastID == "" || id > page.LastID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	resp = new(pb.ListCollectionIdsResponse)
	if len(ids) > int(pageSize) {
		ids = ids[:pageSize]
		resp.NextPageToken = encodeToken(pageToken{
			ReadTime: page.ReadTime,
			LastID:   ids[pageSize-1],
		})
	}
	resp.CollectionIDs = ids
	return resp, nil
}
