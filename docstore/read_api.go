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
)

// GetDocument dispatches the DocstoreServer.GetDocument API.
func (svc *Service) GetDocument(ctx context.Context, req *pb.GetDocumentRequest) (doc *pb.Document, err error) {
	defer instrumentDocstoreRPC("GetDocument", &err)()

	if err = req.Validate(); err != nil {
		return nil, pb.NewStatusError(pb.StatusInvalidArgument, "%s", err)
	} else if err = svc.checkDatabase(pb.DatabaseOfPath(req.Name)); err != nil {
		return nil, err
	}

	readTime, txn, err := svc.resolveReadTime(req.Transaction, req.ReadTime)
	if err != nil {
		return nil, err
	}
	if doc, err = svc.store.GetAt(req.Name, readTime); err != nil {
		return nil, err
	}
	if txn != nil {
		txn.RecordRead(req.Name, updateTimeOf(doc))
	}
	if doc == nil {
		return nil, pb.NewStatusError(pb.StatusNotFound, "no such document (%s)", req.Name)
	}
	if req.Mask != nil {
		doc.Fields = pb.ApplyMask(doc.Fields, req.Mask)
	}
	return doc, nil
}

// ListDocuments dispatches the DocstoreServer.ListDocuments API.
func (svc *Service) ListDocuments(ctx context.Context, req *pb.ListDocumentsRequest) (resp *pb.ListDocumentsResponse, err error) {
	defer instrumentDocstoreRPC("ListDocuments", &err)()

	if err = req.Validate(); err != nil {
		return nil, pb.NewStatusError(pb.StatusInvalidArgument, "%s", err)
	} else if err = svc.checkDatabase(pb.DatabaseOfPath(req.Parent)); err != nil {
		return nil, err
	} else if req.ShowMissing && len(req.OrderBy) != 0 {
		return nil, pb.NewStatusError(pb.StatusInvalidArgument,
			"ShowMissing cannot be combined with OrderBy")
	}

	var pageSize = req.PageSize
	if pageSize == 0 {
		pageSize = svc.cfg.DefaultPageSize
	}

	// A page token pins all pages of the list to one snapshot.
	var page pageToken
	if len(req.PageToken) != 0 {
		if err = decodeToken(req.PageToken, &page); err != nil {
			return nil, err
		} else if err = svc.store.CheckReadTime(page.ReadTime); err != nil {
			return nil, err
		}
	} else if page.ReadTime, _, err = svc.resolveReadTime(req.Transaction, req.ReadTime); err != nil {
		return nil, err
	}

	if req.ShowMissing {
		return svc.listWithMissing(req, pageSize, page)
	}

	var spec = pb.StructuredQuery{
		From:    []pb.CollectionSelector{{CollectionID: req.CollectionID}},
		OrderBy: req.OrderBy,
		StartAt: page.Cursor,
	}
	// Over-fetch by one to learn whether a further page exists.
	var limit = pageSize + 1
	spec.Limit = &limit

	q, err := query.Compile(req.Parent, &spec)
	if err != nil {
		return nil, err
	}
	result, err := q.Evaluate(svc.store, page.ReadTime)
	if err != nil {
		return nil, err
	}

	resp = new(pb.ListDocumentsResponse)
	resp.Documents = result.Documents

	if len(resp.Documents) > int(pageSize) {
		resp.Documents = resp.Documents[:pageSize]
		var last = &resp.Documents[pageSize-1]
		resp.NextPageToken = encodeToken(pageToken{
			ReadTime: page.ReadTime,
			Cursor:   &pb.Cursor{Values: q.OrderKey(last)},
		})
	}
	if req.Mask != nil {
		for i := range resp.Documents {
			resp.Documents[i].Fields = pb.ApplyMask(resp.Documents[i].Fields, req.Mask)
		}
	}
	return resp, nil
}

// listWithMissing lists direct children of a collection in path order,
// including placeholder documents which exist only through descendants.
func (svc *Service) listWithMissing(req *pb.ListDocumentsRequest, pageSize int32, page pageToken) (*pb.ListDocumentsResponse, error) {
	var prefix = req.Parent + "/" + req.CollectionID + "/"

	// children maps each direct child document path to whether the document
	// itself exists. A child observed only through live descendants is a
	// placeholder (exists false).
	var children = make(map[string]bool)
	svc.store.AscendPaths(prefix, page.ReadTime, func(path string, exists bool) bool {
		var childID, deeper, _ = strings.Cut(path[len(prefix):], "/")
		var child = prefix + childID

		if deeper == "" {
			if _, ok := children[child]; !ok || exists {
				children[child] = exists
			}
		} else if exists {
			if _, ok := children[child]; !ok {
				children[child] = false
			}
		}
		return true
	})

	var paths = make([]string, 0, len(children))
	for p := range children {
		// A tombstone with no live descendants is not listed at all.
		if children[p] || hasPlaceholderDescendant(svc.store, p, page.ReadTime) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	var resp = new(pb.ListDocumentsResponse)
	for _, p := range paths {
		if page.LastID != "" && p <= page.LastID {
			continue
		}
		if len(resp.Documents) == int(pageSize) {
			resp.NextPageToken = encodeToken(pageToken{
				ReadTime: page.ReadTime,
				LastID:   resp.Documents[pageSize-1].Name,
			})
			break
		}
		if children[p] {
			var doc, err = svc.store.GetAt(p, page.ReadTime)
			if err != nil {
				return nil, err
			} else if doc == nil {
				continue // Raced out of the snapshot index.
			}
			if req.Mask != nil {
				doc.Fields = pb.ApplyMask(doc.Fields, req.Mask)
			}
			resp.Documents = append(resp.Documents, *doc)
		} else {
			resp.Documents = append(resp.Documents, pb.Document{Name: p})
		}
	}
	return resp, nil
}

func hasPlaceholderDescendant(store *storage.Store, path string, readTime time.Time) bool {
	var found bool
	store.AscendPaths(path+"/", readTime, func(p string, exists bool) bool {
		found = exists
		return !exists
	})
	return found
}

// BatchGetDocuments dispatches the DocstoreServer.BatchGetDocuments API.
func (svc *Service) BatchGetDocuments(req *pb.BatchGetDocumentsRequest, stream pb.Docstore_BatchGetDocumentsServer) (err error) {
	defer instrumentDocstoreRPC("BatchGetDocuments", &err)()

	defer func() {
		if err != nil {
			log.WithFields(log.Fields{"err": err, "req": req}).
				Warn("served BatchGetDocuments RPC failed")
		}
	}()

	if err = req.Validate(); err != nil {
		return pb.NewStatusError(pb.StatusInvalidArgument, "%s", err)
	} else if err = svc.checkDatabase(req.Database); err != nil {
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

	for _, name := range req.Documents {
		var doc *pb.Document
		if doc, err = svc.store.GetAt(name, readTime); err != nil {
			return err
		}
		if txn != nil {
			txn.RecordRead(name, updateTimeOf(doc))
		}

		var resp = pb.BatchGetDocumentsResponse{
			Transaction: newToken,
			ReadTime:    readTime,
		}
		newToken = nil // First response only.

		if doc == nil {
			resp.Missing = name
		} else {
			if req.Mask != nil {
				doc.Fields = pb.ApplyMask(doc.Fields, req.Mask)
			}
			resp.Found = doc
		}
		if err = stream.Send(&resp); err != nil {
			return err
		}
	}
	return nil
}

func updateTimeOf(doc *pb.Document) time.Time {
	if doc == nil {
		return time.Time{}
	}
	return doc.UpdateTime
}
