package docstore

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	pb "go.scrivodb.dev/core/docstore/protocol"
)

// CreateDocument dispatches the DocstoreServer.CreateDocument API.
func (svc *Service) CreateDocument(ctx context.Context, req *pb.CreateDocumentRequest) (doc *pb.Document, err error) {
	defer instrumentDocstoreRPC("CreateDocument", &err)()

	if err = req.Validate(); err != nil {
		return nil, pb.NewStatusError(pb.StatusInvalidArgument, "%s", err)
	} else if err = svc.checkDatabase(pb.DatabaseOfPath(req.Parent)); err != nil {
		return nil, err
	}

	var name = req.Parent + "/" + req.CollectionID + "/" + req.DocumentID
	if req.DocumentID == "" {
		name = req.Parent + "/" + req.CollectionID + "/" + newDocumentID()
	} else if req.Document.Name != "" && req.Document.Name != name {
		return nil, pb.NewStatusError(pb.StatusInvalidArgument,
			"Document.Name (%s) does not match Parent, CollectionID and DocumentID (%s)",
			req.Document.Name, name)
	}

	var exists = false
	var write = pb.Write{
		Op: pb.WriteUpdate{
			Doc: pb.Document{Name: name, Fields: req.Document.Fields},
		},
		CurrentDocument: &pb.Precondition{Exists: &exists},
	}
	resp, err := svc.store.Commit([]pb.Write{write}, nil)
	if err != nil {
		// A failed create precondition surfaces as ALREADY_EXISTS.
		if pb.StatusOf(err) == pb.StatusFailedPrecondition {
			return nil, pb.NewStatusError(pb.StatusAlreadyExists,
				"document already exists (%s)", name)
		}
		return nil, err
	}
	return svc.readBack(name, resp.CommitTime, req.Mask)
}

// UpdateDocument dispatches the DocstoreServer.UpdateDocument API. Absent an
// UpdateMask the document is replaced in full; absent a CurrentDocument
// precondition it is created if missing.
func (svc *Service) UpdateDocument(ctx context.Context, req *pb.UpdateDocumentRequest) (doc *pb.Document, err error) {
	defer instrumentDocstoreRPC("UpdateDocument", &err)()

	if err = req.Validate(); err != nil {
		return nil, pb.NewStatusError(pb.StatusInvalidArgument, "%s", err)
	} else if err = svc.checkDatabase(pb.DatabaseOfPath(req.Document.Name)); err != nil {
		return nil, err
	}

	var write = pb.Write{
		Op: pb.WriteUpdate{
			Doc:  pb.Document{Name: req.Document.Name, Fields: req.Document.Fields},
			Mask: req.UpdateMask,
		},
		CurrentDocument: req.CurrentDocument,
	}
	resp, err := svc.store.Commit([]pb.Write{write}, nil)
	if err != nil {
		return nil, err
	}
	return svc.readBack(req.Document.Name, resp.CommitTime, req.Mask)
}

// DeleteDocument dispatches the DocstoreServer.DeleteDocument API.
// Deleting a document which does not exist is not an error, unless the
// request carries a precondition which fails.
func (svc *Service) DeleteDocument(ctx context.Context, req *pb.DeleteDocumentRequest) (resp *pb.DeleteDocumentResponse, err error) {
	defer instrumentDocstoreRPC("DeleteDocument", &err)()

	if err = req.Validate(); err != nil {
		return nil, pb.NewStatusError(pb.StatusInvalidArgument, "%s", err)
	} else if err = svc.checkDatabase(pb.DatabaseOfPath(req.Name)); err != nil {
		return nil, err
	}

	var write = pb.Write{
		Op:              pb.WriteDelete{Name: req.Name},
		CurrentDocument: req.CurrentDocument,
	}
	if _, err = svc.store.Commit([]pb.Write{write}, nil); err != nil {
		return nil, err
	}
	return &pb.DeleteDocumentResponse{}, nil
}

// readBack returns the post-commit state of |name| as of |commitTime|.
func (svc *Service) readBack(name string, commitTime time.Time, mask *pb.DocumentMask) (*pb.Document, error) {
	var doc, err = svc.store.GetAt(name, commitTime)
	if err != nil {
		return nil, err
	} else if doc == nil {
		return nil, pb.NewStatusError(pb.StatusInternal,
			"document %s is unexpectedly absent after commit", name)
	}
	if mask != nil {
		doc.Fields = pb.ApplyMask(doc.Fields, mask)
	}
	return doc, nil
}

func newDocumentID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}
