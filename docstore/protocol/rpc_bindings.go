package protocol

import (
	"context"

	"google.golang.org/grpc"
)

// This file hand-maintains the gRPC bindings of the Docstore service, in the
// shape code generation would otherwise produce. Bindings pin the service's
// named codec, so that callers and handlers exchange the plain Go message
// types of this package.

// ServiceName is the fully-qualified Docstore gRPC service name.
const ServiceName = "scrivo.Docstore"

// DocstoreClient is the client API of the Docstore service.
type DocstoreClient interface {
	GetDocument(ctx context.Context, in *GetDocumentRequest, opts ...grpc.CallOption) (*Document, error)
	ListDocuments(ctx context.Context, in *ListDocumentsRequest, opts ...grpc.CallOption) (*ListDocumentsResponse, error)
	CreateDocument(ctx context.Context, in *CreateDocumentRequest, opts ...grpc.CallOption) (*Document, error)
	UpdateDocument(ctx context.Context, in *UpdateDocumentRequest, opts ...grpc.CallOption) (*Document, error)
	DeleteDocument(ctx context.Context, in *DeleteDocumentRequest, opts ...grpc.CallOption) (*DeleteDocumentResponse, error)
	BatchGetDocuments(ctx context.Context, in *BatchGetDocumentsRequest, opts ...grpc.CallOption) (Docstore_BatchGetDocumentsClient, error)
	BeginTransaction(ctx context.Context, in *BeginTransactionRequest, opts ...grpc.CallOption) (*BeginTransactionResponse, error)
	Commit(ctx context.Context, in *CommitRequest, opts ...grpc.CallOption) (*CommitResponse, error)
	Rollback(ctx context.Context, in *RollbackRequest, opts ...grpc.CallOption) (*RollbackResponse, error)
	RunQuery(ctx context.Context, in *RunQueryRequest, opts ...grpc.CallOption) (Docstore_RunQueryClient, error)
	Write(ctx context.Context, opts ...grpc.CallOption) (Docstore_WriteClient, error)
	Listen(ctx context.Context, opts ...grpc.CallOption) (Docstore_ListenClient, error)
	ListCollectionIds(ctx context.Context, in *ListCollectionIdsRequest, opts ...grpc.CallOption) (*ListCollectionIdsResponse, error)
}

// DocstoreServer is the server API of the Docstore service.
type DocstoreServer interface {
	GetDocument(context.Context, *GetDocumentRequest) (*Document, error)
	ListDocuments(context.Context, *ListDocumentsRequest) (*ListDocumentsResponse, error)
	CreateDocument(context.Context, *CreateDocumentRequest) (*Document, error)
	UpdateDocument(context.Context, *UpdateDocumentRequest) (*Document, error)
	DeleteDocument(context.Context, *DeleteDocumentRequest) (*DeleteDocumentResponse, error)
	BatchGetDocuments(*BatchGetDocumentsRequest, Docstore_BatchGetDocumentsServer) error
	BeginTransaction(context.Context, *BeginTransactionRequest) (*BeginTransactionResponse, error)
	Commit(context.Context, *CommitRequest) (*CommitResponse, error)
	Rollback(context.Context, *RollbackRequest) (*RollbackResponse, error)
	RunQuery(*RunQueryRequest, Docstore_RunQueryServer) error
	Write(Docstore_WriteServer) error
	Listen(Docstore_ListenServer) error
	ListCollectionIds(context.Context, *ListCollectionIdsRequest) (*ListCollectionIdsResponse, error)
}

// Stream interfaces of the server-streaming and bidirectional RPCs.
type (
	Docstore_BatchGetDocumentsClient interface {
		Recv() (*BatchGetDocumentsResponse, error)
		grpc.ClientStream
	}
	Docstore_BatchGetDocumentsServer interface {
		Send(*BatchGetDocumentsResponse) error
		grpc.ServerStream
	}
	Docstore_RunQueryClient interface {
		Recv() (*RunQueryResponse, error)
		grpc.ClientStream
	}
	Docstore_RunQueryServer interface {
		Send(*RunQueryResponse) error
		grpc.ServerStream
	}
	Docstore_WriteClient interface {
		Send(*WriteRequest) error
		Recv() (*WriteResponse, error)
		grpc.ClientStream
	}
	Docstore_WriteServer interface {
		Send(*WriteResponse) error
		Recv() (*WriteRequest, error)
		grpc.ServerStream
	}
	Docstore_ListenClient interface {
		Send(*ListenRequest) error
		Recv() (*ListenResponse, error)
		grpc.ClientStream
	}
	Docstore_ListenServer interface {
		Send(*ListenResponse) error
		Recv() (*ListenRequest, error)
		grpc.ServerStream
	}
)

type docstoreClient struct{ cc *grpc.ClientConn }

// NewDocstoreClient adapts a ClientConn to the DocstoreClient API.
func NewDocstoreClient(cc *grpc.ClientConn) DocstoreClient { return &docstoreClient{cc} }

// withCodec pins the service codec ahead of caller options.
func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *docstoreClient) GetDocument(ctx context.Context, in *GetDocumentRequest, opts ...grpc.CallOption) (*Document, error) {
	var out = new(Document)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/GetDocument", in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *docstoreClient) ListDocuments(ctx context.Context, in *ListDocumentsRequest, opts ...grpc.CallOption) (*ListDocumentsResponse, error) {
	var out = new(ListDocumentsResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/ListDocuments", in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *docstoreClient) CreateDocument(ctx context.Context, in *CreateDocumentRequest, opts ...grpc.CallOption) (*Document, error) {
	var out = new(Document)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/CreateDocument", in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *docstoreClient) UpdateDocument(ctx context.Context, in *UpdateDocumentRequest, opts ...grpc.CallOption) (*Document, error) {
	var out = new(Document)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/UpdateDocument", in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *docstoreClient) DeleteDocument(ctx context.Context, in *DeleteDocumentRequest, opts ...grpc.CallOption) (*DeleteDocumentResponse, error) {
	var out = new(DeleteDocumentResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/DeleteDocument", in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *docstoreClient) BatchGetDocuments(ctx context.Context, in *BatchGetDocumentsRequest, opts ...grpc.CallOption) (Docstore_BatchGetDocumentsClient, error) {
	var stream, err = c.cc.NewStream(ctx, &_DocstoreServiceDesc.Streams[0], "/"+ServiceName+"/BatchGetDocuments", withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	var x = &docstoreBatchGetDocumentsClient{stream}
	if err = x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err = x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type docstoreBatchGetDocumentsClient struct{ grpc.ClientStream }

func (x *docstoreBatchGetDocumentsClient) Recv() (*BatchGetDocumentsResponse, error) {
	var m = new(BatchGetDocumentsResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *docstoreClient) BeginTransaction(ctx context.Context, in *BeginTransactionRequest, opts ...grpc.CallOption) (*BeginTransactionResponse, error) {
	var out = new(BeginTransactionResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/BeginTransaction", in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *docstoreClient) Commit(ctx context.Context, in *CommitRequest, opts ...grpc.CallOption) (*CommitResponse, error) {
	var out = new(CommitResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Commit", in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *docstoreClient) Rollback(ctx context.Context, in *RollbackRequest, opts ...grpc.CallOption) (*RollbackResponse, error) {
	var out = new(RollbackResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Rollback", in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *docstoreClient) RunQuery(ctx context.Context, in *RunQueryRequest, opts ...grpc.CallOption) (Docstore_RunQueryClient, error) {
	var stream, err = c.cc.NewStream(ctx, &_DocstoreServiceDesc.Streams[1], "/"+ServiceName+"/RunQuery", withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	var x = &docstoreRunQueryClient{stream}
	if err = x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err = x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type docstoreRunQueryClient struct{ grpc.ClientStream }

func (x *docstoreRunQueryClient) Recv() (*RunQueryResponse, error) {
	var m = new(RunQueryResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *docstoreClient) Write(ctx context.Context, opts ...grpc.CallOption) (Docstore_WriteClient, error) {
	var stream, err = c.cc.NewStream(ctx, &_DocstoreServiceDesc.Streams[2], "/"+ServiceName+"/Write", withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return &docstoreWriteClient{stream}, nil
}

type docstoreWriteClient struct{ grpc.ClientStream }

func (x *docstoreWriteClient) Send(m *WriteRequest) error { return x.ClientStream.SendMsg(m) }
func (x *docstoreWriteClient) Recv() (*WriteResponse, error) {
	var m = new(WriteResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *docstoreClient) Listen(ctx context.Context, opts ...grpc.CallOption) (Docstore_ListenClient, error) {
	var stream, err = c.cc.NewStream(ctx, &_DocstoreServiceDesc.Streams[3], "/"+ServiceName+"/Listen", withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return &docstoreListenClient{stream}, nil
}

type docstoreListenClient struct{ grpc.ClientStream }

func (x *docstoreListenClient) Send(m *ListenRequest) error { return x.ClientStream.SendMsg(m) }
func (x *docstoreListenClient) Recv() (*ListenResponse, error) {
	var m = new(ListenResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *docstoreClient) ListCollectionIds(ctx context.Context, in *ListCollectionIdsRequest, opts ...grpc.CallOption) (*ListCollectionIdsResponse, error) {
	var out = new(ListCollectionIdsResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/ListCollectionIds", in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterDocstoreServer registers the DocstoreServer implementation with the
// gRPC server.
func RegisterDocstoreServer(s *grpc.Server, srv DocstoreServer) {
	s.RegisterService(&_DocstoreServiceDesc, srv)
}

func _Docstore_GetDocument_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	var in = new(GetDocumentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DocstoreServer).GetDocument(ctx, in)
	}
	var info = &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetDocument"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DocstoreServer).GetDocument(ctx, req.(*GetDocumentRequest))
	})
}

func _Docstore_ListDocuments_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	var in = new(ListDocumentsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DocstoreServer).ListDocuments(ctx, in)
	}
	var info = &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ListDocuments"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DocstoreServer).ListDocuments(ctx, req.(*ListDocumentsRequest))
	})
}

func _Docstore_CreateDocument_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	var in = new(CreateDocumentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DocstoreServer).CreateDocument(ctx, in)
	}
	var info = &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/CreateDocument"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DocstoreServer).CreateDocument(ctx, req.(*CreateDocumentRequest))
	})
}

func _Docstore_UpdateDocument_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	var in = new(UpdateDocumentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DocstoreServer).UpdateDocument(ctx, in)
	}
	var info = &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/UpdateDocument"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DocstoreServer).UpdateDocument(ctx, req.(*UpdateDocumentRequest))
	})
}

func _Docstore_DeleteDocument_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	var in = new(DeleteDocumentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DocstoreServer).DeleteDocument(ctx, in)
	}
	var info = &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/DeleteDocument"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DocstoreServer).DeleteDocument(ctx, req.(*DeleteDocumentRequest))
	})
}

func _Docstore_BeginTransaction_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	var in = new(BeginTransactionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DocstoreServer).BeginTransaction(ctx, in)
	}
	var info = &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/BeginTransaction"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DocstoreServer).BeginTransaction(ctx, req.(*BeginTransactionRequest))
	})
}

func _Docstore_Commit_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	var in = new(CommitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DocstoreServer).Commit(ctx, in)
	}
	var info = &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Commit"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DocstoreServer).Commit(ctx, req.(*CommitRequest))
	})
}

func _Docstore_Rollback_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	var in = new(RollbackRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DocstoreServer).Rollback(ctx, in)
	}
	var info = &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Rollback"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DocstoreServer).Rollback(ctx, req.(*RollbackRequest))
	})
}

func _Docstore_ListCollectionIds_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	var in = new(ListCollectionIdsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DocstoreServer).ListCollectionIds(ctx, in)
	}
	var info = &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ListCollectionIds"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DocstoreServer).ListCollectionIds(ctx, req.(*ListCollectionIdsRequest))
	})
}

func _Docstore_BatchGetDocuments_Handler(srv interface{}, stream grpc.ServerStream) error {
	var in = new(BatchGetDocumentsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DocstoreServer).BatchGetDocuments(in, &docstoreBatchGetDocumentsServer{stream})
}

type docstoreBatchGetDocumentsServer struct{ grpc.ServerStream }

func (x *docstoreBatchGetDocumentsServer) Send(m *BatchGetDocumentsResponse) error {
	return x.ServerStream.SendMsg(m)
}

func _Docstore_RunQuery_Handler(srv interface{}, stream grpc.ServerStream) error {
	var in = new(RunQueryRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DocstoreServer).RunQuery(in, &docstoreRunQueryServer{stream})
}

type docstoreRunQueryServer struct{ grpc.ServerStream }

func (x *docstoreRunQueryServer) Send(m *RunQueryResponse) error { return x.ServerStream.SendMsg(m) }

func _Docstore_Write_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(DocstoreServer).Write(&docstoreWriteServer{stream})
}

type docstoreWriteServer struct{ grpc.ServerStream }

func (x *docstoreWriteServer) Send(m *WriteResponse) error { return x.ServerStream.SendMsg(m) }
func (x *docstoreWriteServer) Recv() (*WriteRequest, error) {
	var m = new(WriteRequest)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _Docstore_Listen_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(DocstoreServer).Listen(&docstoreListenServer{stream})
}

type docstoreListenServer struct{ grpc.ServerStream }

func (x *docstoreListenServer) Send(m *ListenResponse) error { return x.ServerStream.SendMsg(m) }
func (x *docstoreListenServer) Recv() (*ListenRequest, error) {
	var m = new(ListenRequest)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

var _DocstoreServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DocstoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetDocument", Handler: _Docstore_GetDocument_Handler},
		{MethodName: "ListDocuments", Handler: _Docstore_ListDocuments_Handler},
		{MethodName: "CreateDocument", Handler: _Docstore_CreateDocument_Handler},
		{MethodName: "UpdateDocument", Handler: _Docstore_UpdateDocument_Handler},
		{MethodName: "DeleteDocument", Handler: _Docstore_DeleteDocument_Handler},
		{MethodName: "BeginTransaction", Handler: _Docstore_BeginTransaction_Handler},
		{MethodName: "Commit", Handler: _Docstore_Commit_Handler},
		{MethodName: "Rollback", Handler: _Docstore_Rollback_Handler},
		{MethodName: "ListCollectionIds", Handler: _Docstore_ListCollectionIds_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "BatchGetDocuments", Handler: _Docstore_BatchGetDocuments_Handler, ServerStreams: true},
		{StreamName: "RunQuery", Handler: _Docstore_RunQuery_Handler, ServerStreams: true},
		{StreamName: "Write", Handler: _Docstore_Write_Handler, ServerStreams: true, ClientStreams: true},
		{StreamName: "Listen", Handler: _Docstore_Listen_Handler, ServerStreams: true, ClientStreams: true},
	},
}
