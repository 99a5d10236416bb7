package docstore

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	pb "go.scrivodb.dev/core/docstore/protocol"
	"google.golang.org/grpc"
)

// writeStreamStub stubs a server-side Write stream over scripted requests.
type writeStreamStub struct {
	grpc.ServerStream
	reqs  []*pb.WriteRequest
	resps []pb.WriteResponse
}

func (s *writeStreamStub) Recv() (*pb.WriteRequest, error) {
	if len(s.reqs) == 0 {
		return nil, io.EOF
	}
	var req = s.reqs[0]
	s.reqs = s.reqs[1:]
	return req, nil
}

func (s *writeStreamStub) Send(m *pb.WriteResponse) error {
	s.resps = append(s.resps, *m)
	return nil
}

func (s *writeStreamStub) decodeSeq(t *testing.T, i int) streamToken {
	t.Helper()
	var tok streamToken
	require.NoError(t, decodeToken(s.resps[i].StreamToken, &tok))
	return tok
}

func updateWrite(id string, v int64) pb.Write {
	return pb.Write{Op: pb.WriteUpdate{Doc: pb.Document{
		Name:   testParent + "/users/" + id,
		Fields: pb.MapValue{"v": pb.IntegerValue(v)},
	}}}
}

func TestWriteStreamEstablishAndCommit(t *testing.T) {
	var svc = newTestService()

	var stream = &writeStreamStub{reqs: []*pb.WriteRequest{
		{Database: testDatabase},
		{Writes: []pb.Write{updateWrite("alice", 1)}},
		{Writes: []pb.Write{updateWrite("alice", 2), updateWrite("bob", 1)}},
	}}
	require.NoError(t, svc.Write(stream))
	require.Len(t, stream.resps, 3)

	// The establishing response names the session and its current sequence.
	require.NotEmpty(t, stream.resps[0].StreamID)
	require.Equal(t,
		streamToken{StreamID: stream.resps[0].StreamID, Seq: 0}, stream.decodeSeq(t, 0))

	// Each batch commits atomically and bumps the sequence.
	require.Equal(t, int64(1), stream.decodeSeq(t, 1).Seq)
	require.Len(t, stream.resps[1].WriteResults, 1)
	require.False(t, stream.resps[1].CommitTime.IsZero())

	require.Equal(t, int64(2), stream.decodeSeq(t, 2).Seq)
	require.Len(t, stream.resps[2].WriteResults, 2)
	require.True(t, stream.resps[2].CommitTime.After(stream.resps[1].CommitTime))

	var doc, err = svc.store.GetAt(testParent+"/users/alice", svc.store.ReadTime())
	require.NoError(t, err)
	require.Equal(t, pb.IntegerValue(2), doc.Fields["v"])
}

func TestWriteStreamFirstRequestCases(t *testing.T) {
	var svc = newTestService()

	// The first request must name the database.
	var stream = &writeStreamStub{reqs: []*pb.WriteRequest{{}}}
	require.EqualError(t, svc.Write(stream), "rpc error: code = InvalidArgument desc = "+
		"the first request of a Write stream must name the database")

	// It must not carry writes.
	stream = &writeStreamStub{reqs: []*pb.WriteRequest{
		{Database: testDatabase, Writes: []pb.Write{updateWrite("alice", 1)}},
	}}
	require.EqualError(t, svc.Write(stream), "rpc error: code = InvalidArgument desc = "+
		"the first request of a Write stream must not carry writes")

	// A StreamID without a StreamToken cannot resume.
	stream = &writeStreamStub{reqs: []*pb.WriteRequest{
		{Database: testDatabase, StreamID: "some-stream"},
	}}
	require.EqualError(t, svc.Write(stream), "rpc error: code = InvalidArgument desc = "+
		"resuming a Write stream requires both StreamID and StreamToken")

	stream = &writeStreamStub{reqs: []*pb.WriteRequest{
		{Database: "databases/other"},
	}}
	require.Equal(t, pb.StatusNotFound, pb.StatusOf(svc.Write(stream)))
}

func TestWriteStreamPureAcknowledgement(t *testing.T) {
	var svc = newTestService()

	// Establish and commit one batch.
	var stream = &writeStreamStub{reqs: []*pb.WriteRequest{
		{Database: testDatabase},
		{Writes: []pb.Write{updateWrite("alice", 1)}},
	}}
	require.NoError(t, svc.Write(stream))
	var id = stream.resps[0].StreamID
	var token = stream.resps[1].StreamToken

	// Resume and acknowledge without writes: the response confirms the
	// session's current sequence.
	stream = &writeStreamStub{reqs: []*pb.WriteRequest{
		{Database: testDatabase, StreamID: id, StreamToken: token},
		{StreamToken: token},
	}}
	require.NoError(t, svc.Write(stream))
	require.Len(t, stream.resps, 2)
	require.Empty(t, stream.resps[1].WriteResults)
	require.Equal(t, streamToken{StreamID: id, Seq: 1}, stream.decodeSeq(t, 1))
}

func TestWriteStreamAcknowledgementWindow(t *testing.T) {
	var svc = newTestService()
	svc.cfg.MaxUnackedResponses = 2

	var stream = &writeStreamStub{reqs: []*pb.WriteRequest{
		{Database: testDatabase},
		{Writes: []pb.Write{updateWrite("alice", 1)}},
		{Writes: []pb.Write{updateWrite("alice", 2)}},
		{Writes: []pb.Write{updateWrite("alice", 3)}},
	}}
	var err = svc.Write(stream)
	require.EqualError(t, err, "rpc error: code = ResourceExhausted desc = "+
		"the stream has 2 un-acknowledged responses; acknowledge stream tokens to proceed")

	// The first two batches committed before the window closed.
	require.Len(t, stream.resps, 3)
	var doc, _ = svc.store.GetAt(testParent+"/users/alice", svc.store.ReadTime())
	require.Equal(t, pb.IntegerValue(2), doc.Fields["v"])

	// Acknowledging on resume re-opens the window for further batches.
	var id = stream.resps[0].StreamID
	stream = &writeStreamStub{reqs: []*pb.WriteRequest{
		{Database: testDatabase, StreamID: id, StreamToken: stream.resps[2].StreamToken},
		{Writes: []pb.Write{updateWrite("alice", 3)}},
		{Writes: []pb.Write{updateWrite("alice", 4)}},
	}}
	require.NoError(t, svc.Write(stream))
	require.Len(t, stream.resps, 3)

	doc, _ = svc.store.GetAt(testParent+"/users/alice", svc.store.ReadTime())
	require.Equal(t, pb.IntegerValue(4), doc.Fields["v"])
}

func TestWriteStreamResumption(t *testing.T) {
	var svc = newTestService()

	var stream = &writeStreamStub{reqs: []*pb.WriteRequest{
		{Database: testDatabase},
		{Writes: []pb.Write{updateWrite("alice", 1)}},
	}}
	require.NoError(t, svc.Write(stream))
	var id = stream.resps[0].StreamID
	var token = stream.resps[1].StreamToken

	// Resuming with the last persisted token picks up at its sequence.
	stream = &writeStreamStub{reqs: []*pb.WriteRequest{
		{Database: testDatabase, StreamID: id, StreamToken: token},
		{Writes: []pb.Write{updateWrite("alice", 2)}},
	}}
	require.NoError(t, svc.Write(stream))
	require.Equal(t, streamToken{StreamID: id, Seq: 1}, stream.decodeSeq(t, 0))
	require.Equal(t, int64(2), stream.decodeSeq(t, 1).Seq)

	// An unknown stream id is NOT_FOUND.
	stream = &writeStreamStub{reqs: []*pb.WriteRequest{
		{Database: testDatabase, StreamID: "unknown",
			StreamToken: encodeToken(streamToken{StreamID: "unknown"})},
	}}
	require.EqualError(t, svc.Write(stream),
		"rpc error: code = NotFound desc = no such stream (unknown)")

	// A token minted for another stream cannot resume this one.
	stream = &writeStreamStub{reqs: []*pb.WriteRequest{
		{Database: testDatabase, StreamID: id,
			StreamToken: encodeToken(streamToken{StreamID: "other", Seq: 1})},
	}}
	require.EqualError(t, svc.Write(stream),
		"rpc error: code = InvalidArgument desc = stream token is of another stream")

	// A token acknowledging an un-issued sequence is rejected.
	stream = &writeStreamStub{reqs: []*pb.WriteRequest{
		{Database: testDatabase, StreamID: id,
			StreamToken: encodeToken(streamToken{StreamID: id, Seq: 99})},
	}}
	require.EqualError(t, svc.Write(stream), "rpc error: code = InvalidArgument desc = "+
		"stream token acknowledges sequence 99, which has not been issued")
}

func TestWriteStreamTokenChecksWithinStream(t *testing.T) {
	var svc = newTestService()

	var other = &writeStreamStub{reqs: []*pb.WriteRequest{{Database: testDatabase}}}
	require.NoError(t, svc.Write(other))

	// Within an established stream, an echoed token must belong to it.
	var stream = &writeStreamStub{reqs: []*pb.WriteRequest{
		{Database: testDatabase},
		{StreamToken: other.resps[0].StreamToken,
			Writes: []pb.Write{updateWrite("alice", 1)}},
	}}
	require.EqualError(t, svc.Write(stream),
		"rpc error: code = InvalidArgument desc = stream token is of another stream")

	// An in-stream acknowledgement of an un-issued sequence is rejected.
	var id = stream.resps[0].StreamID
	stream = &writeStreamStub{reqs: []*pb.WriteRequest{
		{Database: testDatabase, StreamID: id, StreamToken: stream.resps[0].StreamToken},
		{StreamToken: encodeToken(streamToken{StreamID: id, Seq: 7})},
	}}
	require.EqualError(t, svc.Write(stream), "rpc error: code = InvalidArgument desc = "+
		"stream token acknowledges sequence 7, which has not been issued")

	// A mismatched request StreamID is rejected.
	var third = &writeStreamStub{reqs: []*pb.WriteRequest{
		{Database: testDatabase},
		{StreamID: "someone-else"},
	}}
	var err = svc.Write(third)
	require.Equal(t, pb.StatusInvalidArgument, pb.StatusOf(err))
	require.Contains(t, err.Error(), "does not match the stream's")
}

func TestWriteStreamActiveSessionCannotBeResumed(t *testing.T) {
	var svc = newTestService()

	var session = svc.createWriteStream()

	var stream = &writeStreamStub{reqs: []*pb.WriteRequest{
		{Database: testDatabase, StreamID: session.id,
			StreamToken: encodeToken(streamToken{StreamID: session.id})},
	}}
	require.EqualError(t, svc.Write(stream), "rpc error: code = FailedPrecondition desc = "+
		"stream "+session.id+" is already active")
}
