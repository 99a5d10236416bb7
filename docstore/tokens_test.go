package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	pb "go.scrivodb.dev/core/docstore/protocol"
)

func TestTokenRoundTrips(t *testing.T) {
	var readTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	var rt resumeToken
	require.NoError(t, decodeToken(encodeToken(resumeToken{ReadTime: readTime}), &rt))
	require.Equal(t, resumeToken{ReadTime: readTime}, rt)

	var pt pageToken
	require.NoError(t, decodeToken(encodeToken(pageToken{
		ReadTime: readTime,
		Cursor: &pb.Cursor{Values: []pb.Value{
			pb.RefValue("databases/db/documents/users/alice")}},
	}), &pt))
	require.Equal(t, readTime, pt.ReadTime)
	require.Equal(t,
		pb.RefValue("databases/db/documents/users/alice"), pt.Cursor.Values[0])

	var st streamToken
	require.NoError(t, decodeToken(encodeToken(streamToken{
		StreamID: "stream-1", Seq: 42}), &st))
	require.Equal(t, streamToken{StreamID: "stream-1", Seq: 42}, st)
}

func TestTokenDecodeRejectsGarbage(t *testing.T) {
	// Tokens are opaque to clients. Bytes not minted by the server fail with
	// an invalid-argument status rather than a panic or misparse.
	for _, garbage := range [][]byte{
		[]byte("not a token"),
		{0xff, 0x00, 0x01},
		nil,
	} {
		var st streamToken
		var err = decodeToken(garbage, &st)
		require.Error(t, err)
		require.Equal(t, pb.StatusInvalidArgument, pb.StatusOf(err))
		require.Contains(t, err.Error(), "invalid token: ")
	}
}
