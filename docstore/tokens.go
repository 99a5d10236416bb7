package docstore

import (
	"encoding/json"
	"time"

	"github.com/golang/snappy"
	pb "go.scrivodb.dev/core/docstore/protocol"
)

// Resume, page and stream tokens are opaque bytes minted by the server:
// snappy-compacted JSON of internal resume state. Clients persist and echo
// them, and must never parse them.

// resumeToken is the decoded state of a Listen resume token.
type resumeToken struct {
	// ReadTime is the snapshot time through which the holder has observed
	// all changes of its target.
	ReadTime time.Time `json:"readTime"`
}

// pageToken is the decoded state of a list-API page token.
type pageToken struct {
	// ReadTime pins all pages of one logical list to a single snapshot.
	ReadTime time.Time `json:"readTime"`
	// Cursor resumes ListDocuments after the last document of the prior page.
	Cursor *pb.Cursor `json:"cursor,omitempty"`
	// LastID resumes ListCollectionIds after the last id of the prior page.
	LastID string `json:"lastId,omitempty"`
}

// streamToken is the decoded state of a Write stream token. A client echoes
// the token to acknowledge all responses through Seq, and presents its last
// persisted token to resume the stream after a disconnect.
type streamToken struct {
	StreamID string `json:"streamId"`
	Seq      int64  `json:"seq"`
}

func encodeToken(v interface{}) []byte {
	var b, err = json.Marshal(v)
	if err != nil {
		panic(err) // Token state types always marshal.
	}
	return snappy.Encode(nil, b)
}

func decodeToken(data []byte, v interface{}) error {
	var b, err = snappy.Decode(nil, data)
	if err == nil {
		err = json.Unmarshal(b, v)
	}
	if err != nil {
		return pb.NewStatusError(pb.StatusInvalidArgument, "invalid token: %s", err)
	}
	return nil
}
