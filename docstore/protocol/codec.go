package protocol

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype under which Docstore messages move.
// Message encoding is a collaborator of the coordination core, not part of
// it: this codec is a stand-in serialization, and nothing in the protocol
// semantics depends on its details.
const CodecName = "scrivo-json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec is a gRPC Codec which frames Docstore messages as JSON.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return CodecName }
