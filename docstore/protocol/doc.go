// Package protocol defines the message types of the Scrivo document-store
// coordination protocol: typed document Values, Writes and their
// Preconditions, StructuredQueries, Listen Targets, and the request and
// response types of every Docstore RPC. Types are hand-maintained plain Go
// structs and sum types, with Validate() methods which require that messages
// are well-formed before they are acted upon.
//
// Wire serialization is deliberately a thin collaborator: messages move
// through gRPC using a named JSON codec (see codec.go), and opaque tokens
// (transaction tokens, resume tokens, stream tokens, page tokens) are byte
// strings which clients must never parse or construct.
package protocol
