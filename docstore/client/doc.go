// Package client implements client-side integrations of the Docstore
// protocol: a Watcher which folds a Listen stream into consistent per-target
// document snapshots, an optimistic transaction runner, and a streaming
// writer over the bidirectional Write RPC.
package client
