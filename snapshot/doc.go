// Package snapshot records the object graph of a heap: one node per object,
// one edge per reference, and the roots that hold the graph alive.
//
// Snapshots are plain data. They can be encoded as CBOR or msgpack,
// persisted in a SQLite store, compared, and analysed for retained sizes.
package snapshot
