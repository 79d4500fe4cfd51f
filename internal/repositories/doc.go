// Package repositories implements SQLite persistence for the document store.
//
// Every collection lives in one documents table keyed by (collection, id). Each document carries a
// version that is bumped on every write; [DocumentRepository.CompareAndSwap] only writes when the
// caller's version is still current, which is what the store's transaction retry loop builds on.
//
// Deletes are soft via deleted_at and deleted documents are excluded from reads.
//
// Sequence numbers keep collections in insertion order independent of the random ids.
// The [NextSequence] function atomically increments the counter in the documents_sequence table.
package repositories
