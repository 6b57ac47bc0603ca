// Package contactimport implements the batch contact import pipeline.
//
// A batch moves through uploaded → mapped → validated → committed (or
// failed). Raw delimited content is sniffed for delimiter, header row and
// suggested field mapping; the confirmed mapping drives a pure row
// transformer; the matcher resolves each draft against the contact store
// by primary email then primary phone; the validator previews the effect
// of every row; and the committer applies the upsert policy one row at a
// time in file order.
//
// The service depends only on the interfaces in repository.go. It never
// imports net/http or database/sql directly.
package contactimport
