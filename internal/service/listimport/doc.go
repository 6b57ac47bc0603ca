// Package listimport runs external list imports as background jobs.
//
// A job fetches every record of a third-party list, then pushes each
// record through the contact import transformer, matcher and committer.
// Only one job runs per list reference: the in-process registry does an
// atomic check-and-insert and a distributed lock guards other instances.
//
// Progress is published as immutable snapshots swapped atomically by the
// job goroutine, so pollers never observe a partial update. Snapshots are
// mirrored to a ProgressStore so any instance can answer a poll.
package listimport
