// Package domain holds the value types shared by the import services, the
// repositories and the HTTP layer: contacts and their drafts, batches and
// their phases, row results, progress snapshots, the canonical field table
// and the typed error kinds.
//
// Nothing here touches a database, a request or a context. Methods are pure
// functions on the types (validation, merge, cloning).
package domain
