package listimport

import (
	"context"

	"github.com/ignite/contact-import/internal/domain"
	"github.com/ignite/contact-import/internal/listsource"
)

// Fetcher is the third-party list connector. *listsource.Client satisfies it.
type Fetcher interface {
	// Fetch returns every record of the list. progress may be called with
	// the running count and the total, which is -1 until known.
	Fetch(ctx context.Context, ref listsource.Reference, progress func(fetched, total int)) ([]listsource.Record, error)
}

// Applier writes one draft under the upsert policy. *contactimport.Committer
// satisfies it.
type Applier interface {
	Apply(ctx context.Context, d domain.ContactDraft, supplied domain.FieldSet, cfg domain.ImportConfig) (domain.RowAction, string, error)
}

// ProgressStore shares snapshots between instances. Get returns
// ErrUnknownJob when the job is not known.
type ProgressStore interface {
	Save(ctx context.Context, snap domain.ProgressSnapshot) error
	Get(ctx context.Context, jobID string) (*domain.ProgressSnapshot, error)
	List(ctx context.Context) ([]domain.ProgressSnapshot, error)
}
