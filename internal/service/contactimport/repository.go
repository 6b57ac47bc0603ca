package contactimport

import (
	"context"
	"time"

	"github.com/ignite/contact-import/internal/domain"
	"github.com/ignite/contact-import/internal/pkg/distlock"
)

// ContactStore is the lookup/create/update capability of the contact
// storage service.
type ContactStore interface {
	// FindByEmail returns contacts holding email (case-insensitive), oldest first.
	FindByEmail(ctx context.Context, email string) ([]domain.Contact, error)

	// FindByPhone returns contacts holding the normalized phone, oldest first.
	FindByPhone(ctx context.Context, normalized string) ([]domain.Contact, error)

	// Create stores a new contact and returns it with its assigned ID.
	Create(ctx context.Context, draft domain.ContactDraft) (domain.Contact, error)

	// Update replaces the stored contact with c.
	Update(ctx context.Context, c domain.Contact) error
}

// BatchStore persists batch metadata. Get returns ErrUnknownBatch when the
// batch does not exist or has expired.
type BatchStore interface {
	Create(ctx context.Context, b *domain.Batch) error
	Get(ctx context.Context, id string) (*domain.Batch, error)
	Save(ctx context.Context, b *domain.Batch) error
	Delete(ctx context.Context, id string) error
}

// RawStore archives the uploaded content so a batch can be resumed.
type RawStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// LockFactory hands out per-key locks. *distlock.Factory satisfies it.
type LockFactory interface {
	New(key string, ttl time.Duration) distlock.DistLock
}
