// Package memory holds in-process stores for single-instance deployments
// and local development. Nothing here survives a restart.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/contact-import/internal/domain"
)

// ContactStore implements contactimport.ContactStore in memory.
type ContactStore struct {
	mu       sync.RWMutex
	contacts []domain.Contact
	byID     map[string]int
	now      func() time.Time
}

// NewContactStore creates an empty contact store.
func NewContactStore() *ContactStore {
	return &ContactStore{byID: make(map[string]int), now: time.Now}
}

func (s *ContactStore) FindByEmail(_ context.Context, email string) ([]domain.Contact, error) {
	email = strings.TrimSpace(email)
	return s.find(func(c domain.Contact) bool {
		for _, e := range c.Emails {
			if strings.EqualFold(strings.TrimSpace(e.Address), email) {
				return true
			}
		}
		return false
	}), nil
}

func (s *ContactStore) FindByPhone(_ context.Context, normalized string) ([]domain.Contact, error) {
	if normalized == "" {
		return nil, nil
	}
	return s.find(func(c domain.Contact) bool {
		for _, p := range c.Phones {
			if p.Normalized == normalized {
				return true
			}
		}
		return false
	}), nil
}

func (s *ContactStore) Create(_ context.Context, d domain.ContactDraft) (domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	c := domain.Contact{
		ID:           uuid.New().String(),
		ContactDraft: cloneDraft(d),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[c.ID] = len(s.contacts)
	s.contacts = append(s.contacts, c)
	return cloneContact(c), nil
}

func (s *ContactStore) Update(_ context.Context, c domain.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[c.ID]
	if !ok {
		return fmt.Errorf("update contact %s: not found", c.ID)
	}
	stored := cloneContact(c)
	stored.CreatedAt = s.contacts[i].CreatedAt
	stored.UpdatedAt = s.now().UTC()
	s.contacts[i] = stored
	return nil
}

// Get returns a contact by id.
func (s *ContactStore) Get(id string) (domain.Contact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return domain.Contact{}, false
	}
	return cloneContact(s.contacts[i]), true
}

// Len returns the number of stored contacts.
func (s *ContactStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contacts)
}

func (s *ContactStore) find(match func(domain.Contact) bool) []domain.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Contact
	for _, c := range s.contacts {
		if match(c) {
			out = append(out, cloneContact(c))
		}
	}
	return out
}

func cloneContact(c domain.Contact) domain.Contact {
	c.ContactDraft = cloneDraft(c.ContactDraft)
	return c
}

func cloneDraft(d domain.ContactDraft) domain.ContactDraft {
	if d.Emails != nil {
		d.Emails = append([]domain.EmailEntry(nil), d.Emails...)
	}
	if d.Phones != nil {
		d.Phones = append([]domain.PhoneEntry(nil), d.Phones...)
	}
	if d.Roles != nil {
		d.Roles = append([]string(nil), d.Roles...)
	}
	return d
}
