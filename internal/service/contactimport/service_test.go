package contactimport

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ignite/contact-import/internal/domain"
	"github.com/ignite/contact-import/internal/pkg/distlock"
)

// mockContacts is an in-memory contact store for testing.
type mockContacts struct {
	mu       sync.RWMutex
	contacts []domain.Contact
	failFor  map[string]bool // primary emails whose writes fail
	creates  int
	updates  int
}

func newMockContacts() *mockContacts {
	return &mockContacts{failFor: make(map[string]bool)}
}

func (m *mockContacts) FindByEmail(_ context.Context, email string) ([]domain.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Contact
	for _, c := range m.contacts {
		for _, e := range c.Emails {
			if strings.EqualFold(e.Address, email) {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (m *mockContacts) FindByPhone(_ context.Context, normalized string) ([]domain.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Contact
	for _, c := range m.contacts {
		for _, p := range c.Phones {
			if p.Normalized == normalized {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (m *mockContacts) Create(_ context.Context, d domain.ContactDraft) (domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[strings.ToLower(d.PrimaryEmail())] {
		return domain.Contact{}, fmt.Errorf("unique constraint violation")
	}
	m.creates++
	c := domain.Contact{ID: fmt.Sprintf("c-%d", len(m.contacts)+1), ContactDraft: d}
	m.contacts = append(m.contacts, c)
	return c, nil
}

func (m *mockContacts) Update(_ context.Context, c domain.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[strings.ToLower(c.PrimaryEmail())] {
		return fmt.Errorf("deadlock detected")
	}
	for i := range m.contacts {
		if m.contacts[i].ID == c.ID {
			m.updates++
			m.contacts[i] = c
			return nil
		}
	}
	return fmt.Errorf("contact %s not found", c.ID)
}

func (m *mockContacts) seed(id string, d domain.ContactDraft) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.EnsurePrimary()
	m.contacts = append(m.contacts, domain.Contact{ID: id, ContactDraft: d})
}

func (m *mockContacts) get(id string) (domain.Contact, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.contacts {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Contact{}, false
}

// mockBatches is an in-memory batch store.
type mockBatches struct {
	mu    sync.RWMutex
	store map[string]domain.Batch
}

func newMockBatches() *mockBatches {
	return &mockBatches{store: make(map[string]domain.Batch)}
}

func (m *mockBatches) Create(_ context.Context, b *domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[b.ID] = *b
	return nil
}

func (m *mockBatches) Get(_ context.Context, id string) (*domain.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.store[id]
	if !ok {
		return nil, ErrUnknownBatch
	}
	return &b, nil
}

func (m *mockBatches) Save(_ context.Context, b *domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[b.ID]; !ok {
		return ErrUnknownBatch
	}
	m.store[b.ID] = *b
	return nil
}

func (m *mockBatches) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, id)
	return nil
}

// mockRaw is an in-memory raw archive.
type mockRaw struct {
	mu    sync.RWMutex
	store map[string][]byte
}

func newMockRaw() *mockRaw {
	return &mockRaw{store: make(map[string][]byte)}
}

func (m *mockRaw) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[key] = append([]byte(nil), data...)
	return nil
}

func (m *mockRaw) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.store[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return data, nil
}

func (m *mockRaw) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, key)
	return nil
}

type fixture struct {
	svc      *Service
	contacts *mockContacts
	batches  *mockBatches
	raw      *mockRaw
}

func newFixture() *fixture {
	f := &fixture{
		contacts: newMockContacts(),
		batches:  newMockBatches(),
		raw:      newMockRaw(),
	}
	f.svc = NewService(f.contacts, f.batches, f.raw, distlock.NewFactory(nil, nil), Options{})
	return f
}

// rewire rebuilds the service over the given stores, keeping the raw archive.
func (f *fixture) rewire(contacts ContactStore, batches BatchStore) {
	f.svc = NewService(contacts, batches, f.raw, distlock.NewFactory(nil, nil), Options{})
}

// blockingContacts parks the first FindByEmail after arm until release is closed.
type blockingContacts struct {
	*mockContacts
	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func newBlockingContacts(m *mockContacts) *blockingContacts {
	return &blockingContacts{mockContacts: m, entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingContacts) arm() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.armed = true
}

func (b *blockingContacts) FindByEmail(ctx context.Context, email string) ([]domain.Contact, error) {
	b.mu.Lock()
	park := b.armed
	b.armed = false
	b.mu.Unlock()
	if park {
		close(b.entered)
		<-b.release
	}
	return b.mockContacts.FindByEmail(ctx, email)
}

func waitEntered(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("store lookup never started")
	}
}

// flakyBatches fails Save once its allowance runs out. A negative
// allowance never fails.
type flakyBatches struct {
	*mockBatches
	mu      sync.Mutex
	allowed int
}

func (f *flakyBatches) allow(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowed = n
}

func (f *flakyBatches) Save(ctx context.Context, b *domain.Batch) error {
	f.mu.Lock()
	if f.allowed == 0 {
		f.mu.Unlock()
		return errors.New("redis: i/o timeout")
	}
	if f.allowed > 0 {
		f.allowed--
	}
	f.mu.Unlock()
	return f.mockBatches.Save(ctx, b)
}

func boolPtr(b bool) *bool { return &b }

// upload creates a batch with a header row and confirms the suggested mapping.
func (f *fixture) upload(t *testing.T, content string, cfg domain.ImportConfig) string {
	t.Helper()
	ctx := context.Background()
	res, err := f.svc.CreateBatch(ctx, CreateBatchInput{Content: []byte(content), HasHeader: boolPtr(true)})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if _, err := f.svc.SetMapping(ctx, res.BatchID, res.Suggested, &cfg); err != nil {
		t.Fatalf("SetMapping: %v", err)
	}
	return res.BatchID
}

func policy(p domain.UpsertPolicy) domain.ImportConfig {
	cfg := domain.DefaultImportConfig()
	cfg.Policy = p
	return cfg
}

func TestCreateBatch_DetectsShape(t *testing.T) {
	f := newFixture()
	res, err := f.svc.CreateBatch(context.Background(), CreateBatchInput{
		Content:  []byte("Nombre;Correo;Teléfono\nAna;ana@example.com;612345678\nLuis;luis@example.com;612345679\n"),
		Filename: "contactos.csv",
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if res.Delimiter != ";" {
		t.Errorf("expected ';' delimiter, got %q", res.Delimiter)
	}
	if !res.HasHeader {
		t.Error("expected header row to be detected")
	}
	if res.RawRowCount != 2 {
		t.Errorf("expected 2 rows, got %d", res.RawRowCount)
	}
	want := []domain.CanonicalField{domain.FieldFirstName, domain.FieldEmail, domain.FieldPhone}
	for i, m := range res.Suggested {
		if m.Target != want[i] {
			t.Errorf("column %q: expected %s, got %s", m.Column, want[i], m.Target)
		}
	}

	b, err := f.svc.GetBatch(context.Background(), res.BatchID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if b.Phase != domain.PhaseUploaded {
		t.Errorf("expected phase uploaded, got %s", b.Phase)
	}
	if _, ok := f.raw.store[b.RawKey]; !ok {
		t.Error("expected raw content to be archived")
	}
}

func TestCreateBatch_EmptyInputCreatesNothing(t *testing.T) {
	f := newFixture()
	for _, content := range []string{"", "   \n", "email,name\n"} {
		_, err := f.svc.CreateBatch(context.Background(), CreateBatchInput{Content: []byte(content), HasHeader: boolPtr(true)})
		if !errors.Is(err, ErrEmptyOrUnreadableInput) {
			t.Errorf("content %q: expected EmptyOrUnreadableInput, got %v", content, err)
		}
	}
	if len(f.batches.store) != 0 || len(f.raw.store) != 0 {
		t.Error("expected no partial batch to be stored")
	}
}

func TestSetMapping_TwoPrimaryEmailsRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, err := f.svc.CreateBatch(ctx, CreateBatchInput{
		Content:   []byte("work email,home email\na@x.com,a@home.com\n"),
		HasHeader: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	before, _ := f.svc.GetBatch(ctx, res.BatchID)

	_, err = f.svc.SetMapping(ctx, res.BatchID, []domain.ColumnMapping{
		{Column: "work email", Target: domain.FieldEmail, Primary: true},
		{Column: "home email", Target: domain.FieldEmail, Primary: true},
	}, nil)
	if !errors.Is(err, ErrInvalidMapping) {
		t.Fatalf("expected InvalidMapping, got %v", err)
	}
	var derr *domain.Error
	if !errors.As(err, &derr) || len(derr.Fields) != 1 || derr.Fields[0].Column != "home email" {
		t.Errorf("expected field detail for 'home email', got %+v", derr)
	}

	after, _ := f.svc.GetBatch(ctx, res.BatchID)
	if after.Phase != domain.PhaseUploaded {
		t.Errorf("expected phase to stay uploaded, got %s", after.Phase)
	}
	if !reflect.DeepEqual(before.Mapping, after.Mapping) {
		t.Error("expected mapping to be unchanged after rejection")
	}
}

func TestSetMapping_UnknownBatch(t *testing.T) {
	f := newFixture()
	_, err := f.svc.SetMapping(context.Background(), "missing", nil, nil)
	if domain.KindOf(err) != domain.KindUnknownBatch {
		t.Errorf("expected UnknownBatch, got %v", err)
	}
}

func TestSetMapping_RemapResetsValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id := f.upload(t, "email,first_name\na@x.com,A\n", policy(domain.PolicyUpdateExisting))
	if _, err := f.svc.Validate(ctx, id); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	b, _ := f.svc.GetBatch(ctx, id)
	b, err := f.svc.SetMapping(ctx, id, b.Mapping, nil)
	if err != nil {
		t.Fatalf("SetMapping: %v", err)
	}
	if b.Phase != domain.PhaseMapped || b.Validation != nil {
		t.Errorf("expected mapped phase without validation, got %s %+v", b.Phase, b.Validation)
	}

	if _, err := f.svc.Commit(ctx, id); !errors.Is(err, ErrBatchNotValidated) {
		t.Errorf("expected BatchNotValidated after remap, got %v", err)
	}
}

func TestValidate_RequiresMapping(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, err := f.svc.CreateBatch(ctx, CreateBatchInput{Content: []byte("email\na@x.com\n"), HasHeader: boolPtr(true)})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if _, err := f.svc.Validate(ctx, res.BatchID); !errors.Is(err, ErrBatchNotMapped) {
		t.Errorf("expected BatchNotMapped, got %v", err)
	}
	if _, err := f.svc.Validate(ctx, "nope"); !errors.Is(err, ErrUnknownBatch) {
		t.Errorf("expected UnknownBatch, got %v", err)
	}
}

func TestValidate_ActionsFollowPolicy(t *testing.T) {
	cases := []struct {
		policy domain.UpsertPolicy
		want   domain.RowAction
	}{
		{domain.PolicyUpdateExisting, domain.ActionUpdate},
		{domain.PolicyCreateOnly, domain.ActionSkip},
		{domain.PolicyCreateDuplicate, domain.ActionCreate},
	}
	for _, tc := range cases {
		t.Run(string(tc.policy), func(t *testing.T) {
			f := newFixture()
			f.contacts.seed("existing-1", domain.ContactDraft{
				FirstName: "Ann",
				Emails:    []domain.EmailEntry{{Address: "Ann@Example.com"}},
			})
			id := f.upload(t, "email,first_name\nann@example.com,Ann\nnew@example.com,New\n", policy(tc.policy))

			report, err := f.svc.Validate(context.Background(), id)
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			matched := report.Rows[0]
			if matched.Action != tc.want {
				t.Errorf("matched row: expected %s, got %s", tc.want, matched.Action)
			}
			if (matched.Action == domain.ActionUpdate) != (matched.MatchedContactID == "existing-1") {
				t.Errorf("matched reference must be present iff action is update, got %q", matched.MatchedContactID)
			}
			if report.Rows[1].Action != domain.ActionCreate {
				t.Errorf("unmatched row: expected create, got %s", report.Rows[1].Action)
			}
		})
	}
}

func TestValidate_FallsBackToPhone(t *testing.T) {
	f := newFixture()
	f.contacts.seed("by-phone", domain.ContactDraft{
		Phones: []domain.PhoneEntry{{Raw: "650 253 0000", Normalized: "+16502530000", Valid: true}},
	})
	id := f.upload(t, "email,phone\nunknown@example.com,(650) 253-0000\n", policy(domain.PolicyUpdateExisting))

	report, err := f.svc.Validate(context.Background(), id)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := report.Rows[0].MatchedContactID; got != "by-phone" {
		t.Errorf("expected phone match, got %q", got)
	}
}

func TestValidate_AmbiguousMatchWarns(t *testing.T) {
	f := newFixture()
	f.contacts.seed("first", domain.ContactDraft{Emails: []domain.EmailEntry{{Address: "dup@example.com"}}})
	f.contacts.seed("second", domain.ContactDraft{Emails: []domain.EmailEntry{{Address: "DUP@example.com"}}})
	id := f.upload(t, "email\ndup@example.com\n", policy(domain.PolicyUpdateExisting))

	report, err := f.svc.Validate(context.Background(), id)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	row := report.Rows[0]
	if row.MatchedContactID != "first" {
		t.Errorf("expected first candidate, got %q", row.MatchedContactID)
	}
	if !hasIssue(row.Warnings, domain.IssueAmbiguousMatch) {
		t.Errorf("expected AmbiguousMatch warning, got %+v", row.Warnings)
	}
	if len(row.Errors) != 0 || !report.CanProceed {
		t.Error("ambiguous match must never block")
	}
}

func TestValidate_Idempotent(t *testing.T) {
	f := newFixture()
	f.contacts.seed("c-0", domain.ContactDraft{Emails: []domain.EmailEntry{{Address: "a@x.com"}}})
	id := f.upload(t, "email,phone,stage\na@x.com,123,9\nb@x.com,650 253 0000,2\n,,\nbad-email,,\n", policy(domain.PolicyUpdateExisting))
	ctx := context.Background()

	first, err := f.svc.Validate(ctx, id)
	if err != nil {
		t.Fatalf("Validate #1: %v", err)
	}
	second, err := f.svc.Validate(ctx, id)
	if err != nil {
		t.Fatalf("Validate #2: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("expected identical reports on repeated validation")
	}
	if f.contacts.creates != 0 || f.contacts.updates != 0 {
		t.Error("validation must not mutate the store")
	}
}

func TestValidate_NonStrictDegradesEmailErrors(t *testing.T) {
	f := newFixture()
	id := f.upload(t, "email,first_name\nnot-an-email,A\nb@x.com,B\n", policy(domain.PolicyUpdateExisting))

	report, err := f.svc.Validate(context.Background(), id)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if report.Totals.Errors != 0 || !report.CanProceed {
		t.Errorf("expected no blocking errors, got %+v", report.Totals)
	}
	if !hasIssue(report.Rows[0].Warnings, domain.IssueInvalidEmailFormat) {
		t.Error("expected InvalidEmailFormat warning")
	}
	if report.Rows[0].Action != domain.ActionCreate {
		t.Errorf("expected action unchanged (create), got %s", report.Rows[0].Action)
	}
}

func TestStrictMode_BlocksCommit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	cfg := policy(domain.PolicyUpdateExisting)
	cfg.Strict = true
	id := f.upload(t, "email,first_name\nnot-an-email,A\nb@x.com,B\n", cfg)

	report, err := f.svc.Validate(ctx, id)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if report.CanProceed {
		t.Error("expected canProceed=false in strict mode with a malformed email")
	}
	if !hasIssue(report.Rows[0].Errors, domain.IssueInvalidEmailFormat) {
		t.Errorf("expected InvalidEmailFormat error, got %+v", report.Rows[0].Errors)
	}

	_, err = f.svc.Commit(ctx, id)
	if !errors.Is(err, ErrValidationBlocked) {
		t.Fatalf("expected ValidationBlocked, got %v", err)
	}
	if f.contacts.creates != 0 {
		t.Error("expected no rows applied")
	}
	b, _ := f.svc.GetBatch(ctx, id)
	if b.Phase != domain.PhaseValidated {
		t.Errorf("expected phase to stay validated, got %s", b.Phase)
	}
}

func TestStrictMode_WarnsWhenNoContactChannel(t *testing.T) {
	f := newFixture()
	cfg := policy(domain.PolicyUpdateExisting)
	cfg.Strict = true
	id := f.upload(t, "first_name,email\nAnn,\n", cfg)

	report, err := f.svc.Validate(context.Background(), id)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !hasIssue(report.Rows[0].Warnings, domain.IssueEmptyRequiredIfStrict) {
		t.Errorf("expected EmptyRequiredIfStrict warning, got %+v", report.Rows[0].Warnings)
	}
	if !report.CanProceed {
		t.Error("warnings must not block")
	}
}

func TestCommit_SameEmailTwiceUpdatesFirstRow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id := f.upload(t, "email,first_name\na@x.com,A\nA@X.com,A2\n", policy(domain.PolicyUpdateExisting))

	report, err := f.svc.Validate(ctx, id)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !hasIssue(report.Rows[1].Warnings, domain.IssueDuplicateInBatch) {
		t.Error("expected DuplicateInBatch warning on row 2")
	}

	outcome, err := f.svc.Commit(ctx, id)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if outcome.Created != 1 || outcome.Updated != 1 {
		t.Fatalf("expected 1 created + 1 updated, got %+v", outcome)
	}
	if len(f.contacts.contacts) != 1 {
		t.Fatalf("expected a single contact, got %d", len(f.contacts.contacts))
	}
	c := f.contacts.contacts[0]
	if c.PrimaryEmail() != "a@x.com" {
		t.Errorf("expected stored email a@x.com, got %q", c.PrimaryEmail())
	}
	if c.FirstName != "A2" {
		t.Errorf("expected last row to win, got first name %q", c.FirstName)
	}
}

func TestCommit_CreateOnlySkipsWithoutMutation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.contacts.seed("existing", domain.ContactDraft{FirstName: "Old", Emails: []domain.EmailEntry{{Address: "a@x.com"}}})
	id := f.upload(t, "email,first_name\na@x.com,New\nb@x.com,B\n", policy(domain.PolicyCreateOnly))

	if _, err := f.svc.Validate(ctx, id); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	outcome, err := f.svc.Commit(ctx, id)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if outcome.Skipped != 1 || outcome.Created != 1 || outcome.Updated != 0 {
		t.Errorf("unexpected outcome %+v", outcome)
	}
	if f.contacts.updates != 0 {
		t.Error("expected no update for the matched row")
	}
	c, _ := f.contacts.get("existing")
	if c.FirstName != "Old" {
		t.Errorf("expected existing contact untouched, got %q", c.FirstName)
	}
}

func TestCommit_UpdatePreservesEmptyFields(t *testing.T) {
	for _, overwrite := range []bool{false, true} {
		t.Run(fmt.Sprintf("overwrite_empty=%v", overwrite), func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			f.contacts.seed("existing", domain.ContactDraft{
				FirstName: "Ann",
				Company:   "Acme",
				Emails:    []domain.EmailEntry{{Address: "a@x.com"}},
			})
			cfg := policy(domain.PolicyUpdateExisting)
			cfg.OverwriteEmpty = overwrite
			id := f.upload(t, "email,first_name,company\na@x.com,Annie,\n", cfg)

			if _, err := f.svc.Validate(ctx, id); err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if _, err := f.svc.Commit(ctx, id); err != nil {
				t.Fatalf("Commit: %v", err)
			}
			c, _ := f.contacts.get("existing")
			if c.FirstName != "Annie" {
				t.Errorf("expected first name overwritten, got %q", c.FirstName)
			}
			wantCompany := "Acme"
			if overwrite {
				wantCompany = ""
			}
			if c.Company != wantCompany {
				t.Errorf("expected company %q, got %q", wantCompany, c.Company)
			}
		})
	}
}

func TestCommit_RowFailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.contacts.failFor["broken@x.com"] = true
	id := f.upload(t, "email\na@x.com\nbroken@x.com\nc@x.com\n", policy(domain.PolicyUpdateExisting))

	if _, err := f.svc.Validate(ctx, id); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	outcome, err := f.svc.Commit(ctx, id)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if outcome.Created != 2 || outcome.Errors != 1 {
		t.Fatalf("expected 2 created and 1 error, got %+v", outcome)
	}
	if len(outcome.RowErrors) != 1 || outcome.RowErrors[0].Row != 2 || outcome.RowErrors[0].Kind != domain.IssueStoreFailure {
		t.Errorf("unexpected row errors %+v", outcome.RowErrors)
	}
}

func TestCommit_SingleShot(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id := f.upload(t, "email\na@x.com\n", policy(domain.PolicyCreateDuplicate))
	if _, err := f.svc.Validate(ctx, id); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, err := f.svc.Commit(ctx, id); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := f.svc.Commit(ctx, id); !errors.Is(err, ErrBatchAlreadyCommitted) {
			t.Errorf("commit #%d: expected BatchAlreadyCommitted, got %v", i+2, err)
		}
	}
	if f.contacts.creates != 1 {
		t.Errorf("expected rows applied once, got %d creates", f.contacts.creates)
	}
	if _, err := f.svc.Validate(ctx, id); !errors.Is(err, ErrBatchAlreadyCommitted) {
		t.Errorf("expected validate on committed batch to fail, got %v", err)
	}
	if _, err := f.svc.SetMapping(ctx, id, nil, nil); !errors.Is(err, ErrBatchAlreadyCommitted) {
		t.Errorf("expected remap on committed batch to fail, got %v", err)
	}
}

func TestCommit_BusyWhileLocked(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id := f.upload(t, "email\na@x.com\n", policy(domain.PolicyUpdateExisting))
	if _, err := f.svc.Validate(ctx, id); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	held := distlock.NewLocalLock("import:batch:" + id)
	if ok, _ := held.Acquire(ctx); !ok {
		t.Fatal("could not take lock")
	}
	_, err := f.svc.Commit(ctx, id)
	held.Release(ctx)
	if !errors.Is(err, ErrBatchBusy) {
		t.Fatalf("expected BatchBusy, got %v", err)
	}

	if _, err := f.svc.Commit(ctx, id); err != nil {
		t.Errorf("expected commit to succeed once the lock is free, got %v", err)
	}
}

func TestCommit_ConcurrentCallsApplyOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id := f.upload(t, "email\na@x.com\nb@x.com\n", policy(domain.PolicyCreateDuplicate))
	if _, err := f.svc.Validate(ctx, id); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Commit(ctx, id)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrBatchBusy), errors.Is(err, ErrBatchAlreadyCommitted):
		default:
			t.Errorf("unexpected error %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("expected exactly one successful commit, got %d", ok)
	}
	if f.contacts.creates != 2 {
		t.Errorf("expected 2 creates, got %d", f.contacts.creates)
	}
}

func TestCommit_RequiresValidation(t *testing.T) {
	f := newFixture()
	id := f.upload(t, "email\na@x.com\n", policy(domain.PolicyUpdateExisting))
	if _, err := f.svc.Commit(context.Background(), id); !errors.Is(err, ErrBatchNotValidated) {
		t.Errorf("expected BatchNotValidated, got %v", err)
	}
	if _, err := f.svc.Commit(context.Background(), "missing"); !errors.Is(err, ErrUnknownBatch) {
		t.Errorf("expected UnknownBatch, got %v", err)
	}
}

func TestCommit_UnreadableArchiveIsRetryable(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id := f.upload(t, "email\na@x.com\n", policy(domain.PolicyUpdateExisting))
	if _, err := f.svc.Validate(ctx, id); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	b, _ := f.svc.GetBatch(ctx, id)
	content := f.raw.store[b.RawKey]
	delete(f.raw.store, b.RawKey)

	_, err := f.svc.Commit(ctx, id)
	if err == nil {
		t.Fatal("expected commit to fail without raw content")
	}
	if errors.Is(err, ErrBatchFailed) {
		t.Errorf("read error should not fail the batch, got %v", err)
	}
	b, _ = f.svc.GetBatch(ctx, id)
	if b.Phase != domain.PhaseValidated || b.FailureReason != "" {
		t.Errorf("expected batch to stay validated, got %s %q", b.Phase, b.FailureReason)
	}
	if f.contacts.creates != 0 {
		t.Errorf("expected no rows applied, got %d creates", f.contacts.creates)
	}

	if err := f.raw.Put(ctx, b.RawKey, content); err != nil {
		t.Fatalf("restore upload: %v", err)
	}
	if _, err := f.svc.Commit(ctx, id); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if f.contacts.creates != 1 {
		t.Errorf("expected 1 create, got %d", f.contacts.creates)
	}
}

func TestCommit_CorruptArchiveFailsBatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id := f.upload(t, "email\na@x.com\n", policy(domain.PolicyUpdateExisting))
	if _, err := f.svc.Validate(ctx, id); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	b, _ := f.svc.GetBatch(ctx, id)
	if err := f.raw.Put(ctx, b.RawKey, []byte("   ")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, err := f.svc.Commit(ctx, id); err == nil {
		t.Fatal("expected commit to fail on unparseable content")
	}
	b, _ = f.svc.GetBatch(ctx, id)
	if b.Phase != domain.PhaseFailed || b.FailureReason == "" {
		t.Errorf("expected failed phase with reason, got %s %q", b.Phase, b.FailureReason)
	}
	if _, err := f.svc.Commit(ctx, id); !errors.Is(err, ErrBatchFailed) {
		t.Errorf("expected BatchFailed on retry, got %v", err)
	}
}

func TestValidate_HoldsBatchLock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	slow := newBlockingContacts(f.contacts)
	f.rewire(slow, f.batches)
	id := f.upload(t, "email\na@x.com\nb@x.com\n", policy(domain.PolicyUpdateExisting))
	if _, err := f.svc.Validate(ctx, id); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	slow.arm()
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Validate(ctx, id)
		done <- err
	}()
	waitEntered(t, slow.entered)

	if _, err := f.svc.Commit(ctx, id); !errors.Is(err, ErrBatchBusy) {
		t.Errorf("expected commit during validation to be busy, got %v", err)
	}
	if _, err := f.svc.SetMapping(ctx, id, nil, nil); !errors.Is(err, ErrBatchBusy) {
		t.Errorf("expected remap during validation to be busy, got %v", err)
	}
	if err := f.svc.DeleteBatch(ctx, id); !errors.Is(err, ErrBatchBusy) {
		t.Errorf("expected delete during validation to be busy, got %v", err)
	}

	close(slow.release)
	if err := <-done; err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, err := f.svc.Commit(ctx, id); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if f.contacts.creates != 2 {
		t.Errorf("expected 2 creates, got %d", f.contacts.creates)
	}
}

func TestCommit_OverlappingValidateCannotReopenBatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	slow := newBlockingContacts(f.contacts)
	f.rewire(slow, f.batches)
	id := f.upload(t, "email\na@x.com\nb@x.com\n", policy(domain.PolicyUpdateExisting))
	if _, err := f.svc.Validate(ctx, id); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	slow.arm()
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Commit(ctx, id)
		done <- err
	}()
	waitEntered(t, slow.entered)

	if _, err := f.svc.Validate(ctx, id); !errors.Is(err, ErrBatchBusy) {
		t.Errorf("expected validate during commit to be busy, got %v", err)
	}

	close(slow.release)
	if err := <-done; err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := f.svc.Validate(ctx, id); !errors.Is(err, ErrBatchAlreadyCommitted) {
		t.Errorf("expected validate after commit to fail, got %v", err)
	}
	if _, err := f.svc.Commit(ctx, id); !errors.Is(err, ErrBatchAlreadyCommitted) {
		t.Errorf("expected second commit to fail, got %v", err)
	}
	if f.contacts.creates != 2 {
		t.Errorf("expected rows applied once (2 creates), got %d", f.contacts.creates)
	}
	b, _ := f.svc.GetBatch(ctx, id)
	if b.Phase != domain.PhaseCommitted || b.Outcome == nil {
		t.Errorf("expected committed batch with outcome, got %s %+v", b.Phase, b.Outcome)
	}
}

func TestCommit_OutcomeSaveFailureBlocksReplay(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	flaky := &flakyBatches{mockBatches: f.batches, allowed: -1}
	f.rewire(f.contacts, flaky)
	id := f.upload(t, "email\na@x.com\nb@x.com\n", policy(domain.PolicyCreateDuplicate))
	if _, err := f.svc.Validate(ctx, id); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	flaky.allow(1)
	outcome, err := f.svc.Commit(ctx, id)
	if err == nil {
		t.Fatal("expected commit to report the failed outcome save")
	}
	if outcome == nil || outcome.Created != 2 {
		t.Fatalf("expected outcome with 2 created, got %+v", outcome)
	}

	flaky.allow(-1)
	b, _ := f.svc.GetBatch(ctx, id)
	if b.Phase != domain.PhaseCommitting {
		t.Errorf("expected committing phase, got %s", b.Phase)
	}
	if _, err := f.svc.Commit(ctx, id); !errors.Is(err, ErrBatchAlreadyCommitted) {
		t.Errorf("expected retry to be rejected, got %v", err)
	}
	if _, err := f.svc.Validate(ctx, id); !errors.Is(err, ErrBatchAlreadyCommitted) {
		t.Errorf("expected validate to be rejected, got %v", err)
	}
	if f.contacts.creates != 2 {
		t.Errorf("expected rows applied once (2 creates), got %d", f.contacts.creates)
	}
}

func TestCommit_MarkFailureAppliesNothing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	flaky := &flakyBatches{mockBatches: f.batches, allowed: -1}
	f.rewire(f.contacts, flaky)
	id := f.upload(t, "email\na@x.com\n", policy(domain.PolicyCreateDuplicate))
	if _, err := f.svc.Validate(ctx, id); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	flaky.allow(0)
	if _, err := f.svc.Commit(ctx, id); err == nil {
		t.Fatal("expected commit to fail when the batch cannot be marked")
	}
	if f.contacts.creates != 0 {
		t.Errorf("expected no rows applied, got %d creates", f.contacts.creates)
	}

	flaky.allow(-1)
	if _, err := f.svc.Commit(ctx, id); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if f.contacts.creates != 1 {
		t.Errorf("expected 1 create, got %d", f.contacts.creates)
	}
}

func TestDeleteBatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id := f.upload(t, "email\na@x.com\n", policy(domain.PolicyUpdateExisting))

	if err := f.svc.DeleteBatch(ctx, id); err != nil {
		t.Fatalf("DeleteBatch: %v", err)
	}
	if len(f.raw.store) != 0 {
		t.Error("expected raw upload removed")
	}
	if _, err := f.svc.GetBatch(ctx, id); !errors.Is(err, ErrUnknownBatch) {
		t.Errorf("expected UnknownBatch after delete, got %v", err)
	}
	if err := f.svc.DeleteBatch(ctx, id); !errors.Is(err, ErrUnknownBatch) {
		t.Errorf("expected UnknownBatch on second delete, got %v", err)
	}
}

func TestCommitter_StampsCommitTime(t *testing.T) {
	c := NewCommitter(newMockContacts())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	tr := NewTransformer([]string{"email"}, []domain.ColumnMapping{{Column: "email", Target: domain.FieldEmail}}, domain.DefaultImportConfig())
	out := c.CommitRows(context.Background(), "b", [][]string{{"a@x.com"}}, tr, domain.DefaultImportConfig())
	if !out.CommittedAt.Equal(fixed) {
		t.Errorf("expected commit time %v, got %v", fixed, out.CommittedAt)
	}
}

func hasIssue(issues []domain.Issue, kind domain.IssueKind) bool {
	for _, i := range issues {
		if i.Kind == kind {
			return true
		}
	}
	return false
}
