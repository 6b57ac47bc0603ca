package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/contact-import/internal/domain"
	"github.com/lib/pq"
)

const contactColumns = `c.id, c.salutation, c.first_name, c.last_name, c.linkedin_url,
	c.company, c.job_title, c.buyer_persona, c.roles, c.specialty, c.stage,
	c.location, c.country, c.notes, c.created_at, c.updated_at`

// ContactRepo implements contactimport.ContactStore against PostgreSQL.
// Emails and phones live in child tables ordered by position.
type ContactRepo struct{ db *sql.DB }

// NewContactRepo creates a Postgres-backed contact repository.
func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

func (r *ContactRepo) FindByEmail(ctx context.Context, email string) ([]domain.Contact, error) {
	return r.find(ctx, `
		SELECT `+contactColumns+`
		FROM contacts c
		WHERE c.id IN (SELECT contact_id FROM contact_emails WHERE email_lower = $1)
		ORDER BY c.created_at, c.id
	`, strings.ToLower(strings.TrimSpace(email)))
}

func (r *ContactRepo) FindByPhone(ctx context.Context, normalized string) ([]domain.Contact, error) {
	if normalized == "" {
		return nil, nil
	}
	return r.find(ctx, `
		SELECT `+contactColumns+`
		FROM contacts c
		WHERE c.id IN (SELECT contact_id FROM contact_phones WHERE normalized = $1)
		ORDER BY c.created_at, c.id
	`, normalized)
}

func (r *ContactRepo) Create(ctx context.Context, d domain.ContactDraft) (domain.Contact, error) {
	now := time.Now().UTC()
	c := domain.Contact{
		ID:           uuid.New().String(),
		ContactDraft: d,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Contact{}, fmt.Errorf("begin create contact: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO contacts (id, salutation, first_name, last_name, linkedin_url,
			company, job_title, buyer_persona, roles, specialty, stage,
			location, country, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
	`, c.ID, d.Salutation, d.FirstName, d.LastName, d.LinkedInURL,
		d.Company, d.JobTitle, d.BuyerPersona, pq.Array(rolesOrEmpty(d.Roles)), d.Specialty, nullStage(d.Stage),
		d.Location, d.Country, d.Notes, now)
	if err != nil {
		return domain.Contact{}, fmt.Errorf("insert contact: %w", err)
	}
	if err := insertChildren(ctx, tx, c.ID, d); err != nil {
		return domain.Contact{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Contact{}, fmt.Errorf("commit create contact: %w", err)
	}
	return c, nil
}

func (r *ContactRepo) Update(ctx context.Context, c domain.Contact) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update contact: %w", err)
	}
	defer tx.Rollback()

	d := c.ContactDraft
	res, err := tx.ExecContext(ctx, `
		UPDATE contacts SET salutation = $2, first_name = $3, last_name = $4,
			linkedin_url = $5, company = $6, job_title = $7, buyer_persona = $8,
			roles = $9, specialty = $10, stage = $11, location = $12,
			country = $13, notes = $14, updated_at = NOW()
		WHERE id = $1
	`, c.ID, d.Salutation, d.FirstName, d.LastName, d.LinkedInURL,
		d.Company, d.JobTitle, d.BuyerPersona, pq.Array(rolesOrEmpty(d.Roles)), d.Specialty, nullStage(d.Stage),
		d.Location, d.Country, d.Notes)
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update contact %s: %w", c.ID, sql.ErrNoRows)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM contact_emails WHERE contact_id = $1`, c.ID); err != nil {
		return fmt.Errorf("clear contact emails: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM contact_phones WHERE contact_id = $1`, c.ID); err != nil {
		return fmt.Errorf("clear contact phones: %w", err)
	}
	if err := insertChildren(ctx, tx, c.ID, d); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update contact: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *ContactRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *ContactRepo) find(ctx context.Context, query string, arg interface{}) ([]domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("find contacts: %w", err)
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		var (
			c     domain.Contact
			roles pq.StringArray
			stage sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.Salutation, &c.FirstName, &c.LastName, &c.LinkedInURL,
			&c.Company, &c.JobTitle, &c.BuyerPersona, &roles, &c.Specialty, &stage,
			&c.Location, &c.Country, &c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		if len(roles) > 0 {
			c.Roles = []string(roles)
		}
		if stage.Valid {
			c.Stage = int(stage.Int64)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	if err := r.attach(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attach loads emails and phones for the given contacts in two queries.
func (r *ContactRepo) attach(ctx context.Context, contacts []domain.Contact) error {
	ids := make([]string, len(contacts))
	index := make(map[string]int, len(contacts))
	for i, c := range contacts {
		ids[i] = c.ID
		index[c.ID] = i
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT contact_id, email, is_primary
		FROM contact_emails
		WHERE contact_id = ANY($1)
		ORDER BY contact_id, position
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load contact emails: %w", err)
	}
	for rows.Next() {
		var id string
		var e domain.EmailEntry
		if err := rows.Scan(&id, &e.Address, &e.Primary); err != nil {
			rows.Close()
			return fmt.Errorf("scan contact email: %w", err)
		}
		if i, ok := index[id]; ok {
			contacts[i].Emails = append(contacts[i].Emails, e)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate contact emails: %w", err)
	}
	rows.Close()

	rows, err = r.db.QueryContext(ctx, `
		SELECT contact_id, raw, normalized, is_primary, is_valid
		FROM contact_phones
		WHERE contact_id = ANY($1)
		ORDER BY contact_id, position
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load contact phones: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var p domain.PhoneEntry
		if err := rows.Scan(&id, &p.Raw, &p.Normalized, &p.Primary, &p.Valid); err != nil {
			return fmt.Errorf("scan contact phone: %w", err)
		}
		if i, ok := index[id]; ok {
			contacts[i].Phones = append(contacts[i].Phones, p)
		}
	}
	return rows.Err()
}

func insertChildren(ctx context.Context, tx *sql.Tx, id string, d domain.ContactDraft) error {
	for i, e := range d.Emails {
		addr := strings.TrimSpace(e.Address)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contact_emails (contact_id, position, email, email_lower, is_primary)
			VALUES ($1, $2, $3, $4, $5)
		`, id, i, addr, strings.ToLower(addr), e.Primary); err != nil {
			return fmt.Errorf("insert contact email: %w", err)
		}
	}
	for i, p := range d.Phones {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contact_phones (contact_id, position, raw, normalized, is_primary, is_valid)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id, i, p.Raw, p.Normalized, p.Primary, p.Valid); err != nil {
			return fmt.Errorf("insert contact phone: %w", err)
		}
	}
	return nil
}

func nullStage(stage int) sql.NullInt64 {
	if stage < domain.MinStage || stage > domain.MaxStage {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(stage), Valid: true}
}

func rolesOrEmpty(roles []string) []string {
	if roles == nil {
		return []string{}
	}
	return roles
}
