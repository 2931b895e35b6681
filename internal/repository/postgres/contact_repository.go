package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/powerdialer/internal/domain"
)

// ContactRepository persists campaign contact snapshots.
type ContactRepository struct {
	db *sqlx.DB
}

// NewContactRepository constructs the repository.
func NewContactRepository(db *sqlx.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// BulkInsert stores the contact snapshot for a campaign.
func (r *ContactRepository) BulkInsert(ctx context.Context, campaignID uuid.UUID, contacts []domain.Contact) error {
	if len(contacts) == 0 {
		return nil
	}

	query := `INSERT INTO campaign_contacts (
		id, campaign_id, name, phone, priority, lead_score, do_not_call, last_contacted_at
	) VALUES (:id, :campaign_id, :name, :phone, :priority, :lead_score, :do_not_call, :last_contacted_at)
	ON CONFLICT (id) DO NOTHING`

	rows := make([]map[string]any, 0, len(contacts))
	for _, c := range contacts {
		rows = append(rows, map[string]any{
			"id":                c.ID,
			"campaign_id":       campaignID,
			"name":              c.Name,
			"phone":             c.Phone,
			"priority":          c.Priority.String(),
			"lead_score":        c.LeadScore,
			"do_not_call":       c.DoNotCall,
			"last_contacted_at": c.LastContactedAt,
		})
	}

	if _, err := r.db.NamedExecContext(ctx, query, rows); err != nil {
		return fmt.Errorf("contact repo: bulk insert: %w", err)
	}
	return nil
}

// ListByCampaign returns the snapshot for a campaign.
func (r *ContactRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]domain.Contact, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT id, name, phone, priority, lead_score, do_not_call, last_contacted_at
		FROM campaign_contacts WHERE campaign_id = $1 ORDER BY lead_score DESC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("contact repo: list: %w", err)
	}
	defer rows.Close()

	var results []domain.Contact
	for rows.Next() {
		var rec contactRecord
		if err := rows.StructScan(&rec); err != nil {
			return nil, fmt.Errorf("contact repo: scan: %w", err)
		}
		results = append(results, rec.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contact repo: rows err: %w", err)
	}
	return results, nil
}

type contactRecord struct {
	ID              uuid.UUID    `db:"id"`
	Name            string       `db:"name"`
	Phone           string       `db:"phone"`
	Priority        string       `db:"priority"`
	LeadScore       int          `db:"lead_score"`
	DoNotCall       bool         `db:"do_not_call"`
	LastContactedAt sql.NullTime `db:"last_contacted_at"`
}

func (r contactRecord) toDomain() domain.Contact {
	contact := domain.Contact{
		ID:        r.ID,
		Name:      r.Name,
		Phone:     r.Phone,
		LeadScore: r.LeadScore,
		DoNotCall: r.DoNotCall,
	}
	if p, ok := domain.ParseContactPriority(r.Priority); ok {
		contact.Priority = p
	}
	if r.LastContactedAt.Valid {
		t := r.LastContactedAt.Time
		contact.LastContactedAt = &t
	}
	return contact
}
