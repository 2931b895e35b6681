package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/powerdialer/internal/domain"
	"github.com/acme/powerdialer/internal/repository"
)

// CampaignRepository implements repository.CampaignRepository using
// PostgreSQL.
type CampaignRepository struct {
	db *sqlx.DB
}

// NewCampaignRepository constructs a new repository.
func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Save upserts the campaign row, statistics included.
func (r *CampaignRepository) Save(ctx context.Context, campaign *domain.Campaign) error {
	q := `INSERT INTO campaigns (
		id, name, agent_id, mode, script, status,
		schedule_start_hour, schedule_end_hour, schedule_time_zone, schedule_weekdays,
		filter_priority, filter_max_recency_ms,
		goal_calls, goal_connects, goal_appointments,
		max_retries, retry_delay_ms,
		total_dialed, connected, voicemails, callbacks, appointments,
		abandoned_calls, compliance_holds, avg_call_duration_ms, conversion_rate,
		created_at, started_at, paused_at, completed_at
	) VALUES (
		:id, :name, :agent_id, :mode, :script, :status,
		:schedule_start_hour, :schedule_end_hour, :schedule_time_zone, :schedule_weekdays,
		:filter_priority, :filter_max_recency_ms,
		:goal_calls, :goal_connects, :goal_appointments,
		:max_retries, :retry_delay_ms,
		:total_dialed, :connected, :voicemails, :callbacks, :appointments,
		:abandoned_calls, :compliance_holds, :avg_call_duration_ms, :conversion_rate,
		:created_at, :started_at, :paused_at, :completed_at
	) ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		total_dialed = EXCLUDED.total_dialed,
		connected = EXCLUDED.connected,
		voicemails = EXCLUDED.voicemails,
		callbacks = EXCLUDED.callbacks,
		appointments = EXCLUDED.appointments,
		abandoned_calls = EXCLUDED.abandoned_calls,
		compliance_holds = EXCLUDED.compliance_holds,
		avg_call_duration_ms = EXCLUDED.avg_call_duration_ms,
		conversion_rate = EXCLUDED.conversion_rate,
		started_at = EXCLUDED.started_at,
		paused_at = EXCLUDED.paused_at,
		completed_at = EXCLUDED.completed_at`

	if _, err := r.db.NamedExecContext(ctx, q, toRecord(campaign)); err != nil {
		return fmt.Errorf("campaign repo: save: %w", err)
	}
	return nil
}

// Get fetches a campaign by id, without its contact snapshot.
func (r *CampaignRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	row := r.db.QueryRowxContext(ctx, selectColumns+` FROM campaigns WHERE id = $1`, id)
	var record campaignRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("campaign repo: get: %w", err)
	}
	campaign := record.toDomain()
	return &campaign, nil
}

// List returns campaigns ordered by creation time.
func (r *CampaignRepository) List(ctx context.Context, limit int) ([]*domain.Campaign, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.query(ctx, selectColumns+` FROM campaigns ORDER BY created_at DESC LIMIT $1`, limit)
}

// ListUnfinished returns campaigns that were still running or paused when
// last persisted. Used to re-register state after a restart.
func (r *CampaignRepository) ListUnfinished(ctx context.Context) ([]*domain.Campaign, error) {
	return r.query(ctx, selectColumns+` FROM campaigns WHERE status IN ($1, $2) ORDER BY created_at ASC`,
		domain.CampaignStatusActive, domain.CampaignStatusPaused)
}

func (r *CampaignRepository) query(ctx context.Context, q string, args ...any) ([]*domain.Campaign, error) {
	rows, err := r.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("campaign repo: query: %w", err)
	}
	defer rows.Close()

	var results []*domain.Campaign
	for rows.Next() {
		var record campaignRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("campaign repo: scan: %w", err)
		}
		campaign := record.toDomain()
		results = append(results, &campaign)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign repo: rows err: %w", err)
	}
	return results, nil
}

const selectColumns = `SELECT id, name, agent_id, mode, script, status,
	schedule_start_hour, schedule_end_hour, schedule_time_zone, schedule_weekdays,
	filter_priority, filter_max_recency_ms,
	goal_calls, goal_connects, goal_appointments,
	max_retries, retry_delay_ms,
	total_dialed, connected, voicemails, callbacks, appointments,
	abandoned_calls, compliance_holds, avg_call_duration_ms, conversion_rate,
	created_at, started_at, paused_at, completed_at`

type campaignRecord struct {
	ID                 uuid.UUID      `db:"id"`
	Name               string         `db:"name"`
	AgentID            string         `db:"agent_id"`
	Mode               string         `db:"mode"`
	Script             sql.NullString `db:"script"`
	Status             string         `db:"status"`
	ScheduleStartHour  int            `db:"schedule_start_hour"`
	ScheduleEndHour    int            `db:"schedule_end_hour"`
	ScheduleTimeZone   string         `db:"schedule_time_zone"`
	ScheduleWeekdays   int            `db:"schedule_weekdays"`
	FilterPriority     sql.NullString `db:"filter_priority"`
	FilterMaxRecencyMs int64          `db:"filter_max_recency_ms"`
	GoalCalls          int            `db:"goal_calls"`
	GoalConnects       int            `db:"goal_connects"`
	GoalAppointments   int            `db:"goal_appointments"`
	MaxRetries         int            `db:"max_retries"`
	RetryDelayMs       int64          `db:"retry_delay_ms"`
	TotalDialed        int            `db:"total_dialed"`
	Connected          int            `db:"connected"`
	Voicemails         int            `db:"voicemails"`
	Callbacks          int            `db:"callbacks"`
	Appointments       int            `db:"appointments"`
	AbandonedCalls     int            `db:"abandoned_calls"`
	ComplianceHolds    int            `db:"compliance_holds"`
	AvgCallDurationMs  int64          `db:"avg_call_duration_ms"`
	ConversionRate     float64        `db:"conversion_rate"`
	CreatedAt          time.Time      `db:"created_at"`
	StartedAt          sql.NullTime   `db:"started_at"`
	PausedAt           sql.NullTime   `db:"paused_at"`
	CompletedAt        sql.NullTime   `db:"completed_at"`
}

func toRecord(c *domain.Campaign) map[string]any {
	var priority any
	if c.Filter.Priority != nil {
		priority = c.Filter.Priority.String()
	}
	return map[string]any{
		"id":                    c.ID,
		"name":                  c.Name,
		"agent_id":              c.AgentID,
		"mode":                  string(c.Mode),
		"script":                c.Script,
		"status":                string(c.Status),
		"schedule_start_hour":   c.Schedule.StartHour,
		"schedule_end_hour":     c.Schedule.EndHour,
		"schedule_time_zone":    c.Schedule.TimeZone,
		"schedule_weekdays":     packWeekdays(c.Schedule.Weekdays),
		"filter_priority":       priority,
		"filter_max_recency_ms": c.Filter.MaxRecency.Milliseconds(),
		"goal_calls":            c.Goals.TargetCalls,
		"goal_connects":         c.Goals.TargetConnects,
		"goal_appointments":     c.Goals.TargetAppointments,
		"max_retries":           c.RetryPolicy.MaxRetries,
		"retry_delay_ms":        c.RetryPolicy.RetryDelay.Milliseconds(),
		"total_dialed":          c.Statistics.TotalDialed,
		"connected":             c.Statistics.Connected,
		"voicemails":            c.Statistics.Voicemails,
		"callbacks":             c.Statistics.Callbacks,
		"appointments":          c.Statistics.Appointments,
		"abandoned_calls":       c.Statistics.AbandonedCalls,
		"compliance_holds":      c.Statistics.ComplianceHolds,
		"avg_call_duration_ms":  c.Statistics.AvgCallDuration.Milliseconds(),
		"conversion_rate":       c.Statistics.ConversionRate,
		"created_at":            c.CreatedAt,
		"started_at":            c.StartedAt,
		"paused_at":             c.PausedAt,
		"completed_at":          c.CompletedAt,
	}
}

func (r campaignRecord) toDomain() domain.Campaign {
	campaign := domain.Campaign{
		ID:      r.ID,
		Name:    r.Name,
		AgentID: r.AgentID,
		Mode:    domain.DialMode(r.Mode),
		Script:  r.Script.String,
		Status:  domain.CampaignStatus(r.Status),
		Schedule: domain.ScheduleWindow{
			StartHour: r.ScheduleStartHour,
			EndHour:   r.ScheduleEndHour,
			TimeZone:  r.ScheduleTimeZone,
			Weekdays:  unpackWeekdays(r.ScheduleWeekdays),
		},
		Filter: domain.ContactFilter{
			MaxRecency: time.Duration(r.FilterMaxRecencyMs) * time.Millisecond,
		},
		Goals: domain.Goals{
			TargetCalls:        r.GoalCalls,
			TargetConnects:     r.GoalConnects,
			TargetAppointments: r.GoalAppointments,
		},
		RetryPolicy: domain.RetryPolicy{
			MaxRetries: r.MaxRetries,
			RetryDelay: time.Duration(r.RetryDelayMs) * time.Millisecond,
		},
		Statistics: domain.Statistics{
			TotalDialed:     r.TotalDialed,
			Connected:       r.Connected,
			Voicemails:      r.Voicemails,
			Callbacks:       r.Callbacks,
			Appointments:    r.Appointments,
			AbandonedCalls:  r.AbandonedCalls,
			ComplianceHolds: r.ComplianceHolds,
			AvgCallDuration: time.Duration(r.AvgCallDurationMs) * time.Millisecond,
			ConversionRate:  r.ConversionRate,
		},
		CreatedAt: r.CreatedAt,
	}

	if r.FilterPriority.Valid {
		if p, ok := domain.ParseContactPriority(r.FilterPriority.String); ok {
			campaign.Filter.Priority = &p
		}
	}
	if r.StartedAt.Valid {
		t := r.StartedAt.Time
		campaign.StartedAt = &t
	}
	if r.PausedAt.Valid {
		t := r.PausedAt.Time
		campaign.PausedAt = &t
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		campaign.CompletedAt = &t
	}
	return campaign
}

// packWeekdays stores the allowed weekday set as a bitmask, Sunday = bit 0.
func packWeekdays(days []time.Weekday) int {
	mask := 0
	for _, d := range days {
		mask |= 1 << int(d)
	}
	return mask
}

func unpackWeekdays(mask int) []time.Weekday {
	if mask == 0 {
		return nil
	}
	var days []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if mask&(1<<int(d)) != 0 {
			days = append(days, d)
		}
	}
	return days
}
