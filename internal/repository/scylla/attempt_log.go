package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/acme/powerdialer/internal/repository"
)

// AttemptLog persists attempt audit records in Scylla, partitioned by
// campaign and day bucket.
type AttemptLog struct {
	session *gocql.Session
}

// NewAttemptLog creates a new attempt log.
func NewAttemptLog(session *gocql.Session) *AttemptLog {
	return &AttemptLog{session: session}
}

// Append writes one attempt record.
func (l *AttemptLog) Append(ctx context.Context, record repository.AttemptRecord) error {
	bucket := bucketDate(record.OccurredAt)
	if err := l.session.Query(`INSERT INTO attempts_by_campaign
		(campaign_id, bucket, attempt_id, queue_item_id, phone, attempt, outcome, duration_ms, abandoned, compliance_hold, error, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.CampaignID.String(), bucket, record.ID.String(), record.QueueItemID.String(),
		record.Phone, record.Attempt, record.Outcome, record.DurationMs,
		record.Abandoned, record.ComplianceHold, record.Error, record.OccurredAt,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("attempt log: insert: %w", err)
	}
	return nil
}

// attemptLookback bounds how many day buckets a listing walks backwards
// from today.
const attemptLookback = 30

// ListByCampaign returns recent attempt records for a campaign. The table is
// partitioned by (campaign_id, bucket), so the query walks one day bucket at
// a time, newest first, until the limit is met.
func (l *AttemptLog) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]repository.AttemptRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		attemptIDStr   string
		queueItemIDStr string
		phone          string
		attempt        int
		outcome        string
		durationMs     int64
		abandoned      bool
		compliance     bool
		errText        string
		occurredAt     time.Time
	)

	records := make([]repository.AttemptRecord, 0, limit)
	for _, bucket := range lookbackBuckets(time.Now().UTC(), attemptLookback) {
		if len(records) >= limit {
			break
		}
		iter := l.session.Query(`SELECT attempt_id, queue_item_id, phone, attempt, outcome, duration_ms, abandoned, compliance_hold, error, occurred_at
			FROM attempts_by_campaign WHERE campaign_id = ? AND bucket = ? LIMIT ?`,
			campaignID.String(), bucket, limit-len(records),
		).WithContext(ctx).Iter()

		for iter.Scan(&attemptIDStr, &queueItemIDStr, &phone, &attempt, &outcome, &durationMs, &abandoned, &compliance, &errText, &occurredAt) {
			attemptID, err := uuid.Parse(attemptIDStr)
			if err != nil {
				continue
			}
			queueItemID, _ := uuid.Parse(queueItemIDStr)

			records = append(records, repository.AttemptRecord{
				ID:             attemptID,
				CampaignID:     campaignID,
				QueueItemID:    queueItemID,
				Phone:          phone,
				Attempt:        attempt,
				Outcome:        outcome,
				DurationMs:     durationMs,
				Abandoned:      abandoned,
				ComplianceHold: compliance,
				Error:          errText,
				OccurredAt:     occurredAt,
			})
		}

		if err := iter.Close(); err != nil {
			return nil, fmt.Errorf("attempt log: iter close: %w", err)
		}
	}
	return records, nil
}

func bucketDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// lookbackBuckets lists the day buckets to query, newest first, starting at
// now's bucket.
func lookbackBuckets(now time.Time, days int) []time.Time {
	today := bucketDate(now)
	buckets := make([]time.Time, 0, days)
	for d := 0; d < days; d++ {
		buckets = append(buckets, today.AddDate(0, 0, -d))
	}
	return buckets
}
