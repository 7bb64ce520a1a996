package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// GetEODReport loads the report row for one business day.
func (r *Repository) GetEODReport(ctx context.Context, businessID string, date time.Time) (*EODReportRow, error) {
	var row EODReportRow
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, business_id, report_date, status, payload,
			discrepancy_notes, reviewed_by, reviewed_at, generated_at,
			created_at, updated_at
		FROM eod_reports
		WHERE business_id = $1 AND report_date = $2::date`,
		businessID, date,
	).Scan(&row.ID, &row.BusinessID, &row.ReportDate, &row.Status, &row.Payload,
		&row.DiscrepancyNotes, &row.ReviewedBy, &row.ReviewedAt, &row.GeneratedAt,
		&row.CreatedAt, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFoundError{Entity: "eod report", ID: fmt.Sprintf("%s/%s", businessID, date.Format("2006-01-02"))}
	}
	if err != nil {
		return nil, fmt.Errorf("get eod report: %w", err)
	}
	return &row, nil
}

// GetEODReportByID loads a report row by primary key, tenant-scoped.
func (r *Repository) GetEODReportByID(ctx context.Context, businessID, reportID string) (*EODReportRow, error) {
	var row EODReportRow
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, business_id, report_date, status, payload,
			discrepancy_notes, reviewed_by, reviewed_at, generated_at,
			created_at, updated_at
		FROM eod_reports
		WHERE business_id = $1 AND id = $2`,
		businessID, reportID,
	).Scan(&row.ID, &row.BusinessID, &row.ReportDate, &row.Status, &row.Payload,
		&row.DiscrepancyNotes, &row.ReviewedBy, &row.ReviewedAt, &row.GeneratedAt,
		&row.CreatedAt, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFoundError{Entity: "eod report", ID: reportID}
	}
	if err != nil {
		return nil, fmt.Errorf("get eod report by id: %w", err)
	}
	return &row, nil
}

// MarkEODInProgress creates or resets the report row to the in-progress
// state and returns its ID. The caller decides beforehand whether the
// existing status permits regeneration.
func (r *Repository) MarkEODInProgress(ctx context.Context, businessID string, date time.Time) (string, error) {
	var id string
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO eod_reports (business_id, report_date, status)
		VALUES ($1, $2::date, 'in_progress')
		ON CONFLICT (business_id, report_date) DO UPDATE SET
			status = 'in_progress',
			payload = NULL,
			discrepancy_notes = NULL,
			generated_at = NULL,
			updated_at = NOW()
		RETURNING id`,
		businessID, date,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("mark eod in progress: %w", err)
	}
	return id, nil
}

// FinishEODReport stores the built payload and terminal build status.
func (r *Repository) FinishEODReport(ctx context.Context, reportID, status string, payload []byte, discrepancyNotes *string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE eod_reports SET
			status = $1,
			payload = $2,
			discrepancy_notes = $3,
			generated_at = NOW(),
			updated_at = NOW()
		WHERE id = $4`,
		status, payload, discrepancyNotes, reportID)
	if err != nil {
		return fmt.Errorf("finish eod report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Entity: "eod report", ID: reportID}
	}
	return nil
}

// MarkEODFailed resets an in-progress row back to pending after a build
// error so the scheduler can retry it.
func (r *Repository) MarkEODFailed(ctx context.Context, reportID string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE eod_reports SET status = 'pending', updated_at = NOW()
		WHERE id = $1 AND status = 'in_progress'`, reportID)
	if err != nil {
		return fmt.Errorf("mark eod failed: %w", err)
	}
	return nil
}

// MarkEODReviewed transitions a finalized report to reviewed and stores
// the (possibly amended) payload. Only completed and discrepancy states
// accept review; the affected row count tells the caller whether the
// transition applied.
func (r *Repository) MarkEODReviewed(ctx context.Context, businessID, reportID, reviewer string, payload []byte) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE eod_reports SET
			status = 'reviewed',
			payload = $1,
			reviewed_by = $2,
			reviewed_at = NOW(),
			updated_at = NOW()
		WHERE business_id = $3 AND id = $4 AND status IN ('completed', 'discrepancy')`,
		payload, reviewer, businessID, reportID)
	if err != nil {
		return false, fmt.Errorf("mark eod reviewed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListEODReports returns report rows for a business over a date range,
// newest first, without payloads.
func (r *Repository) ListEODReports(ctx context.Context, businessID string, from, to time.Time) ([]EODReportRow, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, business_id, report_date, status,
			discrepancy_notes, reviewed_by, reviewed_at, generated_at,
			created_at, updated_at
		FROM eod_reports
		WHERE business_id = $1 AND report_date >= $2::date AND report_date < $3::date
		ORDER BY report_date DESC`,
		businessID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list eod reports: %w", err)
	}
	defer rows.Close()

	var out []EODReportRow
	for rows.Next() {
		var row EODReportRow
		if err := rows.Scan(&row.ID, &row.BusinessID, &row.ReportDate, &row.Status,
			&row.DiscrepancyNotes, &row.ReviewedBy, &row.ReviewedAt, &row.GeneratedAt,
			&row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ReclaimStaleEODReports resets in-progress rows older than maxAge back to
// pending. A crashed builder must not leave a day stuck forever.
func (r *Repository) ReclaimStaleEODReports(ctx context.Context, maxAge time.Duration) (int, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE eod_reports SET status = 'pending', updated_at = NOW()
		WHERE status = 'in_progress' AND updated_at < NOW() - $1::interval`,
		fmt.Sprintf("%d seconds", int(maxAge.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("reclaim stale eod reports: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// HasEODReportForDate reports whether a row already exists for the day.
func (r *Repository) HasEODReportForDate(ctx context.Context, businessID string, date time.Time) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM eod_reports
			WHERE business_id = $1 AND report_date = $2::date
		)`, businessID, date).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has eod report: %w", err)
	}
	return exists, nil
}
