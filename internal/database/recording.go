package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/projectkasa/kasabot/internal/database/models"
)

// ErrNotFound is returned when a recording does not exist.
var ErrNotFound = errors.New("recording not found")

// RecordingListFilter narrows List results. Zero values mean "no filter".
type RecordingListFilter struct {
	UserID    int64
	Category  string
	Variant   string
	StartDate string // inclusive, RFC3339 or YYYY-MM-DD
	EndDate   string // inclusive
	Limit     int
	Offset    int
}

// Stats aggregates the index for the operator API and metrics.
type Stats struct {
	Total         int64            `json:"total"`
	DistinctUsers int64            `json:"distinct_users"`
	ByCategory    map[string]int64 `json:"by_category"`
}

// RecordingRepository stores and queries indexed recordings.
type RecordingRepository interface {
	Create(ctx context.Context, rec *models.Recording) error
	GetByID(ctx context.Context, id string) (*models.Recording, error)
	List(ctx context.Context, filter RecordingListFilter) ([]models.Recording, int, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Recording, error)
	CountByUser(ctx context.Context, userID int64) (int64, error)
	Stats(ctx context.Context) (*Stats, error)
}

// recordingRepo implements RecordingRepository.
type recordingRepo struct {
	db *DB
}

// NewRecordingRepository creates a new RecordingRepository.
func NewRecordingRepository(db *DB) RecordingRepository {
	return &recordingRepo{db: db}
}

const recordingColumns = `id, user_id, recorded_at, age_range, severity,
	 origin, file_name, file_path, prompt, prompt_category, variant`

// Create inserts a new recording row. An empty ID is filled with a fresh UUID.
func (r *recordingRepo) Create(ctx context.Context, rec *models.Recording) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO recordings (`+recordingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.RecordedAt, rec.AgeRange, rec.Severity,
		rec.Origin, rec.FileName, rec.FilePath, rec.Prompt,
		rec.PromptCategory, rec.Variant,
	)
	if err != nil {
		return fmt.Errorf("inserting recording: %w", err)
	}
	return nil
}

// GetByID returns a recording by ID.
func (r *recordingRepo) GetByID(ctx context.Context, id string) (*models.Recording, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id,
	))
}

// List returns recordings matching the filter, newest first, along with the
// total count of matching rows.
func (r *recordingRepo) List(ctx context.Context, filter RecordingListFilter) ([]models.Recording, int, error) {
	where := "1=1"
	args := []any{}

	if filter.UserID != 0 {
		where += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Category != "" {
		where += " AND prompt_category = ?"
		args = append(args, filter.Category)
	}
	if filter.Variant != "" {
		where += " AND variant = ?"
		args = append(args, filter.Variant)
	}
	if filter.StartDate != "" {
		where += " AND recorded_at >= ?"
		args = append(args, filter.StartDate)
	}
	if filter.EndDate != "" {
		where += " AND recorded_at <= ?"
		args = append(args, filter.EndDate)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM recordings WHERE " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting recordings: %w", err)
	}

	query := `SELECT ` + recordingColumns + ` FROM recordings WHERE ` + where +
		` ORDER BY recorded_at DESC`
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing recordings: %w", err)
	}
	defer rows.Close()

	var recs []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, 0, err
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating recordings: %w", err)
	}
	return recs, total, nil
}

// ListByUser returns all recordings for one user, oldest first.
func (r *recordingRepo) ListByUser(ctx context.Context, userID int64) ([]models.Recording, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE user_id = ? ORDER BY recorded_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing user recordings: %w", err)
	}
	defer rows.Close()

	var recs []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// CountByUser returns how many recordings one user has saved.
func (r *recordingRepo) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM recordings WHERE user_id = ?", userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting user recordings: %w", err)
	}
	return n, nil
}

// Stats returns aggregate totals across the whole index.
func (r *recordingRepo) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByCategory: make(map[string]int64)}

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT user_id) FROM recordings",
	).Scan(&st.Total, &st.DistinctUsers)
	if err != nil {
		return nil, fmt.Errorf("counting recordings: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT prompt_category, COUNT(*) FROM recordings GROUP BY prompt_category",
	)
	if err != nil {
		return nil, fmt.Errorf("grouping recordings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cat string
		var n int64
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("scanning category count: %w", err)
		}
		st.ByCategory[cat] = n
	}
	return st, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecording(s scanner) (*models.Recording, error) {
	var rec models.Recording
	err := s.Scan(
		&rec.ID, &rec.UserID, &rec.RecordedAt, &rec.AgeRange, &rec.Severity,
		&rec.Origin, &rec.FileName, &rec.FilePath, &rec.Prompt,
		&rec.PromptCategory, &rec.Variant,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning recording: %w", err)
	}
	return &rec, nil
}

func (r *recordingRepo) scanOne(row *sql.Row) (*models.Recording, error) {
	return scanRecording(row)
}
