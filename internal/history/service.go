// Package history records model lifecycle events (downloads, failures,
// deletions) in SQLite and serves them back paginated.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Service provides history recording and querying.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewService creates a new history service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Record inserts a new lifecycle event.
func (s *Service) Record(ctx context.Context, input CreateInput) (*Entry, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO download_history (event_type, filename, source, size_bytes, error)
		VALUES (?, ?, ?, ?, ?)`,
		string(input.EventType), input.Filename, input.Source, input.SizeBytes, input.Error,
	)
	if err != nil {
		return nil, fmt.Errorf("recording history event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading inserted event id: %w", err)
	}

	return &Entry{
		ID:        id,
		EventType: input.EventType,
		Filename:  input.Filename,
		Source:    input.Source,
		SizeBytes: input.SizeBytes,
		Error:     input.Error,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// List lists history entries with pagination and optional filtering.
func (s *Service) List(ctx context.Context, opts ListOptions) (*ListResponse, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = 50
	}
	if opts.PageSize > 100 {
		opts.PageSize = 100
	}

	var conds []string
	var args []any
	if opts.EventType != "" {
		conds = append(conds, "event_type = ?")
		args = append(args, opts.EventType)
	}
	if opts.Filename != "" {
		conds = append(conds, "filename = ?")
		args = append(args, opts.Filename)
	}

	var where string
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var totalCount int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM download_history"+where, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("counting history: %w", err)
	}

	query := "SELECT id, event_type, filename, source, size_bytes, error, created_at FROM download_history" +
		where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, opts.PageSize, (opts.Page-1)*opts.PageSize)...)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		var (
			entry     Entry
			eventType string
			createdAt sql.NullTime
		)
		if err := rows.Scan(&entry.ID, &eventType, &entry.Filename, &entry.Source, &entry.SizeBytes, &entry.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		entry.EventType = EventType(eventType)
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time.Format(time.RFC3339)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}

	totalPages := int(totalCount) / opts.PageSize
	if int(totalCount)%opts.PageSize > 0 {
		totalPages++
	}

	return &ListResponse{
		Items:      entries,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalCount: totalCount,
		TotalPages: totalPages,
	}, nil
}

// Prune deletes entries older than the given retention window and
// returns how many were removed.
func (s *Service) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM download_history WHERE created_at < datetime('now', ?)`,
		fmt.Sprintf("-%d seconds", int64(olderThan.Seconds())),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Msg("pruned old history entries")
	}
	return removed, nil
}

// DeleteAll deletes all history entries.
func (s *Service) DeleteAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM download_history`)
	return err
}

// LogDownloadStarted records the start of a model download.
func (s *Service) LogDownloadStarted(ctx context.Context, filename, source string) error {
	_, err := s.Record(ctx, CreateInput{
		EventType: EventTypeDownloadStarted,
		Filename:  filename,
		Source:    source,
	})
	return err
}

// LogDownloadCompleted records a finished model download.
func (s *Service) LogDownloadCompleted(ctx context.Context, filename, source string, sizeBytes int64) error {
	_, err := s.Record(ctx, CreateInput{
		EventType: EventTypeDownloadCompleted,
		Filename:  filename,
		Source:    source,
		SizeBytes: sizeBytes,
	})
	return err
}

// LogDownloadFailed records a failed or cancelled model download.
func (s *Service) LogDownloadFailed(ctx context.Context, filename, source string, cause error) error {
	input := CreateInput{
		EventType: EventTypeDownloadFailed,
		Filename:  filename,
		Source:    source,
	}
	if cause != nil {
		input.Error = cause.Error()
	}
	_, err := s.Record(ctx, input)
	return err
}

// LogModelDeleted records the removal of a downloaded model.
func (s *Service) LogModelDeleted(ctx context.Context, filename string) error {
	_, err := s.Record(ctx, CreateInput{
		EventType: EventTypeModelDeleted,
		Filename:  filename,
	})
	return err
}
