package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/labinvoice/internal/domain/entity"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("not found")

// ExceptionRepository handles documents routed to manual review
type ExceptionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExceptionRepository creates a new exception repository
func NewExceptionRepository(db *sql.DB, logger *zap.Logger) *ExceptionRepository {
	return &ExceptionRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a review exception
func (r *ExceptionRepository) Create(ctx context.Context, exc *entity.ReviewException) error {
	query := `
		INSERT INTO review_exceptions (path, stage, kind, message, suggestion, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if exc.CreatedAt.IsZero() {
		exc.CreatedAt = time.Now().UTC()
	}
	result, err := r.db.ExecContext(ctx, query,
		exc.Path, exc.Stage, exc.Kind, exc.Message, exc.Suggestion, exc.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create review exception", zap.String("path", exc.Path), zap.Error(err))
		return fmt.Errorf("failed to create review exception: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	exc.ID = id
	return nil
}

// ListOpen returns unresolved exceptions, oldest first
func (r *ExceptionRepository) ListOpen(ctx context.Context) ([]*entity.ReviewException, error) {
	query := `
		SELECT id, path, stage, kind, message, suggestion, created_at, resolved_at
		FROM review_exceptions
		WHERE resolved_at IS NULL
		ORDER BY id ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list review exceptions", zap.Error(err))
		return nil, fmt.Errorf("failed to list review exceptions: %w", err)
	}
	defer rows.Close()

	var out []*entity.ReviewException
	for rows.Next() {
		exc := &entity.ReviewException{}
		var resolved sql.NullTime
		if err := rows.Scan(&exc.ID, &exc.Path, &exc.Stage, &exc.Kind, &exc.Message,
			&exc.Suggestion, &exc.CreatedAt, &resolved); err != nil {
			return nil, fmt.Errorf("failed to scan review exception: %w", err)
		}
		if resolved.Valid {
			exc.ResolvedAt = &resolved.Time
		}
		out = append(out, exc)
	}
	return out, rows.Err()
}

// Resolve marks an exception as handled
func (r *ExceptionRepository) Resolve(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE review_exceptions SET resolved_at = ? WHERE id = ? AND resolved_at IS NULL`,
		time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to resolve review exception", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to resolve review exception: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("open review exception %d: %w", id, ErrNotFound)
	}
	return nil
}
