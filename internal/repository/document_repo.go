package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/labinvoice/internal/domain/entity"
)

// DocumentRepository handles the processed documents ledger
type DocumentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sql.DB, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

// Record appends a ledger line. tx may be nil.
func (r *DocumentRepository) Record(ctx context.Context, tx *sql.Tx, doc *entity.ProcessedDocument) error {
	query := `
		INSERT INTO processed_documents (
			path, month, patient_name, due_date, total_cost, outcome, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if doc.ProcessedAt.IsZero() {
		doc.ProcessedAt = time.Now().UTC()
	}
	args := []interface{}{
		doc.Path,
		doc.Month,
		doc.PatientName,
		doc.DueDate.Format(time.DateOnly),
		doc.TotalCost,
		doc.Outcome,
		doc.ProcessedAt,
	}

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.ExecContext(ctx, query, args...)
	} else {
		result, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		r.logger.Error("Failed to record processed document", zap.String("path", doc.Path), zap.Error(err))
		return fmt.Errorf("failed to record processed document: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	doc.ID = id
	return nil
}

// ListByMonth returns the ledger lines of a month, oldest first
func (r *DocumentRepository) ListByMonth(ctx context.Context, month string) ([]*entity.ProcessedDocument, error) {
	query := `
		SELECT id, path, month, patient_name, due_date, total_cost, outcome, processed_at
		FROM processed_documents
		WHERE month = ?
		ORDER BY id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, month)
	if err != nil {
		r.logger.Error("Failed to list processed documents", zap.String("month", month), zap.Error(err))
		return nil, fmt.Errorf("failed to list processed documents: %w", err)
	}
	defer rows.Close()

	var docs []*entity.ProcessedDocument
	for rows.Next() {
		doc := &entity.ProcessedDocument{}
		var due string
		if err := rows.Scan(&doc.ID, &doc.Path, &doc.Month, &doc.PatientName, &due,
			&doc.TotalCost, &doc.Outcome, &doc.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan processed document: %w", err)
		}
		if doc.DueDate, err = time.Parse(time.DateOnly, due); err != nil {
			return nil, fmt.Errorf("failed to parse due date %q: %w", due, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteMonth drops the ledger lines of a month, used when a month is reset
func (r *DocumentRepository) DeleteMonth(ctx context.Context, month string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM processed_documents WHERE month = ?`, month)
	if err != nil {
		r.logger.Error("Failed to delete processed documents", zap.String("month", month), zap.Error(err))
		return 0, fmt.Errorf("failed to delete processed documents: %w", err)
	}
	return result.RowsAffected()
}
