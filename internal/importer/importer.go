// Package importer runs a batch of invoice documents through conversion,
// text extraction and parsing, then merges the parsed records into their
// month workbooks.
package importer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/labinvoice/internal/domain/entity"
	"github.com/garyjia/labinvoice/internal/invoice"
	"github.com/garyjia/labinvoice/internal/pricing"
	"github.com/garyjia/labinvoice/internal/reconcile"
	"github.com/garyjia/labinvoice/internal/review"
	"github.com/garyjia/labinvoice/internal/statement"
	"github.com/garyjia/labinvoice/internal/storage"
)

// DocumentConverter turns a source document into a PDF on disk
type DocumentConverter interface {
	EnsurePDF(ctx context.Context, path string) (pdfPath string, cleanup func(), err error)
}

// TextExtractor reads the text of a PDF
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// RecordStore loads and saves month record sets
type RecordStore interface {
	Load(month string) (reconcile.RecordSet, error)
	Save(month string, set reconcile.RecordSet) error
}

// StatementWriter renders a month statement to a file
type StatementWriter interface {
	WriteFile(path string, s statement.Statement) error
}

// Ledger records merged documents
type Ledger interface {
	Record(ctx context.Context, tx *sql.Tx, doc *entity.ProcessedDocument) error
	DeleteMonth(ctx context.Context, month string) (int64, error)
}

// ExceptionStore persists documents routed to review
type ExceptionStore interface {
	Create(ctx context.Context, exc *entity.ReviewException) error
}

// Suggester reads a rejected document for the reviewer
type Suggester interface {
	Suggest(ctx context.Context, text string, parseErr error) (*review.Suggestion, error)
}

// Transactor runs fn in a database transaction
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error
}

// Dependencies are the collaborators of a Service. Statements, Ledger,
// Exceptions, Suggester and Tx may be nil.
type Dependencies struct {
	Months     *storage.MonthStore
	Converter  DocumentConverter
	Extractor  TextExtractor
	Store      RecordStore
	Statements StatementWriter
	Ledger     Ledger
	Exceptions ExceptionStore
	Suggester  Suggester
	Tx         Transactor
}

// Options tune a Service
type Options struct {
	Workers             int
	MonthOverride       string
	BlankMixedUnitPrice bool
	ClientNameOverride  string
}

// Service imports invoice documents
type Service struct {
	deps   Dependencies
	opts   Options
	parser *invoice.Parser
	logger *zap.Logger

	// one batch at a time: month record sets are read-modify-write
	mu sync.Mutex
}

// NewService creates an import service
func NewService(deps Dependencies, opts Options, logger *zap.Logger) *Service {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Service{
		deps:   deps,
		opts:   opts,
		parser: invoice.NewParser(),
		logger: logger,
	}
}

// parsedDoc is one document that made it through parsing
type parsedDoc struct {
	path   string
	parsed *entity.ParsedInvoice
}

// docResult is the outcome of the per-document stages
type docResult struct {
	doc *parsedDoc
	exc *Exception
}

// ImportFiles converts, extracts and parses paths in parallel, then merges
// the records month by month. Documents that fail are returned as
// exceptions and do not stop the rest of the batch. The error is non-nil
// only when ctx is cancelled.
func (s *Service) ImportFiles(ctx context.Context, paths []string) (*BatchResult, error) {
	s.logger.Info("Import started", zap.Int("documents", len(paths)), zap.Int("workers", s.opts.Workers))

	results := make([]docResult, len(paths))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(s.opts.Workers, len(paths)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.processFile(ctx, paths[i])
			}
		}()
	}
	for i := range paths {
		select {
		case jobs <- i:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("import cancelled: %w", err)
	}

	var docs []parsedDoc
	var excs []Exception
	for _, r := range results {
		switch {
		case r.doc != nil:
			docs = append(docs, *r.doc)
		case r.exc != nil:
			excs = append(excs, *r.exc)
		}
	}
	return s.finish(ctx, docs, excs), nil
}

// ImportText parses text as the document name and merges the record
func (s *Service) ImportText(ctx context.Context, name, text string) (*BatchResult, error) {
	r := s.parseText(ctx, name, text)
	if r.exc != nil {
		return s.finish(ctx, nil, []Exception{*r.exc}), nil
	}
	return s.finish(ctx, []parsedDoc{*r.doc}, nil), nil
}

// Parse parses text without merging it anywhere
func (s *Service) Parse(text string) (*entity.ParsedInvoice, error) {
	return s.parser.ParseDetailed(text)
}

// MonthRecords returns the stored records of month
func (s *Service) MonthRecords(month string) (reconcile.RecordSet, error) {
	return s.deps.Store.Load(month)
}

// ResetMonth removes the month's outputs and its ledger lines
func (s *Service) ResetMonth(ctx context.Context, month string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.deps.Months.ResetMonth(month)
	if err != nil {
		return nil, err
	}
	if s.deps.Ledger != nil {
		n, err := s.deps.Ledger.DeleteMonth(ctx, month)
		if err != nil {
			return removed, fmt.Errorf("failed to clear ledger for %s: %w", month, err)
		}
		s.logger.Info("Cleared ledger", zap.String("month", month), zap.Int64("documents", n))
	}
	return removed, nil
}

func (s *Service) processFile(ctx context.Context, path string) docResult {
	if ctx.Err() != nil {
		return docResult{}
	}

	pdfPath, cleanup, err := s.deps.Converter.EnsurePDF(ctx, path)
	if err != nil {
		return docResult{exc: newException(path, entity.StageConvert, "", err)}
	}
	defer cleanup()

	text, err := s.deps.Extractor.ExtractText(ctx, pdfPath)
	if err != nil {
		return docResult{exc: newException(path, entity.StageExtract, "", err)}
	}

	return s.parseText(ctx, path, text)
}

func (s *Service) parseText(ctx context.Context, path, text string) docResult {
	parsed, err := s.parser.ParseDetailed(text)
	if err != nil {
		exc := newException(path, entity.StageParse, string(invoice.KindOf(err)), err)
		s.logger.Warn("Failed to parse invoice",
			zap.String("path", path),
			zap.String("kind", exc.Kind),
			zap.Error(err))
		if s.deps.Suggester != nil {
			sug, serr := s.deps.Suggester.Suggest(ctx, text, err)
			if serr != nil {
				s.logger.Warn("Failed to get review suggestion", zap.String("path", path), zap.Error(serr))
			} else {
				exc.Suggestion = sug
			}
		}
		return docResult{exc: exc}
	}

	s.logger.Info("Parsed invoice",
		zap.String("path", path),
		zap.String("patient_name", parsed.Record.PatientName),
		zap.String("due_date", parsed.Record.DueDate.Format(entity.DateLayout)),
		zap.String("total_cost", parsed.Record.TotalCost.StringFixed(2)),
		zap.Int("line_items", len(parsed.Items)))
	return docResult{doc: &parsedDoc{path: path, parsed: parsed}}
}

// finish merges docs into their months and persists the exceptions
func (s *Service) finish(ctx context.Context, docs []parsedDoc, excs []Exception) *BatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &BatchResult{Months: []MonthResult{}}

	parsed := make([]entity.ParsedInvoice, len(docs))
	for i, d := range docs {
		parsed[i] = *d.parsed
	}
	var records []entity.InvoiceRecord
	if s.opts.BlankMixedUnitPrice {
		records = pricing.BlankMixedUnitPrices(parsed)
	} else {
		records = make([]entity.InvoiceRecord, len(parsed))
		for i, p := range parsed {
			records[i] = p.Record
		}
	}

	// GroupByMonth keeps input order within a month, so the paths line up
	paths := make(map[string][]string)
	for i, r := range records {
		m := storage.MonthOf(r.DueDate, s.opts.MonthOverride)
		paths[m] = append(paths[m], docs[i].path)
	}

	for _, batch := range reconcile.GroupByMonth(records, s.opts.MonthOverride) {
		mr, err := s.mergeMonth(ctx, batch, paths[batch.Month])
		if err != nil {
			for _, p := range paths[batch.Month] {
				excs = append(excs, *newException(p, entity.StageSave, "", err))
			}
			continue
		}
		result.Months = append(result.Months, *mr)
	}

	for i := range excs {
		s.recordException(ctx, &excs[i])
	}
	result.Exceptions = excs

	s.logger.Info("Import finished",
		zap.Int("months", len(result.Months)),
		zap.Int("merged", len(docs)),
		zap.Int("exceptions", len(excs)))
	return result
}

func (s *Service) mergeMonth(ctx context.Context, batch reconcile.MonthBatch, paths []string) (*MonthResult, error) {
	existing, err := s.deps.Store.Load(batch.Month)
	if err != nil {
		return nil, err
	}

	set, changes := reconcile.ApplyBatch(existing, batch.Records)
	if err := s.deps.Store.Save(batch.Month, set); err != nil {
		return nil, err
	}

	mr := &MonthResult{
		Month:        batch.Month,
		Rows:         len(set),
		WorkbookPath: s.deps.Months.WorkbookPath(batch.Month),
		Documents:    make([]DocumentChange, len(changes)),
	}
	for i, c := range changes {
		switch c.Outcome {
		case reconcile.Inserted:
			mr.Inserted++
		case reconcile.Updated:
			mr.Updated++
		}
		mr.Documents[i] = DocumentChange{
			Path:        paths[i],
			PatientName: c.Record.PatientName,
			DueDate:     c.Record.DueDate.Format(entity.DateLayout),
			TotalCost:   c.Record.TotalCost.StringFixed(2),
			Outcome:     c.Outcome.String(),
		}
		s.logger.Info("Reconciled record",
			zap.String("month", batch.Month),
			zap.String("path", paths[i]),
			zap.String("outcome", c.Outcome.String()))
	}

	if s.deps.Statements != nil {
		path := s.deps.Months.StatementPath(batch.Month)
		st := statement.Statement{Month: batch.Month, Client: s.clientName(batch.Records), Records: set}
		if err := s.deps.Statements.WriteFile(path, st); err != nil {
			s.logger.Error("Failed to write statement", zap.String("month", batch.Month), zap.Error(err))
			mr.StatementError = err.Error()
		} else {
			mr.StatementPath = path
		}
	}

	if err := s.recordLedger(ctx, batch.Month, changes, paths); err != nil {
		s.logger.Error("Failed to record ledger", zap.String("month", batch.Month), zap.Error(err))
	}
	return mr, nil
}

func (s *Service) clientName(records []entity.InvoiceRecord) string {
	if s.opts.ClientNameOverride != "" {
		return s.opts.ClientNameOverride
	}
	for _, r := range records {
		if r.ClientName != "" {
			return r.ClientName
		}
	}
	return ""
}

func (s *Service) recordLedger(ctx context.Context, month string, changes []reconcile.Change, paths []string) error {
	if s.deps.Ledger == nil {
		return nil
	}
	now := time.Now().UTC()
	write := func(tx *sql.Tx) error {
		for i, c := range changes {
			doc := &entity.ProcessedDocument{
				Path:        paths[i],
				Month:       month,
				PatientName: c.Record.PatientName,
				DueDate:     c.Record.DueDate,
				TotalCost:   c.Record.TotalCost.StringFixed(2),
				Outcome:     c.Outcome.String(),
				ProcessedAt: now,
			}
			if err := s.deps.Ledger.Record(ctx, tx, doc); err != nil {
				return err
			}
		}
		return nil
	}
	if s.deps.Tx == nil {
		return write(nil)
	}
	return s.deps.Tx.WithTransaction(ctx, write)
}

func (s *Service) recordException(ctx context.Context, exc *Exception) {
	s.logger.Warn("Document routed to review",
		zap.String("path", exc.Path),
		zap.String("stage", exc.Stage),
		zap.String("kind", exc.Kind),
		zap.String("message", exc.Message))
	if s.deps.Exceptions == nil {
		return
	}
	row := &entity.ReviewException{
		Path:    exc.Path,
		Stage:   exc.Stage,
		Kind:    exc.Kind,
		Message: exc.Message,
	}
	if exc.Suggestion != nil {
		row.Suggestion = exc.Suggestion.Encode()
	}
	if err := s.deps.Exceptions.Create(ctx, row); err != nil {
		s.logger.Error("Failed to store review exception", zap.String("path", exc.Path), zap.Error(err))
		return
	}
	exc.ID = row.ID
}

func newException(path, stage, kind string, err error) *Exception {
	var pe *invoice.ParseError
	if kind == "" && errors.As(err, &pe) {
		kind = string(pe.Kind)
	}
	return &Exception{
		Path:    path,
		Name:    filepath.Base(path),
		Stage:   stage,
		Kind:    kind,
		Message: err.Error(),
	}
}
