package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/labinvoice/internal/domain/entity"
	"github.com/garyjia/labinvoice/internal/importer"
	"github.com/garyjia/labinvoice/internal/invoice"
	"github.com/garyjia/labinvoice/internal/reconcile"
	"github.com/garyjia/labinvoice/internal/repository"
	"github.com/garyjia/labinvoice/internal/storage"
)

// ImportService is what the handlers need from the importer
type ImportService interface {
	Parse(text string) (*entity.ParsedInvoice, error)
	ImportFiles(ctx context.Context, paths []string) (*importer.BatchResult, error)
	ImportText(ctx context.Context, name, text string) (*importer.BatchResult, error)
	MonthRecords(month string) (reconcile.RecordSet, error)
	ResetMonth(ctx context.Context, month string) ([]string, error)
}

// ExceptionService lists and resolves documents waiting for review
type ExceptionService interface {
	ListOpen(ctx context.Context) ([]*entity.ReviewException, error)
	Resolve(ctx context.Context, id int64) error
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	imports    ImportService
	exceptions ExceptionService
	uploads    storage.FileStorage
	maxUpload  int64
	logger     *zap.Logger
}

// NewHandlers creates a new Handlers instance. maxUpload is in bytes.
func NewHandlers(
	imports ImportService,
	exceptions ExceptionService,
	uploads storage.FileStorage,
	maxUpload int64,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		imports:    imports,
		exceptions: exceptions,
		uploads:    uploads,
		maxUpload:  maxUpload,
		logger:     logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// RecordResponse is one workbook row as shown in reports
type RecordResponse struct {
	DueDate          string `json:"due_date"`
	PatientName      string `json:"patient_name"`
	TotalUnits       int    `json:"total_units"`
	UnitPrice        string `json:"unit_price"` // empty when mixed
	AlloysExtrasCost string `json:"alloys_extras_cost"`
	TotalCost        string `json:"total_cost"`
	ClientName       string `json:"client_name,omitempty"`
}

// LineItemResponse is one parsed table row
type LineItemResponse struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Cost        string `json:"cost"`
	Line        int    `json:"line"`
}

// ParseResponse is the result of POST /api/parse
type ParseResponse struct {
	Record RecordResponse     `json:"record"`
	Items  []LineItemResponse `json:"items"`
}

// ParseErrorResponse describes a document the parser rejected
type ParseErrorResponse struct {
	Kind    string `json:"kind"`
	Line    int    `json:"line,omitempty"`
	Offset  int    `json:"offset,omitempty"`
	Context string `json:"context,omitempty"`
	Message string `json:"message"`
}

// MonthResponse is the result of GET /api/months/:month
type MonthResponse struct {
	Month   string           `json:"month"`
	Records []RecordResponse `json:"records"`
	Total   string           `json:"total"`
}

func toRecordResponse(r entity.InvoiceRecord) RecordResponse {
	resp := RecordResponse{
		DueDate:          r.DueDate.Format(entity.DateLayout),
		PatientName:      r.PatientName,
		TotalUnits:       r.TotalUnits,
		AlloysExtrasCost: r.AlloysExtrasCost.StringFixed(2),
		TotalCost:        r.TotalCost.StringFixed(2),
		ClientName:       r.ClientName,
	}
	if r.UnitPrice.Valid {
		resp.UnitPrice = r.UnitPrice.Decimal.StringFixed(2)
	}
	return resp
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// ParseText handles POST /api/parse. The body is the extracted invoice text.
func (h *Handlers) ParseText(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "failed to read request body"})
		return
	}

	parsed, err := h.imports.Parse(string(body))
	if err != nil {
		var pe *invoice.ParseError
		if errors.As(err, &pe) {
			c.JSON(http.StatusUnprocessableEntity, Response{
				Success: false,
				Data: ParseErrorResponse{
					Kind:    string(pe.Kind),
					Line:    pe.Line,
					Offset:  pe.Offset,
					Context: pe.Context,
					Message: pe.Error(),
				},
				Error: pe.Error(),
			})
			return
		}
		h.logger.Error("Failed to parse text", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to parse text"})
		return
	}

	resp := ParseResponse{
		Record: toRecordResponse(parsed.Record),
		Items:  make([]LineItemResponse, len(parsed.Items)),
	}
	for i, it := range parsed.Items {
		resp.Items[i] = LineItemResponse{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.StringFixed(2),
			Cost:        it.Cost.StringFixed(2),
			Line:        it.Line,
		}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: resp})
}

// ImportFiles handles POST /api/import with multipart "files"
func (h *Handlers) ImportFiles(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid multipart form"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "no files uploaded"})
		return
	}

	batchDir, err := h.uploads.NewBatchDir()
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to store upload"})
		return
	}

	paths := make([]string, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "failed to read " + fh.Filename})
			return
		}
		path, err := h.uploads.SaveUpload(batchDir, fh.Filename, f)
		f.Close()
		if err != nil {
			h.logger.Error("Failed to save upload", zap.String("name", fh.Filename), zap.Error(err))
			c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to store " + fh.Filename})
			return
		}
		paths = append(paths, path)
	}

	result, err := h.imports.ImportFiles(c.Request.Context(), paths)
	if err != nil {
		h.logger.Error("Failed to import upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "import failed"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// ImportText handles POST /api/import/text. The body is extracted invoice
// text; the optional "name" query parameter labels the document.
func (h *Handlers) ImportText(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "failed to read request body"})
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "empty document text"})
		return
	}
	name := c.DefaultQuery("name", "pasted text")

	result, err := h.imports.ImportText(c.Request.Context(), name, string(body))
	if err != nil {
		h.logger.Error("Failed to import text", zap.String("name", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "import failed"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// GetMonth handles GET /api/months/:month
func (h *Handlers) GetMonth(c *gin.Context) {
	month := c.Param("month")
	if err := storage.ValidateMonth(month); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	set, err := h.imports.MonthRecords(month)
	if err != nil {
		h.logger.Error("Failed to load month", zap.String("month", month), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to load month"})
		return
	}

	resp := MonthResponse{Month: month, Records: make([]RecordResponse, len(set))}
	total := set.Total()
	for i, r := range set {
		resp.Records[i] = toRecordResponse(r)
	}
	resp.Total = total.StringFixed(2)
	c.JSON(http.StatusOK, Response{Success: true, Data: resp})
}

// ResetMonth handles DELETE /api/months/:month
func (h *Handlers) ResetMonth(c *gin.Context) {
	month := c.Param("month")
	if err := storage.ValidateMonth(month); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	removed, err := h.imports.ResetMonth(c.Request.Context(), month)
	if err != nil {
		h.logger.Error("Failed to reset month", zap.String("month", month), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to reset month"})
		return
	}
	if removed == nil {
		removed = []string{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{"month": month, "removed": removed}})
}

// ListExceptions handles GET /api/exceptions
func (h *Handlers) ListExceptions(c *gin.Context) {
	list, err := h.exceptions.ListOpen(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list exceptions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to list exceptions"})
		return
	}
	if list == nil {
		list = []*entity.ReviewException{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: list})
}

// ResolveException handles POST /api/exceptions/:id/resolve
func (h *Handlers) ResolveException(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid exception ID"})
		return
	}

	if err := h.exceptions.Resolve(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, Response{Success: false, Error: "exception not found"})
			return
		}
		h.logger.Error("Failed to resolve exception", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to resolve exception"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{"id": id, "resolved": true}})
}
