package importer

import "github.com/garyjia/labinvoice/internal/review"

// BatchResult summarises one import run
type BatchResult struct {
	Months     []MonthResult `json:"months"`
	Exceptions []Exception   `json:"exceptions"`
}

// HasExceptions reports whether any document was routed to review
func (r *BatchResult) HasExceptions() bool {
	return len(r.Exceptions) > 0
}

// MonthResult is what a run did to one month workbook
type MonthResult struct {
	Month          string           `json:"month"`
	Inserted       int              `json:"inserted"`
	Updated        int              `json:"updated"`
	Rows           int              `json:"rows"`
	WorkbookPath   string           `json:"workbook_path"`
	StatementPath  string           `json:"statement_path,omitempty"`
	StatementError string           `json:"statement_error,omitempty"`
	Documents      []DocumentChange `json:"documents"`
}

// DocumentChange is one merged document
type DocumentChange struct {
	Path        string `json:"path"`
	PatientName string `json:"patient_name"`
	DueDate     string `json:"due_date"`
	TotalCost   string `json:"total_cost"`
	Outcome     string `json:"outcome"`
}

// Exception is a document that needs manual review
type Exception struct {
	ID         int64              `json:"id,omitempty"`
	Path       string             `json:"path"`
	Name       string             `json:"name"`
	Stage      string             `json:"stage"`
	Kind       string             `json:"kind,omitempty"`
	Message    string             `json:"message"`
	Suggestion *review.Suggestion `json:"suggestion,omitempty"`
}
