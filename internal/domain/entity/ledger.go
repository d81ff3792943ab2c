package entity

import "time"

// Stages at which a document can be routed to manual review
const (
	StageConvert = "convert"
	StageExtract = "extract"
	StageParse   = "parse"
	StageSave    = "save"
)

// ProcessedDocument is one ledger line: a document whose record was merged
// into a month workbook.
type ProcessedDocument struct {
	ID          int64     `json:"id"`
	Path        string    `json:"path"`
	Month       string    `json:"month"`
	PatientName string    `json:"patient_name"`
	DueDate     time.Time `json:"due_date"`
	TotalCost   string    `json:"total_cost"`
	Outcome     string    `json:"outcome"` // inserted or updated
	ProcessedAt time.Time `json:"processed_at"`
}

// ReviewException is a document that could not be merged and waits for a
// person to look at it. Suggestion holds an optional machine reading of the
// document; it is never merged automatically.
type ReviewException struct {
	ID         int64      `json:"id"`
	Path       string     `json:"path"`
	Stage      string     `json:"stage"`
	Kind       string     `json:"kind,omitempty"`
	Message    string     `json:"message"`
	Suggestion string     `json:"suggestion,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
