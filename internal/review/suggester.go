// Package review asks a language model for a best-effort reading of an
// invoice the parser rejected. The answer is stored for the person who
// reviews the document and is never merged into a workbook.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/garyjia/labinvoice/internal/domain/entity"
	"github.com/garyjia/labinvoice/internal/invoice"
)

// ErrEmptyResponse is returned when the model answers with no choices
var ErrEmptyResponse = errors.New("no response from model")

// maxPromptText bounds the document text sent with one request
const maxPromptText = 6000

// ChatClient is the part of the OpenAI client the suggester uses
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds model settings
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Suggestion is the model's reading of the footer fact and total
type Suggestion struct {
	PatientName string  `json:"patient_name"`
	DueDate     string  `json:"due_date"`
	TotalCost   string  `json:"total_cost"`
	Confidence  float64 `json:"confidence"`
}

// Encode returns the suggestion as the JSON stored with an exception
func (s *Suggestion) Encode() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Suggester produces review suggestions
type Suggester struct {
	client ChatClient
	cfg    Config
	logger *zap.Logger
}

// NewSuggester creates a suggester backed by the OpenAI API
func NewSuggester(cfg Config, logger *zap.Logger) *Suggester {
	return NewSuggesterWithClient(openai.NewClient(cfg.APIKey), cfg, logger)
}

// NewSuggesterWithClient creates a suggester with a custom chat client
func NewSuggesterWithClient(client ChatClient, cfg Config, logger *zap.Logger) *Suggester {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Suggester{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Suggest asks the model to read text, which the parser rejected with
// parseErr.
func (s *Suggester) Suggest(ctx context.Context, text string, parseErr error) (*Suggestion, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You read dental lab invoices extracted from PDFs. The text may be letter-spaced. Always respond with valid JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(text, parseErr),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		s.logger.Error("Failed to call OpenAI API", zap.Error(err))
		return nil, fmt.Errorf("failed to request suggestion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	content := resp.Choices[0].Message.Content
	var sug Suggestion
	if err := json.Unmarshal([]byte(content), &sug); err != nil {
		s.logger.Error("Failed to parse suggestion",
			zap.Error(err),
			zap.String("content", content))
		return nil, fmt.Errorf("failed to parse suggestion: %w", err)
	}
	sug.normalize()

	s.logger.Info("Review suggestion received",
		zap.String("patient_name", sug.PatientName),
		zap.String("due_date", sug.DueDate),
		zap.Float64("confidence", sug.Confidence))
	return &sug, nil
}

// normalize drops fields that do not have the expected shape
func (s *Suggestion) normalize() {
	s.PatientName = strings.TrimSpace(s.PatientName)
	if _, err := time.Parse(entity.DateLayout, s.DueDate); err != nil {
		s.DueDate = ""
	}
	if s.TotalCost != "" {
		if d, err := invoice.ParseAmount(s.TotalCost); err != nil {
			s.TotalCost = ""
		} else {
			s.TotalCost = d.StringFixed(2)
		}
	}
	switch {
	case s.Confidence < 0:
		s.Confidence = 0
	case s.Confidence > 1:
		s.Confidence = 1
	}
}

func buildPrompt(text string, parseErr error) string {
	if len(text) > maxPromptText {
		cut := maxPromptText
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	reason := "unknown"
	if parseErr != nil {
		reason = parseErr.Error()
	}
	return fmt.Sprintf(`An automatic parser rejected this invoice (%s).

Find the patient name, the due date and the invoice total. The footer normally
reads "Patient: <name>, Due <m/d/yyyy>"; the total is the sum of the Cost column.

Return JSON:
{
  "patient_name": "string",
  "due_date": "m/d/yyyy",
  "total_cost": "1234.56",
  "confidence": number between 0 and 1
}
Use "" for anything you cannot read. Do not guess.

Invoice text:
%s`, reason, text)
}
