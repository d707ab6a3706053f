package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/topicforge/topicforge/pkg/llm"
	"github.com/topicforge/topicforge/pkg/models"
)

// Generator is the LLM surface the processor needs. Satisfied by
// *llm.Client; tests substitute stubs.
type Generator interface {
	GenerateJSON(ctx context.Context, systemInstruction, userPrompt string) (string, error)
}

// Processor turns one claimed batch into a BatchOutcome with a single
// LLM call. Stateless and safe for concurrent use.
type Processor struct {
	generator Generator
}

// New creates a Processor over the given generator.
func New(generator Generator) *Processor {
	return &Processor{generator: generator}
}

// envelopeItem is one element of the strict response envelope.
type envelopeItem struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	Tags            *[]string `json:"tags"`
	Technologies    *[]string `json:"technologies"`
	ComplexityLevel string    `json:"complexity_level"`
}

// Process sends the batch to the LLM and validates the envelope. The
// returned items follow the input order. Validation failures are fatal for
// the entire batch; there is no partial parse.
func (p *Processor) Process(ctx context.Context, items []models.QueueItem) BatchOutcome {
	if len(items) == 0 {
		return Success(nil)
	}

	raw, err := p.generator.GenerateJSON(ctx, systemInstruction, buildUserPrompt(items))
	if err != nil {
		if llm.IsTransient(err) {
			return TransientFail(err)
		}
		return FatalFail(err)
	}

	var envelope []envelopeItem
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return FatalFail(fmt.Errorf("invalid response envelope: %w", err))
	}

	byID, err := validateEnvelope(items, envelope)
	if err != nil {
		return FatalFail(err)
	}

	results := make([]PerItem, 0, len(items))
	for _, item := range items {
		e := byID[item.ID]
		results = append(results, PerItem{
			ID:           item.ID,
			CleanedTitle: e.Title,
			Topic: models.TopicPayload{
				Title:           e.Title,
				Description:     e.Description,
				Category:        e.Category,
				Tags:            *e.Tags,
				Technologies:    *e.Technologies,
				ComplexityLevel: e.ComplexityLevel,
			},
		})
	}
	return Success(results)
}

// validateEnvelope enforces the strict contract: exactly one entry per
// input id, no extras, no duplicates, all required fields present.
func validateEnvelope(items []models.QueueItem, envelope []envelopeItem) (map[int64]envelopeItem, error) {
	if len(envelope) != len(items) {
		return nil, fmt.Errorf("envelope has %d entries, expected %d", len(envelope), len(items))
	}

	expected := make(map[int64]bool, len(items))
	for _, item := range items {
		expected[item.ID] = true
	}

	byID := make(map[int64]envelopeItem, len(envelope))
	for _, e := range envelope {
		if !expected[e.ID] {
			return nil, fmt.Errorf("envelope entry has unknown id %d", e.ID)
		}
		if _, dup := byID[e.ID]; dup {
			return nil, fmt.Errorf("envelope repeats id %d", e.ID)
		}
		if e.Title == "" {
			return nil, fmt.Errorf("envelope entry %d is missing title", e.ID)
		}
		if e.Description == "" {
			return nil, fmt.Errorf("envelope entry %d is missing description", e.ID)
		}
		if e.Category == "" {
			return nil, fmt.Errorf("envelope entry %d is missing category", e.ID)
		}
		if e.ComplexityLevel == "" {
			return nil, fmt.Errorf("envelope entry %d is missing complexity_level", e.ID)
		}
		if e.Tags == nil {
			return nil, fmt.Errorf("envelope entry %d is missing tags", e.ID)
		}
		if e.Technologies == nil {
			return nil, fmt.Errorf("envelope entry %d is missing technologies", e.ID)
		}
		byID[e.ID] = e
	}
	return byID, nil
}
