package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

type classifyResponse struct {
	SuggestedParser      string             `json:"suggested_parser"`
	SourceType           string             `json:"source_type"`
	Confidence           float64            `json:"confidence"`
	MappingSuggestion    map[string]string  `json:"mapping_suggestion"`
	DecisionLog          []decisionEntry    `json:"decision_log"`
	RequiresConfirmation bool               `json:"requires_confirmation"`
	AvailableParsers     []string           `json:"available_parsers"`
	Probabilities        map[string]float64 `json:"probabilities"`
	Provider             string             `json:"provider"`
}

type decisionEntry struct {
	Step       string    `json:"step"`
	At         time.Time `json:"at"`
	Confidence float64   `json:"confidence"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error"`
}

// aiResponseSchema is what a model-backed answer must satisfy before it is
// trusted. Heuristic answers come from deterministic server code and skip it.
var aiResponseSchema = map[string]any{
	"type":     "object",
	"required": []string{"suggested_parser", "source_type", "confidence"},
	"properties": map[string]any{
		"suggested_parser": map[string]any{"type": "string", "minLength": 1},
		"source_type":      map[string]any{"type": "string", "minLength": 1},
		"confidence":       map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		"mapping_suggestion": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "string"},
		},
		"probabilities": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
		"available_parsers": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"requires_confirmation": map[string]any{"type": "boolean"},
		"provider":              map[string]any{"type": "string"},
		"decision_log":          map[string]any{"type": "array"},
	},
}

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

// DefaultClassifySampleBytes bounds how much of a file is sent for
// classification. Larger files are sent as a head sample with sample=true.
const DefaultClassifySampleBytes = 1 << 20

// ClassifyStrategy classifies a file with POST /api/imports/classify. The AI
// and heuristic strategies differ only in the use_ai flag and validation.
type ClassifyStrategy struct {
	client      *Client
	name        string
	useAI       bool
	schema      *jsonschema.Schema
	sampleBytes int64
}

func NewAIStrategy(client *Client) (*ClassifyStrategy, error) {
	schema, err := compileSchema("classification.json", aiResponseSchema)
	if err != nil {
		return nil, fmt.Errorf("ai classification schema: %w", err)
	}
	return &ClassifyStrategy{client: client, name: "ai", useAI: true, schema: schema, sampleBytes: DefaultClassifySampleBytes}, nil
}

func NewHeuristicStrategy(client *Client) *ClassifyStrategy {
	return &ClassifyStrategy{client: client, name: "heuristic", sampleBytes: DefaultClassifySampleBytes}
}

func (s *ClassifyStrategy) Name() string {
	return s.name
}

func (s *ClassifyStrategy) Classify(ctx context.Context, file domain.FileSource) (*domain.ClassificationResult, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", file.Name(), err)
	}
	defer rc.Close()

	fields := map[string]string{"use_ai": strconv.FormatBool(s.useAI)}
	var content io.Reader = rc
	if s.sampleBytes > 0 && file.Size() > s.sampleBytes {
		content = io.LimitReader(rc, s.sampleBytes)
		fields["sample"] = "true"
	}
	req, err := multipartRequest(apiPrefix+"/classify", fields, "file", file.Name(), content)
	if err != nil {
		return nil, fmt.Errorf("build classify request: %w", err)
	}

	var raw []byte
	if err := s.client.do(ctx, "classify_"+s.name, retried, req, &raw); err != nil {
		return nil, err
	}
	if s.schema != nil {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "classify "+s.name, fmt.Errorf("decode response: %w", err))
		}
		if err := s.schema.Validate(v); err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "classify "+s.name, fmt.Errorf("response does not match schema: %w", err))
		}
	}

	var resp classifyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode classify response: %w", err)
	}
	return resp.toDomain()
}

func (r classifyResponse) toDomain() (*domain.ClassificationResult, error) {
	docType, err := domain.ParseDocumentType(r.SourceType)
	if err != nil {
		return nil, err
	}
	log := make([]domain.DecisionStep, 0, len(r.DecisionLog))
	for _, e := range r.DecisionLog {
		log = append(log, domain.DecisionStep{
			Step:       e.Step,
			At:         e.At,
			Confidence: e.Confidence,
			Duration:   time.Duration(e.DurationMS * float64(time.Millisecond)),
			Error:      e.Error,
		})
	}
	return &domain.ClassificationResult{
		SuggestedParser:       r.SuggestedParser,
		SuggestedDocumentType: docType,
		Confidence:            r.Confidence,
		MappingSuggestion:     r.MappingSuggestion,
		DecisionLog:           log,
		RequiresConfirmation:  r.RequiresConfirmation,
		AvailableParsers:      r.AvailableParsers,
		Probabilities:         r.Probabilities,
		Provider:              r.Provider,
	}, nil
}
