package usecase

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

func TestChainClassifierFallsBackToHeuristic(t *testing.T) {
	ai := &strategyFake{name: "ai", err: errors.New("upstream timeout")}
	heuristic := &strategyFake{name: "heuristic", result: &domain.ClassificationResult{
		SuggestedDocumentType: domain.DocumentTypeExpenses,
		SuggestedParser:       domain.ParserGenericCSV,
		Confidence:            0.85,
		DecisionLog:           []domain.DecisionStep{{Step: "header_scan", Confidence: 0.85}},
	}}

	result, err := NewChainClassifier(nil, ai, heuristic).Classify(context.Background(), newMemFile("a.csv", "text/csv", []byte("x")))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if result.Provider != "heuristic" {
		t.Fatalf("expected heuristic provider, got %q", result.Provider)
	}
	if len(result.DecisionLog) != 3 {
		t.Fatalf("expected two attempts plus server step, got %+v", result.DecisionLog)
	}
	if result.DecisionLog[0].Step != "ai" || result.DecisionLog[0].Error == "" {
		t.Fatalf("expected failed ai step first, got %+v", result.DecisionLog[0])
	}
	if result.DecisionLog[1].Step != "heuristic" || result.DecisionLog[1].Confidence != 0.85 {
		t.Fatalf("unexpected heuristic step %+v", result.DecisionLog[1])
	}
	if result.RequiresConfirmation {
		t.Fatalf("high confidence must not force confirmation")
	}
}

func TestChainClassifierStopsAtFirstSuccess(t *testing.T) {
	ai := &strategyFake{name: "ai", result: &domain.ClassificationResult{Confidence: 0.9, Provider: "openai"}}
	heuristic := &strategyFake{name: "heuristic", err: errors.New("should not run")}

	result, err := NewChainClassifier(nil, ai, heuristic).Classify(context.Background(), newMemFile("a.csv", "", nil))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if heuristic.calls != 0 {
		t.Fatalf("expected heuristic to be skipped")
	}
	if result.Provider != "openai" {
		t.Fatalf("expected server provider kept, got %q", result.Provider)
	}
}

func TestChainClassifierAllFailCarriesEveryCause(t *testing.T) {
	aiErr := errors.New("ai down")
	heuristicErr := errors.New("heuristic down")
	_, err := NewChainClassifier(nil,
		&strategyFake{name: "ai", err: aiErr},
		&strategyFake{name: "heuristic", err: heuristicErr},
	).Classify(context.Background(), newMemFile("a.csv", "", nil))

	if !domain.IsKind(err, domain.ErrClassificationFailed) {
		t.Fatalf("expected classification failed, got %v", err)
	}
	if !errors.Is(err, aiErr) || !errors.Is(err, heuristicErr) {
		t.Fatalf("expected both causes in chain, got %v", err)
	}
	var failed *domain.ClassificationFailedError
	if !errors.As(err, &failed) || len(failed.Causes) != 2 {
		t.Fatalf("expected two causes, got %v", err)
	}
	if domain.KindOf(err) != domain.ErrorKindClassificationFailed {
		t.Fatalf("unexpected kind %s", domain.KindOf(err))
	}
}

func TestChainClassifierLowConfidenceForcesConfirmation(t *testing.T) {
	heuristic := &strategyFake{name: "heuristic", result: &domain.ClassificationResult{
		Confidence:       0.59,
		AvailableParsers: []string{"custom_parser", domain.ParserBankCSV},
	}}
	result, err := NewChainClassifier(nil, heuristic).Classify(context.Background(), newMemFile("a.csv", "", nil))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if !result.RequiresConfirmation {
		t.Fatalf("expected confirmation forced for low band")
	}
	if !slices.Contains(result.AvailableParsers, "custom_parser") || !slices.Contains(result.AvailableParsers, domain.ParserInvoiceUBL) {
		t.Fatalf("expected server and local parsers, got %v", result.AvailableParsers)
	}
	if !slices.IsSorted(result.AvailableParsers) {
		t.Fatalf("expected sorted parsers, got %v", result.AvailableParsers)
	}
	if len(result.AvailableParsers) != len(domain.RegisteredParsers())+1 {
		t.Fatalf("expected duplicates removed, got %v", result.AvailableParsers)
	}
}

func TestChainClassifierWithoutStrategies(t *testing.T) {
	_, err := NewChainClassifier(nil).Classify(context.Background(), newMemFile("a.csv", "", nil))
	if !domain.IsKind(err, domain.ErrClassificationFailed) {
		t.Fatalf("expected classification failed, got %v", err)
	}
}
