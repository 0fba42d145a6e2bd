package mapping

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

func TestAutoMapExactAndFuzzy(t *testing.T) {
	got := AutoMap([]string{"Fecha", "Importe (EUR)", "Concepto", "Notas"}, nil, domain.DocumentTypeExpenses)
	want := Mapping{
		"Fecha":         "expense_date",
		"Importe (EUR)": "amount",
		"Concepto":      "description",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("AutoMap() = %#v, want %#v", got, want)
	}
}

func TestAutoMapToleratesOneEditTypo(t *testing.T) {
	got := AutoMap([]string{"Concpto", "Importe"}, nil, domain.DocumentTypeBankTransactions)
	if got["Concpto"] != "narrative" {
		t.Fatalf("expected typo to map to narrative, got %#v", got)
	}
	if got["Importe"] != "amount" {
		t.Fatalf("expected exact amount match, got %#v", got)
	}
}

func TestAutoMapAssignsEachTargetOnce(t *testing.T) {
	got := AutoMap([]string{"fecha", "date"}, nil, domain.DocumentTypeExpenses)
	if got["fecha"] != "expense_date" {
		t.Fatalf("expected first header to win, got %#v", got)
	}
	if _, ok := got["date"]; ok {
		t.Fatalf("expected second header unset, got %#v", got)
	}
}

func TestApplyMappingIsIdempotent(t *testing.T) {
	m := Mapping{"Fecha": "expense_date", "Importe": "amount", "Extra": Ignore}
	rows := []map[string]string{{"Fecha": "2024-01-01", "Importe": "100.50", "Extra": "x", "Other": "y"}}

	once := ApplyMapping(rows, m)
	want := []map[string]string{{"expense_date": "2024-01-01", "amount": "100.50", "Extra": "x", "Other": "y"}}
	if !reflect.DeepEqual(once, want) {
		t.Fatalf("ApplyMapping() = %#v", once)
	}
	if twice := ApplyMapping(once, m); !reflect.DeepEqual(twice, once) {
		t.Fatalf("second apply changed rows: %#v", twice)
	}
	identity := Mapping{"expense_date": "expense_date", "amount": "amount"}
	if again := ApplyMapping(once, identity); !reflect.DeepEqual(again, once) {
		t.Fatalf("identity mapping changed rows: %#v", again)
	}
	if rows[0]["Fecha"] != "2024-01-01" {
		t.Fatalf("source rows must not be modified")
	}
}

func TestApplyMappingKeepsCollidingSourceKey(t *testing.T) {
	out := ApplyMapping([]map[string]string{{"amount": "5", "Importe": "6"}}, Mapping{"Importe": "amount"})
	want := map[string]string{"amount": "5", "Importe": "6"}
	if !reflect.DeepEqual(out[0], want) {
		t.Fatalf("expected both values kept, got %#v", out[0])
	}
}

func TestDropIgnored(t *testing.T) {
	rows := []map[string]string{{"a": "1", "b": "2"}}
	out := DropIgnored(rows, Mapping{"b": Ignore, "a": "sku"})
	if _, ok := out[0]["b"]; ok || out[0]["a"] != "1" {
		t.Fatalf("unexpected rows: %#v", out)
	}
	if rows[0]["b"] != "2" {
		t.Fatalf("source rows must not be modified")
	}
}

func TestSessionManualEditsWin(t *testing.T) {
	s := NewSession(domain.DocumentTypeExpenses, Mapping{"Fecha": "expense_date"}, nil)
	if err := s.Set("Importe", "amount"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	changed := s.Suggest(Mapping{"Importe": "tax_amount", "Concepto": "description", "Fecha": "expense_date"})
	if changed != 1 {
		t.Fatalf("expected one change, got %d", changed)
	}
	if s.Suggest(Mapping{"Otro": "amount"}) != 0 {
		t.Fatalf("suggestion must not take a manually held target")
	}

	got := s.Mapping()
	want := Mapping{"Fecha": "expense_date", "Importe": "amount", "Concepto": "description"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Mapping() = %#v", got)
	}
	if !reflect.DeepEqual(s.ManualHeaders(), []string{"Importe"}) {
		t.Fatalf("unexpected manual headers: %v", s.ManualHeaders())
	}
}

func TestSessionSetMovesTarget(t *testing.T) {
	s := NewSession(domain.DocumentTypeExpenses, Mapping{"Concepto": "description"}, nil)
	_ = s.Set("Importe", "amount")
	_ = s.Set("Detalle", "description")
	_ = s.Set("Total", "amount")

	got := s.Mapping()
	if _, ok := got["Concepto"]; ok {
		t.Fatalf("automatic header should lose its target, got %#v", got)
	}
	if target, ok := got["Importe"]; !ok || target != Ignore {
		t.Fatalf("manual header should become ignored, got %#v", got)
	}
	if got["Total"] != "amount" || got["Detalle"] != "description" {
		t.Fatalf("unexpected mapping %#v", got)
	}
}

func TestSessionRejectsUnknownTarget(t *testing.T) {
	s := NewSession(domain.DocumentTypeProducts, nil, nil)
	if err := s.Set("Precio", "amount"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

type fakeMappingCatalog struct {
	templates []domain.ColumnMapping
	err       error
	calls     int
}

func (f *fakeMappingCatalog) ListMappings(context.Context) ([]domain.ColumnMapping, error) {
	f.calls++
	return f.templates, f.err
}

func (f *fakeMappingCatalog) SuggestMapping(context.Context, []string, domain.DocumentType) (map[string]string, error) {
	return nil, nil
}

func TestTemplateCatalogMatchPrefersUsageThenRecency(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)
	source := &fakeMappingCatalog{templates: []domain.ColumnMapping{
		{ID: "bank", FilenamePattern: "banco_*.csv", UsageCount: 3},
		{ID: "any-old", FilenamePattern: "*.csv", UsageCount: 10, LastUsedAt: &older},
		{ID: "any-new", FilenamePattern: "*.CSV", UsageCount: 10, LastUsedAt: &newer},
		{ID: "no-pattern", UsageCount: 99},
	}}
	catalog := NewTemplateCatalog(source, time.Minute)

	got, err := catalog.Match(context.Background(), "/tmp/Banco_Enero.CSV")
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if got == nil || got.ID != "any-new" {
		t.Fatalf("expected any-new, got %+v", got)
	}

	none, err := catalog.Match(context.Background(), "scan.pdf")
	if err != nil || none != nil {
		t.Fatalf("expected no match, got %+v %v", none, err)
	}
}

func TestTemplateCatalogCachesForTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	source := &fakeMappingCatalog{}
	catalog := NewTemplateCatalog(source, time.Minute)
	catalog.now = func() time.Time { return now }

	_, _ = catalog.Match(context.Background(), "a.csv")
	_, _ = catalog.Match(context.Background(), "b.csv")
	if source.calls != 1 {
		t.Fatalf("expected cached list, got %d fetches", source.calls)
	}

	now = now.Add(2 * time.Minute)
	_, _ = catalog.Match(context.Background(), "c.csv")
	if source.calls != 2 {
		t.Fatalf("expected refetch after ttl, got %d fetches", source.calls)
	}

	catalog.Invalidate()
	_, _ = catalog.Match(context.Background(), "d.csv")
	if source.calls != 3 {
		t.Fatalf("expected refetch after invalidate, got %d fetches", source.calls)
	}
}

func TestTemplateCatalogPropagatesError(t *testing.T) {
	source := &fakeMappingCatalog{err: errors.New("boom")}
	if _, err := NewTemplateCatalog(source, time.Minute).Match(context.Background(), "a.csv"); err == nil {
		t.Fatalf("expected error")
	}
}
