package needs_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"archplan/internal/cache"
	"archplan/internal/config"
	"archplan/internal/domain"
	"archplan/internal/needs"
)

func newDetector(t *testing.T) (needs.Detector, *cache.Memory) {
	t.Helper()
	mem, err := cache.NewMemory(64)
	if err != nil {
		t.Fatalf("memory cache: %v", err)
	}
	return needs.New(config.Default(), mem, nil), mem
}

func residential(fields map[string]any) domain.Briefing {
	return domain.Briefing{ID: "p1", Type: "residential", Version: 1, Fields: fields}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestResidentialWithoutKeywords(t *testing.T) {
	d, _ := newDetector(t)
	a, err := d.Detect(context.Background(), residential(nil))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(a.Primary) != 1 || len(a.Complementary) != 2 || len(a.Optional) != 0 {
		t.Fatalf("unexpected tiers %d/%d/%d", len(a.Primary), len(a.Complementary), len(a.Optional))
	}
	if a.Complexity != domain.ComplexityMedium {
		t.Fatalf("expected medium, got %s", a.Complexity)
	}
	p := a.Primary[0]
	if p.Score != 1 || p.Priority != 1 || p.Category != "architecture" {
		t.Fatalf("unexpected primary %+v", p)
	}
	if a.Complementary[0].Priority != 2 || a.Complementary[1].Priority != 3 {
		t.Fatalf("unexpected complementary priorities")
	}
	if got := a.Complementary[1].Dependencies; len(got) != 2 || got[0] != "architecture" || got[1] != "structural" {
		t.Fatalf("unexpected utilities dependencies %v", got)
	}
	if a.OverallScore != 1 {
		t.Fatalf("expected overall 1, got %v", a.OverallScore)
	}
	if a.EstimatedMinutes != 2400+1440+1200 || a.TotalTasks != 12+8+6 {
		t.Fatalf("unexpected estimates %d/%d", a.EstimatedMinutes, a.TotalTasks)
	}
	if a.Summary == "" {
		t.Fatalf("expected summary")
	}
}

func TestPoolAddsLandscaping(t *testing.T) {
	d, _ := newDetector(t)
	a, err := d.Detect(context.Background(), residential(map[string]any{"wishes": "a pool in the back"}))
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Optional) != 1 {
		t.Fatalf("expected 1 optional, got %d", len(a.Optional))
	}
	o := a.Optional[0]
	if o.Category != "landscaping" || o.Score != 0.8 {
		t.Fatalf("unexpected optional %+v", o)
	}
	if o.Priority <= a.Complementary[len(a.Complementary)-1].Priority {
		t.Fatalf("optional priority must rank below complementary")
	}
	if a.OverallScore != 0.95 {
		t.Fatalf("expected 0.95, got %v", a.OverallScore)
	}
}

func TestKeywordSetsAreIndependent(t *testing.T) {
	d, _ := newDetector(t)
	a, _ := d.Detect(context.Background(), residential(map[string]any{"notes": "Garden and custom FURNITURE"}))
	if len(a.Optional) != 2 {
		t.Fatalf("expected both optional templates, got %d", len(a.Optional))
	}
	if a.Optional[0].Category != "landscaping" || a.Optional[1].Category != "interiors" {
		t.Fatalf("unexpected optional order %v %v", a.Optional[0].Category, a.Optional[1].Category)
	}
	if a.Complexity != domain.ComplexityHigh {
		t.Fatalf("expected high for 5 templates, got %s", a.Complexity)
	}
	if a.OverallScore != 0.9 {
		t.Fatalf("expected 0.9, got %v", a.OverallScore)
	}
}

func TestNestedFieldsAreScanned(t *testing.T) {
	d, _ := newDetector(t)
	b := residential(map[string]any{
		"billing": map[string]any{"contact": map[string]any{"note": "call about the deck invoice"}},
	})
	a, _ := d.Detect(context.Background(), b)
	if len(a.Optional) != 1 || a.Optional[0].Category != "landscaping" {
		t.Fatalf("expected nested keyword match, got %+v", a.Optional)
	}
}

func TestKeywordsWithHTMLCharactersMatch(t *testing.T) {
	cfg := config.Default()
	cfg.Needs.Optional = append(cfg.Needs.Optional, config.OptionalRule{
		Rule:     config.Rule{Template: "tpl-lab", Category: "laboratory", Priority: 6, Score: 0.7, Reason: "research space requested"},
		Keywords: []string{"r&d", "<clean room>"},
	})
	mem, err := cache.NewMemory(8)
	if err != nil {
		t.Fatal(err)
	}
	d := needs.New(cfg, mem, nil)
	a, err := d.Detect(context.Background(), residential(map[string]any{"notes": "Wants an R&D wing"}))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(a.Optional) != 1 || a.Optional[0].TemplateID != "tpl-lab" {
		t.Fatalf("expected r&d to match, got %+v", a.Optional)
	}
	b := domain.Briefing{ID: "p2", Type: "residential", Version: 1, Fields: map[string]any{"notes": "a <Clean Room> upstairs"}}
	a, _ = d.Detect(context.Background(), b)
	if len(a.Optional) != 1 || a.Optional[0].ExtraConfig["matched_keyword"] != "<clean room>" {
		t.Fatalf("expected angle brackets to match, got %+v", a.Optional)
	}
}

func TestUnknownTypeHasNoPrimary(t *testing.T) {
	d, _ := newDetector(t)
	a, err := d.Detect(context.Background(), domain.Briefing{ID: "p2", Type: "spaceport", Version: 1})
	if err != nil {
		t.Fatalf("unknown type must not error: %v", err)
	}
	if len(a.Primary) != 0 || a.Primary == nil {
		t.Fatalf("expected empty non-nil primary, got %v", a.Primary)
	}
	if len(a.Complementary) != 2 || a.Complexity != domain.ComplexityLow {
		t.Fatalf("unexpected analysis %+v", a)
	}
}

func TestTypeIsCaseInsensitive(t *testing.T) {
	d, _ := newDetector(t)
	a, _ := d.Detect(context.Background(), domain.Briefing{ID: "p3", Type: "  COMMERCIAL ", Version: 1})
	if len(a.Primary) != 1 || a.Primary[0].TemplateID != "tpl-architecture-commercial" {
		t.Fatalf("unexpected primary %+v", a.Primary)
	}
}

func TestDetectIsCachedByProjection(t *testing.T) {
	d, _ := newDetector(t)
	ctx := context.Background()
	first, _ := d.Detect(ctx, residential(nil))
	edited, _ := d.Detect(ctx, residential(map[string]any{"wishes": "pool"}))
	if mustJSON(t, first) != mustJSON(t, edited) {
		t.Fatalf("unrelated field edits must hit the cache")
	}
	bumped := residential(map[string]any{"wishes": "pool"})
	bumped.Version = 2
	fresh, _ := d.Detect(ctx, bumped)
	if len(fresh.Optional) != 1 {
		t.Fatalf("new revision must be recomputed")
	}
}

func TestCacheExpires(t *testing.T) {
	d, mem := newDetector(t)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	mem.Now = func() time.Time { return now }
	ctx := context.Background()
	_, _ = d.Detect(ctx, residential(nil))
	now = now.Add(31 * time.Minute)
	a, _ := d.Detect(ctx, residential(map[string]any{"wishes": "pool"}))
	if len(a.Optional) != 1 {
		t.Fatalf("expired entry must be recomputed")
	}
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func TestCacheFaultsAreNotFatal(t *testing.T) {
	d := needs.New(config.Default(), brokenStore{}, nil)
	a, err := d.Detect(context.Background(), residential(nil))
	if err != nil {
		t.Fatalf("cache faults must not fail detection: %v", err)
	}
	if a.Count() != 3 {
		t.Fatalf("unexpected count %d", a.Count())
	}
}

func TestSummarizeEmpty(t *testing.T) {
	a := needs.Summarize(config.Default().Needs, nil, nil, nil)
	if a.OverallScore != 0 || a.Complexity != domain.ComplexityLow || a.EstimatedMinutes != 0 {
		t.Fatalf("unexpected empty analysis %+v", a)
	}
}

func TestSummarizeUnknownCategoryUsesDefaultEstimate(t *testing.T) {
	rules := config.Default().Needs
	a := needs.Summarize(rules, []domain.TemplateRecommendation{{TemplateID: "x", Category: "acoustics", Score: 0.333}}, nil, nil)
	if a.EstimatedMinutes != rules.DefaultEstimate.Minutes || a.TotalTasks != rules.DefaultEstimate.Tasks {
		t.Fatalf("expected default estimate, got %d/%d", a.EstimatedMinutes, a.TotalTasks)
	}
	if a.OverallScore != 0.33 {
		t.Fatalf("expected rounding to 0.33, got %v", a.OverallScore)
	}
}

func TestDetectionErrorIs(t *testing.T) {
	err := error(&needs.DetectionError{Op: "serialize briefing", Err: errors.New("boom")})
	if !errors.Is(err, needs.ErrDetection) {
		t.Fatalf("expected ErrDetection")
	}
	var de *needs.DetectionError
	if !errors.As(err, &de) || de.Op != "serialize briefing" {
		t.Fatalf("expected DetectionError")
	}
}
