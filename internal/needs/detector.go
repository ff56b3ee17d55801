// Package needs infers which project templates a briefing requires.
package needs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"archplan/internal/cache"
	"archplan/internal/config"
	"archplan/internal/domain"
)

type Detector struct {
	Rules  config.NeedsConfig
	Cache  cache.JSON
	TTL    time.Duration
	Logger *slog.Logger
}

func New(cfg *config.Config, store cache.Store, logger *slog.Logger) Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return Detector{
		Rules:  cfg.Needs,
		Cache:  cache.NewJSON(store, logger),
		TTL:    time.Duration(cfg.Cache.AnalysisTTLSeconds) * time.Second,
		Logger: logger,
	}
}

func (d Detector) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// CacheKey projects a briefing onto the fields that identify its analysis.
// Edits to other fields do not change the key.
func CacheKey(b domain.Briefing) string {
	return "needs:" + cache.Hash(strings.ToLower(strings.TrimSpace(b.Type)), b.ID, strconv.Itoa(b.Version))
}

// Detect classifies the templates a briefing needs. Cached analyses are
// returned verbatim until their TTL runs out.
func (d Detector) Detect(ctx context.Context, b domain.Briefing) (domain.NeedsAnalysis, error) {
	key := CacheKey(b)
	var cached domain.NeedsAnalysis
	if d.Cache.Load(ctx, key, &cached) {
		d.logger().DebugContext(ctx, "needs analysis cache hit", "briefing_id", b.ID, "version", b.Version)
		return cached, nil
	}

	primary := d.primary(b.Type)
	complementary := d.complementary()
	text, err := scanText(b)
	if err != nil {
		return domain.NeedsAnalysis{}, &DetectionError{Op: "serialize briefing", Err: err}
	}
	optional := d.optional(text)

	analysis := Summarize(d.Rules, primary, complementary, optional)
	d.Cache.Save(ctx, key, analysis, d.TTL)
	d.logger().InfoContext(ctx, "briefing analysed",
		"briefing_id", b.ID,
		"type", b.Type,
		"templates", analysis.Count(),
		"complexity", analysis.Complexity)
	return analysis, nil
}

func (d Detector) primary(projectType string) []domain.TemplateRecommendation {
	rule, ok := d.Rules.ProjectTypes[strings.ToLower(strings.TrimSpace(projectType))]
	if !ok {
		return []domain.TemplateRecommendation{}
	}
	return []domain.TemplateRecommendation{recommend(rule, nil)}
}

func (d Detector) complementary() []domain.TemplateRecommendation {
	out := make([]domain.TemplateRecommendation, 0, len(d.Rules.Complementary))
	for _, rule := range d.Rules.Complementary {
		out = append(out, recommend(rule, nil))
	}
	return out
}

// optional scans the serialized briefing, nested fields included. Each
// keyword set is matched on its own.
func (d Detector) optional(text string) []domain.TemplateRecommendation {
	out := []domain.TemplateRecommendation{}
	for _, rule := range d.Rules.Optional {
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw) {
				out = append(out, recommend(rule.Rule, map[string]any{"matched_keyword": kw}))
				break
			}
		}
	}
	return out
}

// scanText is the lowercased serialized briefing without HTML escaping, so
// keywords such as "r&d" can match.
func scanText(b domain.Briefing) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(b); err != nil {
		return "", err
	}
	return strings.ToLower(buf.String()), nil
}

func recommend(rule config.Rule, extra map[string]any) domain.TemplateRecommendation {
	deps := make([]string, len(rule.Dependencies))
	copy(deps, rule.Dependencies)
	return domain.TemplateRecommendation{
		TemplateID:   rule.Template,
		Category:     rule.Category,
		Priority:     rule.Priority,
		Score:        rule.Score,
		Reason:       rule.Reason,
		Dependencies: deps,
		ExtraConfig:  extra,
	}
}

// Summarize builds a NeedsAnalysis from the three tiers, deriving every aggregate.
func Summarize(rules config.NeedsConfig, primary, complementary, optional []domain.TemplateRecommendation) domain.NeedsAnalysis {
	a := domain.NeedsAnalysis{
		Primary:       nonNil(primary),
		Complementary: nonNil(complementary),
		Optional:      nonNil(optional),
	}
	all := a.All()
	var sum float64
	for _, r := range all {
		sum += r.Score
		est := rules.Estimate(r.Category)
		a.EstimatedMinutes += est.Minutes
		a.TotalTasks += est.Tasks
	}
	if len(all) > 0 {
		a.OverallScore = math.Round(sum/float64(len(all))*100) / 100
	}
	a.Complexity = domain.ComplexityFor(len(all))
	a.Summary = fmt.Sprintf("%s complexity project: %d templates recommended (%d primary, %d complementary, %d optional), about %d tasks",
		a.Complexity, len(all), len(a.Primary), len(a.Complementary), len(a.Optional), a.TotalTasks)
	return a
}

func nonNil(in []domain.TemplateRecommendation) []domain.TemplateRecommendation {
	if in == nil {
		return []domain.TemplateRecommendation{}
	}
	return in
}
