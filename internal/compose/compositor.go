// Package compose merges the activities of recommended templates into one
// project with a dependency graph, a business-day schedule and a budget.
package compose

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"archplan/internal/cache"
	"archplan/internal/catalog"
	"archplan/internal/config"
	"archplan/internal/domain"
)

type Compositor struct {
	Catalog catalog.Catalog
	Rules   config.CompositionConfig
	Cache   cache.JSON
	TTL     time.Duration
	Logger  *slog.Logger
	Now     func() time.Time
}

func New(cfg *config.Config, cat catalog.Catalog, store cache.Store, logger *slog.Logger) Compositor {
	if logger == nil {
		logger = slog.Default()
	}
	return Compositor{
		Catalog: cat,
		Rules:   cfg.Composition,
		Cache:   cache.NewJSON(store, logger),
		TTL:     time.Duration(cfg.Cache.CompositionTTLSeconds) * time.Second,
		Logger:  logger,
		Now:     time.Now,
	}
}

func (c Compositor) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c Compositor) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// TemplateSetHash digests the ordered template ids of each tier.
func TemplateSetHash(a domain.NeedsAnalysis) string {
	return cache.Hash(
		strings.Join(a.TemplateIDs(domain.TierPrimary), "\x00"),
		strings.Join(a.TemplateIDs(domain.TierComplementary), "\x00"),
		strings.Join(a.TemplateIDs(domain.TierOptional), "\x00"),
	)
}

func CacheKey(projectID string, a domain.NeedsAnalysis) string {
	return "composition:" + projectID + ":" + TemplateSetHash(a)
}

// ProjectID returns the external id shared by every composition of the same
// project and template sets.
func ProjectID(projectID string, a domain.NeedsAnalysis) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(projectID+"|"+TemplateSetHash(a))).String()
}

// Compose turns an analysis into a project. A cached composition is returned
// unless opts.ForceRegenerate is set. A dependency cycle aborts the call and
// nothing is cached.
func (c Compositor) Compose(ctx context.Context, projectID string, analysis domain.NeedsAnalysis, opts domain.ComposeOptions) (domain.ComposedProject, error) {
	key := CacheKey(projectID, analysis)
	if !opts.ForceRegenerate {
		var cached domain.ComposedProject
		if c.Cache.Load(ctx, key, &cached) {
			c.logger().DebugContext(ctx, "composition cache hit", "project_id", projectID, "id", cached.ID)
			return cached, nil
		}
	}

	recs := analysis.All()
	activities := c.merge(ctx, recs)
	graph := Resolve(activities, c.Rules.DependencyRules)
	order, err := Order(activities, graph)
	if err != nil {
		c.logger().WarnContext(ctx, "composition aborted", "project_id", projectID, "error", err)
		return domain.ComposedProject{}, err
	}

	byID := make(map[string]domain.Activity, len(activities))
	for _, a := range activities {
		byID[a.ID] = a
	}
	start := c.startDate(ctx, opts.StartDate)
	schedule, end := Schedule(order, byID, graph, start, c.Rules.MinutesPerDay)
	budget := Budget(activities, c.Rules.BudgetBase)

	now := c.now().UTC().Format(time.RFC3339)
	templateIDs := make([]string, 0, len(recs))
	priorities := make(map[string]int, len(recs))
	for _, r := range recs {
		if _, ok := priorities[r.TemplateID]; ok {
			continue
		}
		priorities[r.TemplateID] = r.Priority
		templateIDs = append(templateIDs, r.TemplateID)
	}
	compositionType := opts.CompositionType
	if compositionType == "" {
		compositionType = domain.CompositionAutomatic
	}
	action := "composed"
	if opts.ForceRegenerate {
		action = "regenerated"
	}
	if activities == nil {
		activities = []domain.Activity{}
	}

	project := domain.ComposedProject{
		ID:              ProjectID(projectID, analysis),
		ProjectID:       projectID,
		TemplateIDs:     templateIDs,
		CompositionType: compositionType,
		Activities:      activities,
		DependencyGraph: graph,
		Schedule:        schedule,
		Budget:          budget,
		Config: domain.CompositionConfig{
			TemplatePriorities: priorities,
			MergeRules:         append([]string(nil), c.Rules.MergeRules...),
			CustomParameters:   opts.CustomParameters,
		},
		Metadata: domain.CompositionMetadata{
			Analysis: analysis,
			Stats:    stats(templateIDs, activities, graph, schedule, start, end),
			History: []domain.HistoryEntry{{
				ID:     uuid.NewString(),
				Action: action,
				At:     now,
				Details: map[string]any{
					"templates":  len(templateIDs),
					"activities": len(activities),
				},
			}},
		},
		Status:    domain.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.Cache.Save(ctx, key, project, c.TTL)
	c.logger().InfoContext(ctx, "project composed",
		"project_id", projectID,
		"id", project.ID,
		"templates", len(templateIDs),
		"activities", len(activities),
		"end_date", project.Metadata.Stats.EndDate)
	return project, nil
}

// startDate parses the requested start or falls back to today. Weekend starts
// move to the following Monday.
func (c Compositor) startDate(ctx context.Context, requested string) time.Time {
	start := Day(c.now())
	if requested != "" {
		parsed, err := time.Parse(DateLayout, requested)
		if err != nil {
			c.logger().WarnContext(ctx, "invalid start date; using today", "start_date", requested, "error", err)
		} else {
			start = Day(parsed)
		}
	}
	return NextBusinessDay(start)
}

func stats(templateIDs []string, activities []domain.Activity, graph domain.DependencyGraph, schedule []domain.ScheduleItem, start, end time.Time) domain.CompositionStats {
	s := domain.CompositionStats{
		TemplateCount:     len(templateIDs),
		ActivityCount:     len(activities),
		TotalBusinessDays: BusinessDaysBetween(start, end),
		StartDate:         start.Format(DateLayout),
		EndDate:           end.Format(DateLayout),
	}
	for _, a := range activities {
		s.EstimatedMinutes += a.EstimatedMinutes
		s.DependencyCount += len(graph[a.ID])
	}
	for _, item := range schedule {
		if item.IsMilestone {
			s.MilestoneCount++
		}
		if item.IsCritical {
			s.CriticalCount++
			s.CriticalActivities = append(s.CriticalActivities, item.ActivityID)
		}
	}
	return s
}
