package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"archplan/internal/cache"
	"archplan/internal/catalog"
	"archplan/internal/compose"
	"archplan/internal/config"
	"archplan/internal/domain"
	"archplan/internal/events"
	"archplan/internal/needs"
	"archplan/internal/repo"
)

// ErrInvalidInput marks caller mistakes such as a missing project id.
var ErrInvalidInput = errors.New("invalid input")

type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Config     *config.Config
	Catalog    catalog.Catalog
	Detector   needs.Detector
	Compositor compose.Compositor
	Logger     *slog.Logger
	Now        func() time.Time
}

// Options override the collaborators New would otherwise pick.
type Options struct {
	// Store backs both caches. Nil means a bounded in-memory store.
	Store cache.Store
	// Catalog defaults to the SQLite catalog when a database is attached and
	// to the built-in templates otherwise.
	Catalog catalog.Catalog
	Logger  *slog.Logger
}

// New wires an engine. conn may be nil, in which case no events are recorded.
func New(conn *sql.DB, cfg *config.Config, opts Options) (Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := opts.Store
	if store == nil {
		m, err := cache.NewMemory(cfg.Cache.Size)
		if err != nil {
			return Engine{}, fmt.Errorf("memory cache: %w", err)
		}
		store = m
	}
	r := repo.Repo{DB: conn}
	cat := opts.Catalog
	if cat == nil {
		if conn != nil {
			cat = r
		} else {
			cat = catalog.Default()
		}
	}
	return Engine{
		DB:         conn,
		Repo:       r,
		Events:     events.Writer{DB: conn},
		Config:     cfg,
		Catalog:    cat,
		Detector:   needs.New(cfg, store, logger),
		Compositor: compose.New(cfg, cat, store, logger),
		Logger:     logger,
		Now:        time.Now,
	}, nil
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Analyze runs needs detection on a briefing.
func (e Engine) Analyze(ctx context.Context, b domain.Briefing) (domain.NeedsAnalysis, error) {
	a, err := e.Detector.Detect(ctx, b)
	if err != nil {
		return domain.NeedsAnalysis{}, err
	}
	err = e.record(ctx, events.TypeBriefingAnalyzed, b.ID, "briefing", b.ID, events.EventPayload{
		"type":          b.Type,
		"version":       b.Version,
		"primary":       a.TemplateIDs(domain.TierPrimary),
		"complementary": a.TemplateIDs(domain.TierComplementary),
		"optional":      a.TemplateIDs(domain.TierOptional),
		"overall_score": a.OverallScore,
		"complexity":    a.Complexity,
	})
	if err != nil {
		return domain.NeedsAnalysis{}, err
	}
	return a, nil
}

// FilterAnalysis applies the optional-tier options and recomputes the
// aggregates. Primary and complementary tiers are never filtered.
func (e Engine) FilterAnalysis(a domain.NeedsAnalysis, opts domain.ComposeOptions) domain.NeedsAnalysis {
	if opts.OptionalIncluded() && opts.MinScore <= 0 && opts.MinPriority <= 0 {
		return a
	}
	optional := []domain.TemplateRecommendation{}
	if opts.OptionalIncluded() {
		for _, r := range a.Optional {
			if r.Score < opts.MinScore {
				continue
			}
			if opts.MinPriority > 0 && r.Priority > opts.MinPriority {
				continue
			}
			optional = append(optional, r)
		}
	}
	return needs.Summarize(e.Config.Needs, a.Primary, a.Complementary, optional)
}

// Compose filters the analysis and composes the project.
func (e Engine) Compose(ctx context.Context, projectID string, a domain.NeedsAnalysis, opts domain.ComposeOptions) (domain.ComposedProject, error) {
	if projectID == "" {
		return domain.ComposedProject{}, fmt.Errorf("%w: project id is required", ErrInvalidInput)
	}
	if err := validateOptions(opts); err != nil {
		return domain.ComposedProject{}, err
	}
	p, err := e.Compositor.Compose(ctx, projectID, e.FilterAnalysis(a, opts), opts)
	if err != nil {
		return domain.ComposedProject{}, err
	}
	err = e.record(ctx, events.TypeProjectComposed, projectID, "composition", p.ID, events.EventPayload{
		"templates":    p.TemplateIDs,
		"activities":   len(p.Activities),
		"start_date":   p.Metadata.Stats.StartDate,
		"end_date":     p.Metadata.Stats.EndDate,
		"budget_total": p.Budget.Total,
		"regenerated":  opts.ForceRegenerate,
	})
	if err != nil {
		return domain.ComposedProject{}, err
	}
	return p, nil
}

// PlanResult is the outcome of analysing and composing in one call.
type PlanResult struct {
	Analysis domain.NeedsAnalysis   `json:"analysis"`
	Project  domain.ComposedProject `json:"project"`
}

// Plan analyses a briefing and composes its project. An empty projectID
// falls back to the briefing id.
func (e Engine) Plan(ctx context.Context, projectID string, b domain.Briefing, opts domain.ComposeOptions) (PlanResult, error) {
	if projectID == "" {
		projectID = b.ID
	}
	a, err := e.Analyze(ctx, b)
	if err != nil {
		return PlanResult{}, err
	}
	p, err := e.Compose(ctx, projectID, a, opts)
	if err != nil {
		return PlanResult{}, err
	}
	return PlanResult{Analysis: a, Project: p}, nil
}

// Templates lists the catalog when it supports enumeration.
func (e Engine) Templates(ctx context.Context) ([]domain.Template, error) {
	l, ok := e.Catalog.(catalog.Lister)
	if !ok {
		return nil, errors.New("catalog does not support listing")
	}
	return l.ListTemplates(ctx)
}

// Template looks a template up by id, returning repo.ErrNotFound when the
// catalog does not list it.
func (e Engine) Template(ctx context.Context, templateID string) (domain.Template, error) {
	templates, err := e.Templates(ctx)
	if err != nil {
		return domain.Template{}, err
	}
	for _, t := range templates {
		if t.ID == templateID {
			return t, nil
		}
	}
	return domain.Template{}, fmt.Errorf("template %s: %w", templateID, repo.ErrNotFound)
}

func (e Engine) TemplateActivities(ctx context.Context, templateID string) ([]domain.ActivityTemplate, error) {
	return e.Catalog.TemplateActivities(ctx, templateID)
}

// SeedCatalog validates and stores templates in SQLite.
func (e Engine) SeedCatalog(ctx context.Context, templates []domain.Template) error {
	if e.DB == nil {
		return errors.New("seeding requires a database")
	}
	if err := catalog.Seed(ctx, e.Repo, templates); err != nil {
		return err
	}
	ids := make([]string, 0, len(templates))
	for _, t := range templates {
		ids = append(ids, t.ID)
	}
	e.logger().InfoContext(ctx, "catalog seeded", "templates", len(templates))
	return e.record(ctx, events.TypeCatalogSeeded, "", "catalog", "", events.EventPayload{"templates": ids})
}

// ListEvents returns the audit log newest first.
func (e Engine) ListEvents(ctx context.Context, f repo.EventFilter) ([]domain.Event, error) {
	if e.DB == nil {
		return []domain.Event{}, nil
	}
	return e.Repo.LatestEvents(ctx, f)
}

// EventsAfter returns events newer than cursor, oldest first.
func (e Engine) EventsAfter(ctx context.Context, cursor int64, f repo.EventFilter) ([]domain.Event, error) {
	if e.DB == nil {
		return []domain.Event{}, nil
	}
	return e.Repo.EventsAfter(ctx, cursor, f)
}

// LatestEventID is 0 for an empty log or when no database is attached.
func (e Engine) LatestEventID(ctx context.Context) (int64, error) {
	if e.DB == nil {
		return 0, nil
	}
	return e.Repo.LatestEventID(ctx, "")
}

func (e Engine) record(ctx context.Context, evtType, projectID, entityKind, entityID string, payload events.EventPayload) error {
	if e.DB == nil {
		return nil
	}
	w := e.Events
	w.Now = e.now
	if err := w.Append(ctx, nil, evtType, projectID, entityKind, entityID, payload); err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

func validateOptions(opts domain.ComposeOptions) error {
	if opts.MinScore < 0 || opts.MinScore > 1 {
		return fmt.Errorf("%w: min_score must be within [0,1]", ErrInvalidInput)
	}
	if opts.MinPriority < 0 {
		return fmt.Errorf("%w: min_priority must not be negative", ErrInvalidInput)
	}
	switch opts.CompositionType {
	case "", domain.CompositionAutomatic, domain.CompositionManual:
	default:
		return fmt.Errorf("%w: unknown composition type %q", ErrInvalidInput, opts.CompositionType)
	}
	if opts.StartDate != "" {
		if _, err := time.Parse(compose.DateLayout, opts.StartDate); err != nil {
			return fmt.Errorf("%w: start_date must be YYYY-MM-DD", ErrInvalidInput)
		}
	}
	return nil
}
