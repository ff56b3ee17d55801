package domain

// Complexity buckets a NeedsAnalysis by the number of recommended templates.
type Complexity string

const (
	ComplexityLow      Complexity = "low"
	ComplexityMedium   Complexity = "medium"
	ComplexityHigh     Complexity = "high"
	ComplexityCritical Complexity = "critical"
)

// ComplexityFor maps a total template count to its complexity bucket.
func ComplexityFor(count int) Complexity {
	switch {
	case count <= 2:
		return ComplexityLow
	case count <= 4:
		return ComplexityMedium
	case count <= 6:
		return ComplexityHigh
	default:
		return ComplexityCritical
	}
}

type Tier string

const (
	TierPrimary       Tier = "primary"
	TierComplementary Tier = "complementary"
	TierOptional      Tier = "optional"
)

type TemplateRecommendation struct {
	TemplateID   string         `json:"template_id"`
	Category     string         `json:"category"`
	Priority     int            `json:"priority"`
	Score        float64        `json:"score" minimum:"0" maximum:"1"`
	Reason       string         `json:"reason"`
	Dependencies []string       `json:"dependencies"`
	ExtraConfig  map[string]any `json:"extra_config,omitempty"`
}

// NeedsAnalysis is the classified set of templates inferred from a briefing.
// Aggregates are derived from the three tiers at construction time.
type NeedsAnalysis struct {
	Primary          []TemplateRecommendation `json:"primary"`
	Complementary    []TemplateRecommendation `json:"complementary"`
	Optional         []TemplateRecommendation `json:"optional"`
	OverallScore     float64                  `json:"overall_score"`
	Complexity       Complexity               `json:"complexity" enum:"low,medium,high,critical"`
	EstimatedMinutes int                      `json:"estimated_minutes"`
	TotalTasks       int                      `json:"total_tasks"`
	Summary          string                   `json:"summary"`
}

// All returns every recommendation in tier order: primary, complementary, optional.
func (a NeedsAnalysis) All() []TemplateRecommendation {
	out := make([]TemplateRecommendation, 0, a.Count())
	out = append(out, a.Primary...)
	out = append(out, a.Complementary...)
	out = append(out, a.Optional...)
	return out
}

func (a NeedsAnalysis) Count() int {
	return len(a.Primary) + len(a.Complementary) + len(a.Optional)
}

// TemplateIDs returns the template ids of one tier in order.
func (a NeedsAnalysis) TemplateIDs(tier Tier) []string {
	var recs []TemplateRecommendation
	switch tier {
	case TierPrimary:
		recs = a.Primary
	case TierComplementary:
		recs = a.Complementary
	case TierOptional:
		recs = a.Optional
	}
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.TemplateID)
	}
	return ids
}

// Template is a catalog entry: one discipline with its raw activity list.
type Template struct {
	ID          string             `json:"id" yaml:"id"`
	Category    string             `json:"category" yaml:"category"`
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Activities  []ActivityTemplate `json:"activities,omitempty" yaml:"activities"`
}

// ActivityTemplate is the raw activity shape supplied by a catalog. IDs and
// dependencies are local to the owning template.
type ActivityTemplate struct {
	ID               string   `json:"id" yaml:"id"`
	Title            string   `json:"title" yaml:"title"`
	Description      string   `json:"description,omitempty" yaml:"description,omitempty"`
	Category         string   `json:"category,omitempty" yaml:"category,omitempty"`
	Kind             string   `json:"kind" yaml:"kind"`
	Dependencies     []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	EstimatedMinutes int      `json:"estimated_minutes" yaml:"estimated_minutes"`
	Complexity       string   `json:"complexity" yaml:"complexity" enum:"low,medium,high"`
	Mandatory        bool     `json:"mandatory" yaml:"mandatory"`
	Resources        []string `json:"resources,omitempty" yaml:"resources,omitempty"`
	Deliverables     []string `json:"deliverables,omitempty" yaml:"deliverables,omitempty"`
}

// Activity is a merged, globally namespaced activity of a composed project.
type Activity struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Description      string   `json:"description,omitempty"`
	Category         string   `json:"category"`
	SourceTemplateID string   `json:"source_template_id"`
	Kind             string   `json:"kind"`
	GlobalOrder      int      `json:"global_order"`
	Dependencies     []string `json:"dependencies"`
	EstimatedMinutes int      `json:"estimated_minutes"`
	Complexity       string   `json:"complexity"`
	Mandatory        bool     `json:"mandatory"`
	Resources        []string `json:"resources,omitempty"`
	Deliverables     []string `json:"deliverables,omitempty"`
}

// DependencyGraph maps an activity id to the ids it depends on.
type DependencyGraph map[string][]string

type ScheduleItem struct {
	ID                   string   `json:"id"`
	ActivityID           string   `json:"activity_id"`
	Title                string   `json:"title"`
	Category             string   `json:"category"`
	StartDate            string   `json:"start_date" format:"date"`
	EndDate              string   `json:"end_date" format:"date"`
	DurationBusinessDays int      `json:"duration_business_days"`
	Dependencies         []string `json:"dependencies"`
	IsMilestone          bool     `json:"is_milestone"`
	IsCritical           bool     `json:"is_critical"`
}

type BudgetLine struct {
	Category   string   `json:"category"`
	Amount     float64  `json:"amount"`
	Templates  []string `json:"templates"`
	Activities int      `json:"activities"`
}

type BudgetComposition struct {
	Total      float64            `json:"total"`
	ByCategory map[string]float64 `json:"by_category"`
	ByTemplate map[string]float64 `json:"by_template"`
	Breakdown  []BudgetLine       `json:"breakdown"`
}

type CompositionType string

const (
	CompositionAutomatic CompositionType = "automatic"
	CompositionManual    CompositionType = "manual"
)

type ProjectStatus string

const (
	StatusActive ProjectStatus = "active"
	StatusPaused ProjectStatus = "paused"
	StatusDone   ProjectStatus = "done"
)

type CompositionConfig struct {
	TemplatePriorities map[string]int `json:"template_priorities"`
	MergeRules         []string       `json:"merge_rules"`
	CustomParameters   map[string]any `json:"custom_parameters,omitempty"`
}

type CompositionStats struct {
	TemplateCount      int      `json:"template_count"`
	ActivityCount      int      `json:"activity_count"`
	DependencyCount    int      `json:"dependency_count"`
	EstimatedMinutes   int      `json:"estimated_minutes"`
	TotalBusinessDays  int      `json:"total_business_days"`
	MilestoneCount     int      `json:"milestone_count"`
	CriticalCount      int      `json:"critical_count"`
	CriticalActivities []string `json:"critical_activities,omitempty"`
	StartDate          string   `json:"start_date" format:"date"`
	EndDate            string   `json:"end_date" format:"date"`
}

type HistoryEntry struct {
	ID      string         `json:"id"`
	Action  string         `json:"action"`
	At      string         `json:"at" format:"date-time"`
	Details map[string]any `json:"details,omitempty"`
}

type CompositionMetadata struct {
	Analysis NeedsAnalysis    `json:"analysis"`
	Stats    CompositionStats `json:"stats"`
	History  []HistoryEntry   `json:"history"`
}

type ComposedProject struct {
	ID              string              `json:"id"`
	ProjectID       string              `json:"project_id"`
	TemplateIDs     []string            `json:"template_ids"`
	CompositionType CompositionType     `json:"composition_type" enum:"automatic,manual"`
	Activities      []Activity          `json:"activities"`
	DependencyGraph DependencyGraph     `json:"dependency_graph"`
	Schedule        []ScheduleItem      `json:"schedule"`
	Budget          BudgetComposition   `json:"budget"`
	Config          CompositionConfig   `json:"config"`
	Metadata        CompositionMetadata `json:"metadata"`
	Status          ProjectStatus       `json:"status" enum:"active,paused,done"`
	CreatedAt       string              `json:"created_at" format:"date-time"`
	UpdatedAt       string              `json:"updated_at" format:"date-time"`
}

// ComposeOptions are the caller-facing knobs applied before and during composition.
type ComposeOptions struct {
	ForceRegenerate  bool            `json:"force_regenerate,omitempty"`
	IncludeOptional  *bool           `json:"include_optional,omitempty"`
	MinScore         float64         `json:"min_score,omitempty"`
	MinPriority      int             `json:"min_priority,omitempty"`
	CustomParameters map[string]any  `json:"custom_parameters,omitempty"`
	StartDate        string          `json:"start_date,omitempty" format:"date"`
	CompositionType  CompositionType `json:"composition_type,omitempty" enum:"automatic,manual"`
}

// OptionalIncluded reports whether the optional tier survives filtering; unset means yes.
func (o ComposeOptions) OptionalIncluded() bool {
	return o.IncludeOptional == nil || *o.IncludeOptional
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
