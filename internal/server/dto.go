package server

import (
	"encoding/json"
	"fmt"

	"archplan/internal/domain"
)

// Request payloads

type AnalyzeRequest struct {
	Briefing map[string]any `json:"briefing" doc:"Free-form briefing; id, type and version are read by their known aliases"`
}

type RecommendationInput struct {
	TemplateID   string         `json:"template_id"`
	Category     string         `json:"category"`
	Priority     int            `json:"priority"`
	Score        float64        `json:"score" minimum:"0" maximum:"1"`
	Reason       string         `json:"reason,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	ExtraConfig  map[string]any `json:"extra_config,omitempty"`
}

// AnalysisInput carries the tiers of an analysis; aggregates are recomputed
// on the server, so a posted analyze response is accepted as is.
type AnalysisInput struct {
	_             struct{}              `json:"-" additionalProperties:"true"`
	Primary       []RecommendationInput `json:"primary,omitempty"`
	Complementary []RecommendationInput `json:"complementary,omitempty"`
	Optional      []RecommendationInput `json:"optional,omitempty"`
}

type ComposeRequest struct {
	Analysis AnalysisInput         `json:"analysis"`
	Options  domain.ComposeOptions `json:"options,omitempty"`
}

type PlanRequest struct {
	Briefing map[string]any        `json:"briefing"`
	Options  domain.ComposeOptions `json:"options,omitempty"`
}

// Responses

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type TemplateSummary struct {
	ID            string `json:"id"`
	Category      string `json:"category"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	ActivityCount int    `json:"activity_count"`
}

type templateActivities struct {
	TemplateID string                    `json:"template_id"`
	Items      []domain.ActivityTemplate `json:"items"`
}

// Conversion helpers

func briefingFromBody(raw map[string]any) (domain.Briefing, error) {
	if raw == nil {
		return domain.Briefing{}, fmt.Errorf("briefing is required")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return domain.Briefing{}, fmt.Errorf("invalid briefing: %w", err)
	}
	var b domain.Briefing
	if err := json.Unmarshal(data, &b); err != nil {
		return domain.Briefing{}, fmt.Errorf("invalid briefing: %w", err)
	}
	return b, nil
}

func recommendations(in []RecommendationInput) []domain.TemplateRecommendation {
	out := make([]domain.TemplateRecommendation, 0, len(in))
	for _, r := range in {
		deps := r.Dependencies
		if deps == nil {
			deps = []string{}
		}
		out = append(out, domain.TemplateRecommendation{
			TemplateID:   r.TemplateID,
			Category:     r.Category,
			Priority:     r.Priority,
			Score:        r.Score,
			Reason:       r.Reason,
			Dependencies: deps,
			ExtraConfig:  r.ExtraConfig,
		})
	}
	return out
}

func templateSummary(t domain.Template) TemplateSummary {
	return TemplateSummary{
		ID:            t.ID,
		Category:      t.Category,
		Name:          t.Name,
		Description:   t.Description,
		ActivityCount: len(t.Activities),
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}
