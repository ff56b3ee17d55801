// Package catalog supplies the raw activity definitions of each template.
package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"archplan/internal/domain"
)

// Separator joins a template id and a local activity id into a global id.
const Separator = "_"

// Catalog returns the activities of a template. Unknown ids yield an empty list.
type Catalog interface {
	TemplateActivities(ctx context.Context, templateID string) ([]domain.ActivityTemplate, error)
}

// Lister is implemented by catalogs that can enumerate their templates.
type Lister interface {
	ListTemplates(ctx context.Context) ([]domain.Template, error)
}

// Static is an in-memory catalog.
type Static struct {
	templates map[string]domain.Template
}

func NewStatic(templates ...domain.Template) *Static {
	s := &Static{templates: make(map[string]domain.Template, len(templates))}
	for _, t := range templates {
		s.templates[t.ID] = t
	}
	return s
}

func (s *Static) TemplateActivities(_ context.Context, templateID string) ([]domain.ActivityTemplate, error) {
	t, ok := s.templates[templateID]
	if !ok {
		return []domain.ActivityTemplate{}, nil
	}
	out := make([]domain.ActivityTemplate, 0, len(t.Activities))
	for _, a := range t.Activities {
		a.Dependencies = append([]string(nil), a.Dependencies...)
		if a.Category == "" {
			a.Category = t.Category
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Static) ListTemplates(_ context.Context) ([]domain.Template, error) {
	out := make([]domain.Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Validate checks local ids are unique, free of the separator, and that
// local dependencies resolve inside the template.
func Validate(t domain.Template) error {
	if t.ID == "" {
		return fmt.Errorf("template id is required")
	}
	if strings.Contains(t.ID, Separator) {
		return fmt.Errorf("template id %s must not contain %q", t.ID, Separator)
	}
	if t.Category == "" {
		return fmt.Errorf("template %s: category is required", t.ID)
	}
	seen := make(map[string]bool, len(t.Activities))
	for _, a := range t.Activities {
		if a.ID == "" {
			return fmt.Errorf("template %s: activity id is required", t.ID)
		}
		if strings.Contains(a.ID, Separator) {
			return fmt.Errorf("template %s: activity id %s must not contain %q", t.ID, a.ID, Separator)
		}
		if seen[a.ID] {
			return fmt.Errorf("template %s: duplicate activity id %s", t.ID, a.ID)
		}
		seen[a.ID] = true
		if a.EstimatedMinutes < 0 {
			return fmt.Errorf("template %s: activity %s has negative estimate", t.ID, a.ID)
		}
	}
	for _, a := range t.Activities {
		for _, dep := range a.Dependencies {
			if strings.Contains(dep, Separator) {
				continue
			}
			if !seen[dep] {
				return fmt.Errorf("template %s: activity %s depends on unknown activity %s", t.ID, a.ID, dep)
			}
		}
	}
	return nil
}

type catalogFile struct {
	Templates []domain.Template `yaml:"templates"`
}

// FromYAML parses and validates a catalog document.
func FromYAML(data []byte) ([]domain.Template, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid catalog yaml: %w", err)
	}
	ids := map[string]bool{}
	for _, t := range f.Templates {
		if err := Validate(t); err != nil {
			return nil, err
		}
		if ids[t.ID] {
			return nil, fmt.Errorf("duplicate template id %s", t.ID)
		}
		ids[t.ID] = true
	}
	return f.Templates, nil
}

// LoadFile reads a catalog document from path.
func LoadFile(path string) ([]domain.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Seeder persists templates; repo.Repo satisfies it.
type Seeder interface {
	UpsertTemplate(ctx context.Context, t domain.Template) error
}

// Seed writes templates into dst, validating each one first.
func Seed(ctx context.Context, dst Seeder, templates []domain.Template) error {
	for _, t := range templates {
		if err := Validate(t); err != nil {
			return err
		}
		if err := dst.UpsertTemplate(ctx, t); err != nil {
			return fmt.Errorf("seed template %s: %w", t.ID, err)
		}
	}
	return nil
}
