package compose

import (
	"context"
	"strings"

	"archplan/internal/catalog"
	"archplan/internal/domain"
)

// namespace prefixes a local id with its template. IDs already carrying the
// separator are treated as cross-template references and kept.
func namespace(templateID, id string) string {
	if strings.Contains(id, catalog.Separator) {
		return id
	}
	return templateID + catalog.Separator + id
}

// merge fetches and namespaces the activities of every recommendation in
// order. The global order counter is local to one call.
func (c Compositor) merge(ctx context.Context, recs []domain.TemplateRecommendation) []domain.Activity {
	var (
		out    []domain.Activity
		order  int
		merged = make(map[string]bool, len(recs))
	)
	for _, rec := range recs {
		if merged[rec.TemplateID] {
			continue
		}
		merged[rec.TemplateID] = true
		raw, err := c.Catalog.TemplateActivities(ctx, rec.TemplateID)
		if err != nil {
			c.logger().WarnContext(ctx, "catalog lookup failed; template contributes no activities",
				"template_id", rec.TemplateID, "error", err)
			continue
		}
		if len(raw) == 0 {
			c.logger().DebugContext(ctx, "template has no activities", "template_id", rec.TemplateID)
		}
		for _, a := range raw {
			order++
			category := a.Category
			if category == "" {
				category = rec.Category
			}
			deps := make([]string, 0, len(a.Dependencies))
			for _, d := range a.Dependencies {
				deps = append(deps, namespace(rec.TemplateID, d))
			}
			out = append(out, domain.Activity{
				ID:               rec.TemplateID + catalog.Separator + a.ID,
				Title:            a.Title,
				Description:      a.Description,
				Category:         category,
				SourceTemplateID: rec.TemplateID,
				Kind:             a.Kind,
				GlobalOrder:      order,
				Dependencies:     deps,
				EstimatedMinutes: a.EstimatedMinutes,
				Complexity:       a.Complexity,
				Mandatory:        a.Mandatory,
				Resources:        a.Resources,
				Deliverables:     a.Deliverables,
			})
		}
	}
	return out
}

// Resolve builds the dependency graph: for each prerequisite category of an
// activity, the latest activity of that category from another template,
// followed by the activity's own dependencies.
func Resolve(activities []domain.Activity, rules map[string][]string) domain.DependencyGraph {
	// latest[category][template] is the highest global order activity.
	latest := make(map[string]map[string]domain.Activity)
	for _, a := range activities {
		byTemplate, ok := latest[a.Category]
		if !ok {
			byTemplate = make(map[string]domain.Activity)
			latest[a.Category] = byTemplate
		}
		if cur, ok := byTemplate[a.SourceTemplateID]; !ok || a.GlobalOrder > cur.GlobalOrder {
			byTemplate[a.SourceTemplateID] = a
		}
	}

	graph := make(domain.DependencyGraph, len(activities))
	for _, a := range activities {
		deps := make([]string, 0, len(a.Dependencies)+len(rules[a.Category]))
		seen := make(map[string]bool)
		add := func(id string) {
			if id == "" || seen[id] {
				return
			}
			seen[id] = true
			deps = append(deps, id)
		}
		for _, prereq := range rules[a.Category] {
			var (
				pick  domain.Activity
				found bool
			)
			for tpl, candidate := range latest[prereq] {
				if tpl == a.SourceTemplateID {
					continue
				}
				if !found || candidate.GlobalOrder > pick.GlobalOrder {
					pick, found = candidate, true
				}
			}
			if found {
				add(pick.ID)
			}
		}
		for _, d := range a.Dependencies {
			add(d)
		}
		graph[a.ID] = deps
	}
	return graph
}

type visit struct {
	id   string
	next int
}

// Order linearizes activities so each appears after its dependencies. It is
// an iterative depth-first walk with three states per node; meeting a node
// that is still in progress means a cycle. Dependencies outside the merged
// set are skipped.
func Order(activities []domain.Activity, graph domain.DependencyGraph) ([]string, error) {
	const (
		unvisited = iota
		inProgress
		done
	)
	known := make(map[string]bool, len(activities))
	for _, a := range activities {
		known[a.ID] = true
	}
	state := make(map[string]int, len(activities))
	out := make([]string, 0, len(activities))

	for _, a := range activities {
		if state[a.ID] != unvisited {
			continue
		}
		state[a.ID] = inProgress
		stack := []visit{{id: a.ID}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			deps := graph[top.id]
			if top.next < len(deps) {
				dep := deps[top.next]
				top.next++
				if !known[dep] {
					continue
				}
				switch state[dep] {
				case inProgress:
					return nil, cycleError(cyclePath(stack, dep))
				case unvisited:
					state[dep] = inProgress
					stack = append(stack, visit{id: dep})
				}
				continue
			}
			state[top.id] = done
			out = append(out, top.id)
			stack = stack[:len(stack)-1]
		}
	}
	return out, nil
}

// cyclePath returns the stack suffix starting at closing, closed by closing.
func cyclePath(stack []visit, closing string) []string {
	var path []string
	for _, f := range stack {
		if f.id == closing || len(path) > 0 {
			path = append(path, f.id)
		}
	}
	return append(path, closing)
}
