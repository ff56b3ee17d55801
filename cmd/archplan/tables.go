package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"archplan/internal/domain"
)

func printAnalysis(a domain.NeedsAnalysis) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle(a.Summary)
	tw.AppendHeader(table.Row{"Tier", "Template", "Category", "Priority", "Score", "Reason"})
	tiers := []struct {
		tier domain.Tier
		recs []domain.TemplateRecommendation
	}{
		{domain.TierPrimary, a.Primary},
		{domain.TierComplementary, a.Complementary},
		{domain.TierOptional, a.Optional},
	}
	for _, t := range tiers {
		for _, r := range t.recs {
			tw.AppendRow(table.Row{t.tier, r.TemplateID, r.Category, r.Priority, fmt.Sprintf("%.2f", r.Score), r.Reason})
		}
	}
	tw.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%.2f", a.OverallScore), fmt.Sprintf("%s, ~%d min", a.Complexity, a.EstimatedMinutes)})
	tw.Render()
}

func printProject(p domain.ComposedProject) {
	s := p.Metadata.Stats
	fmt.Printf("Project %s (%s): %d activities from %d templates, %s to %s (%d business days)\n",
		p.ProjectID, p.ID, s.ActivityCount, s.TemplateCount, s.StartDate, s.EndDate, s.TotalBusinessDays)

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle("Schedule")
	tw.AppendHeader(table.Row{"Activity", "Category", "Start", "End", "Days", "Flags"})
	for _, item := range p.Schedule {
		var flags []string
		if item.IsMilestone {
			flags = append(flags, "milestone")
		}
		if item.IsCritical {
			flags = append(flags, "critical")
		}
		tw.AppendRow(table.Row{item.ActivityID, item.Category, item.StartDate, item.EndDate, item.DurationBusinessDays, strings.Join(flags, ",")})
	}
	tw.Render()

	bw := table.NewWriter()
	bw.SetOutputMirror(os.Stdout)
	bw.SetTitle("Budget")
	bw.AppendHeader(table.Row{"Category", "Amount", "Templates", "Activities"})
	bw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	for _, line := range p.Budget.Breakdown {
		bw.AppendRow(table.Row{line.Category, fmt.Sprintf("%.2f", line.Amount), strings.Join(line.Templates, ", "), line.Activities})
	}
	bw.AppendFooter(table.Row{"Total", fmt.Sprintf("%.2f", p.Budget.Total), "", ""})
	bw.Render()
}

func printTemplates(templates []domain.Template) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Category", "Name", "Activities"})
	for _, t := range templates {
		tw.AppendRow(table.Row{t.ID, t.Category, t.Name, len(t.Activities)})
	}
	tw.Render()
}

func printTemplateActivities(t domain.Template) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle(fmt.Sprintf("%s (%s)", t.Name, t.ID))
	tw.AppendHeader(table.Row{"ID", "Title", "Kind", "Minutes", "Complexity", "Mandatory", "Depends on"})
	for _, a := range t.Activities {
		tw.AppendRow(table.Row{a.ID, a.Title, a.Kind, a.EstimatedMinutes, a.Complexity, a.Mandatory, strings.Join(a.Dependencies, ", ")})
	}
	tw.Render()
}

func printEvents(events []domain.Event) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "TS", "Type", "Project", "Entity", "Payload"})
	for _, e := range events {
		entity := e.EntityKind
		if e.EntityID != "" {
			entity += ":" + e.EntityID
		}
		tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.ProjectID, entity, e.Payload})
	}
	tw.Render()
}
