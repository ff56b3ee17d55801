package compose

import (
	"strings"
	"time"

	"archplan/internal/domain"
)

// Schedule walks the linearized activities and places each one after the
// latest end date of its dependencies. It returns the items in order and the
// furthest end date reached.
func Schedule(order []string, activities map[string]domain.Activity, graph domain.DependencyGraph, start time.Time, minutesPerDay int) ([]domain.ScheduleItem, time.Time) {
	start = Day(start)
	cursor := start
	ends := make(map[string]time.Time, len(order))
	items := make([]domain.ScheduleItem, 0, len(order))
	for _, id := range order {
		a, ok := activities[id]
		if !ok {
			continue
		}
		begin := start
		deps := make([]string, 0, len(graph[id]))
		for _, d := range graph[id] {
			end, scheduled := ends[d]
			if !scheduled {
				continue
			}
			deps = append(deps, d)
			if end.After(begin) {
				begin = end
			}
		}
		days := DurationDays(a.EstimatedMinutes, minutesPerDay)
		end := AddBusinessDays(begin, days)
		ends[id] = end
		if end.After(cursor) {
			cursor = end
		}
		items = append(items, domain.ScheduleItem{
			ID:                   "sched-" + id,
			ActivityID:           id,
			Title:                a.Title,
			Category:             a.Category,
			StartDate:            begin.Format(DateLayout),
			EndDate:              end.Format(DateLayout),
			DurationBusinessDays: days,
			Dependencies:         deps,
			IsMilestone:          isMilestone(a),
			IsCritical:           isCritical(a),
		})
	}
	return items, cursor
}

func isMilestone(a domain.Activity) bool {
	return a.Category == "architecture" && strings.Contains(a.Title, "Approval")
}

func isCritical(a domain.Activity) bool {
	return a.Mandatory && a.Complexity == "high"
}
