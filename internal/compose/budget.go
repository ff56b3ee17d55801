package compose

import (
	"sort"

	"archplan/internal/domain"
)

// Budget aggregates base amounts for the categories touched by activities.
// A category counts once for the project total but in full for every
// template that touches it.
func Budget(activities []domain.Activity, base map[string]float64) domain.BudgetComposition {
	var (
		touched     = make(map[string]int)
		templateCat = make(map[string]map[string]bool)
		catTpls     = make(map[string][]string)
		templates   = []string{}
	)
	for _, a := range activities {
		touched[a.Category]++
		cats, ok := templateCat[a.SourceTemplateID]
		if !ok {
			cats = make(map[string]bool)
			templateCat[a.SourceTemplateID] = cats
			templates = append(templates, a.SourceTemplateID)
		}
		if !cats[a.Category] {
			cats[a.Category] = true
			catTpls[a.Category] = append(catTpls[a.Category], a.SourceTemplateID)
		}
	}

	b := domain.BudgetComposition{
		ByCategory: make(map[string]float64),
		ByTemplate: make(map[string]float64),
		Breakdown:  []domain.BudgetLine{},
	}
	categories := make([]string, 0, len(base))
	for cat := range base {
		if touched[cat] > 0 {
			categories = append(categories, cat)
		}
	}
	sort.Strings(categories)
	for _, cat := range categories {
		amount := base[cat]
		b.ByCategory[cat] = amount
		b.Total += amount
		b.Breakdown = append(b.Breakdown, domain.BudgetLine{
			Category:   cat,
			Amount:     amount,
			Templates:  catTpls[cat],
			Activities: touched[cat],
		})
	}
	for _, tpl := range templates {
		var sum float64
		for cat := range templateCat[tpl] {
			sum += b.ByCategory[cat]
		}
		b.ByTemplate[tpl] = sum
	}
	return b
}
