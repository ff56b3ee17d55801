package catalog

import "archplan/internal/domain"

// Builtin returns the default discipline templates referenced by the default
// rule configuration.
func Builtin() []domain.Template {
	return []domain.Template{
		architecture("tpl-architecture-residential", "Residential architecture", nil),
		architecture("tpl-architecture-commercial", "Commercial architecture", []domain.ActivityTemplate{
			{ID: "accessibility-review", Title: "Accessibility and fire code review", Kind: "compliance", Dependencies: []string{"preliminary-study"}, EstimatedMinutes: 480, Complexity: "medium", Mandatory: true, Deliverables: []string{"Code compliance report"}},
		}),
		architecture("tpl-architecture-industrial", "Industrial architecture", []domain.ActivityTemplate{
			{ID: "process-layout", Title: "Production process layout", Kind: "design", Dependencies: []string{"site-survey"}, EstimatedMinutes: 960, Complexity: "high", Mandatory: true},
		}),
		architecture("tpl-architecture-institutional", "Institutional architecture", []domain.ActivityTemplate{
			{ID: "program-validation", Title: "Program validation with stakeholders", Kind: "meeting", Dependencies: []string{"briefing-review"}, EstimatedMinutes: 240, Complexity: "low", Mandatory: true},
		}),
		architecture("tpl-architecture-renovation", "Renovation architecture", []domain.ActivityTemplate{
			{ID: "as-built-survey", Title: "As-built survey of the existing building", Kind: "survey", Dependencies: []string{"site-survey"}, EstimatedMinutes: 960, Complexity: "medium", Mandatory: true, Deliverables: []string{"As-built drawings"}},
		}),
		{
			ID:       "tpl-structural",
			Category: "structural",
			Name:     "Structural design",
			Activities: []domain.ActivityTemplate{
				{ID: "structural-concept", Title: "Structural concept", Kind: "design", EstimatedMinutes: 960, Complexity: "high", Mandatory: true},
				{ID: "foundation-design", Title: "Foundation design", Kind: "design", Dependencies: []string{"structural-concept"}, EstimatedMinutes: 1440, Complexity: "high", Mandatory: true, Resources: []string{"Soil report"}},
				{ID: "structural-detailing", Title: "Structural detailing", Kind: "documentation", Dependencies: []string{"foundation-design"}, EstimatedMinutes: 960, Complexity: "medium", Mandatory: true, Deliverables: []string{"Reinforcement drawings"}},
			},
		},
		{
			ID:       "tpl-utilities",
			Category: "utilities",
			Name:     "Building installations",
			Activities: []domain.ActivityTemplate{
				{ID: "electrical-design", Title: "Electrical design", Kind: "design", EstimatedMinutes: 960, Complexity: "medium", Mandatory: true},
				{ID: "plumbing-design", Title: "Plumbing and drainage design", Kind: "design", EstimatedMinutes: 720, Complexity: "medium", Mandatory: true},
				{ID: "hvac-design", Title: "HVAC design", Kind: "design", EstimatedMinutes: 720, Complexity: "medium", Mandatory: false},
				{ID: "installations-compatibility", Title: "Installations compatibility check", Kind: "review", Dependencies: []string{"electrical-design", "plumbing-design", "hvac-design"}, EstimatedMinutes: 480, Complexity: "high", Mandatory: true},
			},
		},
		{
			ID:       "tpl-landscaping",
			Category: "landscaping",
			Name:     "Landscaping",
			Activities: []domain.ActivityTemplate{
				{ID: "landscape-concept", Title: "Landscape concept", Kind: "design", EstimatedMinutes: 480, Complexity: "low", Mandatory: true},
				{ID: "planting-plan", Title: "Planting plan", Kind: "design", Dependencies: []string{"landscape-concept"}, EstimatedMinutes: 480, Complexity: "medium", Mandatory: false},
				{ID: "hardscape-details", Title: "Hardscape and pool details", Kind: "documentation", Dependencies: []string{"landscape-concept"}, EstimatedMinutes: 360, Complexity: "medium", Mandatory: false},
			},
		},
		{
			ID:       "tpl-interiors",
			Category: "interiors",
			Name:     "Interior design",
			Activities: []domain.ActivityTemplate{
				{ID: "interior-concept", Title: "Interior concept", Kind: "design", EstimatedMinutes: 720, Complexity: "medium", Mandatory: true},
				{ID: "furniture-layout", Title: "Furniture and joinery layout", Kind: "design", Dependencies: []string{"interior-concept"}, EstimatedMinutes: 480, Complexity: "medium", Mandatory: true},
				{ID: "finishes-specification", Title: "Finishes specification", Kind: "documentation", Dependencies: []string{"furniture-layout"}, EstimatedMinutes: 480, Complexity: "low", Mandatory: false},
			},
		},
	}
}

// Default returns a Static catalog holding Builtin.
func Default() *Static {
	return NewStatic(Builtin()...)
}

func architecture(id, name string, extra []domain.ActivityTemplate) domain.Template {
	activities := []domain.ActivityTemplate{
		{ID: "briefing-review", Title: "Briefing review", Kind: "analysis", EstimatedMinutes: 240, Complexity: "low", Mandatory: true},
		{ID: "site-survey", Title: "Site survey", Kind: "survey", Dependencies: []string{"briefing-review"}, EstimatedMinutes: 480, Complexity: "medium", Mandatory: true, Resources: []string{"Topographic survey"}},
		{ID: "preliminary-study", Title: "Preliminary study", Kind: "design", Dependencies: []string{"site-survey"}, EstimatedMinutes: 960, Complexity: "high", Mandatory: true, Deliverables: []string{"Floor plans", "Massing model"}},
		{ID: "preliminary-approval", Title: "Client Approval of preliminary study", Kind: "approval", Dependencies: []string{"preliminary-study"}, EstimatedMinutes: 120, Complexity: "low", Mandatory: true},
		{ID: "executive-project", Title: "Executive project", Kind: "documentation", Dependencies: []string{"preliminary-approval"}, EstimatedMinutes: 1920, Complexity: "high", Mandatory: true, Deliverables: []string{"Construction drawings"}},
		{ID: "permit-approval", Title: "Permit Approval submission", Kind: "approval", Dependencies: []string{"executive-project"}, EstimatedMinutes: 480, Complexity: "medium", Mandatory: true},
	}
	activities = append(activities, extra...)
	return domain.Template{
		ID:          id,
		Category:    "architecture",
		Name:        name,
		Description: name + " scope from briefing to permit",
		Activities:  activities,
	}
}
