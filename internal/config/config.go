package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const FileName = "archplan.yml"

// Config models archplan.yml: the classification and composition rule tables.
type Config struct {
	Needs       NeedsConfig       `yaml:"needs" json:"needs"`
	Composition CompositionConfig `yaml:"composition" json:"composition"`
	Cache       CacheConfig       `yaml:"cache" json:"cache"`
}

type NeedsConfig struct {
	ProjectTypes    map[string]Rule     `yaml:"project_types" json:"project_types"`
	Complementary   []Rule              `yaml:"complementary" json:"complementary"`
	Optional        []OptionalRule      `yaml:"optional" json:"optional"`
	Estimates       map[string]Estimate `yaml:"estimates" json:"estimates"`
	DefaultEstimate Estimate            `yaml:"default_estimate" json:"default_estimate"`
}

// Rule describes one template recommendation produced by the detector.
type Rule struct {
	Template     string   `yaml:"template" json:"template"`
	Category     string   `yaml:"category" json:"category"`
	Priority     int      `yaml:"priority" json:"priority"`
	Score        float64  `yaml:"score" json:"score"`
	Reason       string   `yaml:"reason" json:"reason"`
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
}

type OptionalRule struct {
	Rule     `yaml:",inline"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

type Estimate struct {
	Minutes int `yaml:"minutes" json:"minutes"`
	Tasks   int `yaml:"tasks" json:"tasks"`
}

type CompositionConfig struct {
	DependencyRules map[string][]string `yaml:"dependency_rules" json:"dependency_rules"`
	BudgetBase      map[string]float64  `yaml:"budget_base" json:"budget_base"`
	MinutesPerDay   int                 `yaml:"minutes_per_day" json:"minutes_per_day"`
	MergeRules      []string            `yaml:"merge_rules" json:"merge_rules"`
}

type CacheConfig struct {
	Driver                string `yaml:"driver" json:"driver"`
	RedisURL              string `yaml:"redis_url,omitempty" json:"redis_url,omitempty"`
	Size                  int    `yaml:"size" json:"size"`
	AnalysisTTLSeconds    int    `yaml:"analysis_ttl_seconds" json:"analysis_ttl_seconds"`
	CompositionTTLSeconds int    `yaml:"composition_ttl_seconds" json:"composition_ttl_seconds"`
}

const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheSQLite = "sqlite"
	CacheNone   = "none"
)

var cacheDrivers = map[string]bool{CacheMemory: true, CacheRedis: true, CacheSQLite: true, CacheNone: true}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with archplan config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional falls back to the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the built-in rule tables.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// normalize lowercases lookup keys and fills zero values with defaults.
func (c *Config) normalize() {
	if len(c.Needs.ProjectTypes) > 0 {
		types := make(map[string]Rule, len(c.Needs.ProjectTypes))
		for k, v := range c.Needs.ProjectTypes {
			types[strings.ToLower(strings.TrimSpace(k))] = v
		}
		c.Needs.ProjectTypes = types
	}
	for i := range c.Needs.Optional {
		for j, kw := range c.Needs.Optional[i].Keywords {
			c.Needs.Optional[i].Keywords[j] = strings.ToLower(kw)
		}
	}
	if c.Composition.MinutesPerDay == 0 {
		c.Composition.MinutesPerDay = 8 * 60
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = CacheMemory
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = 1024
	}
	if c.Cache.AnalysisTTLSeconds == 0 {
		c.Cache.AnalysisTTLSeconds = 30 * 60
	}
	if c.Cache.CompositionTTLSeconds == 0 {
		c.Cache.CompositionTTLSeconds = 60 * 60
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	for typ, rule := range c.Needs.ProjectTypes {
		if typ == "" {
			return fmt.Errorf("needs.project_types contains empty type")
		}
		if err := rule.validate("project type " + typ); err != nil {
			return err
		}
	}
	for i, rule := range c.Needs.Complementary {
		if err := rule.validate(fmt.Sprintf("complementary[%d]", i)); err != nil {
			return err
		}
	}
	for i, rule := range c.Needs.Optional {
		where := fmt.Sprintf("optional[%d]", i)
		if err := rule.Rule.validate(where); err != nil {
			return err
		}
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("%s requires at least one keyword", where)
		}
		for _, kw := range rule.Keywords {
			if strings.TrimSpace(kw) == "" {
				return fmt.Errorf("%s has empty keyword", where)
			}
		}
	}
	for cat, est := range c.Needs.Estimates {
		if est.Minutes < 0 || est.Tasks < 0 {
			return fmt.Errorf("estimate for %s must not be negative", cat)
		}
	}
	if c.Needs.DefaultEstimate.Minutes < 0 || c.Needs.DefaultEstimate.Tasks < 0 {
		return fmt.Errorf("needs.default_estimate must not be negative")
	}
	for cat, prereqs := range c.Composition.DependencyRules {
		for _, p := range prereqs {
			if p == "" {
				return fmt.Errorf("dependency rule for %s has empty category", cat)
			}
			if p == cat {
				return fmt.Errorf("dependency rule for %s references itself", cat)
			}
		}
	}
	for cat, amount := range c.Composition.BudgetBase {
		if amount < 0 {
			return fmt.Errorf("budget base for %s must not be negative", cat)
		}
	}
	if c.Composition.MinutesPerDay <= 0 {
		return fmt.Errorf("composition.minutes_per_day must be positive")
	}
	if !cacheDrivers[c.Cache.Driver] {
		return fmt.Errorf("cache.driver must be one of memory, redis, sqlite, none")
	}
	if c.Cache.Driver == CacheRedis && c.Cache.RedisURL == "" {
		return fmt.Errorf("cache.redis_url is required for the redis driver")
	}
	if c.Cache.AnalysisTTLSeconds < 0 || c.Cache.CompositionTTLSeconds < 0 {
		return fmt.Errorf("cache ttl must not be negative")
	}
	return nil
}

func (r Rule) validate(where string) error {
	if r.Template == "" {
		return fmt.Errorf("%s: template is required", where)
	}
	if r.Category == "" {
		return fmt.Errorf("%s: category is required", where)
	}
	if r.Priority < 1 {
		return fmt.Errorf("%s: priority must be >= 1", where)
	}
	if r.Score < 0 || r.Score > 1 {
		return fmt.Errorf("%s: score must be within [0,1]", where)
	}
	return nil
}

// Estimate returns the base estimate for a category, falling back to the default.
func (n NeedsConfig) Estimate(category string) Estimate {
	if est, ok := n.Estimates[category]; ok {
		return est
	}
	return n.DefaultEstimate
}

const defaultTemplate = `needs:
  project_types:
    residential:
      template: tpl-architecture-residential
      category: architecture
      priority: 1
      score: 1.0
      reason: "Residential project requires the residential architecture scope"
    residencial:
      template: tpl-architecture-residential
      category: architecture
      priority: 1
      score: 1.0
      reason: "Residential project requires the residential architecture scope"
    commercial:
      template: tpl-architecture-commercial
      category: architecture
      priority: 1
      score: 1.0
      reason: "Commercial project requires the commercial architecture scope"
    comercial:
      template: tpl-architecture-commercial
      category: architecture
      priority: 1
      score: 1.0
      reason: "Commercial project requires the commercial architecture scope"
    industrial:
      template: tpl-architecture-industrial
      category: architecture
      priority: 1
      score: 1.0
      reason: "Industrial project requires the industrial architecture scope"
    institutional:
      template: tpl-architecture-institutional
      category: architecture
      priority: 1
      score: 1.0
      reason: "Institutional project requires the institutional architecture scope"
    institucional:
      template: tpl-architecture-institutional
      category: architecture
      priority: 1
      score: 1.0
      reason: "Institutional project requires the institutional architecture scope"
    renovation:
      template: tpl-architecture-renovation
      category: architecture
      priority: 1
      score: 1.0
      reason: "Renovation requires survey and retrofit architecture scope"
    reforma:
      template: tpl-architecture-renovation
      category: architecture
      priority: 1
      score: 1.0
      reason: "Renovation requires survey and retrofit architecture scope"

  complementary:
    - template: tpl-structural
      category: structural
      priority: 2
      score: 1.0
      reason: "Every building needs a structural design"
      dependencies: [architecture]
    - template: tpl-utilities
      category: utilities
      priority: 3
      score: 1.0
      reason: "Electrical, plumbing and HVAC installations are always required"
      dependencies: [architecture, structural]

  optional:
    - template: tpl-landscaping
      category: landscaping
      priority: 4
      score: 0.8
      reason: "Briefing mentions outdoor areas"
      dependencies: [architecture]
      keywords: [pool, garden, landscaping, backyard, deck, lawn, piscina, jardim, paisagismo]
    - template: tpl-interiors
      category: interiors
      priority: 5
      score: 0.7
      reason: "Briefing mentions interior design"
      dependencies: [architecture, utilities]
      keywords: [interior, furniture, joinery, decoration, lighting design, interiores, marcenaria, mobiliario]

  estimates:
    architecture: {minutes: 2400, tasks: 12}
    structural: {minutes: 1440, tasks: 8}
    utilities: {minutes: 1200, tasks: 6}
    landscaping: {minutes: 720, tasks: 4}
    interiors: {minutes: 960, tasks: 5}
  default_estimate: {minutes: 480, tasks: 3}

composition:
  dependency_rules:
    structural: [architecture]
    utilities: [architecture, structural]
    landscaping: [architecture]
    interiors: [architecture, utilities]
  budget_base:
    architecture: 15000
    structural: 8000
    utilities: 6000
    landscaping: 4000
    interiors: 5000
  minutes_per_day: 480
  merge_rules: [namespace_ids, cross_category_dependencies, latest_prerequisite_activity]

cache:
  driver: memory
  size: 1024
  analysis_ttl_seconds: 1800
  composition_ttl_seconds: 3600
`
