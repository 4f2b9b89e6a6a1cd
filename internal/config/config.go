package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/Cortex/internal/roster"
)

type Config struct {
	Server                 ServerConfig                  `yaml:"server"`
	Database               DatabaseConfig                `yaml:"database"`
	Hermes                 HermesConfig                  `yaml:"hermes"`
	Feed                   FeedConfig                    `yaml:"feed"`
	Ledger                 LedgerConfig                  `yaml:"ledger"`
	Balancer               BalancerConfig                `yaml:"balancer"`
	Modalities             map[string]ModalityConfig     `yaml:"modalities"`
	Skills                 map[string]SkillConfig        `yaml:"skills"`
	SkillModalityOverrides map[string]map[string]float64 `yaml:"skill_modality_overrides"`
	ExclusionRules         map[string]ExclusionRule      `yaml:"exclusion_rules"`
	ModalityFallbacks      map[string][]string           `yaml:"modality_fallbacks"`
	Tasks                  map[string]roster.TaskDef     `yaml:"tasks"`
	Timezone               string                        `yaml:"timezone"`
	Logging                LoggingConfig                 `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	AdminToken  string `yaml:"admin_token"`
	// RateLimit is requests per minute per client; 0 disables it.
	RateLimit int `yaml:"rate_limit_per_minute"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type HermesConfig struct {
	URL string `yaml:"url"`
}

type FeedConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type LedgerConfig struct {
	// Backend is one of postgres, kv or none.
	Backend            string `yaml:"backend"`
	SnapshotIntervalMs int    `yaml:"snapshot_interval_ms"`
	KVBucket           string `yaml:"kv_bucket"`
}

type BalancerConfig struct {
	UseExclusionRouting         bool    `yaml:"use_exclusion_routing"`
	MinAssignmentsPerSkill      float64 `yaml:"min_assignments_per_skill"`
	ImbalanceThresholdPct       float64 `yaml:"imbalance_threshold_pct"`
	AllowFallbackOnImbalance    bool    `yaml:"allow_fallback_on_imbalance"`
	ModifierAppliesToActiveOnly bool    `yaml:"modifier_applies_to_active_only"`
	FloorHours                  float64 `yaml:"floor_hours"`
}

type ModalityConfig struct {
	Label  string  `yaml:"label"`
	Factor float64 `yaml:"factor"`
}

type SkillConfig struct {
	Label    string   `yaml:"label"`
	Weight   float64  `yaml:"weight"`
	Optional bool     `yaml:"optional"`
	Special  bool     `yaml:"special"`
	Fallback Fallback `yaml:"fallback"`
}

type ExclusionRule struct {
	ExcludeSkills []string `yaml:"exclude_skills"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type FallbackMode string

const (
	FallbackSequential FallbackMode = "sequential"
	FallbackParallel   FallbackMode = "parallel"
)

// Fallback is a skill's alternate-skill chain. In YAML a plain list is a
// sequential chain; {parallel: [...]} pools every listed skill at once.
type Fallback struct {
	Mode   FallbackMode
	Skills []string
}

func (f *Fallback) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var skills []string
		if err := node.Decode(&skills); err != nil {
			return err
		}
		*f = Fallback{Mode: FallbackSequential, Skills: skills}
		return nil
	case yaml.MappingNode:
		var raw struct {
			Sequential []string `yaml:"sequential"`
			Parallel   []string `yaml:"parallel"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		if len(raw.Sequential) > 0 && len(raw.Parallel) > 0 {
			return fmt.Errorf("fallback: line %d: sequential and parallel are exclusive", node.Line)
		}
		if len(raw.Parallel) > 0 {
			*f = Fallback{Mode: FallbackParallel, Skills: raw.Parallel}
		} else {
			*f = Fallback{Mode: FallbackSequential, Skills: raw.Sequential}
		}
		return nil
	case yaml.ScalarNode:
		if node.Tag == "!!null" || node.Value == "" {
			*f = Fallback{}
			return nil
		}
	}
	return fmt.Errorf("fallback: line %d: expected list or mapping", node.Line)
}

func (f Fallback) MarshalYAML() (interface{}, error) {
	if f.Mode == FallbackParallel {
		return map[string][]string{"parallel": f.Skills}, nil
	}
	return f.Skills, nil
}

func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.Ledger.SnapshotIntervalMs) * time.Millisecond
}

// Location resolves the roster time zone; shift windows are wall-clock
// times in this zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ModalityIDs and SkillIDs return the configured identifiers, sorted.
func (c *Config) ModalityIDs() []string { return sortedKeys(c.Modalities) }

func (c *Config) SkillIDs() []string { return sortedKeys(c.Skills) }

func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        8600,
			MetricsPort: 8601,
			RateLimit:   600,
		},
		Hermes: HermesConfig{
			URL: "nats://localhost:4222",
		},
		Feed: FeedConfig{
			URL: "http://localhost:8700",
		},
		Ledger: LedgerConfig{
			Backend:            "postgres",
			SnapshotIntervalMs: 30000,
			KVBucket:           "CORTEX_LEDGER",
		},
		Balancer: BalancerConfig{
			UseExclusionRouting:      true,
			MinAssignmentsPerSkill:   0,
			ImbalanceThresholdPct:    30,
			AllowFallbackOnImbalance: false,
			FloorHours:               0.5,
		},
		Timezone: "Europe/Berlin",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyCatalogDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

// applyCatalogDefaults fills the modality and skill catalog only when the
// file left it out entirely, so a configured catalog is never merged with
// the built-in one.
func applyCatalogDefaults(cfg *Config) {
	if len(cfg.Modalities) == 0 {
		cfg.Modalities = map[string]ModalityConfig{
			"ct":   {Label: "CT", Factor: 1.0},
			"mr":   {Label: "MR", Factor: 1.2},
			"xray": {Label: "XRAY", Factor: 0.33},
		}
	}
	if len(cfg.Skills) == 0 {
		cfg.Skills = map[string]SkillConfig{
			"Normal":  {Label: "Normal", Weight: 1.0},
			"Notfall": {Label: "Notfall", Weight: 1.1, Fallback: Fallback{Mode: FallbackSequential, Skills: []string{"Normal"}}},
			"Privat":  {Label: "Privat", Weight: 1.2, Optional: true, Fallback: Fallback{Mode: FallbackSequential, Skills: []string{"Normal"}}},
			"Herz":    {Label: "Herz", Weight: 1.2, Special: true, Fallback: Fallback{Mode: FallbackParallel, Skills: []string{"Chest", "Normal"}}},
			"Msk":     {Label: "Msk", Weight: 0.8, Special: true, Fallback: Fallback{Mode: FallbackSequential, Skills: []string{"Normal"}}},
			"Chest":   {Label: "Chest", Weight: 0.8, Special: true, Fallback: Fallback{Mode: FallbackSequential, Skills: []string{"Normal"}}},
		}
		if cfg.ExclusionRules == nil {
			cfg.ExclusionRules = map[string]ExclusionRule{
				"Herz": {ExcludeSkills: []string{"Chest", "Msk"}},
			}
		}
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CORTEX_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("CORTEX_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = n
		}
	}
	if v := os.Getenv("CORTEX_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = n
		}
	}
	if v := os.Getenv("CORTEX_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("CORTEX_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("CORTEX_HERMES_URL"); v != "" {
		cfg.Hermes.URL = v
	}
	if v := os.Getenv("CORTEX_FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}
	if v := os.Getenv("CORTEX_FEED_TOKEN"); v != "" {
		cfg.Feed.Token = v
	}
	if v := os.Getenv("CORTEX_LEDGER_BACKEND"); v != "" {
		cfg.Ledger.Backend = v
	}
	if v := os.Getenv("CORTEX_SNAPSHOT_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ledger.SnapshotIntervalMs = n
		}
	}
	if v := os.Getenv("CORTEX_EXCLUSION_ROUTING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Balancer.UseExclusionRouting = b
		}
	}
	if v := os.Getenv("CORTEX_MIN_ASSIGNMENTS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Balancer.MinAssignmentsPerSkill = f
		}
	}
	if v := os.Getenv("CORTEX_FLOOR_HOURS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Balancer.FloorHours = f
		}
	}
	if v := os.Getenv("CORTEX_TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	if v := os.Getenv("CORTEX_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
