package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
	"github.com/hugo-lorenzo-mato/memwall/internal/fsutil"
)

// CategoryCount is one slice of a tier's document mix.
type CategoryCount struct {
	Category  string `yaml:"category" json:"category"`
	Count     int    `yaml:"count" json:"count"`
	AvgSizeKB int    `yaml:"avg_size_kb,omitempty" json:"avg_size_kb,omitempty"`
}

// TierDef is a sized variant of a scenario.
type TierDef struct {
	Name           string          `yaml:"name" json:"name"`
	Description    string          `yaml:"description,omitempty" json:"description,omitempty"`
	Mix            []CategoryCount `yaml:"mix" json:"mix"`
	MemoryTargetGB float64         `yaml:"memory_target_gb" json:"memory_target_gb"`
	DocumentPacing string          `yaml:"document_pacing,omitempty" json:"document_pacing,omitempty"`
}

// TotalDocuments sums the tier's document mix.
func (t TierDef) TotalDocuments() int {
	total := 0
	for _, m := range t.Mix {
		total += m.Count
	}
	return total
}

// ScenarioDef is a catalog entry: phases shared by every tier plus the
// tiers themselves.
type ScenarioDef struct {
	ID             string            `yaml:"id" json:"id"`
	Name           string            `yaml:"name" json:"name"`
	Description    string            `yaml:"description,omitempty" json:"description,omitempty"`
	Phases         []core.Phase      `yaml:"phases" json:"phases"`
	Tiers          []TierDef         `yaml:"tiers" json:"tiers"`
	CategoryLabels map[string]string `yaml:"category_labels,omitempty" json:"category_labels,omitempty"`
	CorpusDir      string            `yaml:"corpus_dir,omitempty" json:"corpus_dir,omitempty"`
}

// Tier finds a tier by name.
func (d ScenarioDef) Tier(name string) (TierDef, error) {
	names := make([]string, 0, len(d.Tiers))
	for _, t := range d.Tiers {
		if strings.EqualFold(t.Name, name) {
			return t, nil
		}
		names = append(names, t.Name)
	}
	return TierDef{}, notFound("tier", d.ID+"/"+name, name, names)
}

// Catalog holds the scenarios available to runs.
type Catalog struct {
	byID map[string]ScenarioDef
}

// NewCatalog builds a catalog. Later definitions replace earlier ones
// with the same ID.
func NewCatalog(defs ...ScenarioDef) *Catalog {
	c := &Catalog{byID: make(map[string]ScenarioDef, len(defs))}
	for _, d := range defs {
		c.byID[d.ID] = d
	}
	return c
}

// Merge returns a new catalog with defs layered over c.
func (c *Catalog) Merge(defs ...ScenarioDef) *Catalog {
	all := make([]ScenarioDef, 0, len(c.byID)+len(defs))
	all = append(all, c.List()...)
	all = append(all, defs...)
	return NewCatalog(all...)
}

// List returns scenarios sorted by ID.
func (c *Catalog) List() []ScenarioDef {
	out := make([]ScenarioDef, 0, len(c.byID))
	for _, d := range c.byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns the sorted scenario IDs.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lookup finds a scenario by ID. Unknown IDs produce a not-found error
// with the closest match suggested.
func (c *Catalog) Lookup(id string) (ScenarioDef, error) {
	if d, ok := c.byID[strings.ToLower(id)]; ok {
		return d, nil
	}
	return ScenarioDef{}, notFound("scenario", id, id, c.IDs())
}

// Resolve finds a scenario and tier. A combined ID such as "pmm_large"
// is accepted when tier is empty.
func (c *Catalog) Resolve(id, tier string) (ScenarioDef, TierDef, error) {
	if tier == "" {
		if i := strings.LastIndex(id, "_"); i > 0 {
			if _, ok := c.byID[strings.ToLower(id[:i])]; ok {
				id, tier = id[:i], id[i+1:]
			}
		}
	}
	def, err := c.Lookup(id)
	if err != nil {
		return ScenarioDef{}, TierDef{}, err
	}
	if tier == "" {
		if len(def.Tiers) == 0 {
			return ScenarioDef{}, TierDef{}, core.ErrValidation(core.CodeInvalidConfig,
				fmt.Sprintf("scenario %s has no tiers", def.ID))
		}
		return def, def.Tiers[0], nil
	}
	t, err := def.Tier(tier)
	if err != nil {
		return ScenarioDef{}, TierDef{}, err
	}
	return def, t, nil
}

func notFound(resource, id, partial string, candidates []string) error {
	err := core.ErrNotFound(resource, id)
	if matches := fuzzy.Find(partial, candidates); len(matches) > 0 {
		err.WithDetail("suggestion", matches[0].Str)
		err.Message = fmt.Sprintf("%s (did you mean %q?)", err.Message, matches[0].Str)
	}
	return err
}

type scenarioFile struct {
	Scenarios []ScenarioDef `yaml:"scenarios"`
}

// LoadScenarioFile reads scenario definitions from a YAML file.
func LoadScenarioFile(path string) ([]ScenarioDef, error) {
	data, err := fsutil.ReadFileScoped(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}
	var f scenarioFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing scenario file %s: %w", path, err)
	}
	for i := range f.Scenarios {
		f.Scenarios[i].ID = strings.ToLower(strings.TrimSpace(f.Scenarios[i].ID))
		if f.Scenarios[i].ID == "" {
			return nil, core.ErrValidation(core.CodeInvalidConfig,
				fmt.Sprintf("scenario %d in %s has no id", i, path))
		}
	}
	return f.Scenarios, nil
}

// LoadCatalog returns the built-in catalog layered with cfg's scenario file.
func LoadCatalog(cfg *Config) (*Catalog, error) {
	catalog := BuiltinCatalog()
	if cfg.Scenarios.File == "" {
		return catalog, nil
	}
	defs, err := LoadScenarioFile(cfg.Scenarios.File)
	if err != nil {
		return nil, err
	}
	return catalog.Merge(defs...), nil
}
