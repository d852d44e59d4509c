// Package registry holds the reviewable configuration tables the engine
// runs on: the bank registry, the chunk category keyword table, and the
// category→pipeline dispatch map. Defaults are embedded; any table can be
// overridden by a YAML file of the same name in the configured directory.
package registry

import (
	"embed"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed banks.yaml categories.yaml pipelines.yaml
var defaults embed.FS

// Bank describes one supported issuer: where its card listings live and how
// its card URLs look. Domains double as the crawler's allow-list.
type Bank struct {
	Key             string   `yaml:"key" json:"key"`
	Name            string   `yaml:"name" json:"name"`
	ShortNames      []string `yaml:"short_names" json:"short_names,omitempty"`
	Domains         []string `yaml:"domains" json:"domains"`
	Country         string   `yaml:"country" json:"country,omitempty"`
	BaseURL         string   `yaml:"base_url" json:"base_url"`
	CardsPage       string   `yaml:"cards_page" json:"cards_page,omitempty"`
	RequiresJS      bool     `yaml:"requires_javascript" json:"requires_javascript,omitempty"`
	CardURLPatterns []string `yaml:"card_url_patterns" json:"card_url_patterns,omitempty"`
	ExcludePatterns []string `yaml:"exclude_patterns" json:"exclude_patterns,omitempty"`
}

// CategoryKeywords maps one chunk category to the keywords that signal it.
// Order matters: earlier entries win keyword-count ties.
type CategoryKeywords struct {
	Category string   `yaml:"category" json:"category"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Registry is the loaded set of tables. It is read-only after Load; sessions
// share one instance.
type Registry struct {
	banks       map[string]Bank
	categories  []CategoryKeywords
	pipelineMap map[string][]string
}

// Load builds a Registry from the embedded defaults, overridden per file by
// banks.yaml / categories.yaml / pipelines.yaml in dir when dir is non-empty
// and the file exists.
func Load(dir string) (*Registry, error) {
	r := &Registry{}

	var banks []Bank
	if err := loadTable(dir, "banks.yaml", &banks); err != nil {
		return nil, err
	}
	r.banks = make(map[string]Bank, len(banks))
	for _, b := range banks {
		if b.Key == "" {
			return nil, eris.Errorf("registry: bank %q has no key", b.Name)
		}
		r.banks[b.Key] = b
	}

	if err := loadTable(dir, "categories.yaml", &r.categories); err != nil {
		return nil, err
	}
	if len(r.categories) == 0 {
		return nil, eris.New("registry: category table is empty")
	}

	if err := loadTable(dir, "pipelines.yaml", &r.pipelineMap); err != nil {
		return nil, err
	}

	zap.L().Debug("registry loaded",
		zap.Int("banks", len(r.banks)),
		zap.Int("categories", len(r.categories)),
		zap.Int("mapped_categories", len(r.pipelineMap)),
	)
	return r, nil
}

func loadTable(dir, name string, out any) error {
	if dir != "" {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err == nil {
			if uerr := yaml.Unmarshal(data, out); uerr != nil {
				return eris.Wrapf(uerr, "registry: parse %s", path)
			}
			zap.L().Info("registry table overridden", zap.String("file", path))
			return nil
		}
		if !os.IsNotExist(err) {
			return eris.Wrapf(err, "registry: read %s", path)
		}
	}

	data, err := defaults.ReadFile(name)
	if err != nil {
		return eris.Wrapf(err, "registry: embedded %s", name)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return eris.Wrapf(err, "registry: parse embedded %s", name)
	}
	return nil
}

// Bank returns the bank for key, or false when the key is unknown.
func (r *Registry) Bank(key string) (Bank, bool) {
	b, ok := r.banks[key]
	return b, ok
}

// BankKeys lists the registered bank keys, sorted.
func (r *Registry) BankKeys() []string {
	keys := make([]string, 0, len(r.banks))
	for k := range r.banks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Categories returns the ordered category keyword table.
func (r *Registry) Categories() []CategoryKeywords {
	return r.categories
}

// PipelineMap returns the category→pipelines dispatch table.
func (r *Registry) PipelineMap() map[string][]string {
	return r.pipelineMap
}
