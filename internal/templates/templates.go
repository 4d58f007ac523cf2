// Package templates loads capability templates from YAML files and turns
// their intent metadata into dynamic intent registrations. Templates are
// what teach the resolver new intents at runtime.
package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lehdermann/ontomed/internal/logging"
	"github.com/lehdermann/ontomed/internal/nlp"
)

// Template is one capability template. Only the intent metadata matters to
// the resolver; the prompt body is carried for the serving layer.
type Template struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Prompt      string            `yaml:"prompt"`
	IntentInfo  nlp.DynamicIntent `yaml:"intent_info"`
}

// LoadDir reads every .yaml/.yml file in dir. Malformed files and files
// with no usable intent metadata are logged and skipped; a missing
// directory yields an empty set.
func LoadDir(dir string) ([]Template, error) {
	log := logging.Get(logging.CategoryTemplates)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warnw("template directory missing", "dir", dir)
			return nil, nil
		}
		return nil, fmt.Errorf("read template directory %s: %w", dir, err)
	}

	var out []Template
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		t, err := loadFile(path)
		if err != nil {
			log.Warnw("skipping malformed template", "path", path, "error", err)
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IntentInfo.Name < out[j].IntentInfo.Name })
	log.Infow("templates loaded", "dir", dir, "count", len(out))
	return out, nil
}

func loadFile(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, err
	}
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Template{}, err
	}
	if strings.TrimSpace(t.IntentInfo.Name) == "" {
		return Template{}, fmt.Errorf("template %s has no intent name", filepath.Base(path))
	}
	if t.Description != "" && t.IntentInfo.Description == "" {
		t.IntentInfo.Description = t.Description
	}
	return t, nil
}

// RegisterAll learns every template's intent through the learner. It
// returns the number registered; individual failures are logged and do not
// stop the rest.
func RegisterAll(ts []Template, learn func(nlp.DynamicIntent) error) int {
	log := logging.Get(logging.CategoryTemplates)
	registered := 0
	for _, t := range ts {
		if err := learn(t.IntentInfo); err != nil {
			log.Warnw("template intent registration failed",
				"intent", t.IntentInfo.Name, "error", err)
			continue
		}
		registered++
	}
	return registered
}
