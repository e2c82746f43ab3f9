package categories

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_mapping.yaml
var defaultMappingYAML []byte

// Mapping is an immutable aggregator-label to internal-category-name table.
type Mapping struct {
	labels map[string]string
}

type mappingFile struct {
	Mappings map[string]string `yaml:"mappings"`
}

func NewMapping(labels map[string]string) *Mapping {
	m := &Mapping{labels: make(map[string]string, len(labels))}
	for label, name := range labels {
		m.labels[normalizeLabel(label)] = strings.TrimSpace(name)
	}
	return m
}

func LoadMapping(r io.Reader) (*Mapping, error) {
	var f mappingFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode category mapping: %w", err)
	}
	return NewMapping(f.Mappings), nil
}

func LoadMappingFile(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open category mapping: %w", err)
	}
	defer f.Close()
	return LoadMapping(f)
}

// DefaultMapping returns the built-in table.
func DefaultMapping() *Mapping {
	var f mappingFile
	if err := yaml.Unmarshal(defaultMappingYAML, &f); err != nil {
		panic(fmt.Sprintf("categories: embedded mapping is invalid: %v", err))
	}
	return NewMapping(f.Mappings)
}

// Lookup finds the internal name for label, trying the label itself and then each
// shorter underscore-delimited prefix.
func (m *Mapping) Lookup(label string) (string, bool) {
	key := normalizeLabel(label)
	for key != "" {
		if name, ok := m.labels[key]; ok && name != "" {
			return name, true
		}
		i := strings.LastIndexByte(key, '_')
		if i < 0 {
			break
		}
		key = key[:i]
	}
	return "", false
}

func (m *Mapping) Len() int {
	return len(m.labels)
}

func normalizeLabel(label string) string {
	return strings.ToUpper(strings.TrimSpace(label))
}
