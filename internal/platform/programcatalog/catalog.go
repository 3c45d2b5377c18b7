package programcatalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/waferline-labs/waferline-go/internal/domain"
)

const SchemaV1 = "waferline.programs.v1"

// Catalog names the test-program families submissions may target and the
// stage types each family supports.
type Catalog struct {
	Schema   string   `yaml:"schema"`
	Families []Family `yaml:"families"`
}

type Family struct {
	Name       string   `yaml:"name"`
	Segment    string   `yaml:"segment,omitempty"`
	StageTypes []string `yaml:"stage_types"`
}

// Load reads and validates a catalog file.
func Load(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a catalog document.
func Parse(input []byte) (Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(input, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return Catalog{}, err
	}
	return catalog, nil
}

func (c Catalog) Validate() error {
	if strings.TrimSpace(c.Schema) != SchemaV1 {
		return fmt.Errorf("catalog.schema must be %q", SchemaV1)
	}
	if len(c.Families) == 0 {
		return errors.New("catalog.families must be non-empty")
	}
	seen := make(map[string]struct{}, len(c.Families))
	for i, family := range c.Families {
		name := strings.TrimSpace(family.Name)
		if name == "" {
			return fmt.Errorf("catalog.families[%d].name is required", i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("catalog.families[%d].name must be unique (duplicate %q)", i, name)
		}
		seen[name] = struct{}{}
		if len(family.StageTypes) == 0 {
			return fmt.Errorf("catalog.families[%d].stage_types must be non-empty", i)
		}
		for _, stageType := range family.StageTypes {
			if domain.NormalizeStageType(stageType) == "" {
				return fmt.Errorf("catalog.families[%d] stage type unsupported: %q", i, stageType)
			}
		}
	}
	return nil
}

// Family returns the family entry for a name. Names are matched exactly.
func (c Catalog) Family(name string) (Family, bool) {
	for _, family := range c.Families {
		if family.Name == name {
			return family, true
		}
	}
	return Family{}, false
}

// AllowsStageType reports whether a family supports a stage type. Unknown
// families allow nothing.
func (c Catalog) AllowsStageType(familyName string, stageType domain.StageType) bool {
	family, ok := c.Family(familyName)
	if !ok {
		return false
	}
	for _, allowed := range family.StageTypes {
		if domain.NormalizeStageType(allowed) == stageType {
			return true
		}
	}
	return false
}
