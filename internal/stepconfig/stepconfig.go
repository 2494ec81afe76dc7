package stepconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
)

const CatalogSchemaV1 = "cellforge.steps.v1"

// Catalog is the declarative registry of pipeline step definitions loaded at
// startup and upserted into the step store.
type Catalog struct {
	Schema string     `json:"schema" yaml:"schema"`
	Steps  []StepSpec `json:"steps" yaml:"steps"`
}

type StepSpec struct {
	ID            string         `json:"id" yaml:"id"`
	Name          string         `json:"name" yaml:"name"`
	Type          string         `json:"type" yaml:"type"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty"`
	RunnerImage   string         `json:"runner_image,omitempty" yaml:"runner_image,omitempty"`
	RunnerCommand string         `json:"runner_command,omitempty" yaml:"runner_command,omitempty"`
	DefaultParams map[string]any `json:"default_params,omitempty" yaml:"default_params,omitempty"`
}

func LoadCatalog(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read step catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(input []byte) (Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(input, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("decode step catalog: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return Catalog{}, err
	}
	return catalog, nil
}

func (c Catalog) Validate() error {
	if strings.TrimSpace(c.Schema) != CatalogSchemaV1 {
		return fmt.Errorf("catalog.schema must be %q", CatalogSchemaV1)
	}
	if len(c.Steps) == 0 {
		return errors.New("catalog.steps must be non-empty")
	}

	seenID := make(map[string]struct{}, len(c.Steps))
	seenType := make(map[domain.StepType]struct{}, len(c.Steps))
	for i, spec := range c.Steps {
		id := strings.TrimSpace(spec.ID)
		if id == "" {
			return fmt.Errorf("catalog.steps[%d].id is required", i)
		}
		if _, ok := seenID[id]; ok {
			return fmt.Errorf("catalog.steps[%d].id must be unique (duplicate %q)", i, id)
		}
		seenID[id] = struct{}{}

		if strings.TrimSpace(spec.Name) == "" {
			return fmt.Errorf("catalog.steps[%d].name is required", i)
		}

		stepType := domain.NormalizeStepType(spec.Type)
		if stepType == "" {
			return fmt.Errorf("catalog.steps[%d].type unsupported: %q", i, spec.Type)
		}
		if _, ok := seenType[stepType]; ok {
			return fmt.Errorf("catalog.steps[%d].type must be unique (duplicate %q)", i, stepType)
		}
		seenType[stepType] = struct{}{}
	}
	return nil
}

// Domain converts catalog entries into step registry rows.
func (c Catalog) Domain() []domain.Step {
	steps := make([]domain.Step, 0, len(c.Steps))
	for _, spec := range c.Steps {
		params := domain.Metadata{}
		for k, v := range spec.DefaultParams {
			params[k] = v
		}
		steps = append(steps, domain.Step{
			ID:            strings.TrimSpace(spec.ID),
			Name:          strings.TrimSpace(spec.Name),
			Type:          domain.NormalizeStepType(spec.Type),
			Description:   strings.TrimSpace(spec.Description),
			RunnerImage:   strings.TrimSpace(spec.RunnerImage),
			RunnerCommand: strings.TrimSpace(spec.RunnerCommand),
			DefaultParams: params,
		})
	}
	return steps
}
