package drift

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// FeatureSpec is one declared feature in the project spec.
type FeatureSpec struct {
	Name   string `yaml:"name"`
	Status string `yaml:"status"`
}

// ProjectSpec is the structured feature/status specification
// (driftwatch.yaml at the project root).
type ProjectSpec struct {
	Features map[string]FeatureSpec `yaml:"features"`
}

// FeatureNode is one feature in the persisted feature graph, which records
// the implementation's view of feature state.
type FeatureNode struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// FeatureGraph is the persisted feature-dependency graph
// (.driftwatch/feature_graph.json).
type FeatureGraph struct {
	Features map[string]FeatureNode `json:"features"`
}

// OpenAPISpec carries the path table from an OpenAPI/Swagger document.
// Only paths are compared; schemas are out of scope for drift detection.
type OpenAPISpec struct {
	Paths map[string]map[string]any `yaml:"paths"`
}

// Sources holds whatever specification sources exist for a project.
// Every field is optional; each drift check skips itself when its source
// is absent.
type Sources struct {
	Project      *ProjectSpec
	OpenAPI      *OpenAPISpec
	Readme       string
	Architecture string
	FeatureGraph *FeatureGraph
}

// LoadSources discovers and parses all specification sources under the
// project root. A malformed source is logged once and treated as absent;
// the remaining sources still load.
func LoadSources(projectPath string) Sources {
	var s Sources

	if spec, err := loadProjectSpec(projectPath); err != nil {
		log.Warn().Err(err).Msg("skipping malformed project spec")
	} else {
		s.Project = spec
	}

	if spec, err := loadOpenAPISpec(projectPath); err != nil {
		log.Warn().Err(err).Msg("skipping malformed OpenAPI spec")
	} else {
		s.OpenAPI = spec
	}

	s.Readme = firstFileContent(projectPath, "README.md", "README.rst", "README.txt")
	s.Architecture = firstFileContent(projectPath,
		"ARCHITECTURE.md", filepath.Join("docs", "ARCHITECTURE.md"))

	if graph, err := loadFeatureGraph(projectPath); err != nil {
		log.Warn().Err(err).Msg("skipping malformed feature graph")
	} else {
		s.FeatureGraph = graph
	}

	return s
}

// Names lists the loaded sources, for DriftReport.CheckedSpecs.
func (s Sources) Names() []string {
	var names []string
	if s.Project != nil {
		names = append(names, "project")
	}
	if s.OpenAPI != nil {
		names = append(names, "openapi")
	}
	if s.Architecture != "" {
		names = append(names, "architecture")
	}
	if s.Readme != "" {
		names = append(names, "readme")
	}
	if s.FeatureGraph != nil {
		names = append(names, "feature_graph")
	}
	return names
}

func loadProjectSpec(projectPath string) (*ProjectSpec, error) {
	for _, name := range []string{"driftwatch.yaml", ".driftwatch.yaml"} {
		data, err := os.ReadFile(filepath.Join(projectPath, name))
		if err != nil {
			continue
		}
		var spec ProjectSpec
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		return &spec, nil
	}
	return nil, nil
}

func loadOpenAPISpec(projectPath string) (*OpenAPISpec, error) {
	names := []string{"openapi.yaml", "openapi.yml", "swagger.yaml", "swagger.yml"}
	dirs := []string{projectPath, filepath.Join(projectPath, "docs")}

	for _, dir := range dirs {
		for _, name := range names {
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				continue
			}
			var spec OpenAPISpec
			if err := yaml.Unmarshal(data, &spec); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", name, err)
			}
			return &spec, nil
		}
	}
	return nil, nil
}

func loadFeatureGraph(projectPath string) (*FeatureGraph, error) {
	path := filepath.Join(projectPath, ".driftwatch", "feature_graph.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil
	}
	var graph FeatureGraph
	if err := json.Unmarshal(data, &graph); err != nil {
		return nil, fmt.Errorf("parsing feature graph: %w", err)
	}
	return &graph, nil
}

func firstFileContent(projectPath string, names ...string) string {
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(projectPath, name))
		if err == nil {
			return string(data)
		}
	}
	return ""
}
