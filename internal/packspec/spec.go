package packspec

import (
	"fmt"
	"io"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// PackSpec holds the exclusion patterns for one save location. Path is the
// save root the sidecar belongs to.
type PackSpec struct {
	Exclude []string `yaml:"exclude,omitempty"`
	Path    string   `yaml:"-"`
}

// New creates a PackSpec for the given save root with the provided patterns.
func New(path string, exclude ...string) *PackSpec {
	return &PackSpec{
		Path:    WithoutSpecPath(path),
		Exclude: exclude,
	}
}

// LoadFromFile loads a PackSpec from the sidecar at or under path.
func LoadFromFile(path string) (*PackSpec, error) {
	specPath := AsSpecPath(path)
	fd, err := os.Open(specPath)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	return LoadFromReader(path, fd)
}

// LoadFromReader creates a PackSpec by parsing YAML content from the reader.
// The path parameter sets the save root the sidecar applies to.
func LoadFromReader(path string, reader io.Reader) (*PackSpec, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	var spec PackSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}

	spec.Path = WithoutSpecPath(path)
	return validate(&spec)
}

// Save writes the sidecar back to its save root.
func (s *PackSpec) Save() error {
	specPath := AsSpecPath(s.Path)
	file, err := os.Create(specPath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", specPath, err)
	}
	defer file.Close()

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(2)

	if err := encoder.Encode(s); err != nil {
		return fmt.Errorf("failed to marshal PackSpec to YAML: %w", err)
	}

	return nil
}

// Patterns returns the exclusion patterns to feed a pack, always including
// the sidecar itself so it never lands in a container.
func (s *PackSpec) Patterns() []string {
	patterns := make([]string, 0, len(s.Exclude)+1)
	patterns = append(patterns, s.Exclude...)
	patterns = append(patterns, SpecFileName)
	return patterns
}

func validate(spec *PackSpec) (*PackSpec, error) {
	for _, pattern := range spec.Exclude {
		if pattern == "" {
			return nil, fmt.Errorf("exclude pattern cannot be empty")
		}
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	return spec, nil
}
