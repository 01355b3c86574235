package inventory

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed specs.yaml
var embeddedSpecs []byte

// Specs resolves static hardware facts by instance type.
type Specs struct {
	memory map[string]string
}

type specsFile struct {
	InstanceMemory map[string]string `yaml:"instance_memory"`
}

// DefaultSpecs returns the table compiled into the binary.
func DefaultSpecs() *Specs {
	specs, err := parseSpecs(embeddedSpecs)
	if err != nil {
		// The embedded table is validated by tests; a parse failure here
		// means a broken build, not a runtime condition.
		panic(fmt.Sprintf("embedded specs table: %v", err))
	}
	return specs
}

// LoadSpecs reads an operator-supplied table from path. An empty path
// returns the embedded table.
func LoadSpecs(path string) (*Specs, error) {
	if path == "" {
		return DefaultSpecs(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading specs file %s: %w", path, err)
	}
	specs, err := parseSpecs(data)
	if err != nil {
		return nil, fmt.Errorf("parsing specs file %s: %w", path, err)
	}
	return specs, nil
}

func parseSpecs(data []byte) (*Specs, error) {
	var file specsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.InstanceMemory) == 0 {
		return nil, fmt.Errorf("no instance_memory entries")
	}
	return &Specs{memory: file.InstanceMemory}, nil
}

// Memory returns the memory size for an instance type, or the Unknown
// sentinel for types outside the table.
func (s *Specs) Memory(instanceType string) string {
	if size, ok := s.memory[instanceType]; ok {
		return size
	}
	return Unknown
}
