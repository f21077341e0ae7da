package routing

import (
	"fmt"
	"os"

	"picturas-orchestrator/core/models"

	"gopkg.in/yaml.v3"
)

// RoutesFile is the YAML shape of the tool routing table
type RoutesFile struct {
	Tools []ToolRoute `yaml:"tools"`
}

// ToolRoute maps a procedure name to the queue its worker consumes
type ToolRoute struct {
	Procedure string `yaml:"procedure"`
	Queue     string `yaml:"queue"`
}

// Registry resolves procedure names to worker queues. The table is data, not
// code: it is loaded once at startup and read-only afterwards.
type Registry struct {
	queues map[string]string
}

// Parse builds a registry from YAML content
func Parse(data []byte) (*Registry, error) {
	var file RoutesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid routes file: %w", err)
	}
	if len(file.Tools) == 0 {
		return nil, fmt.Errorf("routes file declares no tools")
	}

	queues := make(map[string]string, len(file.Tools))
	for _, route := range file.Tools {
		if route.Procedure == "" || route.Queue == "" {
			return nil, fmt.Errorf("tool route needs both procedure and queue")
		}
		if _, dup := queues[route.Procedure]; dup {
			return nil, fmt.Errorf("duplicate route for procedure %q", route.Procedure)
		}
		queues[route.Procedure] = route.Queue
	}
	return &Registry{queues: queues}, nil
}

// Load reads and parses a routes file from disk
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// QueueFor returns the queue for a procedure name
func (r *Registry) QueueFor(procedure string) (string, error) {
	queue, ok := r.queues[procedure]
	if !ok {
		return "", fmt.Errorf("%w: %s", models.ErrUnknownProcedure, procedure)
	}
	return queue, nil
}

// Procedures lists the registered procedure names
func (r *Registry) Procedures() []string {
	names := make([]string, 0, len(r.queues))
	for name := range r.queues {
		names = append(names, name)
	}
	return names
}
