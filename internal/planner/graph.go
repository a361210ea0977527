package planner

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"genstudio/internal/domain"
)

// Step is one node of a stage's job graph. Each request item gets one job
// per step.
type Step struct {
	Name       string            `yaml:"name" json:"name"`
	Capability domain.Capability `yaml:"capability" json:"capability"`
	StageType  string            `yaml:"stageType,omitempty" json:"stageType,omitempty"`
	PromptID   string            `yaml:"promptId,omitempty" json:"promptId,omitempty"`
	DependsOn  []string          `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
}

// Stage lists the steps run for each item of a stage.
type Stage struct {
	Steps []Step `yaml:"steps" json:"steps"`
}

// Graph is the declarative job graph of one product line.
type Graph struct {
	Product     string           `yaml:"product" json:"product"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Stages      map[string]Stage `yaml:"stages" json:"stages"`

	source string
}

// ParseGraph decodes and validates a YAML graph.
func ParseGraph(data []byte) (*Graph, error) {
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Validate checks every stage and sorts its steps so predecessors come first.
func (g *Graph) Validate() error {
	g.Product = strings.ToLower(strings.TrimSpace(g.Product))
	if g.Product == "" {
		return fmt.Errorf("graph: product is required")
	}
	if len(g.Stages) == 0 {
		return fmt.Errorf("graph %s: no stages", g.Product)
	}
	for name, stage := range g.Stages {
		sorted, err := sortSteps(stage.Steps)
		if err != nil {
			return fmt.Errorf("graph %s stage %s: %w", g.Product, name, err)
		}
		stage.Steps = sorted
		g.Stages[name] = stage
	}
	return nil
}

// StageNames lists the graph's stages in sorted order.
func (g *Graph) StageNames() []string {
	names := make([]string, 0, len(g.Stages))
	for name := range g.Stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortSteps(steps []Step) ([]Step, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("no steps")
	}
	byName := make(map[string]int, len(steps))
	for i := range steps {
		s := &steps[i]
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			return nil, fmt.Errorf("step %d: name is required", i)
		}
		if _, dup := byName[s.Name]; dup {
			return nil, fmt.Errorf("duplicate step %q", s.Name)
		}
		s.Capability = domain.ParseCapability(string(s.Capability))
		if !s.Capability.IsValid() {
			return nil, fmt.Errorf("step %q: unknown capability", s.Name)
		}
		byName[s.Name] = i
	}
	indegree := make([]int, len(steps))
	dependents := make([][]int, len(steps))
	for i, s := range steps {
		for _, dep := range s.DependsOn {
			j, ok := byName[dep]
			if !ok {
				return nil, fmt.Errorf("step %q depends on unknown step %q", s.Name, dep)
			}
			if j == i {
				return nil, fmt.Errorf("step %q depends on itself", s.Name)
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}
	// Kahn's algorithm, preferring declaration order among ready steps.
	var queue []int
	for i := range steps {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}
	out := make([]Step, 0, len(steps))
	for len(queue) > 0 {
		sort.Ints(queue)
		i := queue[0]
		queue = queue[1:]
		out = append(out, steps[i])
		for _, d := range dependents[i] {
			indegree[d]--
			if indegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}
	if len(out) != len(steps) {
		return nil, fmt.Errorf("dependency cycle between steps")
	}
	return out, nil
}
