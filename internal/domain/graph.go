package domain

import "sort"

// Graph is an in-memory view of a pipeline's stages and transitions, indexed
// for transition lookup and reachability analysis.
type Graph struct {
	Stages      []Stage
	Transitions []Transition

	byKey    map[string]Stage
	outgoing map[string][]Transition
}

// NewGraph indexes stages and transitions. Stages are kept sorted by order.
func NewGraph(stages []Stage, transitions []Transition) *Graph {
	g := &Graph{
		Stages:      append([]Stage(nil), stages...),
		Transitions: append([]Transition(nil), transitions...),
		byKey:       make(map[string]Stage, len(stages)),
		outgoing:    make(map[string][]Transition),
	}
	sort.SliceStable(g.Stages, func(i, j int) bool { return g.Stages[i].Order < g.Stages[j].Order })
	for _, s := range g.Stages {
		g.byKey[s.Key] = s
	}
	for _, t := range g.Transitions {
		g.outgoing[t.FromStageKey] = append(g.outgoing[t.FromStageKey], t)
	}
	return g
}

// Stage returns the stage with the given key.
func (g *Graph) Stage(key string) (Stage, bool) {
	s, ok := g.byKey[key]
	return s, ok
}

// Transition returns the edge from -> to if one exists.
func (g *Graph) Transition(from, to string) (Transition, bool) {
	for _, t := range g.outgoing[from] {
		if t.ToStageKey == to {
			return t, true
		}
	}
	return Transition{}, false
}

// Next returns the stages directly reachable from key, in stage order.
func (g *Graph) Next(key string) []Stage {
	seen := make(map[string]bool)
	for _, t := range g.outgoing[key] {
		seen[t.ToStageKey] = true
	}
	out := make([]Stage, 0, len(seen))
	for _, s := range g.Stages {
		if seen[s.Key] {
			out = append(out, s)
		}
	}
	return out
}

// EntryStages returns the stages sharing the lowest order. A new application
// may be placed in any of them.
func (g *Graph) EntryStages() []Stage {
	out := make([]Stage, 0, 1)
	for _, s := range g.Stages {
		if s.Order != g.Stages[0].Order {
			break
		}
		out = append(out, s)
	}
	return out
}

// Entry returns the lowest-ordered stage, which seeds reachability analysis.
func (g *Graph) Entry() (Stage, bool) {
	if len(g.Stages) == 0 {
		return Stage{}, false
	}
	return g.Stages[0], true
}

// Reachable walks transitions breadth-first from start and returns every
// visited stage key, start included.
func (g *Graph) Reachable(start string) map[string]bool {
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, t := range g.outgoing[cur] {
			if !visited[t.ToStageKey] {
				visited[t.ToStageKey] = true
				queue = append(queue, t.ToStageKey)
			}
		}
	}
	return visited
}

// Orphans returns the keys of stages no transition touches, in stage order.
func (g *Graph) Orphans() []string {
	touched := make(map[string]bool)
	for _, t := range g.Transitions {
		touched[t.FromStageKey] = true
		touched[t.ToStageKey] = true
	}
	var out []string
	for _, s := range g.Stages {
		if !touched[s.Key] {
			out = append(out, s.Key)
		}
	}
	return out
}

// Unreachable returns the keys of stages that cannot be reached from the entry stage.
func (g *Graph) Unreachable() []string {
	entry, ok := g.Entry()
	if !ok {
		return nil
	}
	visited := g.Reachable(entry.Key)
	var out []string
	for _, s := range g.Stages {
		if !visited[s.Key] {
			out = append(out, s.Key)
		}
	}
	return out
}

// ValidationReport is the structural health of a pipeline.
type ValidationReport struct {
	Valid    bool     `json:"valid"`
	Issues   []string `json:"issues"`
	Warnings []string `json:"warnings"`
}

// Validate builds a structural report. Issues make the pipeline unusable,
// warnings point at stages candidates can never occupy.
func (g *Graph) Validate() ValidationReport {
	report := ValidationReport{Issues: []string{}, Warnings: []string{}}
	if len(g.Stages) == 0 {
		report.Issues = append(report.Issues, "pipeline has no stages")
	}
	if len(g.Transitions) == 0 {
		report.Issues = append(report.Issues, "pipeline has no transitions")
	}
	for _, t := range g.Transitions {
		if _, ok := g.byKey[t.FromStageKey]; !ok {
			report.Issues = append(report.Issues, "transition "+t.FromStageKey+" -> "+t.ToStageKey+" references unknown stage "+t.FromStageKey)
		}
		if _, ok := g.byKey[t.ToStageKey]; !ok {
			report.Issues = append(report.Issues, "transition "+t.FromStageKey+" -> "+t.ToStageKey+" references unknown stage "+t.ToStageKey)
		}
	}
	for _, key := range g.Orphans() {
		report.Warnings = append(report.Warnings, "stage "+key+" is not connected to any transition")
	}
	for _, key := range g.Unreachable() {
		report.Warnings = append(report.Warnings, "stage "+key+" is unreachable from the entry stage")
	}
	report.Valid = len(report.Issues) == 0
	return report
}
