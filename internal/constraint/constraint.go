// Package constraint implements the Constraint Projector (spec.md §4.5):
// it resolves pattern-based constraint targets (clocks, false paths,
// multicycle exceptions, delay bounds, IO timing) onto concrete node and
// edge ids and writes them through the Updater at
// (source=Declared, stage=Constraints).
package constraint

import (
	"fmt"

	"github.com/Benny93/dkg-go/internal/diagnostics"
	"github.com/Benny93/dkg-go/internal/graph"
	"github.com/Benny93/dkg-go/internal/provenance"
	"github.com/Benny93/dkg-go/internal/updater"
)

// Clock projects clock_domain and clock_period onto IO-port-like nodes
// matched by Targets.
type Clock struct {
	Name     string
	PeriodNs float64
	Targets  []string
}

// FalsePath marks edges between a launch set and a capture set exempt
// from timing analysis.
type FalsePath struct {
	From []string
	To   []string
}

// MulticyclePath relaxes the timing requirement on launch→capture edges
// by Cycles clock periods. Kind is "setup" or "hold".
type MulticyclePath struct {
	Cycles int
	Kind   string
	From   []string
	To     []string
}

// DelayBound sets a max or min delay attribute on edges resolved from
// From and/or To. Kind is "max" or "min".
type DelayBound struct {
	Kind  string
	Value float64
	From  []string
	To    []string
}

// IoTiming sets input/output delay and the associated clock on port
// nodes. Kind is "input" or "output".
type IoTiming struct {
	Kind   string
	Value  float64
	Clock  string
	Ports  []string
}

// DefaultFollowDepth is the number of hops the edge-selection rule
// follows through Combinational/SequentialLaunch edges from the "from"
// set before giving up (spec.md §4.5 "Edge selection by endpoints").
const DefaultFollowDepth = 0

// Projector resolves constraint targets against a graph.Store and writes
// the resulting fields through an updater.Updater, logging unresolved
// patterns to a diagnostics.Log instead of failing the run (spec.md
// §4.5 "Errors").
type Projector struct {
	store       *graph.Store
	upd         *updater.Updater
	diag        *diagnostics.Log
	followDepth int
	idx         *patternIndex
}

// New creates a Projector over store, writing through upd and logging to
// diag. The pattern index is built immediately so it can be reused
// across every constraint in one constraint file (spec.md §9 "Pattern
// matching performance").
func New(store *graph.Store, upd *updater.Updater, diag *diagnostics.Log) *Projector {
	upd.SetDiagnostics(diag)
	return &Projector{
		store:       store,
		upd:         upd,
		diag:        diag,
		followDepth: DefaultFollowDepth,
		idx:         buildPatternIndex(store),
	}
}

// SetFollowDepth overrides the default direct-connection-only edge
// selection with a K-hop reachability search through
// Combinational/SequentialLaunch edges.
func (p *Projector) SetFollowDepth(k int) {
	p.followDepth = k
}

// RefreshIndex rebuilds the pattern index from the store's current
// contents. Call this between constraint files if the store has
// accepted new nodes since the Projector was created.
func (p *Projector) RefreshIndex() {
	p.idx = buildPatternIndex(p.store)
}

// ProjectClock resolves c.Targets and writes clock_domain/clock_period.
func (p *Projector) ProjectClock(c Clock) error {
	nodes := p.resolvePatterns(c.Targets)
	if len(nodes) == 0 {
		return nil
	}
	for _, n := range nodes {
		if _, err := p.upd.UpdateField(n.ID, "clock_domain", c.Name, provenance.SourceDeclared, provenance.StageConstraints, updater.Origin{}); err != nil {
			return err
		}
		if _, err := p.upd.UpdateField(n.ID, "attr.clock_period", c.PeriodNs, provenance.SourceDeclared, provenance.StageConstraints, updater.Origin{}); err != nil {
			return err
		}
	}
	return nil
}

// ProjectFalsePath resolves from/to and marks the selected edges
// timing_exception="false_path".
func (p *Projector) ProjectFalsePath(c FalsePath) error {
	return p.projectEdgeException(c.From, c.To, "false_path")
}

// ProjectMulticyclePath resolves from/to and marks the selected edges
// timing_exception="multicycle_{n}_{kind}".
func (p *Projector) ProjectMulticyclePath(c MulticyclePath) error {
	return p.projectEdgeException(c.From, c.To, fmt.Sprintf("multicycle_%d_%s", c.Cycles, c.Kind))
}

func (p *Projector) projectEdgeException(from, to []string, exception string) error {
	edges := p.resolveEdges(from, to)
	for _, e := range edges {
		if _, err := p.upd.UpdateField(e.ID, "timing_exception", exception, provenance.SourceDeclared, provenance.StageConstraints, updater.Origin{}); err != nil {
			return err
		}
	}
	return nil
}

// ProjectDelayBound resolves c.From/c.To and writes the {kind}_delay edge
// attribute.
func (p *Projector) ProjectDelayBound(c DelayBound) error {
	field := "attr." + c.Kind + "_delay"
	edges := p.resolveEdges(c.From, c.To)
	for _, e := range edges {
		if _, err := p.upd.UpdateField(e.ID, field, c.Value, provenance.SourceDeclared, provenance.StageConstraints, updater.Origin{}); err != nil {
			return err
		}
	}
	return nil
}

// ProjectIoTiming resolves c.Ports and writes the {kind}_delay and
// io_clock port attributes.
func (p *Projector) ProjectIoTiming(c IoTiming) error {
	nodes := p.resolvePatterns(c.Ports)
	if len(nodes) == 0 {
		return nil
	}
	field := "attr." + c.Kind + "_delay"
	for _, n := range nodes {
		if _, err := p.upd.UpdateField(n.ID, field, c.Value, provenance.SourceDeclared, provenance.StageConstraints, updater.Origin{}); err != nil {
			return err
		}
		if _, err := p.upd.UpdateField(n.ID, "attr.io_clock", c.Clock, provenance.SourceDeclared, provenance.StageConstraints, updater.Origin{}); err != nil {
			return err
		}
	}
	return nil
}

// resolvePatterns matches every pattern against the index, unions the
// results (a node may satisfy more than one pattern, counted once), and
// records an UnresolvedPattern diagnostic for any pattern with zero
// matches (spec.md §4.5 "Errors" — warning-level, never fatal).
func (p *Projector) resolvePatterns(patterns []string) []*graph.Node {
	seen := make(map[string]*graph.Node)
	for _, pat := range patterns {
		matches := p.idx.match(pat)
		if len(matches) == 0 {
			p.diag.Append(diagnostics.KindUnresolvedPattern, diagnostics.SeverityWarn,
				fmt.Sprintf("no node matches pattern %q", pat), "", "")
			continue
		}
		for _, n := range matches {
			seen[n.ID] = n
		}
	}
	out := make([]*graph.Node, 0, len(seen))
	for _, n := range seen {
		out = append(out, n)
	}
	return out
}

// resolveEdges implements "Edge selection by endpoints" (spec.md §4.5):
// given a from-pattern set and a to-pattern set, it resolves the launch
// and capture node sets, extends the launch set by followDepth hops
// through Combinational/SequentialLaunch edges, and returns every edge
// whose source is in the extended launch set and whose target is in the
// capture set.
func (p *Projector) resolveEdges(from, to []string) []*graph.Edge {
	launch := p.resolvePatterns(from)
	capture := p.resolvePatterns(to)
	if len(launch) == 0 || len(capture) == 0 {
		return nil
	}

	captureSet := make(map[string]bool, len(capture))
	for _, n := range capture {
		captureSet[n.ID] = true
	}

	extLaunch := p.extendByFollow(launch)

	var edges []*graph.Edge
	seen := make(map[string]bool)
	for id := range extLaunch {
		for _, e := range p.store.OutEdges(id) {
			if seen[e.ID] {
				continue
			}
			if captureSet[e.Target] {
				edges = append(edges, e)
				seen[e.ID] = true
			}
		}
	}
	return edges
}

// extendByFollow returns the ids of launch and every node reachable from
// it within p.followDepth hops via Combinational or SequentialLaunch
// edges.
func (p *Projector) extendByFollow(launch []*graph.Node) map[string]bool {
	frontier := make(map[string]bool, len(launch))
	for _, n := range launch {
		frontier[n.ID] = true
	}
	if p.followDepth <= 0 {
		return frontier
	}

	visited := make(map[string]bool, len(frontier))
	for id := range frontier {
		visited[id] = true
	}

	for depth := 0; depth < p.followDepth; depth++ {
		next := make(map[string]bool)
		for id := range frontier {
			for _, e := range p.store.OutEdges(id) {
				if e.FlowType != graph.FlowCombinational && e.FlowType != graph.FlowSequentialLaunch {
					continue
				}
				if !visited[e.Target] {
					next[e.Target] = true
					visited[e.Target] = true
				}
			}
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}
	return visited
}
