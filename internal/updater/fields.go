package updater

import (
	"github.com/Benny93/dkg-go/internal/graph"
)

// fieldKind enumerates the declared Go type of a writable field, used to
// detect TypeMismatchError (spec.md §4.3 "Failure semantics").
type fieldKind int

const (
	kindString fieldKind = iota
	kindFloat64
)

func (k fieldKind) matches(v any) bool {
	switch k {
	case kindString:
		_, ok := v.(string)
		return ok
	case kindFloat64:
		_, ok := v.(float64)
		return ok
	default:
		return false
	}
}

func (k fieldKind) String() string {
	switch k {
	case kindString:
		return "string"
	case kindFloat64:
		return "float64"
	default:
		return "unknown"
	}
}

// fieldSpec describes one writable field: which entity kinds it applies
// to, its declared Go type, and how to apply an accepted write.
type fieldSpec struct {
	onNode  bool
	onEdge  bool
	kind    fieldKind
	setNode func(n *graph.Node, v any)
	setEdge func(e *graph.Edge, v any)
}

// fieldRegistry enumerates every writable field the Updater knows about:
// the dedicated struct fields from spec.md §3, plus the attribute keys
// the Constraint Projector (spec.md §4.5) and Timing Aggregator write.
//
// A field not present here is rejected with UnknownFieldError — the
// Updater never silently accepts an unknown field name.
var fieldRegistry = map[string]fieldSpec{
	"clock_domain": {
		onNode: true, onEdge: true, kind: kindString,
		setNode: func(n *graph.Node, v any) { n.ClockDomain = v.(string) },
		setEdge: func(e *graph.Edge, v any) { e.ClockDomain = v.(string) },
	},
	"timing_exception": {
		onNode: true, onEdge: true, kind: kindString,
		setNode: func(n *graph.Node, v any) { n.TimingException = v.(string) },
		setEdge: func(e *graph.Edge, v any) { e.TimingException = v.(string) },
	},
	"clock_signal": {
		onNode: true, kind: kindString,
		setNode: func(n *graph.Node, v any) { n.ClockSignal = v.(string) },
	},
	"reset_signal": {
		onNode: true, kind: kindString,
		setNode: func(n *graph.Node, v any) { n.ResetSignal = v.(string) },
	},
	"slack": {
		onNode: true, onEdge: true, kind: kindFloat64,
		setNode: func(n *graph.Node, v any) { f := v.(float64); n.Slack = &f },
		setEdge: func(e *graph.Edge, v any) { f := v.(float64); e.Slack = &f },
	},
	"arrival_time": {
		onNode: true, kind: kindFloat64,
		setNode: func(n *graph.Node, v any) { f := v.(float64); n.ArrivalTime = &f },
	},
	"required_time": {
		onNode: true, kind: kindFloat64,
		setNode: func(n *graph.Node, v any) { f := v.(float64); n.RequiredTime = &f },
	},
	"delay": {
		onEdge: true, kind: kindFloat64,
		setEdge: func(e *graph.Edge, v any) { f := v.(float64); e.Delay = &f },
	},
	"net_id": {
		onEdge: true, kind: kindString,
		setEdge: func(e *graph.Edge, v any) { e.NetID = v.(string) },
	},
	"signal_name": {
		onEdge: true, kind: kindString,
		setEdge: func(e *graph.Edge, v any) { e.SignalName = v.(string) },
	},
	"canonical_name": {
		onEdge: true, kind: kindString,
		setEdge: func(e *graph.Edge, v any) { e.CanonicalName = v.(string) },
	},

	// Attribute keys projected by the Constraint Projector (spec.md §4.5).
	"attr.clock_period": {
		onNode: true, kind: kindFloat64,
		setNode: func(n *graph.Node, v any) { setNodeAttr(n, "clock_period", v) },
	},
	"attr.max_delay": {
		onEdge: true, kind: kindFloat64,
		setEdge: func(e *graph.Edge, v any) { setEdgeAttr(e, "max_delay", v) },
	},
	"attr.min_delay": {
		onEdge: true, kind: kindFloat64,
		setEdge: func(e *graph.Edge, v any) { setEdgeAttr(e, "min_delay", v) },
	},
	"attr.input_delay": {
		onNode: true, kind: kindFloat64,
		setNode: func(n *graph.Node, v any) { setNodeAttr(n, "input_delay", v) },
	},
	"attr.output_delay": {
		onNode: true, kind: kindFloat64,
		setNode: func(n *graph.Node, v any) { setNodeAttr(n, "output_delay", v) },
	},
	"attr.io_clock": {
		onNode: true, kind: kindString,
		setNode: func(n *graph.Node, v any) { setNodeAttr(n, "io_clock", v) },
	},
}

func setNodeAttr(n *graph.Node, key string, v any) {
	if n.Attributes == nil {
		n.Attributes = make(map[string]any)
	}
	n.Attributes[key] = v
}

func setEdgeAttr(e *graph.Edge, key string, v any) {
	if e.Attributes == nil {
		e.Attributes = make(map[string]any)
	}
	e.Attributes[key] = v
}
