// Package graph provides the design knowledge graph data model for the DKG
// fusion engine.
//
// It defines the core node and edge types that represent hardware design
// entities (module instances, flip-flops, LUTs, DSPs, IO ports, package
// pins, ...) and the typed, directed relations between them (data, clock,
// reset, parameter, constraint, physical mapping). Every writable field is
// mediated by the updater package (internal/updater); this package only
// defines the shapes and the read-side store.
package graph

// EntityClass identifies the concrete kind of design entity a Node
// represents.
type EntityClass string

const (
	ClassModuleInstance EntityClass = "module_instance"
	ClassRtlBlock       EntityClass = "rtl_block"
	ClassFlipFlop       EntityClass = "flip_flop"
	ClassLut            EntityClass = "lut"
	ClassMux            EntityClass = "mux"
	ClassDsp            EntityClass = "dsp"
	ClassBram           EntityClass = "bram"
	ClassIoPort         EntityClass = "io_port"
	ClassPackagePin     EntityClass = "package_pin"
	ClassPblock         EntityClass = "pblock"
	ClassBoardConnector EntityClass = "board_connector"
	ClassClockDomain    EntityClass = "clock_domain"
	ClassFsm            EntityClass = "fsm"
)

// EntitySupertype groups entity classes into the four broad categories the
// view policies (internal/view) branch on.
type EntitySupertype string

const (
	SupertypeLogical         EntitySupertype = "logical"
	SupertypeStructural      EntitySupertype = "structural"
	SupertypePhysical        EntitySupertype = "physical"
	SupertypeAbstractControl EntitySupertype = "abstract_control"
)

// Supertype derives the EntitySupertype for an EntityClass. Every
// EntityClass variant must be handled explicitly here — no default
// fallthrough — so adding a new class forces this to be revisited.
func (c EntityClass) Supertype() EntitySupertype {
	switch c {
	case ClassModuleInstance, ClassRtlBlock:
		return SupertypeStructural
	case ClassFlipFlop, ClassLut, ClassMux, ClassDsp, ClassBram:
		return SupertypeLogical
	case ClassIoPort, ClassPackagePin, ClassPblock, ClassBoardConnector:
		return SupertypePhysical
	case ClassClockDomain, ClassFsm:
		return SupertypeAbstractControl
	default:
		panic("graph: unhandled EntityClass in Supertype: " + string(c))
	}
}

// RelationType identifies the kind of directed relation an Edge carries.
type RelationType string

const (
	RelData            RelationType = "data"
	RelClock           RelationType = "clock"
	RelReset           RelationType = "reset"
	RelParameter       RelationType = "parameter"
	RelConstraint      RelationType = "constraint"
	RelPhysicalMapping RelationType = "physical_mapping"
)

// canonicalRelationOrder is the tie-break order used when a SuperEdge's
// aggregated relation type must be chosen among a majority tie (spec.md
// §4.7 "Edge rewrite").
var canonicalRelationOrder = []RelationType{
	RelData, RelClock, RelReset, RelParameter, RelConstraint, RelPhysicalMapping,
}

// CanonicalRelationOrder returns the tie-break order over RelationType,
// most-preferred first. Callers must not mutate the returned slice.
func CanonicalRelationOrder() []RelationType {
	out := make([]RelationType, len(canonicalRelationOrder))
	copy(out, canonicalRelationOrder)
	return out
}

// FlowType identifies the timing role of a directed edge.
type FlowType string

const (
	FlowCombinational     FlowType = "combinational"
	FlowSequentialLaunch  FlowType = "sequential_launch"
	FlowSequentialCapture FlowType = "sequential_capture"
	FlowClockTree         FlowType = "clock_tree"
	FlowAsyncReset        FlowType = "async_reset"
)

// BitRange is an inclusive bit-index slice used when an Edge represents a
// slice of a bus rather than a whole signal.
type BitRange struct {
	High int
	Low  int
}

// Node is a design entity in the fused graph. HierPath is ownership-only —
// it never carries signal information, only hierarchical nesting.
type Node struct {
	// ID is the stable identifier for this node across re-ingest.
	ID string

	// HierPath is a '/'-joined sequence of ancestor ids terminating in this
	// node's own local segment. Ingestors are expected to create parent
	// nodes before children; the store does not itself walk HierPath.
	HierPath string

	// LocalName is this entity's name within its immediate parent.
	LocalName string

	// Class is the concrete entity kind.
	Class EntityClass

	// Attributes holds free-form typed metadata (e.g. clock_period,
	// max_delay) written by the updater at field-level granularity.
	Attributes map[string]any

	// ClockSignal and ResetSignal optionally hold the node id of the
	// driving clock/reset source.
	ClockSignal string
	ResetSignal string

	// Slack, ArrivalTime, RequiredTime are optional timing scalars, nil
	// when not yet known. Only the updater may set them.
	Slack        *float64
	ArrivalTime  *float64
	RequiredTime *float64

	// ClockDomain and TimingException may only be set/overwritten by the
	// updater (spec.md §3 invariant).
	ClockDomain     string
	TimingException string
}

// Supertype is a convenience accessor over Class.Supertype().
func (n *Node) Supertype() EntitySupertype {
	return n.Class.Supertype()
}

// Edge is a directed relation between two nodes.
type Edge struct {
	ID     string
	Source string
	Target string

	RelType  RelationType
	FlowType FlowType

	SignalName    string
	CanonicalName string

	// BitRange is nil when the edge represents a whole signal rather than
	// a bus slice.
	BitRange *BitRange

	// NetID is optional; empty string means unknown/unassigned.
	NetID string

	// Delay, Slack are optional timing scalars, nil when unknown.
	Delay *float64
	Slack *float64

	// TimingException holds a projected constraint exception label, e.g.
	// "false_path" or "multicycle_2_setup". Empty means none.
	TimingException string

	// ClockDomain is optional; empty means unassigned.
	ClockDomain string

	// Attributes holds constraint-projected scalars that have no dedicated
	// field, e.g. "max_delay", "min_delay" (spec.md §4.5 DelayBound).
	Attributes map[string]any
}
