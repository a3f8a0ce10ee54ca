package view

import (
	"strings"

	"github.com/Benny93/dkg-go/internal/graph"
)

// Context is the engineering question framing a view build — extensible
// per spec.md §4.7 ("context ∈ {Design, Simulation}, extensible").
type Context string

const (
	ContextDesign     Context = "design"
	ContextSimulation Context = "simulation"
)

// ViewKind selects which structural dimension the SuperGraph abstracts
// over.
type ViewKind string

const (
	ViewStructural   ViewKind = "structural"
	ViewConnectivity ViewKind = "connectivity"
	ViewPhysical     ViewKind = "physical"
)

// Action is what the Promote/Merge/Eliminate cycles do with a node.
type Action int

const (
	ActionPromote Action = iota
	ActionMerge
	ActionEliminate
)

// NodePolicy is the static lookup result for one (context, view, class)
// triple.
type NodePolicy struct {
	Action Action
	Class  SuperClass
}

var promoteAtomic = NodePolicy{Action: ActionPromote, Class: SuperAtomic}
var eliminate = NodePolicy{Action: ActionEliminate, Class: SuperEliminated}

func mergeInto(class SuperClass) NodePolicy {
	return NodePolicy{Action: ActionMerge, Class: class}
}

// designConnectivity is spec.md §4.7's exemplar policy map: Promote
// FlipFlop/Dsp/Bram/IoPort; Merge Lut/Mux into CombinationalCloud;
// Eliminate Pblock/PackagePin; ModuleInstance eliminated (its children
// carry the structure). RtlBlock (unclassified by the spec text) is
// treated as combinational passthrough alongside Lut/Mux; ClockDomain
// and Fsm, being abstract control rather than structure, stay visible as
// Atomic; BoardConnector is physical and eliminated alongside PackagePin.
var designConnectivity = map[graph.EntityClass]NodePolicy{
	graph.ClassModuleInstance: eliminate,
	graph.ClassRtlBlock:       mergeInto(SuperCombinationalCloud),
	graph.ClassFlipFlop:       promoteAtomic,
	graph.ClassLut:            mergeInto(SuperCombinationalCloud),
	graph.ClassMux:            mergeInto(SuperCombinationalCloud),
	graph.ClassDsp:            promoteAtomic,
	graph.ClassBram:           promoteAtomic,
	graph.ClassIoPort:         promoteAtomic,
	graph.ClassPackagePin:     eliminate,
	graph.ClassPblock:         eliminate,
	graph.ClassBoardConnector: eliminate,
	graph.ClassClockDomain:    promoteAtomic,
	graph.ClassFsm:            promoteAtomic,
}

// designStructural: Promote ModuleInstance/IoPort; merge all primitives
// into per-module ModuleCluster; eliminate physical.
var designStructural = map[graph.EntityClass]NodePolicy{
	graph.ClassModuleInstance: promoteAtomic,
	graph.ClassRtlBlock:       mergeInto(SuperModuleCluster),
	graph.ClassFlipFlop:       mergeInto(SuperModuleCluster),
	graph.ClassLut:            mergeInto(SuperModuleCluster),
	graph.ClassMux:            mergeInto(SuperModuleCluster),
	graph.ClassDsp:            mergeInto(SuperModuleCluster),
	graph.ClassBram:           mergeInto(SuperModuleCluster),
	graph.ClassIoPort:         promoteAtomic,
	graph.ClassPackagePin:     eliminate,
	graph.ClassPblock:         eliminate,
	graph.ClassBoardConnector: eliminate,
	graph.ClassClockDomain:    promoteAtomic,
	graph.ClassFsm:            promoteAtomic,
}

// designPhysical: Promote IoPort/Pblock/PackagePin; merge Dsp/Bram into
// ConstraintGroup; eliminate logical.
var designPhysical = map[graph.EntityClass]NodePolicy{
	graph.ClassModuleInstance: eliminate,
	graph.ClassRtlBlock:       eliminate,
	graph.ClassFlipFlop:       eliminate,
	graph.ClassLut:            eliminate,
	graph.ClassMux:            eliminate,
	graph.ClassDsp:            mergeInto(SuperConstraintGroup),
	graph.ClassBram:           mergeInto(SuperConstraintGroup),
	graph.ClassIoPort:         promoteAtomic,
	graph.ClassPackagePin:     promoteAtomic,
	graph.ClassPblock:         promoteAtomic,
	graph.ClassBoardConnector: promoteAtomic,
	graph.ClassClockDomain:    eliminate,
	graph.ClassFsm:            eliminate,
}

// simulationAll is the "Simulation.*" policy (spec.md §4.7): it applies
// identically across all three views. Promote ModuleInstance/IoPort,
// also FlipFlop/Dsp/Bram for state visibility; merge combinational
// (Lut/Mux/RtlBlock) into ModuleCluster; eliminate physical everywhere.
var simulationAll = map[graph.EntityClass]NodePolicy{
	graph.ClassModuleInstance: promoteAtomic,
	graph.ClassRtlBlock:       mergeInto(SuperModuleCluster),
	graph.ClassFlipFlop:       promoteAtomic,
	graph.ClassLut:            mergeInto(SuperModuleCluster),
	graph.ClassMux:            mergeInto(SuperModuleCluster),
	graph.ClassDsp:            promoteAtomic,
	graph.ClassBram:           promoteAtomic,
	graph.ClassIoPort:         promoteAtomic,
	graph.ClassPackagePin:     eliminate,
	graph.ClassPblock:         eliminate,
	graph.ClassBoardConnector: eliminate,
	graph.ClassClockDomain:    promoteAtomic,
	graph.ClassFsm:            promoteAtomic,
}

// policyTables is the two-level (context, view) → class policy map
// (spec.md §4.7 "Policies").
var policyTables = map[Context]map[ViewKind]map[graph.EntityClass]NodePolicy{
	ContextDesign: {
		ViewConnectivity: designConnectivity,
		ViewStructural:   designStructural,
		ViewPhysical:     designPhysical,
	},
	ContextSimulation: {
		ViewConnectivity: simulationAll,
		ViewStructural:   simulationAll,
		ViewPhysical:     simulationAll,
	},
}

// lookupPolicy returns the static policy for class under (ctx, view).
// Panics if ctx/view/class combination is unregistered — a new
// EntityClass or Context/ViewKind must be given a policy everywhere
// before use, never silently defaulted (consistent with the exhaustive-
// switch convention used throughout this module).
func lookupPolicy(ctx Context, vk ViewKind, class graph.EntityClass) NodePolicy {
	byView, ok := policyTables[ctx]
	if !ok {
		panic("view: unhandled Context in lookupPolicy: " + string(ctx))
	}
	byClass, ok := byView[vk]
	if !ok {
		panic("view: unhandled ViewKind in lookupPolicy: " + string(vk))
	}
	policy, ok := byClass[class]
	if !ok {
		panic("view: unhandled EntityClass in lookupPolicy: " + string(class))
	}
	return policy
}

// applyOverrides implements spec.md §4.7 "Dynamic overrides (must be
// applied after the static lookup)".
func applyOverrides(ctx Context, n *graph.Node, policy NodePolicy) NodePolicy {
	switch ctx {
	case ContextDesign:
		if isTestbenchLike(n) {
			return eliminate
		}
	case ContextSimulation:
		if policy.Action == ActionMerge && isStimulusGenerator(n) {
			return promoteAtomic
		}
	}
	return policy
}

func isTestbenchLike(n *graph.Node) bool {
	if strings.HasPrefix(strings.ToLower(n.LocalName), "tb_") {
		return true
	}
	for _, seg := range strings.Split(strings.Trim(n.HierPath, "/"), "/") {
		if seg == "testbench" || seg == "sim" {
			return true
		}
	}
	return false
}

func isStimulusGenerator(n *graph.Node) bool {
	name := strings.ToLower(n.LocalName)
	return strings.HasPrefix(name, "clk_gen") || strings.HasPrefix(name, "reset_gen")
}
