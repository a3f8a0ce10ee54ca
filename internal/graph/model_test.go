package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityClassConstants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		class    EntityClass
		expected string
	}{
		{"ModuleInstance", ClassModuleInstance, "module_instance"},
		{"RtlBlock", ClassRtlBlock, "rtl_block"},
		{"FlipFlop", ClassFlipFlop, "flip_flop"},
		{"Lut", ClassLut, "lut"},
		{"Mux", ClassMux, "mux"},
		{"Dsp", ClassDsp, "dsp"},
		{"Bram", ClassBram, "bram"},
		{"IoPort", ClassIoPort, "io_port"},
		{"PackagePin", ClassPackagePin, "package_pin"},
		{"Pblock", ClassPblock, "pblock"},
		{"BoardConnector", ClassBoardConnector, "board_connector"},
		{"ClockDomain", ClassClockDomain, "clock_domain"},
		{"Fsm", ClassFsm, "fsm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, string(tt.class))
		})
	}
}

func TestEntityClass_Supertype(t *testing.T) {
	t.Parallel()

	tests := []struct {
		class    EntityClass
		expected EntitySupertype
	}{
		{ClassModuleInstance, SupertypeStructural},
		{ClassRtlBlock, SupertypeStructural},
		{ClassFlipFlop, SupertypeLogical},
		{ClassLut, SupertypeLogical},
		{ClassMux, SupertypeLogical},
		{ClassDsp, SupertypeLogical},
		{ClassBram, SupertypeLogical},
		{ClassIoPort, SupertypePhysical},
		{ClassPackagePin, SupertypePhysical},
		{ClassPblock, SupertypePhysical},
		{ClassBoardConnector, SupertypePhysical},
		{ClassClockDomain, SupertypeAbstractControl},
		{ClassFsm, SupertypeAbstractControl},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.class.Supertype())
		})
	}
}

func TestEntityClass_Supertype_PanicsOnUnknown(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		_ = EntityClass("bogus").Supertype()
	})
}

func TestCanonicalRelationOrder(t *testing.T) {
	t.Parallel()

	order := CanonicalRelationOrder()

	assert.Equal(t, []RelationType{
		RelData, RelClock, RelReset, RelParameter, RelConstraint, RelPhysicalMapping,
	}, order)

	// Mutating the returned slice must not affect subsequent calls.
	order[0] = RelReset
	assert.Equal(t, RelData, CanonicalRelationOrder()[0])
}

func TestNode_Supertype(t *testing.T) {
	t.Parallel()

	n := &Node{ID: "ff1", Class: ClassFlipFlop}
	assert.Equal(t, SupertypeLogical, n.Supertype())
}
