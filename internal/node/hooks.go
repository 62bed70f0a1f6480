package node

import "github.com/agentic-research/configtree/internal/value"

// HookRegistry supplies the Go-side closures a catalog cannot express as
// plain declarative text: compute/migrate formulas, assert/warn predicates,
// and fix functions. HCL catalog elements reference these by symbolic name
// (e.g. compute_hook = "database_url"); compileValueSpec (element.go) looks
// the name up here when it builds the element's value spec. A catalog
// assembled directly in Go may skip the
// registry and build a *value.Spec by hand instead.
type HookRegistry struct {
	Computes map[string]*value.ComputeSpec
	Asserts  map[string]value.AssertFunc
	Fixes    map[string]value.FixFunc
}

// NewHookRegistry returns an empty registry ready for population.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{
		Computes: make(map[string]*value.ComputeSpec),
		Asserts:  make(map[string]value.AssertFunc),
		Fixes:    make(map[string]value.FixFunc),
	}
}
