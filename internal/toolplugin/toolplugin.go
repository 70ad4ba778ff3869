// Package toolplugin discovers tools and exposes a uniform capability
// interface over them, regardless of whether a tool is an in-process Go
// factory or a directory-discovered executable (spec §6, design notes §9).
package toolplugin

import (
	"context"

	"github.com/gradrix/dendrite/internal/model"
)

type (
	// Characteristics describes a tool's safety profile for the improvement
	// engine's test-strategy selection (spec §4.6).
	Characteristics struct {
		Idempotent           bool
		SideEffects          bool
		SafeForShadowTesting bool
		RequiresMocking      bool
		TestDataAvailable    bool
	}

	// TestCase is one declared synthetic test case (spec §4.6 synthetic
	// strategy).
	TestCase struct {
		Params   map[string]any
		Expected any
	}

	// Definition is the capability interface a tool exposes, per the design
	// notes' guidance to model dynamic loading as a closed interface rather
	// than reflection/duck-typing.
	Definition struct {
		Name            model.ToolName
		Description     string
		ParamSchema     []byte // raw JSON Schema, optional
		ContentHash     string
		Characteristics *Characteristics // nil if the tool declares none
		TestCases       []TestCase
	}

	// Source discovers tool definitions from some backend (a directory of
	// files, a set of registered factories, …).
	Source interface {
		Discover(ctx context.Context) ([]Definition, error)
	}
)
