package main

import (
	"context"
	"strings"

	"github.com/gradrix/dendrite/internal/sandbox"
	"github.com/gradrix/dendrite/internal/toolplugin"
)

// demoTools registers a small fixed catalogue so `ask`/`demo`/`status` work
// with zero external configuration. Real deployments replace this with
// toolplugin.NewDirectorySource over a configured tool directory.
func demoTools() []toolplugin.FactoryEntry {
	return []toolplugin.FactoryEntry{
		{
			Source: "func add(a, b float64) float64 { return a + b }",
			Definition: toolplugin.Definition{
				Name:        "calculator.add",
				Description: "add two numbers together",
				Characteristics: &toolplugin.Characteristics{
					Idempotent: true, SafeForShadowTesting: true, TestDataAvailable: true,
				},
				TestCases: []toolplugin.TestCase{
					{Params: map[string]any{"a": 2.0, "b": 3.0}, Expected: 5.0},
				},
			},
		},
		{
			Source: "func wordCount(s string) int { return len(strings.Fields(s)) }",
			Definition: toolplugin.Definition{
				Name:        "text.word_count",
				Description: "count the number of words in a piece of text",
				Characteristics: &toolplugin.Characteristics{
					Idempotent: true, SafeForShadowTesting: true,
				},
				TestCases: []toolplugin.TestCase{
					{Params: map[string]any{"text": "hello world"}, Expected: 2.0},
				},
			},
		},
		{
			Source: "func reverse(s string) string { ... }",
			Definition: toolplugin.Definition{
				Name:        "text.reverse",
				Description: "reverse the characters in a piece of text",
				Characteristics: &toolplugin.Characteristics{
					Idempotent: true, SafeForShadowTesting: true,
				},
			},
		},
	}
}

func demoFuncs() map[string]sandbox.ToolFunc {
	return map[string]sandbox.ToolFunc{
		"calculator.add": func(_ context.Context, params map[string]any) (any, error) {
			a, _ := params["a"].(float64)
			b, _ := params["b"].(float64)
			return a + b, nil
		},
		"text.word_count": func(_ context.Context, params map[string]any) (any, error) {
			text, _ := params["text"].(string)
			return float64(len(strings.Fields(text))), nil
		},
		"text.reverse": func(_ context.Context, params map[string]any) (any, error) {
			text, _ := params["text"].(string)
			runes := []rune(text)
			for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
				runes[i], runes[j] = runes[j], runes[i]
			}
			return string(runes), nil
		},
		"candidate:calculator.add": func(_ context.Context, params map[string]any) (any, error) {
			a, _ := params["a"].(float64)
			b, _ := params["b"].(float64)
			return a + b, nil
		},
	}
}

func demoResponses() map[string]string {
	return map[string]string{
		"add":     `{"a": 2, "b": 3}`,
		"word":    `{"text": "hello world from dendrite"}`,
		"reverse": `{"text": "dendrite"}`,
	}
}
