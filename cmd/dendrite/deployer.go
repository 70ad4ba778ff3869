package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/gradrix/dendrite/internal/model"
	"github.com/gradrix/dendrite/internal/toolplugin"
)

// factoryDeployer adapts a toolplugin.FactorySource into the
// improvement.Deployer and monitor.Restorer interfaces for the in-memory
// `demo`/`ask` wiring, keeping every historical source version in memory so
// RestoreVersion can roll back without touching disk.
type factoryDeployer struct {
	mu      sync.Mutex
	source  *toolplugin.FactorySource
	history map[model.ToolName]map[int]string
	current map[model.ToolName]int
}

func newFactoryDeployer(source *toolplugin.FactorySource) *factoryDeployer {
	return &factoryDeployer{
		source:  source,
		history: make(map[model.ToolName]map[int]string),
		current: make(map[model.ToolName]int),
	}
}

func (d *factoryDeployer) seed(tool model.ToolName, source string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history[tool] = map[int]string{0: source}
	d.current[tool] = 0
}

func (d *factoryDeployer) Deploy(_ context.Context, tool model.ToolName, source []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := d.current[tool] + 1
	if d.history[tool] == nil {
		d.history[tool] = make(map[int]string)
	}
	d.history[tool][next] = string(source)
	d.current[tool] = next
	d.source.UpdateSource(tool, string(source))
	return nil
}

func (d *factoryDeployer) Backup(_ context.Context, tool model.ToolName) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	src, ok := d.history[tool][d.current[tool]]
	if !ok {
		return nil, fmt.Errorf("deployer: no backup available for %q", tool)
	}
	return []byte(src), nil
}

func (d *factoryDeployer) Restore(_ context.Context, tool model.ToolName, backup []byte) error {
	d.source.UpdateSource(tool, string(backup))
	return nil
}

func (d *factoryDeployer) RestoreVersion(_ context.Context, tool model.ToolName, version int) error {
	d.mu.Lock()
	src, ok := d.history[tool][version]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("deployer: no version %d recorded for %q", version, tool)
	}
	d.source.UpdateSource(tool, src)
	return nil
}
