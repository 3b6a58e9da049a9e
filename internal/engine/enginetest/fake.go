// Package enginetest provides an in-memory engine.Engine for tests.
package enginetest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/shinji-kodama/batch-clip/internal/engine"
	"github.com/shinji-kodama/batch-clip/internal/model"
)

// BufferCall records one Buffer invocation.
type BufferCall struct {
	Layer    engine.Layer
	Distance model.Distance
	Out      string
}

// ClipCall records one Clip invocation.
type ClipCall struct {
	Input       model.FeatureClass
	Clip        engine.Layer
	Destination string
}

// Engine is a test implementation of engine.Engine. Feature counts are
// looked up by source and predicate; created containers and clipped
// outputs are tracked in memory.
type Engine struct {
	mu sync.Mutex

	// Counts maps CountKey(source, where) to the number of selected features.
	Counts map[string]int

	// Classes lists the feature classes of each input workspace.
	Classes map[string][]model.FeatureClass

	// Containers holds the paths of created geodatabases.
	Containers map[string]bool

	// Outputs maps geodatabase path to the feature class names written into it.
	Outputs map[string][]string

	Buffers []BufferCall
	Clips   []ClipCall

	// Calls lists engine operations in invocation order.
	Calls []string

	CountErr  error
	BufferErr error
	CreateErr error
	ListErr   error

	// ClipErr fails Clip for the named feature classes.
	ClipErr map[string]error

	// PanicOnClip makes Clip panic for the named feature class.
	PanicOnClip string

	// Log receives engine-side messages, mirroring a real engine.
	Log *engine.MessageLog

	settings engine.Settings
}

// New creates a fake engine with the given settings.
func New(settings engine.Settings, log *engine.MessageLog) *Engine {
	return &Engine{
		Counts:     make(map[string]int),
		Classes:    make(map[string][]model.FeatureClass),
		Containers: make(map[string]bool),
		Outputs:    make(map[string][]string),
		ClipErr:    make(map[string]error),
		Log:        log,
		settings:   settings,
	}
}

// CountKey builds the Counts key for a source and predicate.
func CountKey(source, where string) string {
	return source + "|" + where
}

func (e *Engine) record(call string) {
	e.mu.Lock()
	e.Calls = append(e.Calls, call)
	e.mu.Unlock()
}

func (e *Engine) MakeFeatureLayer(_ context.Context, source, where, name string) (engine.Layer, error) {
	e.record("MakeFeatureLayer")
	return engine.Layer{Name: name, Dataset: source, Source: filepath.Base(source), Where: where}, nil
}

func (e *Engine) GetCount(_ context.Context, layer engine.Layer) (int, error) {
	e.record("GetCount")
	if e.CountErr != nil {
		e.logError(e.CountErr)
		return 0, e.CountErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Counts[CountKey(layer.Dataset, layer.Where)], nil
}

func (e *Engine) Buffer(_ context.Context, layer engine.Layer, distance model.Distance, out string) (engine.Layer, error) {
	e.record("Buffer")
	if e.BufferErr != nil {
		e.logError(e.BufferErr)
		return engine.Layer{}, e.BufferErr
	}
	e.mu.Lock()
	e.Buffers = append(e.Buffers, BufferCall{Layer: layer, Distance: distance, Out: out})
	e.mu.Unlock()
	return engine.Layer{Name: out, Dataset: filepath.Join(e.settings.ScratchDir, out), Source: out}, nil
}

func (e *Engine) CreateFileGDB(_ context.Context, workspace, name string) (model.OutputContainer, error) {
	e.record("CreateFileGDB")
	if e.CreateErr != nil {
		e.logError(e.CreateErr)
		return model.OutputContainer{}, e.CreateErr
	}
	c := model.OutputContainer{Workspace: workspace, Name: name}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Containers[c.Path()] && !e.settings.Overwrite {
		return model.OutputContainer{}, fmt.Errorf("%s: %w", c.Path(), model.ErrContainerExists)
	}
	e.Containers[c.Path()] = true
	e.Outputs[c.Path()] = nil
	return c, nil
}

func (e *Engine) ListFeatureClasses(_ context.Context, workspace, wildcard string, featureType model.FeatureType) ([]model.FeatureClass, error) {
	e.record("ListFeatureClasses")
	if e.ListErr != nil {
		e.logError(e.ListErr)
		return nil, e.ListErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return engine.FilterFeatureClasses(e.Classes[workspace], wildcard, featureType), nil
}

func (e *Engine) Clip(_ context.Context, in model.FeatureClass, clip engine.Layer, destination string) error {
	e.record("Clip")
	if e.PanicOnClip != "" && e.PanicOnClip == in.Name {
		panic("clip: corrupted geometry in " + in.Name)
	}
	if err := e.ClipErr[in.Name]; err != nil {
		e.logError(err)
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Clips = append(e.Clips, ClipCall{Input: in, Clip: clip, Destination: destination})
	gdb := filepath.Dir(destination)
	e.Outputs[gdb] = append(e.Outputs[gdb], filepath.Base(destination))
	return nil
}

func (e *Engine) logError(err error) {
	if e.Log != nil {
		e.Log.Error("%v", err)
	}
}

var _ engine.Engine = (*Engine)(nil)
