package flow

import (
	"context"
	"fmt"
	"sync"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/codec"
	"github.com/Lupupam/corda/id"
)

// InitFunc is a type-erased initializer producing the initial machine
// state for a new run. The typed Definition[T] is converted to one at
// registration time by closing over the codec and the typed Init.
type InitFunc func(ctx context.Context, runID id.RunID, ev Event) (State, error)

// StepFunc is a type-erased transition function over serialized state.
type StepFunc func(ctx context.Context, st State, ev Event) (TransitionResult, error)

// Machine is one registered flow version: the type-erased init and step
// closures the scheduler drives runs with.
type Machine struct {
	name    string
	version int
	codec   string
	init    InitFunc
	step    StepFunc
}

// Name returns the flow name.
func (m *Machine) Name() string { return m.name }

// Version returns the definition version.
func (m *Machine) Version() int { return m.version }

// CodecName returns the name of the codec the definition serializes with.
func (m *Machine) CodecName() string { return m.codec }

// Init builds the initial state for a new run.
func (m *Machine) Init(ctx context.Context, runID id.RunID, ev Event) (State, error) {
	return m.init(ctx, runID, ev)
}

// Step computes one transition.
func (m *Machine) Step(ctx context.Context, st State, ev Event) (TransitionResult, error) {
	return m.step(ctx, st, ev)
}

// Registry maps flow names to versioned machines. Multiple versions of
// the same flow can coexist; new runs use the latest, resumed runs use
// the version recorded in their checkpoint. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	versions map[string][]*Machine // name → registered versions
}

// NewRegistry creates an empty flow registry.
func NewRegistry() *Registry {
	return &Registry{
		versions: make(map[string][]*Machine),
	}
}

// RegisterDefinition registers a typed flow definition. The typed Init
// and Step are wrapped in closures that decode the checkpointed payload
// into T before the call and re-encode it after, using the definition's
// codec (decode failures carry corda.ErrDeserialization).
//
// If Version is 0 (default), it is treated as version 1. Registering the
// same name and version twice fails with corda.ErrFlowExists: live runs
// pin their version, so silently replacing one would change their
// semantics mid-flight.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) error {
	if def.Name == "" {
		return fmt.Errorf("flow: definition has no name")
	}
	if def.Step == nil {
		return fmt.Errorf("flow: definition %q has no step function", def.Name)
	}

	version := def.Version
	if version <= 0 {
		version = 1
	}
	c := def.Codec
	if c == nil {
		c = codec.Default()
	}

	init := func(ctx context.Context, runID id.RunID, ev Event) (State, error) {
		var t T
		if def.Init != nil {
			seeded, err := def.Init(ctx, ev)
			if err != nil {
				return State{}, fmt.Errorf("init flow %q: %w", def.Name, err)
			}
			t = seeded
		} else if len(ev.Payload) > 0 {
			if err := c.Unmarshal(ev.Payload, &t); err != nil {
				return State{}, fmt.Errorf("init flow %q: %w", def.Name, err)
			}
		}

		data, err := c.Marshal(t)
		if err != nil {
			return State{}, fmt.Errorf("init flow %q: %w", def.Name, err)
		}

		return State{
			RunID:      runID,
			Flow:       def.Name,
			Version:    version,
			Status:     StatusRunning,
			ErrorState: ErrorStateClean,
			Data:       data,
		}, nil
	}

	step := func(ctx context.Context, st State, ev Event) (TransitionResult, error) {
		var t T
		if len(st.Data) > 0 {
			if err := c.Unmarshal(st.Data, &t); err != nil {
				return TransitionResult{}, fmt.Errorf("flow %q: decode state: %w", def.Name, err)
			}
		}

		res, err := def.Step(ctx, &t, ev)
		if err != nil {
			return TransitionResult{}, fmt.Errorf("flow %q: step: %w", def.Name, err)
		}

		data, err := c.Marshal(t)
		if err != nil {
			return TransitionResult{}, fmt.Errorf("flow %q: encode state: %w", def.Name, err)
		}

		return BuildResult(st, res, data, ev), nil
	}

	m := &Machine{name: def.Name, version: version, codec: c.Name(), init: init, step: step}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.versions[def.Name] {
		if existing.version == version {
			return fmt.Errorf("flow %q version %d: %w", def.Name, version, corda.ErrFlowExists)
		}
	}
	r.versions[def.Name] = append(r.versions[def.Name], m)
	return nil
}

// Get returns the latest-version machine for the given flow name.
// Returns false if nothing is registered under the name.
func (r *Registry) Get(name string) (*Machine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.versions[name]
	if len(versions) == 0 {
		return nil, false
	}
	best := versions[0]
	for _, m := range versions[1:] {
		if m.version > best.version {
			best = m
		}
	}
	return best, true
}

// GetVersion returns the machine for a specific version of a flow.
// If version <= 0, behaves like Get (returns latest).
func (r *Registry) GetVersion(name string, version int) (*Machine, bool) {
	if version <= 0 {
		return r.Get(name)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.versions[name] {
		if m.version == version {
			return m, true
		}
	}
	return nil, false
}

// LatestVersion returns the highest registered version number for a flow.
// Returns 0 if the flow is not registered.
func (r *Registry) LatestVersion(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	best := 0
	for _, m := range r.versions[name] {
		if m.version > best {
			best = m.version
		}
	}
	return best
}

// Names returns all registered flow names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.versions))
	for name := range r.versions {
		names = append(names, name)
	}
	return names
}
