// Package filestateresolver implements stateresolver.Resolver by loading a
// static JSON document mapping use-case identifiers to their State, once
// at startup. It plays the role the source's FileStateResolver and
// BraneApiResolver's use-case file split between them: one file, read once,
// keyed by use-case like BraneApiResolver's registry map, but serving the
// State directly instead of proxying a live API (that live-registry
// integration is out of scope here).
package filestateresolver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"policy-reasoner/api/services/stateresolver"
)

// Resolver serves State snapshots read once from a JSON file at
// construction time.
type Resolver struct {
	useCases map[string]stateresolver.State
}

// Open reads path as a JSON object mapping use-case identifiers to State.
func Open(path string) (*Resolver, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("filestateresolver: read %s: %w", path, err)
	}

	var useCases map[string]stateresolver.State
	if err := json.Unmarshal(body, &useCases); err != nil {
		return nil, fmt.Errorf("filestateresolver: parse %s: %w", path, err)
	}
	return &Resolver{useCases: useCases}, nil
}

// Resolve returns the State configured for useCase, or
// stateresolver.ErrUnknownUseCase if none is configured.
func (r *Resolver) Resolve(_ context.Context, useCase string) (stateresolver.State, error) {
	state, ok := r.useCases[useCase]
	if !ok {
		return stateresolver.State{}, fmt.Errorf("%w: %q", stateresolver.ErrUnknownUseCase, useCase)
	}
	return state, nil
}
