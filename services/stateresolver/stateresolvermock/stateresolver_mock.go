// Package stateresolvermock provides a hand-rolled test double for
// services/stateresolver.Resolver.
package stateresolvermock

import (
	"context"

	"policy-reasoner/api/services/stateresolver"
)

type ResolverMock struct {
	ResolveMock func(ctx context.Context, useCase string) (stateresolver.State, error)
}

func (m *ResolverMock) Resolve(ctx context.Context, useCase string) (stateresolver.State, error) {
	if m != nil && m.ResolveMock != nil {
		return m.ResolveMock(ctx, useCase)
	}
	return stateresolver.State{UseCase: useCase}, nil
}
