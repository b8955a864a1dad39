// Package policystoremock provides a hand-rolled test double for
// services/policystore.Store, in the same XxxMock-function-field style
// as the workflow engine's storagemock.StorageMock.
package policystoremock

import (
	"context"

	"policy-reasoner/api/services/policystore"
)

type StoreMock struct {
	AddVersionMock   func(ctx context.Context, description string, content policystore.Content, actx policystore.Context, hook policystore.CommitHook) (policystore.Policy, error)
	GetVersionMock   func(ctx context.Context, version int) (policystore.Policy, error)
	GetMostRecentMock func(ctx context.Context) (policystore.Policy, error)
	GetVersionsMock  func(ctx context.Context) ([]policystore.VersionSummary, error)
	GetActiveMock    func(ctx context.Context) (policystore.Policy, error)
	SetActiveMock    func(ctx context.Context, version int, actx policystore.Context, hook policystore.CommitHook) (policystore.Policy, error)
}

func (m *StoreMock) AddVersion(ctx context.Context, description string, content policystore.Content, actx policystore.Context, hook policystore.CommitHook) (policystore.Policy, error) {
	if m != nil && m.AddVersionMock != nil {
		return m.AddVersionMock(ctx, description, content, actx, hook)
	}
	return policystore.Policy{}, nil
}

func (m *StoreMock) GetVersion(ctx context.Context, version int) (policystore.Policy, error) {
	if m != nil && m.GetVersionMock != nil {
		return m.GetVersionMock(ctx, version)
	}
	return policystore.Policy{}, policystore.ErrNotFound
}

func (m *StoreMock) GetMostRecent(ctx context.Context) (policystore.Policy, error) {
	if m != nil && m.GetMostRecentMock != nil {
		return m.GetMostRecentMock(ctx)
	}
	return policystore.Policy{}, policystore.ErrNotFound
}

func (m *StoreMock) GetVersions(ctx context.Context) ([]policystore.VersionSummary, error) {
	if m != nil && m.GetVersionsMock != nil {
		return m.GetVersionsMock(ctx)
	}
	return nil, nil
}

func (m *StoreMock) GetActive(ctx context.Context) (policystore.Policy, error) {
	if m != nil && m.GetActiveMock != nil {
		return m.GetActiveMock(ctx)
	}
	return policystore.Policy{}, policystore.ErrNotFound
}

func (m *StoreMock) SetActive(ctx context.Context, version int, actx policystore.Context, hook policystore.CommitHook) (policystore.Policy, error) {
	if m != nil && m.SetActiveMock != nil {
		return m.SetActiveMock(ctx, version, actx, hook)
	}
	return policystore.Policy{}, nil
}
