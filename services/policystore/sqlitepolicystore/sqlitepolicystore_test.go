package sqlitepolicystore

import (
	"context"
	"errors"
	"testing"

	"policy-reasoner/api/services/policystore"
)

func noopHook(policystore.Policy) error { return nil }

func TestAddVersionMonotonic(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx := context.Background()
	content := policystore.Content{ReasonerID: "eflint-json", ReasonerVersion: "1.0.0", Body: []byte("{}")}

	first, err := s.AddVersion(ctx, "initial", content, policystore.Context{Initiator: "alice"}, noopHook)
	if err != nil {
		t.Fatalf("AddVersion: %v", err)
	}
	if first.Version != 1 {
		t.Errorf("expected first version to be 1, got %d", first.Version)
	}

	second, err := s.AddVersion(ctx, "update", content, policystore.Context{Initiator: "bob"}, noopHook)
	if err != nil {
		t.Fatalf("AddVersion: %v", err)
	}
	if second.Version != 2 {
		t.Errorf("expected second version to be 2, got %d", second.Version)
	}
}

func TestAddVersionHookFailureRollsBack(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	content := policystore.Content{ReasonerID: "eflint-json", ReasonerVersion: "1.0.0", Body: []byte("{}")}

	boom := errors.New("audit log unreachable")
	_, err = s.AddVersion(ctx, "broken", content, policystore.Context{Initiator: "alice"}, func(policystore.Policy) error {
		return boom
	})
	if err == nil {
		t.Fatal("expected AddVersion to fail when the commit hook errors")
	}

	if _, err := s.GetMostRecent(ctx); !errors.Is(err, policystore.ErrNotFound) {
		t.Fatalf("expected the failed add_version to have rolled back, got %v", err)
	}
}

func TestSetActiveRequiresExistingVersion(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()

	_, err = s.SetActive(ctx, 99, policystore.Context{Initiator: "alice"}, noopHook)
	if !errors.Is(err, policystore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a nonexistent version, got %v", err)
	}
}

func TestSetActivePicksLatestActivation(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	content := policystore.Content{ReasonerID: "eflint-json", ReasonerVersion: "1.0.0", Body: []byte("{}")}

	if _, err := s.AddVersion(ctx, "v1", content, policystore.Context{Initiator: "alice"}, noopHook); err != nil {
		t.Fatalf("AddVersion v1: %v", err)
	}
	if _, err := s.AddVersion(ctx, "v2", content, policystore.Context{Initiator: "alice"}, noopHook); err != nil {
		t.Fatalf("AddVersion v2: %v", err)
	}

	if _, err := s.SetActive(ctx, 1, policystore.Context{Initiator: "alice"}, noopHook); err != nil {
		t.Fatalf("SetActive(1): %v", err)
	}
	if _, err := s.SetActive(ctx, 2, policystore.Context{Initiator: "alice"}, noopHook); err != nil {
		t.Fatalf("SetActive(2): %v", err)
	}

	active, err := s.GetActive(ctx)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active.Version != 2 {
		t.Errorf("expected most recently activated version (2) to be active, got %d", active.Version)
	}
}

func TestGetVersionsDescendingByCreatedAt(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	content := policystore.Content{ReasonerID: "eflint-json", ReasonerVersion: "1.0.0", Body: []byte("{}")}

	for _, desc := range []string{"v1", "v2", "v3"} {
		if _, err := s.AddVersion(ctx, desc, content, policystore.Context{Initiator: "alice"}, noopHook); err != nil {
			t.Fatalf("AddVersion(%s): %v", desc, err)
		}
	}

	versions, err := s.GetVersions(ctx)
	if err != nil {
		t.Fatalf("GetVersions: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}
	if versions[0].Version != 3 || versions[2].Version != 1 {
		t.Errorf("expected descending version order, got %+v", versions)
	}
}
