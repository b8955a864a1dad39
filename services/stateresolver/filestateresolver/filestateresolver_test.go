package filestateresolver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"policy-reasoner/api/services/stateresolver"
)

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestOpenAndResolve(t *testing.T) {
	path := writeFixture(t, `{
		"uc-1": {
			"useCase": "uc-1",
			"users": [{"name": "alice"}],
			"locations": [{"name": "amsterdam-umc"}],
			"datasets": [{"name": "patients-2024", "from": "amsterdam-umc"}],
			"functions": [{"name": "aggregate", "package": "stats", "version": "1.0.0"}]
		}
	}`)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	state, err := r.Resolve(context.Background(), "uc-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if state.UseCase != "uc-1" || len(state.Users) != 1 || state.Users[0].Name != "alice" {
		t.Errorf("unexpected state: %+v", state)
	}
}

func TestResolve_UnknownUseCase(t *testing.T) {
	path := writeFixture(t, `{"uc-1": {"useCase": "uc-1"}}`)
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	_, err = r.Resolve(context.Background(), "nonexistent")
	if !errors.Is(err, stateresolver.ErrUnknownUseCase) {
		t.Fatalf("expected ErrUnknownUseCase, got %v", err)
	}
}

func TestOpen_MissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected an error opening a nonexistent file")
	}
}

func TestOpen_InvalidJSON(t *testing.T) {
	path := writeFixture(t, `not json`)
	if _, err := Open(path); err == nil {
		t.Fatalf("expected an error parsing invalid JSON")
	}
}
