package config

import "testing"

func withEnv(t *testing.T, kvs map[string]string, fn func()) {
	t.Helper()
	for k, v := range kvs {
		t.Setenv(k, v)
	}
	fn()
}

func TestLoad_Defaults(t *testing.T) {
	withEnv(t, map[string]string{
		"DATABASE_URL": "postgres://localhost/test",
		"JWKS_URL":     "https://example.invalid/jwks.json",
	}, func() {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.ListenAddr != ":8080" {
			t.Errorf("expected default listen addr :8080, got %q", cfg.ListenAddr)
		}
		if cfg.StateFilePath != "state.json" {
			t.Errorf("expected default state file path state.json, got %q", cfg.StateFilePath)
		}
		if cfg.InitiatorClaim != "sub" {
			t.Errorf("expected default initiator claim sub, got %q", cfg.InitiatorClaim)
		}
		if cfg.AuditLogPath != "-" {
			t.Errorf("expected default audit log path -, got %q", cfg.AuditLogPath)
		}
	})
}

func TestLoad_MissingStoreBackendErrors(t *testing.T) {
	withEnv(t, map[string]string{
		"DATABASE_URL":             "",
		"POLICY_STORE_SQLITE_PATH": "",
		"JWKS_URL":                 "https://example.invalid/jwks.json",
	}, func() {
		if _, err := Load(); err == nil {
			t.Fatalf("expected an error when neither DATABASE_URL nor POLICY_STORE_SQLITE_PATH is set")
		}
	})
}

func TestLoad_MissingJWKSURLErrors(t *testing.T) {
	withEnv(t, map[string]string{
		"DATABASE_URL": "postgres://localhost/test",
		"JWKS_URL":     "",
	}, func() {
		if _, err := Load(); err == nil {
			t.Fatalf("expected an error when JWKS_URL is not set")
		}
	})
}

func TestLoad_SQLiteBackendSatisfiesStoreRequirement(t *testing.T) {
	withEnv(t, map[string]string{
		"DATABASE_URL":             "",
		"POLICY_STORE_SQLITE_PATH": ":memory:",
		"JWKS_URL":                 "https://example.invalid/jwks.json",
	}, func() {
		if _, err := Load(); err != nil {
			t.Fatalf("expected no error with only the sqlite backend configured: %v", err)
		}
	})
}

func TestEnvBool(t *testing.T) {
	t.Setenv("FEATURE_FLAG", "true")
	if !EnvBool("FEATURE_FLAG", false) {
		t.Errorf("expected true")
	}
	if !EnvBool("UNSET_FLAG", true) {
		t.Errorf("expected fallback true for an unset variable")
	}
	t.Setenv("BAD_FLAG", "not-a-bool")
	if EnvBool("BAD_FLAG", true) != true {
		t.Errorf("expected fallback on an unparsable value")
	}
}
