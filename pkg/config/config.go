// Package config centralizes the environment variables this service reads
// at startup, following the teacher's DATABASE_URL/os.LookupEnv pattern but
// gathered into one place now that there are several external dependents
// (database, reasoner, JWKS, audit log).
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is every externally-configurable setting the service needs to
// start serving traffic.
type Config struct {
	// DatabaseURL is the pgx connection string for the policy store.
	DatabaseURL string
	// SQLitePath, if set, selects the sqlitepolicystore backend instead of
	// pgpolicystore, pointed at this file (or ":memory:").
	SQLitePath string

	// ReasonerAddr is the URL the eflint connector POSTs requests to.
	ReasonerAddr string
	// DisclosurePrefix configures a LeakByPrefix disclosure policy; an
	// empty string selects LeakNone instead.
	DisclosurePrefix string

	// JWKSURL is the JSON Web Key Set endpoint used to resolve bearer
	// token signing keys by kid.
	JWKSURL string
	// StateFilePath points at the JSON document mapping use-case
	// identifiers to their stateresolver.State, loaded once at startup.
	StateFilePath string
	// InitiatorClaim is the JWT claim whose value becomes AuthContext.Initiator.
	InitiatorClaim string

	// AuditLogPath is where the append-only audit log is written. "-"
	// (the default) means os.Stdout.
	AuditLogPath string
	// ServiceVersion is embedded in every audit log line's prefix.
	ServiceVersion string

	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string
	// CORSAllowedOrigins is the set of origins gorilla/handlers.CORS permits.
	CORSAllowedOrigins []string
}

// Load reads Config from the process environment, applying the same
// defaults the teacher's main.go hard-codes (":8080",
// "http://localhost:3003") where no override is given.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         os.Getenv("POLICY_STORE_SQLITE_PATH"),
		ReasonerAddr:       envOr("REASONER_ADDR", "http://localhost:8080"),
		DisclosurePrefix:   os.Getenv("DISCLOSURE_PREFIX"),
		JWKSURL:            os.Getenv("JWKS_URL"),
		StateFilePath:      envOr("STATE_FILE_PATH", "state.json"),
		InitiatorClaim:     envOr("INITIATOR_CLAIM", "sub"),
		AuditLogPath:       envOr("AUDIT_LOG_PATH", "-"),
		ServiceVersion:     envOr("SERVICE_VERSION", "1"),
		ListenAddr:         envOr("LISTEN_ADDR", ":8080"),
		CORSAllowedOrigins: []string{envOr("CORS_ALLOWED_ORIGIN", "http://localhost:3003")},
	}

	if cfg.DatabaseURL == "" && cfg.SQLitePath == "" {
		return Config{}, fmt.Errorf("config: one of DATABASE_URL or POLICY_STORE_SQLITE_PATH must be set")
	}
	if cfg.JWKSURL == "" {
		return Config{}, fmt.Errorf("config: JWKS_URL is not set")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

// EnvBool reads a boolean-valued environment variable, defaulting to
// fallback when unset or unparsable.
func EnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
