package config

import (
	"os"
	"testing"
)

// EnvTestDSN names the environment variable holding the integration test DSN.
const EnvTestDSN = "CIRCULATION_TEST_DSN"

// PostgresTestDSN returns the DSN for the test database and skips t when none is configured.
func PostgresTestDSN(t testing.TB) string {
	t.Helper()

	dsn := os.Getenv(EnvTestDSN)
	if dsn == "" {
		t.Skipf("%s is not set, skipping PostgreSQL integration test", EnvTestDSN)
	}

	return dsn
}
