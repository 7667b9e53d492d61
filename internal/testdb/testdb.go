package testdb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/phrazzld/scry-gen/internal/redact"
)

// Database URL variables, checked in order.
const (
	EnvTestDatabaseURL = "SCRY_TEST_DATABASE_URL"
	EnvDatabaseURL     = "SCRY_DATABASE_URL"
)

var ciVariables = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"}

// IsCI reports whether the tests run under a known CI provider.
func IsCI() bool {
	for _, name := range ciVariables {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

// LookupURL returns the first non-empty database URL variable.
func LookupURL() (string, bool) {
	for _, name := range []string{EnvTestDatabaseURL, EnvDatabaseURL} {
		if v := os.Getenv(name); v != "" {
			return v, true
		}
	}
	return "", false
}

// DatabaseURL returns the test database URL. Without one the test is
// skipped locally and fails in CI, where a database is always provisioned.
func DatabaseURL(t testing.TB) string {
	t.Helper()

	url, ok := LookupURL()
	if ok {
		t.Logf("using test database %s", redact.URL(url))
		return url
	}
	if IsCI() {
		t.Fatalf("no test database configured; set %s", EnvTestDatabaseURL)
	}
	t.Skipf("%s not set", EnvTestDatabaseURL)
	return ""
}

// WithTx runs fn in a transaction that is rolled back afterwards.
func WithTx(t testing.TB, db *sql.DB, fn func(tx *sql.Tx)) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Errorf("failed to roll back transaction: %v", err)
		}
	}()

	fn(tx)
}
