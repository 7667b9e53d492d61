package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// testConfig is rendered into a YAML file for the commands under test.
type testConfig struct {
	BaseURL    string
	ProxyURL   string
	HealthTest bool
	JWTSecret  string
	Provider   string
}

func writeConfig(t *testing.T, tc testConfig) string {
	t.Helper()

	if tc.Provider == "" {
		tc.Provider = "openai"
	}
	if tc.BaseURL == "" {
		tc.BaseURL = "http://upstream.example/v1"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "server:\n  port: 8080\n  log_level: error\n")
	fmt.Fprintf(&b, "llm:\n  provider: %s\n  api_key: test-key\n  base_url: %s\n  model: test-model\n  timeout_seconds: 5\n  max_retries: 2\n", tc.Provider, tc.BaseURL)
	fmt.Fprintf(&b, "transport:\n  proxy_url: %q\n  health_check_enabled: %t\n  health_check_interval_seconds: 60\n", tc.ProxyURL, tc.HealthTest)
	fmt.Fprintf(&b, "retry:\n  base_delay_ms: 0\n  max_delay_ms: 0\n  jitter_ratio: 0\n")
	fmt.Fprintf(&b, "batch:\n  max_concurrent: 2\n  retry_attempts: 1\n  item_timeout_seconds: 5\n")
	if tc.JWTSecret != "" {
		fmt.Fprintf(&b, "auth:\n  jwt_secret: %s\n  token_lifetime_minutes: 5\n", tc.JWTSecret)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

// runCommand executes the root command and returns stdout and stderr.
func runCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}
