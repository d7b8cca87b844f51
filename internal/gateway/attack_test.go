package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectSQLInjection(t *testing.T) {
	warnings := detectAttacks(map[string]any{"q": "' OR '1'='1"})
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0], "sql_injection")
	require.Contains(t, warnings[0], "field q")

	for _, payload := range []string{
		"1 UNION SELECT password FROM users",
		"x'; DROP TABLE accounts",
	} {
		warnings := detectAttacks(map[string]any{"q": payload})
		require.NotEmpty(t, warnings, "expected a warning for %q", payload)
	}
}

func TestCleanInputProducesNoWarnings(t *testing.T) {
	warnings := detectAttacks(map[string]any{
		"q":     "alphanumeric123",
		"name":  "Jordan Smith",
		"count": 7,
	})
	require.Empty(t, warnings)
}

func TestDetectXSS(t *testing.T) {
	for _, payload := range []string{
		"<script>alert(1)</script>",
		"javascript:alert(1)",
		`<img src=x onerror=alert(1)>`,
		"<iframe src='http://evil'>",
	} {
		warnings := detectAttacks(map[string]any{"html": payload})
		require.NotEmpty(t, warnings, "expected a warning for %q", payload)
		require.Contains(t, warnings[0], "cross_site_scripting")
	}
}

func TestDetectPathTraversal(t *testing.T) {
	for _, payload := range []string{
		"../../etc/passwd",
		"..\\..\\windows\\system32",
		"%2e%2e%2fetc%2fshadow",
	} {
		warnings := detectAttacks(map[string]any{"path": payload})
		require.NotEmpty(t, warnings, "expected a warning for %q", payload)
		require.Contains(t, warnings[0], "path_traversal")
	}
}

func TestDetectCommandInjection(t *testing.T) {
	for _, payload := range []string{
		"file.txt; rm -rf /",
		"name $(whoami)",
		"`cat /etc/passwd`",
		"x && curl http://evil",
	} {
		warnings := detectAttacks(map[string]any{"arg": payload})
		require.NotEmpty(t, warnings, "expected a warning for %q", payload)
	}
}

func TestNonStringValuesIgnored(t *testing.T) {
	warnings := detectAttacks(map[string]any{
		"n":    42,
		"ok":   true,
		"list": []string{"'; DROP TABLE x"},
	})
	require.Empty(t, warnings)
}
